package models

import (
	"strings"

	"gorm.io/gorm"
)

// Client is the billed party. It needs at least one tax identifier and may
// point at a shared price list.
type Client struct {
	Id             uint       `json:"id" gorm:"primaryKey"`
	CompanyName    string     `json:"company_name" gorm:"not null;unique" validate:"required"`
	Address        string     `json:"address" gorm:"not null" validate:"required"`
	City           string     `json:"city" gorm:"not null" validate:"required"`
	Country        string     `json:"country" gorm:"not null;size:2" validate:"required,len=2"`
	Zip            string     `json:"zip" gorm:"not null" validate:"required"`
	Province       string     `json:"province" validate:"omitempty,len=2"`
	Email          string     `json:"email" validate:"omitempty,email"`
	VATNumber      string     `json:"vat_number" validate:"omitempty,alphanum,max=28"`
	FiscalCode     string     `json:"fiscal_code" validate:"omitempty,alphanum,max=16"`
	RoutingCode    string     `json:"routing_code" gorm:"size:7" validate:"omitempty,alphanum,min=6,max=7"`
	CertifiedEmail string     `json:"certified_email" validate:"omitempty,email"`
	PriceListID    *uint      `json:"price_list_id" gorm:"index"`
	PriceList      *PriceList `json:"price_list,omitempty" gorm:"foreignKey:PriceListID"`
	Active         bool       `json:"active" gorm:"not null;default:true"`
}

func (client *Client) BeforeSave(tx *gorm.DB) (err error) {
	client.VATNumber = strings.ToUpper(strings.TrimSpace(client.VATNumber))
	client.FiscalCode = strings.ToUpper(strings.TrimSpace(client.FiscalCode))
	client.RoutingCode = strings.ToUpper(strings.TrimSpace(client.RoutingCode))
	if client.VATNumber == "" && client.FiscalCode == "" {
		return ErrMissingTaxID
	}
	return Validate(client)
}
