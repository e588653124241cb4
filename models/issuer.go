package models

import (
	"strings"

	"gorm.io/gorm"
)

// Issuer is the laboratory that emits invoices. One row per issuer code
// in the tenant schema.
type Issuer struct {
	Code        string `json:"code" gorm:"primaryKey;size:32"`
	CompanyName string `json:"company_name" gorm:"not null" validate:"required"`
	VATNumber   string `json:"vat_number" gorm:"not null" validate:"required,alphanum,max=28"`
	FiscalCode  string `json:"fiscal_code" validate:"omitempty,alphanum,max=16"`
	TaxRegime   string `json:"tax_regime" gorm:"not null;default:RF01" validate:"required,len=4"`
	Address     string `json:"address" gorm:"not null" validate:"required"`
	City        string `json:"city" gorm:"not null" validate:"required"`
	Zip         string `json:"zip" gorm:"not null" validate:"required"`
	Province    string `json:"province" validate:"omitempty,len=2"`
	Country     string `json:"country" gorm:"not null;size:2" validate:"required,len=2"`
}

func (issuer *Issuer) BeforeSave(tx *gorm.DB) (err error) {
	issuer.VATNumber = strings.ToUpper(strings.TrimSpace(issuer.VATNumber))
	issuer.FiscalCode = strings.ToUpper(strings.TrimSpace(issuer.FiscalCode))
	issuer.Country = strings.ToUpper(issuer.Country)
	return Validate(issuer)
}
