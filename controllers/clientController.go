package controllers

import (
	"fmt"
	"strings"

	"labbilling-backend/billing"
	"labbilling-backend/middlewares"
	"labbilling-backend/models"
	"labbilling-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ClientCreateDTO struct {
	CompanyName    string `json:"company_name" validate:"required,min=1"`
	Address        string `json:"address" validate:"required,min=1"`
	City           string `json:"city" validate:"required,min=1"`
	Country        string `json:"country" validate:"required,len=2"`
	Zip            string `json:"zip" validate:"required,min=1"`
	Province       string `json:"province" validate:"omitempty,len=2"`
	Email          string `json:"email" validate:"omitempty,email"`
	VATNumber      string `json:"vat_number" validate:"required_without=FiscalCode"`
	FiscalCode     string `json:"fiscal_code" validate:"required_without=VATNumber"`
	RoutingCode    string `json:"routing_code"`
	CertifiedEmail string `json:"certified_email" validate:"omitempty,email"`
	PriceListID    *uint  `json:"price_list_id"`
}

type ClientUpdateDTO struct {
	Address        *string `json:"address" validate:"omitempty,min=1"`
	City           *string `json:"city" validate:"omitempty,min=1"`
	Country        *string `json:"country" validate:"omitempty,len=2"`
	Zip            *string `json:"zip" validate:"omitempty,min=1"`
	Province       *string `json:"province"`
	Email          *string `json:"email" validate:"omitempty,email"`
	VATNumber      *string `json:"vat_number"`
	FiscalCode     *string `json:"fiscal_code"`
	RoutingCode    *string `json:"routing_code"`
	CertifiedEmail *string `json:"certified_email" validate:"omitempty,email"`
	Active         *bool   `json:"active"`
}

type PriceListEntryDTO struct {
	ElementKind models.ElementKind `json:"element_kind" validate:"required,oneof=analyte panel category_fee"`
	ElementID   string             `json:"element_id" validate:"required"`
	Price       decimal.Decimal    `json:"price"`
}

// PriceListDTO either attaches an existing list by id or replaces the
// entries of the client's own list.
type PriceListDTO struct {
	PriceListID *uint               `json:"price_list_id"`
	Name        string              `json:"name"`
	Entries     []PriceListEntryDTO `json:"entries" validate:"dive"`
}

// ClientController serves clients, their price lists and billing lookups.
type ClientController struct {
	selector *billing.EligibilitySelector
	resolver *billing.PriceResolver
}

func NewClientController(selector *billing.EligibilitySelector, resolver *billing.PriceResolver) *ClientController {
	return &ClientController{selector: selector, resolver: resolver}
}

// POST /api/client
func (h *ClientController) Create(c *fiber.Ctx) error {
	var in ClientCreateDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	utils.NormalizeDTO(&in)
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	client := models.Client{
		CompanyName:    in.CompanyName,
		Address:        in.Address,
		City:           in.City,
		Country:        strings.ToUpper(in.Country),
		Zip:            in.Zip,
		Province:       strings.ToUpper(in.Province),
		Email:          in.Email,
		VATNumber:      in.VATNumber,
		FiscalCode:     in.FiscalCode,
		RoutingCode:    in.RoutingCode,
		CertifiedEmail: in.CertifiedEmail,
		PriceListID:    in.PriceListID,
		Active:         true,
	}
	if err := db.Omit(clause.Associations).Create(&client).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(client)
}

// GET /api/clients
func (h *ClientController) List(c *fiber.Ctx) error {
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	q := db.Model(&models.Client{}).Order("company_name ASC")
	if c.Query("active") == "true" {
		q = q.Where("active = ?", true)
	}
	var clients []models.Client
	if err := paginate(c, q).Find(&clients).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"clients": clients,
		"message": "success",
	})
}

// GET /api/client/:id
func (h *ClientController) Get(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	var client models.Client
	err = db.Preload("PriceList.Entries", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC, id ASC")
	}).Take(&client, id).Error
	if err != nil {
		return notFound(err, "client")
	}
	return c.JSON(client)
}

// PUT /api/client/:id
func (h *ClientController) Update(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in ClientUpdateDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	utils.NormalizeDTO(&in)
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	var client models.Client
	if err := db.Take(&client, id).Error; err != nil {
		return notFound(err, "client")
	}
	if len(utils.ApplyPtrDTO(&in, &client)) == 0 {
		return c.JSON(client)
	}
	client.Country = strings.ToUpper(client.Country)
	client.Province = strings.ToUpper(client.Province)

	// Save runs the model hooks, so tax ids are re-checked on the merged row.
	if err := db.Omit(clause.Associations).Save(&client).Error; err != nil {
		return err
	}
	return c.JSON(client)
}

// PUT /api/clients/:id/price-list
func (h *ClientController) SetPriceList(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in PriceListDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	var client models.Client
	if err := db.Take(&client, id).Error; err != nil {
		return notFound(err, "client")
	}

	if in.PriceListID != nil {
		var list models.PriceList
		if err := db.Take(&list, *in.PriceListID).Error; err != nil {
			return notFound(err, "price list")
		}
		if err := db.Model(&models.Client{}).Where("id = ?", client.Id).
			UpdateColumn("price_list_id", list.Id).Error; err != nil {
			return err
		}
		return h.respondPriceList(c, db, list.Id)
	}

	var list models.PriceList
	if client.PriceListID != nil {
		if err := db.Take(&list, *client.PriceListID).Error; err != nil {
			return notFound(err, "price list")
		}
		if in.Name != "" && in.Name != list.Name {
			if err := db.Model(&list).UpdateColumn("name", strings.TrimSpace(in.Name)).Error; err != nil {
				return err
			}
		}
		if err := db.Where("price_list_id = ?", list.Id).Delete(&models.PriceListEntry{}).Error; err != nil {
			return err
		}
	} else {
		list.Name = strings.TrimSpace(in.Name)
		if list.Name == "" {
			list.Name = fmt.Sprintf("%s price list", client.CompanyName)
		}
		if err := db.Omit(clause.Associations).Create(&list).Error; err != nil {
			return err
		}
		if err := db.Model(&models.Client{}).Where("id = ?", client.Id).
			UpdateColumn("price_list_id", list.Id).Error; err != nil {
			return err
		}
	}

	if len(in.Entries) > 0 {
		entries := make([]models.PriceListEntry, len(in.Entries))
		for i, e := range in.Entries {
			entries[i] = models.PriceListEntry{
				PriceListID: list.Id,
				ElementKind: e.ElementKind,
				ElementID:   strings.TrimSpace(e.ElementID),
				Price:       billing.Round(e.Price),
				Position:    i + 1,
			}
		}
		if err := db.Create(&entries).Error; err != nil {
			return err
		}
	}
	return h.respondPriceList(c, db, list.Id)
}

func (h *ClientController) respondPriceList(c *fiber.Ctx, db *gorm.DB, listID uint) error {
	var list models.PriceList
	err := db.Preload("Entries", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC, id ASC")
	}).Take(&list, listID).Error
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// GET /api/clients/:id/eligible-tests?start=&end=
func (h *ClientController) EligibleTests(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	start, err := parseDay(c.Query("start"), "start")
	if err != nil {
		return err
	}
	end, err := parseDay(c.Query("end"), "end")
	if err != nil {
		return err
	}
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	var exists int64
	if err := db.Model(&models.Client{}).Where("id = ?", id).Count(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return fiber.NewError(fiber.StatusNotFound, "client not found")
	}

	tests, err := h.selector.Select(c.UserContext(), db, id, billing.Period{Start: start, End: end})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"tests": tests})
}

// GET /api/clients/:id/prices/:kind/:element_id
func (h *ClientController) ResolvePrice(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	kind := models.ElementKind(c.Params("kind"))
	if !kind.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "invalid element kind")
	}
	elementID := strings.TrimSpace(c.Params("element_id"))
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	var client models.Client
	if err := db.Take(&client, id).Error; err != nil {
		return notFound(err, "client")
	}
	price, err := h.resolver.Resolve(c.UserContext(), db, &client, kind, elementID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"client_id":  client.Id,
		"kind":       kind,
		"element_id": elementID,
		"price":      price.StringFixed(2),
	})
}
