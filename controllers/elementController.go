package controllers

import (
	"errors"
	"fmt"
	"strings"

	"labbilling-backend/middlewares"
	"labbilling-backend/models"
	"labbilling-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type ElementInput struct {
	Kind         models.ElementKind `json:"kind" validate:"required,oneof=analyte panel category_fee"`
	Id           string             `json:"id" validate:"omitempty,max=64"`
	Name         string             `json:"name" validate:"required"`
	Description  string             `json:"description"`
	DefaultPrice decimal.Decimal    `json:"default_price"`
	Active       *bool              `json:"active"`
}

type ElementUpdateDTO struct {
	Name         *string          `json:"name" validate:"omitempty,min=1"`
	Description  *string          `json:"description"`
	DefaultPrice *decimal.Decimal `json:"default_price"`
	Active       *bool            `json:"active"`
}

// POST /api/elements (batch create)
func CreateElements(c *fiber.Ctx) error {
	var inputs []ElementInput
	if err := c.BodyParser(&inputs); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(inputs) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no elements given")
	}
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	created := make([]models.BillableElement, 0, len(inputs))
	for i := range inputs {
		input := &inputs[i]
		if err := models.Validate(input); err != nil {
			return err
		}
		utils.NormalizeDTO(input)

		element := models.BillableElement{
			Kind:         input.Kind,
			Id:           input.Id,
			Name:         input.Name,
			Description:  input.Description,
			DefaultPrice: input.DefaultPrice,
			Active:       input.Active == nil || *input.Active,
		}
		if err := db.Create(&element).Error; err != nil {
			if errors.Is(err, models.ErrNegativePrice) {
				return fiber.NewError(fiber.StatusUnprocessableEntity, fmt.Sprintf("negative default price at index %d", i))
			}
			return err
		}
		created = append(created, element)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// GET /api/elements?kind=&active=
func GetElements(c *fiber.Ctx) error {
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	q := db.Model(&models.BillableElement{}).Order("kind ASC, name ASC")
	if v := c.Query("kind"); v != "" {
		kind := models.ElementKind(v)
		if !kind.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "invalid element kind")
		}
		q = q.Where("kind = ?", kind)
	}
	if c.Query("active") == "true" {
		q = q.Where("active = ?", true)
	}

	var elements []models.BillableElement
	if err := paginate(c, q).Find(&elements).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"elements": elements,
		"message":  "success",
	})
}

// PUT /api/elements/:kind/:id
func UpdateElement(c *fiber.Ctx) error {
	kind := models.ElementKind(c.Params("kind"))
	if !kind.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "invalid element kind")
	}
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing element id in path")
	}

	var in ElementUpdateDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	utils.NormalizeDTO(&in)
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	var element models.BillableElement
	if err := db.Where("kind = ? AND id = ?", kind, id).Take(&element).Error; err != nil {
		return notFound(err, "element")
	}
	if len(utils.ApplyPtrDTO(&in, &element)) == 0 {
		return c.JSON(element)
	}
	if err := db.Save(&element).Error; err != nil {
		return err
	}
	return c.JSON(element)
}
