package controllers

import (
	"strconv"
	"strings"
	"time"

	"labbilling-backend/database"
	"labbilling-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func tenantDB(c *fiber.Ctx) (*gorm.DB, error) {
	db, err := database.TenantDB(c)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "tenant db unavailable")
	}
	return db, nil
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(c.Params(name)), 10, 64)
	if err != nil || n == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name+" in path")
	}
	return uint(n), nil
}

// parseDay reads an optional YYYY-MM-DD value.
func parseDay(value, field string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, field+" must be a YYYY-MM-DD date")
	}
	return &t, nil
}

func notFound(err error, what string) error {
	if database.IsNotFound(err) {
		return fiber.NewError(fiber.StatusNotFound, what+" not found")
	}
	return err
}

// paginate applies ?limit=&offset= with a capped page size.
func paginate(c *fiber.Ctx, q *gorm.DB) *gorm.DB {
	limit := utils.ParseIntDefault(c.Query("limit"), defaultPageSize)
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	return q.Limit(limit).Offset(utils.ParseIntDefault(c.Query("offset"), 0))
}
