package controllers

import (
	"strconv"
	"time"

	"labbilling-backend/billing"
	"labbilling-backend/einvoice"
	"labbilling-backend/middlewares"
	"labbilling-backend/models"
	"labbilling-backend/outbound"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SingleInvoiceDTO struct {
	TestID          uint             `json:"test_id" validate:"required"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	TaxRate         *decimal.Decimal `json:"tax_rate"`
}

type BatchInvoiceDTO struct {
	ClientID        uint             `json:"client_id" validate:"required"`
	PeriodStart     string           `json:"period_start" validate:"omitempty,datetime=2006-01-02"`
	PeriodEnd       string           `json:"period_end" validate:"omitempty,datetime=2006-01-02"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	TaxRate         *decimal.Decimal `json:"tax_rate"`
}

type PaymentDTO struct {
	Method    string     `json:"method" validate:"omitempty,max=64"`
	Reference string     `json:"reference" validate:"omitempty,max=128"`
	Note      string     `json:"note"`
	PaidAt    *time.Time `json:"paid_at"`
}

type StatusDTO struct {
	Status  models.InvoiceStatus `json:"status" validate:"required,oneof=draft issued sent paid cancelled"`
	Payment *PaymentDTO          `json:"payment"`
}

// InvoiceController serves invoice building, lifecycle and export.
type InvoiceController struct {
	builder    *billing.InvoiceBuilder
	states     *billing.InvoiceStateMachine
	exporter   *einvoice.Exporter
	dispatcher *outbound.Dispatcher
}

func NewInvoiceController(builder *billing.InvoiceBuilder, states *billing.InvoiceStateMachine, exporter *einvoice.Exporter, dispatcher *outbound.Dispatcher) *InvoiceController {
	return &InvoiceController{builder: builder, states: states, exporter: exporter, dispatcher: dispatcher}
}

// POST /api/invoices/single
func (h *InvoiceController) CreateSingle(c *fiber.Ctx) error {
	var in SingleInvoiceDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	invoice, err := h.builder.BuildSingle(c.UserContext(), db, in.TestID, billing.BuildOptions{
		DiscountPercent: in.DiscountPercent,
		TaxRate:         in.TaxRate,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(invoice)
}

// POST /api/invoices/batch
func (h *InvoiceController) CreateBatch(c *fiber.Ctx) error {
	var in BatchInvoiceDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	start, err := parseDay(in.PeriodStart, "period_start")
	if err != nil {
		return err
	}
	end, err := parseDay(in.PeriodEnd, "period_end")
	if err != nil {
		return err
	}
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	invoice, err := h.builder.BuildBatch(c.UserContext(), db, in.ClientID, billing.Period{Start: start, End: end}, billing.BuildOptions{
		DiscountPercent: in.DiscountPercent,
		TaxRate:         in.TaxRate,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(invoice)
}

// GET /api/invoices?client_id=&status=&limit=&offset=
func (h *InvoiceController) List(c *fiber.Ctx) error {
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	q := db.Model(&models.Invoice{}).Order("id DESC")
	if v := c.Query("client_id"); v != "" {
		clientID, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid client_id")
		}
		q = q.Where("client_id = ?", clientID)
	}
	if v := c.Query("status"); v != "" {
		status := models.InvoiceStatus(v)
		if !status.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "invalid status")
		}
		q = q.Where("status = ?", status)
	}

	var invoices []models.Invoice
	if err := paginate(c, q).Find(&invoices).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"invoices": invoices,
		"message":  "success",
	})
}

// GET /api/invoice/:id
func (h *InvoiceController) Get(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	var invoice models.Invoice
	err = db.Preload("Client").
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Take(&invoice, id).Error
	if err != nil {
		return notFound(err, "invoice")
	}
	return c.JSON(fiber.Map{
		"invoice":     invoice,
		"transitions": billing.PermittedTransitions(invoice.Status),
	})
}

// GET /api/invoices/:id/history
func (h *InvoiceController) History(c *fiber.Ctx) error {
	var changes []models.InvoiceStatusChange
	return h.listChildren(c, &changes, "id ASC", func() error {
		return c.JSON(fiber.Map{"history": changes})
	})
}

// GET /api/invoices/:id/payments
func (h *InvoiceController) Payments(c *fiber.Ctx) error {
	var payments []models.Payment
	return h.listChildren(c, &payments, "paid_at ASC, id ASC", func() error {
		return c.JSON(fiber.Map{"payments": payments})
	})
}

// GET /api/invoices/:id/transmissions
func (h *InvoiceController) Transmissions(c *fiber.Ctx) error {
	var transmissions []models.Transmission
	return h.listChildren(c, &transmissions, "progressive ASC", func() error {
		return c.JSON(fiber.Map{"transmissions": transmissions})
	})
}

func (h *InvoiceController) listChildren(c *fiber.Ctx, dst any, order string, respond func() error) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	var exists int64
	if err := db.Model(&models.Invoice{}).Where("id = ?", id).Count(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return fiber.NewError(fiber.StatusNotFound, "invoice not found")
	}
	if err := db.Where("invoice_id = ?", id).Order(order).Find(dst).Error; err != nil {
		return err
	}
	return respond()
}

// PUT /api/invoices/:id/status
func (h *InvoiceController) UpdateStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in StatusDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	if in.Payment != nil && in.Status != models.InvoicePaid {
		return fiber.NewError(fiber.StatusBadRequest, "payment details only apply to the paid status")
	}
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	var opts []billing.TransitionOption
	if in.Payment != nil {
		opts = append(opts, billing.WithPayment(billing.Payment{
			Method:    in.Payment.Method,
			Reference: in.Payment.Reference,
			Note:      in.Payment.Note,
			PaidAt:    in.Payment.PaidAt,
		}))
	}

	invoice, err := h.states.Transition(c.UserContext(), db, id, in.Status, opts...)
	if err != nil {
		return err
	}
	return c.JSON(invoice)
}

// POST /api/invoices/:id/export
func (h *InvoiceController) Export(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	doc, err := h.exporter.Export(c.UserContext(), db, id)
	if err != nil {
		return err
	}

	schema := middlewares.Schema(c)
	ctx := c.UserContext()
	middlewares.AfterCommit(c, func() {
		h.dispatcher.Go(ctx, schema, doc)
	})

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXMLCharsetUTF8)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+doc.FileName+`"`)
	c.Set("X-Transmission-Progressive", strconv.FormatInt(doc.Progressive, 10))
	c.Set("X-Document-Digest", doc.Digest)
	return c.Status(fiber.StatusCreated).Send(doc.XML)
}
