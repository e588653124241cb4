package routes

import (
	"labbilling-backend/controllers"
	"labbilling-backend/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	DB       *gorm.DB
	Log      *zap.Logger
	Auth     *middlewares.Auth
	Invoices *controllers.InvoiceController
	Clients  *controllers.ClientController
}

// Register wires all HTTP routes.
func Register(app *fiber.App, d Deps) {
	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Protected endpoints (JWT auth)
	protected := api.Group("")
	protected.Use(d.Auth.Authenticate())

	// Idempotency guard FIRST (not tied to request TX)
	protected.Use(middlewares.Idempotency(d.DB, d.Log))

	// Then per-request tenant transaction (pins search_path and commits/rolls back)
	protected.Use(middlewares.TenantTx(d.DB, d.Log))

	// Invoices
	protected.Post("/invoices/single", d.Invoices.CreateSingle)
	protected.Post("/invoices/batch", d.Invoices.CreateBatch)
	protected.Get("/invoices", d.Invoices.List)
	protected.Get("/invoice/:id", d.Invoices.Get)
	protected.Get("/invoices/:id/history", d.Invoices.History)
	protected.Get("/invoices/:id/payments", d.Invoices.Payments)
	protected.Get("/invoices/:id/transmissions", d.Invoices.Transmissions)
	protected.Put("/invoices/:id/status", d.Invoices.UpdateStatus)
	protected.Post("/invoices/:id/export", d.Invoices.Export)

	// Clients
	protected.Post("/client", d.Clients.Create)
	protected.Get("/clients", d.Clients.List)
	protected.Get("/client/:id", d.Clients.Get)
	protected.Put("/client/:id", d.Clients.Update)
	protected.Put("/clients/:id/price-list", d.Clients.SetPriceList)
	protected.Get("/clients/:id/eligible-tests", d.Clients.EligibleTests)
	protected.Get("/clients/:id/prices/:kind/:element_id", d.Clients.ResolvePrice)

	// Billable elements
	protected.Post("/elements", controllers.CreateElements) // batch create
	protected.Get("/elements", controllers.GetElements)
	protected.Put("/elements/:kind/:id", controllers.UpdateElement)
}
