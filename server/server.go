package server

import (
	"labbilling-backend/billing"
	"labbilling-backend/config"
	"labbilling-backend/controllers"
	"labbilling-backend/einvoice"
	"labbilling-backend/middlewares"
	"labbilling-backend/outbound"
	"labbilling-backend/routes"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services are the billing components shared by the HTTP layer and the CLI.
type Services struct {
	Catalog  *billing.GormCatalog
	Resolver *billing.PriceResolver
	Selector *billing.EligibilitySelector
	Counters *billing.Counters
	Builder  *billing.InvoiceBuilder
	States   *billing.InvoiceStateMachine
	Exporter *einvoice.Exporter
}

func NewServices(cfg config.BillingConfig, log *zap.Logger) *Services {
	catalog := billing.NewCatalog()
	resolver := billing.NewPriceResolver(catalog)
	selector := billing.NewEligibilitySelector()
	counters := billing.NewCounters()

	return &Services{
		Catalog:  catalog,
		Resolver: resolver,
		Selector: selector,
		Counters: counters,
		Builder: billing.NewInvoiceBuilder(billing.BuilderConfig{
			IssuerCode: cfg.IssuerCode,
			TaxRate:    cfg.DefaultTaxRate(),
		}, catalog, resolver, selector, counters, log),
		States: billing.NewInvoiceStateMachine(cfg.ReleaseTestsOnCancel, log),
		Exporter: einvoice.NewExporter(einvoice.Config{
			Currency:     cfg.Currency,
			DocumentType: cfg.DocumentType,
		}, counters, log),
	}
}

// New builds the Fiber app with the global error handler, limits and all
// routes.
func New(cfg *config.Config, db *gorm.DB, log *zap.Logger, svc *Services, dispatcher *outbound.Dispatcher) *fiber.App {
	bodyLimit := cfg.App.BodyLimitMB * 1024 * 1024
	if bodyLimit <= 0 {
		bodyLimit = 4 * 1024 * 1024
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: middlewares.ErrorHandler(log),
		BodyLimit:    bodyLimit,
	})

	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.AllowedOrigins,
		AllowCredentials: false, // using Bearer tokens, not cookies
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
	}))
	if cfg.App.RateLimitMax > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.App.RateLimitMax,
			Expiration: cfg.App.RateLimitWindow,
		}))
	}

	routes.Register(app, routes.Deps{
		DB:       db,
		Log:      log,
		Auth:     middlewares.NewAuth(cfg.Auth),
		Invoices: controllers.NewInvoiceController(svc.Builder, svc.States, svc.Exporter, dispatcher),
		Clients:  controllers.NewClientController(svc.Selector, svc.Resolver),
	})
	return app
}
