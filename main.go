package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labbilling-backend/config"
	"labbilling-backend/database"
	"labbilling-backend/logger"
	"labbilling-backend/middlewares"
	"labbilling-backend/models"
	"labbilling-backend/outbound"
	"labbilling-backend/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "labbilling",
		Short:         "Laboratory billing service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newTokenCmd(&configPath),
		newIssuerCmd(&configPath),
	)
	return root
}

// bootstrap loads configuration, the logger and the database.
func bootstrap(configPath string) (*config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.New(cfg.App.Env, cfg.Logger)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, nil, err
	}
	return cfg, log, db, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			var store outbound.DocumentStore
			if cfg.Storage.Enabled {
				archive, err := outbound.NewArchive(cfg.Storage)
				if err != nil {
					return err
				}
				store = archive
			}
			var publisher outbound.MessagePublisher
			if cfg.Messaging.Enabled {
				p, err := outbound.NewPublisher(cfg.Messaging)
				if err != nil {
					return err
				}
				defer func() { _ = p.Close() }()
				publisher = p
			}

			svc := server.NewServices(cfg.Billing, log)
			dispatcher := outbound.NewDispatcher(store, publisher, log)
			app := server.New(cfg, db, log, svc, dispatcher)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info("API server starting", zap.String("port", cfg.App.Port))
				errCh <- app.Listen(":" + cfg.App.Port)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				return err
			}
			if err := dispatcher.Wait(shutdownCtx); err != nil {
				log.Warn("pending document dispatches abandoned", zap.Error(err))
			}
			return nil
		},
	}
}

func newMigrateCmd(configPath *string) *cobra.Command {
	var schema string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the tenant tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, db, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if database.IsPostgres(db) {
				if schema == "" {
					return fmt.Errorf("--schema is required on postgres")
				}
				err = database.MigrateTenantSchema(db, schema)
			} else {
				err = database.Migrate(db)
			}
			if err != nil {
				return err
			}
			log.Info("migration complete", zap.String("schema", schema))
			return nil
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "", "tenant schema to migrate")
	return cmd
}

func newTokenCmd(configPath *string) *cobra.Command {
	var subject, schema string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			token, err := middlewares.NewAuth(cfg.Auth).GenerateJWT(subject, schema)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().StringVar(&schema, "schema", "", "tenant schema")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func newIssuerCmd(configPath *string) *cobra.Command {
	var schema string
	var issuer models.Issuer

	cmd := &cobra.Command{
		Use:   "issuer",
		Short: "Create or update the issuing laboratory of a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if issuer.Code == "" {
				issuer.Code = cfg.Billing.IssuerCode
			}
			err = database.WithTenantTx(cmd.Context(), db, schema, func(tx *gorm.DB) error {
				return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&issuer).Error
			})
			if err != nil {
				return err
			}
			log.Info("issuer saved", zap.String("schema", schema), zap.String("code", issuer.Code))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&schema, "schema", "", "tenant schema")
	f.StringVar(&issuer.Code, "code", "", "issuer code (defaults to billing.issuer_code)")
	f.StringVar(&issuer.CompanyName, "company", "", "company name")
	f.StringVar(&issuer.VATNumber, "vat", "", "VAT number")
	f.StringVar(&issuer.FiscalCode, "fiscal-code", "", "fiscal code")
	f.StringVar(&issuer.TaxRegime, "tax-regime", "RF01", "tax regime code")
	f.StringVar(&issuer.Address, "address", "", "street address")
	f.StringVar(&issuer.City, "city", "", "city")
	f.StringVar(&issuer.Zip, "zip", "", "postal code")
	f.StringVar(&issuer.Province, "province", "", "province code")
	f.StringVar(&issuer.Country, "country", "IT", "ISO country code")
	return cmd
}
