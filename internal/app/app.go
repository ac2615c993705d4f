// Package app wires configuration, the database pool, the event publisher
// and the billing services together for the command line binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"utilbill-backend/internal/config"
	"utilbill-backend/internal/events"
	"utilbill-backend/internal/logger"
	"utilbill-backend/internal/metrics"
	"utilbill-backend/internal/pricing"
	"utilbill-backend/internal/repository/postgres"
	"utilbill-backend/internal/service"
)

type App struct {
	Config    *config.Config
	DB        *sql.DB
	Store     *postgres.Store
	Publisher events.Publisher
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics

	Billing  service.BillingService
	Payments service.PaymentService
	Readings service.ReadingService
	Sweeper  service.OverdueSweeper
}

// New opens the pool, applies the schema and builds every service.
// The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	policy, err := pricing.PolicyFromConfig(cfg.Billing.LateFee)
	if err != nil {
		return nil, err
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		kafka, err := events.NewKafkaPublisher(cfg.Events)
		if err != nil {
			db.Close()
			return nil, err
		}
		publisher = kafka
		logger.Info("Publishing billing events", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, cfg.Database.Database),
	)
	m := metrics.New(reg)

	store := postgres.NewStore(db,
		postgres.WithIsolation(cfg.Database.Isolation),
		postgres.WithTxTimeout(cfg.Database.TxTimeout()),
	)
	lateFees := pricing.NewLateFeeCalculator(policy, cfg.Billing.LateFee.GraceDays)
	billing := service.NewBillingService(store, cfg.Billing, lateFees, publisher, m, nil)

	return &App{
		Config:    cfg,
		DB:        db,
		Store:     store,
		Publisher: publisher,
		Registry:  reg,
		Metrics:   m,
		Billing:   billing,
		Payments:  service.NewPaymentService(store, cfg.Billing, publisher, m, nil),
		Readings:  service.NewReadingService(store, nil),
		Sweeper:   service.NewOverdueSweeper(store, billing, cfg.Billing.LateFee.ApplyOnSweep, publisher, m, nil),
	}, nil
}

// Close flushes the publisher and closes the pool.
func (a *App) Close() error {
	return errors.Join(a.Publisher.Close(), a.DB.Close())
}
