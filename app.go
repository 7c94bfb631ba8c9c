package main

import (
	"context"
	"log/slog"

	"bits-gateway/internal/capture"
	"bits-gateway/internal/config"
	"bits-gateway/internal/content"
	"bits-gateway/internal/db"
	"bits-gateway/internal/gateway"
	"bits-gateway/internal/identity"
	"bits-gateway/internal/kafka"
	"bits-gateway/internal/logging"
	"bits-gateway/internal/metrics"
	"bits-gateway/internal/service"
	"bits-gateway/internal/verification"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"
)

// app holds the wiring shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	pool      *pgxpool.Pool
	store     *db.Store
	writer    *kafkago.Writer
	plugin    *gateway.Plugin
	processor *service.PaymentProcessor
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics, logger)

	pool, err := db.GetPool(ctx, db.GetConnStr(cfg.Database))
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	store := db.NewStore(pool)

	writer := kafka.NewWriter(cfg.Kafka, cfg.Kafka.Topic.VerificationRequests)
	plugin := gateway.NewPlugin(cfg.Gateway, gateway.Dependencies{
		Identities: store,
		Orders:     store,
		Catalog:    store,
		Links:      content.NewIssuer(cfg.Content, store),
		Enqueuer:   verification.NewEnqueuer(writer, logger),
	}, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		store:     store,
		writer:    writer,
		plugin:    plugin,
		processor: service.NewPaymentProcessor(store, plugin, logger),
	}, nil
}

func (a *app) captureSweeper() *capture.Sweeper {
	return capture.NewSweeper(a.cfg.Capture, a.store, a.store, a.processor, a.logger)
}

func (a *app) identityService() *identity.Service {
	return identity.NewService(a.cfg.Gateway, a.store, a.logger)
}

func (a *app) verificationTask() *verification.Task {
	return verification.NewTask(a.store, a.processor, a.logger)
}

func (a *app) Close() {
	if err := a.writer.Close(); err != nil {
		a.logger.Error("Error closing kafka writer", "error", err)
	}
	a.pool.Close()
}
