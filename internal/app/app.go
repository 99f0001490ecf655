// Package app assembles the fulfillment services from configuration. Both binaries build on it.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/fulfillment-api/internal/config"
	"github.com/jwalitptl/fulfillment-api/internal/email"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	"github.com/jwalitptl/fulfillment-api/internal/repository/memory"
	"github.com/jwalitptl/fulfillment-api/internal/repository/postgres"
	"github.com/jwalitptl/fulfillment-api/internal/service/audit"
	"github.com/jwalitptl/fulfillment-api/internal/service/notification"
	"github.com/jwalitptl/fulfillment-api/internal/service/orchestrator"
	"github.com/jwalitptl/fulfillment-api/internal/service/refill"
	"github.com/jwalitptl/fulfillment-api/internal/service/roster"
	"github.com/jwalitptl/fulfillment-api/internal/storage"
	internalworker "github.com/jwalitptl/fulfillment-api/internal/worker"
	"github.com/jwalitptl/fulfillment-api/pkg/logger"
	"github.com/jwalitptl/fulfillment-api/pkg/messaging"
	"github.com/jwalitptl/fulfillment-api/pkg/messaging/redis"
	"github.com/jwalitptl/fulfillment-api/pkg/metrics"
	"github.com/jwalitptl/fulfillment-api/pkg/worker"
)

type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	DB      *sqlx.DB
	Store   repository.Store
	Broker  messaging.Broker
	Uploads storage.Store
	Email   email.Service

	Refills       *refill.Service
	Orchestrator  *orchestrator.Service
	Roster        *roster.Service
	Audit         *audit.Service
	Notifications *notification.Service

	closers []func() error
}

// NewLogger builds the process logger and installs it as the zerolog global, which the
// request logging middleware writes through.
func NewLogger(cfg config.LogConfig) *logger.Logger {
	l := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.JSON,
	})
	log.Logger = *l.Zerolog()
	return l
}

// New connects every backing service named in cfg. Close releases them.
func New(ctx context.Context, cfg *config.Config, l *logger.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   l,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.NewMetrics("fulfillment", "", a.Registry)

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openBroker(ctx); err != nil {
		a.Close()
		return nil, err
	}

	uploads, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create object storage: %w", err)
	}
	a.Uploads = uploads

	if cfg.SMTP.Enabled {
		a.Email = email.NewSMTPService(cfg.SMTP)
	} else {
		a.Email = email.Nop{}
	}

	loc, err := cfg.Fulfillment.SlotLocation()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Refills = refill.NewService(a.Store, l, a.Metrics)
	a.Orchestrator = orchestrator.NewService(a.Store, a.Refills, orchestrator.Config{
		AutoAssignOnBooking:     cfg.Fulfillment.AutoAssignOnBooking,
		AutoRoutePharmacyOrders: cfg.Fulfillment.AutoRoutePharmacyOrders,
		ReassignOnSuspension:    cfg.Fulfillment.ReassignOnSuspension,
		IdempotencyTTL:          cfg.Fulfillment.IdempotencyTTL,
		SlotLocation:            loc,
		MaxReactionDepth:        cfg.Fulfillment.MaxReactionDepth,
	}, l, a.Metrics).WithStorage(a.Uploads)
	a.Roster = roster.NewService(a.Store)
	a.Audit = audit.NewService(a.Store.Audit())
	a.Notifications = notification.NewService(a.Store, a.Email, a.Broker, l, a.Metrics)

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	if a.Config.Database.Store == "memory" {
		a.Logger.Warn("using the in-memory store; state is lost on restart")
		a.Store = memory.NewStore()
		return nil
	}

	db, err := postgres.NewDB(a.Config.Database)
	if err != nil {
		return err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	a.Store = postgres.NewStore(db)
	return nil
}

func (a *App) openBroker(ctx context.Context) error {
	if !a.Config.Redis.Enabled {
		a.Broker = messaging.NewMemoryBroker()
		a.closers = append(a.closers, a.Broker.Close)
		return nil
	}

	b, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:           a.Config.Redis.URL,
		ChannelPrefix: a.Config.Redis.ChannelPrefix,
		MaxRetries:    a.Config.Redis.MaxRetries,
		RetryBackoff:  a.Config.Redis.RetryBackoff,
		PoolSize:      a.Config.Redis.PoolSize,
		MinIdleConns:  a.Config.Redis.MinIdleConns,
	}, a.Logger)
	if err != nil {
		return err
	}
	a.Broker = b
	a.closers = append(a.closers, b.Close)
	return nil
}

// Migrate applies the schema. It is a no-op for the memory store.
func (a *App) Migrate(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return postgres.Migrate(ctx, a.DB)
}

// OutboxProcessor publishes journaled events and fans them out to notifications.
func (a *App) OutboxProcessor() *worker.OutboxProcessor {
	return worker.NewOutboxProcessor(
		a.Store.Outbox(),
		a.Broker,
		a.Notifications,
		worker.OutboxProcessorConfig{
			BatchSize:     a.Config.Outbox.BatchSize,
			PollInterval:  a.Config.Outbox.PollInterval,
			RetryAttempts: a.Config.Outbox.RetryAttempts,
			RetryDelay:    a.Config.Outbox.RetryDelay,
			StaleAfter:    a.Config.Outbox.StaleAfter,
		},
		a.Logger,
		a.Metrics,
	)
}

// RunWorkers starts the background loops and blocks until ctx is cancelled and all of
// them have returned.
func (a *App) RunWorkers(ctx context.Context) {
	loops := []interface{ Start(context.Context) }{
		a.OutboxProcessor(),
		worker.NewOutboxCleanupWorker(a.Store.Outbox(), a.Config.Outbox.Retention, a.Config.Outbox.CleanupInterval, a.Logger),
		internalworker.NewRefillWorker(a.Orchestrator, a.Config.Refill.Interval, a.Logger, a.Metrics),
		internalworker.NewParkedSweepWorker(a.Orchestrator, a.Config.Fulfillment.ParkedRetryInterval, a.Logger),
	}

	var wg sync.WaitGroup
	for _, loop := range loops {
		wg.Add(1)
		go func(l interface{ Start(context.Context) }) {
			defer wg.Done()
			l.Start(ctx)
		}(loop)
	}
	wg.Wait()
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
