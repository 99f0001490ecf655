package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/fulfillment-api/internal/app"
	"github.com/jwalitptl/fulfillment-api/internal/config"
	"github.com/jwalitptl/fulfillment-api/internal/handler/audit"
	"github.com/jwalitptl/fulfillment-api/internal/handler/command"
	"github.com/jwalitptl/fulfillment-api/internal/handler/health"
	"github.com/jwalitptl/fulfillment-api/internal/handler/order"
	"github.com/jwalitptl/fulfillment-api/internal/handler/partner"
	"github.com/jwalitptl/fulfillment-api/internal/handler/prometheus"
	"github.com/jwalitptl/fulfillment-api/internal/handler/refill"
	"github.com/jwalitptl/fulfillment-api/internal/handler/roster"
	"github.com/jwalitptl/fulfillment-api/internal/middleware"
	"github.com/jwalitptl/fulfillment-api/internal/router"
	"github.com/jwalitptl/fulfillment-api/pkg/auth"
)

func main() {
	configPath := flag.String("config", "", "path to config.yml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret is required")
	}

	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "failed to initialize services")
	}
	defer a.Close()

	if err := middleware.RegisterValidators(); err != nil {
		logger.Fatal(err, "failed to register validators")
	}

	checks := map[string]health.Pinger{"store": a.Store}
	if p, ok := a.Broker.(health.Pinger); ok {
		checks["broker"] = p
	}

	var metricsH *prometheus.Handler
	if cfg.Metrics.Enabled {
		metricsH = prometheus.New(a.Registry)
	}

	loc, _ := cfg.Fulfillment.SlotLocation()

	r := router.NewRouter(
		middleware.NewAuthMiddleware(auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer)),
		health.NewHandler(checks),
		metricsH,
		router.RouterConfig{
			Server:      cfg.Server,
			RateLimit:   cfg.RateLimit,
			CORS:        cfg.CORS,
			MetricsPath: cfg.Metrics.Path,
			Release:     cfg.Log.JSON,
		},
		command.NewHandler(a.Orchestrator),
		order.NewHandler(a.Orchestrator),
		refill.NewHandler(a.Orchestrator, a.Refills),
		roster.NewHandler(a.Roster, loc),
		partner.NewHandler(a.Orchestrator, a.Roster),
		audit.NewHandler(a.Audit, a.Orchestrator),
	)
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// The memory store lives in this process, so nothing else can drain its outbox.
	workersDone := make(chan struct{})
	if cfg.Database.Store == "memory" {
		go func() {
			defer close(workersDone)
			a.RunWorkers(ctx)
		}()
	} else {
		close(workersDone)
	}

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "server forced to shutdown")
	}
	<-workersDone

	logger.Info("server exited properly")
}
