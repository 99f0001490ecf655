package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/fulfillment-api/internal/app"
	"github.com/jwalitptl/fulfillment-api/internal/config"
	"github.com/jwalitptl/fulfillment-api/internal/model"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "fulfillment-worker",
		Short: "Background jobs for the fulfillment engine",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yml")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(outboxCmd())
	rootCmd.AddCommand(refillTickCmd())
	rootCmd.AddCommand(rosterCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp loads config, builds the services and hands them to fn, closing them afterwards.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, app.NewLogger(cfg.Log))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func runCmd() *cobra.Command {
	var healthAddr string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the outbox processor, outbox cleanup, refill scheduler and parked work sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, func(ctx context.Context, a *app.App) error {
				srv := healthServer(healthAddr, a)
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						a.Logger.Error(err, "Health check server failed")
					}
				}()

				a.Logger.Info("Worker started")
				a.RunWorkers(ctx)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
				a.Logger.Info("Worker stopped")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&healthAddr, "health-addr", ":8081", "address for the health and metrics endpoints")
	return cmd
}

func healthServer(addr string, a *app.App) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Store.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func outboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process-outbox",
		Short: "Publish one batch of pending outbox events and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.OutboxProcessor().ProcessOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d events\n", n)
				return nil
			})
		},
	}
}

func refillTickCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "refill-tick",
		Short: "Fire every refill config due now (or at --at) and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
				now = parsed.UTC()
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				created, err := a.Orchestrator.TickRefills(ctx, now)
				for _, id := range created {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate as of this RFC3339 instant")
	return cmd
}

func rosterCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "roster <phlebotomist-id>",
		Short: "Print a phlebotomist's daily roster as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid phlebotomist id: %w", err)
			}
			day := model.DateOf(time.Now().UTC())
			if date != "" {
				if day, err = model.ParseDate(date); err != nil {
					return err
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				roster, err := a.Roster.DailyRoster(ctx, id, day)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(roster)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "roster day as YYYY-MM-DD (default today)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Migrate(ctx); err != nil {
					return err
				}
				log.Info().Msg("schema applied")
				return nil
			})
		},
	}
}
