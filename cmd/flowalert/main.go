// Command flowalert evaluates river flow forecasts against flood thresholds
// and notifies users whose monitored rivers are forecast to reach them.
//
// Usage:
//
//	flowalert serve                      # scheduler + admin HTTP server
//	flowalert run --user all             # one evaluation, result as JSON
//	flowalert migrate                    # create the store schema
//	flowalert seed --file fixtures.json  # load preferences, tokens, rivers, thresholds
//	flowalert check --file fixtures.json # validate a fixture without writing it
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/flow-alert-service/internal/adapter/http"
	"github.com/couchcryptid/flow-alert-service/internal/config"
	"github.com/couchcryptid/flow-alert-service/internal/fixture"
	"github.com/couchcryptid/flow-alert-service/internal/observability"
	"github.com/couchcryptid/flow-alert-service/internal/pipeline"
	"github.com/couchcryptid/flow-alert-service/internal/scheduler"
)

func main() {
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "flowalert",
		Short:        "River flow alert evaluation service",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), runCmd(), migrateCmd(), seedCmd(), checkCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp loads configuration, wires the service, and calls fn with a
// context cancelled on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	a, err := newApp(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func serveCmd() *cobra.Command {
	var runOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the admin HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return serve(ctx, a, runOnStart)
			})
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Evaluate once immediately instead of waiting for the first tick")
	return cmd
}

func serve(ctx context.Context, a *app, runOnStart bool) error {
	logger := a.logger

	sched, err := scheduler.New(a.cfg.AlertSchedule, a.pipeline, a.cfg.RunTimeout, logger)
	if err != nil {
		return err
	}
	srv := httpadapter.NewServer(a.cfg.HTTPAddr, a, a.pipeline, a.store, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	sched.Start()
	if runOnStart {
		sched.RunNow()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	// Runs hold the store; it is closed only after Stop returns.
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func runCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate alerts once and print the run result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				result, err := a.pipeline.RunForUser(ctx, userID)
				if err != nil {
					return err
				}
				if err := printJSON(cmd, result); err != nil {
					return err
				}
				if n := result.Rejected(); n > 0 {
					return fmt.Errorf("%d of %d user tasks failed", n, result.UsersProcessed)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", pipeline.AllUsers, `User id to evaluate, or "all"`)
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				// newApp already migrated; report what was done.
				a.logger.Info("store schema ready", "driver", a.cfg.StoreDriver)
				return nil
			})
		},
	}
}

func seedCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a fixture file into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := fixture.Load(path)
			if err != nil {
				return err
			}
			if report := fixture.Check(f); !report.Passed() {
				_ = printJSON(cmd, report)
				return errors.New("fixture failed validation, nothing written")
			}
			return withApp(func(ctx context.Context, a *app) error {
				start := time.Now()
				counts, err := fixture.Apply(ctx, a.store, f, time.Now().UTC())
				if err != nil {
					return fmt.Errorf("seed: %w", err)
				}
				a.logger.Info("seed finished", "duration", time.Since(start).Round(time.Millisecond),
					"preferences", counts.Preferences, "push_tokens", counts.PushTokens,
					"river_mappings", counts.RiverMappings, "stations", counts.Stations,
					"thresholds", counts.Thresholds)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "Fixture JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func checkCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a fixture file without touching the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := fixture.Load(path)
			if err != nil {
				return err
			}
			report := fixture.Check(f)
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if !report.Passed() {
				return errors.New("fixture failed validation")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "Fixture JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
