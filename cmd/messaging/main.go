package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/LeventeLantos/service-reminders/internal/api"
	"github.com/LeventeLantos/service-reminders/internal/config"
	"github.com/LeventeLantos/service-reminders/internal/logging"
	"github.com/LeventeLantos/service-reminders/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:           "messaging",
	Short:         "Service reminder SMS dispatcher",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, dispatchOnceCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and installs the process-wide logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadAll()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New("service-reminders", cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the dispatch loop",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		logger.Info("messaging app starting",
			"addr", cfg.Server.Address,
			"interval", cfg.Scheduler.Interval.String(),
			"batch", cfg.Scheduler.BatchSize,
			"workers", cfg.Scheduler.Workers,
			"carrier", cfg.Carrier.Kind,
			"redis", cfg.Redis.Enabled,
		)

		h := api.NewHandler(api.Deps{
			Scheduler:     a.loop,
			Cycles:        a.dispatcher,
			Notifications: a.notifier,
			Messages:      a.messages,
			Inbound:       a.inbound,
			CostCents:     cfg.Messages.CostCents,
			AutoReply:     cfg.Messages.InboundAutoReply,
			Location:      a.location,
			Logger:        logger,
		})

		srv := &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           loggingMiddleware(api.Router(h)),
			ReadHeaderTimeout: 5 * time.Second,
		}

		a.loop.Start()
		defer a.loop.Stop()

		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			logger.Info("shutting down")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
		logger.Info("messaging app stopped")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		db, err := repo.Open(cmd.Context(), cfg.Database.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := repo.Migrate(db); err != nil {
			return err
		}
		logger.Info("migrations applied")
		return nil
	},
}

var dispatchOnceCmd = &cobra.Command{
	Use:   "dispatch-once",
	Short: "Run a single dispatch cycle and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		sum := a.dispatcher.RunCycle(cmd.Context())
		logger.Info("dispatch cycle finished",
			"due", sum.Due,
			"sent", sum.Sent,
			"failed", sum.Failed,
			"skipped", sum.Skipped,
			"errors", sum.Errors,
		)
		if sum.Err != "" {
			return errors.New(sum.Err)
		}
		return nil
	},
}
