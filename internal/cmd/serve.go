package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/netlens/netlens/internal/config"
	"github.com/netlens/netlens/internal/core/governor"
	"github.com/netlens/netlens/internal/core/snapstore"
	errwrap "github.com/netlens/netlens/internal/errors"
	"github.com/netlens/netlens/internal/observability"
	"github.com/netlens/netlens/internal/server"
	"github.com/netlens/netlens/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the governor status server",
	Long: `Start the HTTP status server with graceful shutdown support.

The server exposes governor usage, metrics, and policy administration over
HTTP while periodically checkpointing limiter state to the configured store.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown with a final checkpoint
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload config and re-apply rate limit policies`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel := viper.GetString("logging.level")
		observability.InitServerLogger(appName, logLevel)
		logger := observability.ServerLogger

		cfg, err := config.Load()
		if err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "config load failed")
		}
		if serverHost != "" {
			cfg.Server.Host = serverHost
		}
		if serverPort != 0 {
			cfg.Server.Port = serverPort
		}

		logger.Info("Initializing governor",
			zap.String("service", appName),
			zap.String("version", versionInfo.Version),
			zap.String("store_driver", cfg.Store.Driver),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port))

		store, err := snapstore.Open(cmd.Context(), cfg.Store)
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Failed to open snapshot store", err)
		}

		gov := governor.New(governor.Options{
			Policies:  cfg.Policies(),
			Margin:    cfg.Governor.Margin,
			JitterMax: cfg.Governor.JitterMax,
			Breaker: governor.BreakerSettings{
				Threshold: cfg.Governor.Breaker.Threshold,
				Interval:  cfg.Governor.Breaker.Interval,
				Cooldown:  cfg.Governor.Breaker.Cooldown,
			},
			Logger: logger,
		})

		// Any unreadable snapshot degrades to fresh state rather than
		// refusing to start.
		snap, err := store.Load(cmd.Context())
		if err != nil {
			logger.Warn("Snapshot unreadable, starting with fresh limiter state", zap.Error(err))
		} else {
			gov.Restore(snap)
		}

		checkpointCtx, stopCheckpointer := context.WithCancel(context.Background())
		checkpointerDone := make(chan struct{})
		go func() {
			defer close(checkpointerDone)
			gov.RunCheckpointer(checkpointCtx, store, cfg.Governor.CheckpointInterval)
		}()

		handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
		srv := server.New(cfg.Server, gov)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		// Handler 2: Final checkpoint and store close
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Writing final governor checkpoint...")
			stopCheckpointer()
			select {
			case <-checkpointerDone:
			case <-time.After(shutdownTimeout):
				logger.Warn("Timed out waiting for final checkpoint")
			}
			if err := store.Close(); err != nil {
				logger.Warn("Snapshot store close failed", zap.Error(err))
			}
			return nil
		})

		// Handler 3: Shutdown HTTP server (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		// Register config reload handler (SIGHUP)
		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: attempting config reload")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					logger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				logger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.NewConfigInvalidError("config reload failed: " + err.Error())
			}

			reloaded, err := config.Load()
			if err != nil {
				return errwrap.NewConfigInvalidError("config reload failed: " + err.Error())
			}
			for _, policy := range reloaded.Policies() {
				if err := gov.SetPolicy(policy); err != nil {
					logger.Warn("Rejected reloaded policy",
						zap.String("service", policy.Service),
						zap.Error(err))
				}
			}

			logger.Info("Configuration reloaded successfully",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		// Start server in background goroutine
		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		// Start signal listener in background
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		// Wait for error or shutdown completion
		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "server port")
}
