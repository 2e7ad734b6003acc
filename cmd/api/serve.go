package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"treeadopt/internal/config"
	"treeadopt/internal/events"
	"treeadopt/internal/handler"
	"treeadopt/internal/router"
	"treeadopt/internal/scheduler"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server, scheduler and payment subscriber",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting treeadopt API server")

	// Create context for application lifecycle
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	// Initialize HTTP handlers
	handlers := router.Handlers{
		Trees:    handler.NewTreeHandler(a.trees, logger),
		Orders:   handler.NewOrderHandler(a.orders, logger),
		Tasks:    handler.NewTaskHandler(a.tasks, a.growth, a.stats, cfg.Server.MaxUploadSize, logger),
		Payments: handler.NewPaymentHandler(a.orders, a.metrics, logger),
		Admin:    handler.NewAdminHandler(a.escalation, a.orders, logger),
	}
	if a.local {
		handlers.Uploads = http.FileServer(http.Dir(cfg.Storage.LocalDir))
		handlers.UploadsPath = cfg.Storage.PublicBaseURL
	}

	// Initialize router
	mux := router.New(handlers, router.Auth{
		JWTSecret: cfg.Auth.JWTSecret,
		APIKey:    cfg.Auth.PaymentAPIKey,
	}, a.metrics, logger)

	// Background jobs
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(cfg.Scheduler, a.escalation, a.orders, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize scheduler: %w", err)
		}
		sched.Start()
	}

	// Payment events from the gateway bus
	var subscriber *events.PaymentSubscriber
	if cfg.NATS.Enabled {
		nc, err := events.Connect(cfg.NATS, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()

		subscriber = events.NewPaymentSubscriber(nc, cfg.NATS.Subject, cfg.NATS.Queue, a.orders, a.metrics, logger)
		if err := subscriber.Start(ctx); err != nil {
			return fmt.Errorf("failed to start payment subscriber: %w", err)
		}
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")
	}

	// Create a context with timeout for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if subscriber != nil {
		if err := subscriber.Stop(); err != nil {
			logger.Error().Err(err).Msg("failed to stop payment subscriber")
		}
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("scheduler did not stop in time")
		}
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server gracefully")
		// Force close
		if closeErr := server.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close server")
		}
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info().Msg("server shutdown completed")
	return nil
}
