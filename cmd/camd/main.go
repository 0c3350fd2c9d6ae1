package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/visiona/camd/internal/camera"
	"github.com/visiona/camd/internal/config"
	"github.com/visiona/camd/internal/device"
	"github.com/visiona/camd/internal/emitter"
)

const defaultConfigPath = "config/camd.yaml"

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup structured logger
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting camera driver",
		"camera", cfg.CameraName,
		"source", cfg.Camera.Source,
		"config", *configPath,
	)

	open, err := camera.OpenParamsFromConfig(cfg)
	if err != nil {
		slog.Error("invalid camera configuration", "error", err)
		os.Exit(1)
	}

	handle, err := device.New(open)
	if err != nil {
		slog.Error("failed to create device handle", "error", err)
		os.Exit(1)
	}

	sink := emitter.NewMQTTEmitter(cfg)

	driver, err := camera.New(cfg, handle, sink)
	if err != nil {
		slog.Error("failed to create driver", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start health check HTTP server (non-blocking)
	if err := driver.StartHealthServer(cfg.HealthPort); err != nil {
		slog.Error("failed to start health check server", "error", err)
		os.Exit(1)
	}

	// Run driver in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- driver.Run(ctx) // Always send, even if nil
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	case runErr := <-errChan:
		if runErr != nil {
			slog.Error("driver error", "error", runErr)
		} else {
			slog.Info("driver stopped (via control plane shutdown)")
		}
	}

	// Graceful shutdown
	shutdownTimeout := driver.ShutdownTimeout()
	slog.Info("shutting down gracefully", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := driver.Shutdown(shutdownCtx); err != nil {
		if errors.Is(err, camera.ErrThreadStuck) {
			slog.Error("acquisition thread failed to stop in time", "error", err)
		} else {
			slog.Error("shutdown failed", "error", err)
		}
		os.Exit(1)
	}

	slog.Info("camera driver stopped")
}
