package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/api"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/config"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/core"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/factory"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/logger"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/transport"
)

const discoveryTimeout = 5 * time.Second

func main() {
	// Load configuration from the command line and environment
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Usage: %s [port]\n", os.Args[0])
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Debug)

	if err := run(cfg); err != nil {
		logger.Error("reqinfo stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger.Info("Starting reqinfo...",
		"port", cfg.Port,
		"runtime", cfg.Runtime,
		"discovery", cfg.DiscoveryMode)

	if err := transport.Init(); err != nil {
		return err
	}
	defer func() {
		if err := transport.Shutdown(); err != nil {
			logger.Warn("Socket library cleanup failed", "error", err)
		}
	}()

	// Work out who is answering
	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	instance := factory.NewInstanceFactory(cfg).Resolve(ctx)
	cancel()

	connectionHandler := factory.NewHandlerFactory(cfg).Create(instance)

	// Start TCP listener
	listener, err := transport.Listen(cfg.BindHost, cfg.Port)
	if err != nil {
		return err
	}
	logger.Info("Listening", "endpoint", listener.Endpoint().String())

	server := &core.Server{
		Listener:          listener,
		ConnectionHandler: connectionHandler,
	}

	// Start health server (optional)
	var healthServer *api.HealthServer
	if cfg.HealthServerPort != "" {
		healthServer = api.NewHealthServer(":"+cfg.HealthServerPort, server)
		healthServer.Start()
	}

	served := make(chan error, 1)
	go func() {
		served <- server.Serve()
	}()

	if healthServer != nil {
		healthServer.SetReady(true)
	}
	logger.Info("reqinfo is ready to accept connections")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	var serveErr error
	select {
	case sig := <-signals:
		logger.Info("Shutting down", "signal", sig.String())
	case serveErr = <-served:
		logger.Error("Server stopped accepting connections", "error", serveErr)
	}

	if healthServer != nil {
		healthServer.SetReady(false)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stopCancel()

	if err := server.Stop(stopCtx); err != nil {
		logger.Warn("Connections did not drain in time",
			"active", server.ActiveConnections(),
			"error", err)
	}

	if healthServer != nil {
		if err := healthServer.Stop(stopCtx); err != nil {
			logger.Warn("Failed to stop health server", "error", err)
		}
	}

	if serveErr != nil && !errors.Is(serveErr, core.ErrServerClosed) {
		return serveErr
	}

	logger.Info("reqinfo stopped")
	return nil
}
