package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mcoot/arcaderooms/internal/api"
	"github.com/mcoot/arcaderooms/internal/config"
	"github.com/mcoot/arcaderooms/internal/factory"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (default $CONFIG_FILE or config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up logging with JSON output
	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Create application factory
	app, err := factory.New(ctx, factory.FromConfig(cfg, logger))
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("application configured",
		slog.String("storage", cfg.Storage.Type),
		slog.Bool("events", cfg.NATS.URL != ""),
		slog.Duration("cleanup_interval", cfg.Relay.CleanupInterval),
	)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Logger:      logger,
		Coordinator: app.Coordinator,
		Relay:       app.Relay,
		Hub:         app.Hub,
		Recorder:    app.Recorder,
		Store:       app.Storage,
		Events:      app.Events,
	})

	// Create server
	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	server := api.NewServer(router, serverConfig, logger)

	// Run the relay sweeper and idle stream cleanup until shutdown
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Sweeper.Run(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Events.Run(ctx, cfg.Relay.CleanupInterval)
	}()

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started", slog.String("addr", server.Addr()))

	// Wait for shutdown or error
	exitCode := 0
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			exitCode = 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		// Websocket sessions are hijacked and not tracked by Shutdown,
		// event streams would hold it open
		app.Hub.Close()
		app.Events.Close()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			exitCode = 1
		}
	}

	cancel()
	wg.Wait()

	if err := app.Close(); err != nil {
		exitCode = 1
	}

	logger.Info("server stopped")
	os.Exit(exitCode)
}
