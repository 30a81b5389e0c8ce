package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"browserbridge/internal/api"
	"browserbridge/internal/config"
	"browserbridge/internal/executor"
	"browserbridge/internal/llm"
	"browserbridge/internal/logging"
	"browserbridge/internal/media"
	browserbridgemcp "browserbridge/internal/mcp"
	"browserbridge/internal/notify"
	"browserbridge/internal/store"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	baseCtx := context.Background()

	var taskStore store.Store
	switch cfg.Storage {
	case "sqlite":
		sqliteStore, err := store.OpenSQLite(baseCtx, cfg.StateDir)
		if err != nil {
			logger.Error("open store", "err", err)
			os.Exit(1)
		}
		defer sqliteStore.Close()
		taskStore = sqliteStore
	default:
		taskStore = store.NewMemory()
	}

	handles := store.NewHandleRegistry()
	pipeline := media.NewPipeline(cfg.MediaDir, taskStore, logger)

	janitor := media.NewJanitor(cfg.MediaDir, logger)
	if err := janitor.Start(); err != nil {
		logger.Error("start media janitor", "err", err)
		os.Exit(1)
	}
	defer janitor.Stop()

	providers := llm.NewRegistry(cfg.Provider, logger)

	var notifier notify.Notifier = &notify.NoOpNotifier{}
	if cfg.Bark.Enabled {
		bark, err := notify.NewBarkNotifier(cfg.Bark.URL)
		if err != nil {
			logger.Error("configure bark notifier", "err", err)
			os.Exit(1)
		}
		notifier = bark
	}

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	exec := executor.New(ctx, cfg, taskStore, handles, pipeline, providers, notifier, nil, logger)
	controller := executor.NewController(cfg, taskStore, handles, pipeline, exec, logger)

	switch cfg.Mode {
	case "http", "":
		runHTTPMode(cfg, controller, logger, cancel)
	case "mcp":
		runMCPMode(controller, logger, cancel)
	case "both":
		runBothMode(cfg, controller, logger, cancel)
	default:
		logger.Error("invalid mode", "mode", cfg.Mode, "valid", []string{"http", "mcp", "both"})
		os.Exit(1)
	}
}

// runHTTPMode starts only the HTTP server.
func runHTTPMode(cfg *config.Config, controller *executor.Controller, logger *slog.Logger, cancel context.CancelFunc) {
	server := api.NewServer(cfg, controller, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	// Ask running agents to unwind before the listener closes.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
}

// runMCPMode starts only the MCP server.
func runMCPMode(controller *executor.Controller, logger *slog.Logger, cancel context.CancelFunc) {
	mcpServer := browserbridgemcp.NewMCPServer(controller, logger)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		logger.Info("received signal, shutting down...")
		cancel()
	}()

	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
		os.Exit(1)
	}
}

// runBothMode starts both HTTP and MCP servers.
func runBothMode(cfg *config.Config, controller *executor.Controller, logger *slog.Logger, cancel context.CancelFunc) {
	mcpServer := browserbridgemcp.NewMCPServer(controller, logger)
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()

	server := api.NewServer(cfg, controller, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}

	logger.Info("shutdown complete")
}
