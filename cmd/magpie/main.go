// Magpie server: the agentic research and enrichment engine behind
// POST /api/enrich.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/magpie-ai/magpie/pkg/agent"
	"github.com/magpie-ai/magpie/pkg/api"
	"github.com/magpie-ai/magpie/pkg/config"
	"github.com/magpie-ai/magpie/pkg/database"
	"github.com/magpie-ai/magpie/pkg/llm"
	"github.com/magpie-ai/magpie/pkg/search"
	"github.com/magpie-ai/magpie/pkg/services"
	"github.com/magpie-ai/magpie/pkg/session"
	"github.com/magpie-ai/magpie/pkg/version"
	"github.com/magpie-ai/magpie/pkg/webpage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting magpie",
		"version", version.Full(),
		"http_port", cfg.HTTPPort,
		"model", cfg.Model,
		"search_provider", cfg.SearchProvider)

	ctx := context.Background()

	db, err := database.NewClient(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Connected to PostgreSQL database")

	backend, err := search.NewFromConfig(cfg)
	if err != nil {
		slog.Error("Failed to initialize search backend", "error", err)
		os.Exit(1)
	}

	reasoner := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.ModelTimeout)
	fetcher := webpage.NewFetcher(8)

	entities := services.NewEntityService(db.Pool())
	facts := services.NewFactService(db.Pool(), entities)
	memory := services.NewMemoryService(db.Pool())
	history := session.NewHistoryManager(cfg.ChatMemoryWindow)

	engine := agent.New(cfg, reasoner, backend, fetcher, entities, facts, memory, history)
	server := api.NewServer(db, engine)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
