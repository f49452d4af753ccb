package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"azdocs.dev/docschat/internal/api"
	"azdocs.dev/docschat/internal/auth"
	"azdocs.dev/docschat/internal/config"
	"azdocs.dev/docschat/internal/core"
	"azdocs.dev/docschat/internal/store"
)

func main() {
	ingestFlag := flag.Bool("ingest", false, "Ingest the docs directory into the local search corpus and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbStore.Close()

	llmService := core.NewLLMService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ChatModel, cfg.EmbeddingModel)

	if *ingestFlag {
		logger.Info("starting docs ingestion", "dir", cfg.DocsDir)
		count, err := dbStore.IngestDocsDir(context.Background(), cfg.DocsDir, llmService.GetEmbedding)
		if err != nil {
			logger.Error("docs ingestion failed", "error", err)
			os.Exit(1)
		}
		logger.Info("docs ingestion complete, exiting", "passages", count)
		return
	}

	retriever, err := buildRetriever(cfg, dbStore, llmService, logger)
	if err != nil {
		logger.Error("failed to initialize search provider", "error", err)
		os.Exit(1)
	}

	chatService := core.NewChatService(dbStore, llmService, retriever, logger)
	tokenService := auth.NewTokenService(cfg.JWTSecret)

	apiHandler := api.NewAPIHandler(chatService, tokenService, logger)
	router := api.NewRouter(apiHandler, cfg.FrontendOrigin)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", srv.Addr, "search_provider", cfg.SearchProvider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give active turns time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shut down", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited gracefully")
}

func buildRetriever(cfg *config.Config, dbStore *store.SQLiteStore, llmService *core.LLMService, logger *slog.Logger) (core.Retriever, error) {
	switch cfg.SearchProvider {
	case config.ProviderAzure:
		return core.NewAzureSearchService(
			cfg.SearchEndpoint, cfg.SearchAPIKey, cfg.SearchIndex,
			cfg.SearchSemanticConfig, cfg.SearchResultCount,
		), nil
	default:
		passages, err := dbStore.GetAllPassages(context.Background())
		if err != nil {
			return nil, fmt.Errorf("loading passages: %w", err)
		}
		return core.NewLocalSearchService(llmService, passages, cfg.SearchResultCount, logger), nil
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
