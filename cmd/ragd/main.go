package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rag-engine/server/config"
	"github.com/rag-engine/server/internal/api"
	"github.com/rag-engine/server/internal/chunker"
	"github.com/rag-engine/server/internal/embeddings"
	"github.com/rag-engine/server/internal/extract"
	"github.com/rag-engine/server/internal/ollama"
	"github.com/rag-engine/server/internal/pipeline"
	"github.com/rag-engine/server/internal/rag"
	"github.com/rag-engine/server/internal/ratelimit"
	"github.com/rag-engine/server/internal/store"
	pgvstore "github.com/rag-engine/server/internal/vectorstore/pgvector"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config file")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.Database.ConnectionString)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	embedder := embeddings.NewTextEmbedder(cfg.Ollama.BaseURL, cfg.Ollama.EmbeddingModel)
	vectors := pgvstore.New(st.Pool(), embedder)
	gen := ollama.NewClient(cfg.Ollama.BaseURL, cfg.Ollama.ChatModel)

	warnMissingModel(logger, gen, cfg.Ollama.ChatModel)

	ch := chunker.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, cfg.Chunking.MinChunkSize)

	pipe := pipeline.New(st, vectors, extract.NewDefault(), ch, logger, pipeline.Options{
		StorageDir:   cfg.Upload.StorageDir,
		AllowedTypes: cfg.Upload.AllowedTypes,
		MaxSizeBytes: cfg.Upload.MaxSizeBytes,
		Workers:      cfg.Upload.Workers,
	})
	defer pipe.Close()

	orchestrator := rag.New(st, vectors, gen, logger, rag.Options{
		TopK:            cfg.Chat.TopK,
		MaxHistory:      cfg.Chat.MaxHistory,
		CitationPreview: cfg.Chat.CitationPreview,
		TitleMaxLength:  cfg.Chat.TitleMaxLength,
	})

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	server := api.NewServer(st, pipe, orchestrator, limiter, logger, cfg.Upload.MaxSizeBytes)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

// warnMissingModel logs a warning when the configured chat model has
// not been pulled on the Ollama server. The server still starts;
// generation requests will fail until the model is available.
func warnMissingModel(logger *slog.Logger, client *ollama.Client, model string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := client.HasModel(ctx, model)
	if err != nil {
		logger.Warn("could not verify ollama model availability", "error", err)
		return
	}
	if !ok {
		logger.Warn("configured chat model not found on ollama server", "model", model)
	}
}
