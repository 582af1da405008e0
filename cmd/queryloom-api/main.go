package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/queryloom/queryloom/internal/api"
	"github.com/queryloom/queryloom/internal/cache"
	"github.com/queryloom/queryloom/internal/config"
	executorpostgres "github.com/queryloom/queryloom/internal/executor/postgres"
	"github.com/queryloom/queryloom/internal/generate"
	"github.com/queryloom/queryloom/internal/intent"
	"github.com/queryloom/queryloom/internal/llm"
	"github.com/queryloom/queryloom/internal/observability"
	"github.com/queryloom/queryloom/internal/pipeline"
	"github.com/queryloom/queryloom/internal/schema"
	schemapostgres "github.com/queryloom/queryloom/internal/schema/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("queryloom-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	db, err := schemapostgres.Open(context.Background(), schemapostgres.DBConfig{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	vectorStore := schemapostgres.NewStore(db, schemapostgres.StoreConfig{
		Table:         cfg.VectorStore.Table,
		EmbeddingDims: cfg.VectorStore.EmbeddingDims,
	})

	chatClient, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.ChatModel,
		Timeout: cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize chat client", slog.Any("error", err))
		os.Exit(1)
	}
	embedder, err := llm.NewOpenAIEmbedder(llm.OpenAIConfig{
		BaseURL:        cfg.AI.BaseURL,
		APIKey:         cfg.AI.APIKey,
		EmbeddingModel: cfg.AI.EmbeddingModel,
		Timeout:        cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize embedder", slog.Any("error", err))
		os.Exit(1)
	}

	service := &pipeline.Service{
		Retriever: &schema.Retriever{
			Embedder: embedder,
			Store:    vectorStore,
			TopK:     cfg.VectorStore.TopK,
			Logger:   logger,
		},
		Classifier: &intent.Classifier{
			Chat:  chatClient,
			Model: cfg.AI.IntentModel,
		},
		Generator: &generate.LLMGenerator{
			Chat:        chatClient,
			Model:       cfg.AI.ChatModel,
			Temperature: cfg.AI.Temperature,
		},
		Engine: executorpostgres.NewEngine(db),
		Logger: logger,
		Options: pipeline.Options{
			MaxRepairAttempts: cfg.Pipeline.MaxRepairAttempts,
			RowLimit:          cfg.Pipeline.DefaultRowLimit,
			StatementTimeout:  cfg.Pipeline.StatementTimeout,
		},
	}

	if cfg.Cache.Enabled {
		resultCache := cache.NewRedisCache(cfg.Cache, logger)
		defer func() { _ = resultCache.Close() }()
		if err := resultCache.Ping(context.Background()); err != nil {
			logger.Warn("result cache unreachable, continuing without it", slog.Any("error", err))
		} else {
			service.Cache = resultCache
		}
	}

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:            logger,
		Pipeline:          service,
		Database:          api.CheckDatabase(db),
		VectorStore:       vectorStore.HealthCheck,
		DependencyTimeout: time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
