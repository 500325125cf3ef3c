package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xhad/siphon/internal/models"
	"github.com/xhad/siphon/pkg/broker"
	"github.com/xhad/siphon/pkg/config"
	"github.com/xhad/siphon/pkg/extractor"
	"github.com/xhad/siphon/pkg/health"
	"github.com/xhad/siphon/pkg/llm"
	"github.com/xhad/siphon/pkg/pipeline"
	"github.com/xhad/siphon/pkg/processor"
	"github.com/xhad/siphon/pkg/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, relying on system environment variables.")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Log)

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			slog.Error("Invalid configuration", "field", e.Field, "message", e.Message)
		}
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting siphon worker", "queue", cfg.AMQP.Queue)

	if err := run(ctx, cfg); err != nil {
		slog.Error("Worker exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Worker stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := store.NewWithConfig(store.StoreConfig{
		ConnString: cfg.Database.URL,
		EmbedDim:   embedDim(cfg),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize store: %v", err)
	}
	defer db.Close()

	classifier, err := llm.NewClassifierWithConfig(llm.ClassifierConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		BatchSize:   cfg.LLM.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize classifier: %v", err)
	}

	var embedder pipeline.Embedder
	if cfg.Embedding.Enabled {
		emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			Provider: cfg.LLM.Provider,
			Model:    cfg.Embedding.Model,
			BaseURL:  cfg.LLM.BaseURL,
			APIKey:   cfg.LLM.APIKey,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize embedder: %v", err)
		}
		embedder = emb
	}

	pages := extractor.NewPageWithConfig(extractor.PageConfig{
		Timeout:   time.Duration(cfg.Scraper.TimeoutSeconds) * time.Second,
		RateLimit: cfg.Scraper.RateLimit,
	})
	blog := extractor.NewBlogWithConfig(extractor.BlogConfig{
		MaxDepth: cfg.Scraper.MaxDepth,
		MaxPages: cfg.Scraper.MaxPages,
	}, pages, classifier)

	registry := extractor.NewRegistry(blog)
	registry.RegisterHost("drive.google.com", extractor.NewGDrive())

	splitter := processor.NewWithConfig(processor.ProcessorConfig{
		MaxChunkSize: cfg.Processor.MaxChunkSize,
	})

	pipe := pipeline.New(db, registry, splitter, embedder)

	client := broker.NewClientWithConfig(broker.ClientConfig{
		URL:       cfg.AMQP.URL,
		Heartbeat: time.Duration(cfg.AMQP.HeartbeatSeconds) * time.Second,
	})
	defer client.Close()

	jobTimeout := time.Duration(cfg.Worker.JobTimeoutSeconds) * time.Second
	handler := func(ctx context.Context, job models.JobMessage) error {
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		return pipe.Process(jobCtx, job)
	}

	consumer := broker.NewConsumer(client, broker.ConsumerConfig{
		Queue:    cfg.AMQP.Queue,
		Prefetch: cfg.AMQP.Prefetch,
		Policy:   broker.PolicyFromName(cfg.AMQP.AckPolicy, cfg.AMQP.RequeueLimit),
	}, handler)

	httpServer := health.NewServerWithConfig(health.ServerConfig{Port: cfg.HTTP.Port}, client)
	go func() {
		if err := httpServer.Serve(ctx); err != nil {
			slog.Error("Health server failed", "error", err)
		}
	}()

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func embedDim(cfg *config.Config) int {
	if !cfg.Embedding.Enabled {
		return 0
	}
	return cfg.Embedding.Dim
}

func setupLogging(cfg config.LogConfig) {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0750); err != nil {
			slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error(
				"Failed to create log directory", "path", cfg.File, "error", err,
			)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: logLevel(cfg.Level)})
	slog.SetDefault(slog.New(handler))
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
