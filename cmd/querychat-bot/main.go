package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/querychat/querychat/internal/bot"
	"github.com/querychat/querychat/internal/config"
	"github.com/querychat/querychat/internal/conversation"
	"github.com/querychat/querychat/internal/engine"
	"github.com/querychat/querychat/internal/llm"
	"github.com/querychat/querychat/internal/observability"
	"github.com/querychat/querychat/internal/sqlrun"
	s3store "github.com/querychat/querychat/internal/storage/s3"
	"github.com/querychat/querychat/internal/transcript"
)

func main() {
	cfg, err := config.LoadFromEnv("querychat-bot")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.RequireSecrets(); err != nil {
		slog.Error("missing required secrets", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	db, err := sqlrun.Open(context.Background(), sqlrun.DBConfig{
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

	generator, err := llm.NewOpenAIGenerator(llm.OpenAIConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize llm client", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := &engine.Engine{
		Store:     conversation.NewStore(),
		Generator: generator,
		Executor:  sqlrun.NewExecutor(db),
		Logger:    logger,
	}

	if cfg.Archive.Enabled {
		objectStore, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.Archive.Endpoint,
			Region:           cfg.Archive.Region,
			Bucket:           cfg.Archive.Bucket,
			AccessKeyID:      cfg.Archive.AccessKeyID,
			SecretAccessKey:  cfg.Archive.SecretAccessKey,
			UseSSL:           cfg.Archive.UseSSL,
			Prefix:           cfg.Archive.Prefix,
			AutoCreateBucket: cfg.Archive.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		archive := &transcript.Service{Store: objectStore, Logger: logger}
		eng.Archiver = archive
		go archive.RunRetentionLoop(ctx, transcript.RetentionConfig{
			MaxAge:   cfg.Archive.RetentionAge,
			Interval: cfg.Archive.RetentionInterval,
		})
	}

	client, err := bot.NewTelegramClient(cfg.Bot.APIBaseURL, cfg.Bot.Token, cfg.Bot.PollTimeout)
	if err != nil {
		logger.Error("failed to initialize telegram client", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting bot", slog.String("profile", string(cfg.Profile)))
	if err := bot.New(client, eng, logger).Run(ctx); err != nil {
		logger.Error("bot stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("bot shut down")
}
