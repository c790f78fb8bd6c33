package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"healthforge/internal/assistant"
	"healthforge/internal/bot"
	"healthforge/internal/config"
	"healthforge/internal/remote"
	"healthforge/internal/repository"
	"healthforge/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	clock := service.SystemClock{}
	tracker := service.NewTrackerService(templateRepo, recordRepo, outboxRepo, clock, logger)
	analytics := service.NewAnalyticsService(templateRepo, recordRepo, clock)
	summary := service.NewSummaryService(tracker, analytics)

	var assist *assistant.Assistant
	if cfg.AssistantEnabled() {
		assist = assistant.New(assistant.NewClient(assistant.ClientConfig{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
		}), logger)
	}

	telegramBot, err := bot.New(cfg.TelegramToken, userRepo, tracker, analytics, summary, assist, &cfg, logger)
	if err != nil {
		logger.Fatal("bot", zap.Error(err))
	}

	scheduler := service.NewScheduler(time.Local)

	// Checklists are materialized lazily on access; the midnight job just
	// warms them up so the first interaction of the day is instant.
	if _, err := scheduler.Daily("00:05", func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := telegramBot.BackfillAll(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("midnight backfill", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("schedule backfill", zap.Error(err))
	}

	// Reminder times are per user, so the job fires every minute and the
	// bot picks the users whose HH:MM matches in their timezone.
	if _, err := scheduler.Every(time.Minute, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := telegramBot.SendDueSummaries(jobCtx, time.Now()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("daily summaries", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("schedule summaries", zap.Error(err))
	}

	if cfg.MirrorEnabled() {
		client := remote.NewClient(remote.ClientConfig{
			BaseURL:   cfg.RemoteMirrorURL,
			AuthToken: cfg.RemoteMirrorToken,
		})
		syncer := remote.NewSyncer(client, outboxRepo, templateRepo, recordRepo, logger)
		if _, err := scheduler.Every(cfg.SyncInterval, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := syncer.Drain(jobCtx); err != nil {
				logger.Warn("outbox drain", zap.Error(err))
			}
		}); err != nil {
			logger.Fatal("schedule outbox drain", zap.Error(err))
		}
	} else {
		logger.Info("remote mirror disabled, mutations stay local")
	}

	scheduler.Start()
	defer scheduler.Stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return telegramBot.Start(groupCtx)
	})

	logger.Info("healthforge started")
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("bot stopped with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
