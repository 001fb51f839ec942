package main

import (
	"context"
	"fmt"

	"github.com/blockedby/tg-digest/internal/collector"
	"github.com/blockedby/tg-digest/internal/config"
	"github.com/blockedby/tg-digest/internal/database"
	"github.com/blockedby/tg-digest/internal/digest"
	"github.com/blockedby/tg-digest/internal/logger"
	"github.com/blockedby/tg-digest/internal/nats"
	"github.com/blockedby/tg-digest/internal/publisher"
	"github.com/blockedby/tg-digest/internal/repository"
	"github.com/blockedby/tg-digest/internal/storage"
	"github.com/blockedby/tg-digest/internal/telegram"
	"gorm.io/gorm"
)

// app holds the wired components of one process.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *database.DB
	repo    *repository.Repository
	nc      *nats.Client
	tg      *telegram.Manager
	service *collector.Service
	client  *telegram.Client
	runner  *digest.Runner
}

// loadConfig reads the configuration and initializes the global logger.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger.Get(), nil
}

// newApp connects the stores and, when withTelegram is set, restores the
// telegram session.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, withTelegram bool) (*app, error) {
	a := &app{cfg: cfg, log: log}

	// 1. Relational store
	var loader digest.Loader
	var sessionDB *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
		sessionDB = db.GORM

		a.repo = repository.New(db.GORM, log.Component("repository"))
		if err := a.repo.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
		loader = a.repo
	} else {
		log.Info().Msg("DATABASE_URL not set, relational load disabled")
	}

	// 2. NATS
	var pub digest.EventPublisher
	if cfg.NatsURL != "" {
		nc, err := nats.New(ctx, cfg.NatsURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to nats, publishing disabled")
		} else if err := nc.EnsureStream(ctx, nats.StreamName, []string{nats.StreamSubjects}); err != nil {
			log.Warn().Err(err).Msg("failed to ensure nats stream, publishing disabled")
			nc.Close()
		} else {
			a.nc = nc
			pub = publisher.NewNATSPublisher(nc)
		}
	}

	// 3. Telegram
	var (
		chats     digest.ChatResolver
		extractor digest.Extractor
	)
	if withTelegram {
		a.tg = telegram.NewManager(cfg, sessionDB)
		if err := a.tg.Init(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("init telegram: %w", err)
		}
		if a.tg.GetStatus() != telegram.StatusReady {
			a.Close()
			return nil, fmt.Errorf("%w: set TG_SESSION_STRING or store a session in the database", telegram.ErrNotAuthorized)
		}

		rl := telegram.NewRateLimiter(cfg.TGRequestsPerSecond, 1)
		a.client = telegram.NewClient(a.tg, rl, log.Component("telegram"))
		a.service = collector.NewService(a.client, collector.Options{
			PacingEvery: cfg.PacingEvery,
			PacingDelay: cfg.PacingDelay(),
			MaxAttempts: cfg.RateLimitMaxAttempts,
		}, log.Component("collector"))

		chats = a.client
		extractor = a.service
	}

	store := storage.NewParquetStore(cfg.OutDir, log.Component("storage"))
	a.runner = digest.NewRunner(cfg.TargetChat, chats, extractor, store, loader, pub, cfg.Location(), log.Component("digest"))

	return a, nil
}

// Close releases every connection the app opened.
func (a *app) Close() {
	if a.tg != nil {
		a.tg.Stop()
	}
	if a.nc != nil {
		a.nc.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
