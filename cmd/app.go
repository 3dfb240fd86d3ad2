package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gorm.io/gorm"

	"tele-sticker-search/config"
	"tele-sticker-search/db"
	"tele-sticker-search/pkg/bot"
	"tele-sticker-search/pkg/ledger"
	"tele-sticker-search/pkg/search"
	"tele-sticker-search/pkg/storage/memory"
	"tele-sticker-search/pkg/storage/postgres"
)

// Store is everything the commands need from a storage driver.
type Store interface {
	search.Store
	ledger.Store
	bot.Catalog
}

type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *gorm.DB
	store   Store
	engine  *search.Engine
	ledger  *ledger.Ledger
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// openApp wires storage, cache, engine and ledger from the configuration.
var openApp = func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		conn, err := db.NewDatabaseConnection(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sqlDB.Close)
		a.db = conn
		a.store = postgres.New(conn)
	default:
		logger.Warn("using in-memory storage, nothing is persisted")
		a.store = memory.New()
	}

	var cache search.Cache
	switch cfg.CacheDriver {
	case config.CacheRedis:
		client := db.NewRedisConnection(cfg)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		cache = search.NewRedisCache(client, cfg.CacheTTL)
	default:
		cache = search.NewMemoryCache(cfg.CacheTTL)
	}

	a.engine = search.NewEngine(a.store, cache, logger)
	a.ledger = ledger.New(a.store, logger)
	return a, nil
}

// newLogger builds the process logger: JSON in production, text otherwise.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Production() {
		return slog.New(slog.NewJSONHandler(w, opts)).With("app", cfg.AppName)
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
