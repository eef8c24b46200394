package cli

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"stocktrack/internal/alert"
	"stocktrack/internal/archive"
	"stocktrack/internal/cache"
	"stocktrack/internal/config"
	"stocktrack/internal/ledger"
	"stocktrack/internal/logger"
	"stocktrack/internal/notify"
	"stocktrack/internal/service"
	"stocktrack/internal/store"
	"stocktrack/internal/store/memory"
	pgstore "stocktrack/internal/store/postgres"
	sqlitestore "stocktrack/internal/store/sqlite"
)

// App is everything a command needs, built once per invocation.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Service  *service.Service
	Archive  archive.Archive
	Notifier notify.Notifier

	closers []func() error
}

// Close releases the backing connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}

// Bootstrap loads configuration, opens the configured collaborators and
// rehydrates the ledger from persistence.
func Bootstrap(ctx context.Context, opts *RootOptions) (*App, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	base, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid log level", err)
	}
	policy, err := cfg.Pricing()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid pricing policy", err)
	}

	app := &App{Config: cfg, Logger: base}
	log := logger.Named(base, "bootstrap")

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var repo store.Repository
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(openCtx, cfg.DatabaseURL)
		if err != nil {
			_ = app.Close()
			return nil, WrapExitError(ExitCommandError, "postgres unavailable and DATABASE_URL is set", err)
		}
		repo = pg
		app.closers = append(app.closers, pg.Close)
		log.Info("repository: postgres")
	case cfg.SQLitePath != "":
		lite, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			_ = app.Close()
			return nil, WrapExitError(ExitCommandError, "sqlite unavailable", err)
		}
		repo = lite
		app.closers = append(app.closers, lite.Close)
		log.Info("repository: sqlite", zap.String("path", cfg.SQLitePath))
	default:
		repo = memory.New()
		log.Warn("repository: in-memory, records are lost on exit")
	}

	alertCache := cache.AlertCache(cache.NoopAlertCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisAlertCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(openCtx); err != nil {
			log.Warn("redis unavailable, using noop alert cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			alertCache = redisCache
			app.closers = append(app.closers, redisCache.Close)
			log.Info("alert cache: redis")
		}
	}

	app.Archive = archive.NoopArchive{}
	if cfg.MongoURI != "" {
		mongoArchive, err := archive.NewMongoArchive(openCtx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			log.Warn("mongodb unavailable, statements will not be archived", zap.Error(err))
		} else {
			app.Archive = mongoArchive
			app.closers = append(app.closers, func() error {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return mongoArchive.Close(closeCtx)
			})
			log.Info("statement archive: mongodb")
		}
	}

	if cfg.AlertWebhookURL != "" {
		app.Notifier = notify.NewWebhookNotifier(cfg.AlertWebhookURL)
	} else {
		app.Notifier = notify.NewLogNotifier(logger.Named(base, "notify"))
	}

	evaluator := alert.NewEvaluator(alertCache, cfg.AlertCacheTTL(), logger.Named(base, "alert"))
	app.Service = service.New(repo, ledger.New(policy), evaluator, logger.Named(base, "service"), service.Options{
		AllowNegativeStockOnUnknownItem: cfg.AllowNegativeStockOnUnknownItem,
	})
	if err := app.Service.Rehydrate(openCtx); err != nil {
		_ = app.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load inventory", err)
	}

	return app, nil
}
