package alert

import (
	"context"
	"time"

	"go.uber.org/zap"

	"stocktrack/internal/cache"
	"stocktrack/internal/domain"
)

// Source is the persisted inventory the evaluator reads.
type Source interface {
	InventoryStamp(ctx context.Context) (domain.InventoryStamp, error)
	LoadInventorySnapshot(ctx context.Context) ([]domain.StockItem, error)
}

// Evaluator memoizes classifications per persisted inventory stamp and
// threshold. Stamps come from the database, so processes sharing one
// database share cache entries.
type Evaluator struct {
	cache    cache.AlertCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

func NewEvaluator(cacheStore cache.AlertCache, cacheTTL time.Duration, logger *zap.Logger) *Evaluator {
	if cacheStore == nil {
		cacheStore = cache.NoopAlertCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Evaluator{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Classify evaluates every stored entry, including zero and negative ones.
// Cache failures only cost a recomputation.
func (e *Evaluator) Classify(ctx context.Context, src Source, threshold int64) (domain.StockAlerts, error) {
	stamp, err := src.InventoryStamp(ctx)
	if err != nil {
		return domain.StockAlerts{}, err
	}
	key := cache.AlertKey(stamp.Scope, stamp.Version, threshold)

	cached, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn("alert cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return *cached, nil
	}

	items, err := src.LoadInventorySnapshot(ctx)
	if err != nil {
		return domain.StockAlerts{}, err
	}
	alerts := Evaluate(items, threshold)

	// A commit between the stamp and the snapshot would file newer data
	// under an older key.
	if after, err := src.InventoryStamp(ctx); err != nil || after != stamp {
		return alerts, nil
	}
	if err := e.cache.Set(ctx, key, &alerts, e.cacheTTL); err != nil {
		e.logger.Warn("alert cache set failed", zap.String("key", key), zap.Error(err))
	}
	return alerts, nil
}
