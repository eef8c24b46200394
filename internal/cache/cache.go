package cache

import (
	"context"
	"fmt"
	"time"

	"stocktrack/internal/domain"
)

type AlertCache interface {
	Get(ctx context.Context, key string) (*domain.StockAlerts, bool, error)
	Set(ctx context.Context, key string, value *domain.StockAlerts, ttl time.Duration) error
}

type NoopAlertCache struct{}

func (NoopAlertCache) Get(_ context.Context, _ string) (*domain.StockAlerts, bool, error) {
	return nil, false, nil
}

func (NoopAlertCache) Set(_ context.Context, _ string, _ *domain.StockAlerts, _ time.Duration) error {
	return nil
}

// AlertKey identifies a classification of one persisted inventory state.
// Scope names the database, version its stock revision.
func AlertKey(scope string, version int64, threshold int64) string {
	return fmt.Sprintf("stocktrack:alerts:%s:v%d:t%d", scope, version, threshold)
}
