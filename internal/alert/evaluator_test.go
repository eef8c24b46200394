package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktrack/internal/domain"
)

type fakeSource struct {
	stamp   domain.InventoryStamp
	items   []domain.StockItem
	reads   int
	loadErr error
}

func (f *fakeSource) InventoryStamp(context.Context) (domain.InventoryStamp, error) {
	return f.stamp, nil
}

func (f *fakeSource) LoadInventorySnapshot(context.Context) ([]domain.StockItem, error) {
	f.reads++
	return f.items, f.loadErr
}

func stamped(scope string, version int64, items ...domain.StockItem) *fakeSource {
	return &fakeSource{stamp: domain.InventoryStamp{Scope: scope, Version: version}, items: items}
}

type mapCache struct {
	data   map[string]domain.StockAlerts
	getErr error
}

func (m *mapCache) Get(_ context.Context, key string) (*domain.StockAlerts, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (m *mapCache) Set(_ context.Context, key string, value *domain.StockAlerts, _ time.Duration) error {
	m.data[key] = *value
	return nil
}

func TestClassifyCachesPerVersion(t *testing.T) {
	c := &mapCache{data: map[string]domain.StockAlerts{}}
	e := NewEvaluator(c, time.Minute, nil)
	src := stamped("db", 1, domain.StockItem{Key: "a", Quantity: 3})

	first, err := e.Classify(context.Background(), src, 5)
	require.NoError(t, err)
	second, err := e.Classify(context.Background(), src, 5)
	require.NoError(t, err)
	require.Len(t, first.LowStock, 1)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.reads)

	src.stamp.Version = 2
	src.items = []domain.StockItem{{Key: "a", Quantity: 0}}
	third, err := e.Classify(context.Background(), src, 5)
	require.NoError(t, err)
	require.Len(t, third.OutOfStock, 1)
	assert.Equal(t, 2, src.reads)
}

func TestClassifyFallsBackWhenCacheFails(t *testing.T) {
	c := &mapCache{data: map[string]domain.StockAlerts{}, getErr: errors.New("down")}
	e := NewEvaluator(c, time.Minute, nil)

	got, err := e.Classify(context.Background(), stamped("db", 1, domain.StockItem{Key: "a", Quantity: 8}), 5)
	require.NoError(t, err)
	require.Len(t, got.WellStocked, 1)
}

func TestClassifyReportsLoadFailure(t *testing.T) {
	src := stamped("db", 1)
	src.loadErr = errors.New("connection refused")

	_, err := NewEvaluator(nil, 0, nil).Classify(context.Background(), src, 5)
	assert.ErrorIs(t, err, src.loadErr)
}

func TestNewEvaluatorDefaults(t *testing.T) {
	e := NewEvaluator(nil, 0, nil)

	got, err := e.Classify(context.Background(), stamped("db", 1, domain.StockItem{Key: "a", Quantity: -1}), NotificationThreshold)
	require.NoError(t, err)
	require.Len(t, got.OutOfStock, 1)
}

func TestClassifySharesEntriesForOneDatabase(t *testing.T) {
	c := &mapCache{data: map[string]domain.StockAlerts{}}
	daemon := stamped("db", 7, domain.StockItem{Key: "a", Quantity: 3})
	_, err := NewEvaluator(c, time.Minute, nil).Classify(context.Background(), daemon, 5)
	require.NoError(t, err)

	cli := stamped("db", 7, domain.StockItem{Key: "a", Quantity: 3})
	got, err := NewEvaluator(c, time.Minute, nil).Classify(context.Background(), cli, 5)
	require.NoError(t, err)
	require.Len(t, got.LowStock, 1)
	assert.Equal(t, 0, cli.reads, "a second process on the same stamp should hit the cache")

	other := stamped("other-db", 7, domain.StockItem{Key: "a", Quantity: 0})
	got, err = NewEvaluator(c, time.Minute, nil).Classify(context.Background(), other, 5)
	require.NoError(t, err)
	require.Len(t, got.OutOfStock, 1)
	assert.Equal(t, 1, other.reads)
}
