package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"stocktrack/internal/alert"
	"stocktrack/internal/domain"
	"stocktrack/internal/ledger"
	"stocktrack/internal/statement"
	"stocktrack/internal/store"
)

type Options struct {
	// AllowNegativeStockOnUnknownItem lets a sale of an item the ledger has
	// never seen go through, leaving a negative entry behind. When false the
	// item counts as zero stock.
	AllowNegativeStockOnUnknownItem bool

	Now func() time.Time
}

type Service struct {
	repo   store.Repository
	ledger *ledger.Ledger
	alerts *alert.Evaluator
	locks  *keyLocks
	opts   Options
	logger *zap.Logger
}

func New(repo store.Repository, stock *ledger.Ledger, alerts *alert.Evaluator, logger *zap.Logger, opts Options) *Service {
	if stock == nil {
		stock = ledger.New(nil)
	}
	if alerts == nil {
		alerts = alert.NewEvaluator(nil, 0, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:   repo,
		ledger: stock,
		alerts: alerts,
		locks:  newKeyLocks(),
		opts:   opts,
		logger: logger,
	}
}

func (s *Service) Ledger() *ledger.Ledger {
	return s.ledger
}

// Rehydrate replaces the ledger with the persisted inventory snapshot.
func (s *Service) Rehydrate(ctx context.Context) error {
	unlock := s.locks.LockAll()
	defer unlock()

	items, err := s.repo.LoadInventorySnapshot(ctx)
	if err != nil {
		return &domain.PersistenceError{Op: "load inventory snapshot", Err: err}
	}
	s.ledger.Restore(items)
	s.logger.Info("ledger rehydrated", zap.Int("items", s.ledger.Len()))
	return nil
}

// Stock lists entries with positive quantity.
func (s *Service) Stock(_ context.Context) []domain.StockItem {
	return s.ledger.Snapshot()
}

func (s *Service) Item(_ context.Context, name string) (domain.StockItem, error) {
	item, ok := s.ledger.Get(name)
	if !ok {
		return domain.StockItem{}, store.ErrNotFound
	}
	return item, nil
}

// Alerts classifies every persisted entry against threshold. It reads the
// repository rather than the ledger, so a long-running process sees stock
// moved by other processes.
func (s *Service) Alerts(ctx context.Context, threshold int64) (domain.StockAlerts, error) {
	if threshold < 0 {
		return domain.StockAlerts{}, domain.NewValidationError("threshold", "must not be negative")
	}
	alerts, err := s.alerts.Classify(ctx, s.repo, threshold)
	if err != nil {
		return domain.StockAlerts{}, &domain.PersistenceError{Op: "classify stock", Err: err}
	}
	return alerts, nil
}

// AdjustItem applies a manual correction, persistence first.
func (s *Service) AdjustItem(ctx context.Context, name string, patch domain.InventoryPatch) (domain.StockItem, error) {
	if strings.TrimSpace(name) == "" {
		return domain.StockItem{}, domain.NewValidationError("name", "required")
	}
	if patch.Empty() {
		return domain.StockItem{}, domain.NewValidationError("patch", "nothing to change")
	}
	if patch.UnitCost != nil && patch.UnitCost.IsNegative() {
		return domain.StockItem{}, domain.NewValidationError("unit_cost", "must not be negative")
	}
	if patch.UnitPrice != nil && patch.UnitPrice.IsNegative() {
		return domain.StockItem{}, domain.NewValidationError("unit_price", "must not be negative")
	}

	key := ledger.Normalize(name)
	unlock := s.locks.Lock([]string{key})
	defer unlock()

	updated, err := s.repo.UpdateInventoryItem(ctx, key, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.StockItem{}, err
		}
		return domain.StockItem{}, &domain.PersistenceError{Op: "update inventory item", Err: err}
	}
	s.ledger.Put(*updated)

	s.logger.Info("inventory item adjusted", zap.String("key", key), zap.Int64("quantity", updated.Quantity))
	return *updated, nil
}

// SalesStatement summarizes sales dated within [start, end], both inclusive
// at day granularity.
func (s *Service) SalesStatement(ctx context.Context, start time.Time, end time.Time) (domain.Statement, error) {
	from, to, err := statementWindow(start, end)
	if err != nil {
		return domain.Statement{}, err
	}
	sales, err := s.repo.ListSales(ctx, from, to)
	if err != nil {
		return domain.Statement{}, &domain.PersistenceError{Op: "list sales", Err: err}
	}
	return statement.BuildSales(sales, start, end), nil
}

// ReceiptStatement summarizes receipt lines dated within [start, end].
func (s *Service) ReceiptStatement(ctx context.Context, start time.Time, end time.Time) (domain.Statement, error) {
	from, to, err := statementWindow(start, end)
	if err != nil {
		return domain.Statement{}, err
	}
	receipts, err := s.repo.ListReceipts(ctx, from, to)
	if err != nil {
		return domain.Statement{}, &domain.PersistenceError{Op: "list receipts", Err: err}
	}
	return statement.BuildReceipts(receipts, start, end), nil
}

// refresh reloads keys from the repository so checks see writes committed
// by other processes. Entries that already match are left alone.
func (s *Service) refresh(ctx context.Context, keys []string) error {
	items, err := s.repo.LoadInventoryItems(ctx, keys)
	if err != nil {
		return &domain.PersistenceError{Op: "load inventory items", Err: err}
	}
	for _, item := range items {
		if current, ok := s.ledger.Get(item.Key); ok && sameItem(current, item) {
			continue
		}
		s.ledger.Put(item)
	}
	return nil
}

func sameItem(a domain.StockItem, b domain.StockItem) bool {
	return a.Key == b.Key &&
		a.DisplayName == b.DisplayName &&
		a.Quantity == b.Quantity &&
		a.UnitCost.Equal(b.UnitCost) &&
		a.UnitPrice.Equal(b.UnitPrice)
}

func statementWindow(start time.Time, end time.Time) (time.Time, time.Time, error) {
	if start.IsZero() {
		return time.Time{}, time.Time{}, domain.NewValidationError("from", "required")
	}
	if end.IsZero() {
		return time.Time{}, time.Time{}, domain.NewValidationError("to", "required")
	}
	from := statement.Day(start)
	last := statement.Day(end)
	if from.After(last) {
		return time.Time{}, time.Time{}, domain.NewValidationError("range", "start is after end")
	}
	return from, last.AddDate(0, 0, 1), nil
}

func (s *Service) now() time.Time {
	return s.opts.Now()
}
