package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"stocktrack/internal/domain"
	"stocktrack/internal/store"
	"stocktrack/internal/xid"
)

type Store struct {
	mu        sync.RWMutex
	receipts  map[string]domain.Receipt
	sales     map[string]domain.SettledSale
	inventory map[string]domain.StockItem
	order     []string
	scope     string
	version   int64
	now       func() time.Time
}

func New() *Store {
	return &Store{
		receipts:  make(map[string]domain.Receipt),
		sales:     make(map[string]domain.SettledSale),
		inventory: make(map[string]domain.StockItem),
		order:     make([]string, 0, 64),
		scope:     xid.New("mem"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store whose inventory snapshot already holds items.
func NewSeeded(items []domain.StockItem) *Store {
	s := New()
	for _, item := range items {
		s.putItem(item)
	}
	return s
}

func (s *Store) SaveReceipt(_ context.Context, receipt domain.Receipt, changes []store.StockChange) (string, []domain.StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if receipt.ID == "" {
		receipt.ID = xid.New("rcpt")
	}
	if _, exists := s.receipts[receipt.ID]; exists {
		return "", nil, store.ErrConflict
	}
	if err := s.checkStock(changes); err != nil {
		return "", nil, err
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = s.now()
	}
	if receipt.UpdatedAt.IsZero() {
		receipt.UpdatedAt = receipt.CreatedAt
	}

	s.receipts[receipt.ID] = cloneReceipt(receipt)
	return receipt.ID, s.applyChanges(changes), nil
}

func (s *Store) UpdateReceipt(_ context.Context, receipt domain.Receipt, prevUpdatedAt time.Time, changes []store.StockChange) ([]domain.StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.receipts[receipt.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !existing.UpdatedAt.Equal(prevUpdatedAt) {
		return nil, store.ErrConflict
	}
	if err := s.checkStock(changes); err != nil {
		return nil, err
	}
	receipt.CreatedAt = existing.CreatedAt
	if receipt.UpdatedAt.IsZero() {
		receipt.UpdatedAt = s.now()
	}

	s.receipts[receipt.ID] = cloneReceipt(receipt)
	return s.applyChanges(changes), nil
}

func (s *Store) GetReceipt(_ context.Context, id string) (*domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipt, ok := s.receipts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyReceipt := cloneReceipt(receipt)
	return &copyReceipt, nil
}

func (s *Store) ListReceipts(_ context.Context, from time.Time, to time.Time) ([]domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipts := make([]domain.Receipt, 0, len(s.receipts))
	for _, receipt := range s.receipts {
		if store.InWindow(receipt.Date, from, to) {
			receipts = append(receipts, cloneReceipt(receipt))
		}
	}
	slices.SortFunc(receipts, func(a, b domain.Receipt) int {
		return compareRecord(a.Date, a.CreatedAt, a.ID, b.Date, b.CreatedAt, b.ID)
	})
	return receipts, nil
}

func (s *Store) SaveSale(_ context.Context, sale domain.SettledSale, changes []store.StockChange) (string, []domain.StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.sales[sale.ID]; exists {
		return "", nil, store.ErrConflict
	}
	if err := s.checkStock(changes); err != nil {
		return "", nil, err
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = s.now()
	}

	s.sales[sale.ID] = cloneSale(sale)
	return sale.ID, s.applyChanges(changes), nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time) ([]domain.SettledSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.SettledSale, 0, len(s.sales))
	for _, sale := range s.sales {
		if store.InWindow(sale.Date, from, to) {
			sales = append(sales, cloneSale(sale))
		}
	}
	slices.SortFunc(sales, func(a, b domain.SettledSale) int {
		return compareRecord(a.Date, a.CreatedAt, a.ID, b.Date, b.CreatedAt, b.ID)
	})
	return sales, nil
}

func (s *Store) LoadInventorySnapshot(_ context.Context) ([]domain.StockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.StockItem, 0, len(s.order))
	for _, key := range s.order {
		items = append(items, s.inventory[key])
	}
	return items, nil
}

func (s *Store) LoadInventoryItems(_ context.Context, keys []string) ([]domain.StockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.StockItem, 0, len(keys))
	for _, key := range keys {
		if item, ok := s.inventory[key]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *Store) InventoryStamp(_ context.Context) (domain.InventoryStamp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.InventoryStamp{Scope: s.scope, Version: s.version}, nil
}

func (s *Store) UpdateInventoryItem(_ context.Context, key string, patch domain.InventoryPatch) (*domain.StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.inventory[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	item = patch.Apply(item)
	s.inventory[key] = item
	s.version++
	updated := item
	return &updated, nil
}

func (s *Store) checkStock(changes []store.StockChange) error {
	stored := make(map[string]int64, len(changes))
	for _, change := range changes {
		stored[change.Item.Key] = s.inventory[change.Item.Key].Quantity
	}
	if short := store.Shortfalls(changes, stored); len(short) > 0 {
		return fmt.Errorf("%w: %s", store.ErrInsufficientStock, strings.Join(short, ", "))
	}
	return nil
}

func (s *Store) applyChanges(changes []store.StockChange) []domain.StockItem {
	if len(changes) == 0 {
		return nil
	}
	items := make([]domain.StockItem, 0, len(changes))
	for _, change := range changes {
		current, found := s.inventory[change.Item.Key]
		item := store.Apply(current, found, change)
		s.putItem(item)
		items = append(items, item)
	}
	s.version++
	return items
}

func (s *Store) putItem(item domain.StockItem) {
	if _, ok := s.inventory[item.Key]; !ok {
		s.order = append(s.order, item.Key)
	}
	s.inventory[item.Key] = item
}

func compareRecord(aDate, aCreated time.Time, aID string, bDate, bCreated time.Time, bID string) int {
	if c := aDate.Compare(bDate); c != 0 {
		return c
	}
	if c := aCreated.Compare(bCreated); c != 0 {
		return c
	}
	return cmpString(aID, bID)
}

func cmpString(a string, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func cloneReceipt(receipt domain.Receipt) domain.Receipt {
	receipt.Lines = slices.Clone(receipt.Lines)
	return receipt
}

func cloneSale(sale domain.SettledSale) domain.SettledSale {
	sale.Lines = slices.Clone(sale.Lines)
	return sale
}
