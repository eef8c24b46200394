package store

import (
	"context"
	"errors"
	"time"

	"stocktrack/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrInsufficientStock means a stored quantity no longer covers a
	// required withdrawal. Nothing was written.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// StockChange moves one inventory row by Delta. Item seeds the row when the
// key is not stored yet; its Quantity is ignored.
type StockChange struct {
	Item  domain.StockItem
	Delta int64
	// SetPrices overwrites the stored unit cost and price with Item's.
	SetPrices bool
	// Require is the quantity the stored row must hold before the change.
	// Zero skips the check.
	Require int64
}

// Repository persists receipts, sales and the inventory snapshot. Stock
// changes are applied as deltas in the same transaction as the record, with
// the touched rows locked, and the resulting rows are returned.
type Repository interface {
	SaveReceipt(ctx context.Context, receipt domain.Receipt, changes []StockChange) (string, []domain.StockItem, error)
	// UpdateReceipt fails with ErrConflict when the stored receipt's
	// UpdatedAt no longer equals prevUpdatedAt.
	UpdateReceipt(ctx context.Context, receipt domain.Receipt, prevUpdatedAt time.Time, changes []StockChange) ([]domain.StockItem, error)
	GetReceipt(ctx context.Context, id string) (*domain.Receipt, error)
	ListReceipts(ctx context.Context, from time.Time, to time.Time) ([]domain.Receipt, error)
	SaveSale(ctx context.Context, sale domain.SettledSale, changes []StockChange) (string, []domain.StockItem, error)
	ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.SettledSale, error)
	LoadInventorySnapshot(ctx context.Context) ([]domain.StockItem, error)
	LoadInventoryItems(ctx context.Context, keys []string) ([]domain.StockItem, error)
	InventoryStamp(ctx context.Context) (domain.InventoryStamp, error)
	UpdateInventoryItem(ctx context.Context, key string, patch domain.InventoryPatch) (*domain.StockItem, error)
}

// Shortfalls lists the changes whose Require exceeds the stored quantity.
// Missing keys count as zero.
func Shortfalls(changes []StockChange, stored map[string]int64) []string {
	var short []string
	for _, change := range changes {
		if change.Require > 0 && stored[change.Item.Key] < change.Require {
			short = append(short, change.Item.Key)
		}
	}
	return short
}

// Apply returns item moved by change, as the stores persist it.
func Apply(item domain.StockItem, found bool, change StockChange) domain.StockItem {
	if !found {
		item = change.Item
		item.Quantity = change.Delta
		return item
	}
	item.Quantity += change.Delta
	if change.SetPrices {
		item.UnitCost = change.Item.UnitCost
		item.UnitPrice = change.Item.UnitPrice
	}
	return item
}

// InWindow reports whether t lies in [from, to). A zero bound is open.
func InWindow(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
