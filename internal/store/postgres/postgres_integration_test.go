package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stocktrack/internal/domain"
	"stocktrack/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("STOCKTRACK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set STOCKTRACK_TEST_DATABASE_URL to run postgres integration test")
	}

	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestSaleCommitsRecordAndInventoryTogether(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	key := fmt.Sprintf("it-apple-%d", stamp)
	receiptID := fmt.Sprintf("rcpt-it-%d", stamp)
	saleID := fmt.Sprintf("sale-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM receipts WHERE id = $1`, receiptID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_items WHERE key = $1`, key)
	})

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	receipt := domain.Receipt{
		ID:      receiptID,
		Company: "Acme",
		Date:    day,
		Lines:   []domain.ReceiptLine{{Name: key, Quantity: 10, UnitCost: decimal.NewFromInt(100)}},
		Total:   decimal.NewFromInt(1000),
	}
	seed := domain.StockItem{Key: key, DisplayName: key, UnitCost: decimal.NewFromInt(100), UnitPrice: decimal.NewFromInt(120)}
	if _, _, err := s.SaveReceipt(ctx, receipt, []store.StockChange{{Item: seed, Delta: 10, SetPrices: true}}); err != nil {
		t.Fatalf("save receipt: %v", err)
	}
	if _, _, err := s.SaveReceipt(ctx, receipt, nil); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate receipt, got %v", err)
	}

	sale := domain.SettledSale{
		ID:           saleID,
		Date:         day,
		CustomerName: "John",
		Lines: []domain.SaleLine{{
			Key: key, Name: key, Quantity: 6,
			UnitPrice: decimal.NewFromInt(150), UnitCost: decimal.NewFromInt(100),
			Amount: decimal.NewFromInt(900), Profit: decimal.NewFromInt(300),
		}},
		TotalAmount: decimal.NewFromInt(900),
		TotalProfit: decimal.NewFromInt(300),
	}
	withdraw := []store.StockChange{{Item: seed, Delta: -6, Require: 6}}
	_, items, err := s.SaveSale(ctx, sale, withdraw)
	if err != nil {
		t.Fatalf("save sale: %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 4 {
		t.Fatalf("unexpected items after sale: %+v", items)
	}

	other, err := New(ctx, os.Getenv("STOCKTRACK_TEST_DATABASE_URL"))
	if err != nil {
		t.Fatalf("second handle: %v", err)
	}
	defer other.Close()
	again := sale
	again.ID = saleID + "-again"
	if _, _, err := other.SaveSale(ctx, again, withdraw); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock from second handle, got %v", err)
	}

	sales, err := s.ListSales(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	var found bool
	for _, got := range sales {
		if got.ID == saleID {
			found = true
			if len(got.Lines) != 1 || !got.Lines[0].Profit.Equal(decimal.NewFromInt(300)) {
				t.Fatalf("unexpected sale lines: %+v", got.Lines)
			}
		}
	}
	if !found {
		t.Fatalf("sale %s not listed", saleID)
	}

	snapshot, err := s.LoadInventorySnapshot(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	for _, got := range snapshot {
		if got.Key == key && got.Quantity != 4 {
			t.Fatalf("expected quantity 4 after sale, got %d", got.Quantity)
		}
	}
}
