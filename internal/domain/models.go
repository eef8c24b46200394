package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockItem is one ledger entry. Key is derived from the item name and is
// never set independently of it.
type StockItem struct {
	Key         string          `json:"key"`
	DisplayName string          `json:"display_name"`
	Quantity    int64           `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// TotalValue is quantity times selling price, recomputed on every call.
func (i StockItem) TotalValue() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// Status classifies the item against a low-stock threshold.
func (i StockItem) Status(threshold int64) string {
	switch {
	case i.Quantity <= 0:
		return StockStatusOutOfStock
	case i.Quantity <= threshold:
		return StockStatusLowStock
	default:
		return StockStatusWellStocked
	}
}

type ReceiptLine struct {
	Name     string          `json:"name"`
	Quantity int64           `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// Amount is what the line cost the business.
func (l ReceiptLine) Amount() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(l.Quantity))
}

type ReceiptRequest struct {
	Company string        `json:"company"`
	Date    time.Time     `json:"date"`
	Lines   []ReceiptLine `json:"lines"`
}

type Receipt struct {
	ID        string          `json:"id"`
	Company   string          `json:"company"`
	Date      time.Time       `json:"date"`
	Lines     []ReceiptLine   `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type ReceiptIntakeResult struct {
	ReceiptID          string          `json:"receipt_id"`
	Total              decimal.Decimal `json:"total"`
	StockItemsAffected []StockItem     `json:"stock_items_affected"`
}

type SaleLineRequest struct {
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type SaleRequest struct {
	Date         time.Time         `json:"date"`
	CustomerName string            `json:"customer_name"`
	Lines        []SaleLineRequest `json:"lines"`
}

// SaleLine is a settled line. UnitCost is the ledger cost captured when the
// sale settled; later receipts never change it.
type SaleLine struct {
	Key       string          `json:"key"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Amount    decimal.Decimal `json:"amount"`
	Profit    decimal.Decimal `json:"profit"`
}

type SettledSale struct {
	ID           string          `json:"id"`
	Date         time.Time       `json:"date"`
	CustomerName string          `json:"customer_name"`
	Lines        []SaleLine      `json:"lines"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	TotalProfit  decimal.Decimal `json:"total_profit"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Quantity is the number of units sold across all lines.
func (s SettledSale) Quantity() int64 {
	var total int64
	for _, line := range s.Lines {
		total += line.Quantity
	}
	return total
}

// InventoryStamp identifies one persisted inventory state. Scope names the
// database and Version grows with every committed stock change.
type InventoryStamp struct {
	Scope   string `json:"scope"`
	Version int64  `json:"version"`
}

// InventoryPatch is a manual correction. Nil fields are left untouched.
type InventoryPatch struct {
	Quantity  *int64           `json:"quantity,omitempty"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type StockAlerts struct {
	Threshold   int64       `json:"threshold"`
	WellStocked []StockItem `json:"well_stocked"`
	LowStock    []StockItem `json:"low_stock"`
	OutOfStock  []StockItem `json:"out_of_stock"`
}

// NeedsAttention reports whether any item is low or out of stock.
func (a StockAlerts) NeedsAttention() bool {
	return len(a.LowStock) > 0 || len(a.OutOfStock) > 0
}

type StatementSummary struct {
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
	TotalQuantity int64           `json:"total_quantity"`
	ItemCount     int             `json:"item_count"`
}

type StatementRow struct {
	Date      time.Time       `json:"date"`
	Reference string          `json:"reference"`
	Party     string          `json:"party"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
	Profit    decimal.Decimal `json:"profit"`
}

// StatementItem totals a statement's rows for one canonical item.
type StatementItem struct {
	Key      string          `json:"key"`
	Name     string          `json:"name"`
	Quantity int64           `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
}

type Statement struct {
	Kind    string           `json:"kind"`
	From    string           `json:"from"`
	To      string           `json:"to"`
	Summary StatementSummary `json:"summary"`
	Rows    []StatementRow   `json:"rows"`
	Items   []StatementItem  `json:"items"`
}

const (
	StockStatusWellStocked = "well-stocked"
	StockStatusLowStock    = "low-stock"
	StockStatusOutOfStock  = "out-of-stock"
)

const (
	StatementKindSales    = "sales"
	StatementKindReceipts = "receipts"
)

const DateLayout = "2006-01-02"

// Apply returns item with the patch's non-nil fields written over it.
func (p InventoryPatch) Apply(item StockItem) StockItem {
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.UnitCost != nil {
		item.UnitCost = *p.UnitCost
	}
	if p.UnitPrice != nil {
		item.UnitPrice = *p.UnitPrice
	}
	return item
}

// Empty reports whether the patch changes nothing.
func (p InventoryPatch) Empty() bool {
	return p.Quantity == nil && p.UnitCost == nil && p.UnitPrice == nil
}
