package statement

import (
	"time"

	"github.com/shopspring/decimal"

	"stocktrack/internal/domain"
	"stocktrack/internal/ledger"
)

// Record is the common shape of anything that appears on a statement.
// Receipt records carry zero profit.
type Record struct {
	Date     time.Time
	Amount   decimal.Decimal
	Profit   decimal.Decimal
	Quantity int64
}

// FromSales yields one record per settled sale.
func FromSales(sales []domain.SettledSale) []Record {
	records := make([]Record, 0, len(sales))
	for _, sale := range sales {
		records = append(records, Record{
			Date:     sale.Date,
			Amount:   sale.TotalAmount,
			Profit:   sale.TotalProfit,
			Quantity: sale.Quantity(),
		})
	}
	return records
}

// FromReceipts yields one record per receipt line, dated with its receipt.
func FromReceipts(receipts []domain.Receipt) []Record {
	records := make([]Record, 0, len(receipts))
	for _, receipt := range receipts {
		for _, line := range receipt.Lines {
			records = append(records, Record{
				Date:     receipt.Date,
				Amount:   line.Amount(),
				Profit:   decimal.Zero,
				Quantity: line.Quantity,
			})
		}
	}
	return records
}

// Aggregate sums the records dated within [start, end]. Both bounds are
// compared as UTC calendar days, so anything on end's day counts.
func Aggregate(records []Record, start time.Time, end time.Time) domain.StatementSummary {
	summary := domain.StatementSummary{
		TotalAmount: decimal.Zero,
		TotalProfit: decimal.Zero,
	}
	for _, record := range records {
		if !InRange(record.Date, start, end) {
			continue
		}
		summary.TotalAmount = summary.TotalAmount.Add(record.Amount)
		summary.TotalProfit = summary.TotalProfit.Add(record.Profit)
		summary.TotalQuantity += record.Quantity
		summary.ItemCount++
	}
	return summary
}

// InRange reports whether t falls on a UTC day between start and end
// inclusive.
func InRange(t time.Time, start time.Time, end time.Time) bool {
	day := Day(t)
	return !day.Before(Day(start)) && !day.After(Day(end))
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FlattenSales expands sales into line rows. A line's profit is its share of
// the sale amount applied to the sale profit.
func FlattenSales(sales []domain.SettledSale) []domain.StatementRow {
	rows := make([]domain.StatementRow, 0, len(sales))
	for _, sale := range sales {
		for _, line := range sale.Lines {
			rows = append(rows, domain.StatementRow{
				Date:      sale.Date,
				Reference: sale.ID,
				Party:     sale.CustomerName,
				Name:      line.Name,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
				Amount:    line.Amount,
				Profit:    ProportionalProfit(line.Amount, sale.TotalAmount, sale.TotalProfit),
			})
		}
	}
	return rows
}

// ProportionalProfit is lineAmount / saleAmount * saleProfit, or zero for an
// empty sale.
func ProportionalProfit(lineAmount decimal.Decimal, saleAmount decimal.Decimal, saleProfit decimal.Decimal) decimal.Decimal {
	if saleAmount.IsZero() {
		return decimal.Zero
	}
	return lineAmount.Mul(saleProfit).Div(saleAmount)
}

// ReceiptRows lists receipt lines with their cost as the unit price.
func ReceiptRows(receipts []domain.Receipt) []domain.StatementRow {
	rows := make([]domain.StatementRow, 0, len(receipts))
	for _, receipt := range receipts {
		for _, line := range receipt.Lines {
			rows = append(rows, domain.StatementRow{
				Date:      receipt.Date,
				Reference: receipt.ID,
				Party:     receipt.Company,
				Name:      line.Name,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitCost,
				Amount:    line.Amount(),
				Profit:    decimal.Zero,
			})
		}
	}
	return rows
}

// FilterSales keeps the sales dated within [start, end].
func FilterSales(sales []domain.SettledSale, start time.Time, end time.Time) []domain.SettledSale {
	out := make([]domain.SettledSale, 0, len(sales))
	for _, sale := range sales {
		if InRange(sale.Date, start, end) {
			out = append(out, sale)
		}
	}
	return out
}

// FilterReceipts keeps the receipts dated within [start, end].
func FilterReceipts(receipts []domain.Receipt, start time.Time, end time.Time) []domain.Receipt {
	out := make([]domain.Receipt, 0, len(receipts))
	for _, receipt := range receipts {
		if InRange(receipt.Date, start, end) {
			out = append(out, receipt)
		}
	}
	return out
}

// BuildSales assembles a sales statement for [start, end].
func BuildSales(sales []domain.SettledSale, start time.Time, end time.Time) domain.Statement {
	sales = FilterSales(sales, start, end)
	rows := FlattenSales(sales)
	return domain.Statement{
		Kind:    domain.StatementKindSales,
		From:    Day(start).Format(domain.DateLayout),
		To:      Day(end).Format(domain.DateLayout),
		Summary: Aggregate(FromSales(sales), start, end),
		Rows:    rows,
		Items:   ByItem(rows),
	}
}

func BuildReceipts(receipts []domain.Receipt, start time.Time, end time.Time) domain.Statement {
	receipts = FilterReceipts(receipts, start, end)
	rows := ReceiptRows(receipts)
	return domain.Statement{
		Kind:    domain.StatementKindReceipts,
		From:    Day(start).Format(domain.DateLayout),
		To:      Day(end).Format(domain.DateLayout),
		Summary: Aggregate(FromReceipts(receipts), start, end),
		Rows:    rows,
		Items:   ByItem(rows),
	}
}

// ByItem totals rows per canonical item, so "Apple" and "apples" rows land
// on one line.
func ByItem(rows []domain.StatementRow) []domain.StatementItem {
	entries := make([]ledger.MergeEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, ledger.MergeEntry{Name: row.Name, Quantity: row.Quantity, Amount: row.Amount})
	}

	merged := ledger.Merge(entries)
	items := make([]domain.StatementItem, 0, len(merged))
	for _, m := range merged {
		items = append(items, domain.StatementItem{
			Key:      m.Key,
			Name:     m.DisplayName,
			Quantity: m.Quantity,
			Amount:   m.Amount,
		})
	}
	return items
}
