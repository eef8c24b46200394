package statement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktrack/internal/domain"
)

func day(v string) time.Time {
	t, err := time.Parse(domain.DateLayout, v)
	if err != nil {
		panic(err)
	}
	return t
}

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func sampleSales() []domain.SettledSale {
	return []domain.SettledSale{
		{
			ID:           "sale-1",
			Date:         day("2024-01-01"),
			CustomerName: "John",
			Lines: []domain.SaleLine{
				{Name: "Apple", Quantity: 10, UnitPrice: d(150), UnitCost: d(100), Amount: d(1500), Profit: d(500)},
				{Name: "Box", Quantity: 5, UnitPrice: d(100), UnitCost: d(80), Amount: d(500), Profit: d(100)},
			},
			TotalAmount: d(2000),
			TotalProfit: d(600),
		},
		{
			ID:           "sale-2",
			Date:         day("2024-01-05").Add(23 * time.Hour),
			CustomerName: "Jane",
			Lines: []domain.SaleLine{
				{Name: "Apple", Quantity: 2, UnitPrice: d(150), UnitCost: d(100), Amount: d(300), Profit: d(100)},
			},
			TotalAmount: d(300),
			TotalProfit: d(100),
		},
		{
			ID:           "sale-3",
			Date:         day("2024-01-06"),
			CustomerName: "Late",
			Lines: []domain.SaleLine{
				{Name: "Apple", Quantity: 1, UnitPrice: d(150), UnitCost: d(100), Amount: d(150), Profit: d(50)},
			},
			TotalAmount: d(150),
			TotalProfit: d(50),
		},
	}
}

func TestAggregateSalesInclusiveRange(t *testing.T) {
	summary := Aggregate(FromSales(sampleSales()), day("2024-01-01"), day("2024-01-05"))

	assert.True(t, summary.TotalAmount.Equal(d(2300)), "got %s", summary.TotalAmount)
	assert.True(t, summary.TotalProfit.Equal(d(700)), "got %s", summary.TotalProfit)
	assert.Equal(t, int64(17), summary.TotalQuantity)
	assert.Equal(t, 2, summary.ItemCount)
}

func TestAggregateSingleDay(t *testing.T) {
	summary := Aggregate(FromSales(sampleSales()), day("2024-01-06"), day("2024-01-06"))

	assert.Equal(t, 1, summary.ItemCount)
	assert.True(t, summary.TotalAmount.Equal(d(150)))
}

func TestAggregateEmptyYieldsZeros(t *testing.T) {
	summary := Aggregate(nil, day("2024-01-01"), day("2024-12-31"))

	assert.True(t, summary.TotalAmount.IsZero())
	assert.True(t, summary.TotalProfit.IsZero())
	assert.Zero(t, summary.TotalQuantity)
	assert.Zero(t, summary.ItemCount)

	summary = Aggregate(FromSales(sampleSales()), day("2023-01-01"), day("2023-12-31"))
	assert.Zero(t, summary.ItemCount)
}

func TestAggregateReceiptsHaveNoProfit(t *testing.T) {
	receipts := []domain.Receipt{
		{
			ID:      "rcpt-1",
			Company: "Acme",
			Date:    day("2024-01-01"),
			Lines: []domain.ReceiptLine{
				{Name: "Apple", Quantity: 10, UnitCost: d(100)},
				{Name: "Box", Quantity: 4, UnitCost: d(25)},
			},
		},
	}

	summary := Aggregate(FromReceipts(receipts), day("2024-01-01"), day("2024-01-01"))

	assert.True(t, summary.TotalAmount.Equal(d(1100)))
	assert.True(t, summary.TotalProfit.IsZero())
	assert.Equal(t, int64(14), summary.TotalQuantity)
	assert.Equal(t, 2, summary.ItemCount)

	rows := ReceiptRows(receipts)
	require.Len(t, rows, 2)
	assert.Equal(t, "Acme", rows[0].Party)
	assert.True(t, rows[1].Amount.Equal(d(100)))
}

func TestFlattenSalesSplitsProfitProportionally(t *testing.T) {
	sales := sampleSales()[:1]
	sales[0].TotalProfit = d(400)

	rows := FlattenSales(sales)

	require.Len(t, rows, 2)
	assert.Equal(t, "sale-1", rows[0].Reference)
	assert.Equal(t, "John", rows[0].Party)
	assert.True(t, rows[0].Profit.Equal(d(300)), "got %s", rows[0].Profit)
	assert.True(t, rows[1].Profit.Equal(d(100)), "got %s", rows[1].Profit)
}

func TestProportionalProfitZeroAmount(t *testing.T) {
	assert.True(t, ProportionalProfit(d(10), decimal.Zero, d(5)).IsZero())
}

func TestBuildSales(t *testing.T) {
	st := BuildSales(sampleSales(), day("2024-01-05"), day("2024-01-06"))

	assert.Equal(t, domain.StatementKindSales, st.Kind)
	assert.Equal(t, "2024-01-05", st.From)
	assert.Equal(t, "2024-01-06", st.To)
	assert.Equal(t, 2, st.Summary.ItemCount)
	require.Len(t, st.Rows, 2)
	assert.Equal(t, "Jane", st.Rows[0].Party)
}

func TestInRangeUsesUTCDays(t *testing.T) {
	zone := time.FixedZone("UTC+7", 7*3600)
	// 2024-01-02 03:00 in UTC+7 is 2024-01-01 20:00 UTC.
	moment := time.Date(2024, 1, 2, 3, 0, 0, 0, zone)

	assert.True(t, InRange(moment, day("2024-01-01"), day("2024-01-01")))
	assert.False(t, InRange(moment, day("2024-01-02"), day("2024-01-02")))
}

func TestByItemFoldsNameVariants(t *testing.T) {
	sales := sampleSales()
	sales[1].Lines[0].Name = "apples"

	st := BuildSales(sales, day("2024-01-01"), day("2024-01-31"))

	require.Len(t, st.Items, 2)
	assert.Equal(t, "apple", st.Items[0].Key)
	assert.Equal(t, "Apple", st.Items[0].Name)
	assert.Equal(t, int64(13), st.Items[0].Quantity)
	assert.True(t, st.Items[0].Amount.Equal(d(1950)))
	assert.Equal(t, "box", st.Items[1].Key)
	assert.Equal(t, int64(5), st.Items[1].Quantity)
}
