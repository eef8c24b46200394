package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktrack/internal/domain"
)

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestUpsertCreatesEntryWithDefaultMarkup(t *testing.T) {
	l := New(nil)

	item := l.Upsert("Apple", 10, dec(100), nil)

	assert.Equal(t, "apple", item.Key)
	assert.Equal(t, "Apple", item.DisplayName)
	assert.Equal(t, int64(10), item.Quantity)
	assert.True(t, item.UnitCost.Equal(decimal.NewFromInt(100)))
	assert.True(t, item.UnitPrice.Equal(decimal.NewFromInt(120)), "got %s", item.UnitPrice)
	assert.True(t, item.TotalValue().Equal(decimal.NewFromInt(1200)))
}

func TestUpsertAccumulatesAndLatestCostWins(t *testing.T) {
	l := New(nil)
	l.Upsert("Apple", 10, dec(100), dec(120))

	item := l.Upsert("Apples", 5, dec(110), dec(132))

	assert.Equal(t, "apple", item.Key)
	assert.Equal(t, "Apple", item.DisplayName, "first-seen display name is kept")
	assert.Equal(t, int64(15), item.Quantity)
	assert.True(t, item.UnitCost.Equal(decimal.NewFromInt(110)))
	assert.True(t, item.UnitPrice.Equal(decimal.NewFromInt(132)))
	assert.Equal(t, 1, l.Len())
}

func TestUpsertWithoutPricesKeepsStoredValues(t *testing.T) {
	l := New(nil)
	l.Upsert("Box", 4, dec(10), dec(15))

	item := l.Upsert("boxes", -3, nil, nil)

	assert.Equal(t, int64(1), item.Quantity)
	assert.True(t, item.UnitCost.Equal(decimal.NewFromInt(10)))
	assert.True(t, item.UnitPrice.Equal(decimal.NewFromInt(15)))
}

func TestAggregationIsOrderIndependent(t *testing.T) {
	orders := [][]string{
		{"Box", "box", "Boxes"},
		{"Boxes", "Box", "box"},
		{"box", "Boxes", "Box"},
	}
	quantities := map[string]int64{"Box": 3, "box": 4, "Boxes": 5}

	for _, order := range orders {
		l := New(nil)
		for _, name := range order {
			l.Upsert(name, quantities[name], dec(2), nil)
		}
		entries := l.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, "box", entries[0].Key)
		assert.Equal(t, int64(12), entries[0].Quantity)
	}
}

func TestSnapshotHidesEmptyEntriesButLedgerKeepsThem(t *testing.T) {
	l := New(nil)
	l.Upsert("Apple", 3, dec(1), nil)
	l.Upsert("Pear", 2, dec(1), nil)
	l.Upsert("Plum", 1, dec(1), nil)
	l.Upsert("Pear", -2, nil, nil)
	l.Upsert("Plum", -4, nil, nil)

	snapshot := l.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "apple", snapshot[0].Key)

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"apple", "pear", "plum"}, []string{entries[0].Key, entries[1].Key, entries[2].Key})
	assert.Equal(t, int64(-3), entries[2].Quantity)

	pear, ok := l.Get("pears")
	require.True(t, ok)
	assert.Equal(t, int64(0), pear.Quantity)
}

func TestProjectDoesNotMutate(t *testing.T) {
	l := New(nil)
	l.Upsert("Apple", 10, dec(100), nil)
	version := l.Version()

	projected := l.Project("apple", -4, nil, nil)
	assert.Equal(t, int64(6), projected.Quantity)

	current, ok := l.Get("Apple")
	require.True(t, ok)
	assert.Equal(t, int64(10), current.Quantity)
	assert.Equal(t, version, l.Version())

	l.Put(projected)
	current, _ = l.Get("Apple")
	assert.Equal(t, int64(6), current.Quantity)
	assert.Greater(t, l.Version(), version)
}

func TestRestoreFoldsDuplicateKeys(t *testing.T) {
	l := New(nil)
	l.Upsert("Stale", 1, dec(1), nil)

	l.Restore([]domain.StockItem{
		{Key: "apple", DisplayName: "Apple", Quantity: 4, UnitCost: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(12)},
		{DisplayName: "Apples", Quantity: 6, UnitCost: decimal.NewFromInt(11), UnitPrice: decimal.NewFromInt(13)},
		{DisplayName: "Box", Quantity: 2, UnitCost: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(6)},
	})

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "apple", entries[0].Key)
	assert.Equal(t, int64(10), entries[0].Quantity)
	assert.True(t, entries[0].UnitCost.Equal(decimal.NewFromInt(11)))
	assert.Equal(t, "box", entries[1].Key)

	_, ok := l.Get("Stale")
	assert.False(t, ok)
}

func TestMergeGroupsLikeUpsert(t *testing.T) {
	rows := []MergeEntry{
		{Name: "Apple", Quantity: 10, Amount: decimal.NewFromInt(1000)},
		{Name: "Boxes", Quantity: 2, Amount: decimal.NewFromInt(40)},
		{Name: "apples", Quantity: 5, Amount: decimal.NewFromInt(550)},
		{Name: "box", Quantity: 1, Amount: decimal.NewFromInt(20)},
	}

	merged := Merge(rows)
	require.Len(t, merged, 2)
	assert.Equal(t, "apple", merged[0].Key)
	assert.Equal(t, "Apple", merged[0].DisplayName)
	assert.Equal(t, int64(15), merged[0].Quantity)
	assert.True(t, merged[0].Amount.Equal(decimal.NewFromInt(1550)))
	assert.Equal(t, "Boxes", merged[1].DisplayName)
	assert.Equal(t, int64(3), merged[1].Quantity)

	l := New(nil)
	for _, row := range rows {
		l.Upsert(row.Name, row.Quantity, nil, nil)
	}
	entries := l.Entries()
	require.Len(t, entries, len(merged))
	for i := range merged {
		assert.Equal(t, merged[i].Key, entries[i].Key)
		assert.Equal(t, merged[i].Quantity, entries[i].Quantity)
	}
}
