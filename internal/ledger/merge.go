package ledger

import "github.com/shopspring/decimal"

// MergeEntry is one raw history row: a receipt line or a sale line.
type MergeEntry struct {
	Name     string
	Quantity int64
	Amount   decimal.Decimal
}

type MergedItem struct {
	Key         string
	DisplayName string
	Quantity    int64
	Amount      decimal.Decimal
}

// Merge groups raw rows by canonical key in first-seen order, summing
// quantity and amount. It groups exactly as repeated Upsert calls would.
func Merge(entries []MergeEntry) []MergedItem {
	index := make(map[string]int, len(entries))
	merged := make([]MergedItem, 0, len(entries))

	for _, entry := range entries {
		key := Normalize(entry.Name)
		if i, ok := index[key]; ok {
			merged[i].Quantity += entry.Quantity
			merged[i].Amount = merged[i].Amount.Add(entry.Amount)
			continue
		}
		index[key] = len(merged)
		merged = append(merged, MergedItem{
			Key:         key,
			DisplayName: entry.Name,
			Quantity:    entry.Quantity,
			Amount:      entry.Amount,
		})
	}
	return merged
}
