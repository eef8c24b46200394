package ledger

import (
	"sync"

	"github.com/shopspring/decimal"

	"stocktrack/internal/domain"
	"stocktrack/internal/pricing"
)

// Ledger maps canonical keys to current stock. It holds at most one entry
// per key and remembers insertion order for display.
type Ledger struct {
	mu      sync.RWMutex
	policy  pricing.Policy
	order   []string
	items   map[string]domain.StockItem
	version uint64
}

// New returns an empty ledger. The policy prices entries created without an
// explicit selling price; nil selects the default 20% markup.
func New(policy pricing.Policy) *Ledger {
	if policy == nil {
		policy = pricing.Default()
	}
	return &Ledger{
		policy: policy,
		order:  make([]string, 0, 64),
		items:  make(map[string]domain.StockItem, 64),
	}
}

func (l *Ledger) Policy() pricing.Policy {
	return l.policy
}

// Upsert adds quantityDelta to the entry for name, creating it when absent.
// Non-nil cost and price overwrite the stored values.
func (l *Ledger) Upsert(name string, quantityDelta int64, unitCost *decimal.Decimal, unitPrice *decimal.Decimal) domain.StockItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	item := l.project(name, quantityDelta, unitCost, unitPrice)
	l.put(item)
	return item
}

// Project returns what Upsert would store without changing the ledger.
func (l *Ledger) Project(name string, quantityDelta int64, unitCost *decimal.Decimal, unitPrice *decimal.Decimal) domain.StockItem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.project(name, quantityDelta, unitCost, unitPrice)
}

// Put stores a previously projected entry as-is.
func (l *Ledger) Put(item domain.StockItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if item.Key == "" {
		item.Key = Normalize(item.DisplayName)
	}
	l.put(item)
}

func (l *Ledger) Get(name string) (domain.StockItem, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	item, ok := l.items[Normalize(name)]
	return item, ok
}

// Snapshot lists entries with positive quantity in insertion order.
func (l *Ledger) Snapshot() []domain.StockItem {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.StockItem, 0, len(l.order))
	for _, key := range l.order {
		if item := l.items[key]; item.Quantity > 0 {
			out = append(out, item)
		}
	}
	return out
}

// Entries lists every entry, including zero and negative quantities.
func (l *Ledger) Entries() []domain.StockItem {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.StockItem, 0, len(l.order))
	for _, key := range l.order {
		out = append(out, l.items[key])
	}
	return out
}

// Restore replaces the ledger content with a persisted snapshot. Snapshot
// rows that share a key are folded into one entry.
func (l *Ledger) Restore(items []domain.StockItem) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.order = l.order[:0]
	l.items = make(map[string]domain.StockItem, len(items))
	for _, item := range items {
		key := item.Key
		if key == "" {
			key = Normalize(item.DisplayName)
		}
		if existing, ok := l.items[key]; ok {
			existing.Quantity += item.Quantity
			existing.UnitCost = item.UnitCost
			existing.UnitPrice = item.UnitPrice
			l.items[key] = existing
			continue
		}
		item.Key = key
		l.items[key] = item
		l.order = append(l.order, key)
	}
	l.version++
}

// Version increases on every mutation.
func (l *Ledger) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

func (l *Ledger) project(name string, quantityDelta int64, unitCost *decimal.Decimal, unitPrice *decimal.Decimal) domain.StockItem {
	key := Normalize(name)
	item, ok := l.items[key]
	if !ok {
		item = domain.StockItem{Key: key, DisplayName: name}
		if unitCost != nil {
			item.UnitCost = *unitCost
		}
		if unitPrice != nil {
			item.UnitPrice = *unitPrice
		} else {
			item.UnitPrice = l.policy.SellingPrice(item.UnitCost)
		}
		item.Quantity = quantityDelta
		return item
	}

	item.Quantity += quantityDelta
	if unitCost != nil {
		item.UnitCost = *unitCost
	}
	if unitPrice != nil {
		item.UnitPrice = *unitPrice
	}
	return item
}

func (l *Ledger) put(item domain.StockItem) {
	if _, ok := l.items[item.Key]; !ok {
		l.order = append(l.order, item.Key)
	}
	l.items[item.Key] = item
	l.version++
}
