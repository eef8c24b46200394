package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stocktrack/internal/domain"
	"stocktrack/internal/ledger"
	"stocktrack/internal/store"
	"stocktrack/internal/xid"
)

// saleAttempts bounds how often a sale is re-checked when another process
// moves the same stock between the check and the write.
const saleAttempts = 3

// SettleSale checks every line against stock and either settles the whole
// sale or changes nothing. Lines naming the same item draw from one pool.
// The check runs against freshly loaded rows and is repeated by the
// repository under its row locks.
func (s *Service) SettleSale(ctx context.Context, req domain.SaleRequest) (domain.SettledSale, error) {
	req, keys, err := validateSale(req)
	if err != nil {
		s.logger.Debug("sale rejected", zap.Error(err))
		return domain.SettledSale{}, err
	}

	unlock := s.locks.Lock(keys)
	defer unlock()

	for attempt := 1; ; attempt++ {
		if err := s.refresh(ctx, keys); err != nil {
			return domain.SettledSale{}, err
		}
		sale, changes, err := s.buildSale(req, keys)
		if err != nil {
			s.logger.Debug("sale rejected", zap.Error(err))
			return domain.SettledSale{}, err
		}

		id, items, err := s.repo.SaveSale(ctx, sale, changes)
		if errors.Is(err, store.ErrInsufficientStock) && attempt < saleAttempts {
			s.logger.Debug("stock changed before sale was stored, checking again", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if err != nil {
			return domain.SettledSale{}, &domain.PersistenceError{Op: "save sale", Err: err}
		}
		sale.ID = id
		for _, item := range items {
			s.ledger.Put(item)
		}

		s.logger.Info("sale settled",
			zap.String("sale_id", sale.ID),
			zap.String("customer", sale.CustomerName),
			zap.Strings("keys", uniqueSorted(keys)),
			zap.String("total_amount", sale.TotalAmount.String()),
			zap.String("total_profit", sale.TotalProfit.String()),
		)
		return sale, nil
	}
}

// buildSale checks the request against the ledger and prices it. It returns
// one stock change per key; known keys require the full pooled quantity.
func (s *Service) buildSale(req domain.SaleRequest, keys []string) (domain.SettledSale, []store.StockChange, error) {
	type pool struct {
		item      domain.StockItem
		known     bool
		remaining int64
	}
	pools := make(map[string]*pool, len(keys))
	for _, key := range keys {
		if _, ok := pools[key]; ok {
			continue
		}
		item, ok := s.ledger.Get(key)
		pools[key] = &pool{item: item, known: ok, remaining: max(item.Quantity, 0)}
	}

	var shortfalls []domain.Shortfall
	for i, line := range req.Lines {
		p := pools[keys[i]]
		if !p.known && s.opts.AllowNegativeStockOnUnknownItem {
			continue
		}
		if line.Quantity > p.remaining {
			shortfalls = append(shortfalls, domain.Shortfall{
				Name:      line.Name,
				Available: p.remaining,
				Requested: line.Quantity,
			})
			continue
		}
		p.remaining -= line.Quantity
	}
	if len(shortfalls) > 0 {
		return domain.SettledSale{}, nil, &domain.InsufficientStockError{Shortfalls: shortfalls}
	}

	sale := domain.SettledSale{
		ID:           xid.New("sale"),
		Date:         req.Date,
		CustomerName: req.CustomerName,
		Lines:        make([]domain.SaleLine, 0, len(req.Lines)),
		TotalAmount:  decimal.Zero,
		TotalProfit:  decimal.Zero,
		CreatedAt:    s.now(),
	}

	changes := make([]store.StockChange, 0, len(pools))
	index := make(map[string]int, len(pools))
	for i, line := range req.Lines {
		key := keys[i]
		p := pools[key]

		// Cost is captured now; later receipts never reprice this line.
		cost := decimal.Zero
		if p.known {
			cost = p.item.UnitCost
		}
		qty := decimal.NewFromInt(line.Quantity)
		amount := line.UnitPrice.Mul(qty)
		profit := amount.Sub(cost.Mul(qty))

		sale.Lines = append(sale.Lines, domain.SaleLine{
			Key:       key,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			UnitCost:  cost,
			Amount:    amount,
			Profit:    profit,
		})
		sale.TotalAmount = sale.TotalAmount.Add(amount)
		sale.TotalProfit = sale.TotalProfit.Add(profit)

		if j, ok := index[key]; ok {
			changes[j].Delta -= line.Quantity
			if p.known {
				changes[j].Require += line.Quantity
			}
			continue
		}
		change := store.StockChange{Item: s.ledger.Project(line.Name, 0, nil, nil), Delta: -line.Quantity}
		if p.known {
			change.Require = line.Quantity
		}
		index[key] = len(changes)
		changes = append(changes, change)
	}
	return sale, changes, nil
}

// validateSale trims the request and returns the canonical key of each
// line, index-aligned with the lines.
func validateSale(req domain.SaleRequest) (domain.SaleRequest, []string, error) {
	if req.Date.IsZero() {
		return req, nil, domain.NewValidationError("date", "required")
	}
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" {
		return req, nil, domain.NewValidationError("customer_name", "required")
	}
	if len(req.Lines) == 0 {
		return req, nil, domain.NewValidationError("lines", "at least one line is required")
	}

	lines := make([]domain.SaleLineRequest, len(req.Lines))
	keys := make([]string, len(req.Lines))
	for i, line := range req.Lines {
		line.Name = strings.TrimSpace(line.Name)
		if line.Name == "" {
			return req, nil, domain.NewValidationError(fmt.Sprintf("lines[%d].name", i), "required")
		}
		if line.Quantity <= 0 {
			return req, nil, domain.NewValidationError(fmt.Sprintf("lines[%d].quantity", i), "must be greater than zero")
		}
		if !line.UnitPrice.IsPositive() {
			return req, nil, domain.NewValidationError(fmt.Sprintf("lines[%d].unit_price", i), "must be greater than zero")
		}
		lines[i] = line
		keys[i] = ledger.Normalize(line.Name)
	}

	req.Lines = lines
	return req, keys, nil
}
