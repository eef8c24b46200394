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

// IntakeReceipt records a supplier receipt and adds its lines to stock. The
// receipt and the stock deltas are persisted together; the ledger then takes
// the stored rows.
func (s *Service) IntakeReceipt(ctx context.Context, req domain.ReceiptRequest) (domain.ReceiptIntakeResult, error) {
	req, keys, err := validateReceipt(req)
	if err != nil {
		s.logger.Debug("receipt rejected", zap.Error(err))
		return domain.ReceiptIntakeResult{}, err
	}

	unlock := s.locks.Lock(keys)
	defer unlock()

	changes := make([]store.StockChange, 0, len(req.Lines))
	for _, line := range req.Lines {
		changes = append(changes, s.receiptChange(line, line.Quantity))
	}

	now := s.now()
	receipt := domain.Receipt{
		ID:        xid.New("rcpt"),
		Company:   req.Company,
		Date:      req.Date,
		Lines:     req.Lines,
		Total:     receiptTotal(req.Lines),
		CreatedAt: now,
		UpdatedAt: now,
	}

	id, items, err := s.repo.SaveReceipt(ctx, receipt, changes)
	if err != nil {
		return domain.ReceiptIntakeResult{}, &domain.PersistenceError{Op: "save receipt", Err: err}
	}
	for _, item := range items {
		s.ledger.Put(item)
	}

	s.logger.Info("receipt recorded",
		zap.String("receipt_id", id),
		zap.String("company", receipt.Company),
		zap.Strings("keys", keys),
		zap.String("total", receipt.Total.String()),
	)
	return domain.ReceiptIntakeResult{
		ReceiptID:          id,
		Total:              receipt.Total,
		StockItemsAffected: items,
	}, nil
}

// EditReceipt replaces a stored receipt. Stock moves by the per-key
// difference between the new and old lines; keys still on the receipt take
// the new cost.
func (s *Service) EditReceipt(ctx context.Context, id string, req domain.ReceiptRequest) (domain.ReceiptIntakeResult, error) {
	if strings.TrimSpace(id) == "" {
		return domain.ReceiptIntakeResult{}, domain.NewValidationError("id", "required")
	}
	req, newKeys, err := validateReceipt(req)
	if err != nil {
		s.logger.Debug("receipt edit rejected", zap.String("receipt_id", id), zap.Error(err))
		return domain.ReceiptIntakeResult{}, err
	}

	existing, unlock, err := s.lockReceipt(ctx, id, newKeys)
	if err != nil {
		return domain.ReceiptIntakeResult{}, err
	}
	defer unlock()

	oldQty := make(map[string]int64, len(existing.Lines))
	oldName := make(map[string]string, len(existing.Lines))
	oldOrder := make([]string, 0, len(existing.Lines))
	for _, line := range existing.Lines {
		key := ledger.Normalize(line.Name)
		if _, seen := oldQty[key]; !seen {
			oldOrder = append(oldOrder, key)
			oldName[key] = line.Name
		}
		oldQty[key] += line.Quantity
	}

	changes := make([]store.StockChange, 0, len(req.Lines)+len(oldOrder))
	onReceipt := make(map[string]struct{}, len(req.Lines))
	for _, line := range req.Lines {
		key := ledger.Normalize(line.Name)
		onReceipt[key] = struct{}{}
		changes = append(changes, s.receiptChange(line, line.Quantity-oldQty[key]))
	}
	for _, key := range oldOrder {
		if _, kept := onReceipt[key]; kept {
			continue
		}
		changes = append(changes, store.StockChange{
			Item:  s.ledger.Project(oldName[key], 0, nil, nil),
			Delta: -oldQty[key],
		})
	}

	receipt := domain.Receipt{
		ID:        existing.ID,
		Company:   req.Company,
		Date:      req.Date,
		Lines:     req.Lines,
		Total:     receiptTotal(req.Lines),
		CreatedAt: existing.CreatedAt,
		UpdatedAt: s.now(),
	}
	items, err := s.repo.UpdateReceipt(ctx, receipt, existing.UpdatedAt, changes)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
			return domain.ReceiptIntakeResult{}, fmt.Errorf("receipt %s: %w", id, err)
		}
		return domain.ReceiptIntakeResult{}, &domain.PersistenceError{Op: "update receipt", Err: err}
	}
	for _, item := range items {
		s.ledger.Put(item)
	}

	s.logger.Info("receipt edited",
		zap.String("receipt_id", receipt.ID),
		zap.Int("items", len(items)),
		zap.String("total", receipt.Total.String()),
	)
	return domain.ReceiptIntakeResult{
		ReceiptID:          receipt.ID,
		Total:              receipt.Total,
		StockItemsAffected: items,
	}, nil
}

// receiptChange moves a receipt line's item by delta and reprices it from
// the line's cost.
func (s *Service) receiptChange(line domain.ReceiptLine, delta int64) store.StockChange {
	cost := line.UnitCost
	price := s.ledger.Policy().SellingPrice(cost)
	return store.StockChange{
		Item:      s.ledger.Project(line.Name, 0, &cost, &price),
		Delta:     delta,
		SetPrices: true,
	}
}

// lockReceipt locks the receipt together with every key on its stored and
// new lines. It retries when the stored lines change between the read and
// the lock.
func (s *Service) lockReceipt(ctx context.Context, id string, newKeys []string) (*domain.Receipt, func(), error) {
	receiptKey := "receipt\x00" + id

	existing, err := s.getReceipt(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	for {
		keys := append([]string{receiptKey}, newKeys...)
		for _, line := range existing.Lines {
			keys = append(keys, ledger.Normalize(line.Name))
		}
		unlock := s.locks.Lock(keys)

		current, err := s.getReceipt(ctx, id)
		if err != nil {
			unlock()
			return nil, nil, err
		}

		locked := make(map[string]struct{}, len(keys))
		for _, key := range keys {
			locked[key] = struct{}{}
		}
		if coversLines(locked, current.Lines) {
			return current, unlock, nil
		}
		unlock()
		existing = current
	}
}

func (s *Service) getReceipt(ctx context.Context, id string) (*domain.Receipt, error) {
	receipt, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("receipt %s: %w", id, err)
		}
		return nil, &domain.PersistenceError{Op: "get receipt", Err: err}
	}
	return receipt, nil
}

func coversLines(locked map[string]struct{}, lines []domain.ReceiptLine) bool {
	for _, line := range lines {
		if _, ok := locked[ledger.Normalize(line.Name)]; !ok {
			return false
		}
	}
	return true
}

// validateReceipt trims the request and checks it in order: company, date,
// lines, then each line, then duplicate keys. It returns the receipt's keys.
func validateReceipt(req domain.ReceiptRequest) (domain.ReceiptRequest, []string, error) {
	req.Company = strings.TrimSpace(req.Company)
	if req.Company == "" {
		return req, nil, domain.NewValidationError("company", "required")
	}
	if req.Date.IsZero() {
		return req, nil, domain.NewValidationError("date", "required")
	}
	if len(req.Lines) == 0 {
		return req, nil, domain.NewValidationError("lines", "at least one line is required")
	}

	lines := make([]domain.ReceiptLine, len(req.Lines))
	for i, line := range req.Lines {
		line.Name = strings.TrimSpace(line.Name)
		if line.Name == "" {
			return req, nil, domain.NewValidationError(fmt.Sprintf("lines[%d].name", i), "required")
		}
		if line.Quantity <= 0 {
			return req, nil, domain.NewValidationError(fmt.Sprintf("lines[%d].quantity", i), "must be greater than zero")
		}
		if !line.UnitCost.IsPositive() {
			return req, nil, domain.NewValidationError(fmt.Sprintf("lines[%d].unit_cost", i), "must be greater than zero")
		}
		lines[i] = line
	}

	keys := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		key := ledger.Normalize(line.Name)
		if _, dup := seen[key]; dup {
			return req, nil, &domain.DuplicateItemError{Name: line.Name, Key: key}
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	req.Lines = lines
	return req, keys, nil
}

func receiptTotal(lines []domain.ReceiptLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Amount())
	}
	return total
}
