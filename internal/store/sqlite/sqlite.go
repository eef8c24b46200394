package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"stocktrack/internal/domain"
	"stocktrack/internal/store"
	"stocktrack/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

// Store is a single-file repository for local and CLI use. Timestamps are
// stored as UTC unix milliseconds and money as decimal text. Transactions
// start with BEGIN IMMEDIATE, so writers in other processes queue on the
// file lock instead of working from a stale read.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// One writer at a time avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO inventory_version (id, scope, version) VALUES (1, ?, 0)`, xid.New("sqlite")); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed inventory version: %w", err)
	}

	return &Store{db: db}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate&_busy_timeout=5000"
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) SaveReceipt(ctx context.Context, receipt domain.Receipt, changes []store.StockChange) (string, []domain.StockItem, error) {
	if receipt.ID == "" {
		receipt.ID = xid.New("rcpt")
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}
	if receipt.UpdatedAt.IsZero() {
		receipt.UpdatedAt = receipt.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipts (id, company, receipt_date, total, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, receipt.ID, receipt.Company, millis(receipt.Date), receipt.Total, millis(receipt.CreatedAt), millis(receipt.UpdatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return "", nil, store.ErrConflict
		}
		return "", nil, err
	}
	if err := insertReceiptLines(ctx, tx, receipt); err != nil {
		return "", nil, err
	}
	items, err := applyChanges(ctx, tx, changes)
	if err != nil {
		return "", nil, err
	}

	if err := tx.Commit(); err != nil {
		return "", nil, err
	}
	return receipt.ID, items, nil
}

func (s *Store) UpdateReceipt(ctx context.Context, receipt domain.Receipt, prevUpdatedAt time.Time, changes []store.StockChange) ([]domain.StockItem, error) {
	if receipt.UpdatedAt.IsZero() {
		receipt.UpdatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE receipts
		SET company = ?, receipt_date = ?, total = ?, updated_at = ?
		WHERE id = ? AND updated_at = ?
	`, receipt.Company, millis(receipt.Date), receipt.Total, millis(receipt.UpdatedAt), receipt.ID, millis(prevUpdatedAt))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM receipts WHERE id = ?`, receipt.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, store.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM receipt_lines WHERE receipt_id = ?`, receipt.ID); err != nil {
		return nil, err
	}
	if err := insertReceiptLines(ctx, tx, receipt); err != nil {
		return nil, err
	}
	items, err := applyChanges(ctx, tx, changes)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetReceipt(ctx context.Context, id string) (*domain.Receipt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, company, receipt_date, total, created_at, updated_at
		FROM receipts
		WHERE id = ?
	`, id)
	receipt, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	lines, err := s.receiptLines(ctx, []string{receipt.ID})
	if err != nil {
		return nil, err
	}
	receipt.Lines = lines[receipt.ID]
	return &receipt, nil
}

func (s *Store) ListReceipts(ctx context.Context, from time.Time, to time.Time) ([]domain.Receipt, error) {
	lo, hi := bounds(from, to)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company, receipt_date, total, created_at, updated_at
		FROM receipts
		WHERE receipt_date >= ? AND receipt_date < ?
		ORDER BY receipt_date, created_at, id
	`, lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := make([]domain.Receipt, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, err := s.receiptLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range receipts {
		receipts[i].Lines = lines[receipts[i].ID]
	}
	return receipts, nil
}

func (s *Store) SaveSale(ctx context.Context, sale domain.SettledSale, changes []store.StockChange) (string, []domain.StockItem, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, customer_name, sale_date, total_amount, total_profit, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sale.ID, sale.CustomerName, millis(sale.Date), sale.TotalAmount, sale.TotalProfit, millis(sale.CreatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return "", nil, store.ErrConflict
		}
		return "", nil, err
	}

	for i, line := range sale.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, line_no, item_key, name, quantity, unit_price, unit_cost, amount, profit)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sale.ID, i, line.Key, line.Name, line.Quantity, line.UnitPrice, line.UnitCost, line.Amount, line.Profit)
		if err != nil {
			return "", nil, err
		}
	}
	items, err := applyChanges(ctx, tx, changes)
	if err != nil {
		return "", nil, err
	}

	if err := tx.Commit(); err != nil {
		return "", nil, err
	}
	return sale.ID, items, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.SettledSale, error) {
	lo, hi := bounds(from, to)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_name, sale_date, total_amount, total_profit, created_at
		FROM sales
		WHERE sale_date >= ? AND sale_date < ?
		ORDER BY sale_date, created_at, id
	`, lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SettledSale, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		var sale domain.SettledSale
		var date, created int64
		if err := rows.Scan(&sale.ID, &sale.CustomerName, &date, &sale.TotalAmount, &sale.TotalProfit, &created); err != nil {
			return nil, err
		}
		sale.Date = fromMillis(date)
		sale.CreatedAt = fromMillis(created)
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return sales, nil
	}

	lineRows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, item_key, name, quantity, unit_price, unit_cost, amount, profit
		FROM sale_lines
		WHERE sale_id IN (`+placeholders(len(ids))+`)
		ORDER BY sale_id, line_no
	`, anySlice(ids)...)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()

	lines := make(map[string][]domain.SaleLine, len(ids))
	for lineRows.Next() {
		var saleID string
		var line domain.SaleLine
		if err := lineRows.Scan(&saleID, &line.Key, &line.Name, &line.Quantity, &line.UnitPrice, &line.UnitCost, &line.Amount, &line.Profit); err != nil {
			return nil, err
		}
		lines[saleID] = append(lines[saleID], line)
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		sales[i].Lines = lines[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) LoadInventorySnapshot(ctx context.Context) ([]domain.StockItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, display_name, quantity, unit_cost, unit_price
		FROM inventory_items
		ORDER BY rowid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.StockItem, 0, 128)
	for rows.Next() {
		var item domain.StockItem
		if err := rows.Scan(&item.Key, &item.DisplayName, &item.Quantity, &item.UnitCost, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) LoadInventoryItems(ctx context.Context, keys []string) ([]domain.StockItem, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, display_name, quantity, unit_cost, unit_price
		FROM inventory_items
		WHERE key IN (`+placeholders(len(keys))+`)
		ORDER BY rowid
	`, anySlice(keys)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.StockItem, 0, len(keys))
	for rows.Next() {
		var item domain.StockItem
		if err := rows.Scan(&item.Key, &item.DisplayName, &item.Quantity, &item.UnitCost, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InventoryStamp(ctx context.Context) (domain.InventoryStamp, error) {
	var stamp domain.InventoryStamp
	err := s.db.QueryRowContext(ctx, `SELECT scope, version FROM inventory_version WHERE id = 1`).Scan(&stamp.Scope, &stamp.Version)
	return stamp, err
}

func (s *Store) UpdateInventoryItem(ctx context.Context, key string, patch domain.InventoryPatch) (*domain.StockItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var item domain.StockItem
	err = tx.QueryRowContext(ctx, `
		SELECT key, display_name, quantity, unit_cost, unit_price
		FROM inventory_items
		WHERE key = ?
	`, key).Scan(&item.Key, &item.DisplayName, &item.Quantity, &item.UnitCost, &item.UnitPrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	item = patch.Apply(item)
	if _, err := tx.ExecContext(ctx, `
		UPDATE inventory_items
		SET quantity = ?, unit_cost = ?, unit_price = ?, updated_at = ?
		WHERE key = ?
	`, item.Quantity, item.UnitCost, item.UnitPrice, millis(time.Now()), item.Key); err != nil {
		return nil, err
	}
	if err := bumpVersion(ctx, tx); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) receiptLines(ctx context.Context, ids []string) (map[string][]domain.ReceiptLine, error) {
	lines := make(map[string][]domain.ReceiptLine, len(ids))
	if len(ids) == 0 {
		return lines, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT receipt_id, name, quantity, unit_cost
		FROM receipt_lines
		WHERE receipt_id IN (`+placeholders(len(ids))+`)
		ORDER BY receipt_id, line_no
	`, anySlice(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var receiptID string
		var line domain.ReceiptLine
		if err := rows.Scan(&receiptID, &line.Name, &line.Quantity, &line.UnitCost); err != nil {
			return nil, err
		}
		lines[receiptID] = append(lines[receiptID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (domain.Receipt, error) {
	var r domain.Receipt
	var date, created, updated int64
	if err := row.Scan(&r.ID, &r.Company, &date, &r.Total, &created, &updated); err != nil {
		return domain.Receipt{}, err
	}
	r.Date = fromMillis(date)
	r.CreatedAt = fromMillis(created)
	r.UpdatedAt = fromMillis(updated)
	return r, nil
}

func insertReceiptLines(ctx context.Context, tx *sql.Tx, receipt domain.Receipt) error {
	for i, line := range receipt.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO receipt_lines (receipt_id, line_no, name, quantity, unit_cost)
			VALUES (?, ?, ?, ?, ?)
		`, receipt.ID, i, line.Name, line.Quantity, line.UnitCost)
		if err != nil {
			return err
		}
	}
	return nil
}

// applyChanges re-checks required quantities inside the write transaction
// and moves each row by its delta.
func applyChanges(ctx context.Context, tx *sql.Tx, changes []store.StockChange) ([]domain.StockItem, error) {
	if len(changes) == 0 {
		return nil, nil
	}

	keys := make([]string, len(changes))
	for i, change := range changes {
		keys[i] = change.Item.Key
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT key, quantity FROM inventory_items WHERE key IN (`+placeholders(len(keys))+`)
	`, anySlice(keys)...)
	if err != nil {
		return nil, err
	}
	stored := make(map[string]int64, len(keys))
	for rows.Next() {
		var key string
		var qty int64
		if err := rows.Scan(&key, &qty); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stored[key] = qty
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if short := store.Shortfalls(changes, stored); len(short) > 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrInsufficientStock, strings.Join(short, ", "))
	}

	now := millis(time.Now())
	items := make([]domain.StockItem, 0, len(changes))
	for _, change := range changes {
		seed := change.Item
		var item domain.StockItem
		err := tx.QueryRowContext(ctx, `
			INSERT INTO inventory_items (key, display_name, quantity, unit_cost, unit_price, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (key)
			DO UPDATE SET quantity = inventory_items.quantity + excluded.quantity,
				unit_cost = CASE WHEN ? THEN excluded.unit_cost ELSE inventory_items.unit_cost END,
				unit_price = CASE WHEN ? THEN excluded.unit_price ELSE inventory_items.unit_price END,
				updated_at = excluded.updated_at
			RETURNING key, display_name, quantity, unit_cost, unit_price
		`, seed.Key, seed.DisplayName, change.Delta, seed.UnitCost, seed.UnitPrice, now, change.SetPrices, change.SetPrices,
		).Scan(&item.Key, &item.DisplayName, &item.Quantity, &item.UnitCost, &item.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("apply stock change %q: %w", seed.Key, err)
		}
		items = append(items, item)
	}

	if err := bumpVersion(ctx, tx); err != nil {
		return nil, err
	}
	return items, nil
}

func bumpVersion(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `UPDATE inventory_version SET version = version + 1 WHERE id = 1`)
	return err
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func bounds(from time.Time, to time.Time) (int64, int64) {
	lo := int64(minMillis)
	hi := int64(maxMillis)
	if !from.IsZero() {
		lo = millis(from)
	}
	if !to.IsZero() {
		hi = millis(to)
	}
	return lo, hi
}

const (
	minMillis = -1 << 62
	maxMillis = 1 << 62
)

func millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
