package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"stocktrack/internal/domain"
	"stocktrack/internal/store"
	"stocktrack/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO inventory_version (id, scope, version)
		VALUES (1, $1, 0)
		ON CONFLICT (id) DO NOTHING
	`, xid.New("pg")); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed inventory version: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveReceipt(ctx context.Context, receipt domain.Receipt, changes []store.StockChange) (string, []domain.StockItem, error) {
	if receipt.ID == "" {
		receipt.ID = xid.New("rcpt")
	}
	now := time.Now().UTC()
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = now
	}
	if receipt.UpdatedAt.IsZero() {
		receipt.UpdatedAt = receipt.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipts (id, company, receipt_date, total, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, receipt.ID, receipt.Company, receipt.Date.UTC(), receipt.Total, receipt.CreatedAt, receipt.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE receipts
		SET company = $2, receipt_date = $3, total = $4, updated_at = $5
		WHERE id = $1 AND updated_at = $6
	`, receipt.ID, receipt.Company, receipt.Date.UTC(), receipt.Total, receipt.UpdatedAt, prevUpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM receipts WHERE id = $1`, receipt.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, store.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM receipt_lines WHERE receipt_id = $1`, receipt.ID); err != nil {
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
	var receipt domain.Receipt
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company, receipt_date, total, created_at, updated_at
		FROM receipts
		WHERE id = $1
	`, id).Scan(&receipt.ID, &receipt.Company, &receipt.Date, &receipt.Total, &receipt.CreatedAt, &receipt.UpdatedAt)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company, receipt_date, total, created_at, updated_at
		FROM receipts
		WHERE ($1::timestamptz IS NULL OR receipt_date >= $1)
		  AND ($2::timestamptz IS NULL OR receipt_date < $2)
		ORDER BY receipt_date, created_at, id
	`, nullBound(from), nullBound(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := make([]domain.Receipt, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		var r domain.Receipt
		if err := rows.Scan(&r.ID, &r.Company, &r.Date, &r.Total, &r.CreatedAt, &r.UpdatedAt); err != nil {
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, customer_name, sale_date, total_amount, total_profit, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, sale.ID, sale.CustomerName, sale.Date.UTC(), sale.TotalAmount, sale.TotalProfit, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return "", nil, store.ErrConflict
		}
		return "", nil, err
	}

	for i, line := range sale.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, line_no, item_key, name, quantity, unit_price, unit_cost, amount, profit)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_name, sale_date, total_amount, total_profit, created_at
		FROM sales
		WHERE ($1::timestamptz IS NULL OR sale_date >= $1)
		  AND ($2::timestamptz IS NULL OR sale_date < $2)
		ORDER BY sale_date, created_at, id
	`, nullBound(from), nullBound(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SettledSale, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		var sale domain.SettledSale
		if err := rows.Scan(&sale.ID, &sale.CustomerName, &sale.Date, &sale.TotalAmount, &sale.TotalProfit, &sale.CreatedAt); err != nil {
			return nil, err
		}
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
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, ids)
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
		ORDER BY position
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
		WHERE key = ANY($1)
		ORDER BY position
	`, keys)
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
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var item domain.StockItem
	err = tx.QueryRowContext(ctx, `
		SELECT key, display_name, quantity, unit_cost, unit_price
		FROM inventory_items
		WHERE key = $1
		FOR UPDATE
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
		SET quantity = $2, unit_cost = $3, unit_price = $4, updated_at = now()
		WHERE key = $1
	`, item.Key, item.Quantity, item.UnitCost, item.UnitPrice); err != nil {
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
		WHERE receipt_id = ANY($1)
		ORDER BY receipt_id, line_no
	`, ids)
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

func insertReceiptLines(ctx context.Context, tx *sql.Tx, receipt domain.Receipt) error {
	for i, line := range receipt.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO receipt_lines (receipt_id, line_no, name, quantity, unit_cost)
			VALUES ($1,$2,$3,$4,$5)
		`, receipt.ID, i, line.Name, line.Quantity, line.UnitCost)
		if err != nil {
			return err
		}
	}
	return nil
}

// applyChanges locks the touched rows, re-checks required quantities and
// moves each row by its delta. Rows are locked in key order.
func applyChanges(ctx context.Context, tx *sql.Tx, changes []store.StockChange) ([]domain.StockItem, error) {
	if len(changes) == 0 {
		return nil, nil
	}

	keys := make([]string, len(changes))
	for i, change := range changes {
		keys[i] = change.Item.Key
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT key, quantity
		FROM inventory_items
		WHERE key = ANY($1)
		ORDER BY key
		FOR UPDATE
	`, keys)
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

	items := make([]domain.StockItem, 0, len(changes))
	for _, change := range changes {
		seed := change.Item
		var item domain.StockItem
		err := tx.QueryRowContext(ctx, `
			INSERT INTO inventory_items (key, display_name, quantity, unit_cost, unit_price, updated_at)
			VALUES ($1,$2,$3,$4,$5,now())
			ON CONFLICT (key)
			DO UPDATE SET quantity = inventory_items.quantity + EXCLUDED.quantity,
				unit_cost = CASE WHEN $6::boolean THEN EXCLUDED.unit_cost ELSE inventory_items.unit_cost END,
				unit_price = CASE WHEN $6::boolean THEN EXCLUDED.unit_price ELSE inventory_items.unit_price END,
				updated_at = now()
			RETURNING key, display_name, quantity, unit_cost, unit_price
		`, seed.Key, seed.DisplayName, change.Delta, seed.UnitCost, seed.UnitPrice, change.SetPrices,
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullBound(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val.UTC()
}
