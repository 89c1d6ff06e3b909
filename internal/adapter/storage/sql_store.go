package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/stockledger/internal/core/domain"
)

// dialect carries the statements and error mapping that differ between
// MySQL and SQLite. Everything else is shared SQL.
type dialect struct {
	name       string
	upsertItem string
	classify   func(error) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements port.DatabaseRepository on MySQL or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func newSQLStore(db *sql.DB, d dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: d,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// DB returns the underlying connection pool.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect returns "mysql" or "sqlite3".
func (s *SQLStore) Dialect() string {
	return s.dialect.name
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.dialect.classify(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return s.dialect.classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

const itemColumns = `id, name, quantity, initial_quantity, low_stock_threshold, price, supplier_id, category_id, created_at, updated_at`

// itemSelect reads the latest ledger seq in the same statement as the
// quantity, so both describe one snapshot.
const itemSelect = itemColumns + `, (SELECT COALESCE(MAX(seq), 0) FROM ledger_entries WHERE ledger_entries.item_id = items.id)`

func scanItem(row interface{ Scan(...any) error }) (domain.Item, error) {
	var item domain.Item
	err := row.Scan(&item.ID, &item.Name, &item.Quantity, &item.InitialQuantity, &item.LowStockThreshold,
		&item.Price, &item.SupplierID, &item.CategoryID, &item.CreatedAt, &item.UpdatedAt, &item.LastSeq)
	return item, err
}

func (s *SQLStore) GetItem(ctx context.Context, itemID string) (domain.Item, error) {
	return s.getItem(ctx, s.db, itemID)
}

func (s *SQLStore) getItem(ctx context.Context, q querier, itemID string) (domain.Item, error) {
	item, err := scanItem(q.QueryRowContext(ctx, `SELECT `+itemSelect+` FROM items WHERE id = ?`, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, domain.NewNotFoundError("item", itemID)
	}
	if err != nil {
		return domain.Item{}, s.dialect.classify(fmt.Errorf("query item: %w", err))
	}
	return item, nil
}

func (s *SQLStore) GetItems(ctx context.Context, itemIDs []string) (map[string]domain.Item, error) {
	items := make(map[string]domain.Item, len(itemIDs))
	if len(itemIDs) == 0 {
		return items, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(itemIDs)), ",")
	args := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		args[i] = id
	}

	list, err := s.queryItems(ctx, `SELECT `+itemSelect+` FROM items WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, item := range list {
		items[item.ID] = item
	}
	return items, nil
}

func (s *SQLStore) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.queryItems(ctx, `SELECT `+itemSelect+` FROM items ORDER BY id`)
}

func (s *SQLStore) ListLowStock(ctx context.Context) ([]domain.Item, error) {
	return s.queryItems(ctx, `SELECT `+itemSelect+` FROM items WHERE quantity <= low_stock_threshold ORDER BY id`)
}

func (s *SQLStore) queryItems(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.dialect.classify(fmt.Errorf("query items: %w", err))
	}
	defer rows.Close()

	items := []domain.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLStore) UpsertItem(ctx context.Context, item domain.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}

	now := s.now()
	_, err := s.db.ExecContext(ctx, s.dialect.upsertItem,
		item.ID, item.Name, item.Quantity, item.Quantity, item.LowStockThreshold, item.Price,
		item.SupplierID, item.CategoryID, now, now,
	)
	if err != nil {
		return s.dialect.classify(fmt.Errorf("upsert item: %w", err))
	}
	return nil
}
