package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/rl1809/stockledger/internal/core/domain"
	"github.com/rl1809/stockledger/internal/port"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

const sqliteUpsertItem = `
	INSERT INTO items (` + itemColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		name = excluded.name,
		low_stock_threshold = excluded.low_stock_threshold,
		price = excluded.price,
		supplier_id = excluded.supplier_id,
		category_id = excluded.category_id,
		updated_at = excluded.updated_at`

// OpenSQLite opens (or creates) the database file at path and applies the
// schema. SQLite has a single writer, so the pool is limited to one
// connection and transactions serialize.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	return newSQLStore(db, dialect{
		name:       "sqlite3",
		upsertItem: sqliteUpsertItem,
		classify:   classifySQLiteError,
	}), nil
}

func classifySQLiteError(err error) error {
	var liteErr sqlite3.Error
	if !errors.As(err, &liteErr) {
		return err
	}

	switch {
	case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %v", port.ErrDuplicateKey, err)
	case liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked:
		return &domain.ConcurrencyConflictError{Resource: "sqlite database lock", Err: err}
	}
	return err
}
