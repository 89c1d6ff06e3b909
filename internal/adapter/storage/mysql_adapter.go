package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/stockledger/internal/core/domain"
	"github.com/rl1809/stockledger/internal/port"
)

//go:embed schema/mysql.sql
var mysqlSchema string

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

const mysqlUpsertItem = `
	INSERT INTO items (` + itemColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		name = VALUES(name),
		low_stock_threshold = VALUES(low_stock_threshold),
		price = VALUES(price),
		supplier_id = VALUES(supplier_id),
		category_id = VALUES(category_id),
		updated_at = VALUES(updated_at)`

type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenMySQL connects to MySQL and applies the schema. The DSN is forced to
// parse times in UTC and to report matched rather than changed rows.
func OpenMySQL(ctx context.Context, dsn string, pool PoolOptions) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	if err := applyMySQLSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return NewMySQLAdapter(db), nil
}

// NewMySQLAdapter wraps an already configured pool.
func NewMySQLAdapter(db *sql.DB) *SQLStore {
	return newSQLStore(db, dialect{
		name:       "mysql",
		upsertItem: mysqlUpsertItem,
		classify:   classifyMySQLError,
	})
}

func applyMySQLSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(mysqlSchema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply mysql schema: %w", err)
		}
	}
	return nil
}

func classifyMySQLError(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}

	switch myErr.Number {
	case mysqlErrDuplicateEntry:
		return fmt.Errorf("%w: %v", port.ErrDuplicateKey, err)
	case mysqlErrLockWaitTimeout:
		return &domain.ConcurrencyConflictError{Resource: "mysql row lock", Err: err}
	case mysqlErrDeadlock:
		return &domain.ConcurrencyConflictError{Resource: "mysql deadlock", Err: err}
	}
	return err
}
