package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rl1809/stockledger/internal/core/domain"
)

const entryColumns = `seq, id, item_id, direction, quantity, reason, previous_stock, new_stock, performed_by, reference_id, created_at`

func (s *SQLStore) ApplyMovements(ctx context.Context, movements []domain.Movement) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		entries, err = s.applyMovements(ctx, tx, movements)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// applyMovements runs inside tx. Rows are touched in item ID order so that
// two transactions over overlapping items lock them in the same order.
func (s *SQLStore) applyMovements(ctx context.Context, tx *sql.Tx, movements []domain.Movement) ([]domain.LedgerEntry, error) {
	now := s.now()
	entries := make([]domain.LedgerEntry, 0, len(movements))

	for _, m := range domain.SortMovements(movements) {
		if err := m.Validate(); err != nil {
			return nil, err
		}

		var (
			result sql.Result
			err    error
		)
		if m.Direction == domain.DirectionOut {
			result, err = tx.ExecContext(ctx, `
				UPDATE items
				SET quantity = quantity - ?, updated_at = ?
				WHERE id = ? AND quantity >= ?`,
				m.Quantity, now, m.ItemID, m.Quantity,
			)
		} else {
			result, err = tx.ExecContext(ctx, `
				UPDATE items
				SET quantity = quantity + ?, updated_at = ?
				WHERE id = ?`,
				m.Quantity, now, m.ItemID,
			)
		}
		if err != nil {
			return nil, s.dialect.classify(fmt.Errorf("update item %s: %w", m.ItemID, err))
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}

		var current int
		err = tx.QueryRowContext(ctx, `SELECT quantity FROM items WHERE id = ?`, m.ItemID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("item", m.ItemID)
		}
		if err != nil {
			return nil, s.dialect.classify(fmt.Errorf("query item %s: %w", m.ItemID, err))
		}

		if rows == 0 {
			if m.Direction == domain.DirectionOut {
				return nil, &domain.InsufficientStockError{ItemID: m.ItemID, Available: current, Requested: m.Quantity}
			}
			return nil, fmt.Errorf("increment item %s: no rows updated", m.ItemID)
		}

		entry := domain.LedgerEntry{
			ID:          uuid.NewString(),
			ItemID:      m.ItemID,
			Direction:   m.Direction,
			Quantity:    m.Quantity,
			Reason:      m.Reason,
			NewStock:    current,
			PerformedBy: m.PerformedBy,
			ReferenceID: m.ReferenceID,
			CreatedAt:   now,
		}
		entry.PreviousStock = current - entry.Delta()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (id, item_id, direction, quantity, reason, previous_stock, new_stock, performed_by, reference_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.ItemID, entry.Direction, entry.Quantity, entry.Reason,
			entry.PreviousStock, entry.NewStock, entry.PerformedBy, nullString(entry.ReferenceID), entry.CreatedAt,
		)
		if err != nil {
			return nil, s.dialect.classify(fmt.Errorf("insert ledger entry: %w", err))
		}
		if entry.Seq, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("ledger entry seq: %w", err)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func (s *SQLStore) ListEntries(ctx context.Context, itemID string) ([]domain.LedgerEntry, error) {
	return s.queryEntries(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE item_id = ? ORDER BY seq`, itemID)
}

func (s *SQLStore) ListEntriesByReference(ctx context.Context, referenceID string) ([]domain.LedgerEntry, error) {
	return s.queryEntries(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE reference_id = ? ORDER BY seq`, referenceID)
}

func (s *SQLStore) queryEntries(ctx context.Context, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.dialect.classify(fmt.Errorf("query ledger entries: %w", err))
	}
	defer rows.Close()

	entries := []domain.LedgerEntry{}
	for rows.Next() {
		var (
			e   domain.LedgerEntry
			ref sql.NullString
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.ItemID, &e.Direction, &e.Quantity, &e.Reason,
			&e.PreviousStock, &e.NewStock, &e.PerformedBy, &ref, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.ReferenceID = ref.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
