package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rl1809/stockledger/internal/core/domain"
)

const sagaColumns = `id, member_id, idempotency_key, state, order_id, failure, flagged, created_at, updated_at`

func (s *SQLStore) CreateSaga(ctx context.Context, saga domain.Saga) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkout_sagas (`+sagaColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		saga.ID, saga.MemberID, nullString(saga.IdempotencyKey), saga.State, saga.OrderID, saga.Failure,
		saga.Flagged, saga.CreatedAt, saga.UpdatedAt,
	)
	if err != nil {
		return s.dialect.classify(fmt.Errorf("insert saga: %w", err))
	}
	return nil
}

func (s *SQLStore) GetSaga(ctx context.Context, sagaID string) (domain.Saga, error) {
	sagas, err := s.querySagas(ctx, `SELECT `+sagaColumns+` FROM checkout_sagas WHERE id = ?`, sagaID)
	if err != nil {
		return domain.Saga{}, err
	}
	if len(sagas) == 0 {
		return domain.Saga{}, domain.NewNotFoundError("saga", sagaID)
	}
	return sagas[0], nil
}

func (s *SQLStore) GetSagaByIdempotencyKey(ctx context.Context, memberID, key string) (domain.Saga, bool, error) {
	sagas, err := s.querySagas(ctx, `
		SELECT `+sagaColumns+` FROM checkout_sagas
		WHERE member_id = ? AND idempotency_key = ?`, memberID, key)
	if err != nil {
		return domain.Saga{}, false, err
	}
	if len(sagas) == 0 {
		return domain.Saga{}, false, nil
	}
	return sagas[0], true, nil
}

func (s *SQLStore) UpdateSagaState(ctx context.Context, sagaID string, state domain.SagaState, orderID, failure string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE checkout_sagas
		SET state = ?, order_id = ?, failure = ?, updated_at = ?
		WHERE id = ?`,
		state, orderID, failure, s.now(), sagaID,
	)
	return s.expectOneSaga(result, err, sagaID, "update saga state")
}

func (s *SQLStore) ReleaseIdempotencyKey(ctx context.Context, sagaID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE checkout_sagas SET idempotency_key = NULL, updated_at = ?
		WHERE id = ?`, s.now(), sagaID)
	return s.expectOneSaga(result, err, sagaID, "release idempotency key")
}

func (s *SQLStore) FlagSaga(ctx context.Context, sagaID, reason string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE checkout_sagas SET flagged = ?, failure = ?, updated_at = ?
		WHERE id = ?`, true, reason, s.now(), sagaID)
	return s.expectOneSaga(result, err, sagaID, "flag saga")
}

func (s *SQLStore) ListStaleSagas(ctx context.Context, olderThan time.Time) ([]domain.Saga, error) {
	return s.querySagas(ctx, `
		SELECT `+sagaColumns+` FROM checkout_sagas
		WHERE state NOT IN (?, ?) AND flagged = ? AND updated_at < ?
		ORDER BY updated_at, id`,
		domain.SagaStateDone, domain.SagaStateAborted, false, olderThan.UTC())
}

func (s *SQLStore) ListFlaggedSagas(ctx context.Context) ([]domain.Saga, error) {
	return s.querySagas(ctx, `
		SELECT `+sagaColumns+` FROM checkout_sagas
		WHERE flagged = ? ORDER BY updated_at, id`, true)
}

func (s *SQLStore) expectOneSaga(result sql.Result, err error, sagaID, op string) error {
	if err != nil {
		return s.dialect.classify(fmt.Errorf("%s: %w", op, err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NewNotFoundError("saga", sagaID)
	}
	return nil
}

func (s *SQLStore) querySagas(ctx context.Context, query string, args ...any) ([]domain.Saga, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.dialect.classify(fmt.Errorf("query sagas: %w", err))
	}
	defer rows.Close()

	sagas := []domain.Saga{}
	for rows.Next() {
		var (
			saga domain.Saga
			key  sql.NullString
		)
		if err := rows.Scan(&saga.ID, &saga.MemberID, &key, &saga.State, &saga.OrderID, &saga.Failure,
			&saga.Flagged, &saga.CreatedAt, &saga.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan saga: %w", err)
		}
		saga.IdempotencyKey = key.String
		sagas = append(sagas, saga)
	}
	return sagas, rows.Err()
}
