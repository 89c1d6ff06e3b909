package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/stockledger/internal/core/domain"
)

const orderColumns = `id, member_id, saga_id, total_price, status, created_at, updated_at`

func (s *SQLStore) CreateOrder(ctx context.Context, order domain.Order) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			order.ID, order.MemberID, order.SagaID, order.TotalPrice, order.Status,
			order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			return s.dialect.classify(fmt.Errorf("insert order: %w", err))
		}

		for i, line := range order.Lines {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_lines (order_id, line_no, item_id, name, price, quantity)
				VALUES (?, ?, ?, ?, ?, ?)`,
				order.ID, i, line.ItemID, line.Name, line.Price, line.Quantity,
			)
			if err != nil {
				return s.dialect.classify(fmt.Errorf("insert order line: %w", err))
			}
		}
		return nil
	})
}

func (s *SQLStore) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.getOrder(ctx, s.db, orderID)
}

func (s *SQLStore) getOrder(ctx context.Context, q querier, orderID string) (domain.Order, error) {
	orders, err := s.queryOrders(ctx, q, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, domain.NewNotFoundError("order", orderID)
	}
	return orders[0], nil
}

func (s *SQLStore) GetOrderBySaga(ctx context.Context, sagaID string) (domain.Order, bool, error) {
	orders, err := s.queryOrders(ctx, s.db, `SELECT `+orderColumns+` FROM orders WHERE saga_id = ?`, sagaID)
	if err != nil {
		return domain.Order{}, false, err
	}
	if len(orders) == 0 {
		return domain.Order{}, false, nil
	}
	return orders[0], true, nil
}

func (s *SQLStore) ListOrdersByMember(ctx context.Context, memberID string) ([]domain.Order, error) {
	return s.queryOrders(ctx, s.db, `SELECT `+orderColumns+` FROM orders WHERE member_id = ? ORDER BY created_at, id`, memberID)
}

func (s *SQLStore) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error) {
	var order domain.Order
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.transitionOrder(ctx, tx, orderID, status); err != nil {
			return err
		}
		var err error
		order, err = s.getOrder(ctx, tx, orderID)
		return err
	})
	return order, err
}

func (s *SQLStore) CancelOrder(ctx context.Context, orderID string, restock []domain.Movement) (domain.Order, []domain.LedgerEntry, error) {
	var (
		order   domain.Order
		entries []domain.LedgerEntry
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.transitionOrder(ctx, tx, orderID, domain.OrderStatusCancelled); err != nil {
			return err
		}

		var err error
		if entries, err = s.applyMovements(ctx, tx, restock); err != nil {
			return err
		}

		order, err = s.getOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return domain.Order{}, nil, err
	}
	return order, entries, nil
}

// transitionOrder moves a pending order to status; any other current status
// is rejected.
func (s *SQLStore) transitionOrder(ctx context.Context, tx *sql.Tx, orderID string, status domain.OrderStatus) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		status, s.now(), orderID, domain.OrderStatusPending,
	)
	if err != nil {
		return s.dialect.classify(fmt.Errorf("update order status: %w", err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var current domain.OrderStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, orderID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFoundError("order", orderID)
	}
	if err != nil {
		return s.dialect.classify(fmt.Errorf("query order status: %w", err))
	}
	return domain.NewValidationError("status", fmt.Sprintf("order is %s and cannot become %s", current, status))
}

// queryOrders reads the order rows completely before loading lines, so it is
// safe on a pool limited to a single connection.
func (s *SQLStore) queryOrders(ctx context.Context, q querier, query string, args ...any) ([]domain.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.dialect.classify(fmt.Errorf("query orders: %w", err))
	}

	orders := []domain.Order{}
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.MemberID, &o.SagaID, &o.TotalPrice, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range orders {
		lines, err := s.queryOrderLines(ctx, q, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

func (s *SQLStore) queryOrderLines(ctx context.Context, q querier, orderID string) ([]domain.OrderLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT item_id, name, price, quantity
		FROM order_lines WHERE order_id = ? ORDER BY line_no`, orderID)
	if err != nil {
		return nil, s.dialect.classify(fmt.Errorf("query order lines: %w", err))
	}
	defer rows.Close()

	lines := []domain.OrderLine{}
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ItemID, &l.Name, &l.Price, &l.Quantity); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
