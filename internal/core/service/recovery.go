package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stockledger/internal/core/domain"
)

type RecoveryReport struct {
	Scanned   int                                      `json:"scanned"`
	Completed []string                                 `json:"completed"`
	Aborted   []string                                 `json:"aborted"`
	Flagged   []*domain.PersistencePartialFailureError `json:"-"`
}

// FlaggedSagas lists the IDs of sagas that need manual reconciliation.
func (r RecoveryReport) FlaggedSagas() []string {
	ids := make([]string, len(r.Flagged))
	for i, f := range r.Flagged {
		ids[i] = f.SagaID
	}
	return ids
}

// Recover settles sagas that stopped moving for longer than staleAfter.
// Stock that was committed without an order is never re-applied or given
// back automatically: the saga is flagged for an operator instead.
func (s *CheckoutService) Recover(ctx context.Context, staleAfter time.Duration) (RecoveryReport, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.recover")
	defer span.End()

	report := RecoveryReport{Completed: []string{}, Aborted: []string{}}

	sagas, err := s.db.ListStaleSagas(ctx, s.now().Add(-staleAfter))
	if err != nil {
		return report, fmt.Errorf("list stale sagas: %w", err)
	}
	report.Scanned = len(sagas)

	for _, saga := range sagas {
		log := s.logger.With(zap.String("saga_id", saga.ID), zap.String("member_id", saga.MemberID), zap.String("state", string(saga.State)))

		order, found, err := s.db.GetOrderBySaga(ctx, saga.ID)
		if err != nil {
			return report, fmt.Errorf("saga %s: %w", saga.ID, err)
		}
		if found {
			if err := s.db.UpdateSagaState(ctx, saga.ID, domain.SagaStateDone, order.ID, saga.Failure); err != nil {
				return report, fmt.Errorf("saga %s: %w", saga.ID, err)
			}
			log.Info("recovered saga marked done", zap.String("order_id", order.ID))
			report.Completed = append(report.Completed, saga.ID)
			continue
		}

		entries, err := s.db.ListEntriesByReference(ctx, saga.ID)
		if err != nil {
			return report, fmt.Errorf("saga %s: %w", saga.ID, err)
		}
		if len(entries) == 0 {
			if err := s.db.UpdateSagaState(ctx, saga.ID, domain.SagaStateAborted, "", "abandoned before stock was committed"); err != nil {
				return report, fmt.Errorf("saga %s: %w", saga.ID, err)
			}
			log.Info("recovered saga aborted")
			report.Aborted = append(report.Aborted, saga.ID)
			continue
		}

		partial := &domain.PersistencePartialFailureError{
			SagaID:   saga.ID,
			MemberID: saga.MemberID,
			Entries:  entries,
			Err:      errors.New("order missing after stock was committed"),
		}
		if err := s.db.FlagSaga(ctx, saga.ID, partial.Error()); err != nil {
			return report, fmt.Errorf("saga %s: %w", saga.ID, err)
		}
		logPartial(log, partial)
		report.Flagged = append(report.Flagged, partial)
	}

	return report, nil
}
