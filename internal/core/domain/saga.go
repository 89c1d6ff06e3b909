package domain

import "time"

type SagaState string

const (
	SagaStateStart        SagaState = "START"
	SagaStateValidating   SagaState = "VALIDATING"
	SagaStateDecrementing SagaState = "DECREMENTING"
	SagaStateOrderCreated SagaState = "ORDER_CREATED"
	SagaStateCartCleared  SagaState = "CART_CLEARED"
	SagaStateDone         SagaState = "DONE"
	SagaStateAborted      SagaState = "ABORTED"
)

// Terminal reports whether no further transitions are expected.
func (s SagaState) Terminal() bool {
	return s == SagaStateDone || s == SagaStateAborted
}

// HasOrder reports whether the saga got past order creation.
func (s SagaState) HasOrder() bool {
	return s == SagaStateOrderCreated || s == SagaStateCartCleared || s == SagaStateDone
}

// Saga is the persisted record of one checkout attempt.
type Saga struct {
	ID             string    `json:"id"`
	MemberID       string    `json:"memberId"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	State          SagaState `json:"state"`
	OrderID        string    `json:"orderId,omitempty"`
	Failure        string    `json:"failure,omitempty"`
	Flagged        bool      `json:"flagged"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
