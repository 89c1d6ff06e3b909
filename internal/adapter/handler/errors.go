package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rl1809/stockledger/internal/core/domain"
)

const (
	CodeValidation        = "validation_error"
	CodeNotFound          = "not_found"
	CodeInsufficientStock = "insufficient_stock"
	CodeEmptyCart         = "empty_cart"
	CodeConflict          = "concurrency_conflict"
	CodePartialFailure    = "persistence_partial_failure"
	CodeInternal          = "internal_error"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	ItemID    string `json:"itemId,omitempty"`
	Available *int   `json:"available,omitempty"`
	Requested *int   `json:"requested,omitempty"`
	SagaID    string `json:"sagaId,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// classify maps a service error to its HTTP status and response body.
func classify(err error) (int, ErrorResponse) {
	var (
		insufficient *domain.InsufficientStockError
		conflict     *domain.ConcurrencyConflictError
		partial      *domain.PersistencePartialFailureError
	)

	switch {
	case errors.As(err, &partial):
		return http.StatusInternalServerError, ErrorResponse{Error: CodePartialFailure, Message: err.Error(), SagaID: partial.SagaID}
	case errors.As(err, &insufficient):
		return http.StatusBadRequest, ErrorResponse{
			Error:     CodeInsufficientStock,
			Message:   err.Error(),
			ItemID:    insufficient.ItemID,
			Available: &insufficient.Available,
			Requested: &insufficient.Requested,
		}
	case errors.As(err, &conflict):
		return http.StatusConflict, ErrorResponse{Error: CodeConflict, Message: err.Error(), Retryable: true}
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest, ErrorResponse{Error: CodeEmptyCart, Message: err.Error()}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: CodeValidation, Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: CodeNotFound, Message: err.Error()}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: CodeInternal, Message: "internal error"}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, body)
}
