package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rl1809/stockledger/internal/core/domain"
	"github.com/rl1809/stockledger/internal/core/service"
)

type HTTPHandler struct {
	ledger   *service.LedgerService
	cart     *service.CartService
	checkout *service.CheckoutService
	orders   *service.OrderService
	monitor  *service.MonitorService
	health   func(r *http.Request) error
	logger   *zap.Logger
}

type AddCartItemRequest struct {
	MemberID string `json:"memberId"`
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type CheckoutRequest struct {
	IdempotencyKey string `json:"idempotencyKey"`
}

type AdjustStockRequest struct {
	Quantity    int    `json:"quantity"`
	Operation   string `json:"operation"`
	Reason      string `json:"reason"`
	PerformedBy string `json:"performedBy"`
	ReferenceID string `json:"referenceId"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}

func NewHTTPHandler(
	ledger *service.LedgerService,
	cart *service.CartService,
	checkout *service.CheckoutService,
	orders *service.OrderService,
	monitor *service.MonitorService,
	health func(r *http.Request) error,
	logger *zap.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		ledger:   ledger,
		cart:     cart,
		checkout: checkout,
		orders:   orders,
		monitor:  monitor,
		health:   health,
		logger:   logger,
	}
}

func (h *HTTPHandler) RegisterEndpoints(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	router.HandleFunc("/cart/items", h.AddCartItem).Methods(http.MethodPost)
	router.HandleFunc("/cart/{memberId}", h.GetCart).Methods(http.MethodGet)
	router.HandleFunc("/cart/{memberId}", h.ClearCart).Methods(http.MethodDelete)
	router.HandleFunc("/cart/{memberId}/items/{itemId}", h.UpdateCartItem).Methods(http.MethodPut)
	router.HandleFunc("/cart/{memberId}/items/{itemId}", h.RemoveCartItem).Methods(http.MethodDelete)

	router.HandleFunc("/checkout/{memberId}", h.Checkout).Methods(http.MethodPost)

	router.HandleFunc("/stock/low", h.LowStock).Methods(http.MethodGet)
	router.HandleFunc("/stock/{itemId}", h.AdjustStock).Methods(http.MethodPut)
	router.HandleFunc("/stock/{itemId}/ledger", h.Ledger).Methods(http.MethodGet)
	router.HandleFunc("/stock/{itemId}/reconcile", h.Reconcile).Methods(http.MethodGet)

	router.HandleFunc("/orders/{orderId}", h.GetOrder).Methods(http.MethodGet)
	router.HandleFunc("/orders/{orderId}/status", h.UpdateOrderStatus).Methods(http.MethodPut)
	router.HandleFunc("/members/{memberId}/orders", h.ListMemberOrders).Methods(http.MethodGet)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req AddCartItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	cart, err := h.cart.AddItem(r.Context(), req.MemberID, req.ItemID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cart)
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.cart.Get(r.Context(), mux.Vars(r)["memberId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *HTTPHandler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req UpdateCartItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	cart, err := h.cart.UpdateItem(r.Context(), vars["memberId"], vars["itemId"], req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *HTTPHandler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	cart, err := h.cart.RemoveItem(r.Context(), vars["memberId"], vars["itemId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.cart.Clear(r.Context(), mux.Vars(r)["memberId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// Checkout takes the idempotency key from the Idempotency-Key header or,
// failing that, from an optional JSON body.
func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		var req CheckoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: CodeValidation, Message: "invalid request body"})
			return
		}
		key = req.IdempotencyKey
	}

	result, err := h.checkout.Checkout(r.Context(), mux.Vars(r)["memberId"], key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, result.Order)
}

func (h *HTTPHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemId"]

	var req AdjustStockRequest
	if !h.decode(w, r, &req) {
		return
	}

	reason := domain.Reason(strings.ToUpper(req.Reason))
	if reason == "" {
		reason = domain.ReasonAdjustment
	}
	performedBy := req.PerformedBy
	if performedBy == "" {
		performedBy = "api"
	}

	var err error
	switch strings.ToLower(req.Operation) {
	case "increment":
		_, err = h.ledger.Increment(r.Context(), itemID, req.Quantity, reason, performedBy, req.ReferenceID)
	case "decrement":
		_, err = h.ledger.Decrement(r.Context(), itemID, req.Quantity, reason, performedBy, req.ReferenceID)
	default:
		err = domain.NewValidationError("operation", "must be increment or decrement")
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.ledger.Item(r.Context(), itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *HTTPHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.monitor.LowStock(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *HTTPHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.Entries(r.Context(), mux.Vars(r)["itemId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *HTTPHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.Reconcile(r.Context(), mux.Vars(r)["itemId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), mux.Vars(r)["orderId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) ListMemberOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByMember(r.Context(), mux.Vars(r)["memberId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrderStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), mux.Vars(r)["orderId"], domain.OrderStatus(strings.ToLower(req.Status)))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var syntaxErr *json.SyntaxError
		msg := "invalid request body"
		if errors.As(err, &syntaxErr) || strings.HasPrefix(err.Error(), "json: unknown field") {
			msg = err.Error()
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: CodeValidation, Message: msg})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
