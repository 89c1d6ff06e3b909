package handler

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stockledger/internal/core/domain"
	"github.com/rl1809/stockledger/internal/core/service"
)

const grpcServiceName = "stockledger.v1.StockLedger"

type CheckoutRPCRequest struct {
	MemberID       string `json:"memberId"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type CheckoutRPCResponse struct {
	Order    domain.Order `json:"order"`
	Replayed bool         `json:"replayed"`
}

type AdjustStockRPCRequest struct {
	ItemID      string `json:"itemId"`
	Quantity    int    `json:"quantity"`
	Operation   string `json:"operation"`
	Reason      string `json:"reason"`
	PerformedBy string `json:"performedBy"`
	ReferenceID string `json:"referenceId"`
}

type AdjustStockRPCResponse struct {
	Entry domain.LedgerEntry `json:"entry"`
}

type LowStockRPCRequest struct{}

type LowStockRPCResponse struct {
	Items []domain.Item `json:"items"`
}

// StockLedgerServer is the gRPC surface of the service.
type StockLedgerServer interface {
	Checkout(ctx context.Context, req *CheckoutRPCRequest) (*CheckoutRPCResponse, error)
	AdjustStock(ctx context.Context, req *AdjustStockRPCRequest) (*AdjustStockRPCResponse, error)
	LowStock(ctx context.Context, req *LowStockRPCRequest) (*LowStockRPCResponse, error)
}

var stockLedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*StockLedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Checkout", Handler: unaryHandler("Checkout", StockLedgerServer.Checkout)},
		{MethodName: "AdjustStock", Handler: unaryHandler("AdjustStock", StockLedgerServer.AdjustStock)},
		{MethodName: "LowStock", Handler: unaryHandler("LowStock", StockLedgerServer.LowStock)},
	},
	Streams: []grpc.StreamDesc{},
}

func unaryHandler[Req, Resp any](method string, call func(StockLedgerServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + grpcServiceName + "/" + method

	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StockLedgerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(StockLedgerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// NewGRPCServer returns a server using the JSON codec with the handler registered.
func NewGRPCServer(h *GRPCHandler, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&stockLedgerServiceDesc, h)
	return srv
}

type GRPCHandler struct {
	ledger   *service.LedgerService
	checkout *service.CheckoutService
	monitor  *service.MonitorService
	logger   *zap.Logger
}

func NewGRPCHandler(ledger *service.LedgerService, checkout *service.CheckoutService, monitor *service.MonitorService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{ledger: ledger, checkout: checkout, monitor: monitor, logger: logger}
}

func (h *GRPCHandler) Checkout(ctx context.Context, req *CheckoutRPCRequest) (*CheckoutRPCResponse, error) {
	result, err := h.checkout.Checkout(ctx, req.MemberID, req.IdempotencyKey)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &CheckoutRPCResponse{Order: result.Order, Replayed: result.Replayed}, nil
}

func (h *GRPCHandler) AdjustStock(ctx context.Context, req *AdjustStockRPCRequest) (*AdjustStockRPCResponse, error) {
	reason := domain.Reason(strings.ToUpper(req.Reason))
	if reason == "" {
		reason = domain.ReasonAdjustment
	}
	performedBy := req.PerformedBy
	if performedBy == "" {
		performedBy = "grpc"
	}

	var (
		entry domain.LedgerEntry
		err   error
	)
	switch strings.ToLower(req.Operation) {
	case "increment":
		entry, err = h.ledger.Increment(ctx, req.ItemID, req.Quantity, reason, performedBy, req.ReferenceID)
	case "decrement":
		entry, err = h.ledger.Decrement(ctx, req.ItemID, req.Quantity, reason, performedBy, req.ReferenceID)
	default:
		err = domain.NewValidationError("operation", "must be increment or decrement")
	}
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &AdjustStockRPCResponse{Entry: entry}, nil
}

func (h *GRPCHandler) LowStock(ctx context.Context, _ *LowStockRPCRequest) (*LowStockRPCResponse, error) {
	items, err := h.monitor.LowStock(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &LowStockRPCResponse{Items: items}, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	var (
		insufficient *domain.InsufficientStockError
		conflict     *domain.ConcurrencyConflictError
		partial      *domain.PersistencePartialFailureError
	)

	switch {
	case errors.As(err, &partial):
		h.logger.Error("grpc request failed", zap.Error(err))
		return status.Error(codes.DataLoss, err.Error())
	case errors.As(err, &insufficient), errors.Is(err, domain.ErrEmptyCart):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &conflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	}

	h.logger.Error("grpc request failed", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}
