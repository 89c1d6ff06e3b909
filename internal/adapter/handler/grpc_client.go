package handler

import (
	"context"

	"google.golang.org/grpc"
)

// GRPCClient calls the StockLedger service over an existing connection.
type GRPCClient struct {
	conn grpc.ClientConnInterface
}

func NewGRPCClient(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

func (c *GRPCClient) Checkout(ctx context.Context, req *CheckoutRPCRequest) (*CheckoutRPCResponse, error) {
	out := new(CheckoutRPCResponse)
	return out, c.invoke(ctx, "Checkout", req, out)
}

func (c *GRPCClient) AdjustStock(ctx context.Context, req *AdjustStockRPCRequest) (*AdjustStockRPCResponse, error) {
	out := new(AdjustStockRPCResponse)
	return out, c.invoke(ctx, "AdjustStock", req, out)
}

func (c *GRPCClient) LowStock(ctx context.Context) (*LowStockRPCResponse, error) {
	out := new(LowStockRPCResponse)
	return out, c.invoke(ctx, "LowStock", &LowStockRPCRequest{}, out)
}

func (c *GRPCClient) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, "/"+grpcServiceName+"/"+method, in, out, grpc.ForceCodec(jsonCodec{}))
}
