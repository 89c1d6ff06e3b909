package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/stockledger/internal/adapter/handler"
)

const shutdownTimeout = 5 * time.Second

// Serve runs the HTTP and gRPC servers, the monitor workers and the periodic
// sweep and recovery passes until ctx is cancelled or a server fails.
func (c *Container) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.Monitor.Start()

	httpHandler := handler.NewHTTPHandler(c.Ledger, c.Cart, c.Checkout, c.Orders, c.Monitor,
		func(r *http.Request) error { return c.Health(r.Context()) }, c.Logger)
	router := mux.NewRouter()
	httpHandler.RegisterEndpoints(router)

	httpServer := &http.Server{
		Addr:              c.Config.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	grpcServer := handler.NewGRPCServer(handler.NewGRPCHandler(c.Ledger, c.Checkout, c.Monitor, c.Logger))

	lis, err := net.Listen("tcp", c.Config.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Logger.Info("gRPC server listening", zap.String("addr", c.Config.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Logger.Info("HTTP server listening", zap.String("addr", c.Config.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		c.every(ctx, "sweep", c.Config.Monitor.SweepInterval, func(ctx context.Context) error {
			_, err := c.Monitor.Sweep(ctx)
			return err
		})
	}()
	go func() {
		defer wg.Done()
		c.every(ctx, "recovery", c.Config.Checkout.RecoveryInterval, func(ctx context.Context) error {
			_, err := c.Checkout.Recover(ctx, c.Config.Checkout.RecoveryStaleAfter)
			return err
		})
	}()

	var runErr error
	select {
	case <-ctx.Done():
		c.Logger.Info("shutting down")
	case runErr = <-errCh:
		c.Logger.Error("server failed, shutting down", zap.Error(runErr))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		c.Logger.Warn("HTTP shutdown", zap.Error(err))
	}
	c.Logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	c.Logger.Info("gRPC server stopped")

	wg.Wait()

	c.Monitor.Close()
	c.Logger.Info("monitor workers stopped")

	return runErr
}

// every runs fn on each tick of interval until ctx is done. A non-positive
// interval disables the job.
func (c *Container) every(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) error) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, interval)
			if err := fn(runCtx); err != nil && ctx.Err() == nil {
				c.Logger.Error("periodic job failed", zap.String("job", name), zap.Error(err))
			}
			cancel()
		}
	}
}
