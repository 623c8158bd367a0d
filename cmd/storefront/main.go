package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/drstein77/storefront/internal/app"
)

func main() {
	// covers draining requests, closing checkout sessions and flushing storage
	const shutdownTimeout = 10 * time.Second

	// the root context is cancelled by the first SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := app.NewServer(ctx)
	go func() {
		<-ctx.Done()
		server.Logger().Info("received shutdown signal", zap.Error(context.Cause(ctx)))
		server.Shutdown(shutdownTimeout)
	}()

	// Serve returns once Shutdown has flushed everything
	server.Serve()
}
