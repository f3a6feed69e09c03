// storefront/cmd/mockapi/main.go

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/norun9/microservices-demo-ambient/storefront/config"
	"github.com/norun9/microservices-demo-ambient/storefront/mockserver"
	"github.com/norun9/microservices-demo-ambient/storefront/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"golang.org/x/sync/errgroup"
)

const serviceName = "mockapi"

func main() {
	cfg, err := config.Load("3000")
	log := telemetry.NewLogger(cfg.LogLevel, os.Stdout)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.InitTracerProvider(ctx, serviceName, cfg)
	if err != nil {
		log.Fatalf("failed to initialize tracer provider: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warnf("Error shutting down tracer provider: %v", err)
		}
	}()

	api, err := mockserver.New(mockserver.Options{
		Environment: cfg.MockEnvironment,
		Seed:        uint64(time.Now().UnixNano()),
	})
	if err != nil {
		log.Fatalf("failed to create mock server: %v", err)
	}
	log.WithField("products", len(api.Products())).Infof("mock API seeded (%s)", cfg.MockEnvironment)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           otelmux.Middleware(serviceName)(api.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("mock products API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Errorf("mock API stopped: %v", err)
	}
}
