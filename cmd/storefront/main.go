// storefront/cmd/storefront/main.go

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/norun9/microservices-demo-ambient/storefront/cart"
	"github.com/norun9/microservices-demo-ambient/storefront/cartstore"
	"github.com/norun9/microservices-demo-ambient/storefront/catalog"
	"github.com/norun9/microservices-demo-ambient/storefront/config"
	"github.com/norun9/microservices-demo-ambient/storefront/services"
	"github.com/norun9/microservices-demo-ambient/storefront/telemetry"
	"golang.org/x/sync/errgroup"
)

const serviceName = "storefront"

func main() {
	cfg, err := config.Load("8080")
	log := telemetry.NewLogger(cfg.LogLevel, os.Stdout)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ----------------------------------------------------------------
	// 1) OpenTelemetry providers
	tp, err := telemetry.InitTracerProvider(ctx, serviceName, cfg)
	if err != nil {
		log.Fatalf("failed to initialize tracer provider: %v", err)
	}
	mp, err := telemetry.InitMeterProvider(ctx, serviceName, cfg)
	if err != nil {
		log.Fatalf("failed to initialize meter provider: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Error shutting down tracer provider: %v", err)
		}
		if err := mp.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Error shutting down meter provider: %v", err)
		}
	}()
	log.WithField("exporter", cfg.TraceExporter).Info("OpenTelemetry initialized")

	// ----------------------------------------------------------------
	// 2) Cart store (REDIS_ADDR selects Redis, otherwise memory)
	var store cartstore.ICartStore
	if cfg.RedisAddr != "" {
		log.Infof("Using RedisCartStore with address %s", cfg.RedisAddr)
		redisStore := cartstore.NewRedisCartStore(cfg.RedisAddr, cfg.CartTTL, log)
		defer redisStore.Close()
		store = redisStore
	} else {
		store = cartstore.NewLocalCartStore(log)
	}
	if err := store.Initialize(ctx); err != nil {
		log.Fatalf("failed to initialize cart store: %v", err)
	}

	// ----------------------------------------------------------------
	// 3) HTTP server
	api := catalog.NewClient(cfg.ProductsAPIAddr, nil, cfg.HTTPClientTimeout)
	sessions := cart.NewSessions(store, log)
	fe, err := services.NewFrontendServer(api, sessions, store, log)
	if err != nil {
		log.Fatalf("failed to create frontend server: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           fe.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("products_api", cfg.ProductsAPIAddr).Infof("storefront listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		fe.RunSweeper(gctx, cfg.SessionSweepInterval, cfg.SessionIdleTimeout)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Received shutdown signal, initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Errorf("storefront stopped: %v", err)
	}
	sessions.Flush()
}
