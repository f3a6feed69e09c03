// storefront/telemetry/metrics.go

package telemetry

import (
	"context"
	"time"

	"github.com/norun9/microservices-demo-ambient/storefront/config"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider initializes the global MeterProvider. Metrics are pushed
// to the collector every 10s when the OTLP exporter is selected.
func InitMeterProvider(ctx context.Context, serviceName string, cfg config.Config) (*sdkmetric.MeterProvider, error) {
	res, err := newResource(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.TraceExporter == config.ExporterOTLP {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create OTLP metric exporter")
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second)),
		))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// ShopMetrics are the counters recorded by the storefront handlers.
type ShopMetrics struct {
	ProductsAdded   metric.Int64Counter
	ProductsRemoved metric.Int64Counter
	FetchFailures   metric.Int64Counter
}

// NewShopMetrics creates the counters on meter.
func NewShopMetrics(meter metric.Meter) (*ShopMetrics, error) {
	added, err := meter.Int64Counter("app.cart.products_added",
		metric.WithDescription("Products added to a cart"))
	if err != nil {
		return nil, errors.Wrap(err, "products_added counter")
	}
	removed, err := meter.Int64Counter("app.cart.products_removed",
		metric.WithDescription("Remove requests handled"))
	if err != nil {
		return nil, errors.Wrap(err, "products_removed counter")
	}
	failures, err := meter.Int64Counter("app.catalog.fetch_failures",
		metric.WithDescription("Failed product list fetches"))
	if err != nil {
		return nil, errors.Wrap(err, "fetch_failures counter")
	}
	return &ShopMetrics{ProductsAdded: added, ProductsRemoved: removed, FetchFailures: failures}, nil
}
