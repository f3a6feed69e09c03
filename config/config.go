// storefront/config/config.go

// Package config reads service settings from the environment.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
)

// Trace exporters accepted by TRACE_EXPORTER.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config holds the settings shared by the storefront binaries.
type Config struct {
	ListenAddr string
	Port       string

	ProductsAPIAddr   string
	HTTPClientTimeout time.Duration

	RedisAddr string
	CartTTL   time.Duration

	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration

	LogLevel      string
	TraceExporter string
	OTLPEndpoint  string

	MockEnvironment string
}

// Load reads the environment. defaultPort is used when PORT is unset.
func Load(defaultPort string) (Config, error) {
	cfg := Config{
		ListenAddr:      os.Getenv("LISTEN_ADDR"),
		Port:            getEnv("PORT", defaultPort),
		ProductsAPIAddr: getEnv("PRODUCTS_API_ADDR", "http://localhost:3000"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		TraceExporter:   getEnv("TRACE_EXPORTER", ExporterNone),
		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		MockEnvironment: getEnv("MOCK_ENVIRONMENT", "development"),
	}

	var err error
	if cfg.HTTPClientTimeout, err = getEnvDuration("HTTP_CLIENT_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CartTTL, err = getEnvDuration("CART_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.SessionIdleTimeout, err = getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SessionSweepInterval, err = getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SessionIdleTimeout <= 0 || cfg.SessionSweepInterval <= 0 {
		return Config{}, errors.New("SESSION_IDLE_TIMEOUT and SESSION_SWEEP_INTERVAL must be positive")
	}

	switch cfg.TraceExporter {
	case ExporterNone, ExporterStdout, ExporterOTLP:
	default:
		return Config{}, errors.Errorf("unknown TRACE_EXPORTER %q", cfg.TraceExporter)
	}
	return cfg, nil
}

// Addr is the listen address built from LISTEN_ADDR and PORT.
func (c Config) Addr() string {
	return c.ListenAddr + ":" + c.Port
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return d, nil
}
