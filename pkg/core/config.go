package core

import "github.com/eteran/s3mock/pkg/metrics"

type Config struct {
	Region string

	// Metrics is optional. When set, requests are instrumented and the
	// registry is served on GET /metrics.
	Metrics *metrics.Metrics
}

type ConfigOption func(*Config)

func WithRegion(region string) ConfigOption {
	return func(cfg *Config) {
		cfg.Region = region
	}
}

func WithMetrics(m *metrics.Metrics) ConfigOption {
	return func(cfg *Config) {
		cfg.Metrics = m
	}
}

func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
