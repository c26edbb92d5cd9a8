// Package monitoring wires an OpenTelemetry MeterProvider to a Prometheus
// exporter and exposes the instrument sets each subsystem records against.
package monitoring

import (
	"context"
	"fmt"
	"net/http"

	"github.com/learnloop/cortex/pkg/logger"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Service owns the meter provider and every subsystem's instrument set.
type Service struct {
	meter       metric.Meter
	exporter    *prometheus.Exporter
	provider    *sdkmetric.MeterProvider
	registry    *prom.Registry
	config      *Config
	initialized bool

	Provider     *ProviderMetrics
	Chat         *ChatMetrics
	Memory       *MemoryMetrics
	Policy       *PolicyMetrics
	Distillation *DistillationMetrics
}

func newDisabledService(cfg *Config) *Service {
	meter := noop.NewMeterProvider().Meter("cortex")
	return &Service{
		config:       cfg,
		meter:        meter,
		initialized:  false,
		Provider:     newProviderMetrics(meter),
		Chat:         newChatMetrics(meter),
		Memory:       newMemoryMetrics(meter),
		Policy:       newPolicyMetrics(meter),
		Distillation: newDistillationMetrics(meter),
	}
}

// New creates a monitoring Service backed by a Prometheus exporter. When
// cfg.Enabled is false, every instrument is a no-op.
func New(ctx context.Context, cfg *Config) (*Service, error) {
	log := logger.FromContext(ctx)
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		log.Debug("monitoring disabled, using no-op meter")
		return newDisabledService(cfg), nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("initialize prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("cortex")
	service := &Service{
		meter:       meter,
		exporter:    exporter,
		provider:    provider,
		registry:    registry,
		config:      cfg,
		initialized: true,

		Provider:     newProviderMetrics(meter),
		Chat:         newChatMetrics(meter),
		Memory:       newMemoryMetrics(meter),
		Policy:       newPolicyMetrics(meter),
		Distillation: newDistillationMetrics(meter),
	}
	log.Info("monitoring service initialized")
	return service, nil
}

// Meter returns the OpenTelemetry meter for ad hoc instrumentation.
func (s *Service) Meter() metric.Meter {
	return s.meter
}

// ExporterHandler returns an HTTP handler serving Prometheus exposition
// format at the configured path.
func (s *Service) ExporterHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.initialized {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("monitoring service not initialized"))
			return
		}
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

// Shutdown flushes and stops the meter provider.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.provider != nil {
		return s.provider.Shutdown(ctx)
	}
	return nil
}
