package metrics

import "github.com/prometheus/client_golang/prometheus"

// ioCollector tracks store and queue calls made through the resilience
// executor.
type ioCollector struct {
	service      string
	retries      *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func newIOCollector(service string) *ioCollector {
	return &ioCollector{
		service: service,
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "io",
				Name:      "retries_total",
				Help:      "Retried store and queue calls by operation.",
			},
			[]string{"service", "operation"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "io",
				Name:      "breaker_state",
				Help:      "Circuit breaker state by operation: 0 closed, 1 half-open, 2 open.",
			},
			[]string{"service", "operation"},
		),
	}
}

func (c *ioCollector) register(registry *prometheus.Registry) {
	registry.MustRegister(c.retries, c.breakerState)
}

func (c *ioCollector) observeRetry(operation string) {
	c.retries.WithLabelValues(c.service, operation).Inc()
}

func (c *ioCollector) observeBreakerState(operation, state string) {
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	c.breakerState.WithLabelValues(c.service, operation).Set(value)
}
