package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

// escalationCollector is shared by the api and worker registries; both run
// escalation detection.
type escalationCollector struct {
	service     string
	evaluations *prometheus.CounterVec
	redFlags    *prometheus.CounterVec
}

func newEscalationCollector(service string) *escalationCollector {
	return &escalationCollector{
		service: service,
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "escalation",
				Name:      "evaluations_total",
				Help:      "Escalation decisions by outcome.",
			},
			[]string{"service", "escalated"},
		),
		redFlags: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "escalation",
				Name:      "red_flags_total",
				Help:      "Emitted red flags by severity and source.",
			},
			[]string{"service", "severity", "source"},
		),
	}
}

func (c *escalationCollector) register(registry *prometheus.Registry) {
	registry.MustRegister(c.evaluations, c.redFlags)
}

func (c *escalationCollector) observe(result domain.EscalationResult) {
	escalated := "false"
	if result.ShouldEscalate {
		escalated = "true"
	}
	c.evaluations.WithLabelValues(c.service, escalated).Inc()
	for _, flag := range result.RedFlags {
		c.redFlags.WithLabelValues(c.service, string(flag.Severity), string(flag.Source)).Inc()
	}
}
