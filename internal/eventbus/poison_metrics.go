package eventbus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PoisonMetrics tracks messages routed to the poison queue.
type PoisonMetrics struct {
	mu sync.Mutex

	poisonedTotal *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

// NewPoisonMetrics creates a poison queue metrics collector. A nil registerer
// defaults to the global Prometheus registerer.
func NewPoisonMetrics(registerer prometheus.Registerer) *PoisonMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PoisonMetrics{
		registerer: registerer,
		poisonedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "choreo",
				Subsystem: "dlq",
				Name:      "messages_total",
				Help:      "Total number of messages routed to the poison queue",
			},
			[]string{"service"},
		),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *PoisonMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	if err := m.registerer.Register(m.poisonedTotal); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}

	m.registered = true
	return nil
}

// RecordPoisoned counts one message handed to the poison queue.
func (m *PoisonMetrics) RecordPoisoned(service string) {
	m.poisonedTotal.WithLabelValues(service).Inc()
}
