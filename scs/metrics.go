package scs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts bus exchanges. A nil *Metrics records nothing.
type Metrics struct {
	Exchanges    *prometheus.CounterVec
	Latency      *prometheus.HistogramVec
	BytesWritten prometheus.Counter
}

// NewMetrics creates the bus collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scs_bus_exchanges_total",
				Help: "Bus exchanges by instruction and result.",
			},
			[]string{"instruction", "result"},
		),
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scs_bus_exchange_seconds",
				Help:    "Time from frame write to parsed response.",
				Buckets: []float64{.0005, .001, .002, .005, .01, .02, .05, .1},
			},
			[]string{"instruction"},
		),
		BytesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scs_bus_bytes_written_total",
				Help: "Bytes written to the serial line.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Exchanges, m.Latency, m.BytesWritten)
	}
	return m
}

func (m *Metrics) observe(instruction byte, result CommResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	name := instructionName(instruction)
	m.Exchanges.WithLabelValues(name, result.String()).Inc()
	if result == Success {
		m.Latency.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) wrote(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesWritten.Add(float64(n))
}

func instructionName(instruction byte) string {
	switch instruction {
	case InstPing:
		return "ping"
	case InstRead:
		return "read"
	case InstWrite:
		return "write"
	case InstSyncWrite:
		return "sync_write"
	default:
		return "other"
	}
}
