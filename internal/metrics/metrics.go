package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Grigorij-Dudnik/RoboCrew/scs"
)

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// PositionMetrics exports the last polled servo positions.
type PositionMetrics struct {
	Position *prometheus.GaugeVec   // labels: id
	Polls    *prometheus.CounterVec // labels: result
}

// NewPositionMetrics registers and returns the position gauges.
func NewPositionMetrics(reg prometheus.Registerer) *PositionMetrics {
	m := &PositionMetrics{
		Position: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scs_servo_position",
			Help: "Last read present position in steps.",
		}, []string{"id"}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scs_monitor_polls_total",
			Help: "Position polls by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.Position, m.Polls)
	return m
}

// Observe records one poll outcome.
func (m *PositionMetrics) Observe(id, position int, err error) {
	if err != nil {
		result, ok := scs.ResultOf(err)
		label := "error"
		if ok {
			label = result.String()
		}
		m.Polls.WithLabelValues(label).Inc()
		return
	}
	m.Polls.WithLabelValues(scs.Success.String()).Inc()
	m.Position.WithLabelValues(strconv.Itoa(id)).Set(float64(position))
}
