package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Grigorij-Dudnik/RoboCrew/scs"
)

func TestPositionMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPositionMetrics(reg)

	m.Observe(7, 2048, nil)
	m.Observe(7, 0, &scs.CommError{Op: "read", ID: 7, Result: scs.RxTimeout})
	m.Observe(9, 0, errors.New("closed"))

	assert.Equal(t, 2048.0, testutil.ToFloat64(m.Position.WithLabelValues("7")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Polls.WithLabelValues("communication success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Polls.WithLabelValues("RX timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Polls.WithLabelValues("error")))
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	NewPositionMetrics(reg).Observe(3, 100, nil)
	scs.NewMetrics(reg)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `scs_servo_position{id="3"} 100`)
	assert.Contains(t, body, "go_goroutines")
}
