package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(50 * time.Millisecond)

	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 50*time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, timer.Duration(), first, "Duration keeps growing from the same start")
}

func TestTimerObservesEnsureDuration(t *testing.T) {
	registry := prometheus.NewRegistry()
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "ensure_test_seconds",
		Help: "ensure test histogram",
	})
	registry.MustRegister(histogram)

	timer := NewTimer()
	timer.ObserveDuration(histogram)
	timer.ObserveDuration(histogram)

	assert.Equal(t, 1, testutil.CollectAndCount(histogram))
	families, err := registry.Gather()
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), families[0].GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestTimerObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "transfer_test_seconds",
		Help: "transfer test histogram",
	}, []string{"operation"})

	timer := NewTimer()
	timer.ObserveDurationVec(vec, "put")
	timer.ObserveDurationVec(vec, "get")

	assert.Equal(t, 2, testutil.CollectAndCount(vec))
}
