package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allCritical() *HealthRegistry {
	h := NewHealthRegistry(CriticalComponents...)
	for _, name := range CriticalComponents {
		h.Set(name, true, "")
	}
	return h
}

func TestReportSetsComponent(t *testing.T) {
	h := NewHealthRegistry()

	h.Report(ComponentQueue, errors.New("AccessDenied"))
	c, ok := h.Component(ComponentQueue)
	require.True(t, ok)
	assert.False(t, c.Healthy)
	assert.Equal(t, "AccessDenied", c.Message)

	h.Report(ComponentQueue, nil)
	c, _ = h.Component(ComponentQueue)
	assert.True(t, c.Healthy)
	assert.Empty(t, c.Message)
}

func TestHealth(t *testing.T) {
	h := allCritical()
	h.SetVersion("1.2.3")

	health := h.Health()
	assert.Equal(t, StatusHealthy, health.Status)
	assert.Len(t, health.Components, 3)
	assert.Equal(t, "1.2.3", health.Version)

	h.Set(ComponentCompute, false, "2 of 9 slots failed")
	health = h.Health()
	assert.Equal(t, StatusUnhealthy, health.Status)
	assert.Equal(t, "unhealthy: 2 of 9 slots failed", health.Components[ComponentCompute])
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *HealthRegistry)
		status  string
		message string
	}{
		{
			name:   "all critical healthy",
			setup:  func(h *HealthRegistry) {},
			status: StatusReady,
		},
		{
			name: "critical unhealthy",
			setup: func(h *HealthRegistry) {
				h.Set(ComponentStorage, false, "database locked")
			},
			status:  StatusNotReady,
			message: "waiting for storage",
		},
		{
			name: "non-critical unhealthy is ignored",
			setup: func(h *HealthRegistry) {
				h.Set("events", false, "full")
			},
			status: StatusReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := allCritical()
			tt.setup(h)

			readiness := h.Readiness()
			assert.Equal(t, tt.status, readiness.Status)
			assert.Equal(t, tt.message, readiness.Message)
		})
	}
}

func TestReadinessMissingComponent(t *testing.T) {
	h := NewHealthRegistry(CriticalComponents...)
	h.Set(ComponentCompute, true, "")

	readiness := h.Readiness()
	assert.Equal(t, StatusNotReady, readiness.Status)
	assert.Equal(t, "waiting for queue", readiness.Message)
	assert.Equal(t, "not registered", readiness.Components[ComponentStorage])
}

func TestHandlers(t *testing.T) {
	h := allCritical()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  string
	}{
		{"health", h.HealthHandler(), StatusHealthy},
		{"ready", h.ReadyHandler(), StatusReady},
		{"live", h.LivenessHandler(), "alive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.handler(w, httptest.NewRequest(http.MethodGet, "/"+tt.name, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.status, body["status"])
		})
	}
}

func TestHandlersUnavailable(t *testing.T) {
	h := NewHealthRegistry(CriticalComponents...)
	h.Set(ComponentQueue, false, "throttled")

	for _, handler := range []http.HandlerFunc{h.HealthHandler(), h.ReadyHandler()} {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	}

	w := httptest.NewRecorder()
	h.LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServeMuxRoutes(t *testing.T) {
	for _, name := range CriticalComponents {
		ReportComponent(name, nil)
	}
	EnsureTotal.WithLabelValues("noop").Inc()

	mux := NewServeMux()
	for _, path := range []string{"/metrics", "/health", "/ready", "/live"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "colony_ensure_total")
}
