package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Components the fleet cannot serve without
const (
	ComponentCompute = "compute"
	ComponentQueue   = "queue"
	ComponentStorage = "storage"
)

// CriticalComponents must all be reported healthy for readiness
var CriticalComponents = []string{ComponentCompute, ComponentQueue, ComponentStorage}

// Status values reported by the health endpoints
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// HealthStatus is the body of /health and /ready
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth is the last report for one component
type ComponentHealth struct {
	Healthy bool
	Message string
	Updated time.Time
}

// HealthRegistry records component reports and derives health and readiness
type HealthRegistry struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	critical   []string
	started    time.Time
	version    string
}

// NewHealthRegistry creates a registry whose readiness requires critical
func NewHealthRegistry(critical ...string) *HealthRegistry {
	return &HealthRegistry{
		components: make(map[string]ComponentHealth),
		critical:   critical,
		started:    time.Now(),
	}
}

// DefaultHealth backs the package-level helpers and NewServeMux
var DefaultHealth = NewHealthRegistry(CriticalComponents...)

func (h *HealthRegistry) SetVersion(version string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version = version
}

// Set records the state of a component, replacing any earlier report
func (h *HealthRegistry) Set(name string, healthy bool, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[name] = ComponentHealth{Healthy: healthy, Message: message, Updated: time.Now()}
}

// Report marks a component healthy when err is nil and unhealthy otherwise
func (h *HealthRegistry) Report(name string, err error) {
	if err != nil {
		h.Set(name, false, err.Error())
		return
	}
	h.Set(name, true, "")
}

// Component returns the last report for name
func (h *HealthRegistry) Component(name string) (ComponentHealth, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.components[name]
	return c, ok
}

// Health is unhealthy as soon as any reported component is
func (h *HealthRegistry) Health() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := h.status(StatusHealthy)
	for name, c := range h.components {
		if c.Healthy {
			status.Components[name] = StatusHealthy
			continue
		}
		status.Status = StatusUnhealthy
		status.Components[name] = StatusUnhealthy + ": " + c.Message
	}
	return status
}

// Readiness requires every critical component to have reported healthy.
// The message names the first component in sorted order that is not ready.
func (h *HealthRegistry) Readiness() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := h.status(StatusReady)
	critical := append([]string(nil), h.critical...)
	sort.Strings(critical)

	for _, name := range critical {
		c, ok := h.components[name]
		switch {
		case !ok:
			status.Components[name] = "not registered"
		case !c.Healthy:
			status.Components[name] = "not ready: " + c.Message
		default:
			status.Components[name] = StatusReady
			continue
		}
		if status.Status == StatusReady {
			status.Status = StatusNotReady
			status.Message = "waiting for " + name
		}
	}
	return status
}

func (h *HealthRegistry) status(initial string) HealthStatus {
	return HealthStatus{
		Status:     initial,
		Timestamp:  time.Now(),
		Components: make(map[string]string),
		Version:    h.version,
		Uptime:     time.Since(h.started).String(),
	}
}

// HealthHandler serves /health: 503 when any component is unhealthy
func (h *HealthRegistry) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.Health()
		writeStatus(w, health, health.Status == StatusHealthy)
	}
}

// ReadyHandler serves /ready: 503 until every critical component is healthy
func (h *HealthRegistry) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := h.Readiness()
		writeStatus(w, readiness, readiness.Status == StatusReady)
	}
}

// LivenessHandler serves /live: 200 while the process runs
func (h *HealthRegistry) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, map[string]string{
			"status": "alive",
			"uptime": time.Since(h.started).String(),
		}, true)
	}
}

func writeStatus(w http.ResponseWriter, body any, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

// SetVersion sets the version reported by DefaultHealth
func SetVersion(version string) {
	DefaultHealth.SetVersion(version)
}

// ReportComponent reports to DefaultHealth
func ReportComponent(name string, err error) {
	DefaultHealth.Report(name, err)
}
