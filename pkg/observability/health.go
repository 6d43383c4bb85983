package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health of the service.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// CheckFunc probes one dependency.
type CheckFunc func(context.Context) error

// HealthCheck is a single registered check.
type HealthCheck struct {
	Name      string
	CheckFunc CheckFunc
	Timeout   time.Duration
	// Critical checks make the whole service unhealthy on failure;
	// non-critical ones only degrade it.
	Critical bool
}

// CheckStatus is the reported state of one check.
type CheckStatus struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked time.Time    `json:"last_checked"`
}

// HealthResponse is the health endpoint body.
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
}

// HealthChecker runs registered checks on demand.
// Instances are passed in explicitly; there is no global checker.
type HealthChecker struct {
	mu     sync.RWMutex
	checks []HealthCheck
}

// NewHealthChecker creates an empty health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// RegisterCheck adds a check. A zero timeout defaults to 5s.
func (hc *HealthChecker) RegisterCheck(check HealthCheck) {
	if check.Timeout <= 0 {
		check.Timeout = 5 * time.Second
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks = append(hc.checks, check)
}

// Run executes all checks and aggregates the result.
func (hc *HealthChecker) Run(ctx context.Context) HealthResponse {
	hc.mu.RLock()
	checks := make([]HealthCheck, len(hc.checks))
	copy(checks, hc.checks)
	hc.mu.RUnlock()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckStatus, len(checks)),
	}

	for _, check := range checks {
		cctx, cancel := context.WithTimeout(ctx, check.Timeout)
		err := check.CheckFunc(cctx)
		cancel()

		status := CheckStatus{Status: HealthStatusHealthy, LastChecked: time.Now().UTC()}
		if err != nil {
			status.Status = HealthStatusUnhealthy
			status.Message = err.Error()
			if check.Critical {
				resp.Status = HealthStatusUnhealthy
			} else if resp.Status == HealthStatusHealthy {
				resp.Status = HealthStatusDegraded
			}
		}
		resp.Checks[check.Name] = status
	}

	return resp
}

// Handler serves the aggregated health report.
func (hc *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := hc.Run(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// LivenessHandler reports process liveness only.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}
