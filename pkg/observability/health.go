package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Probe checks one dependency. A failing critical probe makes the service
// unhealthy; a failing optional probe only degrades it.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// DatabaseProbe pings PostgreSQL
func DatabaseProbe(db *sql.DB) Probe {
	return Probe{
		Name:     "database",
		Critical: true,
		Check: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			var one int
			return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
		},
	}
}

// RedisProbe pings Redis. Redis backs only the rate limiter and cache, so it is optional.
func RedisProbe(client *redis.Client) Probe {
	return Probe{
		Name: "redis",
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// HealthChecker runs dependency probes for the readiness endpoint
type HealthChecker struct {
	version string
	probes  []Probe
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(version string, probes ...Probe) *HealthChecker {
	return &HealthChecker{version: version, probes: probes}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

// Liveness always answers 200 while the process serves requests
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

// Readiness answers 503 when a critical dependency is down
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

// Check runs all probes concurrently
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.probes)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range h.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			start := time.Now()
			err := p.Check(ctx)
			dep := DependencyStatus{
				Status:    StatusHealthy,
				LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
			}
			if err != nil {
				dep.Status = StatusUnhealthy
				dep.Message = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			status.Dependencies[p.Name] = dep
			if err == nil {
				return
			}
			if p.Critical {
				status.Status = StatusUnhealthy
			} else if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		}(p)
	}
	wg.Wait()

	return status
}

func writeHealth(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// RegisterHealthRoutes registers /healthz and /readyz
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/healthz", checker.Liveness)
	mux.HandleFunc("/readyz", checker.Readiness)
}
