package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status     Status                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// Check is one dependency probe. A failing optional check degrades the
// service instead of taking it out of rotation.
type Check struct {
	Name     string
	Run      func(ctx context.Context) error
	Optional bool
}

// Checker performs health checks on the configured dependencies
type Checker struct {
	checks       []Check
	version      string
	checkTimeout time.Duration
}

type CheckerConfig struct {
	Checks  []Check
	Version string
	Timeout time.Duration
}

func NewChecker(cfg *CheckerConfig) *Checker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		checks:       cfg.Checks,
		version:      cfg.Version,
		checkTimeout: timeout,
	}
}

func (c *Checker) run(ctx context.Context, check Check) ComponentHealth {
	start := time.Now()

	if check.Run == nil {
		return ComponentHealth{Status: StatusUnhealthy, Message: check.Name + " not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	if err := check.Run(ctx); err != nil {
		status := StatusUnhealthy
		if check.Optional {
			status = StatusDegraded
		}
		return ComponentHealth{
			Status:   status,
			Message:  check.Name + " check failed",
			Duration: time.Since(start).String(),
		}
	}

	return ComponentHealth{Status: StatusHealthy, Duration: time.Since(start).String()}
}

// Check performs a basic health check (liveness)
func (c *Checker) Check(ctx context.Context) *HealthResponse {
	return &HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   c.version,
	}
}

// DeepCheck runs every dependency check in parallel (readiness)
func (c *Checker) DeepCheck(ctx context.Context) *HealthResponse {
	response := &HealthResponse{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    c.version,
		Components: make(map[string]ComponentHealth, len(c.checks)),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, check := range c.checks {
		wg.Add(1)
		go func(ch Check) {
			defer wg.Done()
			result := c.run(ctx, ch)
			mu.Lock()
			response.Components[ch.Name] = result
			mu.Unlock()
		}(check)
	}

	wg.Wait()

	for _, comp := range response.Components {
		if comp.Status == StatusUnhealthy {
			response.Status = StatusUnhealthy
			break
		} else if comp.Status == StatusDegraded {
			response.Status = StatusDegraded
		}
	}

	return response
}

// Handler provides HTTP handlers for health endpoints
type Handler struct {
	checker *Checker
}

func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

func writeResponse(w http.ResponseWriter, response *HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	if response.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// LivenessHandler reports whether the process is up.
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.checker.Check(r.Context()))
}

// ReadinessHandler reports whether dependencies are reachable. Degraded
// still accepts traffic.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.checker.DeepCheck(r.Context()))
}

// HealthHandler is liveness, or readiness with ?deep=true.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "true" {
		h.ReadinessHandler(w, r)
		return
	}
	h.LivenessHandler(w, r)
}
