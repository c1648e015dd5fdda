package handlers

import (
	"net/http"
	"time"

	"github.com/optima-bank/loyalty/internal/repositories"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	checker   repositories.HealthRepository
	version   string
	env       string
	startedAt time.Time
	now       func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthChecker wires the downstream dependency checker used by Readyz.
func WithHealthChecker(checker repositories.HealthRepository) HealthOption {
	return func(h *HealthHandlers) {
		h.checker = checker
	}
}

// WithHealthBuildInfo attaches version metadata to probe responses.
func WithHealthBuildInfo(version, env string) HealthOption {
	return func(h *HealthHandlers) {
		h.version = version
		h.env = env
	}
}

// WithHealthClock overrides the clock, for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	h.startedAt = h.now()
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.now()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.startedAt).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if h.version != "" {
		payload["version"] = h.version
	}
	if h.env != "" {
		payload["environment"] = h.env
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz reports downstream readiness. Without a configured checker the
// probe only confirms the process is serving.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	if err := h.checker.Check(r.Context()); err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"detail": err.Error(),
		})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
}
