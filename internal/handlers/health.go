package handlers

import (
	"net/http"
	"time"

	domain "github.com/orchidmarket/api/internal/domain"
	"github.com/orchidmarket/api/internal/repositories"
)

// BuildInfo carries build metadata surfaced by the health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	build  BuildInfo
	health repositories.HealthRepository
	clock  func() time.Time
}

// HealthOption customises HealthHandlers construction.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo injects build metadata into the health payloads.
func WithHealthBuildInfo(build BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthRepository injects the dependency probe set used by /readyz.
func WithHealthRepository(repo repositories.HealthRepository) HealthOption {
	return func(h *HealthHandlers) {
		h.health = repo
	}
}

// WithHealthClock overrides the clock, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs handlers for /healthz and /readyz.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// Healthz reports process liveness without touching any dependency.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	payload := map[string]any{
		"status":    string(domain.HealthStatusOK),
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz probes the registered dependencies and reports 503 unless all are ok.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()

	if h.health == nil {
		writeJSONResponse(w, http.StatusOK, readyzPayload{
			Status:      string(domain.HealthStatusOK),
			Checks:      map[string]readyzCheckPayload{},
			Details:     []string{},
			GeneratedAt: now.UTC().Format(time.RFC3339),
		})
		return
	}

	report, err := h.health.Collect(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, readyzPayload{
			Status:      string(domain.HealthStatusError),
			Checks:      map[string]readyzCheckPayload{},
			Details:     []string{err.Error()},
			GeneratedAt: now.UTC().Format(time.RFC3339),
		})
		return
	}

	payload := readyzPayload{
		Status:      string(report.Status),
		Checks:      make(map[string]readyzCheckPayload, len(report.Checks)),
		Details:     []string{},
		GeneratedAt: report.GeneratedAt.UTC().Format(time.RFC3339),
	}
	for name, check := range report.Checks {
		payload.Checks[name] = readyzCheckPayload{
			Status:    string(check.Status),
			Detail:    check.Detail,
			LatencyMS: check.Latency.Milliseconds(),
		}
		if check.Status != domain.HealthStatusOK && check.Error != "" {
			payload.Details = append(payload.Details, name+": "+check.Error)
		}
	}

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}

type readyzPayload struct {
	Status      string                        `json:"status"`
	Checks      map[string]readyzCheckPayload `json:"checks"`
	Details     []string                      `json:"details"`
	GeneratedAt string                        `json:"generated_at"`
}

type readyzCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}
