package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/orchidmarket/api/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// DependencyCheck describes one readiness probe.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// DependencyHealthOption customises the probe runner.
type DependencyHealthOption func(*dependencyHealthRepository)

// WithDependencyTimeout overrides the timeout applied when a check omits its own.
func WithDependencyTimeout(timeout time.Duration) DependencyHealthOption {
	return func(repo *dependencyHealthRepository) {
		if timeout > 0 {
			repo.defaultTimeout = timeout
		}
	}
}

// WithDependencyClock injects a custom clock for tests.
func WithDependencyClock(clock func() time.Time) DependencyHealthOption {
	return func(repo *dependencyHealthRepository) {
		if clock != nil {
			repo.now = clock
		}
	}
}

type dependencyHealthRepository struct {
	checks         []DependencyCheck
	defaultTimeout time.Duration
	now            func() time.Time
}

var _ HealthRepository = (*dependencyHealthRepository)(nil)

// NewDependencyHealthRepository validates and captures the probe set.
func NewDependencyHealthRepository(checks []DependencyCheck, opts ...DependencyHealthOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	for _, check := range checks {
		if strings.TrimSpace(check.Name) == "" {
			return nil, errors.New("health repository: dependency check missing name")
		}
		if check.Check == nil {
			return nil, fmt.Errorf("health repository: dependency %s missing check function", check.Name)
		}
	}

	repo := &dependencyHealthRepository{
		checks:         append([]DependencyCheck(nil), checks...),
		defaultTimeout: defaultProbeTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Collect runs every probe concurrently and folds the worst outcome into the
// report status.
func (r *dependencyHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if ctx == nil {
		return domain.SystemHealthReport{}, errors.New("health repository: context is required")
	}

	results := make([]domain.SystemHealthCheck, len(r.checks))
	var wg sync.WaitGroup
	for i, check := range r.checks {
		i, check := i, check
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.probe(ctx, check)
		}()
	}
	wg.Wait()

	checks := make(map[string]domain.SystemHealthCheck, len(r.checks))
	status := domain.HealthStatusOK
	for i, check := range r.checks {
		checks[check.Name] = results[i]
		status = worseStatus(status, results[i].Status)
	}

	return domain.SystemHealthReport{
		Status:      status,
		Checks:      checks,
		GeneratedAt: r.now(),
	}, nil
}

func (r *dependencyHealthRepository) probe(ctx context.Context, check DependencyCheck) domain.SystemHealthCheck {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := check.Check(probeCtx)
	done := r.now()
	if err == nil {
		// A probe that swallowed its context error still failed.
		err = probeCtx.Err()
	}

	result := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   done.Sub(start),
		CheckedAt: done,
	}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = domain.HealthStatusError
		result.Detail = "timeout"
		result.Error = err.Error()
	case errors.Is(err, context.Canceled):
		result.Status = domain.HealthStatusError
		result.Detail = "cancelled"
		result.Error = err.Error()
	default:
		result.Status = domain.HealthStatusDegraded
		result.Detail = err.Error()
		result.Error = err.Error()
	}
	return result
}

func worseStatus(current, candidate domain.HealthStatus) domain.HealthStatus {
	if current == domain.HealthStatusError || candidate == domain.HealthStatusError {
		return domain.HealthStatusError
	}
	if current == domain.HealthStatusDegraded || candidate == domain.HealthStatusDegraded {
		return domain.HealthStatusDegraded
	}
	return domain.HealthStatusOK
}
