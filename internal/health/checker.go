package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zsiec/fdclink/internal/logger"
)

// Status is the outcome of one check, or the worst outcome of all of them.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// ErrDegraded marks a check failure that leaves frames flowing.
var ErrDegraded = errors.New("degraded")

// Degraded returns a check error reported as StatusDegraded.
func Degraded(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDegraded, fmt.Sprintf(format, args...))
}

// Check is the latest result of one checker.
type Check struct {
	Name        string                 `json:"name"`
	Status      Status                 `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"-"`
	DurationMS  float64                `json:"duration_ms"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Detailer is implemented by checkers that attach details to their result.
type Detailer interface {
	Details() map[string]interface{}
}

// Manager runs the registered checkers and keeps their latest results.
type Manager struct {
	logger  logger.Logger
	timeout time.Duration

	mu       sync.RWMutex
	checkers []Checker
	results  map[string]*Check
}

// NewManager creates a manager with a five second per-check timeout.
func NewManager(log logger.Logger) *Manager {
	return &Manager{
		logger:  log,
		timeout: 5 * time.Second,
		results: make(map[string]*Check),
	}
}

// Register adds checker to the set run by RunChecks.
func (m *Manager) Register(checker Checker) {
	m.mu.Lock()
	m.checkers = append(m.checkers, checker)
	m.mu.Unlock()
	m.logger.WithField("checker", checker.Name()).Debug("Registered health checker")
}

// RunChecks runs every checker in parallel, each under the manager's
// timeout, and records the results.
func (m *Manager) RunChecks(ctx context.Context) map[string]*Check {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	checks := make([]*Check, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			checks[i] = m.run(ctx, c)
		}(i, c)
	}
	wg.Wait()

	results := make(map[string]*Check, len(checks))
	m.mu.Lock()
	for _, check := range checks {
		results[check.Name] = check
		m.results[check.Name] = check
	}
	m.mu.Unlock()
	return results
}

func (m *Manager) run(ctx context.Context, c Checker) *Check {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	elapsed := time.Since(start)

	status, message := classify(err)
	check := &Check{
		Name:        c.Name(),
		Status:      status,
		Message:     message,
		LastChecked: time.Now(),
		Duration:    elapsed,
		DurationMS:  float64(elapsed.Microseconds()) / 1000,
	}
	if d, ok := c.(Detailer); ok {
		check.Details = d.Details()
	}

	log := m.logger.WithFields(map[string]interface{}{
		"checker":  check.Name,
		"status":   status,
		"duration": elapsed,
	})
	switch status {
	case StatusOK:
		log.Debug("Health check passed")
	case StatusDegraded:
		log.WithError(err).Warn("Health check degraded")
	default:
		log.WithError(err).Error("Health check failed")
	}
	return check
}

func classify(err error) (Status, string) {
	switch {
	case err == nil:
		return StatusOK, ""
	case errors.Is(err, ErrDegraded):
		return StatusDegraded, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return StatusDown, "Health check timed out"
	default:
		return StatusDown, err.Error()
	}
}

// GetResults returns copies of the latest results.
func (m *Manager) GetResults() map[string]*Check {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*Check, len(m.results))
	for name, check := range m.results {
		c := *check
		out[name] = &c
	}
	return out
}

// GetOverallStatus is the worst latest result. With no results yet it is
// StatusDown.
func (m *Manager) GetOverallStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.results) == 0 {
		return StatusDown
	}
	overall := StatusOK
	for _, check := range m.results {
		if rank(check.Status) > rank(overall) {
			overall = check.Status
		}
	}
	return overall
}

func rank(s Status) int {
	switch s {
	case StatusOK:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// StartPeriodicChecks runs the checks now and then every interval until
// ctx is done.
func (m *Manager) StartPeriodicChecks(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.RunChecks(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			m.logger.Debug("Stopping periodic health checks")
			return
		}
	}
}
