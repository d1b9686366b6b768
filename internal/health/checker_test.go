package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/fdclink/internal/logger"
)

// mockChecker is a mock implementation of Checker for testing
type mockChecker struct {
	name  string
	err   error
	delay time.Duration
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(ctx context.Context) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

type detailedChecker struct {
	mockChecker
}

func (d *detailedChecker) Details() map[string]interface{} {
	return map[string]interface{}{"frames": 12}
}

func TestManager(t *testing.T) {
	log := logger.NewNullLogger()

	t.Run("Register and RunChecks", func(t *testing.T) {
		manager := NewManager(log)
		manager.Register(&mockChecker{name: "checker1"})
		manager.Register(&mockChecker{name: "checker2", err: errors.New("checker2 failed")})
		manager.Register(&mockChecker{name: "checker3", err: Degraded("slow")})

		results := manager.RunChecks(context.Background())
		require.Len(t, results, 3)

		assert.Equal(t, StatusOK, results["checker1"].Status)
		assert.Empty(t, results["checker1"].Message)

		assert.Equal(t, StatusDown, results["checker2"].Status)
		assert.Contains(t, results["checker2"].Message, "checker2 failed")

		assert.Equal(t, StatusDegraded, results["checker3"].Status)
		assert.Equal(t, "degraded: slow", results["checker3"].Message)
	})

	t.Run("GetResults returns copies", func(t *testing.T) {
		manager := NewManager(log)
		manager.Register(&mockChecker{name: "test"})
		manager.RunChecks(context.Background())

		results := manager.GetResults()
		require.Contains(t, results, "test")
		results["test"].Status = StatusDown

		assert.Equal(t, StatusOK, manager.GetResults()["test"].Status)
	})

	t.Run("Details", func(t *testing.T) {
		manager := NewManager(log)
		manager.Register(&detailedChecker{mockChecker{name: "link"}})

		results := manager.RunChecks(context.Background())
		assert.Equal(t, 12, results["link"].Details["frames"])
	})

	t.Run("Timeout", func(t *testing.T) {
		manager := NewManager(log)
		manager.timeout = 20 * time.Millisecond
		manager.Register(&mockChecker{name: "slow", delay: time.Second})

		results := manager.RunChecks(context.Background())
		assert.Equal(t, StatusDown, results["slow"].Status)
		assert.Equal(t, "Health check timed out", results["slow"].Message)
	})
}

func TestGetOverallStatus(t *testing.T) {
	log := logger.NewNullLogger()

	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{"no results", nil, StatusDown},
		{"all ok", []Checker{&mockChecker{name: "a"}, &mockChecker{name: "b"}}, StatusOK},
		{"one degraded", []Checker{&mockChecker{name: "a"}, &mockChecker{name: "b", err: Degraded("x")}}, StatusDegraded},
		{"down wins", []Checker{&mockChecker{name: "a", err: Degraded("x")}, &mockChecker{name: "b", err: errors.New("y")}}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager(log)
			for _, c := range tt.checkers {
				manager.Register(c)
			}
			if len(tt.checkers) > 0 {
				manager.RunChecks(context.Background())
			}
			assert.Equal(t, tt.want, manager.GetOverallStatus())
		})
	}
}

func TestStartPeriodicChecks(t *testing.T) {
	manager := NewManager(logger.NewNullLogger())
	manager.Register(&mockChecker{name: "periodic"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		manager.StartPeriodicChecks(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(manager.GetResults()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic checks did not stop")
	}
}

func TestDegradedMatches(t *testing.T) {
	err := Degraded("spool depth %d", 7)
	assert.ErrorIs(t, err, ErrDegraded)
	assert.Equal(t, "degraded: spool depth 7", err.Error())
}
