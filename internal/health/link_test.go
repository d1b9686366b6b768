package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/fdclink/internal/link"
	"github.com/zsiec/fdclink/internal/queue"
)

func TestLinkChecker(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		stats    link.Stats
		wantErr  bool
		degraded bool
		contains string
	}{
		{
			name:     "closed source",
			stats:    link.Stats{LastError: "telemetry: stream exhausted: EOF"},
			wantErr:  true,
			contains: "link down: telemetry: stream exhausted",
		},
		{
			name:  "healthy",
			stats: link.Stats{Connected: true, StartedAt: now.Add(-time.Minute), Frames: 100, Invalid: 1, LastFrameAt: now.Add(-time.Second)},
		},
		{
			name:     "silent since start",
			stats:    link.Stats{Connected: true, StartedAt: now.Add(-time.Minute)},
			wantErr:  true,
			degraded: true,
			contains: "no frames since start",
		},
		{
			name:  "just started",
			stats: link.Stats{Connected: true, StartedAt: now.Add(-time.Second)},
		},
		{
			name:     "stale",
			stats:    link.Stats{Connected: true, StartedAt: now.Add(-time.Hour), Frames: 10, LastFrameAt: now.Add(-30 * time.Second)},
			wantErr:  true,
			degraded: true,
			contains: "no frames for 30s",
		},
		{
			name:     "noisy",
			stats:    link.Stats{Connected: true, StartedAt: now.Add(-time.Hour), Frames: 10, Invalid: 5, LastFrameAt: now},
			wantErr:  true,
			degraded: true,
			contains: "checksum pass rate 50.0%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := tt.stats
			c := NewLinkChecker(func() link.Stats { return stats }, 5*time.Second, 0.9)
			c.now = func() time.Time { return now }

			err := c.Check(context.Background())
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.degraded, errors.Is(err, ErrDegraded))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLinkCheckerDetails(t *testing.T) {
	c := NewLinkChecker(func() link.Stats {
		return link.Stats{Source: "tcp://relay:4000", Frames: 3, Reopens: 1}
	}, time.Second, 0.5)

	d := c.Details()
	assert.Equal(t, "link", c.Name())
	assert.Equal(t, "tcp://relay:4000", d["source"])
	assert.Equal(t, uint64(3), d["frames"])
	assert.Equal(t, uint64(1), d["reopens"])
}

func TestSpoolChecker(t *testing.T) {
	q, err := queue.NewHybridQueue(queue.Options{Name: "health", Dir: t.TempDir(), MemorySize: 4})
	require.NoError(t, err)
	defer q.Close()

	c := NewSpoolChecker(q, 2)
	assert.Equal(t, "spool", c.Name())
	assert.NoError(t, c.Check(context.Background()))

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue([]byte{byte(i)}))
	}
	err = c.Check(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDegraded)
	assert.Equal(t, int64(3), c.Details()["depth"])
}
