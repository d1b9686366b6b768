package health

import (
	"context"
	"errors"
	"time"

	"github.com/zsiec/fdclink/internal/link"
	"github.com/zsiec/fdclink/internal/queue"
)

// LinkChecker reports the modem link down while the source is closed and
// degraded when frames stop arriving or too many fail the checksum.
type LinkChecker struct {
	stats         func() link.Stats
	staleAfter    time.Duration
	minValidRatio float64
	now           func() time.Time
}

// NewLinkChecker creates a checker over the driver counters returned by
// stats.
func NewLinkChecker(stats func() link.Stats, staleAfter time.Duration, minValidRatio float64) *LinkChecker {
	return &LinkChecker{
		stats:         stats,
		staleAfter:    staleAfter,
		minValidRatio: minValidRatio,
		now:           time.Now,
	}
}

// Name returns the checker name.
func (l *LinkChecker) Name() string {
	return "link"
}

// Check reports a closed link as down. Silence and a low checksum pass
// rate are degraded.
func (l *LinkChecker) Check(ctx context.Context) error {
	s := l.stats()
	if !s.Connected {
		if s.LastError != "" {
			return errors.New("link down: " + s.LastError)
		}
		return errors.New("link down")
	}

	now := l.now()
	switch {
	case s.Frames == 0 && now.Sub(s.StartedAt) > l.staleAfter:
		return Degraded("no frames since start %s ago", now.Sub(s.StartedAt).Round(time.Second))
	case s.Frames > 0 && now.Sub(s.LastFrameAt) > l.staleAfter:
		return Degraded("no frames for %s", now.Sub(s.LastFrameAt).Round(time.Second))
	case s.ValidRatio() < l.minValidRatio:
		return Degraded("checksum pass rate %.1f%% below %.1f%%", s.ValidRatio()*100, l.minValidRatio*100)
	}
	return nil
}

// Details returns the current driver counters.
func (l *LinkChecker) Details() map[string]interface{} {
	s := l.stats()
	return map[string]interface{}{
		"source":      s.Source,
		"frames":      s.Frames,
		"invalid":     s.Invalid,
		"exhaustions": s.Exhaustions,
		"reopens":     s.Reopens,
	}
}

// SpoolChecker reports degraded while the Redis spool has overflowed to
// disk or holds more than maxDepth records.
type SpoolChecker struct {
	spool    *queue.HybridQueue
	maxDepth int64
}

// NewSpoolChecker creates a checker degrading once spool spills to disk or
// holds more than maxDepth frames.
func NewSpoolChecker(spool *queue.HybridQueue, maxDepth int64) *SpoolChecker {
	return &SpoolChecker{spool: spool, maxDepth: maxDepth}
}

// Name returns the checker name.
func (s *SpoolChecker) Name() string {
	return "spool"
}

// Check reports overflow to disk and depth above the limit.
func (s *SpoolChecker) Check(ctx context.Context) error {
	st := s.spool.Stats()
	if st.DiskBytes > 0 {
		return Degraded("spool overflowed to disk: %d bytes", st.DiskBytes)
	}
	if s.maxDepth > 0 && st.Depth > s.maxDepth {
		return Degraded("spool depth %d above %d", st.Depth, s.maxDepth)
	}
	return nil
}

// Details returns the spool statistics.
func (s *SpoolChecker) Details() map[string]interface{} {
	st := s.spool.Stats()
	return map[string]interface{}{
		"depth":        st.Depth,
		"memory_items": st.MemoryItems,
		"disk_bytes":   st.DiskBytes,
	}
}
