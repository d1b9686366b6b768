package dashboard

import (
	"context"
	"sync/atomic"

	"github.com/zsiec/fdclink/internal/telemetry"
)

// Feed is the link consumer behind the dashboard. It never blocks the
// driver: frames that arrive while the view is behind are skipped for
// display only, the link counters still include them.
type Feed struct {
	ch      chan telemetry.Frame
	skipped atomic.Uint64
}

// NewFeed creates a feed holding up to buffer frames.
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 64
	}
	return &Feed{ch: make(chan telemetry.Frame, buffer)}
}

// Consume offers frame to the dashboard without blocking the link.
func (f *Feed) Consume(_ context.Context, frame telemetry.Frame) error {
	select {
	case f.ch <- frame:
	default:
		f.skipped.Add(1)
	}
	return nil
}

// Frames is the channel the dashboard model reads from.
func (f *Feed) Frames() <-chan telemetry.Frame {
	return f.ch
}

// Skipped counts frames not shown because the view was behind.
func (f *Feed) Skipped() uint64 {
	return f.skipped.Load()
}

// Close ends the feed. No Consume call may follow.
func (f *Feed) Close() {
	close(f.ch)
}
