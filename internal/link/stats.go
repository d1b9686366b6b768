package link

import (
	"sync"
	"time"
)

// SchemaStats counts frames of one variant.
type SchemaStats struct {
	Frames     uint64        `json:"frames"`
	Invalid    uint64        `json:"invalid"`
	LastUptime time.Duration `json:"last_uptime_ns"`
}

// Stats is a point-in-time view of the link.
type Stats struct {
	Source         string                 `json:"source"`
	Connected      bool                   `json:"connected"`
	StartedAt      time.Time              `json:"started_at"`
	BytesRead      uint64                 `json:"bytes_read"`
	BytesDiscarded uint64                 `json:"bytes_discarded"`
	Frames         uint64                 `json:"frames"`
	Invalid        uint64                 `json:"invalid"`
	Schemas        map[string]SchemaStats `json:"schemas"`
	LastSchema     string                 `json:"last_schema,omitempty"`
	LastFrameAt    time.Time              `json:"last_frame_at,omitempty"`
	Exhaustions    uint64                 `json:"exhaustions"`
	Reopens        uint64                 `json:"reopens"`
	LastError      string                 `json:"last_error,omitempty"`
}

// ValidRatio is the share of frames that passed the checksum, or 1 before
// the first frame.
func (s Stats) ValidRatio() float64 {
	if s.Frames == 0 {
		return 1
	}
	return float64(s.Frames-s.Invalid) / float64(s.Frames)
}

type statsTracker struct {
	mu sync.RWMutex
	s  Stats
}

func newStatsTracker(source string) *statsTracker {
	return &statsTracker{s: Stats{
		Source:    source,
		StartedAt: time.Now(),
		Schemas:   make(map[string]SchemaStats),
	}}
}

func (t *statsTracker) read(n int) {
	t.mu.Lock()
	t.s.BytesRead += uint64(n)
	t.mu.Unlock()
}

func (t *statsTracker) discarded(n int) {
	t.mu.Lock()
	t.s.BytesDiscarded += uint64(n)
	t.mu.Unlock()
}

func (t *statsTracker) frame(schema string, valid bool, uptime time.Duration, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ss := t.s.Schemas[schema]
	ss.Frames++
	t.s.Frames++
	if !valid {
		ss.Invalid++
		t.s.Invalid++
	}
	ss.LastUptime = uptime
	t.s.Schemas[schema] = ss
	t.s.LastSchema = schema
	t.s.LastFrameAt = at
}

func (t *statsTracker) connected(up bool) {
	t.mu.Lock()
	t.s.Connected = up
	t.mu.Unlock()
}

func (t *statsTracker) exhausted(err error) {
	t.mu.Lock()
	t.s.Exhaustions++
	t.s.LastError = err.Error()
	t.mu.Unlock()
}

func (t *statsTracker) failed(err error) {
	t.mu.Lock()
	t.s.LastError = err.Error()
	t.mu.Unlock()
}

func (t *statsTracker) reopened() {
	t.mu.Lock()
	t.s.Reopens++
	t.mu.Unlock()
}

func (t *statsTracker) snapshot() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := t.s
	out.Schemas = make(map[string]SchemaStats, len(t.s.Schemas))
	for k, v := range t.s.Schemas {
		out.Schemas[k] = v
	}
	return out
}
