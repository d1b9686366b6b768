package logger

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// SampledLogger rate-limits chatty log categories. A noisy link can
// desynchronize thousands of times a second and logging each one would
// drown everything else.
type SampledLogger struct {
	Logger
	samplers map[string]*LogSampler
	mu       *sync.RWMutex
}

// LogSampler is the sampling state of one category.
type LogSampler struct {
	name           string
	maxFrequency   time.Duration // window in which only the burst is logged
	burstAllowance int
	sampleRate     float64 // fraction logged after the burst (0.0-1.0)

	lastLogTime  atomic.Int64
	burstCounter atomic.Int64
	messageCount atomic.Int64

	total   atomic.Int64
	sampled atomic.Int64
	dropped atomic.Int64
}

// NewSampledLogger wraps base with no categories configured.
func NewSampledLogger(base Logger) *SampledLogger {
	return &SampledLogger{
		Logger:   base,
		samplers: make(map[string]*LogSampler),
		mu:       &sync.RWMutex{},
	}
}

// WithSampler configures sampling for category. Categories without a
// sampler are always logged.
func (s *SampledLogger) WithSampler(category string, maxFreq time.Duration, burstAllowance int, sampleRate float64) *SampledLogger {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samplers[category] = &LogSampler{
		name:           category,
		maxFrequency:   maxFreq,
		burstAllowance: burstAllowance,
		sampleRate:     sampleRate,
	}
	return s
}

func (s *SampledLogger) sampler(category string) *LogSampler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samplers[category]
}

func (s *SampledLogger) shouldLog(category string) bool {
	sm := s.sampler(category)
	if sm == nil {
		return true
	}

	now := time.Now().UnixNano()
	sm.total.Add(1)

	if now-sm.lastLogTime.Load() >= sm.maxFrequency.Nanoseconds() {
		sm.burstCounter.Store(1)
		sm.lastLogTime.Store(now)
		sm.sampled.Add(1)
		return true
	}

	if sm.burstCounter.Load() < int64(sm.burstAllowance) {
		sm.burstCounter.Add(1)
		sm.lastLogTime.Store(now)
		sm.sampled.Add(1)
		return true
	}

	if sm.sampleRate > 0 {
		if float64(sm.messageCount.Add(1))*sm.sampleRate >= 1.0 {
			sm.messageCount.Store(0)
			sm.lastLogTime.Store(now)
			sm.sampled.Add(1)
			return true
		}
	}

	sm.dropped.Add(1)
	return false
}

// Sample logs msg at level unless the category's sampler drops it. Logged
// entries carry the sampler's counters so dropped lines are still visible.
func (s *SampledLogger) Sample(level logrus.Level, category, msg string, fields map[string]interface{}) {
	if !s.shouldLog(category) {
		return
	}

	out := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		out[k] = v
	}
	out["category"] = category
	if sm := s.sampler(category); sm != nil {
		out["sampled_total"] = sm.total.Load()
		out["sampled_dropped"] = sm.dropped.Load()
	}
	s.Logger.WithFields(out).Log(level, msg)
}

func (s *SampledLogger) DebugWithCategory(category, msg string, fields map[string]interface{}) {
	s.Sample(logrus.DebugLevel, category, msg, fields)
}

func (s *SampledLogger) WarnWithCategory(category, msg string, fields map[string]interface{}) {
	s.Sample(logrus.WarnLevel, category, msg, fields)
}

// SamplerStats is a snapshot of one sampler.
type SamplerStats struct {
	Name            string `json:"name"`
	TotalMessages   int64  `json:"total_messages"`
	SampledMessages int64  `json:"sampled_messages"`
	DroppedMessages int64  `json:"dropped_messages"`
}

// Stats returns the per-category sampling counters.
func (s *SampledLogger) Stats() map[string]SamplerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]SamplerStats, len(s.samplers))
	for name, sm := range s.samplers {
		stats[name] = SamplerStats{
			Name:            name,
			TotalMessages:   sm.total.Load(),
			SampledMessages: sm.sampled.Load(),
			DroppedMessages: sm.dropped.Load(),
		}
	}
	return stats
}

// Link log categories.
const (
	CategoryDesync   = "desync"
	CategoryChecksum = "checksum"
	CategoryReopen   = "reopen"
	CategorySpool    = "spool"
)

// NewLinkLogger returns a SampledLogger tuned for the modem link.
func NewLinkLogger(base Logger) *SampledLogger {
	return NewSampledLogger(base).
		// noise between frames: max 1/sec, burst 5, then 1%
		WithSampler(CategoryDesync, time.Second, 5, 0.01).
		// bad CRCs: max 2/sec, burst 10, then 10%
		WithSampler(CategoryChecksum, 500*time.Millisecond, 10, 0.1).
		// spool pressure: max 1/sec, burst 1, no sampling after
		WithSampler(CategorySpool, time.Second, 1, 0)
	// CategoryReopen is always logged
}

// WithFields keeps the samplers shared with the parent.
func (s *SampledLogger) WithFields(fields map[string]interface{}) Logger {
	return &SampledLogger{Logger: s.Logger.WithFields(fields), samplers: s.samplers, mu: s.mu}
}

func (s *SampledLogger) WithField(key string, value interface{}) Logger {
	return &SampledLogger{Logger: s.Logger.WithField(key, value), samplers: s.samplers, mu: s.mu}
}

func (s *SampledLogger) WithError(err error) Logger {
	return &SampledLogger{Logger: s.Logger.WithError(err), samplers: s.samplers, mu: s.mu}
}
