// Package reconnect provides backoff strategies and a blocking retry loop
// used to reopen the byte source after it is exhausted.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/zsiec/fdclink/internal/config"
	"github.com/zsiec/fdclink/internal/logger"
)

// ErrGaveUp is returned when the strategy runs out of attempts.
var ErrGaveUp = errors.New("reconnect: gave up")

// Strategy decides how long to wait before the next attempt.
type Strategy interface {
	// NextDelay returns the next delay and whether to keep retrying.
	NextDelay() (time.Duration, bool)
	Reset()
}

// ExponentialBackoff grows the delay by Multiplier up to MaxDelay, with
// ±20% jitter.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxRetries   int // 0 retries forever

	currentDelay time.Duration
	retryCount   int
	mu           sync.Mutex
}

// NewExponentialBackoff creates a backoff growing from initialDelay by
// multiplier up to maxDelay. maxRetries 0 retries forever.
func NewExponentialBackoff(initialDelay, maxDelay time.Duration, multiplier float64, maxRetries int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		Multiplier:   multiplier,
		MaxRetries:   maxRetries,
		currentDelay: initialDelay,
	}
}

// FromConfig builds the strategy configured for source reopening.
func FromConfig(cfg config.ReopenConfig) *ExponentialBackoff {
	return NewExponentialBackoff(cfg.InitialDelay, cfg.MaxDelay, cfg.Multiplier, cfg.MaxRetries)
}

func (e *ExponentialBackoff) NextDelay() (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.MaxRetries > 0 && e.retryCount >= e.MaxRetries {
		return 0, false
	}

	jitter := 0.8 + 0.4*rand.Float64()
	delay := time.Duration(float64(e.currentDelay) * jitter)

	e.currentDelay = time.Duration(float64(e.currentDelay) * e.Multiplier)
	if e.currentDelay > e.MaxDelay {
		e.currentDelay = e.MaxDelay
	}
	e.retryCount++

	return delay, true
}

func (e *ExponentialBackoff) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.currentDelay = e.InitialDelay
	e.retryCount = 0
}

// LinearBackoff waits the same Delay between attempts.
type LinearBackoff struct {
	Delay      time.Duration
	MaxRetries int

	retryCount int
	mu         sync.Mutex
}

// NewLinearBackoff creates a fixed delay backoff. maxRetries 0 retries
// forever.
func NewLinearBackoff(delay time.Duration, maxRetries int) *LinearBackoff {
	return &LinearBackoff{
		Delay:      delay,
		MaxRetries: maxRetries,
	}
}

func (l *LinearBackoff) NextDelay() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.MaxRetries > 0 && l.retryCount >= l.MaxRetries {
		return 0, false
	}

	l.retryCount++
	return l.Delay, true
}

func (l *LinearBackoff) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retryCount = 0
}

// Manager runs connection attempts until one succeeds.
type Manager struct {
	strategy Strategy
	logger   logger.Logger

	// OnAttempt, when set, is called after every attempt with its result.
	OnAttempt func(attempt int, err error)
}

// NewManager creates a retry loop paced by strategy.
func NewManager(strategy Strategy, log logger.Logger) *Manager {
	return &Manager{
		strategy: strategy,
		logger:   log,
	}
}

// Connect calls connect until it returns nil, waiting between failures as
// the strategy dictates. It blocks until success, ctx is done, or the
// strategy gives up, in which case the error wraps ErrGaveUp and the last
// attempt's error.
func (m *Manager) Connect(ctx context.Context, connect func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := connect(ctx)
		if m.OnAttempt != nil {
			m.OnAttempt(attempt, err)
		}
		if err == nil {
			m.strategy.Reset()
			return nil
		}

		delay, retry := m.strategy.NextDelay()
		if !retry {
			m.logger.WithError(err).WithField("attempts", attempt).Error("Maximum reconnection attempts reached")
			return fmt.Errorf("%w after %d attempts: %w", ErrGaveUp, attempt, err)
		}

		m.logger.WithError(err).WithFields(map[string]interface{}{
			"attempt":  attempt,
			"retry_in": delay.String(),
		}).Warn("Connection failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
