// Package link drives the frame reader over an opened byte source and hands
// every frame, in wire order, to a single consumer.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zsiec/fdclink/internal/logger"
	"github.com/zsiec/fdclink/internal/metrics"
	"github.com/zsiec/fdclink/internal/reconnect"
	"github.com/zsiec/fdclink/internal/source"
	"github.com/zsiec/fdclink/internal/telemetry"
)

// Consumer receives decoded frames. Consume is called from the driver
// goroutine only, one frame at a time.
type Consumer interface {
	Consume(ctx context.Context, frame telemetry.Frame) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ctx context.Context, frame telemetry.Frame) error

func (f ConsumerFunc) Consume(ctx context.Context, frame telemetry.Frame) error {
	return f(ctx, frame)
}

// Options configures a Driver.
type Options struct {
	Registry *telemetry.Registry
	Open     source.Opener
	Consumer Consumer

	// Source names the byte source in logs and stats.
	Source string
	// Sink labels consumer errors in metrics.
	Sink string

	// Reopen, when set, reopens the source after it is exhausted. Without
	// it the driver returns once the stream ends.
	Reopen reconnect.Strategy

	Logger logger.Logger
}

// Driver is the stream driver. It owns the source while running.
type Driver struct {
	reg      *telemetry.Registry
	open     source.Opener
	consumer Consumer
	reopen   *reconnect.Manager
	sink     string

	log      *logger.SampledLogger
	stats    *statsTracker
	lastUps  map[string]time.Duration
	sessions int
}

// NewDriver returns a driver for opts. Open and Consumer are required;
// the registry defaults to telemetry.DefaultRegistry.
func NewDriver(opts Options) (*Driver, error) {
	if opts.Open == nil {
		return nil, errors.New("link: no source opener")
	}
	if opts.Consumer == nil {
		return nil, errors.New("link: no consumer")
	}
	if opts.Registry == nil {
		opts.Registry = telemetry.DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNullLogger()
	}
	if opts.Sink == "" {
		opts.Sink = "consumer"
	}

	log := logger.NewLinkLogger(opts.Logger.WithField("source", opts.Source))
	d := &Driver{
		reg:      opts.Registry,
		open:     opts.Open,
		consumer: opts.Consumer,
		sink:     opts.Sink,
		log:      log,
		stats:    newStatsTracker(opts.Source),
		lastUps:  make(map[string]time.Duration),
	}
	if opts.Reopen != nil {
		d.reopen = reconnect.NewManager(opts.Reopen, log)
		d.reopen.OnAttempt = func(attempt int, err error) {
			if d.sessions == 0 && attempt == 1 {
				return
			}
			if err != nil {
				metrics.RecordReopen(metrics.ResultFailed)
			} else {
				metrics.RecordReopen(metrics.ResultOK)
			}
			d.stats.reopened()
		}
	}
	return d, nil
}

// Stats returns a snapshot of the link counters.
func (d *Driver) Stats() Stats {
	return d.stats.snapshot()
}

// Run reads frames until ctx is cancelled or the source is lost and cannot
// be reopened. Cancellation and plain end of stream without a reopen
// strategy return nil. With a strategy any read failure triggers a reopen.
func (d *Driver) Run(ctx context.Context) error {
	d.log.WithField("reopen", d.reopen != nil).Info("Starting link driver")
	defer d.log.Info("Link driver stopped")

	for {
		src, err := d.openSource(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, reconnect.ErrGaveUp) {
				metrics.RecordReopen(metrics.ResultGaveUp)
			}
			d.stats.failed(err)
			return err
		}

		d.sessions++
		err = d.session(ctx, src)
		if ctx.Err() != nil {
			return nil
		}

		exhausted := errors.Is(err, telemetry.ErrStreamExhausted)
		if exhausted {
			d.stats.exhausted(err)
		} else {
			d.stats.failed(err)
		}
		if d.reopen == nil {
			if !exhausted {
				return err
			}
			d.log.WithError(err).Info("Source exhausted")
			return nil
		}
		d.log.WithError(err).Warn("Source lost, reopening")
	}
}

func (d *Driver) openSource(ctx context.Context) (io.ReadCloser, error) {
	if d.reopen == nil {
		src, err := d.open(ctx)
		if err != nil {
			return nil, fmt.Errorf("open source: %w", err)
		}
		return src, nil
	}

	var src io.ReadCloser
	err := d.reopen.Connect(ctx, func(ctx context.Context) error {
		s, err := d.open(ctx)
		if err != nil {
			return err
		}
		src = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	return src, nil
}

// session reads one opened source until it fails. The source is closed on
// return and as soon as ctx is done, which unblocks a pending read.
func (d *Driver) session(ctx context.Context, src io.ReadCloser) error {
	var closeOnce sync.Once
	closeSrc := func() { closeOnce.Do(func() { src.Close() }) }
	defer closeSrc()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeSrc()
		case <-done:
		}
	}()

	metrics.SetLinkUp(true)
	d.stats.connected(true)
	defer func() {
		metrics.SetLinkUp(false)
		d.stats.connected(false)
	}()

	reader := telemetry.NewReader(&countingReader{r: src, stats: d.stats}, d.reg)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := reader.Next()
		if frame.Skipped > 0 {
			d.discarded(frame.Skipped)
		}
		if err != nil {
			if errors.Is(err, telemetry.ErrStreamExhausted) {
				state := metrics.StateSeeking
				if errors.Is(err, telemetry.ErrTruncatedFrame) {
					state = metrics.StateMidFrame
				}
				metrics.RecordExhaustion(state)
			}
			return err
		}

		d.observe(frame)
		if err := d.consumer.Consume(ctx, frame); err != nil {
			metrics.IncrementConsumeError(d.sink)
			d.log.WithError(err).WithField("schema", frame.Schema.Name).Error("Consumer failed")
		}
	}
}

func (d *Driver) discarded(n int) {
	metrics.AddBytesDiscarded(n)
	d.stats.discarded(n)
	d.log.DebugWithCategory(logger.CategoryDesync, "Discarded bytes before header", map[string]interface{}{
		"bytes": n,
	})
}

func (d *Driver) observe(frame telemetry.Frame) {
	now := time.Now()
	name := frame.Schema.Name
	metrics.RecordFrame(name, frame.Valid, now)
	d.stats.frame(name, frame.Valid, frame.Record.Uptime(), now)

	up := frame.Record.Uptime()
	if last, ok := d.lastUps[name]; ok && up > last {
		metrics.ObserveFrameInterval(name, up-last)
	}
	d.lastUps[name] = up

	if !frame.Valid {
		d.log.WarnWithCategory(logger.CategoryChecksum, "Checksum mismatch", map[string]interface{}{
			"schema":   name,
			"uptime":   up.String(),
			"received": frame.Record.Checksum(),
		})
	}
}

type countingReader struct {
	r     io.Reader
	stats *statsTracker
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		metrics.AddBytesRead(n)
		c.stats.read(n)
	}
	return n, err
}
