package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zsiec/fdclink/internal/config"
	"github.com/zsiec/fdclink/internal/logger"
	"github.com/zsiec/fdclink/internal/metrics"
	"github.com/zsiec/fdclink/internal/queue"
	"github.com/zsiec/fdclink/internal/reconnect"
	"github.com/zsiec/fdclink/internal/telemetry"
)

// NewRedisClient builds a client for the first configured address.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addresses[0],
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
}

// RedisOptions configures the Redis stream recorder.
type RedisOptions struct {
	Stream string
	MaxLen int64 // approximate cap, 0 keeps everything

	// Retry paces writes while Redis is unreachable. It should retry
	// forever; the spool absorbs frames in the meantime.
	Retry reconnect.Strategy
}

// Redis appends frames to a Redis stream. Consume only spools the entry;
// a single drain goroutine writes the spool to Redis in order, so a slow
// or absent server never stalls the link.
type Redis struct {
	client *redis.Client
	spool  *queue.HybridQueue
	opts   RedisOptions
	log    *logger.SampledLogger
	retry  *reconnect.Manager
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	written uint64
}

// NewRedis returns a recorder that spools frames into spool and writes
// them to opts.Stream once Start is called.
func NewRedis(client *redis.Client, spool *queue.HybridQueue, opts RedisOptions, log logger.Logger) *Redis {
	if opts.Retry == nil {
		opts.Retry = reconnect.NewExponentialBackoff(100*time.Millisecond, 5*time.Second, 2, 0)
	}
	sampled := logger.NewLinkLogger(log.WithFields(map[string]interface{}{
		"sink":   config.SinkRedis,
		"stream": opts.Stream,
	}))
	return &Redis{
		client: client,
		spool:  spool,
		opts:   opts,
		log:    sampled,
		retry:  reconnect.NewManager(opts.Retry, sampled),
		now:    time.Now,
	}
}

// Start launches the drain goroutine.
func (r *Redis) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.drain(ctx)
}

// Consume spools frame for the drain goroutine.
func (r *Redis) Consume(_ context.Context, frame telemetry.Frame) error {
	entry, err := NewEntry(frame, r.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	if err := r.spool.Enqueue(data); err != nil {
		reason := metrics.DropWriteError
		if errors.Is(err, queue.ErrRateLimited) {
			reason = metrics.DropRateLimit
		}
		metrics.IncrementSpoolDropped(reason)
		r.log.WarnWithCategory(logger.CategorySpool, "Frame dropped by spool", map[string]interface{}{
			"reason": reason,
			"error":  err.Error(),
		})
		return fmt.Errorf("spool frame: %w", err)
	}
	metrics.SetSpoolDepth(r.spool.GetDepth())
	return nil
}

func (r *Redis) drain(ctx context.Context) {
	defer r.wg.Done()

	for {
		data, err := r.spool.Dequeue(ctx)
		if err != nil {
			return
		}
		metrics.SetSpoolDepth(r.spool.GetDepth())

		err = r.retry.Connect(ctx, func(ctx context.Context) error {
			return r.write(ctx, data)
		})
		if err != nil {
			// Shutting down with the record in hand: put it back at the
			// head of the spool so the next run writes it first.
			if qerr := r.spool.Requeue(data); qerr != nil {
				metrics.IncrementSpoolDropped(metrics.DropWriteError)
				r.log.WithError(qerr).Error("Lost in-flight frame on shutdown")
			}
			return
		}
	}
}

func (r *Redis) write(ctx context.Context, data []byte) error {
	var head struct {
		Schema string `json:"schema"`
		Valid  bool   `json:"valid"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		// A corrupt spool record can never be written; skip it.
		r.log.WithError(err).Error("Discarding unreadable spool record")
		metrics.IncrementSpoolDropped(metrics.DropWriteError)
		return nil
	}

	args := &redis.XAddArgs{
		Stream: r.opts.Stream,
		Values: map[string]interface{}{
			"schema": head.Schema,
			"valid":  strconv.FormatBool(head.Valid),
			"frame":  string(data),
		},
	}
	if r.opts.MaxLen > 0 {
		args.MaxLen = r.opts.MaxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		metrics.IncrementConsumeError(config.SinkRedis)
		return fmt.Errorf("xadd %s: %w", r.opts.Stream, err)
	}

	r.mu.Lock()
	r.written++
	r.mu.Unlock()
	return nil
}

// Written is the number of frames stored in Redis so far.
func (r *Redis) Written() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Close stops the drain and closes the spool. Frames not yet written stay
// in the spool's overflow file for the next run.
func (r *Redis) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return r.spool.Close()
}
