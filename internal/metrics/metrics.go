package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decoder metrics
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fdclink_frames_total",
		Help: "Frames decoded by schema and checksum result",
	}, []string{"schema", "valid"})

	bytesReadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fdclink_bytes_read_total",
		Help: "Bytes read from the byte source",
	})

	bytesDiscardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fdclink_bytes_discarded_total",
		Help: "Bytes skipped while searching for a header",
	})

	frameIntervalSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fdclink_frame_interval_seconds",
		Help:    "Transmitter uptime between consecutive frames of one schema",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"schema"})

	lastFrameTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fdclink_last_frame_timestamp_seconds",
		Help: "Unix time at which the last frame was decoded",
	})

	// Source metrics
	linkUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fdclink_link_up",
		Help: "1 while the byte source is open",
	})

	exhaustionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fdclink_stream_exhausted_total",
		Help: "Times the byte source ended, by where the decoder was",
	}, []string{"state"})

	reopensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fdclink_source_reopens_total",
		Help: "Attempts to reopen the byte source",
	}, []string{"result"})

	// Recorder metrics
	consumeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fdclink_consume_errors_total",
		Help: "Frames the consumer failed to handle",
	}, []string{"sink"})

	spoolDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fdclink_spool_depth",
		Help: "Frames waiting in the recorder spool",
	})

	spoolDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fdclink_spool_dropped_total",
		Help: "Frames the spool refused",
	}, []string{"reason"})

	// Status server metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fdclink_http_requests_total",
		Help: "Status server requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fdclink_http_request_duration_seconds",
		Help:    "Status server request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Label values.
const (
	StateSeeking  = "seeking"
	StateMidFrame = "mid_frame"

	ResultOK     = "ok"
	ResultFailed = "failed"
	ResultGaveUp = "gave_up"

	DropRateLimit  = "rate_limited"
	DropWriteError = "write_error"
)

// RecordFrame counts one delivered frame.
func RecordFrame(schema string, valid bool, at time.Time) {
	framesTotal.WithLabelValues(schema, strconv.FormatBool(valid)).Inc()
	lastFrameTimestamp.Set(float64(at.UnixNano()) / 1e9)
}

// ObserveFrameInterval records the transmitter-side gap between frames.
// Negative gaps (transmitter reboot) are ignored.
func ObserveFrameInterval(schema string, gap time.Duration) {
	if gap < 0 {
		return
	}
	frameIntervalSeconds.WithLabelValues(schema).Observe(gap.Seconds())
}

// AddBytesRead counts bytes read from the source.
func AddBytesRead(n int) {
	bytesReadTotal.Add(float64(n))
}

// AddBytesDiscarded counts bytes skipped while searching for a header.
func AddBytesDiscarded(n int) {
	bytesDiscardedTotal.Add(float64(n))
}

// SetLinkUp reports whether a source is open.
func SetLinkUp(up bool) {
	if up {
		linkUp.Set(1)
		return
	}
	linkUp.Set(0)
}

// RecordExhaustion counts a source that ran dry, by where it ended.
func RecordExhaustion(state string) {
	exhaustionsTotal.WithLabelValues(state).Inc()
}

// RecordReopen counts a reopen attempt by result.
func RecordReopen(result string) {
	reopensTotal.WithLabelValues(result).Inc()
}

// IncrementConsumeError counts a frame the sink failed to take.
func IncrementConsumeError(sink string) {
	consumeErrorsTotal.WithLabelValues(sink).Inc()
}

// SetSpoolDepth sets the number of frames waiting in the spool.
func SetSpoolDepth(depth int64) {
	spoolDepth.Set(float64(depth))
}

// IncrementSpoolDropped counts a frame the spool refused.
func IncrementSpoolDropped(reason string) {
	spoolDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records one status server request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
