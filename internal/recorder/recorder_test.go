package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/fdclink/internal/logger"
	"github.com/zsiec/fdclink/internal/queue"
	"github.com/zsiec/fdclink/internal/reconnect"
	"github.com/zsiec/fdclink/internal/telemetry"
)

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func compactFrame(t *testing.T, ts int32, valid bool) telemetry.Frame {
	t.Helper()
	s, ok := telemetry.DefaultRegistry().Lookup(telemetry.CompactTag)
	require.True(t, ok)

	rec := telemetry.CompactRecord{Timestamp: ts}
	for i := range rec.Channels {
		rec.Channels[i] = float32(i) * 0.5
	}
	rec.Channels[15] = float32(math.NaN())
	_, sealed, err := telemetry.Seal(s, rec)
	require.NoError(t, err)
	return telemetry.Frame{Schema: s, Record: sealed, Valid: valid}
}

func extendedFrame(t *testing.T) telemetry.Frame {
	t.Helper()
	s, ok := telemetry.DefaultRegistry().Lookup(telemetry.ExtendedTag)
	require.True(t, ok)
	_, sealed, err := telemetry.Seal(s, telemetry.ExtendedRecord{
		Latitude:  47.25,
		Longitude: float32(math.Inf(1)),
		Timestamp: 1_500_000_000,
	})
	require.NoError(t, err)
	return telemetry.Frame{Schema: s, Record: sealed, Valid: true, Skipped: 3}
}

func TestNewEntryCompact(t *testing.T) {
	frame := compactFrame(t, 2500, true)
	e, err := NewEntry(frame, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "daq", e.Schema)
	assert.Equal(t, "AD", e.Tag)
	assert.True(t, e.Valid)
	assert.Equal(t, int64(2500*time.Millisecond), e.UptimeNS)
	assert.Equal(t, fixedNow, e.ReceivedAt)

	channels, ok := e.Fields["channels"].([]interface{})
	require.True(t, ok)
	require.Len(t, channels, 16)
	assert.Equal(t, json.Number("0"), channels[0])
	assert.Equal(t, json.Number("0.5"), channels[1])
	assert.Equal(t, "NaN", channels[15])
	assert.Equal(t, int32(2500), e.Fields["timestamp"])
	assert.Equal(t, frame.Record.Checksum(), e.Fields["crc"])
}

func TestNewEntryExtendedOmitsReserved(t *testing.T) {
	e, err := NewEntry(extendedFrame(t), fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "nav", e.Schema)
	assert.Equal(t, 3, e.Skipped)
	assert.NotContains(t, e.Fields, "reserved")
	assert.Equal(t, json.Number("47.25"), e.Fields["latitude"])
	assert.Equal(t, "+Inf", e.Fields["longitude"])
	assert.Equal(t, int64(1_500_000_000), e.Fields["timestamp"])
	assert.Len(t, e.Fields["accel"], 3)

	// Non-finite values must not break encoding.
	_, err = json.Marshal(e)
	assert.NoError(t, err)
}

func TestConsoleLogsValidity(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	c := NewConsole(logger.NewLogrusAdapter(logrus.NewEntry(l)))
	require.NoError(t, c.Consume(context.Background(), compactFrame(t, 10, true)))
	require.NoError(t, c.Consume(context.Background(), compactFrame(t, 20, false)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.Equal(t, "info", first["level"])
	assert.Equal(t, true, first["valid"])
	assert.Equal(t, "10ms", first["uptime"])
	assert.Equal(t, "daq", first["schema"])
	assert.Equal(t, "console", first["sink"])

	assert.Equal(t, "warning", second["level"])
	assert.Equal(t, false, second["valid"])
}

func TestJSONLWritesOneObjectPerFrame(t *testing.T) {
	var buf bytes.Buffer
	j := NewJSONL(&buf)
	j.now = func() time.Time { return fixedNow }

	require.NoError(t, j.Consume(context.Background(), compactFrame(t, 1, true)))
	require.NoError(t, j.Consume(context.Background(), extendedFrame(t)))
	require.NoError(t, j.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var e Entry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e))
	assert.Equal(t, "nav", e.Schema)
	assert.Equal(t, "AN", e.Tag)
	assert.Equal(t, int64(1_500_000_000), e.UptimeNS)
	assert.Equal(t, 47.25, e.Fields["latitude"])
}

func TestOpenJSONLAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.jsonl")

	for i := 0; i < 2; i++ {
		j, err := OpenJSONL(path)
		require.NoError(t, err)
		require.NoError(t, j.Consume(context.Background(), compactFrame(t, int32(i), true)))
		require.NoError(t, j.Close())
	}

	j, err := OpenJSONL(filepath.Join(t.TempDir(), "missing", "dir", "x.jsonl"))
	assert.Error(t, err)
	assert.Nil(t, j)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func newSpool(t *testing.T, dir string) *queue.HybridQueue {
	t.Helper()
	q, err := queue.NewHybridQueue(queue.Options{Name: "redis", Dir: dir, MemorySize: 16})
	require.NoError(t, err)
	return q
}

func TestRedisRecorderWritesInOrder(t *testing.T) {
	_, client := setupRedis(t)

	r := NewRedis(client, newSpool(t, t.TempDir()), RedisOptions{Stream: "fdclink:frames"}, logger.NewNullLogger())
	r.now = func() time.Time { return fixedNow }
	r.Start(context.Background())
	defer r.Close()

	ctx := context.Background()
	for i := int32(1); i <= 3; i++ {
		require.NoError(t, r.Consume(ctx, compactFrame(t, i*10, i != 2)))
	}

	require.Eventually(t, func() bool { return r.Written() == 3 }, 2*time.Second, 10*time.Millisecond)

	msgs, err := client.XRange(ctx, "fdclink:frames", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	for i, msg := range msgs {
		assert.Equal(t, "daq", msg.Values["schema"])

		var e Entry
		require.NoError(t, json.Unmarshal([]byte(msg.Values["frame"].(string)), &e))
		assert.Equal(t, int64(i+1)*int64(10*time.Millisecond), e.UptimeNS)
	}
	assert.Equal(t, "true", msgs[0].Values["valid"])
	assert.Equal(t, "false", msgs[1].Values["valid"])
}

func TestRedisRecorderSpoolsWhileRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()
	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer client.Close()

	dir := t.TempDir()
	r := NewRedis(client, newSpool(t, dir), RedisOptions{
		Stream: "fdclink:frames",
		Retry:  reconnect.NewLinearBackoff(5*time.Millisecond, 0),
	}, logger.NewNullLogger())
	r.Start(context.Background())

	ctx := context.Background()
	require.NoError(t, r.Consume(ctx, compactFrame(t, 1, true)))
	require.NoError(t, r.Consume(ctx, compactFrame(t, 2, true)))

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, r.Close())
	assert.Equal(t, uint64(0), r.Written())

	reopened := newSpool(t, dir)
	defer reopened.Close()
	assert.Equal(t, int64(2), reopened.GetDepth())
}

func TestRedisRecorderKeepsInFlightFrameFirst(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()
	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer client.Close()

	dir := t.TempDir()
	r := NewRedis(client, newSpool(t, dir), RedisOptions{
		Stream: "fdclink:frames",
		Retry:  reconnect.NewLinearBackoff(5*time.Millisecond, 0),
	}, logger.NewNullLogger())

	ctx := context.Background()
	for i := int32(1); i <= 3; i++ {
		require.NoError(t, r.Consume(ctx, compactFrame(t, i, true)))
	}
	r.Start(ctx)

	// The drain holds frame 1 and keeps failing to write it.
	require.Eventually(t, func() bool { return r.spool.GetDepth() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, r.Close())

	reopened := newSpool(t, dir)
	defer reopened.Close()
	require.Equal(t, int64(3), reopened.GetDepth())

	for i := int64(1); i <= 3; i++ {
		data, err := reopened.DequeueTimeout(time.Second)
		require.NoError(t, err)
		var e Entry
		require.NoError(t, json.Unmarshal(data, &e))
		assert.Equal(t, i*int64(time.Millisecond), e.UptimeNS)
	}
}

func TestRedisRecorderRejectsWhenSpoolClosed(t *testing.T) {
	_, client := setupRedis(t)

	q := newSpool(t, t.TempDir())
	r := NewRedis(client, q, RedisOptions{Stream: "s"}, logger.NewNullLogger())
	require.NoError(t, q.Close())

	err := r.Consume(context.Background(), compactFrame(t, 1, true))
	assert.ErrorIs(t, err, queue.ErrQueueClosed)
}
