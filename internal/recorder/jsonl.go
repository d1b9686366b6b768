package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/zsiec/fdclink/internal/telemetry"
)

// JSONL writes one JSON object per frame.
type JSONL struct {
	mu     sync.Mutex
	w      *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
	now    func() time.Time
}

// NewJSONL writes to w. Each frame is flushed as soon as it is written.
func NewJSONL(w io.Writer) *JSONL {
	bw := bufio.NewWriter(w)
	return &JSONL{w: bw, enc: json.NewEncoder(bw), now: time.Now}
}

// OpenJSONL appends to the file at path, or writes to stdout for "-".
func OpenJSONL(path string) (*JSONL, error) {
	if path == "" || path == "-" {
		return NewJSONL(os.Stdout), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open jsonl output: %w", err)
	}
	j := NewJSONL(f)
	j.closer = f
	return j, nil
}

// Consume writes frame as one line and flushes it.
func (j *JSONL) Consume(_ context.Context, frame telemetry.Frame) error {
	entry, err := NewEntry(frame, j.now())
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(entry); err != nil {
		return fmt.Errorf("write jsonl entry: %w", err)
	}
	return j.w.Flush()
}

// Close flushes and closes the underlying file, if the recorder owns one.
func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.w.Flush(); err != nil {
		return err
	}
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
