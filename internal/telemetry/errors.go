package telemetry

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

var (
	// ErrStreamExhausted is returned when the byte source ends, either while
	// scanning for a header or in the middle of a frame.
	ErrStreamExhausted = errors.New("telemetry: stream exhausted")

	// ErrTruncatedFrame marks an exhaustion that happened after a header
	// matched.
	ErrTruncatedFrame = errors.New("telemetry: truncated frame")

	// ErrUnknownTag means a tag reached the decoder without a schema. The
	// synchronizer only reports registered tags, so this is a wiring bug.
	ErrUnknownTag = errors.New("telemetry: unknown tag")

	// ErrDuplicateTag is returned when two schemas share a tag.
	ErrDuplicateTag = errors.New("telemetry: duplicate tag")

	// ErrFrameSize is returned when a buffer handed to the pure decoder is
	// longer than the schema allows.
	ErrFrameSize = errors.New("telemetry: frame size mismatch")

	// ErrSchemaMismatch is returned when a record is encoded with a schema
	// of another variant.
	ErrSchemaMismatch = errors.New("telemetry: record does not match schema")
)

// TruncatedFrameError reports how far a frame got before the stream ended.
// It matches both ErrStreamExhausted and ErrTruncatedFrame.
type TruncatedFrameError struct {
	Tag  Tag
	Want int
	Got  int
	Err  error
}

func (e *TruncatedFrameError) Error() string {
	return fmt.Sprintf("telemetry: frame %s truncated: got %d of %d body bytes", e.Tag, e.Got, e.Want)
}

func (e *TruncatedFrameError) Is(target error) bool {
	return target == ErrStreamExhausted || target == ErrTruncatedFrame
}

func (e *TruncatedFrameError) Unwrap() error {
	return e.Err
}

// endOfStream reports whether err means the source has no more bytes.
func endOfStream(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed)
}

func exhausted(err error) error {
	if endOfStream(err) {
		return fmt.Errorf("%w: %w", ErrStreamExhausted, err)
	}
	return fmt.Errorf("telemetry: read: %w", err)
}
