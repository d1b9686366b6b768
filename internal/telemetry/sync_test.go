package telemetry

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeek(t *testing.T) {
	tests := []struct {
		name    string
		stream  []byte
		tag     Tag
		skipped int
		next    byte
	}{
		{
			name:   "aligned",
			stream: []byte{0x41, 0x44, 0x99},
			tag:    CompactTag,
			next:   0x99,
		},
		{
			name:    "overlapping first byte",
			stream:  []byte{0x41, 0x41, 0x44, 0x99},
			tag:     CompactTag,
			skipped: 1,
			next:    0x99,
		},
		{
			name:    "noise then extended",
			stream:  []byte{0x00, 0xFF, 0x44, 0x41, 0x41, 0x4E, 0x99},
			tag:     ExtendedTag,
			skipped: 4,
			next:    0x99,
		},
		{
			name:    "reversed tag is noise",
			stream:  []byte{0x44, 0x41, 0x44, 0x99},
			tag:     CompactTag,
			skipped: 1,
			next:    0x99,
		},
	}

	sync := NewSynchronizer(DefaultRegistry())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader(tt.stream)
			tag, skipped, err := sync.Seek(r)
			require.NoError(t, err)
			assert.Equal(t, tt.tag, tag)
			assert.Equal(t, tt.skipped, skipped)

			b, err := r.ReadByte()
			require.NoError(t, err)
			assert.Equal(t, tt.next, b, "seek must stop right after the tag")
		})
	}
}

func TestSeekExhausted(t *testing.T) {
	tests := []struct {
		name    string
		stream  []byte
		skipped int
	}{
		{"empty", nil, 0},
		{"one byte", []byte{0x41}, 1},
		{"noise only", []byte{0x01, 0x02, 0x03, 0x41}, 4},
	}

	sync := NewSynchronizer(DefaultRegistry())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, skipped, err := sync.Seek(bytes.NewReader(tt.stream))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrStreamExhausted))
			assert.True(t, errors.Is(err, io.EOF))
			assert.False(t, errors.Is(err, ErrTruncatedFrame))
			assert.Equal(t, tt.skipped, skipped)
		})
	}
}

type failingByteReader struct{ err error }

func (r failingByteReader) ReadByte() (byte, error) { return 0, r.err }

func TestSeekPropagatesReadErrors(t *testing.T) {
	boom := errors.New("device unplugged")
	_, _, err := NewSynchronizer(DefaultRegistry()).Seek(failingByteReader{err: boom})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.False(t, errors.Is(err, ErrStreamExhausted))

	_, _, err = NewSynchronizer(DefaultRegistry()).Seek(failingByteReader{err: io.ErrClosedPipe})
	assert.True(t, errors.Is(err, ErrStreamExhausted))
}

func TestSeekUsesGivenRegistry(t *testing.T) {
	sync := NewSynchronizer(MustRegistry(ExtendedSchema()))
	tag, skipped, err := sync.Seek(bytes.NewReader([]byte{0x41, 0x44, 0x41, 0x4E}))
	require.NoError(t, err)
	assert.Equal(t, ExtendedTag, tag)
	assert.Equal(t, 2, skipped)
}
