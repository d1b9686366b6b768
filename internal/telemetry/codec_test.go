package telemetry

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripBitExact(t *testing.T) {
	reg := DefaultRegistry()

	t.Run("compact", func(t *testing.T) {
		s, _ := reg.Lookup(CompactTag)
		frame, want := sealed(t, s, sampleCompact())

		got, err := reg.DecodeFrame(frame)
		require.NoError(t, err)
		rec, ok := got.(CompactRecord)
		require.True(t, ok)

		exp := want.(CompactRecord)
		for i := range exp.Channels {
			assert.Equal(t, math.Float32bits(exp.Channels[i]), math.Float32bits(rec.Channels[i]), "channel %d", i)
		}
		assert.Equal(t, exp.Timestamp, rec.Timestamp)
		assert.Equal(t, exp.CRC, rec.CRC)

		again, err := Encode(s, rec)
		require.NoError(t, err)
		assert.Equal(t, frame, again)
	})

	t.Run("extended", func(t *testing.T) {
		s, _ := reg.Lookup(ExtendedTag)
		frame, want := sealed(t, s, sampleExtended())

		got, err := reg.DecodeFrame(frame)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		again, err := Encode(s, got)
		require.NoError(t, err)
		assert.Equal(t, frame, again)
	})
}

func TestEncodeLayout(t *testing.T) {
	s := CompactSchema()
	rec := CompactRecord{Timestamp: 0x01020304, CRC: 0xAA}
	rec.Channels[0] = 1.0

	frame, err := Encode(&s, rec)
	require.NoError(t, err)
	require.Len(t, frame, 71)

	assert.Equal(t, []byte{'A', 'D'}, frame[:2])
	// 1.0f little-endian
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3F}, frame[2:6])
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, frame[66:70])
	assert.Equal(t, byte(0xAA), frame[70])
}

func TestEncodeExtendedZeroesReserved(t *testing.T) {
	s := ExtendedSchema()
	frame, err := Encode(&s, sampleExtended())
	require.NoError(t, err)
	assert.Equal(t, []byte{'A', 'N', 0, 0}, frame[:4])
}

func TestEncodeSchemaMismatch(t *testing.T) {
	s := ExtendedSchema()
	_, err := Encode(&s, sampleCompact())
	assert.True(t, errors.Is(err, ErrSchemaMismatch))

	_, _, err = Seal(&s, nil)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
}

func TestSealFillsChecksum(t *testing.T) {
	s := CompactSchema()
	frame, rec, err := Seal(&s, sampleCompact())
	require.NoError(t, err)
	assert.Equal(t, frame[70], rec.Checksum())
	assert.Equal(t, Checksum(s.Covered(frame)), rec.Checksum())
}

func TestDecodeBodyLength(t *testing.T) {
	reg := DefaultRegistry()
	s, _ := reg.Lookup(CompactTag)

	_, err := reg.Decode(CompactTag, make([]byte, s.BodyLength()-5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStreamExhausted))
	var te *TruncatedFrameError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, s.BodyLength()-5, te.Got)

	_, err = reg.Decode(CompactTag, make([]byte, s.BodyLength()+1))
	assert.True(t, errors.Is(err, ErrFrameSize))

	_, err = reg.Decode(Tag{'Z', 'Z'}, nil)
	assert.True(t, errors.Is(err, ErrUnknownTag))

	_, err = reg.DecodeFrame([]byte{'A'})
	assert.True(t, errors.Is(err, ErrTruncatedFrame))
}

func TestUptime(t *testing.T) {
	assert.Equal(t, "1.5s", CompactRecord{Timestamp: 1500}.Uptime().String())
	assert.Equal(t, "2s", ExtendedRecord{Timestamp: 2_000_000_000}.Uptime().String())
}
