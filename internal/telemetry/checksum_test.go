package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumCheckValue(t *testing.T) {
	assert.Equal(t, uint8(0xBC), Checksum([]byte("123456789")))
	assert.Equal(t, uint8(0xBC), referenceCRC([]byte("123456789")))
	assert.Equal(t, uint8(0x00), Checksum(nil))
}

func TestChecksumMatchesReference(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i*31 + 7)
	}
	for n := 0; n <= len(data); n += 17 {
		assert.Equal(t, referenceCRC(data[:n]), Checksum(data[:n]), "prefix %d", n)
	}
}

func TestValidateCompactEndToEnd(t *testing.T) {
	s := CompactSchema()
	frame, _ := sealed(t, &s, sampleCompact())
	require.Len(t, frame, 71)

	// The trailer is the CRC of tag + channels + timestamp.
	assert.Equal(t, referenceCRC(frame[:70]), frame[70])

	reg := DefaultRegistry()
	rec, err := reg.DecodeFrame(frame)
	require.NoError(t, err)
	assert.True(t, Validate(rec, &s))
	assert.True(t, reg.Validate(rec))

	frame[70] ^= 0x01
	rec, err = reg.DecodeFrame(frame)
	require.NoError(t, err)
	assert.False(t, Validate(rec, &s))
}

func TestValidateExtendedIgnoresReservedBytes(t *testing.T) {
	s := ExtendedSchema()
	frame, _ := sealed(t, &s, sampleExtended())
	require.Len(t, frame, 97)

	frame[2], frame[3] = 0xDE, 0xAD
	rec, err := DefaultRegistry().DecodeFrame(frame)
	require.NoError(t, err)
	assert.True(t, Validate(rec, &s))
}

func TestValidateDetectsSingleByteCorruption(t *testing.T) {
	reg := DefaultRegistry()
	for _, s := range reg.Schemas() {
		var rec Record = CompactRecord{}
		if s.Tag == ExtendedTag {
			rec = sampleExtended()
		} else {
			rec = sampleCompact()
		}
		frame, _ := sealed(t, s, rec)

		cs, _ := s.ChecksumField()
		for _, f := range s.Fields {
			if f.Kind == KindPadding || f.Kind == KindChecksum {
				continue
			}
			for off := f.Offset; off < f.Offset+f.Size; off++ {
				corrupt := append([]byte(nil), frame...)
				corrupt[off] ^= 0x5A
				got, err := reg.DecodeFrame(corrupt)
				require.NoError(t, err)
				assert.False(t, Validate(got, s), "%s byte %d", s.Name, off)
			}
		}
		assert.Equal(t, s.Length-1, cs.Offset)
	}
}

func TestValidateIsPure(t *testing.T) {
	s := CompactSchema()
	_, rec := sealed(t, &s, sampleCompact())
	before := rec.(CompactRecord)

	for i := 0; i < 3; i++ {
		assert.True(t, Validate(rec, &s))
	}
	assert.Equal(t, before.CRC, rec.Checksum())
}

func TestValidateWrongSchema(t *testing.T) {
	s := ExtendedSchema()
	_, rec := sealed(t, func() *Schema { c := CompactSchema(); return &c }(), sampleCompact())
	assert.False(t, Validate(rec, &s))

	reg := MustRegistry(ExtendedSchema())
	assert.False(t, reg.Validate(rec))
}
