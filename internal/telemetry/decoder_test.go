package telemetry

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFrame(t *testing.T) {
	reg := DefaultRegistry()
	s, _ := reg.Lookup(CompactTag)
	frame, want := sealed(t, s, sampleCompact())

	r := &oneByteReader{data: append(append([]byte(nil), frame[TagSize:]...), 0x77)}
	got, err := NewDecoder(reg).ReadFrame(r, CompactTag)
	require.NoError(t, err)

	gotBytes, err := Encode(s, got)
	require.NoError(t, err)
	wantBytes, err := Encode(s, want)
	require.NoError(t, err)
	assert.Equal(t, wantBytes, gotBytes)
	assert.Equal(t, []byte{0x77}, r.data, "decoder must consume exactly the body")
}

func TestReadFrameFiveBytesShort(t *testing.T) {
	reg := DefaultRegistry()
	s, _ := reg.Lookup(CompactTag)
	frame, _ := sealed(t, s, sampleCompact())

	body := frame[TagSize : len(frame)-5]
	rec, err := NewDecoder(reg).ReadFrame(bytes.NewReader(body), CompactTag)
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, ErrStreamExhausted))
	assert.True(t, errors.Is(err, ErrTruncatedFrame))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	var te *TruncatedFrameError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, CompactTag, te.Tag)
	assert.Equal(t, 69, te.Want)
	assert.Equal(t, 64, te.Got)
	assert.Contains(t, te.Error(), "AD")
}

func TestReadFrameEmptyBody(t *testing.T) {
	_, err := NewDecoder(DefaultRegistry()).ReadFrame(bytes.NewReader(nil), ExtendedTag)
	assert.True(t, errors.Is(err, ErrStreamExhausted))
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReadFrameUnknownTag(t *testing.T) {
	_, err := NewDecoder(DefaultRegistry()).ReadFrame(bytes.NewReader(make([]byte, 200)), Tag{'Q', 'Q'})
	assert.True(t, errors.Is(err, ErrUnknownTag))
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("framing error") }

func TestReadFrameReadError(t *testing.T) {
	_, err := NewDecoder(DefaultRegistry()).ReadFrame(brokenReader{}, CompactTag)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrStreamExhausted))
	assert.Contains(t, err.Error(), "framing error")
}
