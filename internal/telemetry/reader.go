package telemetry

import (
	"bufio"
	"errors"
	"io"
)

// Frame is one synchronized, decoded and checked frame.
type Frame struct {
	Schema  *Schema
	Record  Record
	Valid   bool
	Skipped int
}

// byteSource is what the synchronizer and decoder need from one stream.
type byteSource interface {
	io.Reader
	io.ByteReader
}

// Reader turns a byte stream into frames. It is not safe for concurrent use.
type Reader struct {
	src  byteSource
	reg  *Registry
	sync *Synchronizer
	dec  *Decoder
}

// NewReader reads frames from r. Sources without ReadByte are buffered.
func NewReader(r io.Reader, reg *Registry) *Reader {
	src, ok := r.(byteSource)
	if !ok {
		src = bufio.NewReader(r)
	}
	return &Reader{
		src:  src,
		reg:  reg,
		sync: NewSynchronizer(reg),
		dec:  NewDecoder(reg),
	}
}

// Next blocks until the next frame is read. A checksum mismatch is not an
// error: the frame is returned with Valid false. Once the stream is
// exhausted every call returns an error matching ErrStreamExhausted.
func (r *Reader) Next() (Frame, error) {
	tag, skipped, err := r.sync.Seek(r.src)
	if err != nil {
		return Frame{Skipped: skipped}, err
	}
	rec, err := r.dec.ReadFrame(r.src, tag)
	if err != nil {
		if errors.Is(err, ErrUnknownTag) {
			panic(err)
		}
		return Frame{Skipped: skipped}, err
	}
	s, _ := r.reg.Lookup(tag)
	return Frame{
		Schema:  s,
		Record:  rec,
		Valid:   Validate(rec, s),
		Skipped: skipped,
	}, nil
}
