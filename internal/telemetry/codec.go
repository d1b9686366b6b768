package telemetry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Decode interprets body, the bytes that follow tag on the wire, as one
// record. It performs no I/O.
func (r *Registry) Decode(tag Tag, body []byte) (Record, error) {
	s, ok := r.lookup(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	return s.Decode(body)
}

// DecodeFrame decodes a complete frame, tag included.
func (r *Registry) DecodeFrame(frame []byte) (Record, error) {
	if len(frame) < TagSize {
		return nil, &TruncatedFrameError{Got: len(frame) - TagSize, Err: io.ErrUnexpectedEOF}
	}
	return r.Decode(Tag{frame[0], frame[1]}, frame[TagSize:])
}

// Decode interprets body according to the schema layout. A short body
// never yields a partial record.
func (s *Schema) Decode(body []byte) (Record, error) {
	want := s.BodyLength()
	switch {
	case len(body) < want:
		return nil, &TruncatedFrameError{Tag: s.Tag, Want: want, Got: len(body), Err: io.ErrUnexpectedEOF}
	case len(body) > want:
		return nil, fmt.Errorf("%w: schema %s body is %d bytes, got %d", ErrFrameSize, s.Name, want, len(body))
	}
	rec, err := s.decode(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Name, err)
	}
	return rec, nil
}

// Encode writes rec as a complete frame: the tag followed by the body
// exactly as stored, checksum included. Reserved bytes are written as zero.
func Encode(s *Schema, rec Record) ([]byte, error) {
	if rec == nil || rec.Tag() != s.Tag {
		return nil, fmt.Errorf("%w: schema %s", ErrSchemaMismatch, s.Name)
	}
	buf := bytes.NewBuffer(make([]byte, 0, s.Length))
	buf.Write(s.Tag[:])
	if err := binary.Write(buf, byteOrder, rec); err != nil {
		return nil, fmt.Errorf("encode %s: %w", s.Name, err)
	}
	if buf.Len() != s.Length {
		return nil, fmt.Errorf("%w: schema %s encodes %d bytes, want %d", ErrFrameSize, s.Name, buf.Len(), s.Length)
	}
	return buf.Bytes(), nil
}

// Seal computes the checksum the transmitter would send for rec and returns
// the finished frame together with the record carrying that checksum.
func Seal(s *Schema, rec Record) ([]byte, Record, error) {
	frame, err := Encode(s, rec)
	if err != nil {
		return nil, nil, err
	}
	cs, ok := s.ChecksumField()
	if !ok {
		return frame, rec, nil
	}
	crc := Checksum(s.Covered(frame))
	frame[cs.Offset] = crc
	return frame, rec.withChecksum(crc), nil
}
