package telemetry

import "io"

// Synchronizer finds frame boundaries in an unframed byte stream.
//
// The scan keeps a 2-byte window and slides it one byte at a time, so a
// tag byte that fails as the first byte of a window is retried as the
// second. A tag pattern occurring inside a payload is matched like any
// other; the checksum is what catches such false starts.
type Synchronizer struct {
	reg *Registry
}

// NewSynchronizer returns a synchronizer matching the tags in reg.
func NewSynchronizer(reg *Registry) *Synchronizer {
	return &Synchronizer{reg: reg}
}

// Seek reads from r until two consecutive bytes form a registered tag. It
// returns the tag and the number of bytes discarded before it. When the
// stream ends first the error matches ErrStreamExhausted and skipped still
// reports how much noise was consumed.
func (s *Synchronizer) Seek(r io.ByteReader) (tag Tag, skipped int, err error) {
	prev, err := r.ReadByte()
	if err != nil {
		return Tag{}, 0, exhausted(err)
	}
	cur, err := r.ReadByte()
	if err != nil {
		return Tag{}, 1, exhausted(err)
	}
	for {
		tag = Tag{prev, cur}
		if _, ok := s.reg.lookup(tag); ok {
			return tag, skipped, nil
		}
		prev = cur
		skipped++
		if cur, err = r.ReadByte(); err != nil {
			return Tag{}, skipped + 1, exhausted(err)
		}
	}
}
