package telemetry

import (
	"fmt"
	"io"
)

// Decoder reads the body of a frame whose tag has already been consumed.
type Decoder struct {
	reg *Registry
}

// NewDecoder returns a decoder for the schemas in reg.
func NewDecoder(reg *Registry) *Decoder {
	return &Decoder{reg: reg}
}

// ReadFrame reads exactly the schema's body length from r and decodes it.
// If the stream ends early the error is a *TruncatedFrameError.
func (d *Decoder) ReadFrame(r io.Reader, tag Tag) (Record, error) {
	s, ok := d.reg.lookup(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}

	body := make([]byte, s.BodyLength())
	n, err := io.ReadFull(r, body)
	if err != nil {
		if endOfStream(err) {
			return nil, &TruncatedFrameError{Tag: tag, Want: len(body), Got: n, Err: err}
		}
		return nil, fmt.Errorf("read %s body: %w", s.Name, err)
	}
	return s.Decode(body)
}
