package telemetry

import (
	"fmt"
	"strings"
)

// TagSize is the number of bytes in a header tag.
const TagSize = 2

// Tag is the 2-byte marker that opens every frame on the modem link.
type Tag [TagSize]byte

// ParseTag converts a 2-character string into a Tag.
func ParseTag(s string) (Tag, error) {
	if len(s) != TagSize {
		return Tag{}, fmt.Errorf("tag must be exactly %d bytes, got %d", TagSize, len(s))
	}
	return Tag{s[0], s[1]}, nil
}

// String renders printable tags as text and anything else as hex.
func (t Tag) String() string {
	for _, b := range t {
		if b < 0x20 || b > 0x7E {
			return fmt.Sprintf("0x%02x%02x", t[0], t[1])
		}
	}
	return string(t[:])
}

// Kind is the wire type of a schema field.
type Kind uint8

const (
	KindFloat32 Kind = iota + 1
	KindInt32
	KindInt64
	KindUint8
	KindPadding
	KindChecksum
)

// Size returns the byte width of one element of the kind.
func (k Kind) Size() int {
	switch k {
	case KindFloat32, KindInt32:
		return 4
	case KindInt64:
		return 8
	case KindUint8, KindPadding, KindChecksum:
		return 1
	default:
		return 0
	}
}

// MarshalText renders the kind by name in JSON and logs.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name as written by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	for c := KindFloat32; c <= KindChecksum; c++ {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown field kind %q", text)
}

func (k Kind) String() string {
	switch k {
	case KindFloat32:
		return "float32"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUint8:
		return "uint8"
	case KindPadding:
		return "padding"
	case KindChecksum:
		return "crc8"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Field describes one entry of a frame layout. Offsets are measured from
// the first tag byte.
type Field struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Count  int    `json:"count"`
	Offset int    `json:"offset"`
	Size   int    `json:"size"`
}

// Schema is the immutable layout descriptor of one frame variant.
type Schema struct {
	Name   string
	Tag    Tag
	Length int
	Fields []Field

	decode func(body []byte) (Record, error)
}

func (s *Schema) clone() *Schema {
	c := *s
	c.Fields = make([]Field, len(s.Fields))
	copy(c.Fields, s.Fields)
	return &c
}

// newSchema lays the fields out back to back after the tag.
func newSchema(name string, tag Tag, decode func([]byte) (Record, error), fields ...Field) Schema {
	offset := TagSize
	laid := make([]Field, len(fields))
	for i, f := range fields {
		if f.Count == 0 {
			f.Count = 1
		}
		f.Offset = offset
		f.Size = f.Kind.Size() * f.Count
		offset += f.Size
		laid[i] = f
	}
	return Schema{
		Name:   name,
		Tag:    tag,
		Length: offset,
		Fields: laid,
		decode: decode,
	}
}

// BodyLength is the number of bytes that follow the tag.
func (s *Schema) BodyLength() int {
	return s.Length - TagSize
}

// ChecksumField returns the trailing checksum field, if the schema has one.
func (s *Schema) ChecksumField() (Field, bool) {
	if len(s.Fields) == 0 {
		return Field{}, false
	}
	last := s.Fields[len(s.Fields)-1]
	return last, last.Kind == KindChecksum
}

// Covered returns the byte sequence the transmitter ran the CRC over: the
// tag followed by every data field, skipping padding and the checksum.
// It returns nil when frame is not exactly one schema length long.
func (s *Schema) Covered(frame []byte) []byte {
	if len(frame) != s.Length {
		return nil
	}
	out := make([]byte, 0, s.Length)
	out = append(out, frame[:TagSize]...)
	for _, f := range s.Fields {
		if f.Kind == KindPadding || f.Kind == KindChecksum {
			continue
		}
		out = append(out, frame[f.Offset:f.Offset+f.Size]...)
	}
	return out
}

// Describe renders the layout as an indented table.
func (s *Schema) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s tag=%q length=%d\n", s.Name, s.Tag.String(), s.Length)
	for _, f := range s.Fields {
		fmt.Fprintf(&b, "  %3d  %-16s %-8s x%-2d %3d bytes\n", f.Offset, f.Name, f.Kind, f.Count, f.Size)
	}
	return b.String()
}

func (s *Schema) validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema for tag %s has no name", s.Tag)
	}
	if s.decode == nil {
		return fmt.Errorf("schema %s has no decoder", s.Name)
	}
	if s.Length <= TagSize {
		return fmt.Errorf("schema %s: length %d leaves no room for a body", s.Name, s.Length)
	}

	offset := TagSize
	for i, f := range s.Fields {
		if f.Kind.Size() == 0 {
			return fmt.Errorf("schema %s: field %s has unsupported kind %s", s.Name, f.Name, f.Kind)
		}
		if f.Offset != offset {
			return fmt.Errorf("schema %s: field %s at offset %d, want %d", s.Name, f.Name, f.Offset, offset)
		}
		if f.Size != f.Kind.Size()*f.Count {
			return fmt.Errorf("schema %s: field %s size mismatch: got %d want %d", s.Name, f.Name, f.Size, f.Kind.Size()*f.Count)
		}
		if f.Kind == KindChecksum && i != len(s.Fields)-1 {
			return fmt.Errorf("schema %s: checksum field %s is not the last field", s.Name, f.Name)
		}
		offset += f.Size
	}
	if offset != s.Length {
		return fmt.Errorf("schema %s: fields cover %d bytes, length is %d", s.Name, offset, s.Length)
	}
	if cs, ok := s.ChecksumField(); ok && cs.Size != 1 {
		return fmt.Errorf("schema %s: checksum must be one byte, got %d", s.Name, cs.Size)
	}

	rec, err := s.decode(make([]byte, s.BodyLength()))
	if err != nil {
		return fmt.Errorf("schema %s: decoder rejects a zero body: %w", s.Name, err)
	}
	if rec.Tag() != s.Tag {
		return fmt.Errorf("schema %s: decoder produces records tagged %s", s.Name, rec.Tag())
	}
	if size := recordSize(rec); size != s.BodyLength() {
		return fmt.Errorf("schema %s: record occupies %d bytes, layout declares %d", s.Name, size, s.BodyLength())
	}
	return nil
}
