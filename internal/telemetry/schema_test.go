package telemetry

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSchemas(t *testing.T) {
	tests := []struct {
		name     string
		schema   Schema
		tag      Tag
		length   int
		covered  int
		checksum int
	}{
		{
			name:     "daq",
			schema:   CompactSchema(),
			tag:      Tag{0x41, 0x44},
			length:   71,
			covered:  2 + 16*4 + 4,
			checksum: 70,
		},
		{
			name:     "nav",
			schema:   ExtendedSchema(),
			tag:      Tag{0x41, 0x4E},
			length:   97,
			covered:  2 + 21*4 + 8,
			checksum: 96,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.schema
			require.NoError(t, s.validate())
			assert.Equal(t, tt.name, s.Name)
			assert.Equal(t, tt.tag, s.Tag)
			assert.Equal(t, tt.length, s.Length)
			assert.Equal(t, tt.length-TagSize, s.BodyLength())

			cs, ok := s.ChecksumField()
			require.True(t, ok)
			assert.Equal(t, tt.checksum, cs.Offset)
			assert.Equal(t, 1, cs.Size)

			assert.Len(t, s.Covered(make([]byte, s.Length)), tt.covered)
			assert.Nil(t, s.Covered(make([]byte, s.Length-1)))
		})
	}
}

func TestExtendedSchemaPaddingFollowsTag(t *testing.T) {
	s := ExtendedSchema()
	require.NotEmpty(t, s.Fields)
	first := s.Fields[0]
	assert.Equal(t, KindPadding, first.Kind)
	assert.Equal(t, TagSize, first.Offset)
	assert.Equal(t, 2, first.Size)
	assert.Equal(t, s.BodyLength(), binary.Size(ExtendedRecord{}))
}

func TestCoveredSkipsPadding(t *testing.T) {
	s := ExtendedSchema()
	frame := make([]byte, s.Length)
	for i := range frame {
		frame[i] = byte(i)
	}
	covered := s.Covered(frame)

	assert.Equal(t, []byte{0, 1}, covered[:2])
	// bytes 2 and 3 are reserved, the first covered data byte is 4
	assert.Equal(t, byte(4), covered[2])
	assert.Equal(t, byte(95), covered[len(covered)-1])
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "AD", CompactTag.String())
	assert.Equal(t, "AN", ExtendedTag.String())
	assert.Equal(t, "0x00ff", Tag{0x00, 0xFF}.String())
}

func TestParseTag(t *testing.T) {
	tag, err := ParseTag("AD")
	require.NoError(t, err)
	assert.Equal(t, CompactTag, tag)

	_, err = ParseTag("ADN")
	assert.Error(t, err)
	_, err = ParseTag("")
	assert.Error(t, err)
}

func TestSchemaValidateRejectsBrokenLayouts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Schema)
	}{
		{"no name", func(s *Schema) { s.Name = "" }},
		{"no decoder", func(s *Schema) { s.decode = nil }},
		{"length mismatch", func(s *Schema) { s.Length++ }},
		{"gap between fields", func(s *Schema) { s.Fields[1].Offset++ }},
		{"wrong field size", func(s *Schema) { s.Fields[0].Size = 3 }},
		{"checksum not last", func(s *Schema) {
			s.Fields[0], s.Fields[len(s.Fields)-1] = s.Fields[len(s.Fields)-1], s.Fields[0]
		}},
		{"unsupported kind", func(s *Schema) { s.Fields[1].Kind = Kind(99) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := CompactSchema()
			fields := make([]Field, len(s.Fields))
			copy(fields, s.Fields)
			s.Fields = fields
			tt.mutate(&s)
			assert.Error(t, s.validate())
		})
	}
}

func TestSchemaValidateRejectsMismatchedDecoder(t *testing.T) {
	s := CompactSchema()
	s.decode = decodeExtended
	assert.Error(t, s.validate())
}

func TestDescribe(t *testing.T) {
	s := CompactSchema()
	out := s.Describe()
	assert.Contains(t, out, `daq tag="AD" length=71`)
	assert.Contains(t, out, "channels")
	assert.Contains(t, out, "float32")
	assert.Contains(t, out, "crc8")

	nav := ExtendedSchema()
	assert.Contains(t, nav.Describe(), "padding")
}

func TestKindString(t *testing.T) {
	text, err := KindInt64.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "int64", string(text))
	assert.Equal(t, "kind(42)", Kind(42).String())
	assert.Equal(t, 0, Kind(42).Size())
}

func TestKindTextRoundTrip(t *testing.T) {
	for _, name := range []string{"float32", "int32", "int64", "uint8", "padding", "crc8"} {
		var k Kind
		require.NoError(t, k.UnmarshalText([]byte(name)))
		assert.Equal(t, name, k.String())
	}

	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("float64")))
	assert.Error(t, k.UnmarshalText([]byte("kind(42)")))
}

func TestFieldsJSONRoundTrip(t *testing.T) {
	nav := ExtendedSchema()
	data, err := json.Marshal(nav.Fields)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"padding"`)

	var got []Field
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, nav.Fields, got)
}
