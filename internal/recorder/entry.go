// Package recorder holds the consumers that persist or print decoded
// frames.
package recorder

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/zsiec/fdclink/internal/telemetry"
)

// Entry is the serialized form of one frame.
type Entry struct {
	ReceivedAt time.Time              `json:"received_at"`
	Schema     string                 `json:"schema"`
	Tag        string                 `json:"tag"`
	Valid      bool                   `json:"valid"`
	Skipped    int                    `json:"skipped,omitempty"`
	UptimeNS   int64                  `json:"uptime_ns"`
	Fields     map[string]interface{} `json:"fields"`
}

// NewEntry flattens frame into named field values following its schema
// layout. Reserved bytes are left out.
func NewEntry(frame telemetry.Frame, at time.Time) (Entry, error) {
	fields, err := fieldValues(frame.Schema, frame.Record)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ReceivedAt: at.UTC(),
		Schema:     frame.Schema.Name,
		Tag:        frame.Schema.Tag.String(),
		Valid:      frame.Valid,
		Skipped:    frame.Skipped,
		UptimeNS:   int64(frame.Record.Uptime()),
		Fields:     fields,
	}, nil
}

func fieldValues(s *telemetry.Schema, rec telemetry.Record) (map[string]interface{}, error) {
	raw, err := telemetry.Encode(s, rec)
	if err != nil {
		return nil, fmt.Errorf("flatten %s record: %w", s.Name, err)
	}

	out := make(map[string]interface{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Kind == telemetry.KindPadding {
			continue
		}
		width := f.Kind.Size()
		vals := make([]interface{}, f.Count)
		for i := range vals {
			b := raw[f.Offset+i*width : f.Offset+(i+1)*width]
			vals[i] = scalar(f.Kind, b)
		}
		if f.Count == 1 {
			out[f.Name] = vals[0]
		} else {
			out[f.Name] = vals
		}
	}
	return out, nil
}

func scalar(k telemetry.Kind, b []byte) interface{} {
	switch k {
	case telemetry.KindFloat32:
		return float32Value(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case telemetry.KindInt32:
		return int32(binary.LittleEndian.Uint32(b))
	case telemetry.KindInt64:
		return int64(binary.LittleEndian.Uint64(b))
	default:
		return b[0]
	}
}

// float32Value keeps the shortest decimal form of v. JSON has no NaN or
// infinities, so those are written as strings.
func float32Value(v float32) interface{} {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, 32))
}
