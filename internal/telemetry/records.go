package telemetry

import (
	"bytes"
	"encoding/binary"
	"time"
)

// byteOrder is the native order of the flight computer that writes the link.
var byteOrder = binary.LittleEndian

// Record is a decoded frame. The set of implementations is closed: one
// value type per registered schema.
type Record interface {
	// Tag returns the header tag of the record's variant.
	Tag() Tag
	// Checksum returns the CRC-8 trailer as received or sealed.
	Checksum() uint8
	// Uptime returns the transmitter's timestamp as a duration since boot.
	Uptime() time.Duration

	withChecksum(crc uint8) Record
}

var (
	CompactTag  = Tag{'A', 'D'}
	ExtendedTag = Tag{'A', 'N'}
)

// CompactRecord carries the 16 analog channels of the data acquisition
// board.
type CompactRecord struct {
	Channels  [16]float32 `json:"channels"`
	Timestamp int32       `json:"timestamp_ms"`
	CRC       uint8       `json:"crc"`
}

func (r CompactRecord) Tag() Tag              { return CompactTag }
func (r CompactRecord) Checksum() uint8       { return r.CRC }
func (r CompactRecord) Uptime() time.Duration { return time.Duration(r.Timestamp) * time.Millisecond }

func (r CompactRecord) withChecksum(crc uint8) Record {
	r.CRC = crc
	return r
}

// ExtendedRecord carries the navigation solution, GPS fix and air data.
// The two bytes after the tag are reserved and never stored.
type ExtendedRecord struct {
	_ [2]byte

	Accel      [3]float32 `json:"accel"`
	Gyro       [3]float32 `json:"gyro"`
	Attitude   [3]float32 `json:"attitude"`
	SensorTemp float32    `json:"sensor_temp"`

	Latitude  float32 `json:"latitude"`
	Longitude float32 `json:"longitude"`
	Altitude  float32 `json:"altitude"`
	VelNorth  float32 `json:"vel_north"`
	VelEast   float32 `json:"vel_east"`
	VelDown   float32 `json:"vel_down"`

	StaticPressure  float32 `json:"static_pressure"`
	DynamicPressure float32 `json:"dynamic_pressure"`
	AirTemperature  float32 `json:"air_temperature"`
	AngleOfAttack   float32 `json:"angle_of_attack"`
	Sideslip        float32 `json:"sideslip"`

	Timestamp int64 `json:"timestamp_ns"`
	CRC       uint8 `json:"crc"`
}

func (r ExtendedRecord) Tag() Tag              { return ExtendedTag }
func (r ExtendedRecord) Checksum() uint8       { return r.CRC }
func (r ExtendedRecord) Uptime() time.Duration { return time.Duration(r.Timestamp) }

func (r ExtendedRecord) withChecksum(crc uint8) Record {
	r.CRC = crc
	return r
}

// CompactSchema is the layout of the "AD" data acquisition frame.
func CompactSchema() Schema {
	return newSchema("daq", CompactTag, decodeCompact,
		Field{Name: "channels", Kind: KindFloat32, Count: 16},
		Field{Name: "timestamp", Kind: KindInt32},
		Field{Name: "crc", Kind: KindChecksum},
	)
}

// ExtendedSchema is the layout of the "AN" navigation frame.
func ExtendedSchema() Schema {
	return newSchema("nav", ExtendedTag, decodeExtended,
		Field{Name: "reserved", Kind: KindPadding, Count: 2},
		Field{Name: "accel", Kind: KindFloat32, Count: 3},
		Field{Name: "gyro", Kind: KindFloat32, Count: 3},
		Field{Name: "attitude", Kind: KindFloat32, Count: 3},
		Field{Name: "sensor_temp", Kind: KindFloat32},
		Field{Name: "latitude", Kind: KindFloat32},
		Field{Name: "longitude", Kind: KindFloat32},
		Field{Name: "altitude", Kind: KindFloat32},
		Field{Name: "vel_north", Kind: KindFloat32},
		Field{Name: "vel_east", Kind: KindFloat32},
		Field{Name: "vel_down", Kind: KindFloat32},
		Field{Name: "static_pressure", Kind: KindFloat32},
		Field{Name: "dynamic_pressure", Kind: KindFloat32},
		Field{Name: "air_temperature", Kind: KindFloat32},
		Field{Name: "angle_of_attack", Kind: KindFloat32},
		Field{Name: "sideslip", Kind: KindFloat32},
		Field{Name: "timestamp", Kind: KindInt64},
		Field{Name: "crc", Kind: KindChecksum},
	)
}

func decodeCompact(body []byte) (Record, error) {
	var rec CompactRecord
	if err := binary.Read(bytes.NewReader(body), byteOrder, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// decodeExtended relies on encoding/binary skipping blank fields, which
// consumes the reserved bytes without storing them.
func decodeExtended(body []byte) (Record, error) {
	var rec ExtendedRecord
	if err := binary.Read(bytes.NewReader(body), byteOrder, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func recordSize(rec Record) int {
	return binary.Size(rec)
}
