package telemetry

import (
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// referenceCRC is a bit-at-a-time CRC-8 with polynomial 0x1D5, MSB first.
func referenceCRC(data []byte) uint8 {
	var crc uint8
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0xD5
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func sampleCompact() CompactRecord {
	var rec CompactRecord
	for i := range rec.Channels {
		rec.Channels[i] = float32(i)*1.25 - 3.5
	}
	rec.Channels[7] = math.Float32frombits(0x7FC00001) // NaN with payload
	rec.Channels[8] = float32(math.Inf(-1))
	rec.Channels[9] = math.Float32frombits(0x80000000) // -0
	rec.Timestamp = 123456789
	return rec
}

func sampleExtended() ExtendedRecord {
	return ExtendedRecord{
		Accel:           [3]float32{0.01, -0.02, 9.81},
		Gyro:            [3]float32{0.001, 0.002, -0.003},
		Attitude:        [3]float32{1.5, -2.5, 179.9},
		SensorTemp:      36.6,
		Latitude:        -22.8197,
		Longitude:       -47.0647,
		Altitude:        612.5,
		VelNorth:        12.1,
		VelEast:         -3.4,
		VelDown:         0.2,
		StaticPressure:  94210.5,
		DynamicPressure: 120.25,
		AirTemperature:  24.75,
		AngleOfAttack:   2.5,
		Sideslip:        -0.75,
		Timestamp:       9_876_543_210_123,
	}
}

func sealed(t *testing.T, s *Schema, rec Record) ([]byte, Record) {
	t.Helper()
	frame, out, err := Seal(s, rec)
	require.NoError(t, err)
	return frame, out
}

// oneByteReader hands out a single byte per Read call, like a slow tty.
type oneByteReader struct {
	data []byte
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}
