package telemetry

import "github.com/sigurn/crc8"

// crcParams is CRC-8 with polynomial 0x1D5 (x^8+x^7+x^6+x^4+x^2+1, written
// 0xD5 without the implicit top bit), MSB first, zero init, no final xor.
var crcParams = crc8.Params{
	Poly:   0xD5,
	Init:   0x00,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xBC,
	Name:   "CRC-8/DVB-S2",
}

var crcTable = crc8.MakeTable(crcParams)

// Checksum computes the link CRC-8 over covered.
func Checksum(covered []byte) uint8 {
	return crc8.Checksum(covered, crcTable)
}

// Validate rebuilds the bytes the transmitter covered with the CRC and
// compares the result with the record's trailer. It does not modify rec.
func Validate(rec Record, s *Schema) bool {
	if _, ok := s.ChecksumField(); !ok {
		return true
	}
	frame, err := Encode(s, rec)
	if err != nil {
		return false
	}
	return Checksum(s.Covered(frame)) == rec.Checksum()
}

// Validate checks rec against the schema registered for its tag.
func (r *Registry) Validate(rec Record) bool {
	s, ok := r.lookup(rec.Tag())
	if !ok {
		return false
	}
	return Validate(rec, s)
}
