// Package training implements the fixed binary training-record layout and
// gzip chunk format self-play games emit for an external trainer to consume:
// one record per sampled position, the game's result stamped into every
// record once the game concludes.
package training

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Layout constants for the "V3" record.
const (
	FormatVersion = 3
	PolicySize    = 1858
	PlaneCount    = 104
)

// RecordSize is the fixed on-disk size of one Record: int32 + 1858 float32
// + 104 uint64 + 4 uint8 + uint8 + uint8 + uint8 + int8 = 8276 bytes.
const RecordSize = 4 + PolicySize*4 + PlaneCount*8 + 4 + 1 + 1 + 1 + 1

// Record is one sampled position, laid out field-by-field in declaration
// order with no implicit padding - encoding/binary.Write/Read serialize a
// struct's fields sequentially regardless of Go's in-memory alignment, so
// this type doubles as both the in-memory and the on-disk representation.
type Record struct {
	Version  int32
	Policy   [PolicySize]float32
	Planes   [PlaneCount]uint64
	Castling [4]uint8
	STM      uint8
	Rule50   uint8
	Reserved uint8
	Result   int8
}

// NewRecord builds a Record from a position's improved-policy visit
// distribution (sparse, indexed by move ID) and its plane encoding. The
// Result field is left zero; StampResult sets it once the game concludes.
func NewRecord(policy map[int32]float32, planes [PlaneCount]uint64, castling [4]uint8, stm, rule50 uint8) Record {
	var r Record
	r.Version = FormatVersion
	for move, p := range policy {
		if int(move) >= 0 && int(move) < PolicySize {
			r.Policy[move] = p
		}
	}
	r.Planes = planes
	r.Castling = castling
	r.STM = stm
	r.Rule50 = rule50
	return r
}

// StampResult sets the record's outcome from its own side-to-move's
// perspective: +1 win, 0 draw, -1 loss.
func (r *Record) StampResult(result int8) {
	r.Result = result
}

// MarshalBinary encodes r into the fixed RecordSize-byte V3 layout.
func (r Record) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, RecordSize))
	if err := binary.Write(buf, binary.LittleEndian, r); err != nil {
		return nil, errors.Wrap(err, "training: encode record")
	}
	if buf.Len() != RecordSize {
		return nil, errors.Errorf("training: encoded record is %d bytes, want %d", buf.Len(), RecordSize)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes data, which must be exactly RecordSize bytes,
// into r.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return errors.Errorf("training: record is %d bytes, want %d", len(data), RecordSize)
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, r)
}
