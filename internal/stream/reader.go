// Package stream provides binary reading utilities for CodeView parsing.
package stream

import (
	"encoding/binary"
	"errors"
)

// Errors returned by Reader
var (
	ErrUnexpectedEOF  = errors.New("stream: unexpected end of data")
	ErrNegativeOffset = errors.New("stream: negative offset")
	ErrInvalidNumeric = errors.New("stream: invalid numeric encoding")
)

// Numeric leaf prefixes. Values below LeafNumeric are stored inline.
const (
	LeafNumeric    uint16 = 0x8000
	LeafChar       uint16 = 0x8000
	LeafShort      uint16 = 0x8001
	LeafUShort     uint16 = 0x8002
	LeafLong       uint16 = 0x8003
	LeafULong      uint16 = 0x8004
	LeafReal32     uint16 = 0x8005
	LeafReal64     uint16 = 0x8006
	LeafReal80     uint16 = 0x8007
	LeafReal128    uint16 = 0x8008
	LeafQuadword   uint16 = 0x8009
	LeafUQuadword  uint16 = 0x800a
	LeafReal48     uint16 = 0x800b
	LeafComplex32  uint16 = 0x800c
	LeafComplex64  uint16 = 0x800d
	LeafComplex80  uint16 = 0x800e
	LeafComplex128 uint16 = 0x800f
	LeafVarString  uint16 = 0x8010
)

// Reader provides methods for reading binary data from CodeView streams.
// All multi-byte values are read in little-endian order.
type Reader struct {
	data   []byte
	offset int
}

// NewReader creates a Reader from a byte slice.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, offset: 0}
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.offset
}

// SetOffset sets the read position.
func (r *Reader) SetOffset(offset int) error {
	if offset < 0 {
		return ErrNegativeOffset
	}
	r.offset = offset
	return nil
}

// Len returns the size of the underlying data.
func (r *Reader) Len() int {
	return len(r.data)
}

// Remaining returns the number of bytes remaining.
func (r *Reader) Remaining() int {
	if r.offset >= len(r.data) {
		return 0
	}
	return len(r.data) - r.offset
}

// Skip advances the read position by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 {
		return ErrNegativeOffset
	}
	if r.offset+n > len(r.data) {
		return ErrUnexpectedEOF
	}
	r.offset += n
	return nil
}

// Align aligns the read position to the given boundary.
func (r *Reader) Align(alignment int) {
	if alignment <= 1 {
		return
	}
	mod := r.offset % alignment
	if mod != 0 {
		r.offset += alignment - mod
	}
}

// ReadU8 reads an unsigned 8-bit integer.
func (r *Reader) ReadU8() (uint8, error) {
	if r.offset >= len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := r.data[r.offset]
	r.offset++
	return v, nil
}

// ReadU16 reads an unsigned 16-bit integer.
func (r *Reader) ReadU16() (uint16, error) {
	if r.offset+2 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return v, nil
}

// ReadU32 reads an unsigned 32-bit integer.
func (r *Reader) ReadU32() (uint32, error) {
	if r.offset+4 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v, nil
}

// ReadU64 reads an unsigned 64-bit integer.
func (r *Reader) ReadU64() (uint64, error) {
	if r.offset+8 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return v, nil
}

// ReadI8 reads a signed 8-bit integer.
func (r *Reader) ReadI8() (int8, error) {
	v, err := r.ReadU8()
	return int8(v), err
}

// ReadI16 reads a signed 16-bit integer.
func (r *Reader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

// ReadI32 reads a signed 32-bit integer.
func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadI64 reads a signed 64-bit integer.
func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

// ReadBytesRef returns a reference to n bytes without copying.
// The returned slice is only valid as long as the underlying data.
func (r *Reader) ReadBytesRef(n int) ([]byte, error) {
	if n < 0 || r.offset+n > len(r.data) {
		return nil, ErrUnexpectedEOF
	}
	v := r.data[r.offset : r.offset+n]
	r.offset += n
	return v, nil
}

// ReadCString reads a null-terminated string.
func (r *Reader) ReadCString() (string, error) {
	start := r.offset
	for r.offset < len(r.data) {
		if r.data[r.offset] == 0 {
			s := string(r.data[start:r.offset])
			r.offset++ // Skip null terminator
			return s, nil
		}
		r.offset++
	}
	r.offset = start
	return "", ErrUnexpectedEOF
}

// ReadPString reads a length-prefixed string: one length byte followed by
// that many characters. VC50 records store every name this way.
func (r *Reader) ReadPString() (string, error) {
	n, err := r.ReadU8()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytesRef(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadNumeric reads a CodeView encoded numeric value as an unsigned quantity.
// Signed encodings are sign-extended before conversion.
func (r *Reader) ReadNumeric() (uint64, error) {
	v, err := r.ReadSignedNumeric()
	return uint64(v), err
}

// ReadSignedNumeric reads a CodeView encoded numeric value.
// This handles the variable-length encoding used in type and symbol records.
// Real and complex encodings are skipped and yield zero.
func (r *Reader) ReadSignedNumeric() (int64, error) {
	leaf, err := r.ReadU16()
	if err != nil {
		return 0, err
	}

	// Values less than 0x8000 are the value itself
	if leaf < LeafNumeric {
		return int64(leaf), nil
	}

	// Otherwise, leaf indicates the type of the following value
	switch leaf {
	case LeafChar:
		v, err := r.ReadI8()
		return int64(v), err
	case LeafShort:
		v, err := r.ReadI16()
		return int64(v), err
	case LeafUShort:
		v, err := r.ReadU16()
		return int64(v), err
	case LeafLong:
		v, err := r.ReadI32()
		return int64(v), err
	case LeafULong:
		v, err := r.ReadU32()
		return int64(v), err
	case LeafQuadword:
		return r.ReadI64()
	case LeafUQuadword:
		v, err := r.ReadU64()
		return int64(v), err
	case LeafReal32:
		return 0, r.Skip(4)
	case LeafReal48:
		return 0, r.Skip(6)
	case LeafReal64, LeafComplex32:
		return 0, r.Skip(8)
	case LeafReal80:
		return 0, r.Skip(10)
	case LeafReal128, LeafComplex64:
		return 0, r.Skip(16)
	case LeafComplex80:
		return 0, r.Skip(20)
	case LeafComplex128:
		return 0, r.Skip(32)
	case LeafVarString:
		n, err := r.ReadU16()
		if err != nil {
			return 0, err
		}
		return 0, r.Skip(int(n))
	default:
		return 0, ErrInvalidNumeric
	}
}

// PeekU8 returns the next byte without advancing the position.
func (r *Reader) PeekU8() (uint8, error) {
	if r.offset >= len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	return r.data[r.offset], nil
}

// PeekU16 returns the next 16-bit integer without advancing the position.
func (r *Reader) PeekU16() (uint16, error) {
	if r.offset+2 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	return binary.LittleEndian.Uint16(r.data[r.offset:]), nil
}

// Slice returns a new Reader for a subset of the data.
func (r *Reader) Slice(offset, length int) (*Reader, error) {
	if offset < 0 || length < 0 || offset+length > len(r.data) {
		return nil, ErrUnexpectedEOF
	}
	return NewReader(r.data[offset : offset+length]), nil
}

// Data returns the underlying byte slice.
func (r *Reader) Data() []byte {
	return r.data
}
