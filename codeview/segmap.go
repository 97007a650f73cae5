package codeview

import (
	"github.com/skdltmxn/cv50-go/internal/stream"
)

// SegmentMap describes the logical segments of an sstSegMap subsection.
type SegmentMap struct {
	Count    uint16
	LogCount uint16
	Entries  []SegmentDescriptor
}

// SegmentDescriptor describes a single logical segment.
type SegmentDescriptor struct {
	Flags       uint16
	Ovl         uint16
	Group       uint16
	Frame       uint16 // Physical section, 1-based
	SegmentName uint16
	ClassName   uint16
	Offset      uint32 // Offset of the logical segment within Frame
	Length      uint32
}

const segDescSize = 20

// ParseSegmentMap parses an sstSegMap subsection.
func ParseSegmentMap(data []byte) (*SegmentMap, error) {
	r := stream.NewReader(data)

	count, err := r.ReadU16()
	if err != nil {
		return nil, &FormatError{Structure: "sstSegMap", Message: "header", Err: err}
	}
	logCount, err := r.ReadU16()
	if err != nil {
		return nil, &FormatError{Structure: "sstSegMap", Message: "header", Err: err}
	}

	m := &SegmentMap{
		Count:    count,
		LogCount: logCount,
		Entries:  make([]SegmentDescriptor, 0, count),
	}

	for i := uint16(0); i < count && r.Remaining() >= segDescSize; i++ {
		var e SegmentDescriptor

		// Remaining() guarantees the fixed-size descriptor is present
		e.Flags, _ = r.ReadU16()
		e.Ovl, _ = r.ReadU16()
		e.Group, _ = r.ReadU16()
		e.Frame, _ = r.ReadU16()
		e.SegmentName, _ = r.ReadU16()
		e.ClassName, _ = r.ReadU16()
		e.Offset, _ = r.ReadU32()
		e.Length, _ = r.ReadU32()

		m.Entries = append(m.Entries, e)
	}

	return m, nil
}

// Map translates a logical segment and offset into a physical section and
// offset. A nil map, or a segment it does not describe, maps to itself.
func (m *SegmentMap) Map(segment uint16, offset uint32) (uint16, uint32) {
	if m == nil || segment == 0 || int(segment) > len(m.Entries) {
		return segment, offset
	}
	e := m.Entries[segment-1]
	if e.Frame == 0 {
		return segment, offset
	}
	return e.Frame, e.Offset + offset
}
