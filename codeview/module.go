package codeview

import (
	"github.com/skdltmxn/cv50-go/internal/stream"
)

// Module is a parsed sstModule subsection describing one compilation unit.
type Module struct {
	// Index is the iMod of the directory entry (1-based)
	Index uint16

	Overlay  uint16
	Library  uint16 // Index into sstLibraries, 0 if none
	Style    uint16 // "CV" for CodeView
	Segments []ModuleSegment
	Name     string
}

// ModuleSegment is a code contribution of a module.
type ModuleSegment struct {
	Segment uint16
	Offset  uint32
	Length  uint32
}

// ParseModule parses an sstModule subsection.
func ParseModule(index uint16, data []byte) (*Module, error) {
	r := stream.NewReader(data)
	m := &Module{Index: index}

	fail := func(err error) (*Module, error) {
		return nil, &FormatError{Structure: "sstModule", Offset: int64(r.Offset()), Message: "truncated", Err: err}
	}

	var err error
	if m.Overlay, err = r.ReadU16(); err != nil {
		return fail(err)
	}
	if m.Library, err = r.ReadU16(); err != nil {
		return fail(err)
	}
	segCount, err := r.ReadU16()
	if err != nil {
		return fail(err)
	}
	if m.Style, err = r.ReadU16(); err != nil {
		return fail(err)
	}

	m.Segments = make([]ModuleSegment, 0, segCount)
	for range segCount {
		var seg ModuleSegment
		if seg.Segment, err = r.ReadU16(); err != nil {
			return fail(err)
		}
		if err = r.Skip(2); err != nil { // pad
			return fail(err)
		}
		if seg.Offset, err = r.ReadU32(); err != nil {
			return fail(err)
		}
		if seg.Length, err = r.ReadU32(); err != nil {
			return fail(err)
		}
		m.Segments = append(m.Segments, seg)
	}

	if r.Remaining() > 0 {
		if m.Name, err = r.ReadPString(); err != nil {
			return fail(err)
		}
	}
	return m, nil
}

// Modules parses every sstModule subsection of s. Malformed entries are
// returned as an error alongside the modules that did parse.
func (s *Stream) Modules() ([]*Module, error) {
	var mods []*Module
	var firstErr error
	for sub := range s.All(SstModule) {
		m, err := ParseModule(sub.Module, sub.Data)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		mods = append(mods, m)
	}
	return mods, firstErr
}
