// Package lines parses VC50 sstSrcModule subsections, which map code
// offsets of one module to source files and line numbers.
package lines

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/cv50-go/internal/stream"
)

// ErrInvalidSourceModule indicates a malformed sstSrcModule subsection.
var ErrInvalidSourceModule = errors.New("lines: invalid source module")

// SegmentRange is the code range a module or file contributes to a segment.
type SegmentRange struct {
	Segment uint16
	Start   uint32
	End     uint32
}

// Block is the line map of one file within one segment.
type Block struct {
	Segment uint16
	Offsets []uint32
	Lines   []uint16
}

// File is one source file of a module.
type File struct {
	Name   string
	Ranges []SegmentRange
	Blocks []Block
}

// Module is a parsed sstSrcModule subsection.
type Module struct {
	Files  []File
	Ranges []SegmentRange
}

// Parse parses an sstSrcModule subsection. All offsets inside the
// subsection are relative to its start.
func Parse(data []byte) (*Module, error) {
	r := stream.NewReader(data)

	fileCount, err := r.ReadU16()
	if err != nil {
		return nil, wrap("header", 0, err)
	}
	segCount, err := r.ReadU16()
	if err != nil {
		return nil, wrap("header", 0, err)
	}

	fileBases, err := readU32s(r, int(fileCount))
	if err != nil {
		return nil, wrap("file table", r.Offset(), err)
	}
	ranges, err := readRanges(r, int(segCount))
	if err != nil {
		return nil, wrap("segment table", r.Offset(), err)
	}

	m := &Module{Ranges: ranges, Files: make([]File, 0, fileCount)}
	for _, base := range fileBases {
		f, err := parseFile(data, int(base))
		if err != nil {
			return nil, err
		}
		m.Files = append(m.Files, *f)
	}
	return m, nil
}

func parseFile(data []byte, base int) (*File, error) {
	r := stream.NewReader(data)
	if err := r.SetOffset(base); err != nil {
		return nil, wrap("file", base, err)
	}

	segCount, err := r.ReadU16()
	if err != nil {
		return nil, wrap("file", base, err)
	}
	if err := r.Skip(2); err != nil { // pad
		return nil, wrap("file", base, err)
	}
	lineBases, err := readU32s(r, int(segCount))
	if err != nil {
		return nil, wrap("file", base, err)
	}

	f := &File{Ranges: make([]SegmentRange, segCount)}
	for i := range f.Ranges {
		if f.Ranges[i].Start, err = r.ReadU32(); err != nil {
			return nil, wrap("file", base, err)
		}
		if f.Ranges[i].End, err = r.ReadU32(); err != nil {
			return nil, wrap("file", base, err)
		}
	}
	if f.Name, err = r.ReadPString(); err != nil {
		return nil, wrap("file name", r.Offset(), err)
	}

	f.Blocks = make([]Block, 0, segCount)
	for i, lb := range lineBases {
		b, err := parseBlock(data, int(lb))
		if err != nil {
			return nil, err
		}
		f.Ranges[i].Segment = b.Segment
		f.Blocks = append(f.Blocks, *b)
	}
	return f, nil
}

func parseBlock(data []byte, base int) (*Block, error) {
	r := stream.NewReader(data)
	if err := r.SetOffset(base); err != nil {
		return nil, wrap("line block", base, err)
	}

	seg, err := r.ReadU16()
	if err != nil {
		return nil, wrap("line block", base, err)
	}
	pairs, err := r.ReadU16()
	if err != nil {
		return nil, wrap("line block", base, err)
	}
	offsets, err := readU32s(r, int(pairs))
	if err != nil {
		return nil, wrap("line offsets", base, err)
	}

	lines := make([]uint16, pairs)
	for i := range lines {
		if lines[i], err = r.ReadU16(); err != nil {
			return nil, wrap("line numbers", base, err)
		}
	}

	return &Block{Segment: seg, Offsets: offsets, Lines: lines}, nil
}

func readU32s(r *stream.Reader, n int) ([]uint32, error) {
	if n*4 > r.Remaining() {
		return nil, stream.ErrUnexpectedEOF
	}
	out := make([]uint32, n)
	for i := range out {
		out[i], _ = r.ReadU32()
	}
	return out, nil
}

// readRanges reads cSeg start/end pairs followed by cSeg segment indices.
func readRanges(r *stream.Reader, n int) ([]SegmentRange, error) {
	if n*10 > r.Remaining() {
		return nil, stream.ErrUnexpectedEOF
	}
	out := make([]SegmentRange, n)
	for i := range out {
		out[i].Start, _ = r.ReadU32()
		out[i].End, _ = r.ReadU32()
	}
	for i := range out {
		out[i].Segment, _ = r.ReadU16()
	}
	return out, nil
}

func wrap(what string, offset int, err error) error {
	return fmt.Errorf("%w: %s at offset %#x: %v", ErrInvalidSourceModule, what, offset, err)
}
