// Package cvtest assembles synthetic VC50 CodeView data for tests.
package cvtest

import (
	"encoding/binary"
	"fmt"

	"github.com/skdltmxn/cv50-go/coff"
)

// Buffer assembles little-endian data.
type Buffer struct {
	b []byte
}

func (b *Buffer) U8(v uint8) *Buffer {
	b.b = append(b.b, v)
	return b
}

func (b *Buffer) U16(v uint16) *Buffer {
	b.b = binary.LittleEndian.AppendUint16(b.b, v)
	return b
}

func (b *Buffer) U32(v uint32) *Buffer {
	b.b = binary.LittleEndian.AppendUint32(b.b, v)
	return b
}

func (b *Buffer) I32(v int32) *Buffer {
	return b.U32(uint32(v))
}

// Name appends a length-prefixed string.
func (b *Buffer) Name(s string) *Buffer {
	b.b = append(b.b, byte(len(s)))
	b.b = append(b.b, s...)
	return b
}

// Numeric appends a CodeView numeric leaf, inline when it fits.
func (b *Buffer) Numeric(v int64) *Buffer {
	switch {
	case v >= 0 && v < 0x8000:
		return b.U16(uint16(v))
	case v >= -0x8000 && v < 0:
		return b.U16(0x8001).U16(uint16(int16(v)))
	default:
		return b.U16(0x8003).I32(int32(v))
	}
}

func (b *Buffer) Raw(p []byte) *Buffer {
	b.b = append(b.b, p...)
	return b
}

// PadLeaf pads to a 4-byte boundary with LF_PAD bytes.
func (b *Buffer) PadLeaf() *Buffer {
	for n := (4 - len(b.b)%4) % 4; n > 0; n-- {
		b.b = append(b.b, 0xF0|byte(n))
	}
	return b
}

func (b *Buffer) Len() int      { return len(b.b) }
func (b *Buffer) Bytes() []byte { return b.b }

// Types builds an sstGlobalTypes subsection.
type Types struct {
	records [][]byte
}

// Add appends a record and returns its type index.
func (t *Types) Add(kind uint16, data []byte) uint16 {
	var rec Buffer
	rec.U16(0).U16(kind).Raw(data).PadLeaf()
	binary.LittleEndian.PutUint16(rec.b, uint16(rec.Len()-2))
	t.records = append(t.records, rec.Bytes())
	return 0x1000 + uint16(len(t.records)-1)
}

// Next returns the index the next Add will assign.
func (t *Types) Next() uint16 {
	return 0x1000 + uint16(len(t.records))
}

func (t *Types) Bytes() []byte {
	var hdr, body Buffer
	hdr.U32(1).U32(uint32(len(t.records)))
	for _, rec := range t.records {
		hdr.U32(uint32(body.Len()))
		body.Raw(rec)
	}
	return append(hdr.Bytes(), body.Bytes()...)
}

// Symbols builds a symbol subsection. Offsets returned by Add are relative
// to the subsection start, as pParent fields expect.
type Symbols struct {
	aligned bool
	body    Buffer
}

// NewTable returns a builder for sstGlobalSym/sstGlobalPub/sstStaticSym.
func NewTable() *Symbols { return &Symbols{} }

// NewAligned returns a builder for sstAlignSym.
func NewAligned() *Symbols { return &Symbols{aligned: true} }

func (s *Symbols) headerSize() int {
	if s.aligned {
		return 4
	}
	return 16
}

// Offset returns the offset the next Add will use.
func (s *Symbols) Offset() uint32 {
	return uint32(s.headerSize() + s.body.Len())
}

// Add appends a record and returns its offset.
func (s *Symbols) Add(kind uint16, data []byte) uint32 {
	off := s.Offset()
	s.body.U16(uint16(len(data) + 2)).U16(kind).Raw(data)
	return off
}

func (s *Symbols) Bytes() []byte {
	var hdr Buffer
	if s.aligned {
		hdr.U32(1)
	} else {
		hdr.U16(0).U16(0).U32(uint32(s.body.Len())).U32(0).U32(0)
	}
	return append(hdr.Bytes(), s.body.Bytes()...)
}

// Proc32 encodes an S_GPROC32/S_LPROC32 body.
func Proc32(parent, end, length, off uint32, seg, typ uint16, name string) []byte {
	var b Buffer
	b.U32(parent).U32(end).U32(0).U32(length).U32(0).U32(length).
		U32(off).U16(seg).U16(typ).U8(0).Name(name)
	return b.Bytes()
}

// Block32 encodes an S_BLOCK32 body.
func Block32(parent, end, length, off uint32, seg uint16, name string) []byte {
	var b Buffer
	b.U32(parent).U32(end).U32(length).U32(off).U16(seg).Name(name)
	return b.Bytes()
}

// Thunk32 encodes an S_THUNK32 body.
func Thunk32(off uint32, seg, length uint16, name string) []byte {
	var b Buffer
	b.U32(0).U32(0).U32(0).U32(off).U16(seg).U16(length).U8(0).Name(name)
	return b.Bytes()
}

// Data32 encodes an S_GDATA32/S_LDATA32/S_PUB32 body.
func Data32(off uint32, seg, typ uint16, name string) []byte {
	var b Buffer
	b.U32(off).U16(seg).U16(typ).Name(name)
	return b.Bytes()
}

// BPRel32 encodes an S_BPREL32 body.
func BPRel32(off int32, typ uint16, name string) []byte {
	var b Buffer
	b.I32(off).U16(typ).Name(name)
	return b.Bytes()
}

// FieldList builds LF_FIELDLIST data.
type FieldList struct {
	Buffer
}

func (f *FieldList) Member(typ, attr uint16, offset int64, name string) *FieldList {
	f.U16(0x0406).U16(typ).U16(attr).Numeric(offset).Name(name).PadLeaf()
	return f
}

func (f *FieldList) StaticMember(typ, attr uint16, name string) *FieldList {
	f.U16(0x0407).U16(typ).U16(attr).Name(name).PadLeaf()
	return f
}

func (f *FieldList) BaseClass(typ, attr uint16, offset int64) *FieldList {
	f.U16(0x0400).U16(typ).U16(attr).Numeric(offset).PadLeaf()
	return f
}

func (f *FieldList) VirtualBaseClass(typ, vbptr, attr uint16) *FieldList {
	f.U16(0x0401).U16(typ).U16(vbptr).U16(attr).Numeric(0).Numeric(1).PadLeaf()
	return f
}

func (f *FieldList) Enumerate(attr uint16, value int64, name string) *FieldList {
	f.U16(0x0403).U16(attr).Numeric(value).Name(name).PadLeaf()
	return f
}

func (f *FieldList) Method(count, mlist uint16, name string) *FieldList {
	f.U16(0x0408).U16(count).U16(mlist).Name(name).PadLeaf()
	return f
}

func (f *FieldList) NestedType(typ uint16, name string) *FieldList {
	f.U16(0x0409).U16(typ).Name(name).PadLeaf()
	return f
}

func (f *FieldList) VFuncTab(typ uint16) *FieldList {
	f.U16(0x040a).U16(typ).PadLeaf()
	return f
}

func (f *FieldList) Index(next uint16) *FieldList {
	f.U16(0x0405).U16(next).PadLeaf()
	return f
}

// Struct encodes an LF_CLASS/LF_STRUCTURE body.
func Struct(count, fieldList, props uint16, size int64, name string) []byte {
	var b Buffer
	b.U16(count).U16(fieldList).U16(props).U16(0).U16(0).Numeric(size).Name(name)
	return b.Bytes()
}

// Union encodes an LF_UNION body.
func Union(count, fieldList, props uint16, size int64, name string) []byte {
	var b Buffer
	b.U16(count).U16(fieldList).U16(props).Numeric(size).Name(name)
	return b.Bytes()
}

// Enum encodes an LF_ENUM body.
func Enum(count, utype, fieldList, props uint16, name string) []byte {
	var b Buffer
	b.U16(count).U16(utype).U16(fieldList).U16(props).Name(name)
	return b.Bytes()
}

// ArgList encodes an LF_ARGLIST body.
func ArgList(args ...uint16) []byte {
	var b Buffer
	b.U16(uint16(len(args)))
	for _, a := range args {
		b.U16(a)
	}
	return b.Bytes()
}

// Procedure encodes an LF_PROCEDURE body.
func Procedure(ret uint16, argCount, argList uint16) []byte {
	var b Buffer
	b.U16(ret).U8(0).U8(0).U16(argCount).U16(argList)
	return b.Bytes()
}

// SegDesc is one sstSegMap descriptor.
type SegDesc struct {
	Frame  uint16
	Offset uint32
	Length uint32
}

// SegMap encodes an sstSegMap subsection.
func SegMap(descs ...SegDesc) []byte {
	var b Buffer
	b.U16(uint16(len(descs))).U16(uint16(len(descs)))
	for _, d := range descs {
		b.U16(0x0d).U16(0).U16(0).U16(d.Frame).U16(0xffff).U16(0xffff).U32(d.Offset).U32(d.Length)
	}
	return b.Bytes()
}

// SrcFile describes one file of an sstSrcModule with a single line block.
type SrcFile struct {
	Name    string
	Segment uint16
	Start   uint32
	End     uint32
	Offsets []uint32
	Lines   []uint16
}

// SrcModule encodes an sstSrcModule subsection.
func SrcModule(files ...SrcFile) []byte {
	// Header: cFile, cSeg (one range per file), file bases, ranges, segs
	hdrSize := 4 + 4*len(files) + 10*len(files)
	hdrSize += (4 - hdrSize%4) % 4

	var fileBlobs [][]byte
	off := hdrSize
	var bases []uint32
	for _, f := range files {
		bases = append(bases, uint32(off))

		// File entry: cSeg, pad, baseSrcLn, start/end, name
		entry := 4 + 4 + 8 + 1 + len(f.Name)
		entry += (4 - entry%4) % 4
		var fb Buffer
		fb.U16(1).U16(0).U32(uint32(off + entry)).U32(f.Start).U32(f.End).Name(f.Name)
		for fb.Len() < entry {
			fb.U8(0)
		}
		fb.U16(f.Segment).U16(uint16(len(f.Offsets)))
		for _, o := range f.Offsets {
			fb.U32(o)
		}
		for _, l := range f.Lines {
			fb.U16(l)
		}
		for fb.Len()%4 != 0 {
			fb.U8(0)
		}
		fileBlobs = append(fileBlobs, fb.Bytes())
		off += fb.Len()
	}

	var b Buffer
	b.U16(uint16(len(files))).U16(uint16(len(files)))
	for _, base := range bases {
		b.U32(base)
	}
	for _, f := range files {
		b.U32(f.Start).U32(f.End)
	}
	for _, f := range files {
		b.U16(f.Segment)
	}
	for b.Len() < hdrSize {
		b.U8(0)
	}
	for _, fb := range fileBlobs {
		b.Raw(fb)
	}
	return b.Bytes()
}

// ModuleSub encodes an sstModule subsection with one code segment.
func ModuleSub(seg uint16, off, length uint32, name string) []byte {
	var b Buffer
	b.U16(0).U16(0).U16(1).U16(0x5643).U16(seg).U16(0).U32(off).U32(length).Name(name)
	return b.Bytes()
}

// Subsection is a directory entry for CodeView.
type Subsection struct {
	Kind   uint16
	Module uint16
	Data   []byte
}

// CodeView assembles a CodeView blob with the given signature.
func CodeView(sig string, subs ...Subsection) []byte {
	if len(sig) != 4 {
		panic(fmt.Sprintf("cvtest: bad signature %q", sig))
	}

	var body Buffer
	body.Raw([]byte(sig)).U32(0)
	offsets := make([]uint32, len(subs))
	for i, s := range subs {
		offsets[i] = uint32(body.Len())
		body.Raw(s.Data)
		for body.Len()%4 != 0 {
			body.U8(0)
		}
	}

	dirOff := uint32(body.Len())
	body.U16(16).U16(12).U32(uint32(len(subs))).U32(0).U32(0)
	for i, s := range subs {
		body.U16(s.Kind).U16(s.Module).U32(offsets[i]).U32(uint32(len(s.Data)))
	}

	out := body.Bytes()
	binary.LittleEndian.PutUint32(out[4:], dirOff)
	return out
}

// Image is an in-memory binary container.
type Image struct {
	Sections    []coff.SectionHeader
	Debug       []coff.DebugDirectoryEntry
	ExportTable []coff.Export
	Closed      bool
}

// NewImage returns an image whose debug directory holds one CodeView entry.
func NewImage(cv []byte, sections ...coff.SectionHeader) *Image {
	img := &Image{Sections: sections}
	if cv != nil {
		img.Debug = []coff.DebugDirectoryEntry{{
			Type:       coff.DebugTypeCodeView,
			SizeOfData: uint32(len(cv)),
			Data:       cv,
		}}
	}
	return img
}

func (img *Image) SectionHeader(index int) (coff.SectionHeader, error) {
	if index < 1 || index > len(img.Sections) {
		return coff.SectionHeader{}, fmt.Errorf("%w: %d", coff.ErrSectionIndex, index)
	}
	return img.Sections[index-1], nil
}

func (img *Image) DebugDirectory() ([]coff.DebugDirectoryEntry, error) {
	return img.Debug, nil
}

func (img *Image) NumSections() int                { return len(img.Sections) }
func (img *Image) Exports() ([]coff.Export, error) { return img.ExportTable, nil }

func (img *Image) Close() error {
	img.Closed = true
	return nil
}
