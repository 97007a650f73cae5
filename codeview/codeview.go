// Package codeview locates an embedded VC50 CodeView stream inside an image's
// debug directory and enumerates its subsection directory.
package codeview

import (
	"fmt"
	"iter"

	"github.com/skdltmxn/cv50-go/coff"
	"github.com/skdltmxn/cv50-go/internal/stream"
)

// Image is the part of a binary container the locator consumes.
type Image interface {
	// SectionHeader returns the header of a 1-based section index.
	SectionHeader(index int) (coff.SectionHeader, error)

	// DebugDirectory returns every debug directory entry with its data.
	DebugDirectory() ([]coff.DebugDirectoryEntry, error)
}

// CodeView signatures
const (
	SignatureNB09 = "NB09"
	SignatureNB10 = "NB10"
	SignatureNB11 = "NB11"
	SignatureRSDS = "RSDS"
)

// SubsectionKind identifies the contents of a subsection.
type SubsectionKind uint16

// Subsection kinds (sst*), VC50 numbering.
const (
	SstModule      SubsectionKind = 0x120
	SstTypes       SubsectionKind = 0x121
	SstPublic      SubsectionKind = 0x122
	SstPublicSym   SubsectionKind = 0x123
	SstSymbols     SubsectionKind = 0x124
	SstAlignSym    SubsectionKind = 0x125
	SstSrcLnSeg    SubsectionKind = 0x126
	SstSrcModule   SubsectionKind = 0x127
	SstLibraries   SubsectionKind = 0x128
	SstGlobalSym   SubsectionKind = 0x129
	SstGlobalPub   SubsectionKind = 0x12a
	SstGlobalTypes SubsectionKind = 0x12b
	SstMPC         SubsectionKind = 0x12c
	SstSegMap      SubsectionKind = 0x12d
	SstSegName     SubsectionKind = 0x12e
	SstPreComp     SubsectionKind = 0x12f
	SstPreCompMap  SubsectionKind = 0x130
	SstOffsetMap16 SubsectionKind = 0x131
	SstOffsetMap32 SubsectionKind = 0x132
	SstFileIndex   SubsectionKind = 0x133
	SstStaticSym   SubsectionKind = 0x134
)

var subsectionNames = map[SubsectionKind]string{
	SstModule: "sstModule", SstTypes: "sstTypes", SstPublic: "sstPublic",
	SstPublicSym: "sstPublicSym", SstSymbols: "sstSymbols", SstAlignSym: "sstAlignSym",
	SstSrcLnSeg: "sstSrcLnSeg", SstSrcModule: "sstSrcModule", SstLibraries: "sstLibraries",
	SstGlobalSym: "sstGlobalSym", SstGlobalPub: "sstGlobalPub", SstGlobalTypes: "sstGlobalTypes",
	SstMPC: "sstMPC", SstSegMap: "sstSegMap", SstSegName: "sstSegName",
	SstPreComp: "sstPreComp", SstPreCompMap: "sstPreCompMap", SstOffsetMap16: "sstOffsetMap16",
	SstOffsetMap32: "sstOffsetMap32", SstFileIndex: "sstFileIndex", SstStaticSym: "sstStaticSym",
}

func (k SubsectionKind) String() string {
	if name, ok := subsectionNames[k]; ok {
		return name
	}
	return fmt.Sprintf("sst(%#x)", uint16(k))
}

// IsSymbolStream reports whether the subsection holds a flat symbol stream.
func (k SubsectionKind) IsSymbolStream() bool {
	switch k {
	case SstGlobalSym, SstGlobalPub, SstStaticSym, SstAlignSym:
		return true
	}
	return false
}

// Subsection is one entry of the subsection directory.
type Subsection struct {
	Index  int // Position in the directory
	Kind   SubsectionKind
	Module uint16 // iMod, 0xFFFF for global subsections
	Offset uint32 // lfo, relative to the CodeView base
	Data   []byte
}

// DirHeader is the subsection directory header.
type DirHeader struct {
	HeaderSize uint16
	EntrySize  uint16
	Count      uint32
	NextDir    uint32
	Flags      uint32
}

const (
	cvHeaderSize       = 8
	minDirHeaderSize   = 16
	minDirEntrySize    = 12
	maxChainedDirCount = 64
)

// Stream is a located, embedded CodeView stream.
type Stream struct {
	Signature string
	Header    DirHeader

	data        []byte
	subsections []Subsection
}

// Locate finds the embedded CodeView stream of img. It returns (nil, nil)
// when the image carries no CodeView entry or points at an external PDB.
func Locate(img Image) (*Stream, error) {
	entries, err := img.DebugDirectory()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Type == coff.DebugTypeCodeView {
			return Parse(e.Data)
		}
	}
	return nil, nil
}

// Parse parses raw CodeView data starting with its signature. Like Locate
// it returns (nil, nil) for external-PDB signatures.
func Parse(data []byte) (*Stream, error) {
	if len(data) < cvHeaderSize {
		return nil, &FormatError{Structure: "header", Message: "too short", Err: ErrTruncated}
	}

	r := stream.NewReader(data)
	sig, _ := r.ReadBytesRef(4)
	lfoDir, _ := r.ReadU32()

	s := &Stream{Signature: string(sig), data: data}
	switch s.Signature {
	case SignatureNB09, SignatureNB11:
	case SignatureNB10, SignatureRSDS:
		return nil, nil
	default:
		return nil, &FormatError{Structure: "header", Message: fmt.Sprintf("signature %q", s.Signature), Err: ErrUnsupportedSignature}
	}

	seen := make(map[uint32]bool)
	for dirs := 0; ; dirs++ {
		if seen[lfoDir] || dirs >= maxChainedDirCount {
			return nil, &FormatError{Structure: "directory", Offset: int64(lfoDir), Message: "directory chain loops"}
		}
		seen[lfoDir] = true

		next, err := s.parseDirectory(lfoDir)
		if err != nil {
			return nil, err
		}
		if next == 0 {
			break
		}
		lfoDir = next
	}

	return s, nil
}

func (s *Stream) parseDirectory(lfo uint32) (uint32, error) {
	r := stream.NewReader(s.data)
	if err := r.SetOffset(int(lfo)); err != nil {
		return 0, err
	}

	var h DirHeader
	var err error
	fail := func(msg string, err error) (uint32, error) {
		return 0, &FormatError{Structure: "directory", Offset: int64(r.Offset()), Message: msg, Err: err}
	}

	if h.HeaderSize, err = r.ReadU16(); err != nil {
		return fail("header", err)
	}
	if h.EntrySize, err = r.ReadU16(); err != nil {
		return fail("header", err)
	}
	if h.Count, err = r.ReadU32(); err != nil {
		return fail("header", err)
	}
	if h.NextDir, err = r.ReadU32(); err != nil {
		return fail("header", err)
	}
	if h.Flags, err = r.ReadU32(); err != nil {
		return fail("header", err)
	}
	if h.HeaderSize < minDirHeaderSize || h.EntrySize < minDirEntrySize {
		return fail(fmt.Sprintf("header size %d, entry size %d", h.HeaderSize, h.EntrySize), nil)
	}
	if len(s.subsections) == 0 {
		s.Header = h
	}

	base := int(lfo) + int(h.HeaderSize)
	for i := range int(h.Count) {
		if err := r.SetOffset(base + i*int(h.EntrySize)); err != nil {
			return fail("entry", err)
		}

		kind, err := r.ReadU16()
		if err != nil {
			return fail("entry", err)
		}
		mod, err := r.ReadU16()
		if err != nil {
			return fail("entry", err)
		}
		off, err := r.ReadU32()
		if err != nil {
			return fail("entry", err)
		}
		size, err := r.ReadU32()
		if err != nil {
			return fail("entry", err)
		}
		if uint64(off)+uint64(size) > uint64(len(s.data)) {
			return 0, &FormatError{
				Structure: SubsectionKind(kind).String(),
				Offset:    int64(off),
				Message:   fmt.Sprintf("%d bytes exceed stream of %d", size, len(s.data)),
				Err:       ErrTruncated,
			}
		}

		s.subsections = append(s.subsections, Subsection{
			Index:  len(s.subsections),
			Kind:   SubsectionKind(kind),
			Module: mod,
			Offset: off,
			Data:   s.data[off : off+size],
		})
	}

	return h.NextDir, nil
}

// Data returns the raw CodeView data.
func (s *Stream) Data() []byte {
	return s.data
}

// Subsections returns every subsection in directory order.
func (s *Stream) Subsections() []Subsection {
	return s.subsections
}

// Lookup returns the first subsection of the given kind.
func (s *Stream) Lookup(kind SubsectionKind) (Subsection, bool) {
	for _, sub := range s.subsections {
		if sub.Kind == kind {
			return sub, true
		}
	}
	return Subsection{}, false
}

// Require is Lookup for a subsection the caller cannot do without.
func (s *Stream) Require(kind SubsectionKind) (Subsection, error) {
	sub, ok := s.Lookup(kind)
	if !ok {
		return Subsection{}, fmt.Errorf("%w: %s", ErrMissingSubsection, kind)
	}
	return sub, nil
}

// All returns an iterator over the subsections matching any of kinds,
// in directory order.
func (s *Stream) All(kinds ...SubsectionKind) iter.Seq[Subsection] {
	return func(yield func(Subsection) bool) {
		for _, sub := range s.subsections {
			for _, k := range kinds {
				if sub.Kind == k {
					if !yield(sub) {
						return
					}
					break
				}
			}
		}
	}
}
