// Package coff reads the parts of a PE/COFF image that CodeView extraction
// needs: section headers, the debug directory and the export directory.
package coff

import (
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// Debug directory layout.
const (
	DebugDirectoryEntrySize = 28

	// DebugTypeCodeView is IMAGE_DEBUG_TYPE_CODEVIEW
	DebugTypeCodeView uint32 = 2
)

// Errors
var (
	ErrSectionIndex = errors.New("coff: section index out of range")
	ErrRVANotMapped = errors.New("coff: virtual address not in any section")
	ErrNoOptHeader  = errors.New("coff: image has no optional header")
	ErrBadDirectory = errors.New("coff: malformed data directory")
	ErrBadExports   = errors.New("coff: malformed export directory")
)

// SectionHeader is the subset of a section header used for address mapping.
type SectionHeader struct {
	Name           string
	VirtualAddress uint32
	VirtualSize    uint32
}

// DebugDirectoryEntry is one IMAGE_DEBUG_DIRECTORY record together with
// the raw data it points at.
type DebugDirectoryEntry struct {
	Characteristics  uint32
	TimeDateStamp    uint32
	MajorVersion     uint16
	MinorVersion     uint16
	Type             uint32
	SizeOfData       uint32
	AddressOfRawData uint32
	PointerToRawData uint32

	Data []byte
}

// Export is a named entry of the export directory.
type Export struct {
	Name string
	RVA  uint32
}

// File is an open PE image.
type File struct {
	pe     *pe.File
	r      io.ReaderAt
	closer io.Closer
}

// Open opens the named image file.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	cf, err := NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not parse PE-COFF file %s: %w", path, err)
	}
	cf.closer = f
	return cf, nil
}

// NewFile parses an image from r.
func NewFile(r io.ReaderAt) (*File, error) {
	pf, err := pe.NewFile(r)
	if err != nil {
		return nil, err
	}
	return &File{pe: pf, r: r}, nil
}

// Close releases the underlying file, if Open created it.
func (f *File) Close() error {
	var err error
	if f.closer != nil {
		err = f.closer.Close()
		f.closer = nil
	}
	if perr := f.pe.Close(); err == nil {
		err = perr
	}
	return err
}

// NumSections returns the number of section headers.
func (f *File) NumSections() int {
	return len(f.pe.Sections)
}

// SectionHeader returns the header of the 1-based section index.
func (f *File) SectionHeader(index int) (SectionHeader, error) {
	if index < 1 || index > len(f.pe.Sections) {
		return SectionHeader{}, fmt.Errorf("%w: %d (have %d)", ErrSectionIndex, index, len(f.pe.Sections))
	}
	s := f.pe.Sections[index-1]
	return SectionHeader{
		Name:           s.Name,
		VirtualAddress: s.VirtualAddress,
		VirtualSize:    s.VirtualSize,
	}, nil
}

// ImageBase returns the preferred load address from the optional header.
func (f *File) ImageBase() uint64 {
	switch h := f.pe.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		return uint64(h.ImageBase)
	case *pe.OptionalHeader64:
		return h.ImageBase
	}
	return 0
}

func (f *File) dataDirectory(index int) (pe.DataDirectory, error) {
	var dirs []pe.DataDirectory
	switch h := f.pe.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		dirs = h.DataDirectory[:min(h.NumberOfRvaAndSizes, uint32(len(h.DataDirectory)))]
	case *pe.OptionalHeader64:
		dirs = h.DataDirectory[:min(h.NumberOfRvaAndSizes, uint32(len(h.DataDirectory)))]
	default:
		return pe.DataDirectory{}, ErrNoOptHeader
	}
	if index >= len(dirs) {
		return pe.DataDirectory{}, nil
	}
	return dirs[index], nil
}

// readRVA reads n bytes at a relative virtual address.
func (f *File) readRVA(rva, n uint32) ([]byte, error) {
	for _, s := range f.pe.Sections {
		size := max(s.VirtualSize, s.Size)
		if rva < s.VirtualAddress || rva-s.VirtualAddress >= size {
			continue
		}
		start := rva - s.VirtualAddress
		buf := make([]byte, n)
		if _, err := s.ReadAt(buf, int64(start)); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return buf, nil
	}
	return nil, fmt.Errorf("%w: %#x", ErrRVANotMapped, rva)
}

// DebugDirectory returns every debug directory entry with its raw data.
// An image without a debug directory yields an empty slice.
func (f *File) DebugDirectory() ([]DebugDirectoryEntry, error) {
	dir, err := f.dataDirectory(pe.IMAGE_DIRECTORY_ENTRY_DEBUG)
	if err != nil {
		return nil, err
	}
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return nil, nil
	}
	if dir.Size%DebugDirectoryEntrySize != 0 {
		return nil, fmt.Errorf("%w: debug directory has odd size %#x", ErrBadDirectory, dir.Size)
	}

	data, err := f.readRVA(dir.VirtualAddress, dir.Size)
	if err != nil {
		return nil, err
	}

	entries := make([]DebugDirectoryEntry, 0, len(data)/DebugDirectoryEntrySize)
	for pos := 0; pos+DebugDirectoryEntrySize <= len(data); pos += DebugDirectoryEntrySize {
		b := data[pos:]
		e := DebugDirectoryEntry{
			Characteristics:  binary.LittleEndian.Uint32(b[0:]),
			TimeDateStamp:    binary.LittleEndian.Uint32(b[4:]),
			MajorVersion:     binary.LittleEndian.Uint16(b[8:]),
			MinorVersion:     binary.LittleEndian.Uint16(b[10:]),
			Type:             binary.LittleEndian.Uint32(b[12:]),
			SizeOfData:       binary.LittleEndian.Uint32(b[16:]),
			AddressOfRawData: binary.LittleEndian.Uint32(b[20:]),
			PointerToRawData: binary.LittleEndian.Uint32(b[24:]),
		}

		// Embedded CodeView is usually not mapped, so read it by file offset
		if e.SizeOfData > 0 {
			e.Data = make([]byte, e.SizeOfData)
			if e.PointerToRawData != 0 {
				if _, err := f.r.ReadAt(e.Data, int64(e.PointerToRawData)); err != nil {
					return nil, fmt.Errorf("reading debug data at %#x: %w", e.PointerToRawData, err)
				}
			} else if e.Data, err = f.readRVA(e.AddressOfRawData, e.SizeOfData); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Exports returns the named exports sorted by RVA.
func (f *File) Exports() ([]Export, error) {
	dir, err := f.dataDirectory(pe.IMAGE_DIRECTORY_ENTRY_EXPORT)
	if err != nil {
		return nil, err
	}
	if dir.VirtualAddress == 0 || dir.Size < 40 {
		return nil, nil
	}

	hdr, err := f.readRVA(dir.VirtualAddress, 40)
	if err != nil {
		return nil, err
	}
	numFuncs := binary.LittleEndian.Uint32(hdr[20:])
	numNames := binary.LittleEndian.Uint32(hdr[24:])
	funcsRVA := binary.LittleEndian.Uint32(hdr[28:])
	namesRVA := binary.LittleEndian.Uint32(hdr[32:])
	ordsRVA := binary.LittleEndian.Uint32(hdr[36:])
	if numNames == 0 {
		return nil, nil
	}

	funcs, err := f.readRVA(funcsRVA, numFuncs*4)
	if err != nil {
		return nil, err
	}
	names, err := f.readRVA(namesRVA, numNames*4)
	if err != nil {
		return nil, err
	}
	ords, err := f.readRVA(ordsRVA, numNames*2)
	if err != nil {
		return nil, err
	}

	exports := make([]Export, 0, numNames)
	for i := range numNames {
		ord := uint32(binary.LittleEndian.Uint16(ords[i*2:]))
		if ord >= numFuncs {
			return nil, fmt.Errorf("%w: ordinal %d of %d", ErrBadExports, ord, numFuncs)
		}
		name, err := f.readCString(binary.LittleEndian.Uint32(names[i*4:]))
		if err != nil {
			return nil, err
		}
		exports = append(exports, Export{
			Name: name,
			RVA:  binary.LittleEndian.Uint32(funcs[ord*4:]),
		})
	}

	sort.Slice(exports, func(i, j int) bool { return exports[i].RVA < exports[j].RVA })
	return exports, nil
}

func (f *File) readCString(rva uint32) (string, error) {
	var out []byte
	for {
		chunk, err := f.readRVA(rva, 64)
		if err != nil {
			return "", err
		}
		for _, c := range chunk {
			if c == 0 {
				return string(out), nil
			}
			out = append(out, c)
		}
		rva += 64
	}
}
