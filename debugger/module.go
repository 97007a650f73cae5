package debugger

import (
	"fmt"
	"io"
	"sort"

	"github.com/skdltmxn/cv50-go/cdebug"
	"github.com/skdltmxn/cv50-go/codeview"
	"github.com/skdltmxn/cv50-go/coff"
)

// Image is a loaded binary as the debugger needs it.
type Image interface {
	codeview.Image
	NumSections() int
	Exports() ([]coff.Export, error)
	io.Closer
}

// Opener opens the image at path.
type Opener func(path string) (Image, error)

// OpenImage opens a PE image from disk.
func OpenImage(path string) (Image, error) {
	f, err := coff.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Module is an executable or DLL loaded into the target.
type Module struct {
	path string
	base uint64
	size uint64
	img  Image

	// Set on the first debug info query
	built bool
	db    *cdebug.Database
	err   error

	exportsLoaded bool
	exports       []coff.Export
}

func newModule(path string, base uint64, img Image) (*Module, error) {
	m := &Module{path: path, base: base, img: img}
	for i := 1; i <= img.NumSections(); i++ {
		sh, err := img.SectionHeader(i)
		if err != nil {
			return nil, err
		}
		m.size = max(m.size, uint64(sh.VirtualAddress)+uint64(sh.VirtualSize))
	}
	return m, nil
}

func (m *Module) Path() string { return m.path }
func (m *Module) Base() uint64 { return m.base }
func (m *Module) Size() uint64 { return m.size }

// Contains reports whether pc lies in the module's mapped image.
func (m *Module) Contains(pc uint64) bool {
	return pc >= m.base && pc-m.base < m.size
}

// HasSymbols reports whether a database was built for the module. It is
// false before the first query and for modules without usable debug info.
func (m *Module) HasSymbols() bool {
	return m.db != nil
}

// Err returns the error that left the module without symbols, if any.
func (m *Module) Err() error {
	return m.err
}

func (m *Module) String() string {
	return fmt.Sprintf("%s@%#x", m.path, m.base)
}

// closestExport returns the export with the greatest address not above pc.
func (m *Module) closestExport(pc uint64) (Symbol, bool, error) {
	if !m.exportsLoaded {
		exports, err := m.img.Exports()
		if err != nil {
			return Symbol{}, false, err
		}
		m.exports = exports
		m.exportsLoaded = true
	}
	if !m.Contains(pc) {
		return Symbol{}, false, nil
	}

	rva := pc - m.base
	i := sort.Search(len(m.exports), func(i int) bool { return uint64(m.exports[i].RVA) > rva })
	if i == 0 {
		return Symbol{}, false, nil
	}
	e := m.exports[i-1]
	return Symbol{Name: e.Name, Offset: rva - uint64(e.RVA), Module: m.path}, true, nil
}
