package debugger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/cv50-go/cdebug"
	"github.com/skdltmxn/cv50-go/codeview"
	"github.com/skdltmxn/cv50-go/coff"
	"github.com/skdltmxn/cv50-go/internal/cvtest"
	"github.com/skdltmxn/cv50-go/internal/leaf"
	"github.com/skdltmxn/cv50-go/internal/symbols"
)

const appBase = 0x400000

var textSection = coff.SectionHeader{Name: ".text", VirtualAddress: 0x1000, VirtualSize: 0x1000}

var appExports = []coff.Export{
	{Name: "start", RVA: 0x1010},
	{Name: "helper", RVA: 0x1100},
}

type imageOptions struct {
	noTypes    bool
	unresolved bool
	noDebug    bool
}

// appImage has int main() at .text+0x10 with a two-entry line table.
func appImage(o imageOptions) *cvtest.Image {
	if o.noDebug {
		img := cvtest.NewImage(nil, textSection)
		img.ExportTable = appExports
		return img
	}

	var types cvtest.Types
	args := types.Add(uint16(leaf.LF_ARGLIST), cvtest.ArgList())
	mainType := types.Add(uint16(leaf.LF_PROCEDURE), cvtest.Procedure(0x74, 0, args))
	if o.unresolved {
		var fl cvtest.FieldList
		fl.Member(0x1fff, 3, 0, "missing")
		list := types.Add(uint16(leaf.LF_FIELDLIST), fl.Bytes())
		types.Add(uint16(leaf.LF_STRUCTURE), cvtest.Struct(1, list, 0, 4, "Broken"))
	}

	syms := cvtest.NewAligned()
	syms.Add(uint16(symbols.S_GPROC32), cvtest.Proc32(0, 0, 0x30, 0x10, 1, mainType, "main"))
	syms.Add(uint16(symbols.S_END), nil)

	subs := []cvtest.Subsection{
		{Kind: uint16(codeview.SstAlignSym), Module: 1, Data: syms.Bytes()},
		{Kind: uint16(codeview.SstSrcModule), Module: 1, Data: cvtest.SrcModule(cvtest.SrcFile{
			Name: "app.c", Segment: 1, Start: 0x10, End: 0x40,
			Offsets: []uint32{0x10, 0x20}, Lines: []uint16{7, 9},
		})},
		{Kind: uint16(codeview.SstSegMap), Module: 0xffff, Data: cvtest.SegMap(cvtest.SegDesc{Frame: 1, Length: 0x1000})},
	}
	if !o.noTypes {
		subs = append(subs, cvtest.Subsection{Kind: uint16(codeview.SstGlobalTypes), Module: 0xffff, Data: types.Bytes()})
	}

	img := cvtest.NewImage(cvtest.CodeView("NB11", subs...), textSection)
	img.ExportTable = appExports
	return img
}

type fakeBridge struct {
	memBase uint64
	mem     []byte
	reads   int
	symbols map[uint64]string

	attached int
	detached int
}

func (b *fakeBridge) Attach(pid int) error {
	if pid <= 0 {
		return errors.New("no such process")
	}
	b.attached++
	return nil
}

func (b *fakeBridge) Detach() error {
	b.detached++
	return nil
}

func (b *fakeBridge) ReadMemory(addr uint64, buf []byte) error {
	b.reads++
	if addr < b.memBase || addr-b.memBase+uint64(len(buf)) > uint64(len(b.mem)) {
		return fmt.Errorf("unmapped address %#x", addr)
	}
	copy(buf, b.mem[addr-b.memBase:])
	return nil
}

func (b *fakeBridge) LookupSymbol(addr uint64) (string, uint64, bool) {
	name, ok := b.symbols[addr]
	return name, 0, ok
}

func newBridge() *fakeBridge {
	b := &fakeBridge{memBase: appBase, mem: make([]byte, 0x1000), symbols: map[uint64]string{}}
	for i := range b.mem {
		b.mem[i] = byte(i)
	}
	return b
}

type fixture struct {
	d      *Debugger
	bridge *fakeBridge
	images map[string]*cvtest.Image
}

func newTestDebugger(t *testing.T, cfg Config, images map[string]*cvtest.Image) *fixture {
	t.Helper()
	f := &fixture{bridge: newBridge(), images: images}
	open := func(path string) (Image, error) {
		img, ok := images[path]
		if !ok {
			return nil, fmt.Errorf("open %s: file does not exist", path)
		}
		return img, nil
	}
	d, err := New(log.NewNopLogger(), cfg, prometheus.NewRegistry(), f.bridge, open)
	require.NoError(t, err)
	f.d = d
	return f
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PageSize = 0x100
	cfg.CachePages = 4
	return cfg
}

func TestDebugInfoForPC(t *testing.T) {
	f := newTestDebugger(t, testConfig(), map[string]*cvtest.Image{"app.exe": appImage(imageOptions{})})
	m, err := f.d.LoadModule("app.exe", appBase)
	require.NoError(t, err)
	assert.False(t, m.HasSymbols(), "debug info is read lazily")
	assert.Equal(t, uint64(0x2000), m.Size())

	b := f.d.DebugInfoForPC(0x401020)
	require.NotNil(t, b)
	assert.Equal(t, "main", b.Name())
	assert.Equal(t, uint64(0x401010), b.Address())
	assert.Equal(t, uint64(0x30), b.Length())
	assert.True(t, m.HasSymbols())

	li, ok := f.d.LineNumberForPC(0x401024)
	require.True(t, ok)
	assert.Equal(t, "app.c", li.File())
	assert.Equal(t, uint32(9), li.Line())

	assert.Nil(t, f.d.DebugInfoForPC(0x401800))
	assert.Nil(t, f.d.DebugInfoForPC(0x500000))
	_, ok = f.d.LineNumberForPC(0x500000)
	assert.False(t, ok)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.d.metrics.builds.WithLabelValues(outcomeSymbols)))
}

func TestModuleWithoutDebugInfo(t *testing.T) {
	f := newTestDebugger(t, testConfig(), map[string]*cvtest.Image{"plain.dll": appImage(imageOptions{noDebug: true})})
	m, err := f.d.LoadModule("plain.dll", appBase)
	require.NoError(t, err)

	assert.Nil(t, f.d.DebugInfoForPC(0x401020))
	assert.False(t, m.HasSymbols())
	assert.NoError(t, m.Err())

	db, err := f.d.Database("plain.dll")
	require.NoError(t, err)
	assert.Nil(t, db)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.d.metrics.builds.WithLabelValues(outcomeAbsent)))
}

func TestFatalBuildMeansNoSymbols(t *testing.T) {
	f := newTestDebugger(t, testConfig(), map[string]*cvtest.Image{
		"broken.dll": appImage(imageOptions{noTypes: true}),
		"app.exe":    appImage(imageOptions{}),
	})
	broken, err := f.d.LoadModule("broken.dll", appBase)
	require.NoError(t, err)
	_, err = f.d.LoadModule("app.exe", 0x800000)
	require.NoError(t, err)

	assert.Nil(t, f.d.DebugInfoForPC(0x401020))
	assert.Nil(t, f.d.DebugInfoForPC(0x401020))
	var de *cdebug.DebuggerError
	require.ErrorAs(t, broken.Err(), &de)
	assert.ErrorIs(t, broken.Err(), codeview.ErrMissingSubsection)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.d.metrics.builds.WithLabelValues(outcomeFailed)), "failure is cached")

	db, err := f.d.Database("broken.dll")
	assert.Nil(t, db)
	assert.ErrorIs(t, err, codeview.ErrMissingSubsection)

	// Other modules are unaffected
	b := f.d.DebugInfoForPC(0x801020)
	require.NotNil(t, b)
	assert.Equal(t, "main", b.Name())
}

func TestStrictResolve(t *testing.T) {
	images := func() map[string]*cvtest.Image {
		return map[string]*cvtest.Image{"app.exe": appImage(imageOptions{unresolved: true})}
	}

	f := newTestDebugger(t, testConfig(), images())
	_, err := f.d.LoadModule("app.exe", appBase)
	require.NoError(t, err)
	require.NotNil(t, f.d.DebugInfoForPC(0x401020), "gaps are tolerated by default")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.d.metrics.unresolved))

	cfg := testConfig()
	cfg.StrictResolve = true
	f = newTestDebugger(t, cfg, images())
	m, err := f.d.LoadModule("app.exe", appBase)
	require.NoError(t, err)
	assert.Nil(t, f.d.DebugInfoForPC(0x401020))
	assert.ErrorContains(t, m.Err(), "0x1fff")
	_, err = f.d.Database("app.exe")
	assert.ErrorContains(t, err, "0x1fff")
}

func TestClosestSymbolToPC(t *testing.T) {
	f := newTestDebugger(t, testConfig(), map[string]*cvtest.Image{"app.exe": appImage(imageOptions{})})
	_, err := f.d.LoadModule("app.exe", appBase)
	require.NoError(t, err)

	// Detached: exports only
	sym, ok := f.d.ClosestSymbolToPC(0x401018)
	require.True(t, ok)
	assert.Equal(t, Symbol{Name: "start", Offset: 8, Module: "app.exe"}, sym)

	sym, ok = f.d.ClosestSymbolToPC(0x401180)
	require.True(t, ok)
	assert.Equal(t, "helper", sym.Name)
	assert.Equal(t, uint64(0x80), sym.Offset)

	_, ok = f.d.ClosestSymbolToPC(0x401000)
	assert.False(t, ok, "below the first export")
	_, ok = f.d.ClosestSymbolToPC(0x300000)
	assert.False(t, ok, "outside every module")

	// Attached: the native answer wins
	require.NoError(t, f.d.Attach(42))
	f.bridge.symbols[0x401018] = "native_start"
	sym, ok = f.d.ClosestSymbolToPC(0x401018)
	require.True(t, ok)
	assert.Equal(t, "native_start", sym.Name)
	assert.Equal(t, "app.exe", sym.Module)

	sym, ok = f.d.ClosestSymbolToPC(0x401104)
	require.True(t, ok)
	assert.Equal(t, "helper", sym.Name)
}

func TestReadMemory(t *testing.T) {
	f := newTestDebugger(t, testConfig(), nil)

	_, err := f.d.ReadMemory(appBase, make([]byte, 4))
	require.ErrorIs(t, err, ErrNotAttached)

	require.NoError(t, f.d.Attach(42))
	buf := make([]byte, 0x20)
	n, err := f.d.ReadMemory(appBase+0xf0, buf)
	require.NoError(t, err)
	assert.Equal(t, 0x20, n)
	assert.Equal(t, byte(0xf0), buf[0])
	assert.Equal(t, byte(0x0f), buf[0x1f])
	assert.Equal(t, 2, f.bridge.reads, "a read spanning two pages fetches both")

	_, err = f.d.ReadMemory(appBase+0x100, buf[:4])
	require.NoError(t, err)
	assert.Equal(t, 2, f.bridge.reads)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.d.metrics.pageHits))

	_, err = f.d.ReadMemory(appBase+0x2000, buf)
	assert.ErrorContains(t, err, "unmapped")
	assert.Equal(t, 3, f.bridge.reads)

	require.NoError(t, f.d.Detach())
	assert.Zero(t, f.d.pages.Len())
	require.NoError(t, f.d.Attach(42))
	_, err = f.d.ReadMemory(appBase+0x100, buf[:4])
	require.NoError(t, err)
	assert.Equal(t, 4, f.bridge.reads, "detach purges the cache")
}

func TestReadMemoryWithoutCache(t *testing.T) {
	cfg := testConfig()
	cfg.CachePages = -1
	f := newTestDebugger(t, cfg, nil)
	require.NoError(t, f.d.Attach(7))

	buf := make([]byte, 4)
	for range 3 {
		_, err := f.d.ReadMemory(appBase, buf)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, f.bridge.reads)
}

func TestAttachDetach(t *testing.T) {
	f := newTestDebugger(t, testConfig(), map[string]*cvtest.Image{"app.exe": appImage(imageOptions{})})

	require.ErrorIs(t, f.d.Detach(), ErrNotAttached)
	require.Error(t, f.d.Attach(-1))
	assert.False(t, f.d.Attached())

	require.NoError(t, f.d.Attach(42))
	require.ErrorIs(t, f.d.Attach(43), ErrAlreadyAttached)
	_, err := f.d.LoadModule("app.exe", appBase)
	require.NoError(t, err)

	require.NoError(t, f.d.Detach())
	assert.Equal(t, 1, f.bridge.detached)
	assert.Empty(t, f.d.Modules())
	assert.True(t, f.images["app.exe"].Closed)

	offline, err := New(nil, testConfig(), nil, nil, nil)
	require.NoError(t, err)
	assert.Error(t, offline.Attach(1))
}

func TestModuleLoading(t *testing.T) {
	f := newTestDebugger(t, testConfig(), map[string]*cvtest.Image{
		"app.exe": appImage(imageOptions{}),
		"a.dll":   appImage(imageOptions{noDebug: true}),
		"b.dll":   appImage(imageOptions{noDebug: true}),
	})

	_, err := f.d.LoadModule("app.exe", appBase)
	require.NoError(t, err)
	_, err = f.d.LoadModule("b.dll", 0x700000)
	require.NoError(t, err)
	_, err = f.d.LoadModule("a.dll", 0x600000)
	require.NoError(t, err)

	_, err = f.d.LoadModule("app.exe", 0x900000)
	require.ErrorIs(t, err, ErrModuleLoaded)
	_, err = f.d.LoadModule("missing.dll", 0x900000)
	require.Error(t, err)

	var names []string
	for _, m := range f.d.Modules() {
		names = append(names, m.Path())
	}
	assert.Equal(t, []string{"app.exe", "a.dll", "b.dll"}, names)

	require.NoError(t, f.d.UnloadModule("a.dll"))
	assert.True(t, f.images["a.dll"].Closed)
	require.ErrorIs(t, f.d.UnloadModule("a.dll"), ErrModuleNotFound)
	_, err = f.d.Database("a.dll")
	require.ErrorIs(t, err, ErrModuleNotFound)

	f.images["a.dll"] = appImage(imageOptions{noDebug: true})
	_, err = f.d.LoadModule("a.dll", appBase+0x1000)
	require.ErrorIs(t, err, ErrModuleOverlap)
	assert.True(t, f.images["a.dll"].Closed)
}
