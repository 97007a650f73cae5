package cdebug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/cv50-go/codeview"
	"github.com/skdltmxn/cv50-go/coff"
	"github.com/skdltmxn/cv50-go/internal/cvtest"
	"github.com/skdltmxn/cv50-go/internal/leaf"
	"github.com/skdltmxn/cv50-go/internal/symbols"
)

const testBase = 0x10000

var testSections = []coff.SectionHeader{
	{Name: ".text", VirtualAddress: 0x1000, VirtualSize: 0x1000},
	{Name: ".data", VirtualAddress: 0x3000, VirtualSize: 0x200},
}

// fixture is a small program: struct Point, int main() with a nested
// block, a few globals and a line table.
type fixture struct {
	point      uint16
	constPoint uint16
	a, b, s    uint16
	ptrC       uint16
	mainType   uint16
	anon1      uint16
	anon2      uint16

	listener *CollectingListener
	db       *Database
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{listener: &CollectingListener{}}

	var types cvtest.Types
	var fl cvtest.FieldList
	fl.Member(0x74, 3, 0, "x").Member(0x74, 3, 4, "y")
	pointFields := types.Add(uint16(leaf.LF_FIELDLIST), fl.Bytes())
	f.point = types.Add(uint16(leaf.LF_STRUCTURE), cvtest.Struct(2, pointFields, 0, 8, "Point"))

	var mod cvtest.Buffer
	mod.U16(0x01).U16(f.point)
	f.constPoint = types.Add(uint16(leaf.LF_MODIFIER), mod.Bytes())

	args := types.Add(uint16(leaf.LF_ARGLIST), cvtest.ArgList())
	f.mainType = types.Add(uint16(leaf.LF_PROCEDURE), cvtest.Procedure(0x74, 0, args))

	// A refers forward to B; B's field list follows B itself
	var aFields cvtest.FieldList
	aFields.Member(types.Next()+2, 3, 0, "b").Member(0x1fff, 3, 4, "bad")
	aList := types.Add(uint16(leaf.LF_FIELDLIST), aFields.Bytes())
	f.a = types.Add(uint16(leaf.LF_STRUCTURE), cvtest.Struct(2, aList, 0, 8, "A"))
	f.b = types.Add(uint16(leaf.LF_STRUCTURE), cvtest.Struct(1, types.Next()+1, 0, 4, "B"))
	var bFields cvtest.FieldList
	bFields.Member(0x74, 3, 0, "v")
	types.Add(uint16(leaf.LF_FIELDLIST), bFields.Bytes())

	var sFields cvtest.FieldList
	sFields.StaticMember(0x74, 3, "count").Member(0x74, 3, 0, "v")
	sList := types.Add(uint16(leaf.LF_FIELDLIST), sFields.Bytes())
	f.s = types.Add(uint16(leaf.LF_STRUCTURE), cvtest.Struct(2, sList, 0, 4, "S"))

	var ptr cvtest.Buffer
	ptr.U16(0x000a).U16(types.Next() + 1)
	f.ptrC = types.Add(uint16(leaf.LF_POINTER), ptr.Bytes())
	types.Add(uint16(leaf.LF_STRUCTURE), cvtest.Struct(0, 0, 0x80, 0, "C"))

	types.Add(uint16(leaf.LF_VTSHAPE), []byte{0, 0})
	types.Add(uint16(leaf.LF_DIMARRAY), []byte{1, 2, 3, 4})
	var badPrim cvtest.Buffer
	badPrim.U16(0x000a).U16(0x0042)
	types.Add(uint16(leaf.LF_POINTER), badPrim.Bytes())

	f.anon1 = types.Add(uint16(leaf.LF_ENUM), cvtest.Enum(0, 0x74, 0, 0, ""))
	f.anon2 = types.Add(uint16(leaf.LF_ENUM), cvtest.Enum(0, 0x74, 0, 0, ""))

	mods := cvtest.NewAligned()
	mainOff := mods.Add(uint16(symbols.S_GPROC32), cvtest.Proc32(0, 0, 0x30, 0x10, 1, f.mainType, "main"))
	mods.Add(uint16(symbols.S_BPREL32), cvtest.BPRel32(-8, f.point, "pt"))
	mods.Add(uint16(symbols.S_BLOCK32), cvtest.Block32(mainOff, 0, 0x8, 0x20, 1, ""))
	mods.Add(uint16(symbols.S_BPREL32), cvtest.BPRel32(-12, 0x74, "i"))
	mods.Add(uint16(symbols.S_END), nil)
	mods.Add(uint16(symbols.S_THUNK32), cvtest.Thunk32(0x38, 1, 4, "thunk"))
	mods.Add(uint16(symbols.S_END), nil)
	mods.Add(uint16(symbols.S_END), nil)
	mods.Add(uint16(symbols.S_COMPILE2_ST), []byte{1, 2, 3})

	globals := cvtest.NewTable()
	globals.Add(uint16(symbols.S_GDATA32), cvtest.Data32(0x100, 2, 0x74, "counter"))
	globals.Add(uint16(symbols.S_LDATA32), cvtest.Data32(0x104, 2, f.constPoint, "origin"))
	globals.Add(uint16(symbols.S_GDATA32), cvtest.Data32(0x108, 2, 0x74, "S::count"))
	globals.Add(uint16(symbols.S_PUB32), cvtest.Data32(0x10, 1, 0, "_main"))

	cv := cvtest.CodeView("NB11",
		cvtest.Subsection{Kind: uint16(codeview.SstModule), Module: 1, Data: cvtest.ModuleSub(1, 0x10, 0x40, "main.obj")},
		cvtest.Subsection{Kind: uint16(codeview.SstAlignSym), Module: 1, Data: mods.Bytes()},
		cvtest.Subsection{Kind: uint16(codeview.SstSrcModule), Module: 1, Data: cvtest.SrcModule(cvtest.SrcFile{
			Name: "main.c", Segment: 1, Start: 0x10, End: 0x40,
			Offsets: []uint32{0x10, 0x18, 0x30}, Lines: []uint16{3, 4, 6},
		})},
		cvtest.Subsection{Kind: uint16(codeview.SstGlobalSym), Module: 0xffff, Data: globals.Bytes()},
		cvtest.Subsection{Kind: uint16(codeview.SstGlobalTypes), Module: 0xffff, Data: types.Bytes()},
		cvtest.Subsection{Kind: uint16(codeview.SstSegMap), Module: 0xffff, Data: cvtest.SegMap(
			cvtest.SegDesc{Frame: 1, Length: 0x1000},
			cvtest.SegDesc{Frame: 2, Length: 0x200},
		)},
	)

	db, err := Build(cvtest.NewImage(cv, testSections...), testBase, WithListener(f.listener))
	require.NoError(t, err)
	require.NotNil(t, db)
	f.db = db
	return f
}

func TestBuildFunctionLookup(t *testing.T) {
	f := newFixture(t)

	b := f.db.DebugInfoForPC(0x11020)
	require.NotNil(t, b)
	main, ok := b.(*FunctionSym)
	require.True(t, ok)
	assert.Equal(t, "main", main.Name())
	assert.Equal(t, uint64(0x11010), main.Address())
	assert.Equal(t, uint64(0x30), main.Length())
	assert.True(t, main.IsGlobal())
	assert.Nil(t, main.Parent())

	ret := main.ReturnType()
	require.NotNil(t, ret)
	assert.Equal(t, "int", ret.Name())

	pt, ok := main.Local("pt")
	require.True(t, ok)
	assert.Equal(t, int64(-8), pt.FrameOffset())
	assert.Equal(t, "Point", pt.Type().Name())

	assert.Nil(t, f.db.DebugInfoForPC(0x11040), "end is exclusive")
	assert.Nil(t, f.db.DebugInfoForPC(0x11000))
}

func TestBuildNestedBlock(t *testing.T) {
	f := newFixture(t)

	b := f.db.DebugInfoForPC(0x11034)
	require.NotNil(t, b)
	assert.Equal(t, SymKindBlock, b.Kind())
	assert.Equal(t, uint64(0x11030), b.Address())
	require.NotNil(t, b.Parent())
	assert.Equal(t, "main", b.Parent().Name())
	require.Len(t, b.Locals(), 1)
	assert.Equal(t, "i", b.Locals()[0].Name())

	main := b.Parent()
	require.Len(t, main.Children(), 1)
	assert.Same(t, b, main.Children()[0])

	// The thunk scope is not modeled and its S_END must not pop main early
	assert.Equal(t, 2, f.db.Stats().Blocks)
}

func TestBuildPointType(t *testing.T) {
	f := newFixture(t)

	typ, err := f.db.TypeByIndex(TypeIndex(f.point))
	require.NoError(t, err)
	point, ok := typ.(*CompoundType)
	require.True(t, ok)
	assert.Equal(t, TypeKindStruct, point.Kind())
	assert.Equal(t, uint64(8), point.Size())
	require.Len(t, point.Fields(), 2)

	intType, err := f.db.TypeByIndex(0x74)
	require.NoError(t, err)
	x, ok := point.Field("x")
	require.True(t, ok)
	y, ok := point.Field("y")
	require.True(t, ok)
	assert.Equal(t, int64(0), x.Offset)
	assert.Equal(t, int64(4), y.Offset)
	assert.Same(t, intType, x.Type)
	assert.Same(t, intType, y.Type)
	assert.Equal(t, AccessPublic, x.Access)
}

func TestBuildForwardReference(t *testing.T) {
	f := newFixture(t)

	ta, err := f.db.TypeByIndex(TypeIndex(f.a))
	require.NoError(t, err)
	tb, err := f.db.TypeByIndex(TypeIndex(f.b))
	require.NoError(t, err)

	a := ta.(*CompoundType)
	field, ok := a.Field("b")
	require.True(t, ok)
	assert.Same(t, tb, field.Type, "lazy reference replaced by the materialized node")

	bad, ok := a.Field("bad")
	require.True(t, ok)
	lazy, ok := bad.Type.(*LazyType)
	require.True(t, ok, "unresolvable reference stays lazy")
	assert.Equal(t, TypeIndex(0x1fff), lazy.Index())

	assert.Equal(t, 1, f.listener.Count())
	assert.Equal(t, 1, f.db.Stats().Unresolved)
	assert.ErrorContains(t, f.listener.Err(), "0x1fff")
}

func TestBuildModifierAndPointer(t *testing.T) {
	f := newFixture(t)

	tc, err := f.db.TypeByIndex(TypeIndex(f.constPoint))
	require.NoError(t, err)
	assert.True(t, tc.IsConst())
	assert.False(t, tc.IsVolatile())
	assert.Equal(t, "Point", tc.Name())
	assert.Equal(t, uint64(8), tc.Size())

	tp, err := f.db.TypeByIndex(TypeIndex(f.point))
	require.NoError(t, err)
	assert.False(t, tp.IsConst(), "qualifier applies to the variant only")

	tptr, err := f.db.TypeByIndex(TypeIndex(f.ptrC))
	require.NoError(t, err)
	ptr := tptr.(*PointerType)
	assert.Equal(t, uint64(DefaultPointerSize), ptr.Size())
	require.NotNil(t, ptr.Target())
	assert.Equal(t, "C", ptr.Target().Name())
	assert.True(t, ptr.Target().(*CompoundType).IsForwardRef())
	assert.Equal(t, "struct C*", TypeString(ptr))
}

func TestBuildSkipsUnsupportedRecords(t *testing.T) {
	f := newFixture(t)

	var kinds []TypeKind
	for _, typ := range f.db.Types() {
		kinds = append(kinds, typ.Kind())
	}
	assert.NotContains(t, kinds, TypeKindUnknown)

	// VTSHAPE, DIMARRAY and the pointer to a bad primitive yield nothing
	for ti := TypeIndex(f.ptrC + 2); ti < TypeIndex(f.anon1); ti++ {
		_, err := f.db.TypeByIndex(ti)
		assert.ErrorIs(t, err, ErrTypeNotFound)
	}
}

func TestBuildAnonymousEnumIsShared(t *testing.T) {
	f := newFixture(t)

	e1, err := f.db.TypeByIndex(TypeIndex(f.anon1))
	require.NoError(t, err)
	e2, err := f.db.TypeByIndex(TypeIndex(f.anon2))
	require.NoError(t, err)
	assert.Same(t, e1, e2)
	assert.True(t, e1.(*EnumType).IsAnonymous())
	assert.Equal(t, uint64(4), e1.Size())
}

func TestBuildGlobals(t *testing.T) {
	f := newFixture(t)

	counter, ok := f.db.LookupSym("counter")
	require.True(t, ok)
	assert.Equal(t, uint64(0x13100), counter.Address())
	assert.False(t, counter.IsModuleLocal())
	assert.Equal(t, "int", counter.Type().Name())

	origin, ok := f.db.LookupSym("origin")
	require.True(t, ok)
	assert.True(t, origin.IsModuleLocal())
	assert.True(t, origin.Type().IsConst())

	_, ok = f.db.LookupSym("_main")
	assert.False(t, ok, "public symbols are not data symbols")
	_, ok = f.db.LookupSym("missing")
	assert.False(t, ok)

	ts, err := f.db.TypeByIndex(TypeIndex(f.s))
	require.NoError(t, err)
	count, ok := ts.(*CompoundType).Field("count")
	require.True(t, ok)
	assert.True(t, count.Static)
	addr, ok := count.Address()
	require.True(t, ok)
	assert.Equal(t, uint64(0x13108), addr)

	sym, off, ok := f.db.ClosestSymbol(0x11025)
	require.True(t, ok)
	assert.Equal(t, "main", sym.Name())
	assert.Equal(t, uint64(0x15), off)
}

func TestBuildLineNumbers(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		pc   uint64
		line uint32
		ok   bool
	}{
		{pc: 0x11000, ok: false},
		{pc: 0x11010, line: 3, ok: true},
		{pc: 0x11017, line: 3, ok: true},
		{pc: 0x11020, line: 4, ok: true},
		{pc: 0x11030, line: 6, ok: true},
		{pc: 0x11fff, line: 6, ok: true},
		{pc: 0x12000, ok: false},
	}
	for _, tt := range tests {
		li, ok := f.db.LineNumberForPC(tt.pc)
		require.Equal(t, tt.ok, ok, "pc %#x", tt.pc)
		if ok {
			assert.Equal(t, tt.line, li.Line(), "pc %#x", tt.pc)
			assert.Equal(t, "main.c", li.File())
			assert.Equal(t, uint16(1), li.Module())
		}
	}

	var ends []uint64
	for li := range f.db.LineNumbers() {
		ends = append(ends, li.End())
	}
	assert.Equal(t, []uint64{0x11018, 0x11030, 0x12000}, ends)
}

func TestBuildModules(t *testing.T) {
	f := newFixture(t)
	mods := f.db.Modules()
	require.Len(t, mods, 1)
	assert.Equal(t, "main.obj", mods[0].Name)
}

func TestBuildAddressWithoutSegmentMap(t *testing.T) {
	var types cvtest.Types
	types.Add(uint16(leaf.LF_ARGLIST), cvtest.ArgList())
	globals := cvtest.NewTable()
	globals.Add(uint16(symbols.S_GDATA32), cvtest.Data32(0x20, 1, 0x74, "g"))

	cv := cvtest.CodeView("NB09",
		cvtest.Subsection{Kind: uint16(codeview.SstGlobalTypes), Module: 0xffff, Data: types.Bytes()},
		cvtest.Subsection{Kind: uint16(codeview.SstGlobalSym), Module: 0xffff, Data: globals.Bytes()},
	)
	img := cvtest.NewImage(cv, coff.SectionHeader{Name: ".text", VirtualAddress: 0x1000, VirtualSize: 0x100})

	db, err := Build(img, 0x400000)
	require.NoError(t, err)
	g, ok := db.LookupSym("g")
	require.True(t, ok)
	assert.Equal(t, uint64(0x401020), g.Address())
}

func TestBuildFieldListContinuation(t *testing.T) {
	var types cvtest.Types
	var tail cvtest.FieldList
	tail.Member(0x74, 3, 8, "z")
	tailList := types.Add(uint16(leaf.LF_FIELDLIST), tail.Bytes())

	var head cvtest.FieldList
	head.NestedType(0x74, "Inner").Member(0x74, 3, 0, "x").VFuncTab(0x74).Member(0x74, 3, 4, "y").Index(tailList)
	headList := types.Add(uint16(leaf.LF_FIELDLIST), head.Bytes())
	outer := types.Add(uint16(leaf.LF_STRUCTURE), cvtest.Struct(5, headList, 0, 12, "Outer"))

	cv := cvtest.CodeView("NB11", cvtest.Subsection{Kind: uint16(codeview.SstGlobalTypes), Module: 0xffff, Data: types.Bytes()})
	db, err := Build(cvtest.NewImage(cv, testSections...), testBase)
	require.NoError(t, err)

	typ, err := db.TypeByIndex(TypeIndex(outer))
	require.NoError(t, err)
	var names []string
	for _, f := range typ.(*CompoundType).Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"x", "y", "z"}, names, "members after a nested type and across LF_INDEX")
	assert.Equal(t, 0, db.Stats().Unresolved)
}

func TestBuildQualifiedVariantReportsOnce(t *testing.T) {
	var types cvtest.Types
	var fl cvtest.FieldList
	fl.Member(0x1fff, 3, 0, "dangling")
	list := types.Add(uint16(leaf.LF_FIELDLIST), fl.Bytes())
	a := types.Add(uint16(leaf.LF_STRUCTURE), cvtest.Struct(1, list, 0, 4, "A"))
	var mod cvtest.Buffer
	mod.U16(0x01).U16(a)
	constA := types.Add(uint16(leaf.LF_MODIFIER), mod.Bytes())

	var ptr cvtest.Buffer
	ptr.U16(0x000a).U16(0x1ffe)
	p := types.Add(uint16(leaf.LF_POINTER), ptr.Bytes())
	var volPtr cvtest.Buffer
	volPtr.U16(0x02).U16(p)
	vp := types.Add(uint16(leaf.LF_MODIFIER), volPtr.Bytes())

	cv := cvtest.CodeView("NB11", cvtest.Subsection{Kind: uint16(codeview.SstGlobalTypes), Module: 0xffff, Data: types.Bytes()})
	listener := &CollectingListener{}
	db, err := Build(cvtest.NewImage(cv, testSections...), testBase, WithListener(listener))
	require.NoError(t, err)

	assert.Equal(t, 2, listener.Count(), "one report per dangling reference")
	assert.Equal(t, 2, db.Stats().Unresolved)

	ta, err := db.TypeByIndex(TypeIndex(a))
	require.NoError(t, err)
	tc, err := db.TypeByIndex(TypeIndex(constA))
	require.NoError(t, err)
	assert.True(t, tc.IsConst())
	assert.Same(t, ta.(*CompoundType).Fields()[0], tc.(*CompoundType).Fields()[0])

	tv, err := db.TypeByIndex(TypeIndex(vp))
	require.NoError(t, err)
	assert.True(t, tv.IsVolatile())
	lazy, ok := tv.(*PointerType).Target().(*LazyType)
	require.True(t, ok)
	assert.Equal(t, TypeIndex(0x1ffe), lazy.Index())
}

func TestBuildNotPresent(t *testing.T) {
	db, err := Build(cvtest.NewImage(nil), testBase)
	require.NoError(t, err)
	assert.Nil(t, db)

	db, err = Build(cvtest.NewImage([]byte("NB10\x00\x00\x00\x00\x01\x02\x03\x04")), testBase)
	require.NoError(t, err)
	assert.Nil(t, db)
}

func TestBuildFatalErrors(t *testing.T) {
	t.Run("missing global types", func(t *testing.T) {
		cv := cvtest.CodeView("NB11", cvtest.Subsection{Kind: uint16(codeview.SstSegMap), Data: cvtest.SegMap()})
		_, err := Build(cvtest.NewImage(cv), testBase)
		var de *DebuggerError
		require.ErrorAs(t, err, &de)
		assert.ErrorIs(t, err, codeview.ErrMissingSubsection)
	})

	t.Run("field list head is not a field list", func(t *testing.T) {
		var types cvtest.Types
		args := types.Add(uint16(leaf.LF_ARGLIST), cvtest.ArgList())
		types.Add(uint16(leaf.LF_STRUCTURE), cvtest.Struct(1, args, 0, 4, "Broken"))
		cv := cvtest.CodeView("NB11", cvtest.Subsection{Kind: uint16(codeview.SstGlobalTypes), Data: types.Bytes()})

		_, err := Build(cvtest.NewImage(cv), testBase)
		var de *DebuggerError
		require.ErrorAs(t, err, &de)
		assert.ErrorIs(t, err, ErrNotFieldList)
	})

	t.Run("malformed directory", func(t *testing.T) {
		_, err := Build(cvtest.NewImage([]byte("NB11\x40\x00\x00\x00")), testBase)
		var de *DebuggerError
		require.ErrorAs(t, err, &de)
	})
}

func TestBuildScopeStackRecovery(t *testing.T) {
	var types cvtest.Types
	types.Add(uint16(leaf.LF_ARGLIST), cvtest.ArgList())

	first := cvtest.NewAligned()
	first.Add(uint16(symbols.S_END), nil) // underflow is ignored
	first.Add(uint16(symbols.S_BPREL32), cvtest.BPRel32(-4, 0x74, "orphan"))
	first.Add(uint16(symbols.S_GPROC32), cvtest.Proc32(0, 0, 0x10, 0x0, 1, 0, "open"))

	second := cvtest.NewAligned()
	second.Add(uint16(symbols.S_LPROC32), cvtest.Proc32(0, 0, 0x10, 0x20, 1, 0, "helper"))
	second.Add(uint16(symbols.S_BPREL32), cvtest.BPRel32(-4, 0x74, "n"))
	second.Add(uint16(symbols.S_END), nil)

	third := cvtest.NewAligned()
	third.Add(uint16(symbols.S_GPROC32), cvtest.Proc32(0, 0, 0x10, 0x40, 1, 0, "before"))
	third.Add(uint16(symbols.S_END), nil)
	third.Add(uint16(symbols.S_END), nil) // underflow mid-stream
	afterOff := third.Add(uint16(symbols.S_GPROC32), cvtest.Proc32(0, 0, 0x10, 0x60, 1, 0, "after"))
	third.Add(uint16(symbols.S_BPREL32), cvtest.BPRel32(-8, 0x74, "k"))
	third.Add(uint16(symbols.S_BLOCK32), cvtest.Block32(afterOff, 0, 0x4, 0x64, 1, ""))
	third.Add(uint16(symbols.S_BPREL32), cvtest.BPRel32(-12, 0x74, "inner"))
	third.Add(uint16(symbols.S_END), nil)
	third.Add(uint16(symbols.S_END), nil)

	cv := cvtest.CodeView("NB11",
		cvtest.Subsection{Kind: uint16(codeview.SstAlignSym), Module: 1, Data: first.Bytes()},
		cvtest.Subsection{Kind: uint16(codeview.SstAlignSym), Module: 2, Data: second.Bytes()},
		cvtest.Subsection{Kind: uint16(codeview.SstAlignSym), Module: 3, Data: third.Bytes()},
		cvtest.Subsection{Kind: uint16(codeview.SstGlobalTypes), Module: 0xffff, Data: types.Bytes()},
	)
	db, err := Build(cvtest.NewImage(cv, testSections...), testBase)
	require.NoError(t, err)

	open, ok := db.LookupFunction("open")
	require.True(t, ok)
	assert.Empty(t, open.Locals())

	helper, ok := db.LookupFunction("helper")
	require.True(t, ok)
	assert.False(t, helper.IsGlobal())
	require.Len(t, helper.Locals(), 1)
	assert.Nil(t, helper.Parent(), "stack does not leak across subsections")
	assert.Equal(t, TypeKindVoid, helper.Type().Kind(), "type index 0 is the no-type primitive")
	assert.Nil(t, helper.ReturnType())

	before, ok := db.LookupFunction("before")
	require.True(t, ok)
	assert.Empty(t, before.Locals())

	after, ok := db.LookupFunction("after")
	require.True(t, ok)
	assert.Nil(t, after.Parent())
	require.Len(t, after.Locals(), 1, "locals after a recovered underflow attach to the open procedure")
	assert.Equal(t, "k", after.Locals()[0].Name())
	require.Len(t, after.Children(), 1)
	inner := after.Children()[0]
	require.NotNil(t, inner.Parent())
	assert.Equal(t, "after", inner.Parent().Name())
	require.Len(t, inner.Locals(), 1)
	assert.Equal(t, "inner", inner.Locals()[0].Name())
}
