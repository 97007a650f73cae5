package leaf

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/cv50-go/internal/cvtest"
)

func TestPrimitiveBits(t *testing.T) {
	ti := TypeIndex(0x0474) // near32 pointer to really-int 4
	require.True(t, ti.IsPrimitive())
	require.Equal(t, PrimitiveModeNear32, ti.PrimitiveMode())
	require.Equal(t, PrimitiveReallyInt, ti.PrimitiveTier())
	require.Equal(t, SizeReallyInt4, ti.PrimitiveSize())
	require.Equal(t, TypeIndex(0x0074), ti.Direct())
	require.False(t, FirstUserTypeIndex.IsPrimitive())
}

func TestStreamIteratesByRecordLength(t *testing.T) {
	var types cvtest.Types
	first := types.Add(uint16(LF_ARGLIST), cvtest.ArgList(0x74))
	types.Add(0x7777, []byte{1, 2, 3, 4, 5, 6})
	third := types.Add(uint16(LF_STRUCTURE), cvtest.Struct(0, 0, 0x80, 0, "Fwd"))

	s, err := ParseStream(types.Bytes())
	require.NoError(t, err)
	require.Equal(t, 3, s.Count())

	var kinds []Kind
	var indices []TypeIndex
	it := s.Iterator()
	for rec := it.Next(); rec != nil; rec = it.Next() {
		kinds = append(kinds, rec.Kind)
		indices = append(indices, rec.Index)
	}
	require.NoError(t, it.Err())
	require.Equal(t, []Kind{LF_ARGLIST, Kind(0x7777), LF_STRUCTURE}, kinds)
	require.Equal(t, []TypeIndex{TypeIndex(first), TypeIndex(first) + 1, TypeIndex(third)}, indices)

	rec, err := s.Record(TypeIndex(third))
	require.NoError(t, err)
	cls, err := ParseClassRecord(rec.Data)
	require.NoError(t, err)
	require.Equal(t, "Fwd", cls.Name)
	require.True(t, cls.Properties.IsForwardRef())

	_, err = s.Record(0x2000)
	require.ErrorIs(t, err, ErrTypeIndexOutOfRange)
}

func TestParseStreamRejectsShortOffsetTable(t *testing.T) {
	var b cvtest.Buffer
	b.U32(1).U32(100)
	_, err := ParseStream(b.Bytes())
	require.ErrorIs(t, err, ErrInvalidHeader)
}

func TestFieldIterator(t *testing.T) {
	var fl cvtest.FieldList
	fl.BaseClass(0x1005, 3, 0).
		Member(0x0074, 3, 0, "x").
		Method(2, 0x1007, "frob").
		NestedType(0x1009, "Inner").
		VFuncTab(0x100a).
		StaticMember(0x0074, 1, "count").
		Member(0x0074, 2, 0x12345, "far").
		Index(0x1010)

	it := NewFieldIterator(fl.Bytes())
	var got []Field
	for f, ok := it.Next(); ok; f, ok = it.Next() {
		got = append(got, f)
	}
	require.NoError(t, it.Err())
	require.Len(t, got, 8)

	require.Equal(t, LF_BCLASS, got[0].Kind)
	require.Equal(t, TypeIndex(0x1005), got[0].Type)
	require.Equal(t, MemberAccessPublic, got[0].Attributes.Access())

	require.Equal(t, LF_MEMBER, got[1].Kind)
	require.Equal(t, "x", got[1].Name)

	require.Equal(t, LF_METHOD, got[2].Kind)
	require.Equal(t, uint16(2), got[2].Count)
	require.Equal(t, "Inner", got[3].Name)
	require.Equal(t, LF_VFUNCTAB, got[4].Kind)

	require.Equal(t, LF_STMEMBER, got[5].Kind)
	require.Equal(t, MemberAccessPrivate, got[5].Attributes.Access())

	require.Equal(t, int64(0x12345), got[6].Value)
	require.Equal(t, MemberAccessProtected, got[6].Attributes.Access())

	require.Equal(t, LF_INDEX, got[7].Kind)
	require.Equal(t, TypeIndex(0x1010), got[7].Type)
}

func TestFieldIteratorShortLayouts(t *testing.T) {
	// {leaf, index[, name]} with no pad word before the index
	var b cvtest.Buffer
	b.U16(uint16(LF_NESTTYPE)).U16(0x0074).Name("Inner").PadLeaf()
	b.U16(uint16(LF_FRIENDCLS)).U16(0x1003).PadLeaf()
	b.U16(uint16(LF_VFUNCOFF)).U16(0x1004).I32(8).PadLeaf()
	b.U16(uint16(LF_MEMBER)).U16(0x0074).U16(3).U16(4).Name("x").PadLeaf()
	b.U16(uint16(LF_INDEX)).U16(0x1010).PadLeaf()

	it := NewFieldIterator(b.Bytes())
	var got []Field
	for f, ok := it.Next(); ok; f, ok = it.Next() {
		got = append(got, f)
	}
	require.NoError(t, it.Err())
	require.Len(t, got, 5)

	require.Equal(t, TypeIndex(0x0074), got[0].Type)
	require.Equal(t, "Inner", got[0].Name)
	require.Equal(t, TypeIndex(0x1003), got[1].Type)
	require.Equal(t, TypeIndex(0x1004), got[2].Type)
	require.Equal(t, int64(8), got[2].Value)

	require.Equal(t, LF_MEMBER, got[3].Kind)
	require.Equal(t, "x", got[3].Name)
	require.Equal(t, int64(4), got[3].Value)

	require.Equal(t, LF_INDEX, got[4].Kind)
	require.Equal(t, TypeIndex(0x1010), got[4].Type)
}

func TestFieldIteratorOneMethodIntroducing(t *testing.T) {
	var b cvtest.Buffer
	// attr: public, intro virtual (4 << 2)
	b.U16(uint16(LF_ONEMETHOD)).U16(3 | 4<<2).U16(0x1003).U32(8).Name("vf").PadLeaf()
	b.U16(uint16(LF_ENUMERATE)).U16(3).Numeric(-2).Name("neg").PadLeaf()

	it := NewFieldIterator(b.Bytes())
	f, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, int64(8), f.Value)
	require.Equal(t, "vf", f.Name)

	f, ok = it.Next()
	require.True(t, ok)
	require.Equal(t, int64(-2), f.Value)
	require.Equal(t, "neg", f.Name)

	_, ok = it.Next()
	require.False(t, ok)
	require.NoError(t, it.Err())
}

func TestFieldIteratorUnknownKind(t *testing.T) {
	var b cvtest.Buffer
	b.U16(0x0499).U16(0)

	it := NewFieldIterator(b.Bytes())
	_, ok := it.Next()
	require.False(t, ok)
	require.ErrorIs(t, it.Err(), ErrUnknownFieldKind)
}

func TestParseRecords(t *testing.T) {
	t.Run("modifier", func(t *testing.T) {
		var b cvtest.Buffer
		b.U16(0x03).U16(0x1001)
		m, err := ParseModifierRecord(b.Bytes())
		require.NoError(t, err)
		require.True(t, m.Modifiers.IsConst())
		require.True(t, m.Modifiers.IsVolatile())
		require.Equal(t, TypeIndex(0x1001), m.ModifiedType)
	})

	t.Run("array", func(t *testing.T) {
		var b cvtest.Buffer
		b.U16(0x0070).U16(0x0074).Numeric(16).Name("buf")
		a, err := ParseArrayRecord(b.Bytes())
		require.NoError(t, err)
		require.Equal(t, uint64(16), a.Size)
		require.Equal(t, "buf", a.Name)
	})

	t.Run("mfunction", func(t *testing.T) {
		var b cvtest.Buffer
		b.U16(0x0003).U16(0x1000).U16(0x1001).U8(uint8(CallingConvThisCall)).U8(0).U16(1).U16(0x1002).I32(-4)
		m, err := ParseMFunctionRecord(b.Bytes())
		require.NoError(t, err)
		require.Equal(t, TypeIndex(0x1001), m.ThisType)
		require.Equal(t, int32(-4), m.ThisAdjust)
		require.Equal(t, "__thiscall", m.CallingConv.String())
	})

	t.Run("bitfield", func(t *testing.T) {
		bf, err := ParseBitFieldRecord([]byte{3, 5, 0x75, 0x00})
		require.NoError(t, err)
		require.Equal(t, uint8(3), bf.Length)
		require.Equal(t, uint8(5), bf.Position)
		require.Equal(t, TypeIndex(0x0075), bf.Type)
	})

	t.Run("arglist", func(t *testing.T) {
		al, err := ParseArgListRecord(cvtest.ArgList(0x74, 0x1003))
		require.NoError(t, err)
		require.Equal(t, []TypeIndex{0x74, 0x1003}, al.ArgTypes)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := ParseProcedureRecord([]byte{0x74})
		require.Error(t, err)
	})
}
