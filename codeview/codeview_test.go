package codeview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/cv50-go/coff"
	"github.com/skdltmxn/cv50-go/internal/cvtest"
)

func TestLocate(t *testing.T) {
	cv := cvtest.CodeView("NB11",
		cvtest.Subsection{Kind: uint16(SstModule), Module: 1, Data: cvtest.ModuleSub(1, 0x10, 0x40, "main.obj")},
		cvtest.Subsection{Kind: uint16(SstAlignSym), Module: 1, Data: []byte{1, 0, 0, 0}},
		cvtest.Subsection{Kind: uint16(SstGlobalTypes), Module: 0xffff, Data: []byte{1, 0, 0, 0, 0, 0, 0, 0}},
		cvtest.Subsection{Kind: uint16(SstAlignSym), Module: 2, Data: []byte{1, 0, 0, 0, 9}},
	)

	s, err := Locate(cvtest.NewImage(cv))
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, SignatureNB11, s.Signature)
	require.Len(t, s.Subsections(), 4)
	assert.Equal(t, 16, int(s.Header.HeaderSize))

	sub, ok := s.Lookup(SstAlignSym)
	require.True(t, ok)
	assert.Equal(t, uint16(1), sub.Module, "first match wins")
	assert.Equal(t, 1, sub.Index)

	var mods []uint16
	for sub := range s.All(SstAlignSym) {
		mods = append(mods, sub.Module)
	}
	assert.Equal(t, []uint16{1, 2}, mods)

	_, ok = s.Lookup(SstSegMap)
	assert.False(t, ok)
	_, err = s.Require(SstSrcModule)
	require.ErrorIs(t, err, ErrMissingSubsection)

	modules, err := s.Modules()
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "main.obj", modules[0].Name)
	assert.Equal(t, []ModuleSegment{{Segment: 1, Offset: 0x10, Length: 0x40}}, modules[0].Segments)
}

func TestLocateNotPresent(t *testing.T) {
	tests := []struct {
		name string
		img  Image
	}{
		{name: "no debug directory", img: cvtest.NewImage(nil)},
		{name: "external pdb NB10", img: cvtest.NewImage([]byte("NB10\x00\x00\x00\x00\x01\x02\x03\x04"))},
		{name: "external pdb RSDS", img: cvtest.NewImage([]byte("RSDS0123456789abcdef\x01\x00\x00\x00a.pdb\x00"))},
		{name: "other debug type", img: &cvtest.Image{Debug: []coff.DebugDirectoryEntry{{Type: 4, Data: []byte("NB11")}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Locate(tt.img)
			require.NoError(t, err)
			require.Nil(t, s)
		})
	}
}

func TestLocateMalformed(t *testing.T) {
	_, err := Parse([]byte("NB1"))
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	require.ErrorIs(t, err, ErrTruncated)

	_, err = Parse([]byte("NB05\x08\x00\x00\x00"))
	require.ErrorIs(t, err, ErrUnsupportedSignature)

	cv := cvtest.CodeView("NB09", cvtest.Subsection{Kind: uint16(SstSegMap), Data: make([]byte, 8)})
	// Point the only entry past the end of the stream
	cv[len(cv)-4] = 0xff
	_, err = Parse(cv)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestSegmentMap(t *testing.T) {
	m, err := ParseSegmentMap(cvtest.SegMap(
		cvtest.SegDesc{Frame: 1, Offset: 0, Length: 0x1000},
		cvtest.SegDesc{Frame: 1, Offset: 0x800, Length: 0x100},
	))
	require.NoError(t, err)
	require.Len(t, m.Entries, 2)

	seg, off := m.Map(1, 0x20)
	assert.Equal(t, uint16(1), seg)
	assert.Equal(t, uint32(0x20), off)

	seg, off = m.Map(2, 0x20)
	assert.Equal(t, uint16(1), seg)
	assert.Equal(t, uint32(0x820), off)

	seg, off = m.Map(3, 0x20)
	assert.Equal(t, uint16(3), seg, "undescribed segments map to themselves")
	assert.Equal(t, uint32(0x20), off)

	var none *SegmentMap
	seg, off = none.Map(2, 4)
	assert.Equal(t, uint16(2), seg)
	assert.Equal(t, uint32(4), off)
}
