package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadSignedNumeric(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int64
		rest int
	}{
		{name: "inline", data: []byte{0x34, 0x12}, want: 0x1234},
		{name: "char", data: []byte{0x00, 0x80, 0xff}, want: -1},
		{name: "short", data: []byte{0x01, 0x80, 0xfe, 0xff}, want: -2},
		{name: "ushort", data: []byte{0x02, 0x80, 0xfe, 0xff}, want: 0xfffe},
		{name: "long", data: []byte{0x03, 0x80, 0x00, 0x00, 0x00, 0x80}, want: -0x80000000},
		{name: "ulong", data: []byte{0x04, 0x80, 0x00, 0x00, 0x00, 0x80}, want: 0x80000000},
		{name: "real32 skipped", data: []byte{0x05, 0x80, 1, 2, 3, 4, 0xAA}, want: 0, rest: 1},
		{name: "varstring skipped", data: []byte{0x10, 0x80, 0x02, 0x00, 'h', 'i', 0xAA}, want: 0, rest: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.data)
			got, err := r.ReadSignedNumeric()
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.rest, r.Remaining())
		})
	}
}

func TestReadNumericInvalid(t *testing.T) {
	r := NewReader([]byte{0x20, 0x80})
	_, err := r.ReadNumeric()
	require.ErrorIs(t, err, ErrInvalidNumeric)
}

func TestReadPString(t *testing.T) {
	r := NewReader([]byte{3, 'f', 'o', 'o', 0, 9})
	s, err := r.ReadPString()
	require.NoError(t, err)
	require.Equal(t, "foo", s)

	s, err = r.ReadPString()
	require.NoError(t, err)
	require.Equal(t, "", s)

	_, err = r.ReadPString()
	require.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestSkipAndAlign(t *testing.T) {
	r := NewReader(make([]byte, 8))
	require.NoError(t, r.Skip(3))
	r.Align(4)
	require.Equal(t, 4, r.Offset())
	require.ErrorIs(t, r.Skip(5), ErrUnexpectedEOF)
	require.Equal(t, 4, r.Offset())
}
