package leaf

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/cv50-go/internal/stream"
)

// Errors
var (
	ErrInvalidHeader       = errors.New("leaf: invalid global types header")
	ErrTypeIndexOutOfRange = errors.New("leaf: type index out of range")
	ErrInvalidTypeRecord   = errors.New("leaf: invalid type record")
	ErrUnknownFieldKind    = errors.New("leaf: unknown field list sub-record")
)

// Header represents the sstGlobalTypes subsection header.
type Header struct {
	// Flags carries the signature byte and hashing flags
	Flags uint32

	// Count is the number of type records
	Count uint32
}

// Record is a raw type record.
type Record struct {
	// Index is the type index of the record
	Index TypeIndex

	// Offset is the offset of the record length field within the record area
	Offset int

	// Length is the self-declared length (kind plus data, excluding itself)
	Length uint16

	Kind Kind
	Data []byte // Raw record data (excluding length and kind)
}

// Stream represents a parsed sstGlobalTypes subsection.
type Stream struct {
	Header Header

	// rawRecords holds the record area following the offset table
	rawRecords []byte

	// offsets[i] is the offset of type 0x1000+i within rawRecords
	offsets []uint32
}

// ParseStream parses an sstGlobalTypes subsection from raw data.
func ParseStream(data []byte) (*Stream, error) {
	r := stream.NewReader(data)
	s := &Stream{}

	var err error
	if s.Header.Flags, err = r.ReadU32(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if s.Header.Count, err = r.ReadU32(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if uint64(s.Header.Count)*4 > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: offset table of %d entries exceeds %d bytes",
			ErrInvalidHeader, s.Header.Count, r.Remaining())
	}

	s.offsets = make([]uint32, s.Header.Count)
	for i := range s.offsets {
		if s.offsets[i], err = r.ReadU32(); err != nil {
			return nil, err
		}
	}

	s.rawRecords = data[r.Offset():]
	return s, nil
}

// Count returns the number of type records declared in the header.
func (s *Stream) Count() int {
	return len(s.offsets)
}

// TypeIndexEnd returns one past the last valid type index.
func (s *Stream) TypeIndexEnd() TypeIndex {
	return FirstUserTypeIndex + TypeIndex(len(s.offsets))
}

// RecordAt decodes the raw record starting at offset within the record area.
func (s *Stream) RecordAt(offset int) (*Record, error) {
	if offset < 0 || offset >= len(s.rawRecords) {
		return nil, fmt.Errorf("%w: offset %#x", ErrInvalidTypeRecord, offset)
	}
	r := stream.NewReader(s.rawRecords[offset:])

	recordLen, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	kind, err := r.ReadU16()
	if err != nil {
		return nil, err
	}

	// recordLen includes the kind field, so subtract 2
	dataLen := int(recordLen) - 2
	if dataLen < 0 {
		return nil, fmt.Errorf("%w: length %d at offset %#x", ErrInvalidTypeRecord, recordLen, offset)
	}
	data, err := r.ReadBytesRef(dataLen)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated record at offset %#x", ErrInvalidTypeRecord, offset)
	}

	return &Record{
		Offset: offset,
		Length: recordLen,
		Kind:   Kind(kind),
		Data:   data,
	}, nil
}

// Record returns the raw type record for the given index.
func (s *Stream) Record(ti TypeIndex) (*Record, error) {
	if ti < FirstUserTypeIndex || ti >= s.TypeIndexEnd() {
		return nil, fmt.Errorf("%w: %#x", ErrTypeIndexOutOfRange, uint16(ti))
	}
	rec, err := s.RecordAt(int(s.offsets[ti-FirstUserTypeIndex]))
	if err != nil {
		return nil, err
	}
	rec.Index = ti
	return rec, nil
}

// Iterator walks records in stream order using each record's own length.
type Iterator struct {
	s      *Stream
	offset int
	index  TypeIndex
	err    error
}

// Iterator returns an iterator positioned at the first record.
func (s *Stream) Iterator() *Iterator {
	return &Iterator{s: s, index: FirstUserTypeIndex}
}

// Next returns the next record, or nil when the stream is exhausted or
// the next record is malformed. Err reports the latter.
func (it *Iterator) Next() *Record {
	if it.err != nil || it.offset >= len(it.s.rawRecords) || it.index >= it.s.TypeIndexEnd() {
		return nil
	}
	rec, err := it.s.RecordAt(it.offset)
	if err != nil {
		it.err = err
		return nil
	}
	rec.Index = it.index
	it.index++
	it.offset += 2 + int(rec.Length)
	return rec
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// ModifierRecord represents an LF_MODIFIER type.
type ModifierRecord struct {
	Modifiers    ModifierOptions
	ModifiedType TypeIndex
}

// ParseModifierRecord parses an LF_MODIFIER record.
func ParseModifierRecord(data []byte) (*ModifierRecord, error) {
	r := stream.NewReader(data)

	mods, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	modType, err := r.ReadU16()
	if err != nil {
		return nil, err
	}

	return &ModifierRecord{
		Modifiers:    ModifierOptions(mods),
		ModifiedType: TypeIndex(modType),
	}, nil
}

// PointerRecord represents an LF_POINTER type.
type PointerRecord struct {
	Attributes   PointerAttributes
	ReferentType TypeIndex
}

// ParsePointerRecord parses an LF_POINTER record. Variant data following
// the referent (based pointers, pointers to members) is ignored.
func ParsePointerRecord(data []byte) (*PointerRecord, error) {
	r := stream.NewReader(data)

	attrs, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	refType, err := r.ReadU16()
	if err != nil {
		return nil, err
	}

	return &PointerRecord{
		Attributes:   PointerAttributes(attrs),
		ReferentType: TypeIndex(refType),
	}, nil
}

// ArrayRecord represents an LF_ARRAY type.
type ArrayRecord struct {
	ElementType TypeIndex
	IndexType   TypeIndex
	Size        uint64 // Total size in bytes
	Name        string
}

// ParseArrayRecord parses an LF_ARRAY record.
func ParseArrayRecord(data []byte) (*ArrayRecord, error) {
	r := stream.NewReader(data)

	elemType, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	indexType, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	size, err := r.ReadNumeric()
	if err != nil {
		return nil, err
	}
	name, err := readOptionalName(r)
	if err != nil {
		return nil, err
	}

	return &ArrayRecord{
		ElementType: TypeIndex(elemType),
		IndexType:   TypeIndex(indexType),
		Size:        size,
		Name:        name,
	}, nil
}

// ClassRecord represents an LF_CLASS or LF_STRUCTURE type.
type ClassRecord struct {
	Count       uint16
	FieldList   TypeIndex
	Properties  ClassProperties
	DerivedFrom TypeIndex
	VShape      TypeIndex
	Size        uint64
	Name        string
}

// ParseClassRecord parses an LF_CLASS or LF_STRUCTURE record.
func ParseClassRecord(data []byte) (*ClassRecord, error) {
	r := stream.NewReader(data)

	count, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	fieldList, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	props, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	derived, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	vshape, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	size, err := r.ReadNumeric()
	if err != nil {
		return nil, err
	}
	name, err := readOptionalName(r)
	if err != nil {
		return nil, err
	}

	return &ClassRecord{
		Count:       count,
		FieldList:   TypeIndex(fieldList),
		Properties:  ClassProperties(props),
		DerivedFrom: TypeIndex(derived),
		VShape:      TypeIndex(vshape),
		Size:        size,
		Name:        name,
	}, nil
}

// UnionRecord represents an LF_UNION type.
type UnionRecord struct {
	Count      uint16
	FieldList  TypeIndex
	Properties ClassProperties
	Size       uint64
	Name       string
}

// ParseUnionRecord parses an LF_UNION record.
func ParseUnionRecord(data []byte) (*UnionRecord, error) {
	r := stream.NewReader(data)

	count, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	fieldList, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	props, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	size, err := r.ReadNumeric()
	if err != nil {
		return nil, err
	}
	name, err := readOptionalName(r)
	if err != nil {
		return nil, err
	}

	return &UnionRecord{
		Count:      count,
		FieldList:  TypeIndex(fieldList),
		Properties: ClassProperties(props),
		Size:       size,
		Name:       name,
	}, nil
}

// EnumRecord represents an LF_ENUM type.
type EnumRecord struct {
	Count          uint16
	UnderlyingType TypeIndex
	FieldList      TypeIndex
	Properties     ClassProperties
	Name           string
}

// ParseEnumRecord parses an LF_ENUM record.
func ParseEnumRecord(data []byte) (*EnumRecord, error) {
	r := stream.NewReader(data)

	count, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	utype, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	fieldList, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	props, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	name, err := readOptionalName(r)
	if err != nil {
		return nil, err
	}

	return &EnumRecord{
		Count:          count,
		UnderlyingType: TypeIndex(utype),
		FieldList:      TypeIndex(fieldList),
		Properties:     ClassProperties(props),
		Name:           name,
	}, nil
}

// ProcedureRecord represents an LF_PROCEDURE type (function signature).
type ProcedureRecord struct {
	ReturnType     TypeIndex
	CallingConv    CallingConvention
	ParameterCount uint16
	ArgumentList   TypeIndex
}

// ParseProcedureRecord parses an LF_PROCEDURE record.
func ParseProcedureRecord(data []byte) (*ProcedureRecord, error) {
	r := stream.NewReader(data)

	retType, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	cc, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	if err := r.Skip(1); err != nil { // reserved
		return nil, err
	}
	paramCount, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	argList, err := r.ReadU16()
	if err != nil {
		return nil, err
	}

	return &ProcedureRecord{
		ReturnType:     TypeIndex(retType),
		CallingConv:    CallingConvention(cc),
		ParameterCount: paramCount,
		ArgumentList:   TypeIndex(argList),
	}, nil
}

// MFunctionRecord represents an LF_MFUNCTION type (member function).
type MFunctionRecord struct {
	ReturnType     TypeIndex
	ClassType      TypeIndex
	ThisType       TypeIndex
	CallingConv    CallingConvention
	ParameterCount uint16
	ArgumentList   TypeIndex
	ThisAdjust     int32
}

// ParseMFunctionRecord parses an LF_MFUNCTION record.
func ParseMFunctionRecord(data []byte) (*MFunctionRecord, error) {
	r := stream.NewReader(data)

	retType, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	classType, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	thisType, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	cc, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	if err := r.Skip(1); err != nil { // reserved
		return nil, err
	}
	paramCount, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	argList, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	thisAdjust, err := r.ReadI32()
	if err != nil {
		return nil, err
	}

	return &MFunctionRecord{
		ReturnType:     TypeIndex(retType),
		ClassType:      TypeIndex(classType),
		ThisType:       TypeIndex(thisType),
		CallingConv:    CallingConvention(cc),
		ParameterCount: paramCount,
		ArgumentList:   TypeIndex(argList),
		ThisAdjust:     thisAdjust,
	}, nil
}

// ArgListRecord represents an LF_ARGLIST type.
type ArgListRecord struct {
	ArgTypes []TypeIndex
}

// ParseArgListRecord parses an LF_ARGLIST record.
func ParseArgListRecord(data []byte) (*ArgListRecord, error) {
	r := stream.NewReader(data)

	count, err := r.ReadU16()
	if err != nil {
		return nil, err
	}

	args := make([]TypeIndex, 0, count)
	for range count {
		arg, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		args = append(args, TypeIndex(arg))
	}

	return &ArgListRecord{ArgTypes: args}, nil
}

// BitFieldRecord represents an LF_BITFIELD type.
type BitFieldRecord struct {
	Length   uint8
	Position uint8
	Type     TypeIndex
}

// ParseBitFieldRecord parses an LF_BITFIELD record.
func ParseBitFieldRecord(data []byte) (*BitFieldRecord, error) {
	r := stream.NewReader(data)

	length, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	position, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	typ, err := r.ReadU16()
	if err != nil {
		return nil, err
	}

	return &BitFieldRecord{
		Length:   length,
		Position: position,
		Type:     TypeIndex(typ),
	}, nil
}

// readOptionalName reads a trailing length-prefixed name, tolerating its
// absence at the very end of a record.
func readOptionalName(r *stream.Reader) (string, error) {
	if r.Remaining() == 0 {
		return "", nil
	}
	return r.ReadPString()
}
