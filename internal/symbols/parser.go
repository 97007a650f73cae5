package symbols

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/cv50-go/internal/leaf"
	"github.com/skdltmxn/cv50-go/internal/stream"
)

// Errors
var (
	ErrInvalidSymbolRecord = errors.New("symbols: invalid symbol record")
	ErrUnexpectedEnd       = errors.New("symbols: unexpected end of data")
)

// TableHeader is the header of sstGlobalSym, sstGlobalPub and sstStaticSym.
type TableHeader struct {
	SymHash       uint16
	AddrHash      uint16
	SymbolBytes   uint32
	SymHashBytes  uint32
	AddrHashBytes uint32
}

// TableHeaderSize is the size of TableHeader on disk.
const TableHeaderSize = 16

// ParseTableHeader parses the header of a hashed symbol table.
func ParseTableHeader(data []byte) (*TableHeader, error) {
	if len(data) < TableHeaderSize {
		return nil, fmt.Errorf("%w: symbol table header", ErrUnexpectedEnd)
	}
	r := stream.NewReader(data)
	h := &TableHeader{}
	h.SymHash, _ = r.ReadU16()
	h.AddrHash, _ = r.ReadU16()
	h.SymbolBytes, _ = r.ReadU32()
	h.SymHashBytes, _ = r.ReadU32()
	h.AddrHashBytes, _ = r.ReadU32()
	return h, nil
}

// NewTableIterator returns an iterator over the symbols of a hashed symbol
// table subsection. Record offsets are relative to the subsection start.
func NewTableIterator(data []byte) (*Iterator, error) {
	h, err := ParseTableHeader(data)
	if err != nil {
		return nil, err
	}
	end := TableHeaderSize + int(h.SymbolBytes)
	if end > len(data) {
		return nil, fmt.Errorf("%w: %d symbol bytes in %d byte table", ErrUnexpectedEnd, h.SymbolBytes, len(data))
	}
	return &Iterator{data: data[:end], offset: TableHeaderSize}, nil
}

// NewAlignIterator returns an iterator over an sstAlignSym subsection,
// skipping its leading signature. Record offsets are relative to the
// subsection start, matching the pParent/pEnd fields of its records.
func NewAlignIterator(data []byte) (*Iterator, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: aligned symbol signature", ErrUnexpectedEnd)
	}
	return &Iterator{data: data, offset: 4}, nil
}

// Iterator iterates over symbol records in a stream.
type Iterator struct {
	data   []byte
	offset int
	err    error
}

// NewIterator creates an iterator over bare symbol records.
func NewIterator(data []byte) *Iterator {
	return &Iterator{data: data}
}

// Next returns the next symbol record, or nil if there are no more or the
// next record is malformed. Err reports the latter.
func (it *Iterator) Next() *Record {
	if it.err != nil || it.offset >= len(it.data) {
		return nil
	}

	rec, size, err := ParseRecord(it.data[it.offset:])
	if err != nil {
		it.err = fmt.Errorf("symbol at offset %#x: %w", it.offset, err)
		return nil
	}
	rec.Offset = it.offset

	it.offset += size
	return rec
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// ParseRecord parses a single symbol record from raw data.
// Returns the record and the number of bytes consumed.
func ParseRecord(data []byte) (*Record, int, error) {
	if len(data) < 4 {
		return nil, 0, ErrUnexpectedEnd
	}

	r := stream.NewReader(data)

	// Record length does not include the length field itself
	length, _ := r.ReadU16()
	kind, _ := r.ReadU16()

	totalSize := int(length) + 2
	if totalSize > len(data) {
		return nil, 0, ErrUnexpectedEnd
	}

	dataLen := int(length) - 2
	if dataLen < 0 {
		return nil, 0, ErrInvalidSymbolRecord
	}

	return &Record{
		Kind: Kind(kind),
		Data: data[4 : 4+dataLen],
	}, totalSize, nil
}

// ParseProcSym parses a procedure symbol (S_GPROC32, S_LPROC32).
func ParseProcSym(data []byte) (*ProcSym, error) {
	r := stream.NewReader(data)
	p := &ProcSym{}
	var err error

	if p.PtrParent, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if p.PtrEnd, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if p.PtrNext, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if p.CodeSize, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if p.DbgStart, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if p.DbgEnd, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if p.CodeOffset, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if p.Segment, err = r.ReadU16(); err != nil {
		return nil, err
	}
	funcType, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	p.FunctionType = leaf.TypeIndex(funcType)
	flags, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	p.Flags = ProcFlags(flags)
	if p.Name, err = r.ReadPString(); err != nil {
		return nil, err
	}

	return p, nil
}

// ParseDataSym parses a data symbol (S_GDATA32, S_LDATA32, S_PUB32,
// S_GTHREAD32, S_LTHREAD32).
func ParseDataSym(data []byte) (*DataSym, error) {
	r := stream.NewReader(data)

	offset, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	segment, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	typeIndex, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadPString()
	if err != nil {
		return nil, err
	}

	return &DataSym{
		Offset:  offset,
		Segment: segment,
		Type:    leaf.TypeIndex(typeIndex),
		Name:    name,
	}, nil
}

// ParseBlockSym parses a block symbol (S_BLOCK32).
func ParseBlockSym(data []byte) (*BlockSym, error) {
	r := stream.NewReader(data)
	b := &BlockSym{}
	var err error

	if b.PtrParent, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if b.PtrEnd, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if b.CodeSize, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if b.Offset, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if b.Segment, err = r.ReadU16(); err != nil {
		return nil, err
	}

	// Anonymous blocks may omit the name entirely
	if r.Remaining() > 0 {
		if b.Name, err = r.ReadPString(); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// ParseThunkSym parses a thunk symbol (S_THUNK32).
func ParseThunkSym(data []byte) (*ThunkSym, error) {
	r := stream.NewReader(data)
	t := &ThunkSym{}
	var err error

	if t.PtrParent, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if t.PtrEnd, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if t.PtrNext, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if t.Offset, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if t.Segment, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if t.Length, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if t.Ordinal, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if t.Name, err = r.ReadPString(); err != nil {
		return nil, err
	}

	return t, nil
}

// ParseBPRelSym parses a frame-relative local (S_BPREL32).
func ParseBPRelSym(data []byte) (*BPRelSym, error) {
	r := stream.NewReader(data)

	offset, err := r.ReadI32()
	if err != nil {
		return nil, err
	}
	typeIndex, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadPString()
	if err != nil {
		return nil, err
	}

	return &BPRelSym{
		Offset: offset,
		Type:   leaf.TypeIndex(typeIndex),
		Name:   name,
	}, nil
}

// ParseRegRelSym parses a register-relative local (S_REGREL32).
func ParseRegRelSym(data []byte) (*RegRelSym, error) {
	r := stream.NewReader(data)

	offset, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	typeIndex, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	register, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadPString()
	if err != nil {
		return nil, err
	}

	return &RegRelSym{
		Offset:   offset,
		Type:     leaf.TypeIndex(typeIndex),
		Register: register,
		Name:     name,
	}, nil
}

// ParseLabelSym parses a code label (S_LABEL32).
func ParseLabelSym(data []byte) (*LabelSym, error) {
	r := stream.NewReader(data)

	offset, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	segment, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	flags, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadPString()
	if err != nil {
		return nil, err
	}

	return &LabelSym{
		Offset:  offset,
		Segment: segment,
		Flags:   ProcFlags(flags),
		Name:    name,
	}, nil
}

// ParseUDTSym parses a user-defined type symbol (S_UDT).
func ParseUDTSym(data []byte) (*UDTSym, error) {
	r := stream.NewReader(data)

	typeIndex, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadPString()
	if err != nil {
		return nil, err
	}

	return &UDTSym{
		Type: leaf.TypeIndex(typeIndex),
		Name: name,
	}, nil
}

// ParseConstantSym parses a constant symbol (S_CONSTANT).
func ParseConstantSym(data []byte) (*ConstantSym, error) {
	r := stream.NewReader(data)

	typeIndex, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	value, err := r.ReadSignedNumeric()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadPString()
	if err != nil {
		return nil, err
	}

	return &ConstantSym{
		Type:  leaf.TypeIndex(typeIndex),
		Value: value,
		Name:  name,
	}, nil
}

// ParseRegisterSym parses a register variable (S_REGISTER).
func ParseRegisterSym(data []byte) (*RegisterSym, error) {
	r := stream.NewReader(data)

	typeIndex, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	register, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadPString()
	if err != nil {
		return nil, err
	}

	return &RegisterSym{
		Type:     leaf.TypeIndex(typeIndex),
		Register: register,
		Name:     name,
	}, nil
}

// ParseObjNameSym parses an object name symbol (S_OBJNAME).
func ParseObjNameSym(data []byte) (*ObjNameSym, error) {
	r := stream.NewReader(data)

	signature, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadPString()
	if err != nil {
		return nil, err
	}

	return &ObjNameSym{
		Signature: signature,
		Name:      name,
	}, nil
}

// ParseCompileSym parses a compiler information symbol (S_COMPILE).
func ParseCompileSym(data []byte) (*CompileSym, error) {
	r := stream.NewReader(data)
	c := &CompileSym{}

	machine, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	c.Machine = machine
	flags, err := r.ReadBytesRef(3)
	if err != nil {
		return nil, err
	}
	copy(c.Flags[:], flags)
	if c.Version, err = r.ReadPString(); err != nil {
		return nil, err
	}

	return c, nil
}

// ParseRefSym parses a reference symbol (S_PROCREF, S_DATAREF).
func ParseRefSym(data []byte) (*RefSym, error) {
	r := stream.NewReader(data)

	checksum, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	offset, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	module, err := r.ReadU16()
	if err != nil {
		return nil, err
	}

	return &RefSym{
		Checksum: checksum,
		Offset:   offset,
		Module:   module,
	}, nil
}

// ParseSymbol parses a symbol record and returns the appropriate typed symbol.
func ParseSymbol(rec *Record) (any, error) {
	switch rec.Kind {
	case S_GPROC32, S_LPROC32:
		return ParseProcSym(rec.Data)
	case S_GDATA32, S_LDATA32, S_PUB32, S_GTHREAD32, S_LTHREAD32:
		return ParseDataSym(rec.Data)
	case S_BLOCK32:
		return ParseBlockSym(rec.Data)
	case S_THUNK32:
		return ParseThunkSym(rec.Data)
	case S_BPREL32:
		return ParseBPRelSym(rec.Data)
	case S_REGREL32:
		return ParseRegRelSym(rec.Data)
	case S_LABEL32:
		return ParseLabelSym(rec.Data)
	case S_UDT:
		return ParseUDTSym(rec.Data)
	case S_CONSTANT:
		return ParseConstantSym(rec.Data)
	case S_REGISTER:
		return ParseRegisterSym(rec.Data)
	case S_OBJNAME:
		return ParseObjNameSym(rec.Data)
	case S_COMPILE:
		return ParseCompileSym(rec.Data)
	case S_PROCREF, S_DATAREF:
		return ParseRefSym(rec.Data)
	default:
		// Return the generic record for unsupported types
		return rec, nil
	}
}
