// Package symbols provides parsing for VC50 CodeView symbol records.
package symbols

import "github.com/skdltmxn/cv50-go/internal/leaf"

// Kind identifies the type of a symbol record.
type Kind uint16

// Symbol record kinds (S_*), VC50 numbering with 16-bit type indices.
const (
	S_COMPILE    Kind = 0x0001
	S_REGISTER   Kind = 0x0002
	S_CONSTANT   Kind = 0x0003
	S_UDT        Kind = 0x0004
	S_SSEARCH    Kind = 0x0005
	S_END        Kind = 0x0006
	S_SKIP       Kind = 0x0007
	S_CVRESERVE  Kind = 0x0008
	S_OBJNAME    Kind = 0x0009
	S_ENDARG     Kind = 0x000a
	S_COBOLUDT   Kind = 0x000b
	S_MANYREG    Kind = 0x000c
	S_RETURN     Kind = 0x000d
	S_ENTRYTHIS  Kind = 0x000e
	S_BPREL32    Kind = 0x0200
	S_LDATA32    Kind = 0x0201
	S_GDATA32    Kind = 0x0202
	S_PUB32      Kind = 0x0203
	S_LPROC32    Kind = 0x0204
	S_GPROC32    Kind = 0x0205
	S_THUNK32    Kind = 0x0206
	S_BLOCK32    Kind = 0x0207
	S_WITH32     Kind = 0x0208
	S_LABEL32    Kind = 0x0209
	S_CEXMODEL32 Kind = 0x020a
	S_VFTTABLE32 Kind = 0x020b
	S_REGREL32   Kind = 0x020c
	S_LTHREAD32  Kind = 0x020d
	S_GTHREAD32  Kind = 0x020e
	S_LPROCMIPS  Kind = 0x0300
	S_GPROCMIPS  Kind = 0x0301
	S_PROCREF    Kind = 0x0400
	S_DATAREF    Kind = 0x0401
	S_ALIGN      Kind = 0x0402

	// S_COMPILE2_ST, emitted by later linkers as a copyright marker
	S_COMPILE2_ST Kind = 0x1013
)

var kindNames = map[Kind]string{
	S_COMPILE: "S_COMPILE", S_REGISTER: "S_REGISTER", S_CONSTANT: "S_CONSTANT",
	S_UDT: "S_UDT", S_SSEARCH: "S_SSEARCH", S_END: "S_END", S_SKIP: "S_SKIP",
	S_CVRESERVE: "S_CVRESERVE", S_OBJNAME: "S_OBJNAME", S_ENDARG: "S_ENDARG",
	S_COBOLUDT: "S_COBOLUDT", S_MANYREG: "S_MANYREG", S_RETURN: "S_RETURN",
	S_ENTRYTHIS: "S_ENTRYTHIS", S_BPREL32: "S_BPREL32", S_LDATA32: "S_LDATA32",
	S_GDATA32: "S_GDATA32", S_PUB32: "S_PUB32", S_LPROC32: "S_LPROC32",
	S_GPROC32: "S_GPROC32", S_THUNK32: "S_THUNK32", S_BLOCK32: "S_BLOCK32",
	S_WITH32: "S_WITH32", S_LABEL32: "S_LABEL32", S_CEXMODEL32: "S_CEXMODEL32",
	S_VFTTABLE32: "S_VFTTABLE32", S_REGREL32: "S_REGREL32", S_LTHREAD32: "S_LTHREAD32",
	S_GTHREAD32: "S_GTHREAD32", S_LPROCMIPS: "S_LPROCMIPS", S_GPROCMIPS: "S_GPROCMIPS",
	S_PROCREF: "S_PROCREF", S_DATAREF: "S_DATAREF", S_ALIGN: "S_ALIGN",
	S_COMPILE2_ST: "S_COMPILE2_ST",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "S_UNKNOWN"
}

// Known reports whether k is a recognized VC50 symbol kind.
func (k Kind) Known() bool {
	_, ok := kindNames[k]
	return ok
}

// Record represents a raw symbol record.
type Record struct {
	// Offset of the record length field within the subsection
	Offset int

	Kind Kind
	Data []byte // Record data (excluding length and kind)
}

// ProcFlags describes procedure attributes.
type ProcFlags uint8

func (pf ProcFlags) HasFP() bool      { return (pf & 0x01) != 0 }
func (pf ProcFlags) HasIRET() bool    { return (pf & 0x02) != 0 }
func (pf ProcFlags) HasFRET() bool    { return (pf & 0x04) != 0 }
func (pf ProcFlags) IsNoReturn() bool { return (pf & 0x08) != 0 }

// ProcSym represents S_GPROC32 / S_LPROC32.
type ProcSym struct {
	PtrParent    uint32
	PtrEnd       uint32
	PtrNext      uint32
	CodeSize     uint32
	DbgStart     uint32
	DbgEnd       uint32
	CodeOffset   uint32
	Segment      uint16
	FunctionType leaf.TypeIndex
	Flags        ProcFlags
	Name         string
}

// DataSym represents S_GDATA32, S_LDATA32, S_PUB32 and the thread-local
// variants, which share one layout in VC50.
type DataSym struct {
	Offset  uint32
	Segment uint16
	Type    leaf.TypeIndex
	Name    string
}

// BlockSym represents S_BLOCK32.
type BlockSym struct {
	PtrParent uint32
	PtrEnd    uint32
	CodeSize  uint32
	Offset    uint32
	Segment   uint16
	Name      string
}

// ThunkSym represents S_THUNK32.
type ThunkSym struct {
	PtrParent uint32
	PtrEnd    uint32
	PtrNext   uint32
	Offset    uint32
	Segment   uint16
	Length    uint16
	Ordinal   uint8
	Name      string
}

// BPRelSym represents S_BPREL32 (frame-pointer-relative local).
type BPRelSym struct {
	Offset int32
	Type   leaf.TypeIndex
	Name   string
}

// RegRelSym represents S_REGREL32 (register-relative local).
type RegRelSym struct {
	Offset   uint32
	Type     leaf.TypeIndex
	Register uint16
	Name     string
}

// LabelSym represents S_LABEL32.
type LabelSym struct {
	Offset  uint32
	Segment uint16
	Flags   ProcFlags
	Name    string
}

// UDTSym represents S_UDT.
type UDTSym struct {
	Type leaf.TypeIndex
	Name string
}

// ConstantSym represents S_CONSTANT.
type ConstantSym struct {
	Type  leaf.TypeIndex
	Value int64
	Name  string
}

// RegisterSym represents S_REGISTER.
type RegisterSym struct {
	Type     leaf.TypeIndex
	Register uint16
	Name     string
}

// ObjNameSym represents S_OBJNAME.
type ObjNameSym struct {
	Signature uint32
	Name      string
}

// CompileSym represents S_COMPILE.
type CompileSym struct {
	Machine uint8
	Flags   [3]byte
	Version string
}

// RefSym represents S_PROCREF / S_DATAREF.
type RefSym struct {
	Checksum uint32
	Offset   uint32 // Offset of the referenced record in the module's sstAlignSym
	Module   uint16
}
