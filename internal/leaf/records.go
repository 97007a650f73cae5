// Package leaf provides parsing for VC50 type records ("leaves") found in the
// global types subsection of an embedded CodeView stream.
package leaf

// TypeIndex is a reference to a type in the global types subsection.
// VC50 type indices are 16 bits wide.
type TypeIndex uint16

// FirstUserTypeIndex is the first valid user-defined type index.
// Indices below this are primitive types whose meaning is bit-packed
// into the index itself.
const FirstUserTypeIndex TypeIndex = 0x1000

// IsPrimitive returns true if this is a reserved primitive type index.
func (ti TypeIndex) IsPrimitive() bool {
	return ti < FirstUserTypeIndex
}

// Primitive type index bit layout.
const (
	PrimitiveSizeMask TypeIndex = 0x0007
	PrimitiveTypeMask TypeIndex = 0x00F0
	PrimitiveModeMask TypeIndex = 0x0700
)

// PrimitiveMode extracts the indirection mode (bits 8-10).
func (ti TypeIndex) PrimitiveMode() PrimitiveMode {
	return PrimitiveMode((ti & PrimitiveModeMask) >> 8)
}

// PrimitiveTier extracts the basic type (bits 4-7).
func (ti TypeIndex) PrimitiveTier() PrimitiveTier {
	return PrimitiveTier(ti & PrimitiveTypeMask)
}

// PrimitiveSize extracts the size selector (bits 0-2).
func (ti TypeIndex) PrimitiveSize() uint8 {
	return uint8(ti & PrimitiveSizeMask)
}

// Direct returns the index with its mode bits cleared.
func (ti TypeIndex) Direct() TypeIndex {
	return ti &^ PrimitiveModeMask
}

// PrimitiveMode identifies how a primitive index refers to its value.
type PrimitiveMode uint8

const (
	PrimitiveModeDirect      PrimitiveMode = 0x0
	PrimitiveModeNearPointer PrimitiveMode = 0x1
	PrimitiveModeFarPointer  PrimitiveMode = 0x2
	PrimitiveModeHugePointer PrimitiveMode = 0x3
	PrimitiveModeNear32      PrimitiveMode = 0x4
	PrimitiveModeFar32       PrimitiveMode = 0x5
	PrimitiveModeNear64      PrimitiveMode = 0x6
)

// PrimitiveTier identifies the basic type of a primitive index.
type PrimitiveTier uint8

const (
	PrimitiveSpecial   PrimitiveTier = 0x00
	PrimitiveSigned    PrimitiveTier = 0x10
	PrimitiveUnsigned  PrimitiveTier = 0x20
	PrimitiveBoolean   PrimitiveTier = 0x30
	PrimitiveReal      PrimitiveTier = 0x40
	PrimitiveComplex   PrimitiveTier = 0x50
	PrimitiveSpecial2  PrimitiveTier = 0x60
	PrimitiveReallyInt PrimitiveTier = 0x70
)

// Size selectors, interpreted per tier.
const (
	SizeSpecialNoType uint8 = 0
	SizeSpecialAbs    uint8 = 1
	SizeSpecialSeg    uint8 = 2
	SizeSpecialVoid   uint8 = 3

	SizeInt1 uint8 = 0
	SizeInt2 uint8 = 1
	SizeInt4 uint8 = 2
	SizeInt8 uint8 = 3

	SizeReal32  uint8 = 0
	SizeReal64  uint8 = 1
	SizeReal80  uint8 = 2
	SizeReal128 uint8 = 3
	SizeReal48  uint8 = 4

	SizeReallyChar  uint8 = 0
	SizeReallyWChar uint8 = 1
	SizeReallyInt2  uint8 = 2
	SizeReallyUInt2 uint8 = 3
	SizeReallyInt4  uint8 = 4
	SizeReallyUInt4 uint8 = 5
	SizeReallyInt8  uint8 = 6
	SizeReallyUInt8 uint8 = 7
)

// Kind identifies the type of a type record.
type Kind uint16

// Type record kinds (LF_*), VC50 numbering.
const (
	// Leaves referenced from symbols
	LF_MODIFIER   Kind = 0x0001
	LF_POINTER    Kind = 0x0002
	LF_ARRAY      Kind = 0x0003
	LF_CLASS      Kind = 0x0004
	LF_STRUCTURE  Kind = 0x0005
	LF_UNION      Kind = 0x0006
	LF_ENUM       Kind = 0x0007
	LF_PROCEDURE  Kind = 0x0008
	LF_MFUNCTION  Kind = 0x0009
	LF_VTSHAPE    Kind = 0x000a
	LF_COBOL0     Kind = 0x000b
	LF_COBOL1     Kind = 0x000c
	LF_BARRAY     Kind = 0x000d
	LF_LABEL      Kind = 0x000e
	LF_NULL       Kind = 0x000f
	LF_NOTTRAN    Kind = 0x0010
	LF_DIMARRAY   Kind = 0x0011
	LF_VFTPATH    Kind = 0x0012
	LF_PRECOMP    Kind = 0x0013
	LF_ENDPRECOMP Kind = 0x0014
	LF_OEM        Kind = 0x0015
	LF_TYPESERVER Kind = 0x0016

	// Leaves referenced from other type records
	LF_SKIP       Kind = 0x0200
	LF_ARGLIST    Kind = 0x0201
	LF_DEFARG     Kind = 0x0202
	LF_LIST       Kind = 0x0203
	LF_FIELDLIST  Kind = 0x0204
	LF_DERIVED    Kind = 0x0205
	LF_BITFIELD   Kind = 0x0206
	LF_METHODLIST Kind = 0x0207
	LF_DIMCONU    Kind = 0x0208
	LF_DIMCONLU   Kind = 0x0209
	LF_DIMVARU    Kind = 0x020a
	LF_DIMVARLU   Kind = 0x020b
	LF_REFSYM     Kind = 0x020c

	// Field list sub-leaves
	LF_BCLASS    Kind = 0x0400
	LF_VBCLASS   Kind = 0x0401
	LF_IVBCLASS  Kind = 0x0402
	LF_ENUMERATE Kind = 0x0403
	LF_FRIENDFCN Kind = 0x0404
	LF_INDEX     Kind = 0x0405
	LF_MEMBER    Kind = 0x0406
	LF_STMEMBER  Kind = 0x0407
	LF_METHOD    Kind = 0x0408
	LF_NESTTYPE  Kind = 0x0409
	LF_VFUNCTAB  Kind = 0x040a
	LF_FRIENDCLS Kind = 0x040b
	LF_ONEMETHOD Kind = 0x040c
	LF_VFUNCOFF  Kind = 0x040d

	// Padding (0xF0-0xFF)
	LF_PAD0  Kind = 0x00F0
	LF_PAD15 Kind = 0x00FF
)

// IsPadding returns true if this is a padding record.
func (k Kind) IsPadding() bool {
	return k >= LF_PAD0 && k <= LF_PAD15
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	if k.IsPadding() {
		return "LF_PAD"
	}
	return "LF_UNKNOWN"
}

var kindNames = map[Kind]string{
	LF_MODIFIER: "LF_MODIFIER", LF_POINTER: "LF_POINTER", LF_ARRAY: "LF_ARRAY",
	LF_CLASS: "LF_CLASS", LF_STRUCTURE: "LF_STRUCTURE", LF_UNION: "LF_UNION",
	LF_ENUM: "LF_ENUM", LF_PROCEDURE: "LF_PROCEDURE", LF_MFUNCTION: "LF_MFUNCTION",
	LF_VTSHAPE: "LF_VTSHAPE", LF_COBOL0: "LF_COBOL0", LF_COBOL1: "LF_COBOL1",
	LF_BARRAY: "LF_BARRAY", LF_LABEL: "LF_LABEL", LF_NULL: "LF_NULL",
	LF_NOTTRAN: "LF_NOTTRAN", LF_DIMARRAY: "LF_DIMARRAY", LF_VFTPATH: "LF_VFTPATH",
	LF_PRECOMP: "LF_PRECOMP", LF_ENDPRECOMP: "LF_ENDPRECOMP", LF_OEM: "LF_OEM",
	LF_TYPESERVER: "LF_TYPESERVER", LF_SKIP: "LF_SKIP", LF_ARGLIST: "LF_ARGLIST",
	LF_DEFARG: "LF_DEFARG", LF_LIST: "LF_LIST", LF_FIELDLIST: "LF_FIELDLIST",
	LF_DERIVED: "LF_DERIVED", LF_BITFIELD: "LF_BITFIELD", LF_METHODLIST: "LF_METHODLIST",
	LF_DIMCONU: "LF_DIMCONU", LF_DIMCONLU: "LF_DIMCONLU", LF_DIMVARU: "LF_DIMVARU",
	LF_DIMVARLU: "LF_DIMVARLU", LF_REFSYM: "LF_REFSYM", LF_BCLASS: "LF_BCLASS",
	LF_VBCLASS: "LF_VBCLASS", LF_IVBCLASS: "LF_IVBCLASS", LF_ENUMERATE: "LF_ENUMERATE",
	LF_FRIENDFCN: "LF_FRIENDFCN", LF_INDEX: "LF_INDEX", LF_MEMBER: "LF_MEMBER",
	LF_STMEMBER: "LF_STMEMBER", LF_METHOD: "LF_METHOD", LF_NESTTYPE: "LF_NESTTYPE",
	LF_VFUNCTAB: "LF_VFUNCTAB", LF_FRIENDCLS: "LF_FRIENDCLS", LF_ONEMETHOD: "LF_ONEMETHOD",
	LF_VFUNCOFF: "LF_VFUNCOFF",
}

// PointerAttributes is a bitfield for pointer properties.
type PointerAttributes uint16

func (pa PointerAttributes) PtrType() uint8   { return uint8(pa & 0x1F) }
func (pa PointerAttributes) PtrMode() uint8   { return uint8((pa >> 5) & 0x07) }
func (pa PointerAttributes) IsFlat32() bool   { return (pa & 0x100) != 0 }
func (pa PointerAttributes) IsVolatile() bool { return (pa & 0x200) != 0 }
func (pa PointerAttributes) IsConst() bool    { return (pa & 0x400) != 0 }
func (pa PointerAttributes) IsUnaligned() bool {
	return (pa & 0x800) != 0
}

// ClassProperties is a bitfield for class/struct/union/enum properties.
type ClassProperties uint16

func (cp ClassProperties) IsPacked() bool         { return (cp & 0x0001) != 0 }
func (cp ClassProperties) HasCtor() bool          { return (cp & 0x0002) != 0 }
func (cp ClassProperties) HasOverloadedOps() bool { return (cp & 0x0004) != 0 }
func (cp ClassProperties) IsNested() bool         { return (cp & 0x0008) != 0 }
func (cp ClassProperties) ContainsNested() bool   { return (cp & 0x0010) != 0 }
func (cp ClassProperties) HasOverloadedAssign() bool {
	return (cp & 0x0020) != 0
}
func (cp ClassProperties) HasCastOperator() bool { return (cp & 0x0040) != 0 }
func (cp ClassProperties) IsForwardRef() bool    { return (cp & 0x0080) != 0 }
func (cp ClassProperties) IsScoped() bool        { return (cp & 0x0100) != 0 }

// MemberAttributes is the field attribute bitfield shared by members,
// base classes, enumerates and methods.
type MemberAttributes uint16

func (ma MemberAttributes) Access() MemberAccess { return MemberAccess(ma & 0x03) }
func (ma MemberAttributes) MethodProperty() uint8 {
	return uint8((ma >> 2) & 0x07)
}
func (ma MemberAttributes) IsPseudo() bool      { return (ma & 0x20) != 0 }
func (ma MemberAttributes) IsNoInherit() bool   { return (ma & 0x40) != 0 }
func (ma MemberAttributes) IsNoConstruct() bool { return (ma & 0x80) != 0 }

// IsIntroducing reports whether a method introduces a new virtual slot,
// in which case LF_ONEMETHOD carries an extra vtable offset.
func (ma MemberAttributes) IsIntroducing() bool {
	mp := ma.MethodProperty()
	return mp == MethodKindIntroVirtual || mp == MethodKindPureIntro
}

// Method property values.
const (
	MethodKindVanilla      uint8 = 0x00
	MethodKindVirtual      uint8 = 0x01
	MethodKindStatic       uint8 = 0x02
	MethodKindFriend       uint8 = 0x03
	MethodKindIntroVirtual uint8 = 0x04
	MethodKindPureVirtual  uint8 = 0x05
	MethodKindPureIntro    uint8 = 0x06
)

// MemberAccess identifies member accessibility.
type MemberAccess uint8

const (
	MemberAccessNone      MemberAccess = 0
	MemberAccessPrivate   MemberAccess = 1
	MemberAccessProtected MemberAccess = 2
	MemberAccessPublic    MemberAccess = 3
)

// ModifierOptions is a bitfield for type modifier options.
type ModifierOptions uint16

func (mo ModifierOptions) IsConst() bool     { return (mo & 0x01) != 0 }
func (mo ModifierOptions) IsVolatile() bool  { return (mo & 0x02) != 0 }
func (mo ModifierOptions) IsUnaligned() bool { return (mo & 0x04) != 0 }

// CallingConvention represents function calling conventions.
type CallingConvention uint8

const (
	CallingConvNearC      CallingConvention = 0x00
	CallingConvFarC       CallingConvention = 0x01
	CallingConvNearPascal CallingConvention = 0x02
	CallingConvFarPascal  CallingConvention = 0x03
	CallingConvNearFast   CallingConvention = 0x04
	CallingConvFarFast    CallingConvention = 0x05
	CallingConvNearStd    CallingConvention = 0x07
	CallingConvFarStd     CallingConvention = 0x08
	CallingConvNearSys    CallingConvention = 0x09
	CallingConvFarSys     CallingConvention = 0x0a
	CallingConvThisCall   CallingConvention = 0x0b
	CallingConvMipsCall   CallingConvention = 0x0c
	CallingConvGeneric    CallingConvention = 0x0d
)

func (cc CallingConvention) String() string {
	switch cc {
	case CallingConvNearC, CallingConvFarC:
		return "__cdecl"
	case CallingConvNearPascal, CallingConvFarPascal:
		return "__pascal"
	case CallingConvNearFast, CallingConvFarFast:
		return "__fastcall"
	case CallingConvNearStd, CallingConvFarStd:
		return "__stdcall"
	case CallingConvNearSys, CallingConvFarSys:
		return "__syscall"
	case CallingConvThisCall:
		return "__thiscall"
	default:
		return ""
	}
}
