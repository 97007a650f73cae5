package cdebug

import (
	"github.com/skdltmxn/cv50-go/internal/leaf"
)

// TypeKind identifies the category of a type.
type TypeKind uint16

const (
	TypeKindUnknown TypeKind = iota
	TypeKindInt
	TypeKindFloat
	TypeKindVoid
	TypeKindPointer
	TypeKindArray
	TypeKindClass
	TypeKindStruct
	TypeKindUnion
	TypeKindEnum
	TypeKindFunction
	TypeKindMemberFunction
	TypeKindBitfield
	TypeKindLazy
)

func (k TypeKind) String() string {
	switch k {
	case TypeKindInt:
		return "int"
	case TypeKindFloat:
		return "float"
	case TypeKindVoid:
		return "void"
	case TypeKindPointer:
		return "pointer"
	case TypeKindArray:
		return "array"
	case TypeKindClass:
		return "class"
	case TypeKindStruct:
		return "struct"
	case TypeKindUnion:
		return "union"
	case TypeKindEnum:
		return "enum"
	case TypeKindFunction:
		return "function"
	case TypeKindMemberFunction:
		return "member_function"
	case TypeKindBitfield:
		return "bitfield"
	case TypeKindLazy:
		return "lazy"
	default:
		return "unknown"
	}
}

// TypeIndex is a reference to a type in the global types subsection.
type TypeIndex uint16

// IsPrimitive returns true if the index encodes a primitive type.
func (ti TypeIndex) IsPrimitive() bool {
	return leaf.TypeIndex(ti).IsPrimitive()
}

// Type is a node of the type model.
type Type interface {
	// Kind returns the type kind.
	Kind() TypeKind

	// Name returns the type name (if any).
	Name() string

	// Size returns the size in bytes (0 if unknown).
	Size() uint64

	// IsConst and IsVolatile report the qualifiers of this variant.
	IsConst() bool
	IsVolatile() bool

	withCV(isConst, isVolatile bool) Type
	resolve(db *Database, l ResolveListener)
}

// cv holds the qualifiers shared by every type variant.
type cv struct {
	isConst    bool
	isVolatile bool
}

func (q cv) IsConst() bool    { return q.isConst }
func (q cv) IsVolatile() bool { return q.isVolatile }

func (q cv) or(isConst, isVolatile bool) cv {
	return cv{isConst: q.isConst || isConst, isVolatile: q.isVolatile || isVolatile}
}

// resolveGuard makes resolution of a node idempotent and cycle safe.
// Qualified variants share their origin's references and resolve through
// it, so each reference is linked and reported once.
type resolveGuard struct {
	resolved bool
}

func (g *resolveGuard) enter() bool {
	if g.resolved {
		return false
	}
	g.resolved = true
	return true
}

// IntType is an integer or boolean primitive.
type IntType struct {
	cv
	name     string
	size     uint64
	unsigned bool
}

func (t *IntType) Kind() TypeKind   { return TypeKindInt }
func (t *IntType) Name() string     { return t.name }
func (t *IntType) Size() uint64     { return t.size }
func (t *IntType) IsUnsigned() bool { return t.unsigned }

func (t *IntType) withCV(c, v bool) Type {
	n := *t
	n.cv = t.cv.or(c, v)
	return &n
}

func (t *IntType) resolve(*Database, ResolveListener) {}

// FloatType is a floating-point primitive.
type FloatType struct {
	cv
	name string
	size uint64
}

func (t *FloatType) Kind() TypeKind { return TypeKindFloat }
func (t *FloatType) Name() string   { return t.name }
func (t *FloatType) Size() uint64   { return t.size }

func (t *FloatType) withCV(c, v bool) Type {
	n := *t
	n.cv = t.cv.or(c, v)
	return &n
}

func (t *FloatType) resolve(*Database, ResolveListener) {}

// VoidType is the void primitive.
type VoidType struct {
	cv
}

func (t *VoidType) Kind() TypeKind { return TypeKindVoid }
func (t *VoidType) Name() string   { return "void" }
func (t *VoidType) Size() uint64   { return 0 }

func (t *VoidType) withCV(c, v bool) Type {
	n := *t
	n.cv = t.cv.or(c, v)
	return &n
}

func (t *VoidType) resolve(*Database, ResolveListener) {}

// PointerType is a flat pointer to a target type.
type PointerType struct {
	cv
	resolveGuard
	origin *PointerType
	target Type
	size   uint64
}

func (t *PointerType) Kind() TypeKind { return TypeKindPointer }
func (t *PointerType) Name() string   { return "" }
func (t *PointerType) Size() uint64   { return t.size }
func (t *PointerType) Target() Type   { return t.root().target }

func (t *PointerType) root() *PointerType {
	if t.origin != nil {
		return t.origin
	}
	return t
}

func (t *PointerType) withCV(c, v bool) Type {
	n := *t
	n.cv = t.cv.or(c, v)
	n.origin = t.root()
	return &n
}

func (t *PointerType) resolve(db *Database, l ResolveListener) {
	if t.origin != nil {
		t.origin.resolve(db, l)
		return
	}
	if t.enter() {
		t.target = db.resolveRef(t.target, t, l)
	}
}

// ArrayType is a fixed-size array.
type ArrayType struct {
	cv
	resolveGuard
	origin    *ArrayType
	name      string
	element   Type
	indexType Type
	size      uint64
}

func (t *ArrayType) Kind() TypeKind    { return TypeKindArray }
func (t *ArrayType) Name() string      { return t.name }
func (t *ArrayType) Size() uint64      { return t.size }
func (t *ArrayType) ElementType() Type { return t.root().element }
func (t *ArrayType) IndexType() Type   { return t.root().indexType }

// Length returns the number of elements, or 0 when the element size is
// not known.
func (t *ArrayType) Length() uint64 {
	elem := t.ElementType()
	if elem == nil || elem.Size() == 0 {
		return 0
	}
	return t.size / elem.Size()
}

func (t *ArrayType) root() *ArrayType {
	if t.origin != nil {
		return t.origin
	}
	return t
}

func (t *ArrayType) withCV(c, v bool) Type {
	n := *t
	n.cv = t.cv.or(c, v)
	n.origin = t.root()
	return &n
}

func (t *ArrayType) resolve(db *Database, l ResolveListener) {
	if t.origin != nil {
		t.origin.resolve(db, l)
		return
	}
	if t.enter() {
		t.element = db.resolveRef(t.element, t, l)
		if t.indexType != nil {
			t.indexType = db.resolveRef(t.indexType, t, l)
		}
	}
}

// Access is the access control of a member or base class.
type Access uint8

const (
	AccessNone Access = iota
	AccessPrivate
	AccessProtected
	AccessPublic
)

func (a Access) String() string {
	switch a {
	case AccessPrivate:
		return "private"
	case AccessProtected:
		return "protected"
	case AccessPublic:
		return "public"
	default:
		return ""
	}
}

// BaseClass is a direct or virtual base of a class or struct.
type BaseClass struct {
	Type    Type
	Access  Access
	Virtual bool
}

// Field is a data member of a compound type.
type Field struct {
	Name   string
	Type   Type
	Access Access
	Offset int64 // Byte offset; not meaningful for static members
	Static bool

	address    uint64
	hasAddress bool
}

// Address returns the storage address of a static member, once the symbol
// table has been linked.
func (f *Field) Address() (uint64, bool) {
	return f.address, f.hasAddress
}

// CompoundType is a class, struct or union.
type CompoundType struct {
	cv
	resolveGuard
	origin     *CompoundType
	kind       TypeKind
	name       string
	size       uint64
	forwardRef bool
	bases      []*BaseClass
	fields     []*Field
}

func (t *CompoundType) Kind() TypeKind            { return t.kind }
func (t *CompoundType) Name() string              { return t.name }
func (t *CompoundType) Size() uint64              { return t.size }
func (t *CompoundType) IsForwardRef() bool        { return t.forwardRef }
func (t *CompoundType) BaseClasses() []*BaseClass { return t.bases }
func (t *CompoundType) Fields() []*Field          { return t.fields }

// Field returns the field with the given name.
func (t *CompoundType) Field(name string) (*Field, bool) {
	for _, f := range t.fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

func (t *CompoundType) withCV(c, v bool) Type {
	n := *t
	n.cv = t.cv.or(c, v)
	if t.origin != nil {
		n.origin = t.origin
	} else {
		n.origin = t
	}
	return &n
}

func (t *CompoundType) resolve(db *Database, l ResolveListener) {
	if t.origin != nil {
		t.origin.resolve(db, l)
		return
	}
	if !t.enter() {
		return
	}
	for _, b := range t.bases {
		b.Type = db.resolveRef(b.Type, t, l)
	}
	for _, f := range t.fields {
		f.Type = db.resolveRef(f.Type, t, l)
		if f.Static && !f.hasAddress {
			db.resolveStaticField(t, f, l)
		}
	}
}

// Enumerator is a named constant of an enum.
type Enumerator struct {
	Name  string
	Value int64
}

// EnumType is an enumeration.
type EnumType struct {
	cv
	resolveGuard
	origin      *EnumType
	name        string
	underlying  Type
	enumerators []Enumerator
}

func (t *EnumType) Kind() TypeKind            { return TypeKindEnum }
func (t *EnumType) Name() string              { return t.name }
func (t *EnumType) UnderlyingType() Type      { return t.root().underlying }
func (t *EnumType) Enumerators() []Enumerator { return t.enumerators }

// Size returns the size of the underlying type.
func (t *EnumType) Size() uint64 {
	u := t.UnderlyingType()
	if u == nil {
		return 0
	}
	return u.Size()
}

// IsAnonymous reports whether this is the shared anonymous enum.
func (t *EnumType) IsAnonymous() bool { return t.name == "" }

func (t *EnumType) root() *EnumType {
	if t.origin != nil {
		return t.origin
	}
	return t
}

func (t *EnumType) withCV(c, v bool) Type {
	n := *t
	n.cv = t.cv.or(c, v)
	n.origin = t.root()
	return &n
}

func (t *EnumType) resolve(db *Database, l ResolveListener) {
	if t.origin != nil {
		t.origin.resolve(db, l)
		return
	}
	if t.enter() && t.underlying != nil {
		t.underlying = db.resolveRef(t.underlying, t, l)
	}
}

// FunctionType is a free function signature.
type FunctionType struct {
	cv
	resolveGuard
	origin      *FunctionType
	returnType  Type
	args        []Type
	callingConv string
}

func (t *FunctionType) Kind() TypeKind            { return TypeKindFunction }
func (t *FunctionType) Name() string              { return "" }
func (t *FunctionType) Size() uint64              { return 0 }
func (t *FunctionType) ReturnType() Type          { return t.root().returnType }
func (t *FunctionType) Arguments() []Type         { return t.root().args }
func (t *FunctionType) CallingConvention() string { return t.callingConv }

func (t *FunctionType) root() *FunctionType {
	if t.origin != nil {
		return t.origin
	}
	return t
}

func (t *FunctionType) withCV(c, v bool) Type {
	n := *t
	n.cv = t.cv.or(c, v)
	n.origin = t.root()
	return &n
}

func (t *FunctionType) resolve(db *Database, l ResolveListener) {
	if t.origin != nil {
		t.origin.resolve(db, l)
		return
	}
	if t.enter() {
		t.resolveSignature(db, t, l)
	}
}

func (t *FunctionType) resolveSignature(db *Database, owner Type, l ResolveListener) {
	t.returnType = db.resolveRef(t.returnType, owner, l)
	for i, a := range t.args {
		t.args[i] = db.resolveRef(a, owner, l)
	}
}

// MemberFunctionType is a member function signature.
type MemberFunctionType struct {
	FunctionType
	mfOrigin   *MemberFunctionType
	class      Type
	this       Type
	thisAdjust int32
}

func (t *MemberFunctionType) Kind() TypeKind    { return TypeKindMemberFunction }
func (t *MemberFunctionType) ClassType() Type   { return t.root().class }
func (t *MemberFunctionType) ThisType() Type    { return t.root().this }
func (t *MemberFunctionType) ThisAdjust() int32 { return t.thisAdjust }

func (t *MemberFunctionType) root() *MemberFunctionType {
	if t.mfOrigin != nil {
		return t.mfOrigin
	}
	return t
}

func (t *MemberFunctionType) withCV(c, v bool) Type {
	n := *t
	n.cv = t.cv.or(c, v)
	n.mfOrigin = t.root()
	n.FunctionType.origin = &n.mfOrigin.FunctionType
	return &n
}

func (t *MemberFunctionType) resolve(db *Database, l ResolveListener) {
	if t.mfOrigin != nil {
		t.mfOrigin.resolve(db, l)
		return
	}
	if !t.enter() {
		return
	}
	t.resolveSignature(db, t, l)
	t.class = db.resolveRef(t.class, t, l)
	t.this = db.resolveRef(t.this, t, l)
}

// BitfieldType is a bit range of an underlying integer type.
type BitfieldType struct {
	cv
	resolveGuard
	origin     *BitfieldType
	underlying Type
	length     uint8
	position   uint8
}

func (t *BitfieldType) Kind() TypeKind       { return TypeKindBitfield }
func (t *BitfieldType) Name() string         { return "" }
func (t *BitfieldType) UnderlyingType() Type { return t.root().underlying }
func (t *BitfieldType) Length() uint8        { return t.length }
func (t *BitfieldType) Position() uint8      { return t.position }

func (t *BitfieldType) Size() uint64 {
	u := t.UnderlyingType()
	if u == nil {
		return 0
	}
	return u.Size()
}

func (t *BitfieldType) root() *BitfieldType {
	if t.origin != nil {
		return t.origin
	}
	return t
}

func (t *BitfieldType) withCV(c, v bool) Type {
	n := *t
	n.cv = t.cv.or(c, v)
	n.origin = t.root()
	return &n
}

func (t *BitfieldType) resolve(db *Database, l ResolveListener) {
	if t.origin != nil {
		t.origin.resolve(db, l)
		return
	}
	if t.enter() {
		t.underlying = db.resolveRef(t.underlying, t, l)
	}
}

// LazyType stands in for a type index whose record had not been decoded
// when it was referenced. Resolve replaces it with the concrete type; it
// only survives resolution when the index has no type.
type LazyType struct {
	cv
	index TypeIndex
}

func (t *LazyType) Kind() TypeKind   { return TypeKindLazy }
func (t *LazyType) Name() string     { return "" }
func (t *LazyType) Size() uint64     { return 0 }
func (t *LazyType) Index() TypeIndex { return t.index }

func (t *LazyType) withCV(c, v bool) Type {
	n := *t
	n.cv = t.cv.or(c, v)
	return &n
}

func (t *LazyType) resolve(*Database, ResolveListener) {}
