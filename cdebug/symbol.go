package cdebug

import "fmt"

// SymKind identifies the category of a symbol.
type SymKind uint8

const (
	SymKindGlobal SymKind = iota
	SymKindLocal
	SymKindBlock
	SymKindFunction
)

func (k SymKind) String() string {
	switch k {
	case SymKindGlobal:
		return "global"
	case SymKindLocal:
		return "local"
	case SymKindBlock:
		return "block"
	case SymKindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Sym is a named entity of the symbol model.
type Sym interface {
	Name() string
	Kind() SymKind
}

// GlobalSym is a module-global or module-local data object.
type GlobalSym struct {
	name        string
	typ         Type
	address     uint64
	moduleLocal bool
}

// NewGlobalSym returns a data symbol. Its type may be lazy until Resolve.
func NewGlobalSym(name string, typ Type, address uint64, moduleLocal bool) *GlobalSym {
	return &GlobalSym{name: name, typ: typ, address: address, moduleLocal: moduleLocal}
}

func (s *GlobalSym) Name() string        { return s.name }
func (s *GlobalSym) Kind() SymKind       { return SymKindGlobal }
func (s *GlobalSym) Type() Type          { return s.typ }
func (s *GlobalSym) Address() uint64     { return s.address }
func (s *GlobalSym) IsModuleLocal() bool { return s.moduleLocal }

// LocalSym is a frame-relative local variable or parameter.
type LocalSym struct {
	name        string
	typ         Type
	frameOffset int64
}

func NewLocalSym(name string, typ Type, frameOffset int64) *LocalSym {
	return &LocalSym{name: name, typ: typ, frameOffset: frameOffset}
}

func (s *LocalSym) Name() string       { return s.name }
func (s *LocalSym) Kind() SymKind      { return SymKindLocal }
func (s *LocalSym) Type() Type         { return s.typ }
func (s *LocalSym) FrameOffset() int64 { return s.frameOffset }

// BlockKey identifies a scope record by the symbol subsection holding it
// and its byte offset from the start of that subsection.
type BlockKey struct {
	Subsection int
	Offset     uint32
}

func (k BlockKey) String() string {
	return fmt.Sprintf("%d:%#x", k.Subsection, k.Offset)
}

// Block is a lexical scope covering a range of code addresses.
type Block interface {
	Sym

	// Address returns the start of the covered range.
	Address() uint64

	// Length returns the number of bytes covered.
	Length() uint64

	// Parent returns the enclosing scope, or nil for a top-level scope.
	Parent() Block

	// Children returns the directly nested scopes ordered by address.
	Children() []Block

	// Locals returns the locals declared directly in this scope.
	Locals() []*LocalSym

	// Contains reports whether pc lies within the covered range.
	Contains(pc uint64) bool

	block() *BlockSym
}

// BlockSym is a lexical block inside a function.
type BlockSym struct {
	name     string
	address  uint64
	length   uint64
	key      BlockKey
	parent   Block
	children []Block
	locals   []*LocalSym

	// parentKey names the enclosing scope until Resolve links it
	parentKey BlockKey
	hasParent bool
}

// NewBlockSym returns a lexical block registered under key.
func NewBlockSym(key BlockKey, name string, address, length uint64) *BlockSym {
	return &BlockSym{key: key, name: name, address: address, length: length}
}

func (b *BlockSym) Name() string        { return b.name }
func (b *BlockSym) Kind() SymKind       { return SymKindBlock }
func (b *BlockSym) Address() uint64     { return b.address }
func (b *BlockSym) Length() uint64      { return b.length }
func (b *BlockSym) Key() BlockKey       { return b.key }
func (b *BlockSym) Parent() Block       { return b.parent }
func (b *BlockSym) Children() []Block   { return b.children }
func (b *BlockSym) Locals() []*LocalSym { return b.locals }
func (b *BlockSym) block() *BlockSym    { return b }

func (b *BlockSym) Contains(pc uint64) bool {
	return pc >= b.address && pc-b.address < b.length
}

// Local returns the local with the given name declared in this scope.
func (b *BlockSym) Local(name string) (*LocalSym, bool) {
	for _, l := range b.locals {
		if l.name == name {
			return l, true
		}
	}
	return nil, false
}

// SetParentKey names the enclosing scope, linked by Resolve.
func (b *BlockSym) SetParentKey(key BlockKey) {
	b.parentKey = key
	b.hasParent = true
}

// AddLocal declares a local in this scope.
func (b *BlockSym) AddLocal(l *LocalSym) {
	b.locals = append(b.locals, l)
}

// FunctionSym is a procedure: a block with a signature.
type FunctionSym struct {
	BlockSym
	typ    Type
	global bool
}

// NewFunctionSym returns a procedure scope with signature typ.
func NewFunctionSym(key BlockKey, name string, address, length uint64, typ Type, global bool) *FunctionSym {
	return &FunctionSym{
		BlockSym: BlockSym{key: key, name: name, address: address, length: length},
		typ:      typ,
		global:   global,
	}
}

func (f *FunctionSym) Kind() SymKind  { return SymKindFunction }
func (f *FunctionSym) Type() Type     { return f.typ }
func (f *FunctionSym) IsGlobal() bool { return f.global }

// ReturnType returns the return type of the function signature.
func (f *FunctionSym) ReturnType() Type {
	switch t := f.typ.(type) {
	case *FunctionType:
		return t.ReturnType()
	case *MemberFunctionType:
		return t.ReturnType()
	}
	return nil
}
