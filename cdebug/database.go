package cdebug

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"sort"

	"github.com/skdltmxn/cv50-go/codeview"
)

type dbState uint8

const (
	stateNew dbState = iota
	stateBuilding
	stateResolved
	stateClosed
)

func (s dbState) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateBuilding:
		return "building"
	case stateResolved:
		return "resolved"
	default:
		return "closed"
	}
}

// maxLazyChain bounds modifier-of-modifier chains followed by Resolve.
const maxLazyChain = 64

// Stats summarizes the contents of a database.
type Stats struct {
	Types      int
	Globals    int
	Blocks     int
	Functions  int
	Lines      int
	Unresolved int
}

type variantKey struct {
	index TypeIndex
	cv    cv
}

type addrSym struct {
	address uint64
	sym     Sym
}

// Database holds the types, symbols, scopes and line numbers of one
// module. It is filled in two phases: records are added with lazy
// references, then Resolve links them. After EndConstruction it is
// read-only and safe for concurrent queries.
type Database struct {
	state dbState
	prims *primitives

	types     map[TypeIndex]Type
	typeOrder []TypeIndex
	variants  map[variantKey]Type

	globals       []*GlobalSym
	globalsByName map[string][]*GlobalSym

	blocks     map[BlockKey]Block
	blockOrder []Block
	topLevel   []Block

	lines    []*LineNumberInfo
	modules  []*codeview.Module
	byAddr   []addrSym
	failures int
}

// NewDatabase returns an empty database. Pointer primitives are given
// pointerSize bytes.
func NewDatabase(pointerSize uint64) *Database {
	return &Database{
		prims:         newPrimitives(pointerSize),
		types:         make(map[TypeIndex]Type),
		variants:      make(map[variantKey]Type),
		globalsByName: make(map[string][]*GlobalSym),
		blocks:        make(map[BlockKey]Block),
	}
}

func (db *Database) mustBe(want dbState, op string) {
	if db.state != want {
		panic(fmt.Sprintf("cdebug: %s called on %s database", op, db.state))
	}
}

// BeginConstruction opens the database for additions.
func (db *Database) BeginConstruction() {
	db.mustBe(stateNew, "BeginConstruction")
	db.state = stateBuilding
}

// AddType registers the type decoded from the record at index ti.
func (db *Database) AddType(ti TypeIndex, t Type) {
	db.mustBe(stateBuilding, "AddType")
	if _, ok := db.types[ti]; !ok {
		db.typeOrder = append(db.typeOrder, ti)
	}
	db.types[ti] = t
}

// AddGlobalSym registers a global or module-local data symbol.
func (db *Database) AddGlobalSym(g *GlobalSym) {
	db.mustBe(stateBuilding, "AddGlobalSym")
	db.globals = append(db.globals, g)
	db.globalsByName[g.name] = append(db.globalsByName[g.name], g)
}

// AddBlock registers a scope under its key.
func (db *Database) AddBlock(key BlockKey, b Block) {
	db.mustBe(stateBuilding, "AddBlock")
	if _, ok := db.blocks[key]; !ok {
		db.blockOrder = append(db.blockOrder, b)
	}
	db.blocks[key] = b
}

// AddLineNumberInfo registers a line-number entry.
func (db *Database) AddLineNumberInfo(li *LineNumberInfo) {
	db.mustBe(stateBuilding, "AddLineNumberInfo")
	db.lines = append(db.lines, li)
}

// SetModules records the module descriptors of the image.
func (db *Database) SetModules(mods []*codeview.Module) {
	db.mustBe(stateBuilding, "SetModules")
	db.modules = mods
}

// Resolve links every lazy reference added so far and fixes up line
// ranges. Failures are reported to l, which may be nil.
func (db *Database) Resolve(l ResolveListener) {
	db.mustBe(stateBuilding, "Resolve")
	counter := &countingListener{}
	if l == nil {
		l = counter
	} else {
		l = multiListener{l, counter}
	}

	for _, ti := range db.typeOrder {
		t := db.types[ti]
		lt, ok := t.(*LazyType)
		if !ok {
			t.resolve(db, l)
			continue
		}
		if r, ok := db.lookupLazy(lt, l); ok {
			db.types[ti] = r
		} else {
			l.TypeFailed(nil, lt, fmt.Sprintf("modifier %#04x names no type", uint16(ti)))
		}
	}

	for _, g := range db.globals {
		g.typ = db.resolveSymRef(g, g.typ, l)
	}

	for _, b := range db.blockOrder {
		bs := b.block()
		if f, ok := b.(*FunctionSym); ok {
			f.typ = db.resolveSymRef(f, f.typ, l)
		}
		for _, local := range bs.locals {
			local.typ = db.resolveSymRef(local, local.typ, l)
		}
		if bs.hasParent {
			if p, ok := db.blocks[bs.parentKey]; ok {
				bs.parent = p
			} else {
				l.ParentBlockFailed(b, bs.parentKey, "no block at this offset")
			}
		}
	}

	db.resolveLines()
	db.failures = counter.n
	db.state = stateResolved
}

// resolveLines sorts entries by start address and clamps each end to the
// start of the next entry.
func (db *Database) resolveLines() {
	slices.SortStableFunc(db.lines, func(a, b *LineNumberInfo) int {
		return cmp.Compare(a.start, b.start)
	})
	for i := 0; i+1 < len(db.lines); i++ {
		if next := db.lines[i+1].start; next < db.lines[i].end {
			db.lines[i].end = next
		}
	}
}

// resolveRef returns the concrete type for t, reporting a failed lazy
// reference against owner.
func (db *Database) resolveRef(t Type, owner Type, l ResolveListener) Type {
	return db.link(t, l, func(lt *LazyType) {
		l.TypeFailed(owner, lt, "no type with this index")
	})
}

func (db *Database) resolveSymRef(sym Sym, t Type, l ResolveListener) Type {
	return db.link(t, l, func(lt *LazyType) {
		l.SymbolTypeFailed(sym, lt, "no type with this index")
	})
}

func (db *Database) link(t Type, l ResolveListener, fail func(*LazyType)) Type {
	if t == nil {
		return nil
	}
	lt, ok := t.(*LazyType)
	if !ok {
		t.resolve(db, l)
		return t
	}
	r, ok := db.lookupLazy(lt, l)
	if !ok {
		fail(lt)
		return lt
	}
	return r
}

// lookupLazy follows a lazy reference to its concrete type, applying the
// qualifiers collected along the way.
func (db *Database) lookupLazy(lt *LazyType, l ResolveListener) (Type, bool) {
	q := lt.cv
	ti := lt.index
	for range maxLazyChain {
		t, ok := db.types[ti]
		if !ok {
			if !ti.IsPrimitive() {
				return nil, false
			}
			p, err := db.prims.lookup(ti)
			if err != nil {
				return nil, false
			}
			t = p
		}
		if next, ok := t.(*LazyType); ok {
			q = q.or(next.isConst, next.isVolatile)
			ti = next.index
			continue
		}

		t.resolve(db, l)
		if q == (cv{}) {
			return t, true
		}
		key := variantKey{index: ti, cv: q}
		if v, ok := db.variants[key]; ok {
			return v, true
		}
		v := t.withCV(q.isConst, q.isVolatile)
		db.variants[key] = v
		return v, true
	}
	return nil, false
}

func (db *Database) resolveStaticField(owner *CompoundType, f *Field, l ResolveListener) {
	name := owner.name + "::" + f.Name
	if g, ok := db.lookupGlobal(name); ok {
		f.address = g.address
		f.hasAddress = true
		return
	}
	l.StaticFieldFailed(owner, f, "no global symbol "+name)
}

func (db *Database) lookupGlobal(name string) (*GlobalSym, bool) {
	syms := db.globalsByName[name]
	if len(syms) == 0 {
		return nil, false
	}
	for _, g := range syms {
		if !g.moduleLocal {
			return g, true
		}
	}
	return syms[0], true
}

// EndConstruction builds the query indexes and freezes the database.
func (db *Database) EndConstruction() {
	db.mustBe(stateResolved, "EndConstruction")

	byAddress := func(a, b Block) int { return cmp.Compare(a.Address(), b.Address()) }
	for _, b := range db.blockOrder {
		if p := b.Parent(); p != nil {
			pb := p.block()
			pb.children = append(pb.children, b)
		} else {
			db.topLevel = append(db.topLevel, b)
		}
	}
	for _, b := range db.blockOrder {
		slices.SortStableFunc(b.block().children, byAddress)
	}
	slices.SortStableFunc(db.topLevel, byAddress)

	for _, g := range db.globals {
		db.byAddr = append(db.byAddr, addrSym{address: g.address, sym: g})
	}
	for _, b := range db.blockOrder {
		if f, ok := b.(*FunctionSym); ok {
			db.byAddr = append(db.byAddr, addrSym{address: f.address, sym: f})
		}
	}
	slices.SortStableFunc(db.byAddr, func(a, b addrSym) int { return cmp.Compare(a.address, b.address) })

	db.state = stateClosed
}

// TypeByIndex returns the type for an index. Primitive indices are
// decoded on demand; a malformed one yields a *PrimitiveTypeError.
func (db *Database) TypeByIndex(ti TypeIndex) (Type, error) {
	db.mustBe(stateClosed, "TypeByIndex")
	if ti.IsPrimitive() {
		return db.prims.lookup(ti)
	}
	if t, ok := db.types[ti]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %#04x", ErrTypeNotFound, uint16(ti))
}

// Types returns all indexed types in index order.
func (db *Database) Types() iter.Seq2[TypeIndex, Type] {
	db.mustBe(stateClosed, "Types")
	order := slices.Clone(db.typeOrder)
	slices.Sort(order)
	return func(yield func(TypeIndex, Type) bool) {
		for _, ti := range order {
			if !yield(ti, db.types[ti]) {
				return
			}
		}
	}
}

// TypesByName returns all indexed types with the given name.
func (db *Database) TypesByName(name string) iter.Seq[Type] {
	return func(yield func(Type) bool) {
		for _, t := range db.Types() {
			if t.Name() == name && !yield(t) {
				return
			}
		}
	}
}

// GlobalSyms returns the data symbols in the order they were added.
func (db *Database) GlobalSyms() iter.Seq[*GlobalSym] {
	db.mustBe(stateClosed, "GlobalSyms")
	return slices.Values(db.globals)
}

// LookupSym returns the data symbol with the given name, preferring a
// global one over module-local ones.
func (db *Database) LookupSym(name string) (*GlobalSym, bool) {
	db.mustBe(stateClosed, "LookupSym")
	return db.lookupGlobal(name)
}

// Blocks returns every scope in the order it was added.
func (db *Database) Blocks() iter.Seq[Block] {
	db.mustBe(stateClosed, "Blocks")
	return slices.Values(db.blockOrder)
}

// Functions returns every function scope in the order it was added.
func (db *Database) Functions() iter.Seq[*FunctionSym] {
	db.mustBe(stateClosed, "Functions")
	return func(yield func(*FunctionSym) bool) {
		for _, b := range db.blockOrder {
			if f, ok := b.(*FunctionSym); ok && !yield(f) {
				return
			}
		}
	}
}

// LookupFunction returns the first function with the given name.
func (db *Database) LookupFunction(name string) (*FunctionSym, bool) {
	for f := range db.Functions() {
		if f.name == name {
			return f, true
		}
	}
	return nil, false
}

// BlockByKey returns the scope registered under key.
func (db *Database) BlockByKey(key BlockKey) (Block, bool) {
	db.mustBe(stateClosed, "BlockByKey")
	b, ok := db.blocks[key]
	return b, ok
}

// DebugInfoForPC returns the innermost scope containing pc, or nil.
func (db *Database) DebugInfoForPC(pc uint64) Block {
	db.mustBe(stateClosed, "DebugInfoForPC")
	b := findBlock(db.topLevel, pc)
	if b == nil {
		return nil
	}
	for {
		inner := findBlock(b.Children(), pc)
		if inner == nil {
			return b
		}
		b = inner
	}
}

// findBlock searches blocks sorted by address for one containing pc.
func findBlock(blocks []Block, pc uint64) Block {
	i := sort.Search(len(blocks), func(i int) bool { return blocks[i].Address() > pc })
	for j := i - 1; j >= 0; j-- {
		if blocks[j].Contains(pc) {
			return blocks[j]
		}
		if blocks[j].Address() != blocks[i-1].Address() {
			break
		}
	}
	return nil
}

// LineNumberForPC returns the line entry covering pc.
func (db *Database) LineNumberForPC(pc uint64) (*LineNumberInfo, bool) {
	db.mustBe(stateClosed, "LineNumberForPC")
	i := sort.Search(len(db.lines), func(i int) bool { return db.lines[i].start > pc })
	for j := i - 1; j >= 0 && db.lines[j].start == db.lines[i-1].start; j-- {
		if db.lines[j].Contains(pc) {
			return db.lines[j], true
		}
	}
	return nil, false
}

// LineNumbers returns every line entry ordered by start address.
func (db *Database) LineNumbers() iter.Seq[*LineNumberInfo] {
	db.mustBe(stateClosed, "LineNumbers")
	return slices.Values(db.lines)
}

// ClosestSymbol returns the function or data symbol with the greatest
// address not above pc, and the distance from it.
func (db *Database) ClosestSymbol(pc uint64) (Sym, uint64, bool) {
	db.mustBe(stateClosed, "ClosestSymbol")
	i := sort.Search(len(db.byAddr), func(i int) bool { return db.byAddr[i].address > pc })
	if i == 0 {
		return nil, 0, false
	}
	e := db.byAddr[i-1]
	return e.sym, pc - e.address, true
}

// Modules returns the module descriptors of the image.
func (db *Database) Modules() []*codeview.Module {
	return db.modules
}

// Stats returns counts of the database contents.
func (db *Database) Stats() Stats {
	s := Stats{
		Types:      len(db.types),
		Globals:    len(db.globals),
		Blocks:     len(db.blockOrder),
		Lines:      len(db.lines),
		Unresolved: db.failures,
	}
	for _, b := range db.blockOrder {
		if _, ok := b.(*FunctionSym); ok {
			s.Functions++
		}
	}
	return s
}

// countingListener counts failures for Stats.
type countingListener struct {
	n int
}

func (c *countingListener) TypeFailed(Type, *LazyType, string)        { c.n++ }
func (c *countingListener) StaticFieldFailed(Type, *Field, string)    { c.n++ }
func (c *countingListener) SymbolTypeFailed(Sym, *LazyType, string)   { c.n++ }
func (c *countingListener) ParentBlockFailed(Block, BlockKey, string) { c.n++ }
