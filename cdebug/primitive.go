package cdebug

import (
	"errors"
	"sync"

	"github.com/skdltmxn/cv50-go/internal/leaf"
)

// primitives decodes and memoizes primitive type indices so every
// occurrence of one index yields the same node.
type primitives struct {
	mu          sync.Mutex
	pointerSize uint64
	cache       map[TypeIndex]Type
}

func newPrimitives(pointerSize uint64) *primitives {
	return &primitives{
		pointerSize: pointerSize,
		cache:       make(map[TypeIndex]Type),
	}
}

// lookup returns the canonical node for a primitive index.
func (p *primitives) lookup(ti TypeIndex) (Type, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decode(ti)
}

func (p *primitives) decode(ti TypeIndex) (Type, error) {
	if t, ok := p.cache[ti]; ok {
		return t, nil
	}

	raw := leaf.TypeIndex(ti)
	var t Type
	if raw.PrimitiveMode() != leaf.PrimitiveModeDirect {
		target, err := p.decode(TypeIndex(raw.Direct()))
		if err != nil {
			var pe *PrimitiveTypeError
			if errors.As(err, &pe) {
				return nil, &PrimitiveTypeError{Index: ti, Reason: "pointer to " + pe.Reason}
			}
			return nil, err
		}
		t = &PointerType{target: target, size: p.pointerSize}
	} else {
		var err error
		if t, err = decodeDirect(ti); err != nil {
			return nil, err
		}
	}

	p.cache[ti] = t
	return t, nil
}

var (
	intNames  = [4]string{"char", "short", "int", "__int64"}
	intSizes  = [4]uint64{1, 2, 4, 8}
	boolSizes = [4]uint64{1, 2, 4, 8}
)

// reallyInts covers the size selectors of the really-int tier.
var reallyInts = [8]struct {
	name     string
	size     uint64
	unsigned bool
}{
	{"char", 1, false},
	{"wchar", 2, false},
	{"short", 2, false},
	{"unsigned short", 2, true},
	{"int", 4, false},
	{"unsigned int", 4, true},
	{"__int64", 8, false},
	{"unsigned __int64", 8, true},
}

func decodeDirect(ti TypeIndex) (Type, error) {
	raw := leaf.TypeIndex(ti)
	size := raw.PrimitiveSize()

	switch raw.PrimitiveTier() {
	case leaf.PrimitiveSpecial:
		if size == leaf.SizeSpecialNoType || size == leaf.SizeSpecialVoid {
			return &VoidType{}, nil
		}
		return nil, &PrimitiveTypeError{Index: ti, Reason: "unsupported special type"}

	case leaf.PrimitiveSigned:
		if size > leaf.SizeInt8 {
			break
		}
		return &IntType{name: intNames[size], size: intSizes[size]}, nil

	case leaf.PrimitiveUnsigned:
		if size > leaf.SizeInt8 {
			break
		}
		return &IntType{name: "unsigned " + intNames[size], size: intSizes[size], unsigned: true}, nil

	case leaf.PrimitiveBoolean:
		if size > leaf.SizeInt8 {
			break
		}
		return &IntType{name: "bool", size: boolSizes[size], unsigned: true}, nil

	case leaf.PrimitiveReal:
		switch size {
		case leaf.SizeReal32:
			return &FloatType{name: "float", size: 4}, nil
		case leaf.SizeReal64:
			return &FloatType{name: "double", size: 8}, nil
		}
		return nil, &PrimitiveTypeError{Index: ti, Reason: "unsupported real width"}

	case leaf.PrimitiveReallyInt:
		r := reallyInts[size]
		return &IntType{name: r.name, size: r.size, unsigned: r.unsigned}, nil

	default:
		return nil, &PrimitiveTypeError{Index: ti, Reason: "unsupported type class"}
	}

	return nil, &PrimitiveTypeError{Index: ti, Reason: "size selector out of range"}
}
