package cdebug

import (
	"fmt"
	"strings"
)

// TypeString renders t as a C declaration specifier.
func TypeString(t Type) string {
	var sb strings.Builder
	writeType(&sb, t, 0)
	return sb.String()
}

// maxTypeDepth stops rendering of pathological reference chains.
const maxTypeDepth = 16

func writeType(sb *strings.Builder, t Type, depth int) {
	if t == nil {
		sb.WriteString("<nil>")
		return
	}
	if depth > maxTypeDepth {
		sb.WriteString("...")
		return
	}
	if t.IsConst() {
		sb.WriteString("const ")
	}
	if t.IsVolatile() {
		sb.WriteString("volatile ")
	}

	switch t := t.(type) {
	case *PointerType:
		writeType(sb, t.Target(), depth+1)
		sb.WriteString("*")
	case *ArrayType:
		writeType(sb, t.ElementType(), depth+1)
		fmt.Fprintf(sb, "[%d]", t.Length())
	case *CompoundType:
		sb.WriteString(t.kind.String())
		sb.WriteString(" ")
		sb.WriteString(nameOr(t.name, "<anonymous>"))
	case *EnumType:
		sb.WriteString("enum ")
		sb.WriteString(nameOr(t.name, "<anonymous>"))
	case *MemberFunctionType:
		writeSignature(sb, &t.FunctionType, depth)
	case *FunctionType:
		writeSignature(sb, t, depth)
	case *BitfieldType:
		writeType(sb, t.UnderlyingType(), depth+1)
		fmt.Fprintf(sb, " : %d", t.length)
	case *LazyType:
		fmt.Fprintf(sb, "<type %#04x>", uint16(t.index))
	default:
		sb.WriteString(t.Name())
	}
}

func writeSignature(sb *strings.Builder, f *FunctionType, depth int) {
	writeType(sb, f.ReturnType(), depth+1)
	sb.WriteString(" (")
	for i, a := range f.Arguments() {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeType(sb, a, depth+1)
	}
	sb.WriteString(")")
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
