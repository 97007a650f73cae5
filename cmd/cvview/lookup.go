package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/cv50-go/cdebug"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <image> <query>",
	Short: "Look up symbols, addresses or types",
	Long: `Look up debug info in an image.

Query can be:
  - Symbol name: lookup app.exe main
  - Address: lookup app.exe 0x401020 (scope, source line and nearest symbol)
  - Type index: lookup app.exe type:0x1000`,
	Args: cobra.ExactArgs(2),
	RunE: runLookup,
}

func runLookup(cmd *cobra.Command, args []string) error {
	query := args[1]

	return withDatabase(args[0], func(s *session, db *cdebug.Database) error {
		if strings.HasPrefix(query, "type:") {
			return lookupType(db, strings.TrimPrefix(query, "type:"))
		}
		if strings.HasPrefix(query, "0x") || strings.HasPrefix(query, "0X") {
			return lookupAddress(s, query)
		}
		return lookupName(db, query)
	})
}

func parseHex(s string, bits int) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"), 16, bits)
}

func lookupName(db *cdebug.Database, name string) error {
	found := 0
	if g, ok := db.LookupSym(name); ok {
		fmt.Fprintf(output, "Global:\n")
		fmt.Fprintf(output, "  Name: %s\n", g.Name())
		fmt.Fprintf(output, "  Address: 0x%08X\n", g.Address())
		fmt.Fprintf(output, "  Type: %s\n", typeString(g.Type()))
		fmt.Fprintf(output, "  ModuleLocal: %v\n\n", g.IsModuleLocal())
		found++
	}
	if f, ok := db.LookupFunction(name); ok {
		printBlockDetail(f)
		found++
	}
	for t := range db.TypesByName(name) {
		fmt.Fprintf(output, "Type: %s (%s, size %d)\n\n", cdebug.TypeString(t), t.Kind(), t.Size())
		found++
	}

	if found == 0 {
		fmt.Fprintf(output, "No symbols or types found matching '%s'\n", name)
	}
	return nil
}

func lookupAddress(s *session, addrStr string) error {
	pc, err := parseHex(addrStr, 64)
	if err != nil {
		return fmt.Errorf("invalid address: %s", addrStr)
	}

	found := false
	if b := s.dbg.DebugInfoForPC(pc); b != nil {
		printBlockDetail(b)
		found = true
	}
	if li, ok := s.dbg.LineNumberForPC(pc); ok {
		fmt.Fprintf(output, "Line: %s:%d [0x%08X, 0x%08X)\n", li.File(), li.Line(), li.Start(), li.End())
		found = true
	}
	if sym, ok := s.dbg.ClosestSymbolToPC(pc); ok {
		fmt.Fprintf(output, "Export: %s+0x%X\n", sym.Name, sym.Offset)
		found = true
	}

	if !found {
		fmt.Fprintf(output, "No debug info at address 0x%08X\n", pc)
	}
	return nil
}

func lookupType(db *cdebug.Database, indexStr string) error {
	index, err := parseHex(indexStr, 16)
	if err != nil {
		return fmt.Errorf("invalid type index: %s", indexStr)
	}

	typ, err := db.TypeByIndex(cdebug.TypeIndex(index))
	if err != nil {
		return fmt.Errorf("type not found: %w", err)
	}

	printTypeDetail(cdebug.TypeIndex(index), typ)
	return nil
}

func printBlockDetail(b cdebug.Block) {
	fmt.Fprintf(output, "Scope:\n")
	if b.Name() != "" {
		fmt.Fprintf(output, "  Name: %s\n", b.Name())
	}
	fmt.Fprintf(output, "  Kind: %s\n", b.Kind())
	fmt.Fprintf(output, "  Range: [0x%08X, 0x%08X)\n", b.Address(), b.Address()+b.Length())
	if f, ok := b.(*cdebug.FunctionSym); ok {
		fmt.Fprintf(output, "  Type: %s\n", typeString(f.Type()))
		fmt.Fprintf(output, "  Global: %v\n", f.IsGlobal())
	}
	for p := b.Parent(); p != nil; p = p.Parent() {
		name := p.Name()
		if name == "" {
			name = "<block>"
		}
		fmt.Fprintf(output, "  In: %s at 0x%08X\n", name, p.Address())
	}
	for _, l := range b.Locals() {
		fmt.Fprintf(output, "  Local: %s %s [bp%+d]\n", typeString(l.Type()), l.Name(), l.FrameOffset())
	}
	fmt.Fprintln(output)
}

func printTypeDetail(ti cdebug.TypeIndex, typ cdebug.Type) {
	fmt.Fprintf(output, "Type:\n")
	fmt.Fprintf(output, "  Index: 0x%04X\n", uint16(ti))
	fmt.Fprintf(output, "  Kind: %s\n", typ.Kind())
	fmt.Fprintf(output, "  Declaration: %s\n", cdebug.TypeString(typ))
	if typ.Size() > 0 {
		fmt.Fprintf(output, "  Size: %d\n", typ.Size())
	}

	switch t := typ.(type) {
	case *cdebug.CompoundType:
		fmt.Fprintf(output, "  IsForwardRef: %v\n", t.IsForwardRef())
		for _, b := range t.BaseClasses() {
			fmt.Fprintf(output, "  Base: %s %s (virtual: %v)\n", b.Access, typeString(b.Type), b.Virtual)
		}
		for _, f := range t.Fields() {
			if f.Static {
				addr := "unresolved"
				if a, ok := f.Address(); ok {
					addr = fmt.Sprintf("0x%08X", a)
				}
				fmt.Fprintf(output, "  Field: static %s %s @ %s\n", typeString(f.Type), f.Name, addr)
				continue
			}
			fmt.Fprintf(output, "  Field: +0x%-4X %s %s\n", f.Offset, typeString(f.Type), f.Name)
		}
	case *cdebug.EnumType:
		fmt.Fprintf(output, "  UnderlyingType: %s\n", typeString(t.UnderlyingType()))
		for _, e := range t.Enumerators() {
			fmt.Fprintf(output, "  Enumerator: %s = %d\n", e.Name, e.Value)
		}
	case *cdebug.PointerType:
		fmt.Fprintf(output, "  Target: %s\n", typeString(t.Target()))
	case *cdebug.ArrayType:
		fmt.Fprintf(output, "  ElementType: %s\n", typeString(t.ElementType()))
		fmt.Fprintf(output, "  Length: %d\n", t.Length())
	case *cdebug.FunctionType:
		if t.CallingConvention() != "" {
			fmt.Fprintf(output, "  CallingConvention: %s\n", t.CallingConvention())
		}
	}

	fmt.Fprintln(output)
}
