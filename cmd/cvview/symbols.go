package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/cv50-go/cdebug"
)

var (
	symbolsKind   string
	symbolsLimit  int
	symbolsLocals bool
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols <image>",
	Short: "List symbols of the image",
	Long: `List global data symbols and scopes of an image.

Use --kind to filter by symbol kind (global, function, block).`,
	Args: cobra.ExactArgs(1),
	RunE: runSymbols,
}

func init() {
	symbolsCmd.Flags().StringVarP(&symbolsKind, "kind", "k", "", "filter by symbol kind (global, function, block)")
	symbolsCmd.Flags().IntVarP(&symbolsLimit, "limit", "n", 0, "limit number of symbols shown (0 = unlimited)")
	symbolsCmd.Flags().BoolVarP(&symbolsLocals, "locals", "l", false, "show locals of each scope")
}

func runSymbols(cmd *cobra.Command, args []string) error {
	var kinds []cdebug.SymKind
	switch strings.ToLower(symbolsKind) {
	case "":
		kinds = []cdebug.SymKind{cdebug.SymKindGlobal, cdebug.SymKindFunction, cdebug.SymKindBlock}
	case "global":
		kinds = []cdebug.SymKind{cdebug.SymKindGlobal}
	case "function":
		kinds = []cdebug.SymKind{cdebug.SymKindFunction}
	case "block":
		kinds = []cdebug.SymKind{cdebug.SymKindBlock}
	default:
		return fmt.Errorf("unknown symbol kind: %s", symbolsKind)
	}
	want := func(k cdebug.SymKind) bool { return slices.Contains(kinds, k) }

	return withDatabase(args[0], func(_ *session, db *cdebug.Database) error {
		fmt.Fprintf(output, "%-10s %-8s %-8s %-30s %s\n", "ADDRESS", "KIND", "LENGTH", "NAME", "TYPE")
		fmt.Fprintf(output, "%s\n", strings.Repeat("-", 100))

		count := 0
		full := func() bool { return symbolsLimit > 0 && count >= symbolsLimit }

		if want(cdebug.SymKindGlobal) {
			for g := range db.GlobalSyms() {
				if full() {
					break
				}
				printGlobal(g)
				count++
			}
		}
		for b := range db.Blocks() {
			if full() {
				break
			}
			if !want(b.Kind()) {
				continue
			}
			printBlock(b)
			count++
		}

		fmt.Fprintf(output, "\nTotal: %d symbols\n", count)
		return nil
	})
}

func printGlobal(g *cdebug.GlobalSym) {
	kind := "global"
	if g.IsModuleLocal() {
		kind = "static"
	}
	fmt.Fprintf(output, "0x%08X %-8s %-8s %-30s %s\n", g.Address(), kind, "-", g.Name(), typeString(g.Type()))
}

func printBlock(b cdebug.Block) {
	name := b.Name()
	typ := "-"
	if f, ok := b.(*cdebug.FunctionSym); ok {
		typ = typeString(f.Type())
	} else if name == "" {
		name = "<block>"
	}
	fmt.Fprintf(output, "0x%08X %-8s 0x%-6X %-30s %s\n", b.Address(), b.Kind(), b.Length(), name, typ)

	if symbolsLocals {
		for _, l := range b.Locals() {
			fmt.Fprintf(output, "           local    [bp%+d] %s %s\n", l.FrameOffset(), typeString(l.Type()), l.Name())
		}
	}
}

func typeString(t cdebug.Type) string {
	if t == nil {
		return "-"
	}
	return cdebug.TypeString(t)
}
