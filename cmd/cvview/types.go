package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/cv50-go/cdebug"
)

var (
	typesKind  string
	typesLimit int
)

var typesCmd = &cobra.Command{
	Use:   "types <image>",
	Short: "List types in the global types subsection",
	Long: `List the user-defined types of an image.

Use --kind to filter by type kind (class, struct, union, enum, function,
member_function, pointer, array, bitfield).`,
	Args: cobra.ExactArgs(1),
	RunE: runTypes,
}

func init() {
	typesCmd.Flags().StringVarP(&typesKind, "kind", "k", "", "filter by type kind")
	typesCmd.Flags().IntVarP(&typesLimit, "limit", "n", 0, "limit number of types shown (0 = unlimited)")
}

func parseTypeKind(s string) (cdebug.TypeKind, error) {
	for k := cdebug.TypeKindInt; k <= cdebug.TypeKindLazy; k++ {
		if strings.EqualFold(k.String(), s) {
			return k, nil
		}
	}
	return cdebug.TypeKindUnknown, fmt.Errorf("unknown type kind: %s", s)
}

func runTypes(cmd *cobra.Command, args []string) error {
	hasKindFilter := typesKind != ""
	var kindFilter cdebug.TypeKind
	if hasKindFilter {
		var err error
		if kindFilter, err = parseTypeKind(typesKind); err != nil {
			return err
		}
	}

	return withDatabase(args[0], func(_ *session, db *cdebug.Database) error {
		fmt.Fprintf(output, "%-8s %-16s %-8s %s\n", "INDEX", "KIND", "SIZE", "TYPE")
		fmt.Fprintf(output, "%s\n", strings.Repeat("-", 80))

		count := 0
		for ti, typ := range db.Types() {
			if hasKindFilter && typ.Kind() != kindFilter {
				continue
			}

			printType(ti, typ)
			count++
			if typesLimit > 0 && count >= typesLimit {
				break
			}
		}

		fmt.Fprintf(output, "\nTotal: %d types\n", count)
		return nil
	})
}

func printType(ti cdebug.TypeIndex, typ cdebug.Type) {
	sizeStr := "-"
	if size := typ.Size(); size > 0 {
		sizeStr = fmt.Sprintf("%d", size)
	}

	fmt.Fprintf(output, "0x%04X   %-16s %-8s %s\n",
		uint16(ti),
		typ.Kind().String(),
		sizeStr,
		cdebug.TypeString(typ))
}
