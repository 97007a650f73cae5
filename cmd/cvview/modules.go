package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/cv50-go/cdebug"
)

var (
	modulesVerbose bool
)

var modulesCmd = &cobra.Command{
	Use:   "modules <image>",
	Short: "List modules (compilation units) of the image",
	Long:  `List the compilation units recorded in the sstModule subsections of an image.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runModules,
}

func init() {
	modulesCmd.Flags().BoolVarP(&modulesVerbose, "verbose", "v", false, "show code segment contributions")
}

func runModules(cmd *cobra.Command, args []string) error {
	return withDatabase(args[0], func(_ *session, db *cdebug.Database) error {
		modules := db.Modules()

		fmt.Fprintf(output, "%-5s %-8s %s\n", "INDEX", "SEGMENTS", "NAME")
		fmt.Fprintf(output, "%s\n", strings.Repeat("-", 80))
		for _, mod := range modules {
			fmt.Fprintf(output, "%-5d %-8d %s\n", mod.Index, len(mod.Segments), mod.Name)
			if modulesVerbose {
				for _, seg := range mod.Segments {
					fmt.Fprintf(output, "      %04X:%08X +0x%X\n", seg.Segment, seg.Offset, seg.Length)
				}
			}
		}

		fmt.Fprintf(output, "\nTotal: %d modules\n", len(modules))
		return nil
	})
}
