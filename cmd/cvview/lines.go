package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/cv50-go/cdebug"
)

var (
	linesFile  string
	linesLimit int
)

var linesCmd = &cobra.Command{
	Use:   "lines <image>",
	Short: "List line number entries",
	Long:  `List the source line table of an image ordered by address.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runLines,
}

func init() {
	linesCmd.Flags().StringVarP(&linesFile, "file", "f", "", "only show lines of source files containing this string")
	linesCmd.Flags().IntVarP(&linesLimit, "limit", "n", 0, "limit number of entries shown (0 = unlimited)")
}

func runLines(cmd *cobra.Command, args []string) error {
	return withDatabase(args[0], func(_ *session, db *cdebug.Database) error {
		fmt.Fprintf(output, "%-10s %-10s %-6s %-6s %s\n", "START", "END", "MODULE", "LINE", "FILE")
		fmt.Fprintf(output, "%s\n", strings.Repeat("-", 80))

		count := 0
		for li := range db.LineNumbers() {
			if linesFile != "" && !strings.Contains(li.File(), linesFile) {
				continue
			}
			fmt.Fprintf(output, "0x%08X 0x%08X %-6d %-6d %s\n", li.Start(), li.End(), li.Module(), li.Line(), li.File())
			count++
			if linesLimit > 0 && count >= linesLimit {
				break
			}
		}

		fmt.Fprintf(output, "\nTotal: %d entries\n", count)
		return nil
	})
}
