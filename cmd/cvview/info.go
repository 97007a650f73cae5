package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/cv50-go/cdebug"
	"github.com/skdltmxn/cv50-go/codeview"
)

var infoCmd = &cobra.Command{
	Use:   "info <image>",
	Short: "Display CodeView information",
	Long:  `Display the CodeView signature, subsection directory and debug info statistics of an image.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	s, err := openSession(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(output, "Image: %s\n", s.path)
	fmt.Fprintf(output, "Load Base: 0x%08X\n", s.module.Base())
	fmt.Fprintf(output, "Image Size: 0x%X\n", s.module.Size())
	fmt.Fprintf(output, "Sections: %d\n", s.file.NumSections())

	cv, err := codeview.Locate(s.file)
	if err != nil {
		return fmt.Errorf("failed to locate CodeView data: %w", err)
	}
	if cv == nil {
		fmt.Fprintln(output, "CodeView: none embedded")
		return nil
	}
	fmt.Fprintf(output, "CodeView: %s\n", cv.Signature)

	counts := map[codeview.SubsectionKind]int{}
	var order []codeview.SubsectionKind
	for _, sub := range cv.Subsections() {
		if counts[sub.Kind] == 0 {
			order = append(order, sub.Kind)
		}
		counts[sub.Kind]++
	}
	fmt.Fprintf(output, "Subsections: %d\n", len(cv.Subsections()))
	for _, kind := range order {
		fmt.Fprintf(output, "  %-16s %d\n", kind, counts[kind])
	}

	db, err := s.database()
	if err != nil {
		return err
	}
	printStats(db.Stats())
	return nil
}

func printStats(st cdebug.Stats) {
	fmt.Fprintf(output, "Types: %d\n", st.Types)
	fmt.Fprintf(output, "Global Symbols: %d\n", st.Globals)
	fmt.Fprintf(output, "Blocks: %d (%d functions)\n", st.Blocks, st.Functions)
	fmt.Fprintf(output, "Line Entries: %d\n", st.Lines)
	fmt.Fprintf(output, "Unresolved References: %d\n", st.Unresolved)
}
