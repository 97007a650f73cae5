package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/cv50-go/codeview"
	"github.com/skdltmxn/cv50-go/internal/symbols"
)

var (
	recordsModule int
	recordsLimit  int
)

var recordsCmd = &cobra.Command{
	Use:   "records <image>",
	Short: "List raw symbol records",
	Long: `List the raw records of every symbol subsection (sstAlignSym,
sstGlobalSym, sstGlobalPub and sstStaticSym) in directory order,
including record kinds the debug info database does not model.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecords,
}

func init() {
	recordsCmd.Flags().IntVarP(&recordsModule, "module", "m", -1, "only show subsections of this module index")
	recordsCmd.Flags().IntVarP(&recordsLimit, "limit", "n", 0, "limit number of records shown (0 = unlimited)")
}

func runRecords(cmd *cobra.Command, args []string) error {
	s, err := openSession(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	cv, err := codeview.Locate(s.file)
	if err != nil {
		return fmt.Errorf("failed to locate CodeView data: %w", err)
	}
	if cv == nil {
		return fmt.Errorf("%s has no embedded CodeView debug info", s.path)
	}

	count := printRecords(cv)
	fmt.Fprintf(output, "\nTotal: %d records\n", count)
	return nil
}

func printRecords(cv *codeview.Stream) int {
	count := 0
	for _, sub := range cv.Subsections() {
		if !sub.Kind.IsSymbolStream() {
			continue
		}
		if recordsModule >= 0 && int(sub.Module) != recordsModule {
			continue
		}

		var it *symbols.Iterator
		var err error
		if sub.Kind == codeview.SstAlignSym {
			it, err = symbols.NewAlignIterator(sub.Data)
		} else {
			it, err = symbols.NewTableIterator(sub.Data)
		}

		fmt.Fprintf(output, "%s (module %#04x)\n", sub.Kind, sub.Module)
		if err != nil {
			fmt.Fprintf(output, "  error: %v\n", err)
			continue
		}
		fmt.Fprintf(output, "  %-8s %-14s %s\n", "OFFSET", "KIND", "DETAILS")
		fmt.Fprintf(output, "  %s\n", strings.Repeat("-", 78))

		for rec := it.Next(); rec != nil; rec = it.Next() {
			if recordsLimit > 0 && count >= recordsLimit {
				return count
			}
			fmt.Fprintf(output, "  %08X %-14s %s\n", rec.Offset, rec.Kind, describeRecord(rec))
			count++
		}
		if err := it.Err(); err != nil {
			fmt.Fprintf(output, "  error: %v\n", err)
		}
	}
	return count
}

// describeRecord formats the decoded fields of a symbol record.
func describeRecord(rec *symbols.Record) string {
	v, err := symbols.ParseSymbol(rec)
	if err != nil {
		return fmt.Sprintf("<malformed: %v>", err)
	}

	switch s := v.(type) {
	case *symbols.ProcSym:
		return fmt.Sprintf("%s %04X:%08X len=0x%X type=0x%04X parent=0x%X end=0x%X",
			s.Name, s.Segment, s.CodeOffset, s.CodeSize, uint16(s.FunctionType), s.PtrParent, s.PtrEnd)
	case *symbols.DataSym:
		return fmt.Sprintf("%s %04X:%08X type=0x%04X", s.Name, s.Segment, s.Offset, uint16(s.Type))
	case *symbols.BlockSym:
		return fmt.Sprintf("%q %04X:%08X len=0x%X parent=0x%X", s.Name, s.Segment, s.Offset, s.CodeSize, s.PtrParent)
	case *symbols.ThunkSym:
		return fmt.Sprintf("%s %04X:%08X len=0x%X ordinal=%d", s.Name, s.Segment, s.Offset, s.Length, s.Ordinal)
	case *symbols.BPRelSym:
		return fmt.Sprintf("%s [bp%+d] type=0x%04X", s.Name, s.Offset, uint16(s.Type))
	case *symbols.RegRelSym:
		return fmt.Sprintf("%s [reg%d+0x%X] type=0x%04X", s.Name, s.Register, s.Offset, uint16(s.Type))
	case *symbols.LabelSym:
		return fmt.Sprintf("%s %04X:%08X", s.Name, s.Segment, s.Offset)
	case *symbols.UDTSym:
		return fmt.Sprintf("%s type=0x%04X", s.Name, uint16(s.Type))
	case *symbols.ConstantSym:
		return fmt.Sprintf("%s = %d type=0x%04X", s.Name, s.Value, uint16(s.Type))
	case *symbols.RegisterSym:
		return fmt.Sprintf("%s reg%d type=0x%04X", s.Name, s.Register, uint16(s.Type))
	case *symbols.ObjNameSym:
		return fmt.Sprintf("%s signature=0x%08X", s.Name, s.Signature)
	case *symbols.CompileSym:
		return fmt.Sprintf("machine=0x%02X version=%q", s.Machine, s.Version)
	case *symbols.RefSym:
		return fmt.Sprintf("module=%d offset=0x%X", s.Module, s.Offset)
	default:
		return fmt.Sprintf("%d bytes", len(rec.Data))
	}
}
