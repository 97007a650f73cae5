package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/cv50-go/cdebug"
)

var (
	dumpFormat string
)

var dumpCmd = &cobra.Command{
	Use:   "dump <image>",
	Short: "Dump all debug information",
	Long: `Dump all debug information of an image in structured format.

Supported formats:
  - text: Human-readable text (default)
  - json: JSON format`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpFormat, "format", "f", "text", "output format (text, json)")
}

func runDump(cmd *cobra.Command, args []string) error {
	switch dumpFormat {
	case "json":
		return withDatabase(args[0], dumpJSON)
	case "text":
		return dumpText(args[0])
	default:
		return fmt.Errorf("unknown format: %s", dumpFormat)
	}
}

type ImageDump struct {
	File    string       `json:"file"`
	Base    uint64       `json:"base"`
	Stats   cdebug.Stats `json:"stats"`
	Modules []ModuleDump `json:"modules"`
	Globals []GlobalDump `json:"globals"`
	Scopes  []ScopeDump  `json:"scopes"`
	Types   []TypeDump   `json:"types"`
	Lines   []LineDump   `json:"lines"`
}

type ModuleDump struct {
	Index    uint16 `json:"index"`
	Name     string `json:"name"`
	Segments int    `json:"segments"`
}

type GlobalDump struct {
	Name        string `json:"name"`
	Address     uint64 `json:"address"`
	Type        string `json:"type,omitempty"`
	ModuleLocal bool   `json:"module_local,omitempty"`
}

type ScopeDump struct {
	Name     string      `json:"name,omitempty"`
	Kind     string      `json:"kind"`
	Address  uint64      `json:"address"`
	Length   uint64      `json:"length"`
	Type     string      `json:"type,omitempty"`
	Locals   []LocalDump `json:"locals,omitempty"`
	Children []ScopeDump `json:"children,omitempty"`
}

type LocalDump struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	FrameOffset int64  `json:"frame_offset"`
}

type TypeDump struct {
	Index uint16 `json:"index"`
	Kind  string `json:"kind"`
	Type  string `json:"type"`
	Size  uint64 `json:"size,omitempty"`
}

type LineDump struct {
	File  string `json:"file"`
	Line  uint32 `json:"line"`
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

func dumpJSON(s *session, db *cdebug.Database) error {
	dump := &ImageDump{
		File:  s.path,
		Base:  s.module.Base(),
		Stats: db.Stats(),
	}

	for _, mod := range db.Modules() {
		dump.Modules = append(dump.Modules, ModuleDump{
			Index:    mod.Index,
			Name:     mod.Name,
			Segments: len(mod.Segments),
		})
	}

	for g := range db.GlobalSyms() {
		dump.Globals = append(dump.Globals, GlobalDump{
			Name:        g.Name(),
			Address:     g.Address(),
			Type:        optionalType(g.Type()),
			ModuleLocal: g.IsModuleLocal(),
		})
	}

	for b := range db.Blocks() {
		if b.Parent() == nil {
			dump.Scopes = append(dump.Scopes, scopeDump(b))
		}
	}

	// Named types only, to keep the output manageable
	for ti, typ := range db.Types() {
		if typ.Name() == "" {
			continue
		}
		dump.Types = append(dump.Types, TypeDump{
			Index: uint16(ti),
			Kind:  typ.Kind().String(),
			Type:  cdebug.TypeString(typ),
			Size:  typ.Size(),
		})
	}

	for li := range db.LineNumbers() {
		dump.Lines = append(dump.Lines, LineDump{
			File:  li.File(),
			Line:  li.Line(),
			Start: li.Start(),
			End:   li.End(),
		})
	}

	encoder := json.NewEncoder(output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(dump)
}

func scopeDump(b cdebug.Block) ScopeDump {
	d := ScopeDump{
		Name:    b.Name(),
		Kind:    b.Kind().String(),
		Address: b.Address(),
		Length:  b.Length(),
	}
	if f, ok := b.(*cdebug.FunctionSym); ok {
		d.Type = optionalType(f.Type())
	}
	for _, l := range b.Locals() {
		d.Locals = append(d.Locals, LocalDump{
			Name:        l.Name(),
			Type:        optionalType(l.Type()),
			FrameOffset: l.FrameOffset(),
		})
	}
	for _, c := range b.Children() {
		d.Children = append(d.Children, scopeDump(c))
	}
	return d
}

func optionalType(t cdebug.Type) string {
	if t == nil {
		return ""
	}
	return cdebug.TypeString(t)
}

func dumpText(path string) error {
	fmt.Fprintln(output, "=== CodeView Information ===")
	if err := runInfo(nil, []string{path}); err != nil {
		return err
	}

	fmt.Fprintln(output)
	fmt.Fprintln(output, "=== Modules ===")
	modulesVerbose = true
	if err := runModules(nil, []string{path}); err != nil {
		return err
	}

	fmt.Fprintln(output)
	fmt.Fprintln(output, "=== Symbols ===")
	symbolsKind = ""
	symbolsLimit = 0
	symbolsLocals = true
	if err := runSymbols(nil, []string{path}); err != nil {
		return err
	}

	fmt.Fprintln(output)
	fmt.Fprintln(output, "=== Types ===")
	typesKind = ""
	typesLimit = 0
	if err := runTypes(nil, []string{path}); err != nil {
		return err
	}

	fmt.Fprintln(output)
	fmt.Fprintln(output, "=== Lines ===")
	linesFile = ""
	linesLimit = 0
	return runLines(nil, []string{path})
}
