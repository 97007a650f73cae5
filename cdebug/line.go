package cdebug

import (
	"unique"
)

// LineNumberInfo maps a half-open code range to a source line.
type LineNumberInfo struct {
	file   unique.Handle[string]
	line   uint32
	start  uint64
	end    uint64
	module uint16
}

// NewLineNumberInfo returns an entry for [start, end). The end is usually a
// placeholder that Resolve clamps to the start of the next entry.
func NewLineNumberInfo(file string, line uint32, start, end uint64, module uint16) *LineNumberInfo {
	return &LineNumberInfo{
		file:   unique.Make(file),
		line:   line,
		start:  start,
		end:    end,
		module: module,
	}
}

func (li *LineNumberInfo) File() string   { return li.file.Value() }
func (li *LineNumberInfo) Line() uint32   { return li.line }
func (li *LineNumberInfo) Start() uint64  { return li.start }
func (li *LineNumberInfo) End() uint64    { return li.end }
func (li *LineNumberInfo) Module() uint16 { return li.module }

// Contains reports whether pc lies within [Start, End).
func (li *LineNumberInfo) Contains(pc uint64) bool {
	return pc >= li.start && pc < li.end
}
