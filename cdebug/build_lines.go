package cdebug

import (
	"github.com/go-kit/log/level"

	"github.com/skdltmxn/cv50-go/codeview"
	"github.com/skdltmxn/cv50-go/internal/lines"
)

// decodeLines adds an entry for every (offset, line) pair of every
// sstSrcModule subsection. Each entry ends at the end of its section
// until Resolve clamps it to the next entry.
func (b *builder) decodeLines() {
	for sub := range b.cv.All(codeview.SstSrcModule) {
		m, err := lines.Parse(sub.Data)
		if err != nil {
			level.Warn(b.logger).Log("msg", "skipping source module", "module", sub.Module, "err", err)
			continue
		}

		for _, file := range m.Files {
			for _, blk := range file.Blocks {
				end, err := b.sectionEnd(blk.Segment)
				if err != nil {
					level.Warn(b.logger).Log("msg", "skipping line block", "module", sub.Module, "file", file.Name,
						"segment", blk.Segment, "err", err)
					continue
				}
				for i, off := range blk.Offsets {
					start, err := b.address(blk.Segment, off)
					if err != nil {
						continue
					}
					b.db.AddLineNumberInfo(NewLineNumberInfo(file.Name, uint32(blk.Lines[i]), start, end, sub.Module))
				}
			}
		}
	}
}
