package cdebug

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/skdltmxn/cv50-go/codeview"
	"github.com/skdltmxn/cv50-go/internal/symbols"
)

// scopeWalker tracks the scope stack of one symbol subsection.
type scopeWalker struct {
	b      *builder
	logger log.Logger
	sub    codeview.Subsection
	stack  []Block

	// endsToSkip counts open scopes that are not modeled, whose S_END
	// must not pop the stack
	endsToSkip int
}

// decodeSymbols walks every symbol-bearing subsection in directory order.
func (b *builder) decodeSymbols() {
	for _, sub := range b.cv.Subsections() {
		if !sub.Kind.IsSymbolStream() {
			continue
		}

		var it *symbols.Iterator
		var err error
		if sub.Kind == codeview.SstAlignSym {
			it, err = symbols.NewAlignIterator(sub.Data)
		} else {
			it, err = symbols.NewTableIterator(sub.Data)
		}
		if err != nil {
			level.Warn(b.logger).Log("msg", "skipping symbol subsection", "kind", sub.Kind, "module", sub.Module, "err", err)
			continue
		}

		w := &scopeWalker{
			b:      b,
			logger: log.With(b.logger, "subsection", sub.Kind, "module", sub.Module),
			sub:    sub,
		}
		for rec := it.Next(); rec != nil; rec = it.Next() {
			w.visit(rec)
		}
		if err := it.Err(); err != nil {
			level.Warn(w.logger).Log("msg", "symbol records truncated", "err", err)
		}
		w.finish()
	}
}

func (w *scopeWalker) key(offset int) BlockKey {
	return BlockKey{Subsection: w.sub.Index, Offset: uint32(offset)}
}

func (w *scopeWalker) visit(rec *symbols.Record) {
	var err error
	switch rec.Kind {
	case 0, symbols.S_COMPILE2_ST:
		// Padding and post-VC50 compiler records carry nothing we use

	case symbols.S_GDATA32, symbols.S_LDATA32:
		err = w.data(rec)

	case symbols.S_GPROC32, symbols.S_LPROC32:
		err = w.proc(rec)

	case symbols.S_BLOCK32:
		err = w.block(rec)

	case symbols.S_BPREL32:
		err = w.local(rec)

	case symbols.S_THUNK32:
		if th, terr := symbols.ParseThunkSym(rec.Data); terr == nil {
			level.Debug(w.logger).Log("msg", "skipping thunk scope", "name", th.Name, "segment", th.Segment, "offset", th.Offset)
		}
		w.endsToSkip++

	case symbols.S_WITH32, symbols.S_LPROCMIPS, symbols.S_GPROCMIPS:
		// Opens a scope closed by S_END that is not modeled
		w.endsToSkip++

	case symbols.S_END:
		w.end(rec)

	default:
		if !rec.Kind.Known() {
			level.Debug(w.logger).Log("msg", "unknown symbol record", "kind", rec.Kind, "offset", rec.Offset)
		}
	}

	if err != nil {
		level.Warn(w.logger).Log("msg", "dropping symbol record", "kind", rec.Kind, "offset", rec.Offset, "err", err)
	}
}

func (w *scopeWalker) data(rec *symbols.Record) error {
	d, err := symbols.ParseDataSym(rec.Data)
	if err != nil {
		return err
	}
	typ, err := w.b.typeRef(d.Type)
	if err != nil {
		return err
	}
	addr, err := w.b.address(d.Segment, d.Offset)
	if err != nil {
		return err
	}
	w.b.db.AddGlobalSym(NewGlobalSym(d.Name, typ, addr, rec.Kind == symbols.S_LDATA32))
	return nil
}

func (w *scopeWalker) proc(rec *symbols.Record) error {
	p, err := symbols.ParseProcSym(rec.Data)
	if err != nil {
		return err
	}
	typ, err := w.b.typeRef(p.FunctionType)
	if err != nil {
		return err
	}
	addr, err := w.b.address(p.Segment, p.CodeOffset)
	if err != nil {
		return err
	}

	f := NewFunctionSym(w.key(rec.Offset), p.Name, addr, uint64(p.CodeSize), typ, rec.Kind == symbols.S_GPROC32)
	if p.PtrParent != 0 {
		f.SetParentKey(w.key(int(p.PtrParent)))
	}
	w.push(f)
	return nil
}

func (w *scopeWalker) block(rec *symbols.Record) error {
	bs, err := symbols.ParseBlockSym(rec.Data)
	if err != nil {
		return err
	}
	addr, err := w.b.address(bs.Segment, bs.Offset)
	if err != nil {
		return err
	}

	blk := NewBlockSym(w.key(rec.Offset), bs.Name, addr, uint64(bs.CodeSize))
	if bs.PtrParent != 0 {
		blk.SetParentKey(w.key(int(bs.PtrParent)))
	}
	w.push(blk)
	return nil
}

func (w *scopeWalker) push(b Block) {
	w.b.db.AddBlock(b.block().key, b)
	w.stack = append(w.stack, b)
}

func (w *scopeWalker) local(rec *symbols.Record) error {
	l, err := symbols.ParseBPRelSym(rec.Data)
	if err != nil {
		return err
	}
	if len(w.stack) == 0 {
		level.Warn(w.logger).Log("msg", "local outside any scope", "name", l.Name, "offset", rec.Offset)
		return nil
	}
	typ, err := w.b.typeRef(l.Type)
	if err != nil {
		return err
	}
	w.stack[len(w.stack)-1].block().AddLocal(NewLocalSym(l.Name, typ, int64(l.Offset)))
	return nil
}

func (w *scopeWalker) end(rec *symbols.Record) {
	if w.endsToSkip > 0 {
		w.endsToSkip--
		return
	}
	if len(w.stack) == 0 {
		level.Warn(w.logger).Log("msg", "scope end without open scope", "offset", rec.Offset)
		return
	}
	w.stack = w.stack[:len(w.stack)-1]
}

// finish drops scopes left open at the end of the subsection.
func (w *scopeWalker) finish() {
	if len(w.stack) > 0 || w.endsToSkip > 0 {
		level.Warn(w.logger).Log("msg", "unterminated scopes", "open", len(w.stack), "skipped", w.endsToSkip)
	}
	w.stack = nil
	w.endsToSkip = 0
}
