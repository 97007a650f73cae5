package cdebug

import (
	"errors"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/skdltmxn/cv50-go/codeview"
	"github.com/skdltmxn/cv50-go/coff"
	"github.com/skdltmxn/cv50-go/internal/leaf"
)

// DefaultPointerSize is the size of a flat 32-bit pointer.
const DefaultPointerSize = 4

type options struct {
	logger      log.Logger
	pointerSize uint64
	listener    ResolveListener
}

// Option configures Build.
type Option func(*options)

// WithLogger sets the logger for decoding anomalies.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPointerSize sets the size in bytes of pointer types.
func WithPointerSize(size uint64) Option {
	return func(o *options) {
		if size > 0 {
			o.pointerSize = size
		}
	}
}

// WithListener sets the listener told about unresolved references. The
// default logs them as warnings.
func WithListener(l ResolveListener) Option {
	return func(o *options) {
		o.listener = l
	}
}

// builder carries the state of one Build call.
type builder struct {
	logger log.Logger
	img    codeview.Image
	base   uint64
	cv     *codeview.Stream
	segmap *codeview.SegmentMap
	types  *leaf.Stream
	db     *Database

	// anonEnum is shared by every enum without a name
	anonEnum *EnumType
}

// Build decodes the embedded CodeView data of img, loaded at base, into a
// closed Database. It returns nil and no error when the image carries no
// embedded VC50 data. Malformed records are logged and skipped; a
// *DebuggerError is returned only when the structure is unusable.
func Build(img codeview.Image, base uint64, opts ...Option) (*Database, error) {
	o := options{
		logger:      log.NewNopLogger(),
		pointerSize: DefaultPointerSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.listener == nil {
		o.listener = NewLogListener(o.logger)
	}

	cv, err := codeview.Locate(img)
	if err != nil {
		return nil, &DebuggerError{Op: "locate", Err: err}
	}
	if cv == nil {
		return nil, nil
	}

	b := &builder{
		logger: log.With(o.logger, "signature", cv.Signature),
		img:    img,
		base:   base,
		cv:     cv,
		db:     NewDatabase(o.pointerSize),
	}
	b.db.BeginConstruction()

	if err := b.readDirectory(); err != nil {
		return nil, err
	}
	if err := b.decodeTypes(); err != nil {
		return nil, err
	}
	b.decodeSymbols()
	b.decodeLines()

	b.db.Resolve(o.listener)
	b.db.EndConstruction()

	s := b.db.Stats()
	level.Debug(b.logger).Log("msg", "debug info built", "types", s.Types, "globals", s.Globals,
		"blocks", s.Blocks, "lines", s.Lines, "unresolved", s.Unresolved)
	return b.db, nil
}

// readDirectory loads the subsections every later stage depends on.
func (b *builder) readDirectory() error {
	if sub, ok := b.cv.Lookup(codeview.SstSegMap); ok {
		m, err := codeview.ParseSegmentMap(sub.Data)
		if err != nil {
			level.Warn(b.logger).Log("msg", "ignoring malformed segment map", "err", err)
		} else {
			b.segmap = m
		}
	}

	sub, err := b.cv.Require(codeview.SstGlobalTypes)
	if err != nil {
		return &DebuggerError{Op: "types", Err: err}
	}
	if b.types, err = leaf.ParseStream(sub.Data); err != nil {
		return &DebuggerError{Op: "types", Err: err}
	}

	mods, err := b.cv.Modules()
	if err != nil {
		level.Warn(b.logger).Log("msg", "ignoring malformed module descriptor", "err", err)
	}
	b.db.SetModules(mods)
	return nil
}

// address converts a segment:offset pair to a virtual address.
func (b *builder) address(segment uint16, offset uint32) (uint64, error) {
	segment, offset = b.segmap.Map(segment, offset)
	sh, err := b.img.SectionHeader(int(segment))
	if err != nil {
		return 0, err
	}
	return b.base + uint64(sh.VirtualAddress) + uint64(offset), nil
}

// sectionEnd returns the end of the section holding segment.
func (b *builder) sectionEnd(segment uint16) (uint64, error) {
	segment, _ = b.segmap.Map(segment, 0)
	sh, err := b.img.SectionHeader(int(segment))
	if err != nil {
		return 0, err
	}
	return b.base + uint64(sh.VirtualAddress) + uint64(sh.VirtualSize), nil
}

// typeRef returns the type for an index referenced from a record.
// Primitives are decoded directly; user types already decoded are used as
// is and anything else becomes a lazy reference.
func (b *builder) typeRef(ti leaf.TypeIndex) (Type, error) {
	idx := TypeIndex(ti)
	if ti.IsPrimitive() {
		return b.db.prims.lookup(idx)
	}
	if t, ok := b.db.types[idx]; ok {
		if _, lazy := t.(*LazyType); !lazy {
			return t, nil
		}
	}
	return &LazyType{index: idx}, nil
}

// isFatal reports whether err must abort the build.
func isFatal(err error) bool {
	var de *DebuggerError
	return errors.As(err, &de)
}

var _ codeview.Image = (*coff.File)(nil)
