// Package debugger keeps per-module debug info for an attached process and
// answers address queries against it.
package debugger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skdltmxn/cv50-go/cdebug"
)

// Errors
var (
	ErrNotAttached     = errors.New("debugger: not attached")
	ErrAlreadyAttached = errors.New("debugger: already attached")
	ErrModuleLoaded    = errors.New("debugger: module already loaded")
	ErrModuleNotFound  = errors.New("debugger: module not loaded")
	ErrModuleOverlap   = errors.New("debugger: module overlaps a loaded module")
)

// NativeBridge is the OS debugging interface for one target process.
type NativeBridge interface {
	Attach(pid int) error
	Detach() error

	// ReadMemory fills buf from the target at addr or fails.
	ReadMemory(addr uint64, buf []byte) error

	// LookupSymbol is a best-effort native address lookup.
	LookupSymbol(addr uint64) (name string, offset uint64, ok bool)
}

// Symbol is a named location near an address.
type Symbol struct {
	Name   string
	Offset uint64
	Module string
}

// Debugger serializes every operation on one mutex.
type Debugger struct {
	mu sync.Mutex

	logger  log.Logger
	cfg     Config
	metrics *metrics
	bridge  NativeBridge
	open    Opener

	attached bool
	pid      int
	modules  []*Module // sorted by base
	pages    *pageCache
}

// New returns a detached debugger. A nil bridge limits it to offline use:
// Attach and ReadMemory fail, and symbol lookups skip the native path.
func New(logger log.Logger, cfg Config, reg prometheus.Registerer, bridge NativeBridge, open Opener) (*Debugger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if open == nil {
		open = OpenImage
	}

	d := &Debugger{
		logger:  logger,
		cfg:     cfg,
		metrics: newMetrics(reg),
		bridge:  bridge,
		open:    open,
	}
	var err error
	d.pages, err = newPageCache(d.readNative, cfg.PageSize, cfg.CachePages, d.metrics)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Debugger) readNative(addr uint64, buf []byte) error {
	return d.bridge.ReadMemory(addr, buf)
}

// Attach attaches to the process pid.
func (d *Debugger) Attach(pid int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.attached {
		return fmt.Errorf("%w to %d", ErrAlreadyAttached, d.pid)
	}
	if d.bridge == nil {
		return errors.New("debugger: no native bridge")
	}
	if err := d.bridge.Attach(pid); err != nil {
		return fmt.Errorf("attaching to %d: %w", pid, err)
	}
	d.attached = true
	d.pid = pid
	level.Info(d.logger).Log("msg", "attached", "pid", pid)
	return nil
}

// Detach detaches from the target, unloading every module and dropping
// cached memory.
func (d *Debugger) Detach() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.attached {
		return ErrNotAttached
	}
	err := d.bridge.Detach()
	d.pages.Purge()
	for _, m := range d.modules {
		d.closeModule(m)
	}
	d.modules = nil
	d.attached = false
	level.Info(d.logger).Log("msg", "detached", "pid", d.pid)
	if err != nil {
		return fmt.Errorf("detaching from %d: %w", d.pid, err)
	}
	return nil
}

// Attached reports whether a process is attached.
func (d *Debugger) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached
}

// LoadModule registers the image at path as loaded at base. Debug info
// is read on the first query that needs it.
func (d *Debugger) LoadModule(path string, base uint64) (*Module, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.findByPath(path); ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleLoaded, path)
	}
	img, err := d.open(path)
	if err != nil {
		return nil, fmt.Errorf("opening module %s: %w", path, err)
	}
	m, err := newModule(path, base, img)
	if err != nil {
		img.Close()
		return nil, fmt.Errorf("reading module %s: %w", path, err)
	}
	for _, other := range d.modules {
		if m.base < other.base+other.size && other.base < m.base+m.size {
			img.Close()
			return nil, fmt.Errorf("%w: %s and %s", ErrModuleOverlap, m, other)
		}
	}

	i := sort.Search(len(d.modules), func(i int) bool { return d.modules[i].base > base })
	d.modules = append(d.modules, nil)
	copy(d.modules[i+1:], d.modules[i:])
	d.modules[i] = m
	level.Debug(d.logger).Log("msg", "module loaded", "module", path, "base", fmt.Sprintf("%#x", base), "size", m.size)
	return m, nil
}

// UnloadModule forgets the module loaded from path.
func (d *Debugger) UnloadModule(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.findByPath(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, path)
	}
	d.closeModule(m)
	d.modules = removeModule(d.modules, m)
	return nil
}

func removeModule(mods []*Module, m *Module) []*Module {
	for i, other := range mods {
		if other == m {
			return append(mods[:i], mods[i+1:]...)
		}
	}
	return mods
}

func (d *Debugger) closeModule(m *Module) {
	if err := m.img.Close(); err != nil {
		level.Warn(d.logger).Log("msg", "closing module image", "module", m.path, "err", err)
	}
	level.Debug(d.logger).Log("msg", "module unloaded", "module", m.path)
}

// Modules returns the loaded modules ordered by base address.
func (d *Debugger) Modules() []*Module {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Module(nil), d.modules...)
}

// DebugInfoForPC returns the innermost block containing pc, or nil when
// no module with debug info covers it.
func (d *Debugger) DebugInfoForPC(pc uint64) cdebug.Block {
	d.mu.Lock()
	defer d.mu.Unlock()

	db := d.databaseForPC(pc)
	if db == nil {
		return nil
	}
	return db.DebugInfoForPC(pc)
}

// LineNumberForPC returns the source line containing pc.
func (d *Debugger) LineNumberForPC(pc uint64) (*cdebug.LineNumberInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	db := d.databaseForPC(pc)
	if db == nil {
		return nil, false
	}
	return db.LineNumberForPC(pc)
}

// ClosestSymbolToPC names the location of pc. The native bridge is asked
// first; the export table of the module covering pc is the fallback.
func (d *Debugger) ClosestSymbolToPC(pc uint64) (Symbol, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, _ := d.findByPC(pc)
	if d.attached {
		if name, off, ok := d.bridge.LookupSymbol(pc); ok {
			sym := Symbol{Name: name, Offset: off}
			if m != nil {
				sym.Module = m.path
			}
			return sym, true
		}
	}
	if m == nil {
		return Symbol{}, false
	}

	sym, ok, err := m.closestExport(pc)
	if err != nil {
		level.Warn(d.logger).Log("msg", "reading export table", "module", m.path, "err", err)
		return Symbol{}, false
	}
	return sym, ok
}

// ReadMemory reads len(buf) bytes of target memory at addr.
func (d *Debugger) ReadMemory(addr uint64, buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.attached {
		return 0, ErrNotAttached
	}
	return d.pages.ReadAt(buf, addr)
}

// Database returns the debug info of the module loaded from path, building
// it if needed. It returns (nil, nil) when the module carries no debug info
// and the build error when its debug info could not be used.
func (d *Debugger) Database(path string) (*cdebug.Database, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.findByPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, path)
	}
	if db := d.database(m); db != nil {
		return db, nil
	}
	return nil, m.err
}

func (d *Debugger) findByPath(path string) (*Module, bool) {
	for _, m := range d.modules {
		if m.path == path {
			return m, true
		}
	}
	return nil, false
}

func (d *Debugger) findByPC(pc uint64) (*Module, bool) {
	i := sort.Search(len(d.modules), func(i int) bool { return d.modules[i].base > pc })
	if i == 0 || !d.modules[i-1].Contains(pc) {
		return nil, false
	}
	return d.modules[i-1], true
}

func (d *Debugger) databaseForPC(pc uint64) *cdebug.Database {
	m, ok := d.findByPC(pc)
	if !ok {
		return nil
	}
	return d.database(m)
}

// database builds the module's database once. Absent or unusable debug
// info is remembered as no symbols.
func (d *Debugger) database(m *Module) *cdebug.Database {
	if m.built {
		return m.db
	}
	m.built = true

	logger := log.With(d.logger, "module", m.path)
	opts := []cdebug.Option{
		cdebug.WithLogger(logger),
		cdebug.WithPointerSize(d.cfg.PointerSize),
	}
	var collected *cdebug.CollectingListener
	if d.cfg.StrictResolve {
		collected = &cdebug.CollectingListener{}
		opts = append(opts, cdebug.WithListener(collected))
	}

	start := time.Now()
	db, err := cdebug.Build(m.img, m.base, opts...)
	d.metrics.buildDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		d.metrics.builds.WithLabelValues(outcomeFailed).Inc()
		level.Error(logger).Log("msg", "failed to read debug info", "err", err)
		m.err = err
		return nil
	case db == nil:
		d.metrics.builds.WithLabelValues(outcomeAbsent).Inc()
		level.Debug(logger).Log("msg", "no embedded debug info")
		return nil
	}

	d.metrics.unresolved.Add(float64(db.Stats().Unresolved))
	if collected != nil && collected.Count() > 0 {
		d.metrics.builds.WithLabelValues(outcomeFailed).Inc()
		m.err = collected.Err()
		level.Error(logger).Log("msg", "discarding debug info with unresolved references", "count", collected.Count())
		return nil
	}

	d.metrics.builds.WithLabelValues(outcomeSymbols).Inc()
	m.db = db
	return db
}
