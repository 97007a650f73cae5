package cdebug

import (
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
)

// ResolveListener is told about every reference Resolve could not link.
// Failures are never fatal; the reference is left in its lazy form.
type ResolveListener interface {
	// TypeFailed reports a type reference inside containing.
	TypeFailed(containing Type, ref *LazyType, detail string)

	// StaticFieldFailed reports a static member with no global storage.
	StaticFieldFailed(containing Type, field *Field, detail string)

	// SymbolTypeFailed reports the type reference of a symbol.
	SymbolTypeFailed(sym Sym, ref *LazyType, detail string)

	// ParentBlockFailed reports a scope whose parent key names no block.
	ParentBlockFailed(block Block, parent BlockKey, detail string)
}

// ResolveError describes one unresolved reference.
type ResolveError struct {
	Owner  string
	Target string
	Detail string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("unresolved %s in %s: %s", e.Target, e.Owner, e.Detail)
}

// LogListener logs resolution failures as warnings.
type LogListener struct {
	Logger log.Logger
}

// NewLogListener returns a listener writing to logger.
func NewLogListener(logger log.Logger) *LogListener {
	return &LogListener{Logger: logger}
}

func (l *LogListener) warn(err *ResolveError) {
	level.Warn(l.Logger).Log("msg", "failed to resolve reference", "owner", err.Owner, "target", err.Target, "detail", err.Detail)
}

func (l *LogListener) TypeFailed(containing Type, ref *LazyType, detail string) {
	l.warn(typeFailure(containing, ref, detail))
}

func (l *LogListener) StaticFieldFailed(containing Type, field *Field, detail string) {
	l.warn(staticFailure(containing, field, detail))
}

func (l *LogListener) SymbolTypeFailed(sym Sym, ref *LazyType, detail string) {
	l.warn(symbolFailure(sym, ref, detail))
}

func (l *LogListener) ParentBlockFailed(block Block, parent BlockKey, detail string) {
	l.warn(parentFailure(block, parent, detail))
}

// CollectingListener accumulates every failure into one error.
type CollectingListener struct {
	mu     sync.Mutex
	result *multierror.Error
	count  int
}

func (c *CollectingListener) add(err *ResolveError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = multierror.Append(c.result, err)
	c.count++
}

// Count returns the number of failures seen.
func (c *CollectingListener) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Err returns the accumulated failures, or nil.
func (c *CollectingListener) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result.ErrorOrNil()
}

func (c *CollectingListener) TypeFailed(containing Type, ref *LazyType, detail string) {
	c.add(typeFailure(containing, ref, detail))
}

func (c *CollectingListener) StaticFieldFailed(containing Type, field *Field, detail string) {
	c.add(staticFailure(containing, field, detail))
}

func (c *CollectingListener) SymbolTypeFailed(sym Sym, ref *LazyType, detail string) {
	c.add(symbolFailure(sym, ref, detail))
}

func (c *CollectingListener) ParentBlockFailed(block Block, parent BlockKey, detail string) {
	c.add(parentFailure(block, parent, detail))
}

// multiListener fans a failure out to several listeners.
type multiListener []ResolveListener

func (m multiListener) TypeFailed(containing Type, ref *LazyType, detail string) {
	for _, l := range m {
		l.TypeFailed(containing, ref, detail)
	}
}

func (m multiListener) StaticFieldFailed(containing Type, field *Field, detail string) {
	for _, l := range m {
		l.StaticFieldFailed(containing, field, detail)
	}
}

func (m multiListener) SymbolTypeFailed(sym Sym, ref *LazyType, detail string) {
	for _, l := range m {
		l.SymbolTypeFailed(sym, ref, detail)
	}
}

func (m multiListener) ParentBlockFailed(block Block, parent BlockKey, detail string) {
	for _, l := range m {
		l.ParentBlockFailed(block, parent, detail)
	}
}

func typeFailure(containing Type, ref *LazyType, detail string) *ResolveError {
	return &ResolveError{
		Owner:  describeType(containing),
		Target: fmt.Sprintf("type %#04x", uint16(ref.index)),
		Detail: detail,
	}
}

func staticFailure(containing Type, field *Field, detail string) *ResolveError {
	return &ResolveError{
		Owner:  describeType(containing),
		Target: "static field " + field.Name,
		Detail: detail,
	}
}

func symbolFailure(sym Sym, ref *LazyType, detail string) *ResolveError {
	return &ResolveError{
		Owner:  sym.Kind().String() + " " + sym.Name(),
		Target: fmt.Sprintf("type %#04x", uint16(ref.index)),
		Detail: detail,
	}
}

func parentFailure(block Block, parent BlockKey, detail string) *ResolveError {
	return &ResolveError{
		Owner:  block.Kind().String() + " " + block.Name(),
		Target: "parent block " + parent.String(),
		Detail: detail,
	}
}

func describeType(t Type) string {
	if t == nil {
		return "type table"
	}
	if name := t.Name(); name != "" {
		return t.Kind().String() + " " + name
	}
	return t.Kind().String()
}
