// Package cdebug builds and queries the debug-information database of one
// module from its embedded VC50 CodeView data.
package cdebug

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrTypeNotFound indicates a type index has no type.
	ErrTypeNotFound = errors.New("cdebug: type not found")

	// ErrNotFieldList indicates a class, union or enum points at a record
	// that is not an LF_FIELDLIST.
	ErrNotFieldList = errors.New("cdebug: expected field list")
)

// DebuggerError is a fatal structural error that aborts the build of one
// module's database.
type DebuggerError struct {
	Op  string // Build stage that failed
	Err error  // Underlying error
}

func (e *DebuggerError) Error() string {
	return fmt.Sprintf("cdebug: %s: %v", e.Op, e.Err)
}

func (e *DebuggerError) Unwrap() error { return e.Err }

// PrimitiveTypeError reports a primitive type index whose bit pattern is
// outside every known range.
type PrimitiveTypeError struct {
	Index  TypeIndex
	Reason string
}

func (e *PrimitiveTypeError) Error() string {
	return fmt.Sprintf("cdebug: bad primitive type %#04x: %s", uint16(e.Index), e.Reason)
}
