package codeview

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrMissingSubsection indicates a required subsection is absent.
	ErrMissingSubsection = errors.New("codeview: missing required subsection")

	// ErrUnsupportedSignature indicates a CodeView signature other than
	// NB09/NB11 (embedded) or NB10/RSDS (external PDB).
	ErrUnsupportedSignature = errors.New("codeview: unsupported signature")

	// ErrTruncated indicates a header or subsection extends past the data.
	ErrTruncated = errors.New("codeview: truncated data")
)

// FormatError provides detailed information about a malformed structure.
type FormatError struct {
	Structure string // Structure being parsed
	Offset    int64  // Byte offset within the CodeView data
	Message   string // Description of the error
	Err       error  // Underlying error, if any
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codeview: malformed %s at offset 0x%x: %s: %v",
			e.Structure, e.Offset, e.Message, e.Err)
	}
	return fmt.Sprintf("codeview: malformed %s at offset 0x%x: %s",
		e.Structure, e.Offset, e.Message)
}

func (e *FormatError) Unwrap() error { return e.Err }
