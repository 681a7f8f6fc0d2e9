package loader

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every DecodeError also matches the sentinel of its Kind via errors.Is.
var (
	// ErrInvalidData marks a bounds or consistency violation (index or byte range out of range).
	ErrInvalidData = errors.New("invalid data")

	// ErrParse marks a structural violation (missing required field, wrong JSON type, unknown code).
	ErrParse = errors.New("parse error")

	// ErrCantOpen marks an external resource that could not be opened or fully read.
	ErrCantOpen = errors.New("cannot open resource")

	// ErrUnsupported marks a recognized document feature this loader does not implement.
	ErrUnsupported = errors.New("unsupported feature")

	// ErrImageAbsent is returned when waiting on an image that failed to materialize.
	ErrImageAbsent = errors.New("image absent")

	// ErrPoolClosed is returned for image decodes submitted to, or still queued on, a closed pool.
	ErrPoolClosed = errors.New("image worker pool closed")
)

// ErrorKind classifies a DecodeError.
type ErrorKind int

const (
	// KindStructural is a missing or malformed field.
	KindStructural ErrorKind = iota
	// KindBounds is an index or byte range outside its target.
	KindBounds
	// KindResource is an external file that cannot be opened or read.
	KindResource
	// KindUnsupported is a recognized but unimplemented feature.
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindStructural:
		return "structural"
	case KindBounds:
		return "bounds"
	case KindResource:
		return "resource"
	case KindUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// sentinel returns the package sentinel matched by errors of this kind.
func (k ErrorKind) sentinel() error {
	switch k {
	case KindBounds:
		return ErrInvalidData
	case KindResource:
		return ErrCantOpen
	case KindUnsupported:
		return ErrUnsupported
	default:
		return ErrParse
	}
}

// DecodeError locates a decode failure inside the source document.
// Index is -1 for top-level sections that are not arrays (e.g. "scene", "asset").
type DecodeError struct {
	Kind    ErrorKind
	Section string
	Index   int
	Field   string
	Err     error
}

func (e *DecodeError) Error() string {
	loc := e.Section
	if e.Index >= 0 {
		loc = fmt.Sprintf("%s[%d]", loc, e.Index)
	}
	if e.Field != "" {
		loc += "." + e.Field
	}
	return fmt.Sprintf("loader: %s: %s: %v", loc, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *DecodeError) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}

func newDecodeError(kind ErrorKind, section string, index int, field string, err error) *DecodeError {
	return &DecodeError{Kind: kind, Section: section, Index: index, Field: field, Err: err}
}

func structuralError(section string, index int, field string, format string, args ...any) *DecodeError {
	return newDecodeError(KindStructural, section, index, field, fmt.Errorf(format, args...))
}

func boundsError(section string, index int, field string, format string, args ...any) *DecodeError {
	return newDecodeError(KindBounds, section, index, field, fmt.Errorf(format, args...))
}

func unsupportedError(section string, index int, field string, format string, args ...any) *DecodeError {
	return newDecodeError(KindUnsupported, section, index, field, fmt.Errorf(format, args...))
}

func resourceError(section string, index int, field string, err error) *DecodeError {
	return newDecodeError(KindResource, section, index, field, err)
}
