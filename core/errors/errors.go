// Package errors provides the typed errors shared by the alignment engine,
// the layer readers and the transfer pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below unwraps to one of these so callers
// can branch with errors.Is without knowing the concrete type.
var (
	// ErrNotFound indicates a layer, artifact or segment was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrMalformedRange indicates an index-range string could not be parsed
	ErrMalformedRange = errors.New("malformed index range")
	// ErrInvalidSpan indicates a span violates start < end or has negative offsets
	ErrInvalidSpan = errors.New("invalid span")
	// ErrMissingCorrespondence indicates a required mapping entry is absent
	ErrMissingCorrespondence = errors.New("missing correspondence")
)

// MalformedRangeError is returned when an index-range metadata string
// ("3,5-7") fails to parse.
type MalformedRangeError struct {
	Input  string // Full string that was parsed
	Token  string // Offending token, if one could be isolated
	Reason string // Why the token was rejected
	Err    error  // Underlying parser error, if any
}

func (e *MalformedRangeError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("malformed index range %q: token %q: %s", e.Input, e.Token, e.Reason)
	}
	return fmt.Sprintf("malformed index range %q: %s", e.Input, e.Reason)
}

func (e *MalformedRangeError) Unwrap() error {
	if e.Err != nil {
		return errors.Join(ErrMalformedRange, e.Err)
	}
	return ErrMalformedRange
}

// InvalidSpanError is returned when a segment span is empty, inverted or
// negative. Spans are never clamped.
type InvalidSpanError struct {
	Layer  string // Layer the segment belongs to, if known
	Index  int    // Segment index
	Start  int
	End    int
	Reason string
}

func (e *InvalidSpanError) Error() string {
	if e.Layer != "" {
		return fmt.Sprintf("invalid span [%d,%d) for segment %d in layer %s: %s", e.Start, e.End, e.Index, e.Layer, e.Reason)
	}
	return fmt.Sprintf("invalid span [%d,%d) for segment %d: %s", e.Start, e.End, e.Index, e.Reason)
}

func (e *InvalidSpanError) Unwrap() error {
	return ErrInvalidSpan
}

// MissingCorrespondenceError is returned by APIs that require at least one
// mapped target for a source index.
type MissingCorrespondenceError struct {
	Source int    // Source index with no mapped target
	Hop    string // Optional description of the mapping hop
}

func (e *MissingCorrespondenceError) Error() string {
	if e.Hop != "" {
		return fmt.Sprintf("no correspondence for index %d (%s)", e.Source, e.Hop)
	}
	return fmt.Sprintf("no correspondence for index %d", e.Source)
}

func (e *MissingCorrespondenceError) Unwrap() error {
	return ErrMissingCorrespondence
}

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "layer", "artifact", "job")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return errors.Join(ErrNotFound, e.Err)
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return errors.Join(ErrInvalidInput, e.Err)
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "JSON", "XML", "TOML")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return errors.Join(ErrInvalidInput, e.Err)
	}
	return ErrInvalidInput
}

// NewMalformedRange creates a MalformedRangeError
func NewMalformedRange(input, token, reason string) *MalformedRangeError {
	return &MalformedRangeError{
		Input:  input,
		Token:  token,
		Reason: reason,
	}
}

// NewInvalidSpan creates an InvalidSpanError
func NewInvalidSpan(index, start, end int, reason string) *InvalidSpanError {
	return &InvalidSpanError{
		Index:  index,
		Start:  start,
		End:    end,
		Reason: reason,
	}
}

// NewMissingCorrespondence creates a MissingCorrespondenceError
func NewMissingCorrespondence(source int) *MissingCorrespondenceError {
	return &MissingCorrespondenceError{Source: source}
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
