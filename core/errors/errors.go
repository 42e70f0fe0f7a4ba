// Package errors provides the error taxonomy shared by all readers and writers.
//
// Every fatal condition of a conversion is one of the typed errors below. Each
// type unwraps to one of the sentinel errors, so callers can branch on the
// category with errors.Is and still recover the details with errors.As.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the error categories
var (
	// ErrGrammar indicates malformed input syntax
	ErrGrammar = errors.New("grammar error")
	// ErrUnsupported indicates a valid construct that is not modeled
	ErrUnsupported = errors.New("unsupported")
	// ErrConsistency indicates document content that would produce wrong output
	ErrConsistency = errors.New("consistency error")
	// ErrResourceLimit indicates a configured size cap was exceeded
	ErrResourceLimit = errors.New("resource limit exceeded")
	// ErrReference indicates a reference to an element that was not declared (yet)
	ErrReference = errors.New("unresolved reference")
)

// ParseError represents a grammar violation found by a reader. Offset is the
// byte offset of the offending input, Line and Column are 1-based.
type ParseError struct {
	Format  string // Format being read (e.g., "nexus", "nexml")
	Offset  int64
	Line    int
	Column  int
	Message string
	Err     error // Underlying error, if any
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	if e.Format != "" {
		sb.WriteString(e.Format)
		sb.WriteString(": ")
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, "line %d, column %d (offset %d): ", e.Line, e.Column, e.Offset)
	}
	sb.WriteString(e.Message)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrGrammar, e.Err}
	}
	return []error{ErrGrammar}
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature that is unsupported
	Reason  string // Why it's not supported
	Err     error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// ConsistencyError reports adapter content that cannot be written correctly.
type ConsistencyError struct {
	ElementID string
	Message   string
}

func (e *ConsistencyError) Error() string {
	if e.ElementID != "" {
		return fmt.Sprintf("inconsistent element %q: %s", e.ElementID, e.Message)
	}
	return "inconsistent document: " + e.Message
}

func (e *ConsistencyError) Unwrap() error {
	return ErrConsistency
}

// DuplicateIDError reports an id used by more than one element of a document.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate id %q", e.ID)
}

func (e *DuplicateIDError) Unwrap() error {
	return ErrConsistency
}

// DanglingLinkError reports a link whose target is never declared.
type DanglingLinkError struct {
	From string // id of the linking element
	To   string // id of the missing target
	Kind string // content type of the expected target
}

func (e *DanglingLinkError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("element %q links to undeclared %s %q", e.From, e.Kind, e.To)
	}
	return fmt.Sprintf("element %q links to undeclared element %q", e.From, e.To)
}

func (e *DanglingLinkError) Unwrap() error {
	return ErrConsistency
}

// CircularReferenceError reports a set that references itself directly or
// through other sets. Path lists the set ids from SetID back to SetID.
type CircularReferenceError struct {
	SetID string
	Path  []string
}

func (e *CircularReferenceError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("circular set reference: %s", strings.Join(e.Path, " -> "))
	}
	return fmt.Sprintf("circular set reference in %q", e.SetID)
}

func (e *CircularReferenceError) Unwrap() error {
	return ErrConsistency
}

// ReferenceError reports a reader-side reference to a block or set that has
// not been declared earlier in the stream.
type ReferenceError struct {
	Kind   string // e.g. "TAXA block", "CHARSET"
	Name   string
	Offset int64
	Line   int
	Column int
}

func (e *ReferenceError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d, column %d: reference to %s %q which was not declared before", e.Line, e.Column, e.Kind, e.Name)
	}
	return fmt.Sprintf("reference to %s %q which was not declared before", e.Kind, e.Name)
}

func (e *ReferenceError) Unwrap() error {
	return ErrReference
}

// ResourceLimitError reports a value that exceeds a configured cap.
type ResourceLimitError struct {
	Limit  string // name of the parameter, e.g. "MaxCommentLength"
	Value  int
	Max    int
	Offset int64
	Line   int
	Column int
}

func (e *ResourceLimitError) Error() string {
	msg := fmt.Sprintf("%s exceeded: %d > %d", e.Limit, e.Value, e.Max)
	if e.Line > 0 {
		return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, msg)
	}
	return msg
}

func (e *ResourceLimitError) Unwrap() error {
	return ErrResourceLimit
}

// Helper functions for creating common errors

// NewParse creates a ParseError without position information.
func NewParse(format, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Message: message,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// NewConsistency creates a ConsistencyError
func NewConsistency(elementID, format string, args ...any) *ConsistencyError {
	return &ConsistencyError{
		ElementID: elementID,
		Message:   fmt.Sprintf(format, args...),
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

// New wraps errors.New for convenience
func New(text string) error {
	return errors.New(text)
}
