// Package errors provides structured error handling for the flattening pipelines.
//
// Errors carry a Type that encodes how the orchestrator reacts to them:
//
//	archive    fatal, no records can be produced
//	decode     recoverable, the record is skipped and counted
//	normalize  recoverable, the record is skipped and counted
//	write      fatal, earlier batches stay intact
//	config     fatal, raised before any work starts
//	load       fatal to the warehouse load of one table
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"

	"go.uber.org/zap"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeArchive represents failures opening or reading the input archive
	ErrorTypeArchive ErrorType = "archive"
	// ErrorTypeDecode represents a single archive member that is not valid JSON
	// of the expected shape
	ErrorTypeDecode ErrorType = "decode"
	// ErrorTypeNormalize represents a document that could not be flattened
	ErrorTypeNormalize ErrorType = "normalize"
	// ErrorTypeWrite represents output unit write failures
	ErrorTypeWrite ErrorType = "write"
	// ErrorTypeSchema represents a produced file whose schema disagrees with
	// the declared column types
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeLoad represents warehouse staging or load job failures
	ErrorTypeLoad ErrorType = "load"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	wrapped := &Error{Type: errType, Message: message, Cause: err}
	var inner *Error
	if errors.As(err, &inner) {
		wrapped.Stack = inner.Stack
	} else {
		wrapped.Stack = captureStack(2)
	}
	return wrapped
}

// IsRecoverable reports whether err only invalidates the record that produced it.
// The outermost structured error decides.
func IsRecoverable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeDecode, ErrorTypeNormalize:
		return true
	default:
		return false
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// Is mirrors the standard library so callers need a single errors import
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As mirrors the standard library so callers need a single errors import
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Fields renders err as zap fields: the error itself, its type and every
// detail of the outermost structured error, keys sorted
func Fields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var e *Error
	if !errors.As(err, &e) {
		return fields
	}

	fields = append(fields, zap.String("error_type", string(e.Type)))
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, e.Details[k]))
	}
	return fields
}

const maxFrames = 32

// captureStack records the callers above the skip frames
func captureStack(skip int) []StackFrame {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]StackFrame, 0, n)
	for {
		f, more := frames.Next()
		stack = append(stack, StackFrame{Function: f.Function, File: f.File, Line: f.Line})
		if !more {
			break
		}
	}
	return stack
}
