// Package errors defines the coded errors shared by the emerl packages.
//
// Callers that need to branch on an error category check its [Code]:
//
//	lookup, err := lut.Build(seg, positions, nil, opts)
//	if errors.Is(err, errors.ErrCodeOutOfRange) {
//	    // a node lies outside the segmentation
//	}
//
// Only the outermost *Error in a chain is consulted, so wrapping with a new
// code replaces the category seen by callers.
package errors

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error category.
type Code string

const (
	// Bad input or option combinations.
	ErrCodeInvalidInput       Code = "INVALID_INPUT"
	ErrCodeOutOfRange         Code = "OUT_OF_RANGE"
	ErrCodeConflictingOptions Code = "CONFLICTING_OPTIONS"
	ErrCodeInvalidKey         Code = "INVALID_KEY"

	// Absent artifacts.
	ErrCodeNotFound    Code = "NOT_FOUND"
	ErrCodeMissingTile Code = "MISSING_TILE"

	// Artifact contents and storage backends.
	ErrCodeCorrupt Code = "CORRUPT_ARTIFACT"
	ErrCodeStorage Code = "STORAGE_ERROR"

	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error carries a code, a message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New returns an error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an error with a formatted message around cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	e := New(code, format, args...)
	e.Cause = cause
	return e
}

// Is reports whether the outermost *Error in err's chain has code.
func Is(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// GetCode returns the code of the outermost *Error in err's chain, or ""
// when there is none.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns the message of the outermost *Error without its code,
// or err.Error() for uncoded errors.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
