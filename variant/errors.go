// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package variant

import (
	"fmt"

	"github.com/gogpu/gcn/parts"
)

// ErrorKind categorizes variant selection errors.
type ErrorKind uint8

const (
	// ErrCompileFailed indicates the variant's compilation failed; the
	// failure is remembered and the draw should be skipped.
	ErrCompileFailed ErrorKind = iota

	// ErrOptimizedUnavailable indicates the caller required the optimized
	// variant and it is still compiling.
	ErrOptimizedUnavailable

	// ErrSelectorDestroyed indicates selection after Destroy.
	ErrSelectorDestroyed
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrCompileFailed:
		return "CompileFailed"
	case ErrOptimizedUnavailable:
		return "OptimizedUnavailable"
	case ErrSelectorDestroyed:
		return "SelectorDestroyed"
	default:
		return "Unknown"
	}
}

// Error represents a variant selection error.
type Error struct {
	// Kind categorizes the error.
	Kind ErrorKind

	// Stage is the selector's shader stage.
	Stage parts.Stage

	// Message provides details about the error.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("variant %s (%s): %s: %v", e.Kind, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("variant %s (%s): %s", e.Kind, e.Stage, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }
