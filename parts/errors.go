// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package parts

import "fmt"

// ErrorKind categorizes part compilation errors.
type ErrorKind uint8

const (
	// ErrBackend indicates the code-generation backend failed.
	ErrBackend ErrorKind = iota

	// ErrRegisterBudget indicates the compiled program exceeds a hard
	// register limit of its hardware role.
	ErrRegisterBudget

	// ErrInternalError indicates an internal compiler error.
	ErrInternalError
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrBackend:
		return "Backend"
	case ErrRegisterBudget:
		return "RegisterBudget"
	case ErrInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Error represents a part compilation error.
type Error struct {
	// Kind categorizes the error.
	Kind ErrorKind

	// Part identifies the part kind being compiled.
	Part Kind

	// Message provides details about the error.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parts %s (%s): %s: %v", e.Kind, e.Part, e.Message, e.Err)
	}
	return fmt.Sprintf("parts %s (%s): %s", e.Kind, e.Part, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

func backendErr(part Kind, msg string, err error) *Error {
	return &Error{Kind: ErrBackend, Part: part, Message: msg, Err: err}
}
