// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

package dnnlib

import (
	"fmt"

	"github.com/pkg/errors"
)

// Status is the library's numeric failure code.
type Status int

const (
	// StatusSuccess is never carried by an Error.
	StatusSuccess Status = iota

	// StatusOutOfMemory indicates the library could not allocate scratch space.
	StatusOutOfMemory

	// StatusInvalidArguments indicates a problem description the library
	// rejects: mismatched ranks, out-of-range axis, unbound sizes.
	StatusInvalidArguments

	// StatusUnimplemented indicates a valid problem the library has no
	// implementation for on this engine: unsupported dtypes, blocked formats.
	StatusUnimplemented

	// StatusRuntimeError indicates a failure during primitive execution,
	// e.g. memory objects still bound to DummyData.
	StatusRuntimeError
)

var statusNames = [...]string{"success", "out_of_memory", "invalid_arguments", "unimplemented", "runtime_error"}

// String implements fmt.Stringer.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Error is the failure type returned by every fallible call in the library.
// It carries the numeric Status and a human-readable message.
type Error struct {
	Status  Status
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("dnnlib: %s (status %d): %s", e.Status, int(e.Status), e.Message)
}

// Errorf creates an *Error with the given status and formatted message.
func Errorf(status Status, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts the library *Error from err's chain, if there is one.
func AsError(err error) (*Error, bool) {
	var libErr *Error
	ok := errors.As(err, &libErr)
	return libErr, ok
}
