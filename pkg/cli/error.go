// Copyright 2018 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package cli

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/volcano/pkg/cli/exit"
)

// Error is an error that determines the exit code of the process.
type Error struct {
	exitCode exit.Code
	cause    error
}

var _ error = (*Error)(nil)
var _ fmt.Formatter = (*Error)(nil)
var _ errors.SafeFormatter = (*Error)(nil)

// NewError wraps an error with the exit code the process should terminate
// with.
func NewError(cause error, exitCode exit.Code) error {
	return &Error{exitCode: exitCode, cause: cause}
}

// GetExitCode returns the exit code of the first Error in the chain of
// causes, or UnspecifiedError.
func GetExitCode(err error) exit.Code {
	var cliErr *Error
	if errors.As(err, &cliErr) {
		return cliErr.exitCode
	}
	return exit.UnspecifiedError()
}

// Error implements the error interface.
func (e *Error) Error() string { return e.cause.Error() }

// Cause implements causer.
func (e *Error) Cause() error { return e.cause }

// Unwrap implements the Go 1.13 wrapper interface.
func (e *Error) Unwrap() error { return e.cause }

// Format implements fmt.Formatter.
func (e *Error) Format(s fmt.State, verb rune) { errors.FormatError(e, s, verb) }

// SafeFormatError implements errors.SafeFormatter.
func (e *Error) SafeFormatError(p errors.Printer) (next error) {
	if p.Detail() {
		p.Printf("exit code: %d", e.exitCode.Int())
	}
	return e.cause
}
