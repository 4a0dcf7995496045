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

// Package exit defines the process exit codes of the volcano command.
package exit

import "os"

// Code represents an exit code.
type Code struct {
	code int
}

// Int retrieves the integer value of the exit code.
func (c Code) Int() int { return c.code }

// WithCode terminates the process with the given code.
func WithCode(code Code) {
	os.Exit(code.code)
}

// Codes that are common to all commands follow.

// Success (0) represents a normal process termination.
func Success() Code { return Code{0} }

// UnspecifiedError (1) indicates the process has terminated with an
// error condition. The specific cause of the error can be found in
// the logging output.
func UnspecifiedError() Code { return Code{1} }

// UnspecifiedGoPanic (2) indicates the process has terminated due to
// an uncaught Go panic or some other error in the Go runtime.
func UnspecifiedGoPanic() Code { return Code{2} }

// CommandLineFlagError (4) indicates there was an error in the
// command-line parameters or in the scenario file.
func CommandLineFlagError() Code { return Code{4} }

// Codes that are specific to commands follow. They are allocated down
// from 125.

// 'plan' exit codes.

// NoPlanFound indicates that the search ended without finding a plan of
// finite cost for the root.
func NoPlanFound() Code { return Code{125} }
