// Copyright 2015 The Cockroach Authors.
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

// Package log is a small leveled logger. Entries carry the logging tags
// attached to the context, and their arguments are rendered with redaction
// markers stripped.
package log

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Severity is the severity of a log entry.
type Severity int32

// Supported severities.
const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "I"
	case SeverityWarning:
		return "W"
	case SeverityError:
		return "E"
	}
	return "?"
}

var logging struct {
	mu        sync.Mutex
	out       io.Writer
	verbosity atomic.Int32
}

func init() {
	logging.out = os.Stderr
}

// SetOutput redirects log entries to w and returns the previous output.
func SetOutput(w io.Writer) io.Writer {
	logging.mu.Lock()
	defer logging.mu.Unlock()
	prev := logging.out
	logging.out = w
	return prev
}

// SetVerbosity sets the verbosity level and returns the previous one.
func SetVerbosity(level int32) int32 {
	return logging.verbosity.Swap(level)
}

// V returns true if the verbosity is at least the given level.
func V(level int32) bool {
	return logging.verbosity.Load() >= level
}

// Infof logs to the INFO severity.
func Infof(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, SeverityInfo, format, args)
}

// Warningf logs to the WARNING severity.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, SeverityWarning, format, args)
}

// Errorf logs to the ERROR severity.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, SeverityError, format, args)
}

// VEventf logs to the INFO severity if the verbosity is at least the given
// level.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	if V(level) {
		addStructured(ctx, SeverityInfo, format, args)
	}
}
