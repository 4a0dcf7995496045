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

package log

import (
	"bytes"
	"io"
	"sync"
)

// tShim is the subset of testing.TB used here. It avoids importing the
// testing package outside of tests.
type tShim interface {
	Helper()
	Failed() bool
	Logf(format string, args ...interface{})
}

// TestLogScope captures the log entries written during a test. Use it as
// follows:
//
//	defer log.Scope(t).Close(t)
//
// The captured entries are reported through t.Logf if the test fails.
type TestLogScope struct {
	prevOut       io.Writer
	prevVerbosity int32

	mu  sync.Mutex
	buf bytes.Buffer
}

// Scope starts capturing log entries for the duration of a test.
func Scope(t tShim) *TestLogScope {
	t.Helper()
	s := &TestLogScope{}
	s.prevOut = SetOutput(s)
	s.prevVerbosity = logging.verbosity.Load()
	return s
}

// Write implements io.Writer.
func (s *TestLogScope) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

// String returns the captured log entries.
func (s *TestLogScope) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Close restores the previous log output and verbosity.
func (s *TestLogScope) Close(t tShim) {
	t.Helper()
	SetOutput(s.prevOut)
	SetVerbosity(s.prevVerbosity)
	if t.Failed() && s.buf.Len() > 0 {
		t.Logf("captured logs:\n%s", s.String())
	}
}
