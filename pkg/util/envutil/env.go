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

// Package envutil reads configuration defaults from environment variables.
package envutil

import (
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// checkVarName panics on names that do not follow the VOLCANO_ convention.
func checkVarName(name string) {
	if !strings.HasPrefix(name, "VOLCANO_") {
		panic(errors.AssertionFailedf("invalid env var %q: must start with VOLCANO_", name))
	}
	for _, c := range name {
		if !(c == '_' || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			panic(errors.AssertionFailedf("invalid env var %q: must be upper case", name))
		}
	}
}

// EnvString returns the value of the environment variable and whether it was
// set.
func EnvString(name string) (string, bool) {
	checkVarName(name)
	return os.LookupEnv(name)
}

// EnvOrDefaultBool returns the value of the environment variable parsed as a
// boolean, or def if it is not set. It panics if the value cannot be parsed.
func EnvOrDefaultBool(name string, def bool) bool {
	if s, ok := EnvString(name); ok {
		v, err := strconv.ParseBool(s)
		if err != nil {
			panic(errors.Wrapf(err, "error parsing %s", name))
		}
		return v
	}
	return def
}

// EnvOrDefaultInt returns the value of the environment variable parsed as an
// integer, or def if it is not set. It panics if the value cannot be parsed.
func EnvOrDefaultInt(name string, def int) int {
	if s, ok := EnvString(name); ok {
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			panic(errors.Wrapf(err, "error parsing %s", name))
		}
		return int(v)
	}
	return def
}
