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

// Package cliflags describes the command-line flags of the volcano command.
package cliflags

import (
	"fmt"
	"strings"
)

// FlagInfo contains the static information for a CLI flag and helper
// to format the description.
type FlagInfo struct {
	// Name of the flag as used on the command line.
	Name string

	// Shorthand is the short form of the flag (optional).
	Shorthand string

	// EnvVar is the name of the environment variable through which the flag
	// value can be controlled (optional).
	EnvVar string

	// Description of the flag.
	Description string
}

// Usage returns a formatted usage string for the flag, including the
// environment variable if one is set.
func (f FlagInfo) Usage() string {
	s := strings.TrimSpace(f.Description)
	if f.EnvVar != "" {
		s = fmt.Sprintf("%s\nEnvironment variable: %s", s, f.EnvVar)
	}
	return s
}

// Flags of the plan command.
var (
	Expr = FlagInfo{
		Name:      "expr",
		Shorthand: "e",
		Description: `
The expression to plan, for example "single(leaf(a))". Overrides the
expression of the scenario file.`,
	}

	Convention = FlagInfo{
		Name:   "convention",
		EnvVar: "VOLCANO_CONVENTION",
		Description: `
The calling convention requested for the root expression: NONE, PHYS or
ITERATOR.`,
	}

	Rules = FlagInfo{
		Name:   "rules",
		EnvVar: "VOLCANO_RULES",
		Description: `
A comma-separated list of the rules to add to the planner, in order. See
'volcano rules' for the available rules.`,
	}

	Ambitious = FlagInfo{
		Name: "ambitious",
		Description: `
Keep searching after a plan has been found, for a plan that costs half as
much, until no rule matches remain.`,
	}

	AbstractRules = FlagInfo{
		Name:        "abstract-rules",
		Description: `Add the rules that resolve abstract converters.`,
	}

	MaxRuleFirings = FlagInfo{
		Name:        "max-rule-firings",
		Description: `Stop the search after this many rule matches. Zero means no limit.`,
	}

	Stats = FlagInfo{
		Name:        "stats",
		Description: `Print the planner metrics after the plan.`,
	}

	Dump = FlagInfo{
		Name: "dump",
		Description: `
Print the sets and subsets of the planner after the search. Defaults to true
when the output is a terminal.`,
	}

	TableDisplayFormat = FlagInfo{
		Name: "format",
		Description: `
Selects how tables are displayed: tsv, csv or table. Defaults to table
when the output is a terminal, tsv otherwise.`,
	}

	Verbosity = FlagInfo{
		Name:        "v",
		EnvVar:      "VOLCANO_VERBOSITY",
		Description: `Log verbosity. Higher levels log each registration and rule firing.`,
	}

	VersionDeps = FlagInfo{
		Name:        "build-deps",
		Description: `Include the dependencies of the binary in the version output.`,
	}
)
