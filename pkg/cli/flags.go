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
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/volcano/pkg/cli/cliflags"
	"github.com/cockroachdb/volcano/pkg/opt"
	"github.com/cockroachdb/volcano/pkg/testutils/testexpr"
	"github.com/cockroachdb/volcano/pkg/util/envutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// planCtx holds the configuration of the plan command as set by its flags.
// The flags override the fields of the scenario file.
var planCtx struct {
	expr           string
	convention     conventionSetter
	rules          []string
	ambitious      bool
	abstractRules  bool
	maxRuleFirings int
	stats          bool
	dump           bool
	tableFormat    tableDisplayFormat
	verbosity      int
}

var versionIncludesDeps bool

// initCLIDefaults sets the flag variables to their defaults. The defaults of
// dump and tableFormat depend on whether the output is a terminal.
func initCLIDefaults() {
	planCtx.expr = ""
	planCtx.convention = conventionSetter{}
	planCtx.rules = nil
	planCtx.ambitious = false
	planCtx.abstractRules = false
	planCtx.maxRuleFirings = 0
	planCtx.stats = false
	planCtx.dump = isInteractive
	planCtx.tableFormat = tableDisplayTSV
	if isInteractive {
		planCtx.tableFormat = tableDisplayTable
	}
	planCtx.verbosity = 0
	versionIncludesDeps = false
}

// conventionSetter is a pflag.Value that names one of the calling
// conventions of the test expression algebra.
type conventionSetter struct {
	c *opt.Convention
}

// String implements the pflag.Value interface.
func (s *conventionSetter) String() string {
	if s.c == nil {
		return ""
	}
	return s.c.Name()
}

// Type implements the pflag.Value interface.
func (s *conventionSetter) Type() string { return "<convention>" }

// Set implements the pflag.Value interface.
func (s *conventionSetter) Set(v string) error {
	c, err := testexpr.ConventionByName(v)
	if err != nil {
		return err
	}
	s.c = c
	return nil
}

func setFlagFromEnv(f *pflag.FlagSet, flagInfo cliflags.FlagInfo) {
	if flagInfo.EnvVar != "" {
		if value, set := envutil.EnvString(flagInfo.EnvVar); set {
			if err := f.Set(flagInfo.Name, value); err != nil {
				panic(errors.Wrapf(err, "invalid value for %s", flagInfo.EnvVar))
			}
		}
	}
}

// StringFlag creates a string flag and registers it with the FlagSet.
func StringFlag(f *pflag.FlagSet, valPtr *string, flagInfo cliflags.FlagInfo, defaultVal string) {
	f.StringVarP(valPtr, flagInfo.Name, flagInfo.Shorthand, defaultVal, flagInfo.Usage())

	setFlagFromEnv(f, flagInfo)
}

// StringSliceFlag creates a comma-separated string list flag and registers
// it with the FlagSet.
func StringSliceFlag(
	f *pflag.FlagSet, valPtr *[]string, flagInfo cliflags.FlagInfo, defaultVal []string,
) {
	f.StringSliceVarP(valPtr, flagInfo.Name, flagInfo.Shorthand, defaultVal, flagInfo.Usage())

	setFlagFromEnv(f, flagInfo)
}

// IntFlag creates an int flag and registers it with the FlagSet.
func IntFlag(f *pflag.FlagSet, valPtr *int, flagInfo cliflags.FlagInfo, defaultVal int) {
	f.IntVarP(valPtr, flagInfo.Name, flagInfo.Shorthand, defaultVal, flagInfo.Usage())

	setFlagFromEnv(f, flagInfo)
}

// BoolFlag creates a bool flag and registers it with the FlagSet.
func BoolFlag(f *pflag.FlagSet, valPtr *bool, flagInfo cliflags.FlagInfo, defaultVal bool) {
	f.BoolVarP(valPtr, flagInfo.Name, flagInfo.Shorthand, defaultVal, flagInfo.Usage())

	setFlagFromEnv(f, flagInfo)
}

// VarFlag creates a custom-variable flag and registers it with the FlagSet.
func VarFlag(f *pflag.FlagSet, value pflag.Value, flagInfo cliflags.FlagInfo) {
	f.VarP(value, flagInfo.Name, flagInfo.Shorthand, flagInfo.Usage())

	setFlagFromEnv(f, flagInfo)
}

func init() {
	initCLIDefaults()

	f := planCmd.Flags()
	StringFlag(f, &planCtx.expr, cliflags.Expr, planCtx.expr)
	VarFlag(f, &planCtx.convention, cliflags.Convention)
	StringSliceFlag(f, &planCtx.rules, cliflags.Rules, planCtx.rules)
	BoolFlag(f, &planCtx.ambitious, cliflags.Ambitious, planCtx.ambitious)
	BoolFlag(f, &planCtx.abstractRules, cliflags.AbstractRules, planCtx.abstractRules)
	IntFlag(f, &planCtx.maxRuleFirings, cliflags.MaxRuleFirings, planCtx.maxRuleFirings)
	BoolFlag(f, &planCtx.stats, cliflags.Stats, planCtx.stats)
	BoolFlag(f, &planCtx.dump, cliflags.Dump, planCtx.dump)

	for _, cmd := range []*cobra.Command{planCmd, rulesCmd} {
		VarFlag(cmd.Flags(), &planCtx.tableFormat, cliflags.TableDisplayFormat)
	}

	pf := volcanoCmd.PersistentFlags()
	IntFlag(pf, &planCtx.verbosity, cliflags.Verbosity, planCtx.verbosity)

	BoolFlag(versionCmd.Flags(), &versionIncludesDeps, cliflags.VersionDeps, false)
}
