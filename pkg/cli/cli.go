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

// Package cli implements the volcano command, which plans expressions of the
// test expression algebra from the command line or from scenario files.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"text/tabwriter"

	"github.com/cockroachdb/volcano/pkg/cli/exit"
	"github.com/cockroachdb/volcano/pkg/util/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var osStderr = os.Stderr

// isInteractive is true if the command writes to a terminal.
var isInteractive = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

// Main is the entry point for the volcano command. It terminates the process.
func Main() {
	if err := Run(os.Args[1:]); err != nil {
		fmt.Fprintf(osStderr, "ERROR: %v\n", err)
		exit.WithCode(GetExitCode(err))
	}
	exit.WithCode(exit.Success())
}

// Run runs the volcano command with the given arguments.
func Run(args []string) error {
	volcanoCmd.SetArgs(args)
	return volcanoCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "output version information",
	Long: `
Output build version information.
`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 1, 2, ' ', 0)
		info, ok := debug.ReadBuildInfo()
		version := "(devel)"
		if ok && info.Main.Version != "" {
			version = info.Main.Version
		}
		fmt.Fprintf(tw, "Build Tag:\t%s\n", version)
		fmt.Fprintf(tw, "Platform:\t%s %s/%s\n", runtime.Compiler, runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(tw, "Go Version:\t%s\n", runtime.Version())
		if versionIncludesDeps && ok {
			fmt.Fprintf(tw, "Build Deps:\n")
			for _, dep := range info.Deps {
				fmt.Fprintf(tw, "\t%s\t%s\n", dep.Path, dep.Version)
			}
		}
		_ = tw.Flush()
	},
}

var volcanoCmd = &cobra.Command{
	Use:   "volcano [command] (flags)",
	Short: "Volcano planner command-line interface",
	Long: `
Plans expressions with the Volcano optimizer. Expressions are written in a
small algebra of logical and physical operators, for example:

  volcano plan -e 'single(leaf(a))' --convention PHYS --rules PhysLeafRule,GoodSingleRule
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetVerbosity(int32(planCtx.verbosity))
	},
}

func init() {
	cobra.EnableCommandSorting = false

	volcanoCmd.AddCommand(
		planCmd,
		rulesCmd,
		versionCmd,
	)
}
