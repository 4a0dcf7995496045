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

// Package plantester runs planner scenarios written with the test expression
// algebra. It is used by the datadriven tests of the planner.
package plantester

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/volcano/pkg/opt"
	"github.com/cockroachdb/volcano/pkg/opt/volcano"
	"github.com/cockroachdb/volcano/pkg/testutils/testexpr"
)

// PlanTester is a helper for testing the planner. It builds an expression from
// the input of a test case, plans it with the rules named by the test case,
// and formats the result.
type PlanTester struct {
	Flags Flags

	ctx context.Context
}

// Flags are control knobs for tests. Test cases can override them.
type Flags struct {
	// Rules are the names of the rules to add to the planner, in order.
	Rules []string

	// Convention is the convention requested for the root. If nil, the root
	// keeps its own convention.
	Convention *opt.Convention

	// Ambitious keeps searching after the first plan is found.
	Ambitious bool

	// AbstractRules adds the rules that resolve abstract converters.
	AbstractRules bool

	// ShowStats prints the number of sets, registrations and rule firings
	// after the plan.
	ShowStats bool

	// Verbose prints the planner state to stdout after planning.
	Verbose bool
}

// New returns a PlanTester with default flags.
func New() *PlanTester {
	return &PlanTester{ctx: context.Background()}
}

// RunCommand implements the following commands:
//
//   - plan [flags]
//
//     Parses the input as an expression, plans it, and prints the cheapest
//     plan followed by its cost. If planning fails, prints the error.
//
//   - memo [flags]
//
//     Like plan, but prints the state of the planner instead of the plan.
//
// Supported flags:
//
//   - rules: names of the rules to add, for example rules=(PhysLeafRule,GoodSingleRule).
//
//   - convention: the convention requested for the root, for example
//     convention=PHYS.
//
//   - ambitious: keep searching for a cheaper plan after the first one.
//
//   - abstract-rules: add the rules that resolve abstract converters.
//
//   - stats: print statistics about the search after the plan.
func (pt *PlanTester) RunCommand(tb testing.TB, d *datadriven.TestData) string {
	flags := pt.Flags
	for _, a := range d.CmdArgs {
		if err := flags.Set(a); err != nil {
			d.Fatalf(tb, "%s", err)
		}
	}
	flags.Verbose = testing.Verbose()

	switch d.Cmd {
	case "plan":
		p, root, err := pt.plan(flags, d.Input)
		if err != nil {
			return fmt.Sprintf("error: %s\n", strings.TrimSpace(err.Error()))
		}
		if flags.Verbose {
			fmt.Print(p.String())
		}
		var b strings.Builder
		b.WriteString(testexpr.Format(root))
		s, _ := p.Root()
		fmt.Fprintf(&b, "cost: %s\n", p.BestCost(s))
		if flags.ShowStats {
			fmt.Fprintf(&b, "sets: %d\nregistrations: %d\n", p.SetCount(), p.RegisterCount())
		}
		return b.String()

	case "memo":
		p, _, err := pt.plan(flags, d.Input)
		if err != nil && !errors.Is(err, volcano.ErrNoPlan) {
			return fmt.Sprintf("error: %s\n", strings.TrimSpace(err.Error()))
		}
		return p.String()

	default:
		d.Fatalf(tb, "unsupported command: %s", d.Cmd)
		return ""
	}
}

// Plan builds the planner for the given flags, registers the expression, and
// returns the cheapest plan.
func (pt *PlanTester) Plan(input string) (*volcano.Planner, opt.Expr, error) {
	return pt.plan(pt.Flags, input)
}

func (pt *PlanTester) plan(flags Flags, input string) (*volcano.Planner, opt.Expr, error) {
	e, err := testexpr.Parse(strings.TrimSpace(input))
	if err != nil {
		return nil, nil, err
	}
	settings := volcano.DefaultSettings()
	settings.Ambitious = flags.Ambitious
	settings.Validate = true
	p := volcano.NewPlanner(pt.ctx, settings)
	for _, c := range testexpr.Conventions() {
		p.AddCallingConvention(c)
	}
	if flags.AbstractRules {
		if err := p.RegisterAbstractRules(); err != nil {
			return p, nil, err
		}
	}
	for _, name := range flags.Rules {
		r, err := testexpr.RuleByName(name)
		if err != nil {
			return p, nil, err
		}
		if _, err := p.AddRule(r); err != nil {
			return p, nil, err
		}
	}
	if flags.Convention != nil {
		if e, err = p.ChangeConvention(e, flags.Convention); err != nil {
			return p, nil, err
		}
	}
	if err := p.SetRoot(e); err != nil {
		return p, nil, err
	}
	root, err := p.FindBestExp()
	return p, root, err
}

// Set parses an argument that refers to a flag.
func (f *Flags) Set(arg datadriven.CmdArg) error {
	switch arg.Key {
	case "rules":
		if len(arg.Vals) == 0 {
			return fmt.Errorf("rules requires arguments")
		}
		f.Rules = append([]string(nil), arg.Vals...)

	case "convention":
		if len(arg.Vals) != 1 {
			return fmt.Errorf("convention requires one argument")
		}
		c, err := testexpr.ConventionByName(arg.Vals[0])
		if err != nil {
			return err
		}
		f.Convention = c

	case "ambitious":
		f.Ambitious = true

	case "abstract-rules":
		f.AbstractRules = true

	case "stats":
		f.ShowStats = true

	default:
		return fmt.Errorf("unknown argument: %s", arg.Key)
	}
	return nil
}
