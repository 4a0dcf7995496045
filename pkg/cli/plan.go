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
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/volcano/pkg/cli/exit"
	"github.com/cockroachdb/volcano/pkg/opt"
	"github.com/cockroachdb/volcano/pkg/opt/volcano"
	"github.com/cockroachdb/volcano/pkg/testutils/testexpr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// scenario describes a planning problem: an expression, the convention
// requested for it, and the rules the planner may use.
type scenario struct {
	Expr           string   `yaml:"expr"`
	Convention     string   `yaml:"convention"`
	Rules          []string `yaml:"rules"`
	Ambitious      bool     `yaml:"ambitious"`
	AbstractRules  bool     `yaml:"abstract-rules"`
	MaxRuleFirings int      `yaml:"max-rule-firings"`
}

// loadScenario reads a scenario in YAML from r. Unknown fields are errors.
func loadScenario(r io.Reader) (scenario, error) {
	var sc scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil && err != io.EOF {
		return scenario{}, errors.Wrap(err, "parsing scenario")
	}
	return sc, nil
}

func loadScenarioFile(path string) (scenario, error) {
	if path == "-" {
		return loadScenario(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return scenario{}, err
	}
	sc, err := loadScenario(bytes.NewReader(data))
	return sc, errors.Wrapf(err, "%s", path)
}

// applyFlags overrides the fields of the scenario with the flags set on the
// command line.
func applyFlags(cmd *cobra.Command, sc *scenario) {
	f := cmd.Flags()
	if f.Changed("expr") {
		sc.Expr = planCtx.expr
	}
	if f.Changed("convention") {
		sc.Convention = planCtx.convention.String()
	}
	if f.Changed("rules") {
		sc.Rules = planCtx.rules
	}
	if f.Changed("ambitious") {
		sc.Ambitious = planCtx.ambitious
	}
	if f.Changed("abstract-rules") {
		sc.AbstractRules = planCtx.abstractRules
	}
	if f.Changed("max-rule-firings") {
		sc.MaxRuleFirings = planCtx.maxRuleFirings
	}
}

// planOptions control what runPlan prints besides the plan.
type planOptions struct {
	stats       bool
	dump        bool
	tableFormat tableDisplayFormat
}

var planCmd = &cobra.Command{
	Use:   "plan [scenario.yaml]",
	Short: "find the cheapest plan for an expression",
	Long: `
Finds the cheapest plan for an expression and prints it, followed by its
cost. The problem is read from a YAML scenario file, or from "-" for standard
input, and flags override the fields of the scenario:

  expr: single(leaf(a))
  convention: PHYS
  rules: [PhysLeafRule, GoodSingleRule]
  ambitious: false
  abstract-rules: false
  max-rule-firings: 0
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sc scenario
		if len(args) == 1 {
			var err error
			if sc, err = loadScenarioFile(args[0]); err != nil {
				return NewError(err, exit.CommandLineFlagError())
			}
		}
		applyFlags(cmd, &sc)
		opts := planOptions{
			stats:       planCtx.stats,
			dump:        planCtx.dump,
			tableFormat: planCtx.tableFormat,
		}
		return runPlan(context.Background(), cmd.OutOrStdout(), sc, opts)
	},
}

// buildPlanner returns a planner with the conventions of the test expression
// algebra and the rules of the scenario.
func buildPlanner(ctx context.Context, sc scenario) (*volcano.Planner, error) {
	settings := volcano.DefaultSettings()
	if sc.Ambitious {
		settings.Ambitious = true
	}
	if sc.MaxRuleFirings != 0 {
		settings.MaxRuleFirings = sc.MaxRuleFirings
	}
	p := volcano.NewPlanner(ctx, settings)
	for _, c := range testexpr.Conventions() {
		p.AddCallingConvention(c)
	}
	if sc.AbstractRules {
		if err := p.RegisterAbstractRules(); err != nil {
			return nil, err
		}
	}
	for _, name := range sc.Rules {
		r, err := testexpr.RuleByName(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		if _, err := p.AddRule(r); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// runPlan plans the expression of the scenario and writes the plan and its
// cost to w.
func runPlan(ctx context.Context, w io.Writer, sc scenario, opts planOptions) error {
	if strings.TrimSpace(sc.Expr) == "" {
		return NewError(errors.New("no expression to plan"), exit.CommandLineFlagError())
	}
	e, err := testexpr.Parse(strings.TrimSpace(sc.Expr))
	if err != nil {
		return NewError(err, exit.CommandLineFlagError())
	}
	var conv *opt.Convention
	if sc.Convention != "" {
		if conv, err = testexpr.ConventionByName(sc.Convention); err != nil {
			return NewError(err, exit.CommandLineFlagError())
		}
	}
	p, err := buildPlanner(ctx, sc)
	if err != nil {
		return NewError(err, exit.CommandLineFlagError())
	}
	registry := prometheus.NewRegistry()
	if err := p.Metrics().Register(registry); err != nil {
		return err
	}

	if conv != nil {
		if e, err = p.ChangeConvention(e, conv); err != nil {
			return err
		}
	}
	if err := p.SetRoot(e); err != nil {
		return err
	}
	plan, planErr := p.FindBestExp()
	if planErr == nil {
		fmt.Fprint(w, testexpr.Format(plan))
		root, _ := p.Root()
		fmt.Fprintf(w, "cost: %s\n", p.BestCost(root))
	}
	if opts.stats {
		if err := printMetrics(w, registry, opts.tableFormat); err != nil {
			return err
		}
	}
	if opts.dump {
		p.Dump(w)
	}
	if errors.Is(planErr, volcano.ErrNoPlan) {
		return NewError(planErr, exit.NoPlanFound())
	}
	return planErr
}

// printMetrics writes the value of every planner metric as a table.
func printMetrics(w io.Writer, g prometheus.Gatherer, format tableDisplayFormat) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	var rows [][]string
	for _, f := range families {
		for _, m := range f.GetMetric() {
			rows = append(rows, []string{f.GetName(), fmt.Sprintf("%g", m.GetCounter().GetValue())})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	return printTable(w, []string{"metric", "value"}, rows, format)
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "list the rules available to the plan command",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var rows [][]string
		for _, name := range testexpr.RuleNames() {
			r, err := testexpr.RuleByName(name)
			if err != nil {
				return err
			}
			out := ""
			if c := r.OutConvention(); c != nil {
				out = c.Name()
			}
			rows = append(rows, []string{name, r.Operand().String(), out})
		}
		return printTable(cmd.OutOrStdout(), []string{"rule", "pattern", "produces"}, rows,
			planCtx.tableFormat)
	},
}
