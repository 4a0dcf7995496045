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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/volcano/pkg/cli/exit"
	"github.com/cockroachdb/volcano/pkg/opt/volcano"
	"github.com/cockroachdb/volcano/pkg/testutils/testexpr"
	"github.com/cockroachdb/volcano/pkg/util/log"
	"github.com/stretchr/testify/require"
)

const goodSingleScenario = `
expr: single(leaf(a))
convention: PHYS
rules:
  - PhysLeafRule
  - GoodSingleRule
`

func TestLoadScenario(t *testing.T) {
	defer log.Scope(t).Close(t)

	sc, err := loadScenario(strings.NewReader(goodSingleScenario))
	require.NoError(t, err)
	require.Equal(t, scenario{
		Expr:       "single(leaf(a))",
		Convention: "PHYS",
		Rules:      []string{"PhysLeafRule", "GoodSingleRule"},
	}, sc)

	sc, err = loadScenario(strings.NewReader("ambitious: true\nabstract-rules: true\nmax-rule-firings: 3\n"))
	require.NoError(t, err)
	require.Equal(t, scenario{Ambitious: true, AbstractRules: true, MaxRuleFirings: 3}, sc)

	sc, err = loadScenario(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, scenario{}, sc)

	_, err = loadScenario(strings.NewReader("expr: leaf(a)\nrulez: [PhysLeafRule]\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "rulez")
}

func TestLoadScenarioFile(t *testing.T) {
	defer log.Scope(t).Close(t)

	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(goodSingleScenario), 0644))
	sc, err := loadScenarioFile(path)
	require.NoError(t, err)
	require.Equal(t, "single(leaf(a))", sc.Expr)

	_, err = loadScenarioFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestRunPlan(t *testing.T) {
	defer log.Scope(t).Close(t)
	sc, err := loadScenario(strings.NewReader(goodSingleScenario))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, runPlan(context.Background(), &buf, sc, planOptions{}))
	require.Equal(t, "PhysSingle\n  PhysLeaf(a)\ncost: {2 rows, 2 cpu, 0 io}\n", buf.String())

	buf.Reset()
	require.NoError(t, runPlan(context.Background(), &buf, sc,
		planOptions{stats: true, tableFormat: tableDisplayTSV}))
	require.Equal(t, `PhysSingle
  PhysLeaf(a)
cost: {2 rows, 2 cpu, 0 io}
metric	value
volcano_abstract_converters_total	2
volcano_registrations_total	6
volcano_rule_matches_fired_total	2
volcano_rule_matches_queued_total	2
volcano_set_merges_total	0
`, buf.String())

	buf.Reset()
	require.NoError(t, runPlan(context.Background(), &buf, sc, planOptions{dump: true}))
	require.Contains(t, buf.String(), "Root: Subset#2.PHYS")
}

func TestRunPlanErrors(t *testing.T) {
	defer log.Scope(t).Close(t)
	testCases := []struct {
		sc       scenario
		code     exit.Code
		expected string
	}{
		{
			sc:       scenario{},
			code:     exit.CommandLineFlagError(),
			expected: "no expression to plan",
		},
		{
			sc:       scenario{Expr: "leaf(a"},
			code:     exit.CommandLineFlagError(),
			expected: `parsing "leaf(a"`,
		},
		{
			sc:       scenario{Expr: "leaf(a)", Convention: "VECTOR"},
			code:     exit.CommandLineFlagError(),
			expected: `unknown convention "VECTOR"`,
		},
		{
			sc:       scenario{Expr: "leaf(a)", Rules: []string{"NoSuchRule"}},
			code:     exit.CommandLineFlagError(),
			expected: `unknown rule "NoSuchRule"`,
		},
		{
			sc:       scenario{Expr: "leaf(a)", Convention: "PHYS"},
			code:     exit.NoPlanFound(),
			expected: "Subset#1.PHYS: no plan found",
		},
		{
			sc:       scenario{Expr: "leaf(a)", Rules: []string{"FailingRule"}},
			code:     exit.UnspecifiedError(),
			expected: "rule FailingRule: injected rule failure",
		},
	}
	for _, tc := range testCases {
		var buf bytes.Buffer
		err := runPlan(context.Background(), &buf, tc.sc, planOptions{})
		require.Error(t, err)
		require.Contains(t, err.Error(), tc.expected)
		require.Equal(t, tc.code, GetExitCode(err), "%v", err)
	}

	err := runPlan(context.Background(), &bytes.Buffer{},
		scenario{Expr: "leaf(a)", Convention: "PHYS"}, planOptions{})
	require.True(t, errors.Is(err, volcano.ErrNoPlan))
}

func TestRunPlanMaxRuleFirings(t *testing.T) {
	defer log.Scope(t).Close(t)
	sc := scenario{
		Expr:           "leaf(a)",
		Convention:     "PHYS",
		Rules:          []string{"ExpensivePhysLeafRule", "PhysLeafRule"},
		Ambitious:      true,
		MaxRuleFirings: 1,
	}
	var buf bytes.Buffer
	require.NoError(t, runPlan(context.Background(), &buf, sc, planOptions{}))
	require.Equal(t, "PhysLeaf(a,rows=100)\ncost: {100 rows, 1 cpu, 0 io}\n", buf.String())
}

func TestConventionSetter(t *testing.T) {
	var s conventionSetter
	require.Equal(t, "", s.String())
	require.Equal(t, "<convention>", s.Type())
	require.NoError(t, s.Set("iterator"))
	require.Equal(t, testexpr.Iterator, s.c)
	require.Equal(t, "ITERATOR", s.String())
	require.Error(t, s.Set("bogus"))
	require.Equal(t, testexpr.Iterator, s.c)
}

func TestPrintTable(t *testing.T) {
	rows := [][]string{{"a", "1"}, {"b", "2"}}

	var f tableDisplayFormat
	require.NoError(t, f.Set("csv"))
	require.Equal(t, "csv", f.String())
	require.Error(t, f.Set("html"))

	var buf bytes.Buffer
	require.NoError(t, printTable(&buf, []string{"k", "v"}, rows, f))
	require.Equal(t, "k,v\na,1\nb,2\n", buf.String())

	buf.Reset()
	require.NoError(t, printTable(&buf, []string{"k", "v"}, rows, tableDisplayTable))
	require.Contains(t, buf.String(), "(2 rows)")
	require.Contains(t, buf.String(), "| a | 1 |")
}

func TestRun(t *testing.T) {
	defer log.Scope(t).Close(t)
	var buf bytes.Buffer
	volcanoCmd.SetOut(&buf)
	defer volcanoCmd.SetOut(nil)

	require.NoError(t, Run([]string{
		"plan", "-e", "leaf(a)", "--convention", "PHYS", "--rules", "PhysLeafRule", "--dump=false",
	}))
	require.Equal(t, "PhysLeaf(a)\ncost: {1 rows, 1 cpu, 0 io}\n", buf.String())

	buf.Reset()
	require.NoError(t, Run([]string{"rules", "--format", "tsv"}))
	require.Contains(t, buf.String(), "rule\tpattern\tproduces\n")
	require.Contains(t, buf.String(), "PhysLeafRule\tNoneLeaf\tPHYS\n")

	err := Run([]string{"plan", "--convention", "VECTOR"})
	require.Error(t, err)
}
