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

package volcano_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/volcano/pkg/opt"
	"github.com/cockroachdb/volcano/pkg/opt/volcano"
	"github.com/cockroachdb/volcano/pkg/testutils/testexpr"
	"github.com/cockroachdb/volcano/pkg/util/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newPlanner(t *testing.T, settings volcano.Settings, rules ...opt.Rule) *volcano.Planner {
	t.Helper()
	settings.Validate = true
	p := volcano.NewPlanner(context.Background(), settings)
	for _, c := range testexpr.Conventions() {
		p.AddCallingConvention(c)
	}
	for _, r := range rules {
		added, err := p.AddRule(r)
		require.NoError(t, err)
		require.True(t, added)
	}
	return p
}

// planAs requests the convention for the expression, makes the result the
// root, and searches for the cheapest plan.
func planAs(
	t *testing.T, p *volcano.Planner, input string, c *opt.Convention,
) (opt.Expr, error) {
	t.Helper()
	e, err := testexpr.Parse(input)
	require.NoError(t, err)
	root, err := p.ChangeConvention(e, c)
	require.NoError(t, err)
	require.NoError(t, p.SetRoot(root))
	return p.FindBestExp()
}

func rootCost(t *testing.T, p *volcano.Planner) opt.Cost {
	t.Helper()
	s, ok := p.Root()
	require.True(t, ok)
	return p.BestCost(s)
}

func TestTransformLeaf(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{}, testexpr.PhysLeafRule())

	plan, err := planAs(t, p, "leaf(a)", testexpr.Phys)
	require.NoError(t, err)
	leaf, ok := plan.(*testexpr.PhysLeaf)
	require.True(t, ok, "expected a PhysLeaf, got %s", plan.Digest())
	require.Equal(t, "a", leaf.Label)
	require.True(t, rootCost(t, p).Equals(p.MakeTinyCost()))
	require.True(t, p.MakeZeroCost().Less(rootCost(t, p)))
	require.True(t, rootCost(t, p).Less(p.MakeHugeCost()))

	root, ok := p.Root()
	require.True(t, ok)
	var digests []string
	for _, m := range p.SetMembers(root) {
		digests = append(digests, m.Digest())
	}
	require.Contains(t, digests, "NoneLeaf(a)")
	require.Contains(t, digests, "PhysLeaf(a)")
}

func TestTransformSingleGood(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{}, testexpr.PhysLeafRule(), testexpr.GoodSingleRule())

	plan, err := planAs(t, p, "single(leaf(a))", testexpr.Phys)
	require.NoError(t, err)
	require.IsType(t, &testexpr.PhysSingle{}, plan)
	require.Equal(t, "PhysSingle\n  PhysLeaf(a)\n", testexpr.Format(plan))
	require.True(t, rootCost(t, p).Equals(p.MakeCost(2, 2, 0)))

	require.Equal(t, 2, p.SetCount())
	require.Equal(t, 6, p.RegisterCount())

	m := p.Metrics()
	require.Equal(t, 6.0, testutil.ToFloat64(m.Registrations))
	require.Equal(t, 0.0, testutil.ToFloat64(m.Merges))
	require.Equal(t, 2.0, testutil.ToFloat64(m.MatchesQueued))
	require.Equal(t, 2.0, testutil.ToFloat64(m.MatchesFired))
	require.Equal(t, 2.0, testutil.ToFloat64(m.AbstractConverters))
}

func TestTransformSingleBad(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{}, testexpr.PhysLeafRule(), testexpr.BadSingleRule())

	_, err := planAs(t, p, "single(leaf(a))", testexpr.Phys)
	require.True(t, errors.Is(err, volcano.ErrNoPlan), "%v", err)
	require.Contains(t, err.Error(), "Subset#2.PHYS")
	require.True(t, rootCost(t, p).IsInfinite())

	// A failed search does not abort the session.
	s, _ := p.Root()
	require.Nil(t, p.Best(s))
	_, err = p.Register(testexpr.NewNoneLeaf("b"), nil)
	require.NoError(t, err)
}

func TestRemoveTrivialProject(t *testing.T) {
	defer log.Scope(t).Close(t)
	for _, useRule := range []bool{false, true} {
		t.Run("", func(t *testing.T) {
			var rules []opt.Rule
			if useRule {
				rules = append(rules, testexpr.RemoveTrivialProjectRule())
			}
			rules = append(rules,
				testexpr.PhysLeafRule(),
				testexpr.GoodSingleRule(),
				testexpr.PhysProjectRule(),
				testexpr.PhysToIteratorRule(),
			)
			p := newPlanner(t, volcano.Settings{}, rules...)

			plan, err := planAs(t, p, "single(project(physleaf(a)))", testexpr.Iterator)
			require.NoError(t, err)
			require.IsType(t, &testexpr.PhysToIterator{}, plan)

			// Without the rule, the project is implemented by PhysProjectRule, which
			// produces leaf b. With the rule, the project is removed first.
			expected := "PhysToIterator\n  PhysSingle\n    PhysLeaf(b)\n"
			if useRule {
				expected = "PhysToIterator\n  PhysSingle\n    PhysLeaf(a)\n"
			}
			require.Equal(t, expected, testexpr.Format(plan))
			require.True(t, rootCost(t, p).Equals(p.MakeCost(3, 3, 0)))
		})
	}
}

func TestPhysJoin(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{}, testexpr.PhysLeafRule(), testexpr.PhysJoinRule())

	plan, err := planAs(t, p, "join(leaf(a), leaf(b))", testexpr.Phys)
	require.NoError(t, err)
	require.Equal(t, "PhysJoin\n  PhysLeaf(a)\n  PhysLeaf(b)\n", testexpr.Format(plan))
	require.True(t, rootCost(t, p).Equals(p.MakeCost(4, 4, 0)))
}

func TestAmbitious(t *testing.T) {
	defer log.Scope(t).Close(t)
	testCases := []struct {
		ambitious bool
		expected  string
	}{
		{ambitious: false, expected: "PhysLeaf(a,rows=100)\n"},
		{ambitious: true, expected: "PhysLeaf(a)\n"},
	}
	for _, tc := range testCases {
		// The expensive rule is added first, so it fires first.
		p := newPlanner(t, volcano.Settings{Ambitious: tc.ambitious},
			testexpr.ExpensivePhysLeafRule(), testexpr.PhysLeafRule())
		plan, err := planAs(t, p, "leaf(a)", testexpr.Phys)
		require.NoError(t, err)
		require.Equal(t, tc.expected, testexpr.Format(plan), "ambitious=%t", tc.ambitious)
	}
}

func TestMaxRuleFirings(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{MaxRuleFirings: 1},
		testexpr.PhysLeafRule(), testexpr.GoodSingleRule())

	// GoodSingleRule fires first; the leaf is never implemented.
	_, err := planAs(t, p, "single(leaf(a))", testexpr.Phys)
	require.True(t, errors.Is(err, volcano.ErrNoPlan), "%v", err)
	require.Equal(t, 1.0, testutil.ToFloat64(p.Metrics().MatchesFired))
}

// TestMatchAscending exercises a rule whose pattern is matched starting from
// its child operand: FuseSingleLeafRule matches when PhysLeafRule registers a
// leaf under an existing PhysSingle.
func TestMatchAscending(t *testing.T) {
	defer log.Scope(t).Close(t)
	rules := func() []opt.Rule {
		return []opt.Rule{
			testexpr.PhysLeafRule(), testexpr.GoodSingleRule(), testexpr.FuseSingleLeafRule(),
		}
	}

	p := newPlanner(t, volcano.Settings{}, rules()...)
	plan, err := planAs(t, p, "single(leaf(a))", testexpr.Phys)
	require.NoError(t, err)
	require.Equal(t, "PhysSingle\n  PhysLeaf(a)\n", testexpr.Format(plan))
	require.Equal(t, 3.0, testutil.ToFloat64(p.Metrics().MatchesQueued))

	p = newPlanner(t, volcano.Settings{Ambitious: true}, rules()...)
	plan, err = planAs(t, p, "single(leaf(a))", testexpr.Phys)
	require.NoError(t, err)
	require.Equal(t, "PhysLeaf(single_a)\n", testexpr.Format(plan))
	require.True(t, rootCost(t, p).Equals(p.MakeTinyCost()))
}

// TestFuseAfterRemoveSingle runs an ambitious search in which RemoveSingleRule
// merges the single into the set of its input. The PhysSingle then has its own
// set as input, and fusing it must not produce ever longer labels.
func TestFuseAfterRemoveSingle(t *testing.T) {
	defer log.Scope(t).Close(t)
	const limit = 1000
	p := newPlanner(t, volcano.Settings{Ambitious: true, MaxRuleFirings: limit},
		testexpr.PhysLeafRule(), testexpr.GoodSingleRule(), testexpr.FuseSingleLeafRule(),
		testexpr.RemoveSingleRule())

	plan, err := planAs(t, p, "single(leaf(a))", testexpr.Phys)
	require.NoError(t, err)
	require.IsType(t, &testexpr.PhysLeaf{}, plan)
	require.True(t, rootCost(t, p).Equals(p.MakeTinyCost()))
	require.Equal(t, 1, p.SetCount())
	require.Less(t, testutil.ToFloat64(p.Metrics().MatchesFired), float64(limit))

	root, ok := p.Root()
	require.True(t, ok)
	for _, m := range p.Members(root) {
		require.NotContains(t, m.Digest(), "single_single_")
	}
}

func TestRegisterIdempotent(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{})

	a := testexpr.NewNoneLeaf("a")
	s1, err := p.Register(a, nil)
	require.NoError(t, err)
	s2, err := p.Register(a, nil)
	require.NoError(t, err)
	require.Equal(t, s1, s2)
	require.True(t, p.IsRegistered(a))
	require.True(t, p.IsRegistered(s1))

	// A structurally identical expression resolves to the registered one.
	dup := testexpr.NewNoneLeaf("a")
	s3, err := p.Register(dup, nil)
	require.NoError(t, err)
	require.Equal(t, s1, s3)
	require.False(t, p.IsRegistered(dup))
	require.Equal(t, 1, p.RegisterCount())
	require.Len(t, p.Members(s1.(volcano.Subset)), 1)

	// An expression registered as equivalent joins the set.
	b := testexpr.NewNoneLeaf("b")
	s4, err := p.Register(b, a)
	require.NoError(t, err)
	require.Equal(t, s1, s4)
	require.Equal(t, 1, p.SetCount())
	require.Len(t, p.Members(s1.(volcano.Subset)), 2)

	ensured, err := p.EnsureRegistered(b, nil)
	require.NoError(t, err)
	require.Equal(t, s1, ensured)
}

func TestRegisterReplacesInputs(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{})

	e, err := testexpr.Parse("single(leaf(a))")
	require.NoError(t, err)
	s, err := p.Register(e, nil)
	require.NoError(t, err)

	in, ok := e.Child(0).(volcano.Subset)
	require.True(t, ok, "input is %T", e.Child(0))
	require.Equal(t, opt.NoneConvention, in.Convention())
	require.NotEqual(t, s.(volcano.Subset).SetID(), in.SetID())
	require.Equal(t, "NoneSingle(Subset#1.NONE)", e.Digest())
	require.Equal(t, []opt.Expr{e}, p.Members(s.(volcano.Subset)))
	require.Len(t, p.Members(in), 1)
}

func TestMergeLowerIDSurvives(t *testing.T) {
	defer log.Scope(t).Close(t)
	for _, reverse := range []bool{false, true} {
		p := newPlanner(t, volcano.Settings{})
		a, b := testexpr.NewNoneLeaf("a"), testexpr.NewNoneLeaf("b")
		sa, err := p.Register(a, nil)
		require.NoError(t, err)
		sb, err := p.Register(b, nil)
		require.NoError(t, err)
		require.Equal(t, 2, p.SetCount())

		if reverse {
			_, err = p.Register(a, b)
		} else {
			_, err = p.Register(b, a)
		}
		require.NoError(t, err)
		require.Equal(t, 1, p.SetCount())
		require.Equal(t, sa, p.Canonical(sb.(volcano.Subset)))
		require.Equal(t, volcano.SetID(1), p.Canonical(sb.(volcano.Subset)).SetID())
		require.ElementsMatch(t, []opt.Expr{a, b}, p.Members(sa.(volcano.Subset)))
		require.Equal(t, 1.0, testutil.ToFloat64(p.Metrics().Merges))
	}
}

func TestMergeKeepsCheaperBest(t *testing.T) {
	defer log.Scope(t).Close(t)
	for _, reverse := range []bool{false, true} {
		p := newPlanner(t, volcano.Settings{})
		expensive := testexpr.NewPhysLeaf("a")
		expensive.Rows = 100
		cheap := testexpr.NewPhysLeaf("b")
		s1, err := p.Register(expensive, nil)
		require.NoError(t, err)
		s2, err := p.Register(cheap, nil)
		require.NoError(t, err)

		if reverse {
			_, err = p.Register(expensive, cheap)
		} else {
			_, err = p.Register(cheap, expensive)
		}
		require.NoError(t, err)
		merged := p.Canonical(s2.(volcano.Subset))
		require.Equal(t, s1, merged)
		require.True(t, p.BestCost(merged).Equals(p.MakeTinyCost()))
		require.Equal(t, cheap, p.Best(merged))
	}
}

func TestMergeRenamesParents(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{})

	singleA, err := testexpr.Parse("single(leaf(a))")
	require.NoError(t, err)
	singleB, err := testexpr.Parse("single(leaf(b))")
	require.NoError(t, err)
	sa, err := p.Register(singleA, nil)
	require.NoError(t, err)
	_, err = p.Register(singleB, nil)
	require.NoError(t, err)
	require.Equal(t, 4, p.SetCount())

	// Once the leaves are known to be equivalent, so are the singles: the
	// second single becomes a duplicate of the first and is discarded.
	_, err = p.Register(singleB.Child(0), singleA.Child(0))
	require.NoError(t, err)
	require.Equal(t, 2, p.SetCount())
	require.False(t, p.IsRegistered(singleB))
	require.Equal(t, []opt.Expr{singleA}, p.Members(sa.(volcano.Subset)))
	require.Equal(t, 2.0, testutil.ToFloat64(p.Metrics().Merges))
}

func TestMergeCollapse(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{}, testexpr.RemoveSingleRule())

	e, err := testexpr.Parse("single(single(leaf(a)))")
	require.NoError(t, err)
	require.NoError(t, p.SetRoot(e))
	require.Equal(t, 3, p.SetCount())

	// Removing both singles puts every expression in the first set. The outer
	// single becomes a duplicate of the inner one.
	_, err = p.FindBestExp()
	require.True(t, errors.Is(err, volcano.ErrNoPlan), "%v", err)
	require.Equal(t, 1, p.SetCount())

	root, ok := p.Root()
	require.True(t, ok)
	require.Equal(t, volcano.SetID(1), root.SetID())
	var digests []string
	for _, m := range p.Members(root) {
		digests = append(digests, m.Digest())
	}
	require.Equal(t, []string{"NoneLeaf(a)", "NoneSingle(Subset#1.NONE)"}, digests)
	require.Equal(t, 5, p.RegisterCount())
}

func TestCostOnlyImproves(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{})

	leaf := func(rows float64) opt.Expr {
		l := testexpr.NewPhysLeaf("a")
		l.Rows = rows
		return l
	}
	first := leaf(100)
	s, err := p.Register(first, nil)
	require.NoError(t, err)
	subset, ok := p.GetSubset(first, testexpr.Phys)
	require.True(t, ok)
	require.Equal(t, s, subset)
	require.True(t, p.BestCost(subset).Equals(p.MakeCost(100, 1, 0)))

	cheap := leaf(0)
	_, err = p.Register(cheap, first)
	require.NoError(t, err)
	require.True(t, p.BestCost(subset).Equals(p.MakeTinyCost()))
	require.Equal(t, cheap, p.Best(subset))

	_, err = p.Register(leaf(50), first)
	require.NoError(t, err)
	require.True(t, p.BestCost(subset).Equals(p.MakeTinyCost()))
	require.Equal(t, cheap, p.Best(subset))

	_, ok = p.GetSubset(first, testexpr.Iterator)
	require.False(t, ok)
	_, ok = p.GetSubset(testexpr.NewPhysLeaf("z"), testexpr.Phys)
	require.False(t, ok)
}

func TestConversionFallback(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{})

	root, err := p.ChangeConvention(testexpr.NewNoneLeaf("a"), testexpr.Phys)
	require.NoError(t, err)
	s := root.(volcano.Subset)
	require.Equal(t, testexpr.Phys, s.Convention())
	require.True(t, p.BestCost(s).IsInfinite())
	require.NoError(t, p.SetRoot(root))
	require.Equal(t, 1.0, testutil.ToFloat64(p.Metrics().AbstractConverters))

	_, err = p.FindBestExp()
	require.True(t, errors.Is(err, volcano.ErrNoPlan), "%v", err)

	// A rule added later is matched against the registered expressions.
	added, err := p.AddRule(testexpr.PhysLeafRule())
	require.NoError(t, err)
	require.True(t, added)
	plan, err := p.FindBestExp()
	require.NoError(t, err)
	require.Equal(t, "PhysLeaf(a)\n", testexpr.Format(plan))
	require.False(t, p.BestCost(s).IsInfinite())
}

var (
	convA = opt.NewConvention("A", 10, nil)
	convB = opt.NewConvention("B", 11, nil)
	convC = opt.NewConvention("C", 12, nil)
)

// chainLeaf is a leaf of convention A. An unusable leaf has infinite cost.
type chainLeaf struct {
	label    string
	unusable bool
}

func (e *chainLeaf) Digest() string {
	return fmt.Sprintf("chainLeaf(%s,unusable=%t)", e.label, e.unusable)
}

func (e *chainLeaf) Convention() *opt.Convention {
	return convA
}

func (e *chainLeaf) ChildCount() int {
	return 0
}

func (e *chainLeaf) Child(nth int) opt.Expr {
	panic(errors.AssertionFailedf("chainLeaf has no inputs"))
}

func (e *chainLeaf) SetChild(nth int, child opt.Expr) {
	panic(errors.AssertionFailedf("chainLeaf has no inputs"))
}

func (e *chainLeaf) SelfCost(f opt.CostFactory) opt.Cost {
	if e.unusable {
		return f.MakeInfiniteCost()
	}
	return f.MakeTinyCost()
}

func (e *chainLeaf) Clone() opt.Expr {
	c := *e
	return &c
}

func (e *chainLeaf) RowType() string {
	return testexpr.LeafRowType
}

// chainConv converts its input to another convention at a tiny cost.
type chainConv struct {
	to    *opt.Convention
	input opt.Expr
}

var _ opt.Converter = (*chainConv)(nil)

func (e *chainConv) Digest() string {
	return fmt.Sprintf("chainConv.%s(%s)", e.to, e.input.Digest())
}

func (e *chainConv) Convention() *opt.Convention {
	return e.to
}

func (e *chainConv) InputConvention() *opt.Convention {
	return e.input.Convention()
}

func (e *chainConv) ChildCount() int {
	return 1
}

func (e *chainConv) Child(nth int) opt.Expr {
	return e.input
}

func (e *chainConv) SetChild(nth int, child opt.Expr) {
	e.input = child
}

func (e *chainConv) SelfCost(f opt.CostFactory) opt.Cost {
	return f.MakeTinyCost()
}

func (e *chainConv) Clone() opt.Expr {
	c := *e
	return &c
}

func (e *chainConv) RowType() string {
	return e.input.RowType()
}

func newChainPlanner(t *testing.T, allowInfinite bool) *volcano.Planner {
	t.Helper()
	converter := func(in, out *opt.Convention) opt.Rule {
		return opt.NewConverterRule(opt.AnyExpr, in, out, fmt.Sprintf("%sTo%sRule", in, out), true,
			func(e opt.Expr) opt.Expr { return &chainConv{to: out, input: e} })
	}
	p := newPlanner(t, volcano.Settings{AllowInfiniteCostConverters: allowInfinite},
		converter(convA, convB), converter(convB, convC))
	for _, c := range []*opt.Convention{convA, convB, convC} {
		require.True(t, p.AddCallingConvention(c))
	}
	return p
}

func setDigests(p *volcano.Planner, s volcano.Subset) []string {
	var digests []string
	for _, m := range p.SetMembers(s) {
		digests = append(digests, m.Digest())
	}
	return digests
}

// TestConversionPath converts through two converter rules, A to B and B to C.
func TestConversionPath(t *testing.T) {
	defer log.Scope(t).Close(t)

	t.Run("finite", func(t *testing.T) {
		p := newChainPlanner(t, false /* allowInfinite */)
		require.True(t, p.CanConvert(convA, convC))
		require.False(t, p.CanConvert(convC, convA))

		root, err := p.ChangeConvention(&chainLeaf{label: "a"}, convC)
		require.NoError(t, err)
		s := root.(volcano.Subset)
		require.Equal(t, "Subset#1.C", s.Digest())
		require.True(t, p.BestCost(s).Equals(p.MakeCost(3, 3, 0)), "%s", p.BestCost(s))
		require.Equal(t, 0.0, testutil.ToFloat64(p.Metrics().AbstractConverters))
		require.Equal(t, []string{
			"chainLeaf(a,unusable=false)", "chainConv.B(Subset#1.A)", "chainConv.C(Subset#1.B)",
		}, setDigests(p, s))

		require.NoError(t, p.SetRoot(root))
		plan, err := p.FindBestExp()
		require.NoError(t, err)
		toC, ok := plan.(*chainConv)
		require.True(t, ok, "%s", plan.Digest())
		toB, ok := toC.input.(*chainConv)
		require.True(t, ok, "%s", toC.input.Digest())
		require.Equal(t, convB, toB.to)
		require.IsType(t, &chainLeaf{}, toB.input)
	})

	// An infinite cost input ends the conversion at the first arc, unless
	// infinite cost converters are allowed.
	t.Run("infinite", func(t *testing.T) {
		p := newChainPlanner(t, false /* allowInfinite */)
		root, err := p.ChangeConvention(&chainLeaf{label: "a", unusable: true}, convC)
		require.NoError(t, err)
		s := root.(volcano.Subset)
		require.True(t, p.BestCost(s).IsInfinite())
		require.Equal(t, 1.0, testutil.ToFloat64(p.Metrics().AbstractConverters))
		require.Equal(t, []string{
			"chainLeaf(a,unusable=true)", "AbstractConverter(Subset#1.A,convention=C)",
		}, setDigests(p, s))
	})

	t.Run("infinite allowed", func(t *testing.T) {
		p := newChainPlanner(t, true /* allowInfinite */)
		root, err := p.ChangeConvention(&chainLeaf{label: "a", unusable: true}, convC)
		require.NoError(t, err)
		s := root.(volcano.Subset)
		require.True(t, p.BestCost(s).IsInfinite())
		require.Equal(t, 0.0, testutil.ToFloat64(p.Metrics().AbstractConverters))
		require.Equal(t, []string{
			"chainLeaf(a,unusable=true)", "chainConv.B(Subset#1.A)", "chainConv.C(Subset#1.B)",
		}, setDigests(p, s))
	})
}

func TestConverterRule(t *testing.T) {
	defer log.Scope(t).Close(t)

	t.Run("added before", func(t *testing.T) {
		p := newPlanner(t, volcano.Settings{}, testexpr.PhysToIteratorRule())
		require.True(t, p.CanConvert(testexpr.Phys, testexpr.Iterator))
		require.False(t, p.CanConvert(testexpr.Iterator, testexpr.Phys))

		// The conversion is registered right away, with a finite cost.
		root, err := p.ChangeConvention(testexpr.NewPhysLeaf("a"), testexpr.Iterator)
		require.NoError(t, err)
		require.True(t, p.BestCost(root.(volcano.Subset)).Equals(p.MakeCost(2, 2, 0)))
		require.Equal(t, 0.0, testutil.ToFloat64(p.Metrics().AbstractConverters))
	})

	t.Run("added after", func(t *testing.T) {
		p := newPlanner(t, volcano.Settings{})
		require.False(t, p.CanConvert(testexpr.Phys, testexpr.Iterator))
		root, err := p.ChangeConvention(testexpr.NewPhysLeaf("a"), testexpr.Iterator)
		require.NoError(t, err)
		require.NoError(t, p.SetRoot(root))
		require.True(t, p.BestCost(root.(volcano.Subset)).IsInfinite())

		_, err = p.AddRule(testexpr.PhysToIteratorRule())
		require.NoError(t, err)
		require.True(t, p.CanConvert(testexpr.Phys, testexpr.Iterator))
		plan, err := p.FindBestExp()
		require.NoError(t, err)
		require.Equal(t, "PhysToIterator\n  PhysLeaf(a)\n", testexpr.Format(plan))
	})

	t.Run("abstract rules", func(t *testing.T) {
		p := newPlanner(t, volcano.Settings{})
		require.NoError(t, p.RegisterAbstractRules())
		root, err := p.ChangeConvention(testexpr.NewPhysLeaf("a"), testexpr.Iterator)
		require.NoError(t, err)
		require.NoError(t, p.SetRoot(root))
		_, err = p.AddRule(testexpr.PhysToIteratorRule())
		require.NoError(t, err)

		// The abstract converter was queued first, and is expanded into the
		// conversion.
		plan, err := p.FindBestExp()
		require.NoError(t, err)
		require.Equal(t, "PhysToIterator\n  PhysLeaf(a)\n", testexpr.Format(plan))
		require.Equal(t, 1.0, testutil.ToFloat64(p.Metrics().MatchesFired))
	})
}

// fakePhys claims the PHYS convention without implementing PhysRel.
type fakePhys struct{}

func (*fakePhys) Digest() string                      { return "fakePhys" }
func (*fakePhys) Convention() *opt.Convention         { return testexpr.Phys }
func (*fakePhys) ChildCount() int                     { return 0 }
func (*fakePhys) Child(int) opt.Expr                  { panic("no inputs") }
func (*fakePhys) SetChild(int, opt.Expr)              { panic("no inputs") }
func (*fakePhys) SelfCost(f opt.CostFactory) opt.Cost { return f.MakeTinyCost() }
func (e *fakePhys) Clone() opt.Expr                   { return e }
func (*fakePhys) RowType() string                     { return testexpr.LeafRowType }

func TestConventionInterfaceMismatch(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{})

	_, err := p.Register(&fakePhys{}, nil)
	require.Error(t, err)
	require.True(t, errors.HasAssertionFailure(err))
	require.Contains(t, err.Error(), "does not implement")

	// The error aborts the session.
	_, err2 := p.Register(testexpr.NewNoneLeaf("a"), nil)
	require.Equal(t, err, err2)
	_, err2 = p.FindBestExp()
	require.Equal(t, err, err2)
}

func TestRuleError(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{}, testexpr.FailingRule())

	require.NoError(t, p.SetRoot(testexpr.NewNoneLeaf("a")))
	_, err := p.FindBestExp()
	require.Error(t, err)
	require.True(t, errors.Is(err, testexpr.ErrInjected))
	require.False(t, errors.HasAssertionFailure(err))
	require.Equal(t, "rule FailingRule: injected rule failure", err.Error())
	require.Contains(t, strings.Join(errors.GetAllDetails(err), "\n"), "bindings: rel#1:NoneLeaf(a)")

	_, err2 := p.FindBestExp()
	require.Equal(t, err, err2)
}

func TestRuleAssertionFailure(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{}, testexpr.MismatchedRowTypeRule())

	require.NoError(t, p.SetRoot(testexpr.NewNoneLeaf("a")))
	_, err := p.FindBestExp()
	require.Error(t, err)
	require.True(t, errors.HasAssertionFailure(err))
	require.Contains(t, err.Error(), "rule MismatchedRowTypeRule")
	require.Contains(t, err.Error(), "row type")
}

type namedRule struct {
	desc string
	op   *opt.Operand
}

func (r *namedRule) Operand() *opt.Operand          { return r.op }
func (r *namedRule) OnMatch(opt.RuleCall) error     { return nil }
func (r *namedRule) OutConvention() *opt.Convention { return nil }
func (r *namedRule) String() string                 { return r.desc }

func TestAddRule(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{})

	r := testexpr.PhysLeafRule()
	added, err := p.AddRule(r)
	require.NoError(t, err)
	require.True(t, added)

	added, err = p.AddRule(r)
	require.NoError(t, err)
	require.False(t, added)

	_, err = p.AddRule(&namedRule{desc: "Leaf$Rule", op: opt.NewOperand(opt.AnyExpr)})
	require.Error(t, err)
	_, err = p.AddRule(&namedRule{op: opt.NewOperand(opt.AnyExpr)})
	require.Error(t, err)

	// Rejected rules do not abort the session.
	require.Len(t, p.Rules(), 1)
	_, err = p.Register(testexpr.NewNoneLeaf("a"), nil)
	require.NoError(t, err)

	// A second rule with the same description does.
	_, err = p.AddRule(testexpr.PhysLeafRule())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not unique")
	require.True(t, errors.HasAssertionFailure(err))
	_, err2 := p.Register(testexpr.NewNoneLeaf("b"), nil)
	require.Equal(t, err, err2)
}

func TestDump(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{}, testexpr.PhysLeafRule(), testexpr.GoodSingleRule())
	require.Contains(t, p.String(), "Root: none")

	_, err := planAs(t, p, "single(leaf(a))", testexpr.Phys)
	require.NoError(t, err)

	out := p.String()
	for _, expected := range []string{
		"Root: Subset#2.PHYS",
		"Sets: 2 live, 0 merged",
		"Expressions: 6 registered",
		"Rule matches: 0 pending, 2 fired",
		"Best cost",
		"Subset#1.PHYS",
		"rel#5 PhysSingle(Subset#1.PHYS)",
		"rel#6 PhysLeaf(a)",
		"{2 rows, 2 cpu, 0 io}",
		"{inf}",
	} {
		require.Contains(t, out, expected)
	}
}

func TestMetricsRegister(t *testing.T) {
	defer log.Scope(t).Close(t)
	reg := prometheus.NewRegistry()
	shared := volcano.NewMetrics()
	require.NoError(t, shared.Register(reg))
	require.Error(t, shared.Register(reg))

	// Planners that share metrics accumulate into the same counters.
	for i := 0; i < 2; i++ {
		p := newPlanner(t, volcano.Settings{}, testexpr.PhysLeafRule())
		p.SetMetrics(shared)
		_, err := planAs(t, p, "leaf(a)", testexpr.Phys)
		require.NoError(t, err)
	}
	require.Equal(t, 2.0, testutil.ToFloat64(shared.MatchesFired))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.Contains(t, names, "volcano_rule_matches_fired_total")
}

func TestMetricsRegisterRollsBack(t *testing.T) {
	defer log.Scope(t).Close(t)
	reg := prometheus.NewRegistry()
	blocker := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "volcano",
		Name:      "rule_matches_fired_total",
		Help:      "Registered by someone else.",
	})
	require.NoError(t, reg.Register(blocker))

	m := volcano.NewMetrics()
	err := m.Register(reg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "registering planner metrics")

	// The counters registered before the failure were removed again.
	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "volcano_rule_matches_fired_total", families[0].GetName())

	require.True(t, reg.Unregister(blocker))
	require.NoError(t, m.Register(reg))
	families, err = reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 5)
}

func TestPlannerInit(t *testing.T) {
	defer log.Scope(t).Close(t)
	p := newPlanner(t, volcano.Settings{}, testexpr.FailingRule())
	require.NoError(t, p.SetRoot(testexpr.NewNoneLeaf("a")))
	_, err := p.FindBestExp()
	require.Error(t, err)

	// Init starts a new session.
	p.Init(context.Background(), volcano.Settings{Validate: true})
	_, ok := p.Root()
	require.False(t, ok)
	require.Empty(t, p.Rules())
	require.Equal(t, 0, p.SetCount())
	_, err = p.FindBestExp()
	require.EqualError(t, err, "root has not been set")
	_, err = p.Register(testexpr.NewNoneLeaf("a"), nil)
	require.NoError(t, err)
}
