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

package testexpr

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/volcano/pkg/opt"
)

// ErrInjected is returned by FailingRule.
var ErrInjected = errors.New("injected rule failure")

// rule implements opt.Rule with a function.
type rule struct {
	desc    string
	operand *opt.Operand
	out     *opt.Convention
	onMatch func(call opt.RuleCall) error
}

func (r *rule) Operand() *opt.Operand { return r.operand }

func (r *rule) OnMatch(call opt.RuleCall) error { return r.onMatch(call) }

func (r *rule) OutConvention() *opt.Convention { return r.out }

func (r *rule) String() string { return r.desc }

// PhysLeafRule implements a NoneLeaf as a PhysLeaf with the same label.
func PhysLeafRule() opt.Rule {
	return &rule{
		desc:    "PhysLeafRule",
		operand: opt.NewOperand(opt.TypeOf[*NoneLeaf]()),
		out:     Phys,
		onMatch: func(call opt.RuleCall) error {
			call.TransformTo(NewPhysLeaf(call.Rel(0).(*NoneLeaf).Label))
			return nil
		},
	}
}

// ExpensivePhysLeafRule implements a NoneLeaf as a PhysLeaf of 100 rows.
func ExpensivePhysLeafRule() opt.Rule {
	return &rule{
		desc:    "ExpensivePhysLeafRule",
		operand: opt.NewOperand(opt.TypeOf[*NoneLeaf]()),
		out:     Phys,
		onMatch: func(call opt.RuleCall) error {
			l := NewPhysLeaf(call.Rel(0).(*NoneLeaf).Label)
			l.Rows = 100
			call.TransformTo(l)
			return nil
		},
	}
}

func implementSingle(call opt.RuleCall) error {
	input, err := opt.Convert(call.Planner(), call.Rel(1), Phys)
	if err != nil {
		return err
	}
	call.TransformTo(NewPhysSingle(input))
	return nil
}

// GoodSingleRule implements a NoneSingle as a PhysSingle over a PHYS
// conversion of any input.
func GoodSingleRule() opt.Rule {
	return &rule{
		desc:    "GoodSingleRule",
		operand: opt.NewOperand(opt.TypeOf[*NoneSingle](), opt.NewOperand(opt.AnyExpr)),
		out:     Phys,
		onMatch: implementSingle,
	}
}

// BadSingleRule is like GoodSingleRule, but requires the input to be a
// PhysLeaf. A NoneSingle has the NONE subset of its input as its input, which
// never contains a PhysLeaf, so the rule never matches.
func BadSingleRule() opt.Rule {
	return &rule{
		desc:    "BadSingleRule",
		operand: opt.NewOperand(opt.TypeOf[*NoneSingle](), opt.NewOperand(opt.TypeOf[*PhysLeaf]())),
		out:     Phys,
		onMatch: implementSingle,
	}
}

// RemoveSingleRule replaces a NoneSingle with its input.
func RemoveSingleRule() opt.Rule {
	return &rule{
		desc:    "RemoveSingleRule",
		operand: opt.NewOperand(opt.TypeOf[*NoneSingle]()),
		onMatch: func(call opt.RuleCall) error {
			call.TransformTo(call.Rel(0).Child(0))
			return nil
		},
	}
}

// FuseSingleLeafRule replaces a PhysSingle over a PhysLeaf with a single
// PhysLeaf labeled "single_<label>". A PhysSingle that has been merged into
// the set of its own input is left alone; otherwise every fused leaf would
// be fused again.
func FuseSingleLeafRule() opt.Rule {
	return &rule{
		desc: "FuseSingleLeafRule",
		operand: opt.NewOperand(opt.TypeOf[*PhysSingle](),
			opt.NewLeafOperand(opt.TypeOf[*PhysLeaf]())),
		out: Phys,
		onMatch: func(call opt.RuleCall) error {
			single := call.Rel(0)
			p := call.Planner()
			s, err := p.EnsureRegistered(single, nil)
			if err != nil {
				return err
			}
			input, err := p.EnsureRegistered(single.Child(0), nil)
			if err != nil {
				return err
			}
			if s.Digest() == input.Digest() {
				return nil
			}
			call.TransformTo(NewPhysLeaf("single_" + call.Rel(1).(*PhysLeaf).Label))
			return nil
		},
	}
}

// PhysProjectRule implements a Project as a PhysLeaf labeled "b".
func PhysProjectRule() opt.Rule {
	return &rule{
		desc:    "PhysProjectRule",
		operand: opt.NewOperand(opt.TypeOf[*Project](), opt.NewOperand(opt.AnyExpr)),
		out:     Phys,
		onMatch: func(call opt.RuleCall) error {
			call.TransformTo(NewPhysLeaf("b"))
			return nil
		},
	}
}

// RemoveTrivialProjectRule replaces a Project with its input.
func RemoveTrivialProjectRule() opt.Rule {
	return &rule{
		desc:    "RemoveTrivialProjectRule",
		operand: opt.NewOperand(opt.TypeOf[*Project](), opt.NewOperand(opt.AnyExpr)),
		onMatch: func(call opt.RuleCall) error {
			call.TransformTo(call.Rel(0).Child(0))
			return nil
		},
	}
}

// PhysJoinRule implements a NoneJoin as a PhysJoin over PHYS conversions of
// both inputs.
func PhysJoinRule() opt.Rule {
	return &rule{
		desc: "PhysJoinRule",
		operand: opt.NewOperand(opt.TypeOf[*NoneJoin](),
			opt.NewOperand(opt.AnyExpr), opt.NewOperand(opt.AnyExpr)),
		out: Phys,
		onMatch: func(call opt.RuleCall) error {
			left, err := opt.Convert(call.Planner(), call.Rel(1), Phys)
			if err != nil {
				return err
			}
			right, err := opt.Convert(call.Planner(), call.Rel(2), Phys)
			if err != nil {
				return err
			}
			call.TransformTo(NewPhysJoin(left, right))
			return nil
		},
	}
}

// PhysToIteratorRule converts any PHYS expression to ITERATOR.
func PhysToIteratorRule() opt.Rule {
	return opt.NewConverterRule(opt.AnyExpr, Phys, Iterator, "PhysToIteratorRule", true,
		func(e opt.Expr) opt.Expr { return NewPhysToIterator(e) })
}

// FailingRule matches any NoneLeaf and fails with ErrInjected.
func FailingRule() opt.Rule {
	return &rule{
		desc:    "FailingRule",
		operand: opt.NewOperand(opt.TypeOf[*NoneLeaf]()),
		onMatch: func(call opt.RuleCall) error {
			return ErrInjected
		},
	}
}

// MismatchedRowTypeRule claims that a NoneLeaf is equivalent to a join of
// two leaves, which has a different row type.
func MismatchedRowTypeRule() opt.Rule {
	return &rule{
		desc:    "MismatchedRowTypeRule",
		operand: opt.NewOperand(opt.TypeOf[*NoneLeaf]()),
		onMatch: func(call opt.RuleCall) error {
			l := call.Rel(0).(*NoneLeaf)
			call.TransformTo(NewNoneJoin(NewNoneLeaf(l.Label), NewNoneLeaf(l.Label+"2")))
			return nil
		},
	}
}

var ruleConstructors = map[string]func() opt.Rule{
	"PhysLeafRule":             PhysLeafRule,
	"ExpensivePhysLeafRule":    ExpensivePhysLeafRule,
	"GoodSingleRule":           GoodSingleRule,
	"BadSingleRule":            BadSingleRule,
	"RemoveSingleRule":         RemoveSingleRule,
	"FuseSingleLeafRule":       FuseSingleLeafRule,
	"PhysProjectRule":          PhysProjectRule,
	"RemoveTrivialProjectRule": RemoveTrivialProjectRule,
	"PhysJoinRule":             PhysJoinRule,
	"PhysToIteratorRule":       PhysToIteratorRule,
	"FailingRule":              FailingRule,
	"MismatchedRowTypeRule":    MismatchedRowTypeRule,
}

// RuleByName returns a new instance of the rule with the given name.
func RuleByName(name string) (opt.Rule, error) {
	ctor, ok := ruleConstructors[name]
	if !ok {
		return nil, errors.Newf("unknown rule %q", name)
	}
	return ctor(), nil
}

// RuleNames returns the names of every rule, sorted.
func RuleNames() []string {
	names := make([]string, 0, len(ruleConstructors))
	for name := range ruleConstructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
