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

package opt

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
)

// Operand is a node in the pattern tree of a rule. It matches an expression
// if the expression has the operand's type, has the operand's convention (if
// one is given) and, recursively, if its children match the child operands.
//
// The Children slice distinguishes two cases: a nil slice matches an
// expression with any inputs, while an empty, non-nil slice only matches
// expressions with no inputs.
//
// An operand belongs to exactly one rule. The positional fields are assigned
// by InitOperands when the rule is added to a planner.
type Operand struct {
	// Type is the type an expression must have. If Type is an interface type,
	// the expression must implement it.
	Type reflect.Type

	// Convention, if not nil, is the convention an expression must have.
	Convention *Convention

	// Children are the operands of the expression's inputs.
	Children []*Operand

	rule            Rule
	parent          *Operand
	ordinalInParent int
	ordinalInRule   int
	solveOrder      []int
	all             []*Operand
}

// NewOperand returns an operand that matches expressions of the given type
// whose inputs match the given child operands. With no child operands, any
// inputs are matched.
func NewOperand(typ reflect.Type, children ...*Operand) *Operand {
	return &Operand{Type: typ, Children: children}
}

// NewLeafOperand returns an operand that only matches expressions of the
// given type that have no inputs.
func NewLeafOperand(typ reflect.Type) *Operand {
	return &Operand{Type: typ, Children: []*Operand{}}
}

// WithConvention restricts the operand to expressions of the given
// convention and returns the operand.
func (o *Operand) WithConvention(c *Convention) *Operand {
	o.Convention = c
	return o
}

// Matches returns true if the expression satisfies the operand's own filters.
// Child operands are not examined.
func (o *Operand) Matches(e Expr) bool {
	t := reflect.TypeOf(e)
	if o.Type.Kind() == reflect.Interface {
		if !t.Implements(o.Type) {
			return false
		}
	} else if t != o.Type {
		return false
	}
	if o.Convention != nil && e.Convention() != o.Convention {
		return false
	}
	if o.Children != nil && len(o.Children) == 0 && e.ChildCount() != 0 {
		return false
	}
	return len(o.Children) <= e.ChildCount()
}

// Rule returns the rule the operand belongs to.
func (o *Operand) Rule() Rule {
	return o.rule
}

// Parent returns the parent operand, or nil for the root operand.
func (o *Operand) Parent() *Operand {
	return o.parent
}

// OrdinalInParent returns the input position this operand matches within its
// parent's expression.
func (o *Operand) OrdinalInParent() int {
	return o.ordinalInParent
}

// OrdinalInRule returns the position of the operand in a prefix walk of the
// rule's pattern tree. The root operand has ordinal 0.
func (o *Operand) OrdinalInRule() int {
	return o.ordinalInRule
}

// SolveOrder returns the order in which the rule's operands are bound when
// matching starts from this operand: the operand itself, then its ancestors
// up to the root, then every other operand in prefix order.
func (o *Operand) SolveOrder() []int {
	return o.solveOrder
}

// RuleOperands returns all operands of the rule, indexed by ordinal.
func (o *Operand) RuleOperands() []*Operand {
	return o.all
}

func (o *Operand) String() string {
	var b strings.Builder
	o.format(&b)
	return b.String()
}

func (o *Operand) format(b *strings.Builder) {
	name := o.Type.String()
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	b.WriteString(name)
	if o.Convention != nil {
		fmt.Fprintf(b, "[%s]", o.Convention)
	}
	if o.Children != nil {
		b.WriteByte('(')
		for i, c := range o.Children {
			if i > 0 {
				b.WriteString(", ")
			}
			c.format(b)
		}
		b.WriteByte(')')
	}
}

// InitOperands assigns parents, ordinals and solve orders to the operands of
// the rule's pattern tree, and returns the operands in prefix order. It panics
// if an operand is shared with another rule.
func InitOperands(r Rule) []*Operand {
	var all []*Operand
	var walk func(o, parent *Operand, ordinalInParent int)
	walk = func(o, parent *Operand, ordinalInParent int) {
		if o.rule != nil && o.rule.String() != r.String() {
			panic(errors.AssertionFailedf(
				"operand %s of rule %s already belongs to rule %s", o, r, o.rule))
		}
		o.rule = r
		o.parent = parent
		o.ordinalInParent = ordinalInParent
		o.ordinalInRule = len(all)
		all = append(all, o)
		for i, c := range o.Children {
			walk(c, o, i)
		}
	}
	walk(r.Operand(), nil, 0)

	for _, o := range all {
		o.all = all
		o.solveOrder = computeSolveOrder(o, all)
	}
	return all
}

func computeSolveOrder(o *Operand, all []*Operand) []int {
	order := make([]int, 0, len(all))
	seen := make([]bool, len(all))
	for p := o; p != nil; p = p.parent {
		order = append(order, p.ordinalInRule)
		seen[p.ordinalInRule] = true
	}
	for i := range all {
		if !seen[i] {
			order = append(order, i)
		}
	}
	if len(order) != len(all) {
		panic(errors.AssertionFailedf("solve order of %s has %d operands, expected %d",
			o, len(order), len(all)))
	}
	return order
}
