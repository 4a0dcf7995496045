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

// Package testexpr is a small relational algebra for testing the planner. It
// has logical and physical leaves, single-input operators, projections and
// joins, along with rules that implement the logical operators physically.
package testexpr

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/volcano/pkg/opt"
)

// PhysRel is implemented by every expression of the PHYS convention.
type PhysRel interface {
	opt.Expr
	physRel()
}

// IteratorRel is implemented by every expression of the ITERATOR convention.
type IteratorRel interface {
	opt.Expr
	iteratorRel()
}

var (
	// Phys is a physical convention: expressions of this convention can be
	// executed and have a finite cost.
	Phys = opt.NewConvention("PHYS", 1, opt.TypeOf[PhysRel]())

	// Iterator is a second physical convention, which PHYS expressions can be
	// converted to.
	Iterator = opt.NewConvention("ITERATOR", 2, opt.TypeOf[IteratorRel]())
)

// Conventions returns every convention of the algebra, NONE included.
func Conventions() []*opt.Convention {
	return []*opt.Convention{opt.NoneConvention, Phys, Iterator}
}

// ConventionByName returns the convention with the given name.
func ConventionByName(name string) (*opt.Convention, error) {
	for _, c := range Conventions() {
		if strings.EqualFold(c.Name(), name) {
			return c, nil
		}
	}
	return nil, errors.Newf("unknown convention %q", name)
}

// LeafRowType is the row type of every leaf.
const LeafRowType = "(this)"

type leaf struct {
	Label string
}

func (l *leaf) ChildCount() int { return 0 }

func (l *leaf) Child(nth int) opt.Expr {
	panic(errors.AssertionFailedf("leaf %s has no inputs", l.Label))
}

func (l *leaf) SetChild(nth int, child opt.Expr) {
	panic(errors.AssertionFailedf("leaf %s has no inputs", l.Label))
}

func (l *leaf) RowType() string { return LeafRowType }

// NoneLeaf is a logical leaf, such as a table, identified by its label.
type NoneLeaf struct {
	leaf
}

// NewNoneLeaf returns a logical leaf.
func NewNoneLeaf(label string) *NoneLeaf {
	return &NoneLeaf{leaf{Label: label}}
}

func (e *NoneLeaf) Digest() string { return fmt.Sprintf("NoneLeaf(%s)", e.Label) }

func (e *NoneLeaf) Convention() *opt.Convention { return opt.NoneConvention }

func (e *NoneLeaf) SelfCost(f opt.CostFactory) opt.Cost { return f.MakeInfiniteCost() }

func (e *NoneLeaf) Clone() opt.Expr {
	c := *e
	return &c
}

// PhysLeaf is a physical leaf. Its cost is tiny unless Rows is set.
type PhysLeaf struct {
	leaf
	Rows float64
}

var _ PhysRel = (*PhysLeaf)(nil)

// NewPhysLeaf returns a physical leaf.
func NewPhysLeaf(label string) *PhysLeaf {
	return &PhysLeaf{leaf: leaf{Label: label}}
}

func (e *PhysLeaf) physRel() {}

func (e *PhysLeaf) Digest() string {
	if e.Rows != 0 {
		return fmt.Sprintf("PhysLeaf(%s,rows=%g)", e.Label, e.Rows)
	}
	return fmt.Sprintf("PhysLeaf(%s)", e.Label)
}

func (e *PhysLeaf) Convention() *opt.Convention { return Phys }

func (e *PhysLeaf) SelfCost(f opt.CostFactory) opt.Cost {
	if e.Rows != 0 {
		return f.MakeCost(e.Rows, 1, 0)
	}
	return f.MakeTinyCost()
}

func (e *PhysLeaf) Clone() opt.Expr {
	c := *e
	return &c
}

// single is embedded by the operators that have one input.
type single struct {
	Input opt.Expr
}

func (s *single) ChildCount() int { return 1 }

func (s *single) Child(nth int) opt.Expr {
	if nth != 0 {
		panic(errors.AssertionFailedf("invalid input %d", nth))
	}
	return s.Input
}

func (s *single) SetChild(nth int, child opt.Expr) {
	if nth != 0 {
		panic(errors.AssertionFailedf("invalid input %d", nth))
	}
	s.Input = child
}

func (s *single) RowType() string { return s.Input.RowType() }

// NoneSingle is a logical operator with one input, which produces the rows
// of its input.
type NoneSingle struct {
	single
}

// NewNoneSingle returns a logical single-input operator.
func NewNoneSingle(input opt.Expr) *NoneSingle {
	return &NoneSingle{single{Input: input}}
}

func (e *NoneSingle) Digest() string { return fmt.Sprintf("NoneSingle(%s)", e.Input.Digest()) }

func (e *NoneSingle) Convention() *opt.Convention { return opt.NoneConvention }

func (e *NoneSingle) SelfCost(f opt.CostFactory) opt.Cost { return f.MakeInfiniteCost() }

func (e *NoneSingle) Clone() opt.Expr {
	c := *e
	return &c
}

// PhysSingle implements NoneSingle.
type PhysSingle struct {
	single
}

var _ PhysRel = (*PhysSingle)(nil)

// NewPhysSingle returns a physical single-input operator.
func NewPhysSingle(input opt.Expr) *PhysSingle {
	return &PhysSingle{single{Input: input}}
}

func (e *PhysSingle) physRel() {}

func (e *PhysSingle) Digest() string { return fmt.Sprintf("PhysSingle(%s)", e.Input.Digest()) }

func (e *PhysSingle) Convention() *opt.Convention { return Phys }

func (e *PhysSingle) SelfCost(f opt.CostFactory) opt.Cost { return f.MakeTinyCost() }

func (e *PhysSingle) Clone() opt.Expr {
	c := *e
	return &c
}

// Project is a logical projection that keeps the only column of its input.
type Project struct {
	single
}

// NewProject returns a projection of the input.
func NewProject(input opt.Expr) *Project {
	return &Project{single{Input: input}}
}

func (e *Project) Digest() string { return fmt.Sprintf("Project(%s)", e.Input.Digest()) }

func (e *Project) Convention() *opt.Convention { return opt.NoneConvention }

func (e *Project) SelfCost(f opt.CostFactory) opt.Cost { return f.MakeInfiniteCost() }

func (e *Project) Clone() opt.Expr {
	c := *e
	return &c
}

// PhysToIterator converts a PHYS input to the ITERATOR convention.
type PhysToIterator struct {
	single
}

var _ IteratorRel = (*PhysToIterator)(nil)
var _ opt.Converter = (*PhysToIterator)(nil)

// NewPhysToIterator returns a converter of the input to ITERATOR.
func NewPhysToIterator(input opt.Expr) *PhysToIterator {
	return &PhysToIterator{single{Input: input}}
}

func (e *PhysToIterator) iteratorRel() {}

func (e *PhysToIterator) Digest() string {
	return fmt.Sprintf("PhysToIterator(%s)", e.Input.Digest())
}

func (e *PhysToIterator) Convention() *opt.Convention { return Iterator }

// InputConvention is part of the opt.Converter interface.
func (e *PhysToIterator) InputConvention() *opt.Convention { return Phys }

func (e *PhysToIterator) SelfCost(f opt.CostFactory) opt.Cost { return f.MakeTinyCost() }

func (e *PhysToIterator) Clone() opt.Expr {
	c := *e
	return &c
}

// join is embedded by the operators that have two inputs.
type join struct {
	Left, Right opt.Expr
}

func (j *join) ChildCount() int { return 2 }

func (j *join) Child(nth int) opt.Expr {
	switch nth {
	case 0:
		return j.Left
	case 1:
		return j.Right
	}
	panic(errors.AssertionFailedf("invalid input %d", nth))
}

func (j *join) SetChild(nth int, child opt.Expr) {
	switch nth {
	case 0:
		j.Left = child
	case 1:
		j.Right = child
	default:
		panic(errors.AssertionFailedf("invalid input %d", nth))
	}
}

// RowType concatenates the columns of both inputs.
func (j *join) RowType() string {
	left := strings.TrimSuffix(j.Left.RowType(), ")")
	right := strings.TrimPrefix(j.Right.RowType(), "(")
	return left + ", " + right
}

// NoneJoin is a logical join of two inputs.
type NoneJoin struct {
	join
}

// NewNoneJoin returns a logical join.
func NewNoneJoin(left, right opt.Expr) *NoneJoin {
	return &NoneJoin{join{Left: left, Right: right}}
}

func (e *NoneJoin) Digest() string {
	return fmt.Sprintf("NoneJoin(%s,%s)", e.Left.Digest(), e.Right.Digest())
}

func (e *NoneJoin) Convention() *opt.Convention { return opt.NoneConvention }

func (e *NoneJoin) SelfCost(f opt.CostFactory) opt.Cost { return f.MakeInfiniteCost() }

func (e *NoneJoin) Clone() opt.Expr {
	c := *e
	return &c
}

// PhysJoin implements NoneJoin.
type PhysJoin struct {
	join
}

var _ PhysRel = (*PhysJoin)(nil)

// NewPhysJoin returns a physical join.
func NewPhysJoin(left, right opt.Expr) *PhysJoin {
	return &PhysJoin{join{Left: left, Right: right}}
}

func (e *PhysJoin) physRel() {}

func (e *PhysJoin) Digest() string {
	return fmt.Sprintf("PhysJoin(%s,%s)", e.Left.Digest(), e.Right.Digest())
}

func (e *PhysJoin) Convention() *opt.Convention { return Phys }

func (e *PhysJoin) SelfCost(f opt.CostFactory) opt.Cost { return f.MakeCost(2, 2, 0) }

func (e *PhysJoin) Clone() opt.Expr {
	c := *e
	return &c
}
