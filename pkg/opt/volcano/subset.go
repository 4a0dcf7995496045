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

package volcano

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/volcano/pkg/opt"
	"github.com/cockroachdb/volcano/pkg/util/log"
)

// SetID identifies an equivalence set. Sets are numbered from 1 in order of
// creation; when two sets merge, the one with the lower id survives.
type SetID int32

// SafeValue implements the redact.SafeValue interface.
func (SetID) SafeValue() {}

// ExprID identifies a registered expression. Expressions are numbered from 1
// in order of registration.
type ExprID int32

// SafeValue implements the redact.SafeValue interface.
func (ExprID) SafeValue() {}

// Subset is a handle to the expressions of an equivalence set that have a
// particular convention. It is an opt.Expr so that it can be the input of a
// registered expression: registration replaces every input with the Subset
// of the input's equivalence class.
//
// A handle keeps the id of the set it was created for, which may since have
// been merged into another set. The planner resolves handles to the live set
// before using them.
type Subset struct {
	set     SetID
	conv    *opt.Convention
	rowType string
}

var _ opt.Expr = Subset{}
var _ redact.SafeValue = Subset{}

// SetID returns the id of the set the handle was created for.
func (s Subset) SetID() SetID {
	return s.set
}

// Digest is part of the opt.Expr interface.
func (s Subset) Digest() string {
	return fmt.Sprintf("Subset#%d.%s", s.set, s.conv)
}

// Convention is part of the opt.Expr interface.
func (s Subset) Convention() *opt.Convention {
	return s.conv
}

// ChildCount is part of the opt.Expr interface.
func (s Subset) ChildCount() int {
	return 0
}

// Child is part of the opt.Expr interface.
func (s Subset) Child(nth int) opt.Expr {
	panic(errors.AssertionFailedf("%s has no inputs", s))
}

// SetChild is part of the opt.Expr interface.
func (s Subset) SetChild(nth int, child opt.Expr) {
	panic(errors.AssertionFailedf("%s has no inputs", s))
}

// SelfCost is part of the opt.Expr interface. The cost of a subset is the cost
// of its best expression, which the planner tracks separately.
func (s Subset) SelfCost(f opt.CostFactory) opt.Cost {
	return f.MakeZeroCost()
}

// Clone is part of the opt.Expr interface.
func (s Subset) Clone() opt.Expr {
	return s
}

// RowType is part of the opt.Expr interface.
func (s Subset) RowType() string {
	return s.rowType
}

func (s Subset) String() string {
	return s.Digest()
}

// SafeValue implements the redact.SafeValue interface.
func (Subset) SafeValue() {}

// getCost returns the cost of an expression including its inputs. The cost of
// a subset is the cost of its best expression so far. Expressions of the NONE
// convention cannot be executed, so their cost is infinite.
func (p *Planner) getCost(e opt.Expr) opt.Cost {
	if s, ok := e.(Subset); ok {
		if ss := p.subsetState(s); ss != nil {
			return ss.bestCost
		}
		return p.MakeInfiniteCost()
	}
	if e.Convention() == opt.NoneConvention {
		return p.MakeInfiniteCost()
	}
	c := e.SelfCost(p)
	if !p.MakeZeroCost().Less(c) {
		panic(errors.AssertionFailedf("cost %s of %s must be positive", c, e.Digest()))
	}
	for i, n := 0, e.ChildCount(); i < n; i++ {
		c = c.Plus(p.getCost(e.Child(i)))
	}
	return c
}

// propagateCostImprovements checks whether the expression is cheaper than the
// best expression of its subset. If it is, it becomes the best expression and
// every parent of the subset is checked in turn.
func (p *Planner) propagateCostImprovements(s Subset, id ExprID) {
	ss := p.subsetState(s)
	m := p.exprs[id]
	c := p.getCost(m.expr)
	if !c.Less(ss.bestCost) {
		return
	}
	log.VEventf(p.ctx, 2, "%s: cost improved from %s to %s by rel#%d", s, ss.bestCost, c, id)
	ss.bestCost = c
	ss.best = id
	p.queue.recompute(s)

	parents := append([]ExprID(nil), ss.parents...)
	for _, parentID := range parents {
		if p.exprs[parentID].discarded {
			continue
		}
		p.propagateCostImprovements(p.memberSubset(parentID), parentID)
	}
	p.checkForSatisfiedConverters(s.set, id)
}
