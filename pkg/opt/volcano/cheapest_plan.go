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
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/volcano/pkg/opt"
)

// buildCheapestPlan replaces the subset by its best expression, and the inputs
// of that expression by their best expressions, recursively. The expressions
// in the result are clones, so the plan does not share any expression with
// the planner.
func (p *Planner) buildCheapestPlan(s Subset) opt.Expr {
	s = p.canonical(s)
	ss := p.subsetState(s)
	if ss == nil || ss.best == 0 {
		panic(errors.AssertionFailedf("%s has no best expression", s))
	}
	if ss.active {
		panic(errors.AssertionFailedf("cycle in the cheapest plan at %s", s))
	}
	ss.active = true
	defer func() { ss.active = false }()

	e := p.exprs[ss.best].expr.Clone()
	for i, n := 0, e.ChildCount(); i < n; i++ {
		in, ok := e.Child(i).(Subset)
		if !ok {
			panic(errors.AssertionFailedf("input %d of %s is not a subset", i, e.Digest()))
		}
		e.SetChild(i, p.buildCheapestPlan(in))
	}
	return e
}
