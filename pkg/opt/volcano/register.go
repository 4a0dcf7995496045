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
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/volcano/pkg/opt"
	"github.com/cockroachdb/volcano/pkg/util/log"
)

// register registers an expression, which is known to be equivalent to
// equivTo if equivTo is not nil.
func (p *Planner) register(e, equivTo opt.Expr) Subset {
	var setID SetID
	if equivTo != nil {
		if e.RowType() != equivTo.RowType() {
			panic(errors.AssertionFailedf("row type %s of %s does not match row type %s of %s",
				e.RowType(), e.Digest(), equivTo.RowType(), equivTo.Digest()))
		}
		setID = p.registerImpl(equivTo, 0).set
	}
	s := p.registerImpl(e, setID)
	if p.settings.Validate {
		p.validate()
	}
	return s
}

// registerImpl registers an expression in the given set, or in a new set if
// setID is zero, and returns the subset the expression belongs to. If an
// equivalent expression is already registered, the expression itself is not
// registered; instead the set of the equivalent expression is merged with the
// given set.
func (p *Planner) registerImpl(e opt.Expr, setID SetID) Subset {
	if s, ok := e.(Subset); ok {
		return p.registerSubset(setID, s)
	}
	if id, ok := p.exprIDs[e]; ok {
		return p.registerSubset(setID, p.memberSubset(id))
	}

	c := e.Convention()
	if c == nil {
		panic(errors.AssertionFailedf("%s has no convention", e.Digest()))
	}
	_, isConverter := e.(opt.Converter)
	if !isConverter && !c.Satisfies(e) {
		panic(errors.AssertionFailedf("%s has convention %s but does not implement %s",
			e.Digest(), c, c.Interface()))
	}

	// Register the inputs first, and replace each by its subset.
	for i, n := 0, e.ChildCount(); i < n; i++ {
		child := e.Child(i)
		s := p.registerImpl(child, 0)
		if old, ok := child.(Subset); !ok || old != s {
			e.SetChild(i, s)
		}
	}

	digest := e.Digest()
	if id, ok := p.digests[digest]; ok {
		equiv := p.exprs[id].expr
		if equiv.Convention() != c || reflect.TypeOf(equiv) != reflect.TypeOf(e) {
			panic(errors.AssertionFailedf("digest %s is shared by expressions of different kinds", digest))
		}
		log.VEventf(p.ctx, 3, "%s is equivalent to rel#%d", digest, id)
		return p.registerSubset(setID, p.memberSubset(id))
	}

	// Converters belong to the same set as their input.
	if isConverter {
		childSet := p.find(e.Child(0).(Subset).set)
		if setID != 0 && p.find(setID) != childSet {
			p.merge(setID, childSet.id)
			if p.fixupInputsOf(e) {
				digest = e.Digest()
				if id, ok := p.digests[digest]; ok {
					return p.memberSubset(id)
				}
			}
		}
		setID = childSet.id
	}

	var st *set
	if setID == 0 {
		st = p.newSet(e)
	} else {
		st = p.find(setID)
	}

	id := ExprID(len(p.exprs))
	m := &member{expr: e, id: id, digest: digest, set: st.id, conv: c}
	p.exprs = append(p.exprs, m)
	p.exprIDs[e] = id
	p.digests[digest] = id
	p.registerCount++
	p.metrics.Registrations.Inc()
	log.VEventf(p.ctx, 2, "register rel#%d %s in set#%d", id, digest, st.id)

	p.addToSet(st, id)

	// Link the inputs back to the expression.
	for i, n := 0, e.ChildCount(); i < n; i++ {
		s := p.canonical(e.Child(i).(Subset))
		ss := p.getOrCreateSubset(p.find(s.set), s.conv)
		if !containsExpr(ss.parents, id) {
			ss.parents = append(ss.parents, id)
		}
		p.queue.recompute(s)
	}

	if _, ok := e.(*AbstractConverter); ok {
		live := p.find(st.id)
		live.abstractConverters = append(live.abstractConverters, id)
		p.metrics.AbstractConverters.Inc()
	}
	p.checkForSatisfiedConverters(st.id, id)

	s := p.memberSubset(id)
	p.queue.addSubset(s)
	p.fireRules(id, deferFiring)
	return s
}

// registerSubset merges the given set, if any, with the set of the subset.
func (p *Planner) registerSubset(setID SetID, s Subset) Subset {
	if setID != 0 && p.find(setID) != p.find(s.set) {
		p.merge(setID, s.set)
	}
	return p.canonical(s)
}

// fixupInputsOf canonicalizes the inputs of an expression that is not
// registered yet.
func (p *Planner) fixupInputsOf(e opt.Expr) bool {
	changed := false
	for i, n := 0, e.ChildCount(); i < n; i++ {
		old := e.Child(i).(Subset)
		if s := p.canonical(old); s != old {
			e.SetChild(i, s)
			changed = true
		}
	}
	return changed
}

func (p *Planner) newSet(e opt.Expr) *set {
	st := &set{id: SetID(len(p.sets)), rowType: e.RowType()}
	if c, ok := e.(opt.Correlated); ok {
		stopped := c.VariablesStopped()
		for _, v := range c.VariablesSet() {
			if !containsString(stopped, v) {
				st.variablesPropagated = append(st.variablesPropagated, v)
			}
		}
		st.variablesUsed = append(st.variablesUsed, c.VariablesUsed()...)
	}
	p.sets = append(p.sets, st)
	return st
}

func containsString(list []string, s string) bool {
	for _, t := range list {
		if t == s {
			return true
		}
	}
	return false
}

// validate checks the consistency of the live sets. It panics with an
// assertion failure if it finds a problem.
func (p *Planner) validate() {
	for _, st := range p.sets[1:] {
		if !st.isLive() {
			if target := p.find(st.id); !target.isLive() {
				panic(errors.AssertionFailedf("set#%d resolves to merged set#%d", st.id, target.id))
			}
			continue
		}
		for _, ss := range st.subsets {
			if ss.best != 0 && ss.bestCost.IsInfinite() {
				panic(errors.AssertionFailedf("best rel#%d of Subset#%d.%s has infinite cost",
					ss.best, st.id, ss.conv))
			}
			for _, id := range ss.members {
				m := p.exprs[id]
				if m.discarded {
					panic(errors.AssertionFailedf("discarded rel#%d is a member of set#%d", id, st.id))
				}
				if !containsExpr(st.members, id) {
					panic(errors.AssertionFailedf("rel#%d is in Subset#%d.%s but not in its set",
						id, st.id, ss.conv))
				}
				if m.expr.Convention() != ss.conv {
					panic(errors.AssertionFailedf("rel#%d has convention %s but is in Subset#%d.%s",
						id, m.expr.Convention(), st.id, ss.conv))
				}
				if p.digests[m.digest] != id {
					panic(errors.AssertionFailedf("rel#%d is not registered under its digest %s", id, m.digest))
				}
				for i, n := 0, m.expr.ChildCount(); i < n; i++ {
					in := m.expr.Child(i).(Subset)
					if p.canonical(in) != in {
						panic(errors.AssertionFailedf("input %d of rel#%d refers to merged set#%d", i, id, in.set))
					}
					inState := p.subsetState(in)
					if inState == nil || !containsExpr(inState.parents, id) {
						panic(errors.AssertionFailedf("rel#%d is not a parent of its input %s", id, in))
					}
				}
			}
		}
	}
}
