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
	"github.com/cockroachdb/volcano/pkg/util/log"
)

// set is an equivalence class: every member produces the same rows, whatever
// its convention. Members are grouped into one subset per convention.
//
// When a set is merged into another set, equivalent is set to the id of the
// surviving set. A merged set is never modified again, and its fields are
// only used to follow equivalent to the live set.
type set struct {
	id         SetID
	equivalent SetID
	rowType    string
	members    []ExprID
	subsets    []*subset

	// abstractConverters are the abstract converters in the set that are still
	// waiting for a concrete conversion.
	abstractConverters []ExprID

	variablesPropagated []string
	variablesUsed       []string
}

func (s *set) isLive() bool {
	return s.equivalent == 0
}

func (s *set) subset(c *opt.Convention) *subset {
	for _, ss := range s.subsets {
		if ss.conv == c {
			return ss
		}
	}
	return nil
}

// subset holds the members of a set that have one convention, along with the
// cheapest member found so far.
type subset struct {
	conv    *opt.Convention
	members []ExprID

	// parents are the expressions that have this subset as an input.
	parents []ExprID

	// best is the cheapest member, or zero. bestCost only decreases.
	best     ExprID
	bestCost opt.Cost

	importance    float64
	hasImportance bool

	// active is set while the cheapest plan is built from this subset, to
	// detect cycles.
	active bool
}

// member is a registered expression.
type member struct {
	expr opt.Expr
	id   ExprID

	// digest is the digest under which the expression is registered.
	digest string

	// set and conv locate the subset the expression was last added to. The
	// set may have been merged since.
	set  SetID
	conv *opt.Convention

	// discarded is set when the expression became a duplicate of another
	// expression after its inputs were renamed.
	discarded bool
}

// find returns the live set that the given set has been merged into, and
// shortens the chain of merged sets on the way.
func (p *Planner) find(id SetID) *set {
	root := id
	for p.sets[root].equivalent != 0 {
		root = p.sets[root].equivalent
	}
	for id != root {
		next := p.sets[id].equivalent
		p.sets[id].equivalent = root
		id = next
	}
	return p.sets[root]
}

// canonical returns the handle for the same convention in the live set.
func (p *Planner) canonical(s Subset) Subset {
	st := p.find(s.set)
	if st.id == s.set {
		return s
	}
	return Subset{set: st.id, conv: s.conv, rowType: st.rowType}
}

// subsetState returns the state of the subset the handle refers to, or nil if
// the live set has no members of that convention.
func (p *Planner) subsetState(s Subset) *subset {
	return p.find(s.set).subset(s.conv)
}

// memberSubset returns the canonical subset of a registered expression.
func (p *Planner) memberSubset(id ExprID) Subset {
	m := p.exprs[id]
	return p.canonical(Subset{set: m.set, conv: m.conv, rowType: m.expr.RowType()})
}

func (p *Planner) getOrCreateSubset(st *set, c *opt.Convention) *subset {
	if !st.isLive() {
		panic(errors.AssertionFailedf("set#%d has been merged into set#%d", st.id, st.equivalent))
	}
	if ss := st.subset(c); ss != nil {
		return ss
	}
	ss := &subset{conv: c, bestCost: p.MakeInfiniteCost()}
	st.subsets = append(st.subsets, ss)
	return ss
}

// addToSet adds a registered expression to the set and to the subset of its
// convention, and propagates any cost improvement. Adding an expression that
// is already a member does nothing.
func (p *Planner) addToSet(st *set, id ExprID) Subset {
	m := p.exprs[id]
	if rowType := m.expr.RowType(); rowType != st.rowType {
		panic(errors.AssertionFailedf("row type %s of %s does not match row type %s of set#%d",
			rowType, m.expr.Digest(), st.rowType, st.id))
	}
	c := m.expr.Convention()
	ss := p.getOrCreateSubset(st, c)
	s := Subset{set: st.id, conv: c, rowType: st.rowType}
	if containsExpr(ss.members, id) {
		return s
	}
	if !containsExpr(st.members, id) {
		st.members = append(st.members, id)
	}
	ss.members = append(ss.members, id)
	m.set = st.id
	m.conv = c
	p.propagateCostImprovements(s, id)
	return s
}

// merge merges two sets. The set with the higher id is merged into the set
// with the lower id.
func (p *Planner) merge(a, b SetID) {
	sa, sb := p.find(a), p.find(b)
	if sa == sb {
		return
	}
	if sa.id > sb.id {
		sa, sb = sb, sa
	}
	p.mergeWith(sa, sb)
}

// mergeWith merges other into st. Every member of other is added to st, and
// every expression that uses other as an input is renamed. Renaming may
// reveal that two expressions are duplicates, which merges more sets.
func (p *Planner) mergeWith(st, other *set) {
	if !st.isLive() || !other.isLive() {
		panic(errors.AssertionFailedf("cannot merge set#%d into set#%d: set is not live", other.id, st.id))
	}
	if st.rowType != other.rowType {
		panic(errors.AssertionFailedf("cannot merge set#%d with row type %s into set#%d with row type %s",
			other.id, other.rowType, st.id, st.rowType))
	}
	log.VEventf(p.ctx, 2, "merge set#%d into set#%d", other.id, st.id)
	p.registerCount++
	p.metrics.Registrations.Inc()
	p.metrics.Merges.Inc()

	// Collect the parents of the dying set before its members move, since
	// renaming them moves the back-references to the surviving set.
	var parents []ExprID
	for _, os := range other.subsets {
		for _, id := range os.parents {
			if !containsExpr(parents, id) {
				parents = append(parents, id)
			}
		}
	}

	other.equivalent = st.id
	st.variablesPropagated = unionStrings(st.variablesPropagated, other.variablesPropagated)
	st.variablesUsed = unionStrings(st.variablesUsed, other.variablesUsed)
	for _, id := range other.abstractConverters {
		if !containsExpr(st.abstractConverters, id) {
			st.abstractConverters = append(st.abstractConverters, id)
		}
	}

	for _, os := range other.subsets {
		live := p.find(st.id)
		ss := p.getOrCreateSubset(live, os.conv)
		if os.best != 0 && os.bestCost.Less(ss.bestCost) {
			ss.best = os.best
			ss.bestCost = os.bestCost
		}
		if os.hasImportance && (!ss.hasImportance || os.importance > ss.importance) {
			ss.importance = os.importance
			ss.hasImportance = true
		}
		for _, id := range append([]ExprID(nil), os.members...) {
			p.reregister(p.find(st.id), id)
		}
	}

	for _, id := range parents {
		p.rename(id)
	}

	// Renaming may have merged the surviving set too, in which case the merge
	// that killed it took care of the rest.
	if !st.isLive() {
		return
	}

	// The members of the merged set may have made the parents of the
	// surviving set cheaper.
	for _, ss := range st.subsets {
		for _, id := range append([]ExprID(nil), ss.parents...) {
			if !p.exprs[id].discarded {
				p.propagateCostImprovements(p.memberSubset(id), id)
			}
		}
	}
	if !st.isLive() {
		return
	}

	// Every member now has new neighbors, so rules may match in new ways.
	for _, id := range append([]ExprID(nil), st.members...) {
		if !p.exprs[id].discarded {
			p.fireRules(id, deferFiring)
		}
	}
}

// reregister adds a member of a merged set to the surviving set, unless an
// equivalent expression is already registered.
func (p *Planner) reregister(st *set, id ExprID) {
	m := p.exprs[id]
	if m.discarded {
		return
	}
	if other, ok := p.digests[m.expr.Digest()]; ok && other != id {
		log.VEventf(p.ctx, 3, "rel#%d not reregistered: equivalent to rel#%d", id, other)
		return
	}
	p.addToSet(st, id)
}

// rename recomputes the digest of an expression after its inputs may have
// been merged into other sets. If the expression becomes a duplicate of
// another expression, it is discarded and the sets of the two expressions are
// merged.
func (p *Planner) rename(id ExprID) {
	m := p.exprs[id]
	if m.discarded || !p.fixupInputs(id) {
		return
	}
	oldDigest := m.digest
	newDigest := m.expr.Digest()
	if p.digests[oldDigest] == id {
		delete(p.digests, oldDigest)
	}
	log.VEventf(p.ctx, 3, "rename rel#%d from %s to %s", id, oldDigest, newDigest)

	other, ok := p.digests[newDigest]
	if !ok || other == id {
		m.digest = newDigest
		p.digests[newDigest] = id
		return
	}

	// The expression is now a duplicate of other.
	log.VEventf(p.ctx, 2, "rel#%d is a duplicate of rel#%d after rename", id, other)
	p.discard(id, other)
	from := p.memberSubset(id)
	to := p.memberSubset(other)
	if from.set != to.set {
		p.merge(from.set, to.set)
	}
}

// discard removes an expression that duplicates another one.
func (p *Planner) discard(id, duplicateOf ExprID) {
	m := p.exprs[id]
	p.queue.removeMatchesInvolving(id)
	m.discarded = true
	delete(p.exprIDs, m.expr)
	for i, n := 0, m.expr.ChildCount(); i < n; i++ {
		if ss := p.subsetState(m.expr.Child(i).(Subset)); ss != nil {
			ss.parents = removeExpr(ss.parents, id)
		}
	}
	st := p.sets[m.set]
	st.members = removeExpr(st.members, id)
	if ss := st.subset(m.conv); ss != nil {
		ss.members = removeExpr(ss.members, id)
		if ss.best == id {
			// The duplicate has the same digest, and therefore the same cost.
			ss.best = duplicateOf
		}
	}
}

// fixupInputs replaces the inputs of an expression that refer to merged sets
// with the corresponding subsets of the live sets, and moves the expression
// to the parents of those subsets. It returns true if any input changed.
func (p *Planner) fixupInputs(id ExprID) bool {
	e := p.exprs[id].expr
	changed := false
	for i, n := 0, e.ChildCount(); i < n; i++ {
		old, ok := e.Child(i).(Subset)
		if !ok {
			panic(errors.AssertionFailedf("input %d of registered rel#%d is not a subset", i, id))
		}
		s := p.canonical(old)
		if s == old {
			continue
		}
		if oldState := p.sets[old.set].subset(old.conv); oldState != nil {
			oldState.parents = removeExpr(oldState.parents, id)
		}
		ss := p.getOrCreateSubset(p.find(s.set), s.conv)
		if !containsExpr(ss.parents, id) {
			ss.parents = append(ss.parents, id)
		}
		e.SetChild(i, s)
		changed = true
	}
	return changed
}

func containsExpr(ids []ExprID, id ExprID) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}

func removeExpr(ids []ExprID, id ExprID) []ExprID {
	for i := range ids {
		if ids[i] == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func unionStrings(a, b []string) []string {
	for _, s := range b {
		found := false
		for _, t := range a {
			if s == t {
				found = true
				break
			}
		}
		if !found {
			a = append(a, s)
		}
	}
	return a
}
