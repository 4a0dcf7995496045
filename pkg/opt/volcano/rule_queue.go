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
	"github.com/cockroachdb/volcano/pkg/opt"
	"github.com/cockroachdb/volcano/pkg/opt/cost"
	"github.com/cockroachdb/volcano/pkg/util/log"
)

// maxChildImportanceRatio bounds the importance of a subset relative to its
// most important parent.
const maxChildImportanceRatio = 0.99

// ruleQueue holds the rule matches that have not been applied yet, and
// decides which one to apply next.
//
// Each subset has an importance between 0 and 1. The root subset has
// importance 1. Any other subset is as important as its most important parent
// subset, scaled by the ratio of its cost to the parent's cost. A match is as
// important as the subset of the expression it is rooted at, or the subset of
// the rule's output convention in the same set if that is more important.
//
// Importance changes as costs improve, so it is computed afresh whenever the
// next match is chosen.
type ruleQueue struct {
	p       *Planner
	matches []*ruleCall

	// names contains the names of every match ever added, so that a match is
	// never applied twice.
	names map[string]struct{}
}

func (q *ruleQueue) init(p *Planner) {
	*q = ruleQueue{p: p, names: make(map[string]struct{})}
}

// addMatch adds a complete match to the queue, unless an identical match has
// already been added.
func (q *ruleQueue) addMatch(m *ruleCall) {
	name := m.String()
	if _, ok := q.names[name]; ok {
		return
	}
	q.names[name] = struct{}{}
	log.VEventf(q.p.ctx, 3, "queue %s", name)
	q.matches = append(q.matches, m)
	q.p.metrics.MatchesQueued.Inc()
}

func (q *ruleQueue) len() int {
	return len(q.matches)
}

// popMatch removes and returns the most important match. Among matches of
// equal importance, the one added first is returned.
func (q *ruleQueue) popMatch() *ruleCall {
	best := -1
	var bestImportance float64
	for i, m := range q.matches {
		if imp := q.matchImportance(m); best < 0 || imp > bestImportance {
			best, bestImportance = i, imp
		}
	}
	if best < 0 {
		return nil
	}
	m := q.matches[best]
	q.matches = append(q.matches[:best], q.matches[best+1:]...)
	log.VEventf(q.p.ctx, 3, "pop %s with importance %.3f", m, bestImportance)
	return m
}

// removeMatchesInvolving removes every match that binds the expression.
func (q *ruleQueue) removeMatchesInvolving(id ExprID) {
	kept := q.matches[:0]
	for _, m := range q.matches {
		if !containsExpr(m.rels, id) {
			kept = append(kept, m)
		}
	}
	for i := len(kept); i < len(q.matches); i++ {
		q.matches[i] = nil
	}
	q.matches = kept
}

func (q *ruleQueue) matchImportance(m *ruleCall) float64 {
	s := q.p.memberSubset(m.rels[0])
	imp := q.importance(s)
	if out := m.rule.OutConvention(); out != nil && out != s.conv {
		if q.p.find(s.set).subset(out) != nil {
			target := q.p.canonical(Subset{set: s.set, conv: out, rowType: s.rowType})
			if targetImp := q.importance(target); targetImp > imp {
				imp = targetImp
			}
		}
	}
	return imp
}

// importance returns the importance of a subset, which is the greatest of its
// own importance and half the importance of each other subset of its set.
func (q *ruleQueue) importance(s Subset) float64 {
	var imp float64
	for _, ss := range q.p.find(s.set).subsets {
		if !ss.hasImportance {
			continue
		}
		v := ss.importance
		if ss.conv != s.conv {
			v /= 2
		}
		if v > imp {
			imp = v
		}
	}
	return imp
}

// addSubset computes the importance of a subset that does not have one yet.
func (q *ruleQueue) addSubset(s Subset) {
	ss := q.p.subsetState(s)
	if ss == nil || ss.hasImportance {
		return
	}
	ss.importance = q.computeImportance(s)
	ss.hasImportance = true
}

// recompute recomputes the importance of a subset, if it has one.
func (q *ruleQueue) recompute(s Subset) {
	ss := q.p.subsetState(s)
	if ss == nil || !ss.hasImportance {
		return
	}
	if imp := q.computeImportance(s); imp != ss.importance {
		log.VEventf(q.p.ctx, 3, "importance of %s changed from %.3f to %.3f", s, ss.importance, imp)
		ss.importance = imp
	}
}

func (q *ruleQueue) computeImportance(s Subset) float64 {
	s = q.p.canonical(s)
	if q.p.isRoot(s) {
		return 1
	}
	ss := q.p.subsetState(s)
	if ss == nil {
		return 0
	}
	var imp float64
	var seen []Subset
	for _, id := range ss.parents {
		parent := q.p.memberSubset(id)
		if containsSubset(seen, parent) {
			continue
		}
		seen = append(seen, parent)
		if v := q.importanceOfChild(s, parent); v > imp {
			imp = v
		}
	}
	return imp
}

func (q *ruleQueue) importanceOfChild(child, parent Subset) float64 {
	parentImportance := q.importance(parent)
	childCost := toScalar(q.p.getCost(child))
	parentCost := toScalar(q.p.getCost(parent))
	alpha := maxChildImportanceRatio
	if parentCost > 0 {
		if ratio := childCost / parentCost; ratio < alpha {
			alpha = ratio
		}
	}
	return parentImportance * alpha
}

func toScalar(c opt.Cost) float64 {
	if vc, ok := c.(*cost.VolcanoCost); ok {
		return vc.Scalar()
	}
	if c.IsInfinite() {
		return 1e3
	}
	return c.Rows() + c.CPU() + c.IO()
}

func containsSubset(list []Subset, s Subset) bool {
	for _, t := range list {
		if t == s {
			return true
		}
	}
	return false
}
