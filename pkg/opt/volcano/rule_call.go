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
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/volcano/pkg/opt"
	"github.com/cockroachdb/volcano/pkg/util/log"
)

// callMode determines what happens when all operands of a rule call have
// been bound.
type callMode int8

const (
	// fireImmediately applies the rule as soon as the match is complete.
	fireImmediately callMode = iota

	// deferFiring adds a frozen copy of the complete match to the rule queue.
	deferFiring
)

// ruleCall binds the operands of a rule to registered expressions. Matching
// starts with one operand bound to a newly registered expression, and binds
// the other operands in the operand's solve order.
type ruleCall struct {
	p        *Planner
	operand0 *opt.Operand
	rule     opt.Rule
	operands []*opt.Operand
	rels     []ExprID
	mode     callMode
}

var _ opt.RuleCall = (*ruleCall)(nil)

func (p *Planner) newRuleCall(operand *opt.Operand, mode callMode) *ruleCall {
	operands := operand.RuleOperands()
	return &ruleCall{
		p:        p,
		operand0: operand,
		rule:     operand.Rule(),
		operands: operands,
		rels:     make([]ExprID, len(operands)),
		mode:     mode,
	}
}

// fireRules matches every operand of every rule against a registered
// expression, and completes the matches of the operands it satisfies.
func (p *Planner) fireRules(id ExprID, mode callMode) {
	e := p.exprs[id].expr
	for _, operand := range p.operands {
		if operand.Matches(e) {
			p.newRuleCall(operand, mode).match(id)
		}
	}
}

// match binds the call's first operand to the expression and binds the
// remaining operands in every possible way.
func (c *ruleCall) match(id ExprID) {
	c.rels[c.operand0.OrdinalInRule()] = id
	c.matchRecurse(1)
}

func (c *ruleCall) matchRecurse(solve int) {
	solveOrder := c.operand0.SolveOrder()
	if solve == len(solveOrder) {
		if err := c.p.dispatch(c); err != nil {
			panic(err)
		}
		return
	}

	ord := solveOrder[solve]
	prevOrd := solveOrder[solve-1]
	operand := c.operands[ord]
	prev := c.operands[prevOrd]
	ascending := ord < prevOrd

	var successors []ExprID
	if ascending {
		// The previous operand is a child of this one. Look at the expressions
		// that use the previous expression's subset as an input.
		if prev.Parent() != operand {
			panic(errors.AssertionFailedf("operand %d of rule %s is not the parent of operand %d",
				ord, c.rule, prevOrd))
		}
		if ss := c.p.subsetState(c.p.memberSubset(c.rels[prevOrd])); ss != nil {
			successors = append(successors, ss.parents...)
		}
	} else {
		// This operand is a child of an operand that is already bound. Look at
		// the members of the corresponding input of the parent.
		parent := c.p.exprs[c.rels[operand.Parent().OrdinalInRule()]].expr
		if operand.OrdinalInParent() < parent.ChildCount() {
			in := parent.Child(operand.OrdinalInParent()).(Subset)
			if ss := c.p.subsetState(in); ss != nil {
				successors = append(successors, ss.members...)
			}
		}
	}

	for _, id := range successors {
		m := c.p.exprs[id]
		if m.discarded || !operand.Matches(m.expr) {
			continue
		}
		if ascending {
			// The parent must use the previous expression's subset at the input
			// the pattern requires.
			i := prev.OrdinalInParent()
			if i >= m.expr.ChildCount() {
				continue
			}
			in, ok := m.expr.Child(i).(Subset)
			if !ok || c.p.canonical(in) != c.p.memberSubset(c.rels[prevOrd]) {
				continue
			}
		}
		c.rels[ord] = id
		c.matchRecurse(solve + 1)
	}
}

// freeze returns a copy of a complete call that fires when it is dispatched.
func (c *ruleCall) freeze() *ruleCall {
	frozen := *c
	frozen.rels = append([]ExprID(nil), c.rels...)
	frozen.mode = fireImmediately
	return &frozen
}

// dispatch acts on a complete match according to the call's mode.
func (p *Planner) dispatch(c *ruleCall) error {
	switch c.mode {
	case deferFiring:
		p.queue.addMatch(c.freeze())
		return nil
	case fireImmediately:
		return p.fireRule(c)
	}
	panic(errors.AssertionFailedf("unknown call mode %d", c.mode))
}

// fireRule applies the rule of a complete match. Matches that bind an
// expression that has been discarded, or that belongs to a merged set, are
// skipped.
func (p *Planner) fireRule(c *ruleCall) error {
	for i, id := range c.rels {
		m := p.exprs[id]
		if m.discarded || !p.sets[m.set].isLive() {
			log.VEventf(p.ctx, 2, "%s not fired: operand %d (rel#%d) belongs to an obsolete set",
				c, i, id)
			return nil
		}
	}
	log.VEventf(p.ctx, 2, "apply %s", c)
	p.metrics.MatchesFired.Inc()
	p.firings++
	if err := p.invokeRule(c); err != nil {
		return errors.WithDetailf(errors.Wrapf(err, "rule %s", c.rule), "bindings: %s", c.bindings())
	}
	return nil
}

// invokeRule calls the rule's OnMatch. Errors raised as panics by the rule,
// or by planner code the rule calls, are returned.
func (p *Planner) invokeRule(c *ruleCall) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = opt.CatchOptimizerError(r)
		}
	}()
	return c.rule.OnMatch(c)
}

// Rule is part of the opt.RuleCall interface.
func (c *ruleCall) Rule() opt.Rule {
	return c.rule
}

// Rel is part of the opt.RuleCall interface.
func (c *ruleCall) Rel(ordinal int) opt.Expr {
	return c.p.exprs[c.rels[ordinal]].expr
}

// Rels is part of the opt.RuleCall interface.
func (c *ruleCall) Rels() []opt.Expr {
	rels := make([]opt.Expr, len(c.rels))
	for i := range c.rels {
		rels[i] = c.Rel(i)
	}
	return rels
}

// Planner is part of the opt.RuleCall interface.
func (c *ruleCall) Planner() opt.Planner {
	return c.p
}

// TransformTo is part of the opt.RuleCall interface. Errors are raised as
// panics, and returned by the planner operation that fired the rule.
func (c *ruleCall) TransformTo(e opt.Expr) {
	log.VEventf(c.p.ctx, 2, "%s transforms rel#%d to %s", c.rule, c.rels[0], e.Digest())
	c.p.register(e, c.Rel(0))
}

func (c *ruleCall) bindings() string {
	var b strings.Builder
	for i, id := range c.rels {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "rel#%d:%s", id, c.p.exprs[id].expr.Digest())
	}
	return b.String()
}

// String returns a name that identifies the match: the rule and the ids of
// the bound expressions.
func (c *ruleCall) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rule [%s] rels [", c.rule)
	for i, id := range c.rels {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "#%d", id)
	}
	b.WriteString("]")
	return b.String()
}
