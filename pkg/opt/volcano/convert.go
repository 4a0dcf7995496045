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
	"github.com/cockroachdb/volcano/pkg/opt"
	"github.com/cockroachdb/volcano/pkg/util/graph"
	"github.com/cockroachdb/volcano/pkg/util/log"
)

// AbstractConverter stands for a conversion of its input to another
// convention which no converter rule can perform yet. It has infinite cost.
// The planner replaces it with a concrete conversion as soon as some member
// of its set can be converted.
type AbstractConverter struct {
	input opt.Expr
	to    *opt.Convention
}

var _ opt.Converter = (*AbstractConverter)(nil)

// Digest is part of the opt.Expr interface.
func (c *AbstractConverter) Digest() string {
	return fmt.Sprintf("AbstractConverter(%s,convention=%s)", c.input.Digest(), c.to)
}

// Convention is part of the opt.Expr interface.
func (c *AbstractConverter) Convention() *opt.Convention { return c.to }

// InputConvention is part of the opt.Converter interface.
func (c *AbstractConverter) InputConvention() *opt.Convention { return c.input.Convention() }

// ChildCount is part of the opt.Expr interface.
func (c *AbstractConverter) ChildCount() int { return 1 }

// Child is part of the opt.Expr interface.
func (c *AbstractConverter) Child(nth int) opt.Expr {
	if nth != 0 {
		panic(errors.AssertionFailedf("invalid input %d of abstract converter", nth))
	}
	return c.input
}

// SetChild is part of the opt.Expr interface.
func (c *AbstractConverter) SetChild(nth int, child opt.Expr) {
	if nth != 0 {
		panic(errors.AssertionFailedf("invalid input %d of abstract converter", nth))
	}
	c.input = child
}

// SelfCost is part of the opt.Expr interface.
func (c *AbstractConverter) SelfCost(f opt.CostFactory) opt.Cost {
	return f.MakeInfiniteCost()
}

// Clone is part of the opt.Expr interface.
func (c *AbstractConverter) Clone() opt.Expr {
	clone := *c
	return &clone
}

// RowType is part of the opt.Expr interface.
func (c *AbstractConverter) RowType() string { return c.input.RowType() }

// expandConversionRule tries to replace an abstract converter by a chain of
// concrete converters.
type expandConversionRule struct {
	operand *opt.Operand
}

func newExpandConversionRule() *expandConversionRule {
	return &expandConversionRule{operand: opt.NewOperand(opt.TypeOf[*AbstractConverter]())}
}

func (r *expandConversionRule) Operand() *opt.Operand { return r.operand }

func (r *expandConversionRule) OutConvention() *opt.Convention { return nil }

func (r *expandConversionRule) String() string { return "ExpandConversionRule" }

func (r *expandConversionRule) OnMatch(call opt.RuleCall) error {
	p, ok := call.Planner().(*Planner)
	if !ok {
		return errors.AssertionFailedf("%s requires a volcano planner", r)
	}
	ac := call.Rel(0).(*AbstractConverter)
	if converted := p.changeConventionUsingConverters(ac.input, ac.to); converted != nil {
		call.TransformTo(converted)
	}
	return nil
}

// AddCallingConvention adds a convention to the planner. It returns false if
// the convention was already added.
func (p *Planner) AddCallingConvention(c *opt.Convention) bool {
	for _, existing := range p.conventions {
		if existing == c {
			return false
		}
	}
	p.conventions = append(p.conventions, c)
	p.graph.AddVertex(c)
	return true
}

// CanConvert returns true if expressions of one convention can be converted
// to the other by a chain of guaranteed converter rules.
func (p *Planner) CanConvert(from, to *opt.Convention) bool {
	return from == to || p.graph.ShortestPath(from, to) != nil
}

// ChangeConvention returns an expression equivalent to e with the given
// convention, registering e if needed. If no chain of guaranteed converters
// can convert e, the result is the subset of an abstract converter, which has
// infinite cost until rules produce an expression of the convention.
func (p *Planner) ChangeConvention(e opt.Expr, to *opt.Convention) (_ opt.Expr, err error) {
	if p.err != nil {
		return nil, p.err
	}
	defer p.catch(&err)
	return p.changeConvention(e, to), nil
}

func (p *Planner) changeConvention(e opt.Expr, to *opt.Convention) opt.Expr {
	if e.Convention() == to {
		return e
	}
	s := p.registerImpl(e, 0)
	if converted := p.changeConventionUsingConverters(s, to); converted != nil {
		return p.registerImpl(converted, s.set)
	}
	log.VEventf(p.ctx, 2, "no converter from %s to %s; adding abstract converter", s, to)
	return p.registerImpl(&AbstractConverter{input: s, to: to}, s.set)
}

// changeConventionUsingConverters tries to convert the expression along each
// path of the conversion graph, shortest first, and returns the first
// conversion that succeeds. It returns nil if no path leads to the
// convention. The result is not registered.
func (p *Planner) changeConventionUsingConverters(e opt.Expr, to *opt.Convention) opt.Expr {
	from := e.Convention()
	if from == to {
		return e
	}
outer:
	for _, path := range p.graph.Paths(from, to) {
		converted := e
		for _, arc := range path {
			if !p.settings.AllowInfiniteCostConverters && p.getCost(converted).IsInfinite() {
				log.VEventf(p.ctx, 3, "conversion of %s to %s abandoned at %s: infinite cost",
					e.Digest(), to, arc.From)
				continue outer
			}
			next := p.convertAlongArc(converted, arc)
			if next == nil {
				panic(errors.AssertionFailedf(
					"converter from %s to %s guaranteed that it could convert any expression",
					arc.From, arc.To))
			}
			converted = next
		}
		return converted
	}
	return nil
}

func (p *Planner) convertAlongArc(e opt.Expr, arc graph.Arc[*opt.Convention]) opt.Expr {
	for _, r := range p.converters[arc] {
		if converted := r.Convert(e); converted != nil {
			return converted
		}
	}
	return nil
}

// checkForSatisfiedConverters tries to replace the pending abstract
// converters of a set with conversions of the given member. A converter is
// satisfied if the member already has the converter's convention and finite
// cost, or if a chain of converters leads from the member to the convention.
func (p *Planner) checkForSatisfiedConverters(setID SetID, id ExprID) {
	e := p.exprs[id].expr
	if _, ok := e.(*AbstractConverter); ok {
		return
	}
	st := p.find(setID)
	for i := 0; i < len(st.abstractConverters); {
		acID := st.abstractConverters[i]
		ac := p.exprs[acID].expr.(*AbstractConverter)
		var converted opt.Expr
		if e.Convention() == ac.to {
			if !p.getCost(e).IsInfinite() {
				converted = e
			}
		} else {
			converted = p.changeConventionUsingConverters(e, ac.to)
		}
		if converted == nil {
			i++
			continue
		}
		log.VEventf(p.ctx, 2, "rel#%d satisfies abstract converter rel#%d", id, acID)
		st.abstractConverters = removeExpr(st.abstractConverters, acID)
		p.registerImpl(converted, st.id)
		if live := p.find(st.id); live != st {
			// A merge moved the pending converters; start over.
			st, i = live, 0
		}
	}
}
