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

// Package volcano implements a cost-based, rule-driven planner for relational
// expressions, in the style of the Volcano and Cascades optimizers.
//
// Registered expressions are grouped into equivalence sets. Every member of a
// set produces the same rows, and the members of a set that have the same
// calling convention form a subset. The inputs of a registered expression are
// subsets rather than expressions, so the registered expressions form a graph
// that represents many alternative trees at once.
//
// Rules match patterns of expressions in that graph and register equivalent
// alternatives. Whenever a cheaper member of a subset is found, the
// improvement is propagated to every expression that uses the subset. When two
// sets turn out to be equivalent, they are merged. The search applies rule
// matches in order of importance until the root subset has a finite cost, and
// then builds the tree of cheapest members.
//
// A Planner is used by a single goroutine for a single planning session.
package volcano

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/volcano/pkg/opt"
	"github.com/cockroachdb/volcano/pkg/opt/cost"
	"github.com/cockroachdb/volcano/pkg/util/graph"
	"github.com/cockroachdb/volcano/pkg/util/log"
)

// ErrNoPlan is returned by FindBestExp when no expression of the root's
// convention with finite cost could be found.
var ErrNoPlan = errors.New("no plan found")

// Planner finds the cheapest expression equivalent to a root expression.
type Planner struct {
	ctx      context.Context
	settings Settings
	metrics  *Metrics
	costs    cost.Factory

	conventions []*opt.Convention
	rules       []opt.Rule
	rulesByDesc map[string]opt.Rule
	operands    []*opt.Operand

	// graph has an arc for every pair of conventions that a guaranteed
	// converter rule converts between.
	graph      *graph.Graph[*opt.Convention]
	converters map[graph.Arc[*opt.Convention]][]opt.ConverterRule

	// sets and exprs are indexed by SetID and ExprID. Index zero is unused.
	sets    []*set
	exprs   []*member
	exprIDs map[opt.Expr]ExprID
	digests map[string]ExprID

	queue ruleQueue
	root  Subset

	registerCount int
	firings       int
	progress      log.EveryN

	// err is the error that aborted the session, if any. Once set, every
	// operation returns it.
	err error
}

var _ opt.Planner = &Planner{}

// NewPlanner returns a planner for a new planning session.
func NewPlanner(ctx context.Context, settings Settings) *Planner {
	p := &Planner{}
	p.Init(ctx, settings)
	return p
}

// Init initializes the planner for a new planning session, discarding any
// previous state.
func (p *Planner) Init(ctx context.Context, settings Settings) {
	*p = Planner{
		ctx:         logtags.AddTag(ctx, "volcano", nil),
		settings:    settings,
		metrics:     NewMetrics(),
		rulesByDesc: make(map[string]opt.Rule),
		graph:       graph.New[*opt.Convention](),
		converters:  make(map[graph.Arc[*opt.Convention]][]opt.ConverterRule),
		sets:        []*set{nil},
		exprs:       []*member{nil},
		exprIDs:     make(map[opt.Expr]ExprID),
		digests:     make(map[string]ExprID),
	}
	p.progress.N = 5 * time.Second
	p.queue.init(p)
	p.AddCallingConvention(opt.NoneConvention)
}

// SetMetrics makes the planner count its work in the given metrics, which
// may be shared with other planners.
func (p *Planner) SetMetrics(m *Metrics) {
	p.metrics = m
}

// Metrics returns the metrics the planner counts its work in.
func (p *Planner) Metrics() *Metrics {
	return p.metrics
}

// Settings returns the settings of the planning session.
func (p *Planner) Settings() Settings {
	return p.settings
}

// catch converts an error raised as a panic into an error returned by a
// public method, and aborts the session. It must be deferred directly.
func (p *Planner) catch(errp *error) {
	if r := recover(); r != nil {
		err := opt.CatchOptimizerError(r)
		p.abort(err)
		*errp = err
	}
}

func (p *Planner) abort(err error) {
	if p.err == nil {
		log.Warningf(p.ctx, "planning session aborted: %v", err)
		p.err = err
	}
}

// AddRule adds a rule to the planner. It returns false if the rule was
// already added. Rules whose description is empty or contains '$' are
// rejected. A description already used by a different rule aborts the
// session.
//
// If expressions have already been registered, the rule is matched against
// them.
func (p *Planner) AddRule(r opt.Rule) (_ bool, err error) {
	if p.err != nil {
		return false, p.err
	}
	defer p.catch(&err)

	desc := r.String()
	if desc == "" {
		return false, errors.AssertionFailedf("rule of type %T has no description", r)
	}
	if strings.ContainsRune(desc, '$') {
		return false, errors.AssertionFailedf("rule description %q must not contain '$'", desc)
	}
	if existing, ok := p.rulesByDesc[desc]; ok {
		if sameRule(existing, r) {
			return false, nil
		}
		panic(errors.AssertionFailedf(
			"rule description %q is not unique: existing rule %T, new rule %T", desc, existing, r))
	}

	operands := opt.InitOperands(r)
	p.rulesByDesc[desc] = r
	p.rules = append(p.rules, r)
	p.operands = append(p.operands, operands...)

	if cr, ok := r.(opt.ConverterRule); ok && cr.IsGuaranteed() {
		arc, _ := p.graph.CreateArc(cr.InConvention(), cr.OutConvention())
		p.converters[arc] = append(p.converters[arc], cr)
	}

	// Match the new rule against the expressions registered so far.
	for _, m := range p.exprs[1:] {
		if m.discarded || !p.sets[m.set].isLive() {
			continue
		}
		for _, operand := range operands {
			if operand.Matches(m.expr) {
				p.newRuleCall(operand, deferFiring).match(m.id)
			}
		}
	}
	return true, nil
}

func sameRule(a, b opt.Rule) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) || !reflect.TypeOf(a).Comparable() {
		return false
	}
	return a == b
}

// RegisterAbstractRules adds the rules that resolve abstract converters.
func (p *Planner) RegisterAbstractRules() error {
	_, err := p.AddRule(newExpandConversionRule())
	return err
}

// Rules returns the rules added to the planner.
func (p *Planner) Rules() []opt.Rule {
	return p.rules
}

// SetRoot registers the expression and makes its subset the root of the
// search.
func (p *Planner) SetRoot(e opt.Expr) (err error) {
	if p.err != nil {
		return p.err
	}
	defer p.catch(&err)
	p.root = p.register(e, nil)
	p.queue.addSubset(p.root)
	p.queue.recompute(p.root)
	return nil
}

// Root returns the root subset, or false if there is none.
func (p *Planner) Root() (Subset, bool) {
	if p.root.set == 0 {
		return Subset{}, false
	}
	return p.canonical(p.root), true
}

func (p *Planner) isRoot(s Subset) bool {
	return p.root.set != 0 && p.canonical(p.root) == p.canonical(s)
}

// Register is part of the opt.Planner interface. Registering an expression
// that is already registered returns its subset. If equivTo is not nil, the
// set of the expression is merged with the set of equivTo.
func (p *Planner) Register(e, equivTo opt.Expr) (_ opt.Expr, err error) {
	if p.err != nil {
		return nil, p.err
	}
	defer p.catch(&err)
	return p.register(e, equivTo), nil
}

// EnsureRegistered is part of the opt.Planner interface.
func (p *Planner) EnsureRegistered(e, equivTo opt.Expr) (opt.Expr, error) {
	return p.Register(e, equivTo)
}

// IsRegistered is part of the opt.Planner interface.
func (p *Planner) IsRegistered(e opt.Expr) bool {
	if _, ok := e.(Subset); ok {
		return true
	}
	_, ok := p.exprIDs[e]
	return ok
}

// GetSubset returns the subset of the given convention in the set of a
// registered expression or subset.
func (p *Planner) GetSubset(e opt.Expr, c *opt.Convention) (Subset, bool) {
	var s Subset
	switch t := e.(type) {
	case Subset:
		s = p.canonical(t)
	default:
		id, ok := p.exprIDs[e]
		if !ok {
			return Subset{}, false
		}
		s = p.memberSubset(id)
	}
	if p.find(s.set).subset(c) == nil {
		return Subset{}, false
	}
	return Subset{set: s.set, conv: c, rowType: s.rowType}, true
}

// Canonical returns the handle for the subset in the live set that the
// subset's set has been merged into.
func (p *Planner) Canonical(s Subset) Subset {
	return p.canonical(s)
}

// BestCost returns the cost of the cheapest member of the subset found so
// far. It is infinite if the subset has no member of finite cost.
func (p *Planner) BestCost(s Subset) opt.Cost {
	return p.getCost(s)
}

// Best returns the cheapest member of the subset found so far, or nil.
func (p *Planner) Best(s Subset) opt.Expr {
	if ss := p.subsetState(s); ss != nil && ss.best != 0 {
		return p.exprs[ss.best].expr
	}
	return nil
}

// Members returns the members of the subset.
func (p *Planner) Members(s Subset) []opt.Expr {
	ss := p.subsetState(s)
	if ss == nil {
		return nil
	}
	res := make([]opt.Expr, len(ss.members))
	for i, id := range ss.members {
		res[i] = p.exprs[id].expr
	}
	return res
}

// SetMembers returns the members of the set of the subset, of every
// convention.
func (p *Planner) SetMembers(s Subset) []opt.Expr {
	st := p.find(s.set)
	res := make([]opt.Expr, len(st.members))
	for i, id := range st.members {
		res[i] = p.exprs[id].expr
	}
	return res
}

// SetCount returns the number of live sets.
func (p *Planner) SetCount() int {
	n := 0
	for _, st := range p.sets[1:] {
		if st.isLive() {
			n++
		}
	}
	return n
}

// RegisterCount returns the number of registrations and merges so far.
func (p *Planner) RegisterCount() int {
	return p.registerCount
}

// FindBestExp applies rule matches in order of importance until the root
// subset has a finite cost, or until no matches remain, and returns the
// cheapest plan. In ambitious mode, it keeps looking for a plan that costs
// half as much as the best plan so far, until no matches remain.
//
// If the root has infinite cost when the search ends, the error wraps
// ErrNoPlan. An error returned by a rule aborts the session.
func (p *Planner) FindBestExp() (_ opt.Expr, err error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.root.set == 0 {
		return nil, errors.New("root has not been set")
	}
	defer p.catch(&err)

	target := p.MakeHugeCost()
	for {
		p.root = p.canonical(p.root)
		if bestCost := p.getCost(p.root); bestCost.LessEq(target) {
			if !p.settings.Ambitious {
				break
			}
			target = bestCost.MultiplyBy(0.5)
		}
		if p.queue.len() == 0 {
			break
		}
		if p.settings.MaxRuleFirings > 0 && p.firings >= p.settings.MaxRuleFirings {
			log.VEventf(p.ctx, 1, "stopping after %d rule firings", p.firings)
			break
		}
		if p.progress.ShouldLog() {
			log.Infof(p.ctx, "%d rule matches pending, root cost %s", p.queue.len(), p.getCost(p.root))
		}
		if err := p.dispatch(p.queue.popMatch()); err != nil {
			p.abort(err)
			return nil, err
		}
		if p.err != nil {
			return nil, p.err
		}
	}

	p.root = p.canonical(p.root)
	if log.V(3) {
		log.Infof(p.ctx, "planner state:\n%s", p)
	}
	if p.getCost(p.root).IsInfinite() {
		return nil, errors.Wrapf(ErrNoPlan, "%s", p.root)
	}
	return p.buildCheapestPlan(p.root), nil
}

// MakeCost is part of the opt.CostFactory interface.
func (p *Planner) MakeCost(rows, cpu, io float64) opt.Cost { return p.costs.MakeCost(rows, cpu, io) }

// MakeHugeCost is part of the opt.CostFactory interface.
func (p *Planner) MakeHugeCost() opt.Cost { return p.costs.MakeHugeCost() }

// MakeInfiniteCost is part of the opt.CostFactory interface.
func (p *Planner) MakeInfiniteCost() opt.Cost { return p.costs.MakeInfiniteCost() }

// MakeTinyCost is part of the opt.CostFactory interface.
func (p *Planner) MakeTinyCost() opt.Cost { return p.costs.MakeTinyCost() }

// MakeZeroCost is part of the opt.CostFactory interface.
func (p *Planner) MakeZeroCost() opt.Cost { return p.costs.MakeZeroCost() }
