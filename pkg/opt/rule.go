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

import "reflect"

// Rule transforms expressions matching its operand pattern into equivalent
// expressions.
type Rule interface {
	// Operand returns the root of the rule's pattern tree. It must return the
	// same operand every time it is called.
	Operand() *Operand

	// OnMatch is called when the pattern has been bound to a set of
	// expressions. The rule registers any equivalent expressions it builds
	// through call.TransformTo. It must not modify the bound expressions.
	OnMatch(call RuleCall) error

	// OutConvention returns the convention of the expressions the rule
	// produces, or nil if it does not produce a particular convention.
	OutConvention() *Convention

	// String returns the description of the rule. Descriptions must be unique
	// among the rules of a planner and must not contain '$'.
	String() string
}

// RuleCall is the binding of a rule's operands to expressions that is passed
// to Rule.OnMatch.
type RuleCall interface {
	// Rule returns the rule that matched.
	Rule() Rule

	// Rel returns the expression bound to the operand with the given ordinal.
	Rel(ordinal int) Expr

	// Rels returns the bound expressions, indexed by operand ordinal.
	Rels() []Expr

	// Planner returns the planner the rule is running in.
	Planner() Planner

	// TransformTo registers an expression that is equivalent to Rel(0).
	TransformTo(e Expr)
}

// Planner is the subset of planner operations available to rules.
type Planner interface {
	CostFactory

	// Register registers the expression, and returns a handle to its
	// equivalence class. If equivTo is not nil, the expression is known to be
	// equivalent to it.
	Register(e, equivTo Expr) (Expr, error)

	// EnsureRegistered registers the expression if it is not registered yet.
	EnsureRegistered(e, equivTo Expr) (Expr, error)

	// IsRegistered returns true if the expression has been registered.
	IsRegistered(e Expr) bool

	// ChangeConvention returns an expression equivalent to e which has the
	// given convention.
	ChangeConvention(e Expr, to *Convention) (Expr, error)

	// CanConvert returns true if there is a path of guaranteed converters
	// between the two conventions.
	CanConvert(from, to *Convention) bool
}

// ConverterRule is a rule that converts an expression from one convention to
// another. A guaranteed converter rule can convert every expression of its
// input convention, and becomes an arc of the planner's conversion graph.
type ConverterRule interface {
	Rule

	// InConvention returns the convention the rule converts from.
	InConvention() *Convention

	// IsGuaranteed returns true if Convert never returns nil.
	IsGuaranteed() bool

	// Convert returns an expression of the out convention equivalent to e,
	// or nil if the rule cannot convert e.
	Convert(e Expr) Expr
}

// FuncConverterRule is a ConverterRule whose conversion is a function.
type FuncConverterRule struct {
	operand    *Operand
	in, out    *Convention
	desc       string
	guaranteed bool
	convert    func(Expr) Expr
}

var _ ConverterRule = (*FuncConverterRule)(nil)

// NewConverterRule returns a converter rule that matches expressions of the
// given type and input convention.
func NewConverterRule(
	typ reflect.Type, in, out *Convention, desc string, guaranteed bool, convert func(Expr) Expr,
) *FuncConverterRule {
	return &FuncConverterRule{
		operand:    NewOperand(typ).WithConvention(in),
		in:         in,
		out:        out,
		desc:       desc,
		guaranteed: guaranteed,
		convert:    convert,
	}
}

// Operand is part of the Rule interface.
func (r *FuncConverterRule) Operand() *Operand { return r.operand }

// OutConvention is part of the Rule interface.
func (r *FuncConverterRule) OutConvention() *Convention { return r.out }

// InConvention is part of the ConverterRule interface.
func (r *FuncConverterRule) InConvention() *Convention { return r.in }

// IsGuaranteed is part of the ConverterRule interface.
func (r *FuncConverterRule) IsGuaranteed() bool { return r.guaranteed }

// Convert is part of the ConverterRule interface.
func (r *FuncConverterRule) Convert(e Expr) Expr { return r.convert(e) }

func (r *FuncConverterRule) String() string { return r.desc }

// OnMatch is part of the Rule interface.
func (r *FuncConverterRule) OnMatch(call RuleCall) error {
	e := call.Rel(0)
	if e.Convention() != r.in {
		return nil
	}
	if converted := r.convert(e); converted != nil {
		call.TransformTo(converted)
	}
	return nil
}

// Convert returns an expression equivalent to e with the given convention.
// If e already has the convention it is returned unchanged.
func Convert(p Planner, e Expr, to *Convention) (Expr, error) {
	if e.Convention() == to {
		return e, nil
	}
	return p.ChangeConvention(e, to)
}
