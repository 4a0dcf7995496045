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

// Expr is a relational expression as seen by the planner. The planner does not
// interpret the fields of an expression; it only relies on the structural
// digest, the calling convention, the children, and the cost of each node.
//
// Expressions must be pointer types, since the planner identifies a registered
// expression by its pointer. Before registration an expression's children may
// be arbitrary expressions. Registration replaces each child, in place, with a
// handle to the equivalence class the child belongs to. Once registered, an
// expression must not be mutated except by the planner.
type Expr interface {
	// Digest returns a string that uniquely identifies the expression: its
	// operator, its own fields, its convention and the digests of its current
	// children. Two expressions with equal digests are interchangeable.
	Digest() string

	// Convention returns the calling convention of the expression.
	Convention() *Convention

	// ChildCount returns the number of inputs to the expression.
	ChildCount() int

	// Child returns the nth input of the expression.
	Child(nth int) Expr

	// SetChild replaces the nth input of the expression.
	SetChild(nth int, child Expr)

	// SelfCost returns the cost of the expression not counting its inputs.
	// The cost must be strictly positive.
	SelfCost(f CostFactory) Cost

	// Clone returns a copy of the expression which can be modified without
	// affecting the original. Expressions with no children may return
	// themselves.
	Clone() Expr

	// RowType describes the shape of the rows the expression produces. All
	// members of an equivalence class must have the same row type.
	RowType() string
}

// Converter is implemented by expressions whose only purpose is to convert
// their single input (child 0) from one calling convention to another.
// Converters never start a new equivalence class; they always belong to the
// class of their input.
type Converter interface {
	Expr

	// InputConvention returns the convention the converter converts from.
	InputConvention() *Convention
}

// Correlated is implemented by expressions that define or use correlation
// variables.
type Correlated interface {
	// VariablesSet returns the correlation variables set by the expression or
	// its inputs.
	VariablesSet() []string

	// VariablesStopped returns the variables that are set by an input of the
	// expression but are not visible above it.
	VariablesStopped() []string

	// VariablesUsed returns the correlation variables used by the expression.
	VariablesUsed() []string
}

// TypeOf returns the reflect.Type of T. It is typically used to build operand
// filters, e.g. TypeOf[*ScanExpr]() or TypeOf[Expr]().
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// AnyExpr is an operand type that matches every expression.
var AnyExpr = TypeOf[Expr]()
