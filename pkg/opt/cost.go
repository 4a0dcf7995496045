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

// Cost is the estimated cost of executing an expression. Costs are immutable
// values; arithmetic returns new costs.
type Cost interface {
	// Rows is the estimated number of rows produced.
	Rows() float64

	// CPU is the estimated CPU cost.
	CPU() float64

	// IO is the estimated I/O cost.
	IO() float64

	// IsInfinite returns true if the cost represents an expression that cannot
	// be executed.
	IsInfinite() bool

	// Equals returns true if the two costs are exactly equal.
	Equals(other Cost) bool

	// IsEqWithEpsilon returns true if the costs are equal within a small
	// tolerance.
	IsEqWithEpsilon(other Cost) bool

	// LessEq returns true if this cost is no greater than the other.
	LessEq(other Cost) bool

	// Less returns true if this cost is strictly less than the other.
	Less(other Cost) bool

	// Plus returns the sum of the two costs.
	Plus(other Cost) Cost

	// Minus returns the difference of the two costs.
	Minus(other Cost) Cost

	// MultiplyBy scales the cost by the given factor.
	MultiplyBy(factor float64) Cost

	String() string
}

// CostFactory creates costs. The planner implements it and passes itself to
// Expr.SelfCost.
type CostFactory interface {
	// MakeCost returns a cost with the given components.
	MakeCost(rows, cpu, io float64) Cost

	// MakeHugeCost returns a cost which is larger than any realistic cost but
	// is not infinite.
	MakeHugeCost() Cost

	// MakeInfiniteCost returns a cost which is larger than every other cost.
	MakeInfiniteCost() Cost

	// MakeTinyCost returns the smallest positive cost.
	MakeTinyCost() Cost

	// MakeZeroCost returns a cost of zero.
	MakeZeroCost() Cost
}
