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

// Package cost contains the cost model used by the volcano planner.
package cost

import (
	"fmt"
	"math"

	"github.com/cockroachdb/volcano/pkg/opt"
)

// epsilon is the tolerance used by IsEqWithEpsilon.
const epsilon = 1e-5

// VolcanoCost is a cost made of a row count, a CPU cost and an I/O cost.
// Costs are ordered by row count first, then CPU, then I/O.
type VolcanoCost struct {
	rows float64
	cpu  float64
	io   float64
}

var _ opt.Cost = &VolcanoCost{}

var (
	// Infinity is the cost of an expression that cannot be executed.
	Infinity = &VolcanoCost{math.Inf(+1), math.Inf(+1), math.Inf(+1)}

	// Huge is larger than any realistic cost, but is not infinite.
	Huge = &VolcanoCost{math.MaxFloat64, math.MaxFloat64, math.MaxFloat64}

	// Zero is the cost of doing nothing.
	Zero = &VolcanoCost{0, 0, 0}

	// Tiny is the smallest positive cost.
	Tiny = &VolcanoCost{1, 1, 0}
)

// New returns a cost with the given components.
func New(rows, cpu, io float64) *VolcanoCost {
	return &VolcanoCost{rows: rows, cpu: cpu, io: io}
}

// Rows is part of the opt.Cost interface.
func (c *VolcanoCost) Rows() float64 { return c.rows }

// CPU is part of the opt.Cost interface.
func (c *VolcanoCost) CPU() float64 { return c.cpu }

// IO is part of the opt.Cost interface.
func (c *VolcanoCost) IO() float64 { return c.io }

// IsInfinite is part of the opt.Cost interface.
func (c *VolcanoCost) IsInfinite() bool {
	return c == Infinity ||
		math.IsInf(c.rows, +1) || math.IsInf(c.cpu, +1) || math.IsInf(c.io, +1)
}

// Equals is part of the opt.Cost interface.
func (c *VolcanoCost) Equals(other opt.Cost) bool {
	o := other.(*VolcanoCost)
	return c == o || (c.rows == o.rows && c.cpu == o.cpu && c.io == o.io)
}

// IsEqWithEpsilon is part of the opt.Cost interface.
func (c *VolcanoCost) IsEqWithEpsilon(other opt.Cost) bool {
	o := other.(*VolcanoCost)
	if c.IsInfinite() || o.IsInfinite() {
		return c.IsInfinite() && o.IsInfinite()
	}
	return math.Abs(c.rows-o.rows) < epsilon &&
		math.Abs(c.cpu-o.cpu) < epsilon &&
		math.Abs(c.io-o.io) < epsilon
}

// LessEq is part of the opt.Cost interface.
func (c *VolcanoCost) LessEq(other opt.Cost) bool {
	return c.compare(other.(*VolcanoCost)) <= 0
}

// Less is part of the opt.Cost interface.
func (c *VolcanoCost) Less(other opt.Cost) bool {
	return c.compare(other.(*VolcanoCost)) < 0
}

func (c *VolcanoCost) compare(o *VolcanoCost) int {
	if c == o {
		return 0
	}
	if r := compareFloat(c.rows, o.rows); r != 0 {
		return r
	}
	if r := compareFloat(c.cpu, o.cpu); r != 0 {
		return r
	}
	return compareFloat(c.io, o.io)
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Plus is part of the opt.Cost interface. The sum is infinite if either cost
// is infinite.
func (c *VolcanoCost) Plus(other opt.Cost) opt.Cost {
	o := other.(*VolcanoCost)
	if c.IsInfinite() || o.IsInfinite() {
		return Infinity
	}
	return &VolcanoCost{rows: c.rows + o.rows, cpu: c.cpu + o.cpu, io: c.io + o.io}
}

// Minus is part of the opt.Cost interface. Infinity minus anything is
// infinity.
func (c *VolcanoCost) Minus(other opt.Cost) opt.Cost {
	if c.IsInfinite() {
		return c
	}
	o := other.(*VolcanoCost)
	return &VolcanoCost{rows: c.rows - o.rows, cpu: c.cpu - o.cpu, io: c.io - o.io}
}

// MultiplyBy is part of the opt.Cost interface. Infinity scaled by anything is
// infinity.
func (c *VolcanoCost) MultiplyBy(factor float64) opt.Cost {
	if c.IsInfinite() {
		return c
	}
	return &VolcanoCost{rows: c.rows * factor, cpu: c.cpu * factor, io: c.io * factor}
}

// Scalar collapses the cost to a single number, for computing ratios of
// costs. Infinite costs are mapped to 1e3.
func (c *VolcanoCost) Scalar() float64 {
	if c.IsInfinite() {
		return 1e3
	}
	return c.rows + c.cpu + c.io
}

func (c *VolcanoCost) String() string {
	switch {
	case c.IsInfinite():
		return "{inf}"
	case c.Equals(Huge):
		return "{huge}"
	}
	return fmt.Sprintf("{%g rows, %g cpu, %g io}", c.rows, c.cpu, c.io)
}

// Factory implements opt.CostFactory for VolcanoCost.
type Factory struct{}

var _ opt.CostFactory = Factory{}

// MakeCost is part of the opt.CostFactory interface.
func (Factory) MakeCost(rows, cpu, io float64) opt.Cost { return New(rows, cpu, io) }

// MakeHugeCost is part of the opt.CostFactory interface.
func (Factory) MakeHugeCost() opt.Cost { return Huge }

// MakeInfiniteCost is part of the opt.CostFactory interface.
func (Factory) MakeInfiniteCost() opt.Cost { return Infinity }

// MakeTinyCost is part of the opt.CostFactory interface.
func (Factory) MakeTinyCost() opt.Cost { return Tiny }

// MakeZeroCost is part of the opt.CostFactory interface.
func (Factory) MakeZeroCost() opt.Cost { return Zero }
