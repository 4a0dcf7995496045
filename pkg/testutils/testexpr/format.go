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

package testexpr

import (
	"strings"

	"github.com/cockroachdb/volcano/pkg/opt"
)

// Format returns the tree of an expression, one operator per line, with each
// input indented below its parent. Inputs that are not test expressions, such
// as planner subsets, are printed as their digest.
func Format(e opt.Expr) string {
	var b strings.Builder
	format(&b, e, 0)
	return b.String()
}

func format(b *strings.Builder, e opt.Expr, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	var name string
	switch e.(type) {
	case *NoneSingle:
		name = "NoneSingle"
	case *PhysSingle:
		name = "PhysSingle"
	case *Project:
		name = "Project"
	case *PhysToIterator:
		name = "PhysToIterator"
	case *NoneJoin:
		name = "NoneJoin"
	case *PhysJoin:
		name = "PhysJoin"
	default:
		// Leaves, and expressions of other packages.
		b.WriteString(e.Digest())
		b.WriteByte('\n')
		return
	}
	b.WriteString(name)
	b.WriteByte('\n')
	for i, n := 0, e.ChildCount(); i < n; i++ {
		format(b, e.Child(i), depth+1)
	}
}
