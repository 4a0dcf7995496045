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

import (
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Convention identifies an execution strategy that an expression produces its
// results in. Conventions are compared by pointer identity, so each one should
// be created exactly once, typically as a package-level variable.
//
// A convention may require that every expression of that convention implement
// an interface. The planner refuses to register an expression that claims a
// convention but does not implement its interface, unless the expression is a
// Converter.
type Convention struct {
	name    string
	ordinal int
	iface   reflect.Type
}

// NoneConvention is the convention of logical expressions that cannot be
// executed. Any expression of this convention has infinite cost.
var NoneConvention = &Convention{name: "NONE"}

// NewConvention creates a calling convention. The iface parameter may be nil,
// in which case expressions of the convention need not implement anything
// beyond Expr. Otherwise it must be an interface type.
func NewConvention(name string, ordinal int, iface reflect.Type) *Convention {
	if iface != nil && iface.Kind() != reflect.Interface {
		panic(errors.AssertionFailedf("convention %s: %s is not an interface type", name, iface))
	}
	return &Convention{name: name, ordinal: ordinal, iface: iface}
}

// Name returns the name of the convention, such as "PHYS".
func (c *Convention) Name() string {
	return c.name
}

// Ordinal returns the ordinal the convention was created with.
func (c *Convention) Ordinal() int {
	return c.ordinal
}

// Interface returns the interface that expressions of this convention must
// implement, or nil.
func (c *Convention) Interface() reflect.Type {
	return c.iface
}

// Satisfies returns true if the expression implements the interface this
// convention requires.
func (c *Convention) Satisfies(e Expr) bool {
	if c.iface == nil {
		return true
	}
	return reflect.TypeOf(e).Implements(c.iface)
}

func (c *Convention) String() string {
	return c.name
}

// SafeValue implements the redact.SafeValue interface.
func (c *Convention) SafeValue() {}

var _ redact.SafeValue = (*Convention)(nil)
