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
	"strconv"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/volcano/pkg/opt"
)

// Parse builds an expression tree from its text form, for example:
//
//	single(project(physleaf(a)))
//	join(leaf(a), physleaf(b, 10))
//
// The operators are leaf, physleaf, single, physsingle, project, iterator,
// join and physjoin. The second argument of physleaf is its row count.
func Parse(s string) (opt.Expr, error) {
	p := parser{s: s}
	e, err := p.parseExpr()
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %q", s)
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, errors.Newf("parsing %q: unexpected %q at offset %d", s, p.s[p.pos:], p.pos)
	}
	return e, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.s) && unicode.IsSpace(rune(p.s[p.pos])) {
		p.pos++
	}
}

func (p *parser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.s) {
		c := rune(p.s[p.pos])
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' && c != '.' {
			break
		}
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.s) || p.s[p.pos] != c {
		return errors.Newf("expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}

func (p *parser) peek(c byte) bool {
	p.skipSpace()
	return p.pos < len(p.s) && p.s[p.pos] == c
}

func (p *parser) parseExpr() (opt.Expr, error) {
	name := strings.ToLower(p.ident())
	if name == "" {
		return nil, errors.Newf("expected operator at offset %d", p.pos)
	}
	if err := p.expect('('); err != nil {
		return nil, err
	}

	var e opt.Expr
	switch name {
	case "leaf", "physleaf":
		label := p.ident()
		if label == "" {
			return nil, errors.Newf("%s requires a label", name)
		}
		if name == "leaf" {
			e = NewNoneLeaf(label)
			break
		}
		l := NewPhysLeaf(label)
		if p.peek(',') {
			p.pos++
			rows, err := strconv.ParseFloat(p.ident(), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row count of %s", label)
			}
			l.Rows = rows
		}
		e = l

	case "single", "physsingle", "project", "iterator":
		input, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		switch name {
		case "single":
			e = NewNoneSingle(input)
		case "physsingle":
			e = NewPhysSingle(input)
		case "project":
			e = NewProject(input)
		default:
			e = NewPhysToIterator(input)
		}

	case "join", "physjoin":
		left, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		right, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if name == "join" {
			e = NewNoneJoin(left, right)
		} else {
			e = NewPhysJoin(left, right)
		}

	default:
		return nil, errors.Newf("unknown operator %q", name)
	}

	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return e, nil
}
