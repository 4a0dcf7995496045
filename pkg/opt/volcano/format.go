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
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Dump writes every live set, subset and member of the planner to w, with
// their costs and importances. The format is meant for humans and may change.
func (p *Planner) Dump(w io.Writer) {
	live := 0
	for _, st := range p.sets[1:] {
		if st.isLive() {
			live++
		}
	}
	if p.root.set != 0 {
		fmt.Fprintf(w, "Root: %s\n", p.canonical(p.root))
	} else {
		fmt.Fprintf(w, "Root: none\n")
	}
	fmt.Fprintf(w, "Sets: %d live, %d merged\n", live, len(p.sets)-1-live)
	fmt.Fprintf(w, "Expressions: %d registered\n", len(p.exprs)-1)
	fmt.Fprintf(w, "Rule matches: %d pending, %d fired\n", p.queue.len(), p.firings)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Set", "Subset", "Importance", "Best", "Best cost", "Rel", "Cost"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, st := range p.sets[1:] {
		if !st.isLive() {
			continue
		}
		for _, ss := range st.subsets {
			s := Subset{set: st.id, conv: ss.conv, rowType: st.rowType}
			best := "-"
			if ss.best != 0 {
				best = fmt.Sprintf("rel#%d", ss.best)
			}
			importance := fmt.Sprintf("%.3f", p.queue.importance(s))
			if len(ss.members) == 0 {
				table.Append([]string{fmt.Sprintf("set#%d", st.id), s.String(), importance, best,
					ss.bestCost.String(), "", ""})
				continue
			}
			for _, id := range ss.members {
				m := p.exprs[id]
				table.Append([]string{fmt.Sprintf("set#%d", st.id), s.String(), importance, best,
					ss.bestCost.String(), fmt.Sprintf("rel#%d %s", id, m.expr.Digest()),
					p.getCost(m.expr).String()})
			}
		}
	}
	table.Render()
}

func (p *Planner) String() string {
	var b strings.Builder
	p.Dump(&b)
	return b.String()
}
