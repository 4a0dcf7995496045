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
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts the work done by a planner.
type Metrics struct {
	Registrations      prometheus.Counter
	Merges             prometheus.Counter
	MatchesQueued      prometheus.Counter
	MatchesFired       prometheus.Counter
	AbstractConverters prometheus.Counter
}

// NewMetrics creates a set of unregistered counters. Planners that share a
// Metrics accumulate into the same counters.
func NewMetrics() *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "volcano",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		Registrations: counter("registrations_total",
			"Number of expressions registered and sets merged."),
		Merges: counter("set_merges_total",
			"Number of equivalence sets merged into another set."),
		MatchesQueued: counter("rule_matches_queued_total",
			"Number of rule matches added to the rule queue."),
		MatchesFired: counter("rule_matches_fired_total",
			"Number of rule matches applied."),
		AbstractConverters: counter("abstract_converters_total",
			"Number of abstract converters created."),
	}
}

// Register registers the counters with the given registerer. If any counter
// cannot be registered, the counters registered before it are unregistered,
// so that a failed call leaves the registerer unchanged.
func (m *Metrics) Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{
		m.Registrations, m.Merges, m.MatchesQueued, m.MatchesFired, m.AbstractConverters,
	}
	for i, c := range cs {
		if err := r.Register(c); err != nil {
			for _, added := range cs[:i] {
				r.Unregister(added)
			}
			return errors.Wrap(err, "registering planner metrics")
		}
	}
	return nil
}
