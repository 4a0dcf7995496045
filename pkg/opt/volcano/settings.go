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

import "github.com/cockroachdb/volcano/pkg/util/envutil"

// Settings configures a planning session.
type Settings struct {
	// Ambitious keeps searching after a plan has been found, for a plan that
	// costs half as much, until the rule queue is exhausted.
	Ambitious bool

	// AllowInfiniteCostConverters allows a conversion path to continue after
	// one of its intermediate expressions has infinite cost.
	AllowInfiniteCostConverters bool

	// Validate checks the consistency of the sets after every registration.
	// It is expensive and intended for tests.
	Validate bool

	// MaxRuleFirings stops the search after the given number of rule matches
	// have been applied. Zero means no limit.
	MaxRuleFirings int
}

// DefaultSettings returns the settings used when none are given, taking
// overrides from the environment.
func DefaultSettings() Settings {
	return Settings{
		Ambitious:                   envutil.EnvOrDefaultBool("VOLCANO_AMBITIOUS", false),
		AllowInfiniteCostConverters: envutil.EnvOrDefaultBool("VOLCANO_ALLOW_INFINITE_COST_CONVERTERS", false),
		Validate:                    envutil.EnvOrDefaultBool("VOLCANO_VALIDATE", false),
		MaxRuleFirings:              envutil.EnvOrDefaultInt("VOLCANO_MAX_RULE_FIRINGS", 0),
	}
}
