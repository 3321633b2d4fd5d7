// Copyright 2024 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Package plan selects a reduction strategy, builds the
// task graph implementing it, and executes the graph over
// chunked data through a pluggable engine.
package plan

import (
	"errors"
	"fmt"

	"github.com/SnellerInc/regroup/agg"
	"github.com/SnellerInc/regroup/cohort"
)

// ErrInfeasible indicates an explicitly requested strategy
// that cannot run on the given inputs.
var ErrInfeasible = errors.New("strategy not feasible")

// Strategy enumerates the ways a grouped reduction can be
// decomposed over chunks.
type Strategy uint8

const (
	// Auto lets Select pick the cheapest feasible strategy.
	Auto Strategy = iota
	// Blockwise reduces each chunk to final values directly;
	// feasible only when chunks and cohorts line up 1:1.
	Blockwise
	// MapReduce computes partials over all groups for every
	// chunk and tree-combines them.
	MapReduce
	// Cohorts runs one sub-reduction per cohort, reading
	// only the cohort's member chunks.
	Cohorts
)

var strategyNames = [...]string{
	Auto:      "auto",
	Blockwise: "blockwise",
	MapReduce: "map-reduce",
	Cohorts:   "cohorts",
}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return "strategy(?)"
}

// ParseStrategy parses the string form produced by
// Strategy.String.
func ParseStrategy(s string) (Strategy, error) {
	for i, name := range strategyNames {
		if s == name {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("plan: bad strategy %q", s)
}

// Select resolves the strategy to execute. An explicit
// method is validated for feasibility and then honored
// even if suboptimal. Auto prefers blockwise when the
// cohort structure permits it, and otherwise compares the
// cohort cost proxy (cohort count times mean chunks per
// cohort) against the map-reduce proxy (chunk count times
// group count); ties go to cohorts, which yields fewer
// intermediate tasks.
func Select(method Strategy, res *cohort.Result, bp *agg.Blueprint) (Strategy, error) {
	blockwise := res.Preferred == cohort.PrefBlockwise
	switch method {
	case Blockwise:
		if !blockwise {
			return 0, fmt.Errorf("plan: blockwise: chunks and cohorts not 1:1: %w", ErrInfeasible)
		}
		return Blockwise, nil
	case MapReduce, Cohorts:
		if !bp.Combinable() {
			return 0, fmt.Errorf("plan: %s: %s: %w", method, bp.Name, agg.ErrNotCombinable)
		}
		return method, nil
	case Auto:
		if blockwise {
			return Blockwise, nil
		}
		if !bp.Combinable() {
			return 0, fmt.Errorf("plan: %s only reduces blockwise, but chunks and cohorts are not 1:1: %w",
				bp.Name, agg.ErrNotCombinable)
		}
		cohortCost := float64(len(res.Cohorts)) * res.AvgChunksPerCohort()
		mapredCost := float64(res.NumChunks) * float64(res.Groups)
		if cohortCost <= mapredCost {
			return Cohorts, nil
		}
		return MapReduce, nil
	}
	return 0, fmt.Errorf("plan: bad strategy %d", method)
}
