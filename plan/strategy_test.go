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

package plan

import (
	"errors"
	"testing"

	"github.com/SnellerInc/regroup/agg"
	"github.com/SnellerInc/regroup/chunk"
	"github.com/SnellerInc/regroup/cohort"
)

func planFor(t *testing.T, codes []int32, ngroups int, sizes ...int) *cohort.Result {
	t.Helper()
	grid := chunk.NewGrid(chunk.Of(sizes...))
	res, err := cohort.Plan(codes, ngroups, grid, cohort.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestSelect(t *testing.T) {
	// one distinct group per chunk
	aligned := planFor(t, []int32{0, 0, 1, 2}, 3, 2, 1, 1)
	// groups 0 and 1 interleave over both chunks; group 2
	// only appears in the second
	straddled := planFor(t, []int32{0, 1, 0, 1, 2}, 3, 2, 3)

	sum := agg.Sum()
	mode := agg.Mode()

	cases := []struct {
		name   string
		method Strategy
		res    *cohort.Result
		bp     *agg.Blueprint
		want   Strategy
		err    error
	}{
		{"auto-aligned", Auto, aligned, sum, Blockwise, nil},
		{"auto-straddled", Auto, straddled, sum, Cohorts, nil},
		{"explicit-blockwise", Blockwise, aligned, sum, Blockwise, nil},
		{"explicit-mapreduce", MapReduce, straddled, sum, MapReduce, nil},
		{"explicit-cohorts", Cohorts, straddled, sum, Cohorts, nil},
		// explicit overrides are honored even when auto
		// would pick something cheaper
		{"override-suboptimal", MapReduce, aligned, sum, MapReduce, nil},
		{"blockwise-infeasible", Blockwise, straddled, sum, 0, ErrInfeasible},
		{"mode-aligned", Auto, aligned, mode, Blockwise, nil},
		{"mode-straddled", Auto, straddled, mode, 0, agg.ErrNotCombinable},
		{"mode-mapreduce", MapReduce, straddled, mode, 0, agg.ErrNotCombinable},
		{"mode-cohorts", Cohorts, aligned, mode, 0, agg.ErrNotCombinable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Select(tc.method, tc.res, tc.bp)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("got (%v, %v), want error %v", got, err, tc.err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("selected %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSelectCostProxy(t *testing.T) {
	// the cohort read cost (sum of per-cohort chunk sets)
	// never exceeds chunks x groups, so auto only lands on
	// map-reduce via explicit override; make sure the
	// comparison really fires on a shape where every group
	// straddles every chunk
	res := planFor(t, []int32{0, 1, 0, 1}, 2, 2, 2)
	got, err := Select(Auto, res, agg.Sum())
	if err != nil {
		t.Fatal(err)
	}
	if got != Cohorts {
		t.Errorf("selected %v, want %v", got, Cohorts)
	}
	if want := 2.0; res.AvgChunksPerCohort() != want {
		t.Errorf("avg chunks per cohort = %v, want %v", res.AvgChunksPerCohort(), want)
	}
}

func TestStrategyStrings(t *testing.T) {
	for _, s := range []Strategy{Auto, Blockwise, MapReduce, Cohorts} {
		back, err := ParseStrategy(s.String())
		if err != nil {
			t.Fatal(err)
		}
		if back != s {
			t.Errorf("%v does not roundtrip", s)
		}
	}
	if _, err := ParseStrategy("tree"); err == nil {
		t.Error("bad strategy name accepted")
	}
}
