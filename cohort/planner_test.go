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

package cohort

import (
	"math"
	"math/rand"
	"testing"

	"golang.org/x/exp/slices"

	"github.com/SnellerInc/regroup/chunk"
	"github.com/SnellerInc/regroup/ints"
)

func plan(t *testing.T, codes []int32, ngroups int, grid *chunk.Grid, opt Options) *Result {
	t.Helper()
	res, err := Plan(codes, ngroups, grid, opt)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return res
}

func TestPlanTwoChunks(t *testing.T) {
	// groups 0 and 1 occur in both chunks, group 2 only in
	// the second; its cohort must not pull in chunk 0
	codes := []int32{0, 1, 0, 1, 2}
	grid := chunk.NewGrid(chunk.Of(2, 3))
	res := plan(t, codes, 3, grid, Options{})
	if len(res.Cohorts) != 2 {
		t.Fatalf("got %d cohorts", len(res.Cohorts))
	}
	c0, c1 := res.Cohorts[0], res.Cohorts[1]
	if !slices.Equal(c0.Groups, []int32{0, 1}) {
		t.Errorf("cohort 0 groups = %v", c0.Groups)
	}
	if got := c0.Chunks.Members(); !slices.Equal(got, []int{0, 1}) {
		t.Errorf("cohort 0 chunks = %v", got)
	}
	if !c0.Global {
		t.Error("cohort 0 spans every chunk but is not Global")
	}
	if !slices.Equal(c1.Groups, []int32{2}) {
		t.Errorf("cohort 1 groups = %v", c1.Groups)
	}
	if got := c1.Chunks.Members(); !slices.Equal(got, []int{1}) {
		t.Errorf("cohort 1 chunks = %v", got)
	}
	if c1.Global {
		t.Error("cohort 1 marked Global")
	}
	if res.NonEmptyGroups != 3 || res.NonEmptyChunks != 2 {
		t.Errorf("NonEmptyGroups=%d NonEmptyChunks=%d", res.NonEmptyGroups, res.NonEmptyChunks)
	}
}

func TestPlanBlockwise(t *testing.T) {
	codes := []int32{0, 1, 2}
	grid := chunk.NewGrid(chunk.Of(1, 1, 1))
	res := plan(t, codes, 3, grid, Options{})
	if len(res.Cohorts) != 3 {
		t.Fatalf("got %d cohorts", len(res.Cohorts))
	}
	for i := range res.Cohorts {
		if res.Cohorts[i].Chunks.Count() != 1 {
			t.Errorf("cohort %d spans %d chunks", i, res.Cohorts[i].Chunks.Count())
		}
	}
	if res.Preferred != PrefBlockwise {
		t.Errorf("Preferred = %v, want blockwise", res.Preferred)
	}
}

func TestPlanSingleChunk(t *testing.T) {
	codes := []int32{0, 1, 0, 1, 2}
	grid := chunk.NewGrid(chunk.Of(5))
	res := plan(t, codes, 3, grid, Options{})
	if len(res.Cohorts) != 1 {
		t.Fatalf("got %d cohorts", len(res.Cohorts))
	}
	c := res.Cohorts[0]
	if !slices.Equal(c.Groups, []int32{0, 1, 2}) {
		t.Errorf("groups = %v", c.Groups)
	}
	if c.Global {
		t.Error("single-chunk cohort marked Global")
	}
	if res.Preferred != PrefBlockwise {
		t.Errorf("Preferred = %v", res.Preferred)
	}
}

func TestPlanGlobalPrefersMapReduce(t *testing.T) {
	codes := []int32{0, 1, 0, 1}
	grid := chunk.NewGrid(chunk.Of(2, 2))
	res := plan(t, codes, 2, grid, Options{})
	if len(res.Cohorts) != 1 || !res.Cohorts[0].Global {
		t.Fatalf("cohorts = %+v", res.Cohorts)
	}
	if res.Preferred != PrefMapReduce {
		t.Errorf("Preferred = %v, want map-reduce", res.Preferred)
	}
}

func TestPlanMultiAxis(t *testing.T) {
	// 4x6 elements in a 2x2 chunk grid; group by column half
	// and row parity, so two groups share each column of
	// chunks: fewer cohorts than groups, each touching half
	// the chunks
	grid := chunk.NewGrid(chunk.Of(2, 2), chunk.Of(3, 3))
	codes := make([]int32, 24)
	for row := 0; row < 4; row++ {
		for col := 0; col < 6; col++ {
			codes[row*6+col] = int32((col/3)*2 + row%2)
		}
	}
	res := plan(t, codes, 4, grid, Options{})
	if len(res.Cohorts) != 2 {
		t.Fatalf("got %d cohorts", len(res.Cohorts))
	}
	if !slices.Equal(res.Cohorts[0].Groups, []int32{0, 1}) {
		t.Errorf("cohort 0 groups = %v", res.Cohorts[0].Groups)
	}
	if got := res.Cohorts[0].Chunks.Members(); !slices.Equal(got, []int{0, 2}) {
		t.Errorf("cohort 0 chunks = %v", got)
	}
	if !slices.Equal(res.Cohorts[1].Groups, []int32{2, 3}) {
		t.Errorf("cohort 1 groups = %v", res.Cohorts[1].Groups)
	}
	if got := res.Cohorts[1].Chunks.Members(); !slices.Equal(got, []int{1, 3}) {
		t.Errorf("cohort 1 chunks = %v", got)
	}
	if res.Preferred != PrefCohorts {
		t.Errorf("Preferred = %v, want cohorts", res.Preferred)
	}
}

func TestPlanWideCohortsPreferMapReduce(t *testing.T) {
	// clustering pairs groups 0 and 1, but every cohort
	// still spans two of the three chunks; fewer cohorts
	// than groups alone does not earn the cohorts preference
	codes := []int32{0, 1, 3, 0, 1, 2, 2, 3, -1}
	grid := chunk.NewGrid(chunk.Of(3, 3, 3))
	res := plan(t, codes, 4, grid, Options{})
	if len(res.Cohorts) != 3 {
		t.Fatalf("got %d cohorts", len(res.Cohorts))
	}
	if res.Preferred != PrefMapReduce {
		t.Errorf("Preferred = %v, want map-reduce", res.Preferred)
	}
}

func TestPlanMergeThreshold(t *testing.T) {
	// chunks: {0,1} {2,3} {4,5} {6,7}
	// group 0 in chunks 0,1,2; group 1 in chunks 1,2,3:
	// containment 2/3 ~ 0.67
	codes := []int32{0, -1, 0, 1, 0, 1, -1, 1}
	grid := chunk.NewGrid(chunk.Of(2, 2, 2, 2))
	strict := plan(t, codes, 2, grid, Options{})
	if len(strict.Cohorts) != 2 {
		t.Fatalf("strict: got %d cohorts", len(strict.Cohorts))
	}
	high := plan(t, codes, 2, grid, Options{Threshold: 0.9})
	if len(high.Cohorts) != 2 {
		t.Errorf("threshold 0.9: got %d cohorts", len(high.Cohorts))
	}
	low := plan(t, codes, 2, grid, Options{Threshold: 0.6})
	if len(low.Cohorts) != 1 {
		t.Fatalf("threshold 0.6: got %d cohorts", len(low.Cohorts))
	}
	merged := low.Cohorts[0]
	if !slices.Equal(merged.Groups, []int32{0, 1}) {
		t.Errorf("merged groups = %v", merged.Groups)
	}
	if got := merged.Chunks.Members(); !slices.Equal(got, []int{0, 1, 2, 3}) {
		t.Errorf("merged chunks = %v", got)
	}
	if !merged.Global {
		t.Error("merged full-span cohort not Global")
	}
}

func TestPlanEmptyGroups(t *testing.T) {
	// group slots 1, 3, 4 never occur
	codes := []int32{0, 2, 0, -1}
	grid := chunk.NewGrid(chunk.Of(2, 2))
	res := plan(t, codes, 5, grid, Options{})
	if res.NonEmptyGroups != 2 || res.Groups != 5 {
		t.Errorf("NonEmptyGroups=%d Groups=%d", res.NonEmptyGroups, res.Groups)
	}
	seen := map[int32]bool{}
	for _, c := range res.Cohorts {
		for _, g := range c.Groups {
			seen[g] = true
		}
	}
	if len(seen) != 2 || !seen[0] || !seen[2] {
		t.Errorf("cohort members = %v", seen)
	}
}

func TestPlanZeroGroups(t *testing.T) {
	codes := []int32{-1, -1, -1}
	grid := chunk.NewGrid(chunk.Of(3))
	res := plan(t, codes, 0, grid, Options{})
	if len(res.Cohorts) != 0 || res.NonEmptyGroups != 0 {
		t.Errorf("result = %+v", res)
	}
	if _, err := Plan([]int32{0}, 0, chunk.NewGrid(chunk.Of(1)), Options{}); err == nil {
		t.Error("code 0 with zero groups accepted")
	}
}

func TestPlanErrors(t *testing.T) {
	grid := chunk.NewGrid(chunk.Of(2))
	if _, err := Plan([]int32{0, 0}, 1, nil, Options{}); err == nil {
		t.Error("nil grid accepted")
	}
	if _, err := Plan([]int32{0}, 1, grid, Options{}); err == nil {
		t.Error("length mismatch accepted")
	}
	if _, err := Plan([]int32{0, 5}, 2, grid, Options{}); err == nil {
		t.Error("out-of-range code accepted")
	}
	if _, err := Plan([]int32{0, 0}, -1, grid, Options{}); err == nil {
		t.Error("negative group count accepted")
	}
	for _, bad := range []float64{math.NaN(), -0.1, 1.5} {
		if _, err := Plan([]int32{0, 0}, 1, grid, Options{Threshold: bad}); err == nil {
			t.Errorf("threshold %v accepted", bad)
		}
	}
}

// membership recomputes one group's chunk set directly.
func membership(codes []int32, grid *chunk.Grid, g int32) ints.Bitset {
	set := ints.MakeBitset(grid.NumChunks())
	for c := 0; c < grid.NumChunks(); c++ {
		grid.Intervals(c).Each(func(iv ints.Interval) {
			for i := iv.Start; i < iv.End; i++ {
				if codes[i] == g {
					set.Set(c)
				}
			}
		})
	}
	return set
}

func TestPlanCoverageRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(0xc0))
	for iter := 0; iter < 50; iter++ {
		ngroups := 1 + rng.Intn(8)
		n := 1 + rng.Intn(60)
		codes := make([]int32, n)
		for i := range codes {
			codes[i] = int32(rng.Intn(ngroups+1)) - 1
		}
		var sizes []int
		for left := n; left > 0; {
			s := 1 + rng.Intn(left)
			sizes = append(sizes, s)
			left -= s
		}
		grid := chunk.NewGrid(chunk.Of(sizes...))
		res := plan(t, codes, ngroups, grid, Options{})

		// every non-empty group in exactly one cohort,
		// with exactly its own membership set
		assigned := make([]int, ngroups)
		for i := range res.Cohorts {
			co := &res.Cohorts[i]
			if len(co.Groups) == 0 {
				t.Fatal("empty cohort")
			}
			for _, g := range co.Groups {
				assigned[g]++
				// strict mode: cohort set == each member's set
				want := membership(codes, grid, g)
				if !want.Equal(&co.Chunks) {
					t.Fatalf("iter %d: group %d cohort chunks %v, membership %v",
						iter, g, co.Chunks.Members(), want.Members())
				}
			}
		}
		union := ints.MakeBitset(grid.NumChunks())
		for i := range res.Cohorts {
			union.Union(&res.Cohorts[i].Chunks)
		}
		for g := int32(0); int(g) < ngroups; g++ {
			want := 0
			m := membership(codes, grid, g)
			if m.Count() > 0 {
				want = 1
			}
			if assigned[g] != want {
				t.Fatalf("iter %d: group %d in %d cohorts, want %d", iter, g, assigned[g], want)
			}
		}
		// union covers every chunk holding a coded element
		for c := 0; c < grid.NumChunks(); c++ {
			coded := false
			grid.Intervals(c).Each(func(iv ints.Interval) {
				for i := iv.Start; i < iv.End; i++ {
					if codes[i] >= 0 {
						coded = true
					}
				}
			})
			if coded != union.Test(c) {
				t.Fatalf("iter %d: chunk %d coded=%v covered=%v", iter, c, coded, union.Test(c))
			}
		}
	}
}
