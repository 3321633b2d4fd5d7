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

// Package cohort clusters groups by the set of chunks
// they appear in.
//
// Groups sharing a chunk-membership signature can be
// reduced together while reading only their member
// chunks, so merge cost tracks the chunks a group
// actually touches rather than the total chunk count.
package cohort

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dchest/siphash"
	"golang.org/x/exp/slices"

	"github.com/SnellerInc/regroup/chunk"
	"github.com/SnellerInc/regroup/ints"
)

// signature hash keys; arbitrary but fixed
const (
	sipK0 = 0x7c91cab7a6c2fd49
	sipK1 = 0x3f8ea5bdbf204c11
)

// DefaultThreshold is the conventional containment
// threshold callers pass to enable cohort merging.
const DefaultThreshold = 0.9

// Options configures planning.
type Options struct {
	// Threshold enables the relaxed merge mode: cohorts
	// whose chunk sets have containment
	//   |A∩B| / min(|A|, |B|)
	// at or above it are unioned, trading extra chunk
	// reads for fewer, larger cohorts. Zero or one keeps
	// the strict mode, where only groups with identical
	// signatures share a cohort.
	Threshold float64
}

// Cohort is a cluster of groups whose chunk-membership
// signatures are identical, or near-identical when
// merging is enabled.
type Cohort struct {
	// Groups lists the member group codes in ascending order.
	Groups []int32
	// Chunks is the union of the members' chunk sets.
	Chunks ints.Bitset
	// Global marks a cohort spanning every non-empty
	// chunk; isolating it buys nothing, so the executor
	// routes it through the map-reduce path.
	Global bool
}

// Preference is the strategy suggested by the shape of
// the cohorts. The selector weighs it against explicit
// overrides and the cost model.
type Preference uint8

const (
	PrefMapReduce Preference = iota
	PrefCohorts
	PrefBlockwise
)

var prefNames = [...]string{
	PrefMapReduce: "map-reduce",
	PrefCohorts:   "cohorts",
	PrefBlockwise: "blockwise",
}

func (p Preference) String() string {
	if int(p) < len(prefNames) {
		return prefNames[p]
	}
	return "preference(?)"
}

// Result is a cohort plan. Every non-empty group appears
// in exactly one cohort; empty groups belong to none and
// are filled by the executor.
type Result struct {
	Cohorts   []Cohort
	Preferred Preference

	Groups         int // group slots, including empty ones
	NonEmptyGroups int
	NumChunks      int // grid chunks, including all-sentinel ones
	NonEmptyChunks int
}

// AvgChunksPerCohort returns the mean chunk-set size
// across cohorts, the per-cohort read cost proxy.
func (r *Result) AvgChunksPerCohort() float64 {
	if len(r.Cohorts) == 0 {
		return 0
	}
	total := 0
	for i := range r.Cohorts {
		total += r.Cohorts[i].Chunks.Count()
	}
	return float64(total) / float64(len(r.Cohorts))
}

// cluster accumulates groups sharing one signature
// during planning.
type cluster struct {
	groups []int32
	set    ints.Bitset
	size   int // cached set.Count()
	dead   bool
}

// Plan computes the cohort decomposition of codes over
// grid. ngroups is the total number of group slots; codes
// at or above it are rejected before any work is planned.
func Plan(codes []int32, ngroups int, grid *chunk.Grid, opt Options) (*Result, error) {
	if grid == nil {
		return nil, fmt.Errorf("cohort: nil grid")
	}
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("cohort: %w", err)
	}
	if grid.Len() != len(codes) {
		return nil, fmt.Errorf("cohort: %d codes for a grid of %d elements", len(codes), grid.Len())
	}
	threshold := opt.Threshold
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("cohort: bad merge threshold %v", opt.Threshold)
	}
	if ngroups < 0 {
		return nil, fmt.Errorf("cohort: negative group count %d", ngroups)
	}
	for i, c := range codes {
		if int(c) >= ngroups {
			return nil, fmt.Errorf("cohort: code %d at position %d out of range [0, %d)", c, i, ngroups)
		}
	}

	nc := grid.NumChunks()
	res := &Result{
		Groups:    ngroups,
		NumChunks: nc,
	}
	if ngroups == 0 {
		return res, nil
	}

	// inverse index: per-group chunk membership
	member := make([]ints.Bitset, ngroups)
	used := ints.MakeBitset(nc)
	for c := 0; c < nc; c++ {
		grid.Intervals(c).Each(func(iv ints.Interval) {
			for i := iv.Start; i < iv.End; i++ {
				g := codes[i]
				if g < 0 {
					continue
				}
				if member[g].Cap() == 0 {
					member[g] = ints.MakeBitset(nc)
				}
				member[g].Set(c)
				used.Set(c)
			}
		})
	}
	res.NonEmptyChunks = used.Count()

	// cluster identical signatures: hash the bitset words,
	// then verify exactly within the bucket
	var clusters []*cluster
	buckets := make(map[[2]uint64][]*cluster)
	var scratch []byte
	for g := 0; g < ngroups; g++ {
		if member[g].Cap() == 0 {
			continue // empty group, filled later
		}
		res.NonEmptyGroups++
		scratch = scratch[:0]
		for _, w := range member[g].Words() {
			scratch = binary.LittleEndian.AppendUint64(scratch, w)
		}
		lo, hi := siphash.Hash128(sipK0, sipK1, scratch)
		key := [2]uint64{lo, hi}
		var home *cluster
		for _, cand := range buckets[key] {
			if cand.set.Equal(&member[g]) {
				home = cand
				break
			}
		}
		if home == nil {
			home = &cluster{set: member[g], size: member[g].Count()}
			clusters = append(clusters, home)
			buckets[key] = append(buckets[key], home)
		}
		home.groups = append(home.groups, int32(g))
	}

	if threshold > 0 && threshold < 1 {
		mergeClusters(clusters, threshold)
	}

	// assemble cohorts in order of their lowest group code
	for _, cl := range clusters {
		if cl.dead {
			continue
		}
		slices.Sort(cl.groups)
		res.Cohorts = append(res.Cohorts, Cohort{
			Groups: cl.groups,
			Chunks: cl.set,
			Global: cl.size == res.NonEmptyChunks && res.NonEmptyChunks > 1,
		})
	}
	slices.SortFunc(res.Cohorts, func(a, b Cohort) int {
		return int(a.Groups[0]) - int(b.Groups[0])
	})
	res.Preferred = prefer(res)
	return res, nil
}

// mergeClusters unions clusters whose chunk sets are
// mostly contained in one another. Larger clusters absorb
// smaller ones so the pass is deterministic.
func mergeClusters(clusters []*cluster, threshold float64) {
	order := make([]*cluster, len(clusters))
	copy(order, clusters)
	slices.SortFunc(order, func(a, b *cluster) int {
		if a.size != b.size {
			return b.size - a.size
		}
		return int(a.groups[0]) - int(b.groups[0])
	})
	for i, big := range order {
		if big.dead {
			continue
		}
		for _, small := range order[i+1:] {
			if small.dead {
				continue
			}
			inter := big.set.IntersectCount(&small.set)
			m := small.size
			if big.size < m {
				m = big.size
			}
			if m == 0 || float64(inter)/float64(m) < threshold {
				continue
			}
			big.set.Union(&small.set)
			big.size = big.set.Count()
			big.groups = append(big.groups, small.groups...)
			small.dead = true
		}
	}
}

// prefer derives the strategy suggestion from the cohort
// shapes. Blockwise when chunks and cohorts line up 1:1;
// map-reduce when most groups span every chunk anyway;
// cohorts only when clustering bought locality on both
// axes: fewer cohorts than groups and narrow chunk sets.
func prefer(res *Result) Preference {
	if len(res.Cohorts) == 0 {
		return PrefMapReduce
	}
	blockwise := true
	globals := 0
	for i := range res.Cohorts {
		if res.Cohorts[i].Chunks.Count() != 1 {
			blockwise = false
		}
		if res.Cohorts[i].Global {
			globals += len(res.Cohorts[i].Groups)
		}
	}
	if blockwise {
		return PrefBlockwise
	}
	if globals*2 > res.NonEmptyGroups {
		return PrefMapReduce
	}
	if len(res.Cohorts) < res.NonEmptyGroups &&
		res.AvgChunksPerCohort()*2 <= float64(res.NonEmptyChunks) {
		return PrefCohorts
	}
	return PrefMapReduce
}
