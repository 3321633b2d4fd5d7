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
	"context"
	"fmt"
	"time"

	"github.com/SnellerInc/regroup/agg"
	"github.com/SnellerInc/regroup/chunk"
	"github.com/SnellerInc/regroup/cohort"
	"github.com/SnellerInc/regroup/ints"
	"github.com/SnellerInc/regroup/kernel"
	"golang.org/x/exp/slices"
)

// Input bundles everything a graph execution reads.
// All fields are treated as read-only for the duration
// of the run.
type Input struct {
	// Data holds the values, flattened in chunk order.
	Data []float64
	// Codes holds the group code of each element; negative
	// codes are skipped.
	Codes []int32
	// Grid maps chunk indices to element positions.
	Grid *chunk.Grid
	// Agg is the aggregation to compute.
	Agg *agg.Blueprint
	// Plan is the cohort plan for Codes over Grid.
	Plan *cohort.Result
}

func (in *Input) validate(g *Graph) error {
	if g == nil {
		return fmt.Errorf("plan: nil graph")
	}
	if in.Grid == nil {
		return fmt.Errorf("plan: nil grid")
	}
	if err := in.Grid.Validate(); err != nil {
		return err
	}
	if in.Agg == nil {
		return fmt.Errorf("plan: nil aggregation")
	}
	if err := in.Agg.Validate(); err != nil {
		return err
	}
	if in.Plan == nil {
		return fmt.Errorf("plan: nil cohort plan")
	}
	if len(in.Data) != len(in.Codes) {
		return fmt.Errorf("plan: %d values but %d codes", len(in.Data), len(in.Codes))
	}
	if n := in.Grid.Len(); n != len(in.Codes) {
		return fmt.Errorf("plan: grid covers %d elements but %d codes given", n, len(in.Codes))
	}
	if in.Plan.NumChunks != in.Grid.NumChunks() {
		return fmt.Errorf("plan: cohort plan has %d chunks but grid has %d",
			in.Plan.NumChunks, in.Grid.NumChunks())
	}
	return nil
}

// Stats describes what an execution did.
type Stats struct {
	Tasks         int
	Chunks        int // chunk reads
	CombineLevels int
	Cohorts       int
	CacheHit      bool // cohort plan served from cache
	Elapsed       time.Duration
}

// Result is the outcome of a grouped reduction.
type Result struct {
	// Values holds one final value per group slot.
	Values []float64
	// Dtype says how to interpret Values.
	Dtype agg.Dtype
	// Strategy is the strategy that ran.
	Strategy Strategy
	Stats    Stats
}

// Execute runs g over in using eng (Local when nil) and
// returns the final per-group values. Strategies other
// than blockwise require a combinable aggregation; the
// run fails before touching any data otherwise.
func Execute(ctx context.Context, eng Engine, g *Graph, in Input) (*Result, error) {
	start := time.Now()
	if err := in.validate(g); err != nil {
		return nil, err
	}
	if g.Strategy != Blockwise && !in.Agg.Combinable() {
		return nil, fmt.Errorf("plan: %s under %s: %w", in.Agg.Name, g.Strategy, agg.ErrNotCombinable)
	}
	e := newExecutor(g, in)
	if eng == nil {
		eng = Local{}
	}
	if err := eng.Execute(ctx, g, e.run); err != nil {
		return nil, err
	}
	res := &Result{
		Values:   e.out,
		Dtype:    in.Agg.Final,
		Strategy: g.Strategy,
		Stats: Stats{
			Tasks:  len(g.Tasks),
			Chunks: g.NumReduces(),
			Cohorts: func() int {
				if g.Strategy == MapReduce {
					return 1
				}
				return len(in.Plan.Cohorts)
			}(),
		},
	}
	if n := g.NumStages(); n > 2 {
		res.Stats.CombineLevels = n - 2
	}
	res.Stats.Elapsed = time.Since(start)
	return res, nil
}

// partial holds slot-major intermediate values for the
// groups of one cohort. The trailing slot counts members
// and drives the empty-group fill.
type partial struct {
	slots [][]float64
}

// cohortCtx scopes global group codes to one sub-reduction.
type cohortCtx struct {
	groups []int32         // local slot -> global group; nil means identity
	remap  map[int32]int32 // global group -> local slot; nil means identity
	n      int             // local group count
}

type executor struct {
	in  Input
	out []float64

	cohorts []cohortCtx
	pseudo  cohortCtx // map-reduce: every group, no remap

	// visible blueprint slots plus the trailing count slot
	chunkOps   []agg.Op
	combineOps []agg.Op
	fills      []float64
	dtypes     []agg.Dtype

	parts []*partial // by task ID
}

func newExecutor(g *Graph, in Input) *executor {
	bp := in.Agg
	e := &executor{
		in:         in,
		out:        make([]float64, in.Plan.Groups),
		chunkOps:   append(slices.Clone(bp.Chunk), agg.Op{Name: agg.OpCount}),
		combineOps: append(slices.Clone(bp.Combine), agg.Op{Name: agg.OpSum}),
		fills:      append(slices.Clone(bp.FillChunk), 0),
		dtypes:     append(slices.Clone(bp.Dtypes), agg.Int64),
		parts:      make([]*partial, len(g.Tasks)),
	}
	// groups outside every cohort are empty and keep the fill
	for i := range e.out {
		e.out[i] = bp.FillFinal
	}
	e.cohorts = make([]cohortCtx, len(in.Plan.Cohorts))
	for ci := range in.Plan.Cohorts {
		groups := in.Plan.Cohorts[ci].Groups
		remap := make(map[int32]int32, len(groups))
		for local, global := range groups {
			remap[global] = int32(local)
		}
		e.cohorts[ci] = cohortCtx{groups: groups, remap: remap, n: len(groups)}
	}
	e.pseudo = cohortCtx{n: in.Plan.Groups}
	return e
}

func (e *executor) ctxOf(t *Task) *cohortCtx {
	if t.Cohort < 0 {
		return &e.pseudo
	}
	return &e.cohorts[t.Cohort]
}

func (e *executor) run(_ context.Context, t *Task) error {
	switch t.Kind {
	case TaskReduce:
		return e.reduce(t)
	case TaskCombine:
		return e.combine(t)
	case TaskFinalize:
		return e.finalize(t)
	}
	return fmt.Errorf("plan: task %d has bad kind %d", t.ID, t.Kind)
}

// indexProducing reports chunk ops whose per-group result
// is a position into the chunk's values rather than a
// value; those must be rebased to flat positions.
func indexProducing(name agg.OpName) bool {
	switch name {
	case agg.OpArgMin, agg.OpArgMax, agg.OpMinIdx, agg.OpMaxIdx:
		return true
	}
	return false
}

func (e *executor) reduce(t *Task) error {
	cc := e.ctxOf(t)
	iv := e.in.Grid.Intervals(t.Chunk)
	n := iv.Len()
	codes := make([]int32, 0, n)
	vals := make([]float64, 0, n)
	pos := make([]int, 0, n)
	iv.Each(func(iv ints.Interval) {
		for i := iv.Start; i < iv.End; i++ {
			code := e.in.Codes[i]
			if code >= 0 && cc.remap != nil {
				local, ok := cc.remap[code]
				if !ok {
					// group belongs to another cohort
					code = -1
				} else {
					code = local
				}
			}
			codes = append(codes, code)
			vals = append(vals, e.in.Data[i])
			pos = append(pos, i)
		}
	})
	slots := make([][]float64, len(e.chunkOps))
	for s, op := range e.chunkOps {
		out, err := kernel.Apply(op, codes, vals, cc.n, e.fills[s], e.dtypes[s])
		if err != nil {
			return fmt.Errorf("plan: chunk %d: %w", t.Chunk, err)
		}
		if indexProducing(op.Name) {
			// chunk-local positions -> flat positions; the fill
			// markers (-1, +Inf, NaN) pass through untouched
			for gi, v := range out {
				if v >= 0 && v < float64(len(pos)) {
					out[gi] = float64(pos[int(v)])
				}
			}
		}
		slots[s] = out
	}
	e.parts[t.ID] = &partial{slots: slots}
	return nil
}

// combine merges the partials of t.Left and t.Right into a
// fresh partial; inputs are released but never mutated, so
// a cancelled or failed run leaves no corrupted state.
func (e *executor) combine(t *Task) error {
	left, right := e.parts[t.Left], e.parts[t.Right]
	dst := make([][]float64, len(left.slots))
	for s := range dst {
		dst[s] = slices.Clone(left.slots[s])
	}
	if err := kernel.Combine(dst, right.slots, e.combineOps); err != nil {
		return fmt.Errorf("plan: combine %d+%d: %w", t.Left, t.Right, err)
	}
	e.parts[t.ID] = &partial{slots: dst}
	e.parts[t.Left], e.parts[t.Right] = nil, nil
	return nil
}

func (e *executor) finalize(t *Task) error {
	p := e.parts[t.Input]
	cc := e.ctxOf(t)
	bp := e.in.Agg
	nslots := len(e.chunkOps) - 1
	counts := p.slots[nslots]
	buf := make([]float64, nslots)
	for local := 0; local < cc.n; local++ {
		global := local
		if cc.groups != nil {
			global = int(cc.groups[local])
		}
		if counts[local] == 0 {
			// fill applies after finalize, not through it
			e.out[global] = bp.FillFinal
			continue
		}
		if bp.Finalize == nil {
			e.out[global] = p.slots[0][local]
			continue
		}
		for s := 0; s < nslots; s++ {
			buf[s] = p.slots[s][local]
		}
		e.out[global] = bp.Finalize(buf, bp.FillFinal)
	}
	e.parts[t.Input] = nil
	return nil
}
