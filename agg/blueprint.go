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

package agg

import (
	"errors"
	"fmt"
	"math"
)

// ErrNotCombinable indicates a blueprint without combine
// ops used with a strategy that must merge partials.
var ErrNotCombinable = errors.New("aggregation has no combine ops")

// Finalizer converts one group's combined slot values into
// the user-visible result. fill is the value for groups the
// finalizer itself determines to be empty (for example a
// mean with a zero count).
type Finalizer func(slots []float64, fill float64) float64

// Blueprint is the declarative description of one
// aggregation. Chunk lists the per-chunk ops, one per
// intermediate slot; Combine lists the slot-wise merge
// ops, or is nil for aggregations that cannot merge
// partials and therefore only run blockwise.
//
// A pair combine op (OpArgMin, OpArgMax, OpFirst, OpLast)
// at slot s merges slots s and s+1 together as a
// (value, index) pair; slot s+1 must then hold OpIndexed.
type Blueprint struct {
	Name      string
	Chunk     []Op
	Combine   []Op
	Finalize  Finalizer // nil means the result is slot 0
	FillChunk []float64 // per-slot identity for groups absent from a chunk
	FillFinal float64   // user-visible value for empty groups
	Dtypes    []Dtype   // per-slot interpretation
	Final     Dtype     // result interpretation
	DDOF      int       // delta degrees of freedom (var, std)
	Q         float64   // quantile fraction (quantile, median)
}

// Combinable returns true if the blueprint can merge
// partial results, i.e. it may run under strategies
// other than blockwise.
func (b *Blueprint) Combinable() bool { return b.Combine != nil }

// NumSlots returns the number of intermediate slots.
func (b *Blueprint) NumSlots() int { return len(b.Chunk) }

func (b *Blueprint) String() string { return b.Name }

// Validate checks the structural rules a blueprint must
// satisfy before execution. Built-in constructors return
// valid blueprints; callers assembling custom ones should
// validate before use.
func (b *Blueprint) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("agg: blueprint has no name")
	}
	n := len(b.Chunk)
	if n == 0 {
		return fmt.Errorf("agg: %s: no chunk ops", b.Name)
	}
	if len(b.FillChunk) != n {
		return fmt.Errorf("agg: %s: %d chunk ops but %d fill values", b.Name, n, len(b.FillChunk))
	}
	if len(b.Dtypes) != n {
		return fmt.Errorf("agg: %s: %d chunk ops but %d dtypes", b.Name, n, len(b.Dtypes))
	}
	if b.Combine != nil && len(b.Combine) != n {
		return fmt.Errorf("agg: %s: %d chunk ops but %d combine ops", b.Name, n, len(b.Combine))
	}
	if b.DDOF < 0 {
		return fmt.Errorf("agg: %s: negative ddof %d", b.Name, b.DDOF)
	}
	for s, op := range b.Chunk {
		switch op.Name {
		case OpInvalid, OpIndexed:
			return fmt.Errorf("agg: %s: bad chunk op %s at slot %d", b.Name, op.Name, s)
		case OpCustom:
			if op.Fn == nil {
				return fmt.Errorf("agg: %s: custom chunk op at slot %d has no function", b.Name, s)
			}
		case OpQuantile:
			if math.IsNaN(op.Param) || op.Param < 0 || op.Param > 1 {
				return fmt.Errorf("agg: %s: quantile fraction %v out of [0, 1]", b.Name, op.Param)
			}
		}
		if op.Name != OpCustom && op.Fn != nil {
			return fmt.Errorf("agg: %s: function attached to named op %s at slot %d", b.Name, op.Name, s)
		}
		if b.Dtypes[s] == Bool && op.Name != OpAny && op.Name != OpAll {
			return fmt.Errorf("agg: %s: op %s at slot %d cannot produce bool", b.Name, op.Name, s)
		}
	}
	for s := 0; s < len(b.Combine); s++ {
		op := b.Combine[s]
		switch op.Name {
		case OpSum, OpProd, OpMin, OpMax:
			// slot-wise fold
		case OpArgMin, OpArgMax, OpFirst, OpLast:
			if s+1 >= len(b.Combine) || b.Combine[s+1].Name != OpIndexed {
				return fmt.Errorf("agg: %s: combine op %s at slot %d needs an indexed slot after it", b.Name, op.Name, s)
			}
			s++
		case OpIndexed:
			return fmt.Errorf("agg: %s: unpaired indexed combine slot %d", b.Name, s)
		default:
			return fmt.Errorf("agg: %s: op %s cannot combine", b.Name, op.Name)
		}
		if op.Fn != nil {
			return fmt.Errorf("agg: %s: combine ops cannot be custom", b.Name)
		}
	}
	return nil
}
