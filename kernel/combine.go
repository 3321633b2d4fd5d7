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

package kernel

import (
	"fmt"
	"math"

	"github.com/SnellerInc/regroup/agg"
)

// Combine merges the partial slots in src into dst
// according to the per-slot combine ops. dst and src are
// slot-major with one value per group per slot; dst is
// updated in place and src is left untouched.
//
// A pair op (OpArgMin, OpArgMax, OpFirst, OpLast) at slot
// s merges slots s and s+1 as a (value, index) pair; the
// op listed for slot s+1 must be OpIndexed.
func Combine(dst, src [][]float64, ops []agg.Op) error {
	if len(dst) != len(ops) || len(src) != len(ops) {
		return fmt.Errorf("kernel: %d/%d slots for %d combine ops", len(dst), len(src), len(ops))
	}
	for s := 0; s < len(ops); s++ {
		d, r := dst[s], src[s]
		if len(d) != len(r) {
			return fmt.Errorf("kernel: slot %d: %d groups in dst, %d in src", s, len(d), len(r))
		}
		switch ops[s].Name {
		case agg.OpSum:
			for g := range d {
				d[g] += r[g]
			}
		case agg.OpProd:
			for g := range d {
				d[g] *= r[g]
			}
		case agg.OpMin:
			for g := range d {
				d[g] = math.Min(d[g], r[g])
			}
		case agg.OpMax:
			for g := range d {
				d[g] = math.Max(d[g], r[g])
			}
		case agg.OpArgMin, agg.OpArgMax, agg.OpFirst, agg.OpLast:
			if s+1 >= len(ops) || ops[s+1].Name != agg.OpIndexed {
				return fmt.Errorf("kernel: combine op %s at slot %d has no indexed slot", ops[s].Name, s)
			}
			di, ri := dst[s+1], src[s+1]
			if len(di) != len(d) || len(ri) != len(r) {
				return fmt.Errorf("kernel: indexed slot %d size mismatch", s+1)
			}
			combinePair(ops[s].Name, d, di, r, ri)
			s++
		case agg.OpIndexed:
			return fmt.Errorf("kernel: unpaired indexed slot %d", s)
		default:
			return fmt.Errorf("kernel: op %s cannot combine", ops[s].Name)
		}
	}
	return nil
}

// combinePair merges (value, index) slot pairs. Arg ops
// order by value with the lower index breaking ties, so
// the outcome is independent of combine order; first/last
// order by index alone. A negative index marks a side the
// group has no members on; it never wins, even against a
// genuine ±Inf member whose value matches the fill.
func combinePair(name agg.OpName, dv, di, sv, si []float64) {
	switch name {
	case agg.OpArgMin:
		for g := range dv {
			if si[g] < 0 {
				continue
			}
			if di[g] < 0 || sv[g] < dv[g] || (sv[g] == dv[g] && si[g] < di[g]) {
				dv[g], di[g] = sv[g], si[g]
			}
		}
	case agg.OpArgMax:
		for g := range dv {
			if si[g] < 0 {
				continue
			}
			if di[g] < 0 || sv[g] > dv[g] || (sv[g] == dv[g] && si[g] < di[g]) {
				dv[g], di[g] = sv[g], si[g]
			}
		}
	case agg.OpFirst:
		for g := range dv {
			if si[g] < di[g] {
				dv[g], di[g] = sv[g], si[g]
			}
		}
	case agg.OpLast:
		for g := range dv {
			if si[g] > di[g] {
				dv[g], di[g] = sv[g], si[g]
			}
		}
	}
}
