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

// Package kernel implements the primitive grouped
// reduction kernels referenced by aggregation blueprints.
//
// Kernels are single-threaded and allocation-light; the
// executor above them decides which elements each call
// sees and how partial results merge.
package kernel

import (
	"fmt"
	"math"
	"sort"

	"github.com/SnellerInc/regroup/agg"
)

// Apply folds values into one output slot per group
// according to op. codes assigns each element to a group;
// negative codes are skipped. Groups with no members get
// fill. Index-producing ops report positions local to the
// values slice; callers translate them to flat positions.
func Apply(op agg.Op, codes []int32, values []float64, ngroups int, fill float64, dtype agg.Dtype) ([]float64, error) {
	if len(codes) != len(values) {
		return nil, fmt.Errorf("kernel: %d codes but %d values", len(codes), len(values))
	}
	if ngroups < 0 {
		return nil, fmt.Errorf("kernel: negative group count %d", ngroups)
	}
	for i, c := range codes {
		if int(c) >= ngroups {
			return nil, fmt.Errorf("kernel: code %d at position %d out of range [0, %d)", c, i, ngroups)
		}
	}
	if op.Name == agg.OpCustom {
		if op.Fn == nil {
			return nil, fmt.Errorf("kernel: custom op has no function")
		}
		out, err := op.Fn(codes, values, ngroups, fill, dtype)
		if err != nil {
			return nil, err
		}
		if len(out) != ngroups {
			return nil, fmt.Errorf("kernel: custom op returned %d values for %d groups", len(out), ngroups)
		}
		return out, nil
	}
	out := make([]float64, ngroups)
	for g := range out {
		out[g] = fill
	}
	seen := make([]bool, ngroups)
	switch op.Name {
	case agg.OpSum:
		for i, c := range codes {
			if c < 0 {
				continue
			}
			if !seen[c] {
				seen[c] = true
				out[c] = values[i]
			} else {
				out[c] += values[i]
			}
		}
	case agg.OpSumSq:
		for i, c := range codes {
			if c < 0 {
				continue
			}
			v := values[i]
			if !seen[c] {
				seen[c] = true
				out[c] = v * v
			} else {
				out[c] += v * v
			}
		}
	case agg.OpProd:
		for i, c := range codes {
			if c < 0 {
				continue
			}
			if !seen[c] {
				seen[c] = true
				out[c] = values[i]
			} else {
				out[c] *= values[i]
			}
		}
	case agg.OpCount:
		for _, c := range codes {
			if c < 0 {
				continue
			}
			if !seen[c] {
				seen[c] = true
				out[c] = 1
			} else {
				out[c]++
			}
		}
	case agg.OpMin:
		for i, c := range codes {
			if c < 0 {
				continue
			}
			if !seen[c] {
				seen[c] = true
				out[c] = values[i]
			} else {
				out[c] = math.Min(out[c], values[i])
			}
		}
	case agg.OpMax:
		for i, c := range codes {
			if c < 0 {
				continue
			}
			if !seen[c] {
				seen[c] = true
				out[c] = values[i]
			} else {
				out[c] = math.Max(out[c], values[i])
			}
		}
	case agg.OpArgMin, agg.OpArgMax:
		// ties keep the lowest position
		max := op.Name == agg.OpArgMax
		best := make([]float64, ngroups)
		for i, c := range codes {
			if c < 0 {
				continue
			}
			v := values[i]
			if !seen[c] {
				seen[c] = true
				best[c] = v
				out[c] = float64(i)
				continue
			}
			if max && v > best[c] || !max && v < best[c] {
				best[c] = v
				out[c] = float64(i)
			}
		}
	case agg.OpFirst:
		for i, c := range codes {
			if c < 0 || seen[c] {
				continue
			}
			seen[c] = true
			out[c] = values[i]
		}
	case agg.OpLast:
		for i, c := range codes {
			if c < 0 {
				continue
			}
			out[c] = values[i]
		}
	case agg.OpMinIdx:
		for i, c := range codes {
			if c < 0 || seen[c] {
				continue
			}
			seen[c] = true
			out[c] = float64(i)
		}
	case agg.OpMaxIdx:
		for i, c := range codes {
			if c < 0 {
				continue
			}
			out[c] = float64(i)
		}
	case agg.OpAny:
		for i, c := range codes {
			if c < 0 {
				continue
			}
			if !seen[c] {
				seen[c] = true
				out[c] = 0
			}
			if values[i] != 0 {
				out[c] = 1
			}
		}
	case agg.OpAll:
		for i, c := range codes {
			if c < 0 {
				continue
			}
			if !seen[c] {
				seen[c] = true
				out[c] = 1
			}
			if values[i] == 0 {
				out[c] = 0
			}
		}
	case agg.OpMode, agg.OpQuantile:
		buckets, nan := bucketSorted(codes, values, ngroups)
		for g, vals := range buckets {
			if nan[g] {
				out[g] = math.NaN()
				continue
			}
			if len(vals) == 0 {
				continue
			}
			if op.Name == agg.OpMode {
				out[g] = modeOf(vals)
			} else {
				out[g] = quantileOf(vals, op.Param)
			}
		}
	default:
		return nil, fmt.Errorf("kernel: no kernel for op %s", op.Name)
	}
	return out, nil
}

// bucketSorted gathers each group's non-NaN members into a
// sorted slice and flags groups containing NaN.
func bucketSorted(codes []int32, values []float64, ngroups int) ([][]float64, []bool) {
	count := make([]int, ngroups)
	nan := make([]bool, ngroups)
	for i, c := range codes {
		if c < 0 {
			continue
		}
		if math.IsNaN(values[i]) {
			nan[c] = true
			continue
		}
		count[c]++
	}
	buckets := make([][]float64, ngroups)
	for g, n := range count {
		if n > 0 {
			buckets[g] = make([]float64, 0, n)
		}
	}
	for i, c := range codes {
		if c < 0 || math.IsNaN(values[i]) {
			continue
		}
		buckets[c] = append(buckets[c], values[i])
	}
	for _, b := range buckets {
		sort.Float64s(b)
	}
	return buckets, nan
}

// modeOf returns the most frequent value in a sorted
// slice, preferring the smallest value on ties.
func modeOf(vals []float64) float64 {
	best, bestn := vals[0], 1
	cur, curn := vals[0], 1
	for _, v := range vals[1:] {
		if v == cur {
			curn++
		} else {
			cur, curn = v, 1
		}
		if curn > bestn {
			best, bestn = cur, curn
		}
	}
	return best
}

// quantileOf returns the q-quantile of a sorted slice by
// linear interpolation between closest ranks.
func quantileOf(vals []float64, q float64) float64 {
	h := q * float64(len(vals)-1)
	lo := int(h)
	frac := h - float64(lo)
	if frac == 0 || lo+1 >= len(vals) {
		return vals[lo]
	}
	return vals[lo] + frac*(vals[lo+1]-vals[lo])
}
