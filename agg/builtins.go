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
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ops is shorthand for a list of named ops.
func ops(names ...OpName) []Op {
	out := make([]Op, len(names))
	for i, n := range names {
		out[i] = Op{Name: n}
	}
	return out
}

// Sum returns the blueprint computing the per-group sum.
// Empty groups sum to 0.
func Sum() *Blueprint {
	return &Blueprint{
		Name:      "sum",
		Chunk:     ops(OpSum),
		Combine:   ops(OpSum),
		FillChunk: []float64{0},
		FillFinal: 0,
		Dtypes:    []Dtype{Float64},
		Final:     Float64,
	}
}

// Prod returns the blueprint computing the per-group
// product. Empty groups produce 1.
func Prod() *Blueprint {
	return &Blueprint{
		Name:      "prod",
		Chunk:     ops(OpProd),
		Combine:   ops(OpProd),
		FillChunk: []float64{1},
		FillFinal: 1,
		Dtypes:    []Dtype{Float64},
		Final:     Float64,
	}
}

// Count returns the blueprint counting per-group members.
// Counts combine by summation.
func Count() *Blueprint {
	return &Blueprint{
		Name:      "count",
		Chunk:     ops(OpCount),
		Combine:   ops(OpSum),
		FillChunk: []float64{0},
		FillFinal: 0,
		Dtypes:    []Dtype{Int64},
		Final:     Int64,
	}
}

// Mean returns the blueprint computing the per-group mean
// from (sum, count) intermediates.
func Mean() *Blueprint {
	return &Blueprint{
		Name:    "mean",
		Chunk:   ops(OpSum, OpCount),
		Combine: ops(OpSum, OpSum),
		Finalize: func(s []float64, fill float64) float64 {
			if s[1] == 0 {
				return fill
			}
			return s[0] / s[1]
		},
		FillChunk: []float64{0, 0},
		FillFinal: math.NaN(),
		Dtypes:    []Dtype{Float64, Int64},
		Final:     Float64,
	}
}

// varCore computes the variance from (sum, sumsq, count)
// slots, or NaN when fewer than ddof+1 members remain.
func varCore(s []float64, ddof int) float64 {
	n := s[2]
	d := n - float64(ddof)
	if d <= 0 {
		return math.NaN()
	}
	m := s[1] - s[0]*s[0]/n
	if m < 0 {
		m = 0
	}
	return m / d
}

func varName(op string, ddof int) string {
	if ddof == 0 {
		return op
	}
	return op + ":" + strconv.Itoa(ddof)
}

// Var returns the blueprint computing the per-group
// variance with the given delta degrees of freedom,
// decomposed into (sum, sumsq, count) intermediates.
func Var(ddof int) *Blueprint {
	return &Blueprint{
		Name:    varName("var", ddof),
		Chunk:   ops(OpSum, OpSumSq, OpCount),
		Combine: ops(OpSum, OpSum, OpSum),
		Finalize: func(s []float64, fill float64) float64 {
			if s[2] == 0 {
				return fill
			}
			return varCore(s, ddof)
		},
		FillChunk: []float64{0, 0, 0},
		FillFinal: math.NaN(),
		Dtypes:    []Dtype{Float64, Float64, Int64},
		Final:     Float64,
		DDOF:      ddof,
	}
}

// Std returns the blueprint computing the per-group
// standard deviation; see Var.
func Std(ddof int) *Blueprint {
	b := Var(ddof)
	b.Name = varName("std", ddof)
	b.Finalize = func(s []float64, fill float64) float64 {
		if s[2] == 0 {
			return fill
		}
		return math.Sqrt(varCore(s, ddof))
	}
	return b
}

// Min returns the blueprint computing the per-group minimum.
func Min() *Blueprint {
	return &Blueprint{
		Name:      "min",
		Chunk:     ops(OpMin),
		Combine:   ops(OpMin),
		FillChunk: []float64{math.Inf(1)},
		FillFinal: math.NaN(),
		Dtypes:    []Dtype{Float64},
		Final:     Float64,
	}
}

// Max returns the blueprint computing the per-group maximum.
func Max() *Blueprint {
	return &Blueprint{
		Name:      "max",
		Chunk:     ops(OpMax),
		Combine:   ops(OpMax),
		FillChunk: []float64{math.Inf(-1)},
		FillFinal: math.NaN(),
		Dtypes:    []Dtype{Float64},
		Final:     Float64,
	}
}

// ArgMin returns the blueprint computing the flat index of
// the per-group minimum. Ties resolve to the lowest index
// regardless of combine order; empty groups produce -1.
func ArgMin() *Blueprint {
	return &Blueprint{
		Name:      "argmin",
		Chunk:     ops(OpMin, OpArgMin),
		Combine:   ops(OpArgMin, OpIndexed),
		Finalize:  func(s []float64, _ float64) float64 { return s[1] },
		FillChunk: []float64{math.Inf(1), -1},
		FillFinal: -1,
		Dtypes:    []Dtype{Float64, Int64},
		Final:     Int64,
	}
}

// ArgMax returns the blueprint computing the flat index of
// the per-group maximum; see ArgMin.
func ArgMax() *Blueprint {
	return &Blueprint{
		Name:      "argmax",
		Chunk:     ops(OpMax, OpArgMax),
		Combine:   ops(OpArgMax, OpIndexed),
		Finalize:  func(s []float64, _ float64) float64 { return s[1] },
		FillChunk: []float64{math.Inf(-1), -1},
		FillFinal: -1,
		Dtypes:    []Dtype{Float64, Int64},
		Final:     Int64,
	}
}

// First returns the blueprint selecting each group's
// member with the lowest flat index.
func First() *Blueprint {
	return &Blueprint{
		Name:      "first",
		Chunk:     ops(OpFirst, OpMinIdx),
		Combine:   ops(OpFirst, OpIndexed),
		Finalize:  func(s []float64, _ float64) float64 { return s[0] },
		FillChunk: []float64{math.NaN(), math.Inf(1)},
		FillFinal: math.NaN(),
		Dtypes:    []Dtype{Float64, Int64},
		Final:     Float64,
	}
}

// Last returns the blueprint selecting each group's
// member with the highest flat index.
func Last() *Blueprint {
	return &Blueprint{
		Name:      "last",
		Chunk:     ops(OpLast, OpMaxIdx),
		Combine:   ops(OpLast, OpIndexed),
		Finalize:  func(s []float64, _ float64) float64 { return s[0] },
		FillChunk: []float64{math.NaN(), -1},
		FillFinal: math.NaN(),
		Dtypes:    []Dtype{Float64, Int64},
		Final:     Float64,
	}
}

// Any returns the blueprint testing whether any group
// member is non-zero. Empty groups produce false.
func Any() *Blueprint {
	return &Blueprint{
		Name:      "any",
		Chunk:     ops(OpAny),
		Combine:   ops(OpMax),
		FillChunk: []float64{0},
		FillFinal: 0,
		Dtypes:    []Dtype{Bool},
		Final:     Bool,
	}
}

// All returns the blueprint testing whether every group
// member is non-zero. Empty groups produce true.
func All() *Blueprint {
	return &Blueprint{
		Name:      "all",
		Chunk:     ops(OpAll),
		Combine:   ops(OpMin),
		FillChunk: []float64{1},
		FillFinal: 1,
		Dtypes:    []Dtype{Bool},
		Final:     Bool,
	}
}

// Mode returns the blueprint computing the most frequent
// member per group, lowest value on ties. Mode partials
// cannot merge, so the blueprint only runs blockwise.
func Mode() *Blueprint {
	return &Blueprint{
		Name:      "mode",
		Chunk:     ops(OpMode),
		FillChunk: []float64{math.NaN()},
		FillFinal: math.NaN(),
		Dtypes:    []Dtype{Float64},
		Final:     Float64,
	}
}

// Quantile returns the blueprint computing the q-quantile
// per group by linear interpolation. Quantile partials
// cannot merge, so the blueprint only runs blockwise.
func Quantile(q float64) *Blueprint {
	return &Blueprint{
		Name:      "quantile:" + strconv.FormatFloat(q, 'g', -1, 64),
		Chunk:     []Op{{Name: OpQuantile, Param: q}},
		FillChunk: []float64{math.NaN()},
		FillFinal: math.NaN(),
		Dtypes:    []Dtype{Float64},
		Final:     Float64,
		Q:         q,
	}
}

// Median returns the 0.5-quantile blueprint.
func Median() *Blueprint {
	b := Quantile(0.5)
	b.Name = "median"
	return b
}

// Parse returns the built-in blueprint described by spec:
// a name, optionally followed by ":" and a parameter, e.g.
// "sum", "var:1", "quantile:0.9".
func Parse(spec string) (*Blueprint, error) {
	name, param, hasParam := strings.Cut(spec, ":")
	var b *Blueprint
	switch name {
	case "sum":
		b = Sum()
	case "prod":
		b = Prod()
	case "count":
		b = Count()
	case "mean":
		b = Mean()
	case "min":
		b = Min()
	case "max":
		b = Max()
	case "argmin":
		b = ArgMin()
	case "argmax":
		b = ArgMax()
	case "first":
		b = First()
	case "last":
		b = Last()
	case "any":
		b = Any()
	case "all":
		b = All()
	case "mode":
		b = Mode()
	case "median":
		b = Median()
	case "var", "std":
		ddof := 0
		if hasParam {
			d, err := strconv.Atoi(param)
			if err != nil {
				return nil, fmt.Errorf("agg: bad ddof %q: %w", param, err)
			}
			ddof = d
		}
		if name == "var" {
			b = Var(ddof)
		} else {
			b = Std(ddof)
		}
		hasParam = false
	case "quantile":
		if !hasParam {
			return nil, fmt.Errorf("agg: quantile needs a fraction, e.g. quantile:0.9")
		}
		q, err := strconv.ParseFloat(param, 64)
		if err != nil {
			return nil, fmt.Errorf("agg: bad quantile fraction %q: %w", param, err)
		}
		b = Quantile(q)
		hasParam = false
	default:
		return nil, fmt.Errorf("agg: unknown aggregation %q", name)
	}
	if hasParam {
		return nil, fmt.Errorf("agg: %s takes no parameter", name)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
