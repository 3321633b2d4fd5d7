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

package factor

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrBadEdges indicates bin edges that are too few,
// non-finite, or not strictly increasing.
var ErrBadEdges = errors.New("factor: bad bin edges")

// Bins factorizes values by interval membership: n+1 edges
// define n bins, and each element's code is the bin holding
// its value. With right set, bin i is the right-closed
// interval (edges[i], edges[i+1]]; otherwise it is the
// left-closed interval [edges[i], edges[i+1]).
// NaN and out-of-range values are assigned Sentinel.
func Bins(values []float64, edges []float64, right bool) (*Factorized, error) {
	if len(edges) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 edges, got %d", ErrBadEdges, len(edges))
	}
	for i, e := range edges {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return nil, fmt.Errorf("%w: edge %d is %v", ErrBadEdges, i, e)
		}
		if i > 0 && edges[i-1] >= e {
			return nil, fmt.Errorf("%w: edges not strictly increasing at %d", ErrBadEdges, i)
		}
	}
	nbins := len(edges) - 1
	codes := make([]int32, len(values))
	dropped := 0
	for i, v := range values {
		if math.IsNaN(v) {
			codes[i] = Sentinel
			dropped++
			continue
		}
		idx := sort.SearchFloat64s(edges, v)
		code := idx - 1
		if !right && idx < len(edges) && edges[idx] == v {
			// v is a left endpoint, so it opens bin idx
			code = idx
		}
		if code < 0 || code >= nbins {
			codes[i] = Sentinel
			dropped++
			continue
		}
		codes[i] = int32(code)
	}
	return &Factorized{
		Codes:   codes,
		Groups:  nbins,
		Sorted:  true,
		Dropped: dropped,
	}, nil
}

// Ints factorizes pre-existing integer labels in [lo, hi]:
// each element's code is its offset from lo, and values
// outside the range are assigned Sentinel. The output has
// hi-lo+1 group slots.
func Ints(values []int64, lo, hi int64) (*Factorized, error) {
	if hi < lo {
		return nil, fmt.Errorf("factor: bad label range [%d, %d]", lo, hi)
	}
	if span := uint64(hi-lo) + 1; span > math.MaxInt32 {
		return nil, fmt.Errorf("factor: label range [%d, %d] too wide", lo, hi)
	}
	codes := make([]int32, len(values))
	dropped := 0
	for i, v := range values {
		if v < lo || v > hi {
			codes[i] = Sentinel
			dropped++
			continue
		}
		codes[i] = int32(v - lo)
	}
	return &Factorized{
		Codes:   codes,
		Groups:  int(hi-lo) + 1,
		Sorted:  true,
		Dropped: dropped,
	}, nil
}
