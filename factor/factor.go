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

// Package factor turns raw group-by key values into dense
// integer group codes.
//
// Every factorization produces one code per input element.
// Codes are 0-based and dense in [0, Groups); the value
// Sentinel marks elements that belong to no group and are
// excluded from every reduction.
package factor

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// Sentinel is the code assigned to elements that belong
// to no group (missing keys, out-of-range values, NaN).
const Sentinel int32 = -1

// Factorized is the result of factorizing one or more keys.
type Factorized struct {
	// Codes holds one group code per input element,
	// each either Sentinel or in [0, Groups).
	Codes []int32
	// Groups is the total number of group slots in the
	// output, including groups that appear in no element.
	Groups int
	// Sorted reports whether the codes are monotonic with
	// respect to the natural ordering of the key values.
	Sorted bool
	// Dropped counts the elements assigned Sentinel.
	Dropped int
}

// Mask returns a per-element mask that is true where the
// element was assigned Sentinel.
func (f *Factorized) Mask() []bool {
	out := make([]bool, len(f.Codes))
	for i, c := range f.Codes {
		out[i] = c == Sentinel
	}
	return out
}

// Validate checks that every code is either Sentinel
// or in [0, Groups).
func (f *Factorized) Validate() error {
	for i, c := range f.Codes {
		if c < Sentinel || int(c) >= f.Groups {
			return fmt.Errorf("factor: code %d at position %d out of range [0, %d)", c, i, f.Groups)
		}
	}
	return nil
}

type options struct {
	sortGroups bool
	nanError   bool
}

// Option configures Labels.
type Option func(*options)

// WithSortedGroups assigns codes in the sorted order of the
// distinct key values rather than in first-seen order.
func WithSortedGroups() Option {
	return func(o *options) { o.sortGroups = true }
}

// WithNaNError makes Labels fail on a NaN key instead of
// assigning it Sentinel.
func WithNaNError() Option {
	return func(o *options) { o.nanError = true }
}

// isNaN reports whether v is a floating-point NaN;
// only NaN compares unequal to itself.
func isNaN[T constraints.Ordered](v T) bool { return v != v }

// Labels factorizes values by their distinct key values.
// Codes are assigned in first-seen order, or in sorted
// order under WithSortedGroups. NaN keys are assigned
// Sentinel unless WithNaNError is set.
//
// The second return value holds the distinct key values
// in code order, so groups[f.Codes[i]] == values[i] for
// every non-sentinel element.
func Labels[T constraints.Ordered](values []T, opts ...Option) (*Factorized, []T, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	codes := make([]int32, len(values))
	index := make(map[T]int32, 16)
	var groups []T
	dropped := 0
	for i, v := range values {
		if isNaN(v) {
			if o.nanError {
				return nil, nil, fmt.Errorf("factor: NaN key at position %d", i)
			}
			codes[i] = Sentinel
			dropped++
			continue
		}
		id, ok := index[v]
		if !ok {
			if len(groups) >= math.MaxInt32 {
				return nil, nil, fmt.Errorf("factor: too many groups")
			}
			id = int32(len(groups))
			index[v] = id
			groups = append(groups, v)
		}
		codes[i] = id
	}
	if o.sortGroups && !slices.IsSorted(groups) {
		// remap codes so that group ids follow value order
		order := make([]int32, len(groups))
		for i := range order {
			order[i] = int32(i)
		}
		slices.SortFunc(order, func(a, b int32) int {
			x, y := groups[a], groups[b]
			if x < y {
				return -1
			} else if x > y {
				return 1
			}
			return 0
		})
		perm := make([]int32, len(groups))
		sorted := make([]T, len(groups))
		for newid, oldid := range order {
			perm[oldid] = int32(newid)
			sorted[newid] = groups[oldid]
		}
		for i, c := range codes {
			if c != Sentinel {
				codes[i] = perm[c]
			}
		}
		groups = sorted
	}
	return &Factorized{
		Codes:   codes,
		Groups:  len(groups),
		Sorted:  slices.IsSorted(groups),
		Dropped: dropped,
	}, groups, nil
}

// Expected factorizes values against an explicit group
// enumeration: each element's code is the position of its
// key in expected, and keys not present in expected are
// assigned Sentinel. The output always has len(expected)
// group slots, so repeated calls over different data
// produce stably-shaped results.
func Expected[T constraints.Ordered](values []T, expected []T) (*Factorized, error) {
	index := make(map[T]int32, len(expected))
	for i, v := range expected {
		if isNaN(v) {
			return nil, fmt.Errorf("factor: NaN in expected groups at position %d", i)
		}
		if _, ok := index[v]; ok {
			return nil, fmt.Errorf("factor: duplicate expected group %v", v)
		}
		index[v] = int32(i)
	}
	codes := make([]int32, len(values))
	dropped := 0
	for i, v := range values {
		id, ok := index[v]
		if !ok {
			id = Sentinel
			dropped++
		}
		codes[i] = id
	}
	return &Factorized{
		Codes:   codes,
		Groups:  len(expected),
		Sorted:  slices.IsSorted(expected),
		Dropped: dropped,
	}, nil
}
