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

package ints

// Interval is a half-open interval [Start, End)
// of element positions.
type Interval struct {
	Start, End int
}

// Empty returns true if the interval
// contains no elements.
func (i Interval) Empty() bool { return i.Start >= i.End }

// Len returns the number of elements
// in the interval.
func (i Interval) Len() int {
	if i.Empty() {
		return 0
	}
	return i.End - i.Start
}

// Contains returns true if x lies
// within the interval.
func (i Interval) Contains(x int) bool {
	return x >= i.Start && x < i.End
}

// Intervals is an ordered list of disjoint intervals.
type Intervals []Interval

// Len returns the total number of elements
// covered by the intervals.
func (in Intervals) Len() int {
	n := 0
	for _, iv := range in {
		n += iv.Len()
	}
	return n
}

// Push appends the interval [start, end) to in,
// merging it into the final interval when the two
// are adjacent or overlapping.
func (in *Intervals) Push(start, end int) {
	if start >= end {
		return
	}
	if n := len(*in); n > 0 && (*in)[n-1].End >= start {
		if end > (*in)[n-1].End {
			(*in)[n-1].End = end
		}
		return
	}
	*in = append(*in, Interval{Start: start, End: end})
}

// Each calls fn for each non-empty interval in order.
func (in Intervals) Each(fn func(iv Interval)) {
	for _, iv := range in {
		if !iv.Empty() {
			fn(iv)
		}
	}
}
