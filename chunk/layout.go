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

// Package chunk describes how arrays are split into
// independently-processable chunks.
//
// A Layout splits a single axis into contiguous chunks;
// a Grid combines one Layout per axis and flattens the
// resulting chunk grid row-major so that the rest of the
// code can address any chunk with a single integer.
package chunk

import (
	"fmt"
)

// Layout is the division of one axis into
// contiguous chunks of the given sizes.
type Layout struct {
	sizes   []int
	offsets []int
}

// Of returns the Layout with the given chunk sizes.
// The sizes are not validated here; see Validate.
func Of(sizes ...int) Layout {
	l := Layout{
		sizes:   append([]int(nil), sizes...),
		offsets: make([]int, len(sizes)+1),
	}
	for i, s := range sizes {
		l.offsets[i+1] = l.offsets[i] + s
	}
	return l
}

// Split returns the Layout that divides an axis of
// length n into chunks of the given size, with the
// final chunk holding the remainder.
// Split panics if size is not positive or n is negative.
func Split(n, size int) Layout {
	if size <= 0 || n < 0 {
		panic("chunk.Split: bad arguments")
	}
	sizes := make([]int, 0, (n+size-1)/size)
	for n > 0 {
		c := size
		if n < c {
			c = n
		}
		sizes = append(sizes, c)
		n -= c
	}
	return Of(sizes...)
}

// NumChunks returns the number of chunks along the axis.
func (l *Layout) NumChunks() int { return len(l.sizes) }

// Len returns the total axis length
// (the sum of the chunk sizes).
func (l *Layout) Len() int { return l.offsets[len(l.sizes)] }

// Size returns the size of chunk i.
func (l *Layout) Size(i int) int { return l.sizes[i] }

// Bounds returns the half-open element interval
// [start, end) covered by chunk i.
func (l *Layout) Bounds(i int) (start, end int) {
	return l.offsets[i], l.offsets[i+1]
}

// Sizes returns a copy of the chunk sizes.
func (l *Layout) Sizes() []int {
	return append([]int(nil), l.sizes...)
}

// Validate checks that every chunk size is positive.
func (l *Layout) Validate() error {
	for i, s := range l.sizes {
		if s <= 0 {
			return fmt.Errorf("chunk: bad size %d for chunk %d", s, i)
		}
	}
	return nil
}

func (l *Layout) String() string {
	return fmt.Sprintf("%v", l.sizes)
}
