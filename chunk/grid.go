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

package chunk

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SnellerInc/regroup/ints"
)

// Grid is a multi-axis chunking: one Layout per axis,
// with the chunk grid flattened row-major (last axis
// varies fastest) into single integer chunk numbers.
//
// Elements are likewise addressed by their row-major
// position in the flattened array, so a grid chunk
// covers a set of half-open element intervals.
type Grid struct {
	axes []Layout
}

// NewGrid returns the Grid with the given per-axis layouts.
func NewGrid(axes ...Layout) *Grid {
	return &Grid{axes: axes}
}

// Rank returns the number of axes.
func (g *Grid) Rank() int { return len(g.axes) }

// Shape returns the element extent of each axis.
func (g *Grid) Shape() []int {
	out := make([]int, len(g.axes))
	for i := range g.axes {
		out[i] = g.axes[i].Len()
	}
	return out
}

// Len returns the total number of elements covered
// by the grid (the product of the axis lengths).
func (g *Grid) Len() int {
	n := 1
	for i := range g.axes {
		n *= g.axes[i].Len()
	}
	return n
}

// NumChunks returns the total number of grid chunks
// (the product of the per-axis chunk counts).
func (g *Grid) NumChunks() int {
	n := 1
	for i := range g.axes {
		n *= g.axes[i].NumChunks()
	}
	return n
}

// Validate checks that the grid has at least one axis
// and that every axis layout is valid.
func (g *Grid) Validate() error {
	if len(g.axes) == 0 {
		return fmt.Errorf("chunk: grid has no axes")
	}
	for i := range g.axes {
		if err := g.axes[i].Validate(); err != nil {
			return fmt.Errorf("axis %d: %w", i, err)
		}
	}
	return nil
}

// coords unflattens a chunk number into
// per-axis chunk indices.
func (g *Grid) coords(c int) []int {
	co := make([]int, len(g.axes))
	for k := len(g.axes) - 1; k >= 0; k-- {
		n := g.axes[k].NumChunks()
		co[k] = c % n
		c /= n
	}
	return co
}

// ChunkLen returns the number of elements in grid chunk c.
func (g *Grid) ChunkLen(c int) int {
	n := 1
	for k, ci := range g.coords(c) {
		n *= g.axes[k].Size(ci)
	}
	return n
}

// Intervals returns the flat element intervals covered by
// grid chunk c, in ascending order. Runs that happen to be
// adjacent in the flattened array are merged.
func (g *Grid) Intervals(c int) ints.Intervals {
	co := g.coords(c)
	starts := make([]int, len(co))
	ends := make([]int, len(co))
	for k, ci := range co {
		starts[k], ends[k] = g.axes[k].Bounds(ci)
	}
	strides := make([]int, len(co))
	stride := 1
	for k := len(co) - 1; k >= 0; k-- {
		strides[k] = stride
		stride *= g.axes[k].Len()
	}
	last := len(co) - 1
	pos := append([]int(nil), starts...)
	var out ints.Intervals
	for {
		base := 0
		for k := 0; k < last; k++ {
			base += pos[k] * strides[k]
		}
		out.Push(base+starts[last], base+ends[last])
		k := last - 1
		for ; k >= 0; k-- {
			pos[k]++
			if pos[k] < ends[k] {
				break
			}
			pos[k] = starts[k]
		}
		if k < 0 {
			break
		}
	}
	return out
}

// AppendKey appends a canonical binary form of the grid
// shape to dst, for hashing alongside other plan inputs.
func (g *Grid) AppendKey(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, uint64(len(g.axes)))
	for i := range g.axes {
		sz := g.axes[i].sizes
		dst = binary.LittleEndian.AppendUint64(dst, uint64(len(sz)))
		for _, s := range sz {
			dst = binary.LittleEndian.AppendUint64(dst, uint64(s))
		}
	}
	return dst
}

// MarshalJSON encodes the grid as a list of
// per-axis chunk size lists.
func (g *Grid) MarshalJSON() ([]byte, error) {
	axes := make([][]int, len(g.axes))
	for i := range g.axes {
		axes[i] = g.axes[i].Sizes()
	}
	return json.Marshal(axes)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (g *Grid) UnmarshalJSON(b []byte) error {
	var axes [][]int
	if err := json.Unmarshal(b, &axes); err != nil {
		return err
	}
	g.axes = g.axes[:0]
	for _, sz := range axes {
		g.axes = append(g.axes, Of(sz...))
	}
	return nil
}

func (g *Grid) String() string {
	var sb strings.Builder
	for i := range g.axes {
		if i > 0 {
			sb.WriteByte('x')
		}
		sb.WriteString(g.axes[i].String())
	}
	return sb.String()
}
