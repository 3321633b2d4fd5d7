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
	"bytes"
	"encoding/json"
	"testing"

	"golang.org/x/exp/slices"

	"github.com/SnellerInc/regroup/ints"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		n, size int
		want    []int
	}{
		{n: 10, size: 3, want: []int{3, 3, 3, 1}},
		{n: 9, size: 3, want: []int{3, 3, 3}},
		{n: 2, size: 5, want: []int{2}},
		{n: 0, size: 4, want: []int{}},
	}
	for _, tc := range cases {
		l := Split(tc.n, tc.size)
		if got := l.Sizes(); !slices.Equal(got, tc.want) {
			t.Errorf("Split(%d, %d) = %v, want %v", tc.n, tc.size, got, tc.want)
		}
		if l.Len() != tc.n {
			t.Errorf("Split(%d, %d).Len() = %d", tc.n, tc.size, l.Len())
		}
	}
}

func TestLayoutBounds(t *testing.T) {
	l := Of(2, 3, 4)
	if l.NumChunks() != 3 || l.Len() != 9 {
		t.Fatalf("NumChunks=%d Len=%d", l.NumChunks(), l.Len())
	}
	wantBounds := [][2]int{{0, 2}, {2, 5}, {5, 9}}
	for i, w := range wantBounds {
		s, e := l.Bounds(i)
		if s != w[0] || e != w[1] {
			t.Errorf("Bounds(%d) = [%d, %d), want [%d, %d)", i, s, e, w[0], w[1])
		}
		if l.Size(i) != w[1]-w[0] {
			t.Errorf("Size(%d) = %d", i, l.Size(i))
		}
	}
	if err := l.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	bad := Of(2, 0, 3)
	if err := bad.Validate(); err == nil {
		t.Error("Validate accepted zero-size chunk")
	}
}

func TestGrid1D(t *testing.T) {
	g := NewGrid(Of(2, 3))
	if g.NumChunks() != 2 || g.Len() != 5 {
		t.Fatalf("NumChunks=%d Len=%d", g.NumChunks(), g.Len())
	}
	if got := g.Intervals(0); !slices.Equal(got, ints.Intervals{{Start: 0, End: 2}}) {
		t.Errorf("Intervals(0) = %v", got)
	}
	if got := g.Intervals(1); !slices.Equal(got, ints.Intervals{{Start: 2, End: 5}}) {
		t.Errorf("Intervals(1) = %v", got)
	}
}

func TestGrid2D(t *testing.T) {
	// 4x6 elements, 2x2 chunk grid
	g := NewGrid(Of(2, 2), Of(3, 3))
	if g.NumChunks() != 4 || g.Len() != 24 {
		t.Fatalf("NumChunks=%d Len=%d", g.NumChunks(), g.Len())
	}
	want := []ints.Intervals{
		{{Start: 0, End: 3}, {Start: 6, End: 9}},
		{{Start: 3, End: 6}, {Start: 9, End: 12}},
		{{Start: 12, End: 15}, {Start: 18, End: 21}},
		{{Start: 15, End: 18}, {Start: 21, End: 24}},
	}
	for c, w := range want {
		if got := g.Intervals(c); !slices.Equal(got, w) {
			t.Errorf("Intervals(%d) = %v, want %v", c, got, w)
		}
		if g.ChunkLen(c) != w.Len() {
			t.Errorf("ChunkLen(%d) = %d, want %d", c, g.ChunkLen(c), w.Len())
		}
	}
}

func TestGridMergesRuns(t *testing.T) {
	// full-width chunks: rows are adjacent in the flat array,
	// so each chunk collapses to one interval
	g := NewGrid(Of(2, 2), Of(6))
	if got := g.Intervals(0); !slices.Equal(got, ints.Intervals{{Start: 0, End: 12}}) {
		t.Errorf("Intervals(0) = %v", got)
	}
	if got := g.Intervals(1); !slices.Equal(got, ints.Intervals{{Start: 12, End: 24}}) {
		t.Errorf("Intervals(1) = %v", got)
	}
}

func TestGridCovers(t *testing.T) {
	grids := []*Grid{
		NewGrid(Of(2, 3)),
		NewGrid(Of(1, 1, 1)),
		NewGrid(Of(2, 2), Of(3, 3)),
		NewGrid(Of(3, 1), Of(2, 2, 1), Of(4)),
	}
	for _, g := range grids {
		seen := ints.MakeBitset(g.Len())
		total := 0
		for c := 0; c < g.NumChunks(); c++ {
			g.Intervals(c).Each(func(iv ints.Interval) {
				for i := iv.Start; i < iv.End; i++ {
					if seen.Test(i) {
						t.Fatalf("grid %s: element %d covered twice", g, i)
					}
					seen.Set(i)
				}
			})
			total += g.ChunkLen(c)
		}
		if seen.Count() != g.Len() || total != g.Len() {
			t.Errorf("grid %s: covered %d of %d elements", g, seen.Count(), g.Len())
		}
	}
}

func TestGridValidate(t *testing.T) {
	if err := NewGrid().Validate(); err == nil {
		t.Error("empty grid validated")
	}
	if err := NewGrid(Of(2, -1)).Validate(); err == nil {
		t.Error("negative chunk size validated")
	}
	if err := NewGrid(Of(2, 3), Of(4)).Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestGridJSON(t *testing.T) {
	g := NewGrid(Of(2, 3), Of(4))
	buf, err := json.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}
	var got Grid
	if err := json.Unmarshal(buf, &got); err != nil {
		t.Fatal(err)
	}
	if got.String() != g.String() || got.Len() != g.Len() {
		t.Errorf("roundtrip %s -> %s", g, &got)
	}
}

func TestGridAppendKey(t *testing.T) {
	a := NewGrid(Of(2, 3)).AppendKey(nil)
	b := NewGrid(Of(2), Of(3)).AppendKey(nil)
	c := NewGrid(Of(2, 3)).AppendKey(nil)
	if bytes.Equal(a, b) {
		t.Error("distinct grids share a key")
	}
	if !bytes.Equal(a, c) {
		t.Error("equal grids have distinct keys")
	}
}
