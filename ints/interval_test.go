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

import (
	"testing"

	"golang.org/x/exp/slices"
)

func TestIntervalsPush(t *testing.T) {
	cases := []struct {
		name string
		push [][2]int
		want Intervals
	}{
		{
			name: "disjoint",
			push: [][2]int{{0, 2}, {5, 7}},
			want: Intervals{{0, 2}, {5, 7}},
		},
		{
			name: "adjacent-merge",
			push: [][2]int{{0, 2}, {2, 4}, {4, 9}},
			want: Intervals{{0, 9}},
		},
		{
			name: "overlap-merge",
			push: [][2]int{{0, 5}, {3, 8}},
			want: Intervals{{0, 8}},
		},
		{
			name: "contained",
			push: [][2]int{{0, 10}, {3, 5}},
			want: Intervals{{0, 10}},
		},
		{
			name: "empty-ignored",
			push: [][2]int{{3, 3}, {5, 4}, {1, 2}},
			want: Intervals{{1, 2}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var in Intervals
			for _, p := range tc.push {
				in.Push(p[0], p[1])
			}
			if !slices.Equal(in, tc.want) {
				t.Errorf("got %v, want %v", in, tc.want)
			}
		})
	}
}

func TestIntervalsLen(t *testing.T) {
	in := Intervals{{0, 3}, {10, 10}, {20, 25}}
	if got := in.Len(); got != 8 {
		t.Errorf("Len = %d, want 8", got)
	}
	seen := 0
	in.Each(func(iv Interval) {
		if iv.Empty() {
			t.Error("Each yielded empty interval")
		}
		seen += iv.Len()
	})
	if seen != 8 {
		t.Errorf("Each covered %d elements, want 8", seen)
	}
	if !in[0].Contains(2) || in[0].Contains(3) {
		t.Error("Contains boundary wrong")
	}
}
