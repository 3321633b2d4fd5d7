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
	"math"
	"testing"

	"golang.org/x/exp/slices"
)

func TestLabelsFirstSeen(t *testing.T) {
	f, groups, err := Labels([]string{"b", "a", "b", "c", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(f.Codes, []int32{0, 1, 0, 2, 1}) {
		t.Errorf("Codes = %v", f.Codes)
	}
	if !slices.Equal(groups, []string{"b", "a", "c"}) {
		t.Errorf("groups = %v", groups)
	}
	if f.Groups != 3 || f.Sorted || f.Dropped != 0 {
		t.Errorf("Groups=%d Sorted=%v Dropped=%d", f.Groups, f.Sorted, f.Dropped)
	}
	if err := f.Validate(); err != nil {
		t.Error(err)
	}
}

func TestLabelsSortedGroups(t *testing.T) {
	f, groups, err := Labels([]string{"b", "a", "b", "c", "a"}, WithSortedGroups())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(f.Codes, []int32{1, 0, 1, 2, 0}) {
		t.Errorf("Codes = %v", f.Codes)
	}
	if !slices.Equal(groups, []string{"a", "b", "c"}) {
		t.Errorf("groups = %v", groups)
	}
	if !f.Sorted {
		t.Error("Sorted not set")
	}
}

func TestLabelsNaturallySorted(t *testing.T) {
	f, _, err := Labels([]int{1, 1, 2, 3, 3})
	if err != nil {
		t.Fatal(err)
	}
	if !f.Sorted {
		t.Error("monotone input should set Sorted")
	}
	if !slices.Equal(f.Codes, []int32{0, 0, 1, 2, 2}) {
		t.Errorf("Codes = %v", f.Codes)
	}
}

func TestLabelsNaN(t *testing.T) {
	nan := math.NaN()
	f, groups, err := Labels([]float64{1, nan, 2, nan, 1})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(f.Codes, []int32{0, Sentinel, 1, Sentinel, 0}) {
		t.Errorf("Codes = %v", f.Codes)
	}
	if f.Dropped != 2 || f.Groups != 2 || len(groups) != 2 {
		t.Errorf("Dropped=%d Groups=%d", f.Dropped, f.Groups)
	}
	if !slices.Equal(f.Mask(), []bool{false, true, false, true, false}) {
		t.Errorf("Mask = %v", f.Mask())
	}
	if _, _, err := Labels([]float64{1, nan}, WithNaNError()); err == nil {
		t.Error("WithNaNError accepted NaN")
	}
}

func TestExpected(t *testing.T) {
	f, err := Expected([]string{"b", "z", "a", "b"}, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(f.Codes, []int32{1, Sentinel, 0, 1}) {
		t.Errorf("Codes = %v", f.Codes)
	}
	if f.Groups != 3 || f.Dropped != 1 {
		t.Errorf("Groups=%d Dropped=%d", f.Groups, f.Dropped)
	}
	if !f.Sorted {
		t.Error("sorted enumeration should set Sorted")
	}
	f, err = Expected([]int{5, 7}, []int{7, 5})
	if err != nil {
		t.Fatal(err)
	}
	if f.Sorted {
		t.Error("unsorted enumeration should clear Sorted")
	}
	if _, err := Expected([]int{1}, []int{3, 4, 3}); err == nil {
		t.Error("duplicate enumeration accepted")
	}
	if _, err := Expected([]float64{1}, []float64{1, math.NaN()}); err == nil {
		t.Error("NaN enumeration accepted")
	}
}

func TestValidate(t *testing.T) {
	f := &Factorized{Codes: []int32{0, 1, Sentinel}, Groups: 2}
	if err := f.Validate(); err != nil {
		t.Error(err)
	}
	f.Codes[1] = 2
	if err := f.Validate(); err == nil {
		t.Error("out-of-range code validated")
	}
	f.Codes[1] = -2
	if err := f.Validate(); err == nil {
		t.Error("below-sentinel code validated")
	}
}
