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

// Package agg describes aggregations as declarative
// blueprints: per-chunk ops, combine ops for merging
// partial results, a finalize step, fill values, and
// dtypes. Blueprints carry no execution logic; the
// executor and the kernel library interpret them.
package agg

import (
	"fmt"
	"strconv"
)

// Dtype identifies the logical element type of an
// aggregation slot or result. All kernels compute in
// float64; Dtype records how callers should interpret
// the numbers.
type Dtype uint8

const (
	Float64 Dtype = iota
	Int64
	Bool
)

var dtypeNames = [...]string{
	Float64: "float64",
	Int64:   "int64",
	Bool:    "bool",
}

func (d Dtype) String() string {
	if int(d) < len(dtypeNames) {
		return dtypeNames[d]
	}
	return "dtype(" + strconv.Itoa(int(d)) + ")"
}

// ParseDtype parses the string form produced by
// Dtype.String.
func ParseDtype(s string) (Dtype, error) {
	for i, name := range dtypeNames {
		if s == name {
			return Dtype(i), nil
		}
	}
	return 0, fmt.Errorf("agg: bad dtype %q", s)
}

// Func is the signature of a custom reduction kernel:
// it folds values into one slot per group, writing fill
// for groups with no members, and interprets the result
// as dtype. Elements with negative codes are skipped.
type Func func(codes []int32, values []float64, ngroups int, fill float64, dtype Dtype) ([]float64, error)

// OpName enumerates the primitive grouped reduction ops
// a blueprint may reference by name.
type OpName uint8

const (
	OpInvalid OpName = iota
	OpSum            // sum of members
	OpProd           // product of members
	OpCount          // member count
	OpMin            // minimum member
	OpMax            // maximum member
	OpArgMin         // index of minimum member
	OpArgMax         // index of maximum member
	OpFirst          // member at lowest index
	OpLast           // member at highest index
	OpMinIdx         // lowest member index
	OpMaxIdx         // highest member index
	OpAny            // 1 if any member is non-zero
	OpAll            // 1 if every member is non-zero
	OpSumSq          // sum of squared members
	OpMode           // most frequent member
	OpQuantile       // quantile of members (Param holds q)
	OpIndexed        // combine-only: slot written by the pair op before it
	OpCustom         // custom Func
)

var opNames = [...]string{
	OpInvalid:  "invalid",
	OpSum:      "sum",
	OpProd:     "prod",
	OpCount:    "count",
	OpMin:      "min",
	OpMax:      "max",
	OpArgMin:   "argmin",
	OpArgMax:   "argmax",
	OpFirst:    "first",
	OpLast:     "last",
	OpMinIdx:   "minidx",
	OpMaxIdx:   "maxidx",
	OpAny:      "any",
	OpAll:      "all",
	OpSumSq:    "sumsq",
	OpMode:     "mode",
	OpQuantile: "quantile",
	OpIndexed:  "indexed",
	OpCustom:   "custom",
}

func (o OpName) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// Op is one slot's reduction op: a named built-in,
// possibly parameterized, or a custom function.
type Op struct {
	Name  OpName
	Param float64 // quantile fraction for OpQuantile
	Fn    Func    // set only when Name is OpCustom
}

// Custom returns the Op dispatching to fn.
func Custom(fn Func) Op { return Op{Name: OpCustom, Fn: fn} }

func (o Op) String() string {
	if o.Name == OpQuantile {
		return "quantile:" + strconv.FormatFloat(o.Param, 'g', -1, 64)
	}
	return o.Name.String()
}
