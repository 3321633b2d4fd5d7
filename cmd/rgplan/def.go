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

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/SnellerInc/regroup/agg"
	"github.com/SnellerInc/regroup/chunk"
	"github.com/SnellerInc/regroup/factor"
	"github.com/SnellerInc/regroup/plan"
	"sigs.k8s.io/yaml"
)

// Definition describes one reduction to inspect. Either
// Keys (raw labels, factorized on load) or Codes+Groups
// (pre-factorized) supplies the grouping.
type Definition struct {
	// Name labels the definition in output.
	Name string `json:"name"`
	// Agg is an aggregation spec accepted by agg.Parse,
	// e.g. "mean", "var:1", "quantile:0.9".
	Agg string `json:"agg"`
	// Keys holds one raw group label per element.
	Keys []string `json:"keys,omitempty"`
	// Codes holds one dense group code per element;
	// Groups says how many code slots exist.
	Codes  []int32 `json:"codes,omitempty"`
	Groups int     `json:"groups,omitempty"`
	// Chunks holds per-axis chunk sizes.
	Chunks [][]int `json:"chunks"`
	// Method optionally pins a strategy.
	Method string `json:"method,omitempty"`
	// Threshold optionally enables cohort merging.
	Threshold float64 `json:"threshold,omitempty"`
}

// just pick an upper limit to prevent DoS
const maxDefSize = 1 << 24

// decodeDefinition decodes a definition from src, treating
// it as YAML when ext says so and JSON otherwise.
func decodeDefinition(src io.Reader, ext string) (*Definition, error) {
	d := new(Definition)
	switch ext {
	case ".yaml", ".yml":
		buf, err := io.ReadAll(io.LimitReader(src, maxDefSize))
		if err != nil {
			return nil, err
		}
		buf, err = yaml.YAMLToJSON(buf)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(buf, d); err != nil {
			return nil, err
		}
	default:
		if err := json.NewDecoder(io.LimitReader(src, maxDefSize)).Decode(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// compile turns the definition into the pieces a plan is
// made of.
func (d *Definition) compile() (*factor.Factorized, *chunk.Grid, *agg.Blueprint, plan.Strategy, error) {
	bp, err := agg.Parse(d.Agg)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	var codes *factor.Factorized
	switch {
	case len(d.Keys) > 0 && len(d.Codes) > 0:
		return nil, nil, nil, 0, fmt.Errorf("definition has both keys and codes")
	case len(d.Keys) > 0:
		codes, _, err = factor.Labels(d.Keys)
		if err != nil {
			return nil, nil, nil, 0, err
		}
	default:
		codes = &factor.Factorized{Codes: d.Codes, Groups: d.Groups}
		if err := codes.Validate(); err != nil {
			return nil, nil, nil, 0, err
		}
	}
	if len(d.Chunks) == 0 {
		return nil, nil, nil, 0, fmt.Errorf("definition has no chunks")
	}
	axes := make([]chunk.Layout, len(d.Chunks))
	for i, sizes := range d.Chunks {
		axes[i] = chunk.Of(sizes...)
	}
	grid := chunk.NewGrid(axes...)
	if err := grid.Validate(); err != nil {
		return nil, nil, nil, 0, err
	}
	if n := grid.Len(); n != len(codes.Codes) {
		return nil, nil, nil, 0, fmt.Errorf("chunks cover %d elements but %d codes given", n, len(codes.Codes))
	}
	method := plan.Auto
	if d.Method != "" {
		method, err = plan.ParseStrategy(d.Method)
		if err != nil {
			return nil, nil, nil, 0, err
		}
	}
	return codes, grid, bp, method, nil
}
