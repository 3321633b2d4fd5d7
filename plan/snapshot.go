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

package plan

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/SnellerInc/regroup/agg"
	"github.com/SnellerInc/regroup/chunk"
	"github.com/SnellerInc/regroup/cohort"
	"github.com/SnellerInc/regroup/compr"
	"github.com/google/uuid"
)

// snapshot wire format:
//
//	magic "rgp1"
//	u32le header length, JSON header
//	u32le payload length, compressed payload
//
// The payload is the group codes as little-endian int32.
// Graphs rebuild deterministically from codes, grid, and
// threshold, so only the graph identity and shape travel
// in the header.
var snapMagic = [4]byte{'r', 'g', 'p', '1'}

const maxSnapSegment = 1 << 30

// A Snapshot captures a reduction plan in a form that can
// cross a process boundary: the inputs the graph was built
// from plus enough of its shape to verify the rebuild.
// Aggregations travel by name, so blueprints carrying
// custom functions cannot be snapshotted.
type Snapshot struct {
	GraphID   uuid.UUID
	Strategy  Strategy
	Agg       string
	Grid      *chunk.Grid
	Groups    int
	Threshold float64
	Tasks     int
	Stages    int
	Codes     []int32
}

type snapHeader struct {
	GraphID   string      `json:"graph_id"`
	Strategy  string      `json:"strategy"`
	Agg       string      `json:"agg"`
	Grid      *chunk.Grid `json:"grid"`
	Groups    int         `json:"groups"`
	Threshold float64     `json:"threshold,omitempty"`
	Tasks     int         `json:"tasks"`
	Stages    int         `json:"stages"`
	Codec     string      `json:"codec"`
	RawSize   int         `json:"raw_size"`
}

// NewSnapshot captures g and the inputs it was built from.
// threshold is the cohort merge threshold used to plan.
func NewSnapshot(g *Graph, in Input, threshold float64) (*Snapshot, error) {
	if g == nil || in.Agg == nil || in.Grid == nil || in.Plan == nil {
		return nil, fmt.Errorf("plan: snapshot needs a graph, grid, aggregation, and cohort plan")
	}
	if _, err := agg.Parse(in.Agg.Name); err != nil {
		return nil, fmt.Errorf("plan: %q does not rebuild from its name; custom aggregations cannot be snapshotted", in.Agg.Name)
	}
	return &Snapshot{
		GraphID:   g.ID,
		Strategy:  g.Strategy,
		Agg:       in.Agg.Name,
		Grid:      in.Grid,
		Groups:    in.Plan.Groups,
		Threshold: threshold,
		Tasks:     len(g.Tasks),
		Stages:    g.NumStages(),
		Codes:     in.Codes,
	}, nil
}

// Encode writes the snapshot to w, compressing the code
// payload with algo ("zstd", "zstd-better", or "s2"; ""
// means "zstd").
func (s *Snapshot) Encode(w io.Writer, algo string) error {
	if algo == "" {
		algo = "zstd"
	}
	comp := compr.Compression(algo)
	if comp == nil {
		return fmt.Errorf("plan: unknown snapshot codec %q", algo)
	}
	raw := make([]byte, 4*len(s.Codes))
	for i, c := range s.Codes {
		binary.LittleEndian.PutUint32(raw[4*i:], uint32(c))
	}
	hdr, err := json.Marshal(&snapHeader{
		GraphID:   s.GraphID.String(),
		Strategy:  s.Strategy.String(),
		Agg:       s.Agg,
		Grid:      s.Grid,
		Groups:    s.Groups,
		Threshold: s.Threshold,
		Tasks:     s.Tasks,
		Stages:    s.Stages,
		Codec:     comp.Name(),
		RawSize:   len(raw),
	})
	if err != nil {
		return err
	}
	payload := comp.Compress(raw, nil)
	if _, err := w.Write(snapMagic[:]); err != nil {
		return err
	}
	if err := writeSegment(w, hdr); err != nil {
		return err
	}
	return writeSegment(w, payload)
}

func writeSegment(w io.Writer, seg []byte) error {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(seg)))
	if _, err := w.Write(n[:]); err != nil {
		return err
	}
	_, err := w.Write(seg)
	return err
}

func readSegment(r io.Reader) ([]byte, error) {
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(n[:])
	if size > maxSnapSegment {
		return nil, fmt.Errorf("plan: snapshot segment of %d bytes too large", size)
	}
	seg := make([]byte, size)
	if _, err := io.ReadFull(r, seg); err != nil {
		return nil, err
	}
	return seg, nil
}

// DecodeSnapshot reads a snapshot written by Encode.
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if magic != snapMagic {
		return nil, fmt.Errorf("plan: bad snapshot magic %q", magic[:])
	}
	rawHdr, err := readSegment(r)
	if err != nil {
		return nil, err
	}
	var hdr snapHeader
	if err := json.Unmarshal(rawHdr, &hdr); err != nil {
		return nil, fmt.Errorf("plan: bad snapshot header: %w", err)
	}
	id, err := uuid.Parse(hdr.GraphID)
	if err != nil {
		return nil, fmt.Errorf("plan: bad snapshot graph id: %w", err)
	}
	strategy, err := ParseStrategy(hdr.Strategy)
	if err != nil {
		return nil, err
	}
	if hdr.Grid == nil {
		return nil, fmt.Errorf("plan: snapshot has no grid")
	}
	if err := hdr.Grid.Validate(); err != nil {
		return nil, err
	}
	if hdr.RawSize != 4*hdr.Grid.Len() {
		return nil, fmt.Errorf("plan: snapshot payload of %d bytes does not cover %d elements",
			hdr.RawSize, hdr.Grid.Len())
	}
	dec := compr.Decompression(hdr.Codec)
	if dec == nil {
		return nil, fmt.Errorf("plan: unknown snapshot codec %q", hdr.Codec)
	}
	payload, err := readSegment(r)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, hdr.RawSize)
	if err := dec.Decompress(payload, raw); err != nil {
		return nil, err
	}
	codes := make([]int32, len(raw)/4)
	for i := range codes {
		codes[i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return &Snapshot{
		GraphID:   id,
		Strategy:  strategy,
		Agg:       hdr.Agg,
		Grid:      hdr.Grid,
		Groups:    hdr.Groups,
		Threshold: hdr.Threshold,
		Tasks:     hdr.Tasks,
		Stages:    hdr.Stages,
		Codes:     codes,
	}, nil
}

// Rebuild replans the cohorts from the snapshot inputs and
// lays the graph out again, carrying over the original
// graph identity. The rebuilt graph must match the saved
// shape exactly, so a snapshot decoded against drifted
// planner behavior fails here instead of computing
// something silently different.
//
// The returned Input carries everything but Data; values
// do not travel in a snapshot and must be attached by the
// caller before execution.
func (s *Snapshot) Rebuild() (*Graph, Input, error) {
	bp, err := agg.Parse(s.Agg)
	if err != nil {
		return nil, Input{}, err
	}
	if s.Strategy == Auto {
		return nil, Input{}, fmt.Errorf("plan: snapshot strategy must be resolved, not %s", Auto)
	}
	threshold := s.Threshold
	if math.IsNaN(threshold) {
		return nil, Input{}, fmt.Errorf("plan: bad snapshot threshold")
	}
	res, err := cohort.Plan(s.Codes, s.Groups, s.Grid, cohort.Options{Threshold: threshold})
	if err != nil {
		return nil, Input{}, err
	}
	g, err := Build(s.Strategy, res)
	if err != nil {
		return nil, Input{}, err
	}
	g.ID = s.GraphID
	if len(g.Tasks) != s.Tasks || g.NumStages() != s.Stages {
		return nil, Input{}, fmt.Errorf("plan: rebuilt graph has %d tasks over %d stages; snapshot says %d over %d",
			len(g.Tasks), g.NumStages(), s.Tasks, s.Stages)
	}
	in := Input{
		Codes: s.Codes,
		Grid:  s.Grid,
		Agg:   bp,
		Plan:  res,
	}
	return g, in, nil
}
