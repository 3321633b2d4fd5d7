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
	"fmt"

	"github.com/SnellerInc/regroup/cohort"
	"github.com/SnellerInc/regroup/ints"
	"github.com/google/uuid"
)

// TaskKind discriminates the operations a Task performs.
type TaskKind uint8

const (
	// TaskReduce applies the chunk ops to one chunk of data.
	TaskReduce TaskKind = iota
	// TaskCombine merges two partials into a fresh partial.
	TaskCombine
	// TaskFinalize turns a partial into final values and
	// scatters them into the output.
	TaskFinalize
)

var taskKindNames = [...]string{
	TaskReduce:   "reduce",
	TaskCombine:  "combine",
	TaskFinalize: "finalize",
}

func (k TaskKind) String() string {
	if int(k) < len(taskKindNames) {
		return taskKindNames[k]
	}
	return "task(?)"
}

// A Task is one node of the reduction graph. Tasks in the
// same stage have no data dependencies on each other; a
// task only ever consumes partials produced in strictly
// earlier stages.
type Task struct {
	ID   int
	Kind TaskKind
	// Cohort is the index into the planner result that this
	// task reduces, or -1 for the map-reduce pseudo-cohort
	// spanning every group.
	Cohort int
	// Chunk is the chunk read by a reduce task.
	Chunk int
	// Left and Right are the input task IDs of a combine.
	Left, Right int
	// Input is the input task ID of a finalize.
	Input int
}

// A Graph is a leveled DAG of reduction tasks. Stages
// partition the task IDs; an engine must complete stage i
// before starting stage i+1.
type Graph struct {
	ID       uuid.UUID
	Strategy Strategy
	Tasks    []Task
	Stages   [][]int
}

func (g *Graph) add(t Task) int {
	t.ID = len(g.Tasks)
	g.Tasks = append(g.Tasks, t)
	return t.ID
}

func (g *Graph) stage(level, id int) {
	for len(g.Stages) <= level {
		g.Stages = append(g.Stages, nil)
	}
	g.Stages[level] = append(g.Stages[level], id)
}

// NumStages returns the number of barrier-separated stages.
func (g *Graph) NumStages() int { return len(g.Stages) }

// NumReduces returns the number of chunk-reading tasks.
func (g *Graph) NumReduces() int {
	n := 0
	for i := range g.Tasks {
		if g.Tasks[i].Kind == TaskReduce {
			n++
		}
	}
	return n
}

// Build lays out the task graph for a resolved strategy.
//
// Blockwise emits one reduce and one finalize per cohort.
// Cohorts emits, per cohort, a reduce per member chunk and
// a binary combine tree over them. MapReduce treats all
// groups as one pseudo-cohort spanning every non-empty
// chunk. Combine trees from different cohorts share stages,
// so the stage count is bounded by the deepest tree.
func Build(strategy Strategy, res *cohort.Result) (*Graph, error) {
	g := &Graph{ID: uuid.New(), Strategy: strategy}
	switch strategy {
	case Blockwise:
		for ci := range res.Cohorts {
			co := &res.Cohorts[ci]
			if co.Chunks.Count() != 1 {
				return nil, fmt.Errorf("plan: blockwise: cohort %d spans %d chunks: %w",
					ci, co.Chunks.Count(), ErrInfeasible)
			}
			g.subtree(ci, co.Chunks.Members())
		}
	case Cohorts:
		for ci := range res.Cohorts {
			g.subtree(ci, res.Cohorts[ci].Chunks.Members())
		}
	case MapReduce:
		var union ints.Bitset
		for ci := range res.Cohorts {
			cs := &res.Cohorts[ci].Chunks
			if cs.Cap() > union.Cap() {
				grown := ints.MakeBitset(cs.Cap())
				grown.Union(&union)
				union = grown
			}
			union.Union(cs)
		}
		if !union.Empty() {
			g.subtree(-1, union.Members())
		}
	default:
		return nil, fmt.Errorf("plan: cannot build graph for strategy %s", strategy)
	}
	return g, nil
}

// subtree emits the reduce tasks for chunks, a binary
// combine tree over them, and a trailing finalize. An odd
// node at any level passes through to the next level
// without a task of its own.
func (g *Graph) subtree(ci int, chunks []int) {
	nodes := make([]int, 0, len(chunks))
	for _, c := range chunks {
		id := g.add(Task{Kind: TaskReduce, Cohort: ci, Chunk: c, Left: -1, Right: -1, Input: -1})
		g.stage(0, id)
		nodes = append(nodes, id)
	}
	level := 1
	for len(nodes) > 1 {
		next := nodes[:0:0]
		for i := 0; i+1 < len(nodes); i += 2 {
			id := g.add(Task{Kind: TaskCombine, Cohort: ci, Chunk: -1, Left: nodes[i], Right: nodes[i+1], Input: -1})
			g.stage(level, id)
			next = append(next, id)
		}
		if len(nodes)%2 == 1 {
			next = append(next, nodes[len(nodes)-1])
		}
		nodes = next
		level++
	}
	id := g.add(Task{Kind: TaskFinalize, Cohort: ci, Chunk: -1, Left: -1, Right: -1, Input: nodes[0]})
	g.stage(level, id)
}
