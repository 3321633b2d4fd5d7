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
	"io"
)

// Graphviz dumps the graph 'g' to 'dst' as
// dot(1)-compatible text, one cluster per stage.
func Graphviz(g *Graph, dst io.Writer) error {
	_, err := fmt.Fprintf(dst, "digraph %q {\nrankdir=BT;\n", g.ID.String())
	if err != nil {
		return err
	}
	for si, stage := range g.Stages {
		_, err = fmt.Fprintf(dst, "subgraph cluster_%d {\n", si)
		if err != nil {
			return err
		}
		for _, id := range stage {
			_, err = fmt.Fprintf(dst, "n%d [label=%q];\n", id, taskLabel(&g.Tasks[id]))
			if err != nil {
				return err
			}
		}
		_, err = fmt.Fprintf(dst, "label=\"stage %d\";\ncolor=lightgrey;\n}\n", si)
		if err != nil {
			return err
		}
	}
	for i := range g.Tasks {
		t := &g.Tasks[i]
		switch t.Kind {
		case TaskCombine:
			_, err = fmt.Fprintf(dst, "n%d -> n%d;\nn%d -> n%d;\n", t.Left, t.ID, t.Right, t.ID)
		case TaskFinalize:
			_, err = fmt.Fprintf(dst, "n%d -> n%d;\n", t.Input, t.ID)
		}
		if err != nil {
			return err
		}
	}
	_, err = io.WriteString(dst, "}\n")
	return err
}

func taskLabel(t *Task) string {
	who := "all groups"
	if t.Cohort >= 0 {
		who = fmt.Sprintf("cohort %d", t.Cohort)
	}
	switch t.Kind {
	case TaskReduce:
		return fmt.Sprintf("reduce chunk %d\n%s", t.Chunk, who)
	case TaskCombine:
		return fmt.Sprintf("combine\n%s", who)
	case TaskFinalize:
		return fmt.Sprintf("finalize\n%s", who)
	}
	return "?"
}
