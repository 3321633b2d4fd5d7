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

// rgplan inspects reduction plans: which cohorts a
// grouping produces, which strategy the planner would
// pick, and the task graph that would run.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/SnellerInc/regroup/cohort"
	"github.com/SnellerInc/regroup/plan"
)

var (
	dashv bool
	dasho string
	dashc string
	dashm string
)

func init() {
	flag.BoolVar(&dashv, "v", false, "verbose")
	flag.StringVar(&dasho, "o", "-", "output file (or - for stdout)")
	flag.StringVar(&dashc, "c", "zstd", "snapshot codec (zstd, zstd-better, s2)")
	flag.StringVar(&dashm, "m", "", "override the definition's method")
}

func exitf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f, args...)
	os.Exit(1)
}

func load(defpath string) *Definition {
	f, err := os.Open(defpath)
	if err != nil {
		exitf("%s\n", err)
	}
	defer f.Close()
	d, err := decodeDefinition(f, filepath.Ext(defpath))
	if err != nil {
		exitf("%s: %s\n", defpath, err)
	}
	if d.Name == "" {
		d.Name = filepath.Base(defpath)
	}
	return d
}

// compiled is a definition resolved into a runnable plan.
type compiled struct {
	def      *Definition
	res      *cohort.Result
	strategy plan.Strategy
	graph    *plan.Graph
	in       plan.Input
}

func compile(d *Definition) *compiled {
	codes, grid, bp, method, err := d.compile()
	if err != nil {
		exitf("%s: %s\n", d.Name, err)
	}
	if dashm != "" {
		method, err = plan.ParseStrategy(dashm)
		if err != nil {
			exitf("%s\n", err)
		}
	}
	res, err := cohort.Plan(codes.Codes, codes.Groups, grid, cohort.Options{Threshold: d.Threshold})
	if err != nil {
		exitf("planning cohorts: %s\n", err)
	}
	strategy, err := plan.Select(method, res, bp)
	if err != nil {
		exitf("selecting strategy: %s\n", err)
	}
	g, err := plan.Build(strategy, res)
	if err != nil {
		exitf("building graph: %s\n", err)
	}
	return &compiled{
		def:      d,
		res:      res,
		strategy: strategy,
		graph:    g,
		in: plan.Input{
			Codes: codes.Codes,
			Grid:  grid,
			Agg:   bp,
			Plan:  res,
		},
	}
}

func output() io.WriteCloser {
	if dasho == "-" {
		return os.Stdout
	}
	f, err := os.Create(dasho)
	if err != nil {
		exitf("creating output: %s\n", err)
	}
	return f
}

// entry point for 'rgplan plan <def>'
func describe(c *compiled) {
	fmt.Printf("def: %s\n", c.def.Name)
	fmt.Printf("agg: %s\n", c.in.Agg.Name)
	fmt.Printf("elements: %d, groups: %d (%d non-empty), chunks: %d (%d non-empty)\n",
		c.in.Grid.Len(), c.res.Groups, c.res.NonEmptyGroups,
		c.res.NumChunks, c.res.NonEmptyChunks)
	fmt.Printf("cohorts: %d, avg chunks/cohort: %.2f, preferred: %s\n",
		len(c.res.Cohorts), c.res.AvgChunksPerCohort(), c.res.Preferred)
	fmt.Printf("strategy: %s\n", c.strategy)
	fmt.Printf("graph: %d tasks over %d stages (%d chunk reads)\n",
		len(c.graph.Tasks), c.graph.NumStages(), c.graph.NumReduces())
	if dashv {
		for si, stage := range c.graph.Stages {
			fmt.Printf("  stage %d: %d tasks\n", si, len(stage))
		}
	}
}

// entry point for 'rgplan cohorts <def>'
func cohorts(c *compiled) {
	for i := range c.res.Cohorts {
		co := &c.res.Cohorts[i]
		note := ""
		if co.Global {
			note = " (global)"
		}
		fmt.Printf("cohort %d: groups %v chunks %v%s\n",
			i, co.Groups, co.Chunks.Members(), note)
	}
}

// entry point for 'rgplan dot <def>'
func dot(c *compiled) {
	out := output()
	defer out.Close()
	if err := plan.Graphviz(c.graph, out); err != nil {
		exitf("writing dot: %s\n", err)
	}
}

// entry point for 'rgplan snapshot <def>'
func snapshot(c *compiled) {
	snap, err := plan.NewSnapshot(c.graph, c.in, c.def.Threshold)
	if err != nil {
		exitf("%s\n", err)
	}
	out := output()
	defer out.Close()
	if err := snap.Encode(out, dashc); err != nil {
		exitf("encoding snapshot: %s\n", err)
	}
}

// entry point for 'rgplan show <snapshot>'
func show(path string) {
	f, err := os.Open(path)
	if err != nil {
		exitf("%s\n", err)
	}
	defer f.Close()
	snap, err := plan.DecodeSnapshot(f)
	if err != nil {
		exitf("decoding %s: %s\n", path, err)
	}
	fmt.Printf("graph: %s\n", snap.GraphID)
	fmt.Printf("strategy: %s\n", snap.Strategy)
	fmt.Printf("agg: %s\n", snap.Agg)
	fmt.Printf("grid: %s (%d elements)\n", snap.Grid, snap.Grid.Len())
	fmt.Printf("groups: %d\n", snap.Groups)
	if snap.Threshold != 0 {
		fmt.Printf("threshold: %g\n", snap.Threshold)
	}
	fmt.Printf("tasks: %d over %d stages\n", snap.Tasks, snap.Stages)
	g, _, err := snap.Rebuild()
	if err != nil {
		exitf("rebuilding: %s\n", err)
	}
	if dashv {
		for si, stage := range g.Stages {
			fmt.Printf("  stage %d: %d tasks\n", si, len(stage))
		}
	}
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "usage:\n")
		fmt.Fprintf(os.Stderr, "    %s plan <def.json|def.yaml>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        show the plan for a reduction def\n")
		fmt.Fprintf(os.Stderr, "    %s cohorts <def>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        list the cohorts for a def\n")
		fmt.Fprintf(os.Stderr, "    %s [-o <output>] dot <def>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        dump the task graph as dot(1) text\n")
		fmt.Fprintf(os.Stderr, "    %s [-o <output>] [-c <codec>] snapshot <def>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        encode the plan as a snapshot\n")
		fmt.Fprintf(os.Stderr, "    %s show <snapshot>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        decode a snapshot and verify it rebuilds\n")
		fmt.Fprintf(os.Stderr, "flag usage:\n")
		flag.Usage()
		os.Exit(1)
	}
	switch args[0] {
	case "plan":
		if len(args) != 2 {
			exitf("usage: plan <def>\n")
		}
		describe(compile(load(args[1])))
	case "cohorts":
		if len(args) != 2 {
			exitf("usage: cohorts <def>\n")
		}
		cohorts(compile(load(args[1])))
	case "dot":
		if len(args) != 2 {
			exitf("usage: dot <def>\n")
		}
		dot(compile(load(args[1])))
	case "snapshot":
		if len(args) != 2 {
			exitf("usage: snapshot <def>\n")
		}
		snapshot(compile(load(args[1])))
	case "show":
		if len(args) != 2 {
			exitf("usage: show <snapshot>\n")
		}
		show(args[1])
	default:
		exitf("commands: plan, cohorts, dot, snapshot, show\n")
	}
}
