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
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// An Engine schedules the tasks of a graph. Implementations
// must complete every task of a stage before starting the
// next stage and must not run any task more than once. The
// first task error aborts the run and is returned as-is.
type Engine interface {
	Execute(ctx context.Context, g *Graph, run func(ctx context.Context, t *Task) error) error
}

// Local runs graph tasks on goroutines in this process.
// The zero value runs one task per CPU.
type Local struct {
	// Parallel bounds the tasks in flight; <= 0 means
	// GOMAXPROCS.
	Parallel int
}

// Execute implements Engine.
func (l Local) Execute(ctx context.Context, g *Graph, run func(ctx context.Context, t *Task) error) error {
	par := l.Parallel
	if par <= 0 {
		par = runtime.GOMAXPROCS(0)
	}
	for _, stage := range g.Stages {
		eg, ectx := errgroup.WithContext(ctx)
		eg.SetLimit(par)
		for _, id := range stage {
			t := &g.Tasks[id]
			eg.Go(func() error {
				if err := ectx.Err(); err != nil {
					return err
				}
				return run(ectx, t)
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	return nil
}
