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

// Package regroup computes groupwise reductions over
// chunked arrays without materializing an unchunked copy.
//
// Callers factorize their group keys into dense codes
// (package factor), describe how the flat data is cut into
// chunks (package chunk), and pick an aggregation (package
// agg). A Reducer then plans cohorts of groups with
// matching chunk footprints, selects a strategy, and runs
// the reduction plan.
package regroup

import (
	"context"
	"fmt"

	"github.com/SnellerInc/regroup/agg"
	"github.com/SnellerInc/regroup/chunk"
	"github.com/SnellerInc/regroup/cohort"
	"github.com/SnellerInc/regroup/factor"
	"github.com/SnellerInc/regroup/plan"
	"go.uber.org/zap"
)

// DefaultCacheSize is the number of cohort plans a Reducer
// keeps by default.
const DefaultCacheSize = 128

// A Reducer runs grouped reductions. The zero value is not
// usable; use New. Reducers are safe for concurrent use.
type Reducer struct {
	log       *zap.Logger
	engine    plan.Engine
	parallel  int
	cache     *cohort.Cache
	threshold float64
}

// Option configures a Reducer.
type Option func(*Reducer)

// WithLogger sets the logger. The default discards
// everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reducer) { r.log = l }
}

// WithEngine sets the execution engine. The default is
// plan.Local; setting an engine makes WithParallel
// irrelevant.
func WithEngine(e plan.Engine) Option {
	return func(r *Reducer) { r.engine = e }
}

// WithParallel bounds the tasks the default local engine
// runs at once; <= 0 means one per CPU.
func WithParallel(n int) Option {
	return func(r *Reducer) { r.parallel = n }
}

// WithCacheSize sets how many cohort plans to cache;
// 0 disables caching.
func WithCacheSize(n int) Option {
	return func(r *Reducer) { r.cache = cohort.NewCache(n) }
}

// WithThreshold sets the default cohort merge threshold
// for queries that do not carry their own. See
// cohort.Options.
func WithThreshold(threshold float64) Option {
	return func(r *Reducer) { r.threshold = threshold }
}

// New returns a Reducer with the given options applied.
func New(opts ...Option) *Reducer {
	r := &Reducer{
		log:   zap.NewNop(),
		cache: cohort.NewCache(DefaultCacheSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.engine == nil {
		r.engine = plan.Local{Parallel: r.parallel}
	}
	return r
}

// A Query is one grouped reduction over one array.
type Query struct {
	// Data holds the values, flattened in chunk order.
	Data []float64
	// Codes is the factorized group key; its length must
	// equal len(Data).
	Codes *factor.Factorized
	// Chunks lays out how Data is partitioned.
	Chunks *chunk.Grid
	// Agg is the aggregation to compute.
	Agg *agg.Blueprint
	// Method pins a strategy; the default (plan.Auto)
	// picks the cheapest feasible one.
	Method plan.Strategy
	// FillValue, when non-nil, overrides the value empty
	// groups receive.
	FillValue *float64
	// Dtype, when non-nil, overrides how the result values
	// are interpreted.
	Dtype *agg.Dtype
	// Threshold, when nonzero, overrides the reducer's
	// cohort merge threshold for this query. Use 1 to force
	// exact signatures on a reducer configured to merge.
	Threshold float64
}

func (q *Query) validate() error {
	if q.Codes == nil {
		return fmt.Errorf("regroup: query has no codes")
	}
	if err := q.Codes.Validate(); err != nil {
		return err
	}
	if q.Chunks == nil {
		return fmt.Errorf("regroup: query has no chunk grid")
	}
	if err := q.Chunks.Validate(); err != nil {
		return err
	}
	if q.Agg == nil {
		return fmt.Errorf("regroup: query has no aggregation")
	}
	n := len(q.Codes.Codes)
	if len(q.Data) != n {
		return fmt.Errorf("regroup: %d values but %d codes", len(q.Data), n)
	}
	if g := q.Chunks.Len(); g != n {
		return fmt.Errorf("regroup: chunk grid covers %d elements but %d codes given", g, n)
	}
	if q.Codes.Groups == 0 && n > 0 {
		return fmt.Errorf("regroup: cannot size output: codes carry zero groups; factorize with expected groups")
	}
	return nil
}

// Run executes q and returns one final value per group.
func (r *Reducer) Run(ctx context.Context, q *Query) (*plan.Result, error) {
	if q == nil {
		return nil, fmt.Errorf("regroup: nil query")
	}
	if err := q.validate(); err != nil {
		return nil, err
	}
	bp := *q.Agg
	if q.FillValue != nil {
		bp.FillFinal = *q.FillValue
	}
	if q.Dtype != nil {
		bp.Final = *q.Dtype
	}
	if err := bp.Validate(); err != nil {
		return nil, err
	}
	threshold := r.threshold
	if q.Threshold != 0 {
		threshold = q.Threshold
	}
	opt := cohort.Options{Threshold: threshold}
	res, hit, err := r.cache.Lookup(q.Codes.Codes, q.Codes.Groups, q.Chunks, opt)
	if err != nil {
		return nil, err
	}
	strategy, err := plan.Select(q.Method, res, &bp)
	if err != nil {
		return nil, err
	}
	r.logStrategy(q.Method, strategy, res, &bp, hit)
	g, err := plan.Build(strategy, res)
	if err != nil {
		return nil, err
	}
	out, err := plan.Execute(ctx, r.engine, g, plan.Input{
		Data:  q.Data,
		Codes: q.Codes.Codes,
		Grid:  q.Chunks,
		Agg:   &bp,
		Plan:  res,
	})
	if err != nil {
		r.log.Error("reduction failed",
			zap.Stringer("strategy", strategy),
			zap.String("agg", bp.Name),
			zap.Error(err))
		return nil, err
	}
	out.Stats.CacheHit = hit
	r.log.Info("reduction complete",
		zap.Stringer("strategy", strategy),
		zap.String("agg", bp.Name),
		zap.Int("groups", q.Codes.Groups),
		zap.Int("chunks", res.NumChunks),
		zap.Int("cohorts", len(res.Cohorts)),
		zap.Int("tasks", out.Stats.Tasks),
		zap.Bool("cache_hit", hit),
		zap.Duration("elapsed", out.Stats.Elapsed))
	return out, nil
}

// logStrategy records how the strategy was resolved, and
// flags explicit methods that auto would not have picked.
func (r *Reducer) logStrategy(method, chosen plan.Strategy, res *cohort.Result, bp *agg.Blueprint, hit bool) {
	ce := r.log.Check(zap.DebugLevel, "strategy resolved")
	if ce == nil {
		return
	}
	fields := []zap.Field{
		zap.Stringer("method", method),
		zap.Stringer("chosen", chosen),
		zap.Stringer("preferred", res.Preferred),
		zap.Int("cohorts", len(res.Cohorts)),
		zap.Int("non_empty_groups", res.NonEmptyGroups),
		zap.Float64("avg_chunks_per_cohort", res.AvgChunksPerCohort()),
		zap.Bool("cache_hit", hit),
	}
	if method != plan.Auto {
		if auto, err := plan.Select(plan.Auto, res, bp); err == nil && auto != chosen {
			fields = append(fields, zap.Stringer("auto_pick", auto))
		}
	}
	ce.Write(fields...)
}

var std = New()

// Run executes q on a shared default Reducer. The default
// keeps a cohort plan cache across calls; construct a
// Reducer with New to control logging, caching, or the
// engine.
func Run(ctx context.Context, q *Query) (*plan.Result, error) {
	return std.Run(ctx, q)
}
