// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

package dnn

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/godnn/dnnlib"
	"github.com/gomlx/godnn/types/layouts"
	"github.com/gomlx/godnn/types/xsync"
	"github.com/gomlx/gopjrt/dtypes"
	lru "github.com/hashicorp/golang-lru/v2"
	"k8s.io/klog/v2"
)

// planParams identifies one softmax problem: everything that affects the
// prepared primitive. Two invocations map to the same plan iff their params
// are equal, physical format included.
type planParams struct {
	dims   []int
	axis   int
	dtype  dtypes.DType
	format layouts.Format
}

// cacheKey returns the canonical key string, e.g. "softmax_fwd:Float32:8x10:a1:NC".
func (p planParams) cacheKey() string {
	var sb strings.Builder
	sb.WriteString("softmax_fwd:")
	sb.WriteString(p.dtype.String())
	sb.WriteByte(':')
	for i, dim := range p.dims {
		if i > 0 {
			sb.WriteByte('x')
		}
		sb.WriteString(strconv.Itoa(dim))
	}
	fmt.Fprintf(&sb, ":a%d:%s", p.axis, p.format)
	return sb.String()
}

type planResult struct {
	plan *Plan
	err  error
}

// planBuilder builds the plan for one problem. Tests inject a counting
// wrapper; production always uses buildSoftmaxPlan.
type planBuilder func(engine *dnnlib.Engine, params planParams) (*Plan, error)

// PlanCache maps problem parameters to prepared plans, building each problem
// at most once. It is safe for concurrent use: when several goroutines miss
// on the same key, one builds and the rest wait on its result. Failed builds
// are not cached, so a later call retries.
//
// By default the cache is unbounded, which matches the bounded set of
// problem shapes a model runs. WithMaxEntries switches it to LRU eviction
// for workloads with unbounded shape variety.
type PlanCache struct {
	engine  *dnnlib.Engine
	build   planBuilder
	entries xsync.SyncMap[string, *xsync.LatchWithValue[planResult]]
	bounded *lru.Cache[string, *Plan]

	builds, hits atomic.Int64
}

// CacheOption configures a PlanCache.
type CacheOption func(*PlanCache)

// WithMaxEntries bounds the cache to n plans, evicting the least recently
// used one on overflow. It panics if n is not positive.
func WithMaxEntries(n int) CacheOption {
	return func(c *PlanCache) {
		bounded, err := lru.New[string, *Plan](n)
		if err != nil {
			exceptions.Panicf("dnn.WithMaxEntries(%d): %v", n, err)
		}
		c.bounded = bounded
	}
}

func withBuilder(build planBuilder) CacheOption {
	return func(c *PlanCache) { c.build = build }
}

// NewPlanCache returns a plan cache building on the given engine.
func NewPlanCache(engine *dnnlib.Engine, options ...CacheOption) *PlanCache {
	c := &PlanCache{engine: engine, build: buildSoftmaxPlan}
	for _, option := range options {
		option(c)
	}
	return c
}

// GetOrCreate returns the plan for the given params, building it if this is
// the first time the cache sees them.
func (c *PlanCache) GetOrCreate(params planParams) (*Plan, error) {
	key := params.cacheKey()
	if c.bounded != nil {
		if plan, found := c.bounded.Get(key); found {
			c.hits.Add(1)
			return plan, nil
		}
	}
	latch := xsync.NewLatchWithValue[planResult]()
	actual, loaded := c.entries.LoadOrStore(key, latch)
	if loaded {
		result := actual.Wait()
		if result.err == nil {
			c.hits.Add(1)
		}
		return result.plan, result.err
	}

	// This goroutine won the insertion race and builds for everyone waiting.
	start := time.Now()
	plan, err := c.build(c.engine, params)
	if err != nil {
		c.entries.Delete(key)
		latch.Trigger(planResult{err: err})
		return nil, err
	}
	c.builds.Add(1)
	klog.V(1).Infof("dnn: built plan %s in %s", key, time.Since(start))
	if c.bounded != nil {
		if previous, found, _ := c.bounded.PeekOrAdd(key, plan); found {
			plan = previous
		}
		c.entries.Delete(key)
	}
	latch.Trigger(planResult{plan: plan})
	return plan, nil
}

// Len returns the number of cached plans. In unbounded mode in-flight builds
// are included; like the underlying map, the count is racy.
func (c *PlanCache) Len() int {
	if c.bounded != nil {
		return c.bounded.Len()
	}
	return c.entries.Len()
}

// CacheStats is a point-in-time snapshot of the cache counters.
type CacheStats struct {
	// Entries currently cached.
	Entries int

	// Builds performed and hits served since the cache was created.
	Builds, Hits int64

	// StagedBytes is the total tensor data moved through the cached plans on
	// one execution of each.
	StagedBytes int
}

// Stats snapshots the cache counters.
func (c *PlanCache) Stats() CacheStats {
	stats := CacheStats{Entries: c.Len(), Builds: c.builds.Load(), Hits: c.hits.Load()}
	if c.bounded != nil {
		for _, key := range c.bounded.Keys() {
			if plan, found := c.bounded.Peek(key); found {
				stats.StagedBytes += plan.footprintBytes()
			}
		}
		return stats
	}
	c.entries.Range(func(_ string, latch *xsync.LatchWithValue[planResult]) bool {
		if latch.Test() {
			if result := latch.Wait(); result.err == nil && result.plan != nil {
				stats.StagedBytes += result.plan.footprintBytes()
			}
		}
		return true
	})
	return stats
}

// String implements fmt.Stringer.
func (s CacheStats) String() string {
	return fmt.Sprintf("%s plans cached (%s built, %s hits), %s staged per pass",
		humanize.Comma(int64(s.Entries)), humanize.Comma(s.Builds), humanize.Comma(s.Hits),
		humanize.Bytes(uint64(s.StagedBytes)))
}
