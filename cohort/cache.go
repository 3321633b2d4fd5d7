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

package cohort

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"

	"github.com/SnellerInc/regroup/chunk"
)

// Key identifies planning inputs by content, so repeated
// reductions with equal codes, chunking, and threshold
// reuse the plan regardless of array identity.
type Key [32]byte

// NewKey hashes the planning inputs.
func NewKey(codes []int32, ngroups int, grid *chunk.Grid, opt Options) Key {
	h, _ := blake2b.New256(nil)
	var hdr [16]byte
	binary.LittleEndian.PutUint64(hdr[0:], uint64(ngroups))
	binary.LittleEndian.PutUint64(hdr[8:], math.Float64bits(opt.Threshold))
	h.Write(hdr[:])
	h.Write(grid.AppendKey(nil))
	var buf [4096]byte
	n := 0
	for _, c := range codes {
		binary.LittleEndian.PutUint32(buf[n:], uint32(c))
		n += 4
		if n == len(buf) {
			h.Write(buf[:])
			n = 0
		}
	}
	if n > 0 {
		h.Write(buf[:n])
	}
	var k Key
	h.Sum(k[:0])
	return k
}

type cacheEntry struct {
	res   *Result
	atime atomic.Int64
}

// Cache holds cohort plans keyed by content. It is safe
// for concurrent use; reads take a shared lock and only
// insertion and eviction take the exclusive lock.
type Cache struct {
	lock    sync.RWMutex
	max     int
	clock   atomic.Int64
	entries map[Key]*cacheEntry
}

// NewCache returns a cache bounded to max plans.
// A cache with max <= 0 stores nothing.
func NewCache(max int) *Cache {
	return &Cache{
		max:     max,
		entries: make(map[Key]*cacheEntry),
	}
}

// Len returns the number of cached plans.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.entries)
}

// Get returns the plan cached under key, if any.
func (c *Cache) Get(key Key) (*Result, bool) {
	if c == nil || c.max <= 0 {
		return nil, false
	}
	c.lock.RLock()
	e := c.entries[key]
	c.lock.RUnlock()
	if e == nil {
		return nil, false
	}
	e.atime.Store(c.clock.Add(1))
	return e.res, true
}

// Put stores res under key, evicting the least-recently
// used plan when the cache is full.
func (c *Cache) Put(key Key, res *Result) {
	if c == nil || c.max <= 0 {
		return
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if e, ok := c.entries[key]; ok {
		e.atime.Store(c.clock.Add(1))
		return
	}
	for len(c.entries) >= c.max {
		var oldest Key
		best := int64(math.MaxInt64)
		for k, e := range c.entries {
			if at := e.atime.Load(); at < best {
				best = at
				oldest = k
			}
		}
		delete(c.entries, oldest)
	}
	e := &cacheEntry{res: res}
	e.atime.Store(c.clock.Add(1))
	c.entries[key] = e
}

// Lookup returns the cached plan for the inputs, or
// computes and caches it. The second return reports a
// cache hit. The returned plan is shared across callers
// and must not be modified.
func (c *Cache) Lookup(codes []int32, ngroups int, grid *chunk.Grid, opt Options) (*Result, bool, error) {
	if c == nil || c.max <= 0 || grid == nil {
		res, err := Plan(codes, ngroups, grid, opt)
		return res, false, err
	}
	key := NewKey(codes, ngroups, grid, opt)
	if res, ok := c.Get(key); ok {
		return res, true, nil
	}
	res, err := Plan(codes, ngroups, grid, opt)
	if err != nil {
		return nil, false, err
	}
	c.Put(key, res)
	return res, false, nil
}
