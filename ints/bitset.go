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

// Package ints provides small integer-set utilities
// (fixed-capacity bitsets and half-open intervals)
// shared by the chunk layout and cohort planning code.
package ints

import (
	"math/bits"
)

// Bitset is a fixed-capacity set of small non-negative
// integers backed by 64-bit words.
//
// The zero value is an empty set of capacity zero;
// use MakeBitset to create a set with room for n elements.
type Bitset struct {
	bits []uint64
	n    int
}

// MakeBitset returns an empty Bitset with capacity
// for elements in the range [0, n).
func MakeBitset(n int) Bitset {
	return Bitset{
		bits: make([]uint64, (n+63)>>6),
		n:    n,
	}
}

// Cap returns the capacity of the set, i.e. the n
// with which it was created.
func (b *Bitset) Cap() int { return b.n }

// Set adds i to the set.
// Set panics if i is out of range.
func (b *Bitset) Set(i int) {
	if i < 0 || i >= b.n {
		panic("ints.Bitset.Set: index out of range")
	}
	b.bits[i>>6] |= 1 << (i & 63)
}

// Test returns true if i is a member of the set.
func (b *Bitset) Test(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}
	return b.bits[i>>6]&(1<<(i&63)) != 0
}

// Count returns the number of members of the set.
func (b *Bitset) Count() int {
	c := 0
	for _, w := range b.bits {
		c += bits.OnesCount64(w)
	}
	return c
}

// Empty returns true if the set has no members.
func (b *Bitset) Empty() bool {
	for _, w := range b.bits {
		if w != 0 {
			return false
		}
	}
	return true
}

// Equal returns true if b and other have
// exactly the same members.
func (b *Bitset) Equal(other *Bitset) bool {
	if len(b.bits) != len(other.bits) {
		return false
	}
	for i := range b.bits {
		if b.bits[i] != other.bits[i] {
			return false
		}
	}
	return true
}

// Union adds every member of other to b.
// Union panics if other has a larger capacity than b.
func (b *Bitset) Union(other *Bitset) {
	if len(other.bits) > len(b.bits) {
		panic("ints.Bitset.Union: capacity mismatch")
	}
	for i, w := range other.bits {
		b.bits[i] |= w
	}
}

// IntersectCount returns the number of members
// common to b and other.
func (b *Bitset) IntersectCount(other *Bitset) int {
	n := len(b.bits)
	if len(other.bits) < n {
		n = len(other.bits)
	}
	c := 0
	for i := 0; i < n; i++ {
		c += bits.OnesCount64(b.bits[i] & other.bits[i])
	}
	return c
}

// Clone returns a copy of b that shares no state with b.
func (b *Bitset) Clone() Bitset {
	return Bitset{
		bits: append([]uint64(nil), b.bits...),
		n:    b.n,
	}
}

// Each calls fn for each member of the set in ascending order.
func (b *Bitset) Each(fn func(i int)) {
	for i, w := range b.bits {
		base := i << 6
		for w != 0 {
			fn(base + bits.TrailingZeros64(w))
			w &= w - 1
		}
	}
}

// Members returns the members of the set in ascending order.
func (b *Bitset) Members() []int {
	out := make([]int, 0, b.Count())
	b.Each(func(i int) {
		out = append(out, i)
	})
	return out
}

// Words returns the backing words of the set.
// The result aliases the set and must not be modified;
// it is meant for hashing the set contents.
func (b *Bitset) Words() []uint64 { return b.bits }
