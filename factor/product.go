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

package factor

import (
	"fmt"
	"math"
)

// Product is the row-major mixed-radix combination of
// several simultaneous group-by keys into a single code
// per element. Combined codes enumerate the full cross
// product of the per-key groups, so the combined group
// count is the product of the per-key group counts.
type Product struct {
	Factorized
	radix  []int32
	stride []int32
}

// NewProduct combines the given per-key factorizations.
// All keys must cover the same number of elements.
// An element whose code is Sentinel under any key is
// Sentinel in the combination.
func NewProduct(keys ...*Factorized) (*Product, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("factor: product of no keys")
	}
	n := len(keys[0].Codes)
	groups := int64(1)
	for i, k := range keys {
		if len(k.Codes) != n {
			return nil, fmt.Errorf("factor: key %d has %d elements, key 0 has %d", i, len(k.Codes), n)
		}
		groups *= int64(k.Groups)
		if groups > math.MaxInt32 {
			return nil, fmt.Errorf("factor: combined group count overflows")
		}
	}
	p := &Product{
		radix:  make([]int32, len(keys)),
		stride: make([]int32, len(keys)),
	}
	stride := int32(1)
	for k := len(keys) - 1; k >= 0; k-- {
		p.radix[k] = int32(keys[k].Groups)
		p.stride[k] = stride
		stride *= p.radix[k]
	}
	codes := make([]int32, n)
	sorted := true
	dropped := 0
outer:
	for i := 0; i < n; i++ {
		var c int32
		for k, key := range keys {
			kc := key.Codes[i]
			if kc == Sentinel {
				codes[i] = Sentinel
				dropped++
				continue outer
			}
			c += kc * p.stride[k]
		}
		codes[i] = c
	}
	for _, k := range keys {
		sorted = sorted && k.Sorted
	}
	p.Factorized = Factorized{
		Codes:   codes,
		Groups:  int(groups),
		Sorted:  sorted,
		Dropped: dropped,
	}
	return p, nil
}

// NumKeys returns the number of combined keys.
func (p *Product) NumKeys() int { return len(p.radix) }

// Unravel decomposes a combined code into the per-key
// group indices it encodes. Unravel panics if code is
// not in [0, Groups).
func (p *Product) Unravel(code int32) []int32 {
	if code < 0 || int(code) >= p.Groups {
		panic("factor: Unravel code out of range")
	}
	out := make([]int32, len(p.radix))
	for k := range p.radix {
		out[k] = (code / p.stride[k]) % p.radix[k]
	}
	return out
}
