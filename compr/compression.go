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

// Package compr wraps the third-party compression
// algorithms used for plan snapshot payloads behind a
// pair of small interfaces.
package compr

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Compressor compresses whole blocks.
type Compressor interface {
	// Name identifies the algorithm; feeding it to
	// Decompression yields a matching Decompressor.
	Name() string
	// Compress appends the compressed contents of src
	// to dst and returns the result.
	Compress(src, dst []byte) []byte
}

// Decompressor decompresses whole blocks of known size.
type Decompressor interface {
	// Name identifies the algorithm.
	Name() string
	// Decompress decompresses src into dst, which must
	// have exactly the decompressed length. It is safe
	// for concurrent use.
	Decompress(src, dst []byte) error
}

// Compression selects a compression algorithm by name:
// "zstd", "zstd-better" (slower, smaller), or "s2".
// Unknown names yield nil.
//
// Note that both zstd levels report "zstd" as their
// Name, since their output decompresses the same way.
func Compression(name string) Compressor {
	switch name {
	case "zstd":
		z, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		return zstdCompressor{z}
	case "zstd-better":
		z, _ := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
			zstd.WithEncoderConcurrency(1))
		return zstdCompressor{z}
	case "s2":
		return s2Compressor{}
	default:
		return nil
	}
}

// Decompression selects a decompression algorithm by
// name. Unknown names yield nil.
func Decompression(name string) Decompressor {
	switch name {
	case "zstd":
		return zstdDecompressor{}
	case "s2":
		return s2Compressor{}
	default:
		return nil
	}
}

type zstdCompressor struct {
	enc *zstd.Encoder
}

func (z zstdCompressor) Name() string { return "zstd" }

func (z zstdCompressor) Compress(src, dst []byte) []byte {
	return z.enc.EncodeAll(src, dst)
}

var zstdDecoder = sync.OnceValue(func() *zstd.Decoder {
	z, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	return z
})

type zstdDecompressor struct{}

func (zstdDecompressor) Name() string { return "zstd" }

func (zstdDecompressor) Decompress(src, dst []byte) error {
	ret, err := zstdDecoder().DecodeAll(src, dst[:0:len(dst)])
	if err != nil {
		return err
	}
	return checkExact("zstd", ret, dst)
}

type s2Compressor struct{}

func (s2Compressor) Name() string { return "s2" }

func (s2Compressor) Compress(src, dst []byte) []byte {
	tail := dst[len(dst):cap(dst)]
	// s2 requires non-overlapping src and dst
	if overlaps(src, tail) {
		tail = nil
	}
	got := s2.Encode(tail, src)
	if len(dst) == 0 {
		return got
	}
	if len(tail) > 0 && len(got) > 0 && &tail[0] == &got[0] {
		return dst[:len(dst)+len(got)]
	}
	return append(dst, got...)
}

func (s2Compressor) Decompress(src, dst []byte) error {
	ret, err := s2.Decode(dst[:0:len(dst)], src)
	if err != nil {
		return err
	}
	return checkExact("s2", ret, dst)
}

// checkExact confirms the decoder filled dst exactly and
// did not reallocate it.
func checkExact(name string, ret, dst []byte) error {
	if len(ret) != len(dst) {
		return fmt.Errorf("%s: expected %d bytes decompressed; got %d", name, len(dst), len(ret))
	}
	if len(ret) > 0 && &ret[0] != &dst[0] {
		return fmt.Errorf("%s: output buffer moved", name)
	}
	return nil
}

func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	a0 := uintptr(unsafe.Pointer(&a[0]))
	a1 := a0 + uintptr(len(a))
	b0 := uintptr(unsafe.Pointer(&b[0]))
	b1 := b0 + uintptr(len(b))
	return a0 < b1 && b0 < a1
}
