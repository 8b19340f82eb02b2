// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package indexmap

import (
	"hash/maphash"

	"golang.org/x/exp/constraints"
)

// Hasher is implemented by key types that supply their own hash. Keys are
// still compared with ==, so two keys that are == must hash identically.
type Hasher interface {
	Hash() int32
}

// IntegerHash hashes an integer key by truncating it to 32 bits. It is a
// poor hash for keys that differ only in their high bits, but is cheap and
// keeps sequential keys in sequential buckets.
func IntegerHash[K constraints.Integer](key K) int32 {
	return int32(key)
}

// defaultHasher returns the hash function used when no WithHash option is
// given. Keys implementing Hasher use it; everything else is hashed with a
// randomly seeded maphash folded to 32 bits.
func defaultHasher[K comparable]() func(key K) int32 {
	var zero K
	if _, ok := any(zero).(Hasher); ok {
		return func(key K) int32 {
			return any(key).(Hasher).Hash()
		}
	}
	seed := maphash.MakeSeed()
	return func(key K) int32 {
		h := maphash.Comparable(seed, key)
		return int32(h ^ h>>32)
	}
}
