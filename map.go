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

// package indexmap is a Go implementation of an insertion-ordered hash map
// in the style of Rust's indexmap crate. See also:
// https://github.com/khonsulabs/budlang/blob/main/budlang/src/map.rs.
//
// # Layout
//
// An IndexMap is made of two arrays. The entries array is dense and holds
// every live (key, value, hash) triple in insertion order. It is the source
// of truth for values and is what positional access (GetIndexed, IndexOf)
// addresses. The bins array is the hash table proper: a power-of-two number
// of primary bins, one per bucket, followed by overflow bins that extend
// collision chains. A bin stores an index into entries and the index of the
// next bin in its chain:
//
//	      primary (mask+1 bins)            overflow
//	+--------+--------+--------+--------++--------+--------+
//	| e=0    | e=-1   | e=2    | e=1    || e=3    | e=-1   |
//	| n=4    | n=-1   | n=-1   | n=-1   || n=-1   | n=-1   |
//	+--------+--------+--------+--------++--------+--------+
//	    |                                   ^
//	    +-----------------------------------+
//
// In the diagram bucket 0 holds a chain of two entries (0 and 3), bucket 1
// is empty, and the last overflow bin is on the free list. Chains are linked
// by bin index rather than pointer so the whole table is a single slice.
//
// # Deletion
//
// Deleting removes the entry from the entries array by shifting every later
// entry left, which preserves insertion order at the cost of O(n) work. Every
// bin referencing a shifted entry is renumbered. The vacated bin is unlinked
// from its chain: when it is the head of a bucket the next bin in the chain
// is moved into the head. The overflow bin left behind is pushed onto a free
// list threaded through the next field of empty bins and is reused by the
// next chain extension.
//
// # Growth
//
// The table grows by doubling on a fixed staircase: 0 -> 4 always, 4 -> 8
// when the 4th entry arrives, 8 -> 16 at 6 entries, 16 -> 32 at 13 entries
// and beyond that whenever the load exceeds 7/8. Growing discards all
// overflow bins and the free list and reinserts every entry from its cached
// hash.
//
// Positions returned by IndexOf are only valid until the next Delete.
package indexmap

import (
	"fmt"
	"math/bits"
	"slices"
	"strings"
)

const (
	debug = false

	// minCapacity is the number of primary bins a non-empty map starts with.
	minCapacity = 4

	binEmpty int32 = -1
	binEnd   int32 = -1
)

// entry is a live key/value pair along with the cached hash of the key.
type entry[K comparable, V any] struct {
	key   K
	value V
	hash  int32
}

// bin is a single slot of the hash table. A bin with entry == binEmpty is
// vacant; if it is an overflow bin on the free list, next links to the next
// free bin.
type bin struct {
	entry int32
	next  int32
}

var emptyBin = bin{entry: binEmpty, next: binEnd}

// Map is an insertion-ordered map from keys to values with Insert, Get,
// Delete and positional accessors. Entries can be addressed by key or by
// their current position in insertion order.
//
// The zero value for a Map is an empty map ready to use. A Map is NOT
// goroutine-safe.
type Map[K comparable, V any] struct {
	// The hash function for keys of type K. Lazily resolved on the first
	// insert for a zero Map.
	hash func(key K) int32
	// entries holds the live entries in insertion order.
	entries []entry[K, V]
	// bins is mask+1 primary bins followed by overflow bins.
	bins []bin
	// mask is capacity-1, used to compute hash%capacity. Meaningless while
	// bins is empty.
	mask int
	// freeHead is the first vacant overflow bin, or binEnd.
	freeHead int32
}

// New constructs a new Map with room for at least initialCapacity primary
// bins. The capacity is rounded up to a power of two and is never smaller
// than 4.
func New[K comparable, V any](initialCapacity int, options ...option[K, V]) *Map[K, V] {
	m := &Map[K, V]{}
	m.Init(initialCapacity, options...)
	return m
}

// Init initializes a Map with the specified initial capacity and options,
// discarding any existing contents.
func (m *Map[K, V]) Init(initialCapacity int, options ...option[K, V]) {
	*m = Map[K, V]{
		freeHead: binEnd,
	}
	for _, op := range options {
		op.apply(m)
	}
	if m.hash == nil {
		m.hash = defaultHasher[K]()
	}

	capacity := minCapacity
	if initialCapacity > minCapacity {
		capacity = 1 << bits.Len(uint(initialCapacity-1))
	}
	m.resize(capacity)
	m.checkInvariants()
}

// Insert inserts an entry into the map, overwriting the value of an existing
// entry with the same key. If the key was already present its previous value
// is returned along with replaced=true; the entry keeps its position.
func (m *Map[K, V]) Insert(key K, value V) (old V, replaced bool) {
	if m.hash == nil {
		// Zero Map.
		m.hash = defaultHasher[K]()
		m.freeHead = binEnd
	}
	h := m.hash(key)
	if _, i, ok := m.find(h, key); ok {
		e := &m.entries[i]
		old, e.value = e.value, value
		if debug {
			fmt.Printf("insert(updating): entry=%d key=%v\n", i, key)
		}
		return old, true
	}

	i := int32(len(m.entries))
	m.entries = append(m.entries, entry[K, V]{key: key, value: value, hash: h})
	if m.shouldGrow(len(m.entries)) {
		// The rehash places the new entry along with the others.
		m.resize(max(minCapacity, 2*m.Capacity()))
	} else {
		m.place(int(h)&m.mask, i)
	}
	if debug {
		fmt.Printf("insert(new): entry=%d key=%v hash=%08x\n", i, key, uint32(h))
	}
	m.checkInvariants()
	return old, false
}

// Get retrieves the value from the map for the specified key, returning
// ok=false if the key is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	if len(m.entries) == 0 {
		return value, false
	}
	if _, i, ok := m.find(m.hash(key), key); ok {
		return m.entries[i].value, true
	}
	return value, false
}

// Has returns true if the key is present in the map.
func (m *Map[K, V]) Has(key K) bool {
	if len(m.entries) == 0 {
		return false
	}
	_, _, ok := m.find(m.hash(key), key)
	return ok
}

// IndexOf returns the position of key in insertion order. The position is
// invalidated by any subsequent Delete.
func (m *Map[K, V]) IndexOf(key K) (int, bool) {
	if len(m.entries) == 0 {
		return 0, false
	}
	if _, i, ok := m.find(m.hash(key), key); ok {
		return int(i), true
	}
	return 0, false
}

// GetIndexed returns the value at position i in insertion order, or ok=false
// if i is out of range.
func (m *Map[K, V]) GetIndexed(i int) (value V, ok bool) {
	if !m.HasIndex(i) {
		return value, false
	}
	return m.entries[i].value, true
}

// GetIndex returns the key and value at position i in insertion order, or
// ok=false if i is out of range.
func (m *Map[K, V]) GetIndex(i int) (key K, value V, ok bool) {
	if !m.HasIndex(i) {
		return key, value, false
	}
	e := &m.entries[i]
	return e.key, e.value, true
}

// HasIndex returns true if i addresses a live entry, i.e. 0 <= i < Len().
func (m *Map[K, V]) HasIndex(i int) bool {
	return i >= 0 && i < len(m.entries)
}

// Delete deletes the entry corresponding to the specified key from the map
// and returns its value. It is a noop to delete a non-existent key. Every
// entry after the deleted one moves one position to the left.
func (m *Map[K, V]) Delete(key K) (value V, ok bool) {
	if len(m.entries) == 0 {
		return value, false
	}
	h := m.hash(key)
	bucket := int32(int(h) & m.mask)

	prev := binEnd
	for b := bucket; b != binEnd; {
		cur := m.bins[b]
		if cur.entry == binEmpty {
			break
		}
		e := &m.entries[cur.entry]
		if e.hash != h || e.key != key {
			prev, b = b, cur.next
			continue
		}

		if debug {
			fmt.Printf("delete(found): bucket=%d bin=%d entry=%d key=%v\n",
				bucket, b, cur.entry, key)
		}
		value = e.value

		// Unlink the bin. When the bin is the head of its bucket we pull the
		// next bin of the chain into the head rather than leaving a hole, as
		// lookups stop at the first empty bin.
		switch {
		case prev == binEnd && cur.next != binEnd:
			next := cur.next
			m.bins[b] = m.bins[next]
			m.release(next)
		case prev == binEnd:
			m.bins[b] = emptyBin
		default:
			m.bins[prev].next = cur.next
			m.release(b)
		}

		m.removeEntry(cur.entry)
		m.checkInvariants()
		return value, true
	}
	return value, false
}

// All calls yield sequentially for each key and value present in the map,
// in insertion order. If yield returns false, iteration stops. The map must
// not be mutated during iteration.
//
//	for k, v := range m.All {
//	  fmt.Printf("%v: %v\n", k, v)
//	}
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	for i := range m.entries {
		e := &m.entries[i]
		if !yield(e.key, e.value) {
			return
		}
	}
}

// Keys calls yield sequentially for each key in insertion order.
func (m *Map[K, V]) Keys(yield func(key K) bool) {
	for i := range m.entries {
		if !yield(m.entries[i].key) {
			return
		}
	}
}

// Clear deletes all entries from the map, retaining the primary capacity.
func (m *Map[K, V]) Clear() {
	clear(m.entries)
	m.entries = m.entries[:0]
	if capacity := m.Capacity(); capacity > 0 {
		m.bins = m.bins[:capacity]
		for i := range m.bins {
			m.bins[i] = emptyBin
		}
	}
	m.freeHead = binEnd
	m.checkInvariants()
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return len(m.entries)
}

// Capacity returns the number of primary bins, which is always a power of
// two (or zero for a zero Map that has never been inserted into).
func (m *Map[K, V]) Capacity() int {
	if len(m.bins) == 0 {
		return 0
	}
	return m.mask + 1
}

// find walks the chain of the bucket for hash h looking for key. It returns
// the bin holding the key and the entry index.
func (m *Map[K, V]) find(h int32, key K) (binIdx int32, entryIdx int32, ok bool) {
	if len(m.entries) == 0 {
		return 0, 0, false
	}
	b := int32(int(h) & m.mask)
	if debug {
		fmt.Printf("find(%v): hash=%08x bucket=%d\n", key, uint32(h), b)
	}
	for b != binEnd {
		cur := &m.bins[b]
		if cur.entry == binEmpty {
			return 0, 0, false
		}
		e := &m.entries[cur.entry]
		if e.hash == h && e.key == key {
			return b, cur.entry, true
		}
		b = cur.next
	}
	return 0, 0, false
}

// place links entry i into the chain for bucket. The bucket's primary bin is
// used if vacant; otherwise a new bin is allocated and appended to the tail
// of the chain.
func (m *Map[K, V]) place(bucket int, i int32) {
	if m.bins[bucket].entry == binEmpty {
		m.bins[bucket] = bin{entry: i, next: binEnd}
		return
	}
	tail := int32(bucket)
	for m.bins[tail].next != binEnd {
		tail = m.bins[tail].next
	}
	// NB: alloc may reallocate m.bins, so the tail is addressed by index.
	b := m.alloc()
	m.bins[b] = bin{entry: i, next: binEnd}
	m.bins[tail].next = b
	if debug {
		fmt.Printf("place(chained): bucket=%d tail=%d bin=%d entry=%d\n", bucket, tail, b, i)
	}
}

// alloc returns a vacant overflow bin, popping the free list if possible and
// extending the table otherwise.
func (m *Map[K, V]) alloc() int32 {
	if b := m.freeHead; b != binEnd {
		m.freeHead = m.bins[b].next
		return b
	}
	m.bins = append(m.bins, emptyBin)
	return int32(len(m.bins) - 1)
}

// release pushes overflow bin b onto the free list.
func (m *Map[K, V]) release(b int32) {
	m.bins[b] = bin{entry: binEmpty, next: m.freeHead}
	m.freeHead = b
}

// removeEntry removes entry i from the entries array, shifting later entries
// left, and renumbers the bins that referenced them.
func (m *Map[K, V]) removeEntry(i int32) {
	m.entries = slices.Delete(m.entries, int(i), int(i)+1)
	if int(i) == len(m.entries) {
		// The last entry was removed; no bin needs renumbering.
		return
	}
	for j := range m.bins {
		if m.bins[j].entry > i {
			m.bins[j].entry--
		}
	}
}

// shouldGrow reports whether the table must grow to hold n entries. The
// schedule front-loads growth for small tables and settles into a maximum
// load factor of 7/8 beyond 16 bins.
func (m *Map[K, V]) shouldGrow(n int) bool {
	switch capacity := m.Capacity(); capacity {
	case 0:
		return true
	case 4:
		return n == 4
	case 8:
		return n >= 6
	case 16:
		return n >= 13
	default:
		return n > capacity*7/8
	}
}

// resize replaces the bins with newCapacity empty primary bins and rehashes
// every entry from its cached hash. The free list is discarded along with
// the old overflow bins.
func (m *Map[K, V]) resize(newCapacity int) {
	if debug {
		fmt.Printf("resize: %d -> %d (entries=%d)\n", m.Capacity(), newCapacity, len(m.entries))
	}
	m.bins = slices.Grow(m.bins[:0], newCapacity)[:newCapacity]
	for i := range m.bins {
		m.bins[i] = emptyBin
	}
	m.mask = newCapacity - 1
	m.freeHead = binEnd
	for i := range m.entries {
		m.place(int(m.entries[i].hash)&m.mask, int32(i))
	}
}

// checkInvariants verifies the internal consistency of the map when built
// with the invariants tag. It panics on the first violation found.
func (m *Map[K, V]) checkInvariants() {
	if !invariants {
		return
	}
	if msg := m.validate(); msg != "" {
		panic(fmt.Sprintf("invariant failed: %s\n%s", msg, m.debugString()))
	}
}

// validate returns a description of the first broken invariant, or the
// empty string.
func (m *Map[K, V]) validate() string {
	capacity := m.Capacity()
	if capacity != 0 && bits.OnesCount(uint(capacity)) != 1 {
		return fmt.Sprintf("capacity %d is not a power of two", capacity)
	}
	if len(m.bins) < capacity {
		return fmt.Sprintf("%d bins < capacity %d", len(m.bins), capacity)
	}

	free := make(map[int32]struct{})
	for b := m.freeHead; b != binEnd; b = m.bins[b].next {
		if int(b) < capacity {
			return fmt.Sprintf("primary bin %d is on the free list", b)
		}
		if _, ok := free[b]; ok {
			return fmt.Sprintf("free list cycles at bin %d", b)
		}
		if m.bins[b].entry != binEmpty {
			return fmt.Sprintf("free bin %d references entry %d", b, m.bins[b].entry)
		}
		free[b] = struct{}{}
	}

	seen := make([]bool, len(m.entries))
	for bucket := 0; bucket < capacity; bucket++ {
		visited := 0
		for b := int32(bucket); b != binEnd; b = m.bins[b].next {
			if visited++; visited > len(m.bins) {
				return fmt.Sprintf("chain for bucket %d cycles", bucket)
			}
			cur := m.bins[b]
			if cur.entry == binEmpty {
				if int(b) != bucket || cur.next != binEnd {
					return fmt.Sprintf("empty bin %d inside chain for bucket %d", b, bucket)
				}
				break
			}
			if cur.entry < 0 || int(cur.entry) >= len(m.entries) {
				return fmt.Sprintf("bin %d references invalid entry %d", b, cur.entry)
			}
			if seen[cur.entry] {
				return fmt.Sprintf("entry %d referenced twice", cur.entry)
			}
			seen[cur.entry] = true
			if h := int(m.entries[cur.entry].hash) & m.mask; h != bucket {
				return fmt.Sprintf("entry %d with bucket %d found in bucket %d", cur.entry, h, bucket)
			}
		}
	}
	for i, ok := range seen {
		if !ok {
			return fmt.Sprintf("entry %d is not referenced by any bin", i)
		}
	}
	return ""
}

// debugString returns a dump of the bins and entries of the map.
func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d len=%d bins=%d free=%d\n",
		m.Capacity(), len(m.entries), len(m.bins), m.freeHead)
	for i, b := range m.bins {
		fmt.Fprintf(&buf, "  bin %4d: entry=%d next=%d\n", i, b.entry, b.next)
	}
	for i := range m.entries {
		e := &m.entries[i]
		fmt.Fprintf(&buf, "  entry %4d: key=%v hash=%08x\n", i, e.key, uint32(e.hash))
	}
	return buf.String()
}
