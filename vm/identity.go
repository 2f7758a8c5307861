package vm

import "hash/fnv"

// ---------------------------------------------------------------------------
// Identity predicates
// ---------------------------------------------------------------------------

// SameClass reports whether two class descriptors denote the same class
// across a reload: equal simple names, equal declaring-library private
// keys, and matching patch flags.
func SameClass(a, b *Class) bool {
	if a.IsPatch != b.IsPatch {
		return false
	}
	if a.Name != b.Name {
		return false
	}
	if a.Library == nil || b.Library == nil {
		return a.Library == b.Library
	}
	return a.Library.PrivateKey() == b.Library.PrivateKey()
}

// SameLibrary reports whether two library descriptors denote the same
// library across a reload: equal resolved URLs.
func SameLibrary(a, b *Library) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.URL() == b.URL()
}

// SameField reports whether two fields denote the same field across a
// reload: same staticness, same owning class identity, same name.
func SameField(a, b *Field, aOwner, bOwner *Class) bool {
	if a.IsStatic != b.IsStatic {
		return false
	}
	if !SameClass(aOwner, bOwner) {
		return false
	}
	return a.Name == b.Name
}

// commonSuffixLen returns the number of matching trailing bytes of a and
// b. It backs the base-moved heuristic: when the root library URL's base
// path changes, the differing prefixes are derived from the longest
// common suffix of the old and new root URLs.
func commonSuffixLen(a, b string) int {
	i, j := len(a), len(b)
	for i > 0 && j > 0 && a[i-1] == b[j-1] {
		i--
		j--
	}
	return len(a) - i
}

// ---------------------------------------------------------------------------
// Strategy-keyed associative containers
// ---------------------------------------------------------------------------

// Strategy defines equality and hashing for one associative container.
// Each map in the reload engine picks the strategy matching the identity
// rules of its keys: classes by (name, library key, patch flag),
// libraries by URL.
type Strategy[K any] interface {
	Equal(a, b K) bool
	Hash(k K) uint64
}

// ClassStrategy keys containers by class identity.
type ClassStrategy struct{}

func (ClassStrategy) Equal(a, b *Class) bool { return SameClass(a, b) }

func (ClassStrategy) Hash(c *Class) uint64 {
	h := fnv.New64a()
	h.Write([]byte(c.Name))
	h.Write([]byte{0})
	h.Write([]byte(c.privateKey()))
	if c.IsPatch {
		h.Write([]byte{1})
	}
	return h.Sum64()
}

// LibraryStrategy keys containers by library identity.
type LibraryStrategy struct{}

func (LibraryStrategy) Equal(a, b *Library) bool { return SameLibrary(a, b) }

func (LibraryStrategy) Hash(lib *Library) uint64 {
	h := fnv.New64a()
	h.Write([]byte(lib.URL()))
	return h.Sum64()
}

type identEntry[K, V any] struct {
	key K
	val V
}

// identMap is a hash map parameterized by an explicit Strategy instead
// of Go's built-in key identity. Values indexed by structural identity
// (class name + library key, library URL) live in these during a reload.
type identMap[K, V any] struct {
	strategy Strategy[K]
	buckets  map[uint64][]identEntry[K, V]
	size     int
}

func newIdentMap[K, V any](s Strategy[K]) *identMap[K, V] {
	return &identMap[K, V]{strategy: s, buckets: make(map[uint64][]identEntry[K, V])}
}

// Put inserts or replaces the value for key. Reports whether an existing
// entry was replaced.
func (m *identMap[K, V]) Put(key K, val V) bool {
	h := m.strategy.Hash(key)
	bucket := m.buckets[h]
	for i := range bucket {
		if m.strategy.Equal(bucket[i].key, key) {
			bucket[i].val = val
			return true
		}
	}
	m.buckets[h] = append(bucket, identEntry[K, V]{key: key, val: val})
	m.size++
	return false
}

// Get returns the value for key and whether it was present.
func (m *identMap[K, V]) Get(key K) (V, bool) {
	h := m.strategy.Hash(key)
	for _, e := range m.buckets[h] {
		if m.strategy.Equal(e.key, key) {
			return e.val, true
		}
	}
	var zero V
	return zero, false
}

// Len returns the number of entries.
func (m *identMap[K, V]) Len() int { return m.size }

// ForEach visits every entry in unspecified order.
func (m *identMap[K, V]) ForEach(fn func(key K, val V)) {
	for _, bucket := range m.buckets {
		for _, e := range bucket {
			fn(e.key, e.val)
		}
	}
}

// identSet is a hash set over an explicit Strategy.
type identSet[K any] struct {
	m *identMap[K, struct{}]
}

func newIdentSet[K any](s Strategy[K]) *identSet[K] {
	return &identSet[K]{m: newIdentMap[K, struct{}](s)}
}

// Insert adds key, reporting whether it was already present.
func (s *identSet[K]) Insert(key K) bool {
	return s.m.Put(key, struct{}{})
}

// Lookup returns the stored key equal to key under the strategy.
func (s *identSet[K]) Lookup(key K) (K, bool) {
	h := s.m.strategy.Hash(key)
	for _, e := range s.m.buckets[h] {
		if s.m.strategy.Equal(e.key, key) {
			return e.key, true
		}
	}
	var zero K
	return zero, false
}

// Contains reports membership.
func (s *identSet[K]) Contains(key K) bool {
	_, ok := s.Lookup(key)
	return ok
}

// Len returns the number of members.
func (s *identSet[K]) Len() int { return s.m.Len() }

// ForEach visits every member in unspecified order.
func (s *identSet[K]) ForEach(fn func(key K)) {
	s.m.ForEach(func(k K, _ struct{}) { fn(k) })
}
