package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry wraps a cached value with its tier write time. Staleness is a caller
// concern; the cache itself only evicts on capacity.
type Entry[V any] struct {
	Value    V
	StoredAt time.Time
}

func (e Entry[V]) Expired(ttl time.Duration) bool {
	return time.Since(e.StoredAt) > ttl
}

// Bounded is a fixed-capacity string-keyed store with least-recently-used
// eviction. Get marks the key as most recently used.
type Bounded[V any] struct {
	entries *lru.Cache[string, Entry[V]]
}

func NewBounded[V any](capacity int) (*Bounded[V], error) {
	entries, err := lru.New[string, Entry[V]](capacity)
	if err != nil {
		return nil, err
	}

	return &Bounded[V]{entries: entries}, nil
}

func (b *Bounded[V]) Get(key string) (Entry[V], bool) {
	return b.entries.Get(key)
}

func (b *Bounded[V]) Set(key string, value V) {
	b.entries.Add(key, Entry[V]{Value: value, StoredAt: time.Now()})
}

// SetAt inserts with an explicit write time. Used when promoting a value
// from a slower tier whose own timestamp must be preserved.
func (b *Bounded[V]) SetAt(key string, value V, storedAt time.Time) {
	b.entries.Add(key, Entry[V]{Value: value, StoredAt: storedAt})
}

func (b *Bounded[V]) Has(key string) bool {
	return b.entries.Contains(key)
}

func (b *Bounded[V]) Delete(key string) {
	b.entries.Remove(key)
}

func (b *Bounded[V]) Clear() {
	b.entries.Purge()
}

func (b *Bounded[V]) Len() int {
	return b.entries.Len()
}

func (b *Bounded[V]) Keys() []string {
	return b.entries.Keys()
}

// Values returns the cached values in eviction order, oldest first. Peek is
// used so enumeration does not disturb recency.
func (b *Bounded[V]) Values() []V {
	values := []V{}
	for _, key := range b.entries.Keys() {
		if e, ok := b.entries.Peek(key); ok {
			values = append(values, e.Value)
		}
	}

	return values
}
