// Package derived is a content-addressed cache for payloads computed from source content.
//
// An entry is reused only while the signature it was stored under still matches
// the freshly computed one. Entries never expire by time.
package derived

import (
	"fmt"
	"sync"

	"github.com/pbaille/folio/internal/state"
)

// Entry pairs a payload with the signature of the input it was derived from
type Entry[T any] struct {
	Signature string `json:"signature"`
	Payload   T      `json:"payload"`
}

// Stats counts lookups served from the cache and lookups that had to regenerate
type Stats struct {
	Hits   int
	Misses int
}

// Cache maps a node id to its last derived payload
type Cache[T any] struct {
	name string

	mu      sync.Mutex
	entries map[string]Entry[T]
	stats   Stats
}

// New returns an empty cache persisted under name
func New[T any](name string) *Cache[T] {
	return &Cache[T]{name: name, entries: make(map[string]Entry[T])}
}

// Load reads the cache document name, returning an empty cache when none exists yet
func Load[T any](s *state.Store, name string) (*Cache[T], error) {
	c := New[T](name)
	if _, err := s.ReadJSON(name, &c.entries); err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	if c.entries == nil {
		c.entries = make(map[string]Entry[T])
	}
	return c, nil
}

// Resolve returns the cached payload for id when its signature matches sig.
// Otherwise gen is called, its result stored under sig and returned.
func (c *Cache[T]) Resolve(id, sig string, gen func() T) (T, bool) {
	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()

	if ok && e.Signature == sig {
		c.mu.Lock()
		c.stats.Hits++
		c.mu.Unlock()
		return e.Payload, true
	}

	payload := gen()

	c.mu.Lock()
	c.entries[id] = Entry[T]{Signature: sig, Payload: payload}
	c.stats.Misses++
	c.mu.Unlock()
	return payload, false
}

// Save writes the cache document
func (c *Cache[T]) Save(s *state.Store) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := s.WriteJSON(c.name, c.entries); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	return nil
}

// Stats returns the hit and miss counts since the cache was loaded
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Len returns the number of stored entries
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
