package loom

import "sync"

// SharedState is the thread-safe, schema-free map every node in a flow
// reads and writes. Node authors agree on keys out of band — the kernel
// imposes no structure, including nothing stopping a value from being a
// channel, so the producer/consumer pattern (a node stashing a chan and a
// later node draining it) works without any extra machinery.
//
// Grounded on agentstation-pocket's store.go Store/StoreReader/StoreWriter
// split, trimmed down: this spec carries no LRU/TTL eviction policy at the
// shared-state layer (that concern is reintroduced, repurposed as a node
// decorator, by the cache package).
type SharedState struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewSharedState returns an empty, ready-to-use SharedState.
func NewSharedState() *SharedState {
	return &SharedState{data: make(map[string]any)}
}

// Get retrieves a value by key.
func (s *SharedState) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores a value under key, overwriting any previous value.
func (s *SharedState) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Delete removes key, if present.
func (s *SharedState) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Keys returns a snapshot of the currently stored keys. The order is
// unspecified.
func (s *SharedState) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Clone returns a new SharedState holding a shallow copy of s's entries.
// Used where a flow needs its own isolated state to mutate without
// racing siblings that started from the same snapshot — compose's
// ParallelFlows, for instance.
func (s *SharedState) Clone() *SharedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data := make(map[string]any, len(s.data))
	for k, v := range s.data {
		data[k] = v
	}
	return &SharedState{data: data}
}
