// Package workerlocal provides storage scoped to a logical engine worker, the
// replacement for inheritable thread-local variables.
package workerlocal

import (
	"sync"

	"github.com/ethereum-optimism/infra/op-recorder/engine"
)

// Store holds one value per worker. The table itself is safe for concurrent use; a
// stored value is only ever read or written by its owning worker, or by workers it
// was inherited into.
type Store[T any] struct {
	mu      sync.Mutex
	values  map[engine.WorkerID]T
	initial func() T
}

// New creates a Store whose Get allocates missing values with initial. A nil initial
// yields the zero value.
func New[T any](initial func() T) *Store[T] {
	if initial == nil {
		initial = func() T {
			var zero T
			return zero
		}
	}
	return &Store[T]{
		values:  make(map[engine.WorkerID]T),
		initial: initial,
	}
}

// Get returns the worker's value, allocating it on first use.
func (s *Store[T]) Get(worker engine.WorkerID) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[worker]
	if !ok {
		v = s.initial()
		s.values[worker] = v
	}
	return v
}

// Lookup returns the worker's value without allocating one.
func (s *Store[T]) Lookup(worker engine.WorkerID) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[worker]
	return v, ok
}

// Set replaces the worker's value.
func (s *Store[T]) Set(worker engine.WorkerID, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[worker] = v
}

// Remove discards the worker's value; the next Get allocates a fresh one.
func (s *Store[T]) Remove(worker engine.WorkerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, worker)
}

// Refresh discards the worker's value and returns a freshly allocated one.
func (s *Store[T]) Refresh(worker engine.WorkerID) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.initial()
	s.values[worker] = v
	return v
}

// Inherit copies the parent's current value to child, allocating the parent's value
// first if needed. Reference types end up shared between the two workers.
func (s *Store[T]) Inherit(parent, child engine.WorkerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[parent]
	if !ok {
		v = s.initial()
		s.values[parent] = v
	}
	s.values[child] = v
}

// Len returns the number of workers holding a value.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
