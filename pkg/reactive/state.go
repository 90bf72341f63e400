// Package reactive provides the two signal primitives used by transports: a
// current-value State whose watchers fire on subscribe and on change, and a
// push-only Broadcaster with no replay for late subscribers.
package reactive

import "sync"

// State holds a comparable value and notifies watchers when it changes.
// Watchers are invoked synchronously by the goroutine calling Set, after the
// state's own lock is released, in registration order.
type State[T comparable] struct {
	mu       sync.Mutex
	value    T
	nextID   uint64
	watchers []watcher[T]
}

type watcher[T any] struct {
	id uint64
	fn func(T)
}

// NewState returns a State holding initial.
func NewState[T comparable](initial T) *State[T] {
	return &State[T]{value: initial}
}

// Get returns the current value.
func (s *State[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set stores v and notifies watchers if it differs from the current value.
// It reports whether the value changed.
func (s *State[T]) Set(v T) bool {
	s.mu.Lock()
	if s.value == v {
		s.mu.Unlock()
		return false
	}
	s.value = v
	snapshot := s.snapshot()
	s.mu.Unlock()

	for _, w := range snapshot {
		w.fn(v)
	}
	return true
}

// Watch registers fn, calls it immediately with the current value and then
// on every change until the returned subscription is released.
func (s *State[T]) Watch(fn func(T)) *Subscription {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers = append(s.watchers, watcher[T]{id: id, fn: fn})
	current := s.value
	s.mu.Unlock()

	fn(current)
	return newSubscription(func() { s.remove(id) })
}

// Watchers returns the number of active watchers.
func (s *State[T]) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func (s *State[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.watchers {
		if w.id == id {
			s.watchers = append(s.watchers[:i:i], s.watchers[i+1:]...)
			return
		}
	}
}

func (s *State[T]) snapshot() []watcher[T] {
	out := make([]watcher[T], len(s.watchers))
	copy(out, s.watchers)
	return out
}
