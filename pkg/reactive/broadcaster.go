package reactive

import "sync"

// Broadcaster multicasts published values to every current subscriber.
// Nothing is buffered: subscribers only see values published after they
// subscribed.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []watcher[T]
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

// Subscribe registers fn for every future Publish.
func (b *Broadcaster[T]) Subscribe(fn func(T)) *Subscription {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, watcher[T]{id: id, fn: fn})
	b.mu.Unlock()
	return newSubscription(func() { b.remove(id) })
}

// Publish delivers v to a snapshot of the current subscribers, in
// subscription order, on the calling goroutine.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	snapshot := make([]watcher[T], len(b.subs))
	copy(snapshot, b.subs)
	b.mu.RUnlock()

	for _, s := range snapshot {
		s.fn(v)
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Subscription is a handle on a registered watcher or subscriber.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Unsubscribe detaches the handler. It is safe to call more than once and
// on a nil subscription.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
