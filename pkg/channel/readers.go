package channel

import (
	"sync"
	"sync/atomic"

	log "github.com/Goden-Gun/transport-core/pkg/logger"
)

// Readers tracks the goroutines a binding runs to read its channel. Frames
// are delivered to subscribers on those goroutines, so a subscriber that
// closes its transport is itself running on a reader.
type Readers struct {
	wg         sync.WaitGroup
	delivering atomic.Int32
}

// Go runs fn on a tracked goroutine.
func (r *Readers) Go(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

// Deliver is Deliver counted as in flight until rcv returns.
func (r *Readers) Deliver(rcv Receiver, data []byte, entry *log.Entry) {
	r.delivering.Add(1)
	defer r.delivering.Add(-1)
	Deliver(rcv, data, entry)
}

// Wait blocks until every tracked goroutine has returned. While a frame is
// being delivered it returns at once: the caller may be that frame's
// subscriber, and the reader exits once the delivery returns.
func (r *Readers) Wait() {
	if r.Delivering() {
		return
	}
	r.wg.Wait()
}

// Delivering reports whether a frame is being handed to subscribers.
func (r *Readers) Delivering() bool {
	return r.delivering.Load() > 0
}
