package transport

import "github.com/Goden-Gun/transport-core/pkg/message"

// queue is the outbound FIFO. It is guarded by Base.mu.
type queue struct {
	items []message.Message
}

func (q *queue) push(msg message.Message) {
	q.items = append(q.items, msg)
}

func (q *queue) pop() (message.Message, bool) {
	if len(q.items) == 0 {
		return message.Message{}, false
	}
	msg := q.items[0]
	q.items[0] = message.Message{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return msg, true
}

func (q *queue) len() int {
	return len(q.items)
}

func (q *queue) clear() int {
	n := len(q.items)
	q.items = nil
	return n
}

// Send runs the outbound pipeline and dispatches the result, or queues it
// while the transport is not connected. A vetoed message has no effect.
func (b *Base) Send(msg message.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	processed, ok := applyMiddleware(b.middlewares, msg, message.Outbound)
	if !ok {
		return
	}
	if b.connected.Get() {
		b.dispatch(processed)
		return
	}
	b.queue.push(processed)
}

// Pending returns the number of queued outbound messages.
func (b *Base) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.len()
}

func (b *Base) flushLocked() {
	n := b.queue.len()
	for {
		msg, ok := b.queue.pop()
		if !ok {
			break
		}
		b.dispatch(msg)
	}
	if n > 0 {
		b.log.WithField("count", n).Debug("outbound queue flushed")
	}
}
