package transport

import (
	"github.com/Goden-Gun/transport-core/pkg/message"
	"github.com/Goden-Gun/transport-core/pkg/reactive"
)

// Receive runs the inbound pipeline on msg and broadcasts the result. It is
// a no-op while the transport is stopped; connectivity and pause do not
// affect it.
func (b *Base) Receive(msg message.Message) {
	if !b.IsStarted() {
		return
	}
	processed, ok := applyMiddleware(b.middlewareSnapshot(), msg, message.Inbound)
	if !ok {
		return
	}
	b.incoming.Publish(processed)
}

// OnMessage subscribes h to every inbound message broadcast from now on.
func (b *Base) OnMessage(h Handler) *reactive.Subscription {
	return b.incoming.Subscribe(h)
}

// OnType subscribes h to inbound messages of the given type.
func (b *Base) OnType(typ string, h Handler) *reactive.Subscription {
	return b.incoming.Subscribe(func(msg message.Message) {
		if msg.Type == typ {
			h(msg)
		}
	})
}

// OnTypes subscribes h to inbound messages whose type is in types.
func (b *Base) OnTypes(types []string, h Handler) *reactive.Subscription {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return b.incoming.Subscribe(func(msg message.Message) {
		if _, ok := set[msg.Type]; ok {
			h(msg)
		}
	})
}
