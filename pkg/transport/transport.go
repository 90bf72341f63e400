// Package transport implements the channel-agnostic message transport: a
// lifecycle state machine, a middleware pipeline applied per direction, an
// outbound FIFO queue flushed on reconnection and an inbound multicast bus.
//
// Concrete channel bindings embed *Base and drive it from their channel's
// events: Connect when the channel opens, Receive for each inbound frame and
// Disconnect when it closes.
package transport

import (
	"sync"

	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
	"github.com/Goden-Gun/transport-core/pkg/reactive"
)

// DispatchFunc hands a processed message to the underlying channel.
type DispatchFunc func(msg message.Message)

// Handler observes inbound messages.
type Handler func(msg message.Message)

// Transport is the operation set every channel binding exposes.
type Transport interface {
	Start()
	Stop()
	Pause()
	Resume()

	Connect(dispatch DispatchFunc)
	Disconnect()

	Send(msg message.Message)
	Receive(msg message.Message)

	Use(mw message.Middleware)

	OnMessage(h Handler) *reactive.Subscription
	OnType(typ string, h Handler) *reactive.Subscription
	OnTypes(types []string, h Handler) *reactive.Subscription
}

// Option customises a Base.
type Option func(*Base)

// WithLogger sets the entry used for lifecycle logs.
func WithLogger(entry *log.Entry) Option {
	return func(b *Base) {
		if entry != nil {
			b.log = entry
		}
	}
}

// WithMiddleware registers middleware at construction, in order.
func WithMiddleware(mws ...message.Middleware) Option {
	return func(b *Base) {
		b.middlewares = append(b.middlewares, mws...)
	}
}

// Base implements Transport. It is safe for concurrent use: lifecycle
// transitions, Send, dispatch and queue flush are serialized by one lock, so
// middleware and dispatch functions must not call back into the same Base.
// Inbound subscribers run outside that lock and may call Send.
type Base struct {
	mu sync.Mutex

	started  bool
	paused   bool
	dispatch DispatchFunc
	queue    queue
	watch    *reactive.Subscription

	middlewares []message.Middleware

	connected *reactive.State[bool]
	incoming  *reactive.Broadcaster[message.Message]

	log *log.Entry
}

var _ Transport = (*Base)(nil)

// New creates a stopped, disconnected transport.
func New(opts ...Option) *Base {
	b := &Base{
		dispatch:  noopDispatch,
		connected: reactive.NewState(false),
		incoming:  reactive.NewBroadcaster[message.Message](),
		log:       log.Component("transport"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Logger returns the entry used by the transport; bindings derive theirs from it.
func (b *Base) Logger() *log.Entry {
	return b.log
}

func noopDispatch(message.Message) {}
