// Package redischan binds a transport to Redis pub/sub: inbound frames are
// read from one channel, outbound frames are published to another.
package redischan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Goden-Gun/transport-core/pkg/channel"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
	"github.com/Goden-Gun/transport-core/pkg/transport"
)

const (
	// DefaultPublishTimeout bounds a single PUBLISH.
	DefaultPublishTimeout = 5 * time.Second
	maxRetryDelay         = 2 * time.Second
)

// ErrClosed is returned by Open after Close.
var ErrClosed = errors.New("redis transport closed")

// Option customises a Transport.
type Option func(*Transport)

// WithPublishTimeout overrides DefaultPublishTimeout.
func WithPublishTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.publishTimeout = d
		}
	}
}

// WithTransportOptions forwards options to the embedded transport.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(t *Transport) {
		t.baseOpts = append(t.baseOpts, opts...)
	}
}

// Transport subscribes to In and publishes to Out.
type Transport struct {
	*transport.Base

	client         redis.UniversalClient
	in, out        string
	publishTimeout time.Duration
	baseOpts       []transport.Option

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
	closed bool

	readers channel.Readers
	log     *log.Entry
}

var _ transport.Transport = (*Transport)(nil)

// New creates a transport over client. Nothing is subscribed until Open.
func New(client redis.UniversalClient, in, out string, opts ...Option) *Transport {
	t := &Transport{
		client:         client,
		in:             in,
		out:            out,
		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.Base = transport.New(t.baseOpts...)
	t.log = t.Base.Logger().WithFields(log.Fields{log.ComponentKey: "redis", "in": in, "out": out})
	return t
}

// Open subscribes to the inbound channel and waits for the confirmation,
// which connects the transport. The subscription is re-established by the
// client after connection loss; each loss disconnects the transport and each
// renewed confirmation connects it again.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()

	ps := t.client.Subscribe(ctx, t.in)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		_ = ps.Close()
		return ErrClosed
	}
	previous, previousCancel := t.pubsub, t.cancel
	t.pubsub, t.cancel = ps, cancel
	t.mu.Unlock()
	if previous != nil {
		previousCancel()
		_ = previous.Close()
	}

	t.log.Info("redis subscription confirmed")
	t.Base.Connect(t.dispatcher(ps))

	t.readers.Go(func() { t.receiveLoop(loopCtx, ps) })
	return nil
}

// Disconnect marks the transport disconnected and drops the subscription.
func (t *Transport) Disconnect() {
	t.Base.Disconnect()
	t.release()
}

// Stop disarms the transport and drops the subscription.
func (t *Transport) Stop() {
	t.Base.Stop()
	t.release()
}

// Close stops the transport and waits for the receiver goroutine, unless it
// is called from a subscriber running on that goroutine. The redis client
// itself is left open.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.Stop()
	t.readers.Wait()
	return nil
}

func (t *Transport) dispatcher(ps *redis.PubSub) transport.DispatchFunc {
	return func(msg message.Message) {
		if !t.isOpen(ps) {
			return
		}
		data, err := channel.Encode(msg)
		if err != nil {
			t.log.WithError(err).Error("drop outbound message")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), t.publishTimeout)
		defer cancel()
		if err := t.client.Publish(ctx, t.out, data).Err(); err != nil {
			t.log.WithError(err).WithField("type", msg.Type).Warn("redis publish failed")
		}
	}
}

func (t *Transport) receiveLoop(ctx context.Context, ps *redis.PubSub) {
	delay := 50 * time.Millisecond
	for {
		v, err := ps.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || !t.isOpen(ps) {
				return
			}
			if t.Base.IsConnected() {
				t.log.WithError(err).Warn("redis subscription lost")
			}
			t.Base.Disconnect()
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, maxRetryDelay)
			continue
		}
		delay = 50 * time.Millisecond
		switch m := v.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" && m.Channel == t.in {
				t.log.Info("redis subscription restored")
				t.Base.Connect(t.dispatcher(ps))
			}
		case *redis.Message:
			t.readers.Deliver(t, []byte(m.Payload), t.log)
		}
	}
}

func (t *Transport) release() {
	t.mu.Lock()
	ps, cancel := t.pubsub, t.cancel
	t.pubsub, t.cancel = nil, nil
	t.mu.Unlock()
	if ps == nil {
		return
	}
	cancel()
	_ = ps.Close()
}

func (t *Transport) isOpen(ps *redis.PubSub) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pubsub == ps
}
