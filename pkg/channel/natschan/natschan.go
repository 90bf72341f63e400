// Package natschan binds a transport to a NATS connection. The client's
// own disconnect, reconnect and close callbacks drive the transport's
// connectivity.
package natschan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Goden-Gun/transport-core/pkg/channel"
	"github.com/Goden-Gun/transport-core/pkg/config"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
	"github.com/Goden-Gun/transport-core/pkg/transport"
)

// ErrClosed is returned by Open after Close.
var ErrClosed = errors.New("nats transport closed")

// Option customises a Transport.
type Option func(*Transport)

// WithNATSOptions appends client options, e.g. credentials or reconnect
// policy.
func WithNATSOptions(opts ...nats.Option) Option {
	return func(t *Transport) {
		t.natsOpts = append(t.natsOpts, opts...)
	}
}

// WithTransportOptions forwards options to the embedded transport.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(t *Transport) {
		t.baseOpts = append(t.baseOpts, opts...)
	}
}

// ClientOptions maps the NATS configuration section to client options.
func ClientOptions(cfg config.NATSConfig) []nats.Option {
	opts := []nats.Option{nats.MaxReconnects(cfg.MaxReconnects)}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait.Duration()))
	}
	return opts
}

// Transport subscribes to subject In and publishes to subject Out.
type Transport struct {
	*transport.Base

	url      string
	in, out  string
	natsOpts []nats.Option
	baseOpts []transport.Option

	mu     sync.Mutex
	nc     *nats.Conn
	sub    *nats.Subscription
	closed bool

	log *log.Entry
}

var _ transport.Transport = (*Transport)(nil)

// New creates a NATS transport. Nothing is dialled until Open.
func New(url, in, out string, opts ...Option) *Transport {
	t := &Transport{url: url, in: in, out: out}
	for _, opt := range opts {
		opt(t)
	}
	t.Base = transport.New(t.baseOpts...)
	t.log = t.Base.Logger().WithFields(log.Fields{log.ComponentKey: "nats", "in": in, "out": out})
	return t
}

// Open connects, subscribes and marks the transport connected.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := append([]nats.Option{}, t.natsOpts...)
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}
	opts = append(opts,
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			if t.isCurrent(c) {
				t.log.WithError(err).Warn("nats disconnected")
				t.Base.Disconnect()
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if t.isCurrent(c) {
				t.log.WithField("server", c.ConnectedUrl()).Info("nats reconnected")
				t.Base.Connect(t.dispatcher(c))
			}
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			if t.clearIfCurrent(c) {
				t.log.Info("nats connection closed")
				t.Base.Disconnect()
			}
		}),
	)

	nc, err := nats.Connect(t.url, opts...)
	if err != nil {
		return fmt.Errorf("connect %s: %w", t.url, err)
	}
	sub, err := nc.Subscribe(t.in, func(m *nats.Msg) {
		channel.Deliver(t, m.Data, t.log)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe %s: %w", t.in, err)
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return fmt.Errorf("subscribe %s: %w", t.in, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		nc.Close()
		return ErrClosed
	}
	previous := t.nc
	t.nc, t.sub = nc, sub
	t.mu.Unlock()
	if previous != nil {
		previous.Close()
	}

	t.log.WithField("server", nc.ConnectedUrl()).Info("nats connected")
	t.Base.Connect(t.dispatcher(nc))
	return nil
}

// Disconnect marks the transport disconnected and closes the connection.
func (t *Transport) Disconnect() {
	t.Base.Disconnect()
	t.release()
}

// Stop disarms the transport and closes the connection.
func (t *Transport) Stop() {
	t.Base.Stop()
	t.release()
}

// Close stops the transport; Open fails afterwards.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.Stop()
	return nil
}

func (t *Transport) dispatcher(nc *nats.Conn) transport.DispatchFunc {
	return func(msg message.Message) {
		if !t.isCurrent(nc) {
			return
		}
		data, err := channel.Encode(msg)
		if err != nil {
			t.log.WithError(err).Error("drop outbound message")
			return
		}
		if err := nc.Publish(t.out, data); err != nil {
			t.log.WithError(err).WithField("type", msg.Type).Warn("nats publish failed")
		}
	}
}

func (t *Transport) release() {
	t.mu.Lock()
	nc, sub := t.nc, t.sub
	t.nc, t.sub = nil, nil
	t.mu.Unlock()
	if nc == nil {
		return
	}
	_ = sub.Unsubscribe()
	if err := nc.Drain(); err != nil {
		nc.Close()
	}
}

func (t *Transport) isCurrent(nc *nats.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nc == nc
}

func (t *Transport) clearIfCurrent(nc *nats.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nc != nc {
		return false
	}
	t.nc, t.sub = nil, nil
	return true
}
