// Package ws binds a transport to a WebSocket connection using
// gorilla/websocket. Frames are JSON text messages ({"type","payload"}).
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Goden-Gun/transport-core/pkg/channel"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
	"github.com/Goden-Gun/transport-core/pkg/transport"
)

// DefaultWriteTimeout bounds a single frame write.
const DefaultWriteTimeout = 10 * time.Second

// ErrClosed is returned by Open after Close.
var ErrClosed = errors.New("websocket transport closed")

// Dialer opens WebSocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Option customises a Transport.
type Option func(*Transport)

// WithDialer injects the connection factory.
func WithDialer(d Dialer) Option {
	return func(t *Transport) {
		if d != nil {
			t.dialer = d
		}
	}
}

// WithHeader adds a handshake header.
func WithHeader(key, value string) Option {
	return func(t *Transport) {
		t.header.Add(key, value)
	}
}

// WithBearerToken authenticates the handshake.
func WithBearerToken(token string) Option {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithWriteTimeout overrides DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.writeTimeout = d
		}
	}
}

// WithTransportOptions forwards options to the embedded transport.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(t *Transport) {
		t.baseOpts = append(t.baseOpts, opts...)
	}
}

// Transport is a transport whose channel is a client WebSocket connection.
type Transport struct {
	*transport.Base

	url          string
	dialer       Dialer
	header       http.Header
	writeTimeout time.Duration
	baseOpts     []transport.Option

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex
	readers channel.Readers
	log     *log.Entry
}

var _ transport.Transport = (*Transport)(nil)

// New creates a WebSocket transport for url. Nothing is dialled until Open.
func New(url string, opts ...Option) *Transport {
	t := &Transport{
		url:          url,
		dialer:       &websocket.Dialer{HandshakeTimeout: 45 * time.Second},
		header:       http.Header{},
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.Base = transport.New(t.baseOpts...)
	t.log = t.Base.Logger().WithFields(log.Fields{log.ComponentKey: "ws", "url": url})
	return t
}

// Open dials the server. Once the handshake completes the transport is
// connected and a reader goroutine delivers inbound frames until the
// connection closes, at which point the transport is disconnected.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()

	conn, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", t.url, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", t.url, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	previous := t.conn
	t.conn = conn
	t.mu.Unlock()
	if previous != nil {
		_ = previous.Close()
	}

	t.log.Info("websocket connected")
	t.Base.Connect(t.dispatcher(conn))

	t.readers.Go(func() { t.readLoop(conn) })
	return nil
}

// Disconnect marks the transport disconnected and releases the connection.
func (t *Transport) Disconnect() {
	t.Base.Disconnect()
	t.release()
}

// Stop disarms the transport and releases the connection.
func (t *Transport) Stop() {
	t.Base.Stop()
	t.release()
}

// Close stops the transport, releases the connection and waits for the
// reader goroutine. Called from a subscriber it does not wait, since the
// subscriber runs on the reader. Open fails afterwards.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.Stop()
	t.readers.Wait()
	return nil
}

// dispatcher writes to conn only while it is the transport's open connection.
func (t *Transport) dispatcher(conn *websocket.Conn) transport.DispatchFunc {
	return func(msg message.Message) {
		if !t.isOpen(conn) {
			return
		}
		data, err := channel.Encode(msg)
		if err != nil {
			t.log.WithError(err).Error("drop outbound message")
			return
		}
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			t.log.WithError(err).WithField("type", msg.Type).Warn("websocket write failed")
		}
		_ = conn.SetWriteDeadline(time.Time{})
	}
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	defer t.onClose(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.WithError(err).Warn("websocket closed unexpectedly")
			} else {
				t.log.WithError(err).Debug("websocket reader stopped")
			}
			return
		}
		t.readers.Deliver(t, data, t.log)
	}
}

// onClose handles the channel's close event. A reader of a connection that
// has already been replaced does not disconnect its successor.
func (t *Transport) onClose(conn *websocket.Conn) {
	t.mu.Lock()
	current := t.conn == conn
	if current {
		t.conn = nil
	}
	t.mu.Unlock()
	_ = conn.Close()
	if current {
		t.log.Info("websocket disconnected")
		t.Base.Disconnect()
	}
}

func (t *Transport) release() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return
	}
	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	_ = conn.Close()
}

func (t *Transport) isOpen(conn *websocket.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn == conn
}
