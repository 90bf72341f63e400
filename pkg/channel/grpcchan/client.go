package grpcchan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Goden-Gun/transport-core/pkg/channel"
	"github.com/Goden-Gun/transport-core/pkg/config"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
	"github.com/Goden-Gun/transport-core/pkg/tracing"
	"github.com/Goden-Gun/transport-core/pkg/transport"
)

// ErrClosed is returned by Open after Close.
var ErrClosed = errors.New("grpc transport closed")

// Option customises a client Transport.
type Option func(*Transport)

// WithMetadata adds an outgoing metadata pair to the stream.
func WithMetadata(key, value string) Option {
	return func(t *Transport) {
		t.md.Append(key, value)
	}
}

// WithBearerToken authenticates the stream.
func WithBearerToken(token string) Option {
	return WithMetadata("authorization", "Bearer "+token)
}

// WithTransportOptions forwards options to the embedded transport.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(t *Transport) {
		t.baseOpts = append(t.baseOpts, opts...)
	}
}

// Transport is a transport whose channel is a client relay stream.
type Transport struct {
	*transport.Base

	cc       grpc.ClientConnInterface
	md       metadata.MD
	baseOpts []transport.Option

	mu     sync.Mutex
	stream grpc.ClientStream
	cancel context.CancelFunc
	closed bool

	sendMu  sync.Mutex
	readers channel.Readers
	log     *log.Entry
}

var _ transport.Transport = (*Transport)(nil)

// New creates a relay transport over cc. No stream is opened until Open.
func New(cc grpc.ClientConnInterface, opts ...Option) *Transport {
	t := &Transport{cc: cc, md: metadata.MD{}}
	for _, opt := range opts {
		opt(t)
	}
	t.Base = transport.New(t.baseOpts...)
	t.log = t.Base.Logger().WithField(log.ComponentKey, "grpc")
	return t
}

// Open starts the relay stream. The stream outlives ctx; only its values,
// such as the active span, are carried over.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	streamCtx = metadata.NewOutgoingContext(streamCtx, t.md.Copy())
	streamCtx = tracing.OutgoingContext(streamCtx)
	stream, err := t.cc.NewStream(streamCtx, &streamDesc, StreamMethod)
	if err != nil {
		cancel()
		return fmt.Errorf("open relay stream: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		return ErrClosed
	}
	previous := t.cancel
	t.stream, t.cancel = stream, cancel
	t.mu.Unlock()
	if previous != nil {
		previous()
	}

	t.log.Info("relay stream opened")
	t.Base.Connect(t.dispatcher(stream))

	t.readers.Go(func() { t.recvLoop(stream) })
	return nil
}

// Disconnect marks the transport disconnected and ends the stream.
func (t *Transport) Disconnect() {
	t.Base.Disconnect()
	t.release()
}

// Stop disarms the transport and ends the stream.
func (t *Transport) Stop() {
	t.Base.Stop()
	t.release()
}

// Close stops the transport and waits for the receiver goroutine, unless it
// is called from a subscriber running on that goroutine.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.Stop()
	t.readers.Wait()
	return nil
}

func (t *Transport) dispatcher(stream grpc.ClientStream) transport.DispatchFunc {
	return func(msg message.Message) {
		if !t.isOpen(stream) {
			return
		}
		frame, err := toFrame(msg)
		if err != nil {
			t.log.WithError(err).Error("drop outbound message")
			return
		}
		t.sendMu.Lock()
		defer t.sendMu.Unlock()
		if err := stream.SendMsg(frame); err != nil {
			t.log.WithError(err).WithField("type", msg.Type).Warn("relay send failed")
		}
	}
}

func (t *Transport) recvLoop(stream grpc.ClientStream) {
	defer t.onClose(stream)
	for {
		frame := &structpb.Struct{}
		if err := stream.RecvMsg(frame); err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == grpccodes.Canceled {
				t.log.WithError(err).Debug("relay stream ended")
			} else {
				t.log.WithError(err).Warn("relay stream failed")
			}
			return
		}
		t.readers.Deliver(t, frameBytes(frame), t.log)
	}
}

func (t *Transport) onClose(stream grpc.ClientStream) {
	t.mu.Lock()
	current := t.stream == stream
	var cancel context.CancelFunc
	if current {
		cancel = t.cancel
		t.stream, t.cancel = nil, nil
	}
	t.mu.Unlock()
	if current {
		cancel()
		t.log.Info("relay stream closed")
		t.Base.Disconnect()
	}
}

func (t *Transport) release() {
	t.mu.Lock()
	stream, cancel := t.stream, t.cancel
	t.stream, t.cancel = nil, nil
	t.mu.Unlock()
	if stream == nil {
		return
	}
	t.sendMu.Lock()
	_ = stream.CloseSend()
	t.sendMu.Unlock()
	cancel()
}

func (t *Transport) isOpen(stream grpc.ClientStream) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stream == stream
}

// Dial builds a client connection from cfg and waits until it is ready or
// cfg.DialTimeout elapses.
func Dial(ctx context.Context, cfg config.GRPCConfig, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if cfg.Address == "" {
		return nil, errors.New("grpc address is required")
	}
	if cfg.Insecure {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		conf, err := TLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(conf)))
	}
	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
	}

	timeout := cfg.DialTimeout.Duration()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn.Connect()
	for state := conn.GetState(); state != connectivity.Ready; state = conn.GetState() {
		if !conn.WaitForStateChange(waitCtx, state) {
			_ = conn.Close()
			return nil, fmt.Errorf("dial %s: %w", cfg.Address, waitCtx.Err())
		}
	}
	return conn, nil
}
