package grpcchan

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Goden-Gun/transport-core/pkg/channel"
	"github.com/Goden-Gun/transport-core/pkg/codes"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
	"github.com/Goden-Gun/transport-core/pkg/tracing"
	"github.com/Goden-Gun/transport-core/pkg/transport"
)

// AcceptFunc receives every new session before its first frame is read.
// The session is already connected; it still has to be started to flush
// and to receive.
type AcceptFunc func(*Session)

// ServerOptions configures a Server.
type ServerOptions struct {
	// Verifier checks the bearer token of each stream when set.
	Verifier func(token string) error
	// GRPCOptions are used when Serve builds its own grpc.Server.
	GRPCOptions []grpc.ServerOption
	// TransportOptions are applied to every session.
	TransportOptions []transport.Option
	Logger           *log.Entry
}

// Server accepts relay streams and exposes each as a Session.
type Server struct {
	accept AcceptFunc
	opts   ServerOptions
	log    *log.Entry

	mu       sync.Mutex
	grpc     *grpc.Server
	sessions map[string]*Session
}

var _ relayServer = (*Server)(nil)

// NewServer builds a relay server handing sessions to accept.
func NewServer(accept AcceptFunc, opts ServerOptions) *Server {
	entry := opts.Logger
	if entry == nil {
		entry = log.Component("grpc-server")
	}
	return &Server{
		accept:   accept,
		opts:     opts,
		log:      entry,
		sessions: make(map[string]*Session),
	}
}

// Register attaches the relay service to an existing registrar.
func (s *Server) Register(reg grpc.ServiceRegistrar) {
	reg.RegisterService(&serviceDesc, s)
}

// Serve runs a dedicated grpc.Server on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.grpc != nil {
		s.mu.Unlock()
		return errors.New("relay server already serving")
	}
	srv := grpc.NewServer(s.opts.GRPCOptions...)
	s.Register(srv)
	s.grpc = srv
	s.mu.Unlock()

	s.log.WithField("addr", lis.Addr().String()).Info("relay server listening")
	err := srv.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop closes every session and gracefully stops the grpc.Server that Serve
// started.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.grpc
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	if srv != nil {
		srv.GracefulStop()
	}
}

// Sessions returns the number of open sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) serveStream(stream grpc.ServerStream) error {
	ctx := tracing.IncomingContext(stream.Context())
	md, _ := metadata.FromIncomingContext(ctx)
	if s.opts.Verifier != nil {
		if err := s.opts.Verifier(bearerToken(md)); err != nil {
			s.log.WithError(err).Warn("reject relay stream")
			return status.Errorf(grpccodes.Unauthenticated, "%s: %s", codes.ErrUnauthorized.Symbol, codes.ErrUnauthorized.Message)
		}
	}

	sess := newSession(ctx, stream, md, s.opts.TransportOptions, s.log)
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
	}()

	sess.Base.Connect(sess.dispatch)
	sess.log.Info("relay session opened")
	if s.accept != nil {
		s.accept(sess)
	}

	recvErr := make(chan error, 1)
	go func() { recvErr <- sess.recvLoop() }()

	var err error
	select {
	case err = <-recvErr:
	case <-sess.closing:
	}
	sess.finish()
	sess.log.Info("relay session closed")
	if err == nil || errors.Is(err, io.EOF) || status.Code(err) == grpccodes.Canceled {
		return nil
	}
	return err
}

// Session is the server end of one relay stream. It is a transport in its
// own right: Send reaches the remote client, Receive is fed by its frames.
type Session struct {
	*transport.Base

	id     string
	ctx    context.Context
	md     metadata.MD
	stream grpc.ServerStream
	log    *log.Entry

	sendMu    sync.Mutex
	finished  bool
	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

var _ transport.Transport = (*Session)(nil)

func newSession(ctx context.Context, stream grpc.ServerStream, md metadata.MD, opts []transport.Option, entry *log.Entry) *Session {
	id := uuid.NewString()
	return &Session{
		Base:    transport.New(opts...),
		id:      id,
		ctx:     ctx,
		md:      md,
		stream:  stream,
		log:     log.TraceEntry(entry, ctx).WithField("session_id", id),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID identifies the session.
func (s *Session) ID() string { return s.id }

// Context is the stream context carrying the remote trace context.
func (s *Session) Context() context.Context { return s.ctx }

// Metadata returns the client's request metadata.
func (s *Session) Metadata() metadata.MD { return s.md }

// Done is closed once the stream has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close ends the stream.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Disconnect marks the session disconnected and ends the stream.
func (s *Session) Disconnect() {
	s.Base.Disconnect()
	s.Close()
}

// Stop disarms the session and ends the stream.
func (s *Session) Stop() {
	s.Base.Stop()
	s.Close()
}

func (s *Session) dispatch(msg message.Message) {
	frame, err := toFrame(msg)
	if err != nil {
		s.log.WithError(err).Error("drop outbound message")
		return
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.finished {
		return
	}
	if err := s.stream.SendMsg(frame); err != nil {
		s.log.WithError(err).WithField("type", msg.Type).Warn("relay send failed")
	}
}

func (s *Session) recvLoop() error {
	for {
		frame := &structpb.Struct{}
		if err := s.stream.RecvMsg(frame); err != nil {
			return err
		}
		channel.Deliver(s, frameBytes(frame), s.log)
	}
}

// finish runs before the handler returns; no frame may be sent afterwards.
func (s *Session) finish() {
	s.sendMu.Lock()
	s.finished = true
	s.sendMu.Unlock()
	s.Base.Disconnect()
	close(s.done)
}
