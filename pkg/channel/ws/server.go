package ws

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Goden-Gun/transport-core/pkg/auth"
	"github.com/Goden-Gun/transport-core/pkg/codes"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
)

// TypeHeartbeat is the type of the frames broadcast by Server.Run.
const TypeHeartbeat = "heartbeat"

// ErrServerClosed is returned by Run after Shutdown.
var ErrServerClosed = errors.New("websocket server closed")

// Heartbeat is the payload of a heartbeat frame.
type Heartbeat struct {
	Timestamp int64   `json:"timestamp"`
	Data      float64 `json:"data"`
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// HeartbeatInterval enables Run's heartbeat broadcast when positive.
	HeartbeatInterval time.Duration
	// EchoPrefix is prepended to every echoed frame. Empty echoes verbatim.
	EchoPrefix string
	// Verifier checks the bearer token of each upgrade request when set.
	Verifier func(token string) error
	// Registerer receives the server metrics when set.
	Registerer prometheus.Registerer
	Namespace  string
	Logger     *log.Entry
}

// Server is a WebSocket hub: every frame a client sends is echoed to all
// connected clients, and Run broadcasts heartbeats.
type Server struct {
	opts     ServerOptions
	upgrader websocket.Upgrader
	metrics  *serverMetrics
	log      *log.Entry

	mu      sync.RWMutex
	clients map[string]*peer
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

type peer struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// NewServer builds a hub. It fails only when the metrics cannot be registered.
func NewServer(opts ServerOptions) (*Server, error) {
	entry := opts.Logger
	if entry == nil {
		entry = log.Component("ws-server")
	}
	s := &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     entry,
		clients: make(map[string]*peer),
		done:    make(chan struct{}),
	}
	if opts.Registerer != nil {
		m, err := newServerMetrics(opts.Registerer, opts.Namespace)
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}
	return s, nil
}

// ServeHTTP upgrades the request and serves the client until it leaves.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.opts.Verifier != nil {
		if err := s.opts.Verifier(auth.BearerToken(r)); err != nil {
			s.log.WithError(err).Warn("reject websocket client")
			http.Error(w, codes.ErrUnauthorized.Message, http.StatusUnauthorized)
			return
		}
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	p := &peer{id: uuid.NewString(), conn: conn}
	if !s.add(p) {
		_ = conn.Close()
		return
	}
	defer s.wg.Done()
	defer s.remove(p)

	entry := s.log.WithField("client_id", p.id)
	entry.Info("client connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				entry.WithError(err).Warn("client read failed")
			}
			entry.Info("client disconnected")
			return
		}
		s.metrics.received()
		entry.WithField("size", len(data)).Debug("frame received")
		s.Broadcast(s.echo(data))
	}
}

func (s *Server) echo(data []byte) []byte {
	if s.opts.EchoPrefix == "" {
		return data
	}
	out := make([]byte, 0, len(s.opts.EchoPrefix)+len(data))
	out = append(out, s.opts.EchoPrefix...)
	return append(out, data...)
}

// Broadcast writes data to every connected client and returns how many
// writes succeeded.
func (s *Server) Broadcast(data []byte) int {
	s.mu.RLock()
	peers := make([]*peer, 0, len(s.clients))
	for _, p := range s.clients {
		peers = append(peers, p)
	}
	s.mu.RUnlock()

	sent := 0
	for _, p := range peers {
		if err := p.write(data); err != nil {
			s.log.WithError(err).WithField("client_id", p.id).Debug("broadcast write failed")
			continue
		}
		sent++
	}
	s.metrics.sent(sent)
	return sent
}

// Heartbeat broadcasts one heartbeat frame.
func (s *Server) Heartbeat() int {
	frame, err := json.Marshal(message.New(TypeHeartbeat, Heartbeat{
		Timestamp: time.Now().UnixMilli(),
		Data:      rand.Float64(),
	}))
	if err != nil {
		s.log.WithError(err).Error("encode heartbeat")
		return 0
	}
	return s.Broadcast(frame)
}

// Run broadcasts heartbeats every HeartbeatInterval until ctx is done or the
// server shuts down. Without an interval it only waits.
func (s *Server) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.opts.HeartbeatInterval > 0 {
		ticker := time.NewTicker(s.opts.HeartbeatInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrServerClosed
		case <-tick:
			s.Heartbeat()
		}
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown closes every client connection and waits for their handlers.
// New upgrades are refused afterwards.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	peers := make([]*peer, 0, len(s.clients))
	for _, p := range s.clients {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.writeMu.Lock()
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		p.writeMu.Unlock()
		_ = p.conn.Close()
	}

	waited := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) add(p *peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[p.id] = p
	s.wg.Add(1)
	s.metrics.connected(len(s.clients))
	return true
}

func (s *Server) remove(p *peer) {
	s.mu.Lock()
	delete(s.clients, p.id)
	s.metrics.connected(len(s.clients))
	s.mu.Unlock()
	_ = p.conn.Close()
}

type serverMetrics struct {
	clients prometheus.Gauge
	frames  *prometheus.CounterVec
}

func newServerMetrics(reg prometheus.Registerer, namespace string) (*serverMetrics, error) {
	m := &serverMetrics{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected WebSocket clients.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "frames_total",
			Help:      "WebSocket frames by direction.",
		}, []string{"direction"}),
	}
	for _, c := range []prometheus.Collector{m.clients, m.frames} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *serverMetrics) connected(n int) {
	if m != nil {
		m.clients.Set(float64(n))
	}
}

func (m *serverMetrics) received() {
	if m != nil {
		m.frames.WithLabelValues(message.Inbound.String()).Inc()
	}
}

func (m *serverMetrics) sent(n int) {
	if m != nil && n > 0 {
		m.frames.WithLabelValues(message.Outbound.String()).Add(float64(n))
	}
}
