package natschan

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Goden-Gun/transport-core/pkg/channel"
	"github.com/Goden-Gun/transport-core/pkg/config"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
	"github.com/Goden-Gun/transport-core/pkg/transport"
)

const waitFor = 3 * time.Second

func runServer(t *testing.T, port int) *server.Server {
	t.Helper()
	opts := natstest.DefaultTestOptions
	opts.Port = port
	s := natstest.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s
}

func newTransport(t *testing.T, url string) *Transport {
	t.Helper()
	tr := New(url, "in", "out",
		WithNATSOptions(nats.ReconnectWait(20*time.Millisecond), nats.MaxReconnects(-1)),
		WithTransportOptions(transport.WithLogger(log.Discard())),
	)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func peer(t *testing.T, url string) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestRoundTripThroughSubjects(t *testing.T) {
	s := runServer(t, -1)
	tr := newTransport(t, s.ClientURL())
	tr.Start()
	got := make(chan message.Message, 4)
	tr.OnMessage(func(m message.Message) { got <- m })

	tr.Send(message.New("queued", nil))
	require.NoError(t, tr.Open(context.Background()))
	assert.True(t, tr.IsConnected())

	other := peer(t, s.ClientURL())
	outSub, err := other.SubscribeSync("out")
	require.NoError(t, err)
	require.NoError(t, other.Flush())

	tr.Send(message.New("live", 1))
	m, err := outSub.NextMsg(waitFor)
	require.NoError(t, err)
	decoded, err := channel.Decode(m.Data)
	require.NoError(t, err)
	assert.Equal(t, "live", decoded.Type)

	frame, err := channel.Encode(message.New("ping", "hi"))
	require.NoError(t, err)
	require.NoError(t, other.Publish("in", frame))
	require.NoError(t, other.Publish("in", []byte("{")))
	assert.Equal(t, message.New("ping", "hi"), <-got)
	select {
	case bad := <-got:
		assert.Equal(t, message.TypeError, bad.Type)
	case <-time.After(waitFor):
		t.Fatal("decode failure not reported")
	}
}

func TestServerRestartReconnectsAndFlushes(t *testing.T) {
	s := runServer(t, -1)
	port := s.Addr().(*net.TCPAddr).Port
	url := s.ClientURL()
	tr := newTransport(t, url)
	tr.Start()
	require.NoError(t, tr.Open(context.Background()))

	s.Shutdown()
	s.WaitForShutdown()
	require.Eventually(t, func() bool { return !tr.IsConnected() }, waitFor, 10*time.Millisecond)
	tr.Send(message.New("while-down", nil))
	assert.Equal(t, 1, tr.Pending())

	runServer(t, port)
	require.Eventually(t, func() bool { return tr.IsConnected() && tr.Pending() == 0 }, waitFor, 20*time.Millisecond)
}

func TestCloseDisconnects(t *testing.T) {
	s := runServer(t, -1)
	tr := newTransport(t, s.ClientURL())
	tr.Start()
	require.NoError(t, tr.Open(context.Background()))

	require.NoError(t, tr.Close())
	assert.Equal(t, transport.StateStopped, tr.State())
	assert.ErrorIs(t, tr.Open(context.Background()), ErrClosed)
}

func TestOpenFailsWithoutServer(t *testing.T) {
	tr := New("nats://127.0.0.1:1", "in", "out", WithTransportOptions(transport.WithLogger(log.Discard())))
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	assert.Error(t, tr.Open(ctx))
	assert.False(t, tr.IsConnected())
}

func TestClientOptions(t *testing.T) {
	cfg := config.NATSConfig{Name: "relay", Token: "t", MaxReconnects: 3, ReconnectWait: 1}
	opts := nats.GetDefaultOptions()
	for _, o := range ClientOptions(cfg) {
		require.NoError(t, o(&opts))
	}
	assert.Equal(t, "relay", opts.Name)
	assert.Equal(t, "t", opts.Token)
	assert.Equal(t, 3, opts.MaxReconnect)
	assert.Equal(t, time.Second, opts.ReconnectWait)
}
