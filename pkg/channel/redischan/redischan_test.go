package redischan

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Goden-Gun/transport-core/pkg/channel"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
	"github.com/Goden-Gun/transport-core/pkg/transport"
)

const waitFor = 3 * time.Second

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client, *Transport) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	tr := New(client, "in", "out", WithTransportOptions(transport.WithLogger(log.Discard())))
	t.Cleanup(func() { _ = tr.Close() })
	return mr, client, tr
}

func TestOpenConnectsOnSubscription(t *testing.T) {
	_, _, tr := setup(t)
	tr.Start()
	assert.False(t, tr.IsConnected())
	require.NoError(t, tr.Open(context.Background()))
	assert.True(t, tr.IsConnected())
}

func TestInboundFramesAreDelivered(t *testing.T) {
	mr, _, tr := setup(t)
	tr.Start()
	got := make(chan message.Message, 4)
	tr.OnMessage(func(m message.Message) { got <- m })
	require.NoError(t, tr.Open(context.Background()))

	frame, err := channel.Encode(message.New("ping", map[string]any{"n": 1}))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return mr.Publish("in", string(frame)) == 1 }, waitFor, 10*time.Millisecond)
	mr.Publish("in", "not json")

	first := <-got
	assert.Equal(t, "ping", first.Type)
	assert.Equal(t, map[string]any{"n": float64(1)}, first.Payload)
	select {
	case second := <-got:
		assert.Equal(t, message.TypeError, second.Type)
	case <-time.After(waitFor):
		t.Fatal("decode failure not reported")
	}
}

func TestCloseFromSubscriber(t *testing.T) {
	mr, _, tr := setup(t)
	tr.Start()
	closed := make(chan error, 1)
	tr.OnType("bye", func(message.Message) { closed <- tr.Close() })
	require.NoError(t, tr.Open(context.Background()))

	frame, err := channel.Encode(message.New("bye", nil))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return mr.Publish("in", string(frame)) == 1 }, waitFor, 10*time.Millisecond)

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("close from subscriber did not return")
	}
	assert.Equal(t, transport.StateStopped, tr.State())
	assert.ErrorIs(t, tr.Open(context.Background()), ErrClosed)
}

func TestOutboundFramesArePublished(t *testing.T) {
	_, client, tr := setup(t)
	sub := client.Subscribe(context.Background(), "out")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	tr.Start()
	tr.Send(message.New("queued", nil))
	require.NoError(t, tr.Open(context.Background()))
	tr.Send(message.New("live", "x"))

	for _, want := range []string{"queued", "live"} {
		m, err := sub.ReceiveMessage(context.Background())
		require.NoError(t, err)
		decoded, err := channel.Decode([]byte(m.Payload))
		require.NoError(t, err)
		assert.Equal(t, want, decoded.Type)
	}
}

func TestReconnectFlushesQueue(t *testing.T) {
	mr, _, tr := setup(t)
	tr.Start()
	require.NoError(t, tr.Open(context.Background()))

	mr.Close()
	require.Eventually(t, func() bool { return !tr.IsConnected() }, waitFor, 10*time.Millisecond)
	tr.Send(message.New("while-down", nil))
	assert.Equal(t, 1, tr.Pending())

	require.NoError(t, mr.Restart())
	require.Eventually(t, func() bool { return tr.IsConnected() && tr.Pending() == 0 }, waitFor, 20*time.Millisecond)
}

func TestCloseReleasesSubscription(t *testing.T) {
	mr, _, tr := setup(t)
	tr.Start()
	require.NoError(t, tr.Open(context.Background()))
	require.Eventually(t, func() bool { return len(mr.PubSubChannels("")) == 1 }, waitFor, 10*time.Millisecond)

	require.NoError(t, tr.Close())
	assert.Equal(t, transport.StateStopped, tr.State())
	assert.ErrorIs(t, tr.Open(context.Background()), ErrClosed)
	require.Eventually(t, func() bool { return len(mr.PubSubChannels("")) == 0 }, waitFor, 10*time.Millisecond)
}

func TestOpenFailsWhenServerDown(t *testing.T) {
	mr, _, tr := setup(t)
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, tr.Open(ctx))
	assert.False(t, tr.IsConnected())
}
