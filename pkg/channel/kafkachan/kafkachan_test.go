package kafkachan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Goden-Gun/transport-core/pkg/channel"
	"github.com/Goden-Gun/transport-core/pkg/kafka"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
	"github.com/Goden-Gun/transport-core/pkg/transport"
)

const waitFor = 2 * time.Second

// fakeGroup runs one generation per Consume call. A generation ends when
// rebalance is signalled; the next one starts once proceed is signalled.
type fakeGroup struct {
	records   chan *sarama.ConsumerMessage
	rebalance chan struct{}
	proceed   chan struct{}
	errs      chan error

	mu         sync.Mutex
	marked     []int64
	generation int32
	closeOnce  sync.Once
}

func newFakeGroup() *fakeGroup {
	return &fakeGroup{
		records:   make(chan *sarama.ConsumerMessage, 16),
		rebalance: make(chan struct{}),
		proceed:   make(chan struct{}),
		errs:      make(chan error),
	}
}

func (g *fakeGroup) Consume(ctx context.Context, topics []string, h sarama.ConsumerGroupHandler) error {
	g.mu.Lock()
	g.generation++
	gen := g.generation
	g.mu.Unlock()

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess := &fakeSession{ctx: sessCtx, group: g, generation: gen}
	if err := h.Setup(sess); err != nil {
		return err
	}
	go func() {
		select {
		case <-g.rebalance:
			cancel()
		case <-sessCtx.Done():
		}
	}()
	err := h.ConsumeClaim(sess, &fakeClaim{topic: topics[0], msgs: g.records})
	_ = h.Cleanup(sess)
	if ctx.Err() == nil {
		select {
		case <-g.proceed:
		case <-ctx.Done():
		}
	}
	return err
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }
func (g *fakeGroup) Close() error {
	g.closeOnce.Do(func() { close(g.errs) })
	return nil
}
func (g *fakeGroup) Pause(map[string][]int32)  {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll()                 {}
func (g *fakeGroup) ResumeAll()                {}

func (g *fakeGroup) markedOffsets() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int64(nil), g.marked...)
}

type fakeSession struct {
	ctx        context.Context
	group      *fakeGroup
	generation int32
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member" }
func (s *fakeSession) GenerationID() int32                      { return s.generation }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.group.mu.Lock()
	s.group.marked = append(s.group.marked, msg.Offset)
	s.group.mu.Unlock()
}

type fakeClaim struct {
	topic string
	msgs  chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return c.topic }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func setup(t *testing.T) (*fakeGroup, *mocks.SyncProducer, *Transport) {
	t.Helper()
	group := newFakeGroup()
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	manager := kafka.NewManagerWithProducer(kafka.Config{Brokers: []string{"b:9092"}}, producer)
	tr := New(manager, "in", "out", "relay",
		WithConsumerGroup(group),
		WithTransportOptions(transport.WithLogger(log.Discard())),
	)
	t.Cleanup(func() {
		_ = tr.Close()
		_ = manager.Close()
	})
	return group, producer, tr
}

func record(t *testing.T, offset int64, msg message.Message) *sarama.ConsumerMessage {
	t.Helper()
	data, err := channel.Encode(msg)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: "in", Offset: offset, Key: []byte(msg.Type), Value: data}
}

func TestGenerationSetupConnectsAndFlushes(t *testing.T) {
	_, producer, tr := setup(t)
	tr.Start()
	tr.Send(message.New("early", nil))
	require.Equal(t, 1, tr.Pending())

	keys := make(chan string, 1)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		k, _ := m.Key.Encode()
		keys <- string(k)
		return nil
	})
	require.NoError(t, tr.Open(context.Background()))
	select {
	case key := <-keys:
		assert.Equal(t, "early", key)
	case <-time.After(waitFor):
		t.Fatal("queued message not produced")
	}
	assert.True(t, tr.IsConnected())
	assert.Zero(t, tr.Pending())
}

func TestRecordsAreDeliveredAndMarked(t *testing.T) {
	group, _, tr := setup(t)
	tr.Start()
	got := make(chan message.Message, 4)
	tr.OnMessage(func(m message.Message) { got <- m })
	require.NoError(t, tr.Open(context.Background()))

	group.records <- record(t, 7, message.New("ping", "x"))
	group.records <- &sarama.ConsumerMessage{Topic: "in", Offset: 8, Value: []byte("garbage")}

	first := <-got
	assert.Equal(t, message.New("ping", "x"), first)
	select {
	case second := <-got:
		assert.Equal(t, message.TypeError, second.Type)
	case <-time.After(waitFor):
		t.Fatal("decode failure not reported")
	}
	require.Eventually(t, func() bool { return len(group.markedOffsets()) == 2 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, []int64{7, 8}, group.markedOffsets())
}

func TestRebalanceDisconnectsUntilNextGeneration(t *testing.T) {
	group, producer, tr := setup(t)
	tr.Start()
	require.NoError(t, tr.Open(context.Background()))
	require.Eventually(t, tr.IsConnected, waitFor, 10*time.Millisecond)

	group.rebalance <- struct{}{}
	require.Eventually(t, func() bool { return !tr.IsConnected() }, waitFor, 10*time.Millisecond)
	tr.Send(message.New("during-rebalance", nil))
	assert.Equal(t, 1, tr.Pending())

	producer.ExpectSendMessageAndSucceed()
	group.proceed <- struct{}{}
	require.Eventually(t, func() bool { return tr.IsConnected() && tr.Pending() == 0 }, waitFor, 10*time.Millisecond)
}

func TestCloseStopsConsuming(t *testing.T) {
	_, _, tr := setup(t)
	tr.Start()
	require.NoError(t, tr.Open(context.Background()))
	require.Eventually(t, tr.IsConnected, waitFor, 10*time.Millisecond)

	require.NoError(t, tr.Close())
	assert.Equal(t, transport.StateStopped, tr.State())
	assert.ErrorIs(t, tr.Open(context.Background()), ErrClosed)
}

func TestCloseFromSubscriber(t *testing.T) {
	group, _, tr := setup(t)
	tr.Start()
	closed := make(chan error, 1)
	tr.OnType("bye", func(message.Message) { closed <- tr.Close() })
	require.NoError(t, tr.Open(context.Background()))

	group.records <- record(t, 1, message.New("bye", nil))
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("close from subscriber did not return")
	}
	assert.Equal(t, transport.StateStopped, tr.State())
	assert.ErrorIs(t, tr.Open(context.Background()), ErrClosed)
}

func TestResumeAfterLeavingGroupDoesNotProduce(t *testing.T) {
	_, _, tr := setup(t)
	tr.Start()
	require.NoError(t, tr.Open(context.Background()))
	require.Eventually(t, tr.IsConnected, waitFor, 10*time.Millisecond)

	tr.Pause()
	tr.Send(message.New("held", nil))
	require.Equal(t, 1, tr.Pending())
	tr.Disconnect()

	// the mock producer has no expectation, so a produce fails the test
	tr.Resume()
	assert.Zero(t, tr.Pending())
}

func TestOpenWithoutBrokersFails(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	manager := kafka.NewManagerWithProducer(kafka.Config{}, producer)
	tr := New(manager, "in", "out", "", WithTransportOptions(transport.WithLogger(log.Discard())))
	assert.Error(t, tr.Open(context.Background()))
	require.NoError(t, manager.Close())
}
