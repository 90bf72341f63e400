// Package kafkachan binds a transport to Kafka: a consumer group reads the
// inbound topic and the shared producer writes the outbound topic, keyed by
// message type.
package kafkachan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/Goden-Gun/transport-core/pkg/channel"
	"github.com/Goden-Gun/transport-core/pkg/kafka"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
	"github.com/Goden-Gun/transport-core/pkg/transport"
)

const (
	// DefaultPublishTimeout bounds a single produce call.
	DefaultPublishTimeout = 10 * time.Second
	maxRetryDelay         = 5 * time.Second
)

// ErrClosed is returned by Open after Close.
var ErrClosed = errors.New("kafka transport closed")

// Option customises a Transport.
type Option func(*Transport)

// WithConsumerGroup injects the consumer group instead of building one from
// the manager on Open.
func WithConsumerGroup(g sarama.ConsumerGroup) Option {
	return func(t *Transport) {
		t.group = g
	}
}

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

// Transport consumes In as groupID and produces to Out.
type Transport struct {
	*transport.Base

	manager        *kafka.Manager
	in, out        string
	groupID        string
	publishTimeout time.Duration
	baseOpts       []transport.Option

	mu      sync.Mutex
	group   sarama.ConsumerGroup
	cancel  context.CancelFunc
	running bool
	live    bool
	closed  bool

	readers channel.Readers
	log     *log.Entry
}

var _ transport.Transport = (*Transport)(nil)

// New creates a Kafka transport. Nothing is consumed until Open.
func New(manager *kafka.Manager, in, out, groupID string, opts ...Option) *Transport {
	t := &Transport{
		manager:        manager,
		in:             in,
		out:            out,
		groupID:        groupID,
		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.Base = transport.New(t.baseOpts...)
	t.log = t.Base.Logger().WithFields(log.Fields{log.ComponentKey: "kafka", "in": in, "out": out, "group": groupID})
	return t
}

// Open joins the consumer group in the background. The transport connects
// when a group generation is set up and disconnects when it is cleaned up,
// so every rebalance flushes the queue into the new generation.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.running {
		return nil
	}
	if t.group == nil {
		g, err := t.manager.NewConsumerGroup(t.groupID)
		if err != nil {
			return err
		}
		t.group = g
		t.readers.Go(func() { t.drainErrors(g) })
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.running = true
	group := t.group
	t.readers.Go(func() { t.consumeLoop(loopCtx, group) })
	t.log.Info("kafka consumer started")
	return nil
}

// Disconnect marks the transport disconnected and leaves the group.
func (t *Transport) Disconnect() {
	t.Base.Disconnect()
	t.release()
}

// Stop disarms the transport and leaves the group.
func (t *Transport) Stop() {
	t.Base.Stop()
	t.release()
}

// Close stops the transport, closes the consumer group and waits for the
// background goroutines. The manager stays open. Called from a subscriber,
// the group is closed in the background once the record being delivered
// has been handled.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	group := t.group
	t.mu.Unlock()
	t.Stop()
	if group == nil {
		t.readers.Wait()
		return nil
	}
	if t.readers.Delivering() {
		// the group waits for its claims, one of which is our caller
		go t.closeGroup(group)
		return nil
	}
	err := group.Close()
	t.readers.Wait()
	return err
}

func (t *Transport) closeGroup(group sarama.ConsumerGroup) {
	if err := group.Close(); err != nil {
		t.log.WithError(err).Warn("kafka consumer group close failed")
	}
}

// dispatch produces msg only while a group generation is live.
func (t *Transport) dispatch(msg message.Message) {
	if !t.isLive() {
		return
	}
	data, err := channel.Encode(msg)
	if err != nil {
		t.log.WithError(err).Error("drop outbound message")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.publishTimeout)
	defer cancel()
	if err := t.manager.Publish(ctx, t.out, []byte(msg.Type), data); err != nil {
		t.log.WithError(err).WithField("type", msg.Type).Warn("kafka publish failed")
	}
}

func (t *Transport) consumeLoop(ctx context.Context, group sarama.ConsumerGroup) {
	h := &handler{t: t}
	delay := 100 * time.Millisecond
	for {
		err := group.Consume(ctx, []string{t.in}, h)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return
		}
		if err != nil {
			t.log.WithError(err).Warn("kafka consume failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, maxRetryDelay)
			continue
		}
		delay = 100 * time.Millisecond
	}
}

func (t *Transport) drainErrors(group sarama.ConsumerGroup) {
	for err := range group.Errors() {
		t.log.WithError(err).Warn("kafka consumer error")
	}
}

func (t *Transport) release() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.running = false
	t.live = false
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (t *Transport) setLive(live bool) {
	t.mu.Lock()
	t.live = live && t.running
	t.mu.Unlock()
}

func (t *Transport) isLive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// handler maps group generations onto the transport lifecycle.
type handler struct {
	t *Transport
}

func (h *handler) Setup(sess sarama.ConsumerGroupSession) error {
	h.t.log.WithField("generation", sess.GenerationID()).Info("kafka generation set up")
	h.t.setLive(true)
	h.t.Base.Connect(h.t.dispatch)
	return nil
}

func (h *handler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.t.log.WithField("generation", sess.GenerationID()).Info("kafka generation cleaned up")
	h.t.setLive(false)
	h.t.Base.Disconnect()
	return nil
}

func (h *handler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case rec, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			start := time.Now()
			h.t.readers.Deliver(h.t, rec.Value, log.TraceEntry(h.t.log, kafka.ExtractContext(sess.Context(), rec.Headers)))
			sess.MarkMessage(rec, "")
			h.t.manager.ObserveConsume(rec.Topic, h.t.groupID, string(rec.Key), time.Since(start), nil)
		case <-sess.Context().Done():
			return nil
		}
	}
}
