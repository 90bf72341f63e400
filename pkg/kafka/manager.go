// Package kafka owns the shared sarama producer and consumer configuration
// used by the Kafka channel binding.
package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
)

// ErrNilManager is returned by methods called on a nil *Manager.
var ErrNilManager = errors.New("kafka manager nil")

// Observer is an optional hook for publish and consume latency and errors.
type Observer interface {
	ObservePublish(topic string, duration time.Duration, err error)
	ObserveConsume(topic, group, messageType string, duration time.Duration, err error)
}

// Manager manages a shared Kafka sync producer and a base sarama config for
// consumer groups.
type Manager struct {
	cfg      Config
	producer sarama.SyncProducer
	baseConf *sarama.Config

	observerMu sync.RWMutex
	observer   Observer

	closeOnce sync.Once
}

// NewManager dials the brokers and builds the shared producer.
func NewManager(cfg Config) (*Manager, error) {
	base, err := cfg.sarama()
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, base)
	if err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, producer: producer, baseConf: base}, nil
}

// NewManagerWithProducer wraps an existing producer, e.g. sarama/mocks.
func NewManagerWithProducer(cfg Config, producer sarama.SyncProducer) *Manager {
	base, err := cfg.sarama()
	if err != nil {
		base = sarama.NewConfig()
	}
	return &Manager{cfg: cfg, producer: producer, baseConf: base}
}

// SetObserver installs or replaces the observer.
func (m *Manager) SetObserver(observer Observer) {
	if m == nil {
		return
	}
	m.observerMu.Lock()
	m.observer = observer
	m.observerMu.Unlock()
}

func (m *Manager) observerSnapshot() Observer {
	m.observerMu.RLock()
	defer m.observerMu.RUnlock()
	return m.observer
}

// Publish sends value to topic, injecting the trace context of ctx into the
// record headers.
func (m *Manager) Publish(ctx context.Context, topic string, key, value []byte) (err error) {
	if m == nil {
		return ErrNilManager
	}
	if topic == "" {
		return errors.New("kafka topic empty")
	}
	start := time.Now()
	defer func() {
		if observer := m.observerSnapshot(); observer != nil {
			observer.ObservePublish(topic, time.Since(start), err)
		}
	}()
	if err = ctx.Err(); err != nil {
		return err
	}

	var headers headerCarrier
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	msg := &sarama.ProducerMessage{Topic: topic, Headers: headers}
	if len(key) > 0 {
		msg.Key = sarama.ByteEncoder(key)
	}
	if len(value) > 0 {
		msg.Value = sarama.ByteEncoder(value)
	}
	_, _, err = m.producer.SendMessage(msg)
	return err
}

// ObserveConsume forwards to the observer if installed.
func (m *Manager) ObserveConsume(topic, group, messageType string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if observer := m.observerSnapshot(); observer != nil {
		observer.ObserveConsume(topic, group, messageType, duration, err)
	}
}

// NewConsumerGroup returns a consumer group using the shared base config.
func (m *Manager) NewConsumerGroup(group string) (sarama.ConsumerGroup, error) {
	if m == nil {
		return nil, ErrNilManager
	}
	if group == "" {
		return nil, errors.New("kafka consumer group empty")
	}
	cfg := *m.baseConf
	return sarama.NewConsumerGroup(m.cfg.Brokers, group, &cfg)
}

// Close shuts down the producer.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	var err error
	m.closeOnce.Do(func() {
		if m.producer != nil {
			err = m.producer.Close()
		}
	})
	return err
}
