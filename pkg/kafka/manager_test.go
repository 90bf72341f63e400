package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/Goden-Gun/transport-core/pkg/config"
)

type recordingObserver struct {
	published []string
	errs      []error
}

func (o *recordingObserver) ObservePublish(topic string, _ time.Duration, err error) {
	o.published = append(o.published, topic)
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) ObserveConsume(string, string, string, time.Duration, error) {}

func TestPublishSendsRecordWithTraceHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	m := NewManagerWithProducer(Config{Brokers: []string{"b:9092"}}, producer)
	obs := &recordingObserver{}
	m.SetObserver(obs)

	var sent *sarama.ProducerMessage
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		sent = msg
		return nil
	})

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	require.NoError(t, m.Publish(ctx, "out", []byte("ping"), []byte(`{"type":"ping"}`)))
	require.NotNil(t, sent)
	assert.Equal(t, "out", sent.Topic)
	key, _ := sent.Key.Encode()
	assert.Equal(t, "ping", string(key))

	headers := make([]*sarama.RecordHeader, 0, len(sent.Headers))
	for i := range sent.Headers {
		headers = append(headers, &sent.Headers[i])
	}
	restored := trace.SpanContextFromContext(ExtractContext(context.Background(), headers))
	assert.Equal(t, span.SpanContext().TraceID(), restored.TraceID())

	assert.Equal(t, []string{"out"}, obs.published)
	assert.NoError(t, obs.errs[0])
	require.NoError(t, m.Close())
}

func TestPublishReportsFailures(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	m := NewManagerWithProducer(Config{Brokers: []string{"b:9092"}}, producer)
	obs := &recordingObserver{}
	m.SetObserver(obs)

	boom := errors.New("broker down")
	producer.ExpectSendMessageAndFail(boom)
	assert.ErrorIs(t, m.Publish(context.Background(), "out", nil, []byte("x")), boom)
	assert.ErrorIs(t, obs.errs[0], boom)

	assert.Error(t, m.Publish(context.Background(), "", nil, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Publish(ctx, "out", nil, nil), context.Canceled)
	require.NoError(t, m.Close())
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.ErrorIs(t, m.Publish(context.Background(), "t", nil, nil), ErrNilManager)
	_, err := m.NewConsumerGroup("g")
	assert.ErrorIs(t, err, ErrNilManager)
	assert.NoError(t, m.Close())
	m.ObserveConsume("t", "g", "x", 0, nil)
}

func TestSaramaConfig(t *testing.T) {
	_, err := Config{}.sarama()
	assert.Error(t, err)

	c, err := Config{
		Brokers:       []string{"b:9092"},
		ClientID:      "relay",
		Username:      "u",
		Password:      "p",
		SASLMechanism: "scram-sha-512",
		TLSEnabled:    true,
		RequiredAcks:  "one",
	}.sarama()
	require.NoError(t, err)
	assert.Equal(t, "relay", c.ClientID)
	assert.True(t, c.Net.SASL.Enable)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA512), c.Net.SASL.Mechanism)
	assert.True(t, c.Net.TLS.Enable)
	assert.Equal(t, sarama.WaitForLocal, c.Producer.RequiredAcks)
	assert.Equal(t, 3, c.Producer.Retry.Max)
	require.NotNil(t, c.Net.SASL.SCRAMClientGeneratorFunc)
	assert.NoError(t, c.Net.SASL.SCRAMClientGeneratorFunc().Begin("u", "p", ""))
}

func TestFromConfig(t *testing.T) {
	c := FromConfig(config.KafkaConfig{Brokers: []string{"x"}, ClientID: "id", TLSEnabled: true})
	assert.Equal(t, Config{Brokers: []string{"x"}, ClientID: "id", TLSEnabled: true}, c)
}

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewMetricsObserver(reg, "test")
	require.NoError(t, err)
	o.ObservePublish("out", time.Millisecond, nil)
	o.ObserveConsume("in", "g", "ping", time.Millisecond, errors.New("x"))

	again, err := NewMetricsObserver(reg, "test")
	require.NoError(t, err)
	again.ObservePublish("out", time.Millisecond, nil)

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "test_kafka_publish_seconds", "test_kafka_consume_seconds"))
}
