package middleware

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
)

// Logging writes one debug line per message. A nil entry uses the standard
// logger.
func Logging(entry *log.Entry) message.Middleware {
	if entry == nil {
		entry = log.Component("middleware")
	}
	return func(msg message.Message, dir message.Direction) message.Result {
		entry.WithFields(log.Fields{
			"direction": dir.String(),
			"type":      msg.Type,
		}).Debug("transport message")
		return message.Pass(msg)
	}
}

// Tracing records a zero-length span per message, named after the direction.
func Tracing(tracer trace.Tracer) message.Middleware {
	return func(msg message.Message, dir message.Direction) message.Result {
		kind := trace.SpanKindProducer
		if dir == message.Inbound {
			kind = trace.SpanKindConsumer
		}
		_, span := tracer.Start(context.Background(), "transport."+dir.String(),
			trace.WithSpanKind(kind),
			trace.WithAttributes(
				attribute.String("transport.direction", dir.String()),
				attribute.String("message.type", msg.Type),
			),
		)
		if message.IsError(msg) {
			span.SetAttributes(attribute.Bool("message.error", true))
		}
		span.End()
		return message.Pass(msg)
	}
}

// MessageCounter counts messages per direction and type.
type MessageCounter struct {
	total *prometheus.CounterVec
}

// NewMessageCounter registers the counter with reg. A nil reg uses the
// default registerer. Registering twice with the same namespace reuses the
// existing collector.
func NewMessageCounter(reg prometheus.Registerer, namespace string) (*MessageCounter, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	total := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "messages_total",
			Help:      "Messages that passed the metrics stage, by direction and type",
		},
		[]string{"direction", "type"},
	)
	if err := reg.Register(total); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		total = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return &MessageCounter{total: total}, nil
}

// Middleware returns the counting stage.
func (c *MessageCounter) Middleware() message.Middleware {
	return func(msg message.Message, dir message.Direction) message.Result {
		c.total.WithLabelValues(dir.String(), msg.Type).Inc()
		return message.Pass(msg)
	}
}

// Collector exposes the underlying vector, mainly for tests.
func (c *MessageCounter) Collector() *prometheus.CounterVec {
	return c.total
}

// Metrics is shorthand for NewMessageCounter(...).Middleware().
func Metrics(reg prometheus.Registerer, namespace string) (message.Middleware, error) {
	c, err := NewMessageCounter(reg, namespace)
	if err != nil {
		return nil, err
	}
	return c.Middleware(), nil
}
