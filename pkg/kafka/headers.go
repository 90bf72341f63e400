package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
)

// headerCarrier implements propagation.TextMapCarrier over producer headers.
type headerCarrier []sarama.RecordHeader

func (c *headerCarrier) Get(key string) string {
	for _, h := range *c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	*c = append(*c, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c))
	for _, h := range *c {
		keys = append(keys, string(h.Key))
	}
	return keys
}

// ExtractContext restores the trace context a producer injected into the
// record headers.
func ExtractContext(ctx context.Context, headers []*sarama.RecordHeader) context.Context {
	carrier := make(headerCarrier, 0, len(headers))
	for _, h := range headers {
		if h != nil {
			carrier = append(carrier, *h)
		}
	}
	return otel.GetTextMapPropagator().Extract(ctx, &carrier)
}
