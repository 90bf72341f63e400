package kafka

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsObserver records publish and consume latency in Prometheus.
type MetricsObserver struct {
	publish *prometheus.HistogramVec
	consume *prometheus.HistogramVec
}

var _ Observer = (*MetricsObserver)(nil)

// NewMetricsObserver registers the kafka histograms under namespace.
func NewMetricsObserver(reg prometheus.Registerer, namespace string) (*MetricsObserver, error) {
	o := &MetricsObserver{
		publish: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "kafka",
			Name:      "publish_seconds",
			Help:      "Kafka publish latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic", "result"}),
		consume: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "kafka",
			Name:      "consume_seconds",
			Help:      "Kafka record handling latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic", "group", "type", "result"}),
	}
	var err error
	if o.publish, err = register(reg, o.publish); err != nil {
		return nil, err
	}
	if o.consume, err = register(reg, o.consume); err != nil {
		return nil, err
	}
	return o, nil
}

// register returns the already registered vector when one exists.
func register(reg prometheus.Registerer, vec *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}

func (o *MetricsObserver) ObservePublish(topic string, d time.Duration, err error) {
	o.publish.WithLabelValues(topic, result(err)).Observe(d.Seconds())
}

func (o *MetricsObserver) ObserveConsume(topic, group, messageType string, d time.Duration, err error) {
	o.consume.WithLabelValues(topic, group, messageType, result(err)).Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
