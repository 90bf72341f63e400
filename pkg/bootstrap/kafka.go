package bootstrap

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Goden-Gun/transport-core/pkg/config"
	"github.com/Goden-Gun/transport-core/pkg/kafka"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
)

// InitKafka 初始化共享 Kafka Manager，reg 不为空时挂载延迟指标
func InitKafka(cfg config.KafkaConfig, reg prometheus.Registerer, namespace string) (*kafka.Manager, error) {
	m, err := kafka.NewManager(kafka.FromConfig(cfg))
	if err != nil {
		log.Errorf("kafka初始化失败: %v", err)
		return nil, err
	}
	if reg != nil {
		observer, err := kafka.NewMetricsObserver(reg, namespace)
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		m.SetObserver(observer)
	}
	log.WithField("brokers", cfg.Brokers).Info("kafka initialized successfully")
	return m, nil
}
