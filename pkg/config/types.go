package config

// ==================== 基础配置 ====================

// AppConfig 应用基础配置
type AppConfig struct {
	Env    string `yaml:"env" mapstructure:"env"`
	Name   string `yaml:"name" mapstructure:"name"`
	NodeID string `yaml:"node_id" mapstructure:"node_id"`
}

// LogConfig 日志配置
type LogConfig struct {
	Format       string `yaml:"format" mapstructure:"format"`
	Level        string `yaml:"level" mapstructure:"level"`
	ReportCaller bool   `yaml:"report_caller" mapstructure:"report_caller"`
}

// LogFileConfig 日志文件轮转配置，Dir 为空时只输出到 stdout
type LogFileConfig struct {
	Dir          string   `yaml:"dir" mapstructure:"dir"`
	MaxAge       Duration `yaml:"max_age" mapstructure:"max_age"`
	RotationTime Duration `yaml:"rotation_time" mapstructure:"rotation_time"`
}

// ==================== 基础设施配置 ====================

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Db       int    `yaml:"db" mapstructure:"db"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers" mapstructure:"brokers"`
	ConsumerGroup string   `yaml:"consumer_group" mapstructure:"consumer_group"`
	ClientID      string   `yaml:"client_id" mapstructure:"client_id"`
	Username      string   `yaml:"username" mapstructure:"username"`
	Password      string   `yaml:"password" mapstructure:"password"`
	SASLMechanism string   `yaml:"sasl_mechanism" mapstructure:"sasl_mechanism"`
	TLSEnabled    bool     `yaml:"tls_enabled" mapstructure:"tls_enabled"`
}

// NATSConfig NATS 连接配置
type NATSConfig struct {
	URL           string   `yaml:"url" mapstructure:"url"`
	Name          string   `yaml:"name" mapstructure:"name"`
	Token         string   `yaml:"token" mapstructure:"token"`
	MaxReconnects int      `yaml:"max_reconnects" mapstructure:"max_reconnects"`
	ReconnectWait Duration `yaml:"reconnect_wait" mapstructure:"reconnect_wait"`
}

// ==================== 通道配置 ====================

// ChannelConfig 选择绑定方式以及收发的 topic / subject
// Kind: ws | grpc | redis | kafka | nats
type ChannelConfig struct {
	Kind string `yaml:"kind" mapstructure:"kind"`
	In   string `yaml:"in" mapstructure:"in"`   // 订阅的 channel / topic / subject
	Out  string `yaml:"out" mapstructure:"out"` // 发布的 channel / topic / subject
}

// SocketConfig WebSocket 客户端配置
type SocketConfig struct {
	URL          string   `yaml:"url" mapstructure:"url"`
	Token        string   `yaml:"token" mapstructure:"token"`
	WriteTimeout Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// SocketServerConfig WebSocket 回显服务配置
type SocketServerConfig struct {
	ListenAddr        string `yaml:"listen_addr" mapstructure:"listen_addr"`
	Path              string `yaml:"path" mapstructure:"path"`
	EchoPrefix        string `yaml:"echo_prefix" mapstructure:"echo_prefix"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms" mapstructure:"heartbeat_interval_ms"` // 毫秒，<=0 关闭心跳
	RequireAuth       bool   `yaml:"require_auth" mapstructure:"require_auth"`
}

// GRPCConfig gRPC 通道配置，客户端和服务端共用
type GRPCConfig struct {
	Address     string            `yaml:"address" mapstructure:"address"`         // 客户端拨号地址
	ListenAddr  string            `yaml:"listen_addr" mapstructure:"listen_addr"` // 服务端监听地址，为空不启动
	Insecure    bool              `yaml:"insecure" mapstructure:"insecure"`
	Headers     map[string]string `yaml:"headers" mapstructure:"headers"`
	DialTimeout Duration          `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	TLSCertFile string            `yaml:"tls_cert_file" mapstructure:"tls_cert_file"`
	TLSKeyFile  string            `yaml:"tls_key_file" mapstructure:"tls_key_file"`
}

// ==================== 认证配置 ====================

// AuthConfig 通道 JWT 配置，SecretKey 为空表示不校验
type AuthConfig struct {
	SecretKey string   `yaml:"secret_key" mapstructure:"secret_key"`
	Issuer    string   `yaml:"issuer" mapstructure:"issuer"`
	TokenTTL  Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
	ClockSkew Duration `yaml:"clock_skew" mapstructure:"clock_skew"`
}

// ==================== 可观测性配置 ====================

// TracingConfig 分布式追踪配置
type TracingConfig struct {
	Exporter     string            `yaml:"exporter" mapstructure:"exporter"`
	Endpoint     string            `yaml:"endpoint" mapstructure:"endpoint"`
	ServiceName  string            `yaml:"service_name" mapstructure:"service_name"`
	Insecure     bool              `yaml:"insecure" mapstructure:"insecure"`
	Headers      map[string]string `yaml:"headers" mapstructure:"headers"`
	SampleRatio  float64           `yaml:"sample_ratio" mapstructure:"sample_ratio"`
	ResourceTags map[string]string `yaml:"resource_tags" mapstructure:"resource_tags"`
}

// MetricsConfig 指标暴露配置
type MetricsConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// ==================== 汇总 ====================

// Config transportctl 使用的完整配置
type Config struct {
	App          AppConfig          `yaml:"app" mapstructure:"app"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	LogFile      LogFileConfig      `yaml:"log_file" mapstructure:"log_file"`
	Redis        RedisConfig        `yaml:"redis" mapstructure:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka" mapstructure:"kafka"`
	NATS         NATSConfig         `yaml:"nats" mapstructure:"nats"`
	Channel      ChannelConfig      `yaml:"channel" mapstructure:"channel"`
	Socket       SocketConfig       `yaml:"socket" mapstructure:"socket"`
	SocketServer SocketServerConfig `yaml:"socket_server" mapstructure:"socket_server"`
	GRPC         GRPCConfig         `yaml:"grpc" mapstructure:"grpc"`
	Auth         AuthConfig         `yaml:"auth" mapstructure:"auth"`
	Tracing      TracingConfig      `yaml:"tracing" mapstructure:"tracing"`
	Metrics      MetricsConfig      `yaml:"metrics" mapstructure:"metrics"`
}
