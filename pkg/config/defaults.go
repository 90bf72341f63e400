package config

// ApplyDefaults 为所有分区填充默认值
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "transportctl"
	}
	c.Log.ApplyDefaults()
	c.LogFile.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.NATS.ApplyDefaults()
	c.Channel.ApplyDefaults()
	c.Socket.ApplyDefaults()
	c.SocketServer.ApplyDefaults()
	c.GRPC.ApplyDefaults()
	c.Auth.ApplyDefaults()
	c.Tracing.ApplyDefaults()
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.App.Name
	}
	c.Metrics.ApplyDefaults()
}

// ==================== LogConfig 默认值 ====================

// ApplyDefaults 应用日志配置默认值
func (l *LogConfig) ApplyDefaults() {
	if l.Format == "" {
		l.Format = "text"
	}
	if l.Level == "" {
		l.Level = "info"
	}
}

// ApplyDefaults 应用日志轮转默认值：保留 7 天，按天切分
func (l *LogFileConfig) ApplyDefaults() {
	if l.MaxAge <= 0 {
		l.MaxAge = 7 * 24 * 3600
	}
	if l.RotationTime <= 0 {
		l.RotationTime = 24 * 3600
	}
}

// ==================== 基础设施默认值 ====================

// ApplyDefaults 应用 Redis 配置默认值
func (r *RedisConfig) ApplyDefaults() {
	if r.Addr == "" {
		r.Addr = "127.0.0.1:6379"
	}
}

// ApplyDefaults 应用 NATS 配置默认值
func (n *NATSConfig) ApplyDefaults() {
	if n.URL == "" {
		n.URL = "nats://127.0.0.1:4222"
	}
	if n.MaxReconnects == 0 {
		n.MaxReconnects = -1 // 无限重连
	}
	if n.ReconnectWait <= 0 {
		n.ReconnectWait = 2
	}
}

// ==================== 通道默认值 ====================

// ApplyDefaults 应用通道默认值
func (c *ChannelConfig) ApplyDefaults() {
	if c.Kind == "" {
		c.Kind = "ws"
	}
	if c.In == "" {
		c.In = "transport.in"
	}
	if c.Out == "" {
		c.Out = "transport.out"
	}
}

// ApplyDefaults 应用 WebSocket 客户端默认值
func (s *SocketConfig) ApplyDefaults() {
	if s.URL == "" {
		s.URL = "ws://localhost:8080"
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = 10
	}
}

// ApplyDefaults 应用回显服务默认值，与参考测试服务保持一致
func (s *SocketServerConfig) ApplyDefaults() {
	if s.ListenAddr == "" {
		s.ListenAddr = ":8080"
	}
	if s.Path == "" {
		s.Path = "/"
	}
	if s.HeartbeatInterval == 0 {
		s.HeartbeatInterval = 300
	}
}

// ApplyDefaults 应用 gRPC 配置默认值
func (g *GRPCConfig) ApplyDefaults() {
	if g.Address == "" {
		g.Address = "127.0.0.1:9443"
	}
	if g.DialTimeout <= 0 {
		g.DialTimeout = 5
	}
}

// ApplyDefaults 应用认证配置默认值
func (a *AuthConfig) ApplyDefaults() {
	if a.TokenTTL <= 0 {
		a.TokenTTL = 24 * 3600
	}
}

// ==================== 可观测性默认值 ====================

// ApplyDefaults 应用 Tracing 配置默认值
func (t *TracingConfig) ApplyDefaults() {
	if t.Exporter == "" {
		t.Exporter = "stdout"
	}
	if t.SampleRatio <= 0 {
		t.SampleRatio = 1.0
	}
}

// ApplyDefaults 应用 Metrics 配置默认值
func (m *MetricsConfig) ApplyDefaults() {
	if m.Addr == "" {
		m.Addr = ":9090"
	}
	if m.Namespace == "" {
		m.Namespace = "transport"
	}
}
