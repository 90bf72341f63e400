package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
app:
  name: relay
log:
  level: debug
channel:
  kind: nats
  in: jobs.in
redis:
  password: from-file
socket_server:
  echo_prefix: "Echo: "
grpc:
  dial_timeout: 2m
auth:
  token_ttl: "90"
kafka:
  brokers: [a:9092, b:9092]
`

func writeConfig(t *testing.T, env, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config_"+env+".yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadMergesFileEnvAndDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "unit")
	dir := writeConfig(t, "unit", sampleYAML)

	cfg, err := Load(LoadOptions{ConfigPath: dir, EnvPrefix: DefaultEnvPrefix})
	require.NoError(t, err)

	assert.Equal(t, "unit", cfg.App.Env)
	assert.Equal(t, "relay", cfg.App.Name)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "nats", cfg.Channel.Kind)
	assert.Equal(t, "jobs.in", cfg.Channel.In)
	assert.Equal(t, "Echo: ", cfg.SocketServer.EchoPrefix)
	assert.Equal(t, 300, cfg.SocketServer.HeartbeatInterval)
	assert.Equal(t, 2*time.Minute, cfg.GRPC.DialTimeout.Duration())
	assert.Equal(t, int64(90), cfg.Auth.TokenTTL.Seconds())
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "from-file", cfg.Redis.Password)
	assert.Equal(t, "relay", cfg.Tracing.ServiceName)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoadEnvOverridesFileValue(t *testing.T) {
	t.Setenv("APP_ENV", "unit")
	t.Setenv("TRANSPORT_CHANNEL_IN", "override")
	dir := writeConfig(t, "unit", sampleYAML)

	cfg, err := Load(LoadOptions{ConfigPath: dir, EnvPrefix: DefaultEnvPrefix})
	require.NoError(t, err)
	assert.Equal(t, "override", cfg.Channel.In)
}

func TestLoadInjectsSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "unit")
	secretFile := filepath.Join(t.TempDir(), "auth-secret")
	require.NoError(t, os.WriteFile(secretFile, []byte("s3cret\n"), 0o600))
	t.Setenv("AUTH_SECRET_FILE", secretFile)
	t.Setenv("REDIS_PASSWORD", "from-env")
	dir := writeConfig(t, "unit", sampleYAML)

	cfg, err := Load(LoadOptions{ConfigPath: dir})
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Auth.SecretKey)
	assert.Equal(t, "from-env", cfg.Redis.Password)
}

func TestLoadWithoutConfigFile(t *testing.T) {
	t.Setenv("APP_ENV", "missing")
	dir := t.TempDir()

	_, err := Load(LoadOptions{ConfigPath: dir})
	require.Error(t, err)

	cfg, err := Load(LoadOptions{ConfigPath: dir, AllowNoConfig: true})
	require.NoError(t, err)
	assert.Equal(t, "ws", cfg.Channel.Kind)
	assert.Equal(t, "ws://localhost:8080", cfg.Socket.URL)
}

func TestRequiredSecret(t *testing.T) {
	t.Setenv("APP_ENV", "unit")
	dir := writeConfig(t, "unit", sampleYAML)
	var target string
	err := LoadConfigWithSecrets(&struct{}{}, []SecretDefinition{
		{Name: "TRANSPORT_TEST_MISSING", Target: &target, Required: true},
	}, LoadOptions{ConfigPath: dir})
	var notFound *SecretNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "TRANSPORT_TEST_MISSING", notFound.Name)
}

func TestDurationHookRejectsGarbage(t *testing.T) {
	t.Setenv("APP_ENV", "unit")
	dir := writeConfig(t, "unit", "grpc:\n  dial_timeout: soon\n")
	_, err := Load(LoadOptions{ConfigPath: dir})
	assert.Error(t, err)
}

func TestGetNodeID(t *testing.T) {
	t.Setenv("HOSTNAME", "host-1")
	t.Setenv("NODE_ID", "")
	assert.Equal(t, "host-1", GetNodeID("NODE_ID"))
	t.Setenv("NODE_ID", "node-7")
	assert.Equal(t, "node-7", GetNodeID("NODE_ID"))
}
