package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Goden-Gun/transport-core/pkg/config"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
)

func TestInitLoggerJSONLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitLoggerWithOptions(config.LogConfig{Format: "json", Level: "warn"}, LoggerOptions{Output: &buf}))
	t.Cleanup(func() { _ = InitLoggerWithOptions(config.LogConfig{Level: "info"}, LoggerOptions{}) })

	log.Component("test").Info("hidden")
	log.Component("test").Warn("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "test", line[log.ComponentKey])
}

func TestInitLoggerWritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	err := InitLoggerWithOptions(config.LogConfig{Format: "text", Level: "info"}, LoggerOptions{
		ServiceName: "relay",
		File:        config.LogFileConfig{Dir: dir},
		Output:      &buf,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = InitLoggerWithOptions(config.LogConfig{Level: "info"}, LoggerOptions{}) })

	log.Info("to file")
	matches, err := filepath.Glob(filepath.Join(dir, "relay.*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.Contains(t, buf.String(), "to file")
}

func TestInitLoggerWithFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitLoggerWithFile(config.LogConfig{Format: "json", Level: "debug"},
		config.LogFileConfig{Dir: dir}, "dial"))
	t.Cleanup(func() { _ = InitLogger(config.LogConfig{Level: "info"}) })

	log.Component("test").Debug("rotated")
	matches, err := filepath.Glob(filepath.Join(dir, "dial.*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	assert.Equal(t, "rotated", line["msg"])
	assert.NotEmpty(t, line["container_id"])
	_, err = os.Lstat(filepath.Join(dir, "dial.log"))
	assert.NoError(t, err)
}

func TestInitLoggerFallsBackToInfo(t *testing.T) {
	require.NoError(t, InitLogger(config.LogConfig{Level: "loud"}))
	assert.Equal(t, log.InfoLevel, log.StandardLogger().GetLevel())
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := InitRedis(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	assert.NoError(t, client.Close())

	mr.Close()
	_, err = InitRedis(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	assert.Error(t, err)
}

func TestInitKafkaRequiresBrokers(t *testing.T) {
	_, err := InitKafka(config.KafkaConfig{}, nil, "")
	assert.Error(t, err)
}

func TestInitTracing(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{Exporter: "disabled"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	shutdown, err = InitTracing(context.Background(), config.TracingConfig{Exporter: "stdout", SampleRatio: 0.5})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, err = InitTracing(context.Background(), config.TracingConfig{Exporter: "zipkin"})
	assert.Error(t, err)
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	n, err := testutil.GatherAndCount(reg, "go_goroutines")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
