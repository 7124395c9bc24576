package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"schema_version": 1, "mqtt": {"broker_url": "tcp://broker:1883"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultGRPCAddr, cfg.Core.GRPCAddr)
	assert.Equal(t, DefaultHTTPAddr, cfg.Core.HTTPAddr)
	assert.Equal(t, DefaultDiscoveryPrefix, cfg.Discovery.Prefix)
	assert.Equal(t, DefaultBaseTopic, cfg.Discovery.BaseTopic)
	assert.Equal(t, DefaultEntriesPath, cfg.Store.EntriesPath)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Store.MirrorEnabled())
	assert.Equal(t, 30*time.Second, SetupRetryInterval(cfg))
	assert.Equal(t, map[string]bool{"unisenza_plus": true}, EnabledIntegrations(cfg))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("UNISENZA_HTTP_ADDR", "127.0.0.1:18080")
	t.Setenv("UNISENZA_MQTT_BROKER", "mqtt://other:1883")
	path := writeConfig(t, `{"schema_version": 1, "mqtt": {"broker_url": "tcp://broker:1883"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:18080", cfg.Core.HTTPAddr)
	assert.Equal(t, "mqtt://other:1883", cfg.MQTT.BrokerURL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"schema":      `{"schema_version": 2, "mqtt": {"broker_url": "tcp://broker:1883"}}`,
		"no broker":   `{"schema_version": 1}`,
		"bad scheme":  `{"schema_version": 1, "mqtt": {"broker_url": "http://broker"}}`,
		"log format":  `{"schema_version": 1, "mqtt": {"broker_url": "tcp://b:1883"}, "logging": {"format": "xml"}}`,
		"mirror":      `{"schema_version": 1, "mqtt": {"broker_url": "tcp://b:1883"}, "store": {"blob_endpoint": "http://minio:9000"}}`,
		"feed broker": `{"schema_version": 1, "mqtt": {"broker_url": "tcp://b:1883"}, "unisenza_plus": {"feed_broker_url": "broker"}}`,
		"not json":    `schema_version: 1`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadSecretFile(t *testing.T) {
	value, err := ReadSecretFile("")
	require.NoError(t, err)
	assert.Empty(t, value)

	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("hunter2\n"), 0o600))
	value, err = ReadSecretFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", value)
}
