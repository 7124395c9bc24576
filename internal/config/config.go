package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	SchemaVersion                    = 1
	DefaultPath                      = "/etc/unisenza-bridge/config.json"
	DefaultGRPCAddr                  = "0.0.0.0:9000"
	DefaultHTTPAddr                  = "0.0.0.0:8080"
	DefaultEntriesPath               = "/var/lib/unisenza-bridge/config_entries.json"
	DefaultBlobPrefix                = "unisenza-bridge"
	DefaultSetupRetryIntervalSeconds = 30
	DefaultDiscoveryPrefix           = "homeassistant"
	DefaultBaseTopic                 = "unisenza"
	DefaultLogLevel                  = "info"
	DefaultLogFormat                 = "text"
)

// Config is the daemon configuration file.
type Config struct {
	SchemaVersion int              `json:"schema_version"`
	Core          *CoreConfig      `json:"core"`
	Logging       *LoggingConfig   `json:"logging"`
	MQTT          *MQTTConfig      `json:"mqtt"`
	Discovery     *DiscoveryConfig `json:"discovery"`
	Store         *StoreConfig     `json:"store"`
	UnisenzaPlus  *UnisenzaConfig  `json:"unisenza_plus"`
}

type CoreConfig struct {
	GRPCAddr                  string `json:"grpc_addr"`
	HTTPAddr                  string `json:"http_addr"`
	SetupRetryIntervalSeconds int    `json:"setup_retry_interval_seconds"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// MQTTConfig is the broker Home Assistant listens on.
type MQTTConfig struct {
	BrokerURL    string `json:"broker_url"`
	Username     string `json:"username"`
	PasswordFile string `json:"password_file"`
	ClientID     string `json:"client_id"`
}

type DiscoveryConfig struct {
	Prefix      string `json:"prefix"`
	BaseTopic   string `json:"base_topic"`
	StatusTopic string `json:"status_topic"`
}

// StoreConfig locates the config entry file and its optional object storage
// mirror.
type StoreConfig struct {
	EntriesPath       string `json:"entries_path"`
	BlobEndpoint      string `json:"blob_endpoint"`
	BlobBucket        string `json:"blob_bucket"`
	BlobPrefix        string `json:"blob_prefix"`
	BlobRegion        string `json:"blob_region"`
	BlobAccessKeyFile string `json:"blob_access_key_file"`
	BlobSecretKeyFile string `json:"blob_secret_key_file"`
}

// MirrorEnabled reports whether object storage mirroring is configured.
func (s *StoreConfig) MirrorEnabled() bool {
	return s != nil && s.BlobEndpoint != ""
}

// UnisenzaConfig overrides vendor cloud endpoints and enables the push feed.
type UnisenzaConfig struct {
	BaseURL          string `json:"base_url"`
	TokenURL         string `json:"token_url"`
	ClientID         string `json:"client_id"`
	FeedBrokerURL    string `json:"feed_broker_url"`
	FeedUsername     string `json:"feed_username"`
	FeedPasswordFile string `json:"feed_password_file"`
	FeedTopicPrefix  string `json:"feed_topic_prefix"`

	// MaxRequestsPerMinute bounds vendor cloud calls. Zero keeps the
	// integration default.
	MaxRequestsPerMinute int `json:"max_requests_per_minute"`
}

// Load parses the JSON config file, applies defaults and environment
// overrides, and validates.
func Load(path string) (*Config, error) {
	var (
		data []byte
		err  error
	)

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err = json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	if err = Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Core == nil {
		cfg.Core = &CoreConfig{}
	}
	if cfg.Core.GRPCAddr == "" {
		cfg.Core.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Core.SetupRetryIntervalSeconds == 0 {
		cfg.Core.SetupRetryIntervalSeconds = DefaultSetupRetryIntervalSeconds
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}

	if cfg.MQTT == nil {
		cfg.MQTT = &MQTTConfig{}
	}

	if cfg.Discovery == nil {
		cfg.Discovery = &DiscoveryConfig{}
	}
	if cfg.Discovery.Prefix == "" {
		cfg.Discovery.Prefix = DefaultDiscoveryPrefix
	}
	if cfg.Discovery.BaseTopic == "" {
		cfg.Discovery.BaseTopic = DefaultBaseTopic
	}

	if cfg.Store == nil {
		cfg.Store = &StoreConfig{}
	}
	if cfg.Store.EntriesPath == "" {
		cfg.Store.EntriesPath = DefaultEntriesPath
	}
	if cfg.Store.BlobPrefix == "" {
		cfg.Store.BlobPrefix = DefaultBlobPrefix
	}
}

func applyEnv(cfg *Config) {
	cfg.Core.GRPCAddr = envOrDefault("UNISENZA_GRPC_ADDR", cfg.Core.GRPCAddr)
	cfg.Core.HTTPAddr = envOrDefault("UNISENZA_HTTP_ADDR", cfg.Core.HTTPAddr)
	cfg.Logging.Level = envOrDefault("UNISENZA_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envOrDefault("UNISENZA_LOG_FORMAT", cfg.Logging.Format)
	cfg.MQTT.BrokerURL = envOrDefault("UNISENZA_MQTT_BROKER", cfg.MQTT.BrokerURL)
}

// Validate enforces required invariants beyond JSON typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}

	if cfg.Core == nil {
		return fmt.Errorf("core config is required")
	}
	if cfg.Core.GRPCAddr == "" {
		return fmt.Errorf("core.grpc_addr is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}
	if cfg.Core.SetupRetryIntervalSeconds < 0 {
		return fmt.Errorf("core.setup_retry_interval_seconds must not be negative")
	}

	if cfg.Logging != nil {
		switch cfg.Logging.Format {
		case "text", "json":
		default:
			return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
		}
	}

	if cfg.MQTT == nil || cfg.MQTT.BrokerURL == "" {
		return fmt.Errorf("mqtt.broker_url is required")
	}
	if err := validateBrokerURL("mqtt.broker_url", cfg.MQTT.BrokerURL); err != nil {
		return err
	}

	if cfg.Store == nil || cfg.Store.EntriesPath == "" {
		return fmt.Errorf("store.entries_path is required")
	}
	if cfg.Store.MirrorEnabled() {
		if cfg.Store.BlobBucket == "" {
			return fmt.Errorf("store.blob_bucket is required")
		}
		if cfg.Store.BlobAccessKeyFile == "" {
			return fmt.Errorf("store.blob_access_key_file is required")
		}
		if cfg.Store.BlobSecretKeyFile == "" {
			return fmt.Errorf("store.blob_secret_key_file is required")
		}
	}

	if cfg.UnisenzaPlus != nil && cfg.UnisenzaPlus.MaxRequestsPerMinute < 0 {
		return fmt.Errorf("unisenza_plus.max_requests_per_minute must not be negative")
	}
	if cfg.UnisenzaPlus != nil && cfg.UnisenzaPlus.FeedBrokerURL != "" {
		if err := validateBrokerURL("unisenza_plus.feed_broker_url", cfg.UnisenzaPlus.FeedBrokerURL); err != nil {
			return err
		}
	}

	return nil
}

// EnabledIntegrations maps enabled integration IDs based on config presence.
// unisenza_plus is always enabled; its section only overrides defaults.
func EnabledIntegrations(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	enabled["unisenza_plus"] = true
	return enabled
}

// SetupRetryInterval is the delay between setup attempts of entries that are
// not ready.
func SetupRetryInterval(cfg *Config) time.Duration {
	if cfg == nil || cfg.Core == nil || cfg.Core.SetupRetryIntervalSeconds <= 0 {
		return DefaultSetupRetryIntervalSeconds * time.Second
	}
	return time.Duration(cfg.Core.SetupRetryIntervalSeconds) * time.Second
}

// ReadSecretFile reads a secret from path. An empty path yields "".
func ReadSecretFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateBrokerURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
	default:
		return fmt.Errorf("%s: unsupported scheme %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: missing host", field)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
