// Package config loads the flukso-hass configuration from YAML, with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nlowe/flukso-hass/discovery"
	"github.com/nlowe/flukso-hass/entity"
	"github.com/nlowe/flukso-hass/flukso"
)

// DefaultConnectTimeout bounds the initial connection to either broker.
const DefaultConnectTimeout = 10 * time.Second

// EnvPrefix prefixes every environment variable override, e.g. FLUKSO_HASS_FLUKSO_HOST.
const EnvPrefix = "FLUKSO_HASS_"

// ErrInvalid is wrapped by the error returned from Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config is the root configuration of the bridge.
type Config struct {
	Flukso        FluksoConfig        `yaml:"flukso"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// FluksoConfig describes the Flukso base unit's broker and discovery behavior.
type FluksoConfig struct {
	Broker FluksoBrokerConfig `yaml:"broker"`

	// DiscoveryWindow is how long configuration documents are collected before classification.
	DiscoveryWindow time.Duration `yaml:"discovery_window"`

	// OffDelay is how long motion and vibration entities stay ON after the last message.
	OffDelay time.Duration `yaml:"off_delay"`

	// IgnoreSensors lists sensor ids that are never exposed.
	IgnoreSensors []string `yaml:"ignore_sensors"`
}

// FluksoBrokerConfig contains the MQTT 3.1.1 connection details of the Flukso base unit.
type FluksoBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ConnectTimeout bounds the initial connection. Later drops are retried indefinitely.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Address returns the broker address in the tcp://host:port form paho expects.
func (b FluksoBrokerConfig) Address() string {
	return fmt.Sprintf("tcp://%s:%d", b.Host, b.Port)
}

// HomeAssistantConfig describes the Home Assistant broker and topic layout.
type HomeAssistantConfig struct {
	Broker HomeAssistantBrokerConfig `yaml:"broker"`

	DiscoveryPrefix string `yaml:"discovery_prefix"`
	TopicPrefix     string `yaml:"topic_prefix"`
}

// HomeAssistantBrokerConfig contains the MQTT v5 connection details of the broker Home Assistant listens on.
type HomeAssistantBrokerConfig struct {
	URL      string `yaml:"url"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ConnectTimeout bounds the initial connection. Later drops are retried indefinitely.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// ServerURL parses URL.
func (b HomeAssistantBrokerConfig) ServerURL() (*url.URL, error) {
	return url.Parse(b.URL)
}

// SnapshotConfig configures the discovery snapshot store. An empty Path disables it.
type SnapshotConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Flukso: FluksoConfig{
			Broker: FluksoBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "flukso-hass",

				ConnectTimeout: DefaultConnectTimeout,
			},
			DiscoveryWindow: flukso.DefaultWindow,
			OffDelay:        entity.DefaultOffDelay,
		},
		HomeAssistant: HomeAssistantConfig{
			Broker: HomeAssistantBrokerConfig{
				URL:      "mqtt://localhost:1883",
				ClientID: "flukso-hass",

				ConnectTimeout: DefaultConnectTimeout,
			},
			DiscoveryPrefix: discovery.DefaultPrefix,
			TopicPrefix:     entity.DefaultTopicPrefix,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over Default, applies environment overrides and validates the result. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies FLUKSO_HASS_<SECTION>_<KEY> environment variables.
func applyEnvOverrides(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	var errs []error
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}

	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	// Flukso
	str("FLUKSO_HOST", &cfg.Flukso.Broker.Host)
	num("FLUKSO_PORT", &cfg.Flukso.Broker.Port)
	str("FLUKSO_CLIENT_ID", &cfg.Flukso.Broker.ClientID)
	str("FLUKSO_USERNAME", &cfg.Flukso.Broker.Username)
	str("FLUKSO_PASSWORD", &cfg.Flukso.Broker.Password)
	dur("FLUKSO_CONNECT_TIMEOUT", &cfg.Flukso.Broker.ConnectTimeout)
	dur("FLUKSO_DISCOVERY_WINDOW", &cfg.Flukso.DiscoveryWindow)
	dur("FLUKSO_OFF_DELAY", &cfg.Flukso.OffDelay)
	if v, ok := os.LookupEnv(EnvPrefix + "FLUKSO_IGNORE_SENSORS"); ok {
		cfg.Flukso.IgnoreSensors = splitList(v)
	}

	// Home Assistant
	str("HOMEASSISTANT_URL", &cfg.HomeAssistant.Broker.URL)
	str("HOMEASSISTANT_CLIENT_ID", &cfg.HomeAssistant.Broker.ClientID)
	str("HOMEASSISTANT_USERNAME", &cfg.HomeAssistant.Broker.Username)
	str("HOMEASSISTANT_PASSWORD", &cfg.HomeAssistant.Broker.Password)
	dur("HOMEASSISTANT_CONNECT_TIMEOUT", &cfg.HomeAssistant.Broker.ConnectTimeout)
	str("HOMEASSISTANT_DISCOVERY_PREFIX", &cfg.HomeAssistant.DiscoveryPrefix)
	str("HOMEASSISTANT_TOPIC_PREFIX", &cfg.HomeAssistant.TopicPrefix)

	str("SNAPSHOT_PATH", &cfg.Snapshot.Path)

	str("LOGGING_LEVEL", &cfg.Logging.Level)
	str("LOGGING_FORMAT", &cfg.Logging.Format)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var result []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}

	return result
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Flukso.Broker.Host == "" {
		errs = append(errs, "flukso.broker.host is required")
	}

	if c.Flukso.Broker.Port < 1 || c.Flukso.Broker.Port > 65535 {
		errs = append(errs, "flukso.broker.port must be between 1 and 65535")
	}

	if c.Flukso.Broker.ConnectTimeout <= 0 {
		errs = append(errs, "flukso.broker.connect_timeout must be positive")
	}

	if c.Flukso.DiscoveryWindow <= 0 {
		errs = append(errs, "flukso.discovery_window must be positive")
	}

	if c.Flukso.OffDelay <= 0 {
		errs = append(errs, "flukso.off_delay must be positive")
	}

	if c.HomeAssistant.Broker.URL == "" {
		errs = append(errs, "homeassistant.broker.url is required")
	} else if u, err := c.HomeAssistant.Broker.ServerURL(); err != nil {
		errs = append(errs, fmt.Sprintf("homeassistant.broker.url is invalid: %v", err))
	} else if u.Host == "" {
		errs = append(errs, "homeassistant.broker.url must include a host")
	}

	if c.HomeAssistant.Broker.ConnectTimeout <= 0 {
		errs = append(errs, "homeassistant.broker.connect_timeout must be positive")
	}

	if c.HomeAssistant.DiscoveryPrefix == "" {
		errs = append(errs, "homeassistant.discovery_prefix is required")
	}

	if c.HomeAssistant.TopicPrefix == "" {
		errs = append(errs, "homeassistant.topic_prefix is required")
	}

	for _, prefix := range []string{c.HomeAssistant.DiscoveryPrefix, c.HomeAssistant.TopicPrefix} {
		if strings.ContainsAny(prefix, "+#") {
			errs = append(errs, fmt.Sprintf("topic prefix %q must not contain wildcards", prefix))
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, "logging.format must be text or json")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn or error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}

	return nil
}
