package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ig-streamer/src/models"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Chart intervals accepted by the CHART item grammar.
var ChartIntervals = []string{"SECOND", "1MINUTE", "5MINUTE", "HOUR"}

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from a YAML or TOML file, chosen by
// extension (.toml is TOML, everything else YAML), and validates it.
func NewConfig(configPath string) (*Config, error) {
	config, err := Load(configPath)
	if err != nil {
		return nil, err
	}

	// Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Load reads the file and applies defaults without validating, so callers can
// apply overrides first.
func Load(configPath string) (*Config, error) {
	// 1. Read the file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if strings.EqualFold(filepath.Ext(configPath), ".toml") {
		if err := toml.Unmarshal(data, &modelConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config from TOML: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &modelConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
		}
	}

	config := &Config{MConfig: &modelConfig}
	config.ApplyDefaults()
	return config, nil
}

// -----------------------------------------------------------------------------

// NewDefaultConfig returns a configuration holding only defaults.
func NewDefaultConfig() *Config {
	config := &Config{MConfig: &models.MConfig{}}
	config.ApplyDefaults()
	return config
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills every zero value that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "ig-streamer"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.GRPC_Host == "" {
		c.GRPC_Host = "0.0.0.0"
	}

	s := &c.Streaming
	if s.Transport == "" {
		s.Transport = "lightstreamer"
	}
	if s.AdapterSet == "" {
		s.AdapterSet = "DEFAULT"
	}
	if s.HandshakeTimeout == 0 {
		s.HandshakeTimeout = 10 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 5 * time.Second
	}
	if s.KeepAlive == 0 {
		s.KeepAlive = 5 * time.Second
	}
	if s.StalledTimeout == 0 {
		s.StalledTimeout = 2 * time.Second
	}
	if s.ReconnectInterval == 0 {
		s.ReconnectInterval = time.Second
	}
	if s.MaxReconnectDelay == 0 {
		s.MaxReconnectDelay = 30 * time.Second
	}
	if s.BackoffMultiplier == 0 {
		s.BackoffMultiplier = 2
	}

	d := &c.Delivery
	if d.BufferSize == 0 {
		d.BufferSize = 64
	}
	if d.OverflowPolicy == "" {
		d.OverflowPolicy = models.OverflowDropOldest
	}

	n := &c.NATS
	if n.ClientID == "" {
		n.ClientID = c.Name
	}
	if n.SubjectPrefix == "" {
		n.SubjectPrefix = "ig"
	}
	if n.Serializer == "" {
		n.Serializer = "json"
	}
	if n.ConnectTimeout == 0 {
		n.ConnectTimeout = 5 * time.Second
	}
	if n.ReconnectWait == 0 {
		n.ReconnectWait = 2 * time.Second
	}
	if n.FlushTimeout == 0 {
		n.FlushTimeout = 2 * time.Second
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		c.Journal.Path = "ig-streamer.db"
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation and checks the
// streaming, delivery, subscription and NATS sub-configs.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config name cannot be empty")
	}

	// Port 0 disables the corresponding server
	if c.Port != 0 && (c.Port <= 1024 || c.Port > 65535) {
		return fmt.Errorf("invalid application port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GRPC_Port != 0 && (c.GRPC_Port <= 1024 || c.GRPC_Port > 65535) {
		return fmt.Errorf("invalid gRPC port number: %d (must be between 1025 and 65535)", c.GRPC_Port)
	}

	if err := c.validateStreaming(); err != nil {
		return err
	}

	switch c.Delivery.OverflowPolicy {
	case models.OverflowDropOldest, models.OverflowDropNewest:
	default:
		return fmt.Errorf("invalid overflow policy %q", c.Delivery.OverflowPolicy)
	}
	if c.Delivery.BufferSize < 1 {
		return fmt.Errorf("delivery buffer size must be positive, got %d", c.Delivery.BufferSize)
	}

	if err := c.validateSubscriptions(); err != nil {
		return err
	}

	// Validation of NATS config (minimal check)
	if c.NATS.Enabled {
		if len(c.NATS.Servers) == 0 {
			return fmt.Errorf("NATS servers list cannot be empty")
		}
		switch c.NATS.Serializer {
		case "json", "bin", "proto":
		default:
			return fmt.Errorf("unknown NATS serializer %q", c.NATS.Serializer)
		}
		if js := c.NATS.JetStream; js != nil && js.Enabled && js.StreamName == "" {
			return fmt.Errorf("JetStream stream name cannot be empty")
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

func (c *Config) validateStreaming() error {
	s := c.Streaming
	if s.Endpoint == "" {
		return fmt.Errorf("streaming endpoint cannot be empty")
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid streaming endpoint '%s': %w", s.Endpoint, err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("streaming endpoint '%s': unsupported scheme %q", s.Endpoint, u.Scheme)
	}
	if s.AccountID == "" {
		return fmt.Errorf("streaming account id cannot be empty")
	}
	if s.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max reconnect attempts cannot be negative")
	}
	if s.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be >= 1, got %v", s.BackoffMultiplier)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (c *Config) validateSubscriptions() error {
	subs := c.Subscriptions
	for i, p := range subs.Prices {
		if p.Epic == "" {
			return fmt.Errorf("price subscription %d: epic cannot be empty", i)
		}
	}
	for i, ch := range subs.Charts {
		if ch.Epic == "" {
			return fmt.Errorf("chart subscription %d: epic cannot be empty", i)
		}
		if !IsChartInterval(ch.Interval) {
			return fmt.Errorf("chart subscription '%s': invalid interval %q", ch.Epic, ch.Interval)
		}
	}
	for i, m := range subs.Markets {
		if m.Epic == "" {
			return fmt.Errorf("market subscription %d: epic cannot be empty", i)
		}
	}
	for i, a := range subs.Accounts {
		if a.AccountID == "" {
			return fmt.Errorf("account subscription %d: account id cannot be empty", i)
		}
	}
	for i, d := range subs.Deals {
		if d.AccountID == "" {
			return fmt.Errorf("deal subscription %d: account id cannot be empty", i)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// IsChartInterval reports whether interval is a known candle interval.
func IsChartInterval(interval string) bool {
	for _, i := range ChartIntervals {
		if i == interval {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// MaskedEndpoint returns the endpoint without user info or query string.
func (c *Config) MaskedEndpoint() string {
	u, err := url.Parse(c.Streaming.Endpoint)
	if err != nil {
		return ""
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}
