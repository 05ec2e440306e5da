// Package config provides configuration for agentgate.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment variable, e.g. AGENTGATE_HTTP_PORT.
const EnvPrefix = "AGENTGATE"

// Config holds the agentgate configuration.
type Config struct {
	// Server settings
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`
	RPCPort  int `envconfig:"RPC_PORT" default:"8081"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" default:"file:agentgate.db?cache=shared&mode=rwc"`

	// Approvals
	ApprovalExpiresInHours float64       `envconfig:"APPROVAL_EXPIRES_IN_HOURS" default:"24"`
	SweepInterval          time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	SweepBatch             int           `envconfig:"SWEEP_BATCH" default:"100"`

	// Handoffs
	HandoffHistoryLimit  int `envconfig:"HANDOFF_HISTORY_LIMIT" default:"20"`
	HandoffKeyPointLimit int `envconfig:"HANDOFF_KEY_POINT_LIMIT" default:"5"`

	// Policy
	PolicyFile string `envconfig:"POLICY_FILE"`

	Slack SlackConfig `envconfig:"SLACK"`

	// BridgeRPCAddr is a JSON-RPC chat bridge used when Slack is not configured.
	BridgeRPCAddr string `envconfig:"BRIDGE_RPC_ADDR"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// SlackConfig configures the Slack notification bridge. An empty bot token disables it.
type SlackConfig struct {
	BotToken       string `envconfig:"BOT_TOKEN"`
	SigningSecret  string `envconfig:"SIGNING_SECRET"`
	APIBase        string `envconfig:"API_BASE"`
	DefaultChannel string `envconfig:"DEFAULT_CHANNEL"`
}

// Enabled reports whether Slack notifications are configured.
func (c SlackConfig) Enabled() bool {
	return c.BotToken != ""
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	return &Config{
		HTTPPort:               8080,
		RPCPort:                8081,
		DatabaseURL:            "file:agentgate.db?cache=shared&mode=rwc",
		ApprovalExpiresInHours: 24,
		SweepInterval:          time.Minute,
		SweepBatch:             100,
		HandoffHistoryLimit:    20,
		HandoffKeyPointLimit:   5,
		LogLevel:               "info",
		LogFormat:              "json",
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.ApprovalExpiresInHours <= 0 {
		return fmt.Errorf("APPROVAL_EXPIRES_IN_HOURS must be positive, got %v", c.ApprovalExpiresInHours)
	}
	if c.HandoffHistoryLimit <= 0 {
		return fmt.Errorf("HANDOFF_HISTORY_LIMIT must be positive, got %d", c.HandoffHistoryLimit)
	}
	if c.HandoffKeyPointLimit <= 0 {
		return fmt.Errorf("HANDOFF_KEY_POINT_LIMIT must be positive, got %d", c.HandoffKeyPointLimit)
	}
	if c.SweepBatch <= 0 {
		return fmt.Errorf("SWEEP_BATCH must be positive, got %d", c.SweepBatch)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("SWEEP_INTERVAL must not be negative, got %s", c.SweepInterval)
	}
	return nil
}

// BridgeEnvPrefix scopes the bridge settings, e.g. AGENTGATE_BRIDGE_WS_PORT.
const BridgeEnvPrefix = EnvPrefix + "_BRIDGE"

// BridgeConfig holds the WebSocket chat bridge configuration.
type BridgeConfig struct {
	// Server settings
	WSPort  int `envconfig:"WS_PORT" default:"8090"`
	RPCPort int `envconfig:"RPC_PORT" default:"8091"`

	// AgentGateAddr is the agentgate JSON-RPC address button presses are relayed to.
	AgentGateAddr string `envconfig:"AGENTGATE_ADDR" default:"localhost:8081"`

	// APIKey, when set, must be presented by clients when they subscribe.
	APIKey         string `envconfig:"API_KEY"`
	DefaultChannel string `envconfig:"DEFAULT_CHANNEL" default:"general"`

	// WebSocket settings
	PingInterval   time.Duration `envconfig:"PING_INTERVAL" default:"30s"`
	WriteTimeout   time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	ReadTimeout    time.Duration `envconfig:"READ_TIMEOUT" default:"60s"`
	MaxMessageSize int64         `envconfig:"MAX_MESSAGE_SIZE" default:"65536"`
}

// LoadBridge loads the bridge configuration from environment variables.
func LoadBridge() (*BridgeConfig, error) {
	var cfg BridgeConfig
	if err := envconfig.Process(BridgeEnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load bridge config: %w", err)
	}
	if cfg.PingInterval <= 0 || cfg.ReadTimeout <= cfg.PingInterval {
		return nil, fmt.Errorf("BRIDGE_READ_TIMEOUT (%s) must exceed a positive BRIDGE_PING_INTERVAL (%s)", cfg.ReadTimeout, cfg.PingInterval)
	}
	return &cfg, nil
}
