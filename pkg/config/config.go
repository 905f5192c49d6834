// Package config provides configuration structures and loading logic for the gate.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/polisai/hookgate/internal/resilience"
	"github.com/polisai/hookgate/pkg/domain"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverNATS   = "nats"
)

// Config holds the global configuration for the gate.
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server" toml:"server"`
	Governance GovernanceConfig `yaml:"governance" json:"governance" toml:"governance"`
	Storage    StorageConfig    `yaml:"storage" json:"storage" toml:"storage"`
	Oracle     OracleConfig     `yaml:"oracle" json:"oracle" toml:"oracle"`
	Events     EventsConfig     `yaml:"events" json:"events" toml:"events"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry" toml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging" toml:"logging"`
}

// ServerConfig holds configuration for the HTTP API.
type ServerConfig struct {
	Address         string                                `yaml:"address" json:"address" toml:"address"`
	ShutdownTimeout Duration                              `yaml:"shutdown_timeout" json:"shutdown_timeout" toml:"shutdown_timeout"`
	RateLimits      map[string]resilience.RateLimitConfig `yaml:"rate_limits" json:"rate_limits" toml:"rate_limits"`
}

// GovernanceConfig holds the governance parameters. Keys are hex encoded.
type GovernanceConfig struct {
	Admin              string   `yaml:"admin" json:"admin" toml:"admin"`
	VoteThreshold      uint64   `yaml:"vote_threshold" json:"vote_threshold" toml:"vote_threshold"`
	VotingWindow       Duration `yaml:"voting_window" json:"voting_window" toml:"voting_window"`
	MaxHooks           int      `yaml:"max_hooks" json:"max_hooks" toml:"max_hooks"`
	MaxProposals       int      `yaml:"max_proposals" json:"max_proposals" toml:"max_proposals"`
	WeightMint         string   `yaml:"weight_mint" json:"weight_mint" toml:"weight_mint"`
	SingleVotePerVoter bool     `yaml:"single_vote_per_voter" json:"single_vote_per_voter" toml:"single_vote_per_voter"`
	// AutoInitialize creates the whitelist for Admin at startup if missing.
	AutoInitialize bool `yaml:"auto_initialize" json:"auto_initialize" toml:"auto_initialize"`
}

// StorageConfig selects and configures the ledger store.
type StorageConfig struct {
	Driver string `yaml:"driver" json:"driver" toml:"driver"`
	URL    string `yaml:"url" json:"url" toml:"url"`
	Bucket string `yaml:"bucket" json:"bucket" toml:"bucket"`
	// ConflictRetries bounds how often a transaction is re-run after losing a
	// revision race.
	ConflictRetries int `yaml:"conflict_retries" json:"conflict_retries" toml:"conflict_retries"`
}

// OracleConfig configures the balance oracle.
type OracleConfig struct {
	LedgerFile string `yaml:"ledger_file" json:"ledger_file" toml:"ledger_file"`

	// BreakerFailures is the consecutive outage count that trips the oracle
	// circuit breaker. Zero disables it.
	BreakerFailures int      `yaml:"breaker_failures" json:"breaker_failures" toml:"breaker_failures"`
	BreakerTimeout  Duration `yaml:"breaker_timeout" json:"breaker_timeout" toml:"breaker_timeout"`
}

// EventsConfig configures approval notifications.
type EventsConfig struct {
	NATSSubject  string `yaml:"nats_subject" json:"nats_subject" toml:"nats_subject"`
	LogApprovals bool   `yaml:"log_approvals" json:"log_approvals" toml:"log_approvals"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint" toml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure" json:"insecure" toml:"insecure"`
	ServiceName  string `yaml:"service_name" json:"service_name" toml:"service_name"`
	Environment  string `yaml:"environment" json:"environment" toml:"environment"`

	// SampleRatio is the fraction of root traces recorded; zero records all.
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio" toml:"sample_ratio"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" toml:"level"`
	Pretty bool   `yaml:"pretty" json:"pretty" toml:"pretty"`
}

// Duration is a time.Duration written as a Go duration string ("168h").
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8090",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Governance: GovernanceConfig{
			VoteThreshold: domain.DefaultVoteThreshold,
			VotingWindow:  Duration(domain.DefaultVotingWindow),
			MaxHooks:      domain.DefaultMaxHooks,
			MaxProposals:  domain.DefaultMaxProposals,
		},
		Storage: StorageConfig{
			Driver:          DriverMemory,
			URL:             "nats://127.0.0.1:4222",
			Bucket:          "HOOKGATE",
			ConflictRetries: 5,
		},
		Oracle: OracleConfig{
			BreakerFailures: 5,
			BreakerTimeout:  Duration(30 * time.Second),
		},
		Events: EventsConfig{
			LogApprovals: true,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "hookgate",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
// Files ending in .toml are decoded as TOML; anything else as YAML, falling
// back to JSON.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	//nolint:gosec // Config file path is controlled by admin/operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("config file %s: unknown key %q", path, undecoded[0].String())
		}
		return nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("HOOKGATE_ADDR"); val != "" {
		cfg.Server.Address = val
	}

	if val := os.Getenv("HOOKGATE_ADMIN"); val != "" {
		cfg.Governance.Admin = val
	}
	if val := os.Getenv("HOOKGATE_WEIGHT_MINT"); val != "" {
		cfg.Governance.WeightMint = val
	}
	if val := os.Getenv("HOOKGATE_VOTE_THRESHOLD"); val != "" {
		v, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("HOOKGATE_VOTE_THRESHOLD: %w", err)
		}
		cfg.Governance.VoteThreshold = v
	}
	if val := os.Getenv("HOOKGATE_VOTING_WINDOW"); val != "" {
		if err := cfg.Governance.VotingWindow.UnmarshalText([]byte(val)); err != nil {
			return fmt.Errorf("HOOKGATE_VOTING_WINDOW: %w", err)
		}
	}
	if val := os.Getenv("HOOKGATE_AUTO_INITIALIZE"); val != "" {
		cfg.Governance.AutoInitialize = val == "true"
	}

	if val := os.Getenv("HOOKGATE_STORAGE_DRIVER"); val != "" {
		cfg.Storage.Driver = val
	}
	if val := os.Getenv("HOOKGATE_NATS_URL"); val != "" {
		cfg.Storage.URL = val
	}
	if val := os.Getenv("HOOKGATE_NATS_BUCKET"); val != "" {
		cfg.Storage.Bucket = val
	}

	if val := os.Getenv("HOOKGATE_LEDGER_FILE"); val != "" {
		cfg.Oracle.LedgerFile = val
	}
	if val := os.Getenv("HOOKGATE_EVENTS_SUBJECT"); val != "" {
		cfg.Events.NATSSubject = val
	}

	if val := os.Getenv("HOOKGATE_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("HOOKGATE_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}

	if val := os.Getenv("HOOKGATE_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("HOOKGATE_LOG_PRETTY"); val == "true" {
		cfg.Logging.Pretty = true
	}
	return nil
}

// Validate performs comprehensive validation of the entire configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration: %w", err)
	}
	if err := c.Governance.Validate(); err != nil {
		return fmt.Errorf("governance configuration: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage configuration: %w", err)
	}
	if err := c.Oracle.Validate(); err != nil {
		return fmt.Errorf("oracle configuration: %w", err)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry configuration: sample_ratio must be between 0 and 1")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}
	return nil
}

// Validate performs validation of server configuration
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = ":8090"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = Duration(10 * time.Second)
	}
	for route, limit := range c.RateLimits {
		if limit.RequestsPerSecond < 0 || limit.BurstSize < 0 {
			return fmt.Errorf("rate limit %q: values must not be negative", route)
		}
	}
	return nil
}

// Validate performs validation of governance configuration
func (c *GovernanceConfig) Validate() error {
	if c.VoteThreshold == 0 {
		return fmt.Errorf("vote_threshold must be positive")
	}
	if c.VotingWindow <= 0 {
		return fmt.Errorf("voting_window must be positive")
	}
	if c.MaxHooks <= 0 || c.MaxProposals <= 0 {
		return fmt.Errorf("max_hooks and max_proposals must be positive")
	}
	if c.WeightMint != "" {
		if _, err := domain.ParseKey(c.WeightMint); err != nil {
			return fmt.Errorf("weight_mint: %w", err)
		}
	}
	if c.Admin != "" {
		if _, err := domain.ParseKey(c.Admin); err != nil {
			return fmt.Errorf("admin: %w", err)
		}
	}
	if c.AutoInitialize && c.Admin == "" {
		return fmt.Errorf("auto_initialize requires admin")
	}
	return nil
}

// Validate performs validation of storage configuration
func (c *StorageConfig) Validate() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	switch c.Driver {
	case "", DriverMemory:
		c.Driver = DriverMemory
	case DriverNATS:
		if strings.TrimSpace(c.URL) == "" {
			return fmt.Errorf("url is required for the %s driver", DriverNATS)
		}
		if strings.TrimSpace(c.Bucket) == "" {
			return fmt.Errorf("bucket is required for the %s driver", DriverNATS)
		}
	default:
		return fmt.Errorf("unsupported driver %q, supported drivers: %s, %s", c.Driver, DriverMemory, DriverNATS)
	}
	if c.ConflictRetries < 0 {
		return fmt.Errorf("conflict_retries must not be negative")
	}
	return nil
}

// Validate performs validation of oracle configuration
func (c *OracleConfig) Validate() error {
	if c.BreakerFailures < 0 {
		return fmt.Errorf("breaker_failures must not be negative")
	}
	if c.BreakerTimeout < 0 {
		return fmt.Errorf("breaker_timeout must not be negative")
	}
	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
		return nil
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}
}
