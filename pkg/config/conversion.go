package config

import (
	"fmt"
	"time"

	"github.com/polisai/hookgate/internal/resilience"
	"github.com/polisai/hookgate/pkg/domain"
	"github.com/polisai/hookgate/pkg/engine"
	"github.com/polisai/hookgate/pkg/logging"
	"github.com/polisai/hookgate/pkg/telemetry"
)

// Params converts the governance section to engine parameters.
func (c GovernanceConfig) Params() (engine.Params, error) {
	params := engine.Params{
		VoteThreshold:      c.VoteThreshold,
		VotingWindow:       time.Duration(c.VotingWindow),
		MaxHooks:           c.MaxHooks,
		MaxProposals:       c.MaxProposals,
		SingleVotePerVoter: c.SingleVotePerVoter,
	}
	if c.WeightMint != "" {
		mint, err := domain.ParseKey(c.WeightMint)
		if err != nil {
			return engine.Params{}, fmt.Errorf("weight_mint: %w", err)
		}
		params.WeightMint = mint
	}
	return params, nil
}

// AdminKey returns the configured admin identity, if any.
func (c GovernanceConfig) AdminKey() (domain.Key, bool, error) {
	if c.Admin == "" {
		return domain.Key{}, false, nil
	}
	key, err := domain.ParseKey(c.Admin)
	if err != nil {
		return domain.Key{}, false, fmt.Errorf("admin: %w", err)
	}
	return key, true, nil
}

// RetryConfig returns the conflict retry policy for the KV store.
func (c StorageConfig) RetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxRetries = c.ConflictRetries
	return cfg
}

// BreakerConfig returns the circuit breaker settings guarding the oracle.
func (c OracleConfig) BreakerConfig() resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig()
	cfg.MaxFailures = c.BreakerFailures
	if c.BreakerTimeout > 0 {
		cfg.Timeout = time.Duration(c.BreakerTimeout)
	}
	return cfg
}

// Provider converts the telemetry section to the tracer bootstrap options.
func (c TelemetryConfig) Provider() telemetry.Config {
	return telemetry.Config{
		ServiceName: c.ServiceName,
		Endpoint:    c.OTLPEndpoint,
		Environment: c.Environment,
		Insecure:    c.Insecure,
		SampleRatio: c.SampleRatio,
	}
}

// Logger converts the logging section to logger options.
func (c LoggingConfig) Logger() logging.Config {
	return logging.Config{Level: c.Level, Pretty: c.Pretty}
}
