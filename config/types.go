// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package config loads and validates the provider's configuration surface.
package config

import (
	"fmt"
	"math/big"
	"time"
)

// DefaultRelayURL is the sandbox ClearNode the provider dials when no relay URL is configured.
const DefaultRelayURL = "wss://clearnet-sandbox.yellow.com/ws"

// Defaults for the numeric configuration surface. The challenge and session defaults are
// in seconds; the reconnect delay and quote timeout are time.Duration values.
const (
	DefaultChallengeDurationSeconds = 3600
	DefaultSessionExpirySeconds     = 3600
	DefaultReconnectInitialDelay    = 500 * time.Millisecond
	DefaultMaxReconnectAttempts     = 5
	DefaultQuoteTimeout             = 5 * time.Second
)

// YellowConfig is the immutable input accepted by the provider constructor.
//
// ChallengeDurationSeconds is conveyed to the contract client as an arbitrary-precision
// integer (see ChallengeDuration()); every other numeric field is a finite machine int.
type YellowConfig struct {
	Environment string `yaml:"environment" json:"environment"`

	RelayURL            string `yaml:"relay_url" json:"relay_url"`
	CustodyAddress      string `yaml:"custody_address" json:"custody_address"`
	AdjudicatorAddress  string `yaml:"adjudicator_address" json:"adjudicator_address"`
	ChainID             int64  `yaml:"chain_id" json:"chain_id"`
	NodeRPCURL          string `yaml:"node_rpc_url" json:"node_rpc_url"`

	ChallengeDurationSeconds int64 `yaml:"challenge_duration_seconds" json:"challenge_duration_seconds"`
	SessionExpirySeconds     int64 `yaml:"session_expiry_seconds" json:"session_expiry_seconds"`

	ReconnectInitialDelay time.Duration `yaml:"reconnect_initial_delay" json:"reconnect_initial_delay"`
	MaxReconnectAttempts  int           `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts"`
	QuoteTimeout          time.Duration `yaml:"quote_timeout" json:"quote_timeout"`

	Logging *LoggingConfig `yaml:"logging" json:"logging"`
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`

	// SupportedChains maps a chain name as it appears in IntentParams (e.g. "arbitrum")
	// to its numeric chain id. executeIntent rejects any source/destination chain not
	// present here with UNSUPPORTED_CHAIN before creating any channel.
	SupportedChains map[string]int64 `yaml:"supported_chains" json:"supported_chains"`

	// RelayCounterparty is the on-chain address executeIntent uses as the Channel
	// counterparty when it auto-creates a channel for (tokenIn, sourceChain) because none
	// is already open (§4.5 routing step 1). Left empty, auto-creation is refused with
	// MISSING_PARAMS rather than opening a channel against a guessed address; a deployment
	// that always pre-provisions channels before calling executeIntent never needs it.
	RelayCounterparty string `yaml:"relay_counterparty" json:"relay_counterparty"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json, text
	Output string `yaml:"output" json:"output"` // stdout, stderr, file path
}

// MetricsConfig controls the standalone Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// ApplyDefaults fills in every field left at its zero value with the documented default.
func (c *YellowConfig) ApplyDefaults() {
	if c.RelayURL == "" {
		c.RelayURL = DefaultRelayURL
	}
	if c.ChallengeDurationSeconds == 0 {
		c.ChallengeDurationSeconds = DefaultChallengeDurationSeconds
	}
	if c.SessionExpirySeconds == 0 {
		c.SessionExpirySeconds = DefaultSessionExpirySeconds
	}
	if c.ReconnectInitialDelay == 0 {
		c.ReconnectInitialDelay = DefaultReconnectInitialDelay
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.QuoteTimeout == 0 {
		c.QuoteTimeout = DefaultQuoteTimeout
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{Level: "info", Format: "json", Output: "stdout"}
	}
	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{Enabled: false, Addr: ":9090", Path: "/metrics"}
	}
}

// ChallengeDuration converts the configured challenge window into the arbitrary-precision
// integer the on-chain contract client expects, never a truncated machine int.
func (c *YellowConfig) ChallengeDuration() *big.Int {
	return big.NewInt(c.ChallengeDurationSeconds)
}

// Validate reports programmer errors in the configuration: these are meant to throw
// synchronously at construction time, not surface as a Fallback.
func (c *YellowConfig) Validate() error {
	if c.CustodyAddress == "" {
		return fmt.Errorf("config: custody address is required")
	}
	if c.AdjudicatorAddress == "" {
		return fmt.Errorf("config: adjudicator address is required")
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("config: chain id must be positive")
	}
	if c.NodeRPCURL == "" {
		return fmt.Errorf("config: node RPC URL is required")
	}
	if c.ChallengeDurationSeconds <= 0 {
		return fmt.Errorf("config: challenge duration must be positive")
	}
	if c.SessionExpirySeconds <= 0 {
		return fmt.Errorf("config: session expiry must be positive")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("config: max reconnect attempts cannot be negative")
	}
	return nil
}
