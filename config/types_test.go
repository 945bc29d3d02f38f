package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &YellowConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultRelayURL, cfg.RelayURL)
	assert.EqualValues(t, DefaultChallengeDurationSeconds, cfg.ChallengeDurationSeconds)
	assert.EqualValues(t, DefaultSessionExpirySeconds, cfg.SessionExpirySeconds)
	assert.Equal(t, DefaultReconnectInitialDelay, cfg.ReconnectInitialDelay)
	assert.Equal(t, DefaultMaxReconnectAttempts, cfg.MaxReconnectAttempts)
	assert.Equal(t, DefaultQuoteTimeout, cfg.QuoteTimeout)
	require.NotNil(t, cfg.Logging)
	require.NotNil(t, cfg.Metrics)
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &YellowConfig{RelayURL: "wss://example.org/ws", MaxReconnectAttempts: 9}
	cfg.ApplyDefaults()

	assert.Equal(t, "wss://example.org/ws", cfg.RelayURL)
	assert.Equal(t, 9, cfg.MaxReconnectAttempts)
}

func TestValidateRequiresCoreFields(t *testing.T) {
	cfg := &YellowConfig{}
	cfg.ApplyDefaults()
	assert.Error(t, cfg.Validate())

	cfg.CustodyAddress = "0xCustody"
	cfg.AdjudicatorAddress = "0xAdjudicator"
	cfg.ChainID = 11155111
	cfg.NodeRPCURL = "https://rpc.example.org"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveDurations(t *testing.T) {
	cfg := &YellowConfig{
		CustodyAddress:     "0xCustody",
		AdjudicatorAddress: "0xAdjudicator",
		ChainID:            11155111,
		NodeRPCURL:         "https://rpc.example.org",
	}
	cfg.ApplyDefaults()
	cfg.ChallengeDurationSeconds = 0
	assert.Error(t, cfg.Validate())
}

func TestChallengeDurationMatchesConfiguredSeconds(t *testing.T) {
	for _, seconds := range []int64{1, 3600, 86400, 1 << 40} {
		cfg := &YellowConfig{ChallengeDurationSeconds: seconds}
		assert.EqualValues(t, seconds, cfg.ChallengeDuration().Int64())
	}
}
