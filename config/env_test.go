package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("YELLOW_TEST_RELAY", "wss://override.example/ws")

	assert.Equal(t, "wss://override.example/ws", SubstituteEnvVars("${YELLOW_TEST_RELAY}"))
	assert.Equal(t, "fallback", SubstituteEnvVars("${YELLOW_TEST_UNSET:fallback}"))
	assert.Equal(t, "", SubstituteEnvVars("${YELLOW_TEST_UNSET}"))
	assert.Equal(t, "plain text", SubstituteEnvVars("plain text"))
}

func TestSubstituteEnvVarsInConfig(t *testing.T) {
	t.Setenv("YELLOW_TEST_CUSTODY", "0xCustodyFromEnv")

	cfg := &YellowConfig{CustodyAddress: "${YELLOW_TEST_CUSTODY}"}
	cfg.ApplyDefaults()
	SubstituteEnvVarsInConfig(cfg)

	assert.Equal(t, "0xCustodyFromEnv", cfg.CustodyAddress)
}

func TestGetEnvironment(t *testing.T) {
	t.Setenv("YELLOW_ENV", "staging")
	assert.Equal(t, "staging", GetEnvironment())
}

func TestGetEnvironmentDefaultsToDevelopment(t *testing.T) {
	t.Setenv("YELLOW_ENV", "")
	t.Setenv("ENVIRONMENT", "")
	assert.Equal(t, "development", GetEnvironment())
}

func TestIsProductionAndIsDevelopment(t *testing.T) {
	t.Setenv("YELLOW_ENV", "production")
	assert.True(t, IsProduction())
	assert.False(t, IsDevelopment())

	t.Setenv("YELLOW_ENV", "local")
	assert.False(t, IsProduction())
	assert.True(t, IsDevelopment())
}
