package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644))
}

func TestLoadFallsBackToDefaultsWithoutAnyFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test", SkipDotEnv: true, SkipValidation: true})
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, DefaultRelayURL, cfg.RelayURL)
}

func TestLoadReadsEnvironmentSpecificFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "staging.yaml", `
custody_address: "0xCustody"
adjudicator_address: "0xAdjudicator"
chain_id: 11155111
node_rpc_url: "https://rpc.example.org"
`)

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging", SkipDotEnv: true})
	require.NoError(t, err)

	assert.Equal(t, "0xCustody", cfg.CustodyAddress)
	assert.EqualValues(t, 11155111, cfg.ChainID)
}

func TestLoadAppliesEnvironmentOverridesLast(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "staging.yaml", `
custody_address: "0xCustody"
adjudicator_address: "0xAdjudicator"
chain_id: 11155111
node_rpc_url: "https://rpc.example.org"
relay_url: "wss://from-file/ws"
`)
	t.Setenv("YELLOW_RELAY_URL", "wss://from-env/ws")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging", SkipDotEnv: true})
	require.NoError(t, err)

	assert.Equal(t, "wss://from-env/ws", cfg.RelayURL)
}

func TestLoadValidationFailureSurfacesError(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test", SkipDotEnv: true})
	assert.Error(t, err)
}

func TestMustLoadPanicsOnInvalidConfig(t *testing.T) {
	dir := t.TempDir()

	assert.Panics(t, func() {
		MustLoad(LoaderOptions{ConfigDir: dir, Environment: "test", SkipDotEnv: true})
	})
}
