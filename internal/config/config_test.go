package config

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper() {
	viper.Reset()
}

func TestBindFlags_DefaultsSurfaceThroughLoad(t *testing.T) {
	resetViper()
	cmd := &cobra.Command{Use: "test"}
	BindFlags(cmd)

	cfg := Load()
	assert.Equal(t, 10, cfg.MaxConcurrency)
	assert.Equal(t, "./catalog", cfg.CatalogDir)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestBindFlags_ExplicitFlagOverridesDefault(t *testing.T) {
	resetViper()
	cmd := &cobra.Command{Use: "test"}
	BindFlags(cmd)
	require.NoError(t, cmd.PersistentFlags().Set("max-concurrency", "3"))
	require.NoError(t, cmd.PersistentFlags().Set("catalog-dir", "/etc/flowctl/catalog"))

	cfg := Load()
	assert.Equal(t, 3, cfg.MaxConcurrency)
	assert.Equal(t, "/etc/flowctl/catalog", cfg.CatalogDir)
}

func TestLoad_ClampsOutOfRangeConcurrency(t *testing.T) {
	resetViper()
	cmd := &cobra.Command{Use: "test"}
	BindFlags(cmd)
	require.NoError(t, cmd.PersistentFlags().Set("max-concurrency", "0"))

	cfg := Load()
	assert.Equal(t, 10, cfg.MaxConcurrency)
}

func TestEngineConfig_ValidateRejectsEmptyCatalogDir(t *testing.T) {
	cfg := &EngineConfig{CatalogDir: ""}
	assert.Error(t, cfg.Validate())
}

func TestEngineConfig_NewLoggerSelectsFormat(t *testing.T) {
	cfg := &EngineConfig{LogFormat: "json", LogLevel: "info"}
	logger := cfg.NewLogger()
	require.NotNil(t, logger)
}
