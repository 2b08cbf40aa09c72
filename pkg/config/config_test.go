package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoadAppliesFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"http_port": 9090, "accepted_model_classes": ["NothingEtl"]}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, []string{"NothingEtl"}, cfg.AcceptedModelClasses)
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("FOSSA_HTTP_PORT", "7000")
	t.Setenv("FOSSA_DEBUG", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.HTTPPort)
	assert.True(t, cfg.Debug)
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPPort = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBrokerBackedWithoutURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IsolatedProcessor = IsolatedProcessorConfig{Kind: ProcessorBrokerBacked}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsSubprocessWithoutChildBinary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IsolatedProcessor = IsolatedProcessorConfig{Kind: ProcessorSubprocess}
	assert.Error(t, cfg.Validate())
}

func TestSaveAndLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	cfg.HTTPPort = 8123
	require.NoError(t, cfg.SaveToFile(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8123, reloaded.HTTPPort)
}
