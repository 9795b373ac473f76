// Package config handles loading, parsing, and validating application configuration.
// file: internal/config/config_test.go.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "stdio", cfg.Downstream.Kind)
	assert.Equal(t, 5*time.Second, cfg.Downstream.ShutdownGrace)
	assert.False(t, cfg.Guardrail.Enabled)
	assert.False(t, cfg.Guardrail.FailOpen, "Fail-closed is the default for a security boundary.")
	assert.False(t, cfg.Proxy.Visualize)
	assert.NotEmpty(t, cfg.Storage.TrustPath)
	assert.NotEmpty(t, cfg.Storage.QuarantinePath)
}

func TestLoadFromFile_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
storage:
  trust_path: /var/lib/toolgate/trust.json
downstream:
  kind: stdio
  identifier: "python3 server.py"
  shutdown_grace: 2s
guardrail:
  enabled: true
  patterns:
    - "BEGIN RSA PRIVATE KEY"
proxy:
  visualize: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/toolgate/trust.json", cfg.Storage.TrustPath)
	assert.NotEmpty(t, cfg.Storage.QuarantinePath, "Unset fields keep their defaults.")
	assert.Equal(t, "python3 server.py", cfg.Downstream.Identifier)
	assert.Equal(t, 2*time.Second, cfg.Downstream.ShutdownGrace)
	assert.True(t, cfg.Guardrail.Enabled)
	assert.Equal(t, []string{"BEGIN RSA PRIVATE KEY"}, cfg.Guardrail.Patterns)
	assert.True(t, cfg.Proxy.Visualize)
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("downstream: [not a mapping"), 0600))
	_, err = LoadFromFile(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.Downstream.Identifier = "cat"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown kind", func(c *Config) { c.Downstream.Kind = "telnet" }},
		{"empty identifier", func(c *Config) { c.Downstream.Identifier = "" }},
		{"non-positive grace", func(c *Config) { c.Downstream.ShutdownGrace = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Downstream.Identifier = "cat"
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("TOOLGATE_TRUST_PATH", "/tmp/override-trust.json")
	t.Setenv("TOOLGATE_VISUALIZE", "true")
	t.Setenv("TOOLGATE_SHUTDOWN_GRACE", "7s")

	cfg := DefaultConfig()
	assert.Equal(t, "/tmp/override-trust.json", cfg.Storage.TrustPath)
	assert.True(t, cfg.Proxy.Visualize)
	assert.Equal(t, 7*time.Second, cfg.Downstream.ShutdownGrace)
}

func TestEnvironmentOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("TOOLGATE_VISUALIZE", "sometimes")
	t.Setenv("TOOLGATE_SHUTDOWN_GRACE", "-3s")

	cfg := DefaultConfig()
	assert.False(t, cfg.Proxy.Visualize)
	assert.Equal(t, 5*time.Second, cfg.Downstream.ShutdownGrace)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	expanded, err := ExpandHome("~/x/y.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "y.json"), expanded)

	unchanged, err := ExpandHome("/abs/path.json")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path.json", unchanged)
}
