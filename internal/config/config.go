// Package config handles loading, parsing, and validating application configuration.
// It defines the structure for configuration settings, provides default values,
// loads settings from files (YAML), and applies overrides from environment variables.
// file: internal/config/config.go.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/toolgate/toolgate/internal/logging"
	"gopkg.in/yaml.v3"
)

// StorageConfig contains the locations of the two durable stores.
type StorageConfig struct {
	// TrustPath is the file path of the trust store (approved server configs).
	// Supports '~' expansion for home directory.
	TrustPath string `yaml:"trust_path"`
	// QuarantinePath is the file path of the quarantine store (withheld tool responses).
	QuarantinePath string `yaml:"quarantine_path"`
}

// DownstreamConfig describes how to reach the downstream server being proxied.
type DownstreamConfig struct {
	// Kind is the transport kind: stdio, sse, or http.
	Kind string `yaml:"kind"`
	// Identifier is the literal command line (stdio) or URL (sse/http) used to
	// reach the server. Together with Kind it keys the trust store record.
	Identifier string `yaml:"identifier"`
	// ShutdownGrace bounds how long a spawned child process is given to exit
	// after a termination signal before it is force-killed.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// GuardrailConfig controls output screening behavior.
type GuardrailConfig struct {
	// Enabled turns output screening on. When off, tool outputs pass through.
	Enabled bool `yaml:"enabled"`
	// FailOpen selects the policy for classifier failures: true forwards the
	// output, false quarantines it. Fail-closed is the default for a security
	// boundary.
	FailOpen bool `yaml:"fail_open"`
	// Patterns is the deny-list used by the built-in pattern provider.
	Patterns []string `yaml:"patterns"`
}

// ProxyConfig contains settings for the proxy session itself.
type ProxyConfig struct {
	// Visualize enables rewriting of terminal escape introducers in all text
	// crossing the boundary to an inert literal marker.
	Visualize bool `yaml:"visualize"`
	// RequestTimeout bounds a single forwarded downstream call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Config is the root configuration structure for the toolgate application.
type Config struct {
	// Storage holds the durable store file locations.
	Storage StorageConfig `yaml:"storage"`
	// Downstream describes the server being proxied.
	Downstream DownstreamConfig `yaml:"downstream"`
	// Guardrail holds output screening settings.
	Guardrail GuardrailConfig `yaml:"guardrail"`
	// Proxy holds per-session proxy settings.
	Proxy ProxyConfig `yaml:"proxy"`
}

// DefaultConfig returns a configuration populated with default values.
// Store files default to the user's config directory.
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	baseDir := "."
	if err == nil {
		baseDir = filepath.Join(homeDir, ".config", "toolgate")
	}

	cfg := &Config{
		Storage: StorageConfig{
			TrustPath:      filepath.Join(baseDir, "trust.json"),
			QuarantinePath: filepath.Join(baseDir, "quarantine.json"),
		},
		Downstream: DownstreamConfig{
			Kind:          "stdio",
			ShutdownGrace: 5 * time.Second,
		},
		Guardrail: GuardrailConfig{
			Enabled:  false,
			FailOpen: false,
		},
		Proxy: ProxyConfig{
			Visualize:      false,
			RequestTimeout: 30 * time.Second,
		},
	}
	applyEnvironmentOverrides(cfg, logging.GetLogger("config_default"))
	return cfg
}

// LoadFromFile loads configuration from the specified YAML file path.
// It starts with default values, merges the values from the YAML file,
// and finally applies any environment variable overrides.
// Supports '~' expansion in the file path.
func LoadFromFile(path string) (*Config, error) {
	expanded, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- Path comes from command-line flag or default, considered trusted input.
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file: %s", expanded)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file YAML: %s", expanded)
	}

	applyEnvironmentOverrides(config, logging.GetLogger("config_load"))
	return config, nil
}

// Validate checks the configuration for structural problems that would make
// the proxy unable to start.
func (c *Config) Validate() error {
	switch c.Downstream.Kind {
	case "stdio", "sse", "http":
	default:
		return errors.Newf("invalid downstream kind: %q (must be stdio, sse, or http)", c.Downstream.Kind)
	}
	if c.Downstream.Identifier == "" {
		return errors.New("downstream identifier must not be empty")
	}
	if c.Downstream.ShutdownGrace <= 0 {
		return errors.New("downstream shutdown_grace must be positive")
	}
	return nil
}

// ExpandHome expands a leading '~' in a path to the user's home directory.
func ExpandHome(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "failed to get home directory to expand path")
		}
		return filepath.Join(homeDir, path[1:]), nil
	}
	return path, nil
}

// applyEnvironmentOverrides applies configuration overrides from environment
// variables. Environment variables take precedence over values set in
// configuration files or defaults.
func applyEnvironmentOverrides(config *Config, logger logging.Logger) {
	if trustPath := os.Getenv("TOOLGATE_TRUST_PATH"); trustPath != "" {
		logger.Debug("Overriding trust store path from environment.", "envVar", "TOOLGATE_TRUST_PATH", "value", trustPath)
		config.Storage.TrustPath = trustPath
	}
	if quarantinePath := os.Getenv("TOOLGATE_QUARANTINE_PATH"); quarantinePath != "" {
		logger.Debug("Overriding quarantine store path from environment.", "envVar", "TOOLGATE_QUARANTINE_PATH", "value", quarantinePath)
		config.Storage.QuarantinePath = quarantinePath
	}
	if visualize := os.Getenv("TOOLGATE_VISUALIZE"); visualize != "" {
		if v, err := strconv.ParseBool(visualize); err == nil {
			logger.Debug("Overriding visualize mode from environment.", "envVar", "TOOLGATE_VISUALIZE", "value", v)
			config.Proxy.Visualize = v
		} else {
			logger.Warn("Invalid TOOLGATE_VISUALIZE environment variable ignored.", "value", visualize, "error", err)
		}
	}
	if failOpen := os.Getenv("TOOLGATE_GUARDRAIL_FAIL_OPEN"); failOpen != "" {
		if v, err := strconv.ParseBool(failOpen); err == nil {
			logger.Debug("Overriding guardrail failure policy from environment.", "envVar", "TOOLGATE_GUARDRAIL_FAIL_OPEN", "value", v)
			config.Guardrail.FailOpen = v
		} else {
			logger.Warn("Invalid TOOLGATE_GUARDRAIL_FAIL_OPEN environment variable ignored.", "value", failOpen, "error", err)
		}
	}
	if grace := os.Getenv("TOOLGATE_SHUTDOWN_GRACE"); grace != "" {
		if d, err := time.ParseDuration(grace); err == nil && d > 0 {
			logger.Debug("Overriding shutdown grace from environment.", "envVar", "TOOLGATE_SHUTDOWN_GRACE", "value", d)
			config.Downstream.ShutdownGrace = d
		} else {
			logger.Warn("Invalid TOOLGATE_SHUTDOWN_GRACE environment variable ignored.", "value", grace, "error", err)
		}
	}
}
