// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the veil service.
type Config struct {
	// Environment identifies the deployment type (development,
	// staging, production).
	Environment Environment `yaml:"environment"`

	// Homeserver configures the Matrix homeserver connection.
	Homeserver HomeserverConfig `yaml:"homeserver"`

	// Paths configures file locations.
	Paths PathsConfig `yaml:"paths"`

	// Relay configures the anonymous relay behavior.
	Relay RelayConfig `yaml:"relay"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains fields that can be overridden per environment.
type Overrides struct {
	Homeserver *HomeserverConfig `yaml:"homeserver,omitempty"`
	Paths      *PathsConfig      `yaml:"paths,omitempty"`
	Relay      *RelayConfig      `yaml:"relay,omitempty"`
}

// HomeserverConfig configures the Matrix homeserver connection.
type HomeserverConfig struct {
	// URL is the base URL of the homeserver,
	// e.g. "https://matrix.example.com".
	URL string `yaml:"url"`

	// ServerName is the Matrix server name used in user IDs and
	// aliases, e.g. "example.com". May differ from the URL host.
	ServerName string `yaml:"server_name"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Root is the base directory for veil state.
	// Default: ~/.local/state/veil
	Root string `yaml:"root"`

	// Session is the path to the bot's session file, written by
	// veil-login and read by veil-bot.
	// Default: ${VEIL_ROOT}/session.json
	Session string `yaml:"session"`

	// Database is the path to the SQLite directory database.
	// Default: ${VEIL_ROOT}/directory.db
	Database string `yaml:"database"`

	// AdminSocket is the Unix socket path for the admin endpoint.
	// Default: ${VEIL_ROOT}/admin.sock
	AdminSocket string `yaml:"admin_socket"`
}

// RelayConfig configures the anonymous relay behavior.
type RelayConfig struct {
	// Space is an optional room alias or room ID of the community
	// space the bot joins at startup, e.g. "#community:example.com".
	Space string `yaml:"space"`

	// Trigger is the message prefix that submits text to the relay.
	// Default: "!anon"
	Trigger string `yaml:"trigger"`

	// CommandPrefix is the message prefix for bot commands.
	// Default: "!veil"
	CommandPrefix string `yaml:"command_prefix"`

	// AdminLevel is the power level in the community space granting
	// full administrative privilege. Default: 100.
	AdminLevel int `yaml:"admin_level"`

	// ModeratorLevel is the power level granting channel-management
	// privilege. Default: 50.
	ModeratorLevel int `yaml:"moderator_level"`
}

// Default returns the default configuration. These defaults are the
// base before loading the config file; the file itself is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "state", "veil")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:        defaultRoot,
			Session:     filepath.Join(defaultRoot, "session.json"),
			Database:    filepath.Join(defaultRoot, "directory.db"),
			AdminSocket: filepath.Join(defaultRoot, "admin.sock"),
		},
		Relay: RelayConfig{
			Trigger:        "!anon",
			CommandPrefix:  "!veil",
			AdminLevel:     100,
			ModeratorLevel: 50,
		},
	}
}

// Load loads configuration from the VEIL_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// If VEIL_CONFIG is not set, Load fails; there are no fallbacks.
func Load() (*Config, error) {
	configPath := os.Getenv("VEIL_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("VEIL_CONFIG environment variable not set; " +
			"set it to the path of your veil.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values; the only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// JSON-with-comments documents are stripped down to plain JSON,
	// which the YAML parser accepts directly.
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the section matching
// c.Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Homeserver != nil {
		if overrides.Homeserver.URL != "" {
			c.Homeserver.URL = overrides.Homeserver.URL
		}
		if overrides.Homeserver.ServerName != "" {
			c.Homeserver.ServerName = overrides.Homeserver.ServerName
		}
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.Session != "" {
			c.Paths.Session = overrides.Paths.Session
		}
		if overrides.Paths.Database != "" {
			c.Paths.Database = overrides.Paths.Database
		}
		if overrides.Paths.AdminSocket != "" {
			c.Paths.AdminSocket = overrides.Paths.AdminSocket
		}
	}

	if overrides.Relay != nil {
		if overrides.Relay.Space != "" {
			c.Relay.Space = overrides.Relay.Space
		}
		if overrides.Relay.Trigger != "" {
			c.Relay.Trigger = overrides.Relay.Trigger
		}
		if overrides.Relay.CommandPrefix != "" {
			c.Relay.CommandPrefix = overrides.Relay.CommandPrefix
		}
		if overrides.Relay.AdminLevel != 0 {
			c.Relay.AdminLevel = overrides.Relay.AdminLevel
		}
		if overrides.Relay.ModeratorLevel != 0 {
			c.Relay.ModeratorLevel = overrides.Relay.ModeratorLevel
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"VEIL_ROOT": c.Paths.Root,
		"HOME":      os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["VEIL_ROOT"] = c.Paths.Root // update for dependent paths

	c.Paths.Session = expandVars(c.Paths.Session, vars)
	c.Paths.Database = expandVars(c.Paths.Database, vars)
	c.Paths.AdminSocket = expandVars(c.Paths.AdminSocket, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Homeserver.URL == "" {
		errs = append(errs, fmt.Errorf("homeserver.url is required"))
	}
	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Relay.Trigger == "" {
		errs = append(errs, fmt.Errorf("relay.trigger is required"))
	}
	if c.Relay.CommandPrefix == "" {
		errs = append(errs, fmt.Errorf("relay.command_prefix is required"))
	}
	if c.Relay.CommandPrefix == c.Relay.Trigger {
		errs = append(errs, fmt.Errorf("relay.command_prefix must differ from relay.trigger"))
	}
	if c.Relay.ModeratorLevel > c.Relay.AdminLevel {
		errs = append(errs, fmt.Errorf("relay.moderator_level (%d) must not exceed relay.admin_level (%d)",
			c.Relay.ModeratorLevel, c.Relay.AdminLevel))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the state directory if it does not exist.
func (c *Config) EnsurePaths() error {
	if c.Paths.Root == "" {
		return nil
	}
	if err := os.MkdirAll(c.Paths.Root, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.Root, err)
	}
	return nil
}
