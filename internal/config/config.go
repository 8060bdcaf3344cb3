// Package config provides configuration management for the delivery daemon.
//
// Configuration is split across two files matching their sensitivity:
// the main file carries daemon options and filter rules, the account
// file carries destination accounts and their credentials. The account
// file is read once, while the process is still privileged.
package config

import (
	"errors"
	"fmt"

	"github.com/maildropd/maildropd/internal/filter"
	"github.com/maildropd/maildropd/internal/logging"
)

// DestinationKind selects one of the closed set of destination variants.
type DestinationKind string

const (
	// KindRemote is a remote IMAP account reached over TLS.
	KindRemote DestinationKind = "remote"
	// KindMaildirFlat is a single maildir at the configured path.
	KindMaildirFlat DestinationKind = "maildir-flat"
	// KindMaildirHier treats each folder as a child maildir under the path.
	KindMaildirHier DestinationKind = "maildir-hier"
)

// Config holds the complete daemon configuration for one run.
type Config struct {
	BufferSize  int    `toml:"buffer_size"`
	Daemonize   bool   `toml:"daemonize"`
	LogLevel    string `toml:"log_level"`
	LogConsole  bool   `toml:"log_console"`
	RuntimeDir  string `toml:"runtime_dir"`
	SocketGroup string `toml:"socket_group"`
	User        string `toml:"user"`

	Metrics MetricsConfig `toml:"metrics"`

	// Filters holds the active rule set in declaration order. Rules
	// that failed to compile were dropped at load time with a warning.
	Filters []filter.Rule `toml:"-"`

	// Destinations holds every configured destination, in declaration
	// order. The set is all-or-nothing: any invalid destination aborts
	// the load.
	Destinations []DestinationConfig `toml:"-"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// DestinationConfig is a validated destination descriptor. Kind decides
// which of the remaining fields are meaningful.
type DestinationConfig struct {
	Name string
	Kind DestinationKind

	// Remote accounts.
	Host     string
	Port     int
	Username string
	Password string

	// Local maildirs.
	Path string

	// Folder is the selected IMAP mailbox for remote accounts and the
	// optional sub-folder for local maildirs.
	Folder string
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		BufferSize:  8192,
		Daemonize:   true,
		LogLevel:    "info",
		LogConsole:  false,
		RuntimeDir:  "/run/maildropd",
		SocketGroup: "maildrop",
		User:        "maildrop",
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9099",
			Path:    "/metrics",
		},
	}
}

// Validate checks the fixed daemon options. Destination validation is
// separate (it probes the network and filesystem) and runs at startup.
func (c *Config) Validate() error {
	if c.BufferSize <= 0 {
		return errors.New("buffer_size must be positive")
	}

	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}

	if c.RuntimeDir == "" {
		return errors.New("runtime_dir is required")
	}

	if c.SocketGroup == "" {
		return errors.New("socket_group is required")
	}

	if c.User == "" {
		return errors.New("user is required")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}

	return nil
}
