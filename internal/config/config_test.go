package config

import (
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.BufferSize != 8192 {
		t.Errorf("expected buffer_size 8192, got %d", cfg.BufferSize)
	}

	if !cfg.Daemonize {
		t.Error("expected daemonize to default to true")
	}

	if cfg.LogLevel != "info" {
		t.Errorf("expected log_level 'info', got %q", cfg.LogLevel)
	}

	if cfg.LogConsole {
		t.Error("expected log_console to default to false")
	}

	if cfg.RuntimeDir != "/run/maildropd" {
		t.Errorf("expected runtime_dir '/run/maildropd', got %q", cfg.RuntimeDir)
	}

	if cfg.SocketGroup != "maildrop" {
		t.Errorf("expected socket_group 'maildrop', got %q", cfg.SocketGroup)
	}

	if cfg.User != "maildrop" {
		t.Errorf("expected user 'maildrop', got %q", cfg.User)
	}

	if cfg.Metrics.Enabled {
		t.Error("expected metrics to default to disabled")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero buffer_size",
			modify:  func(c *Config) { c.BufferSize = 0 },
			wantErr: true,
		},
		{
			name:    "negative buffer_size",
			modify:  func(c *Config) { c.BufferSize = -1 },
			wantErr: true,
		},
		{
			name:    "unknown log_level",
			modify:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: true,
		},
		{
			name:    "notice log_level",
			modify:  func(c *Config) { c.LogLevel = "notice" },
			wantErr: false,
		},
		{
			name:    "empty runtime_dir",
			modify:  func(c *Config) { c.RuntimeDir = "" },
			wantErr: true,
		},
		{
			name:    "empty socket_group",
			modify:  func(c *Config) { c.SocketGroup = "" },
			wantErr: true,
		},
		{
			name:    "empty user",
			modify:  func(c *Config) { c.User = "" },
			wantErr: true,
		},
		{
			name: "metrics enabled without address",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Address = ""
			},
			wantErr: true,
		},
		{
			name: "metrics enabled without path",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Path = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
