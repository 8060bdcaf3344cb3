package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maildropd/maildropd/internal/filter"
)

const validMain = `
buffer_size = 4096
daemonize = false
log_level = "notice"
log_console = true

[metrics]
enabled = true
address = ":9099"
path = "/metrics"

["filter from strip-plus"]
pattern = '\+[^@]*@'
replace = "@"

["filter subject drop-bulk"]
pattern = '^\[bulk\]\s*'
replace = ""
`

const validAccounts = `
["remote work"]
host = "imap.example.com"
port = 1993
username = "user"
password = "secret"
folder = "Archive"

["maildir-flat local"]
path = "/var/mail/archive"

["maildir-hier sorted"]
path = "/var/mail/sorted"
folder = "inbound"
`

func writeTempFile(t *testing.T, name, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	mainPath := writeTempFile(t, "maildropd.toml", validMain, 0o644)
	accountPath := writeTempFile(t, "accounts.toml", validAccounts, 0o600)

	cfg, warnings, err := Load(mainPath, accountPath, true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	if cfg.BufferSize != 4096 {
		t.Errorf("buffer_size = %d, want 4096", cfg.BufferSize)
	}
	if cfg.Daemonize {
		t.Error("daemonize should be false")
	}
	if cfg.LogLevel != "notice" {
		t.Errorf("log_level = %q, want 'notice'", cfg.LogLevel)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should be enabled")
	}

	if len(cfg.Filters) != 2 {
		t.Fatalf("expected 2 filter rules, got %d", len(cfg.Filters))
	}
	if cfg.Filters[0].Name != "strip-plus" || cfg.Filters[0].Field != filter.FieldFrom {
		t.Errorf("first rule = %q on %q, want strip-plus on From", cfg.Filters[0].Name, cfg.Filters[0].Field)
	}
	if cfg.Filters[1].Name != "drop-bulk" || cfg.Filters[1].Field != filter.FieldSubject {
		t.Errorf("second rule = %q on %q, want drop-bulk on Subject", cfg.Filters[1].Name, cfg.Filters[1].Field)
	}

	if len(cfg.Destinations) != 3 {
		t.Fatalf("expected 3 destinations, got %d", len(cfg.Destinations))
	}

	remote := cfg.Destinations[0]
	if remote.Kind != KindRemote || remote.Name != "work" {
		t.Errorf("first destination = %q %q, want remote work", remote.Kind, remote.Name)
	}
	if remote.Host != "imap.example.com" || remote.Port != 1993 {
		t.Errorf("remote endpoint = %s:%d, want imap.example.com:1993", remote.Host, remote.Port)
	}
	if remote.Folder != "Archive" {
		t.Errorf("remote folder = %q, want 'Archive'", remote.Folder)
	}

	flat := cfg.Destinations[1]
	if flat.Kind != KindMaildirFlat || flat.Path != "/var/mail/archive" {
		t.Errorf("second destination = %q at %q", flat.Kind, flat.Path)
	}
	if flat.Folder != "" {
		t.Errorf("flat folder = %q, want empty", flat.Folder)
	}

	hier := cfg.Destinations[2]
	if hier.Kind != KindMaildirHier || hier.Folder != "inbound" {
		t.Errorf("third destination = %q folder %q", hier.Kind, hier.Folder)
	}
}

func TestLoadRemotePortDefault(t *testing.T) {
	accounts := `
["remote noport"]
host = "imap.example.com"
username = "u"
password = "p"
`
	mainPath := writeTempFile(t, "main.toml", "", 0o644)
	accountPath := writeTempFile(t, "accounts.toml", accounts, 0o600)

	cfg, _, err := Load(mainPath, accountPath, true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Destinations[0].Port != 993 {
		t.Errorf("port = %d, want default 993", cfg.Destinations[0].Port)
	}
	if cfg.Destinations[0].Folder != "INBOX" {
		t.Errorf("folder = %q, want default 'INBOX'", cfg.Destinations[0].Folder)
	}
}

func TestLoadBadFilterIsSkippedWithWarning(t *testing.T) {
	main := `
["filter from broken"]
pattern = '([unclosed'
replace = ""

["filter from fine"]
pattern = 'a'
replace = "b"

["filter sender wrongfield"]
pattern = 'a'
replace = "b"
`
	mainPath := writeTempFile(t, "main.toml", main, 0o644)
	accountPath := writeTempFile(t, "accounts.toml", validAccounts, 0o600)

	cfg, warnings, err := Load(mainPath, accountPath, true)
	if err != nil {
		t.Fatalf("Load() error = %v (bad filters must not abort)", err)
	}

	if len(cfg.Filters) != 1 || cfg.Filters[0].Name != "fine" {
		t.Errorf("active rules = %v, want only 'fine'", cfg.Filters)
	}
	if len(warnings) != 2 {
		t.Errorf("expected 2 warnings, got %d: %v", len(warnings), warnings)
	}
}

func TestLoadBadReplacementIsSkipped(t *testing.T) {
	main := `
["filter to overref"]
pattern = '(a)'
replace = "$2"
`
	mainPath := writeTempFile(t, "main.toml", main, 0o644)
	accountPath := writeTempFile(t, "accounts.toml", validAccounts, 0o600)

	cfg, warnings, err := Load(mainPath, accountPath, true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Filters) != 0 {
		t.Errorf("expected no active rules, got %d", len(cfg.Filters))
	}
	if len(warnings) != 1 {
		t.Errorf("expected 1 warning, got %v", warnings)
	}
}

func TestLoadIgnoresUnrecognizedMainSections(t *testing.T) {
	main := `
buffer_size = 1024

[somethingelse]
key = "value"
`
	mainPath := writeTempFile(t, "main.toml", main, 0o644)
	accountPath := writeTempFile(t, "accounts.toml", validAccounts, 0o600)

	cfg, _, err := Load(mainPath, accountPath, true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BufferSize != 1024 {
		t.Errorf("buffer_size = %d, want 1024", cfg.BufferSize)
	}
}

func TestLoadAccountErrors(t *testing.T) {
	tests := []struct {
		name     string
		accounts string
	}{
		{
			name: "missing required key",
			accounts: `
["remote nohost"]
username = "u"
password = "p"
`,
		},
		{
			name: "bad integer",
			accounts: `
["remote badport"]
host = "h"
port = "not-a-number"
username = "u"
password = "p"
`,
		},
		{
			name: "port out of range",
			accounts: `
["remote bigport"]
host = "h"
port = 70000
username = "u"
password = "p"
`,
		},
		{
			name: "unknown kind",
			accounts: `
["mbox legacy"]
path = "/var/mail/user"
`,
		},
		{
			name: "malformed section name",
			accounts: `
["remote"]
host = "h"
username = "u"
password = "p"
`,
		},
		{
			name:     "no destinations at all",
			accounts: "# empty\n",
		},
	}

	mainPath := writeTempFile(t, "main.toml", "", 0o644)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accountPath := writeTempFile(t, "accounts.toml", tt.accounts, 0o600)
			if _, _, err := Load(mainPath, accountPath, true); err == nil {
				t.Error("expected load error, got nil (account set must be all-or-nothing)")
			}
		})
	}
}

func TestLoadMissingFilesAreFatal(t *testing.T) {
	accountPath := writeTempFile(t, "accounts.toml", validAccounts, 0o600)
	if _, _, err := Load("/nonexistent/main.toml", accountPath, true); err == nil {
		t.Error("expected error for missing main file")
	}

	mainPath := writeTempFile(t, "main.toml", "", 0o644)
	if _, _, err := Load(mainPath, "/nonexistent/accounts.toml", true); err == nil {
		t.Error("expected error for missing account file")
	}
}

func TestLoadWithoutFilters(t *testing.T) {
	mainPath := writeTempFile(t, "main.toml", validMain, 0o644)
	accountPath := writeTempFile(t, "accounts.toml", validAccounts, 0o600)

	cfg, _, err := Load(mainPath, accountPath, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Filters) != 0 {
		t.Errorf("expected no filters when includeFilters=false, got %d", len(cfg.Filters))
	}
	if len(cfg.Destinations) != 3 {
		t.Errorf("destinations should still load, got %d", len(cfg.Destinations))
	}
}

func TestLoadWarnsOnWorldReadableAccounts(t *testing.T) {
	mainPath := writeTempFile(t, "main.toml", "", 0o644)
	accountPath := writeTempFile(t, "accounts.toml", validAccounts, 0o644)

	_, warnings, err := Load(mainPath, accountPath, true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	found := false
	for _, w := range warnings {
		if strings.Contains(w, "readable by other users") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected permissions warning, got %v", warnings)
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := Default()
	cfg = ApplyFlags(cfg, &Flags{RuntimeDir: "/tmp/test-run", Foreground: true})

	if cfg.RuntimeDir != "/tmp/test-run" {
		t.Errorf("runtime_dir = %q, want '/tmp/test-run'", cfg.RuntimeDir)
	}
	if cfg.Daemonize {
		t.Error("foreground flag should clear daemonize")
	}
}
