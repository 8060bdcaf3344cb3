package config

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/maildropd/maildropd/internal/filter"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath  string
	AccountPath string
	RuntimeDir  string
	Foreground  bool
}

// ParseFlags parses command-line flags and returns a Flags struct.
func ParseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", "/etc/maildropd/maildropd.toml", "Path to main configuration file")
	flag.StringVar(&f.AccountPath, "accounts", "/etc/maildropd/accounts.toml", "Path to account configuration file")
	flag.StringVar(&f.RuntimeDir, "runtime-dir", "", "Runtime directory for PID marker and socket")
	flag.BoolVar(&f.Foreground, "foreground", false, "Stay in the foreground regardless of the daemonize setting")

	flag.Parse()
	return f
}

// ApplyFlags merges command-line flag values into the config.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.RuntimeDir != "" {
		cfg.RuntimeDir = f.RuntimeDir
	}
	if f.Foreground {
		cfg.Daemonize = false
	}
	return cfg
}

// Load reads the main configuration file and then the account file, in
// that order, so a broken account file never leaves filters
// half-applied. Fatal problems (unreadable file, bad TOML, missing
// required destination keys) return an error; individually broken
// filter rules are skipped and reported as warnings.
func Load(mainPath, accountPath string, includeFilters bool) (Config, []string, error) {
	cfg := Default()
	var warnings []string

	mainData, err := os.ReadFile(mainPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(mainData, &cfg); err != nil {
		return cfg, nil, fmt.Errorf("parsing config file: %w", err)
	}

	if includeFilters {
		rules, ws, err := parseFilterSections(mainData)
		if err != nil {
			return cfg, nil, fmt.Errorf("parsing %s: %w", mainPath, err)
		}
		cfg.Filters = rules
		warnings = append(warnings, ws...)
	}

	accountData, err := os.ReadFile(accountPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("reading account file: %w", err)
	}

	if info, err := os.Stat(accountPath); err == nil {
		if info.Mode().Perm()&0o044 != 0 {
			warnings = append(warnings, fmt.Sprintf("account file %s is readable by other users", accountPath))
		}
	}

	dests, err := parseDestinationSections(accountData)
	if err != nil {
		return cfg, nil, fmt.Errorf("parsing %s: %w", accountPath, err)
	}
	if len(dests) == 0 {
		return cfg, nil, fmt.Errorf("account file %s declares no destinations", accountPath)
	}
	cfg.Destinations = dests

	return cfg, warnings, nil
}

// LoadWithFlags loads configuration from the paths specified in flags,
// then applies flag overrides.
func LoadWithFlags(f *Flags, includeFilters bool) (Config, []string, error) {
	cfg, warnings, err := Load(f.ConfigPath, f.AccountPath, includeFilters)
	if err != nil {
		return cfg, warnings, err
	}
	return ApplyFlags(cfg, f), warnings, nil
}

// tableHeader matches a TOML table header line, quoted or bare.
var tableHeader = regexp.MustCompile(`^\s*\[\s*(?:"([^"]+)"|([^"\]]+?))\s*\]\s*(?:#.*)?$`)

// orderedTables scans raw TOML for table headers in file order. TOML
// unmarshals into unordered maps, but rule and destination sections
// are declaration-ordered, so order is recovered from the source text.
func orderedTables(data []byte) []string {
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if m := tableHeader.FindStringSubmatch(scanner.Text()); m != nil {
			if m[1] != "" {
				names = append(names, m[1])
			} else {
				names = append(names, strings.TrimSpace(m[2]))
			}
		}
	}
	return names
}

// parseFilterSections extracts "filter <field> <ident>" sections.
// Sections that do not look like filters are ignored; filter sections
// that fail to compile are skipped with a warning rather than aborting
// the load.
func parseFilterSections(data []byte) ([]filter.Rule, []string, error) {
	var sections map[string]any
	if err := toml.Unmarshal(data, &sections); err != nil {
		return nil, nil, err
	}

	var rules []filter.Rule
	var warnings []string
	for _, name := range orderedTables(data) {
		words := strings.Fields(name)
		if len(words) == 0 || !strings.EqualFold(words[0], "filter") {
			continue
		}
		if len(words) != 3 {
			warnings = append(warnings, fmt.Sprintf("section [%s]: want \"filter <field> <name>\", skipping", name))
			continue
		}

		field, ok := filter.ParseField(words[1])
		if !ok {
			warnings = append(warnings, fmt.Sprintf("section [%s]: unknown field %q, skipping", name, words[1]))
			continue
		}

		body, ok := sections[name].(map[string]any)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("section [%s]: not a table, skipping", name))
			continue
		}

		pattern, err := stringKey(body, name, "pattern")
		if err != nil {
			warnings = append(warnings, err.Error()+", skipping")
			continue
		}
		replace, err := stringKey(body, name, "replace")
		if err != nil {
			warnings = append(warnings, err.Error()+", skipping")
			continue
		}

		rule, err := filter.Compile(words[2], field, pattern, replace)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("section [%s]: %v, skipping", name, err))
			continue
		}
		rules = append(rules, rule)
	}

	return rules, warnings, nil
}

// parseDestinationSections extracts "<kind> <ident>" sections from the
// account file. Unlike filters, any invalid destination aborts the
// whole load: the account set is all-or-nothing.
func parseDestinationSections(data []byte) ([]DestinationConfig, error) {
	var sections map[string]any
	if err := toml.Unmarshal(data, &sections); err != nil {
		return nil, err
	}

	var dests []DestinationConfig
	for _, name := range orderedTables(data) {
		words := strings.Fields(name)
		if len(words) != 2 {
			return nil, fmt.Errorf("section [%s]: want \"<kind> <name>\"", name)
		}

		body, ok := sections[name].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("section [%s]: not a table", name)
		}

		dest := DestinationConfig{Name: words[1], Kind: DestinationKind(strings.ToLower(words[0]))}

		var err error
		switch dest.Kind {
		case KindRemote:
			if dest.Host, err = stringKey(body, name, "host"); err != nil {
				return nil, err
			}
			if dest.Port, err = intKey(body, name, "port", 993); err != nil {
				return nil, err
			}
			if dest.Username, err = stringKey(body, name, "username"); err != nil {
				return nil, err
			}
			if dest.Password, err = stringKey(body, name, "password"); err != nil {
				return nil, err
			}
			if dest.Folder, err = optionalStringKey(body, name, "folder", "INBOX"); err != nil {
				return nil, err
			}
		case KindMaildirFlat, KindMaildirHier:
			if dest.Path, err = stringKey(body, name, "path"); err != nil {
				return nil, err
			}
			if dest.Folder, err = optionalStringKey(body, name, "folder", ""); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("section [%s]: unknown destination kind %q", name, words[0])
		}

		dests = append(dests, dest)
	}

	return dests, nil
}

func stringKey(section map[string]any, sectionName, key string) (string, error) {
	v, ok := section[key]
	if !ok {
		return "", fmt.Errorf("section [%s]: missing required key %q", sectionName, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("section [%s]: key %q must be a string", sectionName, key)
	}
	return s, nil
}

func optionalStringKey(section map[string]any, sectionName, key, def string) (string, error) {
	v, ok := section[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("section [%s]: key %q must be a string", sectionName, key)
	}
	return s, nil
}

func intKey(section map[string]any, sectionName, key string, def int) (int, error) {
	v, ok := section[key]
	if !ok {
		return def, nil
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("section [%s]: key %q must be an integer", sectionName, key)
	}
	if n <= 0 || n > 65535 {
		return 0, fmt.Errorf("section [%s]: key %q out of range", sectionName, key)
	}
	return int(n), nil
}
