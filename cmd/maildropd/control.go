package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/maildropd/maildropd/internal/config"
	"github.com/maildropd/maildropd/internal/lifecycle"
	"github.com/maildropd/maildropd/internal/logging"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// resolveRuntimeDir reads the configured runtime directory without
// requiring a valid account file; control subcommands must work even
// when the daemon's own configuration is broken.
func resolveRuntimeDir(flags *config.Flags) string {
	if flags.RuntimeDir != "" {
		return flags.RuntimeDir
	}
	cfg, _, err := config.Load(flags.ConfigPath, flags.AccountPath, false)
	if err != nil {
		return config.Default().RuntimeDir
	}
	return cfg.RuntimeDir
}

func runStop() {
	flags := config.ParseFlags()
	runtimeDir := resolveRuntimeDir(flags)

	logger := logging.NewLogger("info", true)
	if err := lifecycle.Stop(runtimeDir, logger); err != nil {
		if errors.Is(err, lifecycle.ErrNotPrivileged) {
			fmt.Fprintln(os.Stderr, "stop: must be run as root")
		} else {
			fmt.Fprintf(os.Stderr, "stop: %v\n", err)
		}
		os.Exit(1)
	}
}

func runStatus() {
	flags := config.ParseFlags()
	runtimeDir := resolveRuntimeDir(flags)

	status := lifecycle.Check(runtimeDir)
	fmt.Printf("maildropd is %s\n", status)
	os.Exit(status.ExitCode())
}

func runInfo() {
	flags := config.ParseFlags()

	fmt.Printf("maildropd %s\n", version)
	fmt.Println("local mail delivery daemon: filters and fans out one message per connection")
	fmt.Printf("  main config:    %s\n", flags.ConfigPath)
	fmt.Printf("  account config: %s\n", flags.AccountPath)

	cfg, warnings, err := config.LoadWithFlags(flags, true)
	if err != nil {
		fmt.Printf("  config state:   unreadable (%v)\n", err)
		return
	}
	fmt.Printf("  runtime dir:    %s\n", cfg.RuntimeDir)
	fmt.Printf("  socket:         %s\n", lifecycle.SocketPath(cfg.RuntimeDir))
	fmt.Printf("  run as:         %s (socket group %s)\n", cfg.User, cfg.SocketGroup)
	fmt.Printf("  filters:        %d\n", len(cfg.Filters))
	fmt.Printf("  destinations:   %d\n", len(cfg.Destinations))
	for _, d := range cfg.Destinations {
		switch d.Kind {
		case config.KindRemote:
			fmt.Printf("    %-20s %s %s:%d folder %s\n", d.Name, d.Kind, d.Host, d.Port, d.Folder)
		default:
			fmt.Printf("    %-20s %s %s\n", d.Name, d.Kind, d.Path)
		}
	}
	for _, w := range warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}
