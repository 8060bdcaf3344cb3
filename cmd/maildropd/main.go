// Command maildropd is a local mail delivery daemon. It accepts one
// RFC 5322 message per unix-socket connection, rewrites headers
// through the configured filter rules and appends the result to every
// configured destination: remote IMAP accounts over TLS and local
// maildirs.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/maildropd/maildropd/internal/lifecycle"
)

func main() {
	// Dispatch to a subcommand before flag.Parse() so the chosen function
	// owns flag parsing. Strip the subcommand from os.Args so flag.Parse
	// sees only flags.
	var subcommand string
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		subcommand = os.Args[1]
		os.Args = append(os.Args[:1], os.Args[2:]...)
	}

	switch subcommand {
	case "start":
		runStart()
	case "":
		// The daemonized child is re-executed without the subcommand;
		// the environment marker routes it back into start.
		if lifecycle.Daemonized() {
			runStart()
			return
		}
		usage()
		os.Exit(1)
	case "stop":
		runStop()
	case "status":
		runStatus()
	case "info":
		runInfo()
	case "cfg-main", "cfgMain":
		fmt.Print(mainTemplate)
	case "cfg-account", "cfgAccount":
		fmt.Print(accountTemplate)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", subcommand)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: maildropd <subcommand> [flags]

subcommands:
  start        start the daemon (requires root)
  stop         stop a running daemon (requires root)
  status       report daemon state (exit 0 running, 1 inconsistent, 3 stopped)
  info         describe this build and its configuration paths
  cfg-main     print an example main configuration file
  cfg-account  print an example account configuration file

flags:
  -config       path to the main configuration file
  -accounts     path to the account configuration file
  -runtime-dir  override the runtime directory
  -foreground   stay in the foreground regardless of the daemonize setting
`)
}
