// Command mail-submit is the local submission client for maildropd.
// It takes recipients as command-line arguments, reads a message from
// standard input in the manner of sendmail (until EOF or a line
// holding a single dot), stamps the envelope headers and hands the
// result to the daemon over its unix socket.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/maildropd/maildropd/internal/lifecycle"
	"github.com/maildropd/maildropd/internal/message"
)

// sysexits.h codes, so MTAs and cron treat failures correctly.
const (
	exUsage    = 64
	exDataErr  = 65
	exTempFail = 75
)

var socketPath = flag.String("socket", lifecycle.SocketPath("/run/maildropd"),
	"Path to the maildropd control socket")

func usage() {
	fmt.Fprintf(os.Stderr, `usage: mail-submit [flags] [recipient ...]

Reads a message from standard input until EOF or a line containing a
single ".", rewrites the envelope headers and submits it to a running
maildropd. Recipients given as arguments replace any To header; a bare
name without "@" is completed with the local hostname. With no
recipients the message must already carry a To header.

Flags:
`)
	flag.PrintDefaults()
}

// tempExit reports a failure the caller should retry later.
func tempExit(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "mail-submit: "+format+"\n", args...)
	os.Exit(exTempFail)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	raw, err := readInput(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mail-submit: reading input: %v\n", err)
		os.Exit(exDataErr)
	}

	hostname, err := os.Hostname()
	if err != nil {
		tempExit("determining hostname: %v", err)
	}
	u, err := user.Current()
	if err != nil {
		tempExit("determining current user: %v", err)
	}

	msg, err := prepare(raw, flag.Args(), u.Username, hostname, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "mail-submit: %v\n", err)
		os.Exit(exUsage)
	}

	if err := submit(*socketPath, msg); err != nil {
		tempExit("%v", err)
	}
}

// readInput consumes stdin until EOF or a line holding exactly ".",
// preserving the message bytes as given otherwise.
func readInput(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimRight(line, "\r") == "." {
			break
		}
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// prepare parses the raw input and rewrites the envelope headers:
// From and Date always reflect the submitting user and the submission
// time; recipients given on the command line replace any To header.
func prepare(raw []byte, recipients []string, username, hostname string, now time.Time) (*message.Message, error) {
	msg, err := message.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing message: %w", err)
	}

	if len(recipients) > 0 {
		completed := make([]string, len(recipients))
		for i, r := range recipients {
			if !strings.Contains(r, "@") {
				r = r + "@" + hostname
			}
			completed[i] = r
		}
		msg.Header.Set("To", strings.Join(completed, ", "))
	} else if msg.Header.Get("To") == "" {
		return nil, fmt.Errorf("no recipients: give them as arguments or in a To header")
	}

	msg.Header.Set("From", username+"@"+hostname)
	msg.Header.Set("Date", now.Format(time.RFC1123Z))
	return msg, nil
}

// submit writes the message over one connection and closes the write
// side so the daemon sees EOF and takes delivery.
func submit(socketPath string, msg *message.Message) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connecting to %s (is maildropd running?): %w", socketPath, err)
	}
	defer conn.Close()

	raw, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("serializing message: %w", err)
	}
	if _, err := conn.Write(raw); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return fmt.Errorf("closing write side: %w", err)
		}
	}
	return nil
}
