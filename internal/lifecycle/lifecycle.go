// Package lifecycle manages the daemon's process state on disk and the
// privileged portion of startup: the PID marker and socket artifact
// under the runtime directory, binding the control socket while still
// root, optional daemonization, and the irreversible privilege drop.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	// PidFileName is the PID marker created inside the runtime directory.
	PidFileName = "maildropd.pid"

	// SocketFileName is the control socket created inside the runtime
	// directory.
	SocketFileName = "maildropd.sock"
)

var (
	// ErrNotPrivileged is returned when a root-only operation is
	// attempted without euid 0.
	ErrNotPrivileged = errors.New("operation requires root privileges")

	// ErrAlreadyRunning is returned by Start when the PID marker
	// already exists.
	ErrAlreadyRunning = errors.New("daemon already running (pid file exists)")
)

// PidPath returns the PID marker path for a runtime directory.
func PidPath(runtimeDir string) string {
	return filepath.Join(runtimeDir, PidFileName)
}

// SocketPath returns the control socket path for a runtime directory.
func SocketPath(runtimeDir string) string {
	return filepath.Join(runtimeDir, SocketFileName)
}

// Status is the observable process state derived purely from the
// runtime directory contents. No signal is sent to any process.
type Status int

const (
	// StatusNotRunning means neither artifact exists.
	StatusNotRunning Status = iota

	// StatusRunning means both the PID marker and the socket exist.
	StatusRunning

	// StatusInconsistent means exactly one artifact exists, indicating
	// a crash or an interrupted start/stop.
	StatusInconsistent
)

// String returns the status name for log and CLI output.
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusInconsistent:
		return "inconsistent"
	default:
		return "not running"
	}
}

// ExitCode maps the status onto the conventional service exit codes:
// 0 running, 1 inconsistent, 3 not running.
func (s Status) ExitCode() int {
	switch s {
	case StatusRunning:
		return 0
	case StatusInconsistent:
		return 1
	default:
		return 3
	}
}

// Check inspects the runtime directory and reports the daemon status.
func Check(runtimeDir string) Status {
	pidExists := fileExists(PidPath(runtimeDir))
	sockExists := fileExists(SocketPath(runtimeDir))

	switch {
	case pidExists && sockExists:
		return StatusRunning
	case pidExists || sockExists:
		return StatusInconsistent
	default:
		return StatusNotRunning
	}
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// WritePidFile records the current process PID in the runtime
// directory. Called after daemonization so the recorded PID is the
// surviving process.
func WritePidFile(runtimeDir string) error {
	data := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(PidPath(runtimeDir), []byte(data), 0o644); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	return nil
}

// ReadPidFile returns the PID recorded in the runtime directory.
func ReadPidFile(runtimeDir string) (int, error) {
	data, err := os.ReadFile(PidPath(runtimeDir))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", PidPath(runtimeDir), err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("malformed pid file %s: pid %d out of range", PidPath(runtimeDir), pid)
	}
	return pid, nil
}

// RemoveArtifacts deletes the PID marker and socket if present.
// Missing files are not an error; the first real failure is returned
// after both removals are attempted.
func RemoveArtifacts(runtimeDir string) error {
	var firstErr error
	for _, path := range []string{PidPath(runtimeDir), SocketPath(runtimeDir)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			if firstErr == nil {
				firstErr = fmt.Errorf("removing %s: %w", path, err)
			}
		}
	}
	return firstErr
}

// StartConfig carries the parameters of the privileged start sequence.
// Serve is invoked with the bound listener once privileges are
// dropped; it owns the listener and runs until ctx is cancelled.
type StartConfig struct {
	RuntimeDir  string
	SocketGroup string
	User        string
	Daemonize   bool
	Logger      *slog.Logger
	Serve       func(ctx context.Context, ln net.Listener) error
}

// Start runs the privileged startup sequence: refuse to run twice,
// bind the control socket as root, optionally daemonize, record the
// PID, drop privileges, then hand the listener to Serve. On return
// the listener is closed but the on-disk artifacts are left in place;
// removing them is Stop's responsibility.
func Start(ctx context.Context, sc StartConfig) error {
	if os.Geteuid() != 0 {
		return ErrNotPrivileged
	}
	logger := sc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var ln net.Listener
	if Daemonized() {
		// Child of the re-exec: the parent already bound the socket
		// and passed it down as an inherited descriptor.
		var err error
		ln, err = inheritedListener()
		if err != nil {
			return fmt.Errorf("recovering inherited socket: %w", err)
		}
	} else {
		if fileExists(PidPath(sc.RuntimeDir)) {
			return ErrAlreadyRunning
		}
		if err := os.MkdirAll(sc.RuntimeDir, 0o755); err != nil {
			return fmt.Errorf("creating runtime directory: %w", err)
		}

		var err error
		ln, err = bindSocket(SocketPath(sc.RuntimeDir), sc.SocketGroup)
		if err != nil {
			return err
		}

		if sc.Daemonize {
			if err := reExec(ln); err != nil {
				ln.Close()
				return fmt.Errorf("daemonizing: %w", err)
			}
			// Parent: the child carries on with the listener. Close
			// our copy and report success to the invoking shell.
			ln.Close()
			return nil
		}
	}
	defer ln.Close()

	if err := WritePidFile(sc.RuntimeDir); err != nil {
		return err
	}

	if err := DropPrivileges(sc.User); err != nil {
		// Still privileged: a start that never reached the serving
		// state must not leave artifacts behind.
		_ = RemoveArtifacts(sc.RuntimeDir)
		return fmt.Errorf("dropping privileges: %w", err)
	}
	logger.Info("privileges dropped", "user", sc.User, "pid", os.Getpid())

	return sc.Serve(ctx, ln)
}

// bindSocket creates the unix listener and restricts it to root and
// the configured group. Group write is what lets unprivileged local
// submitters reach the daemon.
func bindSocket(path, group string) (net.Listener, error) {
	// A leftover socket from an unclean shutdown blocks the bind.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", path, err)
	}

	gid, err := lookupGroupID(group)
	if err != nil {
		ln.Close()
		return nil, err
	}
	if err := os.Chown(path, 0, gid); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chowning socket to root:%s: %w", group, err)
	}
	if err := os.Chmod(path, 0o660); err != nil {
		ln.Close()
		return nil, fmt.Errorf("setting socket mode: %w", err)
	}
	return ln, nil
}

// Stop terminates a running daemon and removes its artifacts. A
// missing PID marker means the daemon is already stopped: Stop then
// succeeds without touching anything else. When a marker exists the
// artifacts are removed whether or not a process was found, so Stop
// also cleans up after a crash.
func Stop(runtimeDir string, logger *slog.Logger) error {
	if os.Geteuid() != 0 {
		return ErrNotPrivileged
	}
	return stop(runtimeDir, logger)
}

func stop(runtimeDir string, logger *slog.Logger) error {
	pid, err := ReadPidFile(runtimeDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("already stopped", "runtime_dir", runtimeDir)
		return nil
	case err != nil:
		// Malformed marker: nothing to signal, but still clean up.
		logger.Warn("unreadable pid file, removing artifacts", "error", err)
		return RemoveArtifacts(runtimeDir)
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("signalling pid %d: %w", pid, err)
		}
		logger.Warn("stale pid file, process not found", "pid", pid)
	} else {
		logger.Info("sent SIGTERM", "pid", pid)
		waitForExit(pid, 10*time.Second)
	}

	return RemoveArtifacts(runtimeDir)
}

// waitForExit polls until the process disappears or the deadline
// passes. Signal 0 probes existence without delivering anything.
func waitForExit(pid int, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}
