package lifecycle

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
)

// daemonEnv marks the re-executed child so Start can tell the two
// phases apart. Go cannot fork-and-continue, so daemonization is a
// re-exec of our own binary with the bound listener inherited as an
// extra file descriptor.
const daemonEnv = "MAILDROPD_DAEMONIZED"

// listenerFD is the descriptor number the inherited socket lands on
// in the child: the first ExtraFiles entry after stdin/stdout/stderr.
const listenerFD = 3

// Daemonized reports whether this process is the re-executed child.
func Daemonized() bool {
	return os.Getenv(daemonEnv) == "1"
}

// reExec launches a detached copy of the current binary with the
// bound listener passed down, then returns in the parent. The child
// runs in its own session with the standard streams pointed at
// /dev/null.
func reExec(ln net.Listener) error {
	uln, ok := ln.(*net.UnixListener)
	if !ok {
		return fmt.Errorf("listener is %T, not a unix listener", ln)
	}
	f, err := uln.File()
	if err != nil {
		return fmt.Errorf("duplicating listener descriptor: %w", err)
	}
	defer f.Close()

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(execPath, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonEnv+"=1")
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.ExtraFiles = []*os.File{f}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting detached process: %w", err)
	}
	// Deliberately not waited on: the child outlives us and is
	// reparented to init when we exit.
	return nil
}

// inheritedListener recovers the unix listener passed down by reExec.
func inheritedListener() (net.Listener, error) {
	f := os.NewFile(listenerFD, "maildropd-socket")
	if f == nil {
		return nil, fmt.Errorf("descriptor %d not inherited", listenerFD)
	}
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("rebuilding listener from descriptor %d: %w", listenerFD, err)
	}
	return ln, nil
}
