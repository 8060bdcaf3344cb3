package destination

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/emersion/go-maildir"

	"github.com/maildropd/maildropd/internal/config"
	"github.com/maildropd/maildropd/internal/message"
)

// localMaildir appends messages to an on-disk maildir. Two layouts are
// supported: "maildir-flat" keeps one maildir at the configured path
// with optional Maildir++ dot-folders, "maildir-hier" treats each
// folder as a plain child directory that is itself a maildir.
type localMaildir struct {
	name   string
	kind   config.DestinationKind
	root   string
	folder string
	owner  string
}

func newMaildir(dc config.DestinationConfig, owner string) *localMaildir {
	return &localMaildir{
		name:   dc.Name,
		kind:   dc.Kind,
		root:   dc.Path,
		folder: dc.Folder,
		owner:  owner,
	}
}

func (m *localMaildir) Name() string { return m.name }

func (m *localMaildir) Kind() string { return string(m.kind) }

// dir resolves the maildir the optional sub-folder points at.
func (m *localMaildir) dir() maildir.Dir {
	if m.folder == "" {
		return maildir.Dir(m.root)
	}
	if m.kind == config.KindMaildirFlat {
		return maildir.Dir(filepath.Join(m.root, "."+m.folder))
	}
	return maildir.Dir(filepath.Join(m.root, m.folder))
}

// open creates the cur/new/tmp structure if absent and verifies it is
// usable.
func (m *localMaildir) open() (maildir.Dir, error) {
	if err := os.MkdirAll(m.root, 0o700); err != nil {
		return "", fmt.Errorf("creating %s: %w", m.root, err)
	}

	d := m.dir()
	if err := d.Init(); err != nil {
		return "", fmt.Errorf("initializing maildir %s: %w", string(d), err)
	}
	return d, nil
}

// Validate ensures the maildir exists and is writable. It runs during
// startup, before the privilege drop, so directories created here are
// chowned to the serving user.
func (m *localMaildir) Validate(ctx context.Context) error {
	d, err := m.open()
	if err != nil {
		return err
	}
	if err := m.handOver(d); err != nil {
		return err
	}

	// Init tolerates some permission problems; probe tmp explicitly.
	probe, err := os.CreateTemp(filepath.Join(string(d), "tmp"), "probe-")
	if err != nil {
		return fmt.Errorf("maildir %s is not writable: %w", string(d), err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// handOver chowns the maildir structure to the serving user. Appends
// happen after the privilege drop, so anything created while
// privileged would otherwise be unwritable then. No-op when not root.
func (m *localMaildir) handOver(d maildir.Dir) error {
	if m.owner == "" || os.Geteuid() != 0 {
		return nil
	}
	u, err := user.Lookup(m.owner)
	if err != nil {
		return fmt.Errorf("looking up owner %q: %w", m.owner, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("owner %q has non-numeric uid %q", m.owner, u.Uid)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("owner %q has non-numeric gid %q", m.owner, u.Gid)
	}

	dirs := []string{m.root, string(d)}
	for _, sub := range []string{"tmp", "new", "cur"} {
		dirs = append(dirs, filepath.Join(string(d), sub))
	}
	for _, dir := range dirs {
		if err := os.Chown(dir, uid, gid); err != nil {
			return fmt.Errorf("chowning %s to %s: %w", dir, m.owner, err)
		}
	}
	return nil
}

// Append writes the message into tmp and moves it to new.
func (m *localMaildir) Append(ctx context.Context, msg *message.Message) error {
	d, err := m.open()
	if err != nil {
		return err
	}

	del, err := maildir.NewDelivery(string(d))
	if err != nil {
		return fmt.Errorf("starting delivery to %s: %w", string(d), err)
	}

	if _, err := msg.WriteTo(io.Writer(del)); err != nil {
		_ = del.Abort()
		return fmt.Errorf("writing message to %s: %w", string(d), err)
	}

	if err := del.Close(); err != nil {
		return fmt.Errorf("finishing delivery to %s: %w", string(d), err)
	}
	return nil
}
