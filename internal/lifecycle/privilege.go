package lifecycle

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"
)

// lookupGroupID resolves a group name (or numeric id) to a gid.
func lookupGroupID(name string) (int, error) {
	grp, err := user.LookupGroup(name)
	if err != nil {
		if gid, convErr := strconv.Atoi(name); convErr == nil {
			return gid, nil
		}
		return 0, fmt.Errorf("looking up group %q: %w", name, err)
	}
	gid, err := strconv.Atoi(grp.Gid)
	if err != nil {
		return 0, fmt.Errorf("group %q has non-numeric gid %q", name, grp.Gid)
	}
	return gid, nil
}

// DropPrivileges switches the process to the named unprivileged user
// and verifies the switch took. The drop is irreversible: real,
// effective and saved ids are all replaced, so the process cannot
// regain root afterward.
func DropPrivileges(username string) error {
	u, err := user.Lookup(username)
	if err != nil {
		return fmt.Errorf("looking up user %q: %w", username, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("user %q has non-numeric uid %q", username, u.Uid)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("user %q has non-numeric gid %q", username, u.Gid)
	}
	if uid == 0 {
		return fmt.Errorf("refusing to run as %q: uid 0 is not a privilege drop", username)
	}

	// Supplementary groups first, then GID, then UID. Setting UID first
	// would drop the ability to change the others.
	if err := syscall.Setgroups([]int{gid}); err != nil {
		return fmt.Errorf("setgroups(%d): %w", gid, err)
	}
	if err := syscall.Setresgid(gid, gid, gid); err != nil {
		return fmt.Errorf("setresgid(%d): %w", gid, err)
	}
	if err := syscall.Setresuid(uid, uid, uid); err != nil {
		return fmt.Errorf("setresuid(%d): %w", uid, err)
	}

	// Verify by reading the ids back rather than trusting the calls.
	if got := syscall.Getuid(); got != uid {
		return fmt.Errorf("uid is %d after drop, want %d", got, uid)
	}
	if got := syscall.Geteuid(); got != uid {
		return fmt.Errorf("euid is %d after drop, want %d", got, uid)
	}
	if got := syscall.Getgid(); got != gid {
		return fmt.Errorf("gid is %d after drop, want %d", got, gid)
	}

	// Leave no root-owned environment or cwd behind.
	if err := os.Setenv("HOME", u.HomeDir); err != nil {
		return fmt.Errorf("resetting HOME: %w", err)
	}
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("changing directory to /: %w", err)
	}
	return nil
}
