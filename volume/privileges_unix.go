//go:build unix

package volume

import (
	"os"

	"github.com/fahmaliyi/volcred/credential"
	"golang.org/x/sys/unix"
)

// HostPrivileges implements credential.PrivilegeOps for the running process.
type HostPrivileges struct{}

func (HostPrivileges) IsElevated() bool { return unix.Geteuid() == 0 }

func (HostPrivileges) IsDevice(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode()&os.ModeDevice != 0
}

func (HostPrivileges) CurrentUser() credential.OwnerID {
	return credential.OwnerID(unix.Getuid())
}

func (HostPrivileges) Owner(path string) (credential.OwnerID, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return credential.NoOwner, err
	}
	return credential.OwnerID(st.Uid), nil
}

func (HostPrivileges) SetOwner(path string, owner credential.OwnerID) error {
	return unix.Chown(path, int(owner), -1)
}
