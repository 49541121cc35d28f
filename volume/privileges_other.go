//go:build !unix

package volume

import (
	"errors"

	"github.com/fahmaliyi/volcred/credential"
)

// HostPrivileges reports an elevated process: raw device access is granted by
// the platform, so ownership is never reassigned.
type HostPrivileges struct{}

func (HostPrivileges) IsElevated() bool                { return true }
func (HostPrivileges) IsDevice(string) bool            { return false }
func (HostPrivileges) CurrentUser() credential.OwnerID { return credential.NoOwner }

func (HostPrivileges) Owner(string) (credential.OwnerID, error) {
	return credential.NoOwner, errors.New("volume: device ownership is not supported on this platform")
}

func (HostPrivileges) SetOwner(string, credential.OwnerID) error {
	return errors.New("volume: device ownership is not supported on this platform")
}
