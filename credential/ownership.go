package credential

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// OwnershipGuard holds temporary ownership of a device. Release restores the
// prior owner and is safe to call more than once.
type OwnershipGuard struct {
	ops   PrivilegeOps
	path  string
	prior OwnerID
	once  sync.Once
	err   error
}

// AcquireOwnership takes ownership of path for the current user when the
// process is unprivileged and path is a raw device. Otherwise it returns a
// guard whose Release does nothing.
func AcquireOwnership(ops PrivilegeOps, path string) (*OwnershipGuard, error) {
	g := &OwnershipGuard{ops: ops, path: path, prior: NoOwner}
	if ops == nil || ops.IsElevated() || !ops.IsDevice(path) {
		return g, nil
	}

	prior, err := ops.Owner(path)
	if err != nil {
		return nil, fmt.Errorf("read owner of %s: %w", path, err)
	}
	if err := ops.SetOwner(path, ops.CurrentUser()); err != nil {
		return nil, fmt.Errorf("take ownership of %s: %w", path, err)
	}
	g.prior = prior

	log.Debug().Str("device", path).Int("prior_owner", int(prior)).Msg("Took temporary device ownership")
	return g, nil
}

// Held reports whether ownership was reassigned by AcquireOwnership.
func (g *OwnershipGuard) Held() bool {
	return g.prior != NoOwner
}

func (g *OwnershipGuard) Release() error {
	g.once.Do(func() {
		if g.prior == NoOwner {
			return
		}
		if err := g.ops.SetOwner(g.path, g.prior); err != nil {
			log.Error().Err(err).Str("device", g.path).Msg("Failed to restore device owner")
			g.err = fmt.Errorf("%w: %s: %w", ErrOwnerNotRestored, g.path, err)
			return
		}
		log.Debug().Str("device", g.path).Int("owner", int(g.prior)).Msg("Restored device owner")
	})
	return g.err
}
