package volume

import (
	"errors"
	"fmt"

	"github.com/fahmaliyi/volcred/credential"
)

const (
	Magic      = "VCRD"
	Version    = 0x01
	HeaderSize = 512

	SaltLen      = 64
	NonceLen     = 24
	MasterKeyLen = 64
	HeaderKeyLen = 32

	KeyfilePoolSize = 64
	KeyfileMaxRead  = 1 << 20

	flagLegacy uint16 = 1 << 0
)

var (
	ErrCorrupt      = errors.New("volume: corrupt header")
	ErrTooSmall     = errors.New("volume: too small to hold both headers")
	ErrEmptyKeyfile = errors.New("volume: keyfile is empty")
)

// kdfIDs maps KDF names to their on-disk identifiers.
var kdfIDs = map[string]uint8{
	credential.KdfSHA512.Name:  0x01,
	credential.KdfSHA256.Name:  0x02,
	credential.KdfBLAKE2s.Name: 0x03,
	credential.KdfArgon2.Name:  0x04,
}

func kdfByID(id uint8) (*credential.Kdf, error) {
	for _, k := range credential.Kdfs {
		if kdfIDs[k.Name] == id {
			return k, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown kdf id %#x", ErrCorrupt, id)
}

type fileHeader struct {
	Flags   uint16
	KDFAlgo uint8
	Salt    []byte
	Nonce   []byte
	Sealed  []byte
}

func (h fileHeader) legacy() bool { return h.Flags&flagLegacy != 0 }

// Info describes an unlocked volume.
type Info struct {
	Path        string
	Kdf         *credential.Kdf
	Legacy      bool
	Size        int64
	PayloadSize int64
	// UsedBackup is set when the primary header could not be opened.
	UsedBackup bool
}
