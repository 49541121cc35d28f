package credential

import "fmt"

// LegacyDisallowedKdf names the KDF that legacy-format headers cannot use.
const LegacyDisallowedKdf = "HMAC-SHA-256"

// Kdf identifies a header key derivation function and the hash it is built on.
type Kdf struct {
	Name string
	Hash string
}

func (k *Kdf) String() string {
	if k == nil {
		return "autodetect"
	}
	return k.Name
}

// DisallowedInLegacy reports whether the KDF cannot be used with a legacy header.
func (k *Kdf) DisallowedInLegacy() bool {
	return k != nil && k.Name == LegacyDisallowedKdf
}

// HashName returns the hash of k, or "" when no KDF was chosen.
func (k *Kdf) HashName() string {
	if k == nil {
		return ""
	}
	return k.Hash
}

var (
	KdfSHA512  = &Kdf{Name: "HMAC-SHA-512", Hash: "SHA-512"}
	KdfSHA256  = &Kdf{Name: "HMAC-SHA-256", Hash: "SHA-256"}
	KdfBLAKE2s = &Kdf{Name: "HMAC-BLAKE2s-256", Hash: "BLAKE2s-256"}
	KdfArgon2  = &Kdf{Name: "Argon2id", Hash: "BLAKE2b-512"}
)

// Kdfs lists every supported KDF in preference order.
var Kdfs = []*Kdf{KdfSHA512, KdfSHA256, KdfBLAKE2s, KdfArgon2}

// LookupKdf returns the KDF called name. An empty name selects none.
func LookupKdf(name string) (*Kdf, error) {
	if name == "" {
		return nil, nil
	}
	for _, k := range Kdfs {
		if k.Name == name {
			return k, nil
		}
	}
	return nil, fmt.Errorf("credential: unknown key derivation function %q", name)
}
