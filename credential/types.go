package credential

import (
	"crypto/subtle"

	"github.com/google/uuid"
)

const (
	// MinSafePIM is the lowest PIM whose iteration count matches the default one.
	MinSafePIM = 485

	// WarningSizeThreshold is the password length below which a strengthened PIM is required.
	WarningSizeThreshold = 12

	MaxPasswordSize       = 128
	MaxLegacyPasswordSize = 64

	DefaultWipePasses = 3
)

// Password is an opaque secret. The zero value is the empty password.
type Password struct {
	b []byte
}

func NewPassword(b []byte) Password {
	c := make([]byte, len(b))
	copy(c, b)
	return Password{b: c}
}

func (p Password) Len() int       { return len(p.b) }
func (p Password) IsEmpty() bool  { return len(p.b) == 0 }
func (p Password) Bytes() []byte  { return p.b }
func (p Password) String() string { return "********" }

func (p Password) Equal(o Password) bool {
	if len(p.b) != len(o.b) {
		return false
	}
	return subtle.ConstantTimeCompare(p.b, o.b) == 1
}

// CheckPortability rejects bytes outside printable ASCII, which may not be
// typeable on every platform or keyboard layout at mount time.
func (p Password) CheckPortability() error {
	for _, c := range p.b {
		if c < 0x20 || c > 0x7e {
			return ErrUnportablePassword
		}
	}
	return nil
}

// CheckSize enforces the maximum password length for the header format.
func (p Password) CheckSize(legacy bool) error {
	max := MaxPasswordSize
	if legacy {
		max = MaxLegacyPasswordSize
	}
	if len(p.b) > max {
		return ErrPasswordTooLong
	}
	return nil
}

// Zero wipes the password bytes in place.
func (p Password) Zero() {
	for i := range p.b {
		p.b[i] = 0
	}
}

// KeyfileList is an ordered set of keyfile paths. Nil and empty are equivalent.
type KeyfileList []string

func (k KeyfileList) IsEmpty() bool { return len(k) == 0 }

func (k KeyfileList) Clone() KeyfileList {
	if k == nil {
		return nil
	}
	return append(KeyfileList(nil), k...)
}

// Set is one side of a change request: the credentials a volume is unlocked
// with, or the credentials it should be rekeyed to.
type Set struct {
	Password Password
	// Confirm is the repeated entry of Password. Only read for new credentials.
	Confirm  Password
	Keyfiles KeyfileList
	// Kdf is nil when the header's own KDF should be used.
	Kdf    *Kdf
	PIM    int
	Legacy bool
}

// PasswordsMatch reports whether the password and its confirmation agree.
func (s Set) PasswordsMatch() bool {
	return s.Password.Equal(s.Confirm)
}

func (s Set) Clone() Set {
	c := s
	c.Password = NewPassword(s.Password.Bytes())
	c.Confirm = NewPassword(s.Confirm.Bytes())
	c.Keyfiles = s.Keyfiles.Clone()
	return c
}

// Zero wipes both password entries.
func (s Set) Zero() {
	s.Password.Zero()
	s.Confirm.Zero()
}

// ChangeRequest is a single credential change against one volume. It is
// mutated while the operator edits fields and submitted at most once.
type ChangeRequest struct {
	ID                 string
	Mode               Mode
	VolumePath         string
	Current            Set
	New                Set
	PreserveTimestamps bool
	WipePasses         int

	submitted bool
}

// NewChangeRequest creates a request for mode against the volume at path.
func NewChangeRequest(mode Mode, path string) (*ChangeRequest, error) {
	if _, err := CapabilitiesOf(mode); err != nil {
		return nil, err
	}
	return &ChangeRequest{
		ID:                 uuid.New().String(),
		Mode:               mode,
		VolumePath:         path,
		PreserveTimestamps: true,
		WipePasses:         DefaultWipePasses,
	}, nil
}

// Discard wipes every secret held by the request.
func (r *ChangeRequest) Discard() {
	r.Current.Zero()
	r.New.Zero()
}

// Field names an input the operator should be returned to.
type Field int

const (
	FieldNone Field = iota
	FieldCurrentPassword
	FieldNewPassword
	FieldNewPIM
)

func (f Field) String() string {
	switch f {
	case FieldCurrentPassword:
		return "current-password"
	case FieldNewPassword:
		return "new-password"
	case FieldNewPIM:
		return "new-pim"
	default:
		return "none"
	}
}

// Outcome is the success signal of a completed change.
type Outcome int

const (
	OutcomeNone Outcome = iota
	PasswordChanged
	KeyfileChanged
	KdfChanged
)

// Key returns the message key reported to the operator.
func (o Outcome) Key() string {
	switch o {
	case PasswordChanged:
		return "PASSWORD_CHANGED"
	case KeyfileChanged:
		return "KEYFILE_CHANGED"
	case KdfChanged:
		return "PKCS5_PRF_CHANGED"
	default:
		return ""
	}
}

func (o Outcome) String() string {
	switch o {
	case PasswordChanged:
		return "password changed"
	case KeyfileChanged:
		return "keyfiles changed"
	case KdfChanged:
		return "header key derivation algorithm changed"
	default:
		return "none"
	}
}
