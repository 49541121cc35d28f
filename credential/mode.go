package credential

import "fmt"

// Mode selects which credentials a change request may replace.
type Mode int

const (
	ChangePasswordAndKeyfiles Mode = iota + 1
	ChangeKeyfiles
	RemoveAllKeyfiles
	ChangePkcs5Prf
)

// Capabilities lists the new-credential inputs a mode makes editable.
type Capabilities struct {
	NewPassword bool
	NewKeyfiles bool
	KdfChoice   bool
	Title       string
	Outcome     Outcome
}

var capabilityTable = map[Mode]Capabilities{
	ChangePasswordAndKeyfiles: {
		NewPassword: true,
		NewKeyfiles: true,
		KdfChoice:   true,
		Title:       "Change Volume Password and Keyfiles",
		Outcome:     PasswordChanged,
	},
	ChangeKeyfiles: {
		NewKeyfiles: true,
		Title:       "Add/Remove Keyfiles to/from Volume",
		Outcome:     KeyfileChanged,
	},
	RemoveAllKeyfiles: {
		Title:   "Remove All Keyfiles from Volume",
		Outcome: KeyfileChanged,
	},
	ChangePkcs5Prf: {
		KdfChoice: true,
		Title:     "Change Header Key Derivation Algorithm",
		Outcome:   KdfChanged,
	},
}

// CapabilitiesOf returns the fixed capability set of mode.
func CapabilitiesOf(mode Mode) (Capabilities, error) {
	c, ok := capabilityTable[mode]
	if !ok {
		return Capabilities{}, &Error{
			Kind:  KindConfiguration,
			Key:   "PARAMETER_INCORRECT",
			Cause: fmt.Errorf("%w: %d", ErrUnknownMode, int(mode)),
		}
	}
	return c, nil
}

func (m Mode) String() string {
	switch m {
	case ChangePasswordAndKeyfiles:
		return "change-password"
	case ChangeKeyfiles:
		return "change-keyfiles"
	case RemoveAllKeyfiles:
		return "remove-keyfiles"
	case ChangePkcs5Prf:
		return "change-kdf"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a command name back to its Mode.
func ParseMode(s string) (Mode, error) {
	for m := range capabilityTable {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, &Error{
		Kind:  KindConfiguration,
		Key:   "PARAMETER_INCORRECT",
		Cause: fmt.Errorf("%w: %q", ErrUnknownMode, s),
	}
}
