package credential

// Decision is the outcome of the security policy gate.
type Decision int

const (
	Allow Decision = iota
	Confirm
	Block
)

func (d Decision) String() string {
	switch d {
	case Confirm:
		return "confirm"
	case Block:
		return "block"
	default:
		return "allow"
	}
}

// Verdict is the gate's answer for a candidate credential change. A Confirm
// verdict carries the advisory to put to the operator and the field to
// return to if they decline. A Block verdict carries the error.
type Verdict struct {
	Decision Decision
	Advisory string
	Key      string
	Focus    Field
	Err      error
}

const (
	AdvisoryShortPassword = "The new password is short. Short passwords are easy to crack. Proceed anyway?"
	AdvisoryLowPIM        = "The new PIM is small, which lowers the number of key derivation iterations. Proceed anyway?"
)

// EvaluatePolicy runs the weak-credential gate for a change in mode from cur
// to next. It only reads next's password and PIM for ChangePasswordAndKeyfiles.
func EvaluatePolicy(mode Mode, cur, next Set) Verdict {
	if cur.Legacy && cur.Kdf.DisallowedInLegacy() {
		return block(ErrKdfLegacyIncompatible, FieldNone)
	}
	if mode != ChangePasswordAndKeyfiles {
		return Verdict{Decision: Allow}
	}

	pw := next.Password
	if err := pw.CheckPortability(); err != nil {
		return block(err, FieldNone)
	}
	if pw.IsEmpty() {
		return Verdict{Decision: Allow}
	}

	short := pw.Len() < WarningSizeThreshold
	lowPIM := next.PIM < MinSafePIM
	switch {
	case short && lowPIM:
		return block(ErrShortPasswordLowPIM, FieldNewPassword)
	case short:
		return Verdict{Decision: Confirm, Advisory: AdvisoryShortPassword, Key: "PASSWORD_LENGTH_WARNING", Focus: FieldNewPassword}
	case lowPIM:
		return Verdict{Decision: Confirm, Advisory: AdvisoryLowPIM, Key: "PIM_SMALL_WARNING", Focus: FieldNewPIM}
	}
	return Verdict{Decision: Allow}
}

func block(err error, focus Field) Verdict {
	e := Classify(err)
	if focus != FieldNone {
		e = &Error{Kind: e.Kind, Key: e.Key, Focus: focus, Cause: e.Cause}
	}
	return Verdict{Decision: Block, Key: e.Key, Focus: e.Focus, Err: e}
}

// Resolve turns a verdict into an error, asking prompt when the verdict
// needs confirmation. A nil result means the change may proceed.
func (v Verdict) Resolve(prompt ConfirmationPrompt) error {
	switch v.Decision {
	case Block:
		return v.Err
	case Confirm:
		if prompt != nil && prompt.Ask(v.Advisory) {
			return nil
		}
		return &Error{Kind: KindDeclined, Key: v.Key, Focus: v.Focus, Cause: ErrDeclined}
	}
	return nil
}
