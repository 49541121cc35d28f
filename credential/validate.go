package credential

// Result is the answer of Validate for the current state of a request.
type Result struct {
	// Allowed reports whether the request may be submitted.
	Allowed bool
	// PimChanged drives the PIM help text for ChangePasswordAndKeyfiles.
	PimChanged bool
}

// Validate decides whether req may currently be submitted. It has no side
// effects and is meant to be called after every edit of either credential set.
// Fields of req.New that the mode does not enable are never read.
func Validate(req *ChangeRequest) Result {
	caps, err := CapabilitiesOf(req.Mode)
	if err != nil {
		return Result{}
	}

	cur := req.Current
	pwEmpty := cur.Password.IsEmpty()
	kfEmpty := cur.Keyfiles.IsEmpty()

	ok := !(pwEmpty && kfEmpty)

	if req.Mode == RemoveAllKeyfiles && (pwEmpty || kfEmpty) {
		ok = false
	}

	if caps.NewKeyfiles {
		newKfEmpty := req.New.Keyfiles.IsEmpty()

		if req.Mode == ChangeKeyfiles && ((pwEmpty && newKfEmpty) || (kfEmpty && newKfEmpty)) {
			ok = false
		}

		if caps.NewPassword && ((req.New.Password.IsEmpty() && newKfEmpty) || !req.New.PasswordsMatch()) {
			ok = false
		}
	}

	res := Result{Allowed: ok}
	if caps.NewPassword {
		res.PimChanged = cur.PIM != req.New.PIM
	}
	return res
}

// Derive builds the credential set the volume will be rekeyed to. Inputs the
// mode does not enable are carried forward from the current set.
func Derive(req *ChangeRequest) (Set, error) {
	caps, err := CapabilitiesOf(req.Mode)
	if err != nil {
		return Set{}, err
	}

	cur := req.Current
	next := Set{
		Password: cur.Password,
		Keyfiles: cur.Keyfiles.Clone(),
		Kdf:      cur.Kdf,
		PIM:      cur.PIM,
	}
	if caps.NewPassword {
		next.Password = req.New.Password
		next.PIM = req.New.PIM
	}
	if caps.NewKeyfiles {
		next.Keyfiles = req.New.Keyfiles.Clone()
	}
	if req.Mode == RemoveAllKeyfiles {
		next.Keyfiles = nil
	}
	if caps.KdfChoice && req.New.Kdf != nil {
		next.Kdf = req.New.Kdf
	}
	next.Confirm = next.Password
	return next, nil
}
