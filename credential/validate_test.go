package credential

import "testing"

func TestValidate_EmptyCurrentNeverAllowed(t *testing.T) {
	for m := range capabilityTable {
		req := newRequest(t, m)
		req.New.Password = pw("a much longer password")
		req.New.Confirm = pw("a much longer password")
		req.New.Keyfiles = KeyfileList{"/keys/a"}

		if Validate(req).Allowed {
			t.Errorf("%v: allowed with empty current password and keyfiles", m)
		}
	}
}

func TestValidate_RemoveAllKeyfiles(t *testing.T) {
	tests := []struct {
		name     string
		password string
		keyfiles KeyfileList
		want     bool
	}{
		{"password and keyfiles", "secret", KeyfileList{"/keys/a"}, true},
		{"password only", "secret", nil, false},
		{"keyfiles only", "", KeyfileList{"/keys/a"}, false},
		{"empty keyfile list", "secret", KeyfileList{}, false},
		{"nothing", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t, RemoveAllKeyfiles)
			req.Current.Password = pw(tt.password)
			req.Current.Keyfiles = tt.keyfiles
			// New fields are never consulted for this mode.
			req.New.Password = pw("ignored")

			if got := Validate(req).Allowed; got != tt.want {
				t.Errorf("Allowed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate_ChangeKeyfiles(t *testing.T) {
	tests := []struct {
		name        string
		password    string
		keyfiles    KeyfileList
		newKeyfiles KeyfileList
		want        bool
	}{
		{"add keyfiles to password volume", "secret", nil, KeyfileList{"/keys/a"}, true},
		{"replace keyfiles", "secret", KeyfileList{"/keys/a"}, KeyfileList{"/keys/b"}, true},
		{"remove keyfiles keeping password", "secret", KeyfileList{"/keys/a"}, nil, true},
		{"remove all keyfiles without password", "", KeyfileList{"/keys/a"}, nil, false},
		{"no keyfiles before or after", "secret", nil, nil, false},
		{"replace keyfiles without password", "", KeyfileList{"/keys/a"}, KeyfileList{"/keys/b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t, ChangeKeyfiles)
			req.Current.Password = pw(tt.password)
			req.Current.Keyfiles = tt.keyfiles
			req.New.Keyfiles = tt.newKeyfiles

			if got := Validate(req).Allowed; got != tt.want {
				t.Errorf("Allowed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate_ChangePasswordAndKeyfiles(t *testing.T) {
	tests := []struct {
		name        string
		newPassword string
		confirm     string
		newKeyfiles KeyfileList
		want        bool
	}{
		{"new password", "correct horse battery", "correct horse battery", nil, true},
		{"new keyfiles only", "", "", KeyfileList{"/keys/a"}, true},
		{"nothing new", "", "", nil, false},
		{"mismatched confirmation", "correct horse battery", "correct horse batter", nil, false},
		{"mismatched confirmation with keyfiles", "correct horse battery", "", KeyfileList{"/keys/a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t, ChangePasswordAndKeyfiles)
			req.Current.Password = pw("old password")
			req.Current.Keyfiles = KeyfileList{"/keys/old"}
			req.New.Password = pw(tt.newPassword)
			req.New.Confirm = pw(tt.confirm)
			req.New.Keyfiles = tt.newKeyfiles

			if got := Validate(req).Allowed; got != tt.want {
				t.Errorf("Allowed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate_ChangePkcs5PrfIgnoresNewFields(t *testing.T) {
	req := newRequest(t, ChangePkcs5Prf)
	req.Current.Password = pw("secret")
	req.New.Password = pw("one")
	req.New.Confirm = pw("two")
	req.New.Kdf = KdfBLAKE2s

	res := Validate(req)
	if !res.Allowed {
		t.Error("expected KDF change to be allowed")
	}
	if res.PimChanged {
		t.Error("PimChanged is only reported for password changes")
	}
}

func TestValidate_PimChanged(t *testing.T) {
	req := newRequest(t, ChangePasswordAndKeyfiles)
	req.Current.Password = pw("old password")
	req.New.Password = pw("new password!")
	req.New.Confirm = pw("new password!")

	if Validate(req).PimChanged {
		t.Error("PIM unchanged but PimChanged reported")
	}
	req.New.PIM = 500
	if !Validate(req).PimChanged {
		t.Error("PIM changed but not reported")
	}
}

func TestValidate_Idempotent(t *testing.T) {
	req := newRequest(t, ChangeKeyfiles)
	req.Current.Password = pw("secret")
	req.New.Keyfiles = KeyfileList{"/keys/a"}

	first := Validate(req)
	for i := 0; i < 100; i++ {
		if got := Validate(req); got != first {
			t.Fatalf("call %d returned %+v, want %+v", i, got, first)
		}
	}
}

func TestDerive(t *testing.T) {
	cur := Set{
		Password: pw("old password"),
		Keyfiles: KeyfileList{"/keys/old"},
		Kdf:      KdfSHA512,
		PIM:      600,
		Legacy:   true,
	}
	next := Set{
		Password: pw("new password!"),
		Confirm:  pw("new password!"),
		Keyfiles: KeyfileList{"/keys/new"},
		Kdf:      KdfArgon2,
		PIM:      900,
	}

	tests := []struct {
		mode     Mode
		password string
		keyfiles int
		kdf      *Kdf
		pim      int
	}{
		{ChangePasswordAndKeyfiles, "new password!", 1, KdfArgon2, 900},
		{ChangeKeyfiles, "old password", 1, KdfSHA512, 600},
		{RemoveAllKeyfiles, "old password", 0, KdfSHA512, 600},
		{ChangePkcs5Prf, "old password", 1, KdfArgon2, 600},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			req := newRequest(t, tt.mode)
			req.Current = cur
			req.New = next

			got, err := Derive(req)
			if err != nil {
				t.Fatalf("Derive failed: %v", err)
			}
			if string(got.Password.Bytes()) != tt.password {
				t.Errorf("password = %q, want %q", got.Password.Bytes(), tt.password)
			}
			if len(got.Keyfiles) != tt.keyfiles {
				t.Errorf("keyfiles = %v", got.Keyfiles)
			}
			if tt.keyfiles == 1 && tt.mode == ChangeKeyfiles && got.Keyfiles[0] != "/keys/new" {
				t.Errorf("keyfiles = %v, want new keyfiles", got.Keyfiles)
			}
			if got.Kdf != tt.kdf {
				t.Errorf("kdf = %v, want %v", got.Kdf, tt.kdf)
			}
			if got.PIM != tt.pim {
				t.Errorf("pim = %d, want %d", got.PIM, tt.pim)
			}
			if got.Legacy {
				t.Error("rekeyed header should leave legacy mode")
			}
		})
	}
}

func TestDerive_KeepsCurrentKdfWhenNoneChosen(t *testing.T) {
	req := newRequest(t, ChangePkcs5Prf)
	req.Current.Password = pw("secret")
	req.Current.Kdf = KdfBLAKE2s

	got, err := Derive(req)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kdf != KdfBLAKE2s {
		t.Errorf("kdf = %v", got.Kdf)
	}
}
