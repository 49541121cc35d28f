package volume

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fahmaliyi/volcred/credential"
	"github.com/fahmaliyi/volcred/entropy"
)

const testPayload = 4096

func creds(password string, keyfiles ...string) credential.Set {
	p := credential.NewPassword([]byte(password))
	// PIM 1 keeps PBKDF2 cheap in tests.
	return credential.Set{Password: p, Confirm: p, Keyfiles: keyfiles, PIM: 1}
}

func newTestVolume(t *testing.T, c credential.Set) (*Store, string) {
	t.Helper()

	s := NewStore(entropy.New())
	path := filepath.Join(t.TempDir(), "test.vc")
	if err := s.Create(path, c, testPayload); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return s, path
}

func payloadOf(t *testing.T, path string) []byte {
	t.Helper()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return raw[HeaderSize : len(raw)-HeaderSize]
}

func writeKeyfile(t *testing.T, dir, name, content string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestIterations(t *testing.T) {
	tests := []struct {
		pim    int
		legacy bool
		want   int
	}{
		{0, false, 500000},
		{credential.MinSafePIM, false, 500000},
		{1, false, 16000},
		{1000, false, 1015000},
		{1000, true, 1000},
	}
	for _, tt := range tests {
		if got := Iterations(tt.pim, tt.legacy); got != tt.want {
			t.Errorf("Iterations(%d, %v) = %d, want %d", tt.pim, tt.legacy, got, tt.want)
		}
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	r := entropy.New()
	h := fileHeader{Flags: flagLegacy, KDFAlgo: 0x03, Salt: bytes.Repeat([]byte{1}, SaltLen), Nonce: bytes.Repeat([]byte{2}, NonceLen), Sealed: []byte("sealed")}

	raw, err := encodeHeader(r, h)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != HeaderSize {
		t.Fatalf("header size = %d", len(raw))
	}
	got, err := decodeHeader(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.Flags != h.Flags || got.KDFAlgo != h.KDFAlgo || !bytes.Equal(got.Salt, h.Salt) || !bytes.Equal(got.Nonce, h.Nonce) || !bytes.Equal(got.Sealed, h.Sealed) {
		t.Errorf("decoded = %+v", got)
	}

	raw[0] = 'X'
	if _, err := decodeHeader(raw); !errors.Is(err, ErrCorrupt) {
		t.Errorf("bad magic err = %v", err)
	}
}

func TestCreateOpen(t *testing.T) {
	s, path := newTestVolume(t, creds("correct horse battery"))

	info, err := s.Open(path, creds("correct horse battery"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if info.Kdf != credential.KdfSHA512 || info.Legacy || info.UsedBackup || info.PayloadSize != testPayload {
		t.Errorf("info = %+v", info)
	}

	if _, err := s.Open(path, creds("wrong password")); !errors.Is(err, credential.ErrPasswordIncorrect) {
		t.Errorf("wrong password err = %v", err)
	}

	wrongPIM := creds("correct horse battery")
	wrongPIM.PIM = 2
	if _, err := s.Open(path, wrongPIM); !errors.Is(err, credential.ErrPasswordIncorrect) {
		t.Errorf("wrong PIM err = %v", err)
	}

	wrongKdf := creds("correct horse battery")
	wrongKdf.Kdf = credential.KdfBLAKE2s
	if _, err := s.Open(path, wrongKdf); !errors.Is(err, credential.ErrPasswordIncorrect) {
		t.Errorf("wrong KDF err = %v", err)
	}

	if _, err := s.Open(path, credential.Set{}); !errors.Is(err, credential.ErrPasswordEmpty) {
		t.Errorf("empty credentials err = %v", err)
	}
}

func TestRekey_ChangePassword(t *testing.T) {
	s, path := newTestVolume(t, creds("old password"))
	before := payloadOf(t, path)

	next := creds("a brand new password")
	next.Kdf = credential.KdfArgon2
	err := s.Rekey(context.Background(), credential.RekeyParams{
		VolumePath: path,
		Current:    creds("old password"),
		New:        next,
		WipePasses: 2,
	})
	if err != nil {
		t.Fatalf("Rekey failed: %v", err)
	}

	if _, err := s.Open(path, creds("old password")); !errors.Is(err, credential.ErrPasswordIncorrect) {
		t.Errorf("old password still opens the volume: %v", err)
	}
	info, err := s.Open(path, creds("a brand new password"))
	if err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if info.Kdf != credential.KdfArgon2 || info.UsedBackup {
		t.Errorf("info = %+v", info)
	}
	if !bytes.Equal(before, payloadOf(t, path)) {
		t.Error("payload changed during rekey")
	}
}

func TestRekey_Keyfiles(t *testing.T) {
	dir := t.TempDir()
	kf := writeKeyfile(t, dir, "a.key", "keyfile a")
	kdir := filepath.Join(dir, "keys")
	if err := os.Mkdir(kdir, 0700); err != nil {
		t.Fatal(err)
	}
	writeKeyfile(t, kdir, "b.key", "keyfile b")
	writeKeyfile(t, kdir, ".hidden", "ignored")

	s, path := newTestVolume(t, creds("password"))

	err := s.Rekey(context.Background(), credential.RekeyParams{
		VolumePath: path,
		Current:    creds("password"),
		New:        creds("password", kf, kdir),
	})
	if err != nil {
		t.Fatalf("Rekey failed: %v", err)
	}

	if _, err := s.Open(path, creds("password")); !errors.Is(err, credential.ErrPasswordIncorrect) {
		t.Errorf("password alone opens keyfile volume: %v", err)
	}
	if _, err := s.Open(path, creds("password", kdir, kf)); !errors.Is(err, credential.ErrPasswordIncorrect) {
		t.Errorf("keyfile order should matter: %v", err)
	}
	if _, err := s.Open(path, creds("password", kf, filepath.Join(kdir, "b.key"))); err != nil {
		t.Errorf("expanded keyfile list rejected: %v", err)
	}

	// Keyfiles only, no password.
	err = s.Rekey(context.Background(), credential.RekeyParams{
		VolumePath: path,
		Current:    creds("password", kf, kdir),
		New:        creds("", kf),
	})
	if err != nil {
		t.Fatalf("Rekey to keyfile-only failed: %v", err)
	}
	if _, err := s.Open(path, creds("", kf)); err != nil {
		t.Errorf("keyfile-only credentials rejected: %v", err)
	}
}

func TestRekey_EmptyKeyfile(t *testing.T) {
	kf := writeKeyfile(t, t.TempDir(), "empty.key", "")
	s, path := newTestVolume(t, creds("password"))

	err := s.Rekey(context.Background(), credential.RekeyParams{
		VolumePath: path,
		Current:    creds("password"),
		New:        creds("password", kf),
	})
	if !errors.Is(err, ErrEmptyKeyfile) {
		t.Errorf("err = %v, want ErrEmptyKeyfile", err)
	}
	if _, err := s.Open(path, creds("password")); err != nil {
		t.Errorf("failed rekey changed the header: %v", err)
	}
}

func TestRekey_PreservesTimestamps(t *testing.T) {
	s, path := newTestVolume(t, creds("password"))
	past := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatal(err)
	}

	err := s.Rekey(context.Background(), credential.RekeyParams{
		VolumePath:         path,
		PreserveTimestamps: true,
		Current:            creds("password"),
		New:                creds("another password"),
		WipePasses:         1,
	})
	if err != nil {
		t.Fatal(err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !fi.ModTime().Equal(past) {
		t.Errorf("mtime = %v, want %v", fi.ModTime(), past)
	}
}

func TestRekey_BackupHeader(t *testing.T) {
	s, path := newTestVolume(t, creds("password"))

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt(make([]byte, HeaderSize), 0); err != nil {
		t.Fatal(err)
	}
	f.Close()

	info, err := s.Open(path, creds("password"))
	if err != nil {
		t.Fatalf("backup header not used: %v", err)
	}
	if !info.UsedBackup {
		t.Error("expected UsedBackup")
	}

	err = s.Rekey(context.Background(), credential.RekeyParams{
		VolumePath: path,
		Current:    creds("password"),
		New:        creds("new password"),
	})
	if err != nil {
		t.Fatal(err)
	}
	info, err = s.Open(path, creds("new password"))
	if err != nil {
		t.Fatal(err)
	}
	if info.UsedBackup {
		t.Error("rekey should restore the primary header")
	}
}

func TestRekey_ConvertsLegacy(t *testing.T) {
	old := creds("legacy password")
	old.Legacy = true
	s, path := newTestVolume(t, old)

	if _, err := s.Open(path, creds("legacy password")); !errors.Is(err, credential.ErrPasswordIncorrect) {
		t.Errorf("legacy volume opened in current mode: %v", err)
	}

	err := s.Rekey(context.Background(), credential.RekeyParams{
		VolumePath: path,
		Current:    old,
		New:        creds("legacy password"),
	})
	if err != nil {
		t.Fatal(err)
	}
	info, err := s.Open(path, creds("legacy password"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Legacy {
		t.Error("header still in legacy format")
	}
}

func TestRekey_TooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny")
	if err := os.WriteFile(path, []byte("tiny"), 0600); err != nil {
		t.Fatal(err)
	}
	err := NewStore(entropy.New()).Rekey(context.Background(), credential.RekeyParams{
		VolumePath: path,
		Current:    creds("a"),
		New:        creds("b"),
	})
	if !errors.Is(err, ErrTooSmall) {
		t.Errorf("err = %v", err)
	}
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	pool := entropy.New()
	s, path := newTestVolume(t, creds("operator password"))
	kf := writeKeyfile(t, t.TempDir(), "new.key", "fresh keyfile")

	req, err := credential.NewChangeRequest(credential.ChangeKeyfiles, path)
	if err != nil {
		t.Fatal(err)
	}
	req.Current = creds("operator password")
	req.New.Keyfiles = credential.KeyfileList{kf}
	req.WipePasses = 1

	if !credential.Validate(req).Allowed {
		t.Fatal("request should be allowed")
	}

	orch := &credential.Orchestrator{
		Rekey:      s,
		Entropy:    pool,
		Privileges: HostPrivileges{},
	}
	out, err := orch.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if out != credential.KeyfileChanged {
		t.Errorf("outcome = %v", out)
	}
	if pool.EnrichedByUser() {
		t.Error("enrichment flag should have been reset")
	}
	if _, err := s.Open(path, creds("operator password", kf)); err != nil {
		t.Errorf("new credentials rejected: %v", err)
	}
}
