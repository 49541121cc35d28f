package volume

import (
	"crypto/sha512"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fahmaliyi/volcred/credential"
)

// expandKeyfiles resolves directories to the regular, non-hidden files they
// contain, keeping the caller's order.
func expandKeyfiles(list credential.KeyfileList) ([]string, error) {
	var out []string
	for _, p := range list {
		fi, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("keyfile %s: %w", p, err)
		}
		if !fi.IsDir() {
			out = append(out, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("keyfile directory %s: %w", p, err)
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
				continue
			}
			out = append(out, filepath.Join(p, e.Name()))
		}
	}
	return out, nil
}

// keyfilePool hashes the first KeyfileMaxRead bytes of every keyfile into a
// chained pool, so order matters and duplicates do not cancel out.
func keyfilePool(list credential.KeyfileList) ([]byte, error) {
	paths, err := expandKeyfiles(list)
	if err != nil {
		return nil, err
	}

	pool := make([]byte, KeyfilePoolSize)
	for _, p := range paths {
		d, err := digestKeyfile(p)
		if err != nil {
			return nil, err
		}
		h := sha512.New()
		h.Write(pool)
		h.Write(d)
		pool = h.Sum(pool[:0])
	}
	return pool, nil
}

func digestKeyfile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("keyfile %s: %w", path, err)
	}
	defer f.Close()

	h := sha512.New()
	n, err := io.Copy(h, io.LimitReader(f, KeyfileMaxRead))
	if err != nil {
		return nil, fmt.Errorf("keyfile %s: %w", path, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyKeyfile, path)
	}
	return h.Sum(nil), nil
}

// combinedSecret joins the password with the keyfile pool. The result must
// be wiped by the caller.
func combinedSecret(s credential.Set) ([]byte, error) {
	if s.Password.IsEmpty() && s.Keyfiles.IsEmpty() {
		return nil, credential.ErrPasswordEmpty
	}

	secret := append([]byte(nil), s.Password.Bytes()...)
	if s.Keyfiles.IsEmpty() {
		return secret, nil
	}

	pool, err := keyfilePool(s.Keyfiles)
	if err != nil {
		zero(secret)
		return nil, err
	}
	secret = append(secret, pool...)
	zero(pool)
	return secret, nil
}
