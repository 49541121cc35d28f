package volume

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/fahmaliyi/volcred/credential"
	"github.com/fahmaliyi/volcred/entropy"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	defaultIterations = 500000
	legacyIterations  = 1000

	argonMemory  = 64 * 1024
	argonThreads = 4
)

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func randBytes(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Iterations returns the PBKDF2 iteration count for pim. A PIM of zero
// selects the default count; legacy headers ignore the PIM.
func Iterations(pim int, legacy bool) int {
	switch {
	case legacy:
		return legacyIterations
	case pim <= 0:
		return defaultIterations
	}
	return 15000 + pim*1000
}

func argonTime(pim int) uint32 {
	if pim <= 0 {
		return 3
	}
	return uint32(1 + pim/200)
}

// deriveHeaderKey turns the combined password and keyfile secret into the
// key sealing the master key.
func deriveHeaderKey(secret []byte, kdf *credential.Kdf, pim int, legacy bool, salt []byte) ([]byte, error) {
	var master []byte
	if kdf.Name == credential.KdfArgon2.Name {
		master = argon2.IDKey(secret, salt, argonTime(pim), argonMemory, argonThreads, MasterKeyLen)
	} else {
		f, err := entropy.NewHashFunc(kdf.Hash)
		if err != nil {
			return nil, err
		}
		master = pbkdf2.Key(secret, salt, Iterations(pim, legacy), MasterKeyLen, f)
	}
	defer zero(master)

	h := hkdf.New(sha256.New, master, nil, []byte("volcred header v1"))
	key := make([]byte, HeaderKeyLen)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, err
	}
	return key, nil
}

func aeadSeal(r io.Reader, key, plaintext, aad []byte) ([]byte, []byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, err
	}
	nonce, err := randBytes(r, NonceLen)
	if err != nil {
		return nil, nil, err
	}
	return nonce, aead.Seal(nil, nonce, plaintext, aad), nil
}

func aeadOpen(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, aad)
}

// headerAAD authenticates every cleartext field that precedes the nonce.
func headerAAD(h fileHeader) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString(Magic)
	buf.WriteByte(Version)
	binary.Write(buf, binary.BigEndian, h.Flags)
	buf.WriteByte(h.KDFAlgo)
	buf.Write(h.Salt)
	return buf.Bytes()
}

// encodeHeader serialises h and pads it to HeaderSize with bytes from r.
func encodeHeader(r io.Reader, h fileHeader) ([]byte, error) {
	buf := &bytes.Buffer{}

	// Magic
	if _, err := buf.WriteString(Magic); err != nil {
		return nil, err
	}

	// Version
	if err := buf.WriteByte(Version); err != nil {
		return nil, err
	}

	// Flags
	if err := binary.Write(buf, binary.BigEndian, h.Flags); err != nil {
		return nil, err
	}

	// KDF Algo
	if err := buf.WriteByte(h.KDFAlgo); err != nil {
		return nil, err
	}

	// Salt
	if len(h.Salt) > 255 {
		return nil, errors.New("salt too long")
	}
	if err := buf.WriteByte(uint8(len(h.Salt))); err != nil {
		return nil, err
	}
	if _, err := buf.Write(h.Salt); err != nil {
		return nil, err
	}

	// Nonce
	if len(h.Nonce) > 255 {
		return nil, errors.New("nonce too long")
	}
	if err := buf.WriteByte(uint8(len(h.Nonce))); err != nil {
		return nil, err
	}
	if _, err := buf.Write(h.Nonce); err != nil {
		return nil, err
	}

	// Sealed master key
	if err := binary.Write(buf, binary.BigEndian, uint16(len(h.Sealed))); err != nil {
		return nil, err
	}
	if _, err := buf.Write(h.Sealed); err != nil {
		return nil, err
	}

	if buf.Len() > HeaderSize {
		return nil, errors.New("header too long")
	}
	pad, err := randBytes(r, HeaderSize-buf.Len())
	if err != nil {
		return nil, err
	}
	buf.Write(pad)

	return buf.Bytes(), nil
}

func decodeHeader(raw []byte) (fileHeader, error) {
	var h fileHeader
	if len(raw) < 4+1+2+1+1+1+2 { // minimal header check
		return h, ErrCorrupt
	}

	buf := bytes.NewReader(raw)

	// Magic
	magicBytes := make([]byte, 4)
	if _, err := io.ReadFull(buf, magicBytes); err != nil {
		return h, err
	}
	if string(magicBytes) != Magic {
		return h, ErrCorrupt
	}

	// Version
	var version byte
	if err := binary.Read(buf, binary.BigEndian, &version); err != nil {
		return h, err
	}
	if version != Version {
		return h, ErrCorrupt
	}

	// Flags
	if err := binary.Read(buf, binary.BigEndian, &h.Flags); err != nil {
		return h, err
	}

	// KDF Algo
	if err := binary.Read(buf, binary.BigEndian, &h.KDFAlgo); err != nil {
		return h, err
	}

	// Salt
	var saltLen uint8
	if err := binary.Read(buf, binary.BigEndian, &saltLen); err != nil {
		return h, err
	}
	h.Salt = make([]byte, saltLen)
	if _, err := io.ReadFull(buf, h.Salt); err != nil {
		return h, ErrCorrupt
	}

	// Nonce
	var nonceLen uint8
	if err := binary.Read(buf, binary.BigEndian, &nonceLen); err != nil {
		return h, err
	}
	h.Nonce = make([]byte, nonceLen)
	if _, err := io.ReadFull(buf, h.Nonce); err != nil {
		return h, ErrCorrupt
	}

	// Sealed master key
	var sealedLen uint16
	if err := binary.Read(buf, binary.BigEndian, &sealedLen); err != nil {
		return h, ErrCorrupt
	}
	h.Sealed = make([]byte, sealedLen)
	if _, err := io.ReadFull(buf, h.Sealed); err != nil {
		return h, ErrCorrupt
	}

	return h, nil
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "vcrd-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	_ = syncDir(dir)
	_ = os.Chmod(path, perm)
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
