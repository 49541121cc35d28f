package volume

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fahmaliyi/volcred/credential"
	"github.com/rs/zerolog/log"
)

// Store reads and rewrites volume headers. Random material (salts, nonces,
// master keys, wipe passes) comes from Random.
type Store struct {
	Random io.Reader
}

func NewStore(random io.Reader) *Store {
	return &Store{Random: random}
}

// sealHeader derives the header key for creds and seals masterKey under it.
func (s *Store) sealHeader(masterKey []byte, creds credential.Set, kdf *credential.Kdf) ([]byte, error) {
	secret, err := combinedSecret(creds)
	if err != nil {
		return nil, err
	}
	defer zero(secret)

	salt, err := randBytes(s.Random, SaltLen)
	if err != nil {
		return nil, err
	}

	h := fileHeader{KDFAlgo: kdfIDs[kdf.Name], Salt: salt}
	if creds.Legacy {
		h.Flags |= flagLegacy
	}

	key, err := deriveHeaderKey(secret, kdf, creds.PIM, creds.Legacy, salt)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	h.Nonce, h.Sealed, err = aeadSeal(s.Random, key, masterKey, headerAAD(h))
	if err != nil {
		return nil, err
	}
	return encodeHeader(s.Random, h)
}

// openHeader returns the master key sealed in raw, or
// credential.ErrPasswordIncorrect when creds do not open it.
func openHeader(raw []byte, creds credential.Set) ([]byte, fileHeader, error) {
	h, err := decodeHeader(raw)
	if err != nil {
		return nil, h, err
	}
	kdf, err := kdfByID(h.KDFAlgo)
	if err != nil {
		return nil, h, err
	}
	if creds.Kdf != nil && creds.Kdf.Name != kdf.Name {
		return nil, h, credential.ErrPasswordIncorrect
	}
	if creds.Legacy != h.legacy() {
		return nil, h, credential.ErrPasswordIncorrect
	}

	secret, err := combinedSecret(creds)
	if err != nil {
		return nil, h, err
	}
	defer zero(secret)

	key, err := deriveHeaderKey(secret, kdf, creds.PIM, h.legacy(), h.Salt)
	if err != nil {
		return nil, h, err
	}
	defer zero(key)

	mk, err := aeadOpen(key, h.Nonce, headerAAD(h), h.Sealed)
	if err != nil {
		return nil, h, credential.ErrPasswordIncorrect
	}
	return mk, h, nil
}

// Create writes a new container of payloadSize random bytes framed by a
// primary and a backup header sealed under creds. A nil creds.Kdf selects
// HMAC-SHA-512.
func (s *Store) Create(path string, creds credential.Set, payloadSize int64) error {
	if payloadSize < 0 {
		return fmt.Errorf("volume: negative payload size %d", payloadSize)
	}
	if err := creds.Password.CheckSize(creds.Legacy); err != nil {
		return err
	}
	kdf := creds.Kdf
	if kdf == nil {
		kdf = credential.KdfSHA512
	}

	mk, err := randBytes(s.Random, MasterKeyLen)
	if err != nil {
		return err
	}
	defer zero(mk)

	hdr, err := s.sealHeader(mk, creds, kdf)
	if err != nil {
		return err
	}

	raw := make([]byte, 0, 2*HeaderSize+int(payloadSize))
	raw = append(raw, hdr...)
	payload, err := randBytes(s.Random, int(payloadSize))
	if err != nil {
		return err
	}
	raw = append(raw, payload...)
	raw = append(raw, hdr...)

	if err := atomicWriteFile(path, raw, 0600); err != nil {
		return err
	}
	log.Info().Str("volume", path).Str("kdf", kdf.Name).Int64("payload_size", payloadSize).Msg("Volume created")
	return nil
}

type unlocked struct {
	masterKey  []byte
	kdf        *credential.Kdf
	legacy     bool
	size       int64
	usedBackup bool
}

// unlock opens the primary header, falling back to the backup header.
func unlock(f *os.File, creds credential.Set) (*unlocked, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if size < 2*HeaderSize {
		return nil, ErrTooSmall
	}
	if err := creds.Password.CheckSize(creds.Legacy); err != nil {
		return nil, err
	}

	raw := make([]byte, HeaderSize)
	var firstErr error
	for i, off := range []int64{0, size - HeaderSize} {
		if _, err := f.ReadAt(raw, off); err != nil {
			return nil, err
		}
		mk, h, err := openHeader(raw, creds)
		if err == nil {
			kdf, _ := kdfByID(h.KDFAlgo)
			return &unlocked{masterKey: mk, kdf: kdf, legacy: h.legacy(), size: size, usedBackup: i > 0}, nil
		}
		if errors.Is(err, credential.ErrPasswordEmpty) || errors.Is(err, ErrEmptyKeyfile) || errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if errors.Is(firstErr, ErrCorrupt) {
		return nil, credential.ErrPasswordIncorrect
	}
	return nil, firstErr
}

// Open unlocks the volume at path with creds and describes it.
func (s *Store) Open(path string, creds credential.Set) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	u, err := unlock(f, creds)
	if err != nil {
		return nil, err
	}
	zero(u.masterKey)

	return &Info{
		Path:        path,
		Kdf:         u.kdf,
		Legacy:      u.legacy,
		Size:        u.size,
		PayloadSize: u.size - 2*HeaderSize,
		UsedBackup:  u.usedBackup,
	}, nil
}

// Rekey rewrites both headers of the volume under p.New. The payload is never
// touched. Each header is overwritten p.WipePasses times with random bytes
// before the new header is written, and the primary is finished before the
// backup is touched so one valid header survives an interruption.
func (s *Store) Rekey(ctx context.Context, p credential.RekeyParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.New.Password.CheckSize(p.New.Legacy); err != nil {
		return err
	}

	var times fileTimes
	if p.PreserveTimestamps {
		t, err := statTimes(p.VolumePath)
		if err != nil {
			return err
		}
		times = t
	}

	f, err := os.OpenFile(p.VolumePath, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	u, err := unlock(f, p.Current)
	if err != nil {
		return fmt.Errorf("open volume header: %w", err)
	}
	defer zero(u.masterKey)
	if u.usedBackup {
		log.Warn().Str("volume", p.VolumePath).Msg("Primary header damaged, rekeying from backup header")
	}

	kdf := p.New.Kdf
	if kdf == nil {
		kdf = u.kdf
	}
	hdr, err := s.sealHeader(u.masterKey, p.New, kdf)
	if err != nil {
		return err
	}

	for _, off := range []int64{0, u.size - HeaderSize} {
		if err := s.writeHeader(f, off, hdr, p.WipePasses); err != nil {
			return fmt.Errorf("write volume header: %w", err)
		}
	}

	if p.PreserveTimestamps {
		if err := f.Close(); err != nil {
			return err
		}
		if err := os.Chtimes(p.VolumePath, times.atime, times.mtime); err != nil {
			return err
		}
	}

	log.Info().Str("volume", p.VolumePath).Str("kdf", kdf.Name).Int("wipe_passes", p.WipePasses).Msg("Volume header rekeyed")
	return nil
}

func (s *Store) writeHeader(f *os.File, off int64, hdr []byte, passes int) error {
	for i := 0; i < passes; i++ {
		junk, err := randBytes(s.Random, HeaderSize)
		if err != nil {
			return err
		}
		if _, err := f.WriteAt(junk, off); err != nil {
			return err
		}
		if err := f.Sync(); err != nil {
			return err
		}
	}
	if _, err := f.WriteAt(hdr, off); err != nil {
		return err
	}
	return f.Sync()
}

type fileTimes struct {
	atime, mtime time.Time
}
