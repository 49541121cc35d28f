package cli

import (
	"errors"
	"io"
	"time"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog/log"
)

// Printable ASCII without space and quote characters, so generated passwords
// are always portable and easy to paste.
const passwordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!#$%&()*+,-./:;<=>?@[]^_{|}~"

const DefaultGeneratedLength = 24

// GeneratePassword draws n characters from passwordAlphabet using bytes from r.
func GeneratePassword(r io.Reader, n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("password length must be positive")
	}
	// Largest multiple of the alphabet size that fits in a byte; higher
	// values are rejected so every character is equally likely.
	limit := byte(256 - 256%len(passwordAlphabet))

	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, passwordAlphabet[int(b)%len(passwordAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	zero(buf)
	return out, nil
}

var (
	writeClipboard = clipboard.WriteAll
	readClipboard  = clipboard.ReadAll
)

// CopyWithTimeout puts secret on the clipboard and clears it after d, unless
// something else was copied in the meantime. A zero d leaves it there.
func CopyWithTimeout(secret string, d time.Duration) error {
	if err := writeClipboard(secret); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	time.AfterFunc(d, func() {
		if cur, err := readClipboard(); err == nil && cur != secret {
			return
		}
		if err := writeClipboard(""); err != nil {
			log.Warn().Err(err).Msg("Failed to clear clipboard")
		}
	})
	return nil
}
