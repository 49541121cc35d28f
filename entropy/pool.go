package entropy

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/hkdf"
)

const DefaultHash = "SHA-512"

// NewHashFunc returns a constructor for the named pool hash. An empty name
// selects DefaultHash.
func NewHashFunc(name string) (func() hash.Hash, error) {
	switch name {
	case "", "SHA-512":
		return sha512.New, nil
	case "SHA-256":
		return sha256.New, nil
	case "BLAKE2s-256":
		return func() hash.Hash {
			h, _ := blake2s.New256(nil)
			return h
		}, nil
	case "BLAKE2b-512":
		return func() hash.Hash {
			h, _ := blake2b.New512(nil)
			return h
		}, nil
	}
	return nil, fmt.Errorf("entropy: unknown hash %q", name)
}

// Pool is a random pool the operator can stir. Reads combine system
// randomness with the pool state, so a weak or absent contribution from the
// operator never makes output worse than crypto/rand.
type Pool struct {
	mu       sync.Mutex
	newHash  func() hash.Hash
	hashName string
	state    []byte
	enriched bool
}

func New() *Pool {
	p := &Pool{newHash: sha512.New, hashName: DefaultHash}
	p.Mix(nil)
	return p
}

// SetHash switches the mixing hash, folding the current state into the new one.
func (p *Pool) SetHash(name string) error {
	f, err := NewHashFunc(name)
	if err != nil {
		return err
	}
	if name == "" {
		name = DefaultHash
	}

	p.mu.Lock()
	p.newHash = f
	p.hashName = name
	p.mu.Unlock()

	p.Mix(nil)
	return nil
}

func (p *Pool) HashName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hashName
}

// Mix stirs data and the current time into the pool.
func (p *Pool) Mix(data []byte) {
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(time.Now().UnixNano()))

	p.mu.Lock()
	defer p.mu.Unlock()

	h := p.newHash()
	h.Write(p.state)
	h.Write(ts[:])
	h.Write(data)
	p.state = h.Sum(p.state[:0])
}

func (p *Pool) EnrichedByUser() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enriched
}

func (p *Pool) SetEnrichedByUser(v bool) {
	p.mu.Lock()
	p.enriched = v
	p.mu.Unlock()
}

func (p *Pool) ResetUserEnrichment() { p.SetEnrichedByUser(false) }

// Enrich selects hash for mixing and accepts the pool as it is. Interactive
// front ends wrap it to collect keystrokes first.
func (p *Pool) Enrich(_ context.Context, hash string) error {
	return p.SetHash(hash)
}

// Read fills b with random bytes.
func (p *Pool) Read(b []byte) (int, error) {
	for off := 0; off < len(b); off += readChunk {
		if err := p.fill(b[off:min(off+readChunk, len(b))]); err != nil {
			return off, err
		}
	}
	return len(b), nil
}

// hkdf output is bounded by 255 hash blocks.
const readChunk = 4096

func (p *Pool) fill(b []byte) error {
	seed := make([]byte, 64)
	defer zero(seed)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return err
	}

	p.mu.Lock()
	salt := append([]byte(nil), p.state...)
	f := p.newHash
	p.mu.Unlock()

	_, err := io.ReadFull(hkdf.New(f, seed, salt, []byte("volcred pool")), b)
	return err
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
