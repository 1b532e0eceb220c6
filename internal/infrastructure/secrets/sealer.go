// Package secrets seals marketplace credentials and webhook secrets at rest
// with NaCl secretbox.
package secrets

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var (
	// ErrInvalidKey is returned when the sealing key is not 32 bytes
	ErrInvalidKey = errors.New("secrets: key must be 32 bytes")
	// ErrMalformed is returned for a blob too short to hold a nonce
	ErrMalformed = errors.New("secrets: sealed blob is malformed")
	// ErrDecrypt is returned when authentication fails (wrong key or tampered blob)
	ErrDecrypt = errors.New("secrets: decryption failed")
)

// Sealer encrypts and decrypts small secrets. The sealed form is the random
// nonce followed by the secretbox output.
type Sealer struct {
	key  [keySize]byte
	rand io.Reader
}

// NewSealer creates a Sealer from a 32-byte key
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}
	s := &Sealer{rand: rand.Reader}
	copy(s.key[:], key)
	return s, nil
}

// Seal encrypts plaintext under a fresh nonce
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(s.rand, nonce[:]); err != nil {
		return nil, fmt.Errorf("secrets: read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// Open decrypts a blob produced by Seal. An empty blob opens to nil.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, nil
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrMalformed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return out, nil
}
