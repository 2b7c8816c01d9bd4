// Package secret seals short strings (bank account numbers) at rest using
// nacl/secretbox. Ciphertexts are base64 with the nonce prepended.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/nacl/secretbox"
)

var (
	ErrInvalidKey        = errors.New("invalid_secret_key")
	ErrInvalidCiphertext = errors.New("invalid_ciphertext")
)

const nonceSize = 24

// Sealer encrypts and decrypts with a fixed 32-byte key.
type Sealer struct {
	key [32]byte
}

// NewSealer derives a sealer from a base64-encoded 32-byte key.
func NewSealer(encodedKey string) (*Sealer, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKey
	}
	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Sealer) Open(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrInvalidCiphertext
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	opened, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrInvalidCiphertext
	}
	return string(opened), nil
}
