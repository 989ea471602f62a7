// Package security seals and opens GitHub access tokens so they are never
// stored in plaintext. Sealing is symmetric: the same 32-byte key both
// encrypts and decrypts.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceLen = 24

var (
	ErrInvalidKey        = errors.New("token key must decode to 32 bytes")
	ErrMalformedToken    = errors.New("sealed token is malformed")
	ErrDecryptionFailure = errors.New("sealed token failed to decrypt")
)

// Box encrypts and decrypts short secrets with nacl secretbox.
type Box struct {
	key [32]byte
}

// NewBox builds a Box from a hex-encoded 32-byte key, typically the
// TOKEN_KEY environment variable.
func NewBox(hexKey string) (*Box, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != 32 {
		return nil, ErrInvalidKey
	}

	b := &Box{}
	copy(b.key[:], raw)
	return b, nil
}

// Seal encrypts plaintext and returns a base64 string safe to store in a
// text column. Each call uses a fresh random nonce.
func (b *Box) Seal(plaintext string) (string, error) {
	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (b *Box) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if len(raw) < nonceLen {
		return "", ErrMalformedToken
	}

	var nonce [nonceLen]byte
	copy(nonce[:], raw[:nonceLen])

	plaintext, ok := secretbox.Open(nil, raw[nonceLen:], &nonce, &b.key)
	if !ok {
		return "", ErrDecryptionFailure
	}
	return string(plaintext), nil
}
