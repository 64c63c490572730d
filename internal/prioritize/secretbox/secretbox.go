// Package secretbox implements the Secret/Key Service collaborator of
// §6: an AES-GCM envelope over the 32-byte symmetric key material the
// engine uses to encrypt third-party OAuth tokens at rest. No repo in
// the example pack wires a dedicated envelope-encryption library (e.g.
// age or nacl/secretbox); AES-GCM via the standard library is the
// idiomatic Go approach the spec itself calls out ("AES-GCM semantics
// expected"), so this package is justified stdlib rather than grounded
// on a pack dependency (see DESIGN.md).
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
)

// KeySize is the required key length in bytes.
const KeySize = 32

// ErrInvalidKeySize is returned by New when the key is not exactly
// KeySize bytes.
var ErrInvalidKeySize = errors.New("secretbox: key must be 32 bytes")

// Box encrypts and decrypts small secrets (OAuth tokens) with a single
// AES-256-GCM key, injected at startup from the Secret/Key Service
// rather than read from any package-level state.
type Box struct {
	aead cipher.AEAD
}

// New constructs a Box from 32 bytes of key material.
func New(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretbox: new gcm: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext (e.g. a Google Drive OAuth refresh token)
// into a base64-encoded ciphertext safe for a JSON-valued store column.
// The nonce is generated fresh per call and prepended to the sealed
// output, the standard crypto/cipher.AEAD usage pattern.
func (b *Box) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", perrors.Wrap(perrors.KindInternal, "secretbox: generate nonce", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal, returning a ValidationError-kind failure if the
// ciphertext is malformed or the auth tag doesn't verify (tampering or
// a wrong key).
func (b *Box) Open(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", perrors.Wrap(perrors.KindValidation, "secretbox: decode ciphertext", err)
	}
	nonceSize := b.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", perrors.New(perrors.KindValidation, "secretbox: ciphertext too short")
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := b.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", perrors.Wrap(perrors.KindValidation, "secretbox: decrypt", err)
	}
	return string(plaintext), nil
}
