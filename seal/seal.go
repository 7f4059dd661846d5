// Package seal implements the password based [stashfs.Cipher] used to
// protect persisted state.
//
// A 256-bit key is derived from the password with PBKDF2-HMAC-SHA256. Tokens
// are XChaCha20-Poly1305 sealed and base64url encoded so that they can live
// in a text metadata field:
//
//	base64url(version || nonce || ciphertext+tag)
package seal

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"

	"github.com/brettbedarf/stashfs"
)

// tokenVersion prefixes every token and is bound as additional data
const tokenVersion byte = 1

var encoding = base64.RawURLEncoding

// Cipher seals state with a single key for its lifetime
type Cipher struct {
	aead cipher.AEAD
}

var _ stashfs.Cipher = (*Cipher)(nil)

// DeriveKey stretches secret into a key. The result is deterministic for a
// given secret, salt and iteration count.
func DeriveKey(secret string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(secret), salt, iterations, chacha20poly1305.KeySize, sha256.New)
}

// New creates a Cipher from a raw 32 byte key
func New(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create aead: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// NewFromPassword derives the key from secret and creates a Cipher
func NewFromPassword(secret string, salt []byte, iterations int) (*Cipher, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("iterations must be positive, got %d", iterations)
	}
	return New(DeriveKey(secret, salt, iterations))
}

// Encrypt seals plaintext under a fresh random nonce
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	raw := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+c.aead.Overhead())
	raw[0] = tokenVersion
	nonce := raw[1:]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}
	raw = c.aead.Seal(raw, nonce, plaintext, raw[:1])

	token := make([]byte, encoding.EncodedLen(len(raw)))
	encoding.Encode(token, raw)
	return token, nil
}

// Decrypt opens a token produced by Encrypt with the same key
func (c *Cipher) Decrypt(token []byte) ([]byte, error) {
	raw := make([]byte, encoding.DecodedLen(len(token)))
	n, err := encoding.Decode(raw, token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed token: %v", stashfs.ErrDecryption, err)
	}
	raw = raw[:n]

	nonceSize := c.aead.NonceSize()
	if len(raw) < 1+nonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: token too short", stashfs.ErrDecryption)
	}
	if raw[0] != tokenVersion {
		return nil, fmt.Errorf("%w: unknown token version %d", stashfs.ErrDecryption, raw[0])
	}
	nonce, sealed := raw[1:1+nonceSize], raw[1+nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, raw[:1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stashfs.ErrDecryption, err)
	}
	return plaintext, nil
}
