// Package cryptoutil implements the credential vault: authenticated
// encryption for per-business, per-channel secrets at rest.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const gcmTagSize = 16

var (
	// ErrNoKey indicates the process has no encryption key configured.
	// This is a server misconfiguration, not a data problem.
	ErrNoKey = errors.New("credential encryption key is not configured")
	// ErrMalformedCiphertext indicates stored ciphertext does not have the
	// expected iv:tag:ciphertext shape.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	// ErrDecryptFailed indicates the authentication tag check failed:
	// the ciphertext was tampered with or encrypted under a different key.
	ErrDecryptFailed = errors.New("ciphertext authentication failed")
)

// Vault encrypts and decrypts credential payloads with AES-256-GCM.
// Ciphertext is self-describing: hex(iv):hex(tag):hex(encrypted), so
// decryption needs no out-of-band metadata.
type Vault struct {
	key []byte // 32 bytes
}

// NewVault constructs a Vault from a raw 32-byte key.
func NewVault(key []byte) (*Vault, error) {
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes, got %d", len(key))
	}
	return &Vault{key: append([]byte(nil), key...)}, nil
}

// NewVaultFromKeyString constructs a Vault from configuration. A 64-char hex
// string decodes to the raw key; any other non-empty string is hashed with
// SHA-256 to derive one. An empty string returns ErrNoKey.
func NewVaultFromKeyString(key string) (*Vault, error) {
	if key == "" {
		return nil, ErrNoKey
	}
	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == 32 {
		return NewVault(decoded)
	}
	hash := sha256.Sum256([]byte(key))
	return NewVault(hash[:])
}

func (v *Vault) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under a random nonce and returns the delimited
// hex encoding.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if v == nil || len(v.key) == 0 {
		return "", ErrNoKey
	}
	gcm, err := v.aead()
	if err != nil {
		return "", err
	}
	iv := make([]byte, gcm.NonceSize())
	if _, readErr := io.ReadFull(rand.Reader, iv); readErr != nil {
		return "", readErr
	}

	// Seal appends the tag to the ciphertext; split it back out so the
	// stored format carries the three segments explicitly.
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens ciphertext produced by Encrypt. Format problems and failed
// tag checks surface as distinct errors so callers can report a corrupt
// credential differently from a misconfigured server.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if v == nil || len(v.key) == 0 {
		return "", ErrNoKey
	}

	parts := strings.Split(ciphertext, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedCiphertext, len(parts))
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: bad iv encoding", ErrMalformedCiphertext)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: bad tag encoding", ErrMalformedCiphertext)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext encoding", ErrMalformedCiphertext)
	}

	gcm, err := v.aead()
	if err != nil {
		return "", err
	}
	if len(iv) != gcm.NonceSize() || len(tag) != gcmTagSize {
		return "", fmt.Errorf("%w: bad segment length", ErrMalformedCiphertext)
	}

	pt, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(pt), nil
}
