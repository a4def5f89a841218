package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidKey indicates a missing or malformed encryption key. This is a
	// fatal startup condition, not a per-call error.
	ErrInvalidKey = errors.New("encryption key must be 64 hex characters (32 bytes)")
	// ErrInvalidEnvelope indicates a ciphertext envelope too short to contain a nonce.
	ErrInvalidEnvelope = errors.New("ciphertext envelope is malformed")
)

// Vault encrypts and decrypts secrets at rest (access tokens, national id
// numbers) with AES-256-GCM. It holds no state beyond the process-wide key.
type Vault struct {
	aead cipher.AEAD
}

// New builds a Vault from a hex-encoded 32-byte key.
func New(keyHex string) (*Vault, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce. The envelope is
// nonce || ciphertext; the nonce is not secret but must never be reused.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens an envelope produced by Encrypt.
func (v *Vault) Decrypt(envelope []byte) ([]byte, error) {
	if len(envelope) < v.aead.NonceSize() {
		return nil, ErrInvalidEnvelope
	}

	nonce := envelope[:v.aead.NonceSize()]
	ciphertext := envelope[v.aead.NonceSize():]

	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt envelope: %w", err)
	}
	return plaintext, nil
}
