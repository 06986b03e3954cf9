// Package secrets encrypts raw receipt material before it reaches a store.
// Only the raw QR text and the serialized provider payload are encrypted;
// the canonical fields stay queryable in plaintext.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Encryptor seals and opens small payloads. Output is self-contained text
// safe to put in a TEXT column.
type Encryptor interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

// AESGCMEncryptor encrypts with AES-GCM. A fresh random nonce prefixes each
// ciphertext; the whole blob is base64-encoded.
type AESGCMEncryptor struct {
	aead cipher.AEAD
}

// NewAESGCM builds an encryptor from a 16, 24 or 32 byte key.
func NewAESGCM(key []byte) (*AESGCMEncryptor, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &AESGCMEncryptor{aead: aead}, nil
}

func (e *AESGCMEncryptor) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *AESGCMEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < e.aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, sealed := raw[:e.aead.NonceSize()], raw[e.aead.NonceSize():]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open ciphertext: %w", err)
	}
	return plaintext, nil
}

// Noop passes data through unchanged. Used when no encryption key is
// configured, which is acceptable only for local development.
type Noop struct{}

func (Noop) Encrypt(plaintext []byte) (string, error) {
	return string(plaintext), nil
}

func (Noop) Decrypt(ciphertext string) ([]byte, error) {
	return []byte(ciphertext), nil
}

var (
	_ Encryptor = (*AESGCMEncryptor)(nil)
	_ Encryptor = Noop{}
)
