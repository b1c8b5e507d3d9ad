// Package security provides the cipher used to protect tenant SMTP relay
// passwords at rest. Secrets are sealed with XChaCha20-Poly1305 and stored as
// a single base64 envelope (nonce || ciphertext), so a row is self-contained
// and decryption needs only the platform key.
package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"expirywatch/internal/types"
)

// SecretCipher seals and opens tenant relay secrets with a process-wide key.
type SecretCipher struct {
	aead cipher.AEAD
}

// NewSecretCipher creates a SecretCipher from a base64-encoded 32-byte key
// (the SMTP_SECRET_KEY config value).
func NewSecretCipher(encodedKey types.SecretString) (*SecretCipher, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey.Unmask())
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalCrypto, "smtp secret key is not valid base64", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, types.NewAppError(
			types.ErrCodeInternalCrypto,
			fmt.Sprintf("smtp secret key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key)),
			nil,
		)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalCrypto, "failed to construct cipher", err)
	}
	return &SecretCipher{aead: aead}, nil
}

// Encrypt seals the plaintext and returns the base64 envelope.
func (c *SecretCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalCrypto, "failed to generate nonce", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a base64 envelope produced by Encrypt. A malformed envelope,
// a truncated ciphertext, or a ciphertext sealed under a different key all
// return an internal_secret_unreadable AppError; callers treat that as
// "override not usable" rather than a fatal condition.
func (c *SecretCipher) Decrypt(envelope string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalCrypto, "secret envelope is not valid base64", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", types.NewAppError(types.ErrCodeInternalCrypto, "secret envelope is truncated", nil)
	}

	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalCrypto, "failed to decrypt secret", err)
	}
	return string(plaintext), nil
}
