package security

import (
	"encoding/base64"
	"strings"
	"testing"

	"expirywatch/internal/types"
)

func testKey(t *testing.T, seed byte) types.SecretString {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = seed
	}
	return types.SecretString(base64.StdEncoding.EncodeToString(key))
}

func TestSecretCipherRoundTrip(t *testing.T) {
	c, err := NewSecretCipher(testKey(t, 0x01))
	if err != nil {
		t.Fatalf("NewSecretCipher() error = %v", err)
	}

	envelope, err := c.Encrypt("relay-password-123")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if strings.Contains(envelope, "relay-password-123") {
		t.Fatal("envelope contains plaintext")
	}

	got, err := c.Decrypt(envelope)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if got != "relay-password-123" {
		t.Errorf("Decrypt() = %q", got)
	}
}

func TestSecretCipherWrongKey(t *testing.T) {
	a, _ := NewSecretCipher(testKey(t, 0x01))
	b, _ := NewSecretCipher(testKey(t, 0x02))

	envelope, err := a.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := b.Decrypt(envelope); err == nil {
		t.Fatal("Decrypt() with wrong key succeeded, want error")
	}
}

func TestSecretCipherMalformedEnvelope(t *testing.T) {
	c, _ := NewSecretCipher(testKey(t, 0x01))

	cases := map[string]string{
		"not base64": "%%%not-base64%%%",
		"truncated":  base64.StdEncoding.EncodeToString([]byte("short")),
		"empty":      "",
	}
	for name, envelope := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := c.Decrypt(envelope); err == nil {
				t.Errorf("Decrypt(%q) succeeded, want error", envelope)
			}
		})
	}
}

func TestNewSecretCipherRejectsBadKeys(t *testing.T) {
	if _, err := NewSecretCipher("not base64!!"); err == nil {
		t.Error("non-base64 key accepted")
	}
	short := types.SecretString(base64.StdEncoding.EncodeToString([]byte("too-short")))
	if _, err := NewSecretCipher(short); err == nil {
		t.Error("short key accepted")
	}
}
