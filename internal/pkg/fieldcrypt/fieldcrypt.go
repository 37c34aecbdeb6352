// Package fieldcrypt encrypts tenant secrets (M-Pesa passkeys, SMS API keys,
// router passwords, TOTP seeds) before they reach PostgreSQL.
//
// Stored values look like "enc:v1:<base64(nonce+ciphertext)>". Values without
// the prefix are treated as plaintext so rows written before encryption was
// enabled keep working.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const prefix = "enc:v1:"

// Encryptor is safe for concurrent use.
type Encryptor struct {
	gcm cipher.AEAD
}

// New derives an AES-256 key for purpose from masterSecret.
func New(masterSecret []byte, purpose string) (*Encryptor, error) {
	if len(masterSecret) == 0 {
		return nil, errors.New("fieldcrypt: empty master secret")
	}
	r := hkdf.New(sha256.New, masterSecret, []byte("mnetifi-field-encryption"), []byte(purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("fieldcrypt: key derivation failed: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: %w", err)
	}
	return &Encryptor{gcm: gcm}, nil
}

// Encrypt returns the prefixed ciphertext. Empty input stays empty.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("fieldcrypt: nonce: %w", err)
	}
	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *Encryptor) Decrypt(stored string) (string, error) {
	if !IsEncrypted(stored) {
		return stored, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, prefix))
	if err != nil {
		return "", fmt.Errorf("fieldcrypt: invalid base64: %w", err)
	}
	n := e.gcm.NonceSize()
	if len(data) < n {
		return "", errors.New("fieldcrypt: ciphertext too short")
	}
	plain, err := e.gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("fieldcrypt: decryption failed: %w", err)
	}
	return string(plain), nil
}

func IsEncrypted(stored string) bool {
	return strings.HasPrefix(stored, prefix)
}

// Mask keeps the last four characters of a secret for display.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
