package security

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
)

// envelopePrefix marks values written by FieldCipher. Values without it are
// returned unchanged by Decrypt so rows written before encryption was enabled
// stay readable.
const envelopePrefix = "enc:v1:"

var ErrCiphertext = errors.New("malformed ciphertext")

// FieldCipher encrypts single column values with AES-256-GCM.
// Output: "enc:v1:" + base64(nonce || ciphertext).
type FieldCipher struct {
	gcm cipher.AEAD
}

// NewFieldCipher accepts a 32-byte raw key, a base64 encoded 32-byte key, or
// any other non-empty passphrase, which is stretched with SHA-256.
func NewFieldCipher(key string) (*FieldCipher, error) {
	if key == "" {
		return nil, errors.New("encryption key is empty")
	}
	k := []byte(key)
	if len(k) != 32 {
		if raw, err := base64.StdEncoding.DecodeString(key); err == nil && len(raw) == 32 {
			k = raw
		} else {
			sum := sha256.Sum256(k)
			k = sum[:]
		}
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &FieldCipher{gcm: gcm}, nil
}

func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return envelopePrefix + base64.StdEncoding.EncodeToString(ct), nil
}

func (c *FieldCipher) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, envelopePrefix) {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, envelopePrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	ns := c.gcm.NonceSize()
	if len(data) < ns {
		return "", ErrCiphertext
	}
	pt, err := c.gcm.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	return string(pt), nil
}
