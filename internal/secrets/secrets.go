// Package secrets encrypts small strings (per-user content-host tokens)
// with AES-256-GCM under a passphrase-derived key.
//
// Wire format: "<base64 salt>.<base64 ciphertext>". The key and nonce
// both come from a single PBKDF2-SHA256 derivation (100 000 iterations,
// 64 bytes: first 32 key, next 12 nonce), so the format stays compatible
// with previously stored values.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen    = 16
	iterations = 100_000
	keyLen     = 32
	nonceLen   = 12
)

// Cipher encrypts and decrypts under a fixed passphrase.
type Cipher struct {
	passphrase string
}

// New creates a Cipher. The passphrase must be non-empty.
func New(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("secrets: empty passphrase")
	}
	return &Cipher{passphrase: passphrase}, nil
}

func (c *Cipher) derive(salt []byte) (key, nonce []byte) {
	bits := pbkdf2.Key([]byte(c.passphrase), salt, iterations, keyLen+nonceLen, sha256.New)
	return bits[:keyLen], bits[keyLen : keyLen+nonceLen]
}

// Encrypt seals plain with a fresh random salt.
func (c *Cipher) Encrypt(plain string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("secrets: salt: %w", err)
	}
	key, nonce := c.derive(salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("secrets: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("secrets: gcm: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plain), nil)

	return base64.StdEncoding.EncodeToString(salt) + "." + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	parts := strings.SplitN(encoded, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("secrets: invalid format")
	}
	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("secrets: decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("secrets: decode ciphertext: %w", err)
	}

	key, nonce := c.derive(salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("secrets: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("secrets: gcm: %w", err)
	}
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt: %w", err)
	}
	return string(plain), nil
}
