// Package crypto holds the card and credential encryption helpers.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	ivSize  = 12
	tagSize = 16
	keySize = 32

	devSeed = "vpos-insecure-development-seed"
	devInfo = "vpos-card-encryption-v1"
)

var (
	ErrMissingKey = errors.New("crypto: ENCRYPTION_KEY is required unless insecure dev mode is enabled")
	ErrInvalidKey = errors.New("crypto: ENCRYPTION_KEY must be 64 hex characters (32 bytes)")

	encryptedPattern = regexp.MustCompile(`^[0-9a-f]{24}:[0-9a-f]{32}:[0-9a-f]*$`)
)

// Cipher encrypts card fields and credential bundles with AES-256-GCM.
// Values are encoded as hex "iv:tag:ciphertext".
type Cipher struct {
	aead     cipher.AEAD
	insecure bool
}

// NewCipher builds a cipher from a hex encoded 32 byte key. An empty key is
// only accepted when insecureDev is set, in which case a deterministic key is
// derived from a fixed seed.
func NewCipher(hexKey string, insecureDev bool) (*Cipher, error) {
	var key []byte
	switch {
	case hexKey != "":
		k, err := hex.DecodeString(strings.TrimSpace(hexKey))
		if err != nil || len(k) != keySize {
			return nil, ErrInvalidKey
		}
		key = k
	case insecureDev:
		key = DevKey()
	default:
		return nil, ErrMissingKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return &Cipher{aead: aead, insecure: hexKey == ""}, nil
}

// DevKey derives the development key. Never use it for live terminals.
func DevKey() []byte {
	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, []byte(devSeed), nil, []byte(devInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		panic(err)
	}
	return key
}

// Insecure reports whether the cipher runs on the development key
func (c *Cipher) Insecure() bool {
	return c.insecure
}

// Encrypt encrypts plaintext. Empty input stays empty and already encrypted
// input is returned unchanged.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || IsEncrypted(plaintext) {
		return plaintext, nil
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("crypto: read iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt. ok is false for empty, malformed, tampered or
// foreign-key input.
func (c *Cipher) Decrypt(value string) (string, bool) {
	if !IsEncrypted(value) {
		return "", false
	}
	parts := strings.SplitN(value, ":", 3)

	iv, err1 := hex.DecodeString(parts[0])
	tag, err2 := hex.DecodeString(parts[1])
	ct, err3 := hex.DecodeString(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return "", false
	}

	plain, err := c.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", false
	}
	return string(plain), true
}

// EncryptJSON marshals v and encrypts the result
func (c *Cipher) EncryptJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("crypto: marshal: %w", err)
	}
	return c.Encrypt(string(raw))
}

// DecryptJSON decrypts value and unmarshals it into v
func (c *Cipher) DecryptJSON(value string, v any) error {
	plain, ok := c.Decrypt(value)
	if !ok {
		return errors.New("crypto: value cannot be decrypted")
	}
	if err := json.Unmarshal([]byte(plain), v); err != nil {
		return fmt.Errorf("crypto: unmarshal: %w", err)
	}
	return nil
}

// IsEncrypted reports whether value already has the iv:tag:ciphertext shape
func IsEncrypted(value string) bool {
	return encryptedPattern.MatchString(value)
}
