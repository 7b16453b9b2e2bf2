package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const (
	APIKeyPrefix    = "vpk_"
	APISecretPrefix = "vps_"
)

// MaskCardNumber keeps the first 6 and last 4 digits. Input that is not a
// 12 to 19 digit number is returned unchanged.
func MaskCardNumber(pan string) string {
	clean := strings.ReplaceAll(pan, " ", "")
	if len(clean) < 12 || len(clean) > 19 || !isDigits(clean) {
		return pan
	}
	return clean[:6] + "******" + clean[len(clean)-4:]
}

// HashSecret returns the hex SHA-256 of an API secret
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// VerifySecret compares a presented secret with a stored hash in constant time
func VerifySecret(secret, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashSecret(secret)), []byte(strings.ToLower(hash))) == 1
}

// GenerateAPIKey returns a random URL-safe key with the "vpk_" prefix
func GenerateAPIKey() (string, error) {
	return randomToken(APIKeyPrefix, 18)
}

// GenerateAPISecret returns a random URL-safe secret with the "vps_" prefix
func GenerateAPISecret() (string, error) {
	return randomToken(APISecretPrefix, 32)
}

func randomToken(prefix string, n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + base64.RawURLEncoding.EncodeToString(b), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
