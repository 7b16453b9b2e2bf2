package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskCardNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"4111111111111111", "411111******1111"},
		{"5555555555554444", "555555******4444"},
		{"4111 1111 1111 1111", "411111******1111"},
		{"6759649826438453123", "675964******3123"},
		{"41111111", "41111111"},
		{"abcd1111111111111", "abcd1111111111111"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskCardNumber(tt.in))
		})
	}
}

func TestMaskCardNumberIdempotent(t *testing.T) {
	for _, pan := range []string{"4111111111111111", "5555555555554444", "3782822463100050", "9792030000000000123"} {
		masked := MaskCardNumber(pan)
		assert.Equal(t, masked, MaskCardNumber(masked))
		assert.Equal(t, pan[:6], masked[:6])
		assert.Equal(t, pan[len(pan)-4:], masked[len(masked)-4:])
	}
}

func TestHashSecret(t *testing.T) {
	h := HashSecret("top-secret")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashSecret("top-secret"))
	assert.NotEqual(t, h, HashSecret("top-secret2"))

	assert.True(t, VerifySecret("top-secret", h))
	assert.True(t, VerifySecret("top-secret", strings.ToUpper(h)))
	assert.False(t, VerifySecret("wrong", h))
}

func TestGenerateAPIKeys(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	secret, err := GenerateAPISecret()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, APIKeyPrefix))
	assert.True(t, strings.HasPrefix(secret, APISecretPrefix))
	assert.NotContains(t, key, "+")
	assert.NotContains(t, secret, "/")

	other, _ := GenerateAPIKey()
	assert.NotEqual(t, key, other)
}
