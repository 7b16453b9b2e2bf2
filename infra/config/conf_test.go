package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApp(t *testing.T) {
	config1 := App()
	config2 := App()

	require.NotNil(t, config1)
	assert.Same(t, config1, config2, "App() should return singleton instance")
	assert.NotNil(t, config1.Validator, "Validator should be initialized")
}

func TestGetAppConfig(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		assert func(t *testing.T, c *AppConfig)
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			assert: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, "9999", c.Port)
				assert.Equal(t, "Europe/Istanbul", c.Timezone)
				assert.Equal(t, 30*time.Second, c.BankTimeout)
				assert.Equal(t, 5*time.Minute, c.BinCacheTTL)
				assert.Equal(t, "TR", c.LocalCountry)
				assert.Equal(t, "TRY", c.LocalCurrency)
				assert.False(t, c.InsecureDevKey)
				assert.Empty(t, c.BinSources)
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"APP_URL":          "https://pay.example.com/",
				"BANK_TIMEOUT":     "45",
				"BIN_CACHE_TTL":    "1m",
				"INSECURE_DEV_KEY": "true",
				"LOCAL_CURRENCY":   "eur",
				"BIN_SOURCES":      "primary=https://bins.example.com, backup=https://b.example.com",
			},
			assert: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, "https://pay.example.com", c.BaseURL)
				assert.Equal(t, 45*time.Second, c.BankTimeout)
				assert.Equal(t, time.Minute, c.BinCacheTTL)
				assert.True(t, c.InsecureDevKey)
				assert.Equal(t, "EUR", c.LocalCurrency)
				require.Len(t, c.BinSources, 2)
				assert.Equal(t, BinSource{Name: "primary", URL: "https://bins.example.com"}, c.BinSources[0])
				assert.Equal(t, "backup", c.BinSources[1].Name)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"APP_URL", "BANK_TIMEOUT", "BIN_CACHE_TTL", "INSECURE_DEV_KEY", "LOCAL_CURRENCY", "BIN_SOURCES"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			appConfigInstance = nil
			defer func() { appConfigInstance = nil }()

			tt.assert(t, GetAppConfig())
		})
	}
}

func TestGetDurationEnv(t *testing.T) {
	t.Setenv("X_DURATION", "bogus")
	assert.Equal(t, 7*time.Second, GetDurationEnv("X_DURATION", 7*time.Second))

	t.Setenv("X_DURATION", "250ms")
	assert.Equal(t, 250*time.Millisecond, GetDurationEnv("X_DURATION", time.Second))
}

func TestLocation(t *testing.T) {
	c := &AppConfig{Timezone: "Not/AZone"}
	assert.Equal(t, time.UTC, c.Location())
}

func TestParseBinSources(t *testing.T) {
	got := ParseBinSources(" binlist = https://lookup.binlist.net , ,https://bins.example.com")
	require.Len(t, got, 2)
	assert.Equal(t, BinSource{Name: "binlist", URL: "https://lookup.binlist.net"}, got[0])
	assert.Equal(t, BinSource{Name: "https://bins.example.com", URL: "https://bins.example.com"}, got[1])
	assert.Empty(t, ParseBinSources(""))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"10.0.0.1", "192.168.1.0/24"}, SplitList(" 10.0.0.1,, 192.168.1.0/24 "))
	assert.Nil(t, SplitList(" , "))
}
