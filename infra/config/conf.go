package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type CKey string

type Config struct {
	Validator *validator.Validate
}

// AppConfig represents the application configuration
type AppConfig struct {
	Port    string
	BaseURL string
	DBPath  string

	Environment string
	Timezone    string

	EncryptionKey  string
	InsecureDevKey bool

	BankTimeout   time.Duration
	BinCacheTTL   time.Duration
	BinSources    []BinSource
	LocalCountry  string
	LocalCurrency string

	OpenSearchURL  string
	OpenSearchUser string
	OpenSearchPass string
	EnableLogging  bool
	LoggingLevel   string

	RateLimitPerMinute int
	APIKey             string
	APISecretHash      string
	IPWhitelist        string
	AllowedOrigins     []string

	MockGateURL string
}

// BinSource is one external BIN lookup endpoint, queried in declaration order
type BinSource struct {
	Name string
	URL  string
}

var (
	instance          *Config
	appConfigInstance *AppConfig
)

func App() *Config {
	if instance == nil {
		instance = &Config{
			Validator: validator.New(),
		}
	}
	return instance
}

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	if appConfigInstance == nil {
		appConfigInstance = &AppConfig{
			Port:               GetEnv("APP_PORT", "9999"),
			BaseURL:            strings.TrimRight(GetEnv("APP_URL", "http://localhost:9999"), "/"),
			DBPath:             GetEnv("DB_PATH", "./data/vpos.db"),
			Environment:        GetEnv("ENVIRONMENT", "development"),
			Timezone:           GetEnv("TIMEZONE", "Europe/Istanbul"),
			EncryptionKey:      GetEnv("ENCRYPTION_KEY", ""),
			InsecureDevKey:     GetBoolEnv("INSECURE_DEV_KEY", false),
			BankTimeout:        GetDurationEnv("BANK_TIMEOUT", 30*time.Second),
			BinCacheTTL:        GetDurationEnv("BIN_CACHE_TTL", 5*time.Minute),
			BinSources:         ParseBinSources(GetEnv("BIN_SOURCES", "")),
			LocalCountry:       strings.ToUpper(GetEnv("LOCAL_COUNTRY", "TR")),
			LocalCurrency:      strings.ToUpper(GetEnv("LOCAL_CURRENCY", "TRY")),
			OpenSearchURL:      GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
			OpenSearchUser:     GetEnv("OPENSEARCH_USER", ""),
			OpenSearchPass:     GetEnv("OPENSEARCH_PASSWORD", ""),
			EnableLogging:      GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", false),
			LoggingLevel:       GetEnv("LOGGING_LEVEL", "info"),
			RateLimitPerMinute: GetIntEnv("RATE_LIMIT_PER_MINUTE", 120),
			APIKey:             GetEnv("API_KEY", ""),
			APISecretHash:      GetEnv("API_SECRET_HASH", ""),
			IPWhitelist:        GetEnv("IP_WHITELIST", ""),
			AllowedOrigins:     SplitList(GetEnv("CORS_ALLOWED_ORIGINS", "*")),
			MockGateURL:        GetEnv("MOCK_GATE_URL", ""),
		}
	}
	return appConfigInstance
}

// Location returns the configured business time zone, UTC if it cannot be loaded
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction reports whether the service runs against live bank endpoints
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// ParseBinSources parses "name=url,name=url" into an ordered source list
func ParseBinSources(raw string) []BinSource {
	var sources []BinSource
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, url, ok := strings.Cut(part, "=")
		if !ok {
			sources = append(sources, BinSource{Name: part, URL: part})
			continue
		}
		sources = append(sources, BinSource{Name: strings.TrimSpace(name), URL: strings.TrimSpace(url)})
	}
	return sources
}

// SplitList splits a comma separated value, dropping blanks
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDurationEnv parses a Go duration ("30s", "5m"); plain integers are seconds
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
