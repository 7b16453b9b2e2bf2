package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mstgnz/vpos/infra/logger"
	"github.com/mstgnz/vpos/provider"
)

// Encrypter seals terminal credentials before they are stored
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
	EncryptJSON(v any) (string, error)
}

// Seed is the operator file used to provision terminals and partner
// commission overrides at startup. Credentials may be given as a plain JSON
// object or as an already encrypted string.
type Seed struct {
	Terminals []SeedTerminal                 `json:"terminals"`
	Overrides []*provider.CommissionOverride `json:"overrides,omitempty"`
}

// SeedTerminal is a terminal whose credentials are not yet sealed
type SeedTerminal struct {
	provider.Terminal
	Credentials json.RawMessage `json:"credentials"`
}

// LoadSeedFile reads a seed file and applies it to store
func LoadSeedFile(ctx context.Context, store Store, path string, enc Encrypter) (int, int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return 0, 0, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return ApplySeed(ctx, store, seed, enc)
}

// ApplySeed upserts every terminal, then every override. Terminals keep
// their stored position when they already exist.
func ApplySeed(ctx context.Context, store Store, seed Seed, enc Encrypter) (int, int, error) {
	now := time.Now().UTC()
	for i := range seed.Terminals {
		st := seed.Terminals[i]
		t := st.Terminal

		creds, err := sealCredentials(st.Credentials, enc)
		if err != nil {
			return i, 0, fmt.Errorf("terminal %s: %w", t.ID, err)
		}
		t.Credentials = creds
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if err := store.SaveTerminal(ctx, &t); err != nil {
			return i, 0, fmt.Errorf("terminal %s: %w", t.ID, err)
		}
	}

	for i, o := range seed.Overrides {
		o.Currency = strings.ToUpper(o.Currency)
		if o.ID == "" {
			o.ID = o.PartnerID + ":" + strings.ToUpper(o.Currency)
		}
		if err := store.SaveOverride(ctx, o); err != nil {
			return len(seed.Terminals), i, fmt.Errorf("override %s: %w", o.ID, err)
		}
	}

	logger.Info("Seed applied", logger.LogContext{Fields: map[string]any{
		"terminals": len(seed.Terminals),
		"overrides": len(seed.Overrides),
	}})
	return len(seed.Terminals), len(seed.Overrides), nil
}

func sealCredentials(raw json.RawMessage, enc Encrypter) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "" || trimmed == "null":
		return "", nil
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("credentials: %w", err)
		}
		return enc.Encrypt(s)
	case strings.HasPrefix(trimmed, "{"):
		return enc.EncryptJSON(raw)
	}
	return "", fmt.Errorf("credentials must be an object or an encrypted string")
}
