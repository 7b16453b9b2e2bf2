// Package bin resolves card number prefixes to issuer, brand, card type,
// loyalty family and country.
package bin

import (
	"context"
	"errors"
	"time"

	"github.com/mstgnz/vpos/infra/logger"
	"github.com/mstgnz/vpos/infra/metrics"
	"github.com/mstgnz/vpos/infra/storage"
	"github.com/mstgnz/vpos/provider"
	"golang.org/x/sync/singleflight"
)

// Resolver looks a prefix up in the cache, then the store, then each
// external source in order, and finally guesses the brand.
type Resolver struct {
	cache        *Cache
	store        storage.BinStore
	sources      []Source
	localCountry string
	group        singleflight.Group
}

// ResolverOptions configures a Resolver
type ResolverOptions struct {
	TTL          time.Duration
	Store        storage.BinStore
	Sources      []Source
	LocalCountry string
}

// NewResolver creates a resolver with its own cache
func NewResolver(opts ResolverOptions) *Resolver {
	return &Resolver{
		cache:        NewCache(opts.TTL),
		store:        opts.Store,
		sources:      opts.Sources,
		localCountry: opts.LocalCountry,
	}
}

// Candidates returns the 8 and 6 digit lookup keys for a PAN or prefix,
// longest first. Non digits are ignored.
func Candidates(pan string) ([]string, error) {
	digits := make([]byte, 0, len(pan))
	for i := 0; i < len(pan); i++ {
		c := pan[i]
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case c == ' ' || c == '-':
		default:
			return nil, provider.NewError(provider.KindValidation, "INVALID_BIN", "card number must be numeric")
		}
	}
	if len(digits) < 6 {
		return nil, provider.NewError(provider.KindValidation, "INVALID_BIN", "at least 6 digits are required")
	}
	if len(digits) >= 8 {
		return []string{string(digits[:8]), string(digits[:6])}, nil
	}
	return []string{string(digits[:6])}, nil
}

// Resolve returns what is known about the card prefix of pan. It only fails
// for malformed input; unknown prefixes resolve through the heuristic.
func (r *Resolver) Resolve(ctx context.Context, pan string) (*provider.BinInfo, error) {
	candidates, err := Candidates(pan)
	if err != nil {
		return nil, err
	}

	// only the most specific key is trusted; a cached 6-digit answer must
	// not hide an 8-digit record
	if info, ok := r.cache.Get(candidates[0]); ok {
		metrics.RecordBinLookup("cache")
		return info, nil
	}

	v, err, _ := r.group.Do(candidates[0], func() (any, error) {
		return r.lookup(ctx, candidates), nil
	})
	if err != nil {
		return nil, err
	}
	info := *v.(*provider.BinInfo)
	return &info, nil
}

func (r *Resolver) lookup(ctx context.Context, candidates []string) *provider.BinInfo {
	if info := r.fromStore(ctx, candidates); info != nil {
		metrics.RecordBinLookup("store")
		r.remember(candidates, info)
		return info
	}

	for _, src := range r.sources {
		for _, key := range candidates {
			info, err := src.Lookup(ctx, key)
			if err != nil {
				if !errors.Is(err, ErrUnknownBin) {
					logger.Warn("BIN source lookup failed", logger.LogContext{
						Fields: map[string]any{"source": src.Name(), "bin": key, "error": err.Error()},
					})
				}
				continue
			}
			enrich(info)
			metrics.RecordBinLookup(src.Name())
			if r.store != nil {
				if err := r.store.SaveBinRecord(ctx, info); err != nil {
					logger.Error("Failed to persist BIN record", err, logger.LogContext{
						Fields: map[string]any{"bin": info.Bin},
					})
				}
			}
			r.remember(candidates, info)
			return info
		}
	}

	metrics.RecordBinLookup("heuristic")
	return Heuristic(candidates[len(candidates)-1], r.localCountry)
}

func (r *Resolver) fromStore(ctx context.Context, candidates []string) *provider.BinInfo {
	if r.store == nil {
		return nil
	}
	for _, key := range candidates {
		info, err := r.store.GetBinRecord(ctx, key)
		if err == nil {
			return info
		}
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("BIN store lookup failed", logger.LogContext{
				Fields: map[string]any{"bin": key, "error": err.Error()},
			})
		}
	}
	return nil
}

// remember caches info under every candidate key at least as long as the
// prefix that matched, so each key maps to its most specific answer
func (r *Resolver) remember(candidates []string, info *provider.BinInfo) {
	for _, key := range candidates {
		if len(key) >= len(info.Bin) {
			r.cache.Set(key, info)
		}
	}
}

// enrich fills bank code and family from the issuer name when the source
// left them out
func enrich(info *provider.BinInfo) {
	if info.BankCode == "" {
		info.BankCode = NormalizeBankCode(info.BankName)
	}
	if info.Family == "" && info.Type == provider.CardCredit {
		info.Family = DefaultFamily(info.BankCode)
	}
	if info.Brand == "" {
		info.Brand = "Unknown"
	}
	if info.Type == "" {
		info.Type = provider.CardUnknown
	}
}
