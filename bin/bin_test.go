package bin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mstgnz/vpos/infra/config"
	"github.com/mstgnz/vpos/infra/storage"
	"github.com/mstgnz/vpos/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	name  string
	calls atomic.Int32
	info  *provider.BinInfo
	err   error
	delay time.Duration
}

func (s *countingSource) Name() string { return s.name }

func (s *countingSource) Lookup(_ context.Context, prefix string) (*provider.BinInfo, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	info := *s.info
	info.Bin = prefix
	info.Source = s.name
	return &info, nil
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{"4111111111111111", []string{"41111111", "411111"}, false},
		{"4111 1111", []string{"41111111", "411111"}, false},
		{"4111111", []string{"411111"}, false},
		{"41111", nil, true},
		{"41111a11", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Candidates(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, provider.IsKind(err, provider.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolverStoreFirst(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveBinRecord(context.Background(), &provider.BinInfo{
		Bin: "454671", BankCode: "akbank", Brand: "Visa", Type: provider.CardCredit, Family: "Axess", Country: "TR",
	}))
	src := &countingSource{name: "ext", info: &provider.BinInfo{BankName: "Other"}}

	r := NewResolver(ResolverOptions{TTL: time.Minute, Store: store, Sources: []Source{src}, LocalCountry: "TR"})
	info, err := r.Resolve(context.Background(), "4546711234567890")
	require.NoError(t, err)

	assert.Equal(t, "akbank", info.BankCode)
	assert.Equal(t, "Axess", info.Family)
	assert.Zero(t, src.calls.Load())
}

func TestResolverPrefersEightDigitRecord(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SaveBinRecord(ctx, &provider.BinInfo{Bin: "540061", BankCode: "garanti", Brand: "Mastercard"}))
	require.NoError(t, store.SaveBinRecord(ctx, &provider.BinInfo{Bin: "54006112", BankCode: "denizbank", Brand: "Mastercard"}))

	r := NewResolver(ResolverOptions{TTL: time.Minute, Store: store})

	info, err := r.Resolve(ctx, "5400611234567890")
	require.NoError(t, err)
	assert.Equal(t, "denizbank", info.BankCode)

	info, err = r.Resolve(ctx, "5400619934567890")
	require.NoError(t, err)
	assert.Equal(t, "garanti", info.BankCode)
}

func TestResolverWarmSixDigitCacheKeepsEightDigitRecord(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SaveBinRecord(ctx, &provider.BinInfo{Bin: "454545", BankCode: "akbank", Brand: "Visa"}))
	require.NoError(t, store.SaveBinRecord(ctx, &provider.BinInfo{Bin: "45454545", BankCode: "qnbfinansbank", Brand: "Visa"}))

	r := NewResolver(ResolverOptions{TTL: time.Minute, Store: store})

	info, err := r.Resolve(ctx, "4545451111111111")
	require.NoError(t, err)
	assert.Equal(t, "akbank", info.BankCode)

	info, err = r.Resolve(ctx, "4545454511111111")
	require.NoError(t, err)
	assert.Equal(t, "qnbfinansbank", info.BankCode)

	// both answers are now cached under their own 8-digit keys
	info, err = r.Resolve(ctx, "4545451122222222")
	require.NoError(t, err)
	assert.Equal(t, "akbank", info.BankCode)
	info, err = r.Resolve(ctx, "4545454522222222")
	require.NoError(t, err)
	assert.Equal(t, "qnbfinansbank", info.BankCode)

	// a bare 6-digit query reads the 6-digit record
	info, err = r.Resolve(ctx, "454545")
	require.NoError(t, err)
	assert.Equal(t, "akbank", info.BankCode)
}

func TestResolverSourceOrderAndPersistence(t *testing.T) {
	store := storage.NewMemoryStore()
	failing := &countingSource{name: "first", err: errors.New("boom")}
	unknown := &countingSource{name: "second", err: ErrUnknownBin}
	good := &countingSource{name: "third", info: &provider.BinInfo{
		BankName: "T. Garanti Bankasi A.S.", Brand: "Mastercard", Type: provider.CardCredit, Country: "TR",
	}}
	never := &countingSource{name: "fourth", info: &provider.BinInfo{BankName: "x"}}

	r := NewResolver(ResolverOptions{TTL: time.Minute, Store: store, Sources: []Source{failing, unknown, good, never}})
	ctx := context.Background()

	info, err := r.Resolve(ctx, "552879")
	require.NoError(t, err)
	assert.Equal(t, "garanti", info.BankCode)
	assert.Equal(t, "Bonus", info.Family)
	assert.Equal(t, "third", info.Source)
	assert.Zero(t, never.calls.Load())

	stored, err := store.GetBinRecord(ctx, "552879")
	require.NoError(t, err)
	assert.Equal(t, "garanti", stored.BankCode)

	// served from cache
	_, err = r.Resolve(ctx, "552879")
	require.NoError(t, err)
	assert.Equal(t, int32(1), good.calls.Load())
}

func TestResolverHeuristicFallback(t *testing.T) {
	r := NewResolver(ResolverOptions{
		TTL:          time.Minute,
		Sources:      []Source{&countingSource{name: "down", err: errors.New("timeout")}},
		LocalCountry: "TR",
	})

	tests := []struct {
		pan     string
		brand   string
		country string
	}{
		{"411111", "Visa", ""},
		{"555555", "Mastercard", ""},
		{"374245", "Amex", ""},
		{"601100", "Discover", ""},
		{"979210", "Troy", "TR"},
		{"220000", "Mir", ""},
		{"112233", "Unknown", ""},
	}
	for _, tt := range tests {
		t.Run(tt.pan, func(t *testing.T) {
			info, err := r.Resolve(context.Background(), tt.pan)
			require.NoError(t, err)
			assert.Equal(t, tt.brand, info.Brand)
			assert.Equal(t, tt.country, info.Country)
			assert.Empty(t, info.BankCode)
			assert.Equal(t, "heuristic", info.Source)
		})
	}
}

func TestResolverCoalescesConcurrentLookups(t *testing.T) {
	src := &countingSource{name: "slow", delay: 50 * time.Millisecond, info: &provider.BinInfo{
		BankName: "Akbank T.A.S.", Brand: "Visa", Type: provider.CardCredit,
	}}
	r := NewResolver(ResolverOptions{TTL: time.Minute, Sources: []Source{src}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info, err := r.Resolve(context.Background(), "43561234")
			assert.NoError(t, err)
			assert.Equal(t, "akbank", info.BankCode)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(20 * time.Millisecond)
	c.Set("411111", &provider.BinInfo{Bin: "411111", Brand: "Visa"})

	got, ok := c.Get("411111")
	require.True(t, ok)
	got.Brand = "mutated"

	again, ok := c.Get("411111")
	require.True(t, ok)
	assert.Equal(t, "Visa", again.Brand)

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get("411111")
	assert.False(t, ok)
}

func TestHTTPSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/45467112":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"scheme":"visa","type":"credit","brand":"Visa Classic","prepaid":false,
				"country":{"alpha2":"tr"},"bank":{"name":"AKBANK T.A.S."}}`))
		case "/52887000":
			w.Write([]byte(`{"scheme":"mastercard","type":"debit","prepaid":true,"country":{"alpha2":"DE"},"bank":{}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	src := NewHTTPSource("binlist", server.URL, time.Second)
	ctx := context.Background()

	info, err := src.Lookup(ctx, "45467112")
	require.NoError(t, err)
	assert.Equal(t, "Visa", info.Brand)
	assert.Equal(t, provider.CardCredit, info.Type)
	assert.Equal(t, "TR", info.Country)
	assert.Equal(t, "akbank", info.BankCode)
	assert.Equal(t, "binlist", info.Source)

	info, err = src.Lookup(ctx, "52887000")
	require.NoError(t, err)
	assert.Equal(t, provider.CardPrepaid, info.Type)
	assert.Empty(t, info.BankCode)

	_, err = src.Lookup(ctx, "99999999")
	assert.ErrorIs(t, err, ErrUnknownBin)
}

func TestTableSource(t *testing.T) {
	src := NewTableSource("local", map[string]provider.BinInfo{
		"979210": {BankCode: "ziraat", Brand: "Troy"},
	})
	info, err := src.Lookup(context.Background(), "97921012")
	require.NoError(t, err)
	assert.Equal(t, "979210", info.Bin)
	assert.Equal(t, "local", info.Source)

	_, err = src.Lookup(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrUnknownBin)
}

func TestNormalizeBankCode(t *testing.T) {
	tests := map[string]string{
		"AKBANK T.A.S.":                   "akbank",
		"T. GARANTI BANKASI A.S.":         "garanti",
		"Türkiye İş Bankası A.Ş.":         "isbank",
		"YAPI VE KREDI BANKASI A.S.":      "yapikredi",
		"Türkiye Vakıflar Bankası T.A.O.": "vakifbank",
		"Vakıf Katılım Bankası A.Ş.":      "vakifkatilim",
		"KUVEYT TURK KATILIM BANKASI A.S": "kuveytturk",
		"QNB Finansbank":                  "qnb",
		"Türkiye Halk Bankası":            "halkbank",
		"T.C. Ziraat Bankası":             "ziraat",
		"ING Bank A.S.":                   "ingbank",
		"Some Foreign Bank":               "",
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, NormalizeBankCode(name))
		})
	}
}

func TestDefaultFamily(t *testing.T) {
	assert.Equal(t, "Bonus", DefaultFamily("garanti"))
	assert.Equal(t, "Axess", DefaultFamily("akbank"))
	assert.Equal(t, "Maximum", DefaultFamily("isbank"))
	assert.Equal(t, "World", DefaultFamily("yapikredi"))
	assert.Empty(t, DefaultFamily("unknown"))
}

func TestAllowedCurrency(t *testing.T) {
	cfg := &config.AppConfig{LocalCountry: "TR", LocalCurrency: "TRY"}
	domestic := &provider.BinInfo{Country: "TR"}
	foreign := &provider.BinInfo{Country: "DE"}

	assert.True(t, IsDomestic(domestic, "TR"))
	assert.False(t, IsDomestic(foreign, "TR"))
	assert.False(t, IsDomestic(&provider.BinInfo{}, "TR"))

	assert.NoError(t, AllowedCurrency(domestic, "TRY", cfg))
	err := AllowedCurrency(domestic, "USD", cfg)
	require.Error(t, err)
	assert.Equal(t, "DOMESTIC_CARD_CURRENCY", provider.CodeOf(err))

	assert.NoError(t, AllowedCurrency(foreign, "USD", cfg))
	assert.NoError(t, AllowedCurrency(nil, "USD", cfg))
}
