package routing

import (
	"context"
	"testing"

	"github.com/mstgnz/vpos/infra/storage"
	"github.com/mstgnz/vpos/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func term(id, bank string, opts ...func(*provider.Terminal)) *provider.Terminal {
	t := &provider.Terminal{
		ID:         id,
		BankCode:   bank,
		Provider:   bank,
		Currencies: []string{"TRY"},
		Active:     true,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func priority(p int) func(*provider.Terminal) {
	return func(t *provider.Terminal) { t.Priority = p }
}

func families(f ...string) func(*provider.Terminal) {
	return func(t *provider.Terminal) { t.CardFamilies = f }
}

func defaultFor(c ...string) func(*provider.Terminal) {
	return func(t *provider.Terminal) { t.DefaultCurrencies = c }
}

func currencies(c ...string) func(*provider.Terminal) {
	return func(t *provider.Terminal) { t.Currencies = c }
}

func inactive(t *provider.Terminal) { t.Active = false }

func partner(id string) func(*provider.Terminal) {
	return func(t *provider.Terminal) { t.PartnerID = id }
}

func positioned(ts ...*provider.Terminal) []*provider.Terminal {
	for i, t := range ts {
		t.Position = i + 1
	}
	return ts
}

func TestPick(t *testing.T) {
	garantiCard := &provider.BinInfo{BankCode: "garanti", Family: "Bonus"}
	akbankCard := &provider.BinInfo{BankCode: "akbank", Family: "Axess"}
	unknownCard := &provider.BinInfo{Brand: "Visa"}

	tests := []struct {
		name      string
		terminals []*provider.Terminal
		currency  string
		card      *provider.BinInfo
		wantID    string
		wantRule  Rule
	}{
		{
			name: "on-us beats family, default and priority",
			terminals: positioned(
				term("deniz", "denizbank", families("Bonus"), defaultFor("TRY"), priority(100)),
				term("garanti", "garanti"),
			),
			currency: "TRY", card: garantiCard,
			wantID: "garanti", wantRule: RuleOnUs,
		},
		{
			name: "family beats default and priority",
			terminals: positioned(
				term("ykb", "yapikredi", defaultFor("TRY"), priority(50)),
				term("deniz", "denizbank", families("bonus")),
			),
			currency: "TRY", card: garantiCard,
			wantID: "deniz", wantRule: RuleFamily,
		},
		{
			name: "family tie goes to first declared",
			terminals: positioned(
				term("teb", "teb", families("Bonus")),
				term("deniz", "denizbank", families("Bonus"), priority(10)),
			),
			currency: "TRY", card: garantiCard,
			wantID: "teb", wantRule: RuleFamily,
		},
		{
			name: "default beats priority",
			terminals: positioned(
				term("ykb", "yapikredi", priority(90)),
				term("isbank", "isbank", defaultFor("TRY")),
			),
			currency: "TRY", card: akbankCard,
			wantID: "isbank", wantRule: RuleDefault,
		},
		{
			name: "default for another currency is ignored",
			terminals: positioned(
				term("isbank", "isbank", currencies("TRY", "USD"), defaultFor("USD")),
				term("ykb", "yapikredi", priority(5)),
			),
			currency: "TRY", card: unknownCard,
			wantID: "ykb", wantRule: RulePriority,
		},
		{
			name: "highest priority wins",
			terminals: positioned(
				term("a", "isbank", priority(1)),
				term("b", "yapikredi", priority(7)),
				term("c", "halkbank", priority(3)),
			),
			currency: "TRY", card: unknownCard,
			wantID: "b", wantRule: RulePriority,
		},
		{
			name: "priority tie goes to first declared",
			terminals: positioned(
				term("a", "isbank", priority(4)),
				term("b", "yapikredi", priority(4)),
			),
			currency: "TRY", card: unknownCard,
			wantID: "a", wantRule: RulePriority,
		},
		{
			name: "inactive on-us terminal is skipped",
			terminals: positioned(
				term("garanti", "garanti", inactive),
				term("ykb", "yapikredi"),
			),
			currency: "TRY", card: garantiCard,
			wantID: "ykb", wantRule: RulePriority,
		},
		{
			name: "on-us terminal without the currency is skipped",
			terminals: positioned(
				term("garanti", "garanti", currencies("USD")),
				term("ykb", "yapikredi", families("World")),
				term("isbank", "isbank", defaultFor("TRY")),
			),
			currency: "TRY", card: garantiCard,
			wantID: "isbank", wantRule: RuleDefault,
		},
		{
			name: "nil bin info falls through to default",
			terminals: positioned(
				term("a", "isbank", priority(9)),
				term("b", "garanti", defaultFor("TRY")),
			),
			currency: "TRY", card: nil,
			wantID: "b", wantRule: RuleDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rule := Pick(tt.terminals, tt.currency, tt.card)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
			assert.Equal(t, tt.wantRule, rule)
		})
	}
}

func TestPickNothingEligible(t *testing.T) {
	got, rule := Pick(positioned(
		term("a", "isbank", currencies("USD")),
		term("b", "garanti", inactive),
	), "TRY", &provider.BinInfo{BankCode: "garanti"})
	assert.Nil(t, got)
	assert.Empty(t, rule)
}

func seed(t *testing.T, terminals ...*provider.Terminal) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	for _, term := range terminals {
		require.NoError(t, store.SaveTerminal(context.Background(), term))
	}
	return store
}

func TestSelectPartnerFallback(t *testing.T) {
	store := seed(t,
		term("p-usd", "isbank", partner("p1"), currencies("USD")),
		term("platform", "garanti"),
	)
	r := NewRouter(store)
	ctx := context.Background()

	sel, err := r.Select(ctx, Request{PartnerID: "p1", Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "p-usd", sel.Terminal.ID)
	assert.False(t, sel.Fallback)

	sel, err = r.Select(ctx, Request{PartnerID: "p1", Currency: "TRY"})
	require.NoError(t, err)
	assert.Equal(t, "platform", sel.Terminal.ID)
	assert.True(t, sel.Fallback)

	_, err = r.Select(ctx, Request{PartnerID: "p1", Currency: "TRY", NoFallback: true})
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindTerminalUnavailable))
}

func TestSelectPlatformOnlyScope(t *testing.T) {
	store := seed(t,
		term("partner-garanti", "garanti", partner("p1")),
		term("platform-ykb", "yapikredi"),
	)
	r := NewRouter(store)

	sel, err := r.Select(context.Background(), Request{Currency: "TRY", Bin: &provider.BinInfo{BankCode: "garanti"}})
	require.NoError(t, err)
	assert.Equal(t, "platform-ykb", sel.Terminal.ID)
	assert.Equal(t, RulePriority, sel.Rule)
}

func TestSelectNoTerminal(t *testing.T) {
	r := NewRouter(seed(t, term("only", "garanti")))

	_, err := r.Select(context.Background(), Request{Currency: "EUR"})
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindTerminalUnavailable))
	assert.Equal(t, "NO_TERMINAL", provider.CodeOf(err))
}
