package payment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mstgnz/vpos/bin"
	"github.com/mstgnz/vpos/infra/crypto"
	"github.com/mstgnz/vpos/infra/storage"
	"github.com/mstgnz/vpos/provider"
	"github.com/mstgnz/vpos/provider/mock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts created transactions
type countingStore struct {
	storage.Store
	created int
}

func (c *countingStore) CreateTransaction(ctx context.Context, tx *provider.Transaction) error {
	c.created++
	return c.Store.CreateTransaction(ctx, tx)
}

type fixture struct {
	svc   *Service
	store *countingStore
	now   time.Time
}

func (f *fixture) clock() time.Time { return f.now }

func mockTerminal() *provider.Terminal {
	return &provider.Terminal{
		ID:          "term-mock",
		Name:        "Mock POS",
		BankCode:    "mock",
		Provider:    mock.ID,
		Currencies:  []string{"TRY", "USD"},
		ThreeD:      provider.ThreeDSettings{Enabled: true, Model: provider.Model3D},
		AllowDirect: true,
		Active:      true,
		Installments: provider.InstallmentPolicy{
			Enabled:   true,
			MinCount:  2,
			MaxCount:  3,
			MinAmount: decimal.NewFromInt(50),
			Rates: map[int]decimal.Decimal{
				2: decimal.RequireFromString("2.5"),
				3: decimal.RequireFromString("3.75"),
			},
		},
		Commissions: []provider.CommissionPeriod{{
			StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Rates: []provider.CommissionRate{{
				Installment:  1,
				BankRate:     decimal.RequireFromString("1.5"),
				PlatformRate: decimal.RequireFromString("0.5"),
			}},
		}},
	}
}

func newFixture(t *testing.T, terminals ...*provider.Terminal) *fixture {
	t.Helper()
	ctx := context.Background()

	mem := storage.NewMemoryStore()
	if len(terminals) == 0 {
		terminals = []*provider.Terminal{mockTerminal()}
	}
	for _, term := range terminals {
		require.NoError(t, mem.SaveTerminal(ctx, term))
	}

	cipher, err := crypto.NewCipher("", true)
	require.NoError(t, err)

	registry := provider.NewProviderRegistry()
	registry.Register(mock.ID, mock.New)

	resolver := bin.NewResolver(bin.ResolverOptions{
		TTL:   time.Minute,
		Store: mem,
		Sources: []bin.Source{bin.NewTableSource("table", map[string]provider.BinInfo{
			"979207": {BankName: "Ziraat Bankası", Brand: "Troy", Type: provider.CardDebit, Country: "TR"},
		})},
		LocalCountry: "TR",
	})

	f := &fixture{
		store: &countingStore{Store: mem},
		now:   time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	f.svc, err = NewService(Options{
		Store:         f.store,
		Registry:      registry,
		Resolver:      resolver,
		Cipher:        cipher,
		BaseURL:       "https://pay.example.com/",
		Clock:         f.clock,
		Location:      time.FixedZone("TRT", 3*3600),
		LocalCountry:  "TR",
		LocalCurrency: "TRY",
	})
	require.NoError(t, err)
	return f
}

func paymentRequest(pan string) PaymentRequest {
	return PaymentRequest{
		Amount:   decimal.RequireFromString("100.00"),
		Currency: "TRY",
		Card: CardInput{
			Holder:      "Ada Lovelace",
			Number:      pan,
			ExpiryMonth: "12",
			ExpiryYear:  "2030",
			CVV:         "123",
		},
		Customer:   provider.Customer{Name: "Ada Lovelace", Email: "ada@example.com", IP: "10.0.0.7"},
		ExternalID: "BK-2025-0042",
	}
}

func (f *fixture) stored(t *testing.T, id string) *provider.Transaction {
	t.Helper()
	tx, err := f.store.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	return tx
}

func (f *fixture) payDirect(t *testing.T, pan string) *PaymentResult {
	t.Helper()
	req := paymentRequest(pan)
	req.Model = provider.ModelRegular
	res, err := f.svc.CreatePayment(context.Background(), req)
	require.NoError(t, err)
	return res
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to provider.Status
		want     bool
	}{
		{provider.StatusPending, provider.StatusProcessing, true},
		{provider.StatusPending, provider.StatusFailed, true},
		{provider.StatusPending, provider.StatusSuccess, false},
		{provider.StatusProcessing, provider.StatusSuccess, true},
		{provider.StatusProcessing, provider.StatusFailed, true},
		{provider.StatusSuccess, provider.StatusRefunded, true},
		{provider.StatusSuccess, provider.StatusCancelled, true},
		{provider.StatusSuccess, provider.StatusFailed, false},
		{provider.StatusFailed, provider.StatusRefunded, false},
		{provider.StatusRefunded, provider.StatusCancelled, false},
		{provider.StatusCancelled, provider.StatusRefunded, false},
		{provider.StatusSuccess, provider.StatusSuccess, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestDirectPaymentOutcomes(t *testing.T) {
	tests := []struct {
		pan    string
		status provider.Status
		code   string
	}{
		{mock.ApprovedPAN, provider.StatusSuccess, ""},
		{mock.DeclinedPAN, provider.StatusFailed, "05"},
		{"4242424242420000", provider.StatusFailed, "99"},
	}
	for _, tt := range tests {
		t.Run(tt.pan, func(t *testing.T) {
			f := newFixture(t)
			res := f.payDirect(t, tt.pan)

			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.code, res.ErrorCode)
			assert.Equal(t, tt.status == provider.StatusSuccess, res.Success)
			assert.Empty(t, res.FormURL)

			tx := f.stored(t, res.TransactionID)
			assert.Empty(t, tx.Card.CVV, "CVV must not outlive the authorization attempt")
			assert.NotContains(t, tx.Card.Number, tt.pan)
			require.NotNil(t, tx.Result)
			assert.Equal(t, tt.status == provider.StatusSuccess, tx.Result.Success)
			assert.NotEmpty(t, tx.OrderID)
			assert.NotNil(t, tx.CompletedAt)
			assert.NotEmpty(t, tx.Logs)

			if tt.status == provider.StatusSuccess {
				require.NotNil(t, tx.Commission)
				assert.Equal(t, "1.5", tx.Commission.BankAmount.String())
				assert.Equal(t, "0.5", tx.Commission.PlatformAmount.String())
				assert.Equal(t, "98", tx.Commission.Net.String())
			} else {
				assert.Nil(t, tx.Commission)
			}
		})
	}
}

func TestThreeDPaymentFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreatePayment(ctx, paymentRequest(mock.ApprovedPAN))
	require.NoError(t, err)
	assert.Equal(t, provider.StatusProcessing, res.Status)
	assert.Equal(t, "https://pay.example.com/payment/"+res.TransactionID+"/form", res.FormURL)

	tx := f.stored(t, res.TransactionID)
	assert.NotEmpty(t, tx.Card.CVV, "CVV is kept until the callback settles the charge")
	require.NotNil(t, tx.ThreeD)
	assert.Equal(t, mock.ID, tx.ThreeD.Provider)

	html, err := f.svc.GetPaymentForm(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Contains(t, html, "https://pay.example.com/payment/"+res.TransactionID+"/callback")

	data := map[string]string{
		"orderId":  tx.OrderID,
		"mdStatus": "1",
		"hash":     mock.CallbackHash("mock-secret", tx.OrderID, "1"),
	}
	cb, err := f.svc.ProcessCallback(ctx, res.TransactionID, data)
	require.NoError(t, err)
	assert.True(t, cb.Success)
	assert.False(t, cb.Duplicate)
	assert.Equal(t, provider.StatusSuccess, cb.Status)

	tx = f.stored(t, res.TransactionID)
	assert.Equal(t, provider.StatusSuccess, tx.Status)
	assert.Empty(t, tx.Card.CVV)
	assert.NotNil(t, tx.CallbackAt)
	assert.NotNil(t, tx.Commission)

	again, err := f.svc.ProcessCallback(ctx, res.TransactionID, data)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.True(t, again.Success)

	_, err = f.svc.GetPaymentForm(ctx, res.TransactionID)
	assert.Equal(t, provider.KindStateConflict, provider.KindOf(err))
}

func TestThreeDCallbackFailures(t *testing.T) {
	tests := []struct {
		name     string
		pan      string
		mdStatus string
		kind     provider.Kind
		code     string
	}{
		{"declined card", mock.DeclinedPAN, "1", provider.KindBankRejected, "05"},
		{"authentication failed", mock.ApprovedPAN, "0", provider.KindThreeDFailed, "MD_0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			res, err := f.svc.CreatePayment(ctx, paymentRequest(tt.pan))
			require.NoError(t, err)
			orderID := f.stored(t, res.TransactionID).OrderID

			cb, err := f.svc.ProcessCallback(ctx, res.TransactionID, map[string]string{
				"orderId":  orderID,
				"mdStatus": tt.mdStatus,
				"hash":     mock.CallbackHash("mock-secret", orderID, tt.mdStatus),
			})
			require.NoError(t, err)
			assert.False(t, cb.Success)
			assert.Equal(t, tt.code, cb.ErrorCode)

			tx := f.stored(t, res.TransactionID)
			assert.Equal(t, provider.StatusFailed, tx.Status)
			assert.Equal(t, tt.kind, tx.Result.ErrorKind)
			assert.Empty(t, tx.Card.CVV)
		})
	}
}

func TestCallbackUnknownTransaction(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ProcessCallback(context.Background(), "missing", map[string]string{})
	assert.Equal(t, provider.KindNotFound, provider.KindOf(err))
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := f.payDirect(t, mock.ApprovedPAN)

	refund, err := f.svc.RefundPayment(ctx, paid.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, provider.StatusSuccess, refund.Status)
	assert.Equal(t, provider.OperationRefund, refund.Operation)
	assert.Equal(t, paid.TransactionID, refund.ParentID)

	parent := f.stored(t, paid.TransactionID)
	assert.Equal(t, provider.StatusRefunded, parent.Status)
	assert.NotNil(t, parent.RefundedAt)

	children, err := f.svc.ListChildTransactions(ctx, paid.TransactionID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, refund.TransactionID, children[0].ID)
	assert.Equal(t, paid.OrderID, children[0].OrderID)

	_, err = f.svc.RefundPayment(ctx, paid.TransactionID)
	assert.Equal(t, provider.KindStateConflict, provider.KindOf(err))
	_, err = f.svc.CancelPayment(ctx, paid.TransactionID)
	assert.Equal(t, provider.KindStateConflict, provider.KindOf(err))
}

// gatedStore holds the first n ListChildren callers until all of them have
// arrived, so concurrent follow-ups pass the child check together
type gatedStore struct {
	storage.Store
	mu      sync.Mutex
	waiting int
	release chan struct{}
}

func newGatedStore(inner storage.Store, n int) *gatedStore {
	return &gatedStore{Store: inner, waiting: n, release: make(chan struct{})}
}

func (g *gatedStore) ListChildren(ctx context.Context, parentID string) ([]*provider.Transaction, error) {
	g.mu.Lock()
	if g.waiting > 0 {
		g.waiting--
		if g.waiting == 0 {
			close(g.release)
		}
	}
	g.mu.Unlock()

	select {
	case <-g.release:
	case <-time.After(2 * time.Second):
	}
	return g.Store.ListChildren(ctx, parentID)
}

func TestConcurrentRefundsReachBankOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := f.payDirect(t, mock.ApprovedPAN)
	f.svc.store = newGatedStore(f.store, 2)

	var wg sync.WaitGroup
	results := make([]*PaymentResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.svc.RefundPayment(ctx, paid.TransactionID)
		}()
	}
	wg.Wait()

	refunded, rejected := 0, 0
	for i := range results {
		switch {
		case errs[i] == nil && results[i].Success:
			refunded++
		case provider.CodeOf(errs[i]) == "CHILD_EXISTS":
			rejected++
		}
	}
	assert.Equal(t, 1, refunded)
	assert.Equal(t, 1, rejected)

	children, err := f.svc.ListChildTransactions(ctx, paid.TransactionID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, provider.StatusSuccess, children[0].Status)
	assert.Equal(t, provider.StatusRefunded, f.stored(t, paid.TransactionID).Status)
}

func TestFailedRefundFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := f.payDirect(t, mock.ApprovedPAN)

	// a refund that cannot be recorded never reaches the bank and keeps
	// the slot free
	f.svc.store = &failingCreateStore{Store: f.store}
	_, err := f.svc.RefundPayment(ctx, paid.TransactionID)
	require.Error(t, err)
	assert.Empty(t, f.stored(t, paid.TransactionID).ChildSlots)

	f.svc.store = f.store
	refund, err := f.svc.RefundPayment(ctx, paid.TransactionID)
	require.NoError(t, err)
	assert.True(t, refund.Success)
	assert.Equal(t, refund.TransactionID, f.stored(t, paid.TransactionID).ChildSlots["reversal"])
}

type failingCreateStore struct {
	storage.Store
}

func (failingCreateStore) CreateTransaction(context.Context, *provider.Transaction) error {
	return errors.New("disk full")
}

func TestRefundRequiresSuccess(t *testing.T) {
	f := newFixture(t)
	failed := f.payDirect(t, mock.DeclinedPAN)

	_, err := f.svc.RefundPayment(context.Background(), failed.TransactionID)
	assert.Equal(t, provider.KindStateConflict, provider.KindOf(err))
	assert.Equal(t, "NOT_REFUNDABLE", provider.CodeOf(err))
	assert.Equal(t, 1, f.store.created)
}

func TestCancelSameDayOnly(t *testing.T) {
	t.Run("same day", func(t *testing.T) {
		f := newFixture(t)
		paid := f.payDirect(t, mock.ApprovedPAN)
		f.now = f.now.Add(10 * time.Hour) // 22:00 local, still the same day

		cancel, err := f.svc.CancelPayment(context.Background(), paid.TransactionID)
		require.NoError(t, err)
		assert.True(t, cancel.Success)

		parent := f.stored(t, paid.TransactionID)
		assert.Equal(t, provider.StatusCancelled, parent.Status)
		assert.NotNil(t, parent.CancelledAt)

		_, err = f.svc.RefundPayment(context.Background(), paid.TransactionID)
		assert.Equal(t, provider.KindStateConflict, provider.KindOf(err))
	})

	t.Run("next day", func(t *testing.T) {
		f := newFixture(t)
		paid := f.payDirect(t, mock.ApprovedPAN)
		f.now = f.now.Add(12 * time.Hour) // past local midnight

		_, err := f.svc.CancelPayment(context.Background(), paid.TransactionID)
		assert.Equal(t, "CANCEL_WINDOW_CLOSED", provider.CodeOf(err))
		assert.Equal(t, provider.StatusSuccess, f.stored(t, paid.TransactionID).Status)
	})
}

func TestPreAuthAndCapture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pre, err := f.svc.CreatePreAuth(ctx, paymentRequest(mock.ApprovedPAN))
	require.NoError(t, err)
	assert.Equal(t, provider.StatusSuccess, pre.Status)
	assert.Equal(t, provider.OperationPreAuth, pre.Operation)
	assert.Nil(t, f.stored(t, pre.TransactionID).Commission)

	_, err = f.svc.CreatePostAuth(ctx, pre.TransactionID, PostAuthRequest{Amount: decimal.NewFromInt(150)})
	assert.Equal(t, provider.KindValidation, provider.KindOf(err))

	capture, err := f.svc.CreatePostAuth(ctx, pre.TransactionID, PostAuthRequest{Amount: decimal.NewFromInt(80)})
	require.NoError(t, err)
	assert.True(t, capture.Success)

	child := f.stored(t, capture.TransactionID)
	assert.Equal(t, "80", child.Amount.String())
	require.NotNil(t, child.Commission)
	assert.Equal(t, "1.6", child.Commission.Total.String())

	assert.Equal(t, provider.StatusSuccess, f.stored(t, pre.TransactionID).Status)

	_, err = f.svc.CreatePostAuth(ctx, pre.TransactionID, PostAuthRequest{})
	assert.Equal(t, "CHILD_EXISTS", provider.CodeOf(err))

	paid := f.payDirect(t, mock.ApprovedPAN)
	_, err = f.svc.CreatePostAuth(ctx, paid.TransactionID, PostAuthRequest{})
	assert.Equal(t, "NOT_CAPTURABLE", provider.CodeOf(err))
}

func TestQueryBin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.QueryBin(ctx, BinQuery{Bin: "411111", Amount: decimal.NewFromInt(100), Currency: "try"})
	require.NoError(t, err)
	assert.Equal(t, "Visa", res.Card.Brand)
	assert.Equal(t, "term-mock", res.Pos.TerminalID)
	assert.Equal(t, "priority", res.Pos.Rule)
	require.NotNil(t, res.Pos.Capabilities)
	assert.True(t, res.Pos.Capabilities.Refund)
	require.Len(t, res.Installments, 3)
	assert.Equal(t, "102.5", res.Installments[1].Total.String())

	t.Run("no terminal for currency", func(t *testing.T) {
		_, err := f.svc.QueryBin(ctx, BinQuery{Bin: "411111", Amount: decimal.NewFromInt(100), Currency: "EUR"})
		assert.Equal(t, provider.KindTerminalUnavailable, provider.KindOf(err))
		assert.Contains(t, err.Error(), "no suitable terminal")

		_, err = f.svc.CreatePayment(ctx, PaymentRequest{
			Amount:   decimal.NewFromInt(100),
			Currency: "EUR",
			Card:     paymentRequest(mock.ApprovedPAN).Card,
		})
		assert.Equal(t, provider.KindTerminalUnavailable, provider.KindOf(err))
		assert.Zero(t, f.store.created)
	})

	t.Run("domestic card in foreign currency", func(t *testing.T) {
		_, err := f.svc.QueryBin(ctx, BinQuery{Bin: "97920712", Amount: decimal.NewFromInt(100), Currency: "USD"})
		assert.Equal(t, provider.KindValidation, provider.KindOf(err))
		assert.Equal(t, "DOMESTIC_CARD_CURRENCY", provider.CodeOf(err))
	})

	t.Run("malformed bin", func(t *testing.T) {
		_, err := f.svc.QueryBin(ctx, BinQuery{Bin: "41", Currency: "TRY"})
		assert.Equal(t, provider.KindValidation, provider.KindOf(err))
	})
}

func TestCreatePaymentRejectsBeforeCreating(t *testing.T) {
	unknown := mockTerminal()
	unknown.ID = "term-unknown"
	unknown.BankCode = "nobank"
	unknown.Provider = "nobank"

	f := newFixture(t, mockTerminal(), unknown)
	ctx := context.Background()

	tests := []struct {
		name string
		edit func(r *PaymentRequest)
		kind provider.Kind
	}{
		{"missing cvv", func(r *PaymentRequest) { r.Card.CVV = "" }, provider.KindValidation},
		{"zero amount", func(r *PaymentRequest) { r.Amount = decimal.Zero }, provider.KindValidation},
		{"bad currency", func(r *PaymentRequest) { r.Currency = "TL" }, provider.KindValidation},
		{"unknown provider", func(r *PaymentRequest) { r.TerminalID = "term-unknown" }, provider.KindProviderUnsupported},
		{"missing terminal", func(r *PaymentRequest) { r.TerminalID = "nope" }, provider.KindNotFound},
		{"installment not offered", func(r *PaymentRequest) { r.Installment = 6 }, provider.KindValidation},
		{"unsupported model", func(r *PaymentRequest) { r.Model = provider.Model3DHost }, provider.KindProviderUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := paymentRequest(mock.ApprovedPAN)
			tt.edit(&req)
			_, err := f.svc.CreatePayment(ctx, req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, provider.KindOf(err))
		})
	}
	assert.Zero(t, f.store.created)
}

func TestDirectNotAllowed(t *testing.T) {
	term := mockTerminal()
	term.AllowDirect = false
	f := newFixture(t, term)

	req := paymentRequest(mock.ApprovedPAN)
	req.Model = provider.ModelRegular
	_, err := f.svc.CreatePayment(context.Background(), req)
	assert.Equal(t, "DIRECT_NOT_ALLOWED", provider.CodeOf(err))
}

func TestPartnerOverrideCommission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveOverride(ctx, &provider.CommissionOverride{
		ID:           "ov-1",
		PartnerID:    "partner-7",
		Currency:     "TRY",
		DefaultRate:  decimal.NewFromInt(1),
		DefaultFixed: decimal.RequireFromString("0.25"),
		Active:       true,
	}))

	req := paymentRequest(mock.ApprovedPAN)
	req.Model = provider.ModelRegular
	req.PartnerID = "partner-7"
	res, err := f.svc.CreatePayment(ctx, req)
	require.NoError(t, err)

	c := f.stored(t, res.TransactionID).Commission
	require.NotNil(t, c)
	assert.Equal(t, "override", c.Source)
	assert.Equal(t, "ov-1", c.OverrideID)
	assert.Equal(t, "1.25", c.PlatformAmount.String())
	assert.Equal(t, "2.75", c.Total.String())
}

type overridesDownStore struct {
	storage.Store
}

func (overridesDownStore) FindOverrides(context.Context, string, string) ([]*provider.CommissionOverride, error) {
	return nil, errors.New("overrides table locked")
}

func TestApprovedPaymentPersistsWhenCommissionFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.store = overridesDownStore{Store: f.store}

	req := paymentRequest(mock.ApprovedPAN)
	req.Model = provider.ModelRegular
	req.PartnerID = "partner-7"
	res, err := f.svc.CreatePayment(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Success)

	tx := f.stored(t, res.TransactionID)
	assert.Equal(t, provider.StatusSuccess, tx.Status)
	require.NotNil(t, tx.Result)
	assert.NotEmpty(t, tx.Result.AuthCode)
	assert.NotNil(t, tx.CompletedAt)
	assert.Nil(t, tx.Commission)
}

func TestQueryBankStatusAndCapabilities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := f.payDirect(t, mock.ApprovedPAN)

	st, err := f.svc.QueryBankStatus(ctx, paid.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", st.BankStatus)
	assert.Equal(t, paid.OrderID, st.OrderID)
	assert.Equal(t, provider.StatusSuccess, st.Status)

	caps, err := f.svc.GetPosCapabilities(ctx, "term-mock")
	require.NoError(t, err)
	assert.Equal(t, provider.Model3D, caps.PaymentModel)
	assert.True(t, caps.Capabilities.PaymentDirect)
	assert.True(t, caps.Capabilities.SupportsModel(provider.ModelRegular))

	view, err := f.svc.GetTransactionStatus(ctx, paid.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "411111******1111", view.Card.Masked)
	assert.Equal(t, "411111", view.Card.Bin)
	assert.NotEmpty(t, view.Logs)
	for _, entry := range view.Logs {
		assert.NotContains(t, toString(entry.Request), mock.ApprovedPAN)
	}
}

func toString(v any) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}
