// Package providertest builds adapter sessions and fake bank endpoints for
// adapter tests.
package providertest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mstgnz/vpos/provider"
	"github.com/shopspring/decimal"
)

// FixedNow is the clock of every session built here
var FixedNow = time.Date(2025, 3, 14, 10, 30, 45, 0, time.UTC)

// TestCard is a well known test PAN
var TestCard = provider.Card{
	Holder:      "Ada Lovelace",
	Number:      "4111111111111111",
	ExpiryMonth: "12",
	ExpiryYear:  "2030",
	CVV:         "123",
}

// Options shapes the transaction and terminal of a session
type Options struct {
	Provider    string
	BankCode    string
	Credentials map[string]string
	Endpoints   map[string]string
	Model       provider.PaymentModel
	Operation   provider.Operation
	Amount      string
	Currency    string
	Installment int
	Card        *provider.Card
	TestMode    bool
}

// Session builds a session the way the engine does, with a fixed clock
func Session(t testing.TB, opts Options) *provider.Session {
	t.Helper()

	if opts.Amount == "" {
		opts.Amount = "100.00"
	}
	if opts.Currency == "" {
		opts.Currency = "TRY"
	}
	if opts.Model == "" {
		opts.Model = provider.Model3D
	}
	if opts.Operation == "" {
		opts.Operation = provider.OperationPayment
	}
	if opts.BankCode == "" {
		opts.BankCode = opts.Provider
	}
	card := TestCard
	if opts.Card != nil {
		card = *opts.Card
	}

	terminal := &provider.Terminal{
		ID:         "term-1",
		Name:       "test terminal",
		BankCode:   opts.BankCode,
		Provider:   opts.Provider,
		Currencies: []string{opts.Currency},
		TestMode:   opts.TestMode,
		ThreeD:     provider.ThreeDSettings{Enabled: opts.Model.Is3D(), Model: opts.Model},
		Endpoints:  opts.Endpoints,
		Active:     true,
	}
	tx := &provider.Transaction{
		ID:           "0b6a4f1e-7c1d-4d2a-9a41-5f0f2c7d9e10",
		TerminalID:   terminal.ID,
		Provider:     opts.Provider,
		BankCode:     opts.BankCode,
		Operation:    opts.Operation,
		PaymentModel: opts.Model,
		ExternalID:   "BK-2025-0042",
		Amount:       decimal.RequireFromString(opts.Amount),
		Currency:     opts.Currency,
		Installment:  opts.Installment,
		Customer: provider.Customer{
			Name:  "Ada Lovelace",
			Email: "ada@example.com",
			Phone: "5551234567",
			IP:    "10.0.0.7",
		},
		Status:    provider.StatusPending,
		CreatedAt: FixedNow,
		UpdatedAt: FixedNow,
	}

	return &provider.Session{
		Tx:          tx,
		Terminal:    terminal,
		Card:        card,
		Credentials: opts.Credentials,
		CallbackURL: "https://pay.example.com/payment/" + tx.ID + "/callback",
		HTTP:        provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig(opts.Provider, true, 5*time.Second)),
		Now:         func() time.Time { return FixedNow },
	}
}

// Request is one call received by a Bank
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

// Bank is an httptest server that records requests and answers with a
// handler chosen by the test
type Bank struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Request
	reply    func(r Request) (int, string)
}

// NewBank starts a fake bank. reply may be swapped later with Reply.
func NewBank(t testing.TB, reply func(r Request) (int, string)) *Bank {
	t.Helper()
	b := &Bank{reply: reply}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		req := Request{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: string(body)}

		b.mu.Lock()
		b.requests = append(b.requests, req)
		reply := b.reply
		b.mu.Unlock()

		status, out := http.StatusOK, ""
		if reply != nil {
			status, out = reply(req)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, out)
	}))
	t.Cleanup(b.Close)
	return b
}

// Reply replaces the answer function
func (b *Bank) Reply(reply func(r Request) (int, string)) {
	b.mu.Lock()
	b.reply = reply
	b.mu.Unlock()
}

// Requests returns the calls received so far
func (b *Bank) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Last returns the most recent call
func (b *Bank) Last() Request {
	reqs := b.Requests()
	if len(reqs) == 0 {
		return Request{}
	}
	return reqs[len(reqs)-1]
}

// Static answers every call with the same body
func Static(body string) func(Request) (int, string) {
	return func(Request) (int, string) { return http.StatusOK, body }
}
