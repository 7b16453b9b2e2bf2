package mock

import (
	"context"
	"fmt"
	"testing"

	"github.com/mstgnz/vpos/provider"
	"github.com/mstgnz/vpos/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdapter(t *testing.T, pan string, model provider.PaymentModel) (*Adapter, *provider.Session) {
	t.Helper()
	card := providertest.TestCard
	card.Number = pan
	s := providertest.Session(t, providertest.Options{Provider: ID, Model: model, Card: &card})
	a, err := New(s)
	require.NoError(t, err)
	return a.(*Adapter), s
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		pan  string
		code string
		ok   bool
	}{
		{ApprovedPAN, "00", true},
		{DeclinedPAN, "05", false},
		{"4000000000000000", "99", false},
		{"5105105105100000", "99", false},
		{"4242424242424242", "00", true},
	}
	for _, tt := range tests {
		t.Run(tt.pan, func(t *testing.T) {
			code, _, ok := Outcome(tt.pan)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestDirectPayment(t *testing.T) {
	for pan, code := range map[string]string{ApprovedPAN: "", DeclinedPAN: "05", "4000000000000000": "99"} {
		a, s := newAdapter(t, pan, provider.ModelRegular)
		out, err := a.DirectPayment(context.Background())
		require.NoError(t, err)
		assert.Equal(t, code == "", out.Success(), pan)
		assert.Equal(t, code, out.ErrorCode, pan)
		logs := s.DrainLogs()
		require.Len(t, logs, 1)
		assert.NotContains(t, fmt.Sprint(logs[0].Request), pan)
	}
}

func TestThreeDRoundTrip(t *testing.T) {
	a, s := newAdapter(t, ApprovedPAN, provider.Model3D)
	res, err := a.Initialize(context.Background())
	require.NoError(t, err)
	s.Tx.ThreeD = res.State

	html, err := a.FormHTML(context.Background())
	require.NoError(t, err)
	assert.Contains(t, html, `action="`+s.CallbackURL+`"`)
	assert.Contains(t, html, CallbackHash(defaultKey, res.OrderID, "1"))

	out, err := a.ProcessCallback(context.Background(), map[string]string{
		"orderId": res.OrderID, "mdStatus": "1", "hash": CallbackHash(defaultKey, res.OrderID, "1"),
	})
	require.NoError(t, err)
	assert.True(t, out.Success())
	assert.NotEmpty(t, out.AuthCode)
}

func TestThreeDRejections(t *testing.T) {
	a, s := newAdapter(t, DeclinedPAN, provider.Model3D)
	res, err := a.Initialize(context.Background())
	require.NoError(t, err)
	s.Tx.ThreeD = res.State

	tests := []struct {
		name string
		data map[string]string
		kind provider.Kind
		code string
	}{
		{"bad hash", map[string]string{"orderId": res.OrderID, "mdStatus": "1", "hash": "x"}, provider.KindThreeDFailed, "HASH_MISMATCH"},
		{"md", map[string]string{"orderId": res.OrderID, "mdStatus": "0", "hash": CallbackHash(defaultKey, res.OrderID, "0")}, provider.KindThreeDFailed, "MD_0"},
		{"declined card", map[string]string{"orderId": res.OrderID, "mdStatus": "1", "hash": CallbackHash(defaultKey, res.OrderID, "1")}, provider.KindBankRejected, "05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := a.ProcessCallback(context.Background(), tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, out.ErrorKind)
			assert.Equal(t, tt.code, out.ErrorCode)
		})
	}
}

func TestReferencedOperations(t *testing.T) {
	a, _ := newAdapter(t, DeclinedPAN, provider.ModelRegular)
	original := &provider.Transaction{OrderID: "O1"}

	for _, call := range []func() (*provider.Result, error){
		func() (*provider.Result, error) { return a.Refund(context.Background(), original) },
		func() (*provider.Result, error) { return a.Cancel(context.Background(), original) },
		func() (*provider.Result, error) { return a.PostAuth(context.Background(), original) },
		func() (*provider.Result, error) { return a.Status(context.Background(), "O1") },
	} {
		out, err := call()
		require.NoError(t, err)
		assert.True(t, out.Success())
		assert.Equal(t, "O1", out.OrderID)
	}
}
