package kuveytturk

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/mstgnz/vpos/provider"
	"github.com/mstgnz/vpos/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var creds = map[string]string{
	"merchantId": "496",
	"customerId": "400235",
	"username":   "apitest",
	"password":   "api123",
}

const acsPage = `<!DOCTYPE html><html><body onload="document.f.submit()"><form name="f" action="https://acs.example.com"><input name="PaReq" value="x"></form></body></html>`

func newAdapter(t *testing.T, opts providertest.Options) (*Adapter, *provider.Session) {
	t.Helper()
	opts.Provider = ID
	opts.Credentials = creds
	s := providertest.Session(t, opts)
	a, err := New(s)
	require.NoError(t, err)
	return a.(*Adapter), s
}

func authResponse(code, orderID string) string {
	return url.QueryEscape(`<?xml version="1.0" encoding="utf-8"?><VPosTransactionResponseContract><ResponseCode>` + code +
		`</ResponseCode><ResponseMessage>msg</ResponseMessage><MerchantOrderId>` + orderID + `</MerchantOrderId><MD>MD+abc==</MD></VPosTransactionResponseContract>`)
}

func TestHashes(t *testing.T) {
	hp := HashedPassword("api123")
	assert.Equal(t, provider.SHA1Base64("api123"), hp)
	assert.Equal(t, provider.SHA1Base64("496O1"+"10000"+"ok"+"fail"+"apitest"+hp), PayGateHash("496", "O1", "10000", "ok", "fail", "apitest", hp))
	assert.Equal(t, provider.SHA1Base64("496O1"+"10000"+"apitest"+hp), ProvisionHash("496", "O1", "10000", "apitest", hp))
}

func TestThreeDFlow(t *testing.T) {
	bank := providertest.NewBank(t, func(r providertest.Request) (int, string) {
		if strings.Contains(r.Path, "ThreeDModelProvisionGate") {
			return 200, `<VPosTransactionResponseContract><ResponseCode>00</ResponseCode><ProvisionNumber>P77</ProvisionNumber><RRN>R88</RRN><OrderId>9001</OrderId></VPosTransactionResponseContract>`
		}
		return 200, acsPage
	})
	a, s := newAdapter(t, providertest.Options{Model: provider.Model3D, Endpoints: map[string]string{
		"pay_gate":       bank.URL + "/ThreeDModelPayGate",
		"provision_gate": bank.URL + "/ThreeDModelProvisionGate",
	}})

	res, err := a.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, provider.StatusProcessing, res.Status)
	body := bank.Last().Body
	assert.Contains(t, body, "<Amount>10000</Amount>")
	assert.Contains(t, body, "<CurrencyCode>0949</CurrencyCode>")
	assert.Contains(t, body, "<CardType>Visa</CardType>")

	s.Tx.ThreeD = res.State
	html, err := a.FormHTML(context.Background())
	require.NoError(t, err)
	assert.Equal(t, acsPage, html)

	out, err := a.ProcessCallback(context.Background(), map[string]string{"AuthenticationResponse": authResponse("00", res.OrderID)})
	require.NoError(t, err)
	assert.True(t, out.Success())
	assert.Equal(t, "P77", out.ProvisionNumber)
	assert.Equal(t, "R88", out.RefNumber)
	assert.Contains(t, bank.Last().Body, "<Key>MD</Key><Data>MD+abc==</Data>")
}

func TestCallbackRejections(t *testing.T) {
	bank := providertest.NewBank(t, providertest.Static(acsPage))
	a, s := newAdapter(t, providertest.Options{Model: provider.Model3D, Endpoints: map[string]string{"pay_gate": bank.URL}})
	res, err := a.Initialize(context.Background())
	require.NoError(t, err)
	s.Tx.ThreeD = res.State

	out, err := a.ProcessCallback(context.Background(), map[string]string{"AuthenticationResponse": authResponse("HashDataError", res.OrderID)})
	require.NoError(t, err)
	assert.Equal(t, provider.KindThreeDFailed, out.ErrorKind)
	assert.Equal(t, "HashDataError", out.ErrorCode)

	out, err = a.ProcessCallback(context.Background(), map[string]string{"AuthenticationResponse": authResponse("00", "OTHER")})
	require.NoError(t, err)
	assert.Equal(t, "ORDER_MISMATCH", out.ErrorCode)

	out, err = a.ProcessCallback(context.Background(), map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "MISSING_RESPONSE", out.ErrorCode)
	assert.Len(t, bank.Requests(), 1)
}

func TestEnrollmentRefused(t *testing.T) {
	bank := providertest.NewBank(t, providertest.Static(`<VPosTransactionResponseContract><ResponseCode>MetaDataNotFound</ResponseCode><ResponseMessage>Kart 3D degil</ResponseMessage></VPosTransactionResponseContract>`))
	a, _ := newAdapter(t, providertest.Options{Model: provider.Model3D, Endpoints: map[string]string{"pay_gate": bank.URL}})

	res, err := a.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, provider.StatusFailed, res.Status)
	assert.Equal(t, "MetaDataNotFound", res.ErrorCode)
}

func TestOnlyThreeDModel(t *testing.T) {
	a, _ := newAdapter(t, providertest.Options{Model: provider.Model3DPay})
	_, err := a.Initialize(context.Background())
	assert.True(t, provider.IsKind(err, provider.KindProviderUnsupported))
	assert.False(t, a.Capabilities().PaymentDirect)
}

func TestRefundAndCancel(t *testing.T) {
	bank := providertest.NewBank(t, providertest.Static(`<VPosTransactionResponseContract><ResponseCode>00</ResponseCode></VPosTransactionResponseContract>`))
	a, _ := newAdapter(t, providertest.Options{Endpoints: map[string]string{"refund": bank.URL, "cancel": bank.URL}})
	original := &provider.Transaction{OrderID: "O1", Currency: "TRY", Result: &provider.TransactionResult{RefNumber: "R88", ProvisionNumber: "P77"}}

	out, err := a.Refund(context.Background(), original)
	require.NoError(t, err)
	assert.True(t, out.Success())
	assert.Contains(t, bank.Last().Body, "<TransactionType>Drawback</TransactionType>")
	assert.Contains(t, bank.Last().Body, "<RRN>R88</RRN>")

	out, err = a.Cancel(context.Background(), original)
	require.NoError(t, err)
	assert.True(t, out.Success())
	assert.Contains(t, bank.Last().Body, "<TransactionType>SaleReversal</TransactionType>")
}
