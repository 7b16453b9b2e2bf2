package qnbpay

import (
	"context"
	"net/url"
	"testing"

	"github.com/mstgnz/vpos/provider"
	"github.com/mstgnz/vpos/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var creds = map[string]string{
	"merchantId":   "085300000009704",
	"userCode":     "QNB_API_KULLANICI_3DPAY",
	"userPassword": "UcBN0",
	"merchantPass": "12345678",
}

func newAdapter(t *testing.T, opts providertest.Options) (*Adapter, *provider.Session) {
	t.Helper()
	opts.Provider = ID
	opts.Credentials = creds
	s := providertest.Session(t, opts)
	a, err := New(s)
	require.NoError(t, err)
	return a.(*Adapter), s
}

func signed(data map[string]string) map[string]string {
	data["ResponseHash"] = ResponseHash(creds["merchantId"], creds["merchantPass"], data["OrderId"], data["AuthCode"],
		data["ProcReturnCode"], data["3DStatus"], data["ResponseRnd"], creds["userCode"])
	return data
}

func TestParseResponse(t *testing.T) {
	got := parseResponse("OrderId=A1;;ProcReturnCode=00;;AuthCode=123456;;ErrMsg=;;Extra")
	assert.Equal(t, "A1", got["OrderId"])
	assert.Equal(t, "00", got["ProcReturnCode"])
	assert.Equal(t, "123456", got["AuthCode"])
	assert.Equal(t, "", got["ErrMsg"])
	assert.NotContains(t, got, "Extra")
}

func TestInitializeHash(t *testing.T) {
	a, s := newAdapter(t, providertest.Options{Model: provider.Model3DPay, Installment: 3, Amount: "10.50"})
	res, err := a.Initialize(context.Background())
	require.NoError(t, err)

	var st threeDState
	require.NoError(t, res.State.Decode(ID, &st))
	f := st.Fields
	assert.Equal(t, "3DPay", f["SecureType"])
	assert.Equal(t, "10.50", f["PurchAmount"])
	assert.Equal(t, "3", f["InstallmentCount"])
	assert.Equal(t, RequestHash(res.OrderID, "10.50", s.CallbackURL, s.CallbackURL, "Auth", "3", f["Rnd"], "12345678"), f["Hash"])

	s.Tx.ThreeD = res.State
	html, err := a.FormHTML(context.Background())
	require.NoError(t, err)
	assert.Contains(t, html, `name="Pan" value="4111111111111111"`)
	assert.Contains(t, html, `name="Expiry" value="1230"`)
}

func TestThreeDPayCallback(t *testing.T) {
	a, s := newAdapter(t, providertest.Options{Model: provider.Model3DPay})
	res, err := a.Initialize(context.Background())
	require.NoError(t, err)
	s.Tx.ThreeD = res.State

	out, err := a.ProcessCallback(context.Background(), signed(map[string]string{
		"OrderId": res.OrderID, "3DStatus": "1", "ProcReturnCode": "00", "AuthCode": "555111", "HostRefNum": "R1", "ResponseRnd": "x",
	}))
	require.NoError(t, err)
	assert.True(t, out.Success())
	assert.Equal(t, "555111", out.AuthCode)

	out, err = a.ProcessCallback(context.Background(), signed(map[string]string{
		"OrderId": res.OrderID, "3DStatus": "1", "ProcReturnCode": "51", "ErrMsg": "Limit", "ResponseRnd": "x",
	}))
	require.NoError(t, err)
	assert.Equal(t, provider.KindBankRejected, out.ErrorKind)
	assert.Equal(t, "51", out.ErrorCode)
}

func TestCallbackRejections(t *testing.T) {
	a, s := newAdapter(t, providertest.Options{Model: provider.Model3D})
	res, err := a.Initialize(context.Background())
	require.NoError(t, err)
	s.Tx.ThreeD = res.State

	tests := []struct {
		name string
		data map[string]string
		code string
	}{
		{"tampered", map[string]string{"OrderId": res.OrderID, "3DStatus": "1", "ResponseHash": "bad"}, "HASH_MISMATCH"},
		{"unsigned", map[string]string{"OrderId": res.OrderID, "3DStatus": "1", "ProcReturnCode": "00"}, "HASH_MISMATCH"},
		{"other order", signed(map[string]string{"OrderId": "X", "3DStatus": "1"}), "ORDER_MISMATCH"},
		{"not authenticated", signed(map[string]string{"OrderId": res.OrderID, "3DStatus": "0"}), "MD_0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := a.ProcessCallback(context.Background(), tt.data)
			require.NoError(t, err)
			assert.Equal(t, provider.KindThreeDFailed, out.ErrorKind)
			assert.Equal(t, tt.code, out.ErrorCode)
		})
	}
}

func TestThreeDModelProvision(t *testing.T) {
	bank := providertest.NewBank(t, providertest.Static("OrderId=O;;ProcReturnCode=00;;AuthCode=777000;;HostRefNum=HR;;TransId=TID"))
	a, s := newAdapter(t, providertest.Options{Model: provider.Model3D, Endpoints: map[string]string{"api": bank.URL}})
	res, err := a.Initialize(context.Background())
	require.NoError(t, err)
	s.Tx.ThreeD = res.State

	out, err := a.ProcessCallback(context.Background(), signed(map[string]string{
		"OrderId": res.OrderID, "3DStatus": "1", "RequestGuid": "G-1",
	}))
	require.NoError(t, err)
	assert.True(t, out.Success())
	assert.Equal(t, "TID", out.TransID)

	form, err := url.ParseQuery(bank.Last().Body)
	require.NoError(t, err)
	assert.Equal(t, "3DModelPayment", form.Get("SecureType"))
	assert.Equal(t, "G-1", form.Get("RequestGuid"))
	assert.Equal(t, "100.00", form.Get("PurchAmount"))
}

func TestOperations(t *testing.T) {
	bank := providertest.NewBank(t, providertest.Static("ProcReturnCode=00;;TxnResult=Success"))
	a, _ := newAdapter(t, providertest.Options{Model: provider.ModelRegular, Endpoints: map[string]string{"api": bank.URL}})
	original := &provider.Transaction{OrderID: "ORIG", Currency: "TRY"}

	_, err := a.DirectPayment(context.Background())
	require.NoError(t, err)
	form, _ := url.ParseQuery(bank.Last().Body)
	assert.Equal(t, "NonSecure", form.Get("SecureType"))
	assert.Equal(t, "Auth", form.Get("TxnType"))
	assert.Equal(t, "123", form.Get("Cvv2"))

	_, err = a.Cancel(context.Background(), original)
	require.NoError(t, err)
	form, _ = url.ParseQuery(bank.Last().Body)
	assert.Equal(t, "Void", form.Get("TxnType"))
	assert.Equal(t, "ORIG", form.Get("OrgOrderId"))

	st, err := a.Status(context.Background(), "ORIG")
	require.NoError(t, err)
	assert.Equal(t, "Success", st.BankStatus)
}

func TestThreeDPayRejectsUnsignedCallback(t *testing.T) {
	a, s := newAdapter(t, providertest.Options{Model: provider.Model3DPay})
	res, err := a.Initialize(context.Background())
	require.NoError(t, err)
	s.Tx.ThreeD = res.State

	out, err := a.ProcessCallback(context.Background(), map[string]string{
		"OrderId": res.OrderID, "3DStatus": "1", "ProcReturnCode": "00", "AuthCode": "FORGED",
	})
	require.NoError(t, err)
	assert.False(t, out.Success())
	assert.Equal(t, provider.KindThreeDFailed, out.ErrorKind)
	assert.Equal(t, "HASH_MISMATCH", out.ErrorCode)
	assert.Empty(t, out.AuthCode)
}
