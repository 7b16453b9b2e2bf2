package denizbank

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
	"shopCode":     "3123",
	"userCode":     "InterTestApi",
	"userPass":     "3",
	"merchantPass": "gDg1N",
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

// signed fills HASHPARAMS, HASHPARAMSVAL and HASH the way the bank does
func signed(data map[string]string) map[string]string {
	data["HASHPARAMS"] = "OrderId:3DStatus:ProcReturnCode:"
	val := data["OrderId"] + data["3DStatus"] + data["ProcReturnCode"]
	data["HASHPARAMSVAL"] = val
	data["HASH"] = provider.SHA1Base64(val + creds["merchantPass"])
	return data
}

func TestVerifyCallback(t *testing.T) {
	good := signed(map[string]string{"OrderId": "A", "3DStatus": "1", "ProcReturnCode": "00"})
	assert.True(t, VerifyCallback(good, creds["merchantPass"]))
	assert.False(t, VerifyCallback(good, "other"))

	tampered := signed(map[string]string{"OrderId": "A", "3DStatus": "1", "ProcReturnCode": "00"})
	tampered["3DStatus"] = "0"
	assert.False(t, VerifyCallback(tampered, creds["merchantPass"]))

	assert.False(t, VerifyCallback(map[string]string{"OrderId": "A"}, creds["merchantPass"]))
}

func TestCardType(t *testing.T) {
	assert.Equal(t, "0", CardType("4111111111111111"))
	assert.Equal(t, "1", CardType("5555555555554444"))
}

func TestInitialize(t *testing.T) {
	a, s := newAdapter(t, providertest.Options{Model: provider.Model3DHost})
	res, err := a.Initialize(context.Background())
	require.NoError(t, err)

	var st threeDState
	require.NoError(t, res.State.Decode(ID, &st))
	f := st.Fields
	assert.Equal(t, "3DHost", f["SecureType"])
	assert.Equal(t, "0", f["InstallmentCount"])
	assert.Equal(t, FormHash("3123", res.OrderID, "100.00", s.CallbackURL, s.CallbackURL, "Auth", "0", f["Rnd"], "gDg1N"), f["Hash"])

	s.Tx.ThreeD = res.State
	html, err := a.FormHTML(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, html, "4111111111111111")
	assert.Contains(t, html, liveURL)
}

func TestThreeDPayCallback(t *testing.T) {
	a, s := newAdapter(t, providertest.Options{Model: provider.Model3DPay})
	res, err := a.Initialize(context.Background())
	require.NoError(t, err)
	s.Tx.ThreeD = res.State

	data := signed(map[string]string{"OrderId": res.OrderID, "3DStatus": "1", "ProcReturnCode": "00"})
	data["AuthCode"] = "S78312"
	out, err := a.ProcessCallback(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, out.Success())
	assert.Equal(t, "S78312", out.AuthCode)

	out, err = a.ProcessCallback(context.Background(), signed(map[string]string{"OrderId": res.OrderID, "3DStatus": "2"}))
	require.NoError(t, err)
	assert.Equal(t, "MD_2", out.ErrorCode)

	out, err = a.ProcessCallback(context.Background(), map[string]string{"OrderId": res.OrderID, "3DStatus": "1"})
	require.NoError(t, err)
	assert.Equal(t, "HASH_MISMATCH", out.ErrorCode)
}

func TestThreeDModelProvision(t *testing.T) {
	bank := providertest.NewBank(t, providertest.Static("ProcReturnCode=00;;AuthCode=A1;;HostRefNum=H1;;TransId=T1"))
	a, s := newAdapter(t, providertest.Options{Model: provider.Model3D, Endpoints: map[string]string{"api": bank.URL}})
	res, err := a.Initialize(context.Background())
	require.NoError(t, err)
	s.Tx.ThreeD = res.State

	data := signed(map[string]string{"OrderId": res.OrderID, "3DStatus": "1"})
	data["RequestGuid"] = "RG"
	out, err := a.ProcessCallback(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, out.Success())
	assert.Equal(t, "H1", out.RefNumber)

	form, err := url.ParseQuery(bank.Last().Body)
	require.NoError(t, err)
	assert.Equal(t, "3DModelPayment", form.Get("SecureType"))
	assert.Equal(t, "RG", form.Get("RequestGuid"))
}

func TestDirectAndReferenced(t *testing.T) {
	bank := providertest.NewBank(t, providertest.Static("ProcReturnCode=05;;ErrorMessage=Red"))
	a, _ := newAdapter(t, providertest.Options{Model: provider.ModelRegular, Endpoints: map[string]string{"api": bank.URL}})

	out, err := a.DirectPayment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "05", out.ErrorCode)
	assert.Equal(t, "Red", out.ErrorMessage)

	bank.Reply(providertest.Static("ProcReturnCode=00"))
	out, err = a.Refund(context.Background(), &provider.Transaction{OrderID: "ORIG", Currency: "TRY"})
	require.NoError(t, err)
	assert.True(t, out.Success())
	form, _ := url.ParseQuery(bank.Last().Body)
	assert.Equal(t, "Refund", form.Get("TxnType"))
	assert.Equal(t, "ORIG", form.Get("orgOrderId"))
}
