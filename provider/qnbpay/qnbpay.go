// Package qnbpay implements the QNB Finansbank PayFor gateway
package qnbpay

import (
	"context"

	"github.com/mstgnz/vpos/provider"
)

const ID = "qnbpay"

const (
	testGateURL = "https://vpostest.qnbfinansbank.com/Gateway/Default.aspx"
	liveGateURL = "https://vpos.qnbfinansbank.com/Gateway/Default.aspx"
	testAPIURL  = "https://vpostest.qnbfinansbank.com/Gateway/Default.aspx"
	liveAPIURL  = "https://vpos.qnbfinansbank.com/Gateway/Default.aspx"

	mbrID        = "5"
	orderIDWidth = 20
)

var secureTypes = map[provider.PaymentModel]string{
	provider.Model3D:      "3DModel",
	provider.Model3DPay:   "3DPay",
	provider.Model3DHost:  "3DHost",
	provider.ModelRegular: "NonSecure",
}

const (
	txnSale     = "Auth"
	txnPreAuth  = "PreAuth"
	txnPostAuth = "PostAuth"
	txnVoid     = "Void"
	txnRefund   = "Refund"
	txnInquiry  = "OrderInquiry"
)

var credentialFields = []provider.CredentialField{
	{Key: "merchantId", Required: true},
	{Key: "userCode", Required: true},
	{Key: "userPassword", Required: true},
	{Key: "merchantPass", Required: true},
}

type Adapter struct {
	s            *provider.Session
	merchantID   string
	userCode     string
	userPassword string
	merchantPass string
}

func New(s *provider.Session) (provider.Adapter, error) {
	if err := provider.ValidateCredentials(ID, s.Credentials, credentialFields); err != nil {
		return nil, err
	}
	c := s.Credentials
	return &Adapter{
		s:            s,
		merchantID:   c.Get("merchantId"),
		userCode:     c.Get("userCode"),
		userPassword: c.Get("userPassword"),
		merchantPass: c.Get("merchantPass"),
	}, nil
}

func (a *Adapter) CredentialFields() []provider.CredentialField {
	return credentialFields
}

func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Payment3D:     true,
		PaymentDirect: true,
		Refund:        true,
		Cancel:        true,
		Status:        true,
		PreAuth:       true,
		PostAuth:      true,
		PaymentModels: []provider.PaymentModel{provider.ModelRegular, provider.Model3D, provider.Model3DPay, provider.Model3DHost},
	}
}

// RequestHash signs the 3-D form
func RequestHash(orderID, amount, okURL, failURL, txnType, installment, rnd, merchantPass string) string {
	return provider.SHA1Base64(mbrID + orderID + amount + okURL + failURL + txnType + installment + rnd + merchantPass)
}

// ResponseHash is what the bank sends back in the 3-D callback
func ResponseHash(merchantID, merchantPass, orderID, authCode, procReturnCode, status3D, rnd, userCode string) string {
	return provider.SHA1Base64(merchantID + merchantPass + orderID + authCode + procReturnCode + status3D + rnd + userCode)
}

func (a *Adapter) txnType() string {
	if a.s.Tx.Operation == provider.OperationPreAuth {
		return txnPreAuth
	}
	return txnSale
}

func installment(n int) string {
	if n <= 1 {
		return "0"
	}
	return provider.InstallmentString(n)
}

type threeDState struct {
	OrderID string            `json:"orderId"`
	Model   string            `json:"model"`
	Fields  map[string]string `json:"fields"`
}

func (a *Adapter) Initialize(ctx context.Context) (*provider.Result, error) {
	model := a.s.Tx.PaymentModel
	secureType, ok := secureTypes[model]
	if !ok || !model.Is3D() {
		return nil, provider.NewError(provider.KindProviderUnsupported, provider.CodeNotSupported, "qnbpay: unsupported 3-D model "+string(model))
	}
	currency, ok := provider.CurrencyNumeric(a.s.Tx.Currency)
	if !ok {
		return nil, provider.NewError(provider.KindValidation, "UNSUPPORTED_CURRENCY", "qnbpay: unsupported currency "+a.s.Tx.Currency)
	}
	tx := a.s.Tx
	orderID := a.s.OrderID(orderIDWidth)
	amount := provider.FormatAmount(tx.Amount)
	inst := installment(tx.Installment)
	rnd := provider.RandomHex(10)
	txn := a.txnType()

	fields := map[string]string{
		"MbrId":            mbrID,
		"MerchantID":       a.merchantID,
		"UserCode":         a.userCode,
		"UserPass":         a.userPassword,
		"SecureType":       secureType,
		"TxnType":          txn,
		"InstallmentCount": inst,
		"Currency":         currency,
		"OkUrl":            a.s.CallbackURL,
		"FailUrl":          a.s.CallbackURL,
		"OrderId":          orderID,
		"PurchAmount":      amount,
		"Lang":             map[string]string{"tr": "TR", "en": "EN"}[a.s.Language()],
		"Rnd":              rnd,
		"Hash":             RequestHash(orderID, amount, a.s.CallbackURL, a.s.CallbackURL, txn, inst, rnd, a.merchantPass),
	}
	a.s.Log("3d_initialize", fields, nil)

	state, err := provider.NewState(ID, threeDState{OrderID: orderID, Model: string(model), Fields: fields})
	if err != nil {
		return nil, err
	}
	return provider.Pending(orderID, state), nil
}

func (a *Adapter) FormHTML(ctx context.Context) (string, error) {
	var st threeDState
	if err := a.s.LoadState(ID, &st); err != nil {
		return "", err
	}
	fields := make(map[string]string, len(st.Fields)+4)
	for k, v := range st.Fields {
		fields[k] = v
	}
	if provider.PaymentModel(st.Model) != provider.Model3DHost {
		card := a.s.Card
		fields["Pan"] = card.Number
		fields["Expiry"] = card.Month2() + card.Year2()
		fields["Cvv2"] = card.CVV
		fields["CardHolderName"] = card.Holder
	}
	return provider.RenderAutoSubmitForm(a.s.Endpoint("3d_gate", testGateURL, liveGateURL), provider.SortedFields(fields))
}

func (a *Adapter) ProcessCallback(ctx context.Context, data map[string]string) (*provider.Result, error) {
	var st threeDState
	if err := a.s.LoadState(ID, &st); err != nil {
		return nil, err
	}
	a.s.Log("3d_callback", nil, data)

	want := ResponseHash(a.merchantID, a.merchantPass, data["OrderId"], data["AuthCode"], data["ProcReturnCode"], data["3DStatus"], data["ResponseRnd"], a.userCode)
	if h := data["ResponseHash"]; h == "" || !provider.EqualHash(want, h) {
		return provider.Declined(provider.KindThreeDFailed, "HASH_MISMATCH", "callback hash verification failed", ""), nil
	}
	if data["OrderId"] != st.OrderID {
		return provider.Declined(provider.KindThreeDFailed, "ORDER_MISMATCH", "callback order id does not match", ""), nil
	}
	if status := data["3DStatus"]; status != "1" {
		return provider.Declined(provider.KindThreeDFailed, "MD_"+status,
			provider.FirstNonEmpty(data["ErrMsg"], "3-D authentication failed"), ""), nil
	}

	if provider.PaymentModel(st.Model) != provider.Model3D {
		return result(data, st.OrderID, ""), nil
	}

	form := a.base("3DModelPayment", st.Fields["TxnType"], st.OrderID)
	form["RequestGuid"] = data["RequestGuid"]
	form["PurchAmount"] = st.Fields["PurchAmount"]
	form["Currency"] = st.Fields["Currency"]
	form["InstallmentCount"] = st.Fields["InstallmentCount"]
	return a.send(ctx, "provision", form, st.OrderID)
}

func (a *Adapter) DirectPayment(ctx context.Context) (*provider.Result, error) {
	return a.nonSecure(ctx, txnSale)
}

func (a *Adapter) PreAuth(ctx context.Context) (*provider.Result, error) {
	return a.nonSecure(ctx, txnPreAuth)
}

func (a *Adapter) nonSecure(ctx context.Context, txn string) (*provider.Result, error) {
	currency, ok := provider.CurrencyNumeric(a.s.Tx.Currency)
	if !ok {
		return nil, provider.NewError(provider.KindValidation, "UNSUPPORTED_CURRENCY", "qnbpay: unsupported currency "+a.s.Tx.Currency)
	}
	tx := a.s.Tx
	card := a.s.Card
	orderID := a.s.OrderID(orderIDWidth)
	form := a.base("NonSecure", txn, orderID)
	form["PurchAmount"] = provider.FormatAmount(tx.Amount)
	form["Currency"] = currency
	form["InstallmentCount"] = installment(tx.Installment)
	form["Pan"] = card.Number
	form["Expiry"] = card.Month2() + card.Year2()
	form["Cvv2"] = card.CVV
	form["CardHolderName"] = card.Holder

	name := "direct_payment"
	if txn == txnPreAuth {
		name = "pre_auth"
	}
	return a.send(ctx, name, form, orderID)
}

func (a *Adapter) PostAuth(ctx context.Context, preAuth *provider.Transaction) (*provider.Result, error) {
	form := a.referenced(txnPostAuth, preAuth)
	form["PurchAmount"] = provider.FormatAmount(a.s.Tx.Amount)
	return a.send(ctx, "post_auth", form, preAuth.OrderID)
}

func (a *Adapter) Refund(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	form := a.referenced(txnRefund, original)
	form["PurchAmount"] = provider.FormatAmount(a.s.Tx.Amount)
	return a.send(ctx, "refund", form, original.OrderID)
}

func (a *Adapter) Cancel(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	return a.send(ctx, "cancel", a.referenced(txnVoid, original), original.OrderID)
}

func (a *Adapter) Status(ctx context.Context, orderID string) (*provider.Result, error) {
	form := a.base("NonSecure", txnInquiry, "")
	form["OrgOrderId"] = orderID
	res, err := a.send(ctx, "status", form, orderID)
	if err != nil {
		return nil, err
	}
	res.BankStatus = parseResponse(res.Raw)["TxnResult"]
	return res, nil
}

func (a *Adapter) referenced(txn string, original *provider.Transaction) map[string]string {
	form := a.base("NonSecure", txn, "")
	form["OrgOrderId"] = original.OrderID
	if c, ok := provider.CurrencyNumeric(original.Currency); ok {
		form["Currency"] = c
	}
	return form
}
