// Package denizbank implements the DenizBank InterVPOS gateway
package denizbank

import (
	"context"
	"strings"

	"github.com/mstgnz/vpos/provider"
)

const ID = "denizbank"

const (
	testURL = "https://test.inter-vpos.com.tr/mpi/Default.aspx"
	liveURL = "https://inter-vpos.com.tr/mpi/Default.aspx"

	orderIDWidth = 20
)

var secureTypes = map[provider.PaymentModel]string{
	provider.Model3D:     "3DModel",
	provider.Model3DPay:  "3DPay",
	provider.Model3DHost: "3DHost",
}

var credentialFields = []provider.CredentialField{
	{Key: "shopCode", Required: true},
	{Key: "userCode", Required: true},
	{Key: "userPass", Required: true},
	{Key: "merchantPass", Required: true},
}

type Adapter struct {
	s            *provider.Session
	shopCode     string
	userCode     string
	userPass     string
	merchantPass string
}

func New(s *provider.Session) (provider.Adapter, error) {
	if err := provider.ValidateCredentials(ID, s.Credentials, credentialFields); err != nil {
		return nil, err
	}
	c := s.Credentials
	return &Adapter{
		s:            s,
		shopCode:     c.Get("shopCode"),
		userCode:     c.Get("userCode"),
		userPass:     c.Get("userPass"),
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
		PreAuth:       true,
		PostAuth:      true,
		PaymentModels: []provider.PaymentModel{provider.ModelRegular, provider.Model3D, provider.Model3DPay, provider.Model3DHost},
	}
}

// FormHash signs the 3-D request
func FormHash(shopCode, orderID, amount, okURL, failURL, txnType, installment, rnd, merchantPass string) string {
	return provider.SHA1Base64(shopCode + orderID + amount + okURL + failURL + txnType + installment + rnd + merchantPass)
}

// VerifyCallback checks HASHPARAMS / HASHPARAMSVAL / HASH of a bank post-back
func VerifyCallback(data map[string]string, merchantPass string) bool {
	params := data["HASHPARAMS"]
	if params == "" || data["HASH"] == "" {
		return false
	}
	var b strings.Builder
	for _, name := range strings.Split(params, ":") {
		if name != "" {
			b.WriteString(data[name])
		}
	}
	if b.String() != data["HASHPARAMSVAL"] {
		return false
	}
	return provider.EqualHash(provider.SHA1Base64(data["HASHPARAMSVAL"]+merchantPass), data["HASH"])
}

// CardType is the InterVPOS scheme code: 0 Visa, 1 Mastercard
func CardType(pan string) string {
	if strings.HasPrefix(pan, "5") || strings.HasPrefix(pan, "2") {
		return "1"
	}
	return "0"
}

func installment(n int) string {
	if n <= 1 {
		return "0"
	}
	return provider.InstallmentString(n)
}

func (a *Adapter) txnType() string {
	if a.s.Tx.Operation == provider.OperationPreAuth {
		return "PreAuth"
	}
	return "Auth"
}

func (a *Adapter) currency() (string, error) {
	c, ok := provider.CurrencyNumeric(a.s.Tx.Currency)
	if !ok {
		return "", provider.NewError(provider.KindValidation, "UNSUPPORTED_CURRENCY", "denizbank: unsupported currency "+a.s.Tx.Currency)
	}
	return c, nil
}

type threeDState struct {
	OrderID string            `json:"orderId"`
	Model   string            `json:"model"`
	Fields  map[string]string `json:"fields"`
}

func (a *Adapter) Initialize(ctx context.Context) (*provider.Result, error) {
	model := a.s.Tx.PaymentModel
	secureType, ok := secureTypes[model]
	if !ok {
		return nil, provider.NewError(provider.KindProviderUnsupported, provider.CodeNotSupported, "denizbank: unsupported 3-D model "+string(model))
	}
	currency, err := a.currency()
	if err != nil {
		return nil, err
	}
	tx := a.s.Tx
	orderID := a.s.OrderID(orderIDWidth)
	amount := provider.FormatAmount(tx.Amount)
	inst := installment(tx.Installment)
	rnd := provider.RandomHex(10)
	txn := a.txnType()

	fields := map[string]string{
		"ShopCode":         a.shopCode,
		"PurchAmount":      amount,
		"Currency":         currency,
		"OrderId":          orderID,
		"OkUrl":            a.s.CallbackURL,
		"FailUrl":          a.s.CallbackURL,
		"Rnd":              rnd,
		"TxnType":          txn,
		"InstallmentCount": inst,
		"SecureType":       secureType,
		"Lang":             strings.ToUpper(a.s.Language()),
		"Hash":             FormHash(a.shopCode, orderID, amount, a.s.CallbackURL, a.s.CallbackURL, txn, inst, rnd, a.merchantPass),
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
		fields["CardType"] = CardType(card.Number)
	}
	return provider.RenderAutoSubmitForm(a.s.Endpoint("3d_gate", testURL, liveURL), provider.SortedFields(fields))
}

func (a *Adapter) ProcessCallback(ctx context.Context, data map[string]string) (*provider.Result, error) {
	var st threeDState
	if err := a.s.LoadState(ID, &st); err != nil {
		return nil, err
	}
	a.s.Log("3d_callback", nil, data)

	if !VerifyCallback(data, a.merchantPass) {
		return provider.Declined(provider.KindThreeDFailed, "HASH_MISMATCH", "callback hash verification failed", ""), nil
	}
	if data["OrderId"] != st.OrderID {
		return provider.Declined(provider.KindThreeDFailed, "ORDER_MISMATCH", "callback order id does not match", ""), nil
	}
	if status := data["3DStatus"]; status != "1" {
		return provider.Declined(provider.KindThreeDFailed, "MD_"+status,
			provider.FirstNonEmpty(data["ErrorMessage"], data["ErrMsg"], "3-D authentication failed"), ""), nil
	}
	if provider.PaymentModel(st.Model) != provider.Model3D {
		return result(data, st.OrderID, ""), nil
	}

	form := a.base("3DModelPayment", st.Fields["TxnType"])
	form["RequestGuid"] = data["RequestGuid"]
	form["OrderId"] = st.OrderID
	form["PurchAmount"] = st.Fields["PurchAmount"]
	form["Currency"] = st.Fields["Currency"]
	form["InstallmentCount"] = st.Fields["InstallmentCount"]
	return a.send(ctx, "provision", form, st.OrderID)
}

func (a *Adapter) DirectPayment(ctx context.Context) (*provider.Result, error) {
	return a.nonSecure(ctx, "Auth", "direct_payment")
}

func (a *Adapter) PreAuth(ctx context.Context) (*provider.Result, error) {
	return a.nonSecure(ctx, "PreAuth", "pre_auth")
}

func (a *Adapter) nonSecure(ctx context.Context, txn, operation string) (*provider.Result, error) {
	currency, err := a.currency()
	if err != nil {
		return nil, err
	}
	tx := a.s.Tx
	card := a.s.Card
	orderID := a.s.OrderID(orderIDWidth)

	form := a.base("NonSecure", txn)
	form["OrderId"] = orderID
	form["PurchAmount"] = provider.FormatAmount(tx.Amount)
	form["Currency"] = currency
	form["InstallmentCount"] = installment(tx.Installment)
	form["Pan"] = card.Number
	form["Expiry"] = card.Month2() + card.Year2()
	form["Cvv2"] = card.CVV
	form["CardType"] = CardType(card.Number)
	return a.send(ctx, operation, form, orderID)
}

func (a *Adapter) PostAuth(ctx context.Context, preAuth *provider.Transaction) (*provider.Result, error) {
	form := a.base("NonSecure", "PostAuth")
	form["orgOrderId"] = preAuth.OrderID
	form["PurchAmount"] = provider.FormatAmount(a.s.Tx.Amount)
	return a.send(ctx, "post_auth", form, preAuth.OrderID)
}

func (a *Adapter) Refund(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	form := a.base("NonSecure", "Refund")
	form["orgOrderId"] = original.OrderID
	form["PurchAmount"] = provider.FormatAmount(a.s.Tx.Amount)
	if c, ok := provider.CurrencyNumeric(original.Currency); ok {
		form["Currency"] = c
	}
	return a.send(ctx, "refund", form, original.OrderID)
}

func (a *Adapter) Cancel(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	form := a.base("NonSecure", "Void")
	form["orgOrderId"] = original.OrderID
	return a.send(ctx, "cancel", form, original.OrderID)
}

func (a *Adapter) base(secureType, txn string) map[string]string {
	return map[string]string{
		"ShopCode":   a.shopCode,
		"UserCode":   a.userCode,
		"UserPass":   a.userPass,
		"SecureType": secureType,
		"TxnType":    txn,
		"Lang":       "TR",
	}
}

// parseResponse reads InterVPOS "Key=Value;;Key=Value" answers
func parseResponse(raw string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ";;") {
		if k, v, ok := strings.Cut(strings.TrimSpace(part), "="); ok {
			out[k] = v
		}
	}
	return out
}

func (a *Adapter) send(ctx context.Context, operation string, form map[string]string, orderID string) (*provider.Result, error) {
	httpResp, err := a.s.HTTP.SendForm(ctx, &provider.HTTPRequest{
		Operation: operation,
		Endpoint:  a.s.Endpoint("api", testURL, liveURL),
		FormData:  form,
	})
	if err != nil {
		a.s.Log(operation, form, err.Error())
		return nil, err
	}
	a.s.Log(operation, form, httpResp.RawBody)
	return result(parseResponse(httpResp.RawBody), orderID, httpResp.RawBody), nil
}

func result(fields map[string]string, orderID, raw string) *provider.Result {
	if fields["ProcReturnCode"] == "00" {
		r := provider.Approved(orderID, fields["AuthCode"], fields["HostRefNum"], raw)
		r.TransID = fields["TransId"]
		return r
	}
	return provider.Declined(provider.KindBankRejected,
		provider.FirstNonEmpty(fields["ProcReturnCode"], "DECLINED"),
		provider.FirstNonEmpty(fields["ErrorMessage"], fields["ErrMsg"], "transaction declined"), raw)
}
