// Package garanti implements the Garanti BBVA GVPS virtual POS.
package garanti

import (
	"context"
	"strings"

	"github.com/mstgnz/vpos/provider"
)

const ID = "garanti"

const (
	testGateURL = "https://sanalposprovtest.garantibbva.com.tr/servlet/gt3dengine"
	liveGateURL = "https://sanalposprov.garanti.com.tr/servlet/gt3dengine"
	testAPIURL  = "https://sanalposprovtest.garantibbva.com.tr/VPServlet"
	liveAPIURL  = "https://sanalposprov.garanti.com.tr/VPServlet"

	apiVersion   = "512"
	orderIDWidth = 20

	defaultProvUser   = "PROVAUT"
	defaultRefundUser = "PROVRFN"
)

var securityLevels = map[provider.PaymentModel]string{
	provider.Model3D:    "3D",
	provider.Model3DPay: "3D_PAY",
}

var authenticatedMD = []string{"1", "2", "3", "4"}

var credentialFields = []provider.CredentialField{
	{Key: "merchantId", Required: true, Pattern: `^[0-9]+$`},
	{Key: "terminalId", Required: true, Pattern: `^[0-9]+$`, MaxLength: 9},
	{Key: "userId", Required: true},
	{Key: "provisionPassword", Required: true},
	{Key: "storeKey", Required: true},
	{Key: "refundUser"},
	{Key: "refundPassword"},
}

// Adapter talks to one Garanti terminal
type Adapter struct {
	s              *provider.Session
	merchantID     string
	terminalID     string
	userID         string
	password       string
	storeKey       string
	refundUser     string
	refundPassword string
}

// New builds an adapter from the session credentials
func New(s *provider.Session) (provider.Adapter, error) {
	if err := provider.ValidateCredentials(ID, s.Credentials, credentialFields); err != nil {
		return nil, err
	}
	c := s.Credentials
	return &Adapter{
		s:              s,
		merchantID:     c.Get("merchantId"),
		terminalID:     c.Get("terminalId"),
		userID:         c.Get("userId"),
		password:       c.Get("provisionPassword"),
		storeKey:       c.Get("storeKey"),
		refundUser:     provider.FirstNonEmpty(c.Get("refundUser"), defaultRefundUser),
		refundPassword: provider.FirstNonEmpty(c.Get("refundPassword"), c.Get("provisionPassword")),
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
		PaymentModels: []provider.PaymentModel{provider.ModelRegular, provider.Model3D, provider.Model3DPay},
	}
}

func (a *Adapter) mode() string {
	if a.s.Terminal.TestMode {
		return "TEST"
	}
	return "PROD"
}

func (a *Adapter) txnType() string {
	if a.s.Tx.Operation == provider.OperationPreAuth {
		return "preauth"
	}
	return "sales"
}

// HashedPassword is SHA-1 of the password and the nine digit terminal id
func HashedPassword(password, terminalID string) string {
	if n := 9 - len(terminalID); n > 0 {
		terminalID = strings.Repeat("0", n) + terminalID
	}
	return provider.SHA1HexUpper(password + terminalID)
}

// SecureHash signs the 3-D gate form
func SecureHash(terminalID, orderID, amount, currency, okURL, failURL, txnType, installment, storeKey, hashedPassword string) string {
	return provider.SHA512HexUpper(terminalID + orderID + amount + currency + okURL + failURL +
		txnType + installment + storeKey + hashedPassword)
}

// ProvisionHash signs a GVPS API request
func ProvisionHash(orderID, terminalID, cardNumber, amount, currency, hashedPassword string) string {
	return provider.SHA512HexUpper(orderID + terminalID + cardNumber + amount + currency + hashedPassword)
}

type threeDState struct {
	OrderID  string            `json:"orderId"`
	Level    string            `json:"level"`
	Currency string            `json:"currency"`
	Fields   map[string]string `json:"fields"`
}

func (a *Adapter) cardFields() map[string]string {
	c := a.s.Card
	return map[string]string{
		"cardnumber":          c.Number,
		"cardexpiredatemonth": c.Month2(),
		"cardexpiredateyear":  c.Year2(),
		"cardcvv2":            c.CVV,
	}
}

func (a *Adapter) Initialize(ctx context.Context) (*provider.Result, error) {
	tx := a.s.Tx
	level, ok := securityLevels[tx.PaymentModel]
	if !ok {
		return nil, provider.Errorf(provider.KindProviderUnsupported, "garanti: payment model %q is not supported", tx.PaymentModel)
	}
	currency, ok := provider.CurrencyNumeric(tx.Currency)
	if !ok {
		return nil, provider.NewError(provider.KindValidation, "UNSUPPORTED_CURRENCY", "garanti: unsupported currency "+tx.Currency)
	}

	orderID := a.s.OrderID(orderIDWidth)
	amount := provider.MinorUnitsString(tx.Amount)
	installment := provider.InstallmentString(tx.Installment)
	txnType := a.txnType()
	hashed := HashedPassword(a.password, a.terminalID)

	fields := map[string]string{
		"mode":                  a.mode(),
		"apiversion":            apiVersion,
		"secure3dsecuritylevel": level,
		"terminalprovuserid":    defaultProvUser,
		"terminaluserid":        a.userID,
		"terminalmerchantid":    a.merchantID,
		"terminalid":            a.terminalID,
		"txntype":               txnType,
		"txnamount":             amount,
		"txncurrencycode":       currency,
		"txninstallmentcount":   installment,
		"orderid":               orderID,
		"successurl":            a.s.CallbackURL,
		"errorurl":              a.s.CallbackURL,
		"customeremailaddress":  tx.Customer.Email,
		"customeripaddress":     tx.Customer.IP,
		"lang":                  a.s.Language(),
		"txntimestamp":          a.s.Clock().UTC().Format("2006-01-02T15:04:05Z"),
		"refreshtime":           "0",
		"secure3dhash":          SecureHash(a.terminalID, orderID, amount, currency, a.s.CallbackURL, a.s.CallbackURL, txnType, installment, a.storeKey, hashed),
	}

	state, err := provider.NewState(ID, threeDState{OrderID: orderID, Level: level, Currency: currency, Fields: fields})
	if err != nil {
		return nil, err
	}
	a.s.Log("3d_initialize", fields, nil)
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
	for k, v := range a.cardFields() {
		fields[k] = v
	}
	return provider.RenderAutoSubmitForm(a.s.Endpoint("3d_gate", testGateURL, liveGateURL), provider.SortedFields(fields))
}

// verifyCallbackHash checks hash against the fields listed in hashparams.
// An unsigned callback never verifies.
func (a *Adapter) verifyCallbackHash(data map[string]string) bool {
	params := data["hashparams"]
	if params == "" || data["hash"] == "" {
		return false
	}
	var b strings.Builder
	for _, name := range strings.Split(params, ":") {
		if name != "" {
			b.WriteString(data[name])
		}
	}
	b.WriteString(a.storeKey)
	return provider.EqualHash(strings.ToUpper(data["hash"]), provider.SHA512HexUpper(b.String()))
}

func (a *Adapter) ProcessCallback(ctx context.Context, data map[string]string) (*provider.Result, error) {
	var st threeDState
	if err := a.s.LoadState(ID, &st); err != nil {
		return nil, err
	}
	a.s.Log("3d_callback", nil, data)

	if !a.verifyCallbackHash(data) {
		return provider.Declined(provider.KindThreeDFailed, "HASH_MISMATCH", "callback hash verification failed", ""), nil
	}
	if data["orderid"] != st.OrderID {
		return provider.Declined(provider.KindThreeDFailed, "ORDER_MISMATCH", "callback order does not match", ""), nil
	}

	md := data["mdstatus"]
	if !provider.InSet(md, authenticatedMD...) {
		return provider.Declined(provider.KindThreeDFailed, "MD_"+md,
			provider.FirstNonEmpty(data["mderrormessage"], data["errmsg"], "3-D authentication failed"), ""), nil
	}

	if st.Level == securityLevels[provider.Model3DPay] {
		if data["procreturncode"] == "00" {
			r := provider.Approved(st.OrderID, data["authcode"], data["hostrefnum"], "")
			return r, nil
		}
		return provider.Declined(provider.KindBankRejected,
			provider.FirstNonEmpty(data["procreturncode"], "DECLINED"),
			provider.FirstNonEmpty(data["errmsg"], data["mderrormessage"], "transaction declined"), ""), nil
	}

	req := a.request(defaultProvUser, a.password, st.OrderID, "", provider.MinorUnitsString(a.s.Tx.Amount), st.Currency)
	req.Transaction.Type = a.txnType()
	req.Transaction.InstallmentCnt = provider.InstallmentString(a.s.Tx.Installment)
	req.Transaction.CardholderPresentCode = "13"
	req.Transaction.Secure3D = &secure3D{
		AuthenticationCode: data["cavv"],
		SecurityLevel:      data["eci"],
		TxnID:              data["xid"],
		Md:                 data["md"],
	}
	return a.send(ctx, "provision", req)
}

func (a *Adapter) DirectPayment(ctx context.Context) (*provider.Result, error) {
	return a.nonSecure(ctx, "sales")
}

func (a *Adapter) PreAuth(ctx context.Context) (*provider.Result, error) {
	return a.nonSecure(ctx, "preauth")
}

func (a *Adapter) nonSecure(ctx context.Context, txnType string) (*provider.Result, error) {
	tx := a.s.Tx
	currency, ok := provider.CurrencyNumeric(tx.Currency)
	if !ok {
		return nil, provider.NewError(provider.KindValidation, "UNSUPPORTED_CURRENCY", "garanti: unsupported currency "+tx.Currency)
	}
	card := a.s.Card

	req := a.request(defaultProvUser, a.password, a.s.OrderID(orderIDWidth), card.Number, provider.MinorUnitsString(tx.Amount), currency)
	req.Card = &gvpsCard{Number: card.Number, ExpireDate: card.Month2() + card.Year2(), CVV2: card.CVV}
	req.Transaction.Type = txnType
	req.Transaction.InstallmentCnt = provider.InstallmentString(tx.Installment)
	return a.send(ctx, "direct_payment", req)
}

func (a *Adapter) PostAuth(ctx context.Context, preAuth *provider.Transaction) (*provider.Result, error) {
	currency, _ := provider.CurrencyNumeric(preAuth.Currency)
	req := a.request(defaultProvUser, a.password, preAuth.OrderID, "", provider.MinorUnitsString(a.s.Tx.Amount), currency)
	req.Transaction.Type = "postauth"
	return a.send(ctx, "post_auth", req)
}

func (a *Adapter) Refund(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	currency, _ := provider.CurrencyNumeric(original.Currency)
	req := a.request(a.refundUser, a.refundPassword, original.OrderID, "", provider.MinorUnitsString(a.s.Tx.Amount), currency)
	req.Transaction.Type = "refund"
	return a.send(ctx, "refund", req)
}

func (a *Adapter) Cancel(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	currency, _ := provider.CurrencyNumeric(original.Currency)
	req := a.request(a.refundUser, a.refundPassword, original.OrderID, "", provider.MinorUnitsString(original.Amount), currency)
	req.Transaction.Type = "void"
	if original.Result != nil {
		req.Transaction.OriginalRetrefNum = original.Result.RefNumber
	}
	return a.send(ctx, "cancel", req)
}

func (a *Adapter) Status(ctx context.Context, orderID string) (*provider.Result, error) {
	currency, _ := provider.CurrencyNumeric(a.s.Tx.Currency)
	req := a.request(defaultProvUser, a.password, orderID, "", "1", currency)
	req.Transaction.Type = "orderinq"

	resp, raw, err := a.exchange(ctx, "status", req)
	if err != nil {
		return nil, err
	}
	r := a.result(resp, raw, orderID)
	r.BankStatus = resp.Order.OrderInqResult.Status
	return r, nil
}
