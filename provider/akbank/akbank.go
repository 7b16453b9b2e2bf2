// Package akbank implements the Akbank JSON virtual POS API. Every API call
// is signed with an HMAC-SHA512 auth-hash header; 3-D forms are signed the
// same way over a fixed field order.
package akbank

import (
	"context"
	"fmt"
	"strings"

	"github.com/mstgnz/vpos/provider"
)

const ID = "akbank"

const (
	// API Endpoints
	apiSandboxPaymentAPIURL    = "https://apipre.akbank.com/api/v1/payment/virtualpos/transaction/process"
	apiProductionPaymentAPIURL = "https://api.akbank.com/api/v1/payment/virtualpos/transaction/process"
	gateSandboxURL             = "https://virtualpospaymentgatewaypre.akbank.com/securepay"
	gateProductionURL          = "https://virtualpospaymentgateway.akbank.com/securepay"

	// Transaction Codes
	txnCodeSale     = "1000"
	txnCodeRefund   = "1002"
	txnCodeCancel   = "1003"
	txnCodePreAuth  = "1004"
	txnCodePostAuth = "1005"
	txnCodeInquiry  = "1010"
	txnCode3D       = "3000"
	txnCode3DPre    = "3004"

	apiVersion   = "1.00"
	orderIDWidth = 20

	successCode     = "VPS-0000"
	hostSuccessCode = "00"
)

var paymentModels = map[provider.PaymentModel]string{
	provider.Model3D:     "3D",
	provider.Model3DPay:  "3D_PAY",
	provider.Model3DHost: "3D_PAY_HOSTING",
}

var credentialFields = []provider.CredentialField{
	{Key: "merchantSafeId", Required: true, MinLength: 32, MaxLength: 50},
	{Key: "terminalSafeId", Required: true, MinLength: 32, MaxLength: 50},
	{Key: "secretKey", Required: true, MinLength: 16},
}

// Adapter talks to one Akbank merchant terminal
type Adapter struct {
	s              *provider.Session
	merchantSafeID string
	terminalSafeID string
	secretKey      string
}

func New(s *provider.Session) (provider.Adapter, error) {
	if err := provider.ValidateCredentials(ID, s.Credentials, credentialFields); err != nil {
		return nil, err
	}
	c := s.Credentials
	return &Adapter{
		s:              s,
		merchantSafeID: c.Get("merchantSafeId"),
		terminalSafeID: c.Get("terminalSafeId"),
		secretKey:      c.Get("secretKey"),
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

// formHashOrder is the concatenation order of the 3-D form signature
var formHashOrder = []string{
	"paymentModel", "txnCode", "merchantSafeId", "terminalSafeId", "orderId", "lang", "amount",
	"ccbRewardAmount", "pcbRewardAmount", "xcbRewardAmount", "currencyCode", "installCount",
	"okUrl", "failUrl", "emailAddress", "subMerchantId", "creditCard", "expiredDate", "cvv",
	"randomNumber", "requestDateTime", "b2bIdentityNumber",
}

// FormHash signs the 3-D gate fields
func FormHash(fields map[string]string, secretKey string) string {
	var b strings.Builder
	for _, k := range formHashOrder {
		b.WriteString(fields[k])
	}
	return provider.HMACSHA512Base64(secretKey, b.String())
}

// VerifyCallback recomputes the callback hash from the "+" separated
// hashParams list
func VerifyCallback(data map[string]string, secretKey string) bool {
	params := data["hashParams"]
	if params == "" || data["hash"] == "" {
		return false
	}
	var b strings.Builder
	for _, name := range strings.Split(params, "+") {
		b.WriteString(data[name])
	}
	return provider.EqualHash(provider.HMACSHA512Base64(secretKey, b.String()), data["hash"])
}

// requestDateTime generates request datetime in Akbank format
func (a *Adapter) requestDateTime() string {
	now := a.s.Clock()
	return now.Format("2006-01-02T15:04:05.") + fmt.Sprintf("%03d", now.Nanosecond()/1000000)
}

func (a *Adapter) installCount() int {
	if a.s.Tx.Installment > 1 {
		return a.s.Tx.Installment
	}
	return 1
}

func (a *Adapter) currency() (string, error) {
	c, ok := provider.CurrencyNumeric(a.s.Tx.Currency)
	if !ok {
		return "", provider.NewError(provider.KindValidation, "UNSUPPORTED_CURRENCY", "akbank: unsupported currency "+a.s.Tx.Currency)
	}
	return c, nil
}

type threeDState struct {
	OrderID string            `json:"orderId"`
	Model   string            `json:"model"`
	Fields  map[string]string `json:"fields"`
}

var cardFields = []string{"creditCard", "expiredDate", "cvv"}

func (a *Adapter) Initialize(ctx context.Context) (*provider.Result, error) {
	model := a.s.Tx.PaymentModel
	paymentModel, ok := paymentModels[model]
	if !ok {
		return nil, provider.NewError(provider.KindProviderUnsupported, provider.CodeNotSupported, "akbank: unsupported 3-D model "+string(model))
	}
	currency, err := a.currency()
	if err != nil {
		return nil, err
	}
	tx := a.s.Tx
	card := a.s.Card
	orderID := a.s.OrderID(orderIDWidth)
	txnCode := txnCode3D
	if tx.Operation == provider.OperationPreAuth {
		txnCode = txnCode3DPre
	}

	fields := map[string]string{
		"paymentModel":    paymentModel,
		"txnCode":         txnCode,
		"merchantSafeId":  a.merchantSafeID,
		"terminalSafeId":  a.terminalSafeID,
		"orderId":         orderID,
		"lang":            strings.ToUpper(a.s.Language()),
		"amount":          provider.FormatAmount(tx.Amount),
		"currencyCode":    currency,
		"installCount":    fmt.Sprint(a.installCount()),
		"okUrl":           a.s.CallbackURL,
		"failUrl":         a.s.CallbackURL,
		"emailAddress":    tx.Customer.Email,
		"randomNumber":    provider.RandomHex(64),
		"requestDateTime": a.requestDateTime(),
	}
	if model != provider.Model3DHost {
		fields["creditCard"] = card.Number
		fields["expiredDate"] = card.Month2() + card.Year2()
		fields["cvv"] = card.CVV
	}
	fields["hash"] = FormHash(fields, a.secretKey)

	for _, k := range cardFields {
		delete(fields, k)
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
	fields := make(map[string]string, len(st.Fields)+len(cardFields))
	for k, v := range st.Fields {
		fields[k] = v
	}
	if provider.PaymentModel(st.Model) != provider.Model3DHost {
		card := a.s.Card
		fields["creditCard"] = card.Number
		fields["expiredDate"] = card.Month2() + card.Year2()
		fields["cvv"] = card.CVV
	}
	return provider.RenderAutoSubmitForm(a.s.Endpoint("3d_gate", gateSandboxURL, gateProductionURL), provider.SortedFields(fields))
}

func (a *Adapter) ProcessCallback(ctx context.Context, data map[string]string) (*provider.Result, error) {
	var st threeDState
	if err := a.s.LoadState(ID, &st); err != nil {
		return nil, err
	}
	a.s.Log("3d_callback", nil, data)

	if !VerifyCallback(data, a.secretKey) {
		return provider.Declined(provider.KindThreeDFailed, "HASH_MISMATCH", "callback hash verification failed", ""), nil
	}
	if data["orderId"] != st.OrderID {
		return provider.Declined(provider.KindThreeDFailed, "ORDER_MISMATCH", "callback order id does not match", ""), nil
	}
	if md := data["mdStatus"]; md != "1" {
		return provider.Declined(provider.KindThreeDFailed, "MD_"+md,
			provider.FirstNonEmpty(data["mdErrorMessage"], data["responseMessage"], "3-D authentication failed"), ""), nil
	}

	if provider.PaymentModel(st.Model) != provider.Model3D {
		return outcome(&apiResponse{
			ResponseCode:     data["responseCode"],
			ResponseMessage:  data["responseMessage"],
			HostResponseCode: data["hostResponseCode"],
			HostMessage:      data["hostMessage"],
			Transaction:      apiTransaction{AuthCode: data["authCode"], RRN: data["rrn"]},
		}, st.OrderID, ""), nil
	}

	txnCode := txnCodeSale
	if st.Fields["txnCode"] == txnCode3DPre {
		txnCode = txnCodePreAuth
	}
	req := a.buildBaseRequest(txnCode)
	req.Order = &apiOrder{OrderID: st.OrderID}
	req.Transaction = &apiTransaction{
		Amount:       provider.MinorUnits(a.s.Tx.Amount),
		CurrencyCode: st.Fields["currencyCode"],
		InstallCount: a.installCount(),
	}
	req.SecureTransaction = &secureTransaction{
		SecureID:      data["secureId"],
		SecureEcomInd: data["secureEcomInd"],
		SecureData:    data["secureData"],
		SecureMD:      data["secureMd"],
	}
	return a.send(ctx, "provision", req, st.OrderID)
}

func (a *Adapter) DirectPayment(ctx context.Context) (*provider.Result, error) {
	return a.processPayment(ctx, txnCodeSale, "direct_payment")
}

func (a *Adapter) PreAuth(ctx context.Context) (*provider.Result, error) {
	return a.processPayment(ctx, txnCodePreAuth, "pre_auth")
}

// processPayment handles the non-3D charge logic
func (a *Adapter) processPayment(ctx context.Context, txnCode, operation string) (*provider.Result, error) {
	currency, err := a.currency()
	if err != nil {
		return nil, err
	}
	tx := a.s.Tx
	card := a.s.Card
	orderID := a.s.OrderID(orderIDWidth)

	req := a.buildBaseRequest(txnCode)
	req.Card = &apiCard{
		CardNumber: card.Number,
		CVV2:       card.CVV,
		ExpireDate: card.Month2() + card.Year2(),
	}
	req.Reward = &apiReward{}
	req.Transaction = &apiTransaction{
		Amount:       provider.MinorUnits(tx.Amount),
		CurrencyCode: currency,
		InstallCount: a.installCount(),
	}
	req.Order = &apiOrder{OrderID: orderID}
	req.Customer = &apiCustomer{
		EmailAddress: tx.Customer.Email,
		IPAddress:    provider.FirstNonEmpty(tx.Customer.IP, "127.0.0.1"),
	}
	return a.send(ctx, operation, req, orderID)
}

func (a *Adapter) PostAuth(ctx context.Context, preAuth *provider.Transaction) (*provider.Result, error) {
	req := a.buildBaseRequest(txnCodePostAuth)
	req.Order = &apiOrder{OrderID: preAuth.OrderID}
	req.Transaction = &apiTransaction{Amount: provider.MinorUnits(a.s.Tx.Amount), CurrencyCode: currencyOf(preAuth)}
	return a.send(ctx, "post_auth", req, preAuth.OrderID)
}

func (a *Adapter) Refund(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	req := a.buildBaseRequest(txnCodeRefund)
	req.Order = &apiOrder{OrderID: original.OrderID}
	req.Transaction = &apiTransaction{Amount: provider.MinorUnits(a.s.Tx.Amount), CurrencyCode: currencyOf(original)}
	return a.send(ctx, "refund", req, original.OrderID)
}

func (a *Adapter) Cancel(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	req := a.buildBaseRequest(txnCodeCancel)
	req.Order = &apiOrder{OrderID: original.OrderID}
	return a.send(ctx, "cancel", req, original.OrderID)
}

func (a *Adapter) Status(ctx context.Context, orderID string) (*provider.Result, error) {
	req := a.buildBaseRequest(txnCodeInquiry)
	req.Order = &apiOrder{OrderID: orderID}
	resp, raw, err := a.exchange(ctx, "status", req)
	if err != nil {
		return nil, err
	}
	res := outcome(resp, orderID, raw)
	res.BankStatus = resp.Transaction.Status
	return res, nil
}

func currencyOf(tx *provider.Transaction) string {
	c, _ := provider.CurrencyNumeric(tx.Currency)
	return c
}
