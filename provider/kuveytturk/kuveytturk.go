// Package kuveytturk implements the Kuveyt Turk virtual POS. The pay gate
// answers with a ready made ACS page, which is served to the cardholder as
// is.
package kuveytturk

import (
	"context"
	"net/url"
	"strings"

	"github.com/mstgnz/vpos/provider"
)

const ID = "kuveytturk"

const (
	testBase = "https://boatest.kuveytturk.com.tr/boa.virtualpos.services/Home/"
	liveBase = "https://sanalpos.kuveytturk.com.tr/ServiceGateWay/Home/"

	apiVersion   = "TDV2.0.0"
	orderIDWidth = 20
	successCode  = "00"
)

var credentialFields = []provider.CredentialField{
	{Key: "merchantId", Required: true},
	{Key: "customerId", Required: true},
	{Key: "username", Required: true},
	{Key: "password", Required: true},
}

type Adapter struct {
	s          *provider.Session
	merchantID string
	customerID string
	username   string
	password   string
}

func New(s *provider.Session) (provider.Adapter, error) {
	if err := provider.ValidateCredentials(ID, s.Credentials, credentialFields); err != nil {
		return nil, err
	}
	c := s.Credentials
	return &Adapter{
		s:          s,
		merchantID: c.Get("merchantId"),
		customerID: c.Get("customerId"),
		username:   c.Get("username"),
		password:   c.Get("password"),
	}, nil
}

func (a *Adapter) CredentialFields() []provider.CredentialField {
	return credentialFields
}

func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Payment3D:     true,
		Refund:        true,
		Cancel:        true,
		PaymentModels: []provider.PaymentModel{provider.Model3D},
	}
}

// HashedPassword is SHA1(password), Base64 encoded
func HashedPassword(password string) string {
	return provider.SHA1Base64(password)
}

// PayGateHash signs the 3-D enrollment request
func PayGateHash(merchantID, orderID, amount, okURL, failURL, username, hashedPassword string) string {
	return provider.SHA1Base64(merchantID + orderID + amount + okURL + failURL + username + hashedPassword)
}

// ProvisionHash signs provision, drawback and reversal requests
func ProvisionHash(merchantID, orderID, amount, username, hashedPassword string) string {
	return provider.SHA1Base64(merchantID + orderID + amount + username + hashedPassword)
}

type threeDState struct {
	OrderID string `json:"orderId"`
	Amount  string `json:"amount"`
	HTML    string `json:"html"`
}

func (a *Adapter) currency() (string, error) {
	c, ok := provider.CurrencyNumeric(a.s.Tx.Currency)
	if !ok {
		return "", provider.NewError(provider.KindValidation, "UNSUPPORTED_CURRENCY", "kuveytturk: unsupported currency "+a.s.Tx.Currency)
	}
	return "0" + c, nil
}

func (a *Adapter) Initialize(ctx context.Context) (*provider.Result, error) {
	if a.s.Tx.PaymentModel != provider.Model3D {
		return nil, provider.NewError(provider.KindProviderUnsupported, provider.CodeNotSupported, "kuveytturk: only the 3d model is supported")
	}
	currency, err := a.currency()
	if err != nil {
		return nil, err
	}
	tx := a.s.Tx
	card := a.s.Card
	orderID := a.s.OrderID(orderIDWidth)
	amount := provider.MinorUnitsString(tx.Amount)

	msg := a.message("Sale", orderID, amount)
	msg.CurrencyCode = currency
	msg.DisplayAmount = amount
	msg.InstallmentCount = installment(tx.Installment)
	msg.OkURL = a.s.CallbackURL
	msg.FailURL = a.s.CallbackURL
	msg.CardHolderName = card.Holder
	msg.CardNumber = card.Number
	msg.CardExpireDateYear = card.Year2()
	msg.CardExpireDateMonth = card.Month2()
	msg.CardCVV2 = card.CVV
	msg.CardType = cardType(card.Number)
	msg.HashData = PayGateHash(a.merchantID, orderID, amount, a.s.CallbackURL, a.s.CallbackURL, a.username, HashedPassword(a.password))

	httpResp, err := a.post(ctx, "3d_initialize", "pay_gate", "ThreeDModelPayGate", msg)
	if err != nil {
		return nil, err
	}
	html := httpResp.RawBody
	if html == "" {
		return provider.Declined(provider.KindThreeDFailed, "EMPTY_ACS_PAGE", "bank returned no 3-D page", ""), nil
	}
	// an XML answer instead of a page means the bank refused enrollment
	var refusal transactionResponse
	if a.s.HTTP.ParseXMLResponse(httpResp, &refusal) == nil && refusal.ResponseCode != "" {
		return provider.Declined(provider.KindThreeDFailed, refusal.ResponseCode,
			provider.FirstNonEmpty(refusal.ResponseMessage, "3-D enrollment refused"), html), nil
	}

	state, err := provider.NewState(ID, threeDState{OrderID: orderID, Amount: amount, HTML: html})
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
	return st.HTML, nil
}

func (a *Adapter) ProcessCallback(ctx context.Context, data map[string]string) (*provider.Result, error) {
	var st threeDState
	if err := a.s.LoadState(ID, &st); err != nil {
		return nil, err
	}
	a.s.Log("3d_callback", nil, data)

	// the bank url-encodes the XML a second time
	raw := data["AuthenticationResponse"]
	if strings.HasPrefix(raw, "%3C") || strings.HasPrefix(raw, "%3c") {
		if decoded, err := url.QueryUnescape(raw); err == nil {
			raw = decoded
		}
	}
	if raw == "" {
		return provider.Declined(provider.KindThreeDFailed, "MISSING_RESPONSE", "callback carries no authentication response", ""), nil
	}
	var auth transactionResponse
	if err := decodeXML(raw, &auth); err != nil {
		return provider.Declined(provider.KindThreeDFailed, "INVALID_RESPONSE", "authentication response could not be parsed", raw), nil
	}
	if auth.ResponseCode != successCode {
		return provider.Declined(provider.KindThreeDFailed, provider.FirstNonEmpty(auth.ResponseCode, "AUTH_FAILED"),
			provider.FirstNonEmpty(auth.ResponseMessage, "3-D authentication failed"), raw), nil
	}
	if auth.MerchantOrderID != st.OrderID {
		return provider.Declined(provider.KindThreeDFailed, "ORDER_MISMATCH", "callback order id does not match", raw), nil
	}

	msg := a.message("Sale", st.OrderID, st.Amount)
	msg.CurrencyCode, _ = a.currency()
	msg.InstallmentCount = installment(a.s.Tx.Installment)
	msg.HashData = ProvisionHash(a.merchantID, st.OrderID, st.Amount, a.username, HashedPassword(a.password))
	msg.AdditionalData = &additionalData{Items: []additionalItem{{Key: "MD", Data: auth.MD}}}
	return a.send(ctx, "provision", "provision_gate", "ThreeDModelProvisionGate", msg, st.OrderID)
}

func (a *Adapter) Refund(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	return a.referenced(ctx, "refund", "Drawback", "DrawBack", original, provider.MinorUnitsString(a.s.Tx.Amount))
}

func (a *Adapter) Cancel(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	return a.referenced(ctx, "cancel", "SaleReversal", "SaleReversal", original, provider.MinorUnitsString(original.Amount))
}

func (a *Adapter) referenced(ctx context.Context, operation, txType, path string, original *provider.Transaction, amount string) (*provider.Result, error) {
	msg := a.message(txType, original.OrderID, amount)
	if c, ok := provider.CurrencyNumeric(original.Currency); ok {
		msg.CurrencyCode = "0" + c
	}
	if original.Result != nil {
		msg.RRN = original.Result.RefNumber
		msg.ProvisionNumber = original.Result.ProvisionNumber
	}
	msg.HashData = ProvisionHash(a.merchantID, original.OrderID, amount, a.username, HashedPassword(a.password))
	return a.send(ctx, operation, operation, path, msg, original.OrderID)
}

func installment(n int) string {
	if n <= 1 {
		return "0"
	}
	return provider.InstallmentString(n)
}

func cardType(pan string) string {
	switch {
	case len(pan) > 0 && pan[0] == '4':
		return "Visa"
	case len(pan) > 0 && (pan[0] == '5' || pan[0] == '2'):
		return "MasterCard"
	case len(pan) > 0 && pan[0] == '9':
		return "Troy"
	}
	return ""
}
