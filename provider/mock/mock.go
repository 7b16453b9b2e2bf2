// Package mock is an in-process adapter with deterministic outcomes, used
// for sandbox terminals and lifecycle tests. Outcomes depend on the PAN:
//
//	4111111111111111   approved
//	5555555555554444   declined with 05
//	other ...0000      declined with 99
//	anything else      approved
package mock

import (
	"context"
	"strings"

	"github.com/mstgnz/vpos/infra/config"
	"github.com/mstgnz/vpos/provider"
)

const ID = "mock"

const (
	ApprovedPAN = "4111111111111111"
	DeclinedPAN = "5555555555554444"

	orderIDWidth = 20
	defaultKey   = "mock-secret"
)

var credentialFields = []provider.CredentialField{
	{Key: "merchantId", Required: false},
	{Key: "secretKey", Required: false},
}

type Adapter struct {
	s          *provider.Session
	merchantID string
	secretKey  string
}

func New(s *provider.Session) (provider.Adapter, error) {
	if err := provider.ValidateCredentials(ID, s.Credentials, credentialFields); err != nil {
		return nil, err
	}
	return &Adapter{
		s:          s,
		merchantID: provider.FirstNonEmpty(s.Credentials.Get("merchantId"), "MOCK"),
		secretKey:  provider.FirstNonEmpty(s.Credentials.Get("secretKey"), defaultKey),
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
		PaymentModels: []provider.PaymentModel{provider.ModelRegular, provider.Model3D},
	}
}

// Outcome is the bank answer for a card number
func Outcome(pan string) (code, message string, ok bool) {
	switch {
	case pan == ApprovedPAN:
		return "00", "Approved", true
	case pan == DeclinedPAN:
		return "05", "Do not honour", false
	case strings.HasSuffix(pan, "0000"):
		return "99", "General decline", false
	}
	return "00", "Approved", true
}

// CallbackHash signs the simulated ACS post-back
func CallbackHash(secretKey, orderID, mdStatus string) string {
	return provider.HMACSHA256Hex(secretKey, orderID+"|"+mdStatus)
}

type threeDState struct {
	OrderID string `json:"orderId"`
}

func (a *Adapter) Initialize(ctx context.Context) (*provider.Result, error) {
	if a.s.Tx.PaymentModel != provider.Model3D {
		return nil, provider.NewError(provider.KindProviderUnsupported, provider.CodeNotSupported, "mock: unsupported 3-D model "+string(a.s.Tx.PaymentModel))
	}
	orderID := a.s.OrderID(orderIDWidth)
	a.s.Log("3d_initialize", map[string]string{"orderId": orderID, "merchantId": a.merchantID}, nil)

	state, err := provider.NewState(ID, threeDState{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return provider.Pending(orderID, state), nil
}

// FormHTML posts an authenticated result to the configured mock gate, or
// straight back to the callback when no gate is configured.
func (a *Adapter) FormHTML(ctx context.Context) (string, error) {
	var st threeDState
	if err := a.s.LoadState(ID, &st); err != nil {
		return "", err
	}
	gate := provider.FirstNonEmpty(config.GetAppConfig().MockGateURL, a.s.CallbackURL)
	fields := map[string]string{
		"orderId":     st.OrderID,
		"mdStatus":    "1",
		"hash":        CallbackHash(a.secretKey, st.OrderID, "1"),
		"callbackUrl": a.s.CallbackURL,
	}
	return provider.RenderAutoSubmitForm(a.s.Endpoint("3d_gate", gate, gate), provider.SortedFields(fields))
}

func (a *Adapter) ProcessCallback(ctx context.Context, data map[string]string) (*provider.Result, error) {
	var st threeDState
	if err := a.s.LoadState(ID, &st); err != nil {
		return nil, err
	}
	a.s.Log("3d_callback", nil, data)

	if !provider.EqualHash(CallbackHash(a.secretKey, data["orderId"], data["mdStatus"]), data["hash"]) {
		return provider.Declined(provider.KindThreeDFailed, "HASH_MISMATCH", "callback hash verification failed", ""), nil
	}
	if data["orderId"] != st.OrderID {
		return provider.Declined(provider.KindThreeDFailed, "ORDER_MISMATCH", "callback order id does not match", ""), nil
	}
	if md := data["mdStatus"]; md != "1" {
		return provider.Declined(provider.KindThreeDFailed, "MD_"+md, "3-D authentication failed", ""), nil
	}
	return a.charge("provision", st.OrderID), nil
}

func (a *Adapter) DirectPayment(ctx context.Context) (*provider.Result, error) {
	return a.charge("direct_payment", a.s.OrderID(orderIDWidth)), nil
}

func (a *Adapter) PreAuth(ctx context.Context) (*provider.Result, error) {
	return a.charge("pre_auth", a.s.OrderID(orderIDWidth)), nil
}

func (a *Adapter) PostAuth(ctx context.Context, preAuth *provider.Transaction) (*provider.Result, error) {
	return a.approve("post_auth", preAuth.OrderID), nil
}

func (a *Adapter) Refund(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	return a.approve("refund", original.OrderID), nil
}

func (a *Adapter) Cancel(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	return a.approve("cancel", original.OrderID), nil
}

func (a *Adapter) Status(ctx context.Context, orderID string) (*provider.Result, error) {
	r := a.approve("status", orderID)
	r.BankStatus = "APPROVED"
	return r, nil
}

func (a *Adapter) charge(operation, orderID string) *provider.Result {
	code, msg, ok := Outcome(a.s.Card.Number)
	raw := "ProcReturnCode=" + code + ";ErrMsg=" + msg
	a.s.Log(operation, map[string]string{"orderId": orderID, "amount": provider.FormatAmount(a.s.Tx.Amount), "pan": a.s.Card.Number}, raw)
	if !ok {
		return provider.Declined(provider.KindBankRejected, code, msg, raw)
	}
	return a.approved(orderID, raw)
}

func (a *Adapter) approve(operation, orderID string) *provider.Result {
	raw := "ProcReturnCode=00;ErrMsg=Approved"
	a.s.Log(operation, map[string]string{"orderId": orderID, "amount": provider.FormatAmount(a.s.Tx.Amount)}, raw)
	return a.approved(orderID, raw)
}

func (a *Adapter) approved(orderID, raw string) *provider.Result {
	seq := strings.ToUpper(provider.RandomHex(3))
	r := provider.Approved(orderID, "M"+seq[:5], "R"+seq, raw)
	r.TransID = "T" + seq
	return r
}
