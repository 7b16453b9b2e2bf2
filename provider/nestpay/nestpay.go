// Package nestpay implements the NestPay (EST / Asseco) virtual POS used by
// Isbank, Halkbank, Ziraat, TEB, Anadolubank, Sekerbank, ING and others.
package nestpay

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mstgnz/vpos/provider"
)

const ID = "nestpay"

const (
	testGateURL = "https://entegrasyon.asseco-see.com.tr/fim/est3Dgate"
	testAPIURL  = "https://entegrasyon.asseco-see.com.tr/fim/api"

	orderIDWidth = 20

	tranAuth     = "Auth"
	tranPreAuth  = "PreAuth"
	tranPostAuth = "PostAuth"
	tranCredit   = "Credit"
	tranVoid     = "Void"
)

// live hosts per bank code
var liveHosts = map[string]string{
	"isbank":      "https://sanalpos.isbank.com.tr",
	"halkbank":    "https://sanalpos.halkbank.com.tr",
	"ziraat":      "https://sanalpos2.ziraatbank.com.tr",
	"teb":         "https://sanalpos.teb.com.tr",
	"anadolubank": "https://anadolusanalpos.est.com.tr",
	"sekerbank":   "https://sanalpos.sekerbank.com.tr",
	"ingbank":     "https://sanalpos.ingbank.com.tr",
	"akbank":      "https://www.sanalakpos.com",
	"finansbank":  "https://www.fbwebpos.com",
}

const defaultLiveHost = "https://sanalpos.est.com.tr"

var storeTypes = map[provider.PaymentModel]string{
	provider.Model3D:     "3d",
	provider.Model3DPay:  "3d_pay",
	provider.Model3DHost: "3d_pay_hosting",
}

// mdStatus values that mean the cardholder was authenticated
var authenticatedMD = []string{"1", "2", "3", "4"}

var credentialFields = []provider.CredentialField{
	{Key: "clientId", Required: true, Pattern: `^[0-9A-Za-z]+$`},
	{Key: "username", Required: true},
	{Key: "password", Required: true},
	{Key: "storeKey", Required: true, MinLength: 4},
}

// Adapter talks to one NestPay merchant account
type Adapter struct {
	s        *provider.Session
	clientID string
	username string
	password string
	storeKey string
}

// New builds an adapter from the session credentials
func New(s *provider.Session) (provider.Adapter, error) {
	if err := provider.ValidateCredentials(ID, s.Credentials, credentialFields); err != nil {
		return nil, err
	}
	return &Adapter{
		s:        s,
		clientID: s.Credentials.Get("clientId"),
		username: s.Credentials.Get("username"),
		password: s.Credentials.Get("password"),
		storeKey: s.Credentials.Get("storeKey"),
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
		History:       true,
		PreAuth:       true,
		PostAuth:      true,
		PaymentModels: []provider.PaymentModel{
			provider.ModelRegular, provider.Model3D, provider.Model3DPay, provider.Model3DHost,
		},
	}
}

func (a *Adapter) host() string {
	if h, ok := liveHosts[a.s.Terminal.BankCode]; ok {
		return h
	}
	return defaultLiveHost
}

func (a *Adapter) gateURL() string {
	return a.s.Endpoint("3d_gate", testGateURL, a.host()+"/fim/est3Dgate")
}

func (a *Adapter) apiURL() string {
	return a.s.Endpoint("api", testAPIURL, a.host()+"/fim/api")
}

func (a *Adapter) tranType() string {
	if a.s.Tx.Operation == provider.OperationPreAuth {
		return tranPreAuth
	}
	return tranAuth
}

type threeDState struct {
	OrderID   string            `json:"orderId"`
	StoreType string            `json:"storeType"`
	Fields    map[string]string `json:"fields"`
}

// card fields are posted to the gate but never persisted in the state
func (a *Adapter) cardFields() map[string]string {
	if a.s.Tx.PaymentModel == provider.Model3DHost {
		return nil
	}
	c := a.s.Card
	return map[string]string{
		"pan":                             c.Number,
		"Ecom_Payment_Card_ExpDate_Year":  c.Year2(),
		"Ecom_Payment_Card_ExpDate_Month": c.Month2(),
		"cv2":                             c.CVV,
	}
}

// Initialize builds the 3-D gate form and signs it with hash ver3
func (a *Adapter) Initialize(ctx context.Context) (*provider.Result, error) {
	tx := a.s.Tx
	storeType, ok := storeTypes[tx.PaymentModel]
	if !ok {
		return nil, provider.Errorf(provider.KindProviderUnsupported, "nestpay: payment model %q has no 3-D store type", tx.PaymentModel)
	}
	currency, ok := provider.CurrencyNumeric(tx.Currency)
	if !ok {
		return nil, provider.NewError(provider.KindValidation, "UNSUPPORTED_CURRENCY", "nestpay: unsupported currency "+tx.Currency)
	}

	orderID := a.s.OrderID(orderIDWidth)
	fields := map[string]string{
		"clientid":      a.clientID,
		"storetype":     storeType,
		"hashAlgorithm": "ver3",
		"amount":        provider.FormatAmount(tx.Amount),
		"currency":      currency,
		"oid":           orderID,
		"okUrl":         a.s.CallbackURL,
		"failUrl":       a.s.CallbackURL,
		"TranType":      a.tranType(),
		"Instalment":    provider.InstallmentString(tx.Installment),
		"rnd":           strconv.FormatInt(a.s.Clock().UnixNano(), 10),
		"lang":          a.s.Language(),
		"BillToName":    a.s.Card.Holder,
		"email":         tx.Customer.Email,
	}

	signed := mergeFields(fields, a.cardFields())
	fields["hash"] = HashV3(signed, a.storeKey)

	state, err := provider.NewState(ID, threeDState{OrderID: orderID, StoreType: storeType, Fields: fields})
	if err != nil {
		return nil, err
	}

	a.s.Log("3d_initialize", map[string]any{"gate": a.gateURL(), "fields": signed}, nil)
	return provider.Pending(orderID, state), nil
}

// FormHTML renders the auto-submit form targeting the bank's 3-D gate
func (a *Adapter) FormHTML(ctx context.Context) (string, error) {
	var st threeDState
	if err := a.s.LoadState(ID, &st); err != nil {
		return "", err
	}
	fields := mergeFields(st.Fields, a.cardFields())
	return provider.RenderAutoSubmitForm(a.gateURL(), provider.SortedFields(fields))
}

// ProcessCallback verifies the gate's post-back. For the 3d model the
// charge is provisioned through the API; 3d_pay and 3d_pay_hosting
// callbacks already carry the provisioning outcome.
func (a *Adapter) ProcessCallback(ctx context.Context, data map[string]string) (*provider.Result, error) {
	var st threeDState
	if err := a.s.LoadState(ID, &st); err != nil {
		return nil, err
	}
	a.s.Log("3d_callback", nil, data)

	if !VerifyHashV3(data, a.storeKey) {
		return provider.Declined(provider.KindThreeDFailed, "HASH_MISMATCH", "callback hash verification failed", ""), nil
	}
	if oid := data["oid"]; oid != "" && oid != st.OrderID {
		return provider.Declined(provider.KindThreeDFailed, "ORDER_MISMATCH",
			fmt.Sprintf("callback order %s does not match %s", oid, st.OrderID), ""), nil
	}

	md := data["mdStatus"]
	if !provider.InSet(md, authenticatedMD...) {
		msg := provider.FirstNonEmpty(data["mdErrorMsg"], data["ErrMsg"], "3-D authentication failed")
		return provider.Declined(provider.KindThreeDFailed, "MD_"+md, msg, ""), nil
	}

	if st.StoreType != storeTypes[provider.Model3D] {
		return callbackResult(st.OrderID, data), nil
	}

	req := a.baseRequest(a.tranType())
	req.OrderID = st.OrderID
	req.Total = provider.FormatAmount(a.s.Tx.Amount)
	req.Currency = st.Fields["currency"]
	req.Taksit = provider.InstallmentString(a.s.Tx.Installment)
	req.Number = data["md"]
	req.PayerTxnID = data["xid"]
	req.PayerSecurityLevel = data["eci"]
	req.PayerAuthenticationCode = data["cavv"]
	req.IPAddress = a.s.Tx.Customer.IP
	req.Email = a.s.Tx.Customer.Email

	return a.send(ctx, "provision", req)
}

func callbackResult(orderID string, data map[string]string) *provider.Result {
	if data["Response"] == "Approved" && data["ProcReturnCode"] == "00" {
		r := provider.Approved(orderID, data["AuthCode"], data["HostRefNum"], "")
		r.TransID = data["TransId"]
		return r
	}
	code := provider.FirstNonEmpty(data["ProcReturnCode"], data["Response"], "DECLINED")
	return provider.Declined(provider.KindBankRejected, code,
		provider.FirstNonEmpty(data["ErrMsg"], "transaction declined"), "")
}

// DirectPayment charges the card without 3-D authentication
func (a *Adapter) DirectPayment(ctx context.Context) (*provider.Result, error) {
	return a.nonSecure(ctx, tranAuth)
}

// PreAuth reserves the amount without 3-D authentication
func (a *Adapter) PreAuth(ctx context.Context) (*provider.Result, error) {
	return a.nonSecure(ctx, tranPreAuth)
}

func (a *Adapter) nonSecure(ctx context.Context, tranType string) (*provider.Result, error) {
	tx := a.s.Tx
	currency, ok := provider.CurrencyNumeric(tx.Currency)
	if !ok {
		return nil, provider.NewError(provider.KindValidation, "UNSUPPORTED_CURRENCY", "nestpay: unsupported currency "+tx.Currency)
	}

	req := a.baseRequest(tranType)
	req.OrderID = a.s.OrderID(orderIDWidth)
	req.Total = provider.FormatAmount(tx.Amount)
	req.Currency = currency
	req.Taksit = provider.InstallmentString(tx.Installment)
	req.Number = a.s.Card.Number
	req.Expires = a.s.Card.Month2() + "/" + a.s.Card.Year2()
	req.Cvv2Val = a.s.Card.CVV
	req.IPAddress = tx.Customer.IP
	req.Email = tx.Customer.Email

	return a.send(ctx, "direct_payment", req)
}

// PostAuth captures a pre-authorization
func (a *Adapter) PostAuth(ctx context.Context, preAuth *provider.Transaction) (*provider.Result, error) {
	req := a.baseRequest(tranPostAuth)
	req.OrderID = preAuth.OrderID
	req.Total = provider.FormatAmount(a.s.Tx.Amount)
	return a.send(ctx, "post_auth", req)
}

// Refund credits the original order back
func (a *Adapter) Refund(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	currency, _ := provider.CurrencyNumeric(original.Currency)
	req := a.baseRequest(tranCredit)
	req.OrderID = original.OrderID
	req.Total = provider.FormatAmount(a.s.Tx.Amount)
	req.Currency = currency
	return a.send(ctx, "refund", req)
}

// Cancel voids the original order
func (a *Adapter) Cancel(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	req := a.baseRequest(tranVoid)
	req.OrderID = original.OrderID
	return a.send(ctx, "cancel", req)
}

// Status queries the order state. BankStatus carries TRANS_STAT.
func (a *Adapter) Status(ctx context.Context, orderID string) (*provider.Result, error) {
	req := a.baseRequest("")
	req.OrderID = orderID
	req.Extra = &cc5Extra{OrderStatus: "QUERY"}

	resp, raw, err := a.exchange(ctx, "status", req)
	if err != nil {
		return nil, err
	}
	if resp.ProcReturnCode != "00" {
		return provider.Declined(provider.KindBankRejected,
			provider.FirstNonEmpty(resp.Extra.ErrorCode, resp.ProcReturnCode, "STATUS_FAILED"),
			provider.FirstNonEmpty(resp.ErrMsg, "status query failed"), raw), nil
	}
	r := provider.Approved(orderID, resp.Extra.AuthCode, resp.Extra.HostRefNum, raw)
	r.TransID = resp.Extra.TransID
	r.BankStatus = resp.Extra.TransStat
	return r, nil
}

func mergeFields(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
