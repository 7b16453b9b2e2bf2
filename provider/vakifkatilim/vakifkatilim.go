// Package vakifkatilim implements the Vakif Katilim hosted payment page.
// The bank posts the result back as an encrypted, semicolon separated
// record.
package vakifkatilim

import (
	"context"
	"strings"

	"github.com/mstgnz/vpos/provider"
)

const ID = "vakifkatilim"

const (
	testGateURL = "https://boatest.vakifkatilim.com.tr/VirtualPOS.Gateway/Home/CommonPaymentPage"
	liveGateURL = "https://boa.vakifkatilim.com.tr/VirtualPOS.Gateway/Home/CommonPaymentPage"

	orderIDWidth = 20
	successCode  = "00"
)

// positions in the decrypted callback record
const (
	fieldMerchantOrderID = iota
	fieldOrderID
	fieldResultCode
	fieldResultMessage
	fieldMdStatus
	fieldAuthCode
	fieldRRN
	fieldProvisionNumber
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
		PaymentModels: []provider.PaymentModel{provider.Model3DHost},
	}
}

// FormHash signs the hosted page request, SHA-512 upper-case hex
func FormHash(merchantID, customerID, orderID, amount, okURL, failURL, username, password string) string {
	return provider.SHA512HexUpper(merchantID + customerID + orderID + amount + okURL + failURL + username + password)
}

type threeDState struct {
	OrderID string            `json:"orderId"`
	Fields  map[string]string `json:"fields"`
}

func (a *Adapter) Initialize(ctx context.Context) (*provider.Result, error) {
	if a.s.Tx.PaymentModel != provider.Model3DHost {
		return nil, provider.NewError(provider.KindProviderUnsupported, provider.CodeNotSupported, "vakifkatilim: only the hosted 3-D model is supported")
	}
	numeric, ok := provider.CurrencyNumeric(a.s.Tx.Currency)
	if !ok {
		return nil, provider.NewError(provider.KindValidation, "UNSUPPORTED_CURRENCY", "vakifkatilim: unsupported currency "+a.s.Tx.Currency)
	}
	tx := a.s.Tx
	orderID := a.s.OrderID(orderIDWidth)
	amount := provider.MinorUnitsString(tx.Amount)
	inst := "0"
	if tx.Installment > 1 {
		inst = provider.InstallmentString(tx.Installment)
	}

	fields := map[string]string{
		"MerchantId":       a.merchantID,
		"CustomerId":       a.customerID,
		"UserName":         a.username,
		"MerchantOrderId":  orderID,
		"Amount":           amount,
		"FECCurrencyCode":  "0" + numeric,
		"InstallmentCount": inst,
		"OkUrl":            a.s.CallbackURL,
		"FailUrl":          a.s.CallbackURL,
		"PaymentType":      "1",
		"Lang":             strings.ToUpper(a.s.Language()),
		"HashData":         FormHash(a.merchantID, a.customerID, orderID, amount, a.s.CallbackURL, a.s.CallbackURL, a.username, a.password),
	}
	a.s.Log("3d_initialize", fields, nil)

	state, err := provider.NewState(ID, threeDState{OrderID: orderID, Fields: fields})
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
	return provider.RenderAutoSubmitForm(a.s.Endpoint("3d_gate", testGateURL, liveGateURL), provider.SortedFields(st.Fields))
}

func (a *Adapter) ProcessCallback(ctx context.Context, data map[string]string) (*provider.Result, error) {
	var st threeDState
	if err := a.s.LoadState(ID, &st); err != nil {
		return nil, err
	}
	a.s.Log("3d_callback", nil, data)

	payload := provider.FirstNonEmpty(data["Data"], data["ResponseData"])
	record, err := DecryptRecord(payload, a.password)
	if err != nil {
		return provider.Declined(provider.KindDecryptError, "DECRYPT_ERROR", "callback packet could not be decrypted", payload), nil
	}
	raw := strings.Join(record, ";")
	a.s.Log("3d_callback_decrypted", nil, raw)

	if record[fieldMerchantOrderID] != st.OrderID {
		return provider.Declined(provider.KindThreeDFailed, "ORDER_MISMATCH", "callback order id does not match", raw), nil
	}
	if md := record[fieldMdStatus]; md != "1" {
		return provider.Declined(provider.KindThreeDFailed, "MD_"+md,
			provider.FirstNonEmpty(record[fieldResultMessage], "3-D authentication failed"), raw), nil
	}
	if record[fieldResultCode] != successCode {
		return provider.Declined(provider.KindBankRejected,
			provider.FirstNonEmpty(record[fieldResultCode], "DECLINED"),
			provider.FirstNonEmpty(record[fieldResultMessage], "transaction declined"), raw), nil
	}

	r := provider.Approved(st.OrderID, record[fieldAuthCode], field(record, fieldRRN), raw)
	r.TransID = record[fieldOrderID]
	r.ProvisionNumber = field(record, fieldProvisionNumber)
	return r, nil
}

func field(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}
