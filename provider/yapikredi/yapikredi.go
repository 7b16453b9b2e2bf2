// Package yapikredi implements the Yapi Kredi Posnet virtual POS. 3-D
// payments run oosRequestData, the bank redirect, oosResolveMerchantData
// and oosTranData in that order.
package yapikredi

import (
	"context"
	"fmt"
	"strings"

	"github.com/mstgnz/vpos/provider"
)

const ID = "yapikredi"

const (
	testAPIURL  = "https://setmpos.ykb.com/PosnetWebService/XML"
	liveAPIURL  = "https://posnet.yapikredi.com.tr/PosnetWebService/XML"
	testGateURL = "https://setmpos.ykb.com/3DSWebService/YKBPaymentService"
	liveGateURL = "https://posnet.yapikredi.com.tr/3DSWebService/YKBPaymentService"

	xidWidth = 20
)

var posnetCurrencies = map[string]string{
	"TRY": "TL",
	"USD": "US",
	"EUR": "EU",
	"GBP": "GB",
}

var credentialFields = []provider.CredentialField{
	{Key: "merchantId", Required: true, Pattern: `^[0-9]{10}$`},
	{Key: "terminalId", Required: true, Pattern: `^[0-9]{8}$`},
	{Key: "posnetId", Required: true},
	{Key: "encKey", Required: true},
}

type Adapter struct {
	s          *provider.Session
	merchantID string
	terminalID string
	posnetID   string
	encKey     string
}

func New(s *provider.Session) (provider.Adapter, error) {
	if err := provider.ValidateCredentials(ID, s.Credentials, credentialFields); err != nil {
		return nil, err
	}
	c := s.Credentials
	return &Adapter{
		s:          s,
		merchantID: c.Get("merchantId"),
		terminalID: c.Get("terminalId"),
		posnetID:   c.Get("posnetId"),
		encKey:     c.Get("encKey"),
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
		PaymentModels: []provider.PaymentModel{provider.ModelRegular, provider.Model3D},
	}
}

// MAC signs the resolve and transaction steps:
// SHA256(xid;amount;currency;mid;SHA256(encKey;tid)), Base64 encoded.
func MAC(xid, amount, currency, merchantID, encKey, terminalID string) string {
	first := provider.SHA256Base64(encKey + ";" + terminalID)
	return provider.SHA256Base64(strings.Join([]string{xid, amount, currency, merchantID, first}, ";"))
}

func (a *Adapter) currency() (string, error) {
	c, ok := posnetCurrencies[strings.ToUpper(a.s.Tx.Currency)]
	if !ok {
		return "", provider.NewError(provider.KindValidation, "UNSUPPORTED_CURRENCY", "yapikredi: unsupported currency "+a.s.Tx.Currency)
	}
	return c, nil
}

// installment is always two digits, 00 for a single payment
func installment(n int) string {
	if n <= 1 {
		return "00"
	}
	return fmt.Sprintf("%02d", n)
}

func (a *Adapter) tranType() string {
	if a.s.Tx.Operation == provider.OperationPreAuth {
		return "Auth"
	}
	return "Sale"
}

type threeDState struct {
	XID      string `json:"xid"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Data1    string `json:"data1"`
	Data2    string `json:"data2"`
	Sign     string `json:"sign"`
}

func (a *Adapter) Initialize(ctx context.Context) (*provider.Result, error) {
	currency, err := a.currency()
	if err != nil {
		return nil, err
	}
	tx := a.s.Tx
	card := a.s.Card
	xid := a.s.OrderID(xidWidth)
	amount := provider.MinorUnitsString(tx.Amount)

	req := a.request()
	req.OOSRequestData = &oosRequestData{
		PosnetID:       a.posnetID,
		CCNo:           card.Number,
		ExpDate:        card.Year2() + card.Month2(),
		CVC:            card.CVV,
		Amount:         amount,
		CurrencyCode:   currency,
		Installment:    installment(tx.Installment),
		XID:            xid,
		CardHolderName: card.Holder,
		TranType:       a.tranType(),
	}

	resp, raw, err := a.exchange(ctx, "3d_initialize", req)
	if err != nil {
		return nil, err
	}
	if resp.Approved != "1" {
		return provider.Declined(provider.KindThreeDFailed,
			provider.FirstNonEmpty(resp.RespCode, "OOS_REQUEST_FAILED"),
			provider.FirstNonEmpty(resp.RespText, "3-D initialization rejected"), raw), nil
	}

	state, err := provider.NewState(ID, threeDState{
		XID:      xid,
		Amount:   amount,
		Currency: currency,
		Data1:    resp.OOSRequestDataResponse.Data1,
		Data2:    resp.OOSRequestDataResponse.Data2,
		Sign:     resp.OOSRequestDataResponse.Sign,
	})
	if err != nil {
		return nil, err
	}
	return provider.Pending(xid, state), nil
}

func (a *Adapter) FormHTML(ctx context.Context) (string, error) {
	var st threeDState
	if err := a.s.LoadState(ID, &st); err != nil {
		return "", err
	}
	fields := map[string]string{
		"mid":               a.merchantID,
		"posnetID":          a.posnetID,
		"posnetData":        st.Data1,
		"posnetData2":       st.Data2,
		"digest":            st.Sign,
		"vftCode":           "",
		"merchantReturnURL": a.s.CallbackURL,
		"lang":              a.s.Language(),
		"url":               "",
		"openANewWindow":    "0",
	}
	return provider.RenderAutoSubmitForm(a.s.Endpoint("3d_gate", testGateURL, liveGateURL), provider.SortedFields(fields))
}

func (a *Adapter) ProcessCallback(ctx context.Context, data map[string]string) (*provider.Result, error) {
	var st threeDState
	if err := a.s.LoadState(ID, &st); err != nil {
		return nil, err
	}
	a.s.Log("3d_callback", nil, data)

	if data["BankPacket"] == "" || data["MerchantPacket"] == "" {
		return provider.Declined(provider.KindThreeDFailed, "MISSING_PACKET", "callback carries no bank packet", ""), nil
	}
	mac := MAC(st.XID, st.Amount, st.Currency, a.merchantID, a.encKey, a.terminalID)

	resolve := a.request()
	resolve.OOSResolveMerchantData = &oosResolveMerchantData{
		BankData:     data["BankPacket"],
		MerchantData: data["MerchantPacket"],
		Sign:         data["Sign"],
		MAC:          mac,
	}
	resp, raw, err := a.exchange(ctx, "3d_resolve", resolve)
	if err != nil {
		return nil, err
	}
	if resp.Approved != "1" {
		return provider.Declined(provider.KindThreeDFailed,
			provider.FirstNonEmpty(resp.RespCode, "RESOLVE_FAILED"),
			provider.FirstNonEmpty(resp.RespText, "3-D resolve rejected"), raw), nil
	}
	rd := resp.OOSResolveMerchantDataResponse
	if rd.MdStatus != "1" {
		return provider.Declined(provider.KindThreeDFailed, "MD_"+rd.MdStatus,
			provider.FirstNonEmpty(rd.MdErrorMessage, "3-D authentication failed"), raw), nil
	}
	if rd.XID != "" && rd.XID != st.XID {
		return provider.Declined(provider.KindThreeDFailed, "ORDER_MISMATCH", "resolved xid does not match", raw), nil
	}

	tran := a.request()
	tran.OOSTranData = &oosTranData{BankData: data["BankPacket"], WPAmount: "0", MAC: mac}
	return a.send(ctx, "provision", tran, st.XID)
}

func (a *Adapter) DirectPayment(ctx context.Context) (*provider.Result, error) {
	return a.nonSecure(ctx, false)
}

func (a *Adapter) PreAuth(ctx context.Context) (*provider.Result, error) {
	return a.nonSecure(ctx, true)
}

func (a *Adapter) nonSecure(ctx context.Context, preAuth bool) (*provider.Result, error) {
	currency, err := a.currency()
	if err != nil {
		return nil, err
	}
	tx := a.s.Tx
	card := a.s.Card
	orderID := a.s.OrderID(xidWidth)

	op := &cardTransaction{
		CCNo:         card.Number,
		CVC:          card.CVV,
		ExpDate:      card.Year2() + card.Month2(),
		Amount:       provider.MinorUnitsString(tx.Amount),
		CurrencyCode: currency,
		OrderID:      "0000" + orderID,
		Installment:  installment(tx.Installment),
	}
	req := a.request()
	name := "direct_payment"
	if preAuth {
		req.Auth = op
		name = "pre_auth"
	} else {
		req.Sale = op
	}
	return a.send(ctx, name, req, orderID)
}

func (a *Adapter) PostAuth(ctx context.Context, preAuth *provider.Transaction) (*provider.Result, error) {
	currency, err := a.currency()
	if err != nil {
		return nil, err
	}
	req := a.request()
	req.Capt = &capture{
		HostLogKey:   hostLogKey(preAuth),
		Amount:       provider.MinorUnitsString(a.s.Tx.Amount),
		CurrencyCode: currency,
		Installment:  installment(preAuth.Installment),
	}
	return a.send(ctx, "post_auth", req, preAuth.OrderID)
}

func (a *Adapter) Refund(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	currency, err := a.currency()
	if err != nil {
		return nil, err
	}
	req := a.request()
	req.Return = &refund{
		Amount:       provider.MinorUnitsString(a.s.Tx.Amount),
		CurrencyCode: currency,
		HostLogKey:   hostLogKey(original),
	}
	return a.send(ctx, "refund", req, original.OrderID)
}

func (a *Adapter) Cancel(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	transaction := "sale"
	if original.Operation == provider.OperationPreAuth {
		transaction = "auth"
	}
	req := a.request()
	req.Reverse = &reverse{Transaction: transaction, HostLogKey: hostLogKey(original)}
	return a.send(ctx, "cancel", req, original.OrderID)
}

// the bank references earlier operations by host log key, kept as the
// reference number
func hostLogKey(tx *provider.Transaction) string {
	if tx.Result != nil {
		return tx.Result.RefNumber
	}
	return ""
}
