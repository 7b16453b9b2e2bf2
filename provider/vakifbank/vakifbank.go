// Package vakifbank implements the VakifBank VPOS. 3-D Secure goes through
// the bank MPI: an enrollment check returns the ACS redirect, and the
// authenticated callback is provisioned with a VposRequest.
package vakifbank

import (
	"context"
	"strings"

	"github.com/mstgnz/vpos/provider"
)

const ID = "vakifbank"

const (
	testMPIURL  = "https://3dsecuretest.vakifbank.com.tr:4443/MPIAPI/MPI_Enrollment.aspx"
	liveMPIURL  = "https://3dsecure.vakifbank.com.tr:4443/MPIAPI/MPI_Enrollment.aspx"
	testVposURL = "https://onlineodemetest.vakifbank.com.tr:4443/VposService/v3/Vposreq.aspx"
	liveVposURL = "https://onlineodeme.vakifbank.com.tr:4443/VposService/v3/Vposreq.aspx"

	orderIDWidth = 20
	successCode  = "0000"
)

const (
	txSale    = "Sale"
	txAuth    = "Auth"
	txCapture = "Capture"
	txRefund  = "Refund"
	txCancel  = "Cancel"
)

var credentialFields = []provider.CredentialField{
	{Key: "merchantId", Required: true},
	{Key: "merchantPassword", Required: true},
	{Key: "terminalNo", Required: true},
}

type Adapter struct {
	s          *provider.Session
	merchantID string
	password   string
	terminalNo string
}

func New(s *provider.Session) (provider.Adapter, error) {
	if err := provider.ValidateCredentials(ID, s.Credentials, credentialFields); err != nil {
		return nil, err
	}
	c := s.Credentials
	return &Adapter{
		s:          s,
		merchantID: c.Get("merchantId"),
		password:   c.Get("merchantPassword"),
		terminalNo: c.Get("terminalNo"),
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

// BrandCode is the MPI brand of a card number: 100 Visa, 200 Mastercard,
// 300 Troy.
func BrandCode(pan string) string {
	if pan == "" {
		return ""
	}
	switch pan[0] {
	case '4':
		return "100"
	case '5', '2':
		return "200"
	case '9':
		return "300"
	case '3':
		return "400"
	}
	return ""
}

type threeDState struct {
	OrderID string `json:"orderId"`
	ACSURL  string `json:"acsUrl"`
	PaReq   string `json:"paReq"`
	TermURL string `json:"termUrl"`
	MD      string `json:"md"`
}

func (a *Adapter) currency() (string, error) {
	c, ok := provider.CurrencyNumeric(a.s.Tx.Currency)
	if !ok {
		return "", provider.NewError(provider.KindValidation, "UNSUPPORTED_CURRENCY", "vakifbank: unsupported currency "+a.s.Tx.Currency)
	}
	return c, nil
}

func (a *Adapter) Initialize(ctx context.Context) (*provider.Result, error) {
	currency, err := a.currency()
	if err != nil {
		return nil, err
	}
	tx := a.s.Tx
	card := a.s.Card
	orderID := a.s.OrderID(orderIDWidth)

	form := map[string]string{
		"MerchantId":                a.merchantID,
		"MerchantPassword":          a.password,
		"VerifyEnrollmentRequestId": orderID,
		"Pan":                       card.Number,
		"ExpiryDate":                card.Year2() + card.Month2(),
		"PurchaseAmount":            provider.FormatAmount(tx.Amount),
		"Currency":                  currency,
		"BrandName":                 BrandCode(card.Number),
		"SuccessUrl":                a.s.CallbackURL,
		"FailureUrl":                a.s.CallbackURL,
	}
	if tx.Installment > 1 {
		form["InstallmentCount"] = provider.InstallmentString(tx.Installment)
	}

	httpResp, err := a.s.HTTP.SendForm(ctx, &provider.HTTPRequest{
		Operation: "3d_enrollment",
		Endpoint:  a.s.Endpoint("mpi", testMPIURL, liveMPIURL),
		FormData:  form,
	})
	if err != nil {
		a.s.Log("3d_enrollment", form, err.Error())
		return nil, err
	}
	a.s.Log("3d_enrollment", form, httpResp.RawBody)

	var resp enrollmentResponse
	if err := a.s.HTTP.ParseXMLResponse(httpResp, &resp); err != nil {
		return nil, err
	}
	ve := resp.Message.VERes
	if ve.Status != "Y" {
		return provider.Declined(provider.KindThreeDFailed,
			provider.FirstNonEmpty(resp.MessageErrorCode, "ENROLLMENT_"+ve.Status),
			provider.FirstNonEmpty(resp.ErrorMessage, "card is not enrolled in 3-D Secure"), httpResp.RawBody), nil
	}

	state, err := provider.NewState(ID, threeDState{
		OrderID: orderID,
		ACSURL:  ve.ACSURL,
		PaReq:   ve.PaReq,
		TermURL: ve.TermURL,
		MD:      ve.MD,
	})
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
	return provider.RenderAutoSubmitForm(st.ACSURL, []provider.FormField{
		{Name: "PaReq", Value: st.PaReq},
		{Name: "TermUrl", Value: st.TermURL},
		{Name: "MD", Value: st.MD},
	})
}

func (a *Adapter) ProcessCallback(ctx context.Context, data map[string]string) (*provider.Result, error) {
	var st threeDState
	if err := a.s.LoadState(ID, &st); err != nil {
		return nil, err
	}
	a.s.Log("3d_callback", nil, data)

	status := data["Status"]
	if status != "Y" && status != "A" {
		return provider.Declined(provider.KindThreeDFailed, "MD_"+status,
			provider.FirstNonEmpty(data["ErrorMessage"], "3-D authentication failed"), ""), nil
	}
	if data["VerifyEnrollmentRequestId"] != st.OrderID {
		return provider.Declined(provider.KindThreeDFailed, "ORDER_MISMATCH", "callback order id does not match", ""), nil
	}

	req, err := a.cardRequest(txSale, st.OrderID)
	if err != nil {
		return nil, err
	}
	if a.s.Tx.Operation == provider.OperationPreAuth {
		req.TransactionType = txAuth
	}
	req.ECI = data["Eci"]
	req.CAVV = data["Cavv"]
	req.MpiTransactionID = data["VerifyEnrollmentRequestId"]
	return a.send(ctx, "provision", req)
}

func (a *Adapter) cardRequest(txType, orderID string) (*vposRequest, error) {
	currency, err := a.currency()
	if err != nil {
		return nil, err
	}
	tx := a.s.Tx
	card := a.s.Card
	req := a.request(txType, orderID)
	req.CurrencyAmount = provider.FormatAmount(tx.Amount)
	req.CurrencyCode = currency
	req.Pan = card.Number
	req.Cvv = card.CVV
	req.Expiry = card.Year4() + card.Month2()
	req.NumberOfInstallments = provider.InstallmentString(tx.Installment)
	req.ClientIP = tx.Customer.IP
	return req, nil
}

func (a *Adapter) DirectPayment(ctx context.Context) (*provider.Result, error) {
	req, err := a.cardRequest(txSale, a.s.OrderID(orderIDWidth))
	if err != nil {
		return nil, err
	}
	return a.send(ctx, "direct_payment", req)
}

func (a *Adapter) PreAuth(ctx context.Context) (*provider.Result, error) {
	req, err := a.cardRequest(txAuth, a.s.OrderID(orderIDWidth))
	if err != nil {
		return nil, err
	}
	return a.send(ctx, "pre_auth", req)
}

func (a *Adapter) PostAuth(ctx context.Context, preAuth *provider.Transaction) (*provider.Result, error) {
	currency, err := a.currency()
	if err != nil {
		return nil, err
	}
	req := a.request(txCapture, a.s.OrderID(orderIDWidth))
	req.ReferenceTransactionID = preAuth.OrderID
	req.CurrencyAmount = provider.FormatAmount(a.s.Tx.Amount)
	req.CurrencyCode = currency
	return a.send(ctx, "post_auth", req)
}

func (a *Adapter) Refund(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	currency, err := a.currency()
	if err != nil {
		return nil, err
	}
	req := a.request(txRefund, a.s.OrderID(orderIDWidth))
	req.ReferenceTransactionID = original.OrderID
	req.CurrencyAmount = provider.FormatAmount(a.s.Tx.Amount)
	req.CurrencyCode = currency
	return a.send(ctx, "refund", req)
}

func (a *Adapter) Cancel(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	req := a.request(txCancel, a.s.OrderID(orderIDWidth))
	req.ReferenceTransactionID = original.OrderID
	return a.send(ctx, "cancel", req)
}

func isSuccess(code string) bool {
	return strings.TrimSpace(code) == successCode
}
