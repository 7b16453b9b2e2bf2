// Package iyzico implements the iyzico payment API. Requests are signed with
// the IYZWSv2 scheme; 3-D Secure returns a ready made bank page.
package iyzico

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
	"github.com/mstgnz/vpos/provider"
)

const ID = "iyzico"

const (
	// API URLs
	apiSandboxURL    = "https://sandbox-api.iyzipay.com"
	apiProductionURL = "https://api.iyzipay.com"

	// API Endpoints
	endpointPayment    = "/payment/auth"
	endpointPreAuth    = "/payment/preauth"
	endpointPostAuth   = "/payment/postauth"
	endpoint3DInit     = "/payment/3dsecure/initialize"
	endpoint3DComplete = "/payment/3dsecure/auth"
	endpointCancel     = "/payment/cancel"
	endpointRefund     = "/payment/refund"
	endpointRetrieve   = "/payment/detail"

	statusSuccess = "success"

	defaultLocale         = "tr"
	defaultIdentityNumber = "74300864791"
	defaultItemType       = "VIRTUAL"
	defaultCity           = "Istanbul"
	defaultCountry        = "Turkey"
	defaultAddress        = "N/A"
)

var credentialFields = []provider.CredentialField{
	{Key: "apiKey", Required: true},
	{Key: "secretKey", Required: true},
}

// Adapter talks to one iyzico merchant
type Adapter struct {
	s         *provider.Session
	apiKey    string
	secretKey string
}

func New(s *provider.Session) (provider.Adapter, error) {
	if err := provider.ValidateCredentials(ID, s.Credentials, credentialFields); err != nil {
		return nil, err
	}
	return &Adapter{
		s:         s,
		apiKey:    s.Credentials.Get("apiKey"),
		secretKey: s.Credentials.Get("secretKey"),
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

type threeDState struct {
	ConversationID string `json:"conversationId"`
	BasketID       string `json:"basketId"`
	HTML           string `json:"html"`
}

func (a *Adapter) Initialize(ctx context.Context) (*provider.Result, error) {
	if a.s.Tx.PaymentModel != provider.Model3D {
		return nil, provider.NewError(provider.KindProviderUnsupported, provider.CodeNotSupported, "iyzico: only the 3d model is supported")
	}
	req := a.paymentRequest()
	req.CallbackURL = a.s.CallbackURL

	resp, raw, err := a.send(ctx, "3d_initialize", endpoint3DInit, req)
	if err != nil {
		return nil, err
	}
	if resp.Status != statusSuccess {
		return failure(resp, raw, provider.KindThreeDFailed), nil
	}
	html, err := base64.StdEncoding.DecodeString(resp.ThreeDSHTMLContent)
	if err != nil || len(html) == 0 {
		return provider.Declined(provider.KindThreeDFailed, "INVALID_3D_PAGE", "bank returned no usable 3-D page", raw), nil
	}

	state, err := provider.NewState(ID, threeDState{
		ConversationID: req.ConversationID,
		BasketID:       req.BasketID,
		HTML:           string(html),
	})
	if err != nil {
		return nil, err
	}
	return provider.Pending(req.BasketID, state), nil
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

	if data["conversationId"] != "" && data["conversationId"] != st.ConversationID {
		return provider.Declined(provider.KindThreeDFailed, "ORDER_MISMATCH", "callback conversation id does not match", ""), nil
	}
	if md := data["mdStatus"]; md != "1" || data["status"] != statusSuccess {
		return provider.Declined(provider.KindThreeDFailed, "MD_"+md, "3-D authentication failed", ""), nil
	}
	if data["paymentId"] == "" {
		return provider.Declined(provider.KindThreeDFailed, "MISSING_PAYMENT_ID", "callback carries no payment id", ""), nil
	}

	req := &apiRequest{
		Locale:           defaultLocale,
		ConversationID:   st.ConversationID,
		PaymentID:        data["paymentId"],
		ConversationData: data["conversationData"],
	}
	return a.complete(ctx, "provision", endpoint3DComplete, req, st.BasketID)
}

func (a *Adapter) DirectPayment(ctx context.Context) (*provider.Result, error) {
	req := a.paymentRequest()
	return a.complete(ctx, "direct_payment", endpointPayment, req, req.BasketID)
}

func (a *Adapter) PreAuth(ctx context.Context) (*provider.Result, error) {
	req := a.paymentRequest()
	return a.complete(ctx, "pre_auth", endpointPreAuth, req, req.BasketID)
}

func (a *Adapter) PostAuth(ctx context.Context, preAuth *provider.Transaction) (*provider.Result, error) {
	req := &apiRequest{
		Locale:         defaultLocale,
		ConversationID: uuid.New().String(),
		PaymentID:      paymentID(preAuth),
		PaidPrice:      provider.FormatAmount(a.s.Tx.Amount),
		IP:             a.s.Tx.Customer.IP,
		Currency:       strings.ToUpper(preAuth.Currency),
	}
	return a.complete(ctx, "post_auth", endpointPostAuth, req, preAuth.OrderID)
}

// Refund refunds against the item transaction, kept as the reference number
func (a *Adapter) Refund(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	ref := ""
	if original.Result != nil {
		ref = original.Result.RefNumber
	}
	req := &apiRequest{
		Locale:               defaultLocale,
		ConversationID:       uuid.New().String(),
		PaymentTransactionID: ref,
		Price:                provider.FormatAmount(a.s.Tx.Amount),
		IP:                   a.s.Tx.Customer.IP,
		Currency:             strings.ToUpper(original.Currency),
	}
	return a.complete(ctx, "refund", endpointRefund, req, original.OrderID)
}

func (a *Adapter) Cancel(ctx context.Context, original *provider.Transaction) (*provider.Result, error) {
	req := &apiRequest{
		Locale:         defaultLocale,
		ConversationID: uuid.New().String(),
		PaymentID:      paymentID(original),
		IP:             a.s.Tx.Customer.IP,
	}
	return a.complete(ctx, "cancel", endpointCancel, req, original.OrderID)
}

// Status takes the iyzico payment id; basket ids are not queryable
func (a *Adapter) Status(ctx context.Context, orderID string) (*provider.Result, error) {
	req := &apiRequest{
		Locale:         defaultLocale,
		ConversationID: uuid.New().String(),
		PaymentID:      provider.FirstNonEmpty(paymentID(a.s.Tx), orderID),
	}
	resp, raw, err := a.send(ctx, "status", endpointRetrieve, req)
	if err != nil {
		return nil, err
	}
	if resp.Status != statusSuccess {
		return failure(resp, raw, provider.KindBankRejected), nil
	}
	res := approved(resp, orderID, raw)
	res.BankStatus = resp.PaymentStatus
	return res, nil
}

func paymentID(tx *provider.Transaction) string {
	if tx.Result != nil {
		return tx.Result.TransID
	}
	return ""
}

// paymentRequest builds the card charge body shared by auth, pre-auth and
// 3-D initialization
func (a *Adapter) paymentRequest() *apiRequest {
	tx := a.s.Tx
	card := a.s.Card
	basketID := a.s.OrderID(0)
	price := provider.FormatAmount(tx.Amount)
	name, surname := splitName(provider.FirstNonEmpty(tx.Customer.Name, card.Holder))
	installment := tx.Installment
	if installment < 1 {
		installment = 1
	}
	address := &apiAddress{
		ContactName: strings.TrimSpace(name + " " + surname),
		City:        defaultCity,
		Country:     defaultCountry,
		Address:     defaultAddress,
	}

	return &apiRequest{
		Locale:         a.s.Language(),
		ConversationID: uuid.New().String(),
		Price:          price,
		PaidPrice:      price,
		Currency:       strings.ToUpper(tx.Currency),
		Installment:    installment,
		BasketID:       basketID,
		PaymentChannel: "WEB",
		PaymentGroup:   "PRODUCT",
		PaymentCard: &apiCard{
			CardHolderName: card.Holder,
			CardNumber:     card.Number,
			ExpireMonth:    card.Month2(),
			ExpireYear:     card.Year4(),
			CVC:            card.CVV,
			RegisterCard:   0,
		},
		Buyer: &apiBuyer{
			ID:                  provider.FirstNonEmpty(tx.PartnerID, tx.ID),
			Name:                name,
			Surname:             surname,
			Email:               provider.FirstNonEmpty(tx.Customer.Email, "noreply@example.com"),
			GSMNumber:           tx.Customer.Phone,
			IdentityNumber:      defaultIdentityNumber,
			RegistrationAddress: defaultAddress,
			IP:                  provider.FirstNonEmpty(tx.Customer.IP, "127.0.0.1"),
			City:                defaultCity,
			Country:             defaultCountry,
		},
		ShippingAddress: address,
		BillingAddress:  address,
		BasketItems: []apiBasketItem{{
			ID:        basketID,
			Name:      "Payment " + basketID,
			Category1: "Payment",
			ItemType:  defaultItemType,
			Price:     price,
		}},
	}
}

func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	i := strings.LastIndex(full, " ")
	if i < 0 {
		return provider.FirstNonEmpty(full, "Customer"), provider.FirstNonEmpty(full, "Customer")
	}
	return full[:i], full[i+1:]
}
