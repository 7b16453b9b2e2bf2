package iyzico

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/mstgnz/vpos/provider"
)

type apiRequest struct {
	Locale               string          `json:"locale,omitempty"`
	ConversationID       string          `json:"conversationId,omitempty"`
	Price                string          `json:"price,omitempty"`
	PaidPrice            string          `json:"paidPrice,omitempty"`
	Currency             string          `json:"currency,omitempty"`
	Installment          int             `json:"installment,omitempty"`
	BasketID             string          `json:"basketId,omitempty"`
	PaymentChannel       string          `json:"paymentChannel,omitempty"`
	PaymentGroup         string          `json:"paymentGroup,omitempty"`
	CallbackURL          string          `json:"callbackUrl,omitempty"`
	PaymentCard          *apiCard        `json:"paymentCard,omitempty"`
	Buyer                *apiBuyer       `json:"buyer,omitempty"`
	ShippingAddress      *apiAddress     `json:"shippingAddress,omitempty"`
	BillingAddress       *apiAddress     `json:"billingAddress,omitempty"`
	BasketItems          []apiBasketItem `json:"basketItems,omitempty"`
	PaymentID            string          `json:"paymentId,omitempty"`
	PaymentTransactionID string          `json:"paymentTransactionId,omitempty"`
	ConversationData     string          `json:"conversationData,omitempty"`
	IP                   string          `json:"ip,omitempty"`
}

type apiCard struct {
	CardHolderName string `json:"cardHolderName"`
	CardNumber     string `json:"cardNumber"`
	ExpireMonth    string `json:"expireMonth"`
	ExpireYear     string `json:"expireYear"`
	CVC            string `json:"cvc"`
	RegisterCard   int    `json:"registerCard"`
}

type apiBuyer struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Surname             string `json:"surname"`
	Email               string `json:"email"`
	GSMNumber           string `json:"gsmNumber,omitempty"`
	IdentityNumber      string `json:"identityNumber"`
	RegistrationAddress string `json:"registrationAddress"`
	IP                  string `json:"ip"`
	City                string `json:"city"`
	Country             string `json:"country"`
}

type apiAddress struct {
	ContactName string `json:"contactName"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Address     string `json:"address"`
}

type apiBasketItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category1 string `json:"category1"`
	ItemType  string `json:"itemType"`
	Price     string `json:"price"`
}

type apiResponse struct {
	Status               string `json:"status"`
	ErrorCode            string `json:"errorCode"`
	ErrorMessage         string `json:"errorMessage"`
	ConversationID       string `json:"conversationId"`
	PaymentID            string `json:"paymentId"`
	PaymentStatus        string `json:"paymentStatus"`
	AuthCode             string `json:"authCode"`
	HostReference        string `json:"hostReference"`
	PaymentTransactionID string `json:"paymentTransactionId"`
	ThreeDSHTMLContent   string `json:"threeDSHtmlContent"`
	ItemTransactions     []struct {
		PaymentTransactionID string `json:"paymentTransactionId"`
	} `json:"itemTransactions"`
}

// AuthorizationHeader builds the IYZWSv2 header for a request body
func AuthorizationHeader(apiKey, secretKey, randomKey, uriPath, body string) string {
	signature := provider.HMACSHA256Hex(secretKey, randomKey+uriPath+body)
	auth := "apiKey:" + apiKey + "&randomKey:" + randomKey + "&signature:" + signature
	return "IYZWSv2 " + base64.StdEncoding.EncodeToString([]byte(auth))
}

func (a *Adapter) randomKey() string {
	return strconv.FormatInt(a.s.Clock().UnixMilli(), 10) + provider.RandomHex(4)
}

func (a *Adapter) send(ctx context.Context, operation, path string, req *apiRequest) (*apiResponse, string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, "", provider.Wrap(provider.KindInternal, err, "iyzico: encode request")
	}
	rnd := a.randomKey()

	httpResp, err := a.s.HTTP.SendJSON(ctx, &provider.HTTPRequest{
		Operation: operation,
		Endpoint:  a.s.Endpoint("api", apiSandboxURL, apiProductionURL) + path,
		Body:      json.RawMessage(body),
		Headers: map[string]string{
			"Authorization": AuthorizationHeader(a.apiKey, a.secretKey, rnd, path, string(body)),
			"x-iyzi-rnd":    rnd,
			"Accept":        "application/json",
		},
	})
	if err != nil {
		a.s.Log(operation, req, err.Error())
		return nil, "", err
	}
	a.s.Log(operation, req, httpResp.RawBody)

	var resp apiResponse
	if err := a.s.HTTP.ParseJSONResponse(httpResp, &resp); err != nil {
		return nil, "", err
	}
	return &resp, httpResp.RawBody, nil
}

func (a *Adapter) complete(ctx context.Context, operation, path string, req *apiRequest, orderID string) (*provider.Result, error) {
	resp, raw, err := a.send(ctx, operation, path, req)
	if err != nil {
		return nil, err
	}
	if resp.Status != statusSuccess {
		return failure(resp, raw, provider.KindBankRejected), nil
	}
	return approved(resp, orderID, raw), nil
}

// approved keeps the payment id as TransID and the item transaction id as
// the reference later refunds use
func approved(resp *apiResponse, orderID, raw string) *provider.Result {
	ref := resp.PaymentTransactionID
	if len(resp.ItemTransactions) > 0 {
		ref = provider.FirstNonEmpty(resp.ItemTransactions[0].PaymentTransactionID, ref)
	}
	r := provider.Approved(orderID, resp.AuthCode, ref, raw)
	r.TransID = resp.PaymentID
	r.ProvisionNumber = resp.HostReference
	return r
}

func failure(resp *apiResponse, raw string, kind provider.Kind) *provider.Result {
	return provider.Declined(kind,
		provider.FirstNonEmpty(resp.ErrorCode, "DECLINED"),
		provider.FirstNonEmpty(resp.ErrorMessage, "payment failed"), raw)
}
