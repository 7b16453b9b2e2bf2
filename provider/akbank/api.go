package akbank

import (
	"context"
	"encoding/json"

	"github.com/mstgnz/vpos/provider"
)

type apiRequest struct {
	Version           string             `json:"version"`
	TxnCode           string             `json:"txnCode"`
	RequestDateTime   string             `json:"requestDateTime"`
	RandomNumber      string             `json:"randomNumber"`
	Terminal          apiTerminal        `json:"terminal"`
	Card              *apiCard           `json:"card,omitempty"`
	Reward            *apiReward         `json:"reward,omitempty"`
	Transaction       *apiTransaction    `json:"transaction,omitempty"`
	Order             *apiOrder          `json:"order,omitempty"`
	Customer          *apiCustomer       `json:"customer,omitempty"`
	SecureTransaction *secureTransaction `json:"secureTransaction,omitempty"`
}

type apiTerminal struct {
	MerchantSafeID string `json:"merchantSafeId"`
	TerminalSafeID string `json:"terminalSafeId"`
}

type apiCard struct {
	CardNumber string `json:"cardNumber"`
	CVV2       string `json:"cvv2"`
	ExpireDate string `json:"expireDate"`
}

type apiReward struct {
	CCBRewardAmount int `json:"ccbRewardAmount"`
	PCBRewardAmount int `json:"pcbRewardAmount"`
	XCBRewardAmount int `json:"xcbRewardAmount"`
}

type apiTransaction struct {
	Amount       int64  `json:"amount,omitempty"`
	CurrencyCode string `json:"currencyCode,omitempty"`
	MotoInd      int    `json:"motoInd"`
	InstallCount int    `json:"installCount,omitempty"`
	AuthCode     string `json:"authCode,omitempty"`
	RRN          string `json:"rrn,omitempty"`
	BatchNumber  int    `json:"batchNumber,omitempty"`
	Stan         int    `json:"stan,omitempty"`
	Status       string `json:"status,omitempty"`
}

type apiOrder struct {
	OrderID string `json:"orderId"`
}

type apiCustomer struct {
	EmailAddress string `json:"emailAddress"`
	IPAddress    string `json:"ipAddress"`
}

type secureTransaction struct {
	SecureID      string `json:"secureId"`
	SecureEcomInd string `json:"secureEcomInd"`
	SecureData    string `json:"secureData"`
	SecureMD      string `json:"secureMd"`
}

type apiResponse struct {
	ResponseCode     string         `json:"responseCode"`
	ResponseMessage  string         `json:"responseMessage"`
	HostResponseCode string         `json:"hostResponseCode"`
	HostMessage      string         `json:"hostMessage"`
	TxnDateTime      string         `json:"txnDateTime"`
	Transaction      apiTransaction `json:"transaction"`
	Order            apiOrder       `json:"order"`
}

// buildBaseRequest builds the common envelope of every API call
func (a *Adapter) buildBaseRequest(txnCode string) *apiRequest {
	return &apiRequest{
		Version:         apiVersion,
		TxnCode:         txnCode,
		RequestDateTime: a.requestDateTime(),
		RandomNumber:    provider.RandomHex(64),
		Terminal: apiTerminal{
			MerchantSafeID: a.merchantSafeID,
			TerminalSafeID: a.terminalSafeID,
		},
	}
}

// exchange signs the JSON body with the auth-hash header and posts it
func (a *Adapter) exchange(ctx context.Context, operation string, req *apiRequest) (*apiResponse, string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, "", provider.Wrap(provider.KindInternal, err, "akbank: encode request")
	}

	httpResp, err := a.s.HTTP.SendJSON(ctx, &provider.HTTPRequest{
		Operation: operation,
		Method:    "POST",
		Endpoint:  a.s.Endpoint("api", apiSandboxPaymentAPIURL, apiProductionPaymentAPIURL),
		Body:      json.RawMessage(body),
		Headers: map[string]string{
			"auth-hash": provider.HMACSHA512Base64(a.secretKey, string(body)),
			"Accept":    "application/json",
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

func (a *Adapter) send(ctx context.Context, operation string, req *apiRequest, orderID string) (*provider.Result, error) {
	resp, raw, err := a.exchange(ctx, operation, req)
	if err != nil {
		return nil, err
	}
	return outcome(resp, orderID, raw), nil
}

// outcome maps a response: both the gateway and the issuer host must approve
func outcome(resp *apiResponse, orderID, raw string) *provider.Result {
	if resp.ResponseCode == successCode && resp.HostResponseCode == hostSuccessCode {
		return provider.Approved(provider.FirstNonEmpty(resp.Order.OrderID, orderID), resp.Transaction.AuthCode, resp.Transaction.RRN, raw)
	}
	code := resp.HostResponseCode
	msg := resp.HostMessage
	if resp.ResponseCode != successCode || code == "" {
		code = resp.ResponseCode
		msg = resp.ResponseMessage
	}
	return provider.Declined(provider.KindBankRejected,
		provider.FirstNonEmpty(code, "DECLINED"),
		provider.FirstNonEmpty(msg, "transaction declined"), raw)
}
