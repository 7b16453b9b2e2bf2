package garanti

import (
	"context"
	"encoding/xml"

	"github.com/mstgnz/vpos/provider"
)

type gvpsRequest struct {
	XMLName     xml.Name        `xml:"GVPSRequest"`
	Mode        string          `xml:"Mode"`
	Version     string          `xml:"Version"`
	Terminal    gvpsTerminal    `xml:"Terminal"`
	Customer    gvpsCustomer    `xml:"Customer"`
	Card        *gvpsCard       `xml:"Card,omitempty"`
	Order       gvpsOrder       `xml:"Order"`
	Transaction gvpsTransaction `xml:"Transaction"`
}

type gvpsTerminal struct {
	ProvUserID string `xml:"ProvUserID"`
	HashData   string `xml:"HashData"`
	UserID     string `xml:"UserID"`
	ID         string `xml:"ID"`
	MerchantID string `xml:"MerchantID"`
}

type gvpsCustomer struct {
	IPAddress    string `xml:"IPAddress"`
	EmailAddress string `xml:"EmailAddress"`
}

type gvpsCard struct {
	Number     string `xml:"Number"`
	ExpireDate string `xml:"ExpireDate"`
	CVV2       string `xml:"CVV2"`
}

type gvpsOrder struct {
	OrderID string `xml:"OrderID"`
	GroupID string `xml:"GroupID"`
}

type secure3D struct {
	AuthenticationCode string `xml:"AuthenticationCode"`
	SecurityLevel      string `xml:"SecurityLevel"`
	TxnID              string `xml:"TxnID"`
	Md                 string `xml:"Md"`
}

type gvpsTransaction struct {
	Type                  string    `xml:"Type"`
	InstallmentCnt        string    `xml:"InstallmentCnt"`
	Amount                string    `xml:"Amount"`
	CurrencyCode          string    `xml:"CurrencyCode"`
	CardholderPresentCode string    `xml:"CardholderPresentCode"`
	MotoInd               string    `xml:"MotoInd"`
	Secure3D              *secure3D `xml:"Secure3D,omitempty"`
	OriginalRetrefNum     string    `xml:"OriginalRetrefNum,omitempty"`
}

type gvpsResponse struct {
	XMLName xml.Name `xml:"GVPSResponse"`
	Order   struct {
		OrderID        string `xml:"OrderID"`
		OrderInqResult struct {
			Status string `xml:"Status"`
		} `xml:"OrderInqResult"`
	} `xml:"Order"`
	Transaction struct {
		Response struct {
			Source     string `xml:"Source"`
			Code       string `xml:"Code"`
			ReasonCode string `xml:"ReasonCode"`
			Message    string `xml:"Message"`
			ErrorMsg   string `xml:"ErrorMsg"`
			SysErrMsg  string `xml:"SysErrMsg"`
		} `xml:"Response"`
		RetrefNum   string `xml:"RetrefNum"`
		AuthCode    string `xml:"AuthCode"`
		BatchNum    string `xml:"BatchNum"`
		SequenceNum string `xml:"SequenceNum"`
		ProvDate    string `xml:"ProvDate"`
	} `xml:"Transaction"`
}

func (a *Adapter) request(provUser, password, orderID, cardNumber, amount, currency string) *gvpsRequest {
	hashed := HashedPassword(password, a.terminalID)
	return &gvpsRequest{
		Mode:    a.mode(),
		Version: apiVersion,
		Terminal: gvpsTerminal{
			ProvUserID: provUser,
			HashData:   ProvisionHash(orderID, a.terminalID, cardNumber, amount, currency, hashed),
			UserID:     a.userID,
			ID:         a.terminalID,
			MerchantID: a.merchantID,
		},
		Customer: gvpsCustomer{IPAddress: a.s.Tx.Customer.IP, EmailAddress: a.s.Tx.Customer.Email},
		Order:    gvpsOrder{OrderID: orderID},
		Transaction: gvpsTransaction{
			Amount:                amount,
			CurrencyCode:          currency,
			CardholderPresentCode: "0",
			MotoInd:               "N",
		},
	}
}

func (a *Adapter) exchange(ctx context.Context, operation string, req *gvpsRequest) (*gvpsResponse, string, error) {
	httpResp, err := a.s.HTTP.SendXML(ctx, &provider.HTTPRequest{
		Operation: operation,
		Endpoint:  a.s.Endpoint("api", testAPIURL, liveAPIURL),
		Body:      req,
	})
	if err != nil {
		a.s.Log(operation, req, err.Error())
		return nil, "", err
	}
	a.s.Log(operation, req, httpResp.RawBody)

	var resp gvpsResponse
	if err := a.s.HTTP.ParseXMLResponse(httpResp, &resp); err != nil {
		return nil, "", err
	}
	return &resp, httpResp.RawBody, nil
}

func (a *Adapter) send(ctx context.Context, operation string, req *gvpsRequest) (*provider.Result, error) {
	resp, raw, err := a.exchange(ctx, operation, req)
	if err != nil {
		return nil, err
	}
	return a.result(resp, raw, req.Order.OrderID), nil
}

func (a *Adapter) result(resp *gvpsResponse, raw, orderID string) *provider.Result {
	tr := resp.Transaction
	if tr.Response.Code == "00" {
		r := provider.Approved(provider.FirstNonEmpty(resp.Order.OrderID, orderID), tr.AuthCode, tr.RetrefNum, raw)
		r.ProvisionNumber = tr.SequenceNum
		return r
	}
	return provider.Declined(provider.KindBankRejected,
		provider.FirstNonEmpty(tr.Response.ReasonCode, tr.Response.Code, "DECLINED"),
		provider.FirstNonEmpty(tr.Response.ErrorMsg, tr.Response.SysErrMsg, tr.Response.Message, "transaction declined"), raw)
}
