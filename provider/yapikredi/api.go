package yapikredi

import (
	"context"
	"encoding/xml"

	"github.com/mstgnz/vpos/provider"
)

type posnetRequest struct {
	XMLName                xml.Name                `xml:"posnetRequest"`
	MID                    string                  `xml:"mid"`
	TID                    string                  `xml:"tid"`
	OOSRequestData         *oosRequestData         `xml:"oosRequestData,omitempty"`
	OOSResolveMerchantData *oosResolveMerchantData `xml:"oosResolveMerchantData,omitempty"`
	OOSTranData            *oosTranData            `xml:"oosTranData,omitempty"`
	Sale                   *cardTransaction        `xml:"sale,omitempty"`
	Auth                   *cardTransaction        `xml:"auth,omitempty"`
	Capt                   *capture                `xml:"capt,omitempty"`
	Return                 *refund                 `xml:"return,omitempty"`
	Reverse                *reverse                `xml:"reverse,omitempty"`
}

type oosRequestData struct {
	PosnetID       string `xml:"posnetid"`
	CCNo           string `xml:"ccno"`
	ExpDate        string `xml:"expDate"`
	CVC            string `xml:"cvc"`
	Amount         string `xml:"amount"`
	CurrencyCode   string `xml:"currencyCode"`
	Installment    string `xml:"installment"`
	XID            string `xml:"XID"`
	CardHolderName string `xml:"cardHolderName"`
	TranType       string `xml:"tranType"`
}

type oosResolveMerchantData struct {
	BankData     string `xml:"bankData"`
	MerchantData string `xml:"merchantData"`
	Sign         string `xml:"sign"`
	MAC          string `xml:"mac"`
}

type oosTranData struct {
	BankData string `xml:"bankData"`
	WPAmount string `xml:"wpAmount"`
	MAC      string `xml:"mac"`
}

type cardTransaction struct {
	CCNo         string `xml:"ccno"`
	CVC          string `xml:"cvc"`
	ExpDate      string `xml:"expDate"`
	Amount       string `xml:"amount"`
	CurrencyCode string `xml:"currencyCode"`
	OrderID      string `xml:"orderID"`
	Installment  string `xml:"installment"`
}

type capture struct {
	HostLogKey   string `xml:"hostLogKey"`
	Amount       string `xml:"amount"`
	CurrencyCode string `xml:"currencyCode"`
	Installment  string `xml:"installment"`
}

type refund struct {
	Amount       string `xml:"amount"`
	CurrencyCode string `xml:"currencyCode"`
	HostLogKey   string `xml:"hostLogKey"`
}

type reverse struct {
	Transaction string `xml:"transaction"`
	HostLogKey  string `xml:"hostLogKey"`
}

type posnetResponse struct {
	XMLName                xml.Name `xml:"posnetResponse"`
	Approved               string   `xml:"approved"`
	RespCode               string   `xml:"respCode"`
	RespText               string   `xml:"respText"`
	HostLogKey             string   `xml:"hostlogkey"`
	AuthCode               string   `xml:"authCode"`
	OOSRequestDataResponse struct {
		Data1 string `xml:"data1"`
		Data2 string `xml:"data2"`
		Sign  string `xml:"sign"`
	} `xml:"oosRequestDataResponse"`
	OOSResolveMerchantDataResponse struct {
		XID            string `xml:"xid"`
		Amount         string `xml:"amount"`
		Currency       string `xml:"currency"`
		Installment    string `xml:"installment"`
		TxStatus       string `xml:"txStatus"`
		MdStatus       string `xml:"mdStatus"`
		MdErrorMessage string `xml:"mdErrorMessage"`
		MAC            string `xml:"mac"`
	} `xml:"oosResolveMerchantDataResponse"`
}

func (a *Adapter) request() *posnetRequest {
	return &posnetRequest{MID: a.merchantID, TID: a.terminalID}
}

func (a *Adapter) exchange(ctx context.Context, operation string, req *posnetRequest) (*posnetResponse, string, error) {
	body, err := xml.Marshal(req)
	if err != nil {
		return nil, "", provider.Wrap(provider.KindInternal, err, "yapikredi: encode request")
	}

	httpResp, err := a.s.HTTP.SendForm(ctx, &provider.HTTPRequest{
		Operation: operation,
		Endpoint:  a.s.Endpoint("api", testAPIURL, liveAPIURL),
		FormData:  map[string]string{"xmldata": xml.Header + string(body)},
	})
	if err != nil {
		a.s.Log(operation, req, err.Error())
		return nil, "", err
	}
	a.s.Log(operation, req, httpResp.RawBody)

	var resp posnetResponse
	if err := a.s.HTTP.ParseXMLResponse(httpResp, &resp); err != nil {
		return nil, "", err
	}
	return &resp, httpResp.RawBody, nil
}

func (a *Adapter) send(ctx context.Context, operation string, req *posnetRequest, orderID string) (*provider.Result, error) {
	resp, raw, err := a.exchange(ctx, operation, req)
	if err != nil {
		return nil, err
	}
	if resp.Approved == "1" {
		r := provider.Approved(orderID, resp.AuthCode, resp.HostLogKey, raw)
		r.ProvisionNumber = resp.HostLogKey
		return r, nil
	}
	return provider.Declined(provider.KindBankRejected,
		provider.FirstNonEmpty(resp.RespCode, "DECLINED"),
		provider.FirstNonEmpty(resp.RespText, "transaction declined"), raw), nil
}
