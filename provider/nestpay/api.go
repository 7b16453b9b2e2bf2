package nestpay

import (
	"context"
	"encoding/xml"

	"github.com/mstgnz/vpos/provider"
)

type cc5Request struct {
	XMLName                 xml.Name  `xml:"CC5Request"`
	Name                    string    `xml:"Name"`
	Password                string    `xml:"Password"`
	ClientID                string    `xml:"ClientId"`
	Type                    string    `xml:"Type,omitempty"`
	OrderID                 string    `xml:"OrderId"`
	Total                   string    `xml:"Total,omitempty"`
	Currency                string    `xml:"Currency,omitempty"`
	Taksit                  string    `xml:"Taksit,omitempty"`
	Number                  string    `xml:"Number,omitempty"`
	Expires                 string    `xml:"Expires,omitempty"`
	Cvv2Val                 string    `xml:"Cvv2Val,omitempty"`
	PayerTxnID              string    `xml:"PayerTxnId,omitempty"`
	PayerSecurityLevel      string    `xml:"PayerSecurityLevel,omitempty"`
	PayerAuthenticationCode string    `xml:"PayerAuthenticationCode,omitempty"`
	IPAddress               string    `xml:"IPAddress,omitempty"`
	Email                   string    `xml:"Email,omitempty"`
	Mode                    string    `xml:"Mode"`
	Extra                   *cc5Extra `xml:"Extra,omitempty"`
}

type cc5Extra struct {
	OrderStatus string `xml:"ORDERSTATUS,omitempty"`
}

type cc5Response struct {
	XMLName        xml.Name `xml:"CC5Response"`
	OrderID        string   `xml:"OrderId"`
	GroupID        string   `xml:"GroupId"`
	Response       string   `xml:"Response"`
	AuthCode       string   `xml:"AuthCode"`
	HostRefNum     string   `xml:"HostRefNum"`
	ProcReturnCode string   `xml:"ProcReturnCode"`
	TransID        string   `xml:"TransId"`
	ErrMsg         string   `xml:"ErrMsg"`
	Extra          struct {
		ErrorCode  string `xml:"ERRORCODE"`
		TransStat  string `xml:"TRANS_STAT"`
		AuthCode   string `xml:"AUTH_CODE"`
		HostRefNum string `xml:"HOST_REF_NUM"`
		TransID    string `xml:"TRANS_ID"`
	} `xml:"Extra"`
}

func (a *Adapter) baseRequest(tranType string) *cc5Request {
	return &cc5Request{
		Name:     a.username,
		Password: a.password,
		ClientID: a.clientID,
		Type:     tranType,
		Mode:     "P",
	}
}

func (a *Adapter) exchange(ctx context.Context, operation string, req *cc5Request) (*cc5Response, string, error) {
	httpResp, err := a.s.HTTP.SendXML(ctx, &provider.HTTPRequest{
		Operation: operation,
		Endpoint:  a.apiURL(),
		Body:      req,
	})
	if err != nil {
		a.s.Log(operation, req, err.Error())
		return nil, "", err
	}

	var resp cc5Response
	if err := a.s.HTTP.ParseXMLResponse(httpResp, &resp); err != nil {
		a.s.Log(operation, req, httpResp.RawBody)
		return nil, "", err
	}
	a.s.Log(operation, req, httpResp.RawBody)
	return &resp, httpResp.RawBody, nil
}

func (a *Adapter) send(ctx context.Context, operation string, req *cc5Request) (*provider.Result, error) {
	resp, raw, err := a.exchange(ctx, operation, req)
	if err != nil {
		return nil, err
	}
	if resp.Response == "Approved" && resp.ProcReturnCode == "00" {
		r := provider.Approved(provider.FirstNonEmpty(resp.OrderID, req.OrderID), resp.AuthCode, resp.HostRefNum, raw)
		r.TransID = resp.TransID
		return r, nil
	}
	code := provider.FirstNonEmpty(resp.Extra.ErrorCode, resp.ProcReturnCode, resp.Response)
	return provider.Declined(provider.KindBankRejected, code,
		provider.FirstNonEmpty(resp.ErrMsg, "transaction declined"), raw), nil
}
