package kuveytturk

import (
	"bytes"
	"context"
	"encoding/xml"

	"github.com/mstgnz/vpos/provider"
	"golang.org/x/net/html/charset"
)

type vposMessage struct {
	XMLName             xml.Name        `xml:"KuveytTurkVPosMessage"`
	APIVersion          string          `xml:"APIVersion"`
	OkURL               string          `xml:"OkUrl,omitempty"`
	FailURL             string          `xml:"FailUrl,omitempty"`
	HashData            string          `xml:"HashData"`
	MerchantID          string          `xml:"MerchantId"`
	CustomerID          string          `xml:"CustomerId"`
	UserName            string          `xml:"UserName"`
	CardNumber          string          `xml:"CardNumber,omitempty"`
	CardExpireDateYear  string          `xml:"CardExpireDateYear,omitempty"`
	CardExpireDateMonth string          `xml:"CardExpireDateMonth,omitempty"`
	CardCVV2            string          `xml:"CardCVV2,omitempty"`
	CardHolderName      string          `xml:"CardHolderName,omitempty"`
	CardType            string          `xml:"CardType,omitempty"`
	TransactionType     string          `xml:"TransactionType"`
	InstallmentCount    string          `xml:"InstallmentCount,omitempty"`
	Amount              string          `xml:"Amount"`
	DisplayAmount       string          `xml:"DisplayAmount,omitempty"`
	CurrencyCode        string          `xml:"CurrencyCode,omitempty"`
	MerchantOrderID     string          `xml:"MerchantOrderId"`
	TransactionSecurity string          `xml:"TransactionSecurity"`
	RRN                 string          `xml:"RRN,omitempty"`
	ProvisionNumber     string          `xml:"ProvisionNumber,omitempty"`
	AdditionalData      *additionalData `xml:"KuveytTurkVPosAdditionalData,omitempty"`
}

type additionalData struct {
	Items []additionalItem `xml:"AdditionalData"`
}

type additionalItem struct {
	Key  string `xml:"Key"`
	Data string `xml:"Data"`
}

type transactionResponse struct {
	XMLName         xml.Name `xml:"VPosTransactionResponseContract"`
	ResponseCode    string   `xml:"ResponseCode"`
	ResponseMessage string   `xml:"ResponseMessage"`
	MerchantOrderID string   `xml:"MerchantOrderId"`
	OrderID         string   `xml:"OrderId"`
	MD              string   `xml:"MD"`
	ProvisionNumber string   `xml:"ProvisionNumber"`
	RRN             string   `xml:"RRN"`
	Stan            string   `xml:"Stan"`
	IsEnrolled      string   `xml:"IsEnrolled"`
}

func (a *Adapter) message(txType, orderID, amount string) *vposMessage {
	return &vposMessage{
		APIVersion:          apiVersion,
		MerchantID:          a.merchantID,
		CustomerID:          a.customerID,
		UserName:            a.username,
		TransactionType:     txType,
		Amount:              amount,
		MerchantOrderID:     orderID,
		TransactionSecurity: "3",
	}
}

func decodeXML(raw string, v any) error {
	dec := xml.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.CharsetReader = charset.NewReaderLabel
	return dec.Decode(v)
}

func (a *Adapter) post(ctx context.Context, operation, endpoint, path string, msg *vposMessage) (*provider.HTTPResponse, error) {
	httpResp, err := a.s.HTTP.SendXML(ctx, &provider.HTTPRequest{
		Operation: operation,
		Endpoint:  a.s.Endpoint(endpoint, testBase+path, liveBase+path),
		Body:      msg,
	})
	if err != nil {
		a.s.Log(operation, msg, err.Error())
		return nil, err
	}
	a.s.Log(operation, msg, httpResp.RawBody)
	return httpResp, nil
}

func (a *Adapter) send(ctx context.Context, operation, endpoint, path string, msg *vposMessage, orderID string) (*provider.Result, error) {
	httpResp, err := a.post(ctx, operation, endpoint, path, msg)
	if err != nil {
		return nil, err
	}
	var resp transactionResponse
	if err := a.s.HTTP.ParseXMLResponse(httpResp, &resp); err != nil {
		return nil, err
	}
	if resp.ResponseCode == successCode {
		r := provider.Approved(orderID, resp.ProvisionNumber, resp.RRN, httpResp.RawBody)
		r.ProvisionNumber = resp.ProvisionNumber
		r.TransID = resp.OrderID
		return r, nil
	}
	return provider.Declined(provider.KindBankRejected,
		provider.FirstNonEmpty(resp.ResponseCode, "DECLINED"),
		provider.FirstNonEmpty(resp.ResponseMessage, "transaction declined"), httpResp.RawBody), nil
}
