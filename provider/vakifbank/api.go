package vakifbank

import (
	"context"
	"encoding/xml"

	"github.com/mstgnz/vpos/provider"
)

type enrollmentResponse struct {
	XMLName xml.Name `xml:"IPaySecure"`
	Message struct {
		VERes struct {
			Status  string `xml:"Status"`
			ACSURL  string `xml:"ACSUrl"`
			PaReq   string `xml:"PaReq"`
			TermURL string `xml:"TermUrl"`
			MD      string `xml:"MD"`
		} `xml:"VERes"`
	} `xml:"Message"`
	VerifyEnrollmentRequestID string `xml:"VerifyEnrollmentRequestId"`
	MessageErrorCode          string `xml:"MessageErrorCode"`
	ErrorMessage              string `xml:"ErrorMessage"`
}

type vposRequest struct {
	XMLName                 xml.Name `xml:"VposRequest"`
	MerchantID              string   `xml:"MerchantId"`
	Password                string   `xml:"Password"`
	TerminalNo              string   `xml:"TerminalNo"`
	TransactionType         string   `xml:"TransactionType"`
	TransactionID           string   `xml:"TransactionId,omitempty"`
	ReferenceTransactionID  string   `xml:"ReferenceTransactionId,omitempty"`
	CurrencyAmount          string   `xml:"CurrencyAmount,omitempty"`
	CurrencyCode            string   `xml:"CurrencyCode,omitempty"`
	Pan                     string   `xml:"Pan,omitempty"`
	Cvv                     string   `xml:"Cvv,omitempty"`
	Expiry                  string   `xml:"Expiry,omitempty"`
	NumberOfInstallments    string   `xml:"NumberOfInstallments,omitempty"`
	ECI                     string   `xml:"ECI,omitempty"`
	CAVV                    string   `xml:"CAVV,omitempty"`
	MpiTransactionID        string   `xml:"MpiTransactionId,omitempty"`
	ClientIP                string   `xml:"ClientIp,omitempty"`
	TransactionDeviceSource string   `xml:"TransactionDeviceSource"`
}

type vposResponse struct {
	XMLName         xml.Name `xml:"VposResponse"`
	TransactionType string   `xml:"TransactionType"`
	TransactionID   string   `xml:"TransactionId"`
	ResultCode      string   `xml:"ResultCode"`
	ResultDetail    string   `xml:"ResultDetail"`
	AuthCode        string   `xml:"AuthCode"`
	Rrn             string   `xml:"Rrn"`
	HostDate        string   `xml:"HostDate"`
}

func (a *Adapter) request(txType, orderID string) *vposRequest {
	return &vposRequest{
		MerchantID:              a.merchantID,
		Password:                a.password,
		TerminalNo:              a.terminalNo,
		TransactionType:         txType,
		TransactionID:           orderID,
		TransactionDeviceSource: "0",
	}
}

func (a *Adapter) send(ctx context.Context, operation string, req *vposRequest) (*provider.Result, error) {
	body, err := xml.Marshal(req)
	if err != nil {
		return nil, provider.Wrap(provider.KindInternal, err, "vakifbank: encode request")
	}

	httpResp, err := a.s.HTTP.SendForm(ctx, &provider.HTTPRequest{
		Operation: operation,
		Endpoint:  a.s.Endpoint("vpos", testVposURL, liveVposURL),
		FormData:  map[string]string{"prmstr": string(body)},
	})
	if err != nil {
		a.s.Log(operation, req, err.Error())
		return nil, err
	}
	a.s.Log(operation, req, httpResp.RawBody)

	var resp vposResponse
	if err := a.s.HTTP.ParseXMLResponse(httpResp, &resp); err != nil {
		return nil, err
	}
	if isSuccess(resp.ResultCode) {
		r := provider.Approved(req.TransactionID, resp.AuthCode, resp.Rrn, httpResp.RawBody)
		r.TransID = resp.TransactionID
		return r, nil
	}
	return provider.Declined(provider.KindBankRejected,
		provider.FirstNonEmpty(resp.ResultCode, "DECLINED"),
		provider.FirstNonEmpty(resp.ResultDetail, "transaction declined"), httpResp.RawBody), nil
}
