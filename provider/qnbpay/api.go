package qnbpay

import (
	"context"
	"strings"

	"github.com/mstgnz/vpos/provider"
)

func (a *Adapter) base(secureType, txn, orderID string) map[string]string {
	form := map[string]string{
		"MbrId":      mbrID,
		"MerchantId": a.merchantID,
		"UserCode":   a.userCode,
		"UserPass":   a.userPassword,
		"SecureType": secureType,
		"TxnType":    txn,
		"Lang":       "TR",
	}
	if orderID != "" {
		form["OrderId"] = orderID
	}
	return form
}

// parseResponse reads PayFor's "Key=Value;;Key=Value" answers
func parseResponse(raw string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ";;") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok {
			out[k] = v
		}
	}
	return out
}

func (a *Adapter) send(ctx context.Context, operation string, form map[string]string, orderID string) (*provider.Result, error) {
	httpResp, err := a.s.HTTP.SendForm(ctx, &provider.HTTPRequest{
		Operation: operation,
		Endpoint:  a.s.Endpoint("api", testAPIURL, liveAPIURL),
		FormData:  form,
	})
	if err != nil {
		a.s.Log(operation, form, err.Error())
		return nil, err
	}
	a.s.Log(operation, form, httpResp.RawBody)
	return result(parseResponse(httpResp.RawBody), orderID, httpResp.RawBody), nil
}

func result(fields map[string]string, orderID, raw string) *provider.Result {
	if fields["ProcReturnCode"] == "00" {
		r := provider.Approved(provider.FirstNonEmpty(fields["OrderId"], orderID), fields["AuthCode"], fields["HostRefNum"], raw)
		r.TransID = fields["TransId"]
		return r
	}
	return provider.Declined(provider.KindBankRejected,
		provider.FirstNonEmpty(fields["ProcReturnCode"], "DECLINED"),
		provider.FirstNonEmpty(fields["ErrMsg"], "transaction declined"), raw)
}
