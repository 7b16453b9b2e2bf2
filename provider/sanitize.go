package provider

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mstgnz/vpos/infra/crypto"
)

const redacted = "***"

var secretKeys = map[string]bool{
	"cvv": true, "cvv2": true, "cv2": true, "cvc": true, "cvc2": true,
	"cvv2val": true, "cardcvv2": true, "securitycode": true, "cardcvc": true,
	"password": true, "storekey": true, "secret": true, "secretkey": true,
	"provisionpassword": true, "apisecret": true, "pin": true, "enckey": true,
}

var panKeys = map[string]bool{
	"pan": true, "number": true, "cardnumber": true, "card_number": true,
	"ccno": true, "cardno": true, "cardnum": true,
}

var (
	panPattern    = regexp.MustCompile(`\b\d{13,19}\b`)
	xmlSecretExpr = regexp.MustCompile(`(?i)<(cvv2?|cv2|cvc2?|cvv2val|cardcvv2|securitycode|password|storekey|provisionpassword)>[^<]*</`)
	kvSecretExpr  = regexp.MustCompile(`(?i)\b(cvv2?|cv2|cvc2?|cvv2val|cardcvv2|securitycode|password|storekey)=[^&\s]*`)
	jsonSecretExp = regexp.MustCompile(`(?i)"(cvv2?|cv2|cvc2?|cvv2val|cardcvv2|securitycode|password|storekey|secretkey|apisecret)"\s*:\s*"[^"]*"`)
)

// SanitizeForLog returns a copy of v with card numbers masked and CVV,
// passwords and shared secrets redacted. Maps are walked recursively;
// strings are scrubbed with patterns for JSON, XML and form bodies.
func SanitizeForLog(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return SanitizeString(val)
	case []byte:
		return SanitizeString(string(val))
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = sanitizeValue(k, s)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if s, ok := item.(string); ok {
				out[k] = sanitizeValue(k, s)
				continue
			}
			out[k] = SanitizeForLog(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = SanitizeForLog(item)
		}
		return out
	case fmt.Stringer:
		return SanitizeString(val.String())
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return redacted
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return SanitizeString(string(raw))
	}
	return SanitizeForLog(generic)
}

// SanitizeString scrubs a raw request or response body
func SanitizeString(s string) string {
	s = xmlSecretExpr.ReplaceAllStringFunc(s, func(m string) string {
		open := m[:strings.Index(m, ">")+1]
		return open + redacted + "</"
	})
	s = kvSecretExpr.ReplaceAllStringFunc(s, func(m string) string {
		return m[:strings.Index(m, "=")+1] + redacted
	})
	s = jsonSecretExp.ReplaceAllStringFunc(s, func(m string) string {
		return m[:strings.Index(m, ":")+1] + `"` + redacted + `"`
	})
	return panPattern.ReplaceAllStringFunc(s, crypto.MaskCardNumber)
}

func sanitizeValue(key, value string) string {
	k := strings.ToLower(key)
	switch {
	case secretKeys[k]:
		if value == "" {
			return ""
		}
		return redacted
	case panKeys[k]:
		return crypto.MaskCardNumber(value)
	}
	return SanitizeString(value)
}
