package nestpay

import (
	"sort"
	"strings"

	"github.com/mstgnz/vpos/provider"
)

var v3Escaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

// HashV3 signs params with the ver3 scheme: values ordered by
// case-insensitive key, escaped, joined with "|" and followed by the
// store key, then SHA-512 and Base64. hash and encoding are excluded.
func HashV3(params map[string]string, storeKey string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		switch strings.ToLower(k) {
		case "hash", "encoding", "countdown":
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(v3Escaper.Replace(params[k]))
		b.WriteByte('|')
	}
	b.WriteString(v3Escaper.Replace(storeKey))
	return provider.SHA512Base64(b.String())
}

// VerifyHashV3 checks the HASH field of a gate post-back
func VerifyHashV3(data map[string]string, storeKey string) bool {
	received := data["HASH"]
	if received == "" {
		received = data["hash"]
	}
	if received == "" {
		return false
	}
	return provider.EqualHash(received, HashV3(data, storeKey))
}
