package middle

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/mstgnz/vpos/infra/config"
	"github.com/mstgnz/vpos/infra/crypto"
	"github.com/mstgnz/vpos/infra/response"
)

const partnerIDKey config.CKey = "partner_id"

// AuthMiddleware validates API key authentication. The key is taken from
// "Authorization: Bearer <key>" or X-API-Key. When a secret hash is
// configured the caller must also send the matching X-API-Secret.
func AuthMiddleware(apiKey, secretHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				response.Error(w, http.StatusInternalServerError, "API key not configured", nil)
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" {
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					response.Error(w, http.StatusUnauthorized, "Authorization header required", nil)
					return
				}
				if !strings.HasPrefix(authHeader, "Bearer ") {
					response.Error(w, http.StatusUnauthorized, "Invalid authorization format. Use: Bearer <api_key>", nil)
					return
				}
				key = strings.TrimPrefix(authHeader, "Bearer ")
			}
			if key == "" {
				response.Error(w, http.StatusUnauthorized, "API key required", nil)
				return
			}

			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
				response.Error(w, http.StatusUnauthorized, "Invalid API key", nil)
				return
			}

			if secretHash != "" && !crypto.VerifySecret(r.Header.Get("X-API-Secret"), secretHash) {
				response.Error(w, http.StatusUnauthorized, "Invalid API secret", nil)
				return
			}

			ctx := r.Context()
			if partnerID := strings.TrimSpace(r.Header.Get("X-Partner-ID")); partnerID != "" {
				ctx = context.WithValue(ctx, partnerIDKey, partnerID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPartnerIDFromContext returns the partner the caller acts for, empty
// for platform level calls
func GetPartnerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(partnerIDKey).(string); ok {
		return v
	}
	return ""
}
