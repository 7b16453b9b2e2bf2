package middle

import (
	"net/http"
	"strings"

	"github.com/mstgnz/vpos/infra/response"
)

// SecurityHeadersMiddleware adds security headers to responses. The 3-D
// form page submits itself to the bank with an inline script, so inline
// scripts are allowed and form-action is left open.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; frame-ancestors 'none'")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// IPWhitelistMiddleware restricts access to the given comma separated IPs.
// An empty list allows everyone.
func IPWhitelistMiddleware(whitelist string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool)
	for _, ip := range strings.Split(whitelist, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			allowed[ip] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowed) > 0 && !allowed[GetClientIP(r)] {
				response.Error(w, http.StatusForbidden, "IP not whitelisted", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestValidationMiddleware validates common request properties. Bank
// callbacks may post forms; every other body must be JSON.
func RequestValidationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				contentType := r.Header.Get("Content-Type")
				isCallback := strings.HasSuffix(strings.TrimRight(r.URL.Path, "/"), "/callback")

				switch {
				case contentType == "" && r.ContentLength > 0 && !isCallback:
					response.Error(w, http.StatusBadRequest, "Content-Type header is required", nil)
					return
				case contentType == "":
				case isCallback:
					if !strings.Contains(contentType, "application/json") &&
						!strings.Contains(contentType, "application/x-www-form-urlencoded") &&
						!strings.Contains(contentType, "multipart/form-data") {
						response.Error(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json or application/x-www-form-urlencoded", nil)
						return
					}
				case !strings.Contains(contentType, "application/json"):
					response.Error(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
					return
				}
			}

			if r.ContentLength > 1024*1024 {
				response.Error(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)

			next.ServeHTTP(w, r)
		})
	}
}
