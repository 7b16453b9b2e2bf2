package v1

import (
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/vpos/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutes(t *testing.T) {
	r := chi.NewRouter()
	Routes(r,
		handler.NewPaymentHandler(nil, validator.New(), time.Second),
		handler.NewTerminalHandler(nil, nil, nil),
		handler.NewEventsHandler(nil, validator.New()),
	)

	var got []string
	err := chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		got = append(got, method+" "+route)
		return nil
	})
	require.NoError(t, err)
	sort.Strings(got)

	assert.Equal(t, []string{
		"GET /payments/{id}",
		"GET /payments/{id}/bank-status",
		"GET /payments/{id}/children",
		"GET /payments/{id}/events",
		"GET /terminals/",
		"GET /terminals/{terminalID}",
		"GET /terminals/{terminalID}/capabilities",
		"POST /bin/query",
		"POST /overrides",
		"POST /payments/",
		"POST /payments/{id}/cancel",
		"POST /payments/{id}/refund",
		"POST /preauth/",
		"POST /preauth/{id}/capture",
		"POST /terminals/",
	}, got)
}
