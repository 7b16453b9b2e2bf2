package middle

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mstgnz/vpos/infra/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanicRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		handler        http.HandlerFunc
		expectedStatus int
		shouldPanic    bool
	}{
		{
			name: "Normal request - no panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Handler panics with string",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("test panic")
			},
			expectedStatus: http.StatusInternalServerError,
			shouldPanic:    true,
		},
		{
			name: "Handler panics with nil map write",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var m map[string]int
				m["x"] = 1
			},
			expectedStatus: http.StatusInternalServerError,
			shouldPanic:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := PanicRecoveryMiddleware()(tt.handler)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			rr := httptest.NewRecorder()
			assert.NotPanics(t, func() { handler.ServeHTTP(rr, req) })
			assert.Equal(t, tt.expectedStatus, rr.Code)

			if tt.shouldPanic {
				var resp response.Response
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.False(t, resp.Success)
				assert.Equal(t, "Internal server error", resp.Message)
				assert.Equal(t, "no-cache, no-store, must-revalidate", rr.Header().Get("Cache-Control"))
			}
		})
	}
}

func TestPanicRecoveryMiddleware_AbortHandler(t *testing.T) {
	handler := PanicRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestPanicRecoveryWithCustomHandler(t *testing.T) {
	var recovered any
	handler := PanicRecoveryWithCustomHandler(func(w http.ResponseWriter, r *http.Request, rec any) {
		recovered = rec
		w.WriteHeader(http.StatusTeapot)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("custom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, "custom", recovered)
}
