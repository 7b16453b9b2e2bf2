package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessResponse(t *testing.T) {
	w := httptest.NewRecorder()

	Success(w, http.StatusOK, "Test successful", map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Test successful", resp.Message)
	assert.Equal(t, map[string]any{"key": "value"}, resp.Data)
}

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusBadRequest, "Test error", errors.New("boom"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "boom", resp.Error)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestFailResponse(t *testing.T) {
	w := httptest.NewRecorder()

	Fail(w, http.StatusConflict, "STATE_CONFLICT", "NOT_REFUNDABLE", "cannot refund", nil)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "STATE_CONFLICT", resp.Kind)
	assert.Equal(t, "NOT_REFUNDABLE", resp.Error)
	assert.Nil(t, resp.Data)
}

func BenchmarkSuccessResponse(b *testing.B) {
	data := map[string]string{"test": "data"}

	for b.Loop() {
		w := httptest.NewRecorder()
		Success(w, http.StatusOK, "Benchmark test", data)
	}
}
