package provider

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderHTTPClient_SendForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "100.00", r.PostForm.Get("amount"))
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	client := NewProviderHTTPClient(&HTTPClientConfig{Provider: "test", BaseURL: server.URL})
	resp, err := client.SendForm(context.Background(), &HTTPRequest{
		Operation: "provision",
		Endpoint:  "/pay",
		FormData:  map[string]string{"amount": "100.00"},
	})
	require.NoError(t, err)
	assert.Equal(t, "OK", resp.RawBody)
}

func TestProviderHTTPClient_SendXML(t *testing.T) {
	type ping struct {
		XMLName xml.Name `xml:"Ping"`
		Value   string   `xml:"Value"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<Ping><Value>x</Value></Ping>")
		assert.Contains(t, r.Header.Get("Content-Type"), "application/xml")
		w.Write([]byte("<Pong><Value>y</Value></Pong>"))
	}))
	defer server.Close()

	client := NewProviderHTTPClient(&HTTPClientConfig{Provider: "test"})
	resp, err := client.SendXML(context.Background(), &HTTPRequest{Endpoint: server.URL, Body: ping{Value: "x"}})
	require.NoError(t, err)

	var pong struct {
		Value string `xml:"Value"`
	}
	require.NoError(t, client.ParseXMLResponse(resp, &pong))
	assert.Equal(t, "y", pong.Value)
}

func TestProviderHTTPClient_NetworkErrors(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer failing.Close()

	client := NewProviderHTTPClient(&HTTPClientConfig{Provider: "test", Timeout: 50 * time.Millisecond})

	_, err := client.SendJSON(context.Background(), &HTTPRequest{Endpoint: slow.URL, Body: map[string]string{}})
	require.Error(t, err)
	assert.Equal(t, KindNetworkError, KindOf(err))
	assert.Equal(t, "TIMEOUT", CodeOf(err))

	resp, err := client.SendJSON(context.Background(), &HTTPRequest{Endpoint: failing.URL})
	require.Error(t, err)
	assert.Equal(t, KindNetworkError, KindOf(err))
	assert.Equal(t, "HTTP_502", CodeOf(err))
	require.NotNil(t, resp)
	assert.Contains(t, resp.RawBody, "down")

	_, err = client.SendRaw(context.Background(), &HTTPRequest{Endpoint: "http://127.0.0.1:1/closed"})
	assert.Equal(t, KindNetworkError, KindOf(err))
}

func TestBuildURL(t *testing.T) {
	client := NewProviderHTTPClient(&HTTPClientConfig{BaseURL: "https://bank.example.com/api/"})

	assert.Equal(t, "https://bank.example.com/api/v1/pay", client.buildURL("/v1/pay", nil))
	assert.Equal(t, "https://other.example.com/x?a=1", client.buildURL("https://other.example.com/x", map[string]string{"a": "1"}))
	assert.Equal(t, "a/b", joinURL("a", "b"))
	assert.Equal(t, "b", joinURL("", "b"))
}
