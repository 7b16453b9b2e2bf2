package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mstgnz/vpos/infra/logger"
	"github.com/mstgnz/vpos/infra/metrics"
	"golang.org/x/net/html/charset"
)

const (
	contentJSON = "application/json"
	contentForm = "application/x-www-form-urlencoded"
	contentXML  = "application/xml; charset=utf-8"
)

// HTTPClientConfig represents configuration for HTTP client
type HTTPClientConfig struct {
	Provider           string
	BaseURL            string
	Timeout            time.Duration
	InsecureSkipVerify bool
	DefaultHeaders     map[string]string
	Transport          http.RoundTripper
}

// HTTPRequest represents a standardized HTTP request
type HTTPRequest struct {
	Operation   string
	Method      string
	Endpoint    string
	Headers     map[string]string
	Body        any
	FormData    map[string]string
	QueryParams map[string]string
}

// HTTPResponse represents a standardized HTTP response
type HTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	RawBody    string
}

// ProviderHTTPClient provides standardized HTTP operations for bank adapters.
// Transport failures, timeouts and non-2xx answers come back as
// NETWORK_ERROR.
type ProviderHTTPClient struct {
	config *HTTPClientConfig
	client *http.Client
}

// NewProviderHTTPClient creates a new provider HTTP client
func NewProviderHTTPClient(config *HTTPClientConfig) *ProviderHTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	transport := config.Transport
	if transport == nil {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: config.InsecureSkipVerify,
			},
		}
	}

	client := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}

	return &ProviderHTTPClient{
		config: config,
		client: client,
	}
}

// SendJSON sends a JSON request and returns the response
func (c *ProviderHTTPClient) SendJSON(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	return c.sendRequest(ctx, req, contentJSON)
}

// SendForm sends a form-encoded request and returns the response
func (c *ProviderHTTPClient) SendForm(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	return c.sendRequest(ctx, req, contentForm)
}

// SendXML sends an XML document. Body may be a string, []byte or a value
// encoding/xml can marshal.
func (c *ProviderHTTPClient) SendXML(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	return c.sendRequest(ctx, req, contentXML)
}

// SendRaw sends a raw request and returns the response
func (c *ProviderHTTPClient) SendRaw(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	return c.sendRequest(ctx, req, "")
}

// sendRequest is the internal method that handles all HTTP requests
func (c *ProviderHTTPClient) sendRequest(ctx context.Context, req *HTTPRequest, contentType string) (*HTTPResponse, error) {
	fullURL := c.buildURL(req.Endpoint, req.QueryParams)

	body, err := encodeBody(req, contentType)
	if err != nil {
		return nil, Wrap(KindInternal, err, "encode request body")
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, Wrap(KindInternal, err, "failed to create HTTP request")
	}

	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	logger.Debug("bank request", logger.LogContext{
		Provider: c.config.Provider,
		Fields: map[string]any{
			"operation": req.Operation,
			"url":       fullURL,
		},
	})

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		metrics.RecordBankRequest(c.config.Provider, req.Operation, "network_error", time.Since(start))
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordBankRequest(c.config.Provider, req.Operation, "network_error", time.Since(start))
		return nil, networkError(err)
	}

	response := &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
		RawBody:    string(respBody),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordBankRequest(c.config.Provider, req.Operation, "http_error", time.Since(start))
		return response, &Error{
			Kind:    KindNetworkError,
			Code:    fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message: fmt.Sprintf("bank answered HTTP %d", resp.StatusCode),
		}
	}

	metrics.RecordBankRequest(c.config.Provider, req.Operation, "ok", time.Since(start))
	return response, nil
}

func encodeBody(req *HTTPRequest, contentType string) (io.Reader, error) {
	switch contentType {
	case contentForm:
		if len(req.FormData) > 0 {
			return strings.NewReader(encodeForm(req.FormData)), nil
		}
		if formMap, ok := req.Body.(map[string]string); ok {
			return strings.NewReader(encodeForm(formMap)), nil
		}
	case contentJSON:
		if req.Body != nil {
			jsonData, err := json.Marshal(req.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal JSON body: %w", err)
			}
			return bytes.NewReader(jsonData), nil
		}
	case contentXML:
		switch req.Body.(type) {
		case nil, string, []byte:
		default:
			xmlData, err := xml.Marshal(req.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal XML body: %w", err)
			}
			return bytes.NewReader(append([]byte(xml.Header), xmlData...)), nil
		}
	}

	switch raw := req.Body.(type) {
	case string:
		return strings.NewReader(raw), nil
	case []byte:
		return bytes.NewReader(raw), nil
	}
	return nil, nil
}

func encodeForm(data map[string]string) string {
	formData := url.Values{}
	for key, value := range data {
		formData.Set(key, value)
	}
	return formData.Encode()
}

func networkError(err error) *Error {
	code := "TRANSPORT"
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		code = "TIMEOUT"
	}
	return &Error{Kind: KindNetworkError, Code: code, Message: "bank request failed", Err: err}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func joinURL(base, endpoint string) string {
	if base == "" {
		return endpoint
	}
	if strings.HasSuffix(base, "/") && strings.HasPrefix(endpoint, "/") {
		return base + endpoint[1:]
	}
	if !strings.HasSuffix(base, "/") && !strings.HasPrefix(endpoint, "/") {
		return base + "/" + endpoint
	}
	return base + endpoint
}

// buildURL constructs the full URL with query parameters
func (c *ProviderHTTPClient) buildURL(endpoint string, queryParams map[string]string) string {
	fullURL := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		fullURL = joinURL(c.config.BaseURL, endpoint)
	}

	if len(queryParams) == 0 {
		return fullURL
	}

	u, err := url.Parse(fullURL)
	if err != nil {
		return fullURL
	}
	q := u.Query()
	for key, value := range queryParams {
		q.Set(key, value)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ParseJSONResponse parses the response body as JSON into the target
func (c *ProviderHTTPClient) ParseJSONResponse(response *HTTPResponse, target any) error {
	if err := json.Unmarshal(response.Body, target); err != nil {
		return Wrap(KindBankRejected, err, "unreadable bank response")
	}
	return nil
}

// ParseXMLResponse parses the response body as XML into the target. Legacy
// charsets such as ISO-8859-9 are converted to UTF-8.
func (c *ProviderHTTPClient) ParseXMLResponse(response *HTTPResponse, target any) error {
	dec := xml.NewDecoder(bytes.NewReader(response.Body))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(target); err != nil {
		return Wrap(KindBankRejected, err, "unreadable bank response")
	}
	return nil
}

// CreateHTTPClientConfig creates a standard HTTP client configuration for a bank
func CreateHTTPClientConfig(providerName string, testMode bool, timeout time.Duration) *HTTPClientConfig {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClientConfig{
		Provider:           providerName,
		Timeout:            timeout,
		InsecureSkipVerify: testMode,
		DefaultHeaders: map[string]string{
			"User-Agent": "vpos/1.0",
		},
	}
}
