package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mstgnz/vpos/infra/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCluster struct {
	mu      sync.Mutex
	created []string
	docs    map[string][]string
}

func newFakeCluster(t *testing.T) (*fakeCluster, *httptest.Server) {
	fc := &fakeCluster{docs: map[string][]string{}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fc.mu.Lock()
		defer fc.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		index := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")[0]

		switch {
		case r.URL.Path == "/" && r.Method == http.MethodGet:
			w.Write([]byte(`{"version":{"number":"2.11.0","distribution":"opensearch"},"tagline":"The OpenSearch Project: https://opensearch.org/"}`))
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut:
			fc.created = append(fc.created, index)
			w.Write([]byte(`{"acknowledged":true}`))
		case strings.HasSuffix(r.URL.Path, "/_search"):
			hits := ""
			for i, doc := range fc.docs[index] {
				if i > 0 {
					hits += ","
				}
				hits += `{"_source":` + doc + `}`
			}
			w.Write([]byte(`{"hits":{"hits":[` + hits + `]}}`))
		case r.Method == http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			fc.docs[index] = append(fc.docs[index], string(body))
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"result":"created"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(server.Close)
	return fc, server
}

func TestNewClientCreatesIndices(t *testing.T) {
	fc, server := newFakeCluster(t)

	client, err := NewClient(&config.AppConfig{OpenSearchURL: server.URL, EnableLogging: true})
	require.NoError(t, err)
	assert.True(t, client.IsEnabled())

	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.ElementsMatch(t, []string{SystemLogIndex, ProtocolEventIndex}, fc.created)
}

func TestLogger_ProtocolEvents(t *testing.T) {
	fc, server := newFakeCluster(t)

	client, err := NewClient(&config.AppConfig{OpenSearchURL: server.URL, EnableLogging: true})
	require.NoError(t, err)
	logger := NewLogger(client)

	err = logger.LogProtocolEvent(context.Background(), ProtocolEvent{
		TransactionID: "tx-1",
		Provider:      "nestpay",
		Operation:     "payment",
		EventType:     "provision",
		Status:        "success",
	})
	require.NoError(t, err)

	fc.mu.Lock()
	require.Len(t, fc.docs[ProtocolEventIndex], 1)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(fc.docs[ProtocolEventIndex][0]), &doc))
	fc.mu.Unlock()
	assert.Equal(t, "tx-1", doc["transaction_id"])
	assert.NotEmpty(t, doc["timestamp"])

	events, err := logger.GetTransactionEvents(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "provision", events[0].EventType)
}

func TestLogger_Disabled(t *testing.T) {
	fc, server := newFakeCluster(t)

	client, err := NewClient(&config.AppConfig{OpenSearchURL: server.URL, EnableLogging: false})
	require.NoError(t, err)
	logger := NewLogger(client)

	assert.NoError(t, logger.LogSystemEvent(context.Background(), map[string]string{"message": "x"}))
	_, err = logger.GetTransactionEvents(context.Background(), "tx-1")
	assert.Error(t, err)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.Empty(t, fc.created)
	assert.Empty(t, fc.docs)
}
