package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// ProtocolEvent is one sanitized bank interaction mirrored from a
// transaction's log
type ProtocolEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	TransactionID string    `json:"transaction_id"`
	PartnerID     string    `json:"partner_id,omitempty"`
	TerminalID    string    `json:"terminal_id,omitempty"`
	Provider      string    `json:"provider"`
	Operation     string    `json:"operation"`
	EventType     string    `json:"event_type"`
	Status        string    `json:"status,omitempty"`
	OrderID       string    `json:"order_id,omitempty"`
	Request       any       `json:"request,omitempty"`
	Response      any       `json:"response,omitempty"`
}

// Logger handles OpenSearch logging operations
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

// LogProtocolEvent indexes one protocol event
func (l *Logger) LogProtocolEvent(ctx context.Context, event ProtocolEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return l.index(ctx, ProtocolEventIndex, event)
}

// LogSystemEvent logs a system event to OpenSearch
func (l *Logger) LogSystemEvent(ctx context.Context, entry any) error {
	return l.index(ctx, SystemLogIndex, entry)
}

func (l *Logger) index(ctx context.Context, indexName string, doc any) error {
	if !l.client.IsEnabled() {
		return nil
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}
	return nil
}

// GetTransactionEvents returns the indexed protocol events of a transaction,
// newest first
func (l *Logger) GetTransactionEvents(ctx context.Context, transactionID string) ([]ProtocolEvent, error) {
	if !l.client.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}

	query, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"term": map[string]any{"transaction_id": transactionID},
		},
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": 100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{ProtocolEventIndex},
		Body:  bytes.NewReader(query),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch search error: %s", res.String())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source ProtocolEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	events := make([]ProtocolEvent, len(searchResult.Hits.Hits))
	for i, hit := range searchResult.Hits.Hits {
		events[i] = hit.Source
	}
	return events, nil
}
