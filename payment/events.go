package payment

import (
	"context"
	"time"

	"github.com/mstgnz/vpos/infra/logger"
	"github.com/mstgnz/vpos/infra/opensearch"
	"github.com/mstgnz/vpos/provider"
)

// EventSink receives protocol log entries as they are appended to a
// transaction. Entries are already sanitized.
type EventSink interface {
	Publish(ctx context.Context, tx *provider.Transaction, entries []provider.LogEntry)
}

// NopSink drops events
type NopSink struct{}

func (NopSink) Publish(context.Context, *provider.Transaction, []provider.LogEntry) {}

// OpenSearchSink mirrors protocol events to the protocol event index
type OpenSearchSink struct {
	logger *opensearch.Logger
}

// NewOpenSearchSink creates a sink writing through l
func NewOpenSearchSink(l *opensearch.Logger) *OpenSearchSink {
	return &OpenSearchSink{logger: l}
}

// Publish indexes the entries in the background. Indexing failures are
// logged and never reach the payment flow.
func (o *OpenSearchSink) Publish(ctx context.Context, tx *provider.Transaction, entries []provider.LogEntry) {
	events := make([]opensearch.ProtocolEvent, 0, len(entries))
	for _, e := range entries {
		events = append(events, opensearch.ProtocolEvent{
			Timestamp:     e.Timestamp,
			TransactionID: tx.ID,
			PartnerID:     tx.PartnerID,
			TerminalID:    tx.TerminalID,
			Provider:      tx.Provider,
			Operation:     string(tx.Operation),
			EventType:     e.Type,
			Status:        string(tx.Status),
			OrderID:       tx.OrderID,
			Request:       e.Request,
			Response:      e.Response,
		})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		for _, ev := range events {
			if err := o.logger.LogProtocolEvent(ctx, ev); err != nil {
				logger.Warn("Failed to index protocol event", logger.LogContext{
					Provider:      ev.Provider,
					TransactionID: ev.TransactionID,
					Fields:        map[string]any{"event_type": ev.EventType, "error": err.Error()},
				})
			}
		}
	}()
}
