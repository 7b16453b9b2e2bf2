package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/vpos/infra/logger"
	"github.com/mstgnz/vpos/infra/opensearch"
	"github.com/mstgnz/vpos/infra/response"
)

// EventReader reads the indexed protocol events of a transaction
type EventReader interface {
	GetTransactionEvents(ctx context.Context, transactionID string) ([]opensearch.ProtocolEvent, error)
}

// EventsHandler serves the bank traffic mirrored to OpenSearch
type EventsHandler struct {
	reader   EventReader
	validate *validator.Validate
}

// NewEventsHandler creates a new events handler. reader may be nil when
// OpenSearch logging is off.
func NewEventsHandler(reader EventReader, validate *validator.Validate) *EventsHandler {
	return &EventsHandler{reader: reader, validate: validate}
}

// GetTransactionEvents lists a transaction's protocol events, newest first
func (h *EventsHandler) GetTransactionEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, ok := transactionIDParam(w, r, h.validate)
	if !ok {
		return
	}
	if h.reader == nil {
		response.Error(w, http.StatusServiceUnavailable, "Event logging is not enabled", nil)
		return
	}

	events, err := h.reader.GetTransactionEvents(ctx, id)
	if err != nil {
		logger.Error("Protocol events could not be read", err, logger.LogContext{TransactionID: id})
		response.Error(w, http.StatusBadGateway, "Failed to read events", nil)
		return
	}
	if events == nil {
		events = []opensearch.ProtocolEvent{}
	}
	response.Success(w, http.StatusOK, "Events retrieved", events)
}
