package provider

import (
	"strings"
	"sync"
	"time"
)

// Session is everything an adapter needs for one transaction: the record,
// its terminal, decrypted secrets and the outbound HTTP client. Protocol
// events are collected on the session and drained by the engine.
type Session struct {
	Tx          *Transaction
	Terminal    *Terminal
	Card        Card
	Credentials Credentials
	CallbackURL string
	HTTP        *ProviderHTTPClient
	Now         func() time.Time

	mu   sync.Mutex
	logs []LogEntry
}

// Clock returns the session time, time.Now when unset
func (s *Session) Clock() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Log records a protocol event. Request and response are sanitized before
// they are kept.
func (s *Session) Log(eventType string, request, response any) {
	entry := LogEntry{
		Type:      eventType,
		Request:   SanitizeForLog(request),
		Response:  SanitizeForLog(response),
		Timestamp: s.Clock().UTC(),
	}
	s.mu.Lock()
	s.logs = append(s.logs, entry)
	s.mu.Unlock()
}

// DrainLogs returns and clears the collected events
func (s *Session) DrainLogs() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.logs
	s.logs = nil
	return logs
}

// Endpoint returns the terminal override for name, or the bank default for
// the terminal's mode.
func (s *Session) Endpoint(name, testURL, liveURL string) string {
	if s.Terminal != nil {
		if u, ok := s.Terminal.Endpoints[name]; ok && u != "" {
			return u
		}
		if !s.Terminal.TestMode {
			return liveURL
		}
	}
	return testURL
}

// OrderID returns the transaction's bank order id, building and storing it
// on first use so retries reuse the same order.
func (s *Session) OrderID(width int) string {
	if s.Tx.OrderID != "" {
		return s.Tx.OrderID
	}
	ref := s.Tx.ExternalID
	if ref == "" {
		ref = s.Tx.ID
	}
	s.Tx.OrderID = BuildOrderID(s.Clock(), ref, width)
	return s.Tx.OrderID
}

// Language returns the two letter UI language for bank pages
func (s *Session) Language() string {
	if strings.EqualFold(s.Tx.Currency, "TRY") {
		return "tr"
	}
	return "en"
}

// Credentials is a terminal's decrypted credential bundle. Key names are
// adapter specific.
type Credentials map[string]string

// Get returns the credential value, trimmed
func (c Credentials) Get(key string) string {
	return strings.TrimSpace(c[key])
}

// LoadState decodes the transaction's 3-D scratch state written by adapterID
func (s *Session) LoadState(adapterID string, v any) error {
	return s.Tx.ThreeD.Decode(adapterID, v)
}
