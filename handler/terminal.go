package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/vpos/infra/middle"
	"github.com/mstgnz/vpos/infra/response"
	"github.com/mstgnz/vpos/infra/storage"
	"github.com/mstgnz/vpos/provider"
)

// ProviderResolver maps a provider id or bank alias to its adapter id
type ProviderResolver interface {
	Resolve(name string) (string, provider.Factory, error)
}

// TerminalHandler provisions terminals and partner commission overrides
type TerminalHandler struct {
	store     storage.Store
	encrypter storage.Encrypter
	providers ProviderResolver
}

// NewTerminalHandler creates a new terminal handler
func NewTerminalHandler(store storage.Store, encrypter storage.Encrypter, providers ProviderResolver) *TerminalHandler {
	return &TerminalHandler{
		store:     store,
		encrypter: encrypter,
		providers: providers,
	}
}

// terminalView never exposes credentials, sealed or not
type terminalView struct {
	*provider.Terminal
	Credentials    string `json:"credentials,omitempty"`
	HasCredentials bool   `json:"hasCredentials"`
}

func viewTerminal(t *provider.Terminal) terminalView {
	return terminalView{Terminal: t, HasCredentials: t.Credentials != ""}
}

// SaveTerminal creates or replaces a terminal. Credentials are sealed
// before they are stored.
func (h *TerminalHandler) SaveTerminal(w http.ResponseWriter, r *http.Request) {
	var req storage.SeedTerminal
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if scoped := middle.GetPartnerIDFromContext(r.Context()); scoped != "" {
		req.PartnerID = scoped
	}
	if strings.TrimSpace(req.ID) == "" {
		response.Fail(w, http.StatusBadRequest, string(provider.KindValidation), "INVALID_ID", "terminal id is required", nil)
		return
	}

	id, _, err := h.providers.Resolve(req.Provider)
	if err != nil {
		writeError(w, err)
		return
	}
	req.Provider = id

	// keep credentials when an update leaves them out
	if len(req.Credentials) == 0 {
		if existing, err := h.store.GetTerminal(r.Context(), req.ID); err == nil && existing.Credentials != "" {
			sealed, _ := json.Marshal(existing.Credentials)
			req.Credentials = sealed
		}
	}

	if _, _, err := storage.ApplySeed(r.Context(), h.store, storage.Seed{Terminals: []storage.SeedTerminal{req}}, h.encrypter); err != nil {
		writeStoreError(w, err)
		return
	}

	saved, err := h.store.GetTerminal(r.Context(), req.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Terminal saved", viewTerminal(saved))
}

// GetTerminal returns one terminal without its credentials
func (h *TerminalHandler) GetTerminal(w http.ResponseWriter, r *http.Request) {
	t, ok := h.terminal(w, r)
	if !ok {
		return
	}
	response.Success(w, http.StatusOK, "Terminal retrieved", viewTerminal(t))
}

// ListTerminals lists the terminals of a partner (?partnerId=), or the
// platform's own terminals when none is given
func (h *TerminalHandler) ListTerminals(w http.ResponseWriter, r *http.Request) {
	partnerID := r.URL.Query().Get("partnerId")
	if scoped := middle.GetPartnerIDFromContext(r.Context()); scoped != "" {
		partnerID = scoped
	}

	terminals, err := h.store.ListTerminals(r.Context(), partnerID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	views := make([]terminalView, 0, len(terminals))
	for _, t := range terminals {
		views = append(views, viewTerminal(t))
	}
	response.Success(w, http.StatusOK, "Terminals retrieved", views)
}

// SaveOverride stores a partner commission override
func (h *TerminalHandler) SaveOverride(w http.ResponseWriter, r *http.Request) {
	var o provider.CommissionOverride
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if scoped := middle.GetPartnerIDFromContext(r.Context()); scoped != "" {
		o.PartnerID = scoped
	}
	if o.PartnerID == "" || len(o.Currency) != 3 {
		response.Fail(w, http.StatusBadRequest, string(provider.KindValidation), "INVALID_OVERRIDE", "override needs a partner and a 3 letter currency", nil)
		return
	}

	if _, _, err := storage.ApplySeed(r.Context(), h.store, storage.Seed{Overrides: []*provider.CommissionOverride{&o}}, h.encrypter); err != nil {
		writeStoreError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Override saved", o)
}

func (h *TerminalHandler) terminal(w http.ResponseWriter, r *http.Request) (*provider.Terminal, bool) {
	id := chi.URLParam(r, "terminalID")
	t, err := h.store.GetTerminal(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return nil, false
	}
	if scoped := middle.GetPartnerIDFromContext(r.Context()); scoped != "" && t.PartnerID != scoped {
		writeStoreError(w, storage.ErrNotFound)
		return nil, false
	}
	return t, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		response.Fail(w, http.StatusNotFound, string(provider.KindNotFound), "TERMINAL_NOT_FOUND", "terminal not found", nil)
	case errors.Is(err, storage.ErrDuplicate):
		response.Fail(w, http.StatusConflict, string(provider.KindStateConflict), "DUPLICATE", err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		response.Error(w, http.StatusGatewayTimeout, "Storage timeout", nil)
	default:
		writeError(w, err)
	}
}
