package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/vpos/infra/logger"
	"github.com/mstgnz/vpos/infra/middle"
	"github.com/mstgnz/vpos/infra/response"
	"github.com/mstgnz/vpos/payment"
	"github.com/mstgnz/vpos/provider"
)

// PaymentServiceInterface defines the interface for payment operations
type PaymentServiceInterface interface {
	QueryBin(ctx context.Context, q payment.BinQuery) (*payment.BinQueryResult, error)
	CreatePayment(ctx context.Context, req payment.PaymentRequest) (*payment.PaymentResult, error)
	CreatePreAuth(ctx context.Context, req payment.PaymentRequest) (*payment.PaymentResult, error)
	CreatePostAuth(ctx context.Context, preAuthID string, req payment.PostAuthRequest) (*payment.PaymentResult, error)
	RefundPayment(ctx context.Context, id string) (*payment.PaymentResult, error)
	CancelPayment(ctx context.Context, id string) (*payment.PaymentResult, error)
	GetTransactionStatus(ctx context.Context, id string) (*payment.TransactionView, error)
	ListChildTransactions(ctx context.Context, id string) ([]*payment.TransactionView, error)
	QueryBankStatus(ctx context.Context, id string) (*payment.BankStatusResult, error)
	GetPosCapabilities(ctx context.Context, terminalID string) (*payment.PosCapabilities, error)
	GetPaymentForm(ctx context.Context, id string) (string, error)
	ProcessCallback(ctx context.Context, id string, data map[string]string) (*payment.CallbackResult, error)
}

// PaymentHandler handles payment related HTTP requests
type PaymentHandler struct {
	paymentService PaymentServiceInterface
	validate       *validator.Validate
	timeout        time.Duration
}

// NewPaymentHandler creates a new payment handler. timeout bounds each
// request including the bank round trip; zero means 60s.
func NewPaymentHandler(paymentService PaymentServiceInterface, validate *validator.Validate, timeout time.Duration) *PaymentHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PaymentHandler{
		paymentService: paymentService,
		validate:       validate,
		timeout:        timeout,
	}
}

// QueryBin handles card prefix lookups that precede a payment
func (h *PaymentHandler) QueryBin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req payment.BinQuery
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if !h.scopePartner(w, r, &req.PartnerID) {
		return
	}

	resp, err := h.paymentService.QueryBin(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, http.StatusOK, "BIN resolved", resp)
}

// ProcessPayment handles payment requests
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	h.charge(w, r, h.paymentService.CreatePayment)
}

// ProcessPreAuth handles pre-authorization requests
func (h *PaymentHandler) ProcessPreAuth(w http.ResponseWriter, r *http.Request) {
	h.charge(w, r, h.paymentService.CreatePreAuth)
}

func (h *PaymentHandler) charge(w http.ResponseWriter, r *http.Request, create func(context.Context, payment.PaymentRequest) (*payment.PaymentResult, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req payment.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if !h.scopePartner(w, r, &req.PartnerID) {
		return
	}

	resp, err := create(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, resp, "Payment processed")
}

// CapturePreAuth handles post-authorization of a reserved amount
func (h *PaymentHandler) CapturePreAuth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}

	var req payment.PostAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	resp, err := h.paymentService.CreatePostAuth(ctx, id, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, resp, "Pre-authorization captured")
}

// RefundPayment handles full refunds
func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	h.followUp(w, r, h.paymentService.RefundPayment, "Payment refunded")
}

// CancelPayment handles same-day voids
func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	h.followUp(w, r, h.paymentService.CancelPayment, "Payment cancelled")
}

func (h *PaymentHandler) followUp(w http.ResponseWriter, r *http.Request, run func(context.Context, string) (*payment.PaymentResult, error), message string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}

	resp, err := run(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, resp, message)
}

// GetPaymentStatus handles payment status requests
func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}

	resp, err := h.paymentService.GetTransactionStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, http.StatusOK, "Payment status retrieved", resp)
}

// ListChildren handles listing of refunds, cancels and captures
func (h *PaymentHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}

	resp, err := h.paymentService.ListChildTransactions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, http.StatusOK, "Child transactions retrieved", resp)
}

// GetBankStatus asks the bank for its view of the order
func (h *PaymentHandler) GetBankStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}

	resp, err := h.paymentService.QueryBankStatus(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, http.StatusOK, "Bank status retrieved", resp)
}

// GetCapabilities reports what a terminal's adapter supports
func (h *PaymentHandler) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	terminalID := chi.URLParam(r, "terminalID")
	if terminalID == "" {
		response.Error(w, http.StatusBadRequest, "Missing terminal ID", nil)
		return
	}

	resp, err := h.paymentService.GetPosCapabilities(r.Context(), terminalID)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, http.StatusOK, "Capabilities retrieved", resp)
}

// PaymentForm serves the self-submitting 3-D form the customer's browser
// is sent to
func (h *PaymentHandler) PaymentForm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}

	html, err := h.paymentService.GetPaymentForm(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, html)
}

// HandleCallback receives the bank's 3-D post-back. When the transaction
// carries a return URL the browser is redirected there with the outcome
// in the query string; otherwise the outcome is returned as JSON.
func (h *PaymentHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}

	data, err := callbackData(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid callback data", err)
		return
	}

	resp, err := h.paymentService.ProcessCallback(ctx, id, data)
	if err != nil {
		logger.Error("Callback processing failed", err, logger.LogContext{
			TransactionID: id,
			RequestID:     middle.GetRequestIDFromContext(r.Context()),
		})
		writeError(w, err)
		return
	}

	if resp.ReturnURL != "" {
		if target, err := returnURL(resp); err == nil {
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		logger.Warn("Invalid return URL on transaction", logger.LogContext{
			TransactionID: id,
			Fields:        map[string]any{"return_url": resp.ReturnURL},
		})
	}

	if resp.Success {
		response.Success(w, http.StatusOK, resp.Message, resp)
		return
	}
	response.Fail(w, http.StatusOK, "", resp.ErrorCode, resp.Message, resp)
}

func (h *PaymentHandler) transactionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	return transactionIDParam(w, r, h.validate)
}

// transactionIDParam reads and checks the {id} path parameter. Ids are
// uuids, so anything else is reported as not found without a lookup.
func transactionIDParam(w http.ResponseWriter, r *http.Request, validate *validator.Validate) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.Error(w, http.StatusBadRequest, "Missing transaction ID", nil)
		return "", false
	}
	if err := validate.Var(id, "uuid"); err != nil {
		response.Fail(w, http.StatusNotFound, string(provider.KindNotFound), "TRANSACTION_NOT_FOUND", "transaction "+id+" not found", nil)
		return "", false
	}
	return id, true
}

// scopePartner applies the partner the API key acts for. A body naming a
// different partner is refused.
func (h *PaymentHandler) scopePartner(w http.ResponseWriter, r *http.Request, partnerID *string) bool {
	scoped := middle.GetPartnerIDFromContext(r.Context())
	if scoped == "" {
		return true
	}
	if *partnerID != "" && *partnerID != scoped {
		response.Error(w, http.StatusForbidden, "Partner mismatch", fmt.Errorf("request names partner %s", *partnerID))
		return false
	}
	*partnerID = scoped
	return true
}

// callbackData flattens a form, multipart or JSON post-back (plus the
// query string) into the first value per key
func callbackData(r *http.Request) (map[string]string, error) {
	data := make(map[string]string)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		for k, v := range raw {
			switch val := v.(type) {
			case string:
				data[k] = val
			case float64:
				data[k] = strconv.FormatFloat(val, 'f', -1, 64)
			case bool:
				data[k] = strconv.FormatBool(val)
			case nil:
			default:
				b, _ := json.Marshal(val)
				data[k] = string(b)
			}
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			return nil, err
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
	}

	for k, v := range r.Form {
		if _, ok := data[k]; !ok && len(v) > 0 {
			data[k] = v[0]
		}
	}
	for k, v := range r.URL.Query() {
		if _, ok := data[k]; !ok && len(v) > 0 {
			data[k] = v[0]
		}
	}
	return data, nil
}

func returnURL(resp *payment.CallbackResult) (string, error) {
	u, err := url.Parse(resp.ReturnURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("transactionId", resp.TransactionID)
	q.Set("status", string(resp.Status))
	q.Set("success", strconv.FormatBool(resp.Success))
	if resp.ErrorCode != "" {
		q.Set("errorCode", resp.ErrorCode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind provider.Kind) int {
	switch kind {
	case provider.KindValidation:
		return http.StatusBadRequest
	case provider.KindNotFound:
		return http.StatusNotFound
	case provider.KindStateConflict:
		return http.StatusConflict
	case provider.KindTerminalUnavailable, provider.KindProviderUnsupported,
		provider.KindBankRejected, provider.KindThreeDFailed, provider.KindDecryptError:
		return http.StatusUnprocessableEntity
	case provider.KindNetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := provider.KindOf(err)
	status := statusFor(kind)
	message := provider.MessageOf(err)
	if status == http.StatusInternalServerError {
		logger.Error("Unhandled payment error", err)
		message = "internal error"
	}
	response.Fail(w, status, string(kind), provider.CodeOf(err), message, nil)
}

// writeResult writes an operation result. A failed operation still created
// a transaction, so its record is returned with the failure status.
func writeResult(w http.ResponseWriter, resp *payment.PaymentResult, message string) {
	if resp.Status != provider.StatusFailed {
		response.Success(w, http.StatusOK, message, resp)
		return
	}
	status := http.StatusUnprocessableEntity
	if resp.ErrorKind == provider.KindNetworkError {
		status = http.StatusBadGateway
	}
	response.Fail(w, status, string(resp.ErrorKind), resp.ErrorCode, resp.ErrorMessage, resp)
}
