// Package payment is the transaction lifecycle engine. It routes charges to
// terminals, drives bank adapters and persists every status change as one
// typed update.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mstgnz/vpos/bin"
	"github.com/mstgnz/vpos/commission"
	"github.com/mstgnz/vpos/infra/config"
	"github.com/mstgnz/vpos/infra/crypto"
	"github.com/mstgnz/vpos/infra/logger"
	"github.com/mstgnz/vpos/infra/metrics"
	"github.com/mstgnz/vpos/infra/storage"
	"github.com/mstgnz/vpos/provider"
	"github.com/mstgnz/vpos/routing"
)

// BinResolver resolves card prefixes
type BinResolver interface {
	Resolve(ctx context.Context, pan string) (*provider.BinInfo, error)
}

// TerminalSelector picks a terminal for a charge
type TerminalSelector interface {
	Select(ctx context.Context, req routing.Request) (*routing.Selection, error)
}

// HTTPClientFactory builds the outbound bank client of a terminal
type HTTPClientFactory func(t *provider.Terminal) *provider.ProviderHTTPClient

// Options wires a Service. Store, Resolver and Cipher are required.
type Options struct {
	Store         storage.Store
	Registry      *provider.ProviderRegistry
	Resolver      BinResolver
	Router        TerminalSelector
	Cipher        *crypto.Cipher
	HTTPClient    HTTPClientFactory
	BaseURL       string
	BankTimeout   time.Duration
	Clock         func() time.Time
	Location      *time.Location
	LocalCountry  string
	LocalCurrency string
	Events        EventSink
	Validator     *validator.Validate
}

// Service exposes the public payment operations
type Service struct {
	store     storage.Store
	registry  *provider.ProviderRegistry
	resolver  BinResolver
	router    TerminalSelector
	cipher    *crypto.Cipher
	http      HTTPClientFactory
	baseURL   string
	clock     func() time.Time
	location  *time.Location
	local     *config.AppConfig
	events    EventSink
	validator *validator.Validate
}

// NewService creates the engine. Missing optional collaborators get the
// process defaults.
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil || opts.Resolver == nil || opts.Cipher == nil {
		return nil, errors.New("payment: store, resolver and cipher are required")
	}
	s := &Service{
		store:     opts.Store,
		registry:  opts.Registry,
		resolver:  opts.Resolver,
		router:    opts.Router,
		cipher:    opts.Cipher,
		http:      opts.HTTPClient,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		clock:     opts.Clock,
		location:  opts.Location,
		events:    opts.Events,
		validator: opts.Validator,
		local: &config.AppConfig{
			LocalCountry:  strings.ToUpper(opts.LocalCountry),
			LocalCurrency: strings.ToUpper(opts.LocalCurrency),
		},
	}
	if s.registry == nil {
		s.registry = provider.DefaultRegistry
	}
	if s.router == nil {
		s.router = routing.NewRouter(opts.Store)
	}
	if s.http == nil {
		timeout := opts.BankTimeout
		s.http = func(t *provider.Terminal) *provider.ProviderHTTPClient {
			return provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig(t.Provider, t.TestMode, timeout))
		}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.events == nil {
		s.events = NopSink{}
	}
	if s.validator == nil {
		s.validator = config.App().Validator
	}
	if s.local.LocalCountry == "" {
		s.local.LocalCountry = "TR"
	}
	if s.local.LocalCurrency == "" {
		s.local.LocalCurrency = "TRY"
	}
	return s, nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// FormURL is where the cardholder is sent to start 3-D authentication
func (s *Service) FormURL(id string) string {
	return s.baseURL + "/payment/" + id + "/form"
}

// CallbackURL is the public post-back target of a transaction
func (s *Service) CallbackURL(id string) string {
	return s.baseURL + "/payment/" + id + "/callback"
}

func (s *Service) validate(v any) error {
	if err := s.validator.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return provider.NewError(provider.KindValidation, "INVALID_"+strings.ToUpper(f.Field()),
				fmt.Sprintf("%s failed the %s check", f.Namespace(), f.Tag()))
		}
		return provider.Wrap(provider.KindValidation, err, "invalid request")
	}
	return nil
}

func (s *Service) loadTransaction(ctx context.Context, id string) (*provider.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, provider.NewError(provider.KindNotFound, "TRANSACTION_NOT_FOUND", "transaction "+id+" does not exist")
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	return tx, nil
}

func (s *Service) loadTerminal(ctx context.Context, id string) (*provider.Terminal, error) {
	t, err := s.store.GetTerminal(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, provider.NewError(provider.KindNotFound, "TERMINAL_NOT_FOUND", "terminal "+id+" does not exist")
	}
	if err != nil {
		return nil, fmt.Errorf("load terminal: %w", err)
	}
	return t, nil
}

// credentials decrypts a terminal's credential bundle. Plain JSON is
// accepted for bundles written before encryption was enabled.
func (s *Service) credentials(t *provider.Terminal) (provider.Credentials, error) {
	creds := provider.Credentials{}
	raw := strings.TrimSpace(t.Credentials)
	if raw == "" {
		return creds, nil
	}
	if crypto.IsEncrypted(raw) {
		if err := s.cipher.DecryptJSON(raw, &creds); err != nil {
			return nil, provider.Wrap(provider.KindInternal, err, "terminal credentials cannot be decrypted")
		}
		return creds, nil
	}
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, provider.Wrap(provider.KindInternal, err, "terminal credentials are not valid JSON")
	}
	return creds, nil
}

// adapter builds the session and adapter for one call against tx
func (s *Service) adapter(tx *provider.Transaction, t *provider.Terminal, card provider.Card) (provider.Adapter, *provider.Session, error) {
	creds, err := s.credentials(t)
	if err != nil {
		return nil, nil, err
	}
	sess := &provider.Session{
		Tx:          tx,
		Terminal:    t,
		Card:        card,
		Credentials: creds,
		CallbackURL: s.CallbackURL(tx.ID),
		HTTP:        s.http(t),
		Now:         s.clock,
	}
	a, err := s.registry.New(sess)
	if err != nil {
		return nil, nil, err
	}
	return a, sess, nil
}

func unsupported(t *provider.Terminal, op provider.Capability) error {
	return provider.NewError(provider.KindProviderUnsupported, provider.CodeNotSupported,
		fmt.Sprintf("provider %s does not support %s", t.Provider, op))
}

func (s *Service) sealCard(c provider.Card) (provider.StoredCard, error) {
	stored := provider.StoredCard{
		Masked: crypto.MaskCardNumber(c.Number),
		Bin:    binPrefix(c.Number),
	}
	var err error
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&stored.Holder, c.Holder},
		{&stored.Number, c.Number},
		{&stored.ExpiryMonth, c.ExpiryMonth},
		{&stored.ExpiryYear, c.ExpiryYear},
		{&stored.CVV, c.CVV},
	} {
		if *f.dst, err = s.cipher.Encrypt(f.src); err != nil {
			return provider.StoredCard{}, fmt.Errorf("encrypt card: %w", err)
		}
	}
	return stored, nil
}

// openCard decrypts the stored card. Fields that cannot be decrypted come
// back empty; a cleared CVV is expected after the authorization attempt.
func (s *Service) openCard(c provider.StoredCard) provider.Card {
	open := func(v string) string {
		plain, _ := s.cipher.Decrypt(v)
		return plain
	}
	return provider.Card{
		Holder:      open(c.Holder),
		Number:      open(c.Number),
		ExpiryMonth: open(c.ExpiryMonth),
		ExpiryYear:  open(c.ExpiryYear),
		CVV:         open(c.CVV),
	}
}

func binPrefix(pan string) string {
	digits := make([]byte, 0, 6)
	for i := 0; i < len(pan) && len(digits) < 6; i++ {
		if pan[i] >= '0' && pan[i] <= '9' {
			digits = append(digits, pan[i])
		}
	}
	return string(digits)
}

// update persists upd while tx is still in expect and mirrors the new log
// entries to the event sink
func (s *Service) update(ctx context.Context, tx *provider.Transaction, expect provider.Status, upd storage.TransactionUpdate) (*provider.Transaction, error) {
	if upd.Status != nil && expect != "" && !CanTransition(expect, *upd.Status) {
		return nil, provider.NewError(provider.KindStateConflict, "INVALID_TRANSITION",
			fmt.Sprintf("transaction cannot move from %s to %s", expect, *upd.Status))
	}
	updated, err := s.store.UpdateTransaction(ctx, tx.ID, expect, upd)
	switch {
	case errors.Is(err, storage.ErrStatusConflict):
		return nil, provider.NewError(provider.KindStateConflict, "STATUS_CHANGED",
			fmt.Sprintf("transaction %s is no longer %s", tx.ID, expect))
	case err != nil:
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	if len(upd.AppendLogs) > 0 {
		s.events.Publish(ctx, updated, upd.AppendLogs)
	}
	return updated, nil
}

// begin moves a freshly created transaction to processing
func (s *Service) begin(ctx context.Context, tx *provider.Transaction, res *provider.Result, logs []provider.LogEntry) (*provider.Transaction, error) {
	status := provider.StatusProcessing
	upd := storage.TransactionUpdate{Status: &status, AppendLogs: logs}
	if res != nil && res.State != nil {
		upd.ThreeD = res.State
	}
	if orderID := firstOrderID(tx, res); orderID != "" {
		upd.OrderID = &orderID
	}
	return s.update(ctx, tx, provider.StatusPending, upd)
}

// complete writes the outcome of a provisioning call. CVV is cleared and,
// for captured charges, commission is stored in the same update.
func (s *Service) complete(ctx context.Context, tx *provider.Transaction, t *provider.Terminal, res *provider.Result, logs []provider.LogEntry) (*provider.Transaction, error) {
	now := s.now()
	status := provider.StatusFailed
	if res.Success() {
		status = provider.StatusSuccess
	}
	result := res.ToTransactionResult()
	result.Raw = provider.SanitizeString(result.Raw)

	upd := storage.TransactionUpdate{
		Status:      &status,
		Result:      result,
		ClearCVV:    true,
		AppendLogs:  logs,
		CompletedAt: &now,
	}
	if orderID := firstOrderID(tx, res); orderID != "" {
		upd.OrderID = &orderID
	}
	if res.Success() && charges(tx.Operation) {
		// the bank already approved; a missing breakdown must not leave the
		// transaction processing
		c, err := s.commission(ctx, tx, t, now)
		if err != nil {
			logger.WithTransaction(tx.ID, tx.Provider).AddField("partner_id", tx.PartnerID).Error("Commission not computed", err)
		}
		upd.Commission = c
	}

	updated, err := s.update(ctx, tx, provider.StatusProcessing, upd)
	if err != nil {
		return nil, err
	}
	metrics.RecordTransaction(tx.Provider, string(tx.Operation), string(status), string(res.ErrorKind))

	lc := logger.LogContext{
		PartnerID:     tx.PartnerID,
		Provider:      tx.Provider,
		TransactionID: tx.ID,
		Fields: map[string]any{
			"operation": string(tx.Operation),
			"order_id":  updated.OrderID,
		},
	}
	if res.Success() {
		logger.Info("Transaction completed", lc)
	} else {
		lc.Fields["error_kind"] = string(res.ErrorKind)
		lc.Fields["error_code"] = res.ErrorCode
		logger.Warn("Transaction failed", lc)
	}
	return updated, nil
}

// fail records a failure for a transaction that never reached processing
func (s *Service) fail(ctx context.Context, tx *provider.Transaction, res *provider.Result, logs []provider.LogEntry) (*provider.Transaction, error) {
	now := s.now()
	status := provider.StatusFailed
	result := res.ToTransactionResult()
	result.Raw = provider.SanitizeString(result.Raw)
	upd := storage.TransactionUpdate{
		Status:      &status,
		Result:      result,
		ClearCVV:    true,
		AppendLogs:  logs,
		CompletedAt: &now,
	}
	if orderID := firstOrderID(tx, res); orderID != "" {
		upd.OrderID = &orderID
	}
	updated, err := s.update(ctx, tx, provider.StatusPending, upd)
	if err != nil {
		return nil, err
	}
	metrics.RecordTransaction(tx.Provider, string(tx.Operation), string(status), string(res.ErrorKind))
	return updated, nil
}

func firstOrderID(tx *provider.Transaction, res *provider.Result) string {
	if tx.OrderID != "" {
		return tx.OrderID
	}
	if res != nil {
		return res.OrderID
	}
	return ""
}

// charges reports whether a successful operation moves money and so
// carries commission
func charges(op provider.Operation) bool {
	return op == provider.OperationPayment || op == provider.OperationPostAuth
}

func (s *Service) commission(ctx context.Context, tx *provider.Transaction, t *provider.Terminal, now time.Time) (*provider.Commission, error) {
	var override *provider.CommissionOverride
	if commission.OverrideApplies(tx, t) {
		overrides, err := s.store.FindOverrides(ctx, tx.PartnerID, tx.Currency)
		if err != nil {
			return nil, fmt.Errorf("load commission overrides: %w", err)
		}
		override = commission.SelectOverride(overrides, t.ID)
	}
	return commission.Calculate(tx, t, override, now), nil
}

// call runs an adapter operation and turns a returned error into a failed
// result, so transport and protocol errors end up on the transaction
func call(fn func() (*provider.Result, error)) *provider.Result {
	res, err := fn()
	if err != nil {
		return provider.FailedFromError(err)
	}
	if res == nil {
		return provider.FailedFromError(provider.NewError(provider.KindInternal, "EMPTY_RESULT", "adapter returned no result"))
	}
	return res
}

// newTransaction builds a pending record for terminal t
func (s *Service) newTransaction(t *provider.Terminal, op provider.Operation, model provider.PaymentModel) *provider.Transaction {
	now := s.now()
	return &provider.Transaction{
		ID:           uuid.NewString(),
		TerminalID:   t.ID,
		Provider:     t.Provider,
		BankCode:     t.BankCode,
		Operation:    op,
		PaymentModel: model,
		Status:       provider.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// sameDay reports whether a and b fall on the same calendar day in the
// business time zone
func (s *Service) sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(s.location).Date()
	by, bm, bd := b.In(s.location).Date()
	return ay == by && am == bm && ad == bd
}

// checkCurrency applies the domestic card rule
func (s *Service) checkCurrency(info *provider.BinInfo, currency string) error {
	return bin.AllowedCurrency(info, currency, s.local)
}
