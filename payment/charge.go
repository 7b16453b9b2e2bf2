package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mstgnz/vpos/commission"
	"github.com/mstgnz/vpos/infra/logger"
	"github.com/mstgnz/vpos/infra/metrics"
	"github.com/mstgnz/vpos/infra/storage"
	"github.com/mstgnz/vpos/provider"
	"github.com/mstgnz/vpos/routing"
)

const ruleExplicit = "explicit"

// QueryBin resolves the card prefix, routes it and lists the installment
// options the chosen terminal offers for amount
func (s *Service) QueryBin(ctx context.Context, q BinQuery) (*BinQueryResult, error) {
	if err := s.validate(q); err != nil {
		return nil, err
	}
	if q.Amount.IsNegative() {
		return nil, provider.NewError(provider.KindValidation, "INVALID_AMOUNT", "amount cannot be negative")
	}
	currency := strings.ToUpper(q.Currency)

	info, err := s.resolver.Resolve(ctx, q.Bin)
	if err != nil {
		return nil, err
	}
	if err := s.checkCurrency(info, currency); err != nil {
		return nil, err
	}

	sel, err := s.router.Select(ctx, routing.Request{
		PartnerID:  q.PartnerID,
		Currency:   currency,
		Bin:        info,
		NoFallback: q.NoFallback,
	})
	if err != nil {
		return nil, err
	}

	t := sel.Terminal
	pos := PosSummary{
		TerminalID:   t.ID,
		Name:         t.Name,
		BankCode:     t.BankCode,
		Provider:     t.Provider,
		PaymentModel: t.Model(),
		Rule:         string(sel.Rule),
		Fallback:     sel.Fallback,
	}
	if caps, err := s.capabilities(t); err == nil {
		pos.Capabilities = &caps
	} else {
		logger.Debug("Capabilities unavailable for routed terminal", logger.LogContext{
			Provider: t.Provider,
			Fields:   map[string]any{"terminal_id": t.ID, "error": err.Error()},
		})
	}

	return &BinQueryResult{
		Card:         info,
		Pos:          pos,
		Installments: commission.InstallmentPlan(t, q.Amount, info),
	}, nil
}

// CreatePayment starts a payment. A 3-D payment comes back processing with
// the form URL the cardholder must visit; a direct payment comes back
// settled.
func (s *Service) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	return s.charge(ctx, req, provider.OperationPayment)
}

// CreatePreAuth reserves funds on the card without capturing them
func (s *Service) CreatePreAuth(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	req.Model = provider.ModelRegular
	return s.charge(ctx, req, provider.OperationPreAuth)
}

func (s *Service) charge(ctx context.Context, req PaymentRequest, op provider.Operation) (*PaymentResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, provider.NewError(provider.KindValidation, "INVALID_AMOUNT", "amount must be greater than zero")
	}
	currency := strings.ToUpper(req.Currency)
	installment := req.Installment
	if installment < 1 {
		installment = 1
	}

	info, err := s.resolver.Resolve(ctx, req.Card.Number)
	if err != nil {
		return nil, err
	}
	if err := s.checkCurrency(info, currency); err != nil {
		return nil, err
	}

	t, err := s.terminalFor(ctx, req.TerminalID, req.PartnerID, currency, info, req.NoFallback)
	if err != nil {
		return nil, err
	}
	if err := commission.CheckInstallment(t, req.Amount, info, installment); err != nil {
		return nil, err
	}

	tx := s.newTransaction(t, op, "")
	tx.PartnerID = req.PartnerID
	tx.ExternalID = req.ExternalID
	tx.Amount = req.Amount.Round(2)
	tx.Currency = currency
	tx.Installment = installment
	tx.BinInfo = info
	tx.Customer = req.Customer
	tx.ReturnURL = req.ReturnURL

	card := req.Card.card()
	a, sess, err := s.adapter(tx, t, card)
	if err != nil {
		return nil, err
	}
	model, err := chooseModel(t, a, req.Model, op)
	if err != nil {
		return nil, err
	}
	tx.PaymentModel = model

	if tx.Card, err = s.sealCard(card); err != nil {
		return nil, err
	}
	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	metrics.RecordTransaction(tx.Provider, string(op), string(provider.StatusPending), "")

	if model.Is3D() {
		return s.startThreeD(ctx, tx, a, sess)
	}
	return s.direct(ctx, tx, t, a, sess)
}

// terminalFor returns the pinned terminal when one is given, otherwise the
// router's choice
func (s *Service) terminalFor(ctx context.Context, terminalID, partnerID, currency string, info *provider.BinInfo, noFallback bool) (*provider.Terminal, error) {
	if terminalID == "" {
		sel, err := s.router.Select(ctx, routing.Request{
			PartnerID:  partnerID,
			Currency:   currency,
			Bin:        info,
			NoFallback: noFallback,
		})
		if err != nil {
			return nil, err
		}
		return sel.Terminal, nil
	}

	t, err := s.loadTerminal(ctx, terminalID)
	if err != nil {
		return nil, err
	}
	switch {
	case !t.Active:
		return nil, provider.NewError(provider.KindTerminalUnavailable, "TERMINAL_INACTIVE", "terminal "+t.ID+" is not active")
	case !t.SupportsCurrency(currency):
		return nil, provider.NewError(provider.KindTerminalUnavailable, "CURRENCY_NOT_SUPPORTED",
			fmt.Sprintf("terminal %s cannot charge %s", t.ID, currency))
	case !t.PlatformOwned() && t.PartnerID != partnerID:
		return nil, provider.NewError(provider.KindTerminalUnavailable, "TERMINAL_NOT_OWNED", "terminal "+t.ID+" belongs to another partner")
	case t.PlatformOwned() && partnerID != "" && noFallback:
		return nil, provider.NewError(provider.KindTerminalUnavailable, "TERMINAL_NOT_OWNED", "platform terminals are excluded for this charge")
	}
	return t, nil
}

// chooseModel settles the payment model of a charge and checks the adapter
// can run it
func chooseModel(t *provider.Terminal, a provider.Adapter, requested provider.PaymentModel, op provider.Operation) (provider.PaymentModel, error) {
	caps := a.Capabilities()

	if op == provider.OperationPreAuth {
		if !caps.Supports(provider.CapPreAuth) || !implements(a, provider.CapPreAuth) {
			return "", unsupported(t, provider.CapPreAuth)
		}
		return provider.ModelRegular, nil
	}

	model := t.Model()
	if requested != "" && requested != model {
		if requested == provider.ModelRegular && !t.AllowDirect {
			return "", provider.NewError(provider.KindValidation, "DIRECT_NOT_ALLOWED", "terminal "+t.ID+" requires 3-D Secure")
		}
		model = requested
	}

	if model == provider.ModelRegular {
		if !caps.Supports(provider.CapPaymentDirect) || !implements(a, provider.CapPaymentDirect) {
			return "", unsupported(t, provider.CapPaymentDirect)
		}
		return model, nil
	}
	if !caps.Supports(provider.CapPayment3D) || !caps.SupportsModel(model) {
		return "", provider.NewError(provider.KindProviderUnsupported, provider.CodeNotSupported,
			fmt.Sprintf("provider %s does not support the %s payment model", t.Provider, model))
	}
	return model, nil
}

// implements reports whether the adapter has the method behind an optional
// capability
func implements(a provider.Adapter, c provider.Capability) bool {
	var ok bool
	switch c {
	case provider.CapPaymentDirect:
		_, ok = a.(provider.DirectPayer)
	case provider.CapRefund:
		_, ok = a.(provider.Refunder)
	case provider.CapCancel:
		_, ok = a.(provider.Canceller)
	case provider.CapStatus:
		_, ok = a.(provider.StatusQuerier)
	case provider.CapPreAuth:
		_, ok = a.(provider.PreAuthorizer)
	case provider.CapPostAuth:
		_, ok = a.(provider.PostAuthorizer)
	default:
		ok = true
	}
	return ok
}

func (s *Service) startThreeD(ctx context.Context, tx *provider.Transaction, a provider.Adapter, sess *provider.Session) (*PaymentResult, error) {
	res := call(func() (*provider.Result, error) { return a.Initialize(ctx) })
	logs := sess.DrainLogs()

	if res.Status != provider.StatusProcessing {
		failed, err := s.fail(ctx, tx, res, logs)
		if err != nil {
			return nil, err
		}
		return resultOf(failed), nil
	}

	updated, err := s.begin(ctx, tx, res, logs)
	if err != nil {
		return nil, err
	}
	r := resultOf(updated)
	r.FormURL = s.FormURL(tx.ID)
	return r, nil
}

func (s *Service) direct(ctx context.Context, tx *provider.Transaction, t *provider.Terminal, a provider.Adapter, sess *provider.Session) (*PaymentResult, error) {
	if _, err := s.begin(ctx, tx, nil, nil); err != nil {
		return nil, err
	}

	res := call(func() (*provider.Result, error) {
		if tx.Operation == provider.OperationPreAuth {
			return a.(provider.PreAuthorizer).PreAuth(ctx)
		}
		return a.(provider.DirectPayer).DirectPayment(ctx)
	})

	updated, err := s.complete(ctx, tx, t, res, sess.DrainLogs())
	if err != nil {
		return nil, err
	}
	return resultOf(updated), nil
}

// GetPaymentForm renders the page that sends the cardholder to the bank.
// It is only available while the transaction waits for its callback.
func (s *Service) GetPaymentForm(ctx context.Context, id string) (string, error) {
	tx, err := s.loadTransaction(ctx, id)
	if err != nil {
		return "", err
	}
	if tx.Status != provider.StatusProcessing || !tx.PaymentModel.Is3D() || tx.ThreeD == nil || tx.CallbackAt != nil {
		return "", provider.NewError(provider.KindStateConflict, "FORM_UNAVAILABLE",
			fmt.Sprintf("transaction %s is %s and has no pending 3-D form", id, tx.Status))
	}
	t, err := s.loadTerminal(ctx, tx.TerminalID)
	if err != nil {
		return "", err
	}

	a, sess, err := s.adapter(tx, t, s.openCard(tx.Card))
	if err != nil {
		return "", err
	}
	html, err := a.FormHTML(ctx)
	if err != nil {
		return "", err
	}
	if logs := sess.DrainLogs(); len(logs) > 0 {
		if _, err := s.update(ctx, tx, provider.StatusProcessing, storage.TransactionUpdate{AppendLogs: logs}); err != nil {
			return "", err
		}
	}
	return html, nil
}

// ProcessCallback verifies the bank's 3-D post-back and provisions the
// charge. Only the first delivery for a processing transaction does any
// work; later ones are acknowledged with the current status.
func (s *Service) ProcessCallback(ctx context.Context, id string, data map[string]string) (*CallbackResult, error) {
	tx, err := s.loadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != provider.StatusProcessing {
		metrics.RecordCallback(tx.Provider, true)
		return s.acknowledge(tx), nil
	}

	claimed, err := s.store.ClaimCallback(ctx, id, s.now())
	if errors.Is(err, storage.ErrAlreadyClaimed) || errors.Is(err, storage.ErrStatusConflict) {
		metrics.RecordCallback(tx.Provider, true)
		current, err := s.loadTransaction(ctx, id)
		if err != nil {
			return nil, err
		}
		return s.acknowledge(current), nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim callback: %w", err)
	}
	metrics.RecordCallback(claimed.Provider, false)

	var (
		res  *provider.Result
		logs []provider.LogEntry
	)
	t, err := s.loadTerminal(ctx, claimed.TerminalID)
	if err == nil {
		var a provider.Adapter
		var sess *provider.Session
		if a, sess, err = s.adapter(claimed, t, s.openCard(claimed.Card)); err == nil {
			res = call(func() (*provider.Result, error) { return a.ProcessCallback(ctx, data) })
			logs = sess.DrainLogs()
		}
	}
	if err != nil {
		res = provider.FailedFromError(err)
	}

	updated, err := s.complete(ctx, claimed, t, res, logs)
	if err != nil {
		return nil, err
	}
	return callbackResult(updated, false), nil
}

func (s *Service) acknowledge(tx *provider.Transaction) *CallbackResult {
	logger.Info("Duplicate callback acknowledged", logger.LogContext{
		Provider:      tx.Provider,
		TransactionID: tx.ID,
		Fields:        map[string]any{"status": string(tx.Status)},
	})
	return callbackResult(tx, true)
}

func callbackResult(tx *provider.Transaction, duplicate bool) *CallbackResult {
	r := &CallbackResult{
		TransactionID: tx.ID,
		Status:        tx.Status,
		Success:       tx.Status == provider.StatusSuccess,
		Duplicate:     duplicate,
		ReturnURL:     tx.ReturnURL,
	}
	switch {
	case r.Success:
		r.Message = "payment completed"
	case tx.Status == provider.StatusProcessing:
		r.Message = "payment is being processed"
	case tx.Result != nil:
		r.Message = tx.Result.ErrorMessage
		r.ErrorCode = tx.Result.ErrorCode
	default:
		r.Message = "payment " + string(tx.Status)
	}
	return r
}
