package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/mstgnz/vpos/infra/logger"
	"github.com/mstgnz/vpos/infra/storage"
	"github.com/mstgnz/vpos/provider"
	"github.com/shopspring/decimal"
)

// RefundPayment refunds a settled payment in full. The refund is its own
// child transaction; the parent becomes refunded when it succeeds.
func (s *Service) RefundPayment(ctx context.Context, id string) (*PaymentResult, error) {
	parent, err := s.loadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Refundable(parent) {
		return nil, provider.NewError(provider.KindStateConflict, "NOT_REFUNDABLE",
			fmt.Sprintf("%s transaction in status %s cannot be refunded", parent.Operation, parent.Status))
	}

	child, err := s.followUp(ctx, parent, provider.OperationRefund, parent.Amount, provider.CapRefund,
		func(a provider.Adapter) (*provider.Result, error) {
			return a.(provider.Refunder).Refund(ctx, parent)
		})
	if err != nil {
		return nil, err
	}

	if child.Status == provider.StatusSuccess {
		now := s.now()
		status := provider.StatusRefunded
		if err := s.settleParent(ctx, parent, child, storage.TransactionUpdate{Status: &status, RefundedAt: &now}); err != nil {
			return nil, err
		}
	}
	return resultOf(child), nil
}

// CancelPayment voids a settled transaction on the calendar day it was made
func (s *Service) CancelPayment(ctx context.Context, id string) (*PaymentResult, error) {
	parent, err := s.loadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Cancellable(parent) {
		return nil, provider.NewError(provider.KindStateConflict, "NOT_CANCELLABLE",
			fmt.Sprintf("%s transaction in status %s cannot be cancelled", parent.Operation, parent.Status))
	}
	if !s.sameDay(parent.CreatedAt, s.now()) {
		return nil, provider.NewError(provider.KindStateConflict, "CANCEL_WINDOW_CLOSED",
			"a transaction can only be cancelled on the day it was made; refund it instead")
	}

	child, err := s.followUp(ctx, parent, provider.OperationCancel, parent.Amount, provider.CapCancel,
		func(a provider.Adapter) (*provider.Result, error) {
			return a.(provider.Canceller).Cancel(ctx, parent)
		})
	if err != nil {
		return nil, err
	}

	if child.Status == provider.StatusSuccess {
		now := s.now()
		status := provider.StatusCancelled
		if err := s.settleParent(ctx, parent, child, storage.TransactionUpdate{Status: &status, CancelledAt: &now}); err != nil {
			return nil, err
		}
	}
	return resultOf(child), nil
}

// CreatePostAuth captures a successful pre-authorization. A pre-auth can be
// captured once; the capture amount may not exceed the reserved amount.
func (s *Service) CreatePostAuth(ctx context.Context, preAuthID string, req PostAuthRequest) (*PaymentResult, error) {
	parent, err := s.loadTransaction(ctx, preAuthID)
	if err != nil {
		return nil, err
	}
	if !Capturable(parent) {
		return nil, provider.NewError(provider.KindStateConflict, "NOT_CAPTURABLE",
			fmt.Sprintf("%s transaction in status %s cannot be captured", parent.Operation, parent.Status))
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = parent.Amount
	}
	if amount.IsNegative() || amount.GreaterThan(parent.Amount) {
		return nil, provider.NewError(provider.KindValidation, "INVALID_AMOUNT",
			"capture amount must be positive and at most "+parent.Amount.StringFixed(2))
	}

	child, err := s.followUp(ctx, parent, provider.OperationPostAuth, amount.Round(2), provider.CapPostAuth,
		func(a provider.Adapter) (*provider.Result, error) {
			return a.(provider.PostAuthorizer).PostAuth(ctx, parent)
		})
	if err != nil {
		return nil, err
	}

	if child.Status == provider.StatusSuccess {
		if err := s.settleParent(ctx, parent, child, storage.TransactionUpdate{}); err != nil {
			return nil, err
		}
	}
	return resultOf(child), nil
}

// followUp runs a referenced operation as a child of parent. The parent's
// own status is left to the caller.
func (s *Service) followUp(ctx context.Context, parent *provider.Transaction, op provider.Operation, amount decimal.Decimal, capability provider.Capability, run func(a provider.Adapter) (*provider.Result, error)) (*provider.Transaction, error) {
	children, err := s.store.ListChildren(ctx, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	for _, c := range children {
		if conflicts(op, c) {
			return nil, provider.NewError(provider.KindStateConflict, "CHILD_EXISTS",
				fmt.Sprintf("transaction %s already has a %s (%s, %s)", parent.ID, c.Operation, c.ID, c.Status))
		}
	}

	t, err := s.loadTerminal(ctx, parent.TerminalID)
	if err != nil {
		return nil, err
	}

	child := s.newTransaction(t, op, parent.PaymentModel)
	child.ParentID = parent.ID
	child.PartnerID = parent.PartnerID
	child.OrderID = parent.OrderID
	child.ExternalID = parent.ExternalID
	child.Amount = amount
	child.Currency = parent.Currency
	child.Installment = parent.Installment
	child.BinInfo = parent.BinInfo
	child.Customer = parent.Customer
	child.Card = parent.Card
	child.Card.CVV = ""

	card := s.openCard(parent.Card)
	card.CVV = ""
	a, sess, err := s.adapter(child, t, card)
	if err != nil {
		return nil, err
	}
	if !a.Capabilities().Supports(capability) || !implements(a, capability) {
		return nil, unsupported(t, capability)
	}

	slot := slotOf(op)
	if err := s.claimSlot(ctx, parent, slot, child.ID); err != nil {
		return nil, err
	}
	done, called, err := s.runChild(ctx, child, t, a, sess, run)
	// once the bank was called, only a recorded failure frees the slot
	if (err != nil && !called) || (err == nil && done.Status != provider.StatusSuccess) {
		if rerr := s.store.ReleaseChild(context.WithoutCancel(ctx), parent.ID, slot, child.ID); rerr != nil {
			logger.WithTransaction(parent.ID, parent.Provider).
				AddField("child_id", child.ID).
				Error("Child slot not released", rerr)
		}
	}
	return done, err
}

func (s *Service) runChild(ctx context.Context, child *provider.Transaction, t *provider.Terminal, a provider.Adapter, sess *provider.Session, run func(a provider.Adapter) (*provider.Result, error)) (*provider.Transaction, bool, error) {
	if err := s.store.CreateTransaction(ctx, child); err != nil {
		return nil, false, fmt.Errorf("create %s transaction: %w", child.Operation, err)
	}
	if _, err := s.begin(ctx, child, nil, nil); err != nil {
		return nil, false, err
	}

	res := call(func() (*provider.Result, error) { return run(a) })
	done, err := s.complete(ctx, child, t, res, sess.DrainLogs())
	return done, true, err
}

// slotOf names the parent slot a follow-up occupies. Refund and cancel
// share one; capture has its own.
func slotOf(op provider.Operation) string {
	if op == provider.OperationPostAuth {
		return "capture"
	}
	return "reversal"
}

// claimSlot reserves slot on the parent before the bank is called, so two
// concurrent follow-ups cannot both reach the adapter
func (s *Service) claimSlot(ctx context.Context, parent *provider.Transaction, slot, childID string) error {
	_, err := s.store.ClaimChild(ctx, parent.ID, slot, childID)
	switch {
	case errors.Is(err, storage.ErrSlotTaken):
		return provider.NewError(provider.KindStateConflict, "CHILD_EXISTS",
			fmt.Sprintf("transaction %s already has a %s in progress", parent.ID, slot))
	case errors.Is(err, storage.ErrStatusConflict):
		return provider.NewError(provider.KindStateConflict, "STATUS_CHANGED",
			fmt.Sprintf("transaction %s is no longer %s", parent.ID, provider.StatusSuccess))
	case err != nil:
		return fmt.Errorf("claim %s slot: %w", slot, err)
	}
	return nil
}

// conflicts reports whether an existing child blocks a new op. Refund and
// cancel share one slot; capture has its own.
func conflicts(op provider.Operation, existing *provider.Transaction) bool {
	if !inFlight(existing) {
		return false
	}
	switch op {
	case provider.OperationRefund, provider.OperationCancel:
		return existing.Operation == provider.OperationRefund || existing.Operation == provider.OperationCancel
	case provider.OperationPostAuth:
		return existing.Operation == provider.OperationPostAuth
	}
	return false
}

// settleParent records a successful child on its parent
func (s *Service) settleParent(ctx context.Context, parent, child *provider.Transaction, upd storage.TransactionUpdate) error {
	upd.AppendLogs = append(upd.AppendLogs, provider.LogEntry{
		Type:      string(child.Operation),
		Response:  map[string]string{"childId": child.ID, "status": string(child.Status)},
		Timestamp: s.now(),
	})
	if _, err := s.update(ctx, parent, provider.StatusSuccess, upd); err != nil {
		logger.WithTransaction(parent.ID, parent.Provider).
			AddField("child_id", child.ID).
			AddField("operation", string(child.Operation)).
			Error("Parent transaction not updated after child success", err)
		return err
	}
	return nil
}

// QueryBankStatus asks the bank for the state of the transaction's order.
// The answer is logged on the transaction but never changes its status.
func (s *Service) QueryBankStatus(ctx context.Context, id string) (*BankStatusResult, error) {
	tx, err := s.loadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.OrderID == "" {
		return nil, provider.NewError(provider.KindStateConflict, "NO_ORDER", "transaction "+id+" has no bank order yet")
	}
	t, err := s.loadTerminal(ctx, tx.TerminalID)
	if err != nil {
		return nil, err
	}

	card := s.openCard(tx.Card)
	card.CVV = ""
	a, sess, err := s.adapter(tx, t, card)
	if err != nil {
		return nil, err
	}
	if !a.Capabilities().Supports(provider.CapStatus) || !implements(a, provider.CapStatus) {
		return nil, unsupported(t, provider.CapStatus)
	}

	res := call(func() (*provider.Result, error) { return a.(provider.StatusQuerier).Status(ctx, tx.OrderID) })
	if logs := sess.DrainLogs(); len(logs) > 0 {
		if _, err := s.update(ctx, tx, "", storage.TransactionUpdate{AppendLogs: logs}); err != nil {
			return nil, err
		}
	}

	return &BankStatusResult{
		TransactionID: tx.ID,
		OrderID:       tx.OrderID,
		Status:        tx.Status,
		BankStatus:    res.BankStatus,
		Success:       res.Success(),
		AuthCode:      res.AuthCode,
		RefNumber:     res.RefNumber,
		ErrorCode:     res.ErrorCode,
		ErrorMessage:  res.ErrorMessage,
	}, nil
}

// GetPosCapabilities reports what the adapter behind a terminal can do
func (s *Service) GetPosCapabilities(ctx context.Context, terminalID string) (*PosCapabilities, error) {
	t, err := s.loadTerminal(ctx, terminalID)
	if err != nil {
		return nil, err
	}
	caps, err := s.capabilities(t)
	if err != nil {
		return nil, err
	}
	return &PosCapabilities{
		TerminalID:   t.ID,
		Provider:     t.Provider,
		BankCode:     t.BankCode,
		PaymentModel: t.Model(),
		AllowDirect:  t.AllowDirect,
		TestMode:     t.TestMode,
		Capabilities: caps,
	}, nil
}

// capabilities builds the terminal's adapter against an empty transaction
func (s *Service) capabilities(t *provider.Terminal) (provider.Capabilities, error) {
	probe := &provider.Transaction{ID: "capabilities", TerminalID: t.ID, PaymentModel: t.Model()}
	if len(t.Currencies) > 0 {
		probe.Currency = t.Currencies[0]
	}
	a, _, err := s.adapter(probe, t, provider.Card{})
	if err != nil {
		return provider.Capabilities{}, err
	}
	return a.Capabilities(), nil
}

// GetTransactionStatus returns the stored view of a transaction
func (s *Service) GetTransactionStatus(ctx context.Context, id string) (*TransactionView, error) {
	tx, err := s.loadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	return View(tx), nil
}

// ListChildTransactions returns the refunds, cancels and captures of a
// transaction, oldest first
func (s *Service) ListChildTransactions(ctx context.Context, id string) ([]*TransactionView, error) {
	if _, err := s.loadTransaction(ctx, id); err != nil {
		return nil, err
	}
	children, err := s.store.ListChildren(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	views := make([]*TransactionView, 0, len(children))
	for _, c := range children {
		views = append(views, View(c))
	}
	return views, nil
}
