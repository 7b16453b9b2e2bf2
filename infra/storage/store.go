// Package storage persists transactions, terminals, commission overrides
// and BIN records.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mstgnz/vpos/provider"
)

var (
	ErrNotFound       = errors.New("storage: not found")
	ErrStatusConflict = errors.New("storage: transaction status changed")
	ErrAlreadyClaimed = errors.New("storage: callback already claimed")
	ErrDuplicate      = errors.New("storage: duplicate record")
	ErrSlotTaken      = errors.New("storage: child slot already taken")
)

// TransactionUpdate is an explicit set of field changes. Nil pointers and
// false flags leave the stored value untouched.
type TransactionUpdate struct {
	Status      *provider.Status
	OrderID     *string
	ThreeD      *provider.ThreeDState
	ClearThreeD bool
	Result      *provider.TransactionResult
	Commission  *provider.Commission
	ClearCVV    bool
	AppendLogs  []provider.LogEntry
	CompletedAt *time.Time
	RefundedAt  *time.Time
	CancelledAt *time.Time
}

// Apply writes the update onto tx
func (u TransactionUpdate) Apply(tx *provider.Transaction, now time.Time) {
	if u.Status != nil {
		tx.Status = *u.Status
	}
	if u.OrderID != nil {
		tx.OrderID = *u.OrderID
	}
	if u.ThreeD != nil {
		tx.ThreeD = u.ThreeD
	}
	if u.ClearThreeD {
		tx.ThreeD = nil
	}
	if u.Result != nil {
		tx.Result = u.Result
	}
	if u.Commission != nil {
		tx.Commission = u.Commission
	}
	if u.ClearCVV {
		tx.Card.CVV = ""
	}
	if len(u.AppendLogs) > 0 {
		tx.Logs = append(tx.Logs, u.AppendLogs...)
	}
	if u.CompletedAt != nil {
		tx.CompletedAt = u.CompletedAt
	}
	if u.RefundedAt != nil {
		tx.RefundedAt = u.RefundedAt
	}
	if u.CancelledAt != nil {
		tx.CancelledAt = u.CancelledAt
	}
	tx.UpdatedAt = now
}

// TransactionStore persists transaction records
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *provider.Transaction) error
	GetTransaction(ctx context.Context, id string) (*provider.Transaction, error)
	// UpdateTransaction applies upd only while the stored status equals
	// expect; an empty expect skips the check.
	UpdateTransaction(ctx context.Context, id string, expect provider.Status, upd TransactionUpdate) (*provider.Transaction, error)
	// ClaimCallback marks the 3-D callback of a processing transaction as
	// taken. Only the first caller succeeds.
	ClaimCallback(ctx context.Context, id string, at time.Time) (*provider.Transaction, error)
	// ClaimChild reserves a follow-up slot of a successful parent for
	// childID. A slot is held by at most one child.
	ClaimChild(ctx context.Context, parentID, slot, childID string) (*provider.Transaction, error)
	// ReleaseChild frees slot if childID still holds it
	ReleaseChild(ctx context.Context, parentID, slot, childID string) error
	ListChildren(ctx context.Context, parentID string) ([]*provider.Transaction, error)
}

func claimChild(tx *provider.Transaction, slot, childID string, now time.Time) error {
	if holder := tx.ChildSlots[slot]; holder != "" && holder != childID {
		return ErrSlotTaken
	}
	if tx.Status != provider.StatusSuccess {
		return ErrStatusConflict
	}
	if tx.ChildSlots == nil {
		tx.ChildSlots = make(map[string]string)
	}
	tx.ChildSlots[slot] = childID
	tx.UpdatedAt = now
	return nil
}

func releaseChild(tx *provider.Transaction, slot, childID string, now time.Time) bool {
	if tx.ChildSlots[slot] != childID {
		return false
	}
	delete(tx.ChildSlots, slot)
	tx.UpdatedAt = now
	return true
}

// TerminalStore persists virtual POS definitions
type TerminalStore interface {
	SaveTerminal(ctx context.Context, t *provider.Terminal) error
	GetTerminal(ctx context.Context, id string) (*provider.Terminal, error)
	// ListTerminals returns the terminals of an owner in declaration order.
	// An empty partnerID lists platform terminals.
	ListTerminals(ctx context.Context, partnerID string) ([]*provider.Terminal, error)
}

// OverrideStore persists partner commission overrides
type OverrideStore interface {
	SaveOverride(ctx context.Context, o *provider.CommissionOverride) error
	FindOverrides(ctx context.Context, partnerID, currency string) ([]*provider.CommissionOverride, error)
}

// BinStore persists BIN records keyed by 6 or 8 digit prefix
type BinStore interface {
	GetBinRecord(ctx context.Context, prefix string) (*provider.BinInfo, error)
	SaveBinRecord(ctx context.Context, info *provider.BinInfo) error
}

// Store is the full persistence surface of the gateway
type Store interface {
	TransactionStore
	TerminalStore
	OverrideStore
	BinStore
	Ping(ctx context.Context) error
	Close() error
}

// checkTerminal enforces owner-level terminal invariants against the
// owner's other terminals: one terminal per bank code and at most one
// default per currency.
func checkTerminal(t *provider.Terminal, siblings []*provider.Terminal) error {
	if t.ID == "" || t.BankCode == "" || t.Provider == "" {
		return fmt.Errorf("%w: terminal needs id, bank code and provider", ErrDuplicate)
	}
	for _, other := range siblings {
		if other.ID == t.ID {
			continue
		}
		if other.BankCode == t.BankCode {
			return fmt.Errorf("%w: owner already has a %s terminal (%s)", ErrDuplicate, t.BankCode, other.ID)
		}
		for _, c := range t.DefaultCurrencies {
			if other.IsDefaultFor(c) {
				return fmt.Errorf("%w: terminal %s is already default for %s", ErrDuplicate, other.ID, c)
			}
		}
	}
	return nil
}

func clone[T any](v *T) *T {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("storage: clone: %v", err))
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("storage: clone: %v", err))
	}
	return out
}
