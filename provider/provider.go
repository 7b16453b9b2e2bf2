package provider

import (
	"context"
)

// Capability names an optional adapter operation
type Capability string

const (
	CapPayment3D     Capability = "payment3D"
	CapPaymentDirect Capability = "paymentDirect"
	CapRefund        Capability = "refund"
	CapCancel        Capability = "cancel"
	CapStatus        Capability = "status"
	CapHistory       Capability = "history"
	CapPreAuth       Capability = "preAuth"
	CapPostAuth      Capability = "postAuth"
)

// Capabilities is what an adapter declares it can do
type Capabilities struct {
	Payment3D     bool           `json:"payment3D"`
	PaymentDirect bool           `json:"paymentDirect"`
	Refund        bool           `json:"refund"`
	Cancel        bool           `json:"cancel"`
	Status        bool           `json:"status"`
	History       bool           `json:"history"`
	PreAuth       bool           `json:"preAuth"`
	PostAuth      bool           `json:"postAuth"`
	PaymentModels []PaymentModel `json:"paymentModels"`
}

// Supports reports whether the capability is declared
func (c Capabilities) Supports(capability Capability) bool {
	switch capability {
	case CapPayment3D:
		return c.Payment3D
	case CapPaymentDirect:
		return c.PaymentDirect
	case CapRefund:
		return c.Refund
	case CapCancel:
		return c.Cancel
	case CapStatus:
		return c.Status
	case CapHistory:
		return c.History
	case CapPreAuth:
		return c.PreAuth
	case CapPostAuth:
		return c.PostAuth
	}
	return false
}

// SupportsModel reports whether the adapter can run payment model m
func (c Capabilities) SupportsModel(m PaymentModel) bool {
	for _, pm := range c.PaymentModels {
		if pm == m {
			return true
		}
	}
	return false
}

// Adapter is the contract every bank integration satisfies. An adapter is
// built per transaction from a Session and is not reused.
type Adapter interface {
	// Capabilities returns the static capability set of the adapter
	Capabilities() Capabilities

	// Initialize prepares the 3-D Secure redirect: order id, signature and
	// form fields. The returned Result carries the scratch state to persist.
	Initialize(ctx context.Context) (*Result, error)

	// FormHTML renders the page that sends the cardholder to the bank
	FormHTML(ctx context.Context) (string, error)

	// ProcessCallback verifies the bank's 3-D post-back and, when the
	// cardholder was authenticated, provisions the charge.
	ProcessCallback(ctx context.Context, data map[string]string) (*Result, error)
}

// DirectPayer charges a card without cardholder authentication
type DirectPayer interface {
	DirectPayment(ctx context.Context) (*Result, error)
}

// Refunder refunds a settled transaction
type Refunder interface {
	Refund(ctx context.Context, original *Transaction) (*Result, error)
}

// Canceller voids a transaction on the day it was made
type Canceller interface {
	Cancel(ctx context.Context, original *Transaction) (*Result, error)
}

// StatusQuerier asks the bank for the state of an order
type StatusQuerier interface {
	Status(ctx context.Context, orderID string) (*Result, error)
}

// PreAuthorizer reserves funds without capture
type PreAuthorizer interface {
	PreAuth(ctx context.Context) (*Result, error)
}

// PostAuthorizer captures a previous pre-authorization
type PostAuthorizer interface {
	PostAuth(ctx context.Context, preAuth *Transaction) (*Result, error)
}

// Factory builds an adapter for one transaction
type Factory func(s *Session) (Adapter, error)

// Result is the outcome of a single adapter call. The engine persists it
// as one typed update.
type Result struct {
	Status          Status
	OrderID         string
	AuthCode        string
	RefNumber       string
	ProvisionNumber string
	TransID         string
	BankStatus      string
	ErrorKind       Kind
	ErrorCode       string
	ErrorMessage    string
	Raw             string
	State           *ThreeDState
}

// Success reports whether the bank approved the operation
func (r *Result) Success() bool {
	return r != nil && r.Status == StatusSuccess
}

// Pending is the result of a successful 3-D initialization
func Pending(orderID string, state *ThreeDState) *Result {
	return &Result{Status: StatusProcessing, OrderID: orderID, State: state}
}

// Approved is a successful provisioning result
func Approved(orderID, authCode, refNumber, raw string) *Result {
	return &Result{
		Status:    StatusSuccess,
		OrderID:   orderID,
		AuthCode:  authCode,
		RefNumber: refNumber,
		Raw:       raw,
	}
}

// Declined is a failed result carrying the bank's own code and message
func Declined(kind Kind, code, message, raw string) *Result {
	return &Result{
		Status:       StatusFailed,
		ErrorKind:    kind,
		ErrorCode:    code,
		ErrorMessage: message,
		Raw:          raw,
	}
}

// FailedFromError converts an adapter error into a failed result
func FailedFromError(err error) *Result {
	kind := KindOf(err)
	return &Result{
		Status:       StatusFailed,
		ErrorKind:    kind,
		ErrorCode:    CodeOf(err),
		ErrorMessage: MessageOf(err),
	}
}

// ToTransactionResult maps an adapter result to its persisted form
func (r *Result) ToTransactionResult() *TransactionResult {
	return &TransactionResult{
		Success:         r.Success(),
		AuthCode:        r.AuthCode,
		RefNumber:       r.RefNumber,
		ProvisionNumber: r.ProvisionNumber,
		TransID:         r.TransID,
		ErrorKind:       r.ErrorKind,
		ErrorCode:       r.ErrorCode,
		ErrorMessage:    r.ErrorMessage,
		Raw:             r.Raw,
	}
}
