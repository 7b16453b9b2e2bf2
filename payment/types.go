package payment

import (
	"time"

	"github.com/mstgnz/vpos/commission"
	"github.com/mstgnz/vpos/provider"
	"github.com/shopspring/decimal"
)

// CardInput is the plaintext card submitted with a charge
type CardInput struct {
	Holder      string `json:"holder" validate:"required,max=64"`
	Number      string `json:"number" validate:"required,numeric,min=12,max=19"`
	ExpiryMonth string `json:"expiryMonth" validate:"required,numeric,min=1,max=2"`
	ExpiryYear  string `json:"expiryYear" validate:"required,numeric,min=2,max=4"`
	CVV         string `json:"cvv" validate:"required,numeric,min=3,max=4"`
}

func (c CardInput) card() provider.Card {
	return provider.Card{
		Holder:      c.Holder,
		Number:      c.Number,
		ExpiryMonth: c.ExpiryMonth,
		ExpiryYear:  c.ExpiryYear,
		CVV:         c.CVV,
	}
}

// PaymentRequest starts a payment or a pre-authorization. TerminalID pins
// the terminal; otherwise the router picks one for the card.
type PaymentRequest struct {
	TerminalID  string                `json:"terminalId,omitempty"`
	PartnerID   string                `json:"partnerId,omitempty"`
	Amount      decimal.Decimal       `json:"amount"`
	Currency    string                `json:"currency" validate:"required,len=3,alpha"`
	Installment int                   `json:"installment" validate:"min=0,max=36"`
	Card        CardInput             `json:"card"`
	Customer    provider.Customer     `json:"customer"`
	ExternalID  string                `json:"externalId,omitempty" validate:"max=64"`
	ReturnURL   string                `json:"returnUrl,omitempty" validate:"omitempty,url"`
	Model       provider.PaymentModel `json:"paymentModel,omitempty" validate:"omitempty,oneof=regular 3d 3d_pay 3d_host"`
	NoFallback  bool                  `json:"noFallback,omitempty"`
}

// BinQuery asks which terminal and installments a card would get
type BinQuery struct {
	PartnerID  string          `json:"partnerId,omitempty"`
	Bin        string          `json:"bin" validate:"required,numeric,min=6,max=19"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency" validate:"required,len=3,alpha"`
	NoFallback bool            `json:"noFallback,omitempty"`
}

// PostAuthRequest captures a pre-authorization. A zero amount captures the
// full reserved amount.
type PostAuthRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// PosSummary describes the terminal a card was routed to
type PosSummary struct {
	TerminalID   string                 `json:"terminalId"`
	Name         string                 `json:"name"`
	BankCode     string                 `json:"bankCode"`
	Provider     string                 `json:"provider"`
	PaymentModel provider.PaymentModel  `json:"paymentModel"`
	Rule         string                 `json:"rule"`
	Fallback     bool                   `json:"fallback"`
	Capabilities *provider.Capabilities `json:"capabilities,omitempty"`
}

// BinQueryResult is the answer to a BIN query
type BinQueryResult struct {
	Card         *provider.BinInfo   `json:"card"`
	Pos          PosSummary          `json:"pos"`
	Installments []commission.Option `json:"installments"`
}

// PaymentResult is returned by every charge creating operation. FormURL is
// set while the cardholder still has to authenticate.
type PaymentResult struct {
	TransactionID   string             `json:"transactionId"`
	ParentID        string             `json:"parentId,omitempty"`
	Operation       provider.Operation `json:"operation"`
	Status          provider.Status    `json:"status"`
	Success         bool               `json:"success"`
	OrderID         string             `json:"orderId,omitempty"`
	FormURL         string             `json:"formUrl,omitempty"`
	AuthCode        string             `json:"authCode,omitempty"`
	RefNumber       string             `json:"refNumber,omitempty"`
	ProvisionNumber string             `json:"provisionNumber,omitempty"`
	ErrorKind       provider.Kind      `json:"errorKind,omitempty"`
	ErrorCode       string             `json:"errorCode,omitempty"`
	ErrorMessage    string             `json:"errorMessage,omitempty"`
}

func resultOf(tx *provider.Transaction) *PaymentResult {
	r := &PaymentResult{
		TransactionID: tx.ID,
		ParentID:      tx.ParentID,
		Operation:     tx.Operation,
		Status:        tx.Status,
		Success:       tx.Status == provider.StatusSuccess,
		OrderID:       tx.OrderID,
	}
	if res := tx.Result; res != nil {
		r.AuthCode = res.AuthCode
		r.RefNumber = res.RefNumber
		r.ProvisionNumber = res.ProvisionNumber
		r.ErrorKind = res.ErrorKind
		r.ErrorCode = res.ErrorCode
		r.ErrorMessage = res.ErrorMessage
	}
	return r
}

// CallbackResult acknowledges a bank post-back. Duplicate is set when the
// transaction had already been settled by an earlier delivery.
type CallbackResult struct {
	TransactionID string          `json:"transactionId"`
	Status        provider.Status `json:"status"`
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	ErrorCode     string          `json:"errorCode,omitempty"`
	Duplicate     bool            `json:"duplicate,omitempty"`
	ReturnURL     string          `json:"-"`
}

// BankStatusResult is the bank's own view of an order
type BankStatusResult struct {
	TransactionID string          `json:"transactionId"`
	OrderID       string          `json:"orderId"`
	Status        provider.Status `json:"status"`
	BankStatus    string          `json:"bankStatus,omitempty"`
	Success       bool            `json:"success"`
	AuthCode      string          `json:"authCode,omitempty"`
	RefNumber     string          `json:"refNumber,omitempty"`
	ErrorCode     string          `json:"errorCode,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
}

// PosCapabilities is what a terminal's adapter can do
type PosCapabilities struct {
	TerminalID   string                `json:"terminalId"`
	Provider     string                `json:"provider"`
	BankCode     string                `json:"bankCode"`
	PaymentModel provider.PaymentModel `json:"paymentModel"`
	AllowDirect  bool                  `json:"allowDirect"`
	TestMode     bool                  `json:"testMode"`
	Capabilities provider.Capabilities `json:"capabilities"`
}

// CardView is the clear part of a stored card
type CardView struct {
	Masked string `json:"masked"`
	Bin    string `json:"bin"`
}

// TransactionView is a transaction without encrypted card fields or 3-D
// scratch data
type TransactionView struct {
	ID           string                      `json:"id"`
	ParentID     string                      `json:"parentId,omitempty"`
	TerminalID   string                      `json:"terminalId"`
	PartnerID    string                      `json:"partnerId,omitempty"`
	Provider     string                      `json:"provider"`
	BankCode     string                      `json:"bankCode"`
	Operation    provider.Operation          `json:"operation"`
	PaymentModel provider.PaymentModel       `json:"paymentModel"`
	Status       provider.Status             `json:"status"`
	OrderID      string                      `json:"orderId,omitempty"`
	ExternalID   string                      `json:"externalId,omitempty"`
	Amount       decimal.Decimal             `json:"amount"`
	Currency     string                      `json:"currency"`
	Installment  int                         `json:"installment"`
	Card         CardView                    `json:"card"`
	BinInfo      *provider.BinInfo           `json:"binInfo,omitempty"`
	Result       *provider.TransactionResult `json:"result,omitempty"`
	Commission   *provider.Commission        `json:"commission,omitempty"`
	Logs         []provider.LogEntry         `json:"logs,omitempty"`
	CreatedAt    time.Time                   `json:"createdAt"`
	UpdatedAt    time.Time                   `json:"updatedAt"`
	CompletedAt  *time.Time                  `json:"completedAt,omitempty"`
	RefundedAt   *time.Time                  `json:"refundedAt,omitempty"`
	CancelledAt  *time.Time                  `json:"cancelledAt,omitempty"`
}

// View builds the public representation of tx
func View(tx *provider.Transaction) *TransactionView {
	v := &TransactionView{
		ID:           tx.ID,
		ParentID:     tx.ParentID,
		TerminalID:   tx.TerminalID,
		PartnerID:    tx.PartnerID,
		Provider:     tx.Provider,
		BankCode:     tx.BankCode,
		Operation:    tx.Operation,
		PaymentModel: tx.PaymentModel,
		Status:       tx.Status,
		OrderID:      tx.OrderID,
		ExternalID:   tx.ExternalID,
		Amount:       tx.Amount,
		Currency:     tx.Currency,
		Installment:  tx.Installment,
		Card:         CardView{Masked: tx.Card.Masked, Bin: tx.Card.Bin},
		BinInfo:      tx.BinInfo,
		Commission:   tx.Commission,
		Logs:         tx.Logs,
		CreatedAt:    tx.CreatedAt,
		UpdatedAt:    tx.UpdatedAt,
		CompletedAt:  tx.CompletedAt,
		RefundedAt:   tx.RefundedAt,
		CancelledAt:  tx.CancelledAt,
	}
	if tx.Result != nil {
		res := *tx.Result
		res.Raw = provider.SanitizeString(res.Raw)
		v.Result = &res
	}
	return v
}
