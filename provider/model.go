package provider

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a transaction
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Terminal reports whether no further authorization attempt can happen
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Operation is the kind of charge a transaction represents
type Operation string

const (
	OperationPayment  Operation = "payment"
	OperationPreAuth  Operation = "pre_auth"
	OperationPostAuth Operation = "post_auth"
	OperationRefund   Operation = "refund"
	OperationCancel   Operation = "cancel"
)

// PaymentModel is how the card is authenticated with the bank
type PaymentModel string

const (
	ModelRegular PaymentModel = "regular"
	Model3D      PaymentModel = "3d"
	Model3DPay   PaymentModel = "3d_pay"
	Model3DHost  PaymentModel = "3d_host"
)

// Is3D reports whether the model requires a cardholder redirect
func (m PaymentModel) Is3D() bool {
	return m == Model3D || m == Model3DPay || m == Model3DHost
}

// CardType classifies a card by funding source
type CardType string

const (
	CardCredit  CardType = "credit"
	CardDebit   CardType = "debit"
	CardPrepaid CardType = "prepaid"
	CardUnknown CardType = "unknown"
)

// Card is plaintext card data. It only lives in memory for the duration of
// a bank call.
type Card struct {
	Holder      string `json:"holder"`
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	CVV         string `json:"cvv,omitempty"`
}

// Year2 returns the two digit expiry year
func (c Card) Year2() string {
	if len(c.ExpiryYear) == 4 {
		return c.ExpiryYear[2:]
	}
	return c.ExpiryYear
}

// Year4 returns the four digit expiry year
func (c Card) Year4() string {
	if len(c.ExpiryYear) == 2 {
		return "20" + c.ExpiryYear
	}
	return c.ExpiryYear
}

// Month2 returns the zero padded expiry month
func (c Card) Month2() string {
	if len(c.ExpiryMonth) == 1 {
		return "0" + c.ExpiryMonth
	}
	return c.ExpiryMonth
}

// StoredCard is the at-rest card representation. Holder, number, expiry and
// CVV are individually encrypted; Masked and Bin are kept in clear.
type StoredCard struct {
	Holder      string `json:"holder,omitempty"`
	Number      string `json:"number,omitempty"`
	ExpiryMonth string `json:"expiryMonth,omitempty"`
	ExpiryYear  string `json:"expiryYear,omitempty"`
	CVV         string `json:"cvv,omitempty"`
	Masked      string `json:"masked"`
	Bin         string `json:"bin"`
}

// Customer is the payer contact information sent to banks that require it
type Customer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	IP    string `json:"ip,omitempty"`
}

// BinInfo is what BIN resolution knows about a card prefix
type BinInfo struct {
	Bin      string   `json:"bin"`
	BankCode string   `json:"bankCode,omitempty"`
	BankName string   `json:"bankName,omitempty"`
	Brand    string   `json:"brand"`
	Type     CardType `json:"type"`
	Family   string   `json:"family,omitempty"`
	Country  string   `json:"country,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// TransactionResult is the persisted outcome of the last bank interaction
type TransactionResult struct {
	Success         bool   `json:"success"`
	AuthCode        string `json:"authCode,omitempty"`
	RefNumber       string `json:"refNumber,omitempty"`
	ProvisionNumber string `json:"provisionNumber,omitempty"`
	TransID         string `json:"transId,omitempty"`
	ErrorKind       Kind   `json:"errorKind,omitempty"`
	ErrorCode       string `json:"errorCode,omitempty"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
	Raw             string `json:"raw,omitempty"`
}

// LogEntry is one protocol event in a transaction's append-only log
type LogEntry struct {
	Type      string    `json:"type"`
	Request   any       `json:"request,omitempty"`
	Response  any       `json:"response,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Commission is the breakdown stored on a successful transaction
type Commission struct {
	BankRate       decimal.Decimal `json:"bankRate"`
	BankAmount     decimal.Decimal `json:"bankAmount"`
	PlatformRate   decimal.Decimal `json:"platformRate"`
	PlatformFixed  decimal.Decimal `json:"platformFixed"`
	PlatformAmount decimal.Decimal `json:"platformAmount"`
	Total          decimal.Decimal `json:"total"`
	Net            decimal.Decimal `json:"net"`
	Source         string          `json:"source"`
	OverrideID     string          `json:"overrideId,omitempty"`
}

// Transaction is one payment attempt, or one refund, cancel, pre-auth or
// post-auth chained to its parent.
type Transaction struct {
	ID           string          `json:"id"`
	TerminalID   string          `json:"terminalId"`
	PartnerID    string          `json:"partnerId,omitempty"`
	Provider     string          `json:"provider"`
	BankCode     string          `json:"bankCode"`
	Operation    Operation       `json:"operation"`
	PaymentModel PaymentModel    `json:"paymentModel"`
	ParentID     string          `json:"parentId,omitempty"`
	OrderID      string          `json:"orderId,omitempty"`
	ExternalID   string          `json:"externalId,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Installment  int             `json:"installment"`
	Card         StoredCard      `json:"card"`
	BinInfo      *BinInfo        `json:"binInfo,omitempty"`
	Customer     Customer        `json:"customer"`
	ReturnURL    string          `json:"returnUrl,omitempty"`

	Status     Status             `json:"status"`
	ThreeD     *ThreeDState       `json:"threeD,omitempty"`
	Result     *TransactionResult `json:"result,omitempty"`
	Logs       []LogEntry         `json:"logs,omitempty"`
	Commission *Commission        `json:"commission,omitempty"`
	// ChildSlots maps a follow-up slot (reversal, capture) to the child
	// transaction holding it
	ChildSlots map[string]string `json:"childSlots,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CallbackAt  *time.Time `json:"callbackAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	RefundedAt  *time.Time `json:"refundedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

// ThreeDSettings configures the cardholder authentication step of a terminal
type ThreeDSettings struct {
	Enabled bool         `json:"enabled"`
	Model   PaymentModel `json:"model"`
}

// InstallmentPolicy controls which installment counts a terminal offers
type InstallmentPolicy struct {
	Enabled   bool                    `json:"enabled"`
	MinCount  int                     `json:"minCount"`
	MaxCount  int                     `json:"maxCount"`
	MinAmount decimal.Decimal         `json:"minAmount"`
	Rates     map[int]decimal.Decimal `json:"rates,omitempty"`
}

// CommissionRate is the bank rate and platform margin for one installment count
type CommissionRate struct {
	Installment  int             `json:"installment"`
	BankRate     decimal.Decimal `json:"bankRate"`
	PlatformRate decimal.Decimal `json:"platformRate"`
}

// CommissionPeriod is a commission schedule valid from StartDate on
type CommissionPeriod struct {
	StartDate time.Time        `json:"startDate"`
	Rates     []CommissionRate `json:"rates"`
}

// Terminal is a configured virtual POS. PartnerID is empty for platform
// owned terminals.
type Terminal struct {
	ID                string             `json:"id"`
	PartnerID         string             `json:"partnerId,omitempty"`
	Name              string             `json:"name"`
	BankCode          string             `json:"bankCode"`
	Provider          string             `json:"provider"`
	Currencies        []string           `json:"currencies"`
	DefaultCurrencies []string           `json:"defaultCurrencies,omitempty"`
	TestMode          bool               `json:"testMode"`
	Credentials       string             `json:"credentials"`
	ThreeD            ThreeDSettings     `json:"threeD"`
	Installments      InstallmentPolicy  `json:"installments"`
	Commissions       []CommissionPeriod `json:"commissions,omitempty"`
	CardFamilies      []string           `json:"cardFamilies,omitempty"`
	Priority          int                `json:"priority"`
	AllowDirect       bool               `json:"allowDirect"`
	Active            bool               `json:"active"`
	Endpoints         map[string]string  `json:"endpoints,omitempty"`
	Position          int                `json:"position"`
	CreatedAt         time.Time          `json:"createdAt"`
}

// PlatformOwned reports whether the terminal belongs to the platform
func (t *Terminal) PlatformOwned() bool {
	return t.PartnerID == ""
}

// SupportsCurrency reports whether the terminal can charge in currency
func (t *Terminal) SupportsCurrency(currency string) bool {
	for _, c := range t.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}

// IsDefaultFor reports whether the terminal is its owner's default for currency
func (t *Terminal) IsDefaultFor(currency string) bool {
	for _, c := range t.DefaultCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}

// AcceptsFamily reports whether family is on the terminal's card family allowlist
func (t *Terminal) AcceptsFamily(family string) bool {
	if family == "" {
		return false
	}
	for _, f := range t.CardFamilies {
		if strings.EqualFold(f, family) {
			return true
		}
	}
	return false
}

// Model returns the payment model the terminal runs by default
func (t *Terminal) Model() PaymentModel {
	if t.ThreeD.Enabled {
		if t.ThreeD.Model == "" {
			return Model3D
		}
		return t.ThreeD.Model
	}
	return ModelRegular
}

// Wildcard matches any value on an override rule axis
const Wildcard = "all"

// OverrideRule is one specific markup in a partner commission override.
// Installment 0 matches any count.
type OverrideRule struct {
	CardType    string          `json:"cardType"`
	CardFamily  string          `json:"cardFamily"`
	Installment int             `json:"installment"`
	Rate        decimal.Decimal `json:"rate"`
	Fixed       decimal.Decimal `json:"fixed"`
}

// CommissionOverride is a partner specific platform markup for one currency,
// optionally bound to a terminal.
type CommissionOverride struct {
	ID            string           `json:"id"`
	PartnerID     string           `json:"partnerId"`
	Currency      string           `json:"currency"`
	TerminalID    string           `json:"terminalId,omitempty"`
	DefaultRate   decimal.Decimal  `json:"defaultRate"`
	DefaultFixed  decimal.Decimal  `json:"defaultFixed"`
	Rules         []OverrideRule   `json:"rules,omitempty"`
	MinCommission *decimal.Decimal `json:"minCommission,omitempty"`
	MaxCommission *decimal.Decimal `json:"maxCommission,omitempty"`
	Active        bool             `json:"active"`
}
