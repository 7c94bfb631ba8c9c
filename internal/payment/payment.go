package payment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindAuth    TransactionKind = "auth"
	KindCapture TransactionKind = "capture"
	KindVoid    TransactionKind = "void"
	KindRefund  TransactionKind = "refund"
)

type ChargeStatus string

const (
	StatusNotCharged        ChargeStatus = "not-charged"
	StatusPending           ChargeStatus = "pending"
	StatusPartiallyCharged  ChargeStatus = "partially-charged"
	StatusFullyCharged      ChargeStatus = "fully-charged"
	StatusPartiallyRefunded ChargeStatus = "partially-refunded"
	StatusFullyRefunded     ChargeStatus = "fully-refunded"
	StatusRefused           ChargeStatus = "refused"
	StatusCancelled         ChargeStatus = "cancelled"
)

// CaptureDeadlineKey is the ExtraData key holding an explicit capture
// deadline in RFC 3339 format.
const CaptureDeadlineKey = "capture_deadline"

// DefaultCaptureGracePeriod is how long an authorization may stay uncaptured
// before the provider cancels it.
const DefaultCaptureGracePeriod = 6*24*time.Hour + 20*time.Hour

type Payment struct {
	ID             int64
	OrderID        *int64
	UserID         *int64
	Gateway        string
	Token          string
	Total          decimal.Decimal
	CapturedAmount decimal.Decimal
	Currency       string
	ChargeStatus   ChargeStatus
	ToConfirm      bool
	IsActive       bool
	CustomerID     string
	CreatedAt      time.Time
	ExtraData      map[string]any
}

// ChargeAmount is the amount still to be captured.
func (p *Payment) ChargeAmount() decimal.Decimal {
	return p.Total.Sub(p.CapturedAmount)
}

// CaptureDeadline returns the stored deadline when present and parseable,
// otherwise CreatedAt plus DefaultCaptureGracePeriod.
func (p *Payment) CaptureDeadline() time.Time {
	if raw, ok := p.ExtraData[CaptureDeadlineKey].(string); ok {
		if deadline, err := time.Parse(time.RFC3339, raw); err == nil {
			return deadline
		}
	}
	return p.CreatedAt.Add(DefaultCaptureGracePeriod)
}

func (p *Payment) SetCaptureDeadline(deadline time.Time) {
	if p.ExtraData == nil {
		p.ExtraData = map[string]any{}
	}
	p.ExtraData[CaptureDeadlineKey] = deadline.UTC().Format(time.RFC3339)
}

type Transaction struct {
	ID               int64
	PaymentID        int64
	Token            string
	Kind             TransactionKind
	IsSuccess        bool
	ActionRequired   bool
	Amount           decimal.Decimal
	Currency         string
	Error            string
	CustomerID       string
	GatewayResponse  map[string]any
	AlreadyProcessed bool
	CreatedAt        time.Time
}

// PaymentData is the view of a payment handed to the gateway.
type PaymentData struct {
	PaymentID  int64
	OrderID    *int64
	UserID     *int64
	Token      string
	Amount     decimal.Decimal
	Currency   string
	CustomerID string
}

func NewPaymentData(p *Payment, amount decimal.Decimal) PaymentData {
	return PaymentData{
		PaymentID:  p.ID,
		OrderID:    p.OrderID,
		UserID:     p.UserID,
		Token:      p.Token,
		Amount:     amount,
		Currency:   p.Currency,
		CustomerID: p.CustomerID,
	}
}

// GatewayResponse is the classified result of a single provider call.
type GatewayResponse struct {
	Kind                        TransactionKind
	IsSuccess                   bool
	TransactionID               string
	ActionRequired              bool
	ActionRequiredData          map[string]any
	Amount                      decimal.Decimal
	Currency                    string
	Error                       string
	CustomerID                  string
	RawResponse                 map[string]any
	TransactionAlreadyProcessed bool
}

func (r *GatewayResponse) ToTransaction(paymentID int64) *Transaction {
	return &Transaction{
		PaymentID:        paymentID,
		Token:            r.TransactionID,
		Kind:             r.Kind,
		IsSuccess:        r.IsSuccess,
		ActionRequired:   r.ActionRequired,
		Amount:           r.Amount,
		Currency:         r.Currency,
		Error:            r.Error,
		CustomerID:       r.CustomerID,
		GatewayResponse:  r.RawResponse,
		AlreadyProcessed: r.TransactionAlreadyProcessed,
	}
}

// ExternalIdentity links a local user to a Bits account.
type ExternalIdentity struct {
	ID         int64
	UserID     int64
	ExternalID string
	Response   map[string]any
}

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")
