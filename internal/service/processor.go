package service

import (
	"context"
	"log/slog"

	"bits-gateway/internal/gateway"
	"bits-gateway/internal/logcontext"
	"bits-gateway/internal/payment"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrNoToken         = errors.New("payment has no provider token")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrPaymentInactive = errors.New("payment is not active")
	ErrNoTransaction   = errors.New("payment has no transaction to verify")
)

type PaymentStore interface {
	GetPayment(ctx context.Context, id int64) (*payment.Payment, error)
	// RecordTransaction stores txn and, when pay is not nil, pay atomically.
	RecordTransaction(ctx context.Context, txn *payment.Transaction, pay *payment.Payment) (*payment.Transaction, error)
	FindTransaction(ctx context.Context, paymentID int64, token string, kind payment.TransactionKind, isSuccess, actionRequired bool) (*payment.Transaction, error)
	GetLastTransaction(ctx context.Context, paymentID int64, includeFailed bool) (*payment.Transaction, error)
}

// PaymentProcessor runs gateway operations for stored payments and records
// their outcome.
type PaymentProcessor struct {
	store   PaymentStore
	gateway gateway.Gateway
	logger  *slog.Logger
}

func NewPaymentProcessor(store PaymentStore, gw gateway.Gateway, logger *slog.Logger) *PaymentProcessor {
	return &PaymentProcessor{store: store, gateway: gw, logger: logger}
}

func (p *PaymentProcessor) Authorize(ctx context.Context, paymentID int64) (*payment.Transaction, error) {
	pay, err := p.activePayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, pay, p.gateway.Authorize, payment.NewPaymentData(pay, pay.Total))
}

// Capture captures amount, or the outstanding charge amount when amount is
// zero.
func (p *PaymentProcessor) Capture(ctx context.Context, paymentID int64, amount decimal.Decimal) (*payment.Transaction, error) {
	pay, err := p.activePayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		amount = pay.ChargeAmount()
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if pay.Token == "" {
		return nil, ErrNoToken
	}
	return p.run(ctx, pay, p.gateway.Capture, payment.NewPaymentData(pay, amount))
}

func (p *PaymentProcessor) Confirm(ctx context.Context, paymentID int64) (*payment.Transaction, error) {
	pay, err := p.activePayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if pay.Token == "" {
		return nil, ErrNoToken
	}
	return p.run(ctx, pay, p.gateway.Confirm, payment.NewPaymentData(pay, pay.ChargeAmount()))
}

func (p *PaymentProcessor) Void(ctx context.Context, paymentID int64) (*payment.Transaction, error) {
	pay, err := p.activePayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if pay.Token == "" {
		return nil, ErrNoToken
	}
	return p.run(ctx, pay, p.gateway.Void, payment.NewPaymentData(pay, pay.Total))
}

func (p *PaymentProcessor) Refund(ctx context.Context, paymentID int64, amount decimal.Decimal) (*payment.Transaction, error) {
	pay, err := p.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, errors.Wrap(err, "get payment")
	}
	return p.run(ctx, pay, p.gateway.Refund, payment.NewPaymentData(pay, amount))
}

// Verify re-queries the provider for txn. When the provider reports an
// outcome that is already recorded the stored transaction is returned and the
// payment is left untouched.
func (p *PaymentProcessor) Verify(ctx context.Context, paymentID int64, txn *payment.Transaction) (*payment.Transaction, error) {
	pay, err := p.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, errors.Wrap(err, "get payment")
	}
	if txn == nil {
		return nil, ErrNoTransaction
	}

	data := payment.NewPaymentData(pay, txn.Amount)
	data.Token = txn.Token
	return p.run(ctx, pay, p.gateway.Verify, data)
}

// VerifyLast verifies the most recent non-failed transaction of the payment.
func (p *PaymentProcessor) VerifyLast(ctx context.Context, paymentID int64) (*payment.Transaction, error) {
	txn, err := p.store.GetLastTransaction(ctx, paymentID, false)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return nil, ErrNoTransaction
		}
		return nil, errors.Wrap(err, "get last transaction")
	}
	return p.Verify(ctx, paymentID, txn)
}

type gatewayCall func(ctx context.Context, data payment.PaymentData) (*payment.GatewayResponse, error)

func (p *PaymentProcessor) run(ctx context.Context, pay *payment.Payment, call gatewayCall, data payment.PaymentData) (*payment.Transaction, error) {
	ctx = logcontext.AppendCtx(ctx, slog.Int64("paymentId", pay.ID))

	response, err := call(ctx, data)
	if err != nil {
		return nil, err
	}

	if response.TransactionAlreadyProcessed {
		existing, err := p.store.FindTransaction(ctx, pay.ID, response.TransactionID, response.Kind, response.IsSuccess, response.ActionRequired)
		if err == nil {
			p.logger.InfoContext(ctx, "Transaction already processed", "transactionId", existing.ID, "kind", existing.Kind)
			return existing, nil
		}
		if !errors.Is(err, payment.ErrNotFound) {
			return nil, errors.Wrap(err, "find transaction")
		}
	}

	var changed *payment.Payment
	if applyResponse(pay, response) {
		changed = pay
	}

	txn, err := p.store.RecordTransaction(ctx, response.ToTransaction(pay.ID), changed)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error recording gateway outcome", "providerTransactionId", response.TransactionID,
			"kind", response.Kind, "success", response.IsSuccess, "error", err)
		return nil, errors.Wrap(err, "record transaction")
	}

	p.logger.InfoContext(ctx, "Recorded gateway transaction",
		"transactionId", txn.ID, "kind", txn.Kind, "success", txn.IsSuccess, "actionRequired", txn.ActionRequired)
	return txn, nil
}

func (p *PaymentProcessor) activePayment(ctx context.Context, paymentID int64) (*payment.Payment, error) {
	pay, err := p.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, errors.Wrap(err, "get payment")
	}
	if !pay.IsActive {
		return nil, ErrPaymentInactive
	}
	return pay, nil
}
