package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bits-gateway/internal/config"
	"bits-gateway/internal/logcontext"
	"bits-gateway/internal/payment"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	sweepErrorFetchingCounter = metrics.GetOrCreateCounter(`capture_sweep_total{result="fetching_failed"}`)
	sweepSuccessCounter       = metrics.GetOrCreateCounter(`capture_sweep_total{result="success"}`)

	sweepDurationHistogram = metrics.GetOrCreateHistogram(`capture_sweep_duration_milliseconds`)

	paymentsCapturedCounter = metrics.GetOrCreateCounter(`capture_sweep_payments_total{result="captured"}`)
	paymentsVoidedCounter   = metrics.GetOrCreateCounter(`capture_sweep_payments_total{result="voided"}`)
	paymentsFailedCounter   = metrics.GetOrCreateCounter(`capture_sweep_payments_total{result="failed"}`)
)

type PaymentStore interface {
	ListCapturablePayments(ctx context.Context) ([]*payment.Payment, error)
}

type OrderStore interface {
	MarkOrderCaptured(ctx context.Context, orderID, paymentID int64, amount decimal.Decimal) error
}

type Capturer interface {
	Capture(ctx context.Context, paymentID int64, amount decimal.Decimal) (*payment.Transaction, error)
}

type Result struct {
	Checked  int
	Eligible int
	Captured int
	Voided   int
	Failed   int
}

// Sweeper captures authorized payments whose capture deadline has passed.
type Sweeper struct {
	payments PaymentStore
	orders   OrderStore
	capturer Capturer
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewSweeper(cfg config.Capture, payments PaymentStore, orders OrderStore, capturer Capturer, logger *slog.Logger) *Sweeper {
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = config.DefaultCaptureIntervalMs * time.Millisecond
	}
	return &Sweeper{
		payments: payments,
		orders:   orders,
		capturer: capturer,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Eligible reports whether p may be captured at now.
func Eligible(p *payment.Payment, now time.Time) bool {
	return !now.Before(p.CaptureDeadline())
}

func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.ErrorContext(ctx, "Capture sweep failed", "error", err)
				}
			case <-ctx.Done():
				s.logger.InfoContext(ctx, "Context done, stopping capture sweeper")
				return
			}
		}
	}()
}

// Sweep runs one pass over the capturable payments. Only a failure to list
// the payments is returned; per-payment failures are logged and counted.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	startTime := time.Now()
	defer func() {
		sweepDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	ctx = logcontext.AppendCtx(ctx, slog.String("runId", uuid.New().String()))

	var result Result
	payments, err := s.payments.ListCapturablePayments(ctx)
	if err != nil {
		sweepErrorFetchingCounter.Inc()
		return result, errors.Wrap(err, "list capturable payments")
	}

	now := s.now()
	for _, p := range payments {
		result.Checked++
		if !Eligible(p, now) {
			continue
		}
		result.Eligible++

		paymentCtx := logcontext.AppendCtx(ctx, slog.Int64("paymentId", p.ID))
		txn, err := s.capture(paymentCtx, p)
		switch {
		case err != nil:
			result.Failed++
			paymentsFailedCounter.Inc()
			s.logger.ErrorContext(paymentCtx, "Error capturing payment", "error", err)
		case txn.Kind == payment.KindCapture && txn.IsSuccess:
			result.Captured++
			paymentsCapturedCounter.Inc()
		case txn.Kind == payment.KindVoid && txn.IsSuccess:
			result.Voided++
			paymentsVoidedCounter.Inc()
			s.logger.WarnContext(paymentCtx, "Payment was cancelled at the provider")
		default:
			result.Failed++
			paymentsFailedCounter.Inc()
			s.logger.WarnContext(paymentCtx, "Capture was declined", "error", txn.Error)
		}
	}

	sweepSuccessCounter.Inc()
	s.logger.InfoContext(ctx, "Capture sweep finished",
		"checked", result.Checked, "eligible", result.Eligible, "captured", result.Captured,
		"voided", result.Voided, "failed", result.Failed)
	return result, nil
}

func (s *Sweeper) capture(ctx context.Context, p *payment.Payment) (txn *payment.Transaction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic capturing payment: %v", r)
		}
	}()

	amount := p.ChargeAmount()
	txn, err = s.capturer.Capture(ctx, p.ID, amount)
	if err != nil {
		return nil, err
	}

	if txn.Kind == payment.KindCapture && txn.IsSuccess && p.OrderID != nil {
		if err := s.orders.MarkOrderCaptured(ctx, *p.OrderID, p.ID, amount); err != nil {
			return nil, errors.Wrap(err, "mark order captured")
		}
	}
	return txn, nil
}
