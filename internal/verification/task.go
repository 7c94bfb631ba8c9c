package verification

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"bits-gateway/internal/logcontext"
	"bits-gateway/internal/message"
	"bits-gateway/internal/payment"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

var (
	verifiedCounter      = metrics.GetOrCreateCounter(`payment_verification_total{result="verified"}`)
	noTransactionCounter = metrics.GetOrCreateCounter(`payment_verification_total{result="no_transaction"}`)
	failedCounter        = metrics.GetOrCreateCounter(`payment_verification_total{result="failed"}`)
	enqueuedCounter      = metrics.GetOrCreateCounter(`payment_verification_enqueued_total{result="success"}`)
	enqueueFailedCounter = metrics.GetOrCreateCounter(`payment_verification_enqueued_total{result="failed"}`)
)

type TransactionStore interface {
	GetLastTransaction(ctx context.Context, paymentID int64, includeFailed bool) (*payment.Transaction, error)
}

type Verifier interface {
	Verify(ctx context.Context, paymentID int64, txn *payment.Transaction) (*payment.Transaction, error)
}

// Task reconciles a payment with the provider after its order was fulfilled.
type Task struct {
	store    TransactionStore
	verifier Verifier
	logger   *slog.Logger
}

func NewTask(store TransactionStore, verifier Verifier, logger *slog.Logger) *Task {
	return &Task{store: store, verifier: verifier, logger: logger}
}

// Run verifies the last non-failed transaction of the payment. A payment
// without one is logged and skipped.
func (t *Task) Run(ctx context.Context, paymentID int64) error {
	ctx = logcontext.AppendCtx(ctx, slog.Int64("paymentId", paymentID))

	last, err := t.store.GetLastTransaction(ctx, paymentID, false)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			t.logger.WarnContext(ctx, "Transaction not found for payment")
			noTransactionCounter.Inc()
			return nil
		}
		failedCounter.Inc()
		return errors.Wrap(err, "get last transaction")
	}

	txn, err := t.verifier.Verify(ctx, paymentID, last)
	if err != nil {
		failedCounter.Inc()
		return errors.Wrap(err, "verify payment")
	}

	verifiedCounter.Inc()
	t.logger.InfoContext(ctx, "Verified payment", "transactionId", txn.ID, "kind", txn.Kind, "success", txn.IsSuccess)
	return nil
}

// Handle runs the task for a queued request.
func (t *Task) Handle(ctx context.Context, r message.VerificationRequest) error {
	return t.Run(ctx, r.PaymentID)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Enqueuer defers verification by publishing a request to Kafka.
type Enqueuer struct {
	writer MessageWriter
	logger *slog.Logger
}

func NewEnqueuer(writer MessageWriter, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{writer: writer, logger: logger}
}

func (e *Enqueuer) EnqueueVerification(ctx context.Context, paymentID int64) error {
	request := message.VerificationRequest{ID: uuid.New(), PaymentID: paymentID}
	value, err := json.Marshal(request)
	if err != nil {
		return errors.Wrap(err, "marshal verification request")
	}

	err = e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(paymentID, 10)),
		Value: value,
	})
	if err != nil {
		enqueueFailedCounter.Inc()
		return errors.Wrap(err, "write verification request")
	}

	enqueuedCounter.Inc()
	e.logger.DebugContext(ctx, "Enqueued payment verification", "paymentId", paymentID, "id", request.ID)
	return nil
}
