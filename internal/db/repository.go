package db

import (
	"context"
	"time"

	"bits-gateway/internal/payment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const (
	createPaymentSQL = `INSERT INTO payments (order_id, user_id, gateway, token, total, captured_amount, currency,
	charge_status, to_confirm, is_active, customer_id, extra_data, created_at)
	VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, $11, $12, $13) RETURNING id`

	getPaymentSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	updatePaymentSQL = `UPDATE payments SET token = $2, captured_amount = $3::numeric, charge_status = $4,
	to_confirm = $5, is_active = $6, customer_id = $7, extra_data = $8 WHERE id = $1`

	listCapturablePaymentsSQL = `SELECT ` + paymentColumns + ` FROM payments
	WHERE is_active AND order_id IS NOT NULL AND charge_status = $1 ORDER BY id`

	getLastPaymentForOrderSQL = `SELECT ` + paymentColumns + ` FROM payments
	WHERE order_id = $1 ORDER BY id DESC LIMIT 1`

	createTransactionSQL = `INSERT INTO transactions (payment_id, token, kind, is_success, action_required, amount,
	currency, error, customer_id, gateway_response, already_processed)
	VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11) RETURNING id, created_at`

	findTransactionSQL = `SELECT ` + transactionColumns + ` FROM transactions
	WHERE payment_id = $1 AND token = $2 AND kind = $3 AND is_success = $4 AND action_required = $5
	ORDER BY id LIMIT 1`

	getLastTransactionSQL = `SELECT ` + transactionColumns + ` FROM transactions
	WHERE payment_id = $1 AND (is_success OR $2) ORDER BY id DESC LIMIT 1`
)

// querier is satisfied by both the pool and a pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) CreatePayment(ctx context.Context, p *payment.Payment) (*payment.Payment, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	err := r.pool.QueryRow(ctx, createPaymentSQL, p.OrderID, p.UserID, p.Gateway, p.Token, p.Total.String(),
		p.CapturedAmount.String(), p.Currency, string(p.ChargeStatus), p.ToConfirm, p.IsActive, p.CustomerID,
		jsonObject(p.ExtraData), p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "insert payment")
	}
	return p, nil
}

func (r *PaymentRepository) GetPayment(ctx context.Context, id int64) (*payment.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, getPaymentSQL, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *PaymentRepository) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	return updatePayment(ctx, r.pool, p)
}

func updatePayment(ctx context.Context, q querier, p *payment.Payment) error {
	tag, err := q.Exec(ctx, updatePaymentSQL, p.ID, p.Token, p.CapturedAmount.String(), string(p.ChargeStatus),
		p.ToConfirm, p.IsActive, p.CustomerID, jsonObject(p.ExtraData))
	if err != nil {
		return errors.Wrap(err, "update payment")
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

// ListCapturablePayments returns active, not yet charged payments attached to
// an order. Deadline filtering is left to the caller.
func (r *PaymentRepository) ListCapturablePayments(ctx context.Context) ([]*payment.Payment, error) {
	rows, err := r.pool.Query(ctx, listCapturablePaymentsSQL, string(payment.StatusNotCharged))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) GetLastPaymentForOrder(ctx context.Context, orderID int64) (*payment.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, getLastPaymentForOrderSQL, orderID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *PaymentRepository) CreateTransaction(ctx context.Context, t *payment.Transaction) (*payment.Transaction, error) {
	if err := insertTransaction(ctx, r.pool, t); err != nil {
		return nil, err
	}
	return t, nil
}

// RecordTransaction inserts t and, when p is not nil, saves p in the same
// database transaction. Either both are stored or neither is.
func (r *PaymentRepository) RecordTransaction(ctx context.Context, t *payment.Transaction, p *payment.Payment) (*payment.Transaction, error) {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}
		if p == nil {
			return nil
		}
		return updatePayment(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func insertTransaction(ctx context.Context, q querier, t *payment.Transaction) error {
	err := q.QueryRow(ctx, createTransactionSQL, t.PaymentID, t.Token, string(t.Kind), t.IsSuccess,
		t.ActionRequired, t.Amount.String(), t.Currency, t.Error, t.CustomerID, jsonObject(t.GatewayResponse),
		t.AlreadyProcessed).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert transaction")
	}
	return nil
}

// FindTransaction returns the first transaction recorded with the same
// outcome: token, kind, success and whether customer action was required.
func (r *PaymentRepository) FindTransaction(ctx context.Context, paymentID int64, token string, kind payment.TransactionKind, isSuccess, actionRequired bool) (*payment.Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, findTransactionSQL, paymentID, token, string(kind), isSuccess, actionRequired))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (r *PaymentRepository) GetLastTransaction(ctx context.Context, paymentID int64, includeFailed bool) (*payment.Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, getLastTransactionSQL, paymentID, includeFailed))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}
