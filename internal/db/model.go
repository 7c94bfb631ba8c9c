package db

import (
	"bits-gateway/internal/payment"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Numeric columns are selected as text and parsed into decimal.Decimal.
const (
	paymentColumns = `id, order_id, user_id, gateway, token, total::text, captured_amount::text, currency,
	charge_status, to_confirm, is_active, customer_id, extra_data, created_at`

	transactionColumns = `id, payment_id, token, kind, is_success, action_required, amount::text, currency,
	error, customer_id, gateway_response, already_processed, created_at`

	orderLineColumns = `id, order_id, product_id, variant_id, product_type_id, product_name, variant_name,
	product_sku, quantity, unit_price::text, is_digital`
)

func scanPayment(row pgx.Row) (*payment.Payment, error) {
	var (
		p                       payment.Payment
		total, captured, status string
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Gateway, &p.Token, &total, &captured, &p.Currency,
		&status, &p.ToConfirm, &p.IsActive, &p.CustomerID, &p.ExtraData, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.ChargeStatus = payment.ChargeStatus(status)
	if p.Total, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	if p.CapturedAmount, err = decimal.NewFromString(captured); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanTransaction(row pgx.Row) (*payment.Transaction, error) {
	var (
		t            payment.Transaction
		kind, amount string
	)
	err := row.Scan(&t.ID, &t.PaymentID, &t.Token, &kind, &t.IsSuccess, &t.ActionRequired, &amount, &t.Currency,
		&t.Error, &t.CustomerID, &t.GatewayResponse, &t.AlreadyProcessed, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Kind = payment.TransactionKind(kind)
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanOrderLine(row pgx.Row) (*payment.OrderLine, error) {
	var (
		l         payment.OrderLine
		unitPrice string
	)
	err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.VariantID, &l.ProductTypeID, &l.ProductName, &l.VariantName,
		&l.ProductSKU, &l.Quantity, &unitPrice, &l.IsDigital)
	if err != nil {
		return nil, err
	}
	if l.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return nil, err
	}
	return &l, nil
}

func jsonObject(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
