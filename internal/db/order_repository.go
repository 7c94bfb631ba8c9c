package db

import (
	"context"
	"time"

	"bits-gateway/internal/payment"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	createOrderSQL = `INSERT INTO orders (user_id, user_email, status, created_at) VALUES ($1, $2, $3, $4) RETURNING id`

	getOrderSQL = `SELECT id, user_id, user_email, status, created_at FROM orders WHERE id = $1`

	listOrdersCreatedBetweenSQL = `SELECT id, user_id, user_email, status, created_at FROM orders
	WHERE created_at >= $1 AND created_at < $2 ORDER BY id`

	createOrderLineSQL = `INSERT INTO order_lines (order_id, product_id, variant_id, product_type_id, product_name,
	variant_name, product_sku, quantity, unit_price, is_digital)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10) RETURNING id`

	getOrderLinesSQL = `SELECT ` + orderLineColumns + ` FROM order_lines WHERE order_id = $1 ORDER BY id`

	createFulfillmentSQL = `INSERT INTO fulfillments (order_id) VALUES ($1) RETURNING id`

	getFulfillmentsSQL = `SELECT id, order_id FROM fulfillments WHERE order_id = $1 ORDER BY id`

	addOrderEventSQL = `INSERT INTO order_events (order_id, type, parameters) VALUES ($1, $2, $3)`

	getOrderEventsSQL = `SELECT type, parameters FROM order_events WHERE order_id = $1 ORDER BY id`
)

type OrderEvent struct {
	Type       payment.OrderEventType
	Parameters map[string]any
}

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) CreateOrder(ctx context.Context, o *payment.Order) (*payment.Order, error) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	err := r.pool.QueryRow(ctx, createOrderSQL, o.UserID, o.UserEmail, string(o.Status), o.CreatedAt).Scan(&o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "insert order")
	}
	return o, nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id int64) (*payment.Order, error) {
	var (
		o      payment.Order
		status string
	)
	err := r.pool.QueryRow(ctx, getOrderSQL, id).Scan(&o.ID, &o.UserID, &o.UserEmail, &status, &o.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	o.Status = payment.OrderStatus(status)
	return &o, nil
}

// ListOrdersCreatedBetween returns orders created in [from, to).
func (r *OrderRepository) ListOrdersCreatedBetween(ctx context.Context, from, to time.Time) ([]*payment.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersCreatedBetweenSQL, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*payment.Order
	for rows.Next() {
		var (
			o      payment.Order
			status string
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.UserEmail, &status, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Status = payment.OrderStatus(status)
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

func (r *OrderRepository) CreateOrderLine(ctx context.Context, l *payment.OrderLine) (*payment.OrderLine, error) {
	err := r.pool.QueryRow(ctx, createOrderLineSQL, l.OrderID, l.ProductID, l.VariantID, l.ProductTypeID,
		l.ProductName, l.VariantName, l.ProductSKU, l.Quantity, l.UnitPrice.String(), l.IsDigital).Scan(&l.ID)
	if err != nil {
		return nil, errors.Wrap(err, "insert order line")
	}
	return l, nil
}

func (r *OrderRepository) GetOrderLines(ctx context.Context, orderID int64) ([]payment.OrderLine, error) {
	rows, err := r.pool.Query(ctx, getOrderLinesSQL, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []payment.OrderLine
	for rows.Next() {
		l, err := scanOrderLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, *l)
	}
	return lines, rows.Err()
}

func (r *OrderRepository) CreateFulfillment(ctx context.Context, orderID int64) (*payment.Fulfillment, error) {
	f := payment.Fulfillment{OrderID: orderID}
	if err := r.pool.QueryRow(ctx, createFulfillmentSQL, orderID).Scan(&f.ID); err != nil {
		return nil, errors.Wrap(err, "insert fulfillment")
	}
	return &f, nil
}

func (r *OrderRepository) GetFulfillments(ctx context.Context, orderID int64) ([]payment.Fulfillment, error) {
	rows, err := r.pool.Query(ctx, getFulfillmentsSQL, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fulfillments []payment.Fulfillment
	for rows.Next() {
		var f payment.Fulfillment
		if err := rows.Scan(&f.ID, &f.OrderID); err != nil {
			return nil, err
		}
		fulfillments = append(fulfillments, f)
	}
	return fulfillments, rows.Err()
}

func (r *OrderRepository) AddOrderEvent(ctx context.Context, orderID int64, eventType payment.OrderEventType, parameters map[string]any) error {
	if _, err := r.pool.Exec(ctx, addOrderEventSQL, orderID, string(eventType), jsonObject(parameters)); err != nil {
		return errors.Wrapf(err, "insert %s order event", eventType)
	}
	return nil
}

// MarkOrderCaptured records that amount was captured for the order by the
// given payment.
func (r *OrderRepository) MarkOrderCaptured(ctx context.Context, orderID, paymentID int64, amount decimal.Decimal) error {
	return r.AddOrderEvent(ctx, orderID, payment.EventPaymentCaptured, map[string]any{
		"payment_id": paymentID,
		"amount":     amount.String(),
	})
}

func (r *OrderRepository) GetOrderEvents(ctx context.Context, orderID int64) ([]OrderEvent, error) {
	rows, err := r.pool.Query(ctx, getOrderEventsSQL, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []OrderEvent
	for rows.Next() {
		var (
			e         OrderEvent
			eventType string
		)
		if err := rows.Scan(&eventType, &e.Parameters); err != nil {
			return nil, err
		}
		e.Type = payment.OrderEventType(eventType)
		events = append(events, e)
	}
	return events, rows.Err()
}
