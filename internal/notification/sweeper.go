package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"bits-gateway/internal/logcontext"
	"bits-gateway/internal/message"
	"bits-gateway/internal/payment"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const (
	pendingDelay   = 24 * time.Hour
	fulfilledDelay = 48 * time.Hour
	window         = time.Hour
)

var (
	notificationsPublishedCounter = metrics.GetOrCreateCounter(`order_notifications_total{result="published"}`)
	notificationsFailedCounter    = metrics.GetOrCreateCounter(`order_notifications_total{result="failed"}`)

	sweepDurationHistogram = metrics.GetOrCreateHistogram(`order_notifications_sweep_duration_milliseconds`)
)

type OrderStore interface {
	ListOrdersCreatedBetween(ctx context.Context, from, to time.Time) ([]*payment.Order, error)
	GetFulfillments(ctx context.Context, orderID int64) ([]payment.Fulfillment, error)
	GetOrderLines(ctx context.Context, orderID int64) ([]payment.OrderLine, error)
	AddOrderEvent(ctx context.Context, orderID int64, eventType payment.OrderEventType, parameters map[string]any) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Result struct {
	Orders    int
	Published int
	Failed    int
}

// Sweeper publishes customer notifications for orders that reached a given
// age. It is meant to run hourly; each run covers the one hour window of
// orders created that long ago.
type Sweeper struct {
	orders OrderStore
	writer MessageWriter
	now    func() time.Time
	logger *slog.Logger
}

func NewSweeper(orders OrderStore, writer MessageWriter, logger *slog.Logger) *Sweeper {
	return &Sweeper{orders: orders, writer: writer, now: time.Now, logger: logger}
}

// NotifyPending announces that non-cancelled orders created a day ago are
// being prepared.
func (s *Sweeper) NotifyPending(ctx context.Context) (Result, error) {
	defer s.observe(time.Now())

	ctx, orders, err := s.startRun(ctx, "pending", pendingDelay)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, order := range orders {
		if order.Status == payment.OrderCanceled {
			continue
		}
		result.Orders++

		orderCtx := logcontext.AppendCtx(ctx, slog.Int64("orderId", order.ID))
		if err := s.publish(orderCtx, s.notification(message.NotificationOrderPreparing, order, nil)); err != nil {
			result.Failed++
			s.logger.ErrorContext(orderCtx, "Error publishing order preparing notification", "error", err)
			continue
		}
		result.Published++
	}

	s.logger.InfoContext(ctx, "Pending order notifications finished",
		"orders", result.Orders, "published", result.Published, "failed", result.Failed)
	return result, nil
}

// NotifyFulfilled confirms fulfillment of orders created two days ago and
// records the emails as order events.
func (s *Sweeper) NotifyFulfilled(ctx context.Context) (Result, error) {
	defer s.observe(time.Now())

	ctx, orders, err := s.startRun(ctx, "fulfilled", fulfilledDelay)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, order := range orders {
		if order.Status != payment.OrderFulfilled {
			continue
		}
		result.Orders++

		orderCtx := logcontext.AppendCtx(ctx, slog.Int64("orderId", order.ID))
		published, err := s.notifyFulfilled(orderCtx, order)
		result.Published += published
		if err != nil {
			result.Failed++
			s.logger.ErrorContext(orderCtx, "Error notifying fulfilled order", "error", err)
		}
	}

	s.logger.InfoContext(ctx, "Fulfilled order notifications finished",
		"orders", result.Orders, "published", result.Published, "failed", result.Failed)
	return result, nil
}

func (s *Sweeper) notifyFulfilled(ctx context.Context, order *payment.Order) (int, error) {
	fulfillments, err := s.orders.GetFulfillments(ctx, order.ID)
	if err != nil {
		return 0, errors.Wrap(err, "get fulfillments")
	}

	switch {
	case len(fulfillments) == 0:
		s.logger.WarnContext(ctx, "No fulfillment found for order")
	case len(fulfillments) > 1:
		s.logger.WarnContext(ctx, "Multiple fulfillments found for order", "count", len(fulfillments))
	}

	var notifications []message.OrderNotification
	for _, f := range fulfillments {
		fulfillmentID := f.ID
		notifications = append(notifications, s.notification(message.NotificationFulfillmentConfirmation, order, &fulfillmentID))
	}
	if err := s.publish(ctx, notifications...); err != nil {
		return 0, err
	}

	if err := s.orders.AddOrderEvent(ctx, order.ID, payment.EventEmailSent, emailParameters(payment.EmailFulfillment)); err != nil {
		return len(notifications), err
	}

	lines, err := s.orders.GetOrderLines(ctx, order.ID)
	if err != nil {
		return len(notifications), errors.Wrap(err, "get order lines")
	}
	for _, line := range lines {
		if line.IsDigital {
			err := s.orders.AddOrderEvent(ctx, order.ID, payment.EventEmailSent, emailParameters(payment.EmailDigitalLinks))
			return len(notifications), err
		}
	}
	return len(notifications), nil
}

func (s *Sweeper) startRun(ctx context.Context, name string, delay time.Duration) (context.Context, []*payment.Order, error) {
	// runId correlates all logs of one sweep
	ctx = logcontext.AppendCtx(ctx, slog.String("runId", uuid.New().String()))

	from := s.now().Add(-delay)
	to := from.Add(window)
	s.logger.InfoContext(ctx, "Fetching orders to notify", "sweep", name, "from", from, "to", to)

	orders, err := s.orders.ListOrdersCreatedBetween(ctx, from, to)
	if err != nil {
		return ctx, nil, errors.Wrap(err, "list orders")
	}
	return ctx, orders, nil
}

func (s *Sweeper) notification(kind message.NotificationType, order *payment.Order, fulfillmentID *int64) message.OrderNotification {
	return message.OrderNotification{
		ID:            uuid.New(),
		Type:          kind,
		OrderID:       order.ID,
		FulfillmentID: fulfillmentID,
		Email:         order.UserEmail,
	}
}

func (s *Sweeper) publish(ctx context.Context, notifications ...message.OrderNotification) error {
	if len(notifications) == 0 {
		return nil
	}

	kafkaMessages := make([]kafka.Message, 0, len(notifications))
	for _, n := range notifications {
		value, err := json.Marshal(n)
		if err != nil {
			return errors.Wrap(err, "marshal notification")
		}
		kafkaMessages = append(kafkaMessages, kafka.Message{
			Key:   []byte(strconv.FormatInt(n.OrderID, 10)),
			Value: value,
		})
	}

	if err := s.writer.WriteMessages(ctx, kafkaMessages...); err != nil {
		notificationsFailedCounter.Add(len(kafkaMessages))
		return errors.Wrap(err, "write notifications")
	}
	notificationsPublishedCounter.Add(len(kafkaMessages))
	return nil
}

func (s *Sweeper) observe(startTime time.Time) {
	sweepDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
}

func emailParameters(emailType payment.EmailType) map[string]any {
	return map[string]any{"email_type": string(emailType)}
}
