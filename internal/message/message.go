package message

import (
	"github.com/google/uuid"
)

// VerificationRequest asks for the payment's last transaction to be verified
// with the provider.
type VerificationRequest struct {
	ID        uuid.UUID `json:"id"`
	PaymentID int64     `json:"paymentId"`
}

type NotificationType string

const (
	NotificationOrderPreparing          NotificationType = "order_preparing"
	NotificationFulfillmentConfirmation NotificationType = "fulfillment_confirmation"
)

// OrderNotification is consumed by the mailer.
type OrderNotification struct {
	ID            uuid.UUID        `json:"id"`
	Type          NotificationType `json:"type"`
	OrderID       int64            `json:"orderId"`
	FulfillmentID *int64           `json:"fulfillmentId,omitempty"`
	Email         string           `json:"email,omitempty"`
}
