package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderUnconfirmed        OrderStatus = "unconfirmed"
	OrderUnfulfilled        OrderStatus = "unfulfilled"
	OrderPartiallyFulfilled OrderStatus = "partially-fulfilled"
	OrderFulfilled          OrderStatus = "fulfilled"
	OrderCanceled           OrderStatus = "canceled"
)

type Order struct {
	ID        int64
	UserID    *int64
	UserEmail string
	Status    OrderStatus
	CreatedAt time.Time
}

type OrderLine struct {
	ID            int64
	OrderID       int64
	ProductID     *int64
	VariantID     *int64
	ProductTypeID *int64
	ProductName   string
	VariantName   string
	ProductSKU    string
	Quantity      int
	UnitPrice     decimal.Decimal
	IsDigital     bool
}

type Fulfillment struct {
	ID      int64
	OrderID int64
}

// MetadataOwner names the catalog record a metadata entry belongs to.
type MetadataOwner string

const (
	OwnerProductType MetadataOwner = "product_type"
	OwnerProduct     MetadataOwner = "product"
	OwnerVariant     MetadataOwner = "variant"
)

type OrderEventType string

const (
	EventPaymentCaptured OrderEventType = "payment_captured"
	EventEmailSent       OrderEventType = "email_sent"
)

type EmailType string

const (
	EmailFulfillment  EmailType = "fulfillment"
	EmailDigitalLinks EmailType = "digital_links"
)
