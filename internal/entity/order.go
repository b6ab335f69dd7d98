package entity

import (
	"encoding/json"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

const (
	DefaultCurrency   = "EGP"
	PaymentMethodCard = "card"
	GatewayPaymob     = "paymob"
)

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled:
		return true
	}
	return false
}

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCanceled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCanceled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

// CanTransition reports whether an order in status from may move to status to.
// Re-applying the current status is always allowed and is a no-op.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ShippingAddress struct {
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	Country    string `json:"country" validate:"required"`
	Building   string `json:"building,omitempty"`
	Floor      string `json:"floor,omitempty"`
	Apartment  string `json:"apartment,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	State      string `json:"state,omitempty"`
}

type Shipping struct {
	FirstName   string          `json:"firstName" validate:"required"`
	LastName    string          `json:"lastName" validate:"required"`
	PhoneNumber string          `json:"phoneNumber" validate:"required"`
	Address     ShippingAddress `json:"address"`
}

type Order struct {
	ID                     int64           `json:"id" db:"id"`
	UserID                 int64           `json:"user_id" db:"user_id"`
	Status                 OrderStatus     `json:"status" db:"status"`
	Total                  int64           `json:"total" db:"total"` // cents
	Currency               string          `json:"currency" db:"currency"`
	PaymentMethod          string          `json:"payment_method" db:"payment_method"`
	Notes                  *string         `json:"notes,omitempty" db:"notes"`
	DeliveryNeeded         bool            `json:"delivery_needed" db:"delivery_needed"`
	Shipping               *Shipping       `json:"shipping,omitempty" db:"-"`
	PaymentGateway         *string         `json:"payment_gateway,omitempty" db:"payment_gateway"`
	PaymentGatewayID       *string         `json:"payment_gateway_id,omitempty" db:"payment_gateway_id"`
	PaymentGatewayMetadata json.RawMessage `json:"payment_gateway_metadata,omitempty" db:"-"`
	CreatedAt              time.Time       `json:"created_at" db:"created_at"`
	Items                  []OrderItem     `json:"items" db:"-"`
	PaymentURL             string          `json:"payment_url,omitempty" db:"-"`
}

// OrderItem is a snapshot of a product at purchase time, keyed by (order, product).
type OrderItem struct {
	OrderID     int64   `json:"order_id" db:"order_id"`
	ProductID   int64   `json:"product_id" db:"product_id"`
	Name        string  `json:"name" db:"name"`
	Description string  `json:"description" db:"description"`
	AmountCents int64   `json:"amount_cents" db:"amount_cents"`
	Quantity    int     `json:"quantity" db:"quantity"`
	Currency    string  `json:"currency" db:"currency"`
	SKU         *string `json:"sku,omitempty" db:"sku"`
}

// IsCard reports whether the order is paid through the card gateway.
func (o *Order) IsCard() bool {
	return o.PaymentMethod == PaymentMethodCard
}

// AwaitingPaymentURL reports whether a card order still has no gateway correlation id.
func (o *Order) AwaitingPaymentURL() bool {
	return o.IsCard() && o.Status == OrderStatusPending && (o.PaymentGatewayID == nil || *o.PaymentGatewayID == "")
}

// ComputeTotal sums amount_cents * quantity over the order's items.
func (o *Order) ComputeTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.AmountCents * int64(item.Quantity)
	}
	return total
}

/*
MySQL tables: see migrations.AutoMigrate.

orders.shipping and orders.payment_gateway_metadata are JSON columns.
order_items has PRIMARY KEY (order_id, product_id).
*/
