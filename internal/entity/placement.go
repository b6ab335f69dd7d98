package entity

import "time"

const maxDescriptionLen = 255

// PlaceOrderInput is what a customer submits at checkout. Totals are never taken from it.
type PlaceOrderInput struct {
	DeliveryNeeded bool      `json:"deliveryNeeded"`
	Shipping       *Shipping `json:"shipping,omitempty"`
	PaymentMethod  string    `json:"paymentMethod" validate:"required"`
	Notes          *string   `json:"notes,omitempty"`
	Currency       string    `json:"currency,omitempty"`
}

// NewOrder builds a PENDING order whose items snapshot the given cart lines.
func NewOrder(userID int64, in PlaceOrderInput, lines []CartLine, now time.Time) *Order {
	currency := in.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	order := &Order{
		UserID:         userID,
		Status:         OrderStatusPending,
		Currency:       currency,
		PaymentMethod:  in.PaymentMethod,
		Notes:          in.Notes,
		DeliveryNeeded: in.DeliveryNeeded,
		Shipping:       in.Shipping,
		CreatedAt:      now,
		Items:          make([]OrderItem, 0, len(lines)),
	}
	for _, line := range lines {
		order.Items = append(order.Items, OrderItem{
			ProductID:   line.ProductID,
			Name:        line.Name,
			Description: truncate(line.Description, maxDescriptionLen),
			AmountCents: ToCents(line.Price),
			Quantity:    line.Quantity,
			Currency:    currency,
			SKU:         line.SKU,
		})
	}
	order.Total = order.ComputeTotal()
	return order
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
