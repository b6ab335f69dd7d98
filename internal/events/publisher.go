package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"shop-service/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const (
	TypeOrderCreated            = "order.created"
	TypeOrderStatusChanged      = "order.status_changed"
	TypeOrderDeleted            = "order.deleted"
	TypePaymentInitiationFailed = "order.payment_initiation_failed"
)

const headerEventType = "event-type"

// OrderEvent is the payload written to the order topic.
type OrderEvent struct {
	ID            string             `json:"id"`
	Type          string             `json:"type"`
	OrderID       int64              `json:"order_id"`
	UserID        int64              `json:"user_id"`
	Status        entity.OrderStatus `json:"status"`
	Total         int64              `json:"total"`
	Currency      string             `json:"currency"`
	PaymentMethod string             `json:"payment_method"`
	OccurredAt    time.Time          `json:"occurred_at"`
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher writes order events to Kafka. A Publisher without a writer drops events.
type Publisher struct {
	writer MessageWriter
}

func NewPublisher(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) Enabled() bool {
	return p != nil && p.writer != nil
}

// Publish writes one event keyed by order so that events of an order stay on one partition.
func (p *Publisher) Publish(ctx context.Context, eventType string, order *entity.Order) error {
	if !p.Enabled() {
		return nil
	}

	event := OrderEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        order.Status,
		Total:         order.Total,
		Currency:      order.Currency,
		PaymentMethod: order.PaymentMethod,
		OccurredAt:    time.Now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:     []byte(fmt.Sprintf("order-%d", order.ID)),
		Value:   value,
		Headers: []kafka.Header{{Key: headerEventType, Value: []byte(eventType)}},
		Time:    event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for order %d: %w", eventType, order.ID, err)
	}
	return nil
}
