package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"shop-service/internal/auth"
	"shop-service/internal/entity"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type PaymentRetrier interface {
	RetryPayment(ctx context.Context, p auth.Principal, orderID int64) (*entity.Order, error)
}

// PaymentRetryConsumer re-initiates card payments for orders whose first attempt failed.
type PaymentRetryConsumer struct {
	reader  MessageReader
	retrier PaymentRetrier
	backoff time.Duration
}

func NewPaymentRetryConsumer(reader MessageReader, retrier PaymentRetrier) *PaymentRetryConsumer {
	return &PaymentRetryConsumer{reader: reader, retrier: retrier, backoff: time.Second}
}

// Run consumes until ctx is canceled or the reader is closed.
func (c *PaymentRetryConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			logger.Error().Err(err).Msg("Error reading message")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		c.processMessage(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("Error committing message")
		}
	}
}

func (c *PaymentRetryConsumer) processMessage(ctx context.Context, msg kafka.Message) {
	if t := eventType(msg); t != "" && t != TypePaymentInitiationFailed {
		return
	}

	var event OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Error().Err(err).Str("key", string(msg.Key)).Msg("Error unmarshalling message")
		return
	}
	if event.Type != TypePaymentInitiationFailed {
		return
	}

	order, err := c.retrier.RetryPayment(ctx, auth.System, event.OrderID)
	if err != nil {
		logger.Error().Err(err).Int64("orderId", event.OrderID).Msg("Payment retry failed")
		return
	}
	logger.Info().Int64("orderId", order.ID).Bool("hasPaymentUrl", order.PaymentURL != "").Msg("Payment retry processed")
}

func eventType(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == headerEventType {
			return string(h.Value)
		}
	}
	return ""
}
