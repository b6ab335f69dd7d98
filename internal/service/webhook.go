package service

import (
	"context"
	"errors"

	"shop-service/internal/entity"
	"shop-service/internal/events"
	"shop-service/internal/metrics"
	"shop-service/internal/payment"
	"shop-service/internal/repository"
)

type SignatureVerifier interface {
	Verify(cb *payment.Callback, signature string) error
}

type CallbackResult struct {
	Success bool `json:"success"`
}

// WebhookService reconciles payment gateway callbacks with orders.
type WebhookService struct {
	tx        repository.TxManager
	orders    repository.OrderRepository
	inventory *Inventory
	verifier  SignatureVerifier
	publisher EventPublisher
	metrics   *metrics.Metrics
}

func NewWebhookService(tx repository.TxManager, orders repository.OrderRepository, inventory *Inventory,
	verifier SignatureVerifier, publisher EventPublisher, m *metrics.Metrics) *WebhookService {
	return &WebhookService{
		tx:        tx,
		orders:    orders,
		inventory: inventory,
		verifier:  verifier,
		publisher: publisher,
		metrics:   m,
	}
}

// HandleCallback verifies rawBody against signature and applies the payment outcome to the
// order that carries the callback's gateway order id. Only PENDING orders are moved.
// Redelivering a callback is a no-op that still succeeds, and a callback for an order that
// already left PENDING is recorded but does not move it.
func (s *WebhookService) HandleCallback(ctx context.Context, rawBody []byte, signature string) (*CallbackResult, error) {
	cb, err := payment.ParseCallback(rawBody)
	if err != nil {
		s.metrics.Callback("malformed")
		logger.Warn().Err(err).Msg("Rejected Paymob callback")
		return nil, validationError("Invalid webhook payload")
	}

	if signature == "" {
		s.metrics.Callback("unauthorized")
		return nil, unauthorizedError("Missing signature")
	}
	if err := s.verifier.Verify(cb, signature); err != nil {
		if errors.Is(err, payment.ErrMissingSecret) {
			logger.Error().Err(err).Msg("Payment configuration error")
			return nil, ErrInternal
		}
		s.metrics.Callback("unauthorized")
		logger.Warn().Str("paymobOrderId", cb.GatewayOrderID).Msg("Invalid Paymob signature")
		return nil, unauthorizedError("Invalid signature")
	}

	target := entity.OrderStatusCanceled
	if cb.Success {
		target = entity.OrderStatusConfirmed
	}

	var order *entity.Order
	changed := false
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.orders.LockByGatewayID(ctx, cb.GatewayOrderID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundError("Order not found")
		}
		if err != nil {
			return err
		}

		if order.Status == entity.OrderStatusDelivered {
			logger.Warn().Int64("orderId", order.ID).Msg("Ignoring Paymob callback for delivered order")
			return nil
		}

		switch {
		case order.Status == target:
		case order.Status == entity.OrderStatusPending && entity.CanTransition(order.Status, target):
			if err := applyStatus(ctx, s.orders, s.inventory, order, target); err != nil {
				return err
			}
			changed = true
		default:
			logger.Warn().Int64("orderId", order.ID).Str("status", string(order.Status)).
				Str("target", string(target)).Msg("Paymob callback does not change order status")
		}

		if err := s.orders.UpdateGatewayMetadata(ctx, order.ID, cb.Raw); err != nil {
			return err
		}
		order.PaymentGatewayMetadata = cb.Raw
		return nil
	})
	if err != nil {
		if KindOf(err) == KindNotFound {
			s.metrics.Callback("unknown_order")
			logger.Warn().Str("paymobOrderId", cb.GatewayOrderID).Msg("Paymob callback for unknown order")
			return nil, err
		}
		return nil, hideInternal(err, "Error reconciling Paymob callback")
	}

	if changed {
		if cb.Success {
			logger.Info().Int64("orderId", order.ID).Msg("Order confirmed via Paymob")
		} else {
			logger.Warn().Int64("orderId", order.ID).Bool("errorOccured", cb.ErrorOccured).Bool("pending", cb.Pending).
				Msg("Order failed via Paymob")
		}
		s.metrics.Callback(string(target))
		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, events.TypeOrderStatusChanged, order); err != nil {
				logger.Error().Err(err).Int64("orderId", order.ID).Msg("Error publishing order event")
			}
		}
	} else {
		s.metrics.Callback("unchanged")
	}
	return &CallbackResult{Success: true}, nil
}
