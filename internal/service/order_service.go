package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shop-service/internal/auth"
	"shop-service/internal/entity"
	"shop-service/internal/events"
	"shop-service/internal/metrics"
	"shop-service/internal/payment"
	"shop-service/internal/repository"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type PaymentGateway interface {
	Initiate(ctx context.Context, order *entity.Order, merchantOrderID string, billing payment.Billing) (*payment.Initiation, error)
	InitiatePayment(ctx context.Context, order *entity.Order, merchantOrderID string, billing payment.Billing) *payment.Initiation
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, order *entity.Order) error
}

type IdempotencyGuard interface {
	Claim(ctx context.Context, scope, key string) (bool, error)
	Forget(ctx context.Context, scope, key string) error
}

// OrderPage is one page of orders, newest first.
type OrderPage struct {
	Data []entity.Order `json:"data"`
	Meta PageMeta       `json:"meta"`
}

type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// OrderService places orders and drives them through their lifecycle.
type OrderService struct {
	tx        repository.TxManager
	orders    repository.OrderRepository
	carts     repository.CartRepository
	users     repository.UserRepository
	inventory *Inventory
	gateway   PaymentGateway
	publisher EventPublisher
	guard     IdempotencyGuard
	metrics   *metrics.Metrics
	validate  *validator.Validate
	now       func() time.Time
}

// NewOrderService creates a new instance of OrderService. publisher and guard may be nil.
func NewOrderService(tx repository.TxManager, orders repository.OrderRepository, carts repository.CartRepository,
	users repository.UserRepository, inventory *Inventory, gateway PaymentGateway, publisher EventPublisher,
	guard IdempotencyGuard, m *metrics.Metrics) *OrderService {
	return &OrderService{
		tx:        tx,
		orders:    orders,
		carts:     carts,
		users:     users,
		inventory: inventory,
		gateway:   gateway,
		publisher: publisher,
		guard:     guard,
		metrics:   m,
		validate:  newValidator(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder converts the caller's cart into a PENDING order. Stock is reserved, the order
// is written and the cart emptied in one transaction. Card payment is set up after commit
// and never fails the placement.
func (s *OrderService) PlaceOrder(ctx context.Context, p auth.Principal, idempotencyKey string, in entity.PlaceOrderInput) (*entity.Order, error) {
	if in.DeliveryNeeded && in.Shipping == nil {
		return nil, validationError("Shipping information is required for delivery")
	}
	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}

	scope := strconv.FormatInt(p.UserID, 10)
	claimed, err := s.claim(ctx, scope, idempotencyKey)
	if err != nil {
		return nil, err
	}

	var order *entity.Order
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		cart, err := s.carts.LockByUser(ctx, p.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return validationError("Cart not found")
		}
		if err != nil {
			return err
		}

		lines, err := s.carts.LockLines(ctx, cart.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return validationError("Cart is empty")
		}

		for _, line := range lines {
			if line.Stock < line.Quantity {
				return &StockConflictError{ProductID: line.ProductID, Name: line.Name, Available: line.Stock}
			}
		}
		for _, line := range lines {
			if err := s.inventory.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		order = entity.NewOrder(p.UserID, in, lines, s.now())
		if err := s.orders.Create(ctx, order); err != nil {
			return err
		}
		return s.carts.DeleteItems(ctx, cart.ID)
	})
	if err != nil {
		if claimed {
			if ferr := s.guard.Forget(ctx, scope, idempotencyKey); ferr != nil {
				logger.Warn().Err(ferr).Str("key", idempotencyKey).Msg("Error releasing idempotency key")
			}
		}
		logger.Error().Err(err).Int64("userId", p.UserID).Msg("Order creation failed")
		if KindOf(err) == KindConflict {
			s.metrics.StockConflict()
		}
		if k := KindOf(err); k == KindValidation || k == KindConflict {
			return nil, err
		}
		return nil, ErrInternal
	}

	logger.Info().Int64("orderId", order.ID).Int64("userId", p.UserID).Int64("total", order.Total).Msg("Order created")
	s.metrics.OrderPlaced(order.IsCard())
	s.publish(ctx, events.TypeOrderCreated, order)

	if order.IsCard() {
		if init := s.gateway.InitiatePayment(ctx, order, strconv.FormatInt(order.ID, 10), s.billing(ctx, order)); init != nil {
			s.metrics.PaymentInitiated(true)
			s.attachPayment(ctx, order, init)
		} else {
			s.metrics.PaymentInitiated(false)
			s.publish(ctx, events.TypePaymentInitiationFailed, order)
		}
	}
	return order, nil
}

// claim reserves the idempotency key. Without Redis the cart row lock is the only guard,
// so an unavailable store is logged and placement goes ahead.
func (s *OrderService) claim(ctx context.Context, scope, key string) (bool, error) {
	if key == "" || s.guard == nil {
		return false, nil
	}
	ok, err := s.guard.Claim(ctx, scope, key)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Idempotency store unavailable")
		return false, nil
	}
	if !ok {
		return false, conflictError("A request with this idempotency key was already processed")
	}
	return true, nil
}

func (s *OrderService) billing(ctx context.Context, order *entity.Order) payment.Billing {
	var email string
	user, err := s.users.GetByID(ctx, order.UserID)
	if err != nil {
		logger.Warn().Err(err).Int64("userId", order.UserID).Msg("Error loading billing user")
	} else {
		email = user.Email
	}
	return payment.BillingFor(order, email)
}

// attachPayment stores the gateway correlation id and exposes the payment URL on order.
// The order row is re-locked so a payment is never attached to an order that moved on.
func (s *OrderService) attachPayment(ctx context.Context, order *entity.Order, init *payment.Initiation) {
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := s.orders.LockByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Status != entity.OrderStatusPending {
			return fmt.Errorf("order is %s", current.Status)
		}
		return s.orders.UpdatePayment(ctx, order.ID, entity.GatewayPaymob, init.GatewayOrderID)
	})
	if err != nil {
		logger.Error().Err(err).Int64("orderId", order.ID).Msg("Error saving payment reference")
		return
	}

	gateway, gatewayID := entity.GatewayPaymob, init.GatewayOrderID
	order.PaymentGateway = &gateway
	order.PaymentGatewayID = &gatewayID
	order.PaymentURL = init.PaymentURL
}

func (s *OrderService) publish(ctx context.Context, eventType string, order *entity.Order) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, order); err != nil {
		logger.Error().Err(err).Int64("orderId", order.ID).Str("event", eventType).Msg("Error publishing order event")
	}
}

// hideInternal logs an unexpected failure and replaces it with ErrInternal.
func hideInternal(err error, msg string) error {
	if isContractError(err) {
		return err
	}
	logger.Error().Err(err).Msg(msg)
	return ErrInternal
}

func pageBounds(page, limit int) error {
	if page < 1 {
		return validationError("Page must be at least 1")
	}
	if limit < 1 || limit > MaxPageLimit {
		return validationError("Limit must be between 1 and %d", MaxPageLimit)
	}
	return nil
}

func (s *OrderService) list(ctx context.Context, userID *int64, page, limit int) (*OrderPage, error) {
	if err := pageBounds(page, limit); err != nil {
		return nil, err
	}
	orders, total, err := s.orders.List(ctx, repository.OrderFilter{UserID: userID, Offset: (page - 1) * limit, Limit: limit})
	if err != nil {
		return nil, hideInternal(err, "Error listing orders")
	}
	return &OrderPage{
		Data: orders,
		Meta: PageMeta{Total: total, Page: page, Limit: limit, TotalPages: (total + limit - 1) / limit},
	}, nil
}

// ListOrders pages through every order. Admin only.
func (s *OrderService) ListOrders(ctx context.Context, p auth.Principal, page, limit int) (*OrderPage, error) {
	if !p.IsAdmin() {
		return nil, forbiddenError("Admin role required")
	}
	return s.list(ctx, nil, page, limit)
}

// ListMine pages through the caller's own orders.
func (s *OrderService) ListMine(ctx context.Context, p auth.Principal, page, limit int) (*OrderPage, error) {
	userID := p.UserID
	return s.list(ctx, &userID, page, limit)
}

func (s *OrderService) GetOrder(ctx context.Context, p auth.Principal, id int64) (*entity.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundError("Order not found")
	}
	if err != nil {
		return nil, hideInternal(err, "Error getting order")
	}
	if !auth.CanAccessOrder(p, order) {
		return nil, forbiddenError("You do not have permission to access this order")
	}
	return order, nil
}

// lockOrder loads the order under a row lock and applies the access policy before anything else.
func (s *OrderService) lockOrder(ctx context.Context, p auth.Principal, id int64) (*entity.Order, error) {
	order, err := s.orders.LockByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundError("Order not found")
	}
	if err != nil {
		return nil, err
	}
	if !auth.CanAccessOrder(p, order) {
		return nil, forbiddenError("You do not have permission to access this order")
	}
	return order, nil
}

// UpdateStatus moves an order to status on behalf of an admin.
func (s *OrderService) UpdateStatus(ctx context.Context, p auth.Principal, id int64, status entity.OrderStatus) (*entity.Order, error) {
	if !p.IsAdmin() {
		return nil, forbiddenError("Admin role required")
	}
	if !status.Valid() {
		return nil, validationError("Unknown order status %q", status)
	}

	var order *entity.Order
	changed := false
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.lockOrder(ctx, p, id)
		if err != nil {
			return err
		}
		if order.Status == entity.OrderStatusDelivered && status != entity.OrderStatusDelivered {
			return validationError("Delivered orders cannot be modified")
		}
		if !entity.CanTransition(order.Status, status) {
			return validationError("Cannot change order status from %s to %s", order.Status, status)
		}
		if order.Status == status {
			return nil
		}
		changed = true
		return applyStatus(ctx, s.orders, s.inventory, order, status)
	})
	if err != nil {
		return nil, hideInternal(err, "Error updating order status")
	}

	if changed {
		logger.Info().Int64("orderId", id).Str("status", string(status)).Msg("Order status updated")
		s.publish(ctx, events.TypeOrderStatusChanged, order)
	}
	return order, nil
}

// CancelOrder cancels an order and returns its stock. Owners may cancel PENDING orders;
// admins may also cancel CONFIRMED ones.
func (s *OrderService) CancelOrder(ctx context.Context, p auth.Principal, id int64) (*entity.Order, error) {
	var order *entity.Order
	changed := false
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.lockOrder(ctx, p, id)
		if err != nil {
			return err
		}
		if !entity.CanTransition(order.Status, entity.OrderStatusCanceled) ||
			(order.Status == entity.OrderStatusConfirmed && !p.IsAdmin()) {
			return validationError("Orders in status %s cannot be canceled", order.Status)
		}
		if order.Status == entity.OrderStatusCanceled {
			return nil
		}
		changed = true
		return applyStatus(ctx, s.orders, s.inventory, order, entity.OrderStatusCanceled)
	})
	if err != nil {
		return nil, hideInternal(err, "Error canceling order")
	}

	if changed {
		logger.Info().Int64("orderId", id).Msg("Order has been canceled")
		s.publish(ctx, events.TypeOrderStatusChanged, order)
	}
	return order, nil
}

// DeleteOrder removes a PENDING order and its items and returns the reserved stock. Admin only.
func (s *OrderService) DeleteOrder(ctx context.Context, p auth.Principal, id int64) error {
	if !p.IsAdmin() {
		return forbiddenError("Admin role required")
	}

	var order *entity.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.lockOrder(ctx, p, id)
		if err != nil {
			return err
		}
		if order.Status != entity.OrderStatusPending {
			return validationError("Only pending orders can be deleted")
		}
		for _, item := range order.Items {
			if err := s.inventory.Release(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return s.orders.Delete(ctx, id)
	})
	if err != nil {
		return hideInternal(err, "Error deleting order")
	}

	logger.Warn().Int64("orderId", id).Msg("Order deleted")
	s.publish(ctx, events.TypeOrderDeleted, order)
	return nil
}

// RetryPayment sets up card payment again for a PENDING card order. For the system
// principal it only acts on orders still without a gateway reference, so redelivered
// retry events are harmless.
func (s *OrderService) RetryPayment(ctx context.Context, p auth.Principal, id int64) (*entity.Order, error) {
	order, err := s.GetOrder(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !order.IsCard() {
		return nil, validationError("Only card orders can be paid online")
	}
	if order.Status != entity.OrderStatusPending {
		return nil, validationError("Only pending orders can be paid")
	}
	if p.IsSystem() && !order.AwaitingPaymentURL() {
		return order, nil
	}

	merchantOrderID := fmt.Sprintf("%d-%s", order.ID, uuid.NewString()[:8])
	init, err := s.gateway.Initiate(ctx, order, merchantOrderID, s.billing(ctx, order))
	s.metrics.PaymentInitiated(err == nil)
	if err != nil {
		logger.Error().Err(err).Int64("orderId", order.ID).Msg("Payment retry failed")
		return nil, gatewayError("Payment gateway unavailable")
	}

	s.attachPayment(ctx, order, init)
	if order.PaymentURL == "" {
		return nil, ErrInternal
	}
	return order, nil
}

// applyStatus writes a status change that CanTransition already allowed. Entering
// CANCELED returns every item's quantity to stock in the caller's transaction; CANCELED
// is terminal, so this happens at most once per order.
func applyStatus(ctx context.Context, orders repository.OrderRepository, inventory *Inventory, order *entity.Order, to entity.OrderStatus) error {
	if to == entity.OrderStatusCanceled {
		for _, item := range order.Items {
			if err := inventory.Release(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
	}
	if err := orders.UpdateStatus(ctx, order.ID, to); err != nil {
		return err
	}
	order.Status = to
	return nil
}
