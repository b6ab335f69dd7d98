package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"shop-service/internal/auth"
	"shop-service/internal/entity"
	"shop-service/internal/idempotency"
	"shop-service/internal/service"
)

type OrderHandler struct {
	orderService *service.OrderService
}

// NewOrderHandler creates a new instance of OrderHandler
func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func paramID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func pagination(c echo.Context) (page, limit int, ok bool) {
	page, limit = 1, service.DefaultPageLimit
	var err error
	if v := c.QueryParam("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil {
			return 0, 0, false
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, false
		}
	}
	return page, limit, true
}

// PlaceOrder turns the caller's cart into an order --> POST /orders
func (h *OrderHandler) PlaceOrder(c echo.Context) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}

	in := entity.PlaceOrderInput{}
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	order, err := h.orderService.PlaceOrder(c.Request().Context(), p, c.Request().Header.Get(idempotency.Header), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, order)
}

// ListOrders pages through every order --> GET /orders
func (h *OrderHandler) ListOrders(c echo.Context) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	page, limit, ok := pagination(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid pagination"})
	}

	orders, err := h.orderService.ListOrders(c.Request().Context(), p, page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

// ListMine pages through the caller's orders --> GET /orders/mine
func (h *OrderHandler) ListMine(c echo.Context) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	page, limit, ok := pagination(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid pagination"})
	}

	orders, err := h.orderService.ListMine(c.Request().Context(), p, page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

// GetOrder --> GET /orders/:id and /orders/mine/:id
func (h *OrderHandler) GetOrder(c echo.Context) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	id, ok := paramID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}

	order, err := h.orderService.GetOrder(c.Request().Context(), p, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// UpdateStatus moves an order to another status --> PATCH /orders/:id/status
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	id, ok := paramID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}
	body := struct {
		Status entity.OrderStatus `json:"status"`
	}{}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	order, err := h.orderService.UpdateStatus(c.Request().Context(), p, id, body.Status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// CancelOrder --> PATCH /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c echo.Context) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	id, ok := paramID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}

	order, err := h.orderService.CancelOrder(c.Request().Context(), p, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// RetryPayment asks the gateway for a new payment URL --> POST /orders/:id/payment
func (h *OrderHandler) RetryPayment(c echo.Context) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	id, ok := paramID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}

	order, err := h.orderService.RetryPayment(c.Request().Context(), p, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// DeleteOrder --> DELETE /orders/:id
func (h *OrderHandler) DeleteOrder(c echo.Context) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	id, ok := paramID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}

	if err := h.orderService.DeleteOrder(c.Request().Context(), p, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Order deleted"})
}
