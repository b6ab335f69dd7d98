package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"shop-service/internal/auth"
	"shop-service/internal/service"
)

type CartHandler struct {
	cartService *service.CartService
}

func NewCartHandler(cartService *service.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

// GetCart --> GET /cart
func (h *CartHandler) GetCart(c echo.Context) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	cart, err := h.cartService.GetCart(c.Request().Context(), p)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

// AddItem --> POST /cart
func (h *CartHandler) AddItem(c echo.Context) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	in := service.CartItemInput{}
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	cart, err := h.cartService.AddItem(c.Request().Context(), p, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

// UpdateItem --> PATCH /cart/item/:id
func (h *CartHandler) UpdateItem(c echo.Context) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	id, ok := paramID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}
	body := struct {
		Quantity int `json:"quantity"`
	}{}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	cart, err := h.cartService.UpdateItem(c.Request().Context(), p, id, body.Quantity)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

// RemoveItem --> DELETE /cart/item/:id
func (h *CartHandler) RemoveItem(c echo.Context) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	id, ok := paramID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}

	cart, err := h.cartService.RemoveItem(c.Request().Context(), p, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

// MergeCarts folds a guest cart into the caller's --> POST /cart/merge
func (h *CartHandler) MergeCarts(c echo.Context) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	body := struct {
		Items []service.CartItemInput `json:"items"`
	}{}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	cart, err := h.cartService.MergeCarts(c.Request().Context(), p, body.Items)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

// ClearCart --> DELETE /cart/clear
func (h *CartHandler) ClearCart(c echo.Context) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	if err := h.cartService.ClearCart(c.Request().Context(), p); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Cart cleared"})
}

// ProductStock --> GET /products/:id/stock
func (h *CartHandler) ProductStock(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}
	stock, err := h.cartService.ProductStock(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"stock": stock})
}
