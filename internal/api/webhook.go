package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"shop-service/internal/service"
)

const maxCallbackBytes = 1 << 20

// Headers Paymob-style providers sign direct posts with. Redirect callbacks carry the
// signature in the hmac query parameter instead.
var signatureHeaders = []string{"X-Provider-Signature", "X-Paymob-Signature"}

type WebhookHandler struct {
	webhookService *service.WebhookService
}

func NewWebhookHandler(webhookService *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService}
}

func signature(c echo.Context) string {
	for _, h := range signatureHeaders {
		if v := c.Request().Header.Get(h); v != "" {
			return v
		}
	}
	return c.QueryParam("hmac")
}

// PaymobCallback reconciles a payment callback --> ANY /orders/paymob-webhook
func (h *WebhookHandler) PaymobCallback(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid webhook payload"})
	}

	res, err := h.webhookService.HandleCallback(c.Request().Context(), body, signature(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
