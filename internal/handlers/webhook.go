package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/velikanov/digital_shop/internal/service"
)

type WebhookHandler struct {
	Payments *service.PaymentService
	Producer Publisher
}

// HandleWebhook ingests one signed gateway event. Every handled outcome
// returns 200 so the gateway stops retrying; only signature failures (401)
// and internal faults (500) differ.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	gatewayName := c.Param("gateway")

	outcome, err := h.Payments.HandleWebhook(c.Request().Context(), gatewayName, c.Request())
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			return echo.NewHTTPError(http.StatusUnauthorized, "signature verification failed")
		}
		if errors.Is(err, service.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if outcome == service.OutcomeApplied {
		publish(c, h.Producer, "payment_events", map[string]any{
			"type":    "webhook_applied",
			"gateway": gatewayName,
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": string(outcome)})
}
