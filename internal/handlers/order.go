package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/velikanov/digital_shop/internal/guesttoken"
	"github.com/velikanov/digital_shop/internal/models"
	"github.com/velikanov/digital_shop/internal/service"
)

type OrderHandler struct {
	Orders      *service.OrderService
	Payments    *service.PaymentService
	Refunds     *service.RefundService
	Fulfillment *service.FulfillmentService
	Guest       *guesttoken.Service
	JWTSecret   []byte
	Producer    Publisher
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	var req service.DirectOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	owner, err := resolveOwner(c, h.JWTSecret, h.Guest)
	if err != nil {
		return err
	}
	order, err := h.Orders.CreateDirect(c.Request().Context(), owner, req)
	if err != nil {
		return httpError(err)
	}

	publish(c, h.Producer, "order_events", map[string]any{
		"type":     "order_created",
		"order_id": order.ID,
		"total":    order.Total,
	})
	return c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}
	order, err := h.Orders.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if !h.canView(c, order) {
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	}
	return c.JSON(http.StatusOK, order)
}

// canView hides orders (and their fulfillment results) from anyone but
// their owner. Admins see everything; guests must present the guest
// token the order was placed with.
func (h *OrderHandler) canView(c echo.Context, order *models.Order) bool {
	userID, role := currentUser(c, h.JWTSecret)
	if role == "admin" {
		return true
	}
	if order.UserID != nil {
		return userID != nil && *userID == *order.UserID
	}
	if order.GuestToken == "" || h.Guest == nil {
		return false
	}
	cookie, err := c.Cookie(guestCartCookie)
	if err != nil || cookie.Value == "" {
		return false
	}
	key, err := h.Guest.Parse(cookie.Value)
	return err == nil && key == order.GuestToken
}

// Pay is the administrative transition used when no gateway webhook
// exists; it rejects unless the order is pending.
func (h *OrderHandler) Pay(c echo.Context) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	order, err := h.Payments.MarkPaid(c.Request().Context(), id)
	if err != nil && order == nil {
		return httpError(err)
	}

	publish(c, h.Producer, "payment_events", map[string]any{
		"type":     "payment_recorded",
		"order_id": id,
	})
	if err != nil {
		// Payment is recorded but fulfillment failed; surface the stuck
		// processing order rather than a false success.
		return c.JSON(http.StatusConflict, map[string]any{
			"order": order,
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) Refund(c echo.Context) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.Refunds.Refund(c.Request().Context(), id, req.Reason)
	if err != nil {
		return httpError(err)
	}

	publish(c, h.Producer, "payment_events", map[string]any{
		"type":     "order_refunded",
		"order_id": id,
		"amount":   result.Refund.Amount,
	})
	return c.JSON(http.StatusOK, result)
}

// Fulfill re-runs fulfillment for a processing order whose earlier attempt
// failed, e.g. after an operator restocked license codes.
func (h *OrderHandler) Fulfill(c echo.Context) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	order, err := h.Fulfillment.Dispatch(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}

	publish(c, h.Producer, "order_events", map[string]any{
		"type":     "order_fulfilled",
		"order_id": order.ID,
	})
	return c.JSON(http.StatusOK, order)
}
