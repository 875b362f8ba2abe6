package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/velikanov/digital_shop/internal/guesttoken"
	"github.com/velikanov/digital_shop/internal/service"
)

type CartHandler struct {
	Cart      *service.CartService
	Guest     *guesttoken.Service
	JWTSecret []byte
	Producer  Publisher
}

const guestCartCookie = "cartToken"

// resolveOwner decides who the request acts for. Authenticated users are
// identified by their access token; everyone else gets a signed guest
// token, re-issued on every resolution so its expiry slides.
func resolveOwner(c echo.Context, jwtSecret []byte, guest *guesttoken.Service) (service.CartOwner, error) {
	if userID, _ := currentUser(c, jwtSecret); userID != nil {
		return service.CartOwner{UserID: userID}, nil
	}

	var key string
	if cookie, err := c.Cookie(guestCartCookie); err == nil && cookie.Value != "" {
		if parsed, err := guest.Parse(cookie.Value); err == nil {
			key = parsed
		}
	}

	key, signed, err := guest.Issue(key)
	if err != nil {
		return service.CartOwner{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.SetCookie(CreateCookie(guestCartCookie, signed, "/", time.Now().Add(guesttoken.TTL)))
	return service.CartOwner{GuestToken: key}, nil
}

func (h *CartHandler) owner(c echo.Context) (service.CartOwner, error) {
	return resolveOwner(c, h.JWTSecret, h.Guest)
}

func (h *CartHandler) GetCart(c echo.Context) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}
	order, err := h.Cart.GetOrCreate(c.Request().Context(), owner)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *CartHandler) AddItem(c echo.Context) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	var req struct {
		ProductID uint `json:"product_id" validate:"required"`
		Quantity  uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	order, err := h.Cart.AddItem(c.Request().Context(), owner, req.ProductID, req.Quantity)
	if err != nil {
		return httpError(err)
	}

	publish(c, h.Producer, "cart_events", map[string]any{
		"type":       "cart_item_added",
		"order_id":   order.ID,
		"product_id": req.ProductID,
	})
	return c.JSON(http.StatusOK, order)
}

func (h *CartHandler) UpdateItem(c echo.Context) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}
	itemID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Quantity uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	order, err := h.Cart.UpdateItem(c.Request().Context(), owner, itemID, req.Quantity)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}
	itemID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	order, err := h.Cart.RemoveItem(c.Request().Context(), owner, itemID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *CartHandler) ApplyCoupon(c echo.Context) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	var req struct {
		Code string `json:"code" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	order, err := h.Cart.ApplyCoupon(c.Request().Context(), owner, req.Code)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *CartHandler) RemoveCoupon(c echo.Context) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}
	order, err := h.Cart.RemoveCoupon(c.Request().Context(), owner)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *CartHandler) Checkout(c echo.Context) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	var req struct {
		Email   string `json:"email" validate:"omitempty,email"`
		Gateway string `json:"gateway"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Gateway == "" {
		req.Gateway = "stripe"
	}

	order, payment, err := h.Cart.Checkout(c.Request().Context(), owner, req.Email, req.Gateway)
	if err != nil {
		return httpError(err)
	}

	if owner.UserID == nil {
		c.SetCookie(CreateCookie(guestCartCookie, "", "/", time.Unix(0, 0)))
	}

	publish(c, h.Producer, "order_events", map[string]any{
		"type":     "order_checked_out",
		"order_id": order.ID,
		"total":    order.Total,
	})

	return c.JSON(http.StatusOK, map[string]any{
		"order":   order,
		"payment": payment,
	})
}
