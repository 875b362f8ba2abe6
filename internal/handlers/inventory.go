package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/velikanov/digital_shop/internal/service"
)

type InventoryHandler struct {
	Inventory *service.InventoryService
	Producer  Publisher
}

func (h *InventoryHandler) AddItems(c echo.Context) error {
	productID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Codes []service.InventoryCode `json:"codes" validate:"required,dive"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	items, err := h.Inventory.AddItems(c.Request().Context(), productID, req.Codes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"added": len(items)})
}

func (h *InventoryHandler) CountAvailable(c echo.Context) error {
	productID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}
	n, err := h.Inventory.CountAvailable(c.Request().Context(), productID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"product_id": productID, "available": n})
}

// Release is the explicit administrative compensation for codes bound to
// an order that never completed.
func (h *InventoryHandler) Release(c echo.Context) error {
	var req struct {
		OrderID uint `json:"order_id" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	released, err := h.Inventory.Release(c.Request().Context(), req.OrderID)
	if err != nil {
		return httpError(err)
	}

	publish(c, h.Producer, "order_events", map[string]any{
		"type":     "inventory_released",
		"order_id": req.OrderID,
		"released": released,
	})
	return c.JSON(http.StatusOK, map[string]any{"released": released})
}
