package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/velikanov/digital_shop/internal/models"
	"github.com/velikanov/digital_shop/internal/service"
)

type CouponHandler struct {
	DB *gorm.DB
}

type couponRequest struct {
	Code           string     `json:"code" validate:"required"`
	Type           string     `json:"type" validate:"required,oneof=percentage fixed"`
	Amount         int64      `json:"amount" validate:"required,min=1"`
	Currency       string     `json:"currency"`
	UsageCap       *uint      `json:"usage_cap"`
	PerUserCap     *uint      `json:"per_user_cap"`
	MinOrderAmount int64      `json:"min_order_amount"`
	ValidFrom      *time.Time `json:"valid_from"`
	ValidTo        *time.Time `json:"valid_to"`
}

func (h *CouponHandler) CreateCoupon(c echo.Context) error {
	var req couponRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Type == models.CouponTypePercentage && req.Amount > 100 {
		return echo.NewHTTPError(http.StatusBadRequest, "percentage amount must be at most 100")
	}

	coupon := models.Coupon{
		Code:           service.NormalizeCode(req.Code),
		Type:           req.Type,
		Amount:         req.Amount,
		Currency:       req.Currency,
		UsageCap:       req.UsageCap,
		PerUserCap:     req.PerUserCap,
		MinOrderAmount: req.MinOrderAmount,
		ValidFrom:      req.ValidFrom,
		ValidTo:        req.ValidTo,
		Active:         true,
	}
	if err := h.DB.Create(&coupon).Error; err != nil {
		return echo.NewHTTPError(http.StatusConflict, "coupon code already exists")
	}
	return c.JSON(http.StatusCreated, coupon)
}

func (h *CouponHandler) PatchCoupon(c echo.Context) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	var coupon models.Coupon
	if err := h.DB.First(&coupon, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "coupon not found")
	}

	var req struct {
		Active   *bool      `json:"active"`
		ValidTo  *time.Time `json:"valid_to"`
		UsageCap *uint      `json:"usage_cap"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	updates := map[string]interface{}{}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if req.ValidTo != nil {
		updates["valid_to"] = req.ValidTo
	}
	if req.UsageCap != nil {
		updates["usage_cap"] = *req.UsageCap
	}
	if len(updates) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no updatable fields")
	}
	if err := h.DB.Model(&coupon).Updates(updates).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, coupon)
}
