package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/velikanov/digital_shop/internal/models"
)

type CouponService struct {
	DB *gorm.DB
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *CouponService) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return getCouponTx(s.DB.WithContext(ctx), code)
}

func getCouponTx(tx *gorm.DB, code string) (*models.Coupon, error) {
	var c models.Coupon
	if err := tx.Where("code = ?", NormalizeCode(code)).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: coupon %q", ErrNotFound, code)
		}
		return nil, err
	}
	return &c, nil
}

// Validate checks a coupon against a cart snapshot. It does not consume
// usage; ConsumeUsage does that atomically at checkout.
func (s *CouponService) Validate(tx *gorm.DB, c *models.Coupon, subtotal int64, owner CartOwner) error {
	now := time.Now()
	if !c.Active {
		return ErrCouponInactive
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return ErrCouponExpired
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return ErrCouponExpired
	}
	if c.UsageCap != nil && c.UsageCount >= *c.UsageCap {
		return ErrCouponUsageExceeded
	}
	if c.PerUserCap != nil {
		var used int64
		q := tx.Model(&models.CouponRedemption{}).Where("coupon_id = ?", c.ID)
		if owner.UserID != nil {
			q = q.Where("user_id = ?", *owner.UserID)
		} else {
			q = q.Where("guest_token = ?", owner.GuestToken)
		}
		if err := q.Count(&used).Error; err != nil {
			return err
		}
		if used >= int64(*c.PerUserCap) {
			return ErrCouponUsageExceeded
		}
	}
	if subtotal < c.MinOrderAmount {
		return ErrCouponBelowMinimum
	}
	return nil
}

// Apply prices a coupon against a subtotal. Percentage discounts floor;
// fixed discounts clamp so the total never goes negative.
func Apply(subtotal int64, c *models.Coupon) (discount, total int64) {
	switch c.Type {
	case models.CouponTypePercentage:
		discount = subtotal * c.Amount / 100
	case models.CouponTypeFixed:
		discount = c.Amount
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount, subtotal - discount
}

// ConsumeUsage increments the coupon's usage count, rechecking the cap in
// the same statement so two redemptions racing near the cap cannot both
// pass. Call inside the checkout transaction.
func (s *CouponService) ConsumeUsage(tx *gorm.DB, couponID uint) error {
	res := tx.Model(&models.Coupon{}).
		Where("id = ? AND (usage_cap IS NULL OR usage_count < usage_cap)", couponID).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCouponUsageExceeded
	}
	return nil
}
