package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velikanov/digital_shop/internal/models"
)

func uintPtr(v uint) *uint { return &v }

func TestApplyPercentage(t *testing.T) {
	c := &models.Coupon{Type: models.CouponTypePercentage, Amount: 10}

	discount, total := Apply(10000, c)
	require.Equal(t, int64(1000), discount)
	require.Equal(t, int64(9000), total)

	// same inputs, same outputs
	discount2, total2 := Apply(10000, c)
	require.Equal(t, discount, discount2)
	require.Equal(t, total, total2)
}

func TestApplyPercentageFloors(t *testing.T) {
	c := &models.Coupon{Type: models.CouponTypePercentage, Amount: 10}
	discount, total := Apply(999, c)
	require.Equal(t, int64(99), discount)
	require.Equal(t, int64(900), total)
}

func TestApplyFixedClampsToSubtotal(t *testing.T) {
	c := &models.Coupon{Type: models.CouponTypeFixed, Amount: 5000}
	discount, total := Apply(3000, c)
	require.Equal(t, int64(3000), discount)
	require.Equal(t, int64(0), total)
}

func TestValidate(t *testing.T) {
	db := newTestDB(t)
	s := &CouponService{DB: db}
	owner := CartOwner{GuestToken: "guest-1"}

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	t.Run("inactive", func(t *testing.T) {
		c := &models.Coupon{Active: false}
		require.ErrorIs(t, s.Validate(db, c, 1000, owner), ErrCouponInactive)
	})

	t.Run("not yet valid", func(t *testing.T) {
		c := &models.Coupon{Active: true, ValidFrom: &future}
		require.ErrorIs(t, s.Validate(db, c, 1000, owner), ErrCouponExpired)
	})

	t.Run("expired", func(t *testing.T) {
		c := &models.Coupon{Active: true, ValidTo: &past}
		require.ErrorIs(t, s.Validate(db, c, 1000, owner), ErrCouponExpired)
	})

	t.Run("global cap reached", func(t *testing.T) {
		c := &models.Coupon{Active: true, UsageCap: uintPtr(3), UsageCount: 3}
		require.ErrorIs(t, s.Validate(db, c, 1000, owner), ErrCouponUsageExceeded)
	})

	t.Run("below minimum", func(t *testing.T) {
		c := &models.Coupon{Active: true, MinOrderAmount: 2000}
		require.ErrorIs(t, s.Validate(db, c, 1999, owner), ErrCouponBelowMinimum)
	})

	t.Run("ok", func(t *testing.T) {
		c := &models.Coupon{Active: true, ValidFrom: &past, ValidTo: &future, MinOrderAmount: 500}
		require.NoError(t, s.Validate(db, c, 1000, owner))
	})
}

func TestValidatePerUserCap(t *testing.T) {
	db := newTestDB(t)
	s := &CouponService{DB: db}

	c := models.Coupon{Code: "ONCE", Type: models.CouponTypeFixed, Amount: 100, Active: true, PerUserCap: uintPtr(1)}
	require.NoError(t, db.Create(&c).Error)

	userID := uintPtr(7)
	require.NoError(t, db.Create(&models.CouponRedemption{
		CouponID: c.ID,
		OrderID:  1,
		UserID:   userID,
	}).Error)

	require.ErrorIs(t, s.Validate(db, &c, 1000, CartOwner{UserID: userID}), ErrCouponUsageExceeded)

	// a different owner is unaffected
	require.NoError(t, s.Validate(db, &c, 1000, CartOwner{GuestToken: "someone-else"}))
}

func TestConsumeUsageEnforcesCap(t *testing.T) {
	db := newTestDB(t)
	s := &CouponService{DB: db}

	c := models.Coupon{Code: "LAST1", Type: models.CouponTypeFixed, Amount: 100, Active: true, UsageCap: uintPtr(1)}
	require.NoError(t, db.Create(&c).Error)

	require.NoError(t, s.ConsumeUsage(db, c.ID))
	require.ErrorIs(t, s.ConsumeUsage(db, c.ID), ErrCouponUsageExceeded)

	var got models.Coupon
	require.NoError(t, db.First(&got, c.ID).Error)
	require.Equal(t, uint(1), got.UsageCount)
}

func TestGetByCodeNormalizes(t *testing.T) {
	db := newTestDB(t)
	s := &CouponService{DB: db}

	require.NoError(t, db.Create(&models.Coupon{
		Code: "SAVE10", Type: models.CouponTypePercentage, Amount: 10, Active: true,
	}).Error)

	c, err := s.GetByCode(context.Background(), "  save10 ")
	require.NoError(t, err)
	require.Equal(t, "SAVE10", c.Code)

	_, err = s.GetByCode(context.Background(), "MISSING")
	require.ErrorIs(t, err, ErrNotFound)
}
