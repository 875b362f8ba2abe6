package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation")         // 400
	ErrNotFound          = errors.New("not found")          // 404
	ErrInvalidState      = errors.New("invalid state")      // 409
	ErrInsufficientStock = errors.New("insufficient stock") // 400
	ErrUnauthorized      = errors.New("unauthorized")       // 401
	ErrGateway           = errors.New("gateway error")      // 502
)

// Coupon validation failures are all client errors, but callers may want
// to distinguish the reason.
var (
	ErrCouponExpired       = fmt.Errorf("%w: coupon expired", ErrValidation)
	ErrCouponInactive      = fmt.Errorf("%w: coupon inactive", ErrValidation)
	ErrCouponUsageExceeded = fmt.Errorf("%w: coupon usage exceeded", ErrValidation)
	ErrCouponBelowMinimum  = fmt.Errorf("%w: order below coupon minimum", ErrValidation)
)
