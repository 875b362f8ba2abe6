package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/velikanov/digital_shop/internal/models"
)

// OrderService is the lifecycle controller. Every transition is a
// compare-and-set on the current status, so a stale or duplicate trigger
// affects zero rows instead of double-applying.
type OrderService struct {
	DB *gorm.DB
}

var transitions = map[string][]string{
	models.OrderStatusCart:       {models.OrderStatusPending},
	models.OrderStatusPending:    {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusCompleted, models.OrderStatusRefunded},
	models.OrderStatusCompleted:  {models.OrderStatusRefunded},
}

func allowed(from, to string) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Transition moves an order from one status to another, failing with
// ErrInvalidState when the order is not currently in the expected status.
func (s *OrderService) Transition(ctx context.Context, orderID uint, from, to string) error {
	return transitionTx(s.DB.WithContext(ctx), orderID, from, to)
}

func transitionTx(tx *gorm.DB, orderID uint, from, to string) error {
	if !allowed(from, to) {
		return fmt.Errorf("%w: no transition %s -> %s", ErrInvalidState, from, to)
	}
	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: order %d is not %s", ErrInvalidState, orderID, from)
	}
	return nil
}

func (s *OrderService) Get(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.DB.WithContext(ctx).Preload("Items").First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, err
	}
	return &order, nil
}

type DirectOrderRequest struct {
	ProductID uint   `json:"product_id" validate:"required"`
	Quantity  uint   `json:"quantity"   validate:"required,min=1"`
	Email     string `json:"email"      validate:"omitempty,email"`
}

// CreateDirect creates a pending single-product order, bypassing the cart.
// Quantity bounds and stock are validated the same way checkout does.
func (s *OrderService) CreateDirect(ctx context.Context, owner CartOwner, req DirectOrderRequest) (*models.Order, error) {
	if owner.UserID == nil && req.Email == "" {
		return nil, fmt.Errorf("%w: email required", ErrValidation)
	}

	var order models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Product
		if err := tx.First(&p, req.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: product %d", ErrNotFound, req.ProductID)
			}
			return err
		}
		if err := CheckPurchasable(&p, req.Quantity); err != nil {
			return err
		}
		if p.FulfillmentType == models.FulfillmentLicenseCode {
			available, err := countAvailableTx(tx, p.ID)
			if err != nil {
				return err
			}
			if available < int64(req.Quantity) {
				return fmt.Errorf("%w: product %d has %d codes left", ErrInsufficientStock, p.ID, available)
			}
		}

		subtotal := int64(req.Quantity) * p.Price
		order = models.Order{
			UserID:     owner.UserID,
			GuestToken: owner.GuestToken,
			Email:      req.Email,
			Status:     models.OrderStatusPending,
			Subtotal:   subtotal,
			Total:      subtotal,
			CreatedAt:  time.Now().Unix(),
			Items: []models.OrderItem{{
				ProductID: p.ID,
				Quantity:  req.Quantity,
				UnitPrice: p.Price,
			}},
		}
		return tx.Create(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}
