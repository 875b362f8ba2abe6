package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/velikanov/digital_shop/internal/models"
)

// InventoryService owns the pool of unconfigured license codes. Binding a
// code to an order is permanent; only an explicit administrative release
// puts codes back into the pool.
type InventoryService struct {
	DB *gorm.DB
}

func (s *InventoryService) CountAvailable(ctx context.Context, productID uint) (int64, error) {
	return countAvailableTx(s.DB.WithContext(ctx), productID)
}

func countAvailableTx(tx *gorm.DB, productID uint) (int64, error) {
	var n int64
	err := tx.Model(&models.InventoryItem{}).
		Where("product_id = ? AND order_id IS NULL", productID).
		Count(&n).Error
	return n, err
}

// Allocate binds exactly quantity unconsumed items to orderID, lowest ids
// first. The candidate ids are a snapshot; the bind itself re-checks
// order_id IS NULL, so under read committed a concurrent allocator that
// claimed one of the snapshotted rows first wins and this allocation
// comes up short. Any shortfall must roll back the caller's transaction.
func (s *InventoryService) Allocate(tx *gorm.DB, productID, orderID uint, quantity uint) ([]models.InventoryItem, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}

	var ids []uint
	if err := tx.Model(&models.InventoryItem{}).
		Where("product_id = ? AND order_id IS NULL", productID).
		Order("id ASC").
		Limit(int(quantity)).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	bound, err := bindCodes(tx, orderID, ids)
	if err != nil {
		return nil, err
	}
	if bound != int64(quantity) {
		return nil, fmt.Errorf("%w: product %d has %d codes left", ErrInsufficientStock, productID, bound)
	}

	var items []models.InventoryItem
	if err := tx.Where("order_id = ? AND product_id = ?", orderID, productID).
		Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// bindCodes claims the given items for orderID. The order_id IS NULL
// predicate guarantees an already-claimed row is never rebound, however
// stale the id list; the returned count tells the caller how many of the
// ids were still free.
func bindCodes(tx *gorm.DB, orderID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := tx.Model(&models.InventoryItem{}).
		Where("id IN ? AND order_id IS NULL", ids).
		Update("order_id", orderID)
	return res.RowsAffected, res.Error
}

type InventoryCode struct {
	Code     string `json:"code" validate:"required"`
	Password string `json:"password"`
}

func (s *InventoryService) AddItems(ctx context.Context, productID uint, codes []InventoryCode) ([]models.InventoryItem, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: codes required", ErrValidation)
	}
	items := make([]models.InventoryItem, 0, len(codes))
	for _, c := range codes {
		if c.Code == "" {
			return nil, fmt.Errorf("%w: empty code", ErrValidation)
		}
		items = append(items, models.InventoryItem{
			ProductID: productID,
			Code:      c.Code,
			Password:  c.Password,
		})
	}
	if err := s.DB.WithContext(ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Release is the administrative compensation path: it unbinds codes held
// by an order that never completed. Codes on a completed order have been
// shown to a customer and stay consumed.
func (s *InventoryService) Release(ctx context.Context, orderID uint) (int64, error) {
	var order models.Order
	if err := s.DB.WithContext(ctx).First(&order, orderID).Error; err != nil {
		return 0, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	if order.Status == models.OrderStatusCompleted {
		return 0, fmt.Errorf("%w: order %d is completed, its codes are consumed", ErrInvalidState, orderID)
	}

	res := s.DB.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("order_id = ?", orderID).
		Update("order_id", nil)
	return res.RowsAffected, res.Error
}
