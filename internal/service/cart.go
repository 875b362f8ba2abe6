package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velikanov/digital_shop/internal/gateway"
	"github.com/velikanov/digital_shop/internal/models"
)

// CartOwner identifies who a cart belongs to: an authenticated user or a
// guest holding a signed cart token.
type CartOwner struct {
	UserID     *uint
	GuestToken string
}

type CartService struct {
	DB       *gorm.DB
	Coupons  *CouponService
	Gateways gateway.Registry
	Currency string
}

func (s *CartService) findOpenCart(tx *gorm.DB, owner CartOwner) (*models.Order, error) {
	var order models.Order
	q := tx.Preload("Items").Where("status = ?", models.OrderStatusCart)
	if owner.UserID != nil {
		q = q.Where("user_id = ?", *owner.UserID)
	} else {
		q = q.Where("guest_token = ?", owner.GuestToken)
	}
	if err := q.First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrCreate resolves the open cart for the owner, creating an empty one
// if none exists yet.
func (s *CartService) GetOrCreate(ctx context.Context, owner CartOwner) (*models.Order, error) {
	tx := s.DB.WithContext(ctx)
	order, err := s.findOpenCart(tx, owner)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	order = &models.Order{
		UserID:     owner.UserID,
		GuestToken: owner.GuestToken,
		Status:     models.OrderStatusCart,
		CreatedAt:  time.Now().Unix(),
	}
	if err := tx.Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// recompute rebuilds subtotal/discount/total from the current line items.
// When refreshPrices is set the unit price snapshots are re-read from the
// catalog first; checkout does this once more right before the freeze.
// During cart mutations a coupon that no longer validates is detached
// rather than left applied at a stale discount; in strict mode (checkout)
// the validation error is returned instead so the checkout is rejected.
func (s *CartService) recompute(tx *gorm.DB, order *models.Order, owner CartOwner, refreshPrices, strict bool) error {
	var items []models.OrderItem
	if err := tx.Where("order_id = ?", order.ID).Order("id ASC").Find(&items).Error; err != nil {
		return err
	}

	var subtotal int64
	for i := range items {
		if refreshPrices {
			var p models.Product
			if err := tx.First(&p, items[i].ProductID).Error; err != nil {
				return fmt.Errorf("%w: product %d", ErrNotFound, items[i].ProductID)
			}
			if p.Price != items[i].UnitPrice {
				items[i].UnitPrice = p.Price
				if err := tx.Model(&models.OrderItem{}).Where("id = ?", items[i].ID).
					Update("unit_price", p.Price).Error; err != nil {
					return err
				}
			}
		}
		subtotal += int64(items[i].Quantity) * items[i].UnitPrice
	}

	var discount int64
	couponCode := order.CouponCode
	if couponCode != nil {
		c, err := getCouponTx(tx, *couponCode)
		if err == nil {
			err = s.Coupons.Validate(tx, c, subtotal, owner)
		}
		if err != nil {
			if strict {
				return err
			}
			couponCode = nil
		} else {
			discount, _ = Apply(subtotal, c)
		}
	}

	order.Subtotal = subtotal
	order.Discount = discount
	order.Total = subtotal - discount
	order.CouponCode = couponCode
	order.Items = items
	return tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
		"subtotal":    subtotal,
		"discount":    discount,
		"total":       subtotal - discount,
		"coupon_code": couponCode,
	}).Error
}

func (s *CartService) AddItem(ctx context.Context, owner CartOwner, productID uint, quantity uint) (*models.Order, error) {
	if quantity < 1 {
		quantity = 1
	}

	var order *models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.findOpenCart(tx, owner)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			order = &models.Order{
				UserID:     owner.UserID,
				GuestToken: owner.GuestToken,
				Status:     models.OrderStatusCart,
				CreatedAt:  time.Now().Unix(),
			}
			err = tx.Create(order).Error
		}
		if err != nil {
			return err
		}

		var p models.Product
		if err := tx.First(&p, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: product %d", ErrNotFound, productID)
			}
			return err
		}

		var existing models.OrderItem
		merged := quantity
		findErr := tx.Where("order_id = ? AND product_id = ?", order.ID, productID).First(&existing).Error
		if findErr == nil {
			merged += existing.Quantity
		} else if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		if err := CheckPurchasable(&p, merged); err != nil {
			return err
		}

		if findErr == nil {
			if err := tx.Model(&models.OrderItem{}).Where("id = ?", existing.ID).
				Updates(map[string]interface{}{"quantity": merged, "unit_price": p.Price}).Error; err != nil {
				return err
			}
		} else {
			item := models.OrderItem{
				OrderID:   order.ID,
				ProductID: productID,
				Quantity:  quantity,
				UnitPrice: p.Price,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
		}

		return s.recompute(tx, order, owner, false, false)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateItem sets a line's quantity; anything below 1 removes the line.
func (s *CartService) UpdateItem(ctx context.Context, owner CartOwner, itemID uint, quantity uint) (*models.Order, error) {
	var order *models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.findOpenCart(tx, owner)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: cart", ErrNotFound)
		}
		if err != nil {
			return err
		}

		var item models.OrderItem
		if err := tx.Where("id = ? AND order_id = ?", itemID, order.ID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: cart item %d", ErrNotFound, itemID)
			}
			return err
		}

		if quantity < 1 {
			if err := tx.Delete(&item).Error; err != nil {
				return err
			}
			return s.recompute(tx, order, owner, false, false)
		}

		var p models.Product
		if err := tx.First(&p, item.ProductID).Error; err != nil {
			return fmt.Errorf("%w: product %d", ErrNotFound, item.ProductID)
		}
		if err := CheckPurchasable(&p, quantity); err != nil {
			return err
		}
		if err := tx.Model(&models.OrderItem{}).Where("id = ?", item.ID).
			Update("quantity", quantity).Error; err != nil {
			return err
		}
		return s.recompute(tx, order, owner, false, false)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *CartService) RemoveItem(ctx context.Context, owner CartOwner, itemID uint) (*models.Order, error) {
	return s.UpdateItem(ctx, owner, itemID, 0)
}

func (s *CartService) ApplyCoupon(ctx context.Context, owner CartOwner, code string) (*models.Order, error) {
	var order *models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.findOpenCart(tx, owner)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: cart", ErrNotFound)
		}
		if err != nil {
			return err
		}

		c, err := getCouponTx(tx, code)
		if err != nil {
			return err
		}

		var subtotal int64
		var items []models.OrderItem
		if err := tx.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
			return err
		}
		for _, it := range items {
			subtotal += int64(it.Quantity) * it.UnitPrice
		}
		if err := s.Coupons.Validate(tx, c, subtotal, owner); err != nil {
			return err
		}

		normalized := c.Code
		order.CouponCode = &normalized
		return s.recompute(tx, order, owner, false, false)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *CartService) RemoveCoupon(ctx context.Context, owner CartOwner) (*models.Order, error) {
	var order *models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.findOpenCart(tx, owner)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: cart", ErrNotFound)
		}
		if err != nil {
			return err
		}
		order.CouponCode = nil
		return s.recompute(tx, order, owner, false, false)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Checkout freezes the cart into a pending order. Prices are recomputed
// one last time inside the transaction, stock and coupon are re-validated,
// and coupon usage is consumed atomically with the freeze. The payment
// intent is registered with the gateway only after the freeze commits, so
// a gateway outage leaves a pending order that can be paid later, never a
// mutable cart with consumed coupon usage.
func (s *CartService) Checkout(ctx context.Context, owner CartOwner, email, gatewayName string) (*models.Order, *models.Payment, error) {
	gw, ok := s.Gateways.Get(gatewayName)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown gateway %q", ErrValidation, gatewayName)
	}
	if owner.UserID == nil && email == "" {
		return nil, nil, fmt.Errorf("%w: email required for guest checkout", ErrValidation)
	}

	var order *models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.findOpenCart(tx, owner)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: cart", ErrNotFound)
		}
		if err != nil {
			return err
		}
		if len(order.Items) == 0 {
			return fmt.Errorf("%w: cart is empty", ErrValidation)
		}

		for _, it := range order.Items {
			var p models.Product
			if err := tx.First(&p, it.ProductID).Error; err != nil {
				return fmt.Errorf("%w: product %d", ErrNotFound, it.ProductID)
			}
			if err := CheckPurchasable(&p, it.Quantity); err != nil {
				return err
			}
			if p.FulfillmentType == models.FulfillmentLicenseCode {
				available, err := countAvailableTx(tx, p.ID)
				if err != nil {
					return err
				}
				if available < int64(it.Quantity) {
					return fmt.Errorf("%w: product %d has %d codes left", ErrInsufficientStock, p.ID, available)
				}
			}
		}

		if err := s.recompute(tx, order, owner, true, true); err != nil {
			return err
		}

		if order.CouponCode != nil {
			// recompute already re-validated the coupon in strict mode;
			// the usage increment rechecks the cap atomically.
			c, err := getCouponTx(tx, *order.CouponCode)
			if err != nil {
				return err
			}
			if err := s.Coupons.ConsumeUsage(tx, c.ID); err != nil {
				return err
			}
			redemption := models.CouponRedemption{
				CouponID:   c.ID,
				OrderID:    order.ID,
				UserID:     owner.UserID,
				GuestToken: owner.GuestToken,
				CreatedAt:  time.Now().Unix(),
			}
			if err := tx.Create(&redemption).Error; err != nil {
				return err
			}
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, models.OrderStatusCart).
			Updates(map[string]interface{}{
				"status": models.OrderStatusPending,
				"email":  email,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: cart was already checked out", ErrInvalidState)
		}
		order.Status = models.OrderStatusPending
		if email != "" {
			order.Email = email
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	payment, err := s.createPayment(ctx, order, gw)
	if err != nil {
		return order, nil, err
	}
	return order, payment, nil
}

func (s *CartService) createPayment(ctx context.Context, order *models.Order, gw gateway.Gateway) (*models.Payment, error) {
	externalID, err := gw.CreateIntent(ctx, order, s.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	payment := &models.Payment{
		TransactionNumber:     uuid.NewString(),
		ExternalTransactionID: externalID,
		OrderID:               order.ID,
		Amount:                order.Total,
		Currency:              s.Currency,
		Gateway:               gw.Name(),
		Status:                models.PaymentStatusPending,
		CreatedAt:             time.Now().Unix(),
	}
	if err := s.DB.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, err
	}
	return payment, nil
}
