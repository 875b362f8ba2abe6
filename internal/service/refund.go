package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/velikanov/digital_shop/internal/gateway"
	"github.com/velikanov/digital_shop/internal/models"
)

type RefundService struct {
	DB       *gorm.DB
	Gateways gateway.Registry
}

type RefundResult struct {
	Refund  *models.Refund  `json:"refund"`
	Order   *models.Order   `json:"order"`
	Payment *models.Payment `json:"payment"`
}

// Refund refunds an order's payment in full. A payment can hold at most
// one refund in a non-failed state: a retry after gateway success returns
// the existing refund, a retry while one is pending is rejected, and only
// a failed attempt may be retried for real.
func (s *RefundService) Refund(ctx context.Context, orderID uint, reason string) (*RefundResult, error) {
	var order models.Order
	var payment models.Payment
	var refund models.Refund

	// Precondition checks and the pending-refund row commit first, so a
	// concurrent second request sees the pending row and backs off.
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
			}
			return err
		}
		if order.Status != models.OrderStatusCompleted && order.Status != models.OrderStatusProcessing {
			return fmt.Errorf("%w: order %d is %s, only completed or processing orders can be refunded", ErrInvalidState, orderID, order.Status)
		}

		if err := tx.Where("order_id = ? AND status = ?", orderID, models.PaymentStatusPaid).
			First(&payment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d has no paid payment", ErrInvalidState, orderID)
			}
			return err
		}

		var existing models.Refund
		findErr := tx.Where("payment_id = ? AND status <> ?", payment.ID, models.RefundStatusFailed).
			First(&existing).Error
		if findErr == nil {
			if existing.Status == models.RefundStatusSucceeded {
				refund = existing
				return errAlreadyRefunded
			}
			return fmt.Errorf("%w: refund for payment %d is already in flight", ErrInvalidState, payment.ID)
		}
		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		refund = models.Refund{
			PaymentID: payment.ID,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
			Status:    models.RefundStatusPending,
			Reason:    reason,
			CreatedAt: time.Now().Unix(),
		}
		return tx.Create(&refund).Error
	})
	if errors.Is(err, errAlreadyRefunded) {
		return s.result(ctx, &refund, orderID)
	}
	if err != nil {
		return nil, err
	}

	gw, ok := s.Gateways.Get(payment.Gateway)
	if !ok {
		s.markFailed(ctx, refund.ID, fmt.Sprintf("no gateway adapter %q", payment.Gateway))
		return nil, fmt.Errorf("%w: no gateway adapter %q", ErrGateway, payment.Gateway)
	}

	gatewayRefundID, gwErr := gw.Refund(ctx, &payment, reason)
	if gwErr != nil {
		s.markFailed(ctx, refund.ID, gwErr.Error())
		return nil, fmt.Errorf("%w: %v", ErrGateway, gwErr)
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Refund{}).Where("id = ?", refund.ID).
			Updates(map[string]interface{}{
				"status":            models.RefundStatusSucceeded,
				"gateway_refund_id": gatewayRefundID,
			}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPaid).
			Update("status", models.PaymentStatusRefunded).Error; err != nil {
			return err
		}
		// The status captured before the gateway call may be stale: a
		// fulfillment retry can complete a processing order while the
		// refund is in flight. CAS from whatever the order is now.
		var current models.Order
		if err := tx.First(&current, orderID).Error; err != nil {
			return err
		}
		if current.Status == models.OrderStatusRefunded {
			return nil
		}
		return transitionTx(tx, orderID, current.Status, models.OrderStatusRefunded)
	})
	if err != nil {
		// The money already moved at the gateway. Keep its refund id on
		// the pending row so the attempt can be reconciled against the
		// provider instead of vanishing.
		s.DB.WithContext(ctx).Model(&models.Refund{}).Where("id = ?", refund.ID).
			Update("gateway_refund_id", gatewayRefundID)
		return nil, err
	}

	refund.Status = models.RefundStatusSucceeded
	refund.GatewayRefundID = gatewayRefundID
	return s.result(ctx, &refund, orderID)
}

var errAlreadyRefunded = errors.New("already refunded")

func (s *RefundService) markFailed(ctx context.Context, refundID uint, reason string) {
	s.DB.WithContext(ctx).Model(&models.Refund{}).Where("id = ?", refundID).
		Updates(map[string]interface{}{
			"status": models.RefundStatusFailed,
			"reason": reason,
		})
}

func (s *RefundService) result(ctx context.Context, refund *models.Refund, orderID uint) (*RefundResult, error) {
	var order models.Order
	if err := s.DB.WithContext(ctx).Preload("Items").First(&order, orderID).Error; err != nil {
		return nil, err
	}
	var payment models.Payment
	if err := s.DB.WithContext(ctx).First(&payment, refund.PaymentID).Error; err != nil {
		return nil, err
	}
	return &RefundResult{Refund: refund, Order: &order, Payment: &payment}, nil
}
