package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velikanov/digital_shop/internal/gateway"
	"github.com/velikanov/digital_shop/internal/logging"
	"github.com/velikanov/digital_shop/internal/models"
)

// Outcome describes what a webhook delivery did. Every outcome except a
// signature failure is acknowledged with 200 so the gateway stops retrying.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnknown   Outcome = "unknown_transaction"
	OutcomeIgnored   Outcome = "ignored"
)

type PaymentService struct {
	DB          *gorm.DB
	Gateways    gateway.Registry
	Fulfillment *FulfillmentService
	Currency    string
}

func (s *PaymentService) currency() string {
	if s.Currency != "" {
		return s.Currency
	}
	return "usd"
}

// HandleWebhook verifies and reconciles one inbound gateway event. The
// external transaction id is the idempotency key: a replayed delivery
// finds the payment already in the target status and acknowledges without
// reprocessing.
func (s *PaymentService) HandleWebhook(ctx context.Context, gatewayName string, r *http.Request) (Outcome, error) {
	gw, ok := s.Gateways.Get(gatewayName)
	if !ok {
		return "", fmt.Errorf("%w: gateway %q", ErrNotFound, gatewayName)
	}

	evt, err := gw.VerifyWebhook(r)
	if err != nil {
		if errors.Is(err, gateway.ErrSignature) {
			return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return "", err
	}
	if evt.Type == gateway.EventIgnored {
		return OutcomeIgnored, nil
	}

	target := models.PaymentStatusPaid
	if evt.Type == gateway.EventFailed {
		target = models.PaymentStatusFailed
	}

	log := logging.FromContext(ctx)
	outcome := OutcomeApplied
	var orderID uint

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		findErr := tx.Where("external_transaction_id = ?", evt.ExternalID).First(&payment).Error
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			// Events for foreign or stale transactions are expected;
			// acknowledge so the gateway does not retry forever.
			log.Info("webhook for unknown transaction",
				"gateway", gatewayName, "external_id", evt.ExternalID)
			outcome = OutcomeUnknown
			return nil
		}
		if findErr != nil {
			return findErr
		}

		if payment.Status == target {
			outcome = OutcomeDuplicate
			return nil
		}

		updates := map[string]interface{}{"status": target}
		if target == models.PaymentStatusPaid {
			updates["paid_at"] = time.Now().Unix()
		}
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Raced with another delivery or the payment is terminal.
			outcome = OutcomeDuplicate
			return nil
		}

		if target == models.PaymentStatusPaid {
			if err := transitionTx(tx, payment.OrderID, models.OrderStatusPending, models.OrderStatusProcessing); err != nil {
				return err
			}
			orderID = payment.OrderID
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	// Fulfillment runs after the payment/order pair commits: a failure
	// here must not roll back the recorded payment, it leaves the order
	// processing with a diagnostic.
	if outcome == OutcomeApplied && orderID != 0 {
		if _, err := s.Fulfillment.Dispatch(ctx, orderID); err != nil {
			log.Error("fulfillment failed after payment",
				"order_id", orderID, "error", err)
		}
	}
	return outcome, nil
}

// MarkPaid is the administrative path used when no gateway webhook exists:
// it records a manual payment and drives the same processing+fulfillment
// sequence the reconciler does.
func (s *PaymentService) MarkPaid(ctx context.Context, orderID uint) (*models.Order, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
			}
			return err
		}

		var payment models.Payment
		findErr := tx.Where("order_id = ?", orderID).First(&payment).Error
		now := time.Now().Unix()
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			payment = models.Payment{
				TransactionNumber:     uuid.NewString(),
				ExternalTransactionID: "manual-" + uuid.NewString(),
				OrderID:               orderID,
				Amount:                order.Total,
				Currency:              s.currency(),
				Gateway:               "manual",
				Status:                models.PaymentStatusPaid,
				CreatedAt:             now,
				PaidAt:                &now,
			}
			if err := tx.Create(&payment).Error; err != nil {
				return err
			}
		} else if findErr != nil {
			return findErr
		} else {
			res := tx.Model(&models.Payment{}).
				Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
				Updates(map[string]interface{}{"status": models.PaymentStatusPaid, "paid_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: payment for order %d is %s", ErrInvalidState, orderID, payment.Status)
			}
		}

		return transitionTx(tx, orderID, models.OrderStatusPending, models.OrderStatusProcessing)
	})
	if err != nil {
		return nil, err
	}

	order, err := s.Fulfillment.Dispatch(ctx, orderID)
	if err != nil {
		// Payment is recorded; the order stays processing with the
		// diagnostic attached.
		var stuck models.Order
		if dbErr := s.DB.WithContext(ctx).Preload("Items").First(&stuck, orderID).Error; dbErr == nil {
			return &stuck, err
		}
		return nil, err
	}
	return order, nil
}
