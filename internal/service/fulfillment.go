package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velikanov/digital_shop/internal/models"
)

type FulfillmentService struct {
	DB            *gorm.DB
	Inventory     *InventoryService
	DownloadTTL   time.Duration
	DownloadLimit int
}

func (s *FulfillmentService) downloadLimit() int {
	if s.DownloadLimit > 0 {
		return s.DownloadLimit
	}
	return 3
}

func (s *FulfillmentService) downloadTTL() time.Duration {
	if s.DownloadTTL > 0 {
		return s.DownloadTTL
	}
	return 72 * time.Hour
}

// Dispatch fulfills a processing order: license products get inventory
// codes bound to the order, digital products get download grants. The
// whole order fulfills in one transaction; if any line fails, nothing is
// bound, the order stays processing and the failure is recorded on the
// order for manual intervention.
func (s *FulfillmentService) Dispatch(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&order, orderID).Error; err != nil {
			return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		if order.Status != models.OrderStatusProcessing {
			return fmt.Errorf("%w: order %d is %s, not processing", ErrInvalidState, orderID, order.Status)
		}

		var lines []string
		var kind string
		for _, item := range order.Items {
			var p models.Product
			if err := tx.First(&p, item.ProductID).Error; err != nil {
				return fmt.Errorf("%w: product %d", ErrNotFound, item.ProductID)
			}

			switch p.FulfillmentType {
			case models.FulfillmentLicenseCode:
				allocated, err := s.Inventory.Allocate(tx, p.ID, order.ID, item.Quantity)
				if err != nil {
					return err
				}
				for _, inv := range allocated {
					if inv.Password != "" {
						lines = append(lines, inv.Code+":"+inv.Password)
					} else {
						lines = append(lines, inv.Code)
					}
				}
				kind = models.FulfillmentKindLicenseCodes

			case models.FulfillmentDigital:
				grant := models.DownloadGrant{
					Token:         uuid.NewString(),
					OrderID:       order.ID,
					ProductID:     p.ID,
					ObjectKey:     p.ObjectKey,
					DownloadsLeft: s.downloadLimit() * int(item.Quantity),
					ExpiresAt:     time.Now().Add(s.downloadTTL()).Unix(),
				}
				if err := tx.Create(&grant).Error; err != nil {
					return err
				}
				lines = append(lines, "/download/"+grant.Token)
				if kind == "" {
					kind = models.FulfillmentKindDownload
				}

			default:
				return fmt.Errorf("%w: product %d has unknown fulfillment type %q", ErrValidation, p.ID, p.FulfillmentType)
			}
		}

		result := strings.Join(lines, "\n")
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, models.OrderStatusProcessing).
			Updates(map[string]interface{}{
				"status":             models.OrderStatusCompleted,
				"fulfillment_kind":   kind,
				"fulfillment_result": result,
				"fulfillment_error":  "",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: order %d left processing mid-fulfillment", ErrInvalidState, orderID)
		}
		order.Status = models.OrderStatusCompleted
		order.FulfillmentKind = kind
		order.FulfillmentResult = result
		order.FulfillmentError = ""
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, orderID, err)
		return nil, err
	}
	return &order, nil
}

// recordFailure attaches the diagnostic to the order without touching its
// status, so operators see a processing order with a reason instead of a
// silently completed one.
func (s *FulfillmentService) recordFailure(ctx context.Context, orderID uint, cause error) {
	s.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, models.OrderStatusProcessing).
		Update("fulfillment_error", cause.Error())
}
