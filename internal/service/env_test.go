package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/velikanov/digital_shop/internal/gateway"
	"github.com/velikanov/digital_shop/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.Coupon{},
		&models.CouponRedemption{},
		&models.InventoryItem{},
		&models.Payment{},
		&models.Refund{},
		&models.DownloadGrant{},
	))
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, p models.Product) *models.Product {
	t.Helper()
	if p.Name == "" {
		p.Name = "test product"
	}
	if p.FulfillmentType == "" {
		p.FulfillmentType = models.FulfillmentDigital
	}
	if p.MinQuantity == 0 {
		p.MinQuantity = 1
	}
	p.Active = true
	require.NoError(t, db.Create(&p).Error)
	return &p
}

func seedCodes(t *testing.T, db *gorm.DB, productID uint, codes ...string) {
	t.Helper()
	for _, code := range codes {
		require.NoError(t, db.Create(&models.InventoryItem{
			ProductID: productID,
			Code:      code,
		}).Error)
	}
}

// stubGateway is a canned gateway adapter for tests that do not exercise
// webhook verification.
type stubGateway struct {
	name      string
	intentID  string
	refundID  string
	intentErr error
	refundErr error

	// onRefund runs inside Refund, standing in for whatever happens
	// elsewhere while the gateway call is in flight.
	onRefund func()

	refundCalls int
}

func (g *stubGateway) Name() string {
	if g.name == "" {
		return "stub"
	}
	return g.name
}

func (g *stubGateway) CreateIntent(ctx context.Context, order *models.Order, currency string) (string, error) {
	if g.intentErr != nil {
		return "", g.intentErr
	}
	if g.intentID != "" {
		return g.intentID, nil
	}
	return fmt.Sprintf("pi_test_%d", order.ID), nil
}

func (g *stubGateway) VerifyWebhook(r *http.Request) (*gateway.Event, error) {
	return nil, errors.New("stub gateway has no webhooks")
}

func (g *stubGateway) Refund(ctx context.Context, payment *models.Payment, reason string) (string, error) {
	g.refundCalls++
	if g.onRefund != nil {
		g.onRefund()
	}
	if g.refundErr != nil {
		return "", g.refundErr
	}
	if g.refundID != "" {
		return g.refundID, nil
	}
	return "re_test_1", nil
}
