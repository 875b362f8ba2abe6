package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/velikanov/digital_shop/internal/models"
)

func newFulfillment(db *gorm.DB) *FulfillmentService {
	return &FulfillmentService{DB: db, Inventory: &InventoryService{DB: db}}
}

func seedProcessingOrder(t *testing.T, db *gorm.DB, items ...models.OrderItem) *models.Order {
	t.Helper()
	order := models.Order{Status: models.OrderStatusProcessing, GuestToken: "g", Items: items}
	require.NoError(t, db.Create(&order).Error)
	return &order
}

func TestDispatchLicenseCodes(t *testing.T) {
	db := newTestDB(t)
	s := newFulfillment(db)

	p := seedProduct(t, db, models.Product{Price: 5000, FulfillmentType: models.FulfillmentLicenseCode})
	require.NoError(t, db.Create(&models.InventoryItem{ProductID: p.ID, Code: "KEY-1", Password: "pw1"}).Error)
	require.NoError(t, db.Create(&models.InventoryItem{ProductID: p.ID, Code: "KEY-2"}).Error)

	order := seedProcessingOrder(t, db, models.OrderItem{ProductID: p.ID, Quantity: 2, UnitPrice: 5000})

	got, err := s.Dispatch(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCompleted, got.Status)
	require.Equal(t, models.FulfillmentKindLicenseCodes, got.FulfillmentKind)
	require.Equal(t, "KEY-1:pw1\nKEY-2", got.FulfillmentResult)

	// both codes are bound to the order
	var bound int64
	require.NoError(t, db.Model(&models.InventoryItem{}).Where("order_id = ?", order.ID).Count(&bound).Error)
	require.Equal(t, int64(2), bound)
}

func TestDispatchDigitalGrants(t *testing.T) {
	db := newTestDB(t)
	s := newFulfillment(db)

	p := seedProduct(t, db, models.Product{Price: 5000, FulfillmentType: models.FulfillmentDigital, ObjectKey: "builds/app.zip"})
	order := seedProcessingOrder(t, db, models.OrderItem{ProductID: p.ID, Quantity: 1, UnitPrice: 5000})

	got, err := s.Dispatch(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCompleted, got.Status)
	require.Equal(t, models.FulfillmentKindDownload, got.FulfillmentKind)
	require.True(t, strings.HasPrefix(got.FulfillmentResult, "/download/"))

	var grant models.DownloadGrant
	require.NoError(t, db.Where("order_id = ?", order.ID).First(&grant).Error)
	require.Equal(t, "builds/app.zip", grant.ObjectKey)
	require.Equal(t, 3, grant.DownloadsLeft)
	require.Equal(t, "/download/"+grant.Token, got.FulfillmentResult)
}

func TestDispatchMixedOrderReportsLicenseKind(t *testing.T) {
	db := newTestDB(t)
	s := newFulfillment(db)

	lic := seedProduct(t, db, models.Product{Price: 5000, FulfillmentType: models.FulfillmentLicenseCode})
	seedCodes(t, db, lic.ID, "KEY-1")
	dig := seedProduct(t, db, models.Product{Price: 2000, FulfillmentType: models.FulfillmentDigital, ObjectKey: "k"})

	order := seedProcessingOrder(t, db,
		models.OrderItem{ProductID: dig.ID, Quantity: 1, UnitPrice: 2000},
		models.OrderItem{ProductID: lic.ID, Quantity: 1, UnitPrice: 5000},
	)

	got, err := s.Dispatch(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, models.FulfillmentKindLicenseCodes, got.FulfillmentKind)
	require.Len(t, strings.Split(got.FulfillmentResult, "\n"), 2)
}

func TestDispatchFailureLeavesOrderProcessing(t *testing.T) {
	db := newTestDB(t)
	s := newFulfillment(db)

	lic := seedProduct(t, db, models.Product{Price: 5000, FulfillmentType: models.FulfillmentLicenseCode})
	seedCodes(t, db, lic.ID, "KEY-1")
	dig := seedProduct(t, db, models.Product{Price: 2000, FulfillmentType: models.FulfillmentDigital, ObjectKey: "k"})

	// two codes needed, one available: the whole dispatch must fail
	order := seedProcessingOrder(t, db,
		models.OrderItem{ProductID: dig.ID, Quantity: 1, UnitPrice: 2000},
		models.OrderItem{ProductID: lic.ID, Quantity: 2, UnitPrice: 5000},
	)

	_, err := s.Dispatch(context.Background(), order.ID)
	require.ErrorIs(t, err, ErrInsufficientStock)

	var got models.Order
	require.NoError(t, db.First(&got, order.ID).Error)
	require.Equal(t, models.OrderStatusProcessing, got.Status)
	require.NotEmpty(t, got.FulfillmentError)
	require.Empty(t, got.FulfillmentResult)

	// nothing was bound and no grants were created
	var bound int64
	require.NoError(t, db.Model(&models.InventoryItem{}).Where("order_id = ?", order.ID).Count(&bound).Error)
	require.Equal(t, int64(0), bound)
	var grants int64
	require.NoError(t, db.Model(&models.DownloadGrant{}).Where("order_id = ?", order.ID).Count(&grants).Error)
	require.Equal(t, int64(0), grants)
}

func TestDispatchRetrySucceedsAfterRestock(t *testing.T) {
	db := newTestDB(t)
	s := newFulfillment(db)

	lic := seedProduct(t, db, models.Product{Price: 5000, FulfillmentType: models.FulfillmentLicenseCode})
	order := seedProcessingOrder(t, db, models.OrderItem{ProductID: lic.ID, Quantity: 1, UnitPrice: 5000})

	_, err := s.Dispatch(context.Background(), order.ID)
	require.ErrorIs(t, err, ErrInsufficientStock)

	seedCodes(t, db, lic.ID, "KEY-1")

	got, err := s.Dispatch(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCompleted, got.Status)
	require.Empty(t, got.FulfillmentError)
}

func TestDispatchRequiresProcessing(t *testing.T) {
	db := newTestDB(t)
	s := newFulfillment(db)

	order := models.Order{Status: models.OrderStatusPending, GuestToken: "g"}
	require.NoError(t, db.Create(&order).Error)

	_, err := s.Dispatch(context.Background(), order.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}
