package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/velikanov/digital_shop/internal/gateway"
	"github.com/velikanov/digital_shop/internal/guesttoken"
	"github.com/velikanov/digital_shop/internal/hash"
	"github.com/velikanov/digital_shop/internal/models"
	"github.com/velikanov/digital_shop/internal/service"
)

const testWalletSecret = "test-wallet-secret"

type testValidator struct {
	validate *validator.Validate
}

func (v *testValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

type testEnv struct {
	T         *testing.T
	E         *echo.Echo
	DB        *gorm.DB
	JWTSecret []byte

	Auth     *AuthHandler
	Cart     *CartHandler
	Order    *OrderHandler
	Webhook  *WebhookHandler
	Download *DownloadHandler
}

func newTestEnv(t *testing.T) *testEnv {
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

	jwtSecret := []byte("test-jwt-secret")

	gateways := gateway.NewRegistry(gateway.NewWalletGateway(testWalletSecret, ""), okGateway{})
	coupons := &service.CouponService{DB: db}
	inventory := &service.InventoryService{DB: db}
	carts := &service.CartService{DB: db, Coupons: coupons, Gateways: gateways, Currency: "usd"}
	fulfillment := &service.FulfillmentService{DB: db, Inventory: inventory}
	payments := &service.PaymentService{DB: db, Gateways: gateways, Fulfillment: fulfillment, Currency: "usd"}
	refunds := &service.RefundService{DB: db, Gateways: gateways}
	orders := &service.OrderService{DB: db}

	e := echo.New()
	e.Validator = &testValidator{validate: validator.New()}

	guests := &guesttoken.Service{Secret: []byte("test-guest-secret")}

	return &testEnv{
		T:         t,
		E:         e,
		DB:        db,
		JWTSecret: jwtSecret,
		Auth:      &AuthHandler{DB: db, JWTSecret: jwtSecret},
		Cart: &CartHandler{
			Cart:      carts,
			Guest:     guests,
			JWTSecret: jwtSecret,
		},
		Order: &OrderHandler{
			Orders:      orders,
			Payments:    payments,
			Refunds:     refunds,
			Fulfillment: fulfillment,
			Guest:       guests,
			JWTSecret:   jwtSecret,
		},
		Webhook:  &WebhookHandler{Payments: payments},
		Download: &DownloadHandler{DB: db, Store: &fakePresigner{}},
	}
}

// okGateway approves everything; checkout success paths use it instead of
// a live provider.
type okGateway struct{}

func (okGateway) Name() string { return "testpay" }

func (okGateway) CreateIntent(ctx context.Context, order *models.Order, currency string) (string, error) {
	return fmt.Sprintf("pi_ok_%d", order.ID), nil
}

func (okGateway) VerifyWebhook(r *http.Request) (*gateway.Event, error) {
	return nil, errors.New("testpay has no webhooks")
}

func (okGateway) Refund(ctx context.Context, payment *models.Payment, reason string) (string, error) {
	return "re_ok_1", nil
}

type fakePresigner struct{}

func (f *fakePresigner) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://cdn.example.com/" + key + "?signed=1", nil
}

func (env *testEnv) doJSONRequest(method, path string, body interface{}, cookies ...*http.Cookie) (*httptest.ResponseRecorder, echo.Context) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	return rec, c
}

func cartCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	res := http.Response{Header: rec.Header()}
	for _, ck := range res.Cookies() {
		if ck.Name == "cartToken" {
			return ck
		}
	}
	t.Fatal("no cartToken cookie in response")
	return nil
}

func seedTestProduct(t *testing.T, db *gorm.DB, p models.Product) *models.Product {
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

func loginAs(t *testing.T, env *testEnv, username, role string) *http.Cookie {
	t.Helper()
	passwordHash, err := hash.HashPassword("password")
	require.NoError(t, err)
	require.NoError(t, env.DB.Create(&models.User{
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
	}).Error)

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/login", map[string]string{
		"username": username,
		"password": "password",
	})
	require.NoError(t, env.Auth.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	res := http.Response{Header: rec.Header()}
	for _, ck := range res.Cookies() {
		if ck.Name == "accessToken" {
			return ck
		}
	}
	t.Fatal("no accessToken cookie in response")
	return nil
}
