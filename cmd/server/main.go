package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/velikanov/digital_shop/internal/config"
	"github.com/velikanov/digital_shop/internal/es"
	"github.com/velikanov/digital_shop/internal/gateway"
	"github.com/velikanov/digital_shop/internal/guesttoken"
	"github.com/velikanov/digital_shop/internal/handlers"
	"github.com/velikanov/digital_shop/internal/logging"
	"github.com/velikanov/digital_shop/internal/mykafka"
	"github.com/velikanov/digital_shop/internal/service"
	"github.com/velikanov/digital_shop/internal/storage"
	httpserver "github.com/velikanov/digital_shop/internal/transport/http"
)

func main() {
	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	slog.SetDefault(logging.New(configuration.LOG_LEVEL))

	jwtSecret := []byte(configuration.JWT_SECRET)

	prod, err := mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})
	if err != nil {
		log.Fatal(err)
	}

	esClient, err := es.NewClient(configuration)
	if err != nil {
		log.Fatal(err)
	}

	store, err := storage.NewS3Store(context.Background(), configuration.AWS_REGION, configuration.S3_BUCKET)
	if err != nil {
		log.Fatal(err)
	}

	gateways := gateway.NewRegistry(
		gateway.NewStripeGateway(configuration.STRIPE_SECRET_KEY, configuration.STRIPE_WEBHOOK_SECRET),
		gateway.NewWalletGateway(configuration.WALLET_WEBHOOK_SECRET, configuration.WALLET_API_BASE),
	)

	coupons := &service.CouponService{DB: db}
	inventory := &service.InventoryService{DB: db}
	orders := &service.OrderService{DB: db}
	carts := &service.CartService{DB: db, Coupons: coupons, Gateways: gateways, Currency: configuration.CURRENCY}
	fulfillment := &service.FulfillmentService{DB: db, Inventory: inventory}
	payments := &service.PaymentService{DB: db, Gateways: gateways, Fulfillment: fulfillment, Currency: configuration.CURRENCY}
	refunds := &service.RefundService{DB: db, Gateways: gateways}

	guest := &guesttoken.Service{Secret: []byte(configuration.GUEST_CART_SECRET)}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())

	deps := httpserver.Deps{
		AuthHandler:      &handlers.AuthHandler{DB: db, JWTSecret: jwtSecret, Producer: prod},
		ProductHandler:   &handlers.ProductHandler{DB: db, ES: esClient, Index: "product", Producer: prod},
		CartHandler:      &handlers.CartHandler{Cart: carts, Guest: guest, JWTSecret: jwtSecret, Producer: prod},
		OrderHandler:     &handlers.OrderHandler{Orders: orders, Payments: payments, Refunds: refunds, Fulfillment: fulfillment, Guest: guest, JWTSecret: jwtSecret, Producer: prod},
		WebhookHandler:   &handlers.WebhookHandler{Payments: payments, Producer: prod},
		InventoryHandler: &handlers.InventoryHandler{Inventory: inventory, Producer: prod},
		CouponHandler:    &handlers.CouponHandler{DB: db},
		DownloadHandler:  &handlers.DownloadHandler{DB: db, Store: store},
		SearchHandler:    &handlers.SearchHandler{ES: esClient, Index: "product"},
		JWTSecret:        jwtSecret,
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
