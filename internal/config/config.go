package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/velikanov/digital_shop/internal/models"
)

type Config struct {
	DB_HOST               string
	DB_PORT               string
	DB_USER               string
	DB_PASSWORD           string
	DB_NAME               string
	ES_URL                string
	ES_USER               string
	ES_PASSWORD           string
	JWT_SECRET            string
	GUEST_CART_SECRET     string
	KAFKA_ADDRESS         string
	STRIPE_SECRET_KEY     string
	STRIPE_WEBHOOK_SECRET string
	WALLET_WEBHOOK_SECRET string
	WALLET_API_BASE       string
	S3_BUCKET             string
	AWS_REGION            string
	CURRENCY              string
	LOG_LEVEL             string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		DB_HOST:               os.Getenv("DB_HOST"),
		DB_PORT:               os.Getenv("DB_PORT"),
		DB_USER:               os.Getenv("DB_USER"),
		DB_PASSWORD:           os.Getenv("DB_PASSWORD"),
		DB_NAME:               os.Getenv("DB_NAME"),
		ES_URL:                os.Getenv("ES_URL"),
		ES_USER:               os.Getenv("ES_USER"),
		ES_PASSWORD:           os.Getenv("ES_PASSWORD"),
		JWT_SECRET:            os.Getenv("JWT_SECRET"),
		GUEST_CART_SECRET:     os.Getenv("GUEST_CART_SECRET"),
		KAFKA_ADDRESS:         os.Getenv("KAFKA_ADDRESS"),
		STRIPE_SECRET_KEY:     os.Getenv("STRIPE_SECRET_KEY"),
		STRIPE_WEBHOOK_SECRET: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		WALLET_WEBHOOK_SECRET: os.Getenv("WALLET_WEBHOOK_SECRET"),
		WALLET_API_BASE:       os.Getenv("WALLET_API_BASE"),
		S3_BUCKET:             os.Getenv("S3_BUCKET"),
		AWS_REGION:            os.Getenv("AWS_REGION"),
		CURRENCY:              os.Getenv("CURRENCY"),
		LOG_LEVEL:             os.Getenv("LOG_LEVEL"),
	}
	if config.CURRENCY == "" {
		config.CURRENCY = "usd"
	}

	return config, nil
}

func InitDB() (*gorm.DB, error) {
	configuration, _ := LoadConfig()

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		configuration.DB_USER, configuration.DB_PASSWORD,
		configuration.DB_HOST, configuration.DB_PORT, configuration.DB_NAME,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Product{},
		&models.User{},
		&models.Order{},
		&models.OrderItem{},
		&models.Coupon{},
		&models.CouponRedemption{},
		&models.InventoryItem{},
		&models.Payment{},
		&models.Refund{},
		&models.DownloadGrant{},
	)
}
