package models

import (
	"time"
)

const (
	FulfillmentLicenseCode = "license_code"
	FulfillmentDigital     = "digital"
)

type Product struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"  json:"id"`
	Name            string `gorm:"not null"                  json:"name"`
	Description     string `json:"description"`
	Price           int64  `gorm:"not null"                  json:"price"`
	Stock           *int64 `json:"stock"`
	MinQuantity     uint   `gorm:"default:1"                 json:"min_quantity"`
	MaxQuantity     uint   `gorm:"default:0"                 json:"max_quantity"`
	FulfillmentType string `gorm:"not null"                  json:"fulfillment_type"`
	ObjectKey       string `json:"-"`
	Active          bool   `gorm:"default:true"              json:"active"`
}

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null"                 json:"role"`
}

const (
	OrderStatusCart       = "cart"
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

const (
	FulfillmentKindLicenseCodes = "license_codes"
	FulfillmentKindDownload     = "download"
)

type Order struct {
	ID                uint        `gorm:"primaryKey"     json:"id"`
	UserID            *uint       `gorm:"index"          json:"user_id,omitempty"`
	GuestToken        string      `gorm:"index"          json:"-"`
	Email             string      `json:"email"`
	Status            string      `gorm:"index;not null" json:"status"`
	Subtotal          int64       `json:"subtotal"`
	Discount          int64       `json:"discount"`
	Total             int64       `json:"total"`
	CouponCode        *string     `json:"coupon_code,omitempty"`
	FulfillmentKind   string      `json:"fulfillment_kind,omitempty"`
	FulfillmentResult string      `json:"fulfillment_result,omitempty"`
	FulfillmentError  string      `json:"fulfillment_error,omitempty"`
	CreatedAt         int64       `gorm:"not null"       json:"created_at"`
	Items             []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

type OrderItem struct {
	ID        uint  `gorm:"primaryKey"                json:"id"`
	OrderID   uint  `gorm:"index;not null"            json:"order_id"`
	ProductID uint  `gorm:"not null"                  json:"product_id"`
	Quantity  uint  `gorm:"not null;check:quantity>0" json:"quantity"`
	UnitPrice int64 `gorm:"not null"                  json:"unit_price"`
}

const (
	CouponTypePercentage = "percentage"
	CouponTypeFixed      = "fixed"
)

type Coupon struct {
	ID             uint       `gorm:"primaryKey"      json:"id"`
	Code           string     `gorm:"unique;not null" json:"code"`
	Type           string     `gorm:"not null"        json:"type"`
	Amount         int64      `gorm:"not null"        json:"amount"`
	Currency       string     `json:"currency,omitempty"`
	UsageCap       *uint      `json:"usage_cap,omitempty"`
	PerUserCap     *uint      `json:"per_user_cap,omitempty"`
	UsageCount     uint       `gorm:"default:0"       json:"usage_count"`
	MinOrderAmount int64      `json:"min_order_amount"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidTo        *time.Time `json:"valid_to,omitempty"`
	Active         bool       `gorm:"default:true"    json:"active"`
}

type CouponRedemption struct {
	ID         uint   `gorm:"primaryKey"     json:"id"`
	CouponID   uint   `gorm:"index;not null" json:"coupon_id"`
	OrderID    uint   `gorm:"index;not null" json:"order_id"`
	UserID     *uint  `gorm:"index"          json:"user_id,omitempty"`
	GuestToken string `gorm:"index"          json:"-"`
	CreatedAt  int64  `json:"created_at"`
}

type InventoryItem struct {
	ID        uint   `gorm:"primaryKey"      json:"id"`
	ProductID uint   `gorm:"index;not null"  json:"product_id"`
	Code      string `gorm:"unique;not null" json:"code"`
	Password  string `json:"password,omitempty"`
	OrderID   *uint  `gorm:"index"           json:"order_id,omitempty"`
}

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

type Payment struct {
	ID                    uint   `gorm:"primaryKey"      json:"id"`
	TransactionNumber     string `gorm:"unique;not null" json:"transaction_number"`
	ExternalTransactionID string `gorm:"uniqueIndex"     json:"external_transaction_id"`
	OrderID               uint   `gorm:"index;not null"  json:"order_id"`
	Amount                int64  `gorm:"not null"        json:"amount"`
	Currency              string `gorm:"not null"        json:"currency"`
	Method                string `json:"method"`
	Gateway               string `gorm:"not null"        json:"gateway"`
	Status                string `gorm:"index;not null"  json:"status"`
	CreatedAt             int64  `gorm:"not null"        json:"created_at"`
	PaidAt                *int64 `json:"paid_at,omitempty"`
}

const (
	RefundStatusPending   = "pending"
	RefundStatusSucceeded = "succeeded"
	RefundStatusFailed    = "failed"
)

type Refund struct {
	ID              uint   `gorm:"primaryKey"     json:"id"`
	PaymentID       uint   `gorm:"index;not null" json:"payment_id"`
	Amount          int64  `gorm:"not null"       json:"amount"`
	Currency        string `gorm:"not null"       json:"currency"`
	Status          string `gorm:"index;not null" json:"status"`
	GatewayRefundID string `gorm:"index"          json:"gateway_refund_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
	CreatedAt       int64  `gorm:"not null"       json:"created_at"`
}

type DownloadGrant struct {
	ID            uint   `gorm:"primaryKey"      json:"id"`
	Token         string `gorm:"unique;not null" json:"token"`
	OrderID       uint   `gorm:"index;not null"  json:"order_id"`
	ProductID     uint   `gorm:"not null"        json:"product_id"`
	ObjectKey     string `gorm:"not null"        json:"-"`
	DownloadsLeft int    `gorm:"not null"        json:"downloads_left"`
	ExpiresAt     int64  `gorm:"not null"        json:"expires_at"`
}
