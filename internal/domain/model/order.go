package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// total_price = max(0, subtotal(items) - discount)
type Order struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64           `gorm:"not null;index;uniqueIndex:idx_orders_user_idempotency,priority:1" json:"user_id"`
	Status      OrderStatus     `gorm:"type:varchar(10);not null;default:'PENDING';index" json:"status"`
	PromoCodeID *int64          `gorm:"index" json:"promo_code_id"`
	Discount    decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"discount"`
	TotalPrice  decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"total_price"`

	//ヘッダーで受け取った二重送信防止キー（任意）
	IdempotencyKey *string `gorm:"type:varchar(255);uniqueIndex:idx_orders_user_idempotency,priority:2" json:"-"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
