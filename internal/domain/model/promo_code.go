package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PromoKind string

const (
	PromoKindFixed      PromoKind = "FIXED"
	PromoKindPercentage PromoKind = "PERCENTAGE"
)

// プロモコード。削除はしない（注文から参照されるため）
type PromoCode struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Code string `gorm:"type:varchar(20);not null" json:"code"`

	//大文字に正規化したコード。大文字小文字を区別せず一意にする
	CodeKey string `gorm:"type:varchar(20);not null;uniqueIndex" json:"-"`

	Name string    `gorm:"type:varchar(100);not null" json:"name"`
	Kind PromoKind `gorm:"type:varchar(10);not null;index" json:"kind"`

	//FIXEDのとき必須
	FixedAmount *decimal.Decimal `gorm:"type:decimal(10,2)" json:"fixed_amount"`

	//PERCENTAGEのとき必須
	DiscountPercentage *decimal.Decimal `gorm:"type:decimal(5,2)" json:"discount_percentage"`
	MaxDiscountAmount  *decimal.Decimal `gorm:"type:decimal(10,2)" json:"max_discount_amount"`

	StartAt   time.Time `gorm:"not null;index" json:"start_at"`
	EndAt     time.Time `gorm:"not null" json:"end_at"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
