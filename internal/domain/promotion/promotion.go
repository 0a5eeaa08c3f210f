// Package promotion はプロモコードの有効判定と割引額の計算ルール。
package promotion

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ordersvc/internal/domain/model"
)

const MaxCodeLength = 20

var hundred = decimal.NewFromInt(100)

// 利用不可の内部理由。呼び出し側には区別せず InvalidPromoCode として返す
type Rejection string

const (
	RejectNone            Rejection = ""
	RejectNotFound        Rejection = "not_found"
	RejectInactive        Rejection = "inactive"
	RejectOutsideWindow   Rejection = "outside_window"
	RejectAlreadyRedeemed Rejection = "already_redeemed"
)

// NormalizeCode は大文字小文字を区別しない比較用のキーを作る。
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ActiveAt は is_active かつ start_at <= now <= end_at のとき true。
func ActiveAt(p model.PromoCode, now time.Time) bool {
	if !p.IsActive {
		return false
	}
	return !now.Before(p.StartAt) && !now.After(p.EndAt)
}

// Check はユーザーがこのコードを使えるかを判定する。
// redeemedBefore はそのユーザーの他の注文がこのコードを参照しているか（ステータス問わず）。
func Check(p model.PromoCode, now time.Time, redeemedBefore bool) Rejection {
	if !p.IsActive {
		return RejectInactive
	}
	if now.Before(p.StartAt) || now.After(p.EndAt) {
		return RejectOutsideWindow
	}
	if redeemedBefore {
		return RejectAlreadyRedeemed
	}
	return RejectNone
}

// Discount は小計に対する割引額。
// FIXEDは小計で上限を切らない（合計側で0に丸める）。PERCENTAGEは max_discount_amount で上限。
func Discount(p model.PromoCode, subtotal decimal.Decimal) decimal.Decimal {
	switch p.Kind {
	case model.PromoKindFixed:
		if p.FixedAmount == nil {
			return decimal.Zero
		}
		return *p.FixedAmount
	case model.PromoKindPercentage:
		if p.DiscountPercentage == nil {
			return decimal.Zero
		}
		amount := subtotal.Mul(*p.DiscountPercentage).Div(hundred).Round(2)
		if p.MaxDiscountAmount != nil && amount.GreaterThan(*p.MaxDiscountAmount) {
			amount = *p.MaxDiscountAmount
		}
		return amount
	default:
		return decimal.Zero
	}
}

// Validate はスタッフが作成・更新するときの入力チェック。エラーはフィールド名→メッセージ。
func Validate(p model.PromoCode) map[string]string {
	fields := map[string]string{}

	code := strings.TrimSpace(p.Code)
	if code == "" {
		fields["code"] = "This field is required."
	} else if len(code) > MaxCodeLength {
		fields["code"] = "Ensure this field has no more than 20 characters."
	}
	if strings.TrimSpace(p.Name) == "" {
		fields["name"] = "This field is required."
	}

	switch p.Kind {
	case model.PromoKindFixed:
		if p.FixedAmount == nil {
			fields["fixed_amount"] = "This field is required for FIXED promo codes"
		} else if p.FixedAmount.IsNegative() {
			fields["fixed_amount"] = "must be >= 0"
		}
	case model.PromoKindPercentage:
		if p.DiscountPercentage == nil {
			fields["discount_percentage"] = "This field is required for PERCENTAGE promo codes"
		} else if !p.DiscountPercentage.IsPositive() || p.DiscountPercentage.GreaterThan(hundred) {
			fields["discount_percentage"] = "must be > 0 and <= 100"
		}
		if p.MaxDiscountAmount == nil {
			fields["max_discount_amount"] = "This field is required for PERCENTAGE promo codes"
		} else if p.MaxDiscountAmount.IsNegative() {
			fields["max_discount_amount"] = "must be >= 0"
		}
	default:
		fields["kind"] = "must be FIXED or PERCENTAGE"
	}

	if p.StartAt.IsZero() {
		fields["start_at"] = "This field is required."
	}
	if p.EndAt.IsZero() {
		fields["end_at"] = "This field is required."
	}
	if !p.StartAt.IsZero() && !p.EndAt.IsZero() && p.StartAt.After(p.EndAt) {
		fields["end_at"] = "End date must be after start date"
	}

	return fields
}
