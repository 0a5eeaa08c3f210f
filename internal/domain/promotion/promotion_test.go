package promotion_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"ordersvc/internal/domain/model"
	"ordersvc/internal/domain/promotion"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedPromo(amount string) model.PromoCode {
	return model.PromoCode{
		Code:        "SAVE10",
		Name:        "Save $10",
		Kind:        model.PromoKindFixed,
		FixedAmount: decPtr(amount),
		StartAt:     now.Add(-time.Hour),
		EndAt:       now.Add(24 * time.Hour),
		IsActive:    true,
	}
}

func percentPromo(pct, max string) model.PromoCode {
	return model.PromoCode{
		Code:               "SAVE50%",
		Name:               "Save 50%",
		Kind:               model.PromoKindPercentage,
		DiscountPercentage: decPtr(pct),
		MaxDiscountAmount:  decPtr(max),
		StartAt:            now.Add(-time.Hour),
		EndAt:              now.Add(24 * time.Hour),
		IsActive:           true,
	}
}

func TestDiscount_Fixed(t *testing.T) {
	d := promotion.Discount(fixedPromo("10.00"), decimal.RequireFromString("100.00"))
	assert.Equal(t, "10.00", d.StringFixed(2))
}

// FIXEDは小計で上限を切らない
func TestDiscount_FixedNotCappedBySubtotal(t *testing.T) {
	d := promotion.Discount(fixedPromo("50.00"), decimal.RequireFromString("20.00"))
	assert.Equal(t, "50.00", d.StringFixed(2))
}

func TestDiscount_PercentageCapped(t *testing.T) {
	d := promotion.Discount(percentPromo("50", "50.00"), decimal.RequireFromString("200.00"))
	assert.Equal(t, "50.00", d.StringFixed(2))
}

func TestDiscount_PercentageUnderCap(t *testing.T) {
	d := promotion.Discount(percentPromo("50", "50.00"), decimal.RequireFromString("90.00"))
	assert.Equal(t, "45.00", d.StringFixed(2))
}

func TestDiscount_PercentageRoundsToCents(t *testing.T) {
	d := promotion.Discount(percentPromo("15", "100"), decimal.RequireFromString("33.33"))
	assert.Equal(t, "5.00", d.StringFixed(2))
}

func TestDiscount_UnknownKindIsZero(t *testing.T) {
	p := fixedPromo("10")
	p.Kind = "BOGO"
	assert.True(t, promotion.Discount(p, decimal.NewFromInt(100)).IsZero())
}

func TestCheck(t *testing.T) {
	ok := fixedPromo("10")

	inactive := ok
	inactive.IsActive = false

	expired := ok
	expired.EndAt = now.Add(-time.Minute)

	notStarted := ok
	notStarted.StartAt = now.Add(time.Minute)

	tests := []struct {
		name     string
		promo    model.PromoCode
		redeemed bool
		want     promotion.Rejection
	}{
		{"valid", ok, false, promotion.RejectNone},
		{"inactive", inactive, false, promotion.RejectInactive},
		{"expired", expired, false, promotion.RejectOutsideWindow},
		{"not started", notStarted, false, promotion.RejectOutsideWindow},
		{"already redeemed", ok, true, promotion.RejectAlreadyRedeemed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, promotion.Check(tt.promo, now, tt.redeemed))
		})
	}
}

func TestActiveAt_BoundariesInclusive(t *testing.T) {
	p := fixedPromo("10")
	assert.True(t, promotion.ActiveAt(p, p.StartAt))
	assert.True(t, promotion.ActiveAt(p, p.EndAt))
	assert.False(t, promotion.ActiveAt(p, p.EndAt.Add(time.Nanosecond)))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE10", promotion.NormalizeCode("  save10 "))
}

func TestValidate(t *testing.T) {
	assert.Empty(t, promotion.Validate(fixedPromo("10")))
	assert.Empty(t, promotion.Validate(percentPromo("50", "50")))

	noFixed := fixedPromo("10")
	noFixed.FixedAmount = nil
	assert.Contains(t, promotion.Validate(noFixed), "fixed_amount")

	noPct := percentPromo("50", "50")
	noPct.DiscountPercentage = nil
	assert.Contains(t, promotion.Validate(noPct), "discount_percentage")

	tooMuch := percentPromo("150", "50")
	assert.Contains(t, promotion.Validate(tooMuch), "discount_percentage")

	reversed := fixedPromo("10")
	reversed.StartAt, reversed.EndAt = reversed.EndAt, reversed.StartAt
	assert.Equal(t, "End date must be after start date", promotion.Validate(reversed)["end_at"])

	longCode := fixedPromo("10")
	longCode.Code = "ABCDEFGHIJKLMNOPQRSTU"
	assert.Contains(t, promotion.Validate(longCode), "code")
}
