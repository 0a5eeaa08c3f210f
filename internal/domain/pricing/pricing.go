// Package pricing は注文金額の計算を行う純粋関数をまとめる。
package pricing

import (
	"github.com/shopspring/decimal"

	"ordersvc/internal/domain/model"
)

// LinePrice は明細の価格（unit_price × quantity）。予約時に一度だけ計算して保存する。
func LinePrice(unitPrice decimal.Decimal, quantity int64) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(quantity))
}

// Subtotal は明細価格の合計。
func Subtotal(items []model.OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Price)
	}
	return sum
}

// Finalize は (discount, total) を返す。
// totalは0で下限を切るが、discountは小計を超えていてもそのまま返す。
func Finalize(subtotal, discount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return discount, total
}
