package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ordersvc/internal/domain/model"
)

// 注文一覧の絞り込み条件
type OrderListFilter struct {
	Page  int
	Limit int

	//所有者で絞る（スタッフ以外は必ず入る）
	UserID *int64
	Status string

	MinTotal    *decimal.Decimal
	MaxTotal    *decimal.Decimal
	MinDiscount *decimal.Decimal
	MaxDiscount *decimal.Decimal
	From        *time.Time
	To          *time.Time

	//プロモコード完全一致（大文字小文字は区別しない）
	PromoCode string
	//ユーザーemail部分一致
	UserEmail string
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	//行ロックして取得（トランザクション内で使う）
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)
	List(ctx context.Context, f OrderListFilter) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	//割引・合計・プロモコード参照をまとめて更新
	UpdatePricing(ctx context.Context, orderID int64, promoCodeID *int64, discount, total decimal.Decimal) error
	UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
	Delete(ctx context.Context, orderID int64) error

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error)

	//ユーザーの他の注文（ステータス問わず）がこのプロモコードを参照しているか
	ExistsByUserAndPromo(ctx context.Context, userID, promoCodeID, excludeOrderID int64) (bool, error)
}
