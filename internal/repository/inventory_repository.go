package repository

import (
	"context"
	"errors"

	"ordersvc/internal/domain/model"
)

// 在庫不足（予約できなかった）
var ErrInsufficientStock = errors.New("insufficient stock")

type InventoryRepository interface {
	// 商品行をid昇順でまとめてロックする。削除済みも対象、存在しないidは無視
	// 予約・戻しの前に呼び、複数商品のロック順をトランザクション間で揃える
	LockProducts(ctx context.Context, productIDs []int64) error

	// 在庫の現在値を設定
	SetStock(ctx context.Context, productID int64, newStock int64) error

	// 在庫が足りるときだけ減算し、予約した商品を返す（価格スナップショット用）
	// 足りないときは ErrInsufficientStock、商品が無いときは ErrNotFound。副作用なし
	Reserve(ctx context.Context, productID int64, qty int64) (model.Product, error)

	// 在庫戻し。予約1回につきちょうど1回呼ぶこと
	Release(ctx context.Context, productID int64, qty int64) error

	// 調整履歴作成
	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error
}
