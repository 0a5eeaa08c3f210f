package usecase

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"ordersvc/internal/domain/model"
	repo "ordersvc/internal/repository"
)

func requestedProductIDs(reqs []OrderItemInput) []int64 {
	ids := make([]int64, 0, len(reqs))
	for _, req := range reqs {
		ids = append(ids, req.ProductID)
	}
	return ids
}

func itemProductIDs(items []model.OrderItem) []int64 {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

// 触る商品行を先にid昇順でまとめてロックする。
// 予約・戻しの順番は依頼順のままでよい（ロックは取得済み）
func lockProducts(ctx context.Context, r repo.TxRepos, groups ...[]int64) error {
	var ids []int64
	for _, g := range groups {
		ids = append(ids, g...)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return nil
	}
	if err := r.Inventory().LockProducts(ctx, ids); err != nil {
		return dbError()
	}
	return nil
}

// 明細の在庫を戻す（明細は消さない）。商品が無いときは警告だけ残して続ける
func releaseStock(ctx context.Context, r repo.TxRepos, log *slog.Logger, orderID int64, items []model.OrderItem) error {
	for _, it := range items {
		err := r.Inventory().Release(ctx, it.ProductID, it.Quantity)
		if errors.Is(err, repo.ErrNotFound) {
			log.WarnContext(ctx, "release skipped: product missing", "order_id", orderID, "product_id", it.ProductID, "quantity", it.Quantity)
			continue
		}
		if err != nil {
			return dbError()
		}
	}
	return nil
}

// 注文の明細を読み、商品行をロックしてから在庫を戻す（削除・キャンセル用）
func releaseOrderStock(ctx context.Context, r repo.TxRepos, log *slog.Logger, orderID int64) error {
	items, err := r.OrderItems().ListByOrderID(ctx, orderID)
	if err != nil {
		return dbError()
	}
	if err := lockProducts(ctx, r, itemProductIDs(items)); err != nil {
		return err
	}
	return releaseStock(ctx, r, log, orderID, items)
}
