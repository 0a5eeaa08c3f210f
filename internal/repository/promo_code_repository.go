package repository

import (
	"context"
	"time"

	"ordersvc/internal/domain/model"
)

type PromoCodeFilter struct {
	Page  int
	Limit int

	//部分一致
	Code string
	Name string

	Kind     *model.PromoKind
	IsActive *bool

	//この時刻に有効なもの（is_active かつ期間内）だけ
	ActiveAt *time.Time
}

type PromoCodeRepository interface {
	FindByID(ctx context.Context, id int64) (model.PromoCode, error)
	//正規化したコードで検索し、行ロックする（同じコードの同時利用を直列化）
	FindByCodeForUpdate(ctx context.Context, codeKey string) (model.PromoCode, error)
	List(ctx context.Context, f PromoCodeFilter) ([]model.PromoCode, int64, error)

	//コード重複は ErrConflict
	Create(ctx context.Context, p model.PromoCode) (model.PromoCode, error)
	Update(ctx context.Context, p model.PromoCode) error
}
