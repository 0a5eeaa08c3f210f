package repository

import (
	"context"
	"strings"

	"ordersvc/internal/domain/model"
	repo "ordersvc/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PromoCodeGormRepository struct {
	db *gorm.DB
}

func NewPromoCodeGormRepository(db *gorm.DB) *PromoCodeGormRepository {
	return &PromoCodeGormRepository{db: db}
}

func (r *PromoCodeGormRepository) FindByID(ctx context.Context, id int64) (model.PromoCode, error) {
	var p model.PromoCode
	err := r.db.WithContext(ctx).First(&p, id).Error
	if isNotFound(err) {
		return model.PromoCode{}, repo.ErrNotFound
	}
	if err != nil {
		return model.PromoCode{}, err
	}
	return p, nil
}

func (r *PromoCodeGormRepository) FindByCodeForUpdate(ctx context.Context, codeKey string) (model.PromoCode, error) {
	var p model.PromoCode
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code_key = ?", codeKey).
		First(&p).Error
	if isNotFound(err) {
		return model.PromoCode{}, repo.ErrNotFound
	}
	if err != nil {
		return model.PromoCode{}, err
	}
	return p, nil
}

func (r *PromoCodeGormRepository) List(ctx context.Context, f repo.PromoCodeFilter) ([]model.PromoCode, int64, error) {
	page, limit := normalizePage(f.Page, f.Limit)

	q := r.db.WithContext(ctx).Model(&model.PromoCode{})

	if code := strings.TrimSpace(f.Code); code != "" {
		q = q.Where("code_key LIKE ?", "%"+strings.ToUpper(code)+"%")
	}
	if name := strings.TrimSpace(f.Name); name != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if f.Kind != nil {
		q = q.Where("kind = ?", *f.Kind)
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}
	//期間は両端を含む
	if f.ActiveAt != nil {
		q = q.Where("is_active = ? AND start_at <= ? AND end_at >= ?", true, *f.ActiveAt, *f.ActiveAt)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.PromoCode{}, 0, err
	}

	var items []model.PromoCode
	if err := q.Order("start_at desc").Order("id desc").Limit(limit).Offset((page - 1) * limit).Find(&items).Error; err != nil {
		return []model.PromoCode{}, 0, err
	}
	return items, total, nil
}

func (r *PromoCodeGormRepository) Create(ctx context.Context, p model.PromoCode) (model.PromoCode, error) {
	p.CodeKey = strings.ToUpper(strings.TrimSpace(p.Code))
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		if isDuplicate(err) {
			return model.PromoCode{}, repo.ErrConflict
		}
		return model.PromoCode{}, err
	}
	return p, nil
}

// 全項目を保存する
func (r *PromoCodeGormRepository) Update(ctx context.Context, p model.PromoCode) error {
	p.CodeKey = strings.ToUpper(strings.TrimSpace(p.Code))
	res := r.db.WithContext(ctx).Model(&model.PromoCode{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"code":                p.Code,
			"code_key":            p.CodeKey,
			"name":                p.Name,
			"kind":                p.Kind,
			"fixed_amount":        p.FixedAmount,
			"discount_percentage": p.DiscountPercentage,
			"max_discount_amount": p.MaxDiscountAmount,
			"start_at":            p.StartAt,
			"end_at":              p.EndAt,
			"is_active":           p.IsActive,
		})
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return repo.ErrConflict
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
