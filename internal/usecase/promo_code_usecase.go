package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ordersvc/internal/domain/model"
	"ordersvc/internal/domain/promotion"
	repo "ordersvc/internal/repository"
)

type PromoCodeUsecase struct {
	promoRepo repo.PromoCodeRepository
	tx        repo.TransactionManager
	clock     Clock
	log       *slog.Logger
}

func NewPromoCodeUsecase(promoRepo repo.PromoCodeRepository, tx repo.TransactionManager, clock Clock, log *slog.Logger) *PromoCodeUsecase {
	if clock == nil {
		clock = SystemClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &PromoCodeUsecase{promoRepo: promoRepo, tx: tx, clock: clock, log: log}
}

type PromoCodeInput struct {
	Code               string
	Name               string
	Kind               string
	FixedAmount        *decimal.Decimal
	DiscountPercentage *decimal.Decimal
	MaxDiscountAmount  *decimal.Decimal
	StartAt            time.Time
	EndAt              time.Time
	//未指定ならtrue
	IsActive *bool
}

type PromoCodeOutput struct {
	ID                 int64     `json:"id"`
	Code               string    `json:"code"`
	Name               string    `json:"name"`
	Kind               string    `json:"kind"`
	FixedAmount        *string   `json:"fixed_amount"`
	DiscountPercentage *string   `json:"discount_percentage"`
	MaxDiscountAmount  *string   `json:"max_discount_amount"`
	StartAt            time.Time `json:"start_at"`
	EndAt              time.Time `json:"end_at"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type PromoCodeListInput struct {
	Page     int
	Limit    int
	Code     string
	Name     string
	Kind     string
	IsActive *bool
}

type PromoCodeListOutput struct {
	Items []PromoCodeOutput `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// 一覧。スタッフ以外は今使えるコードだけ見える
func (u *PromoCodeUsecase) List(ctx context.Context, caller Caller, in PromoCodeListInput) (PromoCodeListOutput, error) {
	if in.Page < 1 {
		return PromoCodeListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return PromoCodeListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	f := repo.PromoCodeFilter{Page: in.Page, Limit: in.Limit}
	if caller.IsStaff() {
		f.Code = in.Code
		f.Name = in.Name
		f.IsActive = in.IsActive
		if in.Kind != "" {
			k := model.PromoKind(strings.ToUpper(in.Kind))
			if k != model.PromoKindFixed && k != model.PromoKindPercentage {
				return PromoCodeListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid kind")
			}
			f.Kind = &k
		}
	} else {
		now := u.clock.Now()
		f.ActiveAt = &now
	}

	items, total, err := u.promoRepo.List(ctx, f)
	if err != nil {
		return PromoCodeListOutput{}, dbError()
	}

	out := PromoCodeListOutput{
		Items: make([]PromoCodeOutput, 0, len(items)),
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}
	for _, p := range items {
		out.Items = append(out.Items, toPromoCodeOutput(p))
	}
	return out, nil
}

func (u *PromoCodeUsecase) Get(ctx context.Context, caller Caller, id int64) (PromoCodeOutput, error) {
	if id <= 0 {
		return PromoCodeOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	p, err := u.promoRepo.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return PromoCodeOutput{}, NotFound()
	}
	if err != nil {
		return PromoCodeOutput{}, dbError()
	}

	if !caller.IsStaff() && !promotion.ActiveAt(p, u.clock.Now()) {
		return PromoCodeOutput{}, NotFound()
	}
	return toPromoCodeOutput(p), nil
}

func (u *PromoCodeUsecase) Create(ctx context.Context, caller Caller, in PromoCodeInput) (PromoCodeOutput, error) {
	if !caller.IsStaff() {
		return PromoCodeOutput{}, NewHTTPError(http.StatusForbidden, "staff only")
	}

	p := promoFromInput(in)
	if fields := promotion.Validate(p); len(fields) > 0 {
		return PromoCodeOutput{}, NewValidationError(fields)
	}

	var out PromoCodeOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		created, err := r.PromoCodes().Create(ctx, p)
		if errors.Is(err, repo.ErrConflict) {
			return conflictCode()
		}
		if err != nil {
			return dbError()
		}

		out = toPromoCodeOutput(created)
		return u.audit(ctx, r, caller, model.AuditActionCreatePromoCode, created.ID, nil, &out)
	})
	if err != nil {
		return PromoCodeOutput{}, err
	}
	return out, nil
}

// 全項目を置き換える
func (u *PromoCodeUsecase) Update(ctx context.Context, caller Caller, id int64, in PromoCodeInput) (PromoCodeOutput, error) {
	if !caller.IsStaff() {
		return PromoCodeOutput{}, NewHTTPError(http.StatusForbidden, "staff only")
	}
	if id <= 0 {
		return PromoCodeOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	p := promoFromInput(in)
	p.ID = id
	if fields := promotion.Validate(p); len(fields) > 0 {
		return PromoCodeOutput{}, NewValidationError(fields)
	}

	var out PromoCodeOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.PromoCodes().FindByID(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return NotFound()
		}
		if err != nil {
			return dbError()
		}

		if err := r.PromoCodes().Update(ctx, p); err != nil {
			switch {
			case errors.Is(err, repo.ErrConflict):
				return conflictCode()
			case errors.Is(err, repo.ErrNotFound):
				return NotFound()
			}
			return dbError()
		}

		after, err := r.PromoCodes().FindByID(ctx, id)
		if err != nil {
			return dbError()
		}

		b := toPromoCodeOutput(before)
		out = toPromoCodeOutput(after)
		return u.audit(ctx, r, caller, model.AuditActionUpdatePromoCode, id, &b, &out)
	})
	if err != nil {
		return PromoCodeOutput{}, err
	}
	return out, nil
}

func (u *PromoCodeUsecase) audit(ctx context.Context, r repo.TxRepos, caller Caller, action model.AuditAction, id int64, before, after *PromoCodeOutput) error {
	toJSON := func(v *PromoCodeOutput) string {
		if v == nil {
			return ""
		}
		b, _ := json.Marshal(v)
		return string(b)
	}

	if err := r.AuditLogs().Create(ctx, model.AuditLog{
		ActorUserID:  caller.UserID,
		Action:       action,
		ResourceType: model.AuditResourcePromoCode,
		ResourceID:   id,
		BeforeJSON:   toJSON(before),
		AfterJSON:    toJSON(after),
		CreatedAt:    u.clock.Now(),
	}); err != nil {
		return dbError()
	}

	u.log.InfoContext(ctx, "promo code saved", "action", action, "promo_code_id", id, "actor_user_id", caller.UserID)
	return nil
}

func conflictCode() error {
	return &HTTPError{
		Status:  http.StatusConflict,
		Code:    CodeConflict,
		Message: "promo code already exists",
		Fields:  map[string]string{"code": "promo code with this code already exists."},
	}
}

func promoFromInput(in PromoCodeInput) model.PromoCode {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	code := strings.TrimSpace(in.Code)
	return model.PromoCode{
		Code:               code,
		CodeKey:            promotion.NormalizeCode(code),
		Name:               strings.TrimSpace(in.Name),
		Kind:               model.PromoKind(strings.ToUpper(strings.TrimSpace(in.Kind))),
		FixedAmount:        in.FixedAmount,
		DiscountPercentage: in.DiscountPercentage,
		MaxDiscountAmount:  in.MaxDiscountAmount,
		StartAt:            in.StartAt,
		EndAt:              in.EndAt,
		IsActive:           active,
	}
}

func toPromoCodeOutput(p model.PromoCode) PromoCodeOutput {
	fixed := func(d *decimal.Decimal) *string {
		if d == nil {
			return nil
		}
		s := d.StringFixed(2)
		return &s
	}
	return PromoCodeOutput{
		ID:                 p.ID,
		Code:               p.Code,
		Name:               p.Name,
		Kind:               string(p.Kind),
		FixedAmount:        fixed(p.FixedAmount),
		DiscountPercentage: fixed(p.DiscountPercentage),
		MaxDiscountAmount:  fixed(p.MaxDiscountAmount),
		StartAt:            p.StartAt,
		EndAt:              p.EndAt,
		IsActive:           p.IsActive,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}
