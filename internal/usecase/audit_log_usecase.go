package usecase

import (
	"context"
	"net/http"
	"time"

	"ordersvc/internal/domain/model"
	repo "ordersvc/internal/repository"
)

// スタッフ操作の履歴を読む（書き込みは各usecaseのトランザクション内）
type AuditLogUsecase struct {
	auditRepo repo.AuditLogRepository
}

func NewAuditLogUsecase(auditRepo repo.AuditLogRepository) *AuditLogUsecase {
	return &AuditLogUsecase{auditRepo: auditRepo}
}

type AuditLogListInput struct {
	Page         int
	Limit        int
	ActorUserID  *int64
	Action       string
	ResourceType string
	ResourceID   *int64
	From         *time.Time
	To           *time.Time
}

type AuditLogOutput struct {
	ID           int64     `json:"id"`
	ActorUserID  int64     `json:"actor_user_id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   int64     `json:"resource_id"`
	Before       string    `json:"before"`
	After        string    `json:"after"`
	CreatedAt    time.Time `json:"created_at"`
}

type AuditLogListOutput struct {
	Items []AuditLogOutput `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

func (u *AuditLogUsecase) List(ctx context.Context, caller Caller, in AuditLogListInput) (AuditLogListOutput, error) {
	if !caller.IsStaff() {
		return AuditLogListOutput{}, NewHTTPError(http.StatusForbidden, "staff only")
	}
	if in.Page < 1 {
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if in.From != nil && in.To != nil && in.From.After(*in.To) {
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "from must be <= to")
	}

	f := repo.AuditLogFilter{
		Page:        in.Page,
		Limit:       in.Limit,
		ActorUserID: in.ActorUserID,
		ResourceID:  in.ResourceID,
		From:        in.From,
		To:          in.To,
	}
	if in.Action != "" {
		a := model.AuditAction(in.Action)
		switch a {
		case model.AuditActionUpdateStock, model.AuditActionUpdateOrderStatus,
			model.AuditActionCreatePromoCode, model.AuditActionUpdatePromoCode:
		default:
			return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid action")
		}
		f.Action = &a
	}
	if in.ResourceType != "" {
		rt := model.AuditResourceType(in.ResourceType)
		switch rt {
		case model.AuditResourceProduct, model.AuditResourceOrder, model.AuditResourcePromoCode:
		default:
			return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid resource_type")
		}
		f.ResourceType = &rt
	}

	logs, total, err := u.auditRepo.List(ctx, f)
	if err != nil {
		return AuditLogListOutput{}, dbError()
	}

	out := AuditLogListOutput{Items: make([]AuditLogOutput, 0, len(logs)), Total: total, Page: in.Page, Limit: in.Limit}
	for _, l := range logs {
		out.Items = append(out.Items, AuditLogOutput{
			ID:           l.ID,
			ActorUserID:  l.ActorUserID,
			Action:       string(l.Action),
			ResourceType: string(l.ResourceType),
			ResourceID:   l.ResourceID,
			Before:       l.BeforeJSON,
			After:        l.AfterJSON,
			CreatedAt:    l.CreatedAt,
		})
	}
	return out, nil
}
