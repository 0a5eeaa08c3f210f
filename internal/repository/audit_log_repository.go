package repository

import (
	"context"
	"time"

	"ordersvc/internal/domain/model"
)

// 監査ログの絞り込み条件
type AuditLogFilter struct {
	Page  int
	Limit int

	ActorUserID  *int64
	Action       *model.AuditAction
	ResourceType *model.AuditResourceType
	ResourceID   *int64
	From         *time.Time
	To           *time.Time
}

type AuditLogRepository interface {
	//トランザクション内で業務の更新と一緒に書く
	Create(ctx context.Context, log model.AuditLog) error
	//新しい順
	List(ctx context.Context, f AuditLogFilter) ([]model.AuditLog, int64, error)
}
