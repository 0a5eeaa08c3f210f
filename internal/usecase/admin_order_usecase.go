package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"ordersvc/internal/domain/model"
	repo "ordersvc/internal/repository"
)

type AdminOrderUsecase struct {
	tx    repo.TransactionManager
	clock Clock
	log   *slog.Logger
}

func NewAdminOrderUsecase(tx repo.TransactionManager, clock Clock, log *slog.Logger) *AdminOrderUsecase {
	if clock == nil {
		clock = SystemClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &AdminOrderUsecase{tx: tx, clock: clock, log: log}
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

// 許可する遷移
var orderTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusPending: {model.OrderStatusShipped, model.OrderStatusCancelled},
	model.OrderStatusShipped: {model.OrderStatusDelivered},
}

func canTransition(from, to model.OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ステータス更新（CANCELLED なら在庫戻し)
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, caller Caller, orderID int64, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if caller.UserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if !caller.IsStaff() {
		return OrderOutput{}, NewHTTPError(http.StatusForbidden, "staff only")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	newStatus := model.OrderStatus(strings.ToUpper(strings.TrimSpace(in.Status)))
	if !isOrderStatus(string(newStatus)) {
		return OrderOutput{}, NewValidationError(map[string]string{"status": "Invalid status."})
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 注文取得
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NotFound()
		}
		if err != nil {
			return dbError()
		}

		// すでに同じなら何もしない（200）
		if o.Status != newStatus {
			if !canTransition(o.Status, newStatus) {
				return NewHTTPError(http.StatusBadRequest, "cannot change status from "+string(o.Status)+" to "+string(newStatus))
			}

			// CANCELLEDのときだけ在庫戻し
			if newStatus == model.OrderStatusCancelled {
				if err := releaseOrderStock(ctx, r, u.log, orderID); err != nil {
					return err
				}
			}

			if err := r.Orders().UpdateStatus(ctx, orderID, newStatus); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return NotFound()
				}
				return dbError()
			}

			//監査ログ（UPDATE_ORDER_STATUS）
			if err := r.AuditLogs().Create(ctx, model.AuditLog{
				ActorUserID:  caller.UserID,
				Action:       model.AuditActionUpdateOrderStatus,
				ResourceType: model.AuditResourceOrder,
				ResourceID:   orderID,
				BeforeJSON:   statusJSON(o.Status),
				AfterJSON:    statusJSON(newStatus),
				CreatedAt:    u.clock.Now(),
			}); err != nil {
				return dbError()
			}

			u.log.InfoContext(ctx, "order status updated", "order_id", orderID, "from", o.Status, "to", newStatus, "actor_user_id", caller.UserID)
		}

		out, err = loadOrderOutput(ctx, r, o)
		return err
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func statusJSON(s model.OrderStatus) string {
	b, _ := json.Marshal(map[string]string{"status": string(s)})
	return string(b)
}
