package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ordersvc/internal/domain/model"
	"ordersvc/internal/domain/pricing"
	"ordersvc/internal/domain/promotion"
	repo "ordersvc/internal/repository"
)

// 確定した注文を受け取る通知口。コミット後に呼ぶ。ブロックしないこと
type OrderNotifier interface {
	Notify(ctx context.Context, snap model.OrderSnapshot)
}

type OrderUsecase struct {
	tx       repo.TransactionManager
	notifier OrderNotifier
	clock    Clock
	log      *slog.Logger
}

func NewOrderUsecase(tx repo.TransactionManager, notifier OrderNotifier, clock Clock, log *slog.Logger) *OrderUsecase {
	if clock == nil {
		clock = SystemClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &OrderUsecase{tx: tx, notifier: notifier, clock: clock, log: log}
}

type OrderItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type CreateOrderInput struct {
	Items      []OrderItemInput
	CouponCode string
	//任意。同じキーなら既存の注文を返す
	IdempotencyKey string
}

type ReplaceOrderInput struct {
	//空なら明細はそのまま
	Items []OrderItemInput
	//空ならプロモコードはそのまま
	CouponCode string
}

type OrderItemOutput struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int64  `json:"quantity"`
	Price       string `json:"price"`
}

type OrderOutput struct {
	ID         int64             `json:"id"`
	UserID     int64             `json:"user_id"`
	Status     string            `json:"status"`
	Items      []OrderItemOutput `json:"items"`
	PromoCode  *string           `json:"promo_code"`
	Discount   string            `json:"discount"`
	TotalPrice string            `json:"total_price"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type OrderListInput struct {
	Page        int
	Limit       int
	Status      string
	MinTotal    *decimal.Decimal
	MaxTotal    *decimal.Decimal
	MinDiscount *decimal.Decimal
	MaxDiscount *decimal.Decimal
	From        *time.Time
	To          *time.Time
	PromoCode   string
	UserEmail   string
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// 注文作成。在庫予約・プロモコード適用・合計計算を1トランザクションで行う
func (u *OrderUsecase) Create(ctx context.Context, caller Caller, in CreateOrderInput) (OrderOutput, error) {
	if caller.UserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if fields := validateItems(in.Items, true); len(fields) > 0 {
		return OrderOutput{}, NewValidationError(fields)
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > 255 {
		return OrderOutput{}, NewValidationError(map[string]string{"idempotency_key": "Ensure this field has no more than 255 characters."})
	}

	var out OrderOutput
	var snap *model.OrderSnapshot

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ結果（予約も通知もしない）
		if key != "" {
			existing, found, err := r.Orders().FindByIdempotencyKey(ctx, caller.UserID, key)
			if err != nil {
				return dbError()
			}
			if found {
				o, err := loadOrderOutput(ctx, r, existing)
				if err != nil {
					return err
				}
				out = o
				return nil
			}
		}

		//空の注文を作る
		order := model.Order{
			UserID:     caller.UserID,
			Status:     model.OrderStatusPending,
			Discount:   decimal.Zero,
			TotalPrice: decimal.Zero,
		}
		if key != "" {
			order.IdempotencyKey = &key
		}
		orderID, err := r.Orders().Create(ctx, order)
		if errors.Is(err, repo.ErrConflict) {
			return NewHTTPError(http.StatusConflict, "duplicate idempotency key")
		}
		if err != nil {
			return dbError()
		}
		order.ID = orderID

		//在庫予約→明細作成
		if err := lockProducts(ctx, r, requestedProductIDs(in.Items)); err != nil {
			return err
		}
		items, err := u.reserveItems(ctx, r, orderID, in.Items)
		if err != nil {
			return err
		}

		var promo *model.PromoCode
		if code := strings.TrimSpace(in.CouponCode); code != "" {
			p, err := u.redeemPromo(ctx, r, caller.UserID, orderID, code)
			if err != nil {
				return err
			}
			promo = &p
		}

		if err := u.reprice(ctx, r, &order, items, promo); err != nil {
			return err
		}

		s, err := u.snapshot(ctx, r, order, items)
		if err != nil {
			return err
		}
		snap = &s

		o, err := loadOrderOutput(ctx, r, order)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	u.notify(ctx, snap)
	return out, nil
}

// 明細の全置き換え。旧明細の在庫を戻してから新明細を予約する（同一トランザクション）
func (u *OrderUsecase) Replace(ctx context.Context, caller Caller, orderID int64, in ReplaceOrderInput) (OrderOutput, error) {
	if caller.UserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if fields := validateItems(in.Items, false); len(fields) > 0 {
		return OrderOutput{}, NewValidationError(fields)
	}

	var out OrderOutput
	var snap *model.OrderSnapshot

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NotFound()
		}
		if err != nil {
			return dbError()
		}
		//他人の注文は「存在しない扱い」にする
		if !caller.CanAccess(order.UserID) {
			return NotFound()
		}
		if order.Status != model.OrderStatusPending {
			return NewHTTPError(http.StatusBadRequest, "only pending orders can be changed")
		}

		var items []model.OrderItem
		if len(in.Items) > 0 {
			old, err := r.OrderItems().ListByOrderID(ctx, order.ID)
			if err != nil {
				return dbError()
			}
			//戻す商品と予約する商品をまとめてロック
			if err := lockProducts(ctx, r, itemProductIDs(old), requestedProductIDs(in.Items)); err != nil {
				return err
			}
			if err := releaseStock(ctx, r, u.log, order.ID, old); err != nil {
				return err
			}
			if err := r.OrderItems().DeleteByOrderID(ctx, order.ID); err != nil {
				return dbError()
			}
			items, err = u.reserveItems(ctx, r, order.ID, in.Items)
			if err != nil {
				return err
			}
		} else {
			items, err = r.OrderItems().ListByOrderID(ctx, order.ID)
			if err != nil {
				return dbError()
			}
		}

		var promo *model.PromoCode
		if code := strings.TrimSpace(in.CouponCode); code != "" {
			//プロモコードの利用者は注文の持ち主
			p, err := u.redeemPromo(ctx, r, order.UserID, order.ID, code)
			if err != nil {
				return err
			}
			promo = &p
		} else if order.PromoCodeID != nil {
			//付いているコードは再検証せず、割引だけ今の小計で計算し直す
			p, err := r.PromoCodes().FindByID(ctx, *order.PromoCodeID)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return dbError()
			}
			if err == nil {
				promo = &p
			}
		}

		if err := u.reprice(ctx, r, &order, items, promo); err != nil {
			return err
		}

		s, err := u.snapshot(ctx, r, order, items)
		if err != nil {
			return err
		}
		snap = &s

		o, err := loadOrderOutput(ctx, r, order)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	u.notify(ctx, snap)
	return out, nil
}

// 注文削除。在庫を戻してから明細と注文を消す
func (u *OrderUsecase) Delete(ctx context.Context, caller Caller, orderID int64) error {
	if caller.UserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NotFound()
		}
		if err != nil {
			return dbError()
		}
		if !caller.CanAccess(order.UserID) {
			return NotFound()
		}

		// CANCELLEDはキャンセル時に戻し済み
		if order.Status != model.OrderStatusCancelled {
			if err := releaseOrderStock(ctx, r, u.log, order.ID); err != nil {
				return err
			}
		}

		if err := r.OrderItems().DeleteByOrderID(ctx, order.ID); err != nil {
			return dbError()
		}
		if err := r.Orders().Delete(ctx, order.ID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NotFound()
			}
			return dbError()
		}

		u.log.InfoContext(ctx, "order deleted", "order_id", order.ID, "actor_user_id", caller.UserID)
		return nil
	})
}

func (u *OrderUsecase) Get(ctx context.Context, caller Caller, orderID int64) (OrderOutput, error) {
	if caller.UserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NotFound()
		}
		if err != nil {
			return dbError()
		}
		if !caller.CanAccess(o.UserID) {
			return NotFound()
		}

		out, err = loadOrderOutput(ctx, r, o)
		return err
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// 一覧。スタッフ以外は自分の注文だけ
func (u *OrderUsecase) List(ctx context.Context, caller Caller, in OrderListInput) (OrderListOutput, error) {
	if caller.UserID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.Page < 1 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if in.Status != "" && !isOrderStatus(in.Status) {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	if in.From != nil && in.To != nil && in.From.After(*in.To) {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "from must be <= to")
	}

	f := repo.OrderListFilter{
		Page:        in.Page,
		Limit:       in.Limit,
		Status:      in.Status,
		MinTotal:    in.MinTotal,
		MaxTotal:    in.MaxTotal,
		MinDiscount: in.MinDiscount,
		MaxDiscount: in.MaxDiscount,
		From:        in.From,
		To:          in.To,
		PromoCode:   in.PromoCode,
	}
	if caller.IsStaff() {
		f.UserEmail = in.UserEmail
	} else {
		uid := caller.UserID
		f.UserID = &uid
	}

	out := OrderListOutput{Items: []OrderOutput{}, Page: in.Page, Limit: in.Limit}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().List(ctx, f)
		if err != nil {
			return dbError()
		}
		out.Total = total

		for _, o := range orders {
			oo, err := loadOrderOutput(ctx, r, o)
			if err != nil {
				return err
			}
			out.Items = append(out.Items, oo)
		}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

// 依頼順に予約し、価格スナップショット付きの明細を作る（商品行は呼び出し側でロック済み）。
// 1件でも失敗したらエラーを返し、呼び出し側のトランザクションごと戻す
func (u *OrderUsecase) reserveItems(ctx context.Context, r repo.TxRepos, orderID int64, reqs []OrderItemInput) ([]model.OrderItem, error) {
	items := make([]model.OrderItem, 0, len(reqs))
	for i, req := range reqs {
		p, err := r.Inventory().Reserve(ctx, req.ProductID, req.Quantity)
		switch {
		case errors.Is(err, repo.ErrInsufficientStock):
			return nil, NewInsufficientStockError(req.ProductID)
		case errors.Is(err, repo.ErrNotFound):
			return nil, NewValidationError(map[string]string{
				fmt.Sprintf("items[%d].product_id", i): fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", req.ProductID),
			})
		case err != nil:
			return nil, dbError()
		}

		items = append(items, model.OrderItem{
			ProductID:           p.ID,
			ProductNameSnapshot: p.Name,
			UnitPriceSnapshot:   p.Price,
			Quantity:            req.Quantity,
			Price:               pricing.LinePrice(p.Price, req.Quantity),
		})
	}

	if err := r.OrderItems().CreateBulk(ctx, orderID, items); err != nil {
		return nil, dbError()
	}
	return items, nil
}

// コードを行ロックしてから利用可否を判定する。理由はログにだけ残す
func (u *OrderUsecase) redeemPromo(ctx context.Context, r repo.TxRepos, ownerID, orderID int64, code string) (model.PromoCode, error) {
	key := promotion.NormalizeCode(code)

	p, err := r.PromoCodes().FindByCodeForUpdate(ctx, key)
	if errors.Is(err, repo.ErrNotFound) {
		u.rejectPromo(ctx, ownerID, key, promotion.RejectNotFound)
		return model.PromoCode{}, ErrInvalidPromoCode()
	}
	if err != nil {
		return model.PromoCode{}, dbError()
	}

	redeemed, err := r.Orders().ExistsByUserAndPromo(ctx, ownerID, p.ID, orderID)
	if err != nil {
		return model.PromoCode{}, dbError()
	}

	if reason := promotion.Check(p, u.clock.Now(), redeemed); reason != promotion.RejectNone {
		u.rejectPromo(ctx, ownerID, key, reason)
		return model.PromoCode{}, ErrInvalidPromoCode()
	}
	return p, nil
}

func (u *OrderUsecase) rejectPromo(ctx context.Context, userID int64, code string, reason promotion.Rejection) {
	u.log.InfoContext(ctx, "promo code rejected", "user_id", userID, "code", code, "reason", string(reason))
}

// 割引と合計を計算し直して保存する
func (u *OrderUsecase) reprice(ctx context.Context, r repo.TxRepos, order *model.Order, items []model.OrderItem, promo *model.PromoCode) error {
	subtotal := pricing.Subtotal(items)

	discount := decimal.Zero
	var promoID *int64
	if promo != nil {
		discount = promotion.Discount(*promo, subtotal)
		id := promo.ID
		promoID = &id
	}
	discount, total := pricing.Finalize(subtotal, discount)

	if err := r.Orders().UpdatePricing(ctx, order.ID, promoID, discount, total); err != nil {
		return dbError()
	}

	order.PromoCodeID = promoID
	order.Discount = discount
	order.TotalPrice = total
	return nil
}

func (u *OrderUsecase) snapshot(ctx context.Context, r repo.TxRepos, order model.Order, items []model.OrderItem) (model.OrderSnapshot, error) {
	user, err := r.Users().FindByID(ctx, order.UserID)
	if err != nil {
		return model.OrderSnapshot{}, dbError()
	}

	snap := model.OrderSnapshot{
		OrderID:       order.ID,
		UserEmail:     user.Email,
		UserFirstName: user.FirstName,
		Items:         make([]model.OrderSnapshotItem, 0, len(items)),
		TotalPrice:    order.TotalPrice,
		Discount:      order.Discount,
	}
	for _, it := range items {
		snap.Items = append(snap.Items, model.OrderSnapshotItem{
			ProductName: it.ProductNameSnapshot,
			Quantity:    it.Quantity,
		})
	}
	return snap, nil
}

// 通知の失敗は注文に影響させない
func (u *OrderUsecase) notify(ctx context.Context, snap *model.OrderSnapshot) {
	if snap == nil || u.notifier == nil {
		return
	}
	u.notifier.Notify(context.WithoutCancel(ctx), *snap)
}

// DBから読み直してレスポンス形にする
func loadOrderOutput(ctx context.Context, r repo.TxRepos, o model.Order) (OrderOutput, error) {
	fresh, err := r.Orders().FindByID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, dbError()
	}

	items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, dbError()
	}

	var code *string
	if fresh.PromoCodeID != nil {
		p, err := r.PromoCodes().FindByID(ctx, *fresh.PromoCodeID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return OrderOutput{}, dbError()
		}
		if err == nil {
			code = &p.Code
		}
	}

	return toOrderOutput(fresh, items, code), nil
}

func toOrderOutput(o model.Order, items []model.OrderItem, promoCode *string) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductNameSnapshot,
			UnitPrice:   it.UnitPriceSnapshot.StringFixed(2),
			Quantity:    it.Quantity,
			Price:       it.Price.StringFixed(2),
		})
	}

	return OrderOutput{
		ID:         o.ID,
		UserID:     o.UserID,
		Status:     string(o.Status),
		Items:      outItems,
		PromoCode:  promoCode,
		Discount:   o.Discount.StringFixed(2),
		TotalPrice: o.TotalPrice.StringFixed(2),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

// 明細入力の検証。requireItems=falseなら空は許す（置き換えしない）
func validateItems(items []OrderItemInput, requireItems bool) map[string]string {
	fields := map[string]string{}
	if len(items) == 0 {
		if requireItems {
			fields["items"] = "This field is required."
		}
		return fields
	}
	for i, it := range items {
		if it.ProductID <= 0 {
			fields[fmt.Sprintf("items[%d].product_id", i)] = "This field is required."
		}
		if it.Quantity < 1 {
			fields[fmt.Sprintf("items[%d].quantity", i)] = "Ensure this value is greater than or equal to 1."
		}
	}
	return fields
}

func isOrderStatus(s string) bool {
	switch model.OrderStatus(s) {
	case model.OrderStatusPending, model.OrderStatusShipped, model.OrderStatusDelivered, model.OrderStatusCancelled:
		return true
	}
	return false
}
