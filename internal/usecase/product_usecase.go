package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"ordersvc/internal/domain/model"
	repo "ordersvc/internal/repository"
)

type ProductUsecase struct {
	productRepo repo.ProductRepository
	tx          repo.TransactionManager
	cache       *expirable.LRU[string, ProductListOutput]
	clock       Clock
	log         *slog.Logger
}

// DI
func NewProductUsecase(
	productRepo repo.ProductRepository,
	tx repo.TransactionManager,
	cacheSize int,
	cacheTTL time.Duration,
	clock Clock,
	log *slog.Logger,
) *ProductUsecase {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	if clock == nil {
		clock = SystemClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &ProductUsecase{
		productRepo: productRepo,
		tx:          tx,
		cache:       expirable.NewLRU[string, ProductListOutput](cacheSize, nil, cacheTTL),
		clock:       clock,
		log:         log,
	}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page     int
	Limit    int
	Name     string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	MinStock *int64
	MaxStock *int64
}

type ProductOutput struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Stock     int64     `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ProductListOutput struct {
	Items []ProductOutput `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// 公開一覧（在庫がある商品だけ）。同じ条件はキャッシュから返す
func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if err := validateListProducts(in); err != nil {
		return ProductListOutput{}, err
	}

	key := productCacheKey(in)
	if out, ok := u.cache.Get(key); ok {
		return out, nil
	}

	out, err := u.list(ctx, in, true)
	if err != nil {
		return ProductListOutput{}, err
	}
	u.cache.Add(key, out)
	return out, nil
}

// スタッフ用一覧（在庫0も含む、キャッシュしない）
func (u *ProductUsecase) AdminListProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if err := validateListProducts(in); err != nil {
		return ProductListOutput{}, err
	}
	return u.list(ctx, in, false)
}

func (u *ProductUsecase) list(ctx context.Context, in ListProductsInput, inStockOnly bool) (ProductListOutput, error) {
	items, total, err := u.productRepo.List(ctx, repo.ProductListQuery{
		Page:        in.Page,
		Limit:       in.Limit,
		Name:        strings.TrimSpace(in.Name),
		MinPrice:    in.MinPrice,
		MaxPrice:    in.MaxPrice,
		MinStock:    in.MinStock,
		MaxStock:    in.MaxStock,
		InStockOnly: inStockOnly,
	})
	if err != nil {
		return ProductListOutput{}, dbError()
	}

	out := ProductListOutput{
		Items: make([]ProductOutput, 0, len(items)),
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}
	for _, p := range items {
		out.Items = append(out.Items, toProductOutput(p))
	}
	return out, nil
}

func validateListProducts(in ListProductsInput) error {
	if in.Page < 1 {
		return NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if len(in.Name) > 100 {
		return NewHTTPError(http.StatusBadRequest, "name too long")
	}
	if in.MinPrice != nil && in.MinPrice.IsNegative() {
		return NewHTTPError(http.StatusBadRequest, "min_price must be >= 0")
	}
	if in.MaxPrice != nil && in.MaxPrice.IsNegative() {
		return NewHTTPError(http.StatusBadRequest, "max_price must be >= 0")
	}
	if in.MinPrice != nil && in.MaxPrice != nil && in.MinPrice.GreaterThan(*in.MaxPrice) {
		return NewHTTPError(http.StatusBadRequest, "min_price must be <= max_price")
	}
	if in.MinStock != nil && in.MaxStock != nil && *in.MinStock > *in.MaxStock {
		return NewHTTPError(http.StatusBadRequest, "min_stock must be <= max_stock")
	}
	return nil
}

func productCacheKey(in ListProductsInput) string {
	dec := func(d *decimal.Decimal) string {
		if d == nil {
			return ""
		}
		return d.String()
	}
	num := func(n *int64) string {
		if n == nil {
			return ""
		}
		return fmt.Sprint(*n)
	}
	return fmt.Sprintf("page=%d&limit=%d&name=%s&min_price=%s&max_price=%s&min_stock=%s&max_stock=%s",
		in.Page, in.Limit, strings.ToLower(strings.TrimSpace(in.Name)),
		dec(in.MinPrice), dec(in.MaxPrice), num(in.MinStock), num(in.MaxStock))
}

// 詳細。在庫0はスタッフ以外には見せない
func (u *ProductUsecase) GetProductDetail(ctx context.Context, caller Caller, productID int64) (ProductOutput, error) {
	if productID <= 0 {
		return ProductOutput{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return ProductOutput{}, NotFound()
	}
	if err != nil {
		return ProductOutput{}, dbError()
	}

	if p.Stock <= 0 && !caller.IsStaff() {
		return ProductOutput{}, NotFound()
	}
	return toProductOutput(p), nil
}

type AdminProductInput struct {
	Name  string
	Price decimal.Decimal
	//作成時のみ使う
	Stock int64
}

func validateProductInput(in AdminProductInput, creating bool) error {
	fields := map[string]string{}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		fields["name"] = "This field is required."
	} else if len(name) > 100 {
		fields["name"] = "Ensure this field has no more than 100 characters."
	}
	if in.Price.IsNegative() {
		fields["price"] = "Ensure this value is greater than or equal to 0."
	}
	if !in.Price.Equal(in.Price.Round(2)) {
		fields["price"] = "Ensure that there are no more than 2 decimal places."
	}
	if creating && in.Stock < 0 {
		fields["stock"] = "Ensure this value is greater than or equal to 0."
	}
	if len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, caller Caller, in AdminProductInput) (ProductOutput, error) {
	if !caller.IsStaff() {
		return ProductOutput{}, NewHTTPError(http.StatusForbidden, "staff only")
	}
	if err := validateProductInput(in, true); err != nil {
		return ProductOutput{}, err
	}

	p, err := u.productRepo.Create(ctx, model.Product{
		Name:  strings.TrimSpace(in.Name),
		Price: in.Price,
		Stock: in.Stock,
	})
	if err != nil {
		return ProductOutput{}, dbError()
	}

	u.cache.Purge()
	return toProductOutput(p), nil
}

func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, caller Caller, productID int64, in AdminProductInput) (ProductOutput, error) {
	if !caller.IsStaff() {
		return ProductOutput{}, NewHTTPError(http.StatusForbidden, "staff only")
	}
	if productID <= 0 {
		return ProductOutput{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if err := validateProductInput(in, false); err != nil {
		return ProductOutput{}, err
	}

	err := u.productRepo.Update(ctx, model.Product{
		ID:    productID,
		Name:  strings.TrimSpace(in.Name),
		Price: in.Price,
	})
	if errors.Is(err, repo.ErrNotFound) {
		return ProductOutput{}, NotFound()
	}
	if err != nil {
		return ProductOutput{}, dbError()
	}
	u.cache.Purge()

	p, err := u.productRepo.FindByID(ctx, productID)
	if err != nil {
		return ProductOutput{}, dbError()
	}
	return toProductOutput(p), nil
}

func (u *ProductUsecase) AdminDeleteProduct(ctx context.Context, caller Caller, productID int64) error {
	if !caller.IsStaff() {
		return NewHTTPError(http.StatusForbidden, "staff only")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	err := u.productRepo.SoftDelete(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return NotFound()
	}
	if err != nil {
		return dbError()
	}

	u.cache.Purge()
	return nil
}

// 在庫を「現在値」に更新し、調整履歴と監査ログを残す
func (u *ProductUsecase) AdminUpdateInventory(ctx context.Context, caller Caller, productID int64, newStock int64, reason string) (ProductOutput, error) {
	if !caller.IsStaff() {
		return ProductOutput{}, NewHTTPError(http.StatusForbidden, "staff only")
	}
	if productID <= 0 {
		return ProductOutput{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	fields := map[string]string{}
	if newStock < 0 {
		fields["stock"] = "Ensure this value is greater than or equal to 0."
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		fields["reason"] = "This field is required."
	}
	if len(fields) > 0 {
		return ProductOutput{}, NewValidationError(fields)
	}

	var out ProductOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//変更前の在庫（before）
		p, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NotFound()
		}
		if err != nil {
			return dbError()
		}

		if err := r.Inventory().SetStock(ctx, productID, newStock); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NotFound()
			}
			return dbError()
		}

		now := u.clock.Now()

		//履歴を作成（差分）
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID:   productID,
			StaffUserID: caller.UserID,
			Delta:       newStock - p.Stock,
			Reason:      reason,
			CreatedAt:   now,
		}); err != nil {
			return dbError()
		}

		//「誰が」「何を」「どの対象に」「どう変えたか」を残す
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  caller.UserID,
			Action:       model.AuditActionUpdateStock,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   productID,
			BeforeJSON:   fmt.Sprintf(`{"stock":%d}`, p.Stock),
			AfterJSON:    fmt.Sprintf(`{"stock":%d}`, newStock),
			CreatedAt:    now,
		}); err != nil {
			return dbError()
		}

		p.Stock = newStock
		out = toProductOutput(p)
		return nil
	})
	if err != nil {
		return ProductOutput{}, err
	}

	u.cache.Purge()
	u.log.InfoContext(ctx, "stock updated", "product_id", productID, "stock", newStock, "actor_user_id", caller.UserID)
	return out, nil
}

func toProductOutput(p model.Product) ProductOutput {
	return ProductOutput{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price.StringFixed(2),
		Stock:     p.Stock,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
