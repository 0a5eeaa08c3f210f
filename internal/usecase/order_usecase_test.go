package usecase_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"ordersvc/internal/domain/model"
	repo "ordersvc/internal/repository"
	"ordersvc/internal/usecase"
)

type orderFixture struct {
	tx       *TxManagerMock
	orders   *OrderRepoMock
	items    *OrderItemRepoMock
	inv      *InventoryRepoMock
	promos   *PromoCodeRepoMock
	users    *UserRepoMock
	notifier *recordingNotifier
	uc       *usecase.OrderUsecase
}

func newOrderFixture() *orderFixture {
	f := &orderFixture{
		tx:       new(TxManagerMock),
		orders:   new(OrderRepoMock),
		items:    new(OrderItemRepoMock),
		inv:      new(InventoryRepoMock),
		promos:   new(PromoCodeRepoMock),
		users:    new(UserRepoMock),
		notifier: &recordingNotifier{},
	}
	f.tx.Repos = &TxReposMock{
		orders:     f.orders,
		orderItems: f.items,
		inventory:  f.inv,
		promoCodes: f.promos,
		users:      f.users,
		auditLogs:  new(AuditRepoMock),
	}
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.inv.On("LockProducts", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.uc = usecase.NewOrderUsecase(f.tx, f.notifier, fixedClock{now: testNow}, nil)
	return f
}

func activeFixedPromo() model.PromoCode {
	return model.PromoCode{
		ID:          7,
		Code:        "SAVE10",
		CodeKey:     "SAVE10",
		Kind:        model.PromoKindFixed,
		FixedAmount: decPtr("10"),
		StartAt:     testNow.AddDate(0, 0, -1),
		EndAt:       testNow.AddDate(0, 0, 1),
		IsActive:    true,
	}
}

// =====================
// Create
// =====================

func TestOrderUsecase_Create_RequiresItems(t *testing.T) {
	f := newOrderFixture()

	_, err := f.uc.Create(context.Background(), ownerCaller, usecase.CreateOrderInput{})
	he := assertHTTPError(t, err, http.StatusBadRequest, usecase.CodeValidation)
	if he != nil {
		assert.Equal(t, "This field is required.", he.Fields["items"])
	}
	f.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}

func TestOrderUsecase_Create_InvalidQuantity(t *testing.T) {
	f := newOrderFixture()

	_, err := f.uc.Create(context.Background(), ownerCaller, usecase.CreateOrderInput{
		Items: []usecase.OrderItemInput{{ProductID: 100, Quantity: 0}},
	})
	he := assertHTTPError(t, err, http.StatusBadRequest, usecase.CodeValidation)
	if he != nil {
		assert.Contains(t, he.Fields, "items[0].quantity")
	}
}

func TestOrderUsecase_Create_Unauthenticated(t *testing.T) {
	f := newOrderFixture()

	_, err := f.uc.Create(context.Background(), usecase.Caller{}, usecase.CreateOrderInput{
		Items: []usecase.OrderItemInput{{ProductID: 100, Quantity: 1}},
	})
	assertHTTPError(t, err, http.StatusUnauthorized, usecase.CodeUnauthorized)
}

func TestOrderUsecase_Create_InsufficientStockNamesProduct(t *testing.T) {
	f := newOrderFixture()
	f.orders.On("Create", mock.Anything, mock.Anything).Return(int64(5), nil)
	f.inv.On("Reserve", mock.Anything, int64(100), int64(2)).Return(model.Product{ID: 100, Name: "A", Price: dec("10")}, nil)
	f.inv.On("Reserve", mock.Anything, int64(200), int64(9)).Return(model.Product{}, repo.ErrInsufficientStock)

	_, err := f.uc.Create(context.Background(), ownerCaller, usecase.CreateOrderInput{
		Items: []usecase.OrderItemInput{
			{ProductID: 100, Quantity: 2},
			{ProductID: 200, Quantity: 9},
		},
	})
	he := assertHTTPError(t, err, http.StatusBadRequest, usecase.CodeInsufficientStock)
	if he != nil && assert.NotNil(t, he.ProductID) {
		assert.Equal(t, int64(200), *he.ProductID)
	}

	f.items.AssertNotCalled(t, "CreateBulk", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, f.notifier.count())
}

func TestOrderUsecase_Create_LocksProductsInIDOrderBeforeReserving(t *testing.T) {
	f := newOrderFixture()
	f.orders.On("Create", mock.Anything, mock.Anything).Return(int64(5), nil)
	f.inv.On("Reserve", mock.Anything, int64(300), int64(2)).Return(model.Product{}, repo.ErrInsufficientStock)

	_, err := f.uc.Create(context.Background(), ownerCaller, usecase.CreateOrderInput{
		Items: []usecase.OrderItemInput{
			{ProductID: 300, Quantity: 2},
			{ProductID: 100, Quantity: 1},
			{ProductID: 300, Quantity: 1},
			{ProductID: 200, Quantity: 1},
		},
	})
	//予約は依頼順なので最初に足りなかった商品が返る
	he := assertHTTPError(t, err, http.StatusBadRequest, usecase.CodeInsufficientStock)
	if he != nil && assert.NotNil(t, he.ProductID) {
		assert.Equal(t, int64(300), *he.ProductID)
	}

	f.inv.AssertCalled(t, "LockProducts", mock.Anything, []int64{100, 200, 300})
	if assert.NotEmpty(t, f.inv.Calls) {
		assert.Equal(t, "LockProducts", f.inv.Calls[0].Method)
	}
	f.inv.AssertNotCalled(t, "Reserve", mock.Anything, int64(100), mock.Anything)
}

func TestOrderUsecase_Create_UnknownProduct(t *testing.T) {
	f := newOrderFixture()
	f.orders.On("Create", mock.Anything, mock.Anything).Return(int64(5), nil)
	f.inv.On("Reserve", mock.Anything, int64(404), int64(1)).Return(model.Product{}, repo.ErrNotFound)

	_, err := f.uc.Create(context.Background(), ownerCaller, usecase.CreateOrderInput{
		Items: []usecase.OrderItemInput{{ProductID: 404, Quantity: 1}},
	})
	he := assertHTTPError(t, err, http.StatusBadRequest, usecase.CodeValidation)
	if he != nil {
		assert.Contains(t, he.Fields, "items[0].product_id")
	}
}

func TestOrderUsecase_Create_UnknownPromoCode(t *testing.T) {
	f := newOrderFixture()
	f.orders.On("Create", mock.Anything, mock.Anything).Return(int64(5), nil)
	f.inv.On("Reserve", mock.Anything, int64(100), int64(1)).Return(model.Product{ID: 100, Name: "A", Price: dec("100")}, nil)
	f.items.On("CreateBulk", mock.Anything, int64(5), mock.Anything).Return(nil)
	f.promos.On("FindByCodeForUpdate", mock.Anything, "NOPE").Return(model.PromoCode{}, repo.ErrNotFound)

	_, err := f.uc.Create(context.Background(), ownerCaller, usecase.CreateOrderInput{
		Items:      []usecase.OrderItemInput{{ProductID: 100, Quantity: 1}},
		CouponCode: " nope ",
	})
	he := assertHTTPError(t, err, http.StatusBadRequest, usecase.CodeInvalidPromoCode)
	if he != nil {
		assert.Equal(t, "invalid or expired promo code", he.Message)
	}
	assert.Equal(t, 0, f.notifier.count())
}

func TestOrderUsecase_Create_AlreadyRedeemedPromoCode(t *testing.T) {
	f := newOrderFixture()
	f.orders.On("Create", mock.Anything, mock.Anything).Return(int64(5), nil)
	f.inv.On("Reserve", mock.Anything, int64(100), int64(1)).Return(model.Product{ID: 100, Name: "A", Price: dec("100")}, nil)
	f.items.On("CreateBulk", mock.Anything, int64(5), mock.Anything).Return(nil)
	f.promos.On("FindByCodeForUpdate", mock.Anything, "SAVE10").Return(activeFixedPromo(), nil)
	f.orders.On("ExistsByUserAndPromo", mock.Anything, int64(1), int64(7), int64(5)).Return(true, nil)

	_, err := f.uc.Create(context.Background(), ownerCaller, usecase.CreateOrderInput{
		Items:      []usecase.OrderItemInput{{ProductID: 100, Quantity: 1}},
		CouponCode: "save10",
	})
	assertHTTPError(t, err, http.StatusBadRequest, usecase.CodeInvalidPromoCode)
	f.orders.AssertNotCalled(t, "UpdatePricing", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderUsecase_Create_SuccessPricesAndNotifies(t *testing.T) {
	f := newOrderFixture()
	promo := activeFixedPromo()
	stored := model.Order{ID: 5, UserID: 1, Status: model.OrderStatusPending, PromoCodeID: &promo.ID, Discount: dec("10"), TotalPrice: dec("90")}
	items := []model.OrderItem{{ID: 1, OrderID: 5, ProductID: 100, ProductNameSnapshot: "A", UnitPriceSnapshot: dec("50"), Quantity: 2, Price: dec("100")}}

	f.orders.On("Create", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.UserID == 1 && o.Status == model.OrderStatusPending && o.IdempotencyKey == nil
	})).Return(int64(5), nil)
	f.inv.On("Reserve", mock.Anything, int64(100), int64(2)).Return(model.Product{ID: 100, Name: "A", Price: dec("50")}, nil)
	f.items.On("CreateBulk", mock.Anything, int64(5), mock.MatchedBy(func(in []model.OrderItem) bool {
		return len(in) == 1 && in[0].Price.Equal(dec("100")) && in[0].ProductNameSnapshot == "A"
	})).Return(nil)
	f.promos.On("FindByCodeForUpdate", mock.Anything, "SAVE10").Return(promo, nil)
	f.orders.On("ExistsByUserAndPromo", mock.Anything, int64(1), int64(7), int64(5)).Return(false, nil)
	f.orders.On("UpdatePricing", mock.Anything, int64(5), mock.MatchedBy(func(id *int64) bool {
		return id != nil && *id == 7
	}), mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(dec("10"))
	}), mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(dec("90"))
	})).Return(nil)
	f.users.On("FindByID", mock.Anything, int64(1)).Return(&model.User{ID: 1, Email: "a@example.com", FirstName: "Ann"}, nil)
	f.orders.On("FindByID", mock.Anything, int64(5)).Return(stored, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(5)).Return(items, nil)
	f.promos.On("FindByID", mock.Anything, int64(7)).Return(promo, nil)

	out, err := f.uc.Create(context.Background(), ownerCaller, usecase.CreateOrderInput{
		Items:      []usecase.OrderItemInput{{ProductID: 100, Quantity: 2}},
		CouponCode: "save10",
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(5), out.ID)
	assert.Equal(t, "90.00", out.TotalPrice)
	assert.Equal(t, "10.00", out.Discount)
	if assert.NotNil(t, out.PromoCode) {
		assert.Equal(t, "SAVE10", *out.PromoCode)
	}
	assert.Len(t, out.Items, 1)

	if assert.Equal(t, 1, f.notifier.count()) {
		snap := f.notifier.last()
		assert.Equal(t, int64(5), snap.OrderID)
		assert.Equal(t, "a@example.com", snap.UserEmail)
		assert.True(t, snap.TotalPrice.Equal(dec("90")))
		assert.Equal(t, []model.OrderSnapshotItem{{ProductName: "A", Quantity: 2}}, snap.Items)
	}
	f.orders.AssertExpectations(t)
	f.items.AssertExpectations(t)
}

func TestOrderUsecase_Create_IdempotentReplay(t *testing.T) {
	f := newOrderFixture()
	existing := model.Order{ID: 5, UserID: 1, Status: model.OrderStatusPending, Discount: dec("0"), TotalPrice: dec("20")}
	f.orders.On("FindByIdempotencyKey", mock.Anything, int64(1), "key-1").Return(existing, true, nil)
	f.orders.On("FindByID", mock.Anything, int64(5)).Return(existing, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(5)).Return([]model.OrderItem{}, nil)

	out, err := f.uc.Create(context.Background(), ownerCaller, usecase.CreateOrderInput{
		Items:          []usecase.OrderItemInput{{ProductID: 100, Quantity: 2}},
		IdempotencyKey: " key-1 ",
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(5), out.ID)

	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.inv.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, f.notifier.count())
}

// =====================
// Replace / Delete / Get / List
// =====================

func TestOrderUsecase_Replace_NonOwnerGetsNotFound(t *testing.T) {
	f := newOrderFixture()
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(5)).Return(model.Order{ID: 5, UserID: 1, Status: model.OrderStatusPending}, nil)

	_, err := f.uc.Replace(context.Background(), otherCaller, 5, usecase.ReplaceOrderInput{
		Items: []usecase.OrderItemInput{{ProductID: 100, Quantity: 1}},
	})
	assertHTTPError(t, err, http.StatusNotFound, usecase.CodeNotFound)
	f.inv.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderUsecase_Replace_OnlyPending(t *testing.T) {
	f := newOrderFixture()
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(5)).Return(model.Order{ID: 5, UserID: 1, Status: model.OrderStatusShipped}, nil)

	_, err := f.uc.Replace(context.Background(), ownerCaller, 5, usecase.ReplaceOrderInput{
		Items: []usecase.OrderItemInput{{ProductID: 100, Quantity: 1}},
	})
	assertErrContains(t, err, "only pending orders can be changed")
}

func TestOrderUsecase_Replace_LocksOldAndNewProductsBeforeRelease(t *testing.T) {
	f := newOrderFixture()
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(5)).Return(model.Order{ID: 5, UserID: 1, Status: model.OrderStatusPending}, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(5)).Return([]model.OrderItem{
		{ProductID: 300, Quantity: 1},
		{ProductID: 100, Quantity: 2},
	}, nil)
	f.inv.On("Release", mock.Anything, int64(300), int64(1)).Return(nil)
	f.inv.On("Release", mock.Anything, int64(100), int64(2)).Return(nil)
	f.items.On("DeleteByOrderID", mock.Anything, int64(5)).Return(nil)
	f.inv.On("Reserve", mock.Anything, int64(200), int64(5)).Return(model.Product{}, repo.ErrInsufficientStock)

	_, err := f.uc.Replace(context.Background(), ownerCaller, 5, usecase.ReplaceOrderInput{
		Items: []usecase.OrderItemInput{
			{ProductID: 200, Quantity: 5},
			{ProductID: 100, Quantity: 1},
		},
	})
	he := assertHTTPError(t, err, http.StatusBadRequest, usecase.CodeInsufficientStock)
	if he != nil && assert.NotNil(t, he.ProductID) {
		assert.Equal(t, int64(200), *he.ProductID)
	}

	//戻す側と予約する側を1回でまとめてロックする
	f.inv.AssertCalled(t, "LockProducts", mock.Anything, []int64{100, 200, 300})
	f.inv.AssertNumberOfCalls(t, "LockProducts", 1)
	if assert.NotEmpty(t, f.inv.Calls) {
		assert.Equal(t, "LockProducts", f.inv.Calls[0].Method)
	}
}

func TestOrderUsecase_Delete_CancelledDoesNotReleaseAgain(t *testing.T) {
	f := newOrderFixture()
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(5)).Return(model.Order{ID: 5, UserID: 1, Status: model.OrderStatusCancelled}, nil)
	f.items.On("DeleteByOrderID", mock.Anything, int64(5)).Return(nil)
	f.orders.On("Delete", mock.Anything, int64(5)).Return(nil)

	err := f.uc.Delete(context.Background(), ownerCaller, 5)
	assert.NoError(t, err)

	f.items.AssertNotCalled(t, "ListByOrderID", mock.Anything, mock.Anything)
	f.inv.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	f.orders.AssertExpectations(t)
}

func TestOrderUsecase_Delete_ReleasesPendingStock(t *testing.T) {
	f := newOrderFixture()
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(5)).Return(model.Order{ID: 5, UserID: 1, Status: model.OrderStatusPending}, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(5)).Return([]model.OrderItem{
		{ProductID: 100, Quantity: 2},
		{ProductID: 300, Quantity: 1},
	}, nil)
	f.inv.On("Release", mock.Anything, int64(100), int64(2)).Return(nil)
	//商品が消えていても削除は続ける
	f.inv.On("Release", mock.Anything, int64(300), int64(1)).Return(repo.ErrNotFound)
	f.items.On("DeleteByOrderID", mock.Anything, int64(5)).Return(nil)
	f.orders.On("Delete", mock.Anything, int64(5)).Return(nil)

	err := f.uc.Delete(context.Background(), staffCaller, 5)
	assert.NoError(t, err)
	f.inv.AssertExpectations(t)
	f.inv.AssertCalled(t, "LockProducts", mock.Anything, []int64{100, 300})
}

func TestOrderUsecase_Delete_NotFound(t *testing.T) {
	f := newOrderFixture()
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(5)).Return(model.Order{}, repo.ErrNotFound)

	err := f.uc.Delete(context.Background(), ownerCaller, 5)
	assertHTTPError(t, err, http.StatusNotFound, usecase.CodeNotFound)
}

func TestOrderUsecase_Get_NonOwnerGetsNotFound(t *testing.T) {
	f := newOrderFixture()
	f.orders.On("FindByID", mock.Anything, int64(5)).Return(model.Order{ID: 5, UserID: 1}, nil)

	_, err := f.uc.Get(context.Background(), otherCaller, 5)
	assertHTTPError(t, err, http.StatusNotFound, usecase.CodeNotFound)
}

func TestOrderUsecase_List_UserSeesOnlyOwnOrders(t *testing.T) {
	f := newOrderFixture()
	f.orders.On("List", mock.Anything, mock.MatchedBy(func(flt repo.OrderListFilter) bool {
		return flt.UserID != nil && *flt.UserID == 1 && flt.UserEmail == ""
	})).Return([]model.Order{}, int64(0), nil)

	out, err := f.uc.List(context.Background(), ownerCaller, usecase.OrderListInput{Page: 1, Limit: 20, UserEmail: "other@"})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), out.Total)
	assert.NotNil(t, out.Items)
	f.orders.AssertExpectations(t)
}

func TestOrderUsecase_List_StaffFiltersByEmail(t *testing.T) {
	f := newOrderFixture()
	f.orders.On("List", mock.Anything, mock.MatchedBy(func(flt repo.OrderListFilter) bool {
		return flt.UserID == nil && flt.UserEmail == "example.com"
	})).Return([]model.Order{}, int64(0), nil)

	_, err := f.uc.List(context.Background(), staffCaller, usecase.OrderListInput{Page: 1, Limit: 20, UserEmail: "example.com"})
	assert.NoError(t, err)
	f.orders.AssertExpectations(t)
}

func TestOrderUsecase_List_InvalidInput(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	_, err := f.uc.List(ctx, ownerCaller, usecase.OrderListInput{Page: 0, Limit: 20})
	assertErrContains(t, err, "invalid page")

	_, err = f.uc.List(ctx, ownerCaller, usecase.OrderListInput{Page: 1, Limit: 101})
	assertErrContains(t, err, "invalid limit")

	_, err = f.uc.List(ctx, ownerCaller, usecase.OrderListInput{Page: 1, Limit: 20, Status: "PAID"})
	assertErrContains(t, err, "invalid status")

	from := testNow
	to := testNow.Add(-1)
	_, err = f.uc.List(ctx, ownerCaller, usecase.OrderListInput{Page: 1, Limit: 20, From: &from, To: &to})
	assertErrContains(t, err, "from must be <= to")
}
