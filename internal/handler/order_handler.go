package handler

import (
	"net/http"

	"ordersvc/internal/middleware"
	"ordersvc/internal/repository"
	"ordersvc/internal/usecase"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	uc *usecase.OrderUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase) *OrderHandler {
	return &OrderHandler{uc: uc}
}

// 作成と置き換えで同じ形
type OrderRequest struct {
	Items      []usecase.OrderItemInput `json:"items"`
	CouponCode string                   `json:"coupon_code"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, jwtSecret string, userRepo repository.UserRepository) {
	g := e.Group("/orders")
	g.Use(middleware.AuthJWT(jwtSecret))
	g.Use(middleware.TokenVersionGuard(userRepo))

	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.PUT("/:id", h.replace)
	g.DELETE("/:id", h.delete)
}

func (h *OrderHandler) create(c echo.Context) error {
	caller, ok := callerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req OrderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	//二重送信防止キーはヘッダーから受け取る（bodyには入れない）
	idemKey := c.Request().Header.Get("X-Idempotency-Key")

	out, err := h.uc.Create(c.Request().Context(), caller, usecase.CreateOrderInput{
		Items:          req.Items,
		CouponCode:     req.CouponCode,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *OrderHandler) replace(c echo.Context) error {
	caller, ok := callerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req OrderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.Replace(c.Request().Context(), caller, id, usecase.ReplaceOrderInput{
		Items:      req.Items,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) delete(c echo.Context) error {
	caller, ok := callerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.uc.Delete(c.Request().Context(), caller, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *OrderHandler) list(c echo.Context) error {
	caller, ok := callerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	in, err := bindOrderQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	out, err := h.uc.List(c.Request().Context(), caller, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	caller, ok := callerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	out, err := h.uc.Get(c.Request().Context(), caller, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func bindOrderQuery(c echo.Context) (usecase.OrderListInput, error) {
	page, limit, err := queryPaging(c)
	if err != nil {
		return usecase.OrderListInput{}, err
	}
	in := usecase.OrderListInput{
		Page:      page,
		Limit:     limit,
		Status:    c.QueryParam("status"),
		PromoCode: c.QueryParam("promo_code"),
		UserEmail: c.QueryParam("user_email"),
	}

	if in.MinTotal, err = queryDecimal(c, "min_total"); err != nil {
		return in, err
	}
	if in.MaxTotal, err = queryDecimal(c, "max_total"); err != nil {
		return in, err
	}
	if in.MinDiscount, err = queryDecimal(c, "min_discount"); err != nil {
		return in, err
	}
	if in.MaxDiscount, err = queryDecimal(c, "max_discount"); err != nil {
		return in, err
	}
	if in.From, err = queryTime(c, "from"); err != nil {
		return in, err
	}
	if in.To, err = queryTime(c, "to"); err != nil {
		return in, err
	}
	return in, nil
}
