package handler

import (
	"net/http"
	"time"

	"ordersvc/internal/middleware"
	"ordersvc/internal/repository"
	"ordersvc/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type PromoCodeRequest struct {
	Code               string           `json:"code"`
	Name               string           `json:"name"`
	Kind               string           `json:"kind"`
	FixedAmount        *decimal.Decimal `json:"fixed_amount"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage"`
	MaxDiscountAmount  *decimal.Decimal `json:"max_discount_amount"`
	StartAt            time.Time        `json:"start_at"`
	EndAt              time.Time        `json:"end_at"`
	IsActive           *bool            `json:"is_active"`
}

func (r PromoCodeRequest) toInput() usecase.PromoCodeInput {
	return usecase.PromoCodeInput{
		Code:               r.Code,
		Name:               r.Name,
		Kind:               r.Kind,
		FixedAmount:        r.FixedAmount,
		DiscountPercentage: r.DiscountPercentage,
		MaxDiscountAmount:  r.MaxDiscountAmount,
		StartAt:            r.StartAt,
		EndAt:              r.EndAt,
		IsActive:           r.IsActive,
	}
}

// /promo-codes。参照はログインユーザー、作成・更新はスタッフ
type PromoCodeHandler struct {
	uc *usecase.PromoCodeUsecase
}

func NewPromoCodeHandler(uc *usecase.PromoCodeUsecase) *PromoCodeHandler {
	return &PromoCodeHandler{uc: uc}
}

func (h *PromoCodeHandler) RegisterRoutes(e *echo.Echo, jwtSecret string, userRepo repository.UserRepository) {
	g := e.Group("/promo-codes")
	g.Use(middleware.AuthJWT(jwtSecret))
	g.Use(middleware.TokenVersionGuard(userRepo))

	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.POST("", h.create, middleware.StaffRoleGuard())
	g.PUT("/:id", h.update, middleware.StaffRoleGuard())
}

func (h *PromoCodeHandler) list(c echo.Context) error {
	caller, ok := callerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	page, limit, err := queryPaging(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	isActive, err := queryBool(c, "is_active")
	if err != nil {
		return badRequest(c, err.Error())
	}

	out, err := h.uc.List(c.Request().Context(), caller, usecase.PromoCodeListInput{
		Page:     page,
		Limit:    limit,
		Code:     c.QueryParam("code"),
		Name:     c.QueryParam("name"),
		Kind:     c.QueryParam("kind"),
		IsActive: isActive,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PromoCodeHandler) detail(c echo.Context) error {
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

func (h *PromoCodeHandler) create(c echo.Context) error {
	caller, ok := callerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req PromoCodeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.Create(c.Request().Context(), caller, req.toInput())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *PromoCodeHandler) update(c echo.Context) error {
	caller, ok := callerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req PromoCodeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.Update(c.Request().Context(), caller, id, req.toInput())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
