package handler

import (
	"log/slog"
	"net/http"

	"ordersvc/internal/middleware"
	"ordersvc/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	ProductID *int64            `json:"product_id,omitempty"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{
			Error:     he.Message,
			Code:      he.Code,
			Fields:    he.Fields,
			ProductID: he.ProductID,
		})
	}

	//500
	slog.ErrorContext(c.Request().Context(), "unhandled error", "err", err, "uri", c.Request().RequestURI)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: usecase.CodeInternal})
}

// /products の公開API
type ProductHandler struct {
	uc *usecase.ProductUsecase
}

// DI
func NewProductHandler(uc *usecase.ProductUsecase) *ProductHandler {
	return &ProductHandler{uc: uc}
}

// 公開商品のルートを登録。トークンがあればスタッフとして扱う
func (h *ProductHandler) RegisterRoutes(e *echo.Echo, jwtSecret string) {
	g := e.Group("/products", middleware.OptionalAuthJWT(jwtSecret))
	g.GET("", h.list)
	g.GET("/:id", h.detail)
}

func (h *ProductHandler) list(c echo.Context) error {
	in, err := bindProductQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	out, err := h.uc.ListPublicProducts(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) detail(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "invalid id")
	}

	p, err := h.uc.GetProductDetail(c.Request().Context(), callerOrAnonymous(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// 一覧のクエリ（page/limit/name/min_price/max_price/min_stock/max_stock）
func bindProductQuery(c echo.Context) (usecase.ListProductsInput, error) {
	page, limit, err := queryPaging(c)
	if err != nil {
		return usecase.ListProductsInput{}, err
	}
	in := usecase.ListProductsInput{Page: page, Limit: limit, Name: c.QueryParam("name")}

	if in.MinPrice, err = queryDecimal(c, "min_price"); err != nil {
		return in, err
	}
	if in.MaxPrice, err = queryDecimal(c, "max_price"); err != nil {
		return in, err
	}
	if in.MinStock, err = queryInt64(c, "min_stock"); err != nil {
		return in, err
	}
	if in.MaxStock, err = queryInt64(c, "max_stock"); err != nil {
		return in, err
	}
	return in, nil
}
