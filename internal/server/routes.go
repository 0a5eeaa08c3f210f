package server

import (
	"net/http"

	"ordersvc/internal/handler"
	"ordersvc/internal/repository"

	"github.com/labstack/echo/v4"
)

// ルーティングに必要なハンドラ一式
type Handlers struct {
	Auth         *handler.AuthHandler
	Product      *handler.ProductHandler
	AdminProduct *handler.AdminProductHandler
	PromoCode    *handler.PromoCodeHandler
	Order        *handler.OrderHandler
	AdminOrder   *handler.AdminOrderHandler
	AuditLog     *handler.AuditLogHandler
}

func RegisterRoutes(e *echo.Echo, jwtSecret string, userRepo repository.UserRepository, h Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, handler.SuccessResponse{Message: "ok"})
	})

	h.Auth.RegisterRoutes(e, jwtSecret, userRepo)
	h.Product.RegisterRoutes(e, jwtSecret)
	h.AdminProduct.RegisterRoutes(e, jwtSecret, userRepo)
	h.AdminOrder.RegisterRoutes(e, jwtSecret, userRepo)
	h.AuditLog.RegisterRoutes(e, jwtSecret, userRepo)
	h.PromoCode.RegisterRoutes(e, jwtSecret, userRepo)
	h.Order.RegisterRoutes(e, jwtSecret, userRepo)
}
