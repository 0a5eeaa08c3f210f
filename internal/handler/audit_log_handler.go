package handler

import (
	"net/http"

	"ordersvc/internal/middleware"
	"ordersvc/internal/repository"
	"ordersvc/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AuditLogHandler struct {
	uc *usecase.AuditLogUsecase
}

func NewAuditLogHandler(uc *usecase.AuditLogUsecase) *AuditLogHandler {
	return &AuditLogHandler{uc: uc}
}

func (h *AuditLogHandler) RegisterRoutes(e *echo.Echo, jwtSecret string, userRepo repository.UserRepository) {
	admin := e.Group("/admin")
	admin.Use(middleware.AuthJWT(jwtSecret))
	admin.Use(middleware.TokenVersionGuard(userRepo))
	admin.Use(middleware.StaffRoleGuard())

	admin.GET("/audit-logs", h.list)
}

// ?actor_user_id=&action=&resource_type=&resource_id=&from=&to=&page=&limit=
func (h *AuditLogHandler) list(c echo.Context) error {
	caller, ok := callerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	in, err := bindAuditLogQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	out, err := h.uc.List(c.Request().Context(), caller, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func bindAuditLogQuery(c echo.Context) (usecase.AuditLogListInput, error) {
	page, limit, err := queryPaging(c)
	if err != nil {
		return usecase.AuditLogListInput{}, err
	}
	in := usecase.AuditLogListInput{
		Page:         page,
		Limit:        limit,
		Action:       c.QueryParam("action"),
		ResourceType: c.QueryParam("resource_type"),
	}
	if in.ActorUserID, err = queryInt64(c, "actor_user_id"); err != nil {
		return in, err
	}
	if in.ResourceID, err = queryInt64(c, "resource_id"); err != nil {
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
