package record

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/recordvault/recordvault/internal/domain/user"
	"github.com/recordvault/recordvault/internal/platform/auth"
	"github.com/recordvault/recordvault/internal/platform/httperr"
	"github.com/recordvault/recordvault/pkg/pagination"
)

// CallerResolver maps a verified token subject to a registered user.
type CallerResolver interface {
	ByIdentity(ctx context.Context, identityID string) (*user.User, error)
}

type Handler struct {
	svc     *Service
	callers CallerResolver
}

func NewHandler(svc *Service, callers CallerResolver) *Handler {
	return &Handler{svc: svc, callers: callers}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/medical_records", h.Create, auth.RequireRole(user.RoleOwner))
	api.GET("/medical_records", h.List)
	api.GET("/medical_records/:token_id", h.Get)
}

func (h *Handler) caller(c echo.Context) (*user.User, error) {
	p := auth.FromContext(c.Request().Context())
	if p == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	u, err := h.callers.ByIdentity(c.Request().Context(), p.Subject)
	if err != nil {
		return nil, httperr.ToHTTP(err)
	}
	return u, nil
}

func (h *Handler) Create(c echo.Context) error {
	caller, err := h.caller(c)
	if err != nil {
		return err
	}

	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.svc.Create(c.Request().Context(), caller, in)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) Get(c echo.Context) error {
	caller, err := h.caller(c)
	if err != nil {
		return err
	}

	rec, err := h.svc.Get(c.Request().Context(), caller, c.Param("token_id"))
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) List(c echo.Context) error {
	caller, err := h.caller(c)
	if err != nil {
		return err
	}

	p := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), caller, p.Limit, p.Offset)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	if items == nil {
		items = []*MedicalRecord{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}
