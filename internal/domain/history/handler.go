package history

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
	api.GET("/history/read", h.ListRead)
	api.GET("/history/write", h.ListWrite)
}

func (h *Handler) ListRead(c echo.Context) error {
	return h.list(c, EventRead)
}

func (h *Handler) ListWrite(c echo.Context) error {
	return h.list(c, EventWrite)
}

func (h *Handler) list(c echo.Context, eventType string) error {
	p := auth.FromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	caller, err := h.callers.ByIdentity(c.Request().Context(), p.Subject)
	if err != nil {
		return httperr.ToHTTP(err)
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), caller.ID, eventType, pg.Limit, pg.Offset)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
