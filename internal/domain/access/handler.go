package access

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/recordvault/recordvault/internal/domain/user"
	"github.com/recordvault/recordvault/internal/platform/auth"
	"github.com/recordvault/recordvault/internal/platform/httperr"
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
	api.GET("/access/:token_id", h.Check)
	api.DELETE("/access/:token_id/:address", h.Revoke, auth.RequireRole(user.RoleOwner))
}

// Check answers GET /access/:token_id?address=. The address defaults to the
// caller's own wallet.
func (h *Handler) Check(c echo.Context) error {
	p := auth.FromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	address := c.QueryParam("address")
	if address == "" {
		address = p.Wallet
	}

	hasAccess, err := h.svc.HasAccess(c.Request().Context(), c.Param("token_id"), address)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"has_access": hasAccess})
}

func (h *Handler) Revoke(c echo.Context) error {
	p := auth.FromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	caller, err := h.callers.ByIdentity(c.Request().Context(), p.Subject)
	if err != nil {
		return httperr.ToHTTP(err)
	}

	if err := h.svc.Revoke(c.Request().Context(), caller,
		c.Param("token_id"), c.Param("address")); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
