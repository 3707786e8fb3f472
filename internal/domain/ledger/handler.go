package ledger

import (
	"context"
	"net/http"

	"github.com/google/uuid"
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
	api.POST("/access_requests", h.CreateRequest, auth.RequireRole(user.RoleOrganization))
	api.GET("/access_requests", h.ListRequests)
	api.PATCH("/access_requests/:id", h.ResolveRequest)
	api.DELETE("/access_requests/:id", h.DeleteRequest)

	api.POST("/notifications", h.CreateNotification)
	api.GET("/notifications", h.ListNotifications)
	api.PATCH("/notifications/:id", h.ResolveNotification)

	api.GET("/grant_jobs", h.ListGrantJobs)
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

func (h *Handler) CreateRequest(c echo.Context) error {
	caller, err := h.caller(c)
	if err != nil {
		return err
	}

	var in struct {
		TokenID string `json:"token_id"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	req, err := h.svc.CreateRequest(c.Request().Context(), caller, in.TokenID)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, req)
}

func (h *Handler) ListRequests(c echo.Context) error {
	caller, err := h.caller(c)
	if err != nil {
		return err
	}

	p := pagination.FromContext(c)
	items, total, err := h.svc.ListRequests(c.Request().Context(), caller,
		c.QueryParam("status"), p.Limit, p.Offset)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	if items == nil {
		items = []*AccessRequest{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

// ResolveRequest answers PATCH /access_requests/:id?status=. The 201 on
// success mirrors the upstream client contract.
func (h *Handler) ResolveRequest(c echo.Context) error {
	caller, err := h.caller(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	req, err := h.svc.ResolveRequest(c.Request().Context(), caller, id, c.QueryParam("status"))
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, req)
}

func (h *Handler) DeleteRequest(c echo.Context) error {
	caller, err := h.caller(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := h.svc.DeleteRequest(c.Request().Context(), caller, id); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"status": "deleted"})
}

func (h *Handler) CreateNotification(c echo.Context) error {
	caller, err := h.caller(c)
	if err != nil {
		return err
	}

	var in struct {
		TokenID string `json:"token_id"`
		Message string `json:"message"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	n, err := h.svc.CreateNotification(c.Request().Context(), caller, in.TokenID, in.Message)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) ListNotifications(c echo.Context) error {
	caller, err := h.caller(c)
	if err != nil {
		return err
	}

	p := pagination.FromContext(c)
	items, total, err := h.svc.ListNotifications(c.Request().Context(), caller,
		c.QueryParam("status"), p.Limit, p.Offset)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	if items == nil {
		items = []*Notification{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

// ResolveNotification answers PATCH /notifications/:id with {"status": ...}.
func (h *Handler) ResolveNotification(c echo.Context) error {
	caller, err := h.caller(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var in struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var n *Notification
	switch in.Status {
	case StatusApproved:
		n, err = h.svc.Approve(c.Request().Context(), caller, id)
	case StatusDenied:
		n, err = h.svc.Deny(c.Request().Context(), caller, id)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "status must be approved or denied")
	}
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) ListGrantJobs(c echo.Context) error {
	caller, err := h.caller(c)
	if err != nil {
		return err
	}

	p := pagination.FromContext(c)
	items, total, err := h.svc.ListGrantJobs(c.Request().Context(), caller, p.Limit, p.Offset)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	if items == nil {
		items = []*GrantJob{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}
