package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/recordvault/recordvault/internal/domain/user"
	"github.com/recordvault/recordvault/internal/platform/auth"
	"github.com/recordvault/recordvault/internal/platform/httperr"
)

type fakeCallers struct{ users map[string]*user.User }

func (f *fakeCallers) ByIdentity(ctx context.Context, identityID string) (*user.User, error) {
	u, ok := f.users[identityID]
	if !ok {
		return nil, httperr.NotFoundf("user not found")
	}
	return u, nil
}

func newContext(e *echo.Echo, method, target string, p *auth.Principal) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, nil)
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestCheckHandler_GrantedAddress(t *testing.T) {
	svc := NewService(grantedFake(t, "42", "0xclinic"), nil, nil, zerolog.Nop())
	h := NewHandler(svc, &fakeCallers{})
	e := echo.New()

	c, rec := newContext(e, http.MethodGet, "/api/v1/access/42?address=0xclinic",
		&auth.Principal{Subject: "ident", Wallet: "0xother"})
	c.SetParamNames("token_id")
	c.SetParamValues("42")

	if err := h.Check(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"has_access":true`) {
		t.Errorf("expected has_access true, got %s", rec.Body.String())
	}
}

func TestCheckHandler_DefaultsToCallerWallet(t *testing.T) {
	svc := NewService(grantedFake(t, "42", "0xclinic"), nil, nil, zerolog.Nop())
	h := NewHandler(svc, &fakeCallers{})
	e := echo.New()

	c, rec := newContext(e, http.MethodGet, "/api/v1/access/42",
		&auth.Principal{Subject: "ident", Wallet: "0xclinic"})
	c.SetParamNames("token_id")
	c.SetParamValues("42")

	if err := h.Check(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"has_access":true`) {
		t.Errorf("expected caller wallet used, got %s", rec.Body.String())
	}
}

func TestRevokeHandler_NoContent(t *testing.T) {
	owner := &user.User{Role: user.RoleOwner}
	revoker := &fakeRevoker{}
	svc := NewService(grantedFake(t, "42", "0xclinic"), nil, revoker, zerolog.Nop())
	h := NewHandler(svc, &fakeCallers{users: map[string]*user.User{"ident-owner": owner}})
	e := echo.New()

	c, rec := newContext(e, http.MethodDelete, "/api/v1/access/42/0xclinic",
		&auth.Principal{Subject: "ident-owner"})
	c.SetParamNames("token_id", "address")
	c.SetParamValues("42", "0xclinic")

	if err := h.Revoke(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(revoker.revokes) != 1 {
		t.Errorf("expected one revoke, got %d", len(revoker.revokes))
	}
}

func TestRevokeRoute_RejectsOrganizationRole(t *testing.T) {
	svc := NewService(grantedFake(t, "42", "0xclinic"), nil, &fakeRevoker{}, zerolog.Nop())
	h := NewHandler(svc, &fakeCallers{})
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/access/42/0xclinic", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(),
		&auth.Principal{Subject: "ident-org", Role: user.RoleOrganization}))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRevokeHandler_Unauthenticated(t *testing.T) {
	svc := NewService(grantedFake(t, "42", "0xclinic"), nil, &fakeRevoker{}, zerolog.Nop())
	h := NewHandler(svc, &fakeCallers{})
	e := echo.New()

	c, _ := newContext(e, http.MethodDelete, "/api/v1/access/42/0xclinic", nil)
	err := h.Revoke(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
