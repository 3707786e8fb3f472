package record

import (
	"context"
	"encoding/json"
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

func newHandlerFixture() (*Handler, *echo.Echo, *user.User) {
	owner := testOwner()
	callers := &fakeCallers{users: map[string]*user.User{"ident-owner": owner}}
	svc := NewService(newMockRecordRepo(), fakeSealer{}, nil, nil, nil, nil, zerolog.Nop())
	return NewHandler(svc, callers), echo.New(), owner
}

func authedContext(e *echo.Echo, method, target, body string, p *auth.Principal) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func ownerPrincipal() *auth.Principal {
	return &auth.Principal{Subject: "ident-owner", Wallet: "0xowner", Role: user.RoleOwner}
}

func TestCreateHandler_Success(t *testing.T) {
	h, e, _ := newHandlerFixture()
	body := `{"token_id":"7","encryption_key":"k","title":"x-ray","cid":"QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"}`
	c, rec := authedContext(e, http.MethodPost, "/api/v1/medical_records", body, ownerPrincipal())

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var got MedicalRecord
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.TokenID != "7" {
		t.Errorf("unexpected token %s", got.TokenID)
	}
	if strings.Contains(rec.Body.String(), "key_envelope") {
		t.Error("sealed envelope leaked in response")
	}
}

func TestCreateHandler_Unauthenticated(t *testing.T) {
	h, e, _ := newHandlerFixture()
	c, _ := authedContext(e, http.MethodPost, "/api/v1/medical_records", `{"token_id":"7"}`, nil)

	err := h.Create(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestCreateHandler_UnregisteredIdentity(t *testing.T) {
	h, e, _ := newHandlerFixture()
	p := &auth.Principal{Subject: "ident-unknown"}
	c, _ := authedContext(e, http.MethodPost, "/api/v1/medical_records", `{"token_id":"7"}`, p)

	err := h.Create(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestCreateRoute_RejectsNonOwnerRole(t *testing.T) {
	h, e, _ := newHandlerFixture()
	h.RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/medical_records", strings.NewReader(`{"token_id":"7"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	org := &auth.Principal{Subject: "ident-org", Wallet: "0xorg", Role: user.RoleOrganization}
	req = req.WithContext(auth.WithPrincipal(req.Context(), org))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetHandler_ReturnsKey(t *testing.T) {
	h, e, _ := newHandlerFixture()
	body := `{"token_id":"7","encryption_key":"top-secret","title":"x-ray","cid":"QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"}`
	c, _ := authedContext(e, http.MethodPost, "/api/v1/medical_records", body, ownerPrincipal())
	if err := h.Create(c); err != nil {
		t.Fatalf("create: %v", err)
	}

	c, rec := authedContext(e, http.MethodGet, "/api/v1/medical_records/7", "", ownerPrincipal())
	c.SetParamNames("token_id")
	c.SetParamValues("7")

	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got MedicalRecord
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.EncryptionKey != "top-secret" {
		t.Errorf("expected unsealed key in owner read, got %q", got.EncryptionKey)
	}
}

func TestGetHandler_UnknownToken(t *testing.T) {
	h, e, _ := newHandlerFixture()
	c, _ := authedContext(e, http.MethodGet, "/api/v1/medical_records/999", "", ownerPrincipal())
	c.SetParamNames("token_id")
	c.SetParamValues("999")

	err := h.Get(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestListHandler_EmptyPage(t *testing.T) {
	h, e, _ := newHandlerFixture()
	c, rec := authedContext(e, http.MethodGet, "/api/v1/medical_records?limit=5", "", ownerPrincipal())

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected empty data array, got %s", rec.Body.String())
	}
}
