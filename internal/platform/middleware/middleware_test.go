package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/recordvault/recordvault/internal/platform/auth"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	mw := RequestID()
	h := mw(handler)
	err := h(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.String(http.StatusOK, "ok")
	}

	mw := RequestID()
	h := mw(handler)
	h(c)

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_LogsRequest(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := Logger(logger)
	h := mw(handler)
	err := h(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		panic("test panic")
	}

	mw := Recovery(logger)
	h := mw(handler)
	err := h(c)

	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := Recovery(logger)
	h := mw(handler)
	err := h(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAudit_RecordsEntry(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/medical_records/42", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-123")

	var got AuditEntry
	recorder := AuditRecorderFunc(func(entry AuditEntry) error {
		got = entry
		return nil
	})

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := Audit(logger, recorder)
	h := mw(handler)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Resource != "medical_records" {
		t.Errorf("expected resource medical_records, got %q", got.Resource)
	}
	if got.TokenID != "42" {
		t.Errorf("expected token 42, got %q", got.TokenID)
	}
	if got.Action != "read" {
		t.Errorf("expected action read, got %q", got.Action)
	}
	if got.RequestID != "req-123" {
		t.Errorf("expected request_id req-123, got %q", got.RequestID)
	}
}

func TestAudit_RecordsPrincipalSetDownstream(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/medical_records/42", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got AuditEntry
	recorder := AuditRecorderFunc(func(entry AuditEntry) error {
		got = entry
		return nil
	})

	// The auth middleware attaches the principal by swapping the request,
	// the way JWTMiddleware does. The audit entry must still see it.
	attachPrincipal := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := &auth.Principal{Subject: "user-1", Wallet: "0xabc", Role: "owner"}
			c.SetRequest(c.Request().WithContext(auth.WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	h := Audit(logger, recorder)(attachPrincipal(handler))
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.UserID != "user-1" {
		t.Errorf("expected user_id user-1, got %q", got.UserID)
	}
	if got.Wallet != "0xabc" {
		t.Errorf("expected wallet 0xabc, got %q", got.Wallet)
	}
	if got.Role != "owner" {
		t.Errorf("expected role owner, got %q", got.Role)
	}
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	recorded := false
	recorder := AuditRecorderFunc(func(entry AuditEntry) error {
		recorded = true
		return nil
	})

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := Audit(logger, recorder)
	h := mw(handler)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorded {
		t.Error("expected no audit entry for /health")
	}
}

func TestExtractTokenID(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/api/v1/medical_records/42", "42"},
		{"/api/v1/access/7", "7"},
		{"/api/v1/access/7/0xabc", "7"},
		{"/api/v1/users", ""},
	}
	e := echo.New()
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		c := e.NewContext(req, httptest.NewRecorder())
		if got := extractTokenID(c); got != tc.want {
			t.Errorf("extractTokenID(%s) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
