package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func newContext(method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, body)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequestID_GeneratesNew(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/", nil)

	handler := func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid == "" {
			t.Error("expected request_id to be generated")
		}
		return okHandler(c)
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/", nil)
	c.Request().Header.Set(RequestIDHeader, "my-custom-id")

	if err := RequestID()(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Get("request_id") != "my-custom-id" {
		t.Errorf("expected my-custom-id, got %v", c.Get("request_id"))
	}
	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_ReplacesOversized(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/", nil)
	c.Request().Header.Set(RequestIDHeader, strings.Repeat("x", 500))

	if err := RequestID()(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rid, _ := c.Get("request_id").(string); len(rid) > maxRequestIDLen {
		t.Errorf("expected oversized id to be replaced, got length %d", len(rid))
	}
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	c, _ := newContext(http.MethodGet, "/api/v1/patients", nil)
	c.Set("request_id", "req-1")

	handler := func(c echo.Context) error {
		log.Ctx(c.Request().Context()).Info().Msg("inside handler")
		return okHandler(c)
	}

	if err := Logger(logger)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if strings.Count(out, `"request_id":"req-1"`) != 2 {
		t.Errorf("expected request id on both log lines, got %s", out)
	}
	if !strings.Contains(out, `"status":200`) {
		t.Errorf("expected status in log, got %s", out)
	}
}

func TestLogger_UsesHTTPErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newContext(http.MethodGet, "/x", nil)

	handler := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	_ = Logger(zerolog.New(&buf))(handler)(c)

	if !strings.Contains(buf.String(), `"status":404`) || !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("expected 404 at warn level, got %s", buf.String())
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/panic", nil)

	handler := func(c echo.Context) error {
		panic("test panic")
	}

	err := Recovery(zerolog.Nop())(handler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/ok", nil)
	if err := Recovery(zerolog.Nop())(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSecurityHeaders(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/", nil)
	if err := SecurityHeaders()(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
		"Referrer-Policy":        "no-referrer",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s: expected %q, got %q", k, v, got)
		}
	}
}

func TestRequestTimeout_CompletesWithinDeadline(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/api/v1/patients", nil)
	if err := RequestTimeout(5 * time.Second)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestTimeout_ReturnsTimeoutOnExpiry(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/api/v1/dashboard", nil)

	handler := func(c echo.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return nil
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}

	err := RequestTimeout(20 * time.Millisecond)(handler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", httpErr.Code)
	}
}

func TestRequestTimeout_ParentCancelled(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/", nil)
	ctx, cancel := context.WithCancel(c.Request().Context())
	cancel()
	c.SetRequest(c.Request().WithContext(ctx))

	handler := func(c echo.Context) error {
		<-c.Request().Context().Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	}

	err := RequestTimeout(time.Second)(handler)(c)
	if !errors.Is(err, context.Canceled) && err != nil {
		t.Errorf("expected context.Canceled or nil, got %v", err)
	}
}

func TestRequestTimeout_WaitsForHandler(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/api/v1/dashboard", nil)

	finished := false
	handler := func(c echo.Context) error {
		time.Sleep(40 * time.Millisecond)
		finished = true
		return c.String(http.StatusOK, "late")
	}

	if err := RequestTimeout(10 * time.Millisecond)(handler)(c); err != nil {
		t.Fatalf("expected committed late response to pass through, got %v", err)
	}
	if !finished {
		t.Fatal("middleware returned while the handler was still running")
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "late" {
		t.Errorf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestBodyLimit_RejectsByContentLength(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/api/v1/patients", strings.NewReader(strings.Repeat("a", 2048)))

	err := BodyLimit("1K")(okHandler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}
}

func TestBodyLimit_EnforcedWhileReading(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/api/v1/patients", strings.NewReader(strings.Repeat("a", 2048)))
	c.Request().ContentLength = -1

	handler := func(c echo.Context) error {
		_, err := io.ReadAll(c.Request().Body)
		return err
	}

	err := BodyLimit("1K")(handler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 while reading, got %v", err)
	}
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/api/v1/patients", strings.NewReader(`{"ptName":"Asha"}`))

	handler := func(c echo.Context) error {
		b, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		if string(b) != `{"ptName":"Asha"}` {
			t.Errorf("unexpected body %q", b)
		}
		return nil
	}
	if err := BodyLimit("1M")(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1M", 1 << 20},
		{"512K", 512 << 10},
		{"2G", 2 << 30},
		{"10MB", 10 << 20},
		{"4096", 4096},
		{"", 1 << 20},
		{"lots", 1 << 20},
		{"-5", 1 << 20},
	}
	for _, tt := range tests {
		if got := ParseLimit(tt.in); got != tt.want {
			t.Errorf("ParseLimit(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRateLimit_BlocksAfterBurst(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})
	h := mw(okHandler)

	for i := 0; i < 2; i++ {
		c, _ := newContext(http.MethodGet, "/", nil)
		if err := h(c); err != nil {
			t.Fatalf("request %d: unexpected error %v", i, err)
		}
	}

	c, rec := newContext(http.MethodGet, "/", nil)
	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	h := mw(okHandler)

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		c, _ := newContext(http.MethodGet, "/", nil)
		c.Request().RemoteAddr = ip + ":1234"
		if err := h(c); err != nil {
			t.Errorf("%s: unexpected error %v", ip, err)
		}
	}
}

func TestLimiterStore_SweepsIdle(t *testing.T) {
	s := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.get("a")
	s.get("b")
	if s.size() != 2 {
		t.Fatalf("expected 2 visitors, got %d", s.size())
	}

	now = now.Add(2 * time.Minute)
	s.get("c")
	if s.size() != 1 {
		t.Errorf("expected idle visitors swept, got %d", s.size())
	}
}

func TestAudit_LogsWrites(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newContext(http.MethodPut, "/api/v1/patients/abc", nil)
	c.SetParamNames("id")
	c.SetParamValues("abc")
	c.Set("request_id", "req-9")
	c.SetRequest(c.Request().WithContext(auth.WithIdentity(c.Request().Context(),
		auth.Identity{UserID: "staff-1", Role: auth.RoleOperator})))

	if err := Audit(zerolog.New(&buf))(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"user_id":"staff-1"`, `"action":"update"`, `"resource":"patients"`, `"resource_id":"abc"`, `"status":200`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in audit log, got %s", want, out)
		}
	}
}

func TestAudit_SkipsReads(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newContext(http.MethodGet, "/api/v1/patients", nil)

	if err := Audit(zerolog.New(&buf))(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no audit output for GET, got %s", buf.String())
	}
}

func TestActionFor(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{http.MethodPost, "/api/v1/auth/login", "login"},
		{http.MethodPost, "/api/v1/auth/logout", "logout"},
		{http.MethodPost, "/api/v1/patients", "create"},
		{http.MethodPatch, "/api/v1/patients/1/delivery", "update"},
		{http.MethodDelete, "/api/v1/services/1", "delete"},
	}
	for _, tt := range tests {
		if got := actionFor(tt.method, resourceFromPath(tt.path), tt.path); got != tt.want {
			t.Errorf("actionFor(%s %s) = %q, want %q", tt.method, tt.path, got, tt.want)
		}
	}
}
