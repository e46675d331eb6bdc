package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func roleContext(role string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if role != "" {
		req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: "u", Role: role}))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequireRole_Allowed(t *testing.T) {
	c, rec := roleContext(RoleOperator)
	if err := RequireRole(RoleOperator)(okHandler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_AdminPassesEveryGate(t *testing.T) {
	c, _ := roleContext(RoleAdmin)
	if err := RequireRole(RoleOperator)(okHandler)(c); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	c, _ := roleContext(RoleOperator)
	err := RequireRole(RoleAdmin)(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_NoIdentity(t *testing.T) {
	c, _ := roleContext("")
	err := RequireRole(RoleOperator)(okHandler)(c)
	expectStatus(t, err, http.StatusUnauthorized)
}
