package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
)

// AuditEntry describes one staff write.
type AuditEntry struct {
	UserID     string
	Role       string
	Action     string // create, update, delete, login, logout
	Resource   string
	ResourceID string
	Method     string
	Path       string
	IPAddress  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// Audit logs every state-changing request under /api/v1 once the handler
// has run. Reads are not audited.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method == http.MethodGet || req.Method == http.MethodHead || req.Method == http.MethodOptions {
				return next(c)
			}

			err := next(c)

			entry := auditEntry(c, err)
			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Int("status", entry.StatusCode).
				Str("ip", entry.IPAddress).
				Time("at", entry.Timestamp).
				Msg("audit")

			return err
		}
	}
}

func auditEntry(c echo.Context, err error) AuditEntry {
	req := c.Request()
	id, _ := auth.IdentityFromContext(req.Context())
	rid, _ := c.Get("request_id").(string)

	status := c.Response().Status
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
	}

	resource := resourceFromPath(req.URL.Path)
	return AuditEntry{
		UserID:     id.UserID,
		Role:       id.Role,
		Action:     actionFor(req.Method, resource, req.URL.Path),
		Resource:   resource,
		ResourceID: c.Param("id"),
		Method:     req.Method,
		Path:       req.URL.Path,
		IPAddress:  c.RealIP(),
		RequestID:  rid,
		StatusCode: status,
		Timestamp:  time.Now().UTC(),
	}
}

// resourceFromPath returns the first segment after /api/v1.
func resourceFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	if rest == path {
		return ""
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i]
	}
	return rest
}

func actionFor(method, resource, path string) string {
	if resource == "auth" {
		switch {
		case strings.HasSuffix(path, "/login"):
			return "login"
		case strings.HasSuffix(path, "/logout"):
			return "logout"
		}
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
