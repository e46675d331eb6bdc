package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// publicRoutes lists the method+route pairs reachable without a session.
// Keys use the registered route pattern, not the raw URL.
var publicRoutes = map[string]bool{
	http.MethodGet + " /health":                    true,
	http.MethodGet + " /health/db":                 true,
	http.MethodGet + " /metrics":                   true,
	http.MethodPost + " /api/v1/auth/login":        true,
	http.MethodPost + " /api/v1/appointments":      true,
	http.MethodGet + " /api/v1/appointments/slots": true,
	http.MethodGet + " /api/v1/services/public":    true,
}

// AuthSkipper returns true for requests that should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return IsPublicRoute(c.Request().Method, c.Path())
}

// IsPublicRoute reports whether method+path is a public route.
func IsPublicRoute(method, path string) bool {
	return publicRoutes[method+" "+path]
}
