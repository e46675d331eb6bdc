package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated staff member behind a request.
type Identity struct {
	UserID    string
	Email     string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity placed on ctx by JWTMiddleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.UserID
}

func RoleFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Role
}

type JWTConfig struct {
	Issuer  *Issuer
	Revoker Revoker
	// Skipper lets public routes through without a token.
	Skipper func(c echo.Context) bool
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			tokenStr, ok := BearerToken(authHeader)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims, err := cfg.Issuer.Parse(tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			if cfg.Revoker != nil {
				revoked, err := cfg.Revoker.IsRevoked(c.Request().Context(), claims.ID)
				if err != nil {
					log.Ctx(c.Request().Context()).Error().Err(err).Msg("revocation lookup failed")
					return echo.NewHTTPError(http.StatusInternalServerError, "session check failed")
				}
				if revoked {
					return echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
				}
				if claims.IssuedAt != nil {
					cutoff, err := cfg.Revoker.UserRevokedAt(c.Request().Context(), claims.Subject)
					if err != nil {
						log.Ctx(c.Request().Context()).Error().Err(err).Msg("revocation lookup failed")
						return echo.NewHTTPError(http.StatusInternalServerError, "session check failed")
					}
					if RevokedByCutoff(claims.IssuedAt.Time, cutoff) {
						return echo.NewHTTPError(http.StatusUnauthorized, "session has ended")
					}
				}
			}

			id := Identity{
				UserID:  claims.Subject,
				Email:   claims.Email,
				Role:    claims.Role,
				TokenID: claims.ID,
			}
			if claims.ExpiresAt != nil {
				id.ExpiresAt = claims.ExpiresAt.Time
			}

			c.Set("user_id", id.UserID)
			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))

			return next(c)
		}
	}
}
