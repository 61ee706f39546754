// Package auth authenticates API callers with HS256 bearer tokens and
// exposes the verified actor to handlers and the audit trail. With no
// secret configured the middleware passes everything through with a
// fixed development actor.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	actorKey = "actor"
	// DevActor is assigned when authentication is disabled.
	DevActor = "dev"
)

// Claims are the token claims the engine cares about.
type Claims struct {
	Actor string `json:"actor"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Middleware verifies the Authorization bearer token and stores the
// actor in the request context. An empty secret disables verification.
func Middleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				c.Set(actorKey, DevActor)
				return next(c)
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			claims := &Claims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !parsed.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			actor := claims.Actor
			if actor == "" {
				actor = claims.Subject
			}
			if actor == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token carries no actor")
			}
			c.Set(actorKey, actor)
			return next(c)
		}
	}
}

// ActorFromContext returns the authenticated actor, or "" when none.
func ActorFromContext(c echo.Context) string {
	actor, _ := c.Get(actorKey).(string)
	return actor
}
