package middleware

import (
	"net/http"
	"strings"

	"club-ticketing/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const ownerContextKey = "cart_owner"

// OwnerMiddleware resolves the acting cart owner: a JWT bearer token
// yields a user identity, the X-Session-Id header an anonymous session.
// Exactly one must be present.
func OwnerMiddleware(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			sessionID := c.Request().Header.Get("X-Session-Id")

			if strings.HasPrefix(auth, "Bearer ") {
				raw := strings.TrimPrefix(auth, "Bearer ")
				token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
					if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, echo.NewHTTPError(http.StatusUnauthorized, "unexpected signing method")
					}
					return []byte(jwtSecret), nil
				})
				if err != nil || !token.Valid {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
				}
				sub, err := token.Claims.GetSubject()
				if err != nil || sub == "" {
					return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
				}
				c.Set(ownerContextKey, model.UserOwner(sub))
				return next(c)
			}

			if sessionID != "" {
				c.Set(ownerContextKey, model.SessionOwner(sessionID))
				return next(c)
			}

			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token or X-Session-Id header")
		}
	}
}

// OwnerFromContext returns the owner resolved by OwnerMiddleware.
func OwnerFromContext(c echo.Context) (model.Owner, bool) {
	owner, ok := c.Get(ownerContextKey).(model.Owner)
	return owner, ok
}
