// Package middleware wires authentication onto the HTTP layer. Handlers read
// the authenticated identity from the "userID" and "userRole" context keys
// and never touch tokens directly.
package middleware

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"ordering-and-delivery/internal/models"
)

// Claims is the JWT payload issued by the identity provider.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWT returns the token-validation middleware plus a follow-up that copies
// the subject and role claims into the echo context.
func JWT(secret string) (echo.MiddlewareFunc, echo.MiddlewareFunc) {
	verify := echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(secret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(Claims)
		},
	})

	extract := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "Missing or invalid token"})
			}
			claims, ok := token.Claims.(*Claims)
			if !ok || claims.Subject == "" {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "Invalid token claims"})
			}
			if !models.Role(claims.Role).Valid() {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "Unknown role"})
			}
			c.Set("userID", claims.Subject)
			c.Set("userRole", claims.Role)
			return next(c)
		}
	}
	return verify, extract
}

// RequireRole gates a route group to the listed roles.
func RequireRole(roles ...models.Role) echo.MiddlewareFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get("userRole").(string)
			if !ok {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "Missing or invalid token"})
			}
			if _, ok := allowed[models.Role(role)]; !ok {
				return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "Insufficient permissions"})
			}
			return next(c)
		}
	}
}
