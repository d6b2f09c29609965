package auth

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/clipstream/apierr"
	"github.com/tech-arch1tect/clipstream/services/token"
)

const (
	UserIDKey = "_auth_user_id"
	ClaimsKey = "_auth_claims"
)

// RequireAccessToken validates the bearer access token and stores the
// authenticated user id in the request context.
func RequireAccessToken(tokens *token.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return apierr.Unauthorized("Authorization header required")
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				return apierr.Unauthorized("Invalid authorization header format")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == "" {
				return apierr.Unauthorized("Access token required")
			}

			claims, err := tokens.Parse(tokenString, token.KindAccess)
			if err != nil {
				switch {
				case errors.Is(err, token.ErrExpiredToken):
					return apierr.New(401, apierr.CodeTokenExpired, "Token expired")
				default:
					return apierr.New(401, apierr.CodeInvalidToken, "Invalid token")
				}
			}

			c.Set(UserIDKey, claims.UserID)
			c.Set(ClaimsKey, claims)

			return next(c)
		}
	}
}

func GetUserID(c echo.Context) uint {
	if userID, ok := c.Get(UserIDKey).(uint); ok {
		return userID
	}
	return 0
}

func GetClaims(c echo.Context) *token.Claims {
	if claims, ok := c.Get(ClaimsKey).(*token.Claims); ok {
		return claims
	}
	return nil
}
