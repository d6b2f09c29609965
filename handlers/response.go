package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/clipstream/apierr"
)

// Envelope is the response shape shared by every endpoint, success or
// failure.
type Envelope struct {
	Success    bool               `json:"success"`
	StatusCode int                `json:"statusCode"`
	Message    string             `json:"message"`
	Data       any                `json:"data"`
	Errors     []apierr.FieldError `json:"errors,omitempty"`
}

func respond(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, Envelope{
		Success:    status < http.StatusBadRequest,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

const refreshCookieName = "refreshToken"

// Client and server may live on different origins, so the refresh
// cookie must be cross-site capable.
func setRefreshCookie(c echo.Context, token string, expiresAt time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

// refreshTokenFrom accepts the refresh token from the cookie or the
// request body; the cookie wins if both are present.
func refreshTokenFrom(c echo.Context, bodyToken string) string {
	if cookie, err := c.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return bodyToken
}
