package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/clipstream/apierr"
	"github.com/tech-arch1tect/clipstream/middleware/auth"
	"github.com/tech-arch1tect/clipstream/services/logging"
	"github.com/tech-arch1tect/clipstream/services/session"
	"github.com/tech-arch1tect/clipstream/services/user"
)

type AuthHandler struct {
	sessions *session.Service
	users    *user.Service
	logger   *logging.Service
}

func NewAuthHandler(sessions *session.Service, users *user.Service, logger *logging.Service) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		users:    users,
		logger:   logger,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func clientInfo(c echo.Context) session.ClientInfo {
	return session.ClientInfo{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return apierr.MissingFields("Invalid request body")
	}

	if req.Password == "" {
		return apierr.MissingFields("Password is required")
	}
	if req.Username == "" && req.Email == "" {
		return apierr.MissingFields("Please provide either email or username to login")
	}

	u, pair, err := h.sessions.Login(req.Username, req.Email, req.Password, clientInfo(c))
	if err != nil {
		return err
	}

	setRefreshCookie(c, pair.RefreshToken, pair.RefreshExpiresAt)

	return respond(c, http.StatusOK, "User logged in successfully", map[string]any{
		"user":        u,
		"accessToken": pair.AccessToken,
	})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil && c.Request().ContentLength > 0 {
		return apierr.MissingFields("Invalid request body")
	}

	refreshToken := refreshTokenFrom(c, req.RefreshToken)
	if refreshToken == "" {
		return apierr.Unauthorized("Unauthorized request")
	}

	pair, err := h.sessions.Refresh(refreshToken, clientInfo(c))
	if err != nil {
		return err
	}

	setRefreshCookie(c, pair.RefreshToken, pair.RefreshExpiresAt)

	return respond(c, http.StatusOK, "Access token refreshed", map[string]any{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil && c.Request().ContentLength > 0 {
		return apierr.MissingFields("Invalid request body")
	}

	refreshToken := refreshTokenFrom(c, req.RefreshToken)
	if refreshToken != "" {
		if err := h.sessions.Logout(refreshToken); err != nil {
			return err
		}
	}

	clearRefreshCookie(c)

	return respond(c, http.StatusOK, "User logged out successfully", nil)
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apierr.MissingFields("Invalid request body")
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		return apierr.MissingFields("Current password and new password are required")
	}

	userID := auth.GetUserID(c)
	if err := h.users.ChangePassword(userID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}

	// Every device's refresh token dies with the old password; access
	// tokens already issued expire on their own short schedule.
	if err := h.sessions.RevokeAll(userID); err != nil {
		return err
	}

	clearRefreshCookie(c)

	return respond(c, http.StatusOK, "Password changed successfully. Please login again.", nil)
}
