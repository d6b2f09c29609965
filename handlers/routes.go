package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/clipstream/middleware/auth"
	"github.com/tech-arch1tect/clipstream/services/token"
)

func RegisterRoutes(e *echo.Echo, authHandler *AuthHandler, userHandler *UserHandler, tokens *token.Service) {
	e.GET("/api/v1/healthz", func(c echo.Context) error {
		return respond(c, http.StatusOK, "ok", nil)
	})

	users := e.Group("/api/v1/users", TempFileCleanup())

	users.POST("/register", userHandler.Register)
	users.POST("/login", authHandler.Login)
	users.POST("/refresh-token", authHandler.Refresh)

	requireAuth := auth.RequireAccessToken(tokens)
	users.POST("/logout", authHandler.Logout, requireAuth)
	users.POST("/change-password", authHandler.ChangePassword, requireAuth)
	users.GET("/current-user", userHandler.CurrentUser, requireAuth)
	users.PATCH("/profile", userHandler.UpdateProfile, requireAuth)
	users.PATCH("/avatar", userHandler.UpdateAvatar, requireAuth)
	users.PATCH("/cover", userHandler.UpdateCover, requireAuth)
}
