package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/clipstream/apierr"
	"github.com/tech-arch1tect/clipstream/config"
	"github.com/tech-arch1tect/clipstream/middleware/auth"
	"github.com/tech-arch1tect/clipstream/services/logging"
	"github.com/tech-arch1tect/clipstream/services/storage"
	"github.com/tech-arch1tect/clipstream/services/user"
	"go.uber.org/zap"
)

type UserHandler struct {
	cfg    *config.Config
	users  *user.Service
	store  storage.Storage
	logger *logging.Service
}

func NewUserHandler(cfg *config.Config, users *user.Service, store storage.Storage, logger *logging.Service) *UserHandler {
	return &UserHandler{
		cfg:    cfg,
		users:  users,
		store:  store,
		logger: logger,
	}
}

func (h *UserHandler) Register(c echo.Context) error {
	fullName := c.FormValue("fullName")
	username := c.FormValue("username")
	email := c.FormValue("email")
	password := c.FormValue("password")

	if fullName == "" || username == "" || email == "" || password == "" {
		return apierr.MissingFields("All fields are required")
	}

	avatarPath, err := h.acceptUpload(c, "avatar")
	if err != nil {
		return err
	}
	if avatarPath == "" {
		return apierr.MissingFields("Avatar image is required")
	}

	coverPath, err := h.acceptUpload(c, "coverImage")
	if err != nil {
		return err
	}

	avatarURL, err := h.store.Upload(c.Request().Context(), avatarPath)
	if err != nil {
		return err
	}

	coverURL := ""
	if coverPath != "" {
		coverURL, err = h.store.Upload(c.Request().Context(), coverPath)
		if err != nil {
			return err
		}
	}

	newUser, err := h.users.Register(user.RegisterInput{
		FullName:  fullName,
		Username:  username,
		Email:     email,
		Password:  password,
		AvatarURL: avatarURL,
		CoverURL:  coverURL,
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusCreated, "User registered successfully", newUser)
}

func (h *UserHandler) CurrentUser(c echo.Context) error {
	u, err := h.users.GetByID(auth.GetUserID(c))
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "User profile fetched successfully", u)
}

type profileRequest struct {
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return apierr.MissingFields("Invalid request body")
	}

	u, err := h.users.UpdateProfile(auth.GetUserID(c), user.ProfileUpdate{
		FullName: req.FullName,
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "Profile updated successfully", u)
}

func (h *UserHandler) UpdateAvatar(c echo.Context) error {
	return h.updateImage(c, "avatar", "Avatar updated successfully",
		func(u *user.User) string { return u.AvatarURL },
		h.users.UpdateAvatarURL)
}

func (h *UserHandler) UpdateCover(c echo.Context) error {
	return h.updateImage(c, "coverImage", "Cover image updated successfully",
		func(u *user.User) string { return u.CoverURL },
		h.users.UpdateCoverURL)
}

func (h *UserHandler) updateImage(c echo.Context, field, message string, oldURL func(*user.User) string, apply func(uint, string) (*user.User, error)) error {
	userID := auth.GetUserID(c)

	localPath, err := h.acceptUpload(c, field)
	if err != nil {
		return err
	}
	if localPath == "" {
		return apierr.MissingFields(fmt.Sprintf("%s file is required", field))
	}

	current, err := h.users.GetByID(userID)
	if err != nil {
		return err
	}
	previous := oldURL(current)

	url, err := h.store.Upload(c.Request().Context(), localPath)
	if err != nil {
		return err
	}

	updated, err := apply(userID, url)
	if err != nil {
		return err
	}

	// The replaced asset is deleted on a best-effort basis; the update
	// itself already succeeded.
	if previous != "" {
		if err := h.store.Delete(c.Request().Context(), previous); err != nil && h.logger != nil {
			h.logger.Warn("failed to delete replaced image",
				zap.String("url", previous),
				zap.Error(err))
		}
	}

	return respond(c, http.StatusOK, message, updated)
}

// acceptUpload copies a multipart file into the temp dir and tracks it
// for release. Returns "" when the field was not supplied.
func (h *UserHandler) acceptUpload(c echo.Context, field string) (string, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return "", nil
	}

	if err := os.MkdirAll(h.cfg.Upload.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrUploadFailed, err)
	}

	localPath := filepath.Join(h.cfg.Upload.TempDir, uuid.New().String()+filepath.Ext(fileHeader.Filename))
	if err := saveMultipartFile(fileHeader, localPath); err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrUploadFailed, err)
	}

	apierr.TrackTempFile(c, localPath)

	return localPath, nil
}

func saveMultipartFile(fileHeader *multipart.FileHeader, dst string) error {
	src, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}
