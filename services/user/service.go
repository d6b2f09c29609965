package user

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tech-arch1tect/clipstream/config"
	"github.com/tech-arch1tect/clipstream/services/logging"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUserNotFound          = errors.New("user not found")
	ErrDuplicateUsername     = errors.New("username already taken")
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrMissingIdentifier     = errors.New("username or email is required")
	ErrPasswordHashingFailed = errors.New("failed to hash password")
	ErrPasswordTooShort      = errors.New("password is too short")
)

type RegisterInput struct {
	FullName  string
	Username  string
	Email     string
	Password  string
	AvatarURL string
	CoverURL  string
}

type ProfileUpdate struct {
	FullName string
	Username string
	Email    string
}

type Service struct {
	db     *gorm.DB
	config *config.Config
	logger *logging.Service
}

func NewService(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Service {
	if cfg.Auth.BcryptCost < bcrypt.MinCost || cfg.Auth.BcryptCost > bcrypt.MaxCost {
		cfg.Auth.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

func (s *Service) Register(input RegisterInput) (*User, error) {
	if len(input.Password) < s.config.Auth.MinLength {
		return nil, fmt.Errorf("%w: minimum %d characters", ErrPasswordTooShort, s.config.Auth.MinLength)
	}

	username := strings.ToLower(strings.TrimSpace(input.Username))
	email := strings.ToLower(strings.TrimSpace(input.Email))

	var existing User
	err := s.db.Where("username = ? OR email = ?", username, email).First(&existing).Error
	if err == nil {
		if existing.Email == email {
			return nil, ErrDuplicateEmail
		}
		return nil, ErrDuplicateUsername
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	hash, err := s.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	newUser := User{
		FullName:     input.FullName,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		AvatarURL:    input.AvatarURL,
		CoverURL:     input.CoverURL,
	}

	if err := s.db.Create(&newUser).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("failed to create user", zap.Error(err))
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("user registered",
			zap.Uint("user_id", newUser.ID),
			zap.String("username", newUser.Username))
	}

	return &newUser, nil
}

// Authenticate resolves the identifier against email first, then
// username. Both fields absent is a caller error; if both are supplied
// the email wins and the username is ignored.
func (s *Service) Authenticate(username, email, password string) (*User, error) {
	identifier := strings.ToLower(strings.TrimSpace(email))
	column := "email"
	if identifier == "" {
		identifier = strings.ToLower(strings.TrimSpace(username))
		column = "username"
	}
	if identifier == "" {
		return nil, ErrMissingIdentifier
	}

	var u User
	err := s.db.Where(column+" = ?", identifier).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if s.logger != nil {
				s.logger.Warn("login failed - unknown identifier")
			}
			// Same error as a bad password so probes cannot tell
			// which part was wrong.
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := s.VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, err
	}

	return &u, nil
}

func (s *Service) GetByID(userID uint) (*User, error) {
	var u User
	err := s.db.First(&u, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &u, nil
}

func (s *Service) ChangePassword(userID uint, currentPassword, newPassword string) error {
	if len(newPassword) < s.config.Auth.MinLength {
		return fmt.Errorf("%w: minimum %d characters", ErrPasswordTooShort, s.config.Auth.MinLength)
	}

	u, err := s.GetByID(userID)
	if err != nil {
		return err
	}

	if err := s.VerifyPassword(u.PasswordHash, currentPassword); err != nil {
		return err
	}

	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.db.Model(&User{}).Where("id = ?", userID).Update("password_hash", hash).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("failed to update password hash",
				zap.Uint("user_id", userID),
				zap.Error(err))
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("password changed", zap.Uint("user_id", userID))
	}

	return nil
}

func (s *Service) UpdateProfile(userID uint, update ProfileUpdate) (*User, error) {
	u, err := s.GetByID(userID)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}

	if update.Username != "" {
		username := strings.ToLower(strings.TrimSpace(update.Username))
		if username != u.Username {
			var existing User
			if err := s.db.Where("username = ?", username).First(&existing).Error; err == nil {
				return nil, ErrDuplicateUsername
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("database error: %w", err)
			}
			changes["username"] = username
		}
	}

	if update.Email != "" {
		email := strings.ToLower(strings.TrimSpace(update.Email))
		if email != u.Email {
			var existing User
			if err := s.db.Where("email = ?", email).First(&existing).Error; err == nil {
				return nil, ErrDuplicateEmail
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("database error: %w", err)
			}
			changes["email"] = email
		}
	}

	if update.FullName != "" {
		changes["full_name"] = update.FullName
	}

	if len(changes) > 0 {
		if err := s.db.Model(&User{}).Where("id = ?", userID).Updates(changes).Error; err != nil {
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
	}

	return s.GetByID(userID)
}

func (s *Service) UpdateAvatarURL(userID uint, url string) (*User, error) {
	return s.updateImageURL(userID, "avatar_url", url)
}

func (s *Service) UpdateCoverURL(userID uint, url string) (*User, error) {
	return s.updateImageURL(userID, "cover_url", url)
}

func (s *Service) updateImageURL(userID uint, column, url string) (*User, error) {
	if _, err := s.GetByID(userID); err != nil {
		return nil, err
	}

	if err := s.db.Model(&User{}).Where("id = ?", userID).Update(column, url).Error; err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", column, err)
	}

	return s.GetByID(userID)
}

func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.Auth.BcryptCost)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("password hashing failed", zap.Error(err))
		}
		return "", ErrPasswordHashingFailed
	}
	return string(hash), nil
}

func (s *Service) VerifyPassword(hashedPassword, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		if s.logger != nil {
			s.logger.Warn("password verification failed")
		}
		return ErrInvalidCredentials
	}
	return nil
}
