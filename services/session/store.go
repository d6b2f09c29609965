package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/clipstream/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store persists the set of currently-valid refresh credentials per
// user. A refresh token that is well-signed but absent from the store
// is invalid for refresh; that membership rule is what makes refresh
// tokens revocable and single-use.
type Store struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewStore(db *gorm.DB, logger *logging.Service) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

func (s *Store) Add(userID uint, rawToken, device, ipAddress string, expiresAt time.Time) error {
	record := RefreshSession{
		UserID:    userID,
		TokenHash: hashToken(rawToken),
		Device:    device,
		IPAddress: ipAddress,
		CreatedAt: time.Now(),
		LastUsed:  time.Now(),
		ExpiresAt: expiresAt,
	}

	if err := s.db.Create(&record).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("failed to store refresh session",
				zap.Uint("user_id", userID),
				zap.Error(err))
		}
		return fmt.Errorf("failed to store refresh session: %w", err)
	}

	return nil
}

// Remove deletes the session holding rawToken and reports whether a
// row was actually deleted. The delete is the atomic commit point for
// rotation: of two concurrent refreshes presenting the same token,
// exactly one observes removed == true.
func (s *Store) Remove(userID uint, rawToken string) (bool, error) {
	result := s.db.Where("user_id = ? AND token_hash = ?", userID, hashToken(rawToken)).
		Delete(&RefreshSession{})

	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to remove refresh session",
				zap.Uint("user_id", userID),
				zap.Error(result.Error))
		}
		return false, fmt.Errorf("failed to remove refresh session: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

func (s *Store) Has(userID uint, rawToken string) (bool, error) {
	var record RefreshSession
	err := s.db.Where("user_id = ? AND token_hash = ?", userID, hashToken(rawToken)).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("database error: %w", err)
	}

	return true, nil
}

func (s *Store) Clear(userID uint) (int64, error) {
	result := s.db.Where("user_id = ?", userID).Delete(&RefreshSession{})
	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to clear refresh sessions",
				zap.Uint("user_id", userID),
				zap.Error(result.Error))
		}
		return 0, fmt.Errorf("failed to clear refresh sessions: %w", result.Error)
	}

	if s.logger != nil {
		s.logger.Info("cleared refresh sessions",
			zap.Uint("user_id", userID),
			zap.Int64("count", result.RowsAffected))
	}

	return result.RowsAffected, nil
}

func (s *Store) ListByUser(userID uint) ([]RefreshSession, error) {
	var sessions []RefreshSession
	err := s.db.Where("user_id = ? AND expires_at > ?", userID, time.Now()).
		Order("last_used DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return sessions, nil
}

func (s *Store) TouchLastUsed(rawToken string) error {
	return s.db.Model(&RefreshSession{}).
		Where("token_hash = ?", hashToken(rawToken)).
		Update("last_used", time.Now()).Error
}

func (s *Store) CleanupExpired() (int64, error) {
	result := s.db.Where("expires_at < ?", time.Now()).Delete(&RefreshSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cleanup expired sessions: %w", result.Error)
	}

	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Info("cleaned up expired refresh sessions",
			zap.Int64("count", result.RowsAffected))
	}

	return result.RowsAffected, nil
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
