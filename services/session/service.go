package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/mileusna/useragent"
	"github.com/tech-arch1tect/clipstream/services/logging"
	"github.com/tech-arch1tect/clipstream/services/token"
	"github.com/tech-arch1tect/clipstream/services/user"
	"go.uber.org/zap"
)

// ErrSessionNotFound means a refresh token was well-signed and
// unexpired yet absent from the session store: it has been rotated,
// logged out, or mass-revoked. Callers must treat it as a possible
// theft signal and force a fresh login rather than retrying.
var ErrSessionNotFound = errors.New("refresh session not found or already rotated")

type Service struct {
	tokens *token.Service
	users  *user.Service
	store  *Store
	logger *logging.Service
}

func NewService(tokens *token.Service, users *user.Service, store *Store, logger *logging.Service) *Service {
	return &Service{
		tokens: tokens,
		users:  users,
		store:  store,
		logger: logger,
	}
}

func (s *Service) Login(username, email, password string, client ClientInfo) (*user.User, *TokenPair, error) {
	u, err := s.users.Authenticate(username, email, password)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.issuePair(u.ID, client)
	if err != nil {
		return nil, nil, err
	}

	if s.logger != nil {
		s.logger.Info("user logged in",
			zap.Uint("user_id", u.ID),
			zap.String("device", deviceLabel(client.UserAgent)))
	}

	return u, pair, nil
}

// Refresh rotates one refresh credential: the presented token is
// consumed and a fresh access/refresh pair takes its place. The store
// delete is the commit point, so of two concurrent refreshes with the
// same token exactly one wins; the loser gets ErrSessionNotFound.
func (s *Service) Refresh(refreshToken string, client ClientInfo) (*TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken, token.KindRefresh)
	if err != nil {
		return nil, err
	}

	removed, err := s.store.Remove(claims.UserID, refreshToken)
	if err != nil {
		return nil, err
	}
	if !removed {
		if s.logger != nil {
			s.logger.Warn("refresh attempted with rotated or revoked token",
				zap.Uint("user_id", claims.UserID))
		}
		return nil, ErrSessionNotFound
	}

	pair, err := s.issuePair(claims.UserID, client)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("refresh token rotated", zap.Uint("user_id", claims.UserID))
	}

	return pair, nil
}

// Logout is idempotent: an already-rotated, expired, or garbage token
// still results in success so clients can always clear their cookies.
func (s *Service) Logout(refreshToken string) error {
	claims, err := s.tokens.Parse(refreshToken, token.KindRefresh)
	if err != nil {
		if s.logger != nil {
			s.logger.Debug("logout with unparseable refresh token", zap.Error(err))
		}
		return nil
	}

	removed, err := s.store.Remove(claims.UserID, refreshToken)
	if err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("user logged out",
			zap.Uint("user_id", claims.UserID),
			zap.Bool("session_removed", removed))
	}

	return nil
}

// RevokeAll clears every session for the user. Access tokens already
// in the wild stay valid until their own short expiry.
func (s *Service) RevokeAll(userID uint) error {
	count, err := s.store.Clear(userID)
	if err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("all sessions revoked",
			zap.Uint("user_id", userID),
			zap.Int64("count", count))
	}

	return nil
}

func (s *Service) Sessions(userID uint) ([]RefreshSession, error) {
	return s.store.ListByUser(userID)
}

func (s *Service) issuePair(userID uint, client ClientInfo) (*TokenPair, error) {
	accessToken, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	refreshToken, err := s.tokens.IssueRefreshToken(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	expiresAt := time.Now().Add(s.tokens.RefreshExpiry())
	if err := s.store.Add(userID, refreshToken, deviceLabel(client.UserAgent), client.IPAddress, expiresAt); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: expiresAt,
	}, nil
}

func deviceLabel(userAgent string) string {
	if userAgent == "" {
		return ""
	}

	ua := useragent.Parse(userAgent)
	if ua.Name == "" {
		return "unknown device"
	}
	if ua.OS == "" {
		return ua.Name
	}
	return ua.Name + " on " + ua.OS
}

func (s *Service) StartCleanupWorker(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := s.store.CleanupExpired(); err != nil && s.logger != nil {
					s.logger.Error("session cleanup worker failed", zap.Error(err))
				}
			case <-stop:
				return
			}
		}
	}()

	if s.logger != nil {
		s.logger.Info("started refresh session cleanup worker",
			zap.Duration("interval", interval))
	}
}
