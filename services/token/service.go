package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tech-arch1tect/clipstream/config"
	"github.com/tech-arch1tect/clipstream/services/logging"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrWrongKind        = errors.New("token presented for wrong kind")
)

// Kind selects which signing secret and expiry a token is issued and
// verified with. Access and refresh secrets are distinct so a leaked
// access secret cannot forge refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

type Claims struct {
	UserID uint   `json:"user_id"`
	Kind   string `json:"kind"`
	jwt.RegisteredClaims
}

type Service struct {
	config *config.Config
	logger *logging.Service
}

func NewService(cfg *config.Config, logger *logging.Service) *Service {
	return &Service{
		config: cfg,
		logger: logger,
	}
}

func (s *Service) AccessExpiry() time.Duration {
	return s.config.JWT.AccessExpiry
}

func (s *Service) RefreshExpiry() time.Duration {
	return s.config.JWT.RefreshExpiry
}

func (s *Service) IssueAccessToken(userID uint) (string, error) {
	return s.issue(userID, KindAccess)
}

func (s *Service) IssueRefreshToken(userID uint) (string, error) {
	return s.issue(userID, KindRefresh)
}

func (s *Service) issue(userID uint, kind Kind) (string, error) {
	now := time.Now()
	jti := uuid.New().String()
	claims := Claims{
		UserID: userID,
		Kind:   string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.config.JWT.Issuer,
			Subject:   fmt.Sprintf("%d", userID),
			Audience:  []string{s.config.JWT.Issuer},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry(kind))),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret(kind))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to sign token",
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	return tokenString, nil
}

func (s *Service) Parse(tokenString string, kind Kind) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() == "none" {
			return nil, errors.New("'none' algorithm is not allowed")
		}

		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected algorithm: expected HS256, got %s", token.Method.Alg())
		}

		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid algorithm family: %v", token.Header["alg"])
		}

		return s.secret(kind), nil
	})

	if err != nil {
		if s.logger != nil {
			s.logger.Warn("token validation failed",
				zap.String("kind", string(kind)),
				zap.Error(err))
		}

		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Kind != string(kind) {
		if s.logger != nil {
			s.logger.Warn("token kind mismatch",
				zap.String("expected", string(kind)),
				zap.String("got", claims.Kind))
		}
		return nil, ErrWrongKind
	}

	return claims, nil
}

func (s *Service) secret(kind Kind) []byte {
	if kind == KindRefresh {
		return []byte(s.config.JWT.RefreshSecret)
	}
	return []byte(s.config.JWT.AccessSecret)
}

func (s *Service) expiry(kind Kind) time.Duration {
	if kind == KindRefresh {
		return s.config.JWT.RefreshExpiry
	}
	return s.config.JWT.AccessExpiry
}
