package session

import (
	"time"
)

// RefreshSession is one live refresh credential belonging to a user,
// representing one logged-in device. The raw token is never stored;
// only its sha256 hash is persisted.
type RefreshSession struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"not null;index"`
	TokenHash string    `json:"-" gorm:"uniqueIndex;size:64;not null"`
	Device    string    `json:"device" gorm:"size:100"`
	IPAddress string    `json:"ip_address" gorm:"size:45"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
}

func (RefreshSession) TableName() string {
	return "refresh_sessions"
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// ClientInfo describes the device a session was opened from. Both
// fields may be empty; they only feed the session listing.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}
