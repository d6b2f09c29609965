package client

import "sync"

// TokenStore holds the credentials a client process has been issued.
// Each process owns an independent store; there is no cross-process
// synchronisation.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(accessToken, refreshToken string)
	Clear()
}

type MemoryTokenStore struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *MemoryTokenStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

func (s *MemoryTokenStore) SetTokens(accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = accessToken
	s.refreshToken = refreshToken
}

func (s *MemoryTokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.refreshToken = ""
}
