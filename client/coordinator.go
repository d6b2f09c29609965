package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrSessionExpired is what callers see when a coordinated refresh
// fails: the stored credentials are gone and a fresh login is the only
// way forward.
var ErrSessionExpired = errors.New("session expired, please login again")

type refreshResult struct {
	accessToken string
	err         error
}

// Coordinator serialises re-authentication. Many in-flight requests
// can observe an expired access token near-simultaneously; only the
// first triggers the refresh exchange, the rest wait for its outcome.
// Refresh tokens are single-use, so letting every caller refresh
// independently would have all but one of them racing into
// reuse-detection failures.
type Coordinator struct {
	baseURL    string
	tokens     TokenStore
	httpClient *http.Client
	timeout    time.Duration

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
}

func NewCoordinator(baseURL string, tokens TokenStore, httpClient *http.Client, timeout time.Duration) *Coordinator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Coordinator{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: httpClient,
		timeout:    timeout,
	}
}

// FreshAccessToken returns an access token minted after the moment of
// the call, either by performing the refresh exchange or by waiting on
// the one already in flight.
func (co *Coordinator) FreshAccessToken(ctx context.Context) (string, error) {
	co.mu.Lock()
	if co.refreshing {
		waiter := make(chan refreshResult, 1)
		co.waiters = append(co.waiters, waiter)
		co.mu.Unlock()

		select {
		case result := <-waiter:
			return result.accessToken, result.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	co.refreshing = true
	co.mu.Unlock()

	accessToken, err := co.performRefresh(ctx)

	co.mu.Lock()
	waiters := co.waiters
	co.waiters = nil
	co.refreshing = false
	co.mu.Unlock()

	result := refreshResult{accessToken: accessToken, err: err}
	for _, waiter := range waiters {
		waiter <- result
	}

	return accessToken, err
}

func (co *Coordinator) performRefresh(ctx context.Context) (string, error) {
	refreshToken := co.tokens.RefreshToken()
	if refreshToken == "" {
		return "", ErrSessionExpired
	}

	if co.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, co.timeout)
		defer cancel()
	}

	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, co.baseURL+"/api/v1/users/refresh-token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := co.httpClient.Do(req)
	if err != nil {
		co.tokens.Clear()
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Whatever the server's reason, the stored refresh token is no
		// longer usable; drop both credentials so the caller is forced
		// back through login.
		co.tokens.Clear()
		return "", ErrSessionExpired
	}

	var envelope struct {
		Data struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		co.tokens.Clear()
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	if envelope.Data.AccessToken == "" {
		co.tokens.Clear()
		return "", ErrSessionExpired
	}

	co.tokens.SetTokens(envelope.Data.AccessToken, envelope.Data.RefreshToken)

	return envelope.Data.AccessToken, nil
}
