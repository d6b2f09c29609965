// Package client is the Go SDK for the clipstream API. It owns the
// client half of the credential lifecycle: attaching access tokens,
// and coordinating re-authentication so that any number of concurrent
// calls hitting an expired token results in exactly one refresh
// exchange.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTokenStore(tokens TokenStore) Option {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithRefreshTimeout bounds the coordinated refresh exchange. Without
// it a hung refresh call would hold every waiter until the transport
// gives up on its own.
func WithRefreshTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.refreshTimeout = timeout
	}
}

type Client struct {
	baseURL        string
	tokens         TokenStore
	httpClient     *http.Client
	refreshTimeout time.Duration

	coordinator *Coordinator
	http        *http.Client
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		tokens:         NewMemoryTokenStore(),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		refreshTimeout: 15 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.coordinator = NewCoordinator(c.baseURL, c.tokens, c.httpClient, c.refreshTimeout)

	transport := c.httpClient.Transport
	wrapped := *c.httpClient
	wrapped.Transport = &authTransport{
		base:        transport,
		tokens:      c.tokens,
		coordinator: c.coordinator,
	}
	c.http = &wrapped

	return c
}

func (c *Client) Tokens() TokenStore {
	return c.tokens
}

type User struct {
	ID        uint   `json:"id"`
	FullName  string `json:"full_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	CoverURL  string `json:"cover_url"`
}

type apiEnvelope struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

type RegisterInput struct {
	FullName string
	Username string
	Email    string
	Password string

	// Local paths of the images to upload. Avatar is required by the
	// server; cover is optional.
	AvatarPath string
	CoverPath  string
}

func (c *Client) Register(ctx context.Context, input RegisterInput) (*User, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{
		"fullName": input.FullName,
		"username": input.Username,
		"email":    input.Email,
		"password": input.Password,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, err
		}
	}

	files := map[string]string{"avatar": input.AvatarPath}
	if input.CoverPath != "" {
		files["coverImage"] = input.CoverPath
	}
	for field, path := range files {
		if err := attachFile(writer, field, path); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/users/register", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: envelope.Message}
	}

	var u User
	if err := json.Unmarshal(envelope.Data, &u); err != nil {
		return nil, fmt.Errorf("failed to decode response data: %w", err)
	}
	return &u, nil
}

func attachFile(writer *multipart.Writer, field, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	part, err := writer.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}

type LoginInput struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

func (c *Client) Login(ctx context.Context, input LoginInput) (*User, error) {
	var payload struct {
		User         *User  `json:"user"`
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/users/login", input, &payload); err != nil {
		return nil, err
	}

	c.tokens.SetTokens(payload.AccessToken, payload.RefreshToken)

	return payload.User, nil
}

// Refresh forces a coordinated token refresh. Most callers never need
// it; the transport refreshes transparently on 401.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.coordinator.FreshAccessToken(ctx)
	return err
}

func (c *Client) Logout(ctx context.Context) error {
	body := map[string]string{"refreshToken": c.tokens.RefreshToken()}
	err := c.do(ctx, http.MethodPost, "/api/v1/users/logout", body, nil)
	// Local credentials are cleared regardless; logout is idempotent
	// server-side and the user asked to be signed out.
	c.tokens.Clear()
	return err
}

func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	body := map[string]string{
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/users/change-password", body, nil); err != nil {
		return err
	}

	// Changing the password revoked every session including this one.
	c.tokens.Clear()
	return nil
}

func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/current-user", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Do issues an arbitrary authenticated JSON request, decoding the
// envelope's data into out when non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, method, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Message}
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	return nil
}
