package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/clipstream/config"
	"github.com/tech-arch1tect/clipstream/services/session"
	"github.com/tech-arch1tect/clipstream/services/storage"
	"github.com/tech-arch1tect/clipstream/services/token"
	"github.com/tech-arch1tect/clipstream/services/user"
	"github.com/tech-arch1tect/clipstream/testutils"
)

type testEnv struct {
	server   *httptest.Server
	cfg      *config.Config
	users    *user.Service
	sessions *session.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testutils.GetTestConfig()
	cfg.Upload.Dir = t.TempDir()
	cfg.Upload.TempDir = t.TempDir()
	cfg.Upload.BaseURL = "http://localhost/uploads"

	db := testutils.SetupTestDB(t, &user.User{}, &session.RefreshSession{})
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	tokens := token.NewService(cfg, nil)
	users := user.NewService(db, cfg, nil)
	store := session.NewStore(db, nil)
	sessions := session.NewService(tokens, users, store, nil)

	disk, err := storage.NewDisk(cfg, nil)
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(cfg, nil)
	RegisterRoutes(e, NewAuthHandler(sessions, users, nil), NewUserHandler(cfg, users, disk, nil), tokens)

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	return &testEnv{server: server, cfg: cfg, users: users, sessions: sessions}
}

type envelope struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func (env *testEnv) postJSON(t *testing.T, path string, body any, modify ...func(*http.Request)) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(http.MethodPost, env.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, m := range modify {
		m(req)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func withBearer(accessToken string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
}

func withRefreshCookie(value string) func(*http.Request) {
	return func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: "refreshToken", Value: value})
	}
}

func (env *testEnv) register(t *testing.T, username, email string) {
	t.Helper()

	resp := env.postMultipart(t, map[string]string{
		"fullName": "Test User",
		"username": username,
		"email":    email,
		"password": "correct horse battery",
	}, map[string]string{"avatar": "avatar.png"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func (env *testEnv) postMultipart(t *testing.T, fields map[string]string, files map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	for field, filename := range files {
		part, err := writer.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("fake image bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/users/register", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

type loginResult struct {
	accessToken  string
	refreshToken string
	resp         *http.Response
}

func (env *testEnv) login(t *testing.T, email, password string) loginResult {
	t.Helper()

	resp := env.postJSON(t, "/api/v1/users/login", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var refreshToken string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "refreshToken" {
			refreshToken = cookie.Value
		}
	}

	env2 := decodeEnvelope(t, resp)
	var data struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(env2.Data, &data))
	require.NotEmpty(t, data.AccessToken)
	require.NotEmpty(t, refreshToken)

	return loginResult{accessToken: data.AccessToken, refreshToken: refreshToken, resp: resp}
}

func TestRegisterAndLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postMultipart(t, map[string]string{
		"fullName": "Ada Lovelace",
		"username": "Ada",
		"email":    "Ada@Example.com",
		"password": "correct horse battery",
	}, map[string]string{"avatar": "ada.png", "coverImage": "cover.jpg"})
	body := decodeEnvelope(t, resp)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, body.Success)
	assert.Equal(t, "User registered successfully", body.Message)

	var created user.User
	require.NoError(t, json.Unmarshal(body.Data, &created))
	assert.Equal(t, "ada", created.Username)
	assert.Equal(t, "ada@example.com", created.Email)
	assert.True(t, strings.HasPrefix(created.AvatarURL, env.cfg.Upload.BaseURL))
	assert.True(t, strings.HasPrefix(created.CoverURL, env.cfg.Upload.BaseURL))
	assert.Empty(t, created.PasswordHash)

	// Accepted uploads are moved into storage and the temp copies
	// released by the time the response is written.
	entries, err := os.ReadDir(env.cfg.Upload.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	login := env.login(t, "ada@example.com", "correct horse battery")

	var sessionCookie *http.Cookie
	for _, cookie := range login.resp.Cookies() {
		if cookie.Name == "refreshToken" {
			sessionCookie = cookie
		}
	}
	require.NotNil(t, sessionCookie)
	assert.True(t, sessionCookie.HttpOnly)
	assert.True(t, sessionCookie.Secure)
	assert.Equal(t, http.SameSiteNoneMode, sessionCookie.SameSite)
	assert.Equal(t, "/", sessionCookie.Path)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/users/current-user", nil)
	require.NoError(t, err)
	withBearer(login.accessToken)(req)
	profileResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	profile := decodeEnvelope(t, profileResp)
	require.Equal(t, http.StatusOK, profileResp.StatusCode)

	var me user.User
	require.NoError(t, json.Unmarshal(profile.Data, &me))
	assert.Equal(t, "ada", me.Username)
}

func TestRegister_MissingAvatar(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postMultipart(t, map[string]string{
		"fullName": "No Avatar",
		"username": "noavatar",
		"email":    "noavatar@example.com",
		"password": "correct horse battery",
	}, nil)
	body := decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, body.Success)
	assert.Equal(t, "Avatar image is required", body.Message)
}

func TestRegister_DuplicateReleasesTempFiles(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "dupe", "dupe@example.com")

	resp := env.postMultipart(t, map[string]string{
		"fullName": "Dupe Again",
		"username": "dupe",
		"email":    "other@example.com",
		"password": "correct horse battery",
	}, map[string]string{"avatar": "avatar.png"})
	body := decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.False(t, body.Success)
	assert.Equal(t, "User with this username already exists", body.Message)

	entries, err := os.ReadDir(env.cfg.Upload.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp uploads must be released on failure")
}

func TestLogin_InvalidPassword(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com")

	resp := env.postJSON(t, "/api/v1/users/login", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	body := decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", body.Message)
}

func TestLogin_MissingIdentifier(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/users/login", map[string]string{"password": "whatever"})
	body := decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Please provide either email or username to login", body.Message)
}

func TestRefresh_RotatesAndDetectsReuse(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob", "bob@example.com")
	login := env.login(t, "bob@example.com", "correct horse battery")

	resp := env.postJSON(t, "/api/v1/users/refresh-token", nil, withRefreshCookie(login.refreshToken))
	body := decodeEnvelope(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Access token refreshed", body.Message)

	var rotated struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &rotated))
	require.NotEmpty(t, rotated.AccessToken)
	require.NotEmpty(t, rotated.RefreshToken)
	assert.NotEqual(t, login.refreshToken, rotated.RefreshToken)

	// The consumed token is dead: replaying it is reuse.
	replay := env.postJSON(t, "/api/v1/users/refresh-token", nil, withRefreshCookie(login.refreshToken))
	replayBody := decodeEnvelope(t, replay)
	assert.Equal(t, http.StatusUnauthorized, replay.StatusCode)
	assert.Equal(t, "Refresh token is expired or used", replayBody.Message)

	// The rotated token still works.
	next := env.postJSON(t, "/api/v1/users/refresh-token", nil, withRefreshCookie(rotated.RefreshToken))
	decodeEnvelope(t, next)
	assert.Equal(t, http.StatusOK, next.StatusCode)
}

func TestRefresh_CookieWinsOverBody(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "carol", "carol@example.com")
	login := env.login(t, "carol@example.com", "correct horse battery")

	resp := env.postJSON(t, "/api/v1/users/refresh-token",
		map[string]string{"refreshToken": "not-a-real-token"},
		withRefreshCookie(login.refreshToken))
	decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRefresh_BodyTokenWhenNoCookie(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "dave", "dave@example.com")
	login := env.login(t, "dave@example.com", "correct horse battery")

	resp := env.postJSON(t, "/api/v1/users/refresh-token", map[string]string{"refreshToken": login.refreshToken})
	decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRefresh_NoToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/users/refresh-token", nil)
	body := decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized request", body.Message)
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "erin", "erin@example.com")
	login := env.login(t, "erin@example.com", "correct horse battery")

	resp := env.postJSON(t, "/api/v1/users/refresh-token", nil, withRefreshCookie(login.accessToken))
	body := decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid token", body.Message)
}

func TestLogout_IsIdempotentAndScoped(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "frank", "frank@example.com")
	deviceA := env.login(t, "frank@example.com", "correct horse battery")
	deviceB := env.login(t, "frank@example.com", "correct horse battery")

	resp := env.postJSON(t, "/api/v1/users/logout", nil,
		withBearer(deviceA.accessToken), withRefreshCookie(deviceA.refreshToken))
	body := decodeEnvelope(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "User logged out successfully", body.Message)

	var cleared *http.Cookie
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "refreshToken" {
			cleared = cookie
		}
	}
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.True(t, cleared.MaxAge < 0 || !cleared.Expires.IsZero())

	// Logging out the same session again is a no-op, not an error.
	again := env.postJSON(t, "/api/v1/users/logout", nil,
		withBearer(deviceA.accessToken), withRefreshCookie(deviceA.refreshToken))
	decodeEnvelope(t, again)
	assert.Equal(t, http.StatusOK, again.StatusCode)

	// The other device's session is untouched.
	refresh := env.postJSON(t, "/api/v1/users/refresh-token", nil, withRefreshCookie(deviceB.refreshToken))
	decodeEnvelope(t, refresh)
	assert.Equal(t, http.StatusOK, refresh.StatusCode)

	// deviceA's refresh token is gone.
	dead := env.postJSON(t, "/api/v1/users/refresh-token", nil, withRefreshCookie(deviceA.refreshToken))
	decodeEnvelope(t, dead)
	assert.Equal(t, http.StatusUnauthorized, dead.StatusCode)
}

func TestLogout_RequiresAccessToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/users/logout", nil)
	decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChangePassword_RevokesAllSessions(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "grace", "grace@example.com")
	deviceA := env.login(t, "grace@example.com", "correct horse battery")
	deviceB := env.login(t, "grace@example.com", "correct horse battery")

	resp := env.postJSON(t, "/api/v1/users/change-password", map[string]string{
		"currentPassword": "correct horse battery",
		"newPassword":     "even better passphrase",
	}, withBearer(deviceA.accessToken))
	body := decodeEnvelope(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Password changed successfully. Please login again.", body.Message)

	// Every refresh token is revoked, the other device's included.
	for _, refreshToken := range []string{deviceA.refreshToken, deviceB.refreshToken} {
		dead := env.postJSON(t, "/api/v1/users/refresh-token", nil, withRefreshCookie(refreshToken))
		decodeEnvelope(t, dead)
		assert.Equal(t, http.StatusUnauthorized, dead.StatusCode)
	}

	// Old password no longer authenticates; the new one does.
	old := env.postJSON(t, "/api/v1/users/login", map[string]string{
		"email":    "grace@example.com",
		"password": "correct horse battery",
	})
	decodeEnvelope(t, old)
	assert.Equal(t, http.StatusUnauthorized, old.StatusCode)

	env.login(t, "grace@example.com", "even better passphrase")
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "henry", "henry@example.com")
	login := env.login(t, "henry@example.com", "correct horse battery")

	resp := env.postJSON(t, "/api/v1/users/change-password", map[string]string{
		"currentPassword": "not it",
		"newPassword":     "even better passphrase",
	}, withBearer(login.accessToken))
	body := decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", body.Message)
}

func TestProtectedRoute_RejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		modify []func(*http.Request)
	}{
		{"no header", nil},
		{"malformed header", []func(*http.Request){func(req *http.Request) {
			req.Header.Set("Authorization", "Token abc")
		}}},
		{"garbage token", []func(*http.Request){withBearer("garbage")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/users/current-user", nil)
			require.NoError(t, err)
			for _, m := range tc.modify {
				m(req)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			body := decodeEnvelope(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.False(t, body.Success)
		})
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/v1/healthz")
	require.NoError(t, err)
	body := decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body.Message)
}
