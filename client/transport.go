package client

import (
	"net/http"
	"strings"
)

const retryMarkerHeader = "X-Clipstream-Retried"

// A 401 from the auth flow itself is a terminal answer, never a
// trigger for coordinated refresh; routing those through the
// coordinator would loop forever.
var authFlowPaths = []string{
	"/api/v1/users/login",
	"/api/v1/users/register",
	"/api/v1/users/refresh-token",
	"/api/v1/users/current-user",
}

// authTransport attaches the stored access token to outgoing requests
// and transparently retries a request exactly once after a
// coordinated refresh when the server answers 401.
type authTransport struct {
	base        http.RoundTripper
	tokens      TokenStore
	coordinator *Coordinator
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	outgoing := req.Clone(req.Context())
	if token := t.tokens.AccessToken(); token != "" && outgoing.Header.Get("Authorization") == "" {
		outgoing.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := base.RoundTrip(outgoing)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || isAuthFlow(req.URL.Path) || req.Header.Get(retryMarkerHeader) != "" {
		return resp, nil
	}

	// Requests with bodies cannot be transparently replayed unless the
	// body is rewindable.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	resp.Body.Close()

	accessToken, err := t.coordinator.FreshAccessToken(req.Context())
	if err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	retry.Header.Set(retryMarkerHeader, "1")
	retry.Header.Set("Authorization", "Bearer "+accessToken)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}

	return base.RoundTrip(retry)
}

func isAuthFlow(path string) bool {
	for _, prefix := range authFlowPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
