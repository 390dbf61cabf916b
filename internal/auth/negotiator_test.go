package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ALastoff/LicenseView/internal/auth"
	"github.com/ALastoff/LicenseView/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func newNegotiator(serverURL string, mode auth.Mode, creds auth.Credentials) *auth.Negotiator {
	return auth.NewNegotiator(serverURL, "zerto", mode, creds, http.DefaultTransport, 5*time.Second, testLogger())
}

func writeTokenResponse(w http.ResponseWriter, accessToken, refreshToken string, expiresIn int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    expiresIn,
		"scope":         "openid",
	})
}

func TestNegotiateTriesCandidatesInOrder(t *testing.T) {
	var attempted []string
	legacyCalled := false

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/realms/zerto/protocol/openid-connect/token":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "password", r.FormValue("grant_type"))
			assert.Equal(t, "openid", r.FormValue("scope"))

			clientID := r.FormValue("client_id")
			attempted = append(attempted, clientID)
			if clientID != "c" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeTokenResponse(w, "modern-token", "refresh-token", 3600)
		case "/v1/session/add":
			legacyCalled = true
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	n := newNegotiator(server.URL, auth.ModeAuto, auth.Credentials{
		Username:           "admin",
		Password:           "secret",
		ClientIDCandidates: []string{"a", "b", "c"},
	})

	token, err := n.Negotiate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, attempted)
	assert.False(t, legacyCalled, "legacy must not be attempted after a modern success")
	assert.Equal(t, "modern-token", token.Token)
	assert.Equal(t, auth.KindBearerOIDC, token.Kind)
	assert.Equal(t, auth.ProtocolModern, token.Protocol)
	require.NotNil(t, token.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *token.ExpiresAt, 10*time.Second)
}

func TestNegotiateMissingAccessTokenMovesToNextCandidate(t *testing.T) {
	var attempted []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		attempted = append(attempted, r.FormValue("client_id"))

		if r.FormValue("client_id") == "first" {
			// 200 with no token field counts as a failed attempt.
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"scope":"openid"}`))
			return
		}
		writeTokenResponse(w, "good-token", "", 60)
	}))
	defer server.Close()

	n := newNegotiator(server.URL, auth.ModeModern, auth.Credentials{
		Username:           "admin",
		Password:           "secret",
		ClientIDCandidates: []string{"first", "second"},
	})

	token, err := n.Negotiate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, attempted)
	assert.Equal(t, "good-token", token.Token)
}

func TestNegotiateFallsBackToLegacySession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/realms/zerto/protocol/openid-connect/token":
			w.WriteHeader(http.StatusNotFound)
		case "/v1/session/add":
			username, password, ok := r.BasicAuth()
			require.True(t, ok, "legacy call must carry basic auth")
			assert.Equal(t, "admin", username)
			assert.Equal(t, "secret", password)

			// Session id travels in a header, not the body.
			w.Header().Set("x-zerto-session", "legacy-session-42")
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	n := newNegotiator(server.URL, auth.ModeAuto, auth.Credentials{
		Username:           "admin",
		Password:           "secret",
		ClientIDCandidates: []string{"only"},
	})

	token, err := n.Negotiate(context.Background())
	require.NoError(t, err)

	// Header extraction must be case-insensitive: the server set lowercase.
	assert.Equal(t, "legacy-session-42", token.Token)
	assert.Equal(t, auth.KindLegacySession, token.Kind)
	assert.Equal(t, auth.ProtocolLegacy, token.Protocol)
	assert.Nil(t, token.ExpiresAt, "legacy session lifetime is unknown")
}

func TestNegotiateFailsWhenSessionHeaderAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/session/add" {
			// 200 without the session header is a fallback failure.
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	n := newNegotiator(server.URL, auth.ModeAuto, auth.Credentials{
		Username:           "admin",
		Password:           "secret",
		ClientIDCandidates: []string{"a"},
	})

	_, err := n.Negotiate(context.Background())
	require.Error(t, err)

	var authErr *models.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Error(t, authErr.ModernCause)
	require.Error(t, authErr.LegacyCause)
	assert.Contains(t, authErr.LegacyCause.Error(), "header absent")
}

func TestNegotiateBothProtocolsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := newNegotiator(server.URL, auth.ModeAuto, auth.Credentials{
		Username:           "admin",
		Password:           "secret",
		ClientIDCandidates: []string{"a", "b"},
	})

	_, err := n.Negotiate(context.Background())

	var authErr *models.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Error(t, authErr.ModernCause)
	assert.Error(t, authErr.LegacyCause)
}

func TestRefreshSwapsTokenFields(t *testing.T) {
	refreshCalls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.FormValue("grant_type") {
		case "password":
			writeTokenResponse(w, "initial-access", "initial-refresh", 300)
		case "refresh_token":
			refreshCalls++
			assert.Equal(t, "initial-refresh", r.FormValue("refresh_token"))
			assert.Equal(t, "zerto-client", r.FormValue("client_id"),
				"refresh must reuse the client identity that won the grant")
			writeTokenResponse(w, "renewed-access", "renewed-refresh", 600)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	n := newNegotiator(server.URL, auth.ModeModern, auth.Credentials{
		Username:           "admin",
		Password:           "secret",
		ClientIDCandidates: []string{"zerto-client"},
	})

	token, err := n.Negotiate(context.Background())
	require.NoError(t, err)

	require.NoError(t, n.Refresh(context.Background(), token))
	assert.Equal(t, 1, refreshCalls)
	assert.Equal(t, "renewed-access", token.Token)
	assert.Equal(t, "renewed-refresh", token.RefreshToken)
	assert.Equal(t, auth.KindBearerOIDC, token.Kind)
}

func TestRefreshFailureLeavesTokenIntact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.FormValue("grant_type") == "password" {
			writeTokenResponse(w, "initial-access", "initial-refresh", 300)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n := newNegotiator(server.URL, auth.ModeModern, auth.Credentials{
		Username:           "admin",
		Password:           "secret",
		ClientIDCandidates: []string{"zerto-client"},
	})

	token, err := n.Negotiate(context.Background())
	require.NoError(t, err)

	require.Error(t, n.Refresh(context.Background(), token))
	assert.Equal(t, "initial-access", token.Token)
	assert.Equal(t, "initial-refresh", token.RefreshToken)
}

func TestRefreshRejectedForLegacySessions(t *testing.T) {
	n := newNegotiator("http://unused", auth.ModeLegacy, auth.Credentials{})

	token := &auth.TokenContext{
		Token:    "session-id",
		Kind:     auth.KindLegacySession,
		Protocol: auth.ProtocolLegacy,
	}

	err := n.Refresh(context.Background(), token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "re-negotiate")
}

func TestCredentialsNeverFormatSecrets(t *testing.T) {
	creds := auth.Credentials{Username: "admin", Password: "hunter2"}

	assert.NotContains(t, creds.String(), "hunter2")
	assert.NotContains(t, creds.GoString(), "hunter2")
}

func TestTokenContextAuthorizeSelectsHeaderScheme(t *testing.T) {
	bearer := &auth.TokenContext{Token: "abc", Kind: auth.KindBearerOIDC}
	session := &auth.TokenContext{Token: "xyz", Kind: auth.KindLegacySession}

	req := httptest.NewRequest(http.MethodGet, "/v1/license", nil)
	bearer.Authorize(req)
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))

	req = httptest.NewRequest(http.MethodGet, "/v1/license", nil)
	session.Authorize(req)
	assert.Equal(t, "xyz", req.Header.Get(auth.SessionHeader))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestTokenContextExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, (&auth.TokenContext{ExpiresAt: &past}).Expired(now))
	assert.False(t, (&auth.TokenContext{ExpiresAt: &future}).Expired(now))
	assert.False(t, (&auth.TokenContext{}).Expired(now), "unknown expiry is never expired")
}
