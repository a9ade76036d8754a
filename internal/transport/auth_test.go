package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oss-mcp/research-engine/internal/config"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_APIKey_GrantsWildcardScope(t *testing.T) {
	a := NewAuthenticator(&config.Config{ServerAPIKey: "secret-key"})
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer secret-key")

	p, err := a.Authenticate(req)
	require.NoError(t, err)
	require.Equal(t, "api-key", p.Subject)
	require.True(t, p.hasScope("mcp:research:write"))
	require.True(t, p.hasScope("anything"))
}

func TestAuthenticator_NoCredentials_RejectedByDefault(t *testing.T) {
	a := NewAuthenticator(&config.Config{ServerAPIKey: "secret-key"})
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)

	_, err := a.Authenticate(req)
	require.ErrorIs(t, err, errMissingCredentials)
}

func TestAuthenticator_NoCredentials_AllowedWhenConfigured(t *testing.T) {
	a := NewAuthenticator(&config.Config{AllowNoAPIKey: true})
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)

	p, err := a.Authenticate(req)
	require.NoError(t, err)
	require.Equal(t, "anonymous", p.Subject)
	require.False(t, p.hasScope("mcp:research:write"))
}

func TestAuthenticator_WrongAPIKey_RejectedWithNoJWKS(t *testing.T) {
	a := NewAuthenticator(&config.Config{ServerAPIKey: "secret-key"})
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")

	_, err := a.Authenticate(req)
	require.ErrorIs(t, err, errInvalidCredentials)
}

func TestAuthenticator_Middleware_AttachesPrincipal(t *testing.T) {
	a := NewAuthenticator(&config.Config{AllowNoAPIKey: true})
	var seenSubject string
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenSubject = principalFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "anonymous", seenSubject)
}

func TestAuthenticator_Middleware_Rejects401(t *testing.T) {
	a := NewAuthenticator(&config.Config{ServerAPIKey: "secret-key"})
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestRequireScope_WildcardSatisfiesAnyScope(t *testing.T) {
	p := Principal{Subject: "api-key", Scopes: map[string]struct{}{wildcardScope: {}}}
	require.True(t, p.hasScope("mcp:jobs:write"))
}

func TestRequireScope_MissingScopeFails(t *testing.T) {
	p := Principal{Subject: "reader", Scopes: map[string]struct{}{"mcp:retrieve:read": {}}}
	require.False(t, p.hasScope("mcp:research:write"))
}
