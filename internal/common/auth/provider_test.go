package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"exbuddy/internal/common/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(url string) *ProviderClient {
	return NewProviderClient(config.ProviderConfig{
		Name:         "discord",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     url,
	}, nil)
}

func TestRefreshToken_SendsFormBody(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK,
		`{"access_token":"new-at","refresh_token":"new-rt","expires_in":604800,"token_type":"Bearer","scope":"identify email"}`,
		func(r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
			assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
			assert.Equal(t, "old-rt", r.PostForm.Get("refresh_token"))
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		})

	tok, err := newClient(srv.URL).RefreshToken(context.Background(), "old-rt")
	require.NoError(t, err)

	assert.Equal(t, "new-at", tok.AccessToken)
	assert.Equal(t, "new-rt", tok.RefreshToken)
	assert.InDelta(t, 604800, tok.ExpiresIn, 1)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, "identify email", tok.Scope)
}

func TestRefreshToken_ProviderRejects(t *testing.T) {
	srv := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`, nil)

	_, err := newClient(srv.URL).RefreshToken(context.Background(), "revoked")
	require.Error(t, err)

	var te *TokenError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)
	assert.Contains(t, te.Body, "invalid_grant")
	assert.False(t, te.Transient())
}

func TestRefreshToken_NoRefreshToken(t *testing.T) {
	_, err := newClient("http://127.0.0.1:0").RefreshToken(context.Background(), "")
	var te *TokenError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 0, te.StatusCode)
}

func TestTokenError_Transient(t *testing.T) {
	assert.True(t, (&TokenError{StatusCode: http.StatusServiceUnavailable}).Transient())
	assert.True(t, (&TokenError{Err: context.DeadlineExceeded}).Transient())
	assert.False(t, (&TokenError{StatusCode: http.StatusUnauthorized}).Transient())
}
