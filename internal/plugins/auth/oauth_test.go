package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeGoogle serves the token and userinfo endpoints.
type fakeGoogle struct {
	tokenStatus    int
	userInfo       map[string]any
	userInfoStatus int
	delay          time.Duration
	gotAuthHeader  string
	gotCode        string
}

func (f *fakeGoogle) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(f.delay)
		_ = r.ParseForm()
		f.gotCode = r.PostForm.Get("code")
		if f.tokenStatus != 0 && f.tokenStatus != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"google-access-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		f.gotAuthHeader = r.Header.Get("Authorization")
		if f.userInfoStatus != 0 {
			w.WriteHeader(f.userInfoStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.userInfo)
	})
	return mux
}

func newTestGoogleClient(t *testing.T, f *fakeGoogle, timeout time.Duration) *GoogleClient {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	g := NewGoogleClient(GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8000/api/v1/auth/google-callback",
		Timeout:      timeout,
	})
	g.oauth2Config.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	g.userInfoURL = srv.URL + "/userinfo"
	return g
}

func TestGoogleClient_AuthCodeURL(t *testing.T) {
	g := NewGoogleClient(GoogleConfig{
		ClientID:    "client-id",
		RedirectURL: "http://localhost:8000/api/v1/auth/google-callback",
	})

	raw := g.AuthCodeURL("state-123")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "accounts.google.com", u.Host)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "http://localhost:8000/api/v1/auth/google-callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
	assert.Equal(t, "state-123", q.Get("state"))
}

func TestGoogleClient_Exchange(t *testing.T) {
	f := &fakeGoogle{userInfo: map[string]any{
		"sub":            "google-sub-1",
		"email":          "Cook@Example.com",
		"email_verified": true,
		"name":           "Cook",
	}}
	g := newTestGoogleClient(t, f, time.Second)

	claims, err := g.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)

	assert.Equal(t, "auth-code", f.gotCode)
	assert.Equal(t, "Bearer google-access-token", f.gotAuthHeader)
	assert.Equal(t, &Claims{
		SubjectID:     "google-sub-1",
		Email:         "cook@example.com",
		DisplayName:   "Cook",
		EmailVerified: true,
	}, claims)
}

func TestGoogleClient_ExchangeFailures(t *testing.T) {
	tests := []struct {
		name    string
		fake    *fakeGoogle
		timeout time.Duration
	}{
		{"token endpoint rejects code", &fakeGoogle{tokenStatus: http.StatusBadRequest}, time.Second},
		{"userinfo error", &fakeGoogle{userInfoStatus: http.StatusUnauthorized}, time.Second},
		{"missing email", &fakeGoogle{userInfo: map[string]any{"sub": "s"}}, time.Second},
		{"missing sub", &fakeGoogle{userInfo: map[string]any{"email": "a@x.com"}}, time.Second},
		{"timeout", &fakeGoogle{delay: 300 * time.Millisecond, userInfo: map[string]any{"sub": "s", "email": "a@x.com"}}, 50 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGoogleClient(t, tt.fake, tt.timeout)
			_, err := g.Exchange(context.Background(), "auth-code")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrOAuthExchange)
		})
	}
}

func TestGoogleClient_EmptyCode(t *testing.T) {
	g := NewGoogleClient(GoogleConfig{ClientID: "id"})
	_, err := g.Exchange(context.Background(), "")
	assert.ErrorIs(t, err, ErrOAuthExchange)
}

func TestNormalizeClaims(t *testing.T) {
	c, err := NormalizeClaims(" sub-1 ", "  A@X.com ", " Ann ", false)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", c.SubjectID)
	assert.Equal(t, "a@x.com", c.Email)
	assert.Equal(t, "Ann", c.DisplayName)

	_, err = NormalizeClaims("", "a@x.com", "", true)
	assert.ErrorIs(t, err, ErrIncompleteClaims)

	_, err = NormalizeClaims("sub-1", " ", "", true)
	assert.ErrorIs(t, err, ErrIncompleteClaims)
}
