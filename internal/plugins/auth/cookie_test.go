package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCookieContext(req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatalf("cookie %q not set", sessionCookieName)
	return nil
}

func TestCookieManager_Attach(t *testing.T) {
	c, rec := newCookieContext(httptest.NewRequest(http.MethodPost, "/", nil))
	NewCookieManager(30*time.Minute, true).Attach(c, "tok.en.value")

	cookie := findCookie(t, rec)
	assert.Equal(t, "Bearer tok.en.value", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 1800, cookie.MaxAge)
	assert.Equal(t, "/", cookie.Path)
}

func TestCookieManager_AttachInsecureInDebug(t *testing.T) {
	c, rec := newCookieContext(httptest.NewRequest(http.MethodPost, "/", nil))
	NewCookieManager(time.Minute, false).Attach(c, "tok")

	assert.False(t, findCookie(t, rec).Secure)
}

func TestCookieManager_Clear(t *testing.T) {
	c, rec := newCookieContext(httptest.NewRequest(http.MethodPost, "/", nil))
	NewCookieManager(time.Minute, true).Clear(c)

	cookie := findCookie(t, rec)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{"header", "Bearer abc", "", "abc"},
		{"header lowercase scheme", "bearer abc", "", "abc"},
		{"cookie", "", "Bearer xyz", "xyz"},
		{"header wins over cookie", "Bearer abc", "Bearer xyz", "abc"},
		{"basic auth falls back to cookie", "Basic Zm9vOmJhcg==", "Bearer xyz", "xyz"},
		{"cookie without scheme", "", "xyz", ""},
		{"empty bearer", "Bearer ", "", ""},
		{"nothing", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: tt.cookie})
			}
			c, _ := newCookieContext(req)
			assert.Equal(t, tt.want, tokenFromRequest(c))
		})
	}
}

func TestCookieRoundTrip_QuotedValue(t *testing.T) {
	// The space in "Bearer <token>" forces net/http to quote the value; a
	// browser echoing it back must still resolve to the raw token.
	c, rec := newCookieContext(httptest.NewRequest(http.MethodPost, "/", nil))
	NewCookieManager(time.Minute, true).Attach(c, "header.payload.sig")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	for _, ck := range rec.Result().Cookies() {
		req.AddCookie(ck)
	}
	next, _ := newCookieContext(req)
	require.Equal(t, "header.payload.sig", tokenFromRequest(next))
}
