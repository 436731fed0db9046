package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// sessionCookieName is the HTTP cookie that carries the access token.
const sessionCookieName = "access_token"

// bearerPrefix precedes the token in both the Authorization header and the
// cookie value.
const bearerPrefix = "Bearer "

// CookieManager writes and clears the session cookie. Its MaxAge mirrors the
// access token lifetime so the browser drops the cookie when the token
// expires.
type CookieManager struct {
	ttl    time.Duration
	secure bool
}

// NewCookieManager creates a manager. secure should be false only in debug
// mode, where the API is served over plain HTTP.
func NewCookieManager(ttl time.Duration, secure bool) *CookieManager {
	return &CookieManager{ttl: ttl, secure: secure}
}

// Attach sets the session cookie on the response. The cookie is HttpOnly
// (JS can't read it) and SameSite=Lax.
func (m *CookieManager) Attach(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    bearerPrefix + token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	})
}

// Clear removes the session cookie by setting MaxAge to -1.
func (m *CookieManager) Clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// tokenFromRequest returns the raw access token from the Authorization
// header, falling back to the session cookie. Returns "" if neither is
// present or neither uses the Bearer scheme.
func tokenFromRequest(c echo.Context) string {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		if token, ok := cutBearer(header); ok {
			return token
		}
	}

	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	token, _ := cutBearer(cookie.Value)
	return token
}

// cutBearer strips a case-insensitive "Bearer " scheme prefix.
func cutBearer(value string) (string, bool) {
	if len(value) < len(bearerPrefix) || !strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearerPrefix):])
	return token, token != ""
}
