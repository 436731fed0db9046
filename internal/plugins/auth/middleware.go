package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mealbuddy/mealbuddy/internal/apperror"
)

// contextKeyUser stores the resolved *User in the Echo context. Other
// plugins read it through GetUser.
const contextKeyUser = "auth_user"

// RequireAuth returns middleware that resolves the current user from the
// Authorization header or the session cookie and stores it in the request
// context. Failures are returned to the error handler: 401 (with a
// WWW-Authenticate challenge) or 403 for inactive accounts.
func RequireAuth(service AuthService, cookies *CookieManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := service.ResolveCurrentUser(c.Request().Context(), tokenFromRequest(c))
			if err != nil {
				// Drop a stale cookie so the browser stops sending it.
				if apperror.Is(err, http.StatusUnauthorized) && hasSessionCookie(c) {
					cookies.Clear(c)
				}
				return err
			}

			c.Set(contextKeyUser, user)
			return next(c)
		}
	}
}

// GetUser retrieves the authenticated user from the Echo context. Returns
// nil if the request is not authenticated (middleware not applied).
func GetUser(c echo.Context) *User {
	user, ok := c.Get(contextKeyUser).(*User)
	if !ok {
		return nil
	}
	return user
}

func hasSessionCookie(c echo.Context) bool {
	cookie, err := c.Cookie(sessionCookieName)
	return err == nil && cookie.Value != ""
}
