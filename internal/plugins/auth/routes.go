package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mealbuddy/mealbuddy/internal/middleware"
)

// RegisterRoutes mounts the auth endpoints under g (normally the /api/v1
// group). RequireAuth is applied per route; other plugins use it on their
// own groups.
//
// Credential endpoints are rate-limited per IP to slow brute-force and
// credential stuffing: 10 login attempts per minute, and 5 per minute for
// registration and each endpoint that sends mail.
func RegisterRoutes(g *echo.Group, h *Handler, service AuthService, cookies *CookieManager, limiter *middleware.RateLimiter) {
	requireAuth := RequireAuth(service, cookies)

	auth := g.Group("/auth")

	auth.POST("/login", h.Login, limiter.Limit("login", 10, time.Minute))
	auth.POST("/register", h.Register, limiter.Limit("register", 5, time.Minute))
	auth.POST("/logout", h.Logout)

	auth.GET("/me", h.Me, requireAuth)
	auth.POST("/refresh-token", h.RefreshToken, requireAuth)

	auth.GET("/google-login", h.GoogleLogin)
	auth.GET("/google-callback", h.GoogleCallback)

	auth.POST("/verify-email", h.VerifyEmail)
	auth.POST("/resend-verification", h.ResendVerification, limiter.Limit("resend-verification", 5, time.Minute))
	auth.POST("/forgot-password", h.ForgotPassword, limiter.Limit("forgot-password", 5, time.Minute))
	auth.POST("/reset-password", h.ResetPassword, limiter.Limit("reset-password", 5, time.Minute))
}
