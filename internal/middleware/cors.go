package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins is the list of origins permitted to make cross-origin
	// requests. Use ["*"] to allow all (not recommended for production).
	// Example: ["https://app.mealbuddy.app", "http://localhost:3000"]
	AllowedOrigins []string

	// AllowCredentials indicates whether the browser should include cookies
	// and auth headers in cross-origin requests. Required for the session
	// cookie when the web client runs on its own origin.
	AllowCredentials bool
}

// CORS returns middleware that handles Cross-Origin Resource Sharing headers.
// The web client is served from FRONTEND_URL, a different origin than the
// API, so every browser call goes through here.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	// Build a set for fast origin lookup.
	allowAll := false
	originSet := make(map[string]bool)
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		originSet[o] = true
	}

	// SECURITY: Wildcard origin with credentials would let any website make
	// authenticated requests. Refuse to send credentials in that case.
	if allowAll && cfg.AllowCredentials {
		slog.Warn("CORS misconfiguration: CORS_ORIGINS='*' with credentials is insecure; credentials will NOT be allowed. Specify explicit origins instead.")
		cfg.AllowCredentials = false
	}

	allowMethods := strings.Join([]string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
	}, ", ")

	allowHeaders := strings.Join([]string{
		echo.HeaderContentType,
		echo.HeaderAuthorization,
		echo.HeaderXRequestedWith,
	}, ", ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			origin := req.Header.Get(echo.HeaderOrigin)

			// No Origin header means same-origin request -- skip CORS.
			if origin == "" {
				return next(c)
			}

			res.Header().Add(echo.HeaderVary, echo.HeaderOrigin)

			// Origin not in whitelist -- proceed without CORS headers.
			// The browser will block the response on the client side.
			if !allowAll && !originSet[origin] {
				return next(c)
			}

			res.Header().Set(echo.HeaderAccessControlAllowOrigin, origin)
			if cfg.AllowCredentials {
				res.Header().Set(echo.HeaderAccessControlAllowCredentials, "true")
			}

			// Handle preflight OPTIONS requests.
			if req.Method == http.MethodOptions {
				res.Header().Set(echo.HeaderAccessControlAllowMethods, allowMethods)
				res.Header().Set(echo.HeaderAccessControlAllowHeaders, allowHeaders)

				// Cache preflight response for 1 hour to reduce preflight requests.
				res.Header().Set(echo.HeaderAccessControlMaxAge, "3600")

				return c.NoContent(http.StatusNoContent)
			}

			// Let the client read the 401 challenge and 429 back-off hints.
			res.Header().Set(echo.HeaderAccessControlExposeHeaders,
				strings.Join([]string{echo.HeaderWWWAuthenticate, echo.HeaderRetryAfter}, ", "))

			return next(c)
		}
	}
}
