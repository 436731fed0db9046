package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mealbuddy/mealbuddy/internal/apperror"
)

// Handler handles HTTP requests for authentication. Handlers are thin: they
// bind the request, call the service, manage the session cookie and render
// JSON. No business logic lives here.
type Handler struct {
	service AuthService
	cookies *CookieManager
}

// NewHandler creates a new auth handler with the given service.
func NewHandler(service AuthService, cookies *CookieManager) *Handler {
	return &Handler{service: service, cookies: cookies}
}

// Login exchanges form credentials for a token (POST /auth/login). The email
// is sent in the "username" field, OAuth2 password-grant style.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	token, _, err := h.service.Login(c.Request().Context(), LoginInput{
		Email:    req.Username,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	h.cookies.Attach(c, token)
	return c.JSON(http.StatusOK, newTokenResponse(token))
}

// Register creates an account (POST /auth/register). It does not log the
// user in.
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	user, err := h.service.Register(c.Request().Context(), RegisterInput{
		Email:           req.Email,
		FullName:        req.FullName,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, user)
}

// Me returns the authenticated user (GET /auth/me).
func (h *Handler) Me(c echo.Context) error {
	user := GetUser(c)
	if user == nil {
		return apperror.NewMissingContext()
	}
	return c.JSON(http.StatusOK, user)
}

// Logout clears the session cookie (POST /auth/logout). Tokens are
// stateless, so an already issued token stays valid until it expires.
func (h *Handler) Logout(c echo.Context) error {
	h.cookies.Clear(c)
	return c.JSON(http.StatusOK, MessageResponse{Message: "Successfully logged out"})
}

// RefreshToken issues a new token for the current user and refreshes the
// cookie (POST /auth/refresh-token).
func (h *Handler) RefreshToken(c echo.Context) error {
	user := GetUser(c)
	if user == nil {
		return apperror.NewMissingContext()
	}

	token, err := h.service.RefreshToken(c.Request().Context(), user)
	if err != nil {
		return err
	}

	h.cookies.Attach(c, token)
	return c.JSON(http.StatusOK, newTokenResponse(token))
}

// GoogleLogin redirects the browser to Google's consent screen
// (GET /auth/google-login).
func (h *Handler) GoogleLogin(c echo.Context) error {
	url, err := h.service.OAuthRedirectURL(c.Request().Context())
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusTemporaryRedirect, url)
}

// GoogleCallback finishes a Google login (GET /auth/google-callback).
func (h *Handler) GoogleCallback(c echo.Context) error {
	// Google reports a declined consent screen as ?error=access_denied.
	if c.QueryParam("error") != "" {
		return apperror.NewBadRequest("Google login was cancelled")
	}

	code := c.QueryParam("code")
	if code == "" {
		return apperror.NewBadRequest("Authorization code not provided")
	}

	_, token, err := h.service.OAuthLogin(c.Request().Context(), code, c.QueryParam("state"))
	if err != nil {
		return err
	}

	h.cookies.Attach(c, token)
	return c.JSON(http.StatusOK, newTokenResponse(token))
}

// VerifyEmail consumes an emailed verification token (POST /auth/verify-email).
func (h *Handler) VerifyEmail(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.VerifyEmail(c.Request().Context(), req.Token); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Email verified"})
}

// ResendVerification mails a new verification link
// (POST /auth/resend-verification). The response is the same whether or not
// the account exists.
func (h *Handler) ResendVerification(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.ResendVerification(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{
		Message: "If an unverified account exists for that email, a verification link has been sent",
	})
}

// ForgotPassword starts a password reset (POST /auth/forgot-password). The
// response is the same whether or not the account exists.
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{
		Message: "If an account exists for that email, a reset link has been sent",
	})
}

// ResetPassword completes a password reset (POST /auth/reset-password).
func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	err := h.service.ResetPassword(c.Request().Context(), ResetPasswordInput{
		Token:           req.Token,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Password updated"})
}
