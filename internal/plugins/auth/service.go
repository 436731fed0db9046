package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mealbuddy/mealbuddy/internal/apperror"
	"github.com/mealbuddy/mealbuddy/internal/mailer"
)

// emailTokenBytes is the entropy of verification and reset tokens.
const emailTokenBytes = 32

// Client-facing messages. The credential messages are deliberately identical
// for unknown emails and wrong passwords.
const (
	msgInvalidCredentials = "Incorrect email or password"
	msgInvalidToken       = "Could not validate credentials"
	msgNotAuthenticated   = "Not authenticated"
	msgInactiveUser       = "Inactive user"
	msgDuplicateUser      = "User with this email already exists"
	msgOAuthFailed        = "Could not authenticate with Google"
	msgOAuthDisabled      = "Google login is not configured"
	msgOAuthState         = "Invalid or expired OAuth state"
	msgInvalidEmailToken  = "Invalid or expired token"
	msgOAuthLinked        = "This account is already linked to a different Google account"
	msgOAuthUnverified    = "An account with this email already exists. Sign in with your password"
)

// Reasons resolveFederatedUser refuses to link a Google identity by email.
var (
	errSubjectConflict = errors.New("auth: account linked to another google subject")
	errUnverifiedLink  = errors.New("auth: google email not verified")
)

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repository directly.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*User, error)
	Login(ctx context.Context, input LoginInput) (token string, user *User, err error)
	ResolveCurrentUser(ctx context.Context, token string) (*User, error)
	RefreshToken(ctx context.Context, user *User) (string, error)

	// OAuthRedirectURL starts a Google login and returns the consent URL.
	OAuthRedirectURL(ctx context.Context) (string, error)
	OAuthLogin(ctx context.Context, code, state string) (*User, string, error)

	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, input ResetPasswordInput) error

	// EnsureSuperuser creates the bootstrap admin if no account uses email.
	// The bool reports whether a new account was created.
	EnsureSuperuser(ctx context.Context, email, password string) (*User, bool, error)
}

// ServiceDeps bundles what NewAuthService needs. Federation and States may
// both be nil, which disables Google login. Mail and Metrics may be nil.
type ServiceDeps struct {
	Store      Store
	Hasher     *PasswordHasher
	Tokens     *TokenIssuer
	Federation FederationClient
	States     StateStore
	Mail       mailer.MailService
	Metrics    *Metrics

	AccessTokenTTL time.Duration
	EmailTokenTTL  time.Duration

	// FrontendURL prefixes the links sent by email.
	FrontendURL string
}

// authService implements AuthService with bcrypt passwords, stateless JWTs
// and MariaDB-backed accounts.
type authService struct {
	store      Store
	hasher     *PasswordHasher
	tokens     *TokenIssuer
	federation FederationClient
	states     StateStore
	mail       mailer.MailService
	metrics    *Metrics

	accessTTL   time.Duration
	emailTTL    time.Duration
	frontendURL string

	now func() time.Time
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(deps ServiceDeps) AuthService {
	return &authService{
		store:       deps.Store,
		hasher:      deps.Hasher,
		tokens:      deps.Tokens,
		federation:  deps.Federation,
		states:      deps.States,
		mail:        deps.Mail,
		metrics:     deps.Metrics,
		accessTTL:   deps.AccessTokenTTL,
		emailTTL:    deps.EmailTokenTTL,
		frontendURL: strings.TrimRight(deps.FrontendURL, "/"),
		now:         time.Now,
	}
}

// Register creates a new user account. The account starts active and
// unverified; a verification link is mailed after the row is committed.
func (s *authService) Register(ctx context.Context, input RegisterInput) (*User, error) {
	email, err := validateEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(input.Password, input.PasswordConfirm); err != nil {
		return nil, err
	}

	// Check if email is already taken before doing expensive hashing.
	exists, err := s.store.Users().EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, apperror.NewDuplicate(msgDuplicateUser)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	rawToken, tokenHash, err := newEmailToken()
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	now := s.now().UTC()
	expires := now.Add(s.emailTTL)
	user := &User{
		ID:                         uuid.NewString(),
		Email:                      email,
		FullName:                   trimOptional(input.FullName),
		PasswordHash:               &hash,
		IsActive:                   true,
		VerificationTokenHash:      &tokenHash,
		VerificationTokenExpiresAt: &expires,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}

	err = s.store.WithinTx(ctx, func(repo UserRepository) error {
		return repo.Create(ctx, user)
	})
	if errors.Is(err, ErrDuplicateUser) {
		// Lost a race with a concurrent registration for the same email.
		return nil, apperror.NewDuplicate(msgDuplicateUser)
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	s.metrics.registered()
	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	s.sendMail(ctx, user.Email, "Verify your MealBuddy email",
		"Confirm your email address to finish setting up your account.",
		s.link("/verify-email", rawToken))

	return user, nil
}

// Login authenticates a user by email and password and issues an access
// token. Inactive accounts are not rejected here; ResolveCurrentUser gates
// every protected endpoint.
func (s *authService) Login(ctx context.Context, input LoginInput) (string, *User, error) {
	user, err := s.store.Users().FindByEmail(ctx, normalizeEmail(input.Email))
	if apperror.IsNotFound(err) {
		s.metrics.login(outcomeFailure)
		return "", nil, apperror.NewUnauthorized(msgInvalidCredentials)
	}
	if err != nil {
		return "", nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	// Google-only accounts have no usable password and fail here too.
	if !user.HasPassword() || !s.hasher.Verify(input.Password, *user.PasswordHash) {
		s.metrics.login(outcomeFailure)
		return "", nil, apperror.NewUnauthorized(msgInvalidCredentials)
	}

	token, err := s.tokens.Issue(user.Email, s.accessTTL)
	if err != nil {
		return "", nil, apperror.NewInternal(err)
	}

	s.recordLogin(ctx, user)

	s.metrics.login(outcomeSuccess)
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return token, user, nil
}

// recordLogin stamps last_login_at and bumps login_count in its own
// transaction. Failures are logged and never fail the login.
func (s *authService) recordLogin(ctx context.Context, user *User) {
	at := s.now().UTC()

	err := s.store.WithinTx(ctx, func(repo UserRepository) error {
		return repo.RecordLogin(ctx, user.ID, at)
	})
	if err != nil {
		slog.Warn("failed to update last login",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
		return
	}

	user.LastLoginAt = &at
	user.LoginCount++
}

// ResolveCurrentUser maps a bearer token to its active user.
func (s *authService) ResolveCurrentUser(ctx context.Context, token string) (*User, error) {
	if token == "" {
		s.metrics.tokenCheck(outcomeFailure)
		return nil, apperror.NewUnauthorized(msgNotAuthenticated)
	}

	email, err := s.tokens.Verify(token)
	if err != nil {
		s.metrics.tokenCheck(outcomeFailure)
		slog.Debug("rejected access token", slog.Any("error", err))
		return nil, apperror.NewUnauthorized(msgInvalidToken)
	}

	user, err := s.store.Users().FindByEmail(ctx, email)
	if apperror.IsNotFound(err) {
		// Token outlived its account.
		s.metrics.tokenCheck(outcomeFailure)
		return nil, apperror.NewUnauthorized(msgInvalidToken)
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if !user.IsActive {
		s.metrics.tokenCheck(outcomeInactive)
		return nil, apperror.NewForbidden(msgInactiveUser)
	}

	s.metrics.tokenCheck(outcomeSuccess)
	return user, nil
}

// RefreshToken issues a fresh token for an already resolved user.
func (s *authService) RefreshToken(_ context.Context, user *User) (string, error) {
	if user == nil {
		return "", apperror.NewMissingContext()
	}
	token, err := s.tokens.Issue(user.Email, s.accessTTL)
	if err != nil {
		return "", apperror.NewInternal(err)
	}
	return token, nil
}

// OAuthRedirectURL records a one-shot state and returns Google's consent URL.
func (s *authService) OAuthRedirectURL(ctx context.Context) (string, error) {
	if s.federation == nil || s.states == nil {
		return "", apperror.NewUnavailable(msgOAuthDisabled)
	}

	state, err := s.states.Issue(ctx)
	if err != nil {
		return "", apperror.NewInternal(err)
	}
	return s.federation.AuthCodeURL(state), nil
}

// OAuthLogin completes a Google login. The account is found by subject id,
// else an existing account with the same email is linked, else a new
// account is created with an unusable password.
func (s *authService) OAuthLogin(ctx context.Context, code, state string) (*User, string, error) {
	if s.federation == nil || s.states == nil {
		return nil, "", apperror.NewUnavailable(msgOAuthDisabled)
	}

	ok, err := s.states.Consume(ctx, state)
	if err != nil {
		return nil, "", apperror.NewInternal(err)
	}
	if !ok {
		return nil, "", apperror.NewBadRequest(msgOAuthState)
	}

	claims, err := s.federation.Exchange(ctx, code)
	if err != nil {
		s.metrics.oauthLogin(outcomeExchangeErr)
		slog.Warn("google exchange failed", slog.Any("error", err))
		return nil, "", apperror.NewBadGateway(msgOAuthFailed, err)
	}

	var (
		user    *User
		outcome string
	)
	err = s.store.WithinTx(ctx, func(repo UserRepository) error {
		var err error
		user, outcome, err = s.resolveFederatedUser(ctx, repo, claims)
		return err
	})
	switch {
	case errors.Is(err, ErrDuplicateUser):
		// A concurrent callback created or linked the same identity.
		s.metrics.oauthLogin(outcomeFailure)
		return nil, "", apperror.NewDuplicate(msgDuplicateUser)
	case errors.Is(err, errSubjectConflict):
		s.metrics.oauthLogin(outcomeFailure)
		return nil, "", apperror.NewConflict(msgOAuthLinked)
	case errors.Is(err, errUnverifiedLink):
		s.metrics.oauthLogin(outcomeFailure)
		return nil, "", apperror.NewConflict(msgOAuthUnverified)
	case err != nil:
		return nil, "", apperror.NewInternal(fmt.Errorf("resolving google account: %w", err))
	}

	s.metrics.oauthLogin(outcome)
	slog.Info("google login",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
		slog.String("outcome", outcome),
	)

	if !user.IsActive {
		return nil, "", apperror.NewForbidden(msgInactiveUser)
	}

	token, err := s.tokens.Issue(user.Email, s.accessTTL)
	if err != nil {
		return nil, "", apperror.NewInternal(err)
	}

	s.recordLogin(ctx, user)
	return user, token, nil
}

// resolveFederatedUser runs inside the OAuth transaction.
func (s *authService) resolveFederatedUser(ctx context.Context, repo UserRepository, claims *Claims) (*User, string, error) {
	user, err := repo.FindByOAuthSubject(ctx, claims.SubjectID)
	if err == nil {
		return user, outcomeMatched, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, "", err
	}

	user, err = repo.FindByEmail(ctx, claims.Email)
	switch {
	case err == nil:
		if user.OAuthSubjectID != nil && *user.OAuthSubjectID != claims.SubjectID {
			return nil, "", errSubjectConflict
		}
		// An unverified provider email proves nothing about who owns the
		// password account.
		if !claims.EmailVerified {
			return nil, "", errUnverifiedLink
		}
		if err := repo.LinkOAuthSubject(ctx, user.ID, claims.SubjectID, claims.EmailVerified); err != nil {
			return nil, "", err
		}
		subject := claims.SubjectID
		user.OAuthSubjectID = &subject
		user.IsVerified = true
		return user, outcomeLinked, nil
	case !apperror.IsNotFound(err):
		return nil, "", err
	}

	hash, err := s.hasher.UnusableHash()
	if err != nil {
		return nil, "", err
	}

	now := s.now().UTC()
	subject := claims.SubjectID
	user = &User{
		ID:             uuid.NewString(),
		Email:          claims.Email,
		FullName:       trimOptional(&claims.DisplayName),
		PasswordHash:   &hash,
		OAuthSubjectID: &subject,
		IsActive:       true,
		IsVerified:     claims.EmailVerified,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repo.Create(ctx, user); err != nil {
		return nil, "", err
	}
	return user, outcomeCreated, nil
}

// VerifyEmail consumes a verification token.
func (s *authService) VerifyEmail(ctx context.Context, token string) error {
	user, err := s.userForEmailToken(ctx, token, s.store.Users().FindByVerificationToken)
	if err != nil {
		return err
	}
	if !tokenLive(user.VerificationTokenExpiresAt, s.now()) {
		return apperror.NewBadRequest(msgInvalidEmailToken)
	}

	if err := s.store.Users().MarkVerified(ctx, user.ID); err != nil {
		return apperror.NewInternal(fmt.Errorf("marking verified: %w", err))
	}

	slog.Info("email verified", slog.String("user_id", user.ID))
	return nil
}

// ResendVerification mails a fresh verification link to a known, active,
// unverified account, replacing the pending token. Like ForgotPassword it
// never reports whether the email exists.
func (s *authService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.findForEmailLink(ctx, email)
	if err != nil || user == nil || user.IsVerified {
		return err
	}

	rawToken, tokenHash, err := newEmailToken()
	if err != nil {
		return apperror.NewInternal(err)
	}
	expires := s.now().UTC().Add(s.emailTTL)
	if err := s.store.Users().SetVerificationToken(ctx, user.ID, tokenHash, expires); err != nil {
		return apperror.NewInternal(fmt.Errorf("storing verification token: %w", err))
	}

	s.sendMail(ctx, user.Email, "Verify your MealBuddy email",
		"Confirm your email address to finish setting up your account.",
		s.link("/verify-email", rawToken))

	slog.Info("verification email resent", slog.String("user_id", user.ID))
	return nil
}

// findForEmailLink looks up the active account an emailed link may be sent
// to. A nil user with a nil error means nothing should be sent.
func (s *authService) findForEmailLink(ctx context.Context, email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil
	}

	user, err := s.store.Users().FindByEmail(ctx, email)
	if apperror.IsNotFound(err) {
		slog.Debug("email link requested for unknown email")
		return nil, nil
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	if !user.IsActive {
		return nil, nil
	}
	return user, nil
}

// ForgotPassword mails a reset link to a known, active account. It never
// reports whether the email exists.
func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.findForEmailLink(ctx, email)
	if err != nil || user == nil {
		return err
	}

	rawToken, tokenHash, err := newEmailToken()
	if err != nil {
		return apperror.NewInternal(err)
	}
	expires := s.now().UTC().Add(s.emailTTL)
	if err := s.store.Users().SetResetToken(ctx, user.ID, tokenHash, expires); err != nil {
		return apperror.NewInternal(fmt.Errorf("storing reset token: %w", err))
	}

	s.sendMail(ctx, user.Email, "Reset your MealBuddy password",
		"Someone asked to reset the password for your account. If it wasn't you, ignore this email.",
		s.link("/reset-password", rawToken))

	slog.Info("password reset requested", slog.String("user_id", user.ID))
	return nil
}

// ResetPassword sets a new password using a reset token.
func (s *authService) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	if err := validatePassword(input.Password, input.PasswordConfirm); err != nil {
		return err
	}

	user, err := s.userForEmailToken(ctx, input.Token, s.store.Users().FindByResetToken)
	if err != nil {
		return err
	}
	// Deactivation does not clear a pending token, so check the owner here.
	if !user.IsActive || !tokenLive(user.ResetTokenExpiresAt, s.now()) {
		return apperror.NewBadRequest(msgInvalidEmailToken)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return apperror.NewInternal(err)
	}
	if err := s.store.Users().UpdatePassword(ctx, user.ID, hash); err != nil {
		return apperror.NewInternal(fmt.Errorf("updating password: %w", err))
	}

	slog.Info("password reset", slog.String("user_id", user.ID))
	return nil
}

// userForEmailToken hashes a raw emailed token and looks up its owner.
func (s *authService) userForEmailToken(ctx context.Context, token string, find func(context.Context, string) (*User, error)) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.NewBadRequest(msgInvalidEmailToken)
	}

	user, err := find(ctx, hashEmailToken(token))
	if apperror.IsNotFound(err) {
		return nil, apperror.NewBadRequest(msgInvalidEmailToken)
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding token owner: %w", err))
	}
	return user, nil
}

// EnsureSuperuser implements AuthService.
func (s *authService) EnsureSuperuser(ctx context.Context, email, password string) (*User, bool, error) {
	email, err := validateEmail(email)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.store.Users().FindByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, false, apperror.NewInternal(fmt.Errorf("finding superuser: %w", err))
	}

	if err := validatePassword(password, password); err != nil {
		return nil, false, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, false, apperror.NewInternal(err)
	}

	now := s.now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: &hash,
		IsActive:     true,
		IsSuperuser:  true,
		IsVerified:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.store.WithinTx(ctx, func(repo UserRepository) error {
		return repo.Create(ctx, user)
	})
	if errors.Is(err, ErrDuplicateUser) {
		// Another replica seeded it first.
		existing, err := s.store.Users().FindByEmail(ctx, email)
		if err != nil {
			return nil, false, apperror.NewInternal(err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, apperror.NewInternal(fmt.Errorf("creating superuser: %w", err))
	}

	slog.Info("superuser created", slog.String("user_id", user.ID), slog.String("email", user.Email))
	return user, true, nil
}

// --- Mail ---

// link builds a frontend URL carrying an emailed token.
func (s *authService) link(path, token string) string {
	return s.frontendURL + path + "?token=" + url.QueryEscape(token)
}

// sendMail delivers a one-link message. Mail is best effort: failures are
// logged and never fail the calling operation.
func (s *authService) sendMail(ctx context.Context, to, subject, intro, link string) {
	if s.mail == nil {
		return
	}

	body := fmt.Sprintf(`<p>%s</p><p><a href="%s">%s</a></p><p>This link expires in %d hours.</p>`,
		html.EscapeString(intro), html.EscapeString(link), html.EscapeString(link), int(s.emailTTL.Hours()))

	if err := s.mail.SendMail(ctx, []string{to}, subject, body); err != nil {
		slog.Warn("failed to send auth email",
			slog.String("subject", subject),
			slog.Any("error", err),
		)
	}
}

// --- Validation ---

// normalizeEmail lower-cases and trims an address so lookups are
// case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail normalizes email and rejects anything that isn't a bare
// address.
func validateEmail(email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", apperror.NewValidation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", apperror.NewValidation("value is not a valid email address")
	}
	return email, nil
}

// validatePassword enforces the confirmation match and length bounds.
func validatePassword(password, confirm string) error {
	if password != confirm {
		return apperror.NewValidation("passwords do not match")
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return apperror.NewValidation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return apperror.NewValidation(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// --- Email tokens ---

// newEmailToken returns a random URL-safe token and the digest stored for it.
func newEmailToken() (raw, digest string, err error) {
	b := make([]byte, emailTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating email token: %w", err)
	}
	raw = hex.EncodeToString(b)
	return raw, hashEmailToken(raw), nil
}

func hashEmailToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func tokenLive(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && now.Before(*expiresAt)
}
