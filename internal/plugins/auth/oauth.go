package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// googleUserInfoURL is the OpenID Connect userinfo endpoint (v3 returns
// "sub" rather than the legacy "id").
const googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// maxUserInfoBytes caps the userinfo body we are willing to read.
const maxUserInfoBytes = 1 << 20

var (
	// ErrOAuthExchange wraps every failure to turn a code into claims.
	ErrOAuthExchange = errors.New("oauth: exchange failed")

	// ErrIncompleteClaims is returned when the provider omits subject or email.
	ErrIncompleteClaims = errors.New("oauth: provider response missing required claims")
)

// Claims is the normalized identity returned by a federation provider.
type Claims struct {
	SubjectID     string
	Email         string
	DisplayName   string
	EmailVerified bool
}

// FederationClient exchanges an authorization code for identity claims.
type FederationClient interface {
	// AuthCodeURL returns the provider consent URL for the given state.
	AuthCodeURL(state string) string

	// Exchange trades code for normalized claims. Errors wrap ErrOAuthExchange.
	Exchange(ctx context.Context, code string) (*Claims, error)
}

// GoogleConfig holds the client registration used by GoogleClient.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
}

// GoogleClient implements FederationClient against Google's OAuth 2.0 and
// userinfo endpoints.
type GoogleClient struct {
	oauth2Config *oauth2.Config
	httpClient   *http.Client
	userInfoURL  string
}

// NewGoogleClient creates a Google federation client requesting the
// "openid profile email" scopes.
func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GoogleClient{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
		httpClient:  &http.Client{Timeout: timeout},
		userInfoURL: googleUserInfoURL,
	}
}

// AuthCodeURL implements FederationClient. The URL carries
// response_type=code, client_id, redirect_uri, scope and state.
func (g *GoogleClient) AuthCodeURL(state string) string {
	return g.oauth2Config.AuthCodeURL(state)
}

// Exchange implements FederationClient.
func (g *GoogleClient) Exchange(ctx context.Context, code string) (*Claims, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", ErrOAuthExchange)
	}

	// oauth2 picks up the timeout-bound client from the context.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)

	token, err := g.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOAuthExchange, err)
	}

	info, err := g.fetchUserInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOAuthExchange, err)
	}

	claims, err := info.normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOAuthExchange, err)
	}
	return claims, nil
}

// googleUserInfo mirrors the v3 userinfo response fields we use.
type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (g *GoogleClient) fetchUserInfo(ctx context.Context, accessToken string) (*googleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching userinfo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return nil, fmt.Errorf("reading userinfo: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decoding userinfo: %w", err)
	}
	return &info, nil
}

func (u *googleUserInfo) normalize() (*Claims, error) {
	return NormalizeClaims(u.Sub, u.Email, u.Name, u.EmailVerified)
}

// NormalizeClaims builds Claims from raw provider fields. Subject and email
// are required; the email is lower-cased and trimmed like local accounts.
func NormalizeClaims(subjectID, email, displayName string, emailVerified bool) (*Claims, error) {
	subjectID = strings.TrimSpace(subjectID)
	email = normalizeEmail(email)

	var missing []string
	if subjectID == "" {
		missing = append(missing, "sub")
	}
	if email == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrIncompleteClaims, strings.Join(missing, ", "))
	}

	return &Claims{
		SubjectID:     subjectID,
		Email:         email,
		DisplayName:   strings.TrimSpace(displayName),
		EmailVerified: emailVerified,
	}, nil
}
