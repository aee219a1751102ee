// Package api is the thin REST client backing the session machine.
// Authentication is carried by an httpOnly cookie the server sets on login;
// the client holds it in a cookie jar and never inspects its value.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/Eklista/medialab-sub000/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	loginEndpoint           = "/api/v1/auth/login"
	logoutEndpoint          = "/api/v1/auth/logout"
	statusEndpoint          = "/api/v1/auth/status"
	meEndpoint              = "/api/v1/auth/me"
	verifyPasswordEndpoint  = "/api/v1/auth/verify-password"
	resetRequestEndpoint    = "/api/v1/auth/password-reset/request"
	resetConfirmEndpoint    = "/api/v1/auth/password-reset/confirm"
	defaultHTTPTimeout      = 30 * time.Second
)

// Credentials are the user-supplied login inputs.
type Credentials struct {
	Email    string
	Password string
}

// Client talks to the MediaLab auth endpoints.
type Client struct {
	baseURL string

	mu   sync.Mutex
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPTimeout overrides the default 30s request timeout.
func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient creates an API client for the platform at baseURL.
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewClient] invalid API base URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("[NewClient] API URL scheme must be http or https, got %q", u.Scheme)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "[NewClient] cookie jar")
	}

	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Jar: jar, Timeout: defaultHTTPTimeout},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Jar exposes the cookie jar so the realtime dialer can share the session
// cookie. Callers must not read cookie values out of it.
func (c *Client) Jar() http.CookieJar {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.http.Jar
}

// ClearClientCookies replaces the jar, dropping all cookie state held on
// the client side. The server-side session is ended separately by Logout.
func (c *Client) ClearClientCookies() {
	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to rebuild cookie jar")
		return
	}
	c.mu.Lock()
	c.http.Jar = jar
	c.mu.Unlock()
}

// Login authenticates with credentials. The server responds with the user
// record and sets the httpOnly session cookie on the jar.
func (c *Client) Login(ctx context.Context, creds Credentials) (users.User, error) {
	var resp loginResponse
	status, err := c.doJSON(ctx, http.MethodPost, loginEndpoint, loginRequest{Email: creds.Email, Password: creds.Password}, &resp)
	if err != nil {
		return users.User{}, err
	}
	switch {
	case status == http.StatusOK:
		return resp.User.toUser(), nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return users.User{}, InvalidCredentialsErr
	default:
		return users.User{}, errors.Wrapf(UnexpectedStatusErr, "login returned %d", status)
	}
}

// Logout invalidates the server-side session. Best-effort by contract: the
// caller proceeds with local cleanup regardless of the result.
func (c *Client) Logout(ctx context.Context) error {
	status, err := c.doJSON(ctx, http.MethodPost, logoutEndpoint, nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return errors.Wrapf(UnexpectedStatusErr, "logout returned %d", status)
	}
	return nil
}

// CheckStatus asks the server whether the session cookie is still valid.
func (c *Client) CheckStatus(ctx context.Context) (bool, error) {
	var resp statusResponse
	status, err := c.doJSON(ctx, http.MethodGet, statusEndpoint, nil, &resp)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return resp.Valid, nil
	case http.StatusUnauthorized:
		return false, nil
	default:
		return false, errors.Wrapf(UnexpectedStatusErr, "status check returned %d", status)
	}
}

// CurrentUser fetches the authenticated user and their permissions.
func (c *Client) CurrentUser(ctx context.Context) (users.User, error) {
	var dto userDTO
	status, err := c.doJSON(ctx, http.MethodGet, meEndpoint, nil, &dto)
	if err != nil {
		return users.User{}, err
	}
	switch status {
	case http.StatusOK:
		return dto.toUser(), nil
	case http.StatusUnauthorized:
		return users.User{}, SessionExpiredErr
	default:
		return users.User{}, errors.Wrapf(UnexpectedStatusErr, "current user returned %d", status)
	}
}

// VerifyPassword re-checks the user's password, used to unlock a locked
// session without ending it.
func (c *Client) VerifyPassword(ctx context.Context, password string) error {
	status, err := c.doJSON(ctx, http.MethodPost, verifyPasswordEndpoint, verifyPasswordRequest{Password: password}, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return PasswordMismatchErr
	default:
		return errors.Wrapf(UnexpectedStatusErr, "password verification returned %d", status)
	}
}

// RequestPasswordReset starts the reset flow for an email address.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	status, err := c.doJSON(ctx, http.MethodPost, resetRequestEndpoint, passwordResetRequest{Email: email}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return errors.Wrapf(UnexpectedStatusErr, "password reset request returned %d", status)
	}
	return nil
}

// ConfirmPasswordReset completes the reset flow with the emailed token.
func (c *Client) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	status, err := c.doJSON(ctx, http.MethodPost, resetConfirmEndpoint, passwordResetConfirm{Token: token, NewPassword: newPassword}, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusBadRequest, http.StatusUnauthorized:
		return errors.Wrapf(InvalidCredentialsErr, "password reset rejected")
	default:
		return errors.Wrapf(UnexpectedStatusErr, "password reset confirm returned %d", status)
	}
}

// doJSON performs a request with an optional JSON body, decodes a 2xx JSON
// response into out when provided, and returns the HTTP status. Transport
// failures map to ServiceUnavailableErr so callers can treat them as
// NetworkUnavailable rather than a hard auth failure.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrapf(err, "[Client] marshal %s body", path)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, errors.Wrapf(err, "[Client] build %s request", path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.Lock()
	httpClient := c.http
	c.mu.Unlock()

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrapf(ServiceUnavailableErr, "%s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, errors.Wrapf(err, "[Client] decode %s response", path)
		}
	}
	return resp.StatusCode, nil
}
