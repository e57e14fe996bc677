package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/spaceflow-dev/spaceflow/internal/session"
)

// DefaultTimeout bounds every auth call
const DefaultTimeout = 15 * time.Second

var (
	// ErrInvalidCredentials is returned when the auth service rejects a login
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrRateLimited is returned when the auth service throttles login attempts
	ErrRateLimited = errors.New("too many login attempts")
)

// Client talks to the auth service. Each client owns a cookie jar, so the
// session cookie set on login is sent with every later call.
type Client struct {
	baseURL    *url.URL
	cookieName string
	httpClient *http.Client
}

var _ session.Backend = (*Client)(nil)

// New creates a client for the auth service at baseURL. cookieName is the
// session cookie the service sets.
func New(baseURL, cookieName string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid auth base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid auth base URL %q: scheme and host required", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		baseURL:    u,
		cookieName: cookieName,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Jar:     jar,
		},
	}, nil
}

// SetHTTPClient replaces the transport; the client's cookie jar is kept
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	httpClient.Jar = c.httpClient.Jar
	c.httpClient = httpClient
}

// LoginRequest is the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserDTO is the user shape returned by the auth service
type UserDTO struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// LoginResponse is the body of a successful login
type LoginResponse struct {
	User UserDTO `json:"user"`
}

// ValidateResponse carries a null user when there is no session
type ValidateResponse struct {
	User *UserDTO `json:"user"`
}

func (d UserDTO) toUser() *session.User {
	return &session.User{
		ID:    d.ID,
		Role:  d.Role,
		Email: d.Email,
		Name:  d.Name,
	}
}

// Login posts credentials; the response cookie lands in the jar
func (c *Client) Login(ctx context.Context, creds session.Credentials) (*session.User, error) {
	jsonData, err := json.Marshal(LoginRequest{Email: creds.Email, Password: creds.Password})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/auth/login"), bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		io.Copy(io.Discard, resp.Body)
		return nil, ErrInvalidCredentials
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w (retry after %ss)", ErrRateLimited, resp.Header.Get("Retry-After"))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("login failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if loginResp.User.ID == "" {
		return nil, fmt.Errorf("login response carried no user")
	}

	return loginResp.User.toUser(), nil
}

// Validate asks whether the jar's cookie is still a live session. Transport
// and status failures are returned as errors; the caller treats them as no
// session.
func (c *Client) Validate(ctx context.Context) (*session.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/auth/validate"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("validate failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var validateResp ValidateResponse
	if err := json.NewDecoder(resp.Body).Decode(&validateResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if validateResp.User == nil || validateResp.User.ID == "" {
		return nil, nil
	}

	return validateResp.User.toUser(), nil
}

// Logout ends the session on the server
func (c *Client) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/auth/logout"), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("logout failed (status %d)", resp.StatusCode)
	}
	return nil
}

// SessionCookie returns the session cookie value held in the jar, or "" when
// there is none
func (c *Client) SessionCookie() string {
	for _, ck := range c.httpClient.Jar.Cookies(c.baseURL) {
		if ck.Name == c.cookieName {
			return ck.Value
		}
	}
	return ""
}

// RestoreSessionCookie puts a previously exported cookie back into the jar
func (c *Client) RestoreSessionCookie(value string) {
	if value == "" {
		return
	}
	c.httpClient.Jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:  c.cookieName,
		Value: value,
		Path:  "/",
	}})
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}
