package spond

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	appLog "spondcal/internal/log"
	"spondcal/internal/model"
)

// DefaultBaseURL is the public Spond core API root.
const DefaultBaseURL = "https://api.spond.com/core/v1/"

const defaultTimeout = 15 * time.Second

// Client manages one authenticated identity against the Spond API.
//
// A Client starts unauthenticated. A successful Login stores the access
// token; a failed Login leaves whatever was held before untouched. The
// token is guarded by a mutex that is held across the login round-trip,
// so concurrent EnsureLoggedIn callers wait for and reuse a single login.
type Client struct {
	baseURL   string
	creds     model.Credentials
	transport Transport

	mu    sync.Mutex
	token string
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport replaces the default net/http transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// NewClient creates a Client for the given credentials. An empty baseURL
// selects DefaultBaseURL; a trailing slash is added if missing.
func NewClient(baseURL string, creds model.Credentials, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	c := &Client{
		baseURL:   baseURL,
		creds:     creds,
		transport: NewHTTPTransport(defaultTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	LoginToken *string `json:"loginToken"`
}

// Login always performs a fresh login and replaces the held token.
func (c *Client) Login(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

// EnsureLoggedIn logs in only if no token is currently held.
func (c *Client) EnsureLoggedIn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return nil
	}
	_, err := c.loginLocked(ctx)
	return err
}

func (c *Client) loginLocked(ctx context.Context) (string, error) {
	body, err := json.Marshal(loginRequest{
		Email:    c.creds.Email,
		Password: c.creds.Password,
	})
	if err != nil {
		return "", &AuthError{Reason: "encode request", Err: err}
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	appLog.Debug("spond login start", "url", c.baseURL+"login")

	resp, err := c.transport.Post(ctx, c.baseURL+"login", header, body)
	if err != nil {
		appLog.Error("spond login request failed", err)
		return "", &AuthError{Reason: "request failed", Err: err}
	}

	var lr loginResponse
	if err := json.Unmarshal(resp, &lr); err != nil {
		appLog.Error("spond login response is not JSON", err)
		return "", &AuthError{Reason: "invalid response", Err: err}
	}
	if lr.LoginToken == nil || *lr.LoginToken == "" {
		err := errors.New("loginToken missing from response")
		appLog.Error("spond login response without token", err)
		return "", &AuthError{Reason: "invalid response", Err: err}
	}

	c.token = *lr.LoginToken
	appLog.Info("spond login success")
	return c.token, nil
}

// AuthHeaders returns the headers for an authenticated request. It fails
// with ErrNotLoggedIn when no token is held.
func (c *Client) AuthHeaders() (http.Header, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token == "" {
		return nil, ErrNotLoggedIn
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", "Bearer "+token)
	return h, nil
}

// Token returns the currently held access token, or "".
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Authenticated reports whether a token is held.
func (c *Client) Authenticated() bool {
	return c.Token() != ""
}

// get performs an authenticated GET of path relative to the base URL,
// logging in first if needed.
func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
	if err := c.EnsureLoggedIn(ctx); err != nil {
		return nil, err
	}
	header, err := c.AuthHeaders()
	if err != nil {
		return nil, err
	}
	url := c.baseURL + path
	body, err := c.transport.Get(ctx, url, header)
	if err != nil {
		return nil, &TransportError{Operation: op, URL: url, Err: err}
	}
	return body, nil
}
