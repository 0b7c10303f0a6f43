// Package auth talks to the textbook backend's auth gateway: sign-in, sign-up,
// sign-out and session checks.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/kalambet/primer/internal/metrics"
)

const (
	defaultSignInError = "Sign in failed"
	defaultSignUpError = "Sign up failed"
)

// ErrSignOutFailed is returned when the gateway rejects a sign-out.
var ErrSignOutFailed = errors.New("sign out failed")

// TokenSource supplies the stored bearer credential. config.Keychain implements it.
type TokenSource interface {
	Token() (string, error)
}

// Client is the auth gateway client. The zero value is not usable; use New.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	metrics    *metrics.Metrics
}

type Option func(*Client)

// WithTokenSource attaches a bearer credential to session checks when one is stored.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewHTTPClient returns an http.Client with a cookie jar, so session cookies set
// by the gateway are sent back on later requests. It has no timeout.
func NewHTTPClient() *http.Client {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New only fails on invalid options.
		panic(fmt.Sprintf("auth: creating cookie jar: %v", err))
	}
	return &http.Client{Jar: jar}
}

// New creates a Client for the gateway at baseURL. A nil httpClient gets
// NewHTTPClient().
func New(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SignIn exchanges credentials for a session. Rejections come back in
// Result.Error with a nil error; the error return is reserved for transport
// failures.
func (c *Client) SignIn(ctx context.Context, email, password string) (Result, error) {
	in := credentials{Email: strings.TrimSpace(email), Password: password}
	if verr := checkInput(in); verr != nil {
		return Result{Error: verr}, nil
	}
	return c.authenticate(ctx, metrics.EndpointSignIn, "/api/auth/signin", in, defaultSignInError)
}

// SignUp registers a new account and returns its first session.
func (c *Client) SignUp(ctx context.Context, reg Registration) (Result, error) {
	reg.Email = strings.TrimSpace(reg.Email)
	if verr := checkInput(reg); verr != nil {
		return Result{Error: verr}, nil
	}
	return c.authenticate(ctx, metrics.EndpointSignUp, "/api/auth/signup", reg, defaultSignUpError)
}

func (c *Client) authenticate(ctx context.Context, endpoint, path string, payload any, fallback string) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.Observe(endpoint, start, metrics.OutcomeTransport)
		return Result{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.Observe(endpoint, start, metrics.Outcome(resp.StatusCode, nil))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Error: &Error{Message: errorMessage(data, fallback)}}, nil
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Result{}, fmt.Errorf("decoding session: %w", err)
	}
	return Result{Session: &sess}, nil
}

// SignOut ends the gateway session.
func (c *Client) SignOut(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/signout", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.attachBearer(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.Observe(metrics.EndpointSignOut, start, metrics.OutcomeTransport)
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	c.metrics.Observe(metrics.EndpointSignOut, start, metrics.Outcome(resp.StatusCode, nil))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w (HTTP %d)", ErrSignOutFailed, resp.StatusCode)
	}
	return nil
}

// GetSession checks the current session. Any non-2xx response yields an empty
// SessionInfo and a nil error.
func (c *Client) GetSession(ctx context.Context) (SessionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/session", nil)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("creating request: %w", err)
	}
	c.attachBearer(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.Observe(metrics.EndpointSession, start, metrics.OutcomeTransport)
		return SessionInfo{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.Observe(metrics.EndpointSession, start, metrics.Outcome(resp.StatusCode, nil))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return SessionInfo{}, nil
	}

	var info SessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return SessionInfo{}, fmt.Errorf("decoding session: %w", err)
	}
	if info.User != nil && !info.Authenticated {
		info.Authenticated = true
	}
	return info, nil
}

func (c *Client) attachBearer(req *http.Request) {
	if c.tokens == nil {
		return
	}
	tok, err := c.tokens.Token()
	if err != nil || tok == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+tok)
}

// errorMessage extracts a message from an error body: "message", then a string
// "detail", then the first entry of a validation "detail" list.
func errorMessage(body []byte, fallback string) string {
	var payload struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallback
	}
	if payload.Message != "" {
		return payload.Message
	}
	if len(payload.Detail) == 0 {
		return fallback
	}
	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err == nil && detail != "" {
		return detail
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil && len(items) > 0 && items[0].Msg != "" {
		return items[0].Msg
	}
	return fallback
}
