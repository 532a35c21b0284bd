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
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/nkiryanov/userdir/internal/logger"
)

const (
	DefaultRefreshPath = "/api/jwt/refresh"
	DefaultLoginPath   = "/api/auth-gateway/login"
	DefaultLogoutPath  = "/api/jwt/logout"
)

// Non 2xx response of the API
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d message=%s", e.Status, e.Message)
}

type Option func(c *Client)

// Client keeps access token in memory and refreshes it once on 401
// Parallel requests that hit 401 together refresh independently
type Client struct {
	baseURL string
	http    *http.Client
	flag    FlagStore
	logger  logger.Logger

	mu    sync.RWMutex
	token string
}

// Used client gets a cookie jar if it has none, refresh cookie lives there
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithFlagStore(f FlagStore) Option {
	return func(c *Client) { c.flag = f }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base url is required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		flag:    &MemoryFlag{},
		logger:  logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("can't create cookie jar. Err: %w", err)
		}
		hc := *c.http
		hc.Jar = jar
		c.http = &hc
	}

	return c, nil
}

// Token returns current access token, empty if there is none
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// URL joins the path with the base url
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Do sends request with bearer token. On 401 it refreshes the token once and retries the request once
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := rewindable(req); err != nil {
		return nil, err
	}

	req = req.Clone(req.Context())
	if req.Header.Get("Authorization") == "" {
		if token := c.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || c.isRefresh(req) {
		return resp, nil
	}

	mayRefresh, err := c.flag.Get()
	if err != nil {
		c.logger.Warn("can't read refresh flag", "error", err)
	}
	if !mayRefresh {
		return resp, nil
	}

	// Keep original 401 to return it when refresh fails
	if err := buffer(resp); err != nil {
		return nil, err
	}

	ok, err := c.refresh(req.Context())
	if err != nil {
		c.logger.Warn("token refresh failed", "error", err)
		return resp, nil
	}
	if !ok {
		return resp, nil
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("can't rewind request body. Err: %w", err)
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+c.Token())

	return c.http.Do(retry)
}

func (c *Client) isRefresh(req *http.Request) bool {
	return strings.HasSuffix(req.URL.Path, DefaultRefreshPath)
}

// refresh reports false when the server rejected the refresh cookie
func (c *Client) refresh(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(DefaultRefreshPath), nil)
	if err != nil {
		return false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		c.forget()
		return false, nil
	default:
		return false, readAPIError(resp)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("can't decode refresh response. Err: %w", err)
	}
	if body.AccessToken == "" {
		return false, errors.New("refresh response has no access token")
	}

	c.setToken(body.AccessToken)
	if err := c.flag.Set(true); err != nil {
		c.logger.Warn("can't store refresh flag", "error", err)
	}
	return true, nil
}

func (c *Client) forget() {
	c.setToken("")
	if err := c.flag.Set(false); err != nil {
		c.logger.Warn("can't clear refresh flag", "error", err)
	}
}

type LoginRequest struct {
	Provider string `json:"provider,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address,omitempty"`
	Role     string `json:"role"`
}

// Password login carries token and user, oauth login carries RedirectURL
type LoginResponse struct {
	Provider    string `json:"provider"`
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
	RedirectURL string `json:"redirectUrl"`
}

// Login through the auth gateway
func (c *Client) Login(ctx context.Context, r LoginRequest) (LoginResponse, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return LoginResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(DefaultLoginPath), bytes.NewReader(payload))
	if err != nil {
		return LoginResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return LoginResponse{}, err
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return LoginResponse{}, readAPIError(resp)
	}

	var res LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return LoginResponse{}, fmt.Errorf("can't decode login response. Err: %w", err)
	}

	if res.AccessToken != "" {
		c.setToken(res.AccessToken)
		if err := c.flag.Set(true); err != nil {
			c.logger.Warn("can't store refresh flag", "error", err)
		}
	}
	return res, nil
}

// Logout revokes refresh token on the server and forgets local state whatever the server says
func (c *Client) Logout(ctx context.Context) error {
	defer c.forget()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(DefaultLogoutPath), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	return nil
}

// GetJSON sends authenticated GET and decodes response into out
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(path), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("can't decode response. Err: %w", err)
	}
	return nil
}

// Make request body readable twice
func rewindable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return fmt.Errorf("can't read request body. Err: %w", err)
	}
	_ = req.Body.Close()

	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

func buffer(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return fmt.Errorf("can't read response body. Err: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return nil
}

func readAPIError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Message == "" {
		body.Message = strings.TrimSpace(string(data))
	}
	return &APIError{Status: resp.StatusCode, Message: body.Message}
}
