// Package vaultapi is the REST client for the VaultLinks API. Every
// authenticated call carries the session token in the query string.
package vaultapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/vaultlinks/internal/apperr"
	"github.com/starford/vaultlinks/internal/models"
)

// StatusError is returned for non-2xx responses. It unwraps to the matching
// apperr sentinel when there is one.
type StatusError struct {
	Code int
	Body string
	err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("vaultapi: status %d: %s", e.Code, strings.TrimSpace(e.Body))
}

func (e *StatusError) Unwrap() error { return e.err }

// Client talks to the API rooted at a base URL such as http://host/api.
type Client struct {
	base       *url.URL
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("vaultapi: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("vaultapi: base url must be absolute: %q", baseURL)
	}
	c := &Client{
		base:       u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Me resolves the user behind token (GET /auth/me).
func (c *Client) Me(ctx context.Context, token string) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateProfile exchanges a one-time identity session id for a session token
// (POST /auth/profile).
func (c *Client) CreateProfile(ctx context.Context, sessionID string) (*models.AuthResult, error) {
	var res models.AuthResult
	body := map[string]string{"session_id": sessionID}
	if err := c.do(ctx, http.MethodPost, "/auth/profile", "", body, &res); err != nil {
		return nil, err
	}
	if res.SessionToken == "" {
		return nil, fmt.Errorf("vaultapi: profile response has no session token")
	}
	return &res, nil
}

// ListLinks returns every link owned by the session (GET /vault-links).
func (c *Client) ListLinks(ctx context.Context, token string) ([]models.VaultLink, error) {
	var links []models.VaultLink
	if err := c.do(ctx, http.MethodGet, "/vault-links", token, nil, &links); err != nil {
		return nil, err
	}
	if links == nil {
		links = []models.VaultLink{}
	}
	return links, nil
}

// CreateLink stores a new link (POST /vault-links).
func (c *Client) CreateLink(ctx context.Context, token string, in models.LinkInput) (*models.VaultLink, error) {
	var link models.VaultLink
	if err := c.do(ctx, http.MethodPost, "/vault-links", token, in, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// DeleteLink removes a link (DELETE /vault-links/{id}).
func (c *Client) DeleteLink(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/vault-links/"+url.PathEscape(id), token, nil, nil)
}

func (c *Client) endpoint(path, token string) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if token != "" {
		q := url.Values{}
		q.Set("session_token", token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("vaultapi: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, token), body)
	if err != nil {
		return fmt.Errorf("vaultapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vaultapi: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return statusError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("vaultapi: decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(code int, body []byte) *StatusError {
	e := &StatusError{Code: code, Body: string(body)}
	switch code {
	case http.StatusUnauthorized:
		e.err = apperr.ErrUnauthorized
	case http.StatusNotFound:
		e.err = apperr.ErrNotFound
	case http.StatusServiceUnavailable:
		var payload struct {
			Offline bool `json:"offline"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Offline {
			e.err = apperr.ErrOffline
		}
	}
	return e
}

// IsOffline reports whether err came from the offline cache worker.
func IsOffline(err error) bool {
	return errors.Is(err, apperr.ErrOffline)
}
