package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	maxRedirects      = 10
)

var (
	ErrBaseURLMissing = errors.New("base url cannot be empty")
	ErrLoggerMissing  = errors.New("logger cannot be nil")
)

// TokenSource hands out bearer tokens for a scope. A nil source sends no
// Authorization header.
type TokenSource interface {
	Token(ctx context.Context, scope string) (string, error)
}

type Config struct {
	BaseURL string
	Tokens  TokenSource
	Scope   string

	// Timeout bounds every individual request, retries and redirects
	// included.
	Timeout time.Duration

	// MaxRetries caps how many times a 429/503 answer is retried.
	MaxRetries int

	// RequestsPerSecond caps the request rate, retries included. Zero leaves
	// it unbounded.
	RequestsPerSecond float64

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a small JSON/REST client bound to one base URL.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenSource
	scope      string
	timeout    time.Duration
	maxRetries int
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Request describes one call. Body is sent as-is with ContentType; JSON is
// marshalled when set and Body is nil.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	ContentType string
	Body        []byte
	JSON        any
}

// NewClient creates a new client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLMissing
	}
	if cfg.Logger == nil {
		return nil, ErrLoggerMissing
	}
	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL '%s': %w", cfg.BaseURL, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	// Redirects are followed by hand so the method and body survive them.
	hc := *httpClient
	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	logger := cfg.Logger.WithGroup("client")
	logger.Debug("client initialized", "base_url", baseURL.String(), "timeout", timeout, "rps", cfg.RequestsPerSecond)

	return &Client{
		baseURL:    baseURL,
		httpClient: &hc,
		tokens:     cfg.Tokens,
		scope:      cfg.Scope,
		timeout:    timeout,
		maxRetries: maxRetries,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// BaseURL returns the URL every request path is joined onto.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Do sends the request, retrying rate-limited answers, and returns the
// response body of a 2xx answer. Any other status is a *StatusError.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	return withRetries(ctx, c.logger, c.maxRetries, func() ([]byte, error) {
		return c.doRequest(ctx, req)
	})
}

// Exec sends the request and discards the response body.
func (c *Client) Exec(ctx context.Context, req Request) error {
	return withRetriesVoid(ctx, c.logger, c.maxRetries, func() error {
		_, err := c.doRequest(ctx, req)
		return err
	})
}

// GetJSON decodes the body of a GET into target.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, target any) error {
	body, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}
	return decode(body, target)
}

// SendJSON marshals payload, sends it, and decodes the answer into target
// when target is not nil.
func (c *Client) SendJSON(ctx context.Context, method, path string, query url.Values, payload, target any) error {
	body, err := c.Do(ctx, Request{Method: method, Path: path, Query: query, JSON: payload})
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	return decode(body, target)
}

func decode(body []byte, target any) error {
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

func (c *Client) resolve(path string, query url.Values) *url.URL {
	u := *c.baseURL
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		if parsed, err := url.Parse(path); err == nil {
			u = *parsed
		}
	} else if path != "" {
		u = *u.JoinPath(path)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return &u
}

func (c *Client) doRequest(ctx context.Context, r Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for request slot: %w", err)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := r.Body
	contentType := r.ContentType
	if body == nil && r.JSON != nil {
		var err error
		body, err = json.Marshal(r.JSON)
		if err != nil {
			c.logger.Error("failed to marshal request body", "path", r.Path, "method", r.Method, "error", err)
			return nil, fmt.Errorf("failed to marshal request body for %s %s: %w", r.Method, r.Path, err)
		}
		contentType = "application/json"
	}

	var authorization string
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx, c.scope)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain access token: %w", err)
		}
		if token != "" {
			authorization = "Bearer " + token
		}
	}

	currentURL := c.resolve(r.Path, r.Query)

	for redirects := 0; redirects < maxRedirects; redirects++ {
		req, err := http.NewRequestWithContext(ctx, r.Method, currentURL.String(), bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request %s %s: %w", r.Method, currentURL.String(), err)
		}
		if body == nil {
			req.Body = nil
			req.ContentLength = 0
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}

		c.logger.Debug("sending request", "method", r.Method, "url", currentURL.String(), "attempt", redirects+1)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("http request failed", "method", r.Method, "url", currentURL.String(), "error", err)
			return nil, &NetworkError{Method: r.Method, URL: currentURL.String(), Err: err}
		}

		switch resp.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
			http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			if loc == "" {
				return nil, fmt.Errorf("redirect (status %d) missing Location header from %s", resp.StatusCode, currentURL.String())
			}
			next, err := currentURL.Parse(loc)
			if err != nil {
				return nil, fmt.Errorf("failed to parse redirect Location '%s': %w", loc, err)
			}
			c.logger.Info("request redirected", "from_url", currentURL.String(), "to_url", next.String(), "status_code", resp.StatusCode)
			currentURL = next
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, &NetworkError{Method: r.Method, URL: currentURL.String(), Err: readErr}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &StatusError{
				Method:     r.Method,
				URL:        currentURL.String(),
				StatusCode: resp.StatusCode,
				Body:       string(respBody),
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
				return nil, &ErrRateLimited{
					RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
					Status:     statusErr,
				}
			}
			c.logger.Debug("received non-2xx status code", "method", r.Method, "url", currentURL.String(), "status_code", resp.StatusCode)
			return nil, statusErr
		}

		c.logger.Debug("request successful", "method", r.Method, "url", currentURL.String(), "status_code", resp.StatusCode)
		return respBody, nil
	}

	c.logger.Error("too many redirects", "final_url_attempt", currentURL.String(), "method", r.Method)
	return nil, fmt.Errorf("stopped after %d redirects, last URL: %s", maxRedirects, currentURL.String())
}
