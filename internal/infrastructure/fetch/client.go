package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"PageVault/internal/ports"
)

// maxBodyBytes caps response reads; pages and images beyond this are cut off.
const maxBodyBytes = 20 << 20

// Client is the outbound HTTP collaborator: page fetches, image fetches, and
// redirect-chain resolution. A browser-like User-Agent avoids trivial
// blocking by origin servers.
type Client struct {
	client    *http.Client
	userAgent string
}

var _ ports.Fetcher = (*Client)(nil)

// NewClient builds a client with the given total-request timeout.
func NewClient(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = "PageVault/1.0"
	}
	return &Client{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch performs a GET and returns the status, body, and headers. Non-2xx
// statuses are results, not errors; callers decide what aborts.
func (c *Client) Fetch(ctx context.Context, url string) (*ports.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", url, err)
	}

	return &ports.FetchResult{
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header,
	}, nil
}

// ResolveRedirects follows the redirect chain and returns the final URL.
// The body is discarded; only the destination matters.
func (c *Client) ResolveRedirects(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	return resp.Request.URL.String(), nil
}
