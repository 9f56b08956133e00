package fetch

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"
)

// defaultUserAgents rotate per request to avoid provider blocking
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// maxBodyBytes bounds how much provider markup we keep in memory
const maxBodyBytes = 4 << 20

// sleep is a seam for tests
var sleep = time.Sleep

// HTTPConfig tunes the plain HTTP fetcher
type HTTPConfig struct {
	// Timeout bounds each request, default 10s
	Timeout time.Duration
	// Retries caps attempts per fetch, default 3
	Retries int
	// RetryDelay is the base delay between attempts. 429 responses back
	// off linearly as attempt*RetryDelay. Default 2500ms
	RetryDelay time.Duration
	// UserAgents overrides the rotation pool
	UserAgents []string
}

func (c *HTTPConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2500 * time.Millisecond
	}
	if len(c.UserAgents) == 0 {
		c.UserAgents = defaultUserAgents
	}
}

// HTTPFetcher is a pooled, retrying plain HTTP client. Sufficient for
// server-rendered provider pages
type HTTPFetcher struct {
	client *http.Client
	cfg    HTTPConfig
}

// NewHTTP constructs an HTTPFetcher with pooled connections
func NewHTTP(cfg HTTPConfig) *HTTPFetcher {
	cfg.defaults()
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg: cfg,
	}
}

// Fetch implements Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) Outcome {
	var lastReason string
	for attempt := 0; attempt < f.cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Transient("fetch canceled: " + err.Error())
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return NotFound("unrequestable URL: " + err.Error())
		}
		req.Header.Set("User-Agent", f.cfg.UserAgents[rand.IntN(len(f.cfg.UserAgents))])
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")

		resp, err := f.client.Do(req)
		if err != nil {
			lastReason = "request failed: " + err.Error()
			if attempt < f.cfg.Retries-1 {
				sleep(f.cfg.RetryDelay)
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			closeBody(resp)
			if err != nil {
				lastReason = "body read failed: " + err.Error()
				continue
			}
			return Found(&Page{URL: resp.Request.URL.String(), Body: string(body)})
		case resp.StatusCode == http.StatusNotFound:
			closeBody(resp)
			return NotFound("page not found")
		case resp.StatusCode == http.StatusTooManyRequests:
			closeBody(resp)
			lastReason = "rate limited"
			if attempt < f.cfg.Retries-1 {
				sleep(time.Duration(attempt+1) * f.cfg.RetryDelay)
			}
		default:
			closeBody(resp)
			lastReason = fmt.Sprintf("unexpected status %d", resp.StatusCode)
			if attempt < f.cfg.Retries-1 {
				sleep(f.cfg.RetryDelay)
			}
		}
	}
	return Transient(lastReason)
}

// Close implements Fetcher
func (f *HTTPFetcher) Close() {
	f.client.CloseIdleConnections()
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
