// Package github provides a rate-limit-aware GitHub API client with
// conditional-request caching and bounded retry.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/cache"
	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/types"

	"github.com/codeGROOVE-dev/retry"
)

const (
	apiBase   = "https://api.github.com"
	userAgent = "OSS-Maintainer-Elastic/2.0"

	rateLimitBuffer = 3                // remaining requests below which we proactively wait
	maxQuotaWait    = 15 * time.Minute // never block longer than this for a quota reset

	maxRetryAttempts  = 5
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 30 * time.Second
	maxRetryJitter    = 500 * time.Millisecond

	maxErrorBodyBytes = 200 // error body excerpt kept on APIError
)

// errTransport wraps network-level failures so RetryIf can distinguish them
// from non-retryable API responses.
var errTransport = errors.New("transport error")

// cachedResponse is one ETag cache entry: the validator plus the body it
// validated.
type cachedResponse struct {
	etag string
	body []byte
}

// Client fetches repository data from the GitHub REST API. All requests
// share one rate-limit view, one ETag cache, and one retry policy.
type Client struct {
	httpClient HTTPDoer
	clock      TimeProvider
	etags      *cache.Cache
	firstTime  *cache.ContributorCache
	rateLimit  *types.RateLimit

	token             string
	currentOwner      string
	appID             string
	privateKeyContent []byte
	jwtToken          string
	tokenExpiry       time.Time
	installTokens     map[string]string
	installExpiry     map[string]time.Time
	installIDs        map[string]int64

	retryAttempts uint
	retryDelay    time.Duration
	maxRetryWait  time.Duration

	mu        sync.Mutex
	tokenMu   sync.Mutex
	isAppAuth bool
}

// Config holds configuration for creating a new GitHub client.
type Config struct {
	Token       string // Personal access token; empty means unauthenticated
	AppID       string
	AppKeyPath  string
	HTTPTimeout time.Duration
	CacheTTL    time.Duration
	UseAppAuth  bool
}

// New creates a GitHub client using either a personal access token or
// GitHub App authentication. An empty token is allowed; unauthenticated
// requests run against the much smaller anonymous quota.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		clock:      realClock{},
		// ETag entries never expire; 304 revalidation keeps them current.
		etags:         cache.New(0),
		firstTime:     cache.NewContributorCache(cfg.CacheTTL),
		token:         cfg.Token,
		retryAttempts: maxRetryAttempts,
		retryDelay:    initialRetryDelay,
		maxRetryWait:  maxRetryDelay,
		installTokens: make(map[string]string),
		installExpiry: make(map[string]time.Time),
		installIDs:    make(map[string]int64),
	}
	if cfg.UseAppAuth {
		if err := c.initAppAuth(ctx, cfg.AppID, cfg.AppKeyPath); err != nil {
			return nil, fmt.Errorf("app auth setup: %w", err)
		}
	} else if cfg.Token != "" {
		if err := validateToken(cfg.Token); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RateLimit returns a copy of the rate-limit state observed on the most
// recent response, or nil before the first response.
func (c *Client) RateLimit() *types.RateLimit {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rateLimit == nil {
		return nil
	}
	rl := *c.rateLimit
	return &rl
}

// updateRateLimit refreshes the shared rate-limit view from response
// headers. Every response updates it, including errors and 304s.
func (c *Client) updateRateLimit(resp *http.Response) {
	remaining := resp.Header.Get("x-ratelimit-remaining")
	limit := resp.Header.Get("x-ratelimit-limit")
	reset := resp.Header.Get("x-ratelimit-reset")
	if remaining == "" || limit == "" || reset == "" {
		return
	}
	rem, err1 := strconv.Atoi(remaining)
	lim, err2 := strconv.Atoi(limit)
	rst, err3 := strconv.ParseInt(reset, 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return
	}
	used, _ := strconv.Atoi(resp.Header.Get("x-ratelimit-used"))
	c.mu.Lock()
	c.rateLimit = &types.RateLimit{Remaining: rem, Limit: lim, Reset: rst, Used: used}
	c.mu.Unlock()
}

// waitForQuota blocks until the rate-limit window resets when remaining
// quota has dropped below the buffer. Waits longer than maxQuotaWait are
// skipped; the request proceeds and takes its chances.
func (c *Client) waitForQuota(ctx context.Context) error {
	rl := c.RateLimit()
	if rl == nil || rl.Remaining >= rateLimitBuffer {
		return nil
	}
	wait := time.Duration(rl.Reset-c.clock.Now().Unix())*time.Second + time.Second
	if wait <= 0 || wait >= maxQuotaWait {
		return nil
	}
	slog.Info("Rate limit low, waiting for reset",
		"component", "github", "remaining", rl.Remaining, "wait", wait)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(wait):
		return nil
	}
}

// drainAndCloseBody drains and closes an HTTP response body to prevent
// resource leaks.
func drainAndCloseBody(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		slog.Warn("Failed to drain response body", "error", err)
	}
	if err := body.Close(); err != nil {
		slog.Warn("Failed to close response body", "error", err)
	}
}

// getJSON fetches apiURL and decodes the response body into out.
func (c *Client) getJSON(ctx context.Context, apiURL string, out any) error {
	body, err := c.get(ctx, apiURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", apiURL, err)
	}
	return nil
}

// get performs one logical GET with quota gating, conditional requests,
// and bounded retry. A 304 response is served from the ETag cache without
// counting as a fresh fetch.
func (c *Client) get(ctx context.Context, apiURL string) ([]byte, error) {
	if err := c.waitForQuota(ctx); err != nil {
		return nil, err
	}

	var cached *cachedResponse
	if v, ok := c.etags.Get(apiURL); ok {
		entry := v.(cachedResponse)
		cached = &entry
	}

	var result []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "application/vnd.github.v3+json")
			req.Header.Set("User-Agent", userAgent)
			authToken, err := c.authToken(ctx)
			if err != nil {
				return err
			}
			if authToken != "" {
				req.Header.Set("Authorization", "Bearer "+authToken)
			}
			if cached != nil {
				req.Header.Set("If-None-Match", cached.etag)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("%w: %w", errTransport, err)
			}
			c.updateRateLimit(resp)

			if resp.StatusCode == http.StatusNotModified && cached != nil {
				drainAndCloseBody(resp.Body)
				slog.Debug("Cache hit", "component", "github", "url", apiURL)
				result = cached.body
				return nil
			}

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
				drainAndCloseBody(resp.Body)
				apiErr := &APIError{
					Status:         resp.StatusCode,
					URL:            apiURL,
					Body:           string(excerpt),
					RetryAfter:     parseRetryAfter(resp),
					quotaExhausted: resp.Header.Get("x-ratelimit-remaining") == "0",
				}
				if apiErr.Throttled() {
					slog.Warn("Rate limited, will retry",
						"component", "github", "status", resp.StatusCode, "url", apiURL)
				}
				return apiErr
			}

			body, err := io.ReadAll(resp.Body)
			drainAndCloseBody(resp.Body)
			if err != nil {
				return fmt.Errorf("%w: read body: %w", errTransport, err)
			}
			if etag := resp.Header.Get("ETag"); etag != "" {
				c.etags.Set(apiURL, cachedResponse{etag: etag, body: body})
			}
			result = body
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(c.maxRetryWait),
		retry.DelayType(c.delayFor),
		retry.MaxJitter(maxRetryJitter),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("Retry attempt",
				"component", "retry", "url", apiURL,
				"attempt", n+1, "max_attempts", c.retryAttempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
	)
	if err != nil {
		return nil, describeFailure(err, c.retryAttempts)
	}
	return result, nil
}

// delayFor honors Retry-After when the server sent one, and otherwise falls
// back to exponential backoff with jitter.
func (c *Client) delayFor(n uint, err error, config *retry.Config) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	return retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)(n, err, config)
}

func parseRetryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
