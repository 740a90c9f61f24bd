package github

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRepoRef is returned when a repository reference cannot be parsed.
var ErrInvalidRepoRef = errors.New("invalid repository reference")

// ErrExhaustedRetries marks a request that kept failing with retryable
// errors until the attempt budget ran out. Terminal failures on the first
// attempt do not carry it.
var ErrExhaustedRetries = errors.New("retry budget exhausted")

// APIError is a non-2xx response from the GitHub API. The body excerpt is
// truncated to keep log lines bounded.
type APIError struct {
	URL        string
	Body       string
	RetryAfter time.Duration
	Status     int
	// quotaExhausted is true when the response carried x-ratelimit-remaining: 0.
	quotaExhausted bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api error %d for %s: %s", e.Status, e.URL, e.Body)
}

// Throttled reports whether this error is a rate-limit rejection that should
// be retried after a wait. A 403 counts only when quota is exhausted or the
// server sent Retry-After; otherwise it is a permission failure.
func (e *APIError) Throttled() bool {
	if e.Status == 429 {
		return true
	}
	return e.Status == 403 && (e.quotaExhausted || e.RetryAfter > 0)
}

// AuthFailure reports whether this error indicates bad or insufficient
// credentials rather than a transient condition.
func (e *APIError) AuthFailure() bool {
	if e.Status == 401 {
		return true
	}
	return e.Status == 403 && !e.Throttled()
}

// Retryable reports whether the request should be attempted again.
func (e *APIError) Retryable() bool {
	return e.Throttled() || e.Status >= 500
}

// IsAuthFailure reports whether err wraps an authentication failure.
func IsAuthFailure(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.AuthFailure()
}

// IsUpstreamUnavailable reports whether err wraps a 5xx response, which
// usually means GitHub itself is degraded rather than the request being bad.
func IsUpstreamUnavailable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 500
}

// retryable reports whether the request that produced err should be
// attempted again.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return errors.Is(err, errTransport)
}

// describeFailure translates a terminal request failure into an actionable
// error: an exhausted retry budget gets the sentinel, credential and
// upstream failures get a remediation hint. The original error chain stays
// reachable through errors.As and errors.Is.
func describeFailure(err error, attempts uint) error {
	if retryable(err) {
		err = fmt.Errorf("%w after %d attempts: %w", ErrExhaustedRetries, attempts, err)
	}
	switch {
	case IsAuthFailure(err):
		return fmt.Errorf("%w: the token may be invalid or missing repo read scope, check GITHUB_TOKEN", err)
	case IsUpstreamUnavailable(err):
		return fmt.Errorf("%w: GitHub may be degraded, retry later", err)
	}
	return err
}
