package github

import (
	"context"
	"net/http"
	"time"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/types"
)

// HTTPDoer provides an interface for making HTTP requests.
// This allows us to mock HTTP calls in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TimeProvider provides an interface for time operations.
// This allows us to control time in tests.
type TimeProvider interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker represents a time.Ticker interface for testability.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// API defines operations for fetching repository data from GitHub.
type API interface {
	// Repository data operations
	PullRequests(ctx context.Context, ref RepoRef, maxPRs int, onProgress func(done, total int)) ([]types.PullRequest, error)
	Issues(ctx context.Context, ref RepoRef) ([]types.Issue, error)
	Contributors(ctx context.Context, ref RepoRef) ([]types.Contributor, error)
	IsFirstTimeContributor(ctx context.Context, ref RepoRef, login string) (bool, error)

	// Rate limit state observed on the most recent response
	RateLimit() *types.RateLimit
}
