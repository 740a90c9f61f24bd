// Package testutil provides mock implementations and testing utilities for
// the maintainer intelligence service.
package testutil

import (
	"context"
	"sync"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/github"
	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/types"
)

// MockGitHubClient implements the pipeline's GitHub surface for testing.
// It's a programmable mock: configure the data per repo, then assert on
// the recorded calls.
type MockGitHubClient struct {
	pullRequests map[string][]types.PullRequest
	issues       map[string][]types.Issue
	contributors map[string][]types.Contributor
	firstTimers  map[string]bool
	errors       map[string]error
	rateLimit    *types.RateLimit
	currentOwner string
	callLog      []string
	mu           sync.RWMutex
}

// NewMockGitHubClient creates a new MockGitHubClient.
func NewMockGitHubClient() *MockGitHubClient {
	return &MockGitHubClient{
		pullRequests: make(map[string][]types.PullRequest),
		issues:       make(map[string][]types.Issue),
		contributors: make(map[string][]types.Contributor),
		firstTimers:  make(map[string]bool),
		errors:       make(map[string]error),
	}
}

// SetPullRequests configures the PRs returned for a repo.
func (m *MockGitHubClient) SetPullRequests(repo string, prs []types.PullRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pullRequests[repo] = prs
}

// SetIssues configures the issues returned for a repo.
func (m *MockGitHubClient) SetIssues(repo string, issues []types.Issue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[repo] = issues
}

// SetContributors configures the contributors returned for a repo.
func (m *MockGitHubClient) SetContributors(repo string, contributors []types.Contributor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contributors[repo] = contributors
}

// SetFirstTimeContributor marks a login as a first-time contributor to a repo.
func (m *MockGitHubClient) SetFirstTimeContributor(repo, login string, firstTime bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.firstTimers[repo+":"+login] = firstTime
}

// SetError configures an error for an operation ("pulls", "issues",
// "contributors", "first_time").
func (m *MockGitHubClient) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[op] = err
}

// SetRateLimit configures the rate limit snapshot.
func (m *MockGitHubClient) SetRateLimit(rl *types.RateLimit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimit = rl
}

// SetOwner records the owner scope.
func (m *MockGitHubClient) SetOwner(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentOwner = owner
	m.callLog = append(m.callLog, "SetOwner:"+owner)
}

// Owner returns the most recently set owner scope.
func (m *MockGitHubClient) Owner() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentOwner
}

// PullRequests returns the configured PRs, reporting full progress once.
func (m *MockGitHubClient) PullRequests(
	_ context.Context, ref github.RepoRef, maxPRs int, onProgress func(done, total int),
) ([]types.PullRequest, error) {
	m.mu.Lock()
	m.callLog = append(m.callLog, "PullRequests:"+ref.String())
	prs := m.pullRequests[ref.String()]
	err := m.errors["pulls"]
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if maxPRs > 0 && len(prs) > maxPRs {
		prs = prs[:maxPRs]
	}
	if onProgress != nil && len(prs) > 0 {
		onProgress(len(prs), len(prs))
	}
	return prs, nil
}

// Issues returns the configured issues.
func (m *MockGitHubClient) Issues(_ context.Context, ref github.RepoRef) ([]types.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callLog = append(m.callLog, "Issues:"+ref.String())
	if err := m.errors["issues"]; err != nil {
		return nil, err
	}
	return m.issues[ref.String()], nil
}

// Contributors returns the configured contributors.
func (m *MockGitHubClient) Contributors(_ context.Context, ref github.RepoRef) ([]types.Contributor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callLog = append(m.callLog, "Contributors:"+ref.String())
	if err := m.errors["contributors"]; err != nil {
		return nil, err
	}
	return m.contributors[ref.String()], nil
}

// IsFirstTimeContributor reports the configured flag for the login.
func (m *MockGitHubClient) IsFirstTimeContributor(_ context.Context, ref github.RepoRef, login string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callLog = append(m.callLog, "IsFirstTimeContributor:"+ref.String()+":"+login)
	if err := m.errors["first_time"]; err != nil {
		return false, err
	}
	return m.firstTimers[ref.String()+":"+login], nil
}

// RateLimit returns the configured rate limit snapshot.
func (m *MockGitHubClient) RateLimit() *types.RateLimit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rateLimit
}

// Calls returns the recorded call log.
func (m *MockGitHubClient) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	calls := make([]string, len(m.callLog))
	copy(calls, m.callLog)
	return calls
}
