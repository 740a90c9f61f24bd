package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/store"
	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/types"
)

// FakeStore implements store.DocumentStore in memory. Documents are keyed
// the same way the Elasticsearch store keys them, so repeated upserts
// reconcile instead of duplicating.
type FakeStore struct {
	prs          map[string]types.PullRequest
	issues       map[string]types.Issue
	contributors map[string]types.Contributor
	runs         []types.OrchestrationRun
	traces       []types.ReasoningTrace
	lastIngest   map[string]time.Time
	health       map[string]*types.HealthSummary
	ranking      map[string][]types.ContributorRank
	errors       map[string]error
	callLog      []string
	mu           sync.RWMutex
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		prs:          make(map[string]types.PullRequest),
		issues:       make(map[string]types.Issue),
		contributors: make(map[string]types.Contributor),
		lastIngest:   make(map[string]time.Time),
		health:       make(map[string]*types.HealthSummary),
		ranking:      make(map[string][]types.ContributorRank),
		errors:       make(map[string]error),
	}
}

// SetError configures an error for a method name ("EnsureIndices",
// "UpsertPRs", "HealthSummary", ...).
func (f *FakeStore) SetError(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[method] = err
}

// SetLastIngestion seeds the ingestion watermark for a repo.
func (f *FakeStore) SetLastIngestion(repo string, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastIngest[repo] = t
}

// SetHealthSummary seeds the health telemetry returned for a repo.
func (f *FakeStore) SetHealthSummary(repo string, summary *types.HealthSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.health[repo] = summary
}

// SetContributorRanking seeds the ranking returned for a repo.
func (f *FakeStore) SetContributorRanking(repo string, ranks []types.ContributorRank) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranking[repo] = ranks
}

// Calls returns the recorded call log.
func (f *FakeStore) Calls() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	calls := make([]string, len(f.callLog))
	copy(calls, f.callLog)
	return calls
}

// Runs returns the persisted run summaries.
func (f *FakeStore) Runs() []types.OrchestrationRun {
	f.mu.RLock()
	defer f.mu.RUnlock()
	runs := make([]types.OrchestrationRun, len(f.runs))
	copy(runs, f.runs)
	return runs
}

// Traces returns the persisted reasoning traces.
func (f *FakeStore) Traces() []types.ReasoningTrace {
	f.mu.RLock()
	defer f.mu.RUnlock()
	traces := make([]types.ReasoningTrace, len(f.traces))
	copy(traces, f.traces)
	return traces
}

func (f *FakeStore) record(method string) error {
	f.callLog = append(f.callLog, method)
	return f.errors[method]
}

// EnsureIndices is a no-op unless an error is configured.
func (f *FakeStore) EnsureIndices(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("EnsureIndices")
}

// UpsertPRs stores PRs keyed by repo and number.
func (f *FakeStore) UpsertPRs(_ context.Context, prs []types.PullRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpsertPRs"); err != nil {
		return 0, err
	}
	for _, pr := range prs {
		f.prs[fmt.Sprintf("pr:%s:%d", pr.Repo, pr.Number)] = pr
		f.lastIngest[pr.Repo] = time.Now()
	}
	return len(prs), nil
}

// UpsertIssues stores issues keyed by repo and number.
func (f *FakeStore) UpsertIssues(_ context.Context, issues []types.Issue) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpsertIssues"); err != nil {
		return 0, err
	}
	for _, issue := range issues {
		f.issues[fmt.Sprintf("issue:%s:%d", issue.Repo, issue.Number)] = issue
	}
	return len(issues), nil
}

// UpsertContributors stores contributors keyed by repo and login.
func (f *FakeStore) UpsertContributors(_ context.Context, contributors []types.Contributor) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpsertContributors"); err != nil {
		return 0, err
	}
	for _, c := range contributors {
		f.contributors[fmt.Sprintf("contrib:%s:%s", c.Repo, c.Login)] = c
	}
	return len(contributors), nil
}

// Counts tallies stored documents for one repo.
func (f *FakeStore) Counts(_ context.Context, repo string) (types.IntakeCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Counts"); err != nil {
		return types.IntakeCounts{}, err
	}
	var counts types.IntakeCounts
	for _, pr := range f.prs {
		if pr.Repo == repo {
			counts.PRs++
		}
	}
	for _, issue := range f.issues {
		if issue.Repo == repo {
			counts.Issues++
		}
	}
	for _, c := range f.contributors {
		if c.Repo == repo {
			counts.Contributors++
		}
	}
	return counts, nil
}

// LastIngestion returns the seeded or recorded watermark, zero when absent.
func (f *FakeStore) LastIngestion(_ context.Context, repo string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("LastIngestion"); err != nil {
		return time.Time{}, err
	}
	return f.lastIngest[repo], nil
}

// PRsByRisk returns stored PRs for the repo ordered by risk score descending.
func (f *FakeStore) PRsByRisk(_ context.Context, repo string, limit int) ([]types.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("PRsByRisk"); err != nil {
		return nil, err
	}
	var prs []types.PullRequest
	for _, pr := range f.prs {
		if pr.Repo == repo {
			prs = append(prs, pr)
		}
	}
	for i := 1; i < len(prs); i++ {
		for j := i; j > 0 && prs[j].RiskScore > prs[j-1].RiskScore; j-- {
			prs[j], prs[j-1] = prs[j-1], prs[j]
		}
	}
	if limit > 0 && len(prs) > limit {
		prs = prs[:limit]
	}
	return prs, nil
}

// ContributorRanking returns the seeded ranking.
func (f *FakeStore) ContributorRanking(_ context.Context, repo string) ([]types.ContributorRank, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ContributorRanking"); err != nil {
		return nil, err
	}
	return f.ranking[repo], nil
}

// HealthSummary returns the seeded telemetry, or an empty summary.
func (f *FakeStore) HealthSummary(_ context.Context, repo string) (*types.HealthSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("HealthSummary"); err != nil {
		return nil, err
	}
	if summary, ok := f.health[repo]; ok {
		return summary, nil
	}
	return &types.HealthSummary{Repo: repo}, nil
}

// IndexRun appends the run summary.
func (f *FakeStore) IndexRun(_ context.Context, run types.OrchestrationRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("IndexRun"); err != nil {
		return err
	}
	f.runs = append(f.runs, run)
	return nil
}

// IndexTraces appends reasoning traces.
func (f *FakeStore) IndexTraces(_ context.Context, traces []types.ReasoningTrace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("IndexTraces"); err != nil {
		return err
	}
	f.traces = append(f.traces, traces...)
	return nil
}

// DeleteRepoData drops everything stored for the repo.
func (f *FakeStore) DeleteRepoData(_ context.Context, repo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteRepoData"); err != nil {
		return err
	}
	for key, pr := range f.prs {
		if pr.Repo == repo {
			delete(f.prs, key)
		}
	}
	for key, issue := range f.issues {
		if issue.Repo == repo {
			delete(f.issues, key)
		}
	}
	for key, c := range f.contributors {
		if c.Repo == repo {
			delete(f.contributors, key)
		}
	}
	delete(f.lastIngest, repo)
	return nil
}

var _ store.DocumentStore = (*FakeStore)(nil)
