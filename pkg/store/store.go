// Package store persists repository intelligence to Elasticsearch and runs
// the aggregations the health stage reads back.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/types"
)

// Cluster failure classes callers can branch on.
var (
	ErrCredentials = errors.New("elasticsearch authentication failed")
	ErrUnavailable = errors.New("elasticsearch unavailable")
)

// Index names.
const (
	IndexPRs          = "repo_prs"
	IndexIssues       = "repo_issues"
	IndexContributors = "repo_contributors"
	IndexRuns         = "orchestration_runs"
	IndexTraces       = "reasoning_traces"
)

// DocumentStore is the persistence boundary the pipeline runs against. The
// production implementation is backed by Elasticsearch; tests substitute an
// in-memory fake.
type DocumentStore interface {
	// EnsureIndices verifies connectivity and creates missing indices.
	EnsureIndices(ctx context.Context) error

	// Upserts write with deterministic document IDs, so repeated ingestion
	// reconciles instead of duplicating. Each returns the number of
	// documents successfully written; individual document failures are
	// logged, not fatal.
	UpsertPRs(ctx context.Context, prs []types.PullRequest) (int, error)
	UpsertIssues(ctx context.Context, issues []types.Issue) (int, error)
	UpsertContributors(ctx context.Context, contributors []types.Contributor) (int, error)

	// Counts returns per-index document counts for one repo.
	Counts(ctx context.Context, repo string) (types.IntakeCounts, error)

	// LastIngestion returns the most recent ingestion timestamp for the
	// repo, or the zero time when the repo has never been ingested.
	LastIngestion(ctx context.Context, repo string) (time.Time, error)

	// PRsByRisk returns up to limit PRs ordered by risk score descending.
	PRsByRisk(ctx context.Context, repo string, limit int) ([]types.PullRequest, error)

	// ContributorRanking ranks authors by merged PR count, descending.
	ContributorRanking(ctx context.Context, repo string) ([]types.ContributorRank, error)

	// HealthSummary aggregates the full health telemetry for one repo.
	HealthSummary(ctx context.Context, repo string) (*types.HealthSummary, error)

	// IndexRun appends one orchestration run summary.
	IndexRun(ctx context.Context, run types.OrchestrationRun) error

	// IndexTraces appends reasoning traces. Traces are audit records and
	// are never overwritten.
	IndexTraces(ctx context.Context, traces []types.ReasoningTrace) error

	// DeleteRepoData removes all ingested documents for one repo.
	DeleteRepoData(ctx context.Context, repo string) error
}
