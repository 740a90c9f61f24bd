// Package types contains shared data structures used across the maintainer
// intelligence pipeline.
//
//nolint:revive // "types" is a standard Go package name for shared data structures
package types

import "time"

// PullRequest is the canonical pull request record persisted to the document
// store. One document per (repo, number); repeated ingestion reconciles via
// the deterministic document key.
type PullRequest struct {
	Repo                 string       `json:"repo"`
	Number               int          `json:"pr_number"`
	Title                string       `json:"title"`
	Body                 string       `json:"body"`
	State                string       `json:"state"` // "open", "closed", or "merged"
	Author               string       `json:"author"`
	Labels               []string     `json:"labels"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
	MergedAt             *time.Time   `json:"merged_at"`
	ClosedAt             *time.Time   `json:"closed_at"`
	FilesChanged         int          `json:"files_changed"`
	LinesAdded           int          `json:"lines_added"`
	LinesDeleted         int          `json:"lines_deleted"`
	FirstTimeContributor bool         `json:"is_first_time_contributor"`
	AgeDays              float64      `json:"pr_age_days"`
	CIStatus             string       `json:"ci_status"` // "success", "failure", "pending", or "unknown"
	RiskScore            int          `json:"risk_score"`
	RiskFactors          []RiskFactor `json:"risk_factors"`
	HTMLURL              string       `json:"html_url"`
}

// Issue is the canonical issue record. Pull requests are filtered out of
// issue listings at fetch time.
type Issue struct {
	Repo      string     `json:"repo"`
	Number    int        `json:"issue_number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"`
	Author    string     `json:"author"`
	Labels    []string   `json:"labels"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at"`
	Comments  int        `json:"comments_count"`
	HTMLURL   string     `json:"html_url"`
}

// Contributor is the canonical contributor record.
type Contributor struct {
	Repo          string `json:"repo"`
	Login         string `json:"login"`
	Contributions int    `json:"contributions"`
	AvatarURL     string `json:"avatar_url"`
	ProfileURL    string `json:"profile_url"`
}

// RiskFactor is one weighted, explained contribution to a PR's risk score.
// Contribution never exceeds Weight; for boolean factors they are equal.
type RiskFactor struct {
	Name         string `json:"factor"`
	Weight       int    `json:"weight"`
	Contribution int    `json:"contribution"`
	Explanation  string `json:"explanation"`
}

// RateLimit mirrors the GitHub rate-limit response headers. Refreshed from
// every response regardless of status code.
type RateLimit struct {
	Remaining int   `json:"remaining"`
	Limit     int   `json:"limit"`
	Reset     int64 `json:"reset"` // unix epoch seconds
	Used      int   `json:"used"`
}

// StageTiming records wall-clock timing for one pipeline stage.
type StageTiming struct {
	Stage       string    `json:"stage"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int64     `json:"duration_ms"`
}

// IntakeCounts holds per-entity persisted document counts for one repo.
type IntakeCounts struct {
	PRs          int `json:"prs"`
	Issues       int `json:"issues"`
	Contributors int `json:"contributors"`
}

// IntakeResult is the output of the ingestion stage.
type IntakeResult struct {
	Repo            string       `json:"repo"`
	Counts          IntakeCounts `json:"counts"`
	SkippedPRs      int          `json:"skipped_prs"`
	RateLimit       *RateLimit   `json:"rate_limit"`
	IncrementalSync bool         `json:"incremental_sync"`
}

// ClassifiedPR is a persisted PR re-read and classified by the risk stage.
type ClassifiedPR struct {
	Number               int          `json:"pr_number"`
	Title                string       `json:"title"`
	State                string       `json:"state"`
	Author               string       `json:"author"`
	RiskScore            int          `json:"risk_score"`
	Classification       string       `json:"classification"`
	ReasoningTrace       []RiskFactor `json:"reasoning_trace"`
	SuggestedLabels      []string     `json:"suggested_labels"`
	CIStatus             string       `json:"ci_status"`
	AgeDays              float64      `json:"pr_age_days"`
	FilesChanged         int          `json:"files_changed"`
	LinesAdded           int          `json:"lines_added"`
	LinesDeleted         int          `json:"lines_deleted"`
	Labels               []string     `json:"labels"`
	HTMLURL              string       `json:"html_url"`
	FirstTimeContributor bool         `json:"is_first_time_contributor"`
}

// ReviewerSuggestion is a reviewer candidate derived from the merged-PR
// contributor ranking.
type ReviewerSuggestion struct {
	Login       string `json:"login"`
	MergedCount int    `json:"merged_count"`
	Reason      string `json:"reason"`
}

// RiskResult is the output of the risk stage.
type RiskResult struct {
	HighRiskPRs         []ClassifiedPR       `json:"high_risk_prs"`
	TotalAnalyzed       int                  `json:"total_analyzed"`
	ReviewerSuggestions []ReviewerSuggestion `json:"reviewer_suggestions"`
}

// WeeklyPoint is one bucket of a weekly time series.
type WeeklyPoint struct {
	Week  string `json:"week"`
	Count int    `json:"count"`
}

// BacklogPoint is one weekly opened-versus-closed bucket.
type BacklogPoint struct {
	Week   string `json:"week"`
	Opened int    `json:"opened"`
	Closed int    `json:"closed"`
}

// StalePR identifies one open PR past the staleness threshold.
type StalePR struct {
	Number  int     `json:"pr_number"`
	Title   string  `json:"title"`
	Author  string  `json:"author"`
	AgeDays float64 `json:"age_days"`
	HTMLURL string  `json:"html_url"`
}

// StateCount is one bucket of the PR state distribution.
type StateCount struct {
	State string `json:"state"`
	Count int    `json:"count"`
}

// CIFailureRate summarizes CI outcomes across tracked PRs.
type CIFailureRate struct {
	Total    int     `json:"total"`
	Failures int     `json:"failures"`
	RatePct  float64 `json:"failure_rate_pct"`
}

// PRTelemetry aggregates pull-request health metrics for one repo.
type PRTelemetry struct {
	Distribution     []StateCount  `json:"distribution"`
	AvgMergeTimeDays *float64      `json:"avg_merge_time_days"`
	StaleCount       int           `json:"stale_count"`
	StalePRs         []StalePR     `json:"stale_prs"`
	CIFailureRate    CIFailureRate `json:"ci_failure_rate"`
}

// TrendSeries holds the 8-week trend time series.
type TrendSeries struct {
	MergeVelocity []WeeklyPoint  `json:"merge_velocity"`
	BacklogGrowth []BacklogPoint `json:"backlog_growth"`
	CIFailures    []WeeklyPoint  `json:"ci_failures"`
}

// IssueCounts summarizes issue totals by state.
type IssueCounts struct {
	Total  int `json:"total"`
	Open   int `json:"open"`
	Closed int `json:"closed"`
}

// ContributorRank is one row of the merged-PR contributor ranking.
type ContributorRank struct {
	Author      string `json:"author"`
	MergedCount int    `json:"merged_count"`
}

// HealthSummary is the raw aggregate telemetry read from the document store.
type HealthSummary struct {
	Repo            string            `json:"repo"`
	PullRequests    PRTelemetry       `json:"pull_requests"`
	Trends          TrendSeries       `json:"trends"`
	Issues          IssueCounts       `json:"issues"`
	TopContributors []ContributorRank `json:"top_contributors"`
}

// HealthTelemetry is the output of the health stage: the raw summary plus
// the composite classification.
type HealthTelemetry struct {
	Repo            string            `json:"repo"`
	Classification  string            `json:"classification"` // "OPTIMAL", "STABLE", or "CRITICAL"
	CompositeScore  int               `json:"composite_score"`
	PullRequests    PRTelemetry       `json:"pull_requests"`
	Trends          TrendSeries       `json:"trends"`
	Issues          IssueCounts       `json:"issues"`
	TopContributors []ContributorRank `json:"top_contributors"`
}

// PriorityPR is one entry of the briefing's triage queue.
type PriorityPR struct {
	Number          int      `json:"pr_number"`
	Title           string   `json:"title"`
	Author          string   `json:"author"`
	RiskScore       int      `json:"risk_score"`
	CIStatus        string   `json:"ci_status"`
	Urgency         string   `json:"urgency"` // "CRITICAL", "HIGH", or "MEDIUM"
	SuggestedLabels []string `json:"suggested_labels"`
	HTMLURL         string   `json:"html_url"`
}

// StabilityWarning is one trend-derived warning with a fixed severity.
type StabilityWarning struct {
	Metric   string `json:"metric"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // "critical" or "warning"
}

// ProposedLabel aggregates one suggested label across open PRs.
type ProposedLabel struct {
	Label  string `json:"label"`
	Count  int    `json:"count"`
	Reason string `json:"reason"`
}

// ImpactMetrics quantifies the value of the briefing for the maintainer.
type ImpactMetrics struct {
	EstimatedTimeSavedMins int    `json:"estimated_time_saved_mins"`
	HighRiskRatio          int    `json:"high_risk_ratio"`
	CIStability            string `json:"ci_stability"`
}

// MaintainerBriefing is the output of the briefing stage.
type MaintainerBriefing struct {
	UrgencyScore        int                  `json:"urgency_score"`
	PriorityQueue       []PriorityPR         `json:"priority_queue"`
	StabilityWarnings   []StabilityWarning   `json:"stability_warnings"`
	ProposedLabels      []ProposedLabel      `json:"proposed_labels"`
	ReviewerSuggestions []ReviewerSuggestion `json:"reviewer_suggestions"`
	JustificationTrace  []string             `json:"justification_trace"`
	ImpactMetrics       ImpactMetrics        `json:"impact_metrics"`
	Recommendations     []string             `json:"recommendations"`
}

// BriefingSummary is the condensed briefing stored on the run summary.
type BriefingSummary struct {
	UrgencyScore     int `json:"urgency_score"`
	PriorityCount    int `json:"priority_1_count"`
	TotalPRsAnalyzed int `json:"total_prs_analyzed"`
}

// OrchestrationRun is the persisted summary of one pipeline run. Written
// once, at run completion, by the orchestrator.
type OrchestrationRun struct {
	Repo            string          `json:"repo"`
	RunID           string          `json:"run_id"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     time.Time       `json:"completed_at"`
	Status          string          `json:"status"` // "completed" or "failed"
	StageTimings    []StageTiming   `json:"stage_timings"`
	TotalDurationMS int64           `json:"total_duration_ms"`
	BriefingSummary BriefingSummary `json:"briefing_summary"`
}

// ReasoningTrace is the append-only audit record of one PR's classification
// within one run. Historical traces are never overwritten.
type ReasoningTrace struct {
	Repo            string       `json:"repo"`
	Number          int          `json:"pr_number"`
	RunID           string       `json:"run_id"`
	RiskScore       int          `json:"risk_score"`
	Classification  string       `json:"classification"`
	Factors         []RiskFactor `json:"factors"`
	SuggestedLabels []string     `json:"suggested_labels"`
	CreatedAt       time.Time    `json:"created_at"`
}
