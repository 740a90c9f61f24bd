package pipeline

import (
	"strings"
	"testing"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/internal/testutil"
	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/types"
)

func classifiedPR(number, score int, state, classification string) types.ClassifiedPR {
	return types.ClassifiedPR{
		Number:         number,
		Title:          "PR title",
		State:          state,
		Author:         "alice",
		RiskScore:      score,
		Classification: classification,
	}
}

func TestBuildPriorityQueue_CapsAtFive(t *testing.T) {
	var prs []types.ClassifiedPR
	for i := 1; i <= 8; i++ {
		prs = append(prs, classifiedPR(i, 80, "open", "Immediate Review"))
	}
	queue := buildPriorityQueue(prs)
	if len(queue) != 5 {
		t.Fatalf("expected queue capped at 5, got %d", len(queue))
	}
	for i, entry := range queue {
		if entry.Number != i+1 {
			t.Errorf("queue entry %d: expected PR %d, got %d", i, i+1, entry.Number)
		}
	}
}

func TestBuildPriorityQueue_UrgencyBands(t *testing.T) {
	prs := []types.ClassifiedPR{
		classifiedPR(1, 70, "open", "Immediate Review"),
		classifiedPR(2, 69, "open", "Immediate Review"),
	}
	queue := buildPriorityQueue(prs)
	if queue[0].Urgency != "CRITICAL" {
		t.Errorf("expected score 70 to be CRITICAL, got %q", queue[0].Urgency)
	}
	if queue[1].Urgency != "HIGH" {
		t.Errorf("expected score 69 to be HIGH, got %q", queue[1].Urgency)
	}
}

func TestBuildPriorityQueue_BackfillsThinQueue(t *testing.T) {
	prs := []types.ClassifiedPR{
		classifiedPR(1, 65, "open", "Immediate Review"),
		classifiedPR(2, 45, "open", "Schedule Review"),
		classifiedPR(3, 40, "open", "Schedule Review"),
		classifiedPR(4, 35, "open", "Schedule Review"),
	}
	queue := buildPriorityQueue(prs)
	if len(queue) != 3 {
		t.Fatalf("expected backfill to floor of 3, got %d", len(queue))
	}
	if queue[0].Urgency != "HIGH" || queue[1].Urgency != "MEDIUM" || queue[2].Urgency != "MEDIUM" {
		t.Errorf("unexpected urgencies: %q %q %q", queue[0].Urgency, queue[1].Urgency, queue[2].Urgency)
	}
	if queue[1].Number != 2 || queue[2].Number != 3 {
		t.Errorf("expected backfill in input order, got %d %d", queue[1].Number, queue[2].Number)
	}
}

func TestBuildPriorityQueue_SkipsClosedAndSafe(t *testing.T) {
	prs := []types.ClassifiedPR{
		classifiedPR(1, 80, "merged", "Immediate Review"),
		classifiedPR(2, 10, "open", "Safe"),
	}
	if queue := buildPriorityQueue(prs); len(queue) != 0 {
		t.Errorf("expected empty queue, got %d entries", len(queue))
	}
}

func TestStabilityWarnings_AllRulesFireInOrder(t *testing.T) {
	health := &types.HealthTelemetry{
		Repo:           "o/r",
		Classification: HealthCritical,
		CompositeScore: 35,
		PullRequests: types.PRTelemetry{
			StaleCount: 12,
		},
		Trends: types.TrendSeries{
			CIFailures:    []types.WeeklyPoint{{Count: 1}, {Count: 1}, {Count: 4}, {Count: 4}},
			BacklogGrowth: []types.BacklogPoint{{Opened: 10, Closed: 2}, {Opened: 8, Closed: 4}},
			MergeVelocity: []types.WeeklyPoint{{Count: 10}, {Count: 10}, {Count: 2}, {Count: 2}},
		},
	}
	warnings := stabilityWarnings(health)

	wantMetrics := []string{"CI Failure Rate", "Backlog Growth", "Merge Velocity", "Stale PRs", "Overall Health"}
	if len(warnings) != len(wantMetrics) {
		t.Fatalf("expected %d warnings, got %d: %+v", len(wantMetrics), len(warnings), warnings)
	}
	for i, metric := range wantMetrics {
		if warnings[i].Metric != metric {
			t.Errorf("warning %d: expected metric %q, got %q", i, metric, warnings[i].Metric)
		}
	}

	if warnings[2].Severity != "critical" {
		t.Errorf("expected merge velocity warning critical, got %q", warnings[2].Severity)
	}
	if !strings.Contains(warnings[2].Message, "80%") {
		t.Errorf("expected 80%% velocity drop in message, got %q", warnings[2].Message)
	}
	if warnings[3].Severity != "critical" {
		t.Errorf("expected 12 stale PRs to be critical, got %q", warnings[3].Severity)
	}
	if !strings.Contains(warnings[1].Message, "12 more PRs opened") {
		t.Errorf("unexpected backlog message: %q", warnings[1].Message)
	}
}

func TestStabilityWarnings_QuietRepoHasNone(t *testing.T) {
	health := &types.HealthTelemetry{
		Repo:           "o/r",
		Classification: HealthOptimal,
		CompositeScore: 100,
	}
	if warnings := stabilityWarnings(health); len(warnings) != 0 {
		t.Errorf("expected no warnings, got %+v", warnings)
	}
}

func TestStabilityWarnings_ModerateStaleCountIsWarning(t *testing.T) {
	health := &types.HealthTelemetry{
		Repo:           "o/r",
		Classification: HealthStable,
		PullRequests:   types.PRTelemetry{StaleCount: 6},
	}
	warnings := stabilityWarnings(health)
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
	if warnings[0].Metric != "Stale PRs" || warnings[0].Severity != "warning" {
		t.Errorf("unexpected warning: %+v", warnings[0])
	}
}

func TestAggregateLabels_CountDescendingFirstSeenTiebreak(t *testing.T) {
	prs := []types.ClassifiedPR{
		{Number: 1, State: "open", SuggestedLabels: []string{"needs-ci-fix", "needs-split"}},
		{Number: 2, State: "open", SuggestedLabels: []string{"needs-split", "stale"}},
		{Number: 3, State: "open", SuggestedLabels: []string{"needs-split"}},
		{Number: 4, State: "merged", SuggestedLabels: []string{"security-review"}},
	}
	labels := aggregateLabels(prs)

	if len(labels) != 3 {
		t.Fatalf("expected 3 labels (merged PR excluded), got %d", len(labels))
	}
	if labels[0].Label != "needs-split" || labels[0].Count != 3 {
		t.Errorf("expected needs-split x3 first, got %s x%d", labels[0].Label, labels[0].Count)
	}
	// needs-ci-fix and stale are tied at 1; first seen wins.
	if labels[1].Label != "needs-ci-fix" || labels[2].Label != "stale" {
		t.Errorf("unexpected tiebreak order: %s, %s", labels[1].Label, labels[2].Label)
	}
	if !strings.Contains(labels[0].Reason, "splitting") {
		t.Errorf("unexpected reason: %q", labels[0].Reason)
	}
}

func TestRunBriefing_UrgencyFormula(t *testing.T) {
	p := New(testutil.NewMockGitHubClient(), testutil.NewFakeStore())
	riskResult := &types.RiskResult{
		HighRiskPRs: []types.ClassifiedPR{
			classifiedPR(1, 75, "open", "Immediate Review"),
			classifiedPR(2, 65, "open", "Immediate Review"),
		},
		TotalAnalyzed: 2,
	}
	health := &types.HealthTelemetry{
		Repo:           "o/r",
		Classification: HealthStable,
		CompositeScore: 65,
		PullRequests: types.PRTelemetry{
			Distribution:  []types.StateCount{{State: "open", Count: 10}},
			StaleCount:    3,
			CIFailureRate: types.CIFailureRate{Total: 40, Failures: 4, RatePct: 10},
		},
	}

	briefing := p.runBriefing("o/r", riskResult, health, func(string, int) {})

	// stale 3*8 + ci 10*1.5 + queue 2*10 + 0 critical warnings = 59
	if briefing.UrgencyScore != 59 {
		t.Errorf("expected urgency 59, got %d", briefing.UrgencyScore)
	}
	if len(briefing.PriorityQueue) != 2 {
		t.Errorf("expected 2 queued PRs, got %d", len(briefing.PriorityQueue))
	}
	if briefing.ImpactMetrics.EstimatedTimeSavedMins != 10 {
		t.Errorf("expected 10 minutes saved, got %d", briefing.ImpactMetrics.EstimatedTimeSavedMins)
	}
	if briefing.ImpactMetrics.HighRiskRatio != 20 {
		t.Errorf("expected high risk ratio 20, got %d", briefing.ImpactMetrics.HighRiskRatio)
	}
	if briefing.ImpactMetrics.CIStability != "STABLE" {
		t.Errorf("expected STABLE CI, got %q", briefing.ImpactMetrics.CIStability)
	}
}

func TestRunBriefing_UrgencyClampsAtHundred(t *testing.T) {
	p := New(testutil.NewMockGitHubClient(), testutil.NewFakeStore())
	var prs []types.ClassifiedPR
	for i := 1; i <= 6; i++ {
		prs = append(prs, classifiedPR(i, 90, "open", "Immediate Review"))
	}
	health := &types.HealthTelemetry{
		Repo:           "o/r",
		Classification: HealthCritical,
		CompositeScore: 20,
		PullRequests: types.PRTelemetry{
			StaleCount:    20,
			CIFailureRate: types.CIFailureRate{Total: 50, Failures: 25, RatePct: 50},
		},
	}

	briefing := p.runBriefing("o/r", &types.RiskResult{HighRiskPRs: prs, TotalAnalyzed: 6}, health, func(string, int) {})

	if briefing.UrgencyScore != 100 {
		t.Errorf("expected urgency clamped at 100, got %d", briefing.UrgencyScore)
	}
	if briefing.ImpactMetrics.CIStability != "UNSTABLE" {
		t.Errorf("expected UNSTABLE CI, got %q", briefing.ImpactMetrics.CIStability)
	}
}

func TestRunBriefing_JustificationTrace(t *testing.T) {
	p := New(testutil.NewMockGitHubClient(), testutil.NewFakeStore())
	riskResult := &types.RiskResult{
		HighRiskPRs:   []types.ClassifiedPR{classifiedPR(1, 75, "open", "Immediate Review")},
		TotalAnalyzed: 1,
	}
	health := &types.HealthTelemetry{
		Repo:           "o/r",
		Classification: HealthStable,
		CompositeScore: 65,
		PullRequests: types.PRTelemetry{
			Distribution:  []types.StateCount{{State: "open", Count: 5}},
			StaleCount:    2,
			CIFailureRate: types.CIFailureRate{Total: 30, Failures: 3, RatePct: 10},
		},
	}

	briefing := p.runBriefing("o/r", riskResult, health, func(string, int) {})

	trace := briefing.JustificationTrace
	if len(trace) != 8 {
		t.Fatalf("expected 8 trace lines, got %d", len(trace))
	}
	if !strings.Contains(trace[0], "Analyzed 1 pull requests from repository o/r") {
		t.Errorf("unexpected first line: %q", trace[0])
	}
	if !strings.Contains(trace[2], "STABLE (composite score: 65/100)") {
		t.Errorf("unexpected health line: %q", trace[2])
	}
	if !strings.Contains(trace[3], "1 pull request queued") {
		t.Errorf("expected singular phrasing, got %q", trace[3])
	}
	if !strings.Contains(trace[4], "10.00% failure rate across 30 tracked actions") {
		t.Errorf("unexpected CI line: %q", trace[4])
	}
}

func TestRecommendations(t *testing.T) {
	healthy := &types.HealthTelemetry{Repo: "o/r", Classification: HealthOptimal}
	recs := recommendations(healthy, nil, 0)
	want := []string{
		"No immediate high-risk PRs blocking the pipeline.",
		"Maintenance debt is within acceptable limits.",
		"CI pipeline is currently stable.",
	}
	if len(recs) != len(want) {
		t.Fatalf("expected %d recommendations, got %d", len(want), len(recs))
	}
	for i := range want {
		if recs[i] != want[i] {
			t.Errorf("recommendation %d: expected %q, got %q", i, want[i], recs[i])
		}
	}

	troubled := &types.HealthTelemetry{
		Repo:           "o/r",
		Classification: HealthCritical,
		PullRequests: types.PRTelemetry{
			StaleCount:    8,
			CIFailureRate: types.CIFailureRate{RatePct: 30},
		},
	}
	warnings := []types.StabilityWarning{{Metric: "Merge Velocity", Severity: "critical"}}
	recs = recommendations(troubled, warnings, 3)
	if len(recs) != 4 {
		t.Fatalf("expected 4 recommendations, got %d: %v", len(recs), recs)
	}
	if !strings.Contains(recs[0], "Triage 3 high-priority pull requests") {
		t.Errorf("unexpected triage rec: %q", recs[0])
	}
	if !strings.Contains(recs[1], "8 stale PRs") {
		t.Errorf("unexpected stale rec: %q", recs[1])
	}
	if !strings.Contains(recs[2], "flaky tests") {
		t.Errorf("unexpected CI rec: %q", recs[2])
	}
	if !strings.Contains(recs[3], "Merge velocity declining") {
		t.Errorf("unexpected velocity rec: %q", recs[3])
	}
}
