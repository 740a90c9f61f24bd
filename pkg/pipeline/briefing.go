package pipeline

import (
	"fmt"
	"math"
	"sort"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/types"
)

// Briefing thresholds.
const (
	priorityQueueCap    = 5
	priorityQueueFloor  = 3 // backfill with medium-risk PRs below this
	criticalRiskScore   = 70
	highRiskScore       = 60
	staleWarnThreshold  = 5
	staleCritThreshold  = 10
	backlogWarnGrowth   = 5
	ciWarnDelta         = 2
	velocityDropFactor  = 0.5
	ciAuditRatePct      = 25.0
	ciStableRatePct     = 20.0
	minutesSavedPerPR   = 5
	urgencyStaleWeight  = 8
	urgencyCIWeight     = 1.5
	urgencyQueueWeight  = 10
	urgencyWarnWeight   = 15
	urgencyScoreCeiling = 100
)

// runBriefing synthesizes the risk and health outputs into the maintainer
// briefing. Pure computation; it touches neither GitHub nor the store.
func (p *Pipeline) runBriefing(repo string, riskResult *types.RiskResult, health *types.HealthTelemetry, step func(string, int)) *types.MaintainerBriefing {
	step("Synthesizing risk and health data into triage queue...", 10)
	prs := riskResult.HighRiskPRs
	queue := buildPriorityQueue(prs)

	step("Analyzing stability trends...", 40)
	warnings := stabilityWarnings(health)

	step("Generating label and reviewer suggestions...", 70)
	labels := aggregateLabels(prs)

	totalPRs := 0
	for _, d := range health.PullRequests.Distribution {
		totalPRs += d.Count
	}
	highRiskCount := 0
	for _, pr := range prs {
		if pr.RiskScore >= highRiskScore {
			highRiskCount++
		}
	}
	highRiskRatio := 0
	if totalPRs > 0 {
		highRiskRatio = int(math.Round(float64(highRiskCount) / float64(totalPRs) * 100))
	}

	criticalWarnings := 0
	for _, w := range warnings {
		if w.Severity == "critical" {
			criticalWarnings++
		}
	}
	staleCount := health.PullRequests.StaleCount
	ciRate := health.PullRequests.CIFailureRate.RatePct
	urgency := int(math.Round(
		float64(staleCount*urgencyStaleWeight) +
			ciRate*urgencyCIWeight +
			float64(len(queue)*urgencyQueueWeight) +
			float64(criticalWarnings*urgencyWarnWeight)))
	if urgency > urgencyScoreCeiling {
		urgency = urgencyScoreCeiling
	}

	ciStability := "UNSTABLE"
	if ciRate < ciStableRatePct {
		ciStability = "STABLE"
	}

	step("Maintainer briefing synthesized.", 100)
	return &types.MaintainerBriefing{
		UrgencyScore:        urgency,
		PriorityQueue:       queue,
		StabilityWarnings:   warnings,
		ProposedLabels:      labels,
		ReviewerSuggestions: riskResult.ReviewerSuggestions,
		JustificationTrace:  justificationTrace(repo, health, len(prs), highRiskCount, totalPRs, len(queue), len(warnings)),
		ImpactMetrics: types.ImpactMetrics{
			EstimatedTimeSavedMins: len(prs) * minutesSavedPerPR,
			HighRiskRatio:          highRiskRatio,
			CIStability:            ciStability,
		},
		Recommendations: recommendations(health, warnings, len(queue)),
	}
}

// buildPriorityQueue takes the open PRs flagged for immediate review, and
// backfills with scheduled-review PRs when the queue would otherwise be
// thin.
func buildPriorityQueue(prs []types.ClassifiedPR) []types.PriorityPR {
	var queue []types.PriorityPR
	for _, pr := range prs {
		if pr.State != "open" || pr.Classification != "Immediate Review" {
			continue
		}
		urgency := "HIGH"
		if pr.RiskScore >= criticalRiskScore {
			urgency = "CRITICAL"
		}
		queue = append(queue, priorityEntry(pr, urgency))
		if len(queue) == priorityQueueCap {
			break
		}
	}
	if len(queue) < priorityQueueFloor {
		for _, pr := range prs {
			if pr.State != "open" || pr.Classification != "Schedule Review" {
				continue
			}
			queue = append(queue, priorityEntry(pr, "MEDIUM"))
			if len(queue) == priorityQueueFloor {
				break
			}
		}
	}
	return queue
}

func priorityEntry(pr types.ClassifiedPR, urgency string) types.PriorityPR {
	return types.PriorityPR{
		Number:          pr.Number,
		Title:           pr.Title,
		Author:          pr.Author,
		RiskScore:       pr.RiskScore,
		CIStatus:        pr.CIStatus,
		Urgency:         urgency,
		SuggestedLabels: pr.SuggestedLabels,
		HTMLURL:         pr.HTMLURL,
	}
}

// stabilityWarnings derives warnings from trend telemetry. Rules fire in a
// fixed order so the warning list is deterministic for a given summary.
func stabilityWarnings(health *types.HealthTelemetry) []types.StabilityWarning {
	var warnings []types.StabilityWarning

	if series := health.Trends.CIFailures; len(series) >= 4 {
		recent := sumCounts(series[len(series)-2:])
		older := sumCounts(series[len(series)-4 : len(series)-2])
		if recent > older+ciWarnDelta {
			warnings = append(warnings, types.StabilityWarning{
				Metric:   "CI Failure Rate",
				Message:  fmt.Sprintf("CI failures trending up: %d failures in last 2 weeks vs %d in prior 2 weeks.", recent, older),
				Severity: "warning",
			})
		}
	}

	if backlog := health.Trends.BacklogGrowth; len(backlog) >= 2 {
		netGrowth := 0
		for _, w := range backlog[len(backlog)-2:] {
			netGrowth += w.Opened - w.Closed
		}
		if netGrowth > backlogWarnGrowth {
			warnings = append(warnings, types.StabilityWarning{
				Metric:   "Backlog Growth",
				Message:  fmt.Sprintf("PR backlog growing: %d more PRs opened than closed in last 2 weeks.", netGrowth),
				Severity: "warning",
			})
		}
	}

	if series := health.Trends.MergeVelocity; len(series) >= 4 {
		recent := sumCounts(series[len(series)-2:])
		older := sumCounts(series[len(series)-4 : len(series)-2])
		if older > 0 && float64(recent) < float64(older)*velocityDropFactor {
			drop := int(math.Round((1 - float64(recent)/float64(older)) * 100))
			warnings = append(warnings, types.StabilityWarning{
				Metric:   "Merge Velocity",
				Message:  fmt.Sprintf("Merge velocity dropped %d%% compared to 4 weeks ago.", drop),
				Severity: "critical",
			})
		}
	}

	if stale := health.PullRequests.StaleCount; stale > staleWarnThreshold {
		severity := "warning"
		if stale > staleCritThreshold {
			severity = "critical"
		}
		warnings = append(warnings, types.StabilityWarning{
			Metric:   "Stale PRs",
			Message:  fmt.Sprintf("%d PRs are stale (>14 days open). Review backlog increasing.", stale),
			Severity: severity,
		})
	}

	if health.Classification == HealthCritical {
		warnings = append(warnings, types.StabilityWarning{
			Metric:   "Overall Health",
			Message:  fmt.Sprintf("Repository health classified as CRITICAL (composite score: %d/100).", health.CompositeScore),
			Severity: "critical",
		})
	}

	return warnings
}

// aggregateLabels counts suggested labels across open PRs, most frequent
// first. Ties keep the label's first-seen order so output is stable.
func aggregateLabels(prs []types.ClassifiedPR) []types.ProposedLabel {
	counts := make(map[string]int)
	var order []string
	for _, pr := range prs {
		if pr.State != "open" {
			continue
		}
		for _, label := range pr.SuggestedLabels {
			if counts[label] == 0 {
				order = append(order, label)
			}
			counts[label]++
		}
	}

	labels := make([]types.ProposedLabel, 0, len(order))
	for _, label := range order {
		labels = append(labels, types.ProposedLabel{
			Label:  label,
			Count:  counts[label],
			Reason: labelReason(label),
		})
	}
	sort.SliceStable(labels, func(i, j int) bool { return labels[i].Count > labels[j].Count })
	return labels
}

func labelReason(label string) string {
	switch label {
	case "needs-ci-fix":
		return "CI checks failing, needs build/test fix before merge."
	case "needs-split":
		return "Large diff detected, consider splitting into smaller PRs."
	case "stale":
		return "PR has been open beyond the 14-day threshold."
	case "first-time-contributor":
		return "External contribution from new developer, extra review advised."
	case "security-review":
		return "Changes touch sensitive paths (auth/security/config)."
	default:
		return "Auto-suggested based on risk analysis."
	}
}

func justificationTrace(repo string, health *types.HealthTelemetry, analyzed, highRisk, totalPRs, queued, warningCount int) []string {
	return []string{
		fmt.Sprintf("Analyzed %d pull requests from repository %s.", analyzed, repo),
		fmt.Sprintf("Deterministic risk scoring identified %d high-risk PRs (score >=60) out of %d total.", highRisk, totalPRs),
		fmt.Sprintf("Repository health classification: %s (composite score: %d/100).", health.Classification, health.CompositeScore),
		fmt.Sprintf("%d %s queued for immediate maintainer review.", queued, pluralPRs(queued)),
		fmt.Sprintf("CI stability: %.2f%% failure rate across %d tracked actions.",
			health.PullRequests.CIFailureRate.RatePct, health.PullRequests.CIFailureRate.Total),
		fmt.Sprintf("Stale PR debt: %d open PRs exceed the 14-day threshold.", health.PullRequests.StaleCount),
		fmt.Sprintf("%d stability %s detected from trend analysis.", warningCount, pluralWarnings(warningCount)),
		"Aggregation telemetry powered all analytics with zero model inference involved.",
	}
}

func recommendations(health *types.HealthTelemetry, warnings []types.StabilityWarning, queueLen int) []string {
	var recs []string
	if queueLen > 0 {
		recs = append(recs, fmt.Sprintf("Triage %d high-priority %s flagged for immediate review.", queueLen, pluralPRs(queueLen)))
	} else {
		recs = append(recs, "No immediate high-risk PRs blocking the pipeline.")
	}

	if stale := health.PullRequests.StaleCount; stale > staleWarnThreshold {
		recs = append(recs, fmt.Sprintf("Address %d stale PRs (>14 days) to reduce maintenance debt.", stale))
	} else {
		recs = append(recs, "Maintenance debt is within acceptable limits.")
	}

	if health.PullRequests.CIFailureRate.RatePct > ciAuditRatePct {
		recs = append(recs, "High CI failure rate detected: audit test infrastructure for flaky tests.")
	} else {
		recs = append(recs, "CI pipeline is currently stable.")
	}

	for _, w := range warnings {
		if w.Metric == "Merge Velocity" {
			recs = append(recs, "Merge velocity declining: consider prioritizing review bandwidth.")
			break
		}
	}
	return recs
}

func pluralPRs(n int) string {
	if n == 1 {
		return "pull request"
	}
	return "pull requests"
}

func pluralWarnings(n int) string {
	if n == 1 {
		return "warning"
	}
	return "warnings"
}
