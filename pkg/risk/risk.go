// Package risk scores pull requests with a deterministic, fully explained
// rubric. The same PR always produces the same score and the same ordered
// factor list; there is no randomness and no model inference involved.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/types"
)

// Factor weights. Contributions are all-or-nothing; a triggered factor
// contributes exactly its weight.
const (
	weightLargeDiff     = 25
	weightMediumDiff    = 10
	weightCoreFiles     = 20
	weightMultiCore     = 8
	weightCIFailure     = 25
	weightCIPending     = 5
	weightFirstTime     = 15
	weightStalePR       = 15
	weightAgingPR       = 5
	largeDiffThreshold  = 500
	mediumDiffThreshold = 200
	staleAgeDays        = 14
	agingAgeDays        = 7
	maxScore            = 100
)

// Classification thresholds.
const (
	immediateReviewScore = 60
	scheduleReviewScore  = 30
)

// Classification bands.
const (
	ClassImmediate = "Immediate Review"
	ClassSchedule  = "Schedule Review"
	ClassSafe      = "Safe"
)

// corePathKeywords flag changes that touch security-sensitive surface.
// Matching is case-insensitive substring search over title and body.
var corePathKeywords = []string{
	"auth", "security", "config", "migration", "database",
	"credential", "secret", "password", "token", "permission",
	"rbac", "acl",
}

// Assessment is the result of scoring one pull request.
type Assessment struct {
	Score   int
	Factors []types.RiskFactor
}

// Score computes the risk score for a pull request. Factors are evaluated
// in a fixed order (diff size, core paths, CI status, contributor history,
// age) and the total is clamped to maxScore.
func Score(pr types.PullRequest) Assessment {
	var factors []types.RiskFactor
	score := 0

	// Factor 1: diff size. Large and medium are mutually exclusive.
	totalDiff := pr.LinesAdded + pr.LinesDeleted
	switch {
	case totalDiff > largeDiffThreshold:
		score += weightLargeDiff
		factors = append(factors, types.RiskFactor{
			Name:         "large_diff",
			Weight:       weightLargeDiff,
			Contribution: weightLargeDiff,
			Explanation: fmt.Sprintf(
				"Large diff detected: %d lines changed (>%d threshold). Increases review complexity and risk of regressions.",
				totalDiff, largeDiffThreshold),
		})
	case totalDiff > mediumDiffThreshold:
		score += weightMediumDiff
		factors = append(factors, types.RiskFactor{
			Name:         "medium_diff",
			Weight:       weightMediumDiff,
			Contribution: weightMediumDiff,
			Explanation: fmt.Sprintf(
				"Medium diff detected: %d lines changed. Moderate review burden.", totalDiff),
		})
	}

	// Factor 2: core path keywords in title or body.
	searchText := strings.ToLower(pr.Title + " " + pr.Body)
	var matched []string
	for _, kw := range corePathKeywords {
		if strings.Contains(searchText, kw) {
			matched = append(matched, kw)
		}
	}
	if len(matched) > 0 {
		score += weightCoreFiles
		factors = append(factors, types.RiskFactor{
			Name:         "core_files",
			Weight:       weightCoreFiles,
			Contribution: weightCoreFiles,
			Explanation: fmt.Sprintf(
				"Modification to sensitive core paths detected: %s. Requires security-aware review.",
				strings.Join(matched, ", ")),
		})
		if len(matched) >= 2 {
			score += weightMultiCore
			factors = append(factors, types.RiskFactor{
				Name:         "multi_core_files",
				Weight:       weightMultiCore,
				Contribution: weightMultiCore,
				Explanation: fmt.Sprintf(
					"Multiple core paths affected (%d keywords: %s). Cross-cutting change amplifies risk.",
					len(matched), strings.Join(matched, ", ")),
			})
		}
	}

	// Factor 3: CI status.
	switch pr.CIStatus {
	case "failure":
		score += weightCIFailure
		factors = append(factors, types.RiskFactor{
			Name:         "ci_failure",
			Weight:       weightCIFailure,
			Contribution: weightCIFailure,
			Explanation:  "Automated CI checks failed. Requires manual stability verification before merge.",
		})
	case "pending":
		score += weightCIPending
		factors = append(factors, types.RiskFactor{
			Name:         "ci_pending",
			Weight:       weightCIPending,
			Contribution: weightCIPending,
			Explanation:  "CI checks still pending. Status unknown, monitor before merging.",
		})
	}

	// Factor 4: first-time contributor.
	if pr.FirstTimeContributor {
		score += weightFirstTime
		factors = append(factors, types.RiskFactor{
			Name:         "first_time_contributor",
			Weight:       weightFirstTime,
			Contribution: weightFirstTime,
			Explanation:  "External contribution from new developer. Requires extra vetting for code quality and security.",
		})
	}

	// Factor 5: age. Only open PRs accrue age risk; stale and aging are
	// mutually exclusive.
	if pr.State == "open" {
		switch {
		case pr.AgeDays > staleAgeDays:
			score += weightStalePR
			factors = append(factors, types.RiskFactor{
				Name:         "stale_pr",
				Weight:       weightStalePR,
				Contribution: weightStalePR,
				Explanation: fmt.Sprintf(
					"PR has been open %d days (>%d day threshold). Prioritization required to prevent backlog growth.",
					int(math.Round(pr.AgeDays)), staleAgeDays),
			})
		case pr.AgeDays > agingAgeDays:
			score += weightAgingPR
			factors = append(factors, types.RiskFactor{
				Name:         "aging_pr",
				Weight:       weightAgingPR,
				Contribution: weightAgingPR,
				Explanation: fmt.Sprintf(
					"PR aging at %d days. Approaching stale threshold.",
					int(math.Round(pr.AgeDays))),
			})
		}
	}

	if score > maxScore {
		score = maxScore
	}
	return Assessment{Score: score, Factors: factors}
}

// Classify maps a risk score to its triage band.
func Classify(score int) string {
	switch {
	case score >= immediateReviewScore:
		return ClassImmediate
	case score >= scheduleReviewScore:
		return ClassSchedule
	default:
		return ClassSafe
	}
}

// SuggestLabels derives triage labels from triggered factors. Output order
// is fixed so repeated runs produce identical label sets.
func SuggestLabels(factors []types.RiskFactor) []string {
	names := make(map[string]bool, len(factors))
	for _, f := range factors {
		names[f.Name] = true
	}

	var labels []string
	if names["ci_failure"] {
		labels = append(labels, "needs-ci-fix")
	}
	if names["large_diff"] {
		labels = append(labels, "needs-split")
	}
	if names["stale_pr"] || names["aging_pr"] {
		labels = append(labels, "stale")
	}
	if names["first_time_contributor"] {
		labels = append(labels, "first-time-contributor")
	}
	if names["core_files"] || names["multi_core_files"] {
		labels = append(labels, "security-review")
	}
	return labels
}
