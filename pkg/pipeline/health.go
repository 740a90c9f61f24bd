package pipeline

import (
	"context"
	"math"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/types"
)

// Health classification bands.
const (
	HealthOptimal  = "OPTIMAL"
	HealthStable   = "STABLE"
	HealthCritical = "CRITICAL"
)

// Composite score penalties and thresholds.
const (
	stalePenaltyScale   = 40.0
	stalePenaltyCap     = 30.0
	ciPenaltyScale      = 0.5
	ciPenaltyCap        = 25.0
	velocityDownPenalty = 15.0

	criticalScoreBelow = 40
	stableScoreBelow   = 70
	criticalStaleRatio = 0.4
	stableStaleRatio   = 0.2
	criticalCIRatePct  = 30.0
	stableCIRatePct    = 15.0

	velocityUpFactor   = 1.2
	velocityDownFactor = 0.7
)

// runHealth reads the aggregate telemetry and derives the composite health
// classification.
func (p *Pipeline) runHealth(ctx context.Context, repo string, step func(string, int)) (*types.HealthTelemetry, error) {
	step("Aggregating repository health telemetry...", 20)
	summary, err := p.store.HealthSummary(ctx, repo)
	if err != nil {
		return nil, err
	}

	step("Computing composite health classification...", 70)
	openCount := 0
	for _, d := range summary.PullRequests.Distribution {
		if d.State == "open" {
			openCount = d.Count
		}
	}
	if openCount < 1 {
		openCount = 1
	}
	staleRatio := float64(summary.PullRequests.StaleCount) / float64(openCount)
	ciRate := summary.PullRequests.CIFailureRate.RatePct
	trend := velocityTrend(summary.Trends.MergeVelocity)

	score := 100.0
	score -= math.Min(staleRatio*stalePenaltyScale, stalePenaltyCap)
	score -= math.Min(ciRate*ciPenaltyScale, ciPenaltyCap)
	if trend == trendDown {
		score -= velocityDownPenalty
	}
	composite := int(math.Round(math.Max(0, score)))
	classification := classifyHealth(composite, staleRatio, ciRate)

	step("Health analysis complete.", 100)
	return &types.HealthTelemetry{
		Repo:            repo,
		Classification:  classification,
		CompositeScore:  composite,
		PullRequests:    summary.PullRequests,
		Trends:          summary.Trends,
		Issues:          summary.Issues,
		TopContributors: summary.TopContributors,
	}, nil
}

// classifyHealth maps a composite score and its raw inputs to a health
// band. A high stale ratio or CI failure rate forces a lower band even
// when the composite score alone would not.
func classifyHealth(composite int, staleRatio, ciRate float64) string {
	switch {
	case composite < criticalScoreBelow || staleRatio > criticalStaleRatio || ciRate > criticalCIRatePct:
		return HealthCritical
	case composite < stableScoreBelow || staleRatio > stableStaleRatio || ciRate > stableCIRatePct:
		return HealthStable
	default:
		return HealthOptimal
	}
}

type trendDirection int

const (
	trendStable trendDirection = iota
	trendUp
	trendDown
)

// velocityTrend compares the last two weeks of merges against the prior
// two. Fewer than four buckets means no trend call.
func velocityTrend(series []types.WeeklyPoint) trendDirection {
	if len(series) < 4 {
		return trendStable
	}
	recent := float64(sumCounts(series[len(series)-2:]))
	older := float64(sumCounts(series[len(series)-4 : len(series)-2]))
	switch {
	case recent > older*velocityUpFactor:
		return trendUp
	case recent < older*velocityDownFactor:
		return trendDown
	default:
		return trendStable
	}
}

func sumCounts(points []types.WeeklyPoint) int {
	total := 0
	for _, p := range points {
		total += p.Count
	}
	return total
}
