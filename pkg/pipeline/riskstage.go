package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/risk"
	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/types"
)

const (
	riskAnalysisLimit  = 50 // PRs re-read per run, highest risk first
	reviewerSuggestCap = 5
)

// runRisk re-reads the highest-risk persisted PRs, classifies them, appends
// reasoning traces for the run, and derives reviewer suggestions from the
// merged-PR ranking.
func (p *Pipeline) runRisk(ctx context.Context, repo, runID string, step func(string, int)) (*types.RiskResult, error) {
	step("Retrieving pull requests for risk analysis...", 10)
	prs, err := p.store.PRsByRisk(ctx, repo, riskAnalysisLimit)
	if err != nil {
		return nil, err
	}

	step("Generating deterministic reasoning traces...", 40)
	classified := make([]types.ClassifiedPR, 0, len(prs))
	traces := make([]types.ReasoningTrace, 0, len(prs))
	for _, pr := range prs {
		labels := risk.SuggestLabels(pr.RiskFactors)
		classification := risk.Classify(pr.RiskScore)
		classified = append(classified, types.ClassifiedPR{
			Number:               pr.Number,
			Title:                pr.Title,
			State:                pr.State,
			Author:               pr.Author,
			RiskScore:            pr.RiskScore,
			Classification:       classification,
			ReasoningTrace:       pr.RiskFactors,
			SuggestedLabels:      labels,
			CIStatus:             pr.CIStatus,
			AgeDays:              pr.AgeDays,
			FilesChanged:         pr.FilesChanged,
			LinesAdded:           pr.LinesAdded,
			LinesDeleted:         pr.LinesDeleted,
			Labels:               pr.Labels,
			HTMLURL:              pr.HTMLURL,
			FirstTimeContributor: pr.FirstTimeContributor,
		})
		traces = append(traces, types.ReasoningTrace{
			Repo:            repo,
			Number:          pr.Number,
			RunID:           runID,
			RiskScore:       pr.RiskScore,
			Classification:  classification,
			Factors:         pr.RiskFactors,
			SuggestedLabels: labels,
		})
	}

	step("Persisting reasoning traces...", 60)
	if err := p.store.IndexTraces(ctx, traces); err != nil {
		// Traces are audit enrichment; losing them does not invalidate the run
		slog.Warn("Failed to persist reasoning traces", "component", "pipeline", "run_id", runID, "error", err)
	}

	step("Computing reviewer suggestions...", 80)
	var suggestions []types.ReviewerSuggestion
	ranking, err := p.store.ContributorRanking(ctx, repo)
	if err != nil {
		slog.Warn("Contributor ranking unavailable", "component", "pipeline", "repo", repo, "error", err)
	} else {
		if len(ranking) > reviewerSuggestCap {
			ranking = ranking[:reviewerSuggestCap]
		}
		for _, r := range ranking {
			suggestions = append(suggestions, types.ReviewerSuggestion{
				Login:       r.Author,
				MergedCount: r.MergedCount,
				Reason:      fmt.Sprintf("Top contributor with %d merged PRs. Familiar with the codebase.", r.MergedCount),
			})
		}
	}

	step("Risk analysis complete.", 100)
	return &types.RiskResult{
		HighRiskPRs:         classified,
		TotalAnalyzed:       len(classified),
		ReviewerSuggestions: suggestions,
	}, nil
}
