package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/types"
)

// Aggregation window and limits.
const (
	trendWindow        = "now-8w/w" // eight calendar weeks of trend history
	trendWindowEnd     = "now/w"
	staleDetailLimit   = 20
	rankingLimit       = 20
	topContributorsCap = 10
	staleAgeDays       = 14
)

type termsAgg struct {
	Buckets []struct {
		Key      string `json:"key"`
		DocCount int    `json:"doc_count"`
	} `json:"buckets"`
}

type histogramAgg struct {
	Buckets []struct {
		KeyAsString string `json:"key_as_string"`
		DocCount    int    `json:"doc_count"`
	} `json:"buckets"`
}

// ContributorRanking ranks authors by merged PR count, descending.
func (s *Elastic) ContributorRanking(ctx context.Context, repo string) ([]types.ContributorRank, error) {
	body := map[string]any{
		"size": 0,
		"query": map[string]any{"bool": map[string]any{"must": []any{
			termQuery("repo", repo),
			termQuery("state", "merged"),
		}}},
		"aggs": map[string]any{
			"by_author": map[string]any{
				"terms": map[string]any{"field": "author", "size": rankingLimit},
			},
		},
	}
	resp, err := s.search(ctx, IndexPRs, body)
	if err != nil {
		return nil, err
	}
	var agg termsAgg
	if err := decodeAgg(resp, "by_author", &agg); err != nil {
		return nil, err
	}
	ranking := make([]types.ContributorRank, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		ranking = append(ranking, types.ContributorRank{Author: b.Key, MergedCount: b.DocCount})
	}
	return ranking, nil
}

// HealthSummary aggregates the full health telemetry for one repo. Each
// sub-metric is best effort: a failing aggregation logs a warning and
// contributes its zero value, matching how a partially ingested repo
// should degrade.
func (s *Elastic) HealthSummary(ctx context.Context, repo string) (*types.HealthSummary, error) {
	summary := &types.HealthSummary{Repo: repo}

	distribution, err := s.prDistribution(ctx, repo)
	if err != nil {
		slog.Warn("PR distribution unavailable", "component", "elastic", "repo", repo, "error", err)
	}
	summary.PullRequests.Distribution = distribution

	avgMerge, err := s.averageMergeTime(ctx, repo)
	if err != nil {
		slog.Warn("Merge time unavailable", "component", "elastic", "repo", repo, "error", err)
	}
	summary.PullRequests.AvgMergeTimeDays = avgMerge

	staleCount, err := s.stalePRCount(ctx, repo)
	if err != nil {
		slog.Warn("Stale count unavailable", "component", "elastic", "repo", repo, "error", err)
	}
	summary.PullRequests.StaleCount = staleCount

	stalePRs, err := s.stalePRDetails(ctx, repo)
	if err != nil {
		slog.Warn("Stale details unavailable", "component", "elastic", "repo", repo, "error", err)
	}
	summary.PullRequests.StalePRs = stalePRs

	ciRate, err := s.ciFailureRate(ctx, repo)
	if err != nil {
		slog.Warn("CI failure rate unavailable", "component", "elastic", "repo", repo, "error", err)
	}
	summary.PullRequests.CIFailureRate = ciRate

	mergeVelocity, err := s.weeklySeries(ctx, "merged_at", map[string]any{
		"bool": map[string]any{"must": []any{
			termQuery("repo", repo),
			map[string]any{"exists": map[string]any{"field": "merged_at"}},
			rangeGTE("merged_at", trendWindow),
		}},
	})
	if err != nil {
		slog.Warn("Merge velocity unavailable", "component", "elastic", "repo", repo, "error", err)
	}
	summary.Trends.MergeVelocity = mergeVelocity

	backlog, err := s.backlogGrowth(ctx, repo)
	if err != nil {
		slog.Warn("Backlog growth unavailable", "component", "elastic", "repo", repo, "error", err)
	}
	summary.Trends.BacklogGrowth = backlog

	ciSeries, err := s.weeklySeries(ctx, "created_at", map[string]any{
		"bool": map[string]any{"must": []any{
			termQuery("repo", repo),
			termQuery("ci_status", "failure"),
			rangeGTE("created_at", trendWindow),
		}},
	})
	if err != nil {
		slog.Warn("CI failure series unavailable", "component", "elastic", "repo", repo, "error", err)
	}
	summary.Trends.CIFailures = ciSeries

	issues, err := s.issueCounts(ctx, repo)
	if err != nil {
		slog.Warn("Issue counts unavailable", "component", "elastic", "repo", repo, "error", err)
	}
	summary.Issues = issues

	ranking, err := s.ContributorRanking(ctx, repo)
	if err != nil {
		slog.Warn("Contributor ranking unavailable", "component", "elastic", "repo", repo, "error", err)
	}
	if len(ranking) > topContributorsCap {
		ranking = ranking[:topContributorsCap]
	}
	summary.TopContributors = ranking

	return summary, nil
}

func (s *Elastic) prDistribution(ctx context.Context, repo string) ([]types.StateCount, error) {
	body := map[string]any{
		"size":  0,
		"query": termQuery("repo", repo),
		"aggs": map[string]any{
			"by_state": map[string]any{"terms": map[string]any{"field": "state"}},
		},
	}
	resp, err := s.search(ctx, IndexPRs, body)
	if err != nil {
		return nil, err
	}
	var agg termsAgg
	if err := decodeAgg(resp, "by_state", &agg); err != nil {
		return nil, err
	}
	dist := make([]types.StateCount, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		dist = append(dist, types.StateCount{State: b.Key, Count: b.DocCount})
	}
	return dist, nil
}

func (s *Elastic) averageMergeTime(ctx context.Context, repo string) (*float64, error) {
	body := map[string]any{
		"size": 0,
		"query": map[string]any{"bool": map[string]any{"must": []any{
			termQuery("repo", repo),
			map[string]any{"exists": map[string]any{"field": "merged_at"}},
		}}},
		"aggs": map[string]any{
			"avg_pr_age": map[string]any{"avg": map[string]any{"field": "pr_age_days"}},
		},
	}
	resp, err := s.search(ctx, IndexPRs, body)
	if err != nil {
		return nil, err
	}
	var agg struct {
		Value *float64 `json:"value"`
	}
	if err := decodeAgg(resp, "avg_pr_age", &agg); err != nil {
		return nil, err
	}
	if agg.Value == nil {
		return nil, nil
	}
	rounded := math.Round(*agg.Value*100) / 100
	return &rounded, nil
}

func (s *Elastic) ciFailureRate(ctx context.Context, repo string) (types.CIFailureRate, error) {
	total, err := s.count(ctx, IndexPRs, map[string]any{
		"bool": map[string]any{
			"must":     []any{termQuery("repo", repo)},
			"must_not": []any{termQuery("ci_status", "unknown")},
		},
	})
	if err != nil {
		return types.CIFailureRate{}, err
	}
	failures, err := s.count(ctx, IndexPRs, map[string]any{
		"bool": map[string]any{"must": []any{
			termQuery("repo", repo),
			termQuery("ci_status", "failure"),
		}},
	})
	if err != nil {
		return types.CIFailureRate{}, err
	}
	rate := 0.0
	if total > 0 {
		rate = math.Round(float64(failures)/float64(total)*10000) / 100
	}
	return types.CIFailureRate{Total: total, Failures: failures, RatePct: rate}, nil
}

func (s *Elastic) stalePRCount(ctx context.Context, repo string) (int, error) {
	return s.count(ctx, IndexPRs, staleQuery(repo))
}

func (s *Elastic) stalePRDetails(ctx context.Context, repo string) ([]types.StalePR, error) {
	body := map[string]any{
		"size":    staleDetailLimit,
		"query":   staleQuery(repo),
		"sort":    []any{map[string]any{"pr_age_days": map[string]any{"order": "desc"}}},
		"_source": []string{"pr_number", "title", "author", "pr_age_days", "html_url"},
	}
	resp, err := s.search(ctx, IndexPRs, body)
	if err != nil {
		return nil, err
	}
	stale := make([]types.StalePR, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var src struct {
			Title   string  `json:"title"`
			Author  string  `json:"author"`
			HTMLURL string  `json:"html_url"`
			AgeDays float64 `json:"pr_age_days"`
			Number  int     `json:"pr_number"`
		}
		if err := json.Unmarshal(hit.Source, &src); err != nil {
			return nil, fmt.Errorf("failed to decode stale PR: %w", err)
		}
		stale = append(stale, types.StalePR{
			Number:  src.Number,
			Title:   src.Title,
			Author:  src.Author,
			AgeDays: math.Round(src.AgeDays),
			HTMLURL: src.HTMLURL,
		})
	}
	return stale, nil
}

func staleQuery(repo string) map[string]any {
	return map[string]any{"bool": map[string]any{"must": []any{
		termQuery("repo", repo),
		termQuery("state", "open"),
		map[string]any{"range": map[string]any{"pr_age_days": map[string]any{"gt": staleAgeDays}}},
	}}}
}

// weeklySeries runs one calendar-week date histogram over the trend window.
// Empty weeks are materialized so trend comparisons see a full series.
func (s *Elastic) weeklySeries(ctx context.Context, field string, query map[string]any) ([]types.WeeklyPoint, error) {
	body := map[string]any{
		"size":  0,
		"query": query,
		"aggs": map[string]any{
			"weekly": weeklyHistogram(field),
		},
	}
	resp, err := s.search(ctx, IndexPRs, body)
	if err != nil {
		return nil, err
	}
	var agg histogramAgg
	if err := decodeAgg(resp, "weekly", &agg); err != nil {
		return nil, err
	}
	series := make([]types.WeeklyPoint, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		series = append(series, types.WeeklyPoint{Week: b.KeyAsString, Count: b.DocCount})
	}
	return series, nil
}

func (s *Elastic) backlogGrowth(ctx context.Context, repo string) ([]types.BacklogPoint, error) {
	opened, err := s.weeklySeries(ctx, "created_at", map[string]any{
		"bool": map[string]any{"must": []any{
			termQuery("repo", repo),
			rangeGTE("created_at", trendWindow),
		}},
	})
	if err != nil {
		return nil, err
	}
	closed, err := s.weeklySeries(ctx, "closed_at", map[string]any{
		"bool": map[string]any{"must": []any{
			termQuery("repo", repo),
			map[string]any{"exists": map[string]any{"field": "closed_at"}},
			rangeGTE("closed_at", trendWindow),
		}},
	})
	if err != nil {
		return nil, err
	}

	closedByWeek := make(map[string]int, len(closed))
	for _, p := range closed {
		closedByWeek[p.Week] = p.Count
	}
	backlog := make([]types.BacklogPoint, 0, len(opened))
	for _, p := range opened {
		backlog = append(backlog, types.BacklogPoint{
			Week:   p.Week,
			Opened: p.Count,
			Closed: closedByWeek[p.Week],
		})
	}
	return backlog, nil
}

func (s *Elastic) issueCounts(ctx context.Context, repo string) (types.IssueCounts, error) {
	body := map[string]any{
		"size":  0,
		"query": termQuery("repo", repo),
		"aggs": map[string]any{
			"by_state": map[string]any{"terms": map[string]any{"field": "state"}},
		},
	}
	resp, err := s.search(ctx, IndexIssues, body)
	if err != nil {
		return types.IssueCounts{}, err
	}
	var agg termsAgg
	if err := decodeAgg(resp, "by_state", &agg); err != nil {
		return types.IssueCounts{}, err
	}
	var counts types.IssueCounts
	for _, b := range agg.Buckets {
		counts.Total += b.DocCount
		switch b.Key {
		case "open":
			counts.Open = b.DocCount
		case "closed":
			counts.Closed = b.DocCount
		}
	}
	return counts, nil
}

func weeklyHistogram(field string) map[string]any {
	return map[string]any{
		"date_histogram": map[string]any{
			"field":             field,
			"calendar_interval": "week",
			"format":            "yyyy-MM-dd",
			"min_doc_count":     0,
			"extended_bounds":   map[string]any{"min": trendWindow, "max": trendWindowEnd},
		},
	}
}

func rangeGTE(field, value string) map[string]any {
	return map[string]any{"range": map[string]any{field: map[string]any{"gte": value}}}
}

func decodeAgg(resp *searchResponse, name string, out any) error {
	raw, ok := resp.Aggregations[name]
	if !ok {
		return fmt.Errorf("aggregation %q missing from response", name)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode aggregation %q: %w", name, err)
	}
	return nil
}
