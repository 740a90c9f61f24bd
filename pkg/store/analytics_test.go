package store

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestContributorRanking_DecodesBuckets(t *testing.T) {
	store, transport := newTestElastic(t, func(_ *http.Request) (*http.Response, error) {
		return esResponse(200, `{"aggregations":{"by_author":{"buckets":[
			{"key":"alice","doc_count":31},
			{"key":"bob","doc_count":7}]}}}`), nil
	})

	ranking, err := store.ContributorRanking(context.Background(), "o/r")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranking) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(ranking))
	}
	if ranking[0].Author != "alice" || ranking[0].MergedCount != 31 {
		t.Errorf("unexpected top entry: %+v", ranking[0])
	}

	var body struct {
		Size  int            `json:"size"`
		Query map[string]any `json:"query"`
	}
	if err := json.Unmarshal(transport.bodies[0], &body); err != nil {
		t.Fatalf("bad query body: %v", err)
	}
	if body.Size != 0 {
		t.Errorf("expected size 0 aggregation query, got %d", body.Size)
	}
	// Ranking only counts merged PRs.
	if !strings.Contains(string(transport.bodies[0]), `"state":"merged"`) {
		t.Errorf("expected merged-state filter in query: %s", transport.bodies[0])
	}
}

func TestContributorRanking_MissingAggregationFails(t *testing.T) {
	store, _ := newTestElastic(t, func(_ *http.Request) (*http.Response, error) {
		return esResponse(200, `{"hits":{"hits":[]}}`), nil
	})
	if _, err := store.ContributorRanking(context.Background(), "o/r"); err == nil {
		t.Fatal("expected error when aggregation is absent")
	}
}

func TestCIFailureRate_Computation(t *testing.T) {
	calls := 0
	store, _ := newTestElastic(t, func(_ *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return esResponse(200, `{"count":40}`), nil
		}
		return esResponse(200, `{"count":6}`), nil
	})

	rate, err := store.ciFailureRate(context.Background(), "o/r")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.Total != 40 || rate.Failures != 6 {
		t.Errorf("unexpected counts: %+v", rate)
	}
	if rate.RatePct != 15.0 {
		t.Errorf("expected 15%% failure rate, got %v", rate.RatePct)
	}
}

func TestCIFailureRate_NoTrackedPRs(t *testing.T) {
	store, _ := newTestElastic(t, func(_ *http.Request) (*http.Response, error) {
		return esResponse(200, `{"count":0}`), nil
	})
	rate, err := store.ciFailureRate(context.Background(), "o/r")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.RatePct != 0 {
		t.Errorf("expected zero rate without division, got %v", rate.RatePct)
	}
}

func TestStalePRDetails_RoundsAges(t *testing.T) {
	store, transport := newTestElastic(t, func(_ *http.Request) (*http.Response, error) {
		return esResponse(200, `{"hits":{"hits":[
			{"_source":{"pr_number":9,"title":"Old one","author":"alice","pr_age_days":21.7,"html_url":"https://github.com/o/r/pull/9"}}]}}`), nil
	})

	stale, err := store.stalePRDetails(context.Background(), "o/r")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale PR, got %d", len(stale))
	}
	if stale[0].Number != 9 || stale[0].AgeDays != 22 {
		t.Errorf("unexpected stale PR: %+v", stale[0])
	}

	body := string(transport.bodies[0])
	if !strings.Contains(body, `"state":"open"`) || !strings.Contains(body, `"gt":14`) {
		t.Errorf("expected open-state and age-threshold filters: %s", body)
	}
}

func TestBacklogGrowth_JoinsOpenedAndClosedByWeek(t *testing.T) {
	calls := 0
	store, _ := newTestElastic(t, func(_ *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return esResponse(200, `{"aggregations":{"weekly":{"buckets":[
				{"key_as_string":"2026-03-02","doc_count":8},
				{"key_as_string":"2026-03-09","doc_count":5}]}}}`), nil
		}
		return esResponse(200, `{"aggregations":{"weekly":{"buckets":[
			{"key_as_string":"2026-03-02","doc_count":3}]}}}`), nil
	})

	backlog, err := store.backlogGrowth(context.Background(), "o/r")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backlog) != 2 {
		t.Fatalf("expected 2 weekly buckets, got %d", len(backlog))
	}
	if backlog[0].Week != "2026-03-02" || backlog[0].Opened != 8 || backlog[0].Closed != 3 {
		t.Errorf("unexpected first bucket: %+v", backlog[0])
	}
	// No closures recorded that week.
	if backlog[1].Opened != 5 || backlog[1].Closed != 0 {
		t.Errorf("unexpected second bucket: %+v", backlog[1])
	}
}

func TestIssueCounts_TalliesStates(t *testing.T) {
	store, _ := newTestElastic(t, func(_ *http.Request) (*http.Response, error) {
		return esResponse(200, `{"aggregations":{"by_state":{"buckets":[
			{"key":"open","doc_count":12},
			{"key":"closed","doc_count":30}]}}}`), nil
	})

	counts, err := store.issueCounts(context.Background(), "o/r")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.Total != 42 || counts.Open != 12 || counts.Closed != 30 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestAverageMergeTime_NilWhenNoMerges(t *testing.T) {
	store, _ := newTestElastic(t, func(_ *http.Request) (*http.Response, error) {
		return esResponse(200, `{"aggregations":{"avg_pr_age":{"value":null}}}`), nil
	})
	avg, err := store.averageMergeTime(context.Background(), "o/r")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if avg != nil {
		t.Errorf("expected nil average, got %v", *avg)
	}
}

func TestAverageMergeTime_RoundsToTwoDecimals(t *testing.T) {
	store, _ := newTestElastic(t, func(_ *http.Request) (*http.Response, error) {
		return esResponse(200, `{"aggregations":{"avg_pr_age":{"value":3.14159}}}`), nil
	})
	avg, err := store.averageMergeTime(context.Background(), "o/r")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if avg == nil || *avg != 3.14 {
		t.Errorf("expected 3.14, got %v", avg)
	}
}

func TestHealthSummary_DegradesPerMetric(t *testing.T) {
	// Every aggregation fails; the summary still comes back with zero
	// values instead of an error.
	store, _ := newTestElastic(t, func(_ *http.Request) (*http.Response, error) {
		return esResponse(500, `{"error":"shard failure"}`), nil
	})

	summary, err := store.HealthSummary(context.Background(), "o/r")
	if err != nil {
		t.Fatalf("expected per-metric degradation, got %v", err)
	}
	if summary.Repo != "o/r" {
		t.Errorf("expected repo set, got %q", summary.Repo)
	}
	if summary.PullRequests.StaleCount != 0 || len(summary.Trends.MergeVelocity) != 0 {
		t.Errorf("expected zero-valued metrics: %+v", summary)
	}
}
