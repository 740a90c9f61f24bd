package github

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestParseRepoRef(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    RepoRef
		wantErr bool
	}{
		{"full url", "https://github.com/elastic/elasticsearch", RepoRef{"elastic", "elasticsearch"}, false},
		{"url with git suffix", "https://github.com/golang/go.git", RepoRef{"golang", "go"}, false},
		{"url with trailing slash", "https://github.com/golang/go/", RepoRef{"golang", "go"}, false},
		{"bare owner name", "kubernetes/kubernetes", RepoRef{"kubernetes", "kubernetes"}, false},
		{"padded input", "  golang/go  ", RepoRef{"golang", "go"}, false},
		{"missing name", "golang", RepoRef{}, true},
		{"missing owner", "/go", RepoRef{}, true},
		{"empty", "", RepoRef{}, true},
		{"too many segments", "a/b/c", RepoRef{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRepoRef(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRepoRef(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseRepoRef(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPullRequests_HydratesListItems(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	doer := newMockDoer()
	ref := RepoRef{Owner: "o", Name: "r"}

	listURL := apiBase + "/repos/o/r/pulls?state=all&per_page=2&sort=created&direction=desc"
	doer.SetResponse("GET", listURL, 200, []map[string]any{
		{
			"number":     7,
			"title":      "Add caching layer",
			"state":      "open",
			"created_at": "2026-03-05T12:00:00Z",
			"updated_at": "2026-03-10T12:00:00Z",
			"html_url":   "https://github.com/o/r/pull/7",
			"user":       map[string]any{"login": "alice"},
			"labels":     []map[string]any{{"name": "enhancement"}},
			"head":       map[string]any{"sha": "abc"},
		},
		{
			"number":     6,
			"title":      "Fix flaky test",
			"state":      "closed",
			"created_at": "2026-03-01T12:00:00Z",
			"merged_at":  "2026-03-03T12:00:00Z",
			"html_url":   "https://github.com/o/r/pull/6",
			"user":       map[string]any{"login": "bob"},
		},
	})
	doer.SetResponse("GET", apiBase+"/repos/o/r/pulls/7", 200,
		map[string]any{"additions": 120, "deletions": 30, "changed_files": 4})
	doer.SetResponse("GET", apiBase+"/repos/o/r/pulls/6", 200,
		map[string]any{"additions": 10, "deletions": 2, "changed_files": 1})
	doer.SetResponse("GET", apiBase+"/repos/o/r/commits/abc/status", 200,
		map[string]any{"state": "success"})

	c := newTestClient(doer, newMockClock(now))

	var progress []string
	prs, err := c.PullRequests(context.Background(), ref, 2, func(done, total int) {
		progress = append(progress, fmt.Sprintf("%d/%d", done, total))
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prs) != 2 {
		t.Fatalf("expected 2 PRs, got %d", len(prs))
	}

	open := prs[0]
	if open.Number != 7 || open.Author != "alice" || open.State != "open" {
		t.Errorf("unexpected open PR: %+v", open)
	}
	if open.LinesAdded != 120 || open.LinesDeleted != 30 || open.FilesChanged != 4 {
		t.Errorf("diff stats not hydrated: %+v", open)
	}
	if open.CIStatus != "success" {
		t.Errorf("expected CI success, got %q", open.CIStatus)
	}
	if open.AgeDays != 10.0 {
		t.Errorf("expected age 10 days to now, got %v", open.AgeDays)
	}
	if len(open.Labels) != 1 || open.Labels[0] != "enhancement" {
		t.Errorf("unexpected labels: %v", open.Labels)
	}

	merged := prs[1]
	if merged.State != "merged" {
		t.Errorf("expected merged_at to promote state to merged, got %q", merged.State)
	}
	if merged.AgeDays != 2.0 {
		t.Errorf("expected age to stop at merge (2 days), got %v", merged.AgeDays)
	}
	if merged.CIStatus != "unknown" {
		t.Errorf("expected unknown CI without head sha, got %q", merged.CIStatus)
	}

	if len(progress) != 1 || progress[0] != "2/2" {
		t.Errorf("expected single full-batch progress call, got %v", progress)
	}
}

func TestPullRequests_DetailFailureDegrades(t *testing.T) {
	doer := newMockDoer()
	listURL := apiBase + "/repos/o/r/pulls?state=all&per_page=1&sort=created&direction=desc"
	doer.SetResponse("GET", listURL, 200, []map[string]any{
		{
			"number":     1,
			"title":      "Lonely PR",
			"state":      "open",
			"created_at": "2026-03-14T12:00:00Z",
			"user":       map[string]any{"login": "alice"},
		},
	})
	// Detail endpoint left unmocked: 404, not retried, swallowed.

	c := newTestClient(doer, newMockClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)))
	prs, err := c.PullRequests(context.Background(), RepoRef{Owner: "o", Name: "r"}, 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prs) != 1 {
		t.Fatalf("expected 1 PR, got %d", len(prs))
	}
	if prs[0].LinesAdded != 0 || prs[0].FilesChanged != 0 {
		t.Errorf("expected zero diff stats on detail failure, got %+v", prs[0])
	}
	if prs[0].Title != "Lonely PR" {
		t.Errorf("list fields should survive detail failure, got %+v", prs[0])
	}
}

func TestPullRequests_ListFailureIsFatal(t *testing.T) {
	doer := newMockDoer()
	listURL := apiBase + "/repos/o/r/pulls?state=all&per_page=1&sort=created&direction=desc"
	doer.SetResponse("GET", listURL, 401, map[string]string{"message": "Bad credentials"})

	c := newTestClient(doer, newMockClock(time.Now()))
	if _, err := c.PullRequests(context.Background(), RepoRef{Owner: "o", Name: "r"}, 1, nil); err == nil {
		t.Fatal("expected error when the PR list cannot be fetched")
	}
}

func TestIssues_FiltersPullRequests(t *testing.T) {
	doer := newMockDoer()
	listURL := apiBase + "/repos/o/r/issues?state=all&per_page=30&sort=created&direction=desc"
	doer.SetResponse("GET", listURL, 200, []map[string]any{
		{
			"number":     12,
			"title":      "Crash on startup",
			"state":      "open",
			"comments":   3,
			"created_at": "2026-03-01T00:00:00Z",
			"user":       map[string]any{"login": "carol"},
		},
		{
			"number":       13,
			"title":        "Actually a PR",
			"state":        "open",
			"pull_request": map[string]any{},
		},
	})

	c := newTestClient(doer, newMockClock(time.Now()))
	issues, err := c.Issues(context.Background(), RepoRef{Owner: "o", Name: "r"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected PR entries filtered out, got %d issues", len(issues))
	}
	if issues[0].Number != 12 || issues[0].Author != "carol" || issues[0].Comments != 3 {
		t.Errorf("unexpected issue: %+v", issues[0])
	}
	if issues[0].Repo != "o/r" {
		t.Errorf("expected repo stamped on issue, got %q", issues[0].Repo)
	}
}

func TestIsFirstTimeContributor(t *testing.T) {
	doer := newMockDoer()
	searchURL := apiBase + "/search/commits?q=author%3Aalice+repo%3Ao%2Fr&per_page=1"
	doer.SetResponse("GET", searchURL, 200, map[string]any{"total_count": 1})

	c := newTestClient(doer, newMockClock(time.Now()))
	ref := RepoRef{Owner: "o", Name: "r"}

	first, err := c.IsFirstTimeContributor(context.Background(), ref, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Error("expected single-commit author to be a first-time contributor")
	}

	// Second lookup is served from the cache.
	if _, err := c.IsFirstTimeContributor(context.Background(), ref, "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls := doer.Calls(); len(calls) != 1 {
		t.Errorf("expected cached result, got %d HTTP calls", len(calls))
	}
}

func TestIsFirstTimeContributor_Veteran(t *testing.T) {
	doer := newMockDoer()
	searchURL := apiBase + "/search/commits?q=author%3Abob+repo%3Ao%2Fr&per_page=1"
	doer.SetResponse("GET", searchURL, 200, map[string]any{"total_count": 57})

	c := newTestClient(doer, newMockClock(time.Now()))
	first, err := c.IsFirstTimeContributor(context.Background(), RepoRef{Owner: "o", Name: "r"}, "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first {
		t.Error("expected veteran author not to be flagged")
	}
}

func TestIsFirstTimeContributor_UnknownLogin(t *testing.T) {
	doer := newMockDoer()
	c := newTestClient(doer, newMockClock(time.Now()))

	first, err := c.IsFirstTimeContributor(context.Background(), RepoRef{Owner: "o", Name: "r"}, "unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first {
		t.Error("expected unknown author to be skipped")
	}
	if len(doer.Calls()) != 0 {
		t.Error("expected no HTTP call for unknown author")
	}
}
