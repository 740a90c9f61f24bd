package github

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/types"
)

const (
	maxPRListPage       = 100 // GitHub caps per_page at 100
	issuesPerPage       = 30
	contributorsPerPage = 30
	detailBatchSize     = 5 // concurrent per-PR detail fetches
	hoursPerDay         = 24
)

// RepoRef identifies a GitHub repository.
type RepoRef struct {
	Owner string
	Name  string
}

// String returns the owner/name form.
func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

var githubURLPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)`)

// ParseRepoRef parses a repository reference in either full URL form
// (https://github.com/owner/name, with optional .git suffix) or bare
// owner/name form.
func ParseRepoRef(ref string) (RepoRef, error) {
	cleaned := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSpace(ref), "/"), ".git")
	cleaned = strings.TrimSuffix(cleaned, "/")
	if m := githubURLPattern.FindStringSubmatch(cleaned); m != nil {
		return RepoRef{Owner: m[1], Name: m[2]}, nil
	}
	parts := strings.Split(cleaned, "/")
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return RepoRef{Owner: parts[0], Name: parts[1]}, nil
	}
	return RepoRef{}, fmt.Errorf("%w: %q", ErrInvalidRepoRef, ref)
}

// prListItem is the subset of the PR list payload we consume.
type prListItem struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	MergedAt  string `json:"merged_at"`
	ClosedAt  string `json:"closed_at"`
	HTMLURL   string `json:"html_url"`
	User      *struct {
		Login string `json:"login"`
	} `json:"user"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Head struct {
		SHA string `json:"sha"`
	} `json:"head"`
}

// PullRequests fetches the most recent pull requests (all states, newest
// first) with per-PR detail and CI status. Detail fetches run in batches of
// detailBatchSize; onProgress, when non-nil, is called after each batch with
// (done, total).
func (c *Client) PullRequests(ctx context.Context, ref RepoRef, maxPRs int, onProgress func(done, total int)) ([]types.PullRequest, error) {
	limit := maxPRs
	if limit <= 0 || limit > maxPRListPage {
		limit = maxPRListPage
	}
	listURL := fmt.Sprintf("%s/repos/%s/%s/pulls?state=all&per_page=%d&sort=created&direction=desc",
		apiBase, ref.Owner, ref.Name, limit)

	var list []prListItem
	if err := c.getJSON(ctx, listURL, &list); err != nil {
		return nil, fmt.Errorf("failed to list pull requests for %s: %w", ref, err)
	}
	slog.Info("Fetched PR list", "component", "github", "repo", ref.String(), "count", len(list))

	results := make([]types.PullRequest, len(list))
	for start := 0; start < len(list); start += detailBatchSize {
		end := start + detailBatchSize
		if end > len(list) {
			end = len(list)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = c.hydratePR(ctx, ref, list[i])
			}(i)
		}
		wg.Wait()

		if onProgress != nil {
			onProgress(end, len(list))
		}
	}
	return results, nil
}

// hydratePR fills in diff stats, CI status, age, and the first-time
// contributor flag for one listed PR. Detail failures degrade to zero
// values rather than failing the whole ingestion.
func (c *Client) hydratePR(ctx context.Context, ref RepoRef, item prListItem) types.PullRequest {
	pr := types.PullRequest{
		Repo:      ref.String(),
		Number:    item.Number,
		Title:     item.Title,
		Body:      item.Body,
		State:     item.State,
		Author:    "unknown",
		Labels:    labelNames(item.Labels),
		CreatedAt: parseTime(item.CreatedAt),
		UpdatedAt: parseTime(item.UpdatedAt),
		MergedAt:  parseTimePtr(item.MergedAt),
		ClosedAt:  parseTimePtr(item.ClosedAt),
		CIStatus:  "unknown",
		HTMLURL:   item.HTMLURL,
	}
	if item.User != nil && item.User.Login != "" {
		pr.Author = item.User.Login
	}
	if pr.MergedAt != nil {
		pr.State = "merged"
	}

	var detail struct {
		Additions    int `json:"additions"`
		Deletions    int `json:"deletions"`
		ChangedFiles int `json:"changed_files"`
	}
	detailURL := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", apiBase, ref.Owner, ref.Name, item.Number)
	if err := c.getJSON(ctx, detailURL, &detail); err != nil {
		slog.Warn("Could not fetch PR detail", "component", "github", "repo", ref.String(), "pr", item.Number, "error", err)
	} else {
		pr.FilesChanged = detail.ChangedFiles
		pr.LinesAdded = detail.Additions
		pr.LinesDeleted = detail.Deletions
	}

	if item.Head.SHA != "" {
		var status struct {
			State string `json:"state"`
		}
		statusURL := fmt.Sprintf("%s/repos/%s/%s/commits/%s/status", apiBase, ref.Owner, ref.Name, item.Head.SHA)
		if err := c.getJSON(ctx, statusURL, &status); err == nil && status.State != "" {
			pr.CIStatus = status.State
		}
	}

	// Age runs to the terminal event for closed PRs, to now for open ones.
	end := c.clock.Now()
	switch {
	case pr.MergedAt != nil:
		end = *pr.MergedAt
	case pr.ClosedAt != nil:
		end = *pr.ClosedAt
	}
	if !pr.CreatedAt.IsZero() {
		ageDays := end.Sub(pr.CreatedAt).Hours() / hoursPerDay
		pr.AgeDays = math.Round(ageDays*100) / 100
	}

	// The commit search API is aggressively rate-limited for anonymous
	// callers, so the first-time check only runs when authenticated.
	if c.token != "" || c.isAppAuth {
		if first, err := c.IsFirstTimeContributor(ctx, ref, pr.Author); err == nil {
			pr.FirstTimeContributor = first
		}
	}
	return pr
}

// IsFirstTimeContributor reports whether login has at most one commit in the
// repository. Results are cached per (repo, login).
func (c *Client) IsFirstTimeContributor(ctx context.Context, ref RepoRef, login string) (bool, error) {
	if login == "" || login == "unknown" {
		return false, nil
	}
	if first, ok := c.firstTime.Get(ref.String(), login); ok {
		return first, nil
	}

	searchURL := fmt.Sprintf("%s/search/commits?q=%s&per_page=1",
		apiBase, url.QueryEscape(fmt.Sprintf("author:%s repo:%s", login, ref)))
	var result struct {
		TotalCount int `json:"total_count"`
	}
	if err := c.getJSON(ctx, searchURL, &result); err != nil {
		return false, err
	}
	first := result.TotalCount <= 1
	c.firstTime.Set(ref.String(), login, first)
	return first, nil
}

// Issues fetches the most recent issues (all states, newest first). Pull
// requests surfaced by the issues endpoint are filtered out.
func (c *Client) Issues(ctx context.Context, ref RepoRef) ([]types.Issue, error) {
	listURL := fmt.Sprintf("%s/repos/%s/%s/issues?state=all&per_page=%d&sort=created&direction=desc",
		apiBase, ref.Owner, ref.Name, issuesPerPage)

	var list []struct {
		Number    int    `json:"number"`
		Title     string `json:"title"`
		Body      string `json:"body"`
		State     string `json:"state"`
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
		ClosedAt  string `json:"closed_at"`
		Comments  int    `json:"comments"`
		HTMLURL   string `json:"html_url"`
		User      *struct {
			Login string `json:"login"`
		} `json:"user"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
		PullRequest *struct{} `json:"pull_request"`
	}
	if err := c.getJSON(ctx, listURL, &list); err != nil {
		return nil, fmt.Errorf("failed to list issues for %s: %w", ref, err)
	}

	issues := make([]types.Issue, 0, len(list))
	for _, item := range list {
		if item.PullRequest != nil {
			continue
		}
		issue := types.Issue{
			Repo:      ref.String(),
			Number:    item.Number,
			Title:     item.Title,
			Body:      item.Body,
			State:     item.State,
			Author:    "unknown",
			Labels:    labelNames(item.Labels),
			CreatedAt: parseTime(item.CreatedAt),
			UpdatedAt: parseTime(item.UpdatedAt),
			ClosedAt:  parseTimePtr(item.ClosedAt),
			Comments:  item.Comments,
			HTMLURL:   item.HTMLURL,
		}
		if item.User != nil && item.User.Login != "" {
			issue.Author = item.User.Login
		}
		issues = append(issues, issue)
	}
	slog.Info("Fetched issues", "component", "github",
		"repo", ref.String(), "count", len(issues), "filtered_from", len(list))
	return issues, nil
}

// Contributors fetches the repository's top contributors by commit count.
func (c *Client) Contributors(ctx context.Context, ref RepoRef) ([]types.Contributor, error) {
	listURL := fmt.Sprintf("%s/repos/%s/%s/contributors?per_page=%d",
		apiBase, ref.Owner, ref.Name, contributorsPerPage)

	var list []struct {
		Login         string `json:"login"`
		Contributions int    `json:"contributions"`
		AvatarURL     string `json:"avatar_url"`
		HTMLURL       string `json:"html_url"`
	}
	if err := c.getJSON(ctx, listURL, &list); err != nil {
		return nil, fmt.Errorf("failed to list contributors for %s: %w", ref, err)
	}

	contributors := make([]types.Contributor, 0, len(list))
	for _, item := range list {
		contributors = append(contributors, types.Contributor{
			Repo:          ref.String(),
			Login:         item.Login,
			Contributions: item.Contributions,
			AvatarURL:     item.AvatarURL,
			ProfileURL:    item.HTMLURL,
		})
	}
	slog.Info("Fetched contributors", "component", "github", "repo", ref.String(), "count", len(contributors))
	return contributors, nil
}

func labelNames(labels []struct {
	Name string `json:"name"`
},
) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.Name)
	}
	return names
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := parseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}
