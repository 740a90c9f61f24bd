package store

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/types"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Index mappings. risk_factors, factors, and the run summary objects are
// stored but not indexed.
const (
	prMappings = `{"mappings":{"properties":{
		"repo":{"type":"keyword"},"pr_number":{"type":"integer"},
		"title":{"type":"text"},"body":{"type":"text"},
		"state":{"type":"keyword"},"author":{"type":"keyword"},"labels":{"type":"keyword"},
		"created_at":{"type":"date"},"updated_at":{"type":"date"},
		"merged_at":{"type":"date"},"closed_at":{"type":"date"},
		"files_changed":{"type":"integer"},"lines_added":{"type":"integer"},"lines_deleted":{"type":"integer"},
		"is_first_time_contributor":{"type":"boolean"},"pr_age_days":{"type":"float"},
		"ci_status":{"type":"keyword"},"risk_score":{"type":"float"},
		"risk_factors":{"type":"object","enabled":false},
		"html_url":{"type":"keyword"},"ingested_at":{"type":"date"}}}}`

	issueMappings = `{"mappings":{"properties":{
		"repo":{"type":"keyword"},"issue_number":{"type":"integer"},
		"title":{"type":"text"},"body":{"type":"text"},
		"state":{"type":"keyword"},"author":{"type":"keyword"},"labels":{"type":"keyword"},
		"created_at":{"type":"date"},"updated_at":{"type":"date"},"closed_at":{"type":"date"},
		"comments_count":{"type":"integer"},"html_url":{"type":"keyword"},"ingested_at":{"type":"date"}}}}`

	contributorMappings = `{"mappings":{"properties":{
		"repo":{"type":"keyword"},"login":{"type":"keyword"},"contributions":{"type":"integer"},
		"avatar_url":{"type":"keyword"},"profile_url":{"type":"keyword"},"ingested_at":{"type":"date"}}}}`

	runMappings = `{"mappings":{"properties":{
		"repo":{"type":"keyword"},"run_id":{"type":"keyword"},
		"started_at":{"type":"date"},"completed_at":{"type":"date"},"status":{"type":"keyword"},
		"stage_timings":{"type":"object","enabled":false},
		"total_duration_ms":{"type":"integer"},
		"briefing_summary":{"type":"object","enabled":false}}}}`

	traceMappings = `{"mappings":{"properties":{
		"repo":{"type":"keyword"},"pr_number":{"type":"integer"},"run_id":{"type":"keyword"},
		"risk_score":{"type":"float"},"classification":{"type":"keyword"},
		"factors":{"type":"object","enabled":false},
		"suggested_labels":{"type":"keyword"},"created_at":{"type":"date"}}}}`
)

const maxStoreErrorBody = 300

// Elastic implements DocumentStore on an Elasticsearch cluster.
type Elastic struct {
	es  *elasticsearch.Client
	now func() time.Time
}

// Config holds Elasticsearch connection settings.
type Config struct {
	URL         string
	APIKey      string
	InsecureTLS bool // accept self-signed certificates (dev clusters)
}

// NewElastic creates an Elasticsearch-backed document store.
func NewElastic(cfg Config) (*Elastic, error) {
	if cfg.URL == "" {
		return nil, errors.New("elasticsearch URL is required")
	}
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		APIKey:    cfg.APIKey,
	}
	if cfg.InsecureTLS {
		esCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in for dev clusters
		}
	}
	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Elastic{es: es, now: time.Now}, nil
}

// ping verifies connectivity and translates the two most common cluster
// failure modes into actionable errors.
func (s *Elastic) ping(ctx context.Context) error {
	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer closeResponse(res)
	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w (%d): the API key may have expired, check credentials", ErrCredentials, res.StatusCode)
	case res.StatusCode == http.StatusBadGateway || res.StatusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("%w (%d): the deployment may be dormant or expired", ErrUnavailable, res.StatusCode)
	case res.IsError():
		return fmt.Errorf("elasticsearch ping failed: %s", responseExcerpt(res))
	}
	return nil
}

// EnsureIndices verifies connectivity and creates any missing indices.
func (s *Elastic) EnsureIndices(ctx context.Context) error {
	if err := s.ping(ctx); err != nil {
		return err
	}
	indices := map[string]string{
		IndexPRs:          prMappings,
		IndexIssues:       issueMappings,
		IndexContributors: contributorMappings,
		IndexRuns:         runMappings,
		IndexTraces:       traceMappings,
	}
	for name, mappings := range indices {
		if err := s.createIndexIfMissing(ctx, name, mappings); err != nil {
			return err
		}
	}
	return nil
}

func (s *Elastic) createIndexIfMissing(ctx context.Context, name, mappings string) error {
	res, err := s.es.Indices.Exists([]string{name}, s.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", name, err)
	}
	closeResponse(res)
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = s.es.Indices.Create(name,
		s.es.Indices.Create.WithContext(ctx),
		s.es.Indices.Create.WithBody(strings.NewReader(mappings)))
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	defer closeResponse(res)
	if res.IsError() {
		// A concurrent run may have created it between the two calls
		if strings.Contains(responseExcerpt(res), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("failed to create index %s: %s", name, responseExcerpt(res))
	}
	slog.Info("Created index", "component", "elastic", "index", name)
	return nil
}

// UpsertPRs writes pull requests with deterministic IDs.
func (s *Elastic) UpsertPRs(ctx context.Context, prs []types.PullRequest) (int, error) {
	docs := make([]bulkDoc, 0, len(prs))
	for _, pr := range prs {
		docs = append(docs, bulkDoc{id: fmt.Sprintf("pr:%s:%d", pr.Repo, pr.Number), doc: pr})
	}
	return s.bulkUpsert(ctx, IndexPRs, docs)
}

// UpsertIssues writes issues with deterministic IDs.
func (s *Elastic) UpsertIssues(ctx context.Context, issues []types.Issue) (int, error) {
	docs := make([]bulkDoc, 0, len(issues))
	for _, issue := range issues {
		docs = append(docs, bulkDoc{id: fmt.Sprintf("issue:%s:%d", issue.Repo, issue.Number), doc: issue})
	}
	return s.bulkUpsert(ctx, IndexIssues, docs)
}

// UpsertContributors writes contributors with deterministic IDs.
func (s *Elastic) UpsertContributors(ctx context.Context, contributors []types.Contributor) (int, error) {
	docs := make([]bulkDoc, 0, len(contributors))
	for _, c := range contributors {
		docs = append(docs, bulkDoc{id: fmt.Sprintf("contrib:%s:%s", c.Repo, c.Login), doc: c})
	}
	return s.bulkUpsert(ctx, IndexContributors, docs)
}

type bulkDoc struct {
	doc any
	id  string
}

// bulkUpsert issues one _bulk request of update-with-doc_as_upsert actions.
// Each document is stamped with ingested_at. Per-document failures are
// logged and excluded from the returned count.
func (s *Elastic) bulkUpsert(ctx context.Context, index string, docs []bulkDoc) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	ingestedAt := s.now().UTC().Format(time.RFC3339)
	var buf bytes.Buffer
	for _, d := range docs {
		action, err := json.Marshal(map[string]any{
			"update": map[string]any{"_index": index, "_id": d.id},
		})
		if err != nil {
			return 0, fmt.Errorf("failed to marshal bulk action: %w", err)
		}
		body, err := stampIngestedAt(d.doc, ingestedAt)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal document %s: %w", d.id, err)
		}
		payload, err := json.Marshal(map[string]any{
			"doc": json.RawMessage(body), "doc_as_upsert": true,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to marshal bulk payload: %w", err)
		}
		buf.Write(action)
		buf.WriteByte('\n')
		buf.Write(payload)
		buf.WriteByte('\n')
	}

	res, err := s.es.Bulk(bytes.NewReader(buf.Bytes()),
		s.es.Bulk.WithContext(ctx),
		s.es.Bulk.WithRefresh("true"))
	if err != nil {
		return 0, fmt.Errorf("bulk upsert into %s failed: %w", index, err)
	}
	defer closeResponse(res)
	if res.IsError() {
		return 0, fmt.Errorf("bulk upsert into %s failed: %s", index, responseExcerpt(res))
	}

	success, err := countBulkSuccesses(res.Body, "update", index)
	if err != nil {
		return 0, err
	}
	slog.Info("Upserted documents", "component", "elastic", "index", index, "success", success, "total", len(docs))
	return success, nil
}

// stampIngestedAt adds the ingestion timestamp to a document.
func stampIngestedAt(doc any, ingestedAt string) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["ingested_at"] = ingestedAt
	return json.Marshal(m)
}

// countBulkSuccesses parses a _bulk response and counts items without
// errors. Failed items are logged with their error reason.
func countBulkSuccesses(body io.Reader, action, index string) (int, error) {
	var bulkRes struct {
		Items []map[string]struct {
			Error *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
			Status int `json:"status"`
		} `json:"items"`
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(body).Decode(&bulkRes); err != nil {
		return 0, fmt.Errorf("failed to decode bulk response: %w", err)
	}
	success := 0
	for _, item := range bulkRes.Items {
		result, ok := item[action]
		if !ok {
			continue
		}
		if result.Error != nil {
			slog.Warn("Bulk item failed", "component", "elastic",
				"index", index, "status", result.Status, "reason", result.Error.Reason)
			continue
		}
		success++
	}
	return success, nil
}

// Counts returns per-index document counts for one repo.
func (s *Elastic) Counts(ctx context.Context, repo string) (types.IntakeCounts, error) {
	var counts types.IntakeCounts
	prCount, err := s.count(ctx, IndexPRs, termQuery("repo", repo))
	if err != nil {
		return counts, err
	}
	issueCount, err := s.count(ctx, IndexIssues, termQuery("repo", repo))
	if err != nil {
		return counts, err
	}
	contribCount, err := s.count(ctx, IndexContributors, termQuery("repo", repo))
	if err != nil {
		return counts, err
	}
	counts.PRs = prCount
	counts.Issues = issueCount
	counts.Contributors = contribCount
	return counts, nil
}

// LastIngestion returns the newest ingested_at stamp on this repo's PR
// documents, or the zero time when none exist.
func (s *Elastic) LastIngestion(ctx context.Context, repo string) (time.Time, error) {
	body := map[string]any{
		"size":    1,
		"query":   termQuery("repo", repo),
		"sort":    []any{map[string]any{"ingested_at": map[string]any{"order": "desc"}}},
		"_source": []string{"ingested_at"},
	}
	resp, err := s.search(ctx, IndexPRs, body)
	if err != nil {
		return time.Time{}, err
	}
	if len(resp.Hits.Hits) == 0 {
		return time.Time{}, nil
	}
	var source struct {
		IngestedAt time.Time `json:"ingested_at"`
	}
	if err := json.Unmarshal(resp.Hits.Hits[0].Source, &source); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode ingestion timestamp: %w", err)
	}
	return source.IngestedAt, nil
}

// PRsByRisk returns up to limit PRs for the repo, highest risk first.
func (s *Elastic) PRsByRisk(ctx context.Context, repo string, limit int) ([]types.PullRequest, error) {
	body := map[string]any{
		"size":  limit,
		"query": termQuery("repo", repo),
		"sort":  []any{map[string]any{"risk_score": map[string]any{"order": "desc"}}},
	}
	resp, err := s.search(ctx, IndexPRs, body)
	if err != nil {
		return nil, err
	}
	prs := make([]types.PullRequest, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var pr types.PullRequest
		if err := json.Unmarshal(hit.Source, &pr); err != nil {
			return nil, fmt.Errorf("failed to decode PR document: %w", err)
		}
		prs = append(prs, pr)
	}
	return prs, nil
}

// IndexRun appends one orchestration run summary.
func (s *Elastic) IndexRun(ctx context.Context, run types.OrchestrationRun) error {
	body, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	res, err := s.es.Index(IndexRuns, bytes.NewReader(body),
		s.es.Index.WithContext(ctx),
		s.es.Index.WithRefresh("true"))
	if err != nil {
		return fmt.Errorf("failed to index run: %w", err)
	}
	defer closeResponse(res)
	if res.IsError() {
		return fmt.Errorf("failed to index run: %s", responseExcerpt(res))
	}
	slog.Info("Orchestration run indexed", "component", "elastic", "repo", run.Repo, "run_id", run.RunID)
	return nil
}

// IndexTraces appends reasoning traces via plain bulk index. Traces have no
// deterministic IDs; every run appends new audit records.
func (s *Elastic) IndexTraces(ctx context.Context, traces []types.ReasoningTrace) error {
	if len(traces) == 0 {
		return nil
	}
	createdAt := s.now().UTC()
	var buf bytes.Buffer
	for _, trace := range traces {
		trace.CreatedAt = createdAt
		body, err := json.Marshal(trace)
		if err != nil {
			return fmt.Errorf("failed to marshal trace: %w", err)
		}
		action, err := json.Marshal(map[string]any{
			"index": map[string]any{"_index": IndexTraces},
		})
		if err != nil {
			return fmt.Errorf("failed to marshal bulk action: %w", err)
		}
		buf.Write(action)
		buf.WriteByte('\n')
		buf.Write(body)
		buf.WriteByte('\n')
	}

	res, err := s.es.Bulk(bytes.NewReader(buf.Bytes()),
		s.es.Bulk.WithContext(ctx),
		s.es.Bulk.WithRefresh("true"))
	if err != nil {
		return fmt.Errorf("failed to index reasoning traces: %w", err)
	}
	defer closeResponse(res)
	if res.IsError() {
		return fmt.Errorf("failed to index reasoning traces: %s", responseExcerpt(res))
	}
	success, err := countBulkSuccesses(res.Body, "index", IndexTraces)
	if err != nil {
		return err
	}
	slog.Info("Indexed reasoning traces", "component", "elastic", "count", success)
	return nil
}

// DeleteRepoData removes all ingested documents for one repo. Missing
// indices are not an error.
func (s *Elastic) DeleteRepoData(ctx context.Context, repo string) error {
	for _, index := range []string{IndexPRs, IndexIssues, IndexContributors} {
		body, err := json.Marshal(map[string]any{"query": termQuery("repo", repo)})
		if err != nil {
			return fmt.Errorf("failed to marshal delete query: %w", err)
		}
		res, err := s.es.DeleteByQuery([]string{index}, bytes.NewReader(body),
			s.es.DeleteByQuery.WithContext(ctx),
			s.es.DeleteByQuery.WithRefresh(true))
		if err != nil {
			return fmt.Errorf("failed to delete %s data from %s: %w", repo, index, err)
		}
		closeResponse(res)
		if res.IsError() && res.StatusCode != http.StatusNotFound {
			return fmt.Errorf("failed to delete %s data from %s: status %d", repo, index, res.StatusCode)
		}
		slog.Info("Cleared repo data", "component", "elastic", "repo", repo, "index", index)
	}
	return nil
}

// searchResponse is the subset of the search envelope we consume.
type searchResponse struct {
	Aggregations map[string]json.RawMessage `json:"aggregations"`
	Hits         struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *Elastic) search(ctx context.Context, index string, body map[string]any) (*searchResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search body: %w", err)
	}
	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(index),
		s.es.Search.WithBody(bytes.NewReader(raw)))
	if err != nil {
		return nil, fmt.Errorf("search on %s failed: %w", index, err)
	}
	defer closeResponse(res)
	if res.IsError() {
		return nil, fmt.Errorf("search on %s failed: %s", index, responseExcerpt(res))
	}
	var resp searchResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &resp, nil
}

func (s *Elastic) count(ctx context.Context, index string, query map[string]any) (int, error) {
	raw, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal count body: %w", err)
	}
	res, err := s.es.Count(
		s.es.Count.WithContext(ctx),
		s.es.Count.WithIndex(index),
		s.es.Count.WithBody(bytes.NewReader(raw)))
	if err != nil {
		return 0, fmt.Errorf("count on %s failed: %w", index, err)
	}
	defer closeResponse(res)
	if res.IsError() {
		return 0, fmt.Errorf("count on %s failed: %s", index, responseExcerpt(res))
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return resp.Count, nil
}

func termQuery(field, value string) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

func closeResponse(res *esapi.Response) {
	if res != nil && res.Body != nil {
		if err := res.Body.Close(); err != nil {
			slog.Warn("Failed to close response body", "error", err)
		}
	}
}

func responseExcerpt(res *esapi.Response) string {
	excerpt, err := io.ReadAll(io.LimitReader(res.Body, maxStoreErrorBody))
	if err != nil {
		return fmt.Sprintf("status %d", res.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", res.StatusCode, string(excerpt))
}
