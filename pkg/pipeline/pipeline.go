package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/github"
	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/store"
	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/types"
)

// Pipeline defaults.
const (
	defaultMaxPRs   = 20
	defaultDebounce = 5 * time.Minute
)

// stageSpec maps one stage onto its slice of the global progress band.
// Bands are contiguous and sum to 100.
type stageSpec struct {
	name       string
	index      int
	start, end int
}

var stages = [4]stageSpec{
	{name: "Fetching Repo Data", index: 0, start: 0, end: 40},
	{name: "Analyzing Risk", index: 1, start: 40, end: 60},
	{name: "Analyzing Health", index: 2, start: 60, end: 80},
	{name: "Generating Briefing", index: 3, start: 80, end: 100},
}

// GitHub is the slice of the GitHub client the pipeline consumes.
type GitHub interface {
	github.API
	SetOwner(owner string)
}

// Pipeline runs the intake, risk, health, and briefing stages in order
// against one repository.
type Pipeline struct {
	gh       GitHub
	store    store.DocumentStore
	now      func() time.Time
	maxPRs   int
	debounce time.Duration
}

// Option adjusts pipeline construction.
type Option func(*Pipeline)

// WithMaxPRs caps how many pull requests one run ingests.
func WithMaxPRs(n int) Option {
	return func(p *Pipeline) { p.maxPRs = n }
}

// WithDebounce sets the window in which repeated runs reuse persisted data
// instead of hitting GitHub.
func WithDebounce(d time.Duration) Option {
	return func(p *Pipeline) { p.debounce = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline over the given GitHub client and document store.
func New(gh GitHub, st store.DocumentStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		gh:       gh,
		store:    st,
		now:      time.Now,
		maxPRs:   defaultMaxPRs,
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes all four stages and streams events to emit. Progress is
// monotonic: each stage's local progress is mapped into its global band and
// clamped against a high-water mark, and a completed run always ends at
// 100. The run summary is persisted win-or-lose.
func (p *Pipeline) Run(ctx context.Context, repoURL string, emit func(Event)) (*Result, error) {
	start := p.now()
	runID := fmt.Sprintf("run-%d", start.UnixMilli())
	slog.Info("Orchestration started", "component", "pipeline", "run_id", runID, "repo_url", repoURL)

	var timings []types.StageTiming
	highWater := 0

	send := func(ev Event) {
		if emit != nil {
			emit(ev)
		}
	}
	clamp := func(pct int) int {
		if pct > 100 {
			pct = 100
		}
		if pct < highWater {
			return highWater
		}
		highWater = pct
		return pct
	}
	timestamp := func() string { return p.now().UTC().Format(time.RFC3339) }

	stepFn := func(stage stageSpec) func(step string, local int) {
		return func(step string, local int) {
			global := stage.start + local*(stage.end-stage.start)/100
			send(Event{
				Type:      EventProgress,
				Agent:     stage.name,
				Step:      step,
				Percent:   intPtr(clamp(global)),
				Timestamp: timestamp(),
			})
		}
	}
	stageStart := func(stage stageSpec) time.Time {
		send(Event{
			Type:        EventStageStart,
			Agent:       stage.name,
			AgentIndex:  intPtr(stage.index),
			TotalAgents: len(stages),
			Percent:     intPtr(clamp(stage.start)),
			Timestamp:   timestamp(),
		})
		return p.now()
	}
	stageComplete := func(stage stageSpec, startedAt time.Time) {
		completedAt := p.now()
		duration := completedAt.Sub(startedAt).Milliseconds()
		timings = append(timings, types.StageTiming{
			Stage:       stage.name,
			StartedAt:   startedAt,
			CompletedAt: completedAt,
			DurationMS:  duration,
		})
		send(Event{
			Type:       EventStageComplete,
			Agent:      stage.name,
			AgentIndex: intPtr(stage.index),
			DurationMS: int64Ptr(duration),
			Percent:    intPtr(clamp(stage.end)),
			Timestamp:  timestamp(),
		})
	}
	fail := func(stage stageSpec, err error) (*Result, error) {
		wrapped := fmt.Errorf("%s failed: %w", stage.name, err)
		p.persistRun(ctx, "", runID, start, timings, "failed", nil, nil)
		send(Event{Type: EventError, Message: wrapped.Error(), Timestamp: timestamp()})
		return nil, wrapped
	}

	// Stage 1: intake
	startedAt := stageStart(stages[0])
	intake, err := p.runIntake(ctx, repoURL, stepFn(stages[0]))
	if err != nil {
		return fail(stages[0], err)
	}
	stageComplete(stages[0], startedAt)
	repo := intake.Repo

	// Stage 2: risk
	if err := ctx.Err(); err != nil {
		return fail(stages[1], err)
	}
	startedAt = stageStart(stages[1])
	riskResult, err := p.runRisk(ctx, repo, runID, stepFn(stages[1]))
	if err != nil {
		return fail(stages[1], err)
	}
	stageComplete(stages[1], startedAt)

	// Stage 3: health
	if err := ctx.Err(); err != nil {
		return fail(stages[2], err)
	}
	startedAt = stageStart(stages[2])
	health, err := p.runHealth(ctx, repo, stepFn(stages[2]))
	if err != nil {
		return fail(stages[2], err)
	}
	stageComplete(stages[2], startedAt)

	// Stage 4: briefing
	if err := ctx.Err(); err != nil {
		return fail(stages[3], err)
	}
	startedAt = stageStart(stages[3])
	briefing := p.runBriefing(repo, riskResult, health, stepFn(stages[3]))
	stageComplete(stages[3], startedAt)

	result := &Result{
		Repo:            repo,
		Intake:          *intake,
		Risk:            *riskResult,
		Health:          *health,
		Action:          *briefing,
		StageTimings:    timings,
		TotalDurationMS: p.now().Sub(start).Milliseconds(),
	}

	p.persistRun(ctx, repo, runID, start, timings, "completed", riskResult, briefing)

	send(Event{Type: EventResult, Result: result})
	slog.Info("Orchestration completed",
		"component", "pipeline", "run_id", runID, "repo", repo, "duration_ms", result.TotalDurationMS)
	return result, nil
}

// persistRun writes the run summary. Persistence failures are logged, never
// fatal; the run's results have already been streamed.
func (p *Pipeline) persistRun(
	ctx context.Context, repo, runID string, start time.Time,
	timings []types.StageTiming, status string,
	riskResult *types.RiskResult, briefing *types.MaintainerBriefing,
) {
	run := types.OrchestrationRun{
		Repo:            repo,
		RunID:           runID,
		StartedAt:       start,
		CompletedAt:     p.now(),
		Status:          status,
		StageTimings:    timings,
		TotalDurationMS: p.now().Sub(start).Milliseconds(),
	}
	if briefing != nil && riskResult != nil {
		run.BriefingSummary = types.BriefingSummary{
			UrgencyScore:     briefing.UrgencyScore,
			PriorityCount:    len(briefing.PriorityQueue),
			TotalPRsAnalyzed: riskResult.TotalAnalyzed,
		}
	}
	if err := p.store.IndexRun(ctx, run); err != nil {
		slog.Warn("Failed to persist run", "component", "pipeline", "run_id", runID, "error", err)
	}
}
