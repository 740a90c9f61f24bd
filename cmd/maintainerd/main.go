// Package main implements the maintainer intelligence service: a one-shot
// CLI that analyzes a repository to stdout, and a serve mode exposing the
// pipeline over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/config"
	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/github"
	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/pipeline"
	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/server"
	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/store"
)

var (
	repoURL = flag.String("repo", "", "Repository to analyze (e.g., https://github.com/owner/repo or owner/repo)")
	token   = flag.String("token", "", "GitHub token (falls back to GITHUB_TOKEN, then the gh CLI)")
	serve   = flag.Bool("serve", false, "Run as an HTTP service instead of a one-shot analysis")
	addr    = flag.String("addr", "", "Listen address in serve mode (overrides HTTP_ADDR)")
	maxPRs  = flag.Int("max-prs", 0, "Maximum pull requests to ingest per run (overrides PIPELINE_MAX_PRS)")
	verbose = flag.Bool("v", false, "Verbose output with per-step progress")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -repo <REPO> [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s -serve [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Analyzes a repository's pull requests, issues, and contributors,\n")
		fmt.Fprintf(os.Stderr, "scores review risk, and produces a maintainer briefing.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -repo https://github.com/owner/repo\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -repo owner/repo -v\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -serve -addr :8080\n", os.Args[0])
	}
	flag.Parse()

	if !*serve && *repoURL == "" {
		flag.Usage()
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *maxPRs > 0 {
		cfg.Pipeline.MaxPRs = *maxPRs
	}
	if *token != "" {
		cfg.GitHub.Token = *token
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewElastic(store.Config{
		URL:         cfg.Elastic.URL,
		APIKey:      cfg.Elastic.APIKey,
		InsecureTLS: cfg.Elastic.InsecureTLS,
	})
	if err != nil {
		slog.Error("Failed to create document store", "error", err)
		os.Exit(1)
	}

	if *serve {
		if err := runServe(ctx, cfg, st); err != nil {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := runOnce(ctx, cfg, st); err != nil {
		slog.Error("Analysis failed", "error", err)
		os.Exit(1)
	}
}

// newPipeline builds a pipeline over a fresh GitHub client. An empty token
// falls back to the configured credential.
func newPipeline(ctx context.Context, cfg *config.Config, st store.DocumentStore, token string) (*pipeline.Pipeline, error) {
	if token == "" {
		token = cfg.GitHub.Token
	}
	client, err := github.New(ctx, github.Config{
		Token:       token,
		UseAppAuth:  cfg.GitHub.UseAppAuth,
		AppID:       cfg.GitHub.AppID,
		AppKeyPath:  cfg.GitHub.AppKeyPath,
		HTTPTimeout: cfg.GitHub.HTTPTimeout,
		CacheTTL:    cfg.GitHub.CacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	return pipeline.New(client, st,
		pipeline.WithMaxPRs(cfg.Pipeline.MaxPRs),
		pipeline.WithDebounce(cfg.Pipeline.Debounce),
	), nil
}

// runServe starts the HTTP surface and blocks until the context is
// cancelled, then drains in-flight requests.
func runServe(ctx context.Context, cfg *config.Config, st store.DocumentStore) error {
	factory := func(ctx context.Context, token string) (server.Runner, error) {
		return newPipeline(ctx, cfg, st, token)
	}
	srv := server.New(factory, st)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// runOnce executes a single pipeline run and prints the briefing.
func runOnce(ctx context.Context, cfg *config.Config, st store.DocumentStore) error {
	if cfg.GitHub.Token == "" {
		if ghToken, err := githubTokenFromCLI(ctx); err == nil {
			cfg.GitHub.Token = ghToken
		} else {
			slog.Debug("No gh CLI token available, continuing unauthenticated", "error", err)
		}
	}

	p, err := newPipeline(ctx, cfg, st, "")
	if err != nil {
		return err
	}

	emit := func(ev pipeline.Event) {
		switch ev.Type {
		case pipeline.EventStageStart:
			fmt.Printf("▶ %s\n", ev.Agent)
		case pipeline.EventProgress:
			if *verbose && ev.Percent != nil {
				fmt.Printf("  %3d%% %s\n", *ev.Percent, ev.Step)
			}
		case pipeline.EventStageComplete:
			if ev.DurationMS != nil {
				fmt.Printf("✔ %s (%dms)\n", ev.Agent, *ev.DurationMS)
			}
		case pipeline.EventError, pipeline.EventResult:
			// Handled via the returned result below.
		}
	}

	result, err := p.Run(ctx, *repoURL, emit)
	if err != nil {
		return err
	}
	printBriefing(result)
	return nil
}

func printBriefing(result *pipeline.Result) {
	briefing := result.Action

	fmt.Printf("\n📋 Maintainer Briefing: %s\n", result.Repo)
	fmt.Printf("   Health: %s (score %d)\n", result.Health.Classification, result.Health.CompositeScore)
	fmt.Printf("   Urgency: %d/100\n", briefing.UrgencyScore)
	fmt.Printf("   Ingested: %d PRs, %d issues, %d contributors\n",
		result.Intake.Counts.PRs, result.Intake.Counts.Issues, result.Intake.Counts.Contributors)
	fmt.Println()

	if len(briefing.PriorityQueue) > 0 {
		fmt.Printf("🔥 Priority Queue:\n")
		for i, pr := range briefing.PriorityQueue {
			fmt.Printf("%d. [%s] #%d %s\n", i+1, pr.Urgency, pr.Number, pr.Title)
			fmt.Printf("   Author: @%s | Risk: %d | CI: %s\n", pr.Author, pr.RiskScore, pr.CIStatus)
			if len(pr.SuggestedLabels) > 0 {
				fmt.Printf("   Labels: %s\n", strings.Join(pr.SuggestedLabels, ", "))
			}
		}
		fmt.Println()
	}

	if len(briefing.StabilityWarnings) > 0 {
		fmt.Printf("⚠️  Stability Warnings:\n")
		for _, w := range briefing.StabilityWarnings {
			fmt.Printf("   [%s] %s: %s\n", w.Severity, w.Metric, w.Message)
		}
		fmt.Println()
	}

	if len(briefing.Recommendations) > 0 {
		fmt.Printf("💡 Recommendations:\n")
		for _, rec := range briefing.Recommendations {
			fmt.Printf("   - %s\n", rec)
		}
		fmt.Println()
	}

	fmt.Printf("✅ Analyzed %d PRs in %dms\n", result.Risk.TotalAnalyzed, result.TotalDurationMS)
}

// githubTokenFromCLI retrieves a token from the gh CLI.
func githubTokenFromCLI(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", "auth", "token")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get GitHub token: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}
