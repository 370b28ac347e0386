package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/nexus-build/nexus/internal/agentrun"
	"github.com/nexus-build/nexus/internal/config"
	"github.com/nexus-build/nexus/internal/coordinator"
	"github.com/nexus-build/nexus/internal/decomposer"
	"github.com/nexus-build/nexus/internal/estimation"
	"github.com/nexus-build/nexus/internal/eventbus"
	"github.com/nexus-build/nexus/internal/llm"
	"github.com/nexus-build/nexus/internal/logger"
	"github.com/nexus-build/nexus/internal/pool"
	"github.com/nexus-build/nexus/internal/qa"
	"github.com/nexus-build/nexus/internal/replanner"
	"github.com/nexus-build/nexus/internal/review"
	"github.com/nexus-build/nexus/internal/runner"
	"github.com/nexus-build/nexus/internal/vcs"
	"github.com/nexus-build/nexus/internal/worktree"
)

// app bundles everything NewRunCommand needs to tear down cleanly — the review HTTP server and the structured logger's
// run file both hold open resources the CLI must release on exit.
type app struct {
	Coordinator *coordinator.Coordinator
	Pool        *pool.Pool
	Logger      logger.Logger
	Usage       *llm.UsageAccumulator

	closers []func() error
}

func (a *app) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// runOptions carries the handful of settings that make sense only for a
// single run invocation rather than the persistent config file: a
// maxTokens of zero disables the wave-level budget gate entirely.
type runOptions struct {
	maxTokens int64
	warnRatio float64
}

// buildApp wires every package between the process runner and the
// coordinator into one running instance, following spec.md §2's
// leaves-first dependency order: runner -> llm -> vcs/worktree ->
// eventbus -> agentrun -> qa -> pool -> decomposer/estimation/replanner
// -> review -> coordinator.
func buildApp(cfg *config.Config, opts runOptions) (*app, error) {
	a := &app{}

	run := runner.New()

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	usage := llm.NewUsageAccumulator()
	client := llm.NewClient(provider, llm.ClientOptions{
		MaxRetries:      cfg.LLMRetryPolicy.MaxAttempts,
		InitialInterval: cfg.LLMRetryPolicy.InitialBackoff,
		MaxInterval:     cfg.LLMRetryPolicy.MaxDelay,
	}, usage)
	a.Usage = usage

	vcsAdapter := vcs.NewAdapter(run)

	worktreeMgr, err := worktree.NewManager(cfg.VCS.RepoRoot, cfg.VCS.WorktreeDir, vcsAdapter)
	if err != nil {
		return nil, fmt.Errorf("cmd: worktree manager: %w", err)
	}

	bus := eventbus.New()

	coderLoop := &agentrun.BoundedLoop{Client: client}
	testerLoop := &agentrun.BoundedLoop{Client: client}
	reviewerLoop := &agentrun.BoundedLoop{Client: client}
	mergerLoop := &agentrun.BoundedLoop{Client: client}

	coder := &agentrun.Coder{Loop: coderLoop, VCS: vcsAdapter}
	tester := &agentrun.Tester{Loop: testerLoop, VCS: vcsAdapter}
	reviewerAgent := &agentrun.Reviewer{Loop: reviewerLoop}
	merger := &agentrun.Merger{VCS: vcsAdapter, Loop: mergerLoop}

	qaLoop := &qa.Loop{
		Build:         &qa.BuildRunner{Run: run, Config: qa.CommandConfig{Command: "go build ./..."}},
		Lint:          &qa.LintRunner{Run: run, Config: qa.CommandConfig{Command: "golangci-lint run"}},
		Test:          &qa.TestRunner{Run: run, Config: qa.CommandConfig{Command: "go test ./..."}},
		Review:        &qa.ReviewRunner{Agent: reviewerAgent},
		Coder:         coder,
		VCS:           vcsAdapter,
		MaxIterations: cfg.QAMaxIterations,
		BaseRef:       cfg.VCS.BaseBranch,
	}

	agentPool := pool.New(pool.Config{
		Concurrency:     cfg.MaxConcurrentWorkers,
		WorktreeManager: worktreeMgr,
		VCS:             vcsAdapter,
		Coder:           coder,
		Tester:          tester,
		Reviewer:        reviewerAgent,
		QALoop:          qaLoop,
		Merger:          merger,
		EventBus:        bus,
		IntegrationDir:  cfg.VCS.RepoRoot,
		BaseBranch:      cfg.VCS.BaseBranch,
		DetachWorktrees: !cfg.CleanupOnRelease,
		RoleCaps:        cfg.RoleCapsAsModel(),
	})
	agentPool.Start(context.Background())
	a.Pool = agentPool
	a.closers = append(a.closers, func() error {
		return agentPool.Shutdown(30 * time.Second)
	})

	decomp := &decomposer.Decomposer{Client: client, TaskBudgetMinutes: cfg.TaskMaxMinutes}
	estimator := estimation.NewEstimator(estimation.NewMemoryStore())

	replannerThresholds := replanner.Thresholds{
		TimeExceededRatio:   cfg.ReplannerThresholds.TimeExceededRatio,
		IterationsHighRatio: cfg.ReplannerThresholds.IterationsHighRatio,
		ScopeCreepFiles:     cfg.ReplannerThresholds.ScopeCreepFiles,
		ConsecutiveFailures: cfg.ReplannerThresholds.ConsecutiveFailures,
		ComplexityKeywords:  cfg.ReplannerThresholds.ComplexityKeywords,
	}
	replan := replanner.New(bus, replannerThresholds)

	reviewStore, err := review.NewStore(cfg.Review.StorePath)
	if err != nil {
		return nil, fmt.Errorf("cmd: review store: %w", err)
	}
	a.closers = append(a.closers, reviewStore.Close)
	reviewSvc := review.New(reviewStore, bus)

	reviewServer := &http.Server{Addr: cfg.Review.ListenAddr, Handler: review.NewRouter(reviewSvc)}
	go func() {
		_ = reviewServer.ListenAndServe()
	}()
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return reviewServer.Shutdown(ctx)
	})

	log, closeLog, err := buildLogger(cfg)
	if err != nil {
		return nil, err
	}
	if closeLog != nil {
		a.closers = append(a.closers, closeLog)
	}
	a.Logger = log

	var budgetGate *coordinator.BudgetGate
	if opts.maxTokens > 0 {
		budgetGate = coordinator.NewBudgetGate(usage, opts.maxTokens, opts.warnRatio)
	}

	coord := coordinator.New(coordinator.Config{
		Decomposer: decomp,
		Estimator:  estimator,
		Pool:       agentPool,
		Replanner:  replan,
		Review:     reviewSvc,
		EventBus:   bus,
		VCS:        vcsAdapter,

		WorktreeManager: worktreeMgr,
		BaseBranch:      cfg.VCS.BaseBranch,
		BudgetGate:      budgetGate,

		Logger: log,
	})

	a.Coordinator = coord
	return a, nil
}

func newProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "api":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("cmd: llm.provider=api requires ANTHROPIC_API_KEY")
		}
		return llm.NewAnthropicProvider(apiKey), nil
	case "cli", "":
		return llm.NewExecProvider(runner.New()), nil
	default:
		return nil, fmt.Errorf("cmd: unknown llm.provider %q", cfg.LLM.Provider)
	}
}

func buildLogger(cfg *config.Config) (logger.Logger, func() error, error) {
	console := logger.NewConsoleLogger(os.Stdout, cfg.Log.Level, cfg.Log.EnableColor)
	if cfg.Log.Dir == "" {
		return console, nil, nil
	}
	structured, err := logger.NewStructuredLogger(cfg.Log.Dir, cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("cmd: structured logger: %w", err)
	}
	multi := logger.Multi{console, structured}
	return multi, structured.Close, nil
}
