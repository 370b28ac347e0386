// Package qa implements the four QA stage runners (build, lint, test,
// review) and the loop engine that drives a task's changes through them
// until they all pass or the iteration ceiling is hit.
package qa

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/nexus-build/nexus/internal/models"
	"github.com/nexus-build/nexus/internal/runner"
)

// StageRunner is the common contract every stage implements: run never
// returns an error for a failing stage, only for conditions that prevent
// the stage from producing a result at all (e.g. the command couldn't be
// started).
type StageRunner interface {
	Kind() models.StageKind
	Run(ctx context.Context, workDir string, testSelector string) (models.StageResult, error)
}

// CommandConfig configures one stage's invocation: the base command plus
// an optional timeout override.
type CommandConfig struct {
	Command string
	Timeout time.Duration
}

func (c CommandConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 2 * time.Minute
}

// BuildRunner invokes the project's compile/type-check command and parses
// diagnostic lines of the form "file:line: message".
type BuildRunner struct {
	Run    *runner.Runner
	Config CommandConfig
}

var diagnosticLine = regexp.MustCompile(`^(?P<file>[^:]+):(?P<line>\d+):(?:\d+:)?\s*(?P<message>.*)$`)

func (r *BuildRunner) Kind() models.StageKind { return models.StageBuild }

func (r *BuildRunner) Run(ctx context.Context, workDir, _ string) (models.StageResult, error) {
	start := time.Now()
	result, err := r.Run.Run(ctx, r.Config.Command, runner.Options{WorkDir: workDir, Timeout: r.Config.timeout()})
	stage := models.StageResult{Kind: models.StageBuild, Duration: time.Since(start)}

	if err == nil {
		stage.Passed = true
		return stage, nil
	}
	if isTimeout(err) {
		return timeoutResult(models.StageBuild, start), nil
	}
	stage.Errors = parseDiagnostics(result.Stdout + result.Stderr)
	if len(stage.Errors) == 0 {
		stage.Errors = []models.StageError{{Message: result.Stdout + result.Stderr}}
	}
	return stage, nil
}

func parseDiagnostics(output string) []models.StageError {
	var errs []models.StageError
	for _, line := range splitLines(output) {
		m := diagnosticLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		errs = append(errs, models.StageError{File: m[1], Line: lineNo, Message: m[3]})
	}
	return errs
}

// LintRunner invokes a configured linter with machine-readable output.
// Warnings never fail the stage; only reported errors do.
type LintRunner struct {
	Run    *runner.Runner
	Config CommandConfig
	// ParseOutput turns the linter's raw output into structured errors and
	// warnings. Each project's linter emits a different format, so this is
	// supplied by the caller rather than hardcoded.
	ParseOutput func(output string) (errs []models.StageError, warnings []string)
}

func (r *LintRunner) Kind() models.StageKind { return models.StageLint }

func (r *LintRunner) Run(ctx context.Context, workDir, _ string) (models.StageResult, error) {
	start := time.Now()
	result, err := r.Run.Run(ctx, r.Config.Command, runner.Options{WorkDir: workDir, Timeout: r.Config.timeout()})
	stage := models.StageResult{Kind: models.StageLint, Duration: time.Since(start)}

	combined := result.Stdout + result.Stderr
	if r.ParseOutput != nil {
		stage.Errors, stage.Warnings = r.ParseOutput(combined)
	} else if err != nil {
		stage.Errors = []models.StageError{{Message: combined}}
	}

	if isTimeout(err) {
		return timeoutResult(models.StageLint, start), nil
	}
	stage.Passed = len(stage.Errors) == 0
	return stage, nil
}

// TestRunner invokes the configured test command in machine-readable mode
// and reports pass/fail/skip counts plus per-failure records.
type TestRunner struct {
	Run    *runner.Runner
	Config CommandConfig
	// ParseOutput turns the test command's raw output into counts and
	// per-failure error records; coverage is optional.
	ParseOutput func(output string) (counts models.TestCounts, failures []models.StageError, coverage *float64)
}

func (r *TestRunner) Kind() models.StageKind { return models.StageTest }

func (r *TestRunner) Run(ctx context.Context, workDir, testSelector string) (models.StageResult, error) {
	start := time.Now()
	command := r.Config.Command
	if testSelector != "" {
		command += " " + testSelector
	}
	result, err := r.Run.Run(ctx, command, runner.Options{WorkDir: workDir, Timeout: r.Config.timeout()})
	stage := models.StageResult{Kind: models.StageTest, Duration: time.Since(start)}

	if isTimeout(err) {
		return timeoutResult(models.StageTest, start), nil
	}

	combined := result.Stdout + result.Stderr
	if r.ParseOutput != nil {
		counts, failures, coverage := r.ParseOutput(combined)
		stage.Counts = &counts
		stage.Errors = failures
		stage.Coverage = coverage
	} else if err != nil {
		stage.Errors = []models.StageError{{Message: combined}}
	}

	stage.Passed = err == nil && len(stage.Errors) == 0
	return stage, nil
}

func isTimeout(err error) bool {
	var timeoutErr *runner.TimeoutError
	return errors.As(err, &timeoutErr)
}

func timeoutResult(kind models.StageKind, start time.Time) models.StageResult {
	return models.StageResult{
		Kind:     kind,
		Passed:   false,
		Duration: time.Since(start),
		Errors:   []models.StageError{{Message: "stage exceeded its configured timeout"}},
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
