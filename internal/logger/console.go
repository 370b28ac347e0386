package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"

	"github.com/nexus-build/nexus/internal/models"
)

const (
	levelDebug int = iota
	levelInfo
	levelWarn
	levelError
)

// maxTaskIDWidth truncates a task ID in console output so a long
// generated UUID doesn't blow out a terminal-width status line.
const maxTaskIDWidth = 12

// ConsoleLogger writes timestamped, level-filtered, optionally colorized
// progress lines to a writer. Safe for concurrent use.
type ConsoleLogger struct {
	writer   io.Writer
	level    int
	useColor bool

	mu sync.Mutex
}

// NewConsoleLogger builds a ConsoleLogger writing to w. Color is enabled
// automatically when w is a TTY (os.Stdout/os.Stderr) unless forceColor
// overrides the detection — config.LogConfig.EnableColor wires that.
func NewConsoleLogger(w io.Writer, level string, forceColor bool) *ConsoleLogger {
	useColor := forceColor || isTerminal(w)
	return &ConsoleLogger{writer: w, level: levelFromString(level), useColor: useColor}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}

func levelFromString(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return levelDebug
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (c *ConsoleLogger) shouldLog(level int) bool { return level >= c.level }

func (c *ConsoleLogger) write(level int, tag string, colorAttr color.Attribute, message string) {
	if !c.shouldLog(level) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := timestamp()
	var line string
	if c.useColor {
		coloredTag := color.New(colorAttr).Sprint(tag)
		line = fmt.Sprintf("[%s] [%s] %s\n", ts, coloredTag, message)
	} else {
		line = fmt.Sprintf("[%s] [%s] %s\n", ts, tag, message)
	}
	_, _ = c.writer.Write([]byte(line))
}

func (c *ConsoleLogger) Debugf(format string, args ...interface{}) {
	c.write(levelDebug, "DEBUG", color.FgCyan, fmt.Sprintf(format, args...))
}

func (c *ConsoleLogger) Infof(format string, args ...interface{}) {
	c.write(levelInfo, "INFO", color.FgBlue, fmt.Sprintf(format, args...))
}

func (c *ConsoleLogger) Warnf(format string, args ...interface{}) {
	c.write(levelWarn, "WARN", color.FgYellow, fmt.Sprintf(format, args...))
}

func (c *ConsoleLogger) Errorf(format string, args ...interface{}) {
	c.write(levelError, "ERROR", color.FgRed, fmt.Sprintf(format, args...))
}

func truncID(id string) string {
	if runewidth.StringWidth(id) <= maxTaskIDWidth {
		return id
	}
	return runewidth.Truncate(id, maxTaskIDWidth, "…")
}

func (c *ConsoleLogger) LogWaveStart(planID string, waveIndex, waveTotal int, taskIDs []string) {
	if !c.shouldLog(levelInfo) {
		return
	}
	label := fmt.Sprintf("wave %d/%d", waveIndex+1, waveTotal)
	if c.useColor {
		label = color.New(color.Bold).Sprint(label)
	}
	c.Infof("plan %s: starting %s (%d tasks)", truncID(planID), label, len(taskIDs))
}

func (c *ConsoleLogger) LogWaveComplete(planID string, waveIndex int, duration time.Duration, status models.PlanStatus) {
	c.Infof("plan %s: wave %d complete in %s — %d done, %d failed, %d awaiting review",
		truncID(planID), waveIndex+1, duration.Round(time.Millisecond),
		len(status.Done), len(status.Failed), len(status.AwaitingReview))
}

func (c *ConsoleLogger) LogTaskStart(task models.Task, role models.AgentRole) {
	c.Infof("task %s [%s]: %s", truncID(task.ID), role, task.Title)
}

func (c *ConsoleLogger) LogTaskResult(taskID string, status models.TaskStatus, err error) {
	if err != nil {
		c.Errorf("task %s: %s (%v)", truncID(taskID), status, err)
		return
	}
	c.Infof("task %s: %s", truncID(taskID), status)
}

func (c *ConsoleLogger) LogReviewRequested(taskID string, reason models.ReviewReason) {
	c.Warnf("task %s: review requested (%s)", truncID(taskID), reason)
}

func (c *ConsoleLogger) LogReviewResolved(taskID string, approved bool) {
	if approved {
		c.Infof("task %s: review approved", truncID(taskID))
		return
	}
	c.Warnf("task %s: review rejected, resubmitting", truncID(taskID))
}

func (c *ConsoleLogger) LogReplanDecision(taskID string, decision models.ReplanDecisionPayload) {
	if !decision.ShouldReplan {
		c.Debugf("task %s: replan evaluated, no action (confidence %.2f)", truncID(taskID), decision.Confidence)
		return
	}
	c.Warnf("task %s: replan suggested %q (confidence %.2f): %s",
		truncID(taskID), decision.SuggestedAction, decision.Confidence, decision.Reason)
}

func (c *ConsoleLogger) LogBudgetStatus(usedTokens, maxTokens int64, ratio float64, exceeded, warn bool) {
	switch {
	case exceeded:
		c.Errorf("budget exceeded: %d/%d tokens (%.0f%%)", usedTokens, maxTokens, ratio*100)
	case warn:
		c.Warnf("budget nearing limit: %d/%d tokens (%.0f%%)", usedTokens, maxTokens, ratio*100)
	default:
		c.Debugf("budget: %d/%d tokens (%.0f%%)", usedTokens, maxTokens, ratio*100)
	}
}

func (c *ConsoleLogger) LogPlanDone(planID string, status models.PlanStatus, duration time.Duration) {
	c.Infof("plan %s: finished in %s — %d done, %d failed, %d blocked",
		truncID(planID), duration.Round(time.Millisecond), len(status.Done), len(status.Failed), len(status.Blocked))
}
