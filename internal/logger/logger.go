// Package logger provides the progress-reporting implementations the
// Coordinator and Pool log through: a colorized console logger for
// interactive use and a structured logger for durable, machine-readable
// run records. Both satisfy the same Logger interface so either — or a
// fan-out of both — can be wired into a Coordinator without it knowing
// which.
package logger

import (
	"time"

	"github.com/nexus-build/nexus/internal/models"
)

// Logger reports orchestration progress at the wave, task, review, and
// replan granularity, plus generic leveled messages for everything else.
// Implementations must be safe for concurrent use — the Pool and
// Coordinator both log from multiple goroutines at once.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	LogWaveStart(planID string, waveIndex, waveTotal int, taskIDs []string)
	LogWaveComplete(planID string, waveIndex int, duration time.Duration, status models.PlanStatus)
	LogTaskStart(task models.Task, role models.AgentRole)
	LogTaskResult(taskID string, status models.TaskStatus, err error)
	LogReviewRequested(taskID string, reason models.ReviewReason)
	LogReviewResolved(taskID string, approved bool)
	LogReplanDecision(taskID string, decision models.ReplanDecisionPayload)
	LogBudgetStatus(usedTokens, maxTokens int64, ratio float64, exceeded, warn bool)
	LogPlanDone(planID string, status models.PlanStatus, duration time.Duration)
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}
