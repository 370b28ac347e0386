package logger

import (
	"time"

	"github.com/nexus-build/nexus/internal/models"
)

// Multi fans every call out to each of its member Loggers, letting
// cmd/nexus wire a ConsoleLogger for interactive feedback and a
// StructuredLogger for the durable run record behind a single Logger
// value.
type Multi []Logger

func (m Multi) Debugf(format string, args ...interface{}) {
	for _, l := range m {
		l.Debugf(format, args...)
	}
}

func (m Multi) Infof(format string, args ...interface{}) {
	for _, l := range m {
		l.Infof(format, args...)
	}
}

func (m Multi) Warnf(format string, args ...interface{}) {
	for _, l := range m {
		l.Warnf(format, args...)
	}
}

func (m Multi) Errorf(format string, args ...interface{}) {
	for _, l := range m {
		l.Errorf(format, args...)
	}
}

func (m Multi) LogWaveStart(planID string, waveIndex, waveTotal int, taskIDs []string) {
	for _, l := range m {
		l.LogWaveStart(planID, waveIndex, waveTotal, taskIDs)
	}
}

func (m Multi) LogWaveComplete(planID string, waveIndex int, duration time.Duration, status models.PlanStatus) {
	for _, l := range m {
		l.LogWaveComplete(planID, waveIndex, duration, status)
	}
}

func (m Multi) LogTaskStart(task models.Task, role models.AgentRole) {
	for _, l := range m {
		l.LogTaskStart(task, role)
	}
}

func (m Multi) LogTaskResult(taskID string, status models.TaskStatus, err error) {
	for _, l := range m {
		l.LogTaskResult(taskID, status, err)
	}
}

func (m Multi) LogReviewRequested(taskID string, reason models.ReviewReason) {
	for _, l := range m {
		l.LogReviewRequested(taskID, reason)
	}
}

func (m Multi) LogReviewResolved(taskID string, approved bool) {
	for _, l := range m {
		l.LogReviewResolved(taskID, approved)
	}
}

func (m Multi) LogReplanDecision(taskID string, decision models.ReplanDecisionPayload) {
	for _, l := range m {
		l.LogReplanDecision(taskID, decision)
	}
}

func (m Multi) LogBudgetStatus(usedTokens, maxTokens int64, ratio float64, exceeded, warn bool) {
	for _, l := range m {
		l.LogBudgetStatus(usedTokens, maxTokens, ratio, exceeded, warn)
	}
}

func (m Multi) LogPlanDone(planID string, status models.PlanStatus, duration time.Duration) {
	for _, l := range m {
		l.LogPlanDone(planID, status, duration)
	}
}
