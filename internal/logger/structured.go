package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nexus-build/nexus/internal/models"
)

// StructuredLogger writes one JSON object per line to a timestamped run
// file under dir, and keeps a latest.log symlink pointing at the current
// run — the durable record a Coordinator leaves behind once a terminal
// console has scrolled away.
type StructuredLogger struct {
	zap     *zap.Logger
	runFile *os.File
}

// NewStructuredLogger creates dir if needed, opens a new run-<timestamp>.log
// file, repoints latest.log at it, and returns a Logger backed by zap's
// JSON encoder at level.
func NewStructuredLogger(dir string, level string) (*StructuredLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}

	runPath := filepath.Join(dir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	f, err := os.OpenFile(runPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open run log: %w", err)
	}

	symlink := filepath.Join(dir, "latest.log")
	_ = os.Remove(symlink)
	if err := os.Symlink(filepath.Base(runPath), symlink); err != nil {
		f.Close()
		return nil, fmt.Errorf("logger: link latest.log: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(f), zapLevel(level))
	return &StructuredLogger{zap: zap.New(core), runFile: f}, nil
}

func zapLevel(level string) zapcore.Level {
	switch levelFromString(level) {
	case levelDebug:
		return zapcore.DebugLevel
	case levelWarn:
		return zapcore.WarnLevel
	case levelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Close flushes buffered log entries and closes the run file.
func (s *StructuredLogger) Close() error {
	_ = s.zap.Sync()
	return s.runFile.Close()
}

func (s *StructuredLogger) Debugf(format string, args ...interface{}) {
	s.zap.Sugar().Debugf(format, args...)
}

func (s *StructuredLogger) Infof(format string, args ...interface{}) {
	s.zap.Sugar().Infof(format, args...)
}

func (s *StructuredLogger) Warnf(format string, args ...interface{}) {
	s.zap.Sugar().Warnf(format, args...)
}

func (s *StructuredLogger) Errorf(format string, args ...interface{}) {
	s.zap.Sugar().Errorf(format, args...)
}

func (s *StructuredLogger) LogWaveStart(planID string, waveIndex, waveTotal int, taskIDs []string) {
	s.zap.Info("wave_start",
		zap.String("plan_id", planID),
		zap.Int("wave_index", waveIndex),
		zap.Int("wave_total", waveTotal),
		zap.Strings("task_ids", taskIDs),
	)
}

func (s *StructuredLogger) LogWaveComplete(planID string, waveIndex int, duration time.Duration, status models.PlanStatus) {
	s.zap.Info("wave_complete",
		zap.String("plan_id", planID),
		zap.Int("wave_index", waveIndex),
		zap.Duration("duration", duration),
		zap.Int("done", len(status.Done)),
		zap.Int("failed", len(status.Failed)),
		zap.Int("awaiting_review", len(status.AwaitingReview)),
	)
}

func (s *StructuredLogger) LogTaskStart(task models.Task, role models.AgentRole) {
	s.zap.Info("task_start", zap.String("task_id", task.ID), zap.String("role", string(role)), zap.String("title", task.Title))
}

func (s *StructuredLogger) LogTaskResult(taskID string, status models.TaskStatus, err error) {
	fields := []zap.Field{zap.String("task_id", taskID), zap.String("status", string(status))}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.zap.Info("task_result", fields...)
}

func (s *StructuredLogger) LogReviewRequested(taskID string, reason models.ReviewReason) {
	s.zap.Warn("review_requested", zap.String("task_id", taskID), zap.String("reason", string(reason)))
}

func (s *StructuredLogger) LogReviewResolved(taskID string, approved bool) {
	s.zap.Info("review_resolved", zap.String("task_id", taskID), zap.Bool("approved", approved))
}

func (s *StructuredLogger) LogReplanDecision(taskID string, decision models.ReplanDecisionPayload) {
	s.zap.Info("replan_decision",
		zap.String("task_id", taskID),
		zap.Bool("should_replan", decision.ShouldReplan),
		zap.String("suggested_action", decision.SuggestedAction),
		zap.Float64("confidence", decision.Confidence),
		zap.String("reason", decision.Reason),
	)
}

func (s *StructuredLogger) LogBudgetStatus(usedTokens, maxTokens int64, ratio float64, exceeded, warn bool) {
	s.zap.Info("budget_status",
		zap.Int64("used_tokens", usedTokens),
		zap.Int64("max_tokens", maxTokens),
		zap.Float64("ratio", ratio),
		zap.Bool("exceeded", exceeded),
		zap.Bool("warn", warn),
	)
}

func (s *StructuredLogger) LogPlanDone(planID string, status models.PlanStatus, duration time.Duration) {
	s.zap.Info("plan_done",
		zap.String("plan_id", planID),
		zap.Duration("duration", duration),
		zap.Int("done", len(status.Done)),
		zap.Int("failed", len(status.Failed)),
		zap.Int("blocked", len(status.Blocked)),
	)
}
