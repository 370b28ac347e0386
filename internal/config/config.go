// Package config loads Nexus's runtime configuration from YAML, per
// spec.md §6's enumerated keys. It mirrors the teacher's merge-with-
// defaults, env-override, and Validate() shape.
package config

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nexus-build/nexus/internal/models"
)

// ReplannerThresholds mirrors replanner.Thresholds with YAML tags; it is
// translated into that type by the caller that wires up the Replanner,
// keeping this package free of a direct dependency on internal/replanner.
type ReplannerThresholds struct {
	TimeExceededRatio   float64  `yaml:"time_exceeded_ratio"`
	IterationsHighRatio float64  `yaml:"iterations_high_ratio"`
	ScopeCreepFiles     int      `yaml:"scope_creep_files"`
	ConsecutiveFailures int      `yaml:"consecutive_failures"`
	ComplexityKeywords  []string `yaml:"complexity_keywords"`
}

// LLMRetryPolicy configures the LLM client's backoff.
type LLMRetryPolicy struct {
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxAttempts    int           `yaml:"max_attempts"`
	MaxDelay       time.Duration `yaml:"max_delay"`
}

// LogConfig controls the composite console/structured logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Dir         string `yaml:"dir"`
	JSON        bool   `yaml:"json"`
	EnableColor bool   `yaml:"enable_color"`
}

// ReviewConfig controls the human review HTTP surface.
type ReviewConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	StorePath  string `yaml:"store_path"`
}

// VCSConfig controls the worktree layout and base branch.
type VCSConfig struct {
	RepoRoot    string `yaml:"repo_root"`
	WorktreeDir string `yaml:"worktree_dir"`
	BaseBranch  string `yaml:"base_branch"`
}

// LLMConfig selects and configures the provider binding.
type LLMConfig struct {
	// Provider is one of "cli" (exec-based, e.g. the claude CLI) or "api"
	// (direct Anthropic API via anthropic-sdk-go).
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// Config is the root Nexus configuration, covering every key spec.md §6
// enumerates plus the ambient logging/LLM/VCS/review surfaces a complete
// binary needs.
type Config struct {
	MaxConcurrentWorkers    int            `yaml:"max_concurrent_workers"`
	QAMaxIterations         int            `yaml:"qa_max_iterations"`
	TaskMaxMinutes          int            `yaml:"task_max_minutes"`
	ProcessDefaultTimeoutMs int            `yaml:"process_default_timeout_ms"`
	CleanupOnRelease        bool           `yaml:"cleanup_on_release"`
	WorkerRoleCaps          map[string]int `yaml:"worker_role_caps"`

	ReplannerThresholds ReplannerThresholds `yaml:"replanner_thresholds"`
	LLMRetryPolicy      LLMRetryPolicy      `yaml:"llm_retry_policy"`

	Log    LogConfig    `yaml:"log"`
	Review ReviewConfig `yaml:"review"`
	VCS    VCSConfig    `yaml:"vcs"`
	LLM    LLMConfig    `yaml:"llm"`
}

// Default returns a Config with spec.md §6's documented defaults.
func Default() *Config {
	return &Config{
		MaxConcurrentWorkers:    runtime.NumCPU(),
		QAMaxIterations:         50,
		TaskMaxMinutes:          30,
		ProcessDefaultTimeoutMs: 30_000,
		CleanupOnRelease:        false,
		WorkerRoleCaps:          map[string]int{},
		ReplannerThresholds: ReplannerThresholds{
			TimeExceededRatio:   1.5,
			IterationsHighRatio: 0.4,
			ScopeCreepFiles:     3,
			ConsecutiveFailures: 5,
			ComplexityKeywords:  []string{"race condition", "deadlock", "undefined behavior", "circular dependency"},
		},
		LLMRetryPolicy: LLMRetryPolicy{
			InitialBackoff: 500 * time.Millisecond,
			MaxAttempts:    5,
			MaxDelay:       30 * time.Second,
		},
		Log: LogConfig{
			Level:       "info",
			Dir:         ".nexus/logs",
			EnableColor: true,
		},
		Review: ReviewConfig{
			ListenAddr: ":8089",
			StorePath:  ".nexus/review.db",
		},
		VCS: VCSConfig{
			WorktreeDir: ".nexus/worktrees",
			BaseBranch:  "main",
		},
		LLM: LLMConfig{
			Provider: "cli",
		},
	}
}

// Load reads path and merges it over Default(). A missing file is not an
// error — Default() with environment overrides applied is returned as-is,
// the way the teacher's LoadConfig treats a missing config.yaml.
//
// Unlike the teacher's loader, unknown keys are rejected outright: this
// config has no history of deprecated fields to tolerate, so a typo in a
// key name should fail loudly rather than silently no-op.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, cfg.Validate()
}

// applyEnvOverrides applies the small set of environment variables
// operators reach for when running under a process supervisor rather
// than editing a checked-in config file. Only NEXUS_LOG_LEVEL and
// NEXUS_LLM_PROVIDER are recognized, mirroring the teacher's narrow,
// explicitly-documented override list rather than a generic env-to-struct
// binder.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEXUS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NEXUS_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
}

// Validate checks invariants Load cannot express through YAML typing
// alone.
func (c *Config) Validate() error {
	if c.MaxConcurrentWorkers < 1 {
		return fmt.Errorf("config: max_concurrent_workers must be >= 1, got %d", c.MaxConcurrentWorkers)
	}
	if c.QAMaxIterations < 1 {
		return fmt.Errorf("config: qa_max_iterations must be >= 1, got %d", c.QAMaxIterations)
	}
	if c.TaskMaxMinutes < 1 {
		return fmt.Errorf("config: task_max_minutes must be >= 1, got %d", c.TaskMaxMinutes)
	}
	if c.ProcessDefaultTimeoutMs < 1 {
		return fmt.Errorf("config: process_default_timeout_ms must be >= 1, got %d", c.ProcessDefaultTimeoutMs)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("config: invalid log.level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validProviders := map[string]bool{"cli": true, "api": true}
	if !validProviders[c.LLM.Provider] {
		return fmt.Errorf("config: invalid llm.provider %q, must be one of: cli, api", c.LLM.Provider)
	}

	for role, cap := range c.WorkerRoleCaps {
		if !validRole(role) {
			return fmt.Errorf("config: worker_role_caps has unknown role %q", role)
		}
		if cap < 0 {
			return fmt.Errorf("config: worker_role_caps[%s] must be >= 0, got %d", role, cap)
		}
	}

	if c.ReplannerThresholds.TimeExceededRatio <= 0 {
		return fmt.Errorf("config: replanner_thresholds.time_exceeded_ratio must be > 0")
	}
	if c.ReplannerThresholds.IterationsHighRatio <= 0 {
		return fmt.Errorf("config: replanner_thresholds.iterations_high_ratio must be > 0")
	}
	if c.ReplannerThresholds.ScopeCreepFiles < 0 {
		return fmt.Errorf("config: replanner_thresholds.scope_creep_files must be >= 0")
	}
	if c.ReplannerThresholds.ConsecutiveFailures < 0 {
		return fmt.Errorf("config: replanner_thresholds.consecutive_failures must be >= 0")
	}

	if c.LLMRetryPolicy.MaxAttempts < 0 {
		return fmt.Errorf("config: llm_retry_policy.max_attempts must be >= 0")
	}

	return nil
}

func validRole(role string) bool {
	switch models.AgentRole(role) {
	case models.RoleCoder, models.RoleTester, models.RoleReviewer, models.RoleMerger, models.RoleDecomposer:
		return true
	default:
		return false
	}
}

// RoleCapsAsModel translates WorkerRoleCaps into the map pool.Config
// expects, skipping unrecognized keys (already rejected by Validate, but
// this keeps the conversion total for callers that skip validation).
func (c *Config) RoleCapsAsModel() map[models.AgentRole]int {
	out := make(map[models.AgentRole]int, len(c.WorkerRoleCaps))
	for role, cap := range c.WorkerRoleCaps {
		out[models.AgentRole(role)] = cap
	}
	return out
}
