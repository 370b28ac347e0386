package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexus-build/nexus/internal/config"
	"github.com/nexus-build/nexus/internal/coordinator"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <feature-file>",
		Short: "Submit a feature and drive it to completion",
		Long: `Run decomposes the feature described in <feature-file> into a
dependency-ordered task graph and drives every task through its
worktree, QA loop, and merge. It blocks until the plan reaches a
terminal state (all tasks done, or the plan is blocked), polling and
logging progress as it goes.

A SIGINT cooperatively cancels the running plan instead of killing it
outright: in-flight tasks are allowed to reach a terminal state before
the process exits.

Examples:
  nexus run feature.yaml
  nexus run feature.yaml --config custom.yaml
  nexus run feature.yaml --max-tokens 2000000 --budget-warn-ratio 0.8`,
		Args: cobra.ExactArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .nexus/config.yaml)")
	cmd.Flags().Int64("max-tokens", 0, "Abort dispatching new waves once accumulated LLM tokens exceed this (0 = no budget gate)")
	cmd.Flags().Float64("budget-warn-ratio", 0.8, "Fraction of max-tokens at which a warning is logged")
	cmd.Flags().Duration("shutdown-grace", 60*time.Second, "How long Shutdown waits for in-flight tasks to drain")
	cmd.Flags().Duration("poll-interval", 5*time.Second, "How often plan status is printed to stdout")

	return cmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	featureFile := args[0]

	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = ".nexus/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	features, err := LoadFeatures(featureFile)
	if err != nil {
		return err
	}

	maxTokens, _ := cmd.Flags().GetInt64("max-tokens")
	warnRatio, _ := cmd.Flags().GetFloat64("budget-warn-ratio")
	shutdownGrace, _ := cmd.Flags().GetDuration("shutdown-grace")
	pollInterval, _ := cmd.Flags().GetDuration("poll-interval")

	a, err := buildApp(cfg, runOptions{maxTokens: maxTokens, warnRatio: warnRatio})
	if err != nil {
		return fmt.Errorf("build coordinator: %w", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	submitCtx := context.Background()
	var handle coordinator.PlanHandle
	if len(features) == 1 {
		handle, err = a.Coordinator.SubmitFeature(submitCtx, features[0])
	} else {
		handle, err = a.Coordinator.SubmitFeatures(submitCtx, features)
	}
	if err != nil {
		return fmt.Errorf("submit feature: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Submitted plan %s (%d feature(s))\n", handle.ID(), len(features))

	done, err := a.Coordinator.Done(handle)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

waitLoop:
	for {
		select {
		case <-done:
			break waitLoop
		case <-ctx.Done():
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived interrupt, cancelling plan %s...\n", handle.ID())
			if err := a.Coordinator.Cancel(handle); err != nil {
				fmt.Fprintf(cmd.OutOrStderr(), "cancel: %v\n", err)
			}
			break waitLoop
		case <-ticker.C:
			status, err := a.Coordinator.Status(handle)
			if err != nil {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wave %d/%d: %d in progress, %d done, %d failed, %d awaiting review\n",
				status.WavesCompleted, status.WavesTotal, len(status.InProgress), len(status.Done), len(status.Failed), len(status.AwaitingReview))
		}
	}

	status, err := a.Coordinator.Status(handle)
	if err != nil {
		return err
	}

	if err := a.Coordinator.Shutdown(shutdownGrace); err != nil {
		fmt.Fprintf(cmd.OutOrStderr(), "shutdown: %v\n", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nPlan %s finished: %d done, %d failed, %d awaiting review, %d blocked\n",
		status.PlanID, len(status.Done), len(status.Failed), len(status.AwaitingReview), len(status.Blocked))

	if len(status.Failed) > 0 {
		return fmt.Errorf("%d task(s) failed", len(status.Failed))
	}
	return nil
}
