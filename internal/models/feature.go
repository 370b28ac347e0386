// Package models defines the core data types shared across Nexus's
// orchestration engine: features, tasks, waves, worktree handles, agent
// instances, QA results, review requests, and the event taxonomy.
package models

import "time"

// Priority is a coarse MoSCoW priority tag.
type Priority string

const (
	PriorityMust   Priority = "must"
	PriorityShould Priority = "should"
	PriorityCould  Priority = "could"
	PriorityWont   Priority = "wont"
)

// Feature is the input unit submitted to Nexus. It is immutable once
// submitted to the Coordinator.
type Feature struct {
	ID                 string
	Title              string
	Description        string
	Priority           Priority
	AcceptanceCriteria []string
	CreatedAt          time.Time
}

// Validate checks that a Feature has the minimum fields required for
// decomposition.
func (f *Feature) Validate() error {
	if f.ID == "" {
		return errEmptyField("feature id")
	}
	if f.Title == "" {
		return errEmptyField("feature title")
	}
	if f.Description == "" {
		return errEmptyField("feature description")
	}
	return nil
}
