// Package models holds the entities shared across the CodeFRAME core:
// projects, discovery state, tasks, agents, sessions, events, checkpoints,
// quality findings, and cost records. These are plain structs — the Store
// (pkg/store) is the only component that persists them.
package models

import "time"

// Phase is the project lifecycle stage. It gates which API actions are
// accepted (see pkg/coordinator).
type Phase string

const (
	PhaseDiscovery Phase = "discovery"
	PhasePlanning  Phase = "planning"
	PhaseActive    Phase = "active"
	PhaseReview    Phase = "review"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
)

// SourceType describes where a project's workspace content originates.
type SourceType string

const (
	SourceGitRemote SourceType = "git_remote"
	SourceLocalPath SourceType = "local_path"
	SourceUpload    SourceType = "upload"
	SourceEmpty     SourceType = "empty"
)

// Project is the top-level unit of work: one product brief, one workspace,
// one phase state machine.
type Project struct {
	ID             int64
	Name           string
	Description    string
	SourceType     SourceType
	SourceLocation string
	SourceBranch   string
	WorkspacePath  string
	GitInitialized bool
	CurrentCommit  string
	Phase          Phase
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ValidPhaseTransition reports whether moving from `from` to `to` is allowed:
// phase transitions only move forward, except review→active on rework, and
// any non-terminal phase may move to failed.
func ValidPhaseTransition(from, to Phase) bool {
	if to == PhaseFailed {
		return from != PhaseComplete && from != PhaseFailed
	}
	switch from {
	case PhaseDiscovery:
		return to == PhasePlanning
	case PhasePlanning:
		return to == PhaseActive
	case PhaseActive:
		return to == PhaseReview || to == PhaseComplete
	case PhaseReview:
		return to == PhaseActive
	default:
		return false
	}
}
