package models

import "time"

// SessionStatus is the lifecycle state of one orchestration run of a project.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionStopped   SessionStatus = "stopped"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Session is one concrete run of the coordination loop against a project.
// At most one Session per project may be SessionActive at a time.
type Session struct {
	ID             int64
	ProjectID      int64
	StartedAt      time.Time
	EndedAt        *time.Time
	Status         SessionStatus
	LastIteration  int64
	WatchdogCount  int
	FailureReason  string
}
