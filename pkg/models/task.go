package models

import "time"

// TaskStatus is the lifecycle state of a decomposed coding task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskReady      TaskStatus = "ready"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskExcluded   TaskStatus = "excluded"
)

// Terminal reports whether a task will never transition again on its own.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskExcluded:
		return true
	default:
		return false
	}
}

// GateStatus is the outcome of a task's quality gate run.
type GateStatus string

const (
	GateNotRun GateStatus = "not_run"
	GatePassed GateStatus = "passed"
	GateFailed GateStatus = "failed"
)

// DefaultMaxAttempts is the per-task attempt ceiling.
const DefaultMaxAttempts = 3

// Task is one node in a project's dependency graph.
type Task struct {
	ID                int64
	ProjectID         int64
	TaskNumber        string
	Title             string
	Description       string
	Status            TaskStatus
	DependsOn         []int64
	AssignedRole      string
	AssignedAgentID   int64
	AttemptCount      int
	MaxAttempts       int
	QualityGateStatus GateStatus
	Artifacts         []string
	Comment           string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TaskCounts is the per-status rollup returned by GET .../tasks.
type TaskCounts struct {
	Pending    int `json:"pending"`
	Ready      int `json:"ready"`
	InProgress int `json:"in_progress"`
	Blocked    int `json:"blocked"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Excluded   int `json:"excluded"`
}

// CountTasks builds the per-status counts for a task set.
func CountTasks(tasks []*Task) TaskCounts {
	var c TaskCounts
	for _, t := range tasks {
		switch t.Status {
		case TaskPending:
			c.Pending++
		case TaskReady:
			c.Ready++
		case TaskInProgress:
			c.InProgress++
		case TaskBlocked:
			c.Blocked++
		case TaskCompleted:
			c.Completed++
		case TaskFailed:
			c.Failed++
		case TaskExcluded:
			c.Excluded++
		}
	}
	return c
}
