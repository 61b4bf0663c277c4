package models

import "time"

// Role is the worker specialization, one of the constants below. It is a
// plain string type: an unrecognized value is not rejected when decoded or
// read from the Store; worker.Factory.Build reports it at dispatch time.
type Role string

const (
	RoleLead     Role = "lead"
	RoleBackend  Role = "backend"
	RoleFrontend Role = "frontend"
	RoleTest     Role = "test"
	RoleReview   Role = "review"
)

// AgentStatus is the lifecycle state of a pooled worker agent.
type AgentStatus string

const (
	AgentIdle     AgentStatus = "idle"
	AgentBusy     AgentStatus = "busy"
	AgentStopping AgentStatus = "stopping"
	AgentStopped  AgentStatus = "stopped"
	AgentError    AgentStatus = "error"
)

// Agent is a pooled worker, identified within a project.
type Agent struct {
	ID              int64
	ProjectID       int64
	Role            Role
	Status          AgentStatus
	CurrentTaskID   int64 // 0 means unset
	CreatedAt       time.Time
	LastHeartbeat   time.Time
	TotalTokensIn   int64
	TotalTokensOut  int64
	TotalCostCents  int64
}
